package admin

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"
	"time"
)

var ErrAdminNotFound = errors.New("admin not found")

// Repository stores admin accounts.
type Repository interface {
	Create(ctx context.Context, a *Admin) (*Admin, error)
	GetByUsername(ctx context.Context, username string) (*Admin, error)
	GetByEmail(ctx context.Context, email string) (*Admin, error)
	List(ctx context.Context) ([]*Admin, error)
	UpdatePassword(ctx context.Context, id int, hash string) error
}

// ---------------------------------------------
// Postgres
// ---------------------------------------------

type SQLRepository struct {
	db *sql.DB
}

func NewSQLRepository(db *sql.DB) *SQLRepository {
	return &SQLRepository{db: db}
}

func (r *SQLRepository) Create(ctx context.Context, a *Admin) (*Admin, error) {
	query := `
		INSERT INTO admins (username, email, password, role)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query, a.Username, a.Email, a.Password, a.Role).
		Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *SQLRepository) GetByUsername(ctx context.Context, username string) (*Admin, error) {
	return r.getBy(ctx, "username", username)
}

func (r *SQLRepository) GetByEmail(ctx context.Context, email string) (*Admin, error) {
	return r.getBy(ctx, "email", email)
}

func (r *SQLRepository) getBy(ctx context.Context, column, value string) (*Admin, error) {
	a := &Admin{}
	query := `SELECT id, username, email, password, role, created_at FROM admins WHERE ` + column + ` = $1`
	err := r.db.QueryRowContext(ctx, query, value).
		Scan(&a.ID, &a.Username, &a.Email, &a.Password, &a.Role, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAdminNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *SQLRepository) List(ctx context.Context) ([]*Admin, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, username, email, password, role, created_at FROM admins ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var admins []*Admin
	for rows.Next() {
		a := &Admin{}
		if err := rows.Scan(&a.ID, &a.Username, &a.Email, &a.Password, &a.Role, &a.CreatedAt); err != nil {
			return nil, err
		}
		admins = append(admins, a)
	}
	return admins, rows.Err()
}

func (r *SQLRepository) UpdatePassword(ctx context.Context, id int, hash string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE admins SET password = $1 WHERE id = $2`, hash, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAdminNotFound
	}
	return nil
}

// ---------------------------------------------
// In-memory (dev mode, tests)
// ---------------------------------------------

type MemoryRepository struct {
	mu     sync.Mutex
	admins map[int]*Admin
	nextID int
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{admins: make(map[int]*Admin), nextID: 1}
}

func (r *MemoryRepository) Create(_ context.Context, a *Admin) (*Admin, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *a
	stored.ID = r.nextID
	stored.CreatedAt = time.Now()
	r.nextID++
	r.admins[stored.ID] = &stored
	out := stored
	return &out, nil
}

func (r *MemoryRepository) GetByUsername(_ context.Context, username string) (*Admin, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.admins {
		if a.Username == username {
			out := *a
			return &out, nil
		}
	}
	return nil, ErrAdminNotFound
}

func (r *MemoryRepository) GetByEmail(_ context.Context, email string) (*Admin, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.admins {
		if a.Email == email {
			out := *a
			return &out, nil
		}
	}
	return nil, ErrAdminNotFound
}

func (r *MemoryRepository) List(_ context.Context) ([]*Admin, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var admins []*Admin
	for _, a := range r.admins {
		out := *a
		admins = append(admins, &out)
	}
	sort.Slice(admins, func(i, j int) bool { return admins[i].CreatedAt.After(admins[j].CreatedAt) })
	return admins, nil
}

func (r *MemoryRepository) UpdatePassword(_ context.Context, id int, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.admins[id]
	if !ok {
		return ErrAdminNotFound
	}
	a.Password = hash
	return nil
}
