package admin

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidOTP         = errors.New("invalid or expired code")
	ErrInvalidResetToken  = errors.New("invalid or expired reset token")
)

// Mailer sends the OTP email. Satisfied by the notify dispatcher.
type Mailer interface {
	SendOTP(ctx context.Context, to, otp string) bool
}

type Service struct {
	repo      Repository
	otp       OTPStore
	mailer    Mailer
	jwtSecret string
	log       zerolog.Logger
}

type adminClaims struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

func NewService(repo Repository, otp OTPStore, mailer Mailer, jwtSecret string, log zerolog.Logger) *Service {
	return &Service{repo: repo, otp: otp, mailer: mailer, jwtSecret: jwtSecret, log: log}
}

// Bootstrap creates the initial super-admin account if the username is
// free. Called once on startup with credentials from the environment.
func (s *Service) Bootstrap(ctx context.Context, username, password, email string) error {
	if username == "" || password == "" {
		return nil
	}
	if _, err := s.repo.GetByUsername(ctx, username); err == nil {
		return nil
	} else if !errors.Is(err, ErrAdminNotFound) {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	_, err = s.repo.Create(ctx, &Admin{
		Username: username,
		Email:    email,
		Password: string(hash),
		Role:     RoleSuperAdmin,
	})
	if err == nil {
		s.log.Info().Str("username", username).Msg("bootstrap admin created")
	}
	return err
}

func (s *Service) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	a, err := s.repo.GetByUsername(ctx, req.Username)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.Password), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, adminClaims{
		ID:       a.ID,
		Username: a.Username,
		Role:     a.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "portfolio-chat",
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(7 * 24 * time.Hour)),
		},
	})
	ss, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return nil, err
	}
	return &LoginResponse{AccessToken: ss, Username: a.Username, Role: a.Role}, nil
}

// ValidateToken parses and verifies a JWT, returning the admin's id and
// username. It is the TokenValidator the auth middleware consumes.
func (s *Service) ValidateToken(tokenString string) (int, string, error) {
	claims := &adminClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.jwtSecret), nil
	})
	if err != nil {
		return 0, "", err
	}
	if !token.Valid {
		return 0, "", errors.New("invalid token")
	}
	return claims.ID, claims.Username, nil
}

func (s *Service) GetByUsername(ctx context.Context, username string) (*Admin, error) {
	return s.repo.GetByUsername(ctx, username)
}

func (s *Service) List(ctx context.Context) ([]*Admin, error) {
	return s.repo.List(ctx)
}

func (s *Service) CreateAdmin(ctx context.Context, username, email, password, role string) (*Admin, error) {
	if role != RoleAdmin && role != RoleSuperAdmin {
		role = RoleAdmin
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return s.repo.Create(ctx, &Admin{
		Username: username,
		Email:    email,
		Password: string(hash),
		Role:     role,
	})
}

// ForgotPassword generates and mails an OTP. It reports success even for
// unknown emails so the endpoint cannot be used to enumerate accounts.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	a, err := s.repo.GetByEmail(ctx, email)
	if errors.Is(err, ErrAdminNotFound) {
		s.log.Warn().Str("email", email).Msg("forgot-password for unknown email")
		return nil
	}
	if err != nil {
		return err
	}

	code, err := GenerateOTP()
	if err != nil {
		return err
	}
	if err := s.otp.SaveOTP(ctx, a.Email, code); err != nil {
		return err
	}
	if !s.mailer.SendOTP(ctx, a.Email, code) {
		s.log.Error().Str("email", a.Email).Msg("otp email not delivered")
	}
	return nil
}

// VerifyOTP consumes a valid code and issues a short-lived reset token.
func (s *Service) VerifyOTP(ctx context.Context, email, code string) (string, error) {
	valid, err := s.otp.ConsumeOTP(ctx, email, code)
	if err != nil {
		return "", err
	}
	if !valid {
		return "", ErrInvalidOTP
	}

	token := uuid.NewString()
	if err := s.otp.SaveResetToken(ctx, token, email); err != nil {
		return "", err
	}
	return token, nil
}

// ResetPassword consumes a reset token and rewrites the password hash.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	email, err := s.otp.ConsumeResetToken(ctx, token)
	if err != nil {
		return err
	}
	if email == "" {
		return ErrInvalidResetToken
	}

	a, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.repo.UpdatePassword(ctx, a.ID, string(hash))
}
