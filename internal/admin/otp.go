package admin

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	otpTTL        = 10 * time.Minute
	resetTokenTTL = 15 * time.Minute
)

// OTPStore holds short-lived password-reset state. Codes and tokens are
// consume-once: a successful verify removes them.
type OTPStore interface {
	SaveOTP(ctx context.Context, email, code string) error
	ConsumeOTP(ctx context.Context, email, code string) (bool, error)
	SaveResetToken(ctx context.Context, token, email string) error
	// ConsumeResetToken returns the email the token was issued for, or
	// "" when the token is unknown or expired.
	ConsumeResetToken(ctx context.Context, token string) (string, error)
}

// GenerateOTP returns a 6-digit code.
func GenerateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

// ---------------------------------------------
// Redis
// ---------------------------------------------

type RedisOTPStore struct {
	rdb *redis.Client
}

func NewRedisOTPStore(rdb *redis.Client) *RedisOTPStore {
	return &RedisOTPStore{rdb: rdb}
}

func otpKey(email string) string   { return "otp:" + email }
func resetKey(token string) string { return "reset:" + token }

func (s *RedisOTPStore) SaveOTP(ctx context.Context, email, code string) error {
	return s.rdb.Set(ctx, otpKey(email), code, otpTTL).Err()
}

func (s *RedisOTPStore) ConsumeOTP(ctx context.Context, email, code string) (bool, error) {
	stored, err := s.rdb.Get(ctx, otpKey(email)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if stored != code {
		return false, nil
	}
	if err := s.rdb.Del(ctx, otpKey(email)).Err(); err != nil {
		return false, err
	}
	return true, nil
}

func (s *RedisOTPStore) SaveResetToken(ctx context.Context, token, email string) error {
	return s.rdb.Set(ctx, resetKey(token), email, resetTokenTTL).Err()
}

func (s *RedisOTPStore) ConsumeResetToken(ctx context.Context, token string) (string, error) {
	email, err := s.rdb.GetDel(ctx, resetKey(token)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return email, nil
}

// ---------------------------------------------
// In-memory (dev mode, tests)
// ---------------------------------------------

type memoryEntry struct {
	value   string
	expires time.Time
}

type MemoryOTPStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

func NewMemoryOTPStore() *MemoryOTPStore {
	return &MemoryOTPStore{entries: make(map[string]memoryEntry)}
}

func (s *MemoryOTPStore) set(key, value string, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memoryEntry{value: value, expires: time.Now().Add(ttl)}
}

func (s *MemoryOTPStore) getDel(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok || time.Now().After(e.expires) {
		delete(s.entries, key)
		return ""
	}
	delete(s.entries, key)
	return e.value
}

func (s *MemoryOTPStore) SaveOTP(_ context.Context, email, code string) error {
	s.set(otpKey(email), code, otpTTL)
	return nil
}

func (s *MemoryOTPStore) ConsumeOTP(_ context.Context, email, code string) (bool, error) {
	s.mu.Lock()
	e, ok := s.entries[otpKey(email)]
	expired := ok && time.Now().After(e.expires)
	if !ok || expired || e.value != code {
		if expired {
			delete(s.entries, otpKey(email))
		}
		s.mu.Unlock()
		return false, nil
	}
	delete(s.entries, otpKey(email))
	s.mu.Unlock()
	return true, nil
}

func (s *MemoryOTPStore) SaveResetToken(_ context.Context, token, email string) error {
	s.set(resetKey(token), email, resetTokenTTL)
	return nil
}

func (s *MemoryOTPStore) ConsumeResetToken(_ context.Context, token string) (string, error) {
	return s.getDel(resetKey(token)), nil
}
