package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds every runtime parameter of the application.
// Values come from the environment; a .env file is loaded first if present.
type Config struct {
	Addr      string
	DBDSN     string // empty means the in-memory store (dev mode)
	RedisAddr string
	JWTSecret string
	SiteURL   string
	Dev       bool

	// Admin bootstrap account, created on startup if missing.
	AdminUsername string
	AdminPassword string
	AdminEmail    string

	// Outbound mail.
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPass     string
	ResendAPIKey string
	MailFrom     string
}

// Load reads configuration from the environment. Only JWT_SECRET is
// required; everything else has a dev-friendly default.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Addr:          getenv("ADDR", ":8080"),
		DBDSN:         os.Getenv("DB_DSN"),
		RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		SiteURL:       getenv("SITE_URL", "http://localhost:8080"),
		Dev:           getenv("ENV", "development") != "production",
		AdminUsername: getenv("ADMIN_USERNAME", "admin"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
		AdminEmail:    os.Getenv("ADMIN_EMAIL"),
		SMTPHost:      getenv("SMTP_HOST", "smtp.gmail.com"),
		SMTPPort:      getenvInt("SMTP_PORT", 587),
		SMTPUser:      os.Getenv("SMTP_USER"),
		SMTPPass:      os.Getenv("SMTP_PASS"),
		ResendAPIKey:  os.Getenv("RESEND_API_KEY"),
		MailFrom:      os.Getenv("MAIL_FROM"),
	}
	if cfg.MailFrom == "" {
		cfg.MailFrom = cfg.SMTPUser
	}
	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
