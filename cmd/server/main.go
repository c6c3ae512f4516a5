package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"portfolio-chat/internal/admin"
	"portfolio-chat/internal/chat"
	"portfolio-chat/internal/config"
	"portfolio-chat/internal/db"
	myMiddleware "portfolio-chat/internal/middleware"
	"portfolio-chat/internal/notify"
)

func main() {
	cfg := config.Load()

	log := zerolog.New(os.Stderr).With().Timestamp().Logger()
	if cfg.Dev {
		log = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.DebugLevel)
	} else {
		log = log.Level(zerolog.InfoLevel)
	}

	if cfg.JWTSecret == "" {
		log.Fatal().Msg("JWT_SECRET is not set")
	}

	// Storage. No DSN means the in-memory store: good enough for local
	// hacking, everything is lost on restart.
	var (
		store     chat.Store
		rec       chat.Reconciler
		adminRepo admin.Repository
	)
	if cfg.DBDSN != "" {
		database, err := db.NewDatabase(cfg.DBDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to postgres")
		}
		if err := database.AutoMigrate(); err != nil {
			log.Fatal().Err(err).Msg("migration failed")
		}
		log.Info().Msg("connected to postgres")
		pg := chat.NewPostgresStore(database.Conn)
		store, rec = pg, pg
		adminRepo = admin.NewSQLRepository(database.Conn)
	} else {
		log.Warn().Msg("DB_DSN not set, using in-memory store")
		mem := chat.NewMemoryStore()
		store, rec = mem, mem
		adminRepo = admin.NewMemoryRepository()
	}

	// Redis backs the OTP password-reset flow; without it the flow is
	// served from process memory.
	var otpStore admin.OTPStore
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		log.Warn().Err(err).Msg("redis unavailable, OTP state kept in memory")
		otpStore = admin.NewMemoryOTPStore()
	} else {
		log.Info().Msg("connected to redis")
		otpStore = admin.NewRedisOTPStore(redisClient)
	}

	// Notification chain: SMTP first, Resend as fallback.
	dispatcher := notify.NewDispatcher(cfg.AdminEmail, cfg.SiteURL, log,
		&notify.SMTPProvider{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPass,
			From:     cfg.MailFrom,
		},
		&notify.ResendProvider{
			APIKey: cfg.ResendAPIKey,
			From:   cfg.MailFrom,
		},
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := chat.NewHub(log)
	go hub.Run(ctx)
	go chat.RunReconciler(ctx, store, rec, 5*time.Minute, log)

	chatHandler := chat.NewHandler(store, hub, dispatcher, log)
	contactHandler := notify.NewContactHandler(dispatcher, log)

	adminService := admin.NewService(adminRepo, otpStore, dispatcher, cfg.JWTSecret, log)
	if err := adminService.Bootstrap(ctx, cfg.AdminUsername, cfg.AdminPassword, cfg.AdminEmail); err != nil {
		log.Fatal().Err(err).Msg("bootstrap admin")
	}
	adminHandler := admin.NewHandler(adminService, !cfg.Dev, log)
	authMiddleware := myMiddleware.NewAuthMiddleware(adminService, admin.TokenCookie)

	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.SiteURL, "http://localhost:3000"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"service":"portfolio-chat","status":"ok"}`))
	})

	// Public chat surface (visitors have no credentials).
	r.Get("/ws", chatHandler.ServeWs)
	r.Route("/api/chat", func(r chi.Router) {
		r.Get("/conversations", chatHandler.ListConversations)
		r.Post("/conversations", chatHandler.StartConversation)
		r.Get("/messages", chatHandler.GetChatHistory)
		r.Post("/messages", chatHandler.PostMessage)
		r.Patch("/messages", chatHandler.MarkRead)
	})

	r.Post("/api/contact", contactHandler.Submit)

	// Admin surface.
	r.Route("/api/admin", func(r chi.Router) {
		r.Post("/login", adminHandler.Login)
		r.Post("/forgot-password", adminHandler.ForgotPassword)
		r.Post("/verify-otp", adminHandler.VerifyOTP)
		r.Post("/reset-password", adminHandler.ResetPassword)

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Handle)
			r.Get("/me", adminHandler.Me)
			r.Get("/users", adminHandler.ListUsers)
			r.Post("/users", adminHandler.CreateUser)
		})
	})

	log.Info().Str("addr", cfg.Addr).Msg("server starting")
	if err := http.ListenAndServe(cfg.Addr, r); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
