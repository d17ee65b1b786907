package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"mingle/backend/internal/api/handler"
	"mingle/backend/internal/auth"
	"mingle/backend/internal/chathub"
	"mingle/backend/internal/directory"
	"mingle/backend/internal/models"
	"mingle/backend/internal/storage"
	"mingle/backend/internal/telegram"
)

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func setupDependencies() (*gorm.DB, *redis.Client) {
	dsn := getenv("DATABASE_DSN",
		"host=localhost user=user password=password dbname=mingledb port=5432 sslmode=disable")

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("Failed to connect PostgreSQL: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     getenv("REDIS_ADDR", "localhost:6379"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       0,
	})
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		log.Fatalf("Failed to connect Redis: %v", err)
	}

	// The Directory Service owns these tables; migrating here keeps local
	// development one-command.
	if err := db.AutoMigrate(&models.User{}, &models.Chat{}, &models.Message{}); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	log.Println("Database and Redis connections established, migrations complete.")
	return db, rdb
}

func main() {
	log.Println("Starting Mingle Realtime Hub...")

	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Error loading .env file")
	}

	db, rdb := setupDependencies()
	store := storage.NewService(rdb)
	dir := directory.NewService(db)

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("JWT_SECRET is not set")
	}
	verifier := auth.NewJWTVerifier([]byte(secret))

	var alerts chathub.MissedCallAlerter
	if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" {
		notifier, err := telegram.NewNotifier(token, dir)
		if err != nil {
			log.Fatalf("Failed to start Telegram notifier: %v", err)
		}
		alerts = notifier
	} else {
		log.Println("TELEGRAM_BOT_TOKEN not set, missed-call alerts disabled")
	}

	hub := chathub.NewHub(verifier, dir, store, alerts)
	hub.StartRoomEventBridge(store.SubscribeRoomEvents())

	r := gin.Default()
	h := handler.NewHandler(hub)
	r.GET("/ws", h.ServeWebSocket)
	r.GET("/healthz", h.Health)

	server := &http.Server{
		Addr:           getenv("LISTEN_ADDR", ":8080"),
		Handler:        r,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")
	hub.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown: %v", err)
	}
}
