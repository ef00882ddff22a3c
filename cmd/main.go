package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"meetgogo/backend/internal/api/handler"
	"meetgogo/backend/internal/archive"
	"meetgogo/backend/internal/config"
	"meetgogo/backend/internal/matchmaker"
	"meetgogo/backend/internal/models"
	"meetgogo/backend/internal/store"
)

func setupDependencies(cfg *config.Config) (*gorm.DB, *redis.Client) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{})
	if err != nil {
		log.Fatalf("Failed to connect PostgreSQL: %v", err)
	}

	if err := db.AutoMigrate(
		&models.SessionRecord{},
		&models.MessageRecord{},
	); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		log.Fatalf("Failed to connect Redis: %v", err)
	}

	log.Println("Database and Redis connections established, migrations complete.")
	return db, rdb
}

func main() {
	log.Println("Starting MeetGoGo Backend...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, rdb := setupDependencies(cfg)

	docs := store.NewRedisStore(rdb)
	arch := archive.NewService(db)

	match := matchmaker.New(docs)
	if cfg.MatchMaxAttempts > 0 {
		match.MaxClaimAttempts = cfg.MatchMaxAttempts
	}
	if cfg.MatchBackoff > 0 {
		match.ClaimBackoff = cfg.MatchBackoff
	}

	h := handler.NewHandler(docs, arch, match, []byte(cfg.JWTSecret), cfg.TypingQuiet, cfg.STUNServers)

	r := gin.Default()
	r.GET("/anonid", h.GetAnonID)  // JWT for a fresh anonymous identity
	r.GET("/ws", h.ServeWebSocket) // WebSocket upgrade

	server := &http.Server{
		Addr:           cfg.HTTPAddr,
		Handler:        r,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	log.Fatal(server.ListenAndServe())
}
