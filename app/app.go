package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"library_by_email/config"
	"library_by_email/db"
	"library_by_email/ledger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// 简化别名，便于 handlers 调用
type Ctx = gin.Context
type H = gin.H

// App 聚合各依赖
type App struct {
	Router *gin.Engine
	DB     *gorm.DB
	RDB    *redis.Client // nil 表示未配置 redis
	Repo   *db.Repo
	Config config.Config
	Logger *slog.Logger

	ledger ledger.Ledger
}

// New opens the catalog store and, when REDIS_ADDR is set, redis. The
// router carries recovery, request logging and CORS but no routes yet.
func New(cfg config.Config, logger *slog.Logger) (*App, error) {
	// --- DB: Postgres / sqlite ---
	dbConn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	// --- Redis（可选）---
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPwd, DB: 0})
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			if sqlDB, derr := dbConn.DB(); derr == nil {
				_ = sqlDB.Close()
			}
			return nil, fmt.Errorf("redis: %w", err)
		}
	}

	// --- Gin ---
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(logger, rdb, time.Minute))
	useCORS(r, cfg.WebOrigin)

	a := &App{
		Router: r, DB: dbConn, RDB: rdb, Repo: db.NewRepo(dbConn),
		Config: cfg, Logger: logger,
	}
	// 已回复邮件的账本：有 redis 就用 redis，否则进程内存
	if rdb != nil {
		a.ledger = ledger.NewRedis(rdb, cfg.LedgerTTL)
	} else {
		a.ledger = ledger.NewMemory(cfg.LedgerTTL)
	}
	return a, nil
}

func MustNew(cfg config.Config, logger *slog.Logger) *App {
	a, err := New(cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		panic(err)
	}
	return a
}

func (a *App) Ledger() ledger.Ledger { return a.ledger }

func (a *App) Close() {
	if a.RDB != nil {
		_ = a.RDB.Close()
	}
	_ = a.Repo.Close()
}
