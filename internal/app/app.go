package app

import (
	"os"

	"go-leave/internal/shared/connection"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// BuildApp connects the infrastructure and registers every module onto the
// router. Redis is optional: without it the service runs uncached.
func BuildApp(router *gin.Engine) error {
	gormDB, err := connection.ConnectGORMWithRetry(
		os.Getenv("DB_HOST"),
		os.Getenv("DB_USER"),
		os.Getenv("DB_PASSWORD"),
		os.Getenv("DB_NAME"),
		os.Getenv("DB_PORT"),
		os.Getenv("DB_SSLMODE"),
		5,
	)
	if err != nil {
		return err
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		return err
	}

	return registerModules(router, sqlDB, gormDB, connectRedisOrNil())
}

func connectRedisOrNil() *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		zap.L().Warn("REDIS_ADDR not set, balance cache disabled")
		return nil
	}

	rdb, err := connection.ConnectRedisWithRetry(addr, 5)
	if err != nil {
		zap.L().Warn("redis unavailable, balance cache disabled", zap.Error(err))
		return nil
	}
	return rdb
}
