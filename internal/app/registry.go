package app

import (
	"database/sql"
	"net/http"

	"go-leave/internal/balance"
	"go-leave/internal/employee"
	"go-leave/internal/leave"
	"go-leave/internal/messaging/kafka"
	"go-leave/internal/middleware"
	"go-leave/internal/shared/counter"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

func registerModules(
	router *gin.Engine,
	db *sql.DB,
	gormDB *gorm.DB,
	rdb *redis.Client,
) error {
	// --- Repositories ---
	balanceRepo := balance.NewRepository(gormDB)
	counterRepo := counter.NewRepository(gormDB)
	employeeRepo := employee.NewRepository(gormDB)
	leaveRepo := leave.NewRepository(gormDB)
	outboxRepo := kafka.NewOutboxRepository(db)

	// --- Services ---
	employeeService := employee.NewService(db, employeeRepo, balanceRepo, counterRepo)
	leaveService := leave.NewServiceWithOutbox(db, leaveRepo, employeeRepo, balanceRepo, counterRepo, outboxRepo, rdb)

	// --- Handlers ---
	employeeHandler := employee.NewHandler(employeeService)
	leaveHandler := leave.NewHandler(leaveService)

	// --- Middleware & Routes ---
	router.Use(middleware.RequestID())
	router.Use(middleware.Identity())
	router.Use(middleware.RateLimitByIP(50, 100))
	router.Use(middleware.Idempotency(rdb))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api/v1")
	{
		employee.RegisterRoutes(api, employeeHandler)
		leave.RegisterRoutes(api, leaveHandler)
	}

	return nil
}
