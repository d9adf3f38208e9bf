package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"spiriverse/internal/utils/response"
)

// HealthHandler reports process liveness and dependency reachability.
type HealthHandler struct {
	db    *gorm.DB
	redis *redis.Client
}

func NewHealthHandler(db *gorm.DB, rdb *redis.Client) *HealthHandler {
	return &HealthHandler{db: db, redis: rdb}
}

// Live always returns 200 once the process is serving.
func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return response.Success(c, "ok", nil)
}

// Ready checks the database and redis. A failing dependency yields 503 with
// the per-dependency status so the probe output says what is down.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	status := fiber.Map{"database": "ok", "redis": "ok"}
	healthy := true

	if sqlDB, err := h.db.DB(); err != nil {
		status["database"] = err.Error()
		healthy = false
	} else if err := sqlDB.PingContext(c.Context()); err != nil {
		status["database"] = err.Error()
		healthy = false
	}

	if err := h.redis.Ping(c.Context()).Err(); err != nil {
		status["redis"] = err.Error()
		healthy = false
	}

	if !healthy {
		return response.Error(c, fiber.StatusServiceUnavailable, "dependency unavailable")
	}
	return response.Success(c, "ready", status)
}
