package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/orgscan/backend/internal/intelligence"
	"github.com/orgscan/backend/internal/similarity"
)

type HealthHandler struct {
	intel  *intelligence.Client
	engine *similarity.Engine
}

func NewHealthHandler(intel *intelligence.Client, engine *similarity.Engine) *HealthHandler {
	return &HealthHandler{
		intel:  intel,
		engine: engine,
	}
}

// Health reports the availability of the analysis collaborators. The
// service stays up when degraded: analyses still run with fallback AI
// output and without similarity scoring.
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	aiConfigured := h.intel.Configured()
	aiHealthy := aiConfigured && h.intel.Healthy(ctx)
	embeddingReady := h.engine != nil && h.engine.Ready()

	status := "OK"
	if !aiHealthy || !embeddingReady {
		status = "DEGRADED"
	}

	return c.JSON(fiber.Map{
		"status": status,
		"intelligence": fiber.Map{
			"configured": aiConfigured,
			"healthy":    aiHealthy,
		},
		"embedding": fiber.Map{
			"ready": embeddingReady,
		},
		"time": time.Now().Unix(),
	})
}
