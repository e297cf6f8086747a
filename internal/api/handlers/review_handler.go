package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/orgscan/backend/internal/review"
	"github.com/orgscan/backend/internal/storage"
	"github.com/orgscan/backend/pkg/logger"
)

type ReviewHandler struct {
	workflow *review.Workflow
}

func NewReviewHandler(workflow *review.Workflow) *ReviewHandler {
	return &ReviewHandler{
		workflow: workflow,
	}
}

type reviewRequest struct {
	ReviewerID string `json:"reviewer_id"`
	Notes      string `json:"notes"`
}

func (h *ReviewHandler) ApproveAnalysis(c *fiber.Ctx) error {
	return h.decide(c, false)
}

func (h *ReviewHandler) RejectAnalysis(c *fiber.Ctx) error {
	return h.decide(c, true)
}

func (h *ReviewHandler) decide(c *fiber.Ctx, reject bool) error {
	id := c.Params("id")

	var req reviewRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.ReviewerID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "reviewer_id is required",
		})
	}

	var (
		record interface{}
		err    error
	)
	if reject {
		record, err = h.workflow.MarkRejected(c.Context(), id, req.ReviewerID, req.Notes)
	} else {
		record, err = h.workflow.MarkApproved(c.Context(), id, req.ReviewerID, req.Notes)
	}
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Analysis not found",
			})
		}
		logger.Error("Failed to record review decision",
			zap.String("analysis_id", id), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to record review decision",
		})
	}

	return c.JSON(record)
}

func (h *ReviewHandler) GetPendingReview(c *fiber.Ctx) error {
	records, err := h.workflow.GetAllPendingReview(c.Context())
	if err != nil {
		logger.Error("Failed to load pending reviews", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load pending reviews",
		})
	}

	return c.JSON(fiber.Map{
		"analyses": records,
		"count":    len(records),
	})
}

func (h *ReviewHandler) GetHighRiskPendingReview(c *fiber.Ctx) error {
	records, err := h.workflow.GetHighRiskPendingReview(c.Context())
	if err != nil {
		logger.Error("Failed to load high risk reviews", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load high risk reviews",
		})
	}

	return c.JSON(fiber.Map{
		"analyses": records,
		"count":    len(records),
	})
}

func (h *ReviewHandler) GetStats(c *fiber.Ctx) error {
	stats, err := h.workflow.Stats(c.Context())
	if err != nil {
		logger.Error("Failed to load stats", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load stats",
		})
	}

	return c.JSON(stats)
}
