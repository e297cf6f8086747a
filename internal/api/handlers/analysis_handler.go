package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/orgscan/backend/internal/pipeline"
	"github.com/orgscan/backend/internal/review"
	"github.com/orgscan/backend/internal/storage"
	"github.com/orgscan/backend/pkg/logger"
)

// maxDocumentDownload bounds rescan downloads of certificate URLs.
const maxDocumentDownload = 10 << 20

type AnalysisHandler struct {
	pipeline   *pipeline.Service
	workflow   *review.Workflow
	downloader *http.Client
}

func NewAnalysisHandler(p *pipeline.Service, w *review.Workflow) *AnalysisHandler {
	return &AnalysisHandler{
		pipeline: p,
		workflow: w,
		downloader: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// AnalyzeDocument accepts a multipart upload and runs the full fraud
// analysis synchronously, returning the persisted record.
func (h *AnalysisHandler) AnalyzeDocument(c *fiber.Ctx) error {
	orgID := c.FormValue("organization_id")
	if orgID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "organization_id is required",
		})
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "file is required",
		})
	}

	file, err := fileHeader.Open()
	if err != nil {
		logger.Error("Failed to open uploaded file", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Failed to read uploaded file",
		})
	}
	defer file.Close()

	document, err := io.ReadAll(file)
	if err != nil {
		logger.Error("Failed to read uploaded file", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Failed to read uploaded file",
		})
	}

	record, err := h.pipeline.Analyze(c.Context(), pipeline.Input{
		OrganizationID: orgID,
		Document:       document,
		Email:          c.FormValue("email"),
		WebsiteDomain:  c.FormValue("website_domain"),
	})
	if err != nil {
		return h.analysisError(c, orgID, err)
	}

	return c.Status(fiber.StatusCreated).JSON(record)
}

// Rescan re-runs the analysis for an organization from a stored
// certificate URL, producing a fresh record through the same pipeline.
func (h *AnalysisHandler) Rescan(c *fiber.Ctx) error {
	orgID := c.Params("orgID")

	var req struct {
		CertificateURL string `json:"certificate_url"`
		Email          string `json:"email"`
		WebsiteDomain  string `json:"website_domain"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.CertificateURL == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "certificate_url is required",
		})
	}

	document, err := h.downloadDocument(c, req.CertificateURL)
	if err != nil {
		logger.Error("Failed to download certificate",
			zap.String("organization_id", orgID), zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "Failed to download certificate document",
		})
	}

	record, err := h.pipeline.Analyze(c.Context(), pipeline.Input{
		OrganizationID: orgID,
		Document:       document,
		Email:          req.Email,
		WebsiteDomain:  req.WebsiteDomain,
	})
	if err != nil {
		return h.analysisError(c, orgID, err)
	}

	return c.Status(fiber.StatusCreated).JSON(record)
}

func (h *AnalysisHandler) GetAnalysis(c *fiber.Ctx) error {
	id := c.Params("id")

	record, err := h.workflow.GetByID(c.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Analysis not found",
			})
		}
		logger.Error("Failed to load analysis", zap.String("id", id), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load analysis",
		})
	}

	return c.JSON(record)
}

func (h *AnalysisHandler) GetOrganizationAnalyses(c *fiber.Ctx) error {
	orgID := c.Params("orgID")

	records, err := h.workflow.GetByOrganization(c.Context(), orgID)
	if err != nil {
		logger.Error("Failed to load organization analyses",
			zap.String("organization_id", orgID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load analyses",
		})
	}

	return c.JSON(fiber.Map{
		"organization_id": orgID,
		"analyses":        records,
		"count":           len(records),
	})
}

func (h *AnalysisHandler) analysisError(c *fiber.Ctx, orgID string, err error) error {
	logger.Error("Analysis failed",
		zap.String("organization_id", orgID), zap.Error(err))

	if errors.Is(err, pipeline.ErrExtraction) {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": "Could not extract text from document",
		})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "Analysis failed",
	})
}

func (h *AnalysisHandler) downloadDocument(c *fiber.Ctx, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(c.Context(), http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build download request: %w", err)
	}

	resp, err := h.downloader.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("document fetch returned status %d", resp.StatusCode)
	}

	return io.ReadAll(io.LimitReader(resp.Body, maxDocumentDownload))
}
