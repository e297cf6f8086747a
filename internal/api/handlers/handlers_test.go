package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orgscan/backend/internal/doctext"
	"github.com/orgscan/backend/internal/intelligence"
	"github.com/orgscan/backend/internal/pipeline"
	"github.com/orgscan/backend/internal/review"
	"github.com/orgscan/backend/internal/risk"
	"github.com/orgscan/backend/internal/similarity"
	"github.com/orgscan/backend/internal/storage"
	"github.com/orgscan/backend/internal/storage/models"
)

type fakeIntel struct {
	response string
	err      error
}

func (f *fakeIntel) Analyze(_ context.Context, _ string) (string, error) {
	return f.response, f.err
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(context.Context, string) ([]float64, error) {
	return []float64{0.1, 0.2}, nil
}

func (fakeEmbedder) Ready() bool { return true }

type offlineEmbedder struct{}

func (offlineEmbedder) Embed(context.Context, string) ([]float64, error) {
	return nil, errors.New("embedding provider not configured")
}

func (offlineEmbedder) Ready() bool { return false }

type noopIndex struct{}

func (noopIndex) Add(context.Context, string, []float64, bool) error { return nil }
func (noopIndex) MarkRejected(context.Context, string) error         { return nil }
func (noopIndex) MaxSimilarity(context.Context, []float64, string) (similarity.BestMatch, error) {
	return similarity.BestMatch{}, nil
}

type memStore struct {
	storage.Store

	records map[string]*models.AnalysisRecord
}

func newMemStore() *memStore {
	return &memStore{records: map[string]*models.AnalysisRecord{}}
}

func (m *memStore) Insert(_ context.Context, record *models.AnalysisRecord) error {
	m.records[record.ID] = record
	return nil
}

func (m *memStore) GetByID(_ context.Context, id string) (*models.AnalysisRecord, error) {
	record, ok := m.records[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return record, nil
}

func (m *memStore) GetByOrganization(_ context.Context, orgID string) ([]models.AnalysisRecord, error) {
	var out []models.AnalysisRecord
	for _, record := range m.records {
		if record.OrganizationID == orgID {
			out = append(out, *record)
		}
	}
	return out, nil
}

func (m *memStore) ListEmbeddings(context.Context, string) ([]models.EmbeddingRef, error) {
	return nil, nil
}

func (m *memStore) UpdateReview(ctx context.Context, id string, rev models.Review) (*models.AnalysisRecord, error) {
	record, ok := m.records[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	record.IsRejected = rev.IsRejected
	record.ReviewedAt = &rev.ReviewedAt
	record.ReviewedBy = rev.ReviewedBy
	record.ReviewNotes = rev.ReviewNotes
	return record, nil
}

func newTestApp(t *testing.T, store *memStore, intel *fakeIntel) *fiber.App {
	t.Helper()

	index := noopIndex{}
	engine := similarity.NewEngine(fakeEmbedder{}, index, nil, 2000)
	svc := pipeline.NewService(
		store,
		doctext.NewExtractor(),
		intel,
		engine,
		index,
		risk.NewDomainEvaluator(nil),
	)
	workflow := review.NewWorkflow(store, index, review.LoggingDeleter{})

	analysisHandler := NewAnalysisHandler(svc, workflow)
	reviewHandler := NewReviewHandler(workflow)

	app := fiber.New()
	api := app.Group("/api/v1")
	api.Post("/analyses", analysisHandler.AnalyzeDocument)
	api.Post("/analyses/rescan/:orgID", analysisHandler.Rescan)
	api.Get("/analyses/:id", analysisHandler.GetAnalysis)
	api.Get("/organizations/:orgID/analyses", analysisHandler.GetOrganizationAnalyses)
	api.Patch("/analyses/:id/approve", reviewHandler.ApproveAnalysis)
	api.Patch("/analyses/:id/reject", reviewHandler.RejectAnalysis)
	return app
}

func multipartBody(t *testing.T, fields map[string]string, fileContent string) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for key, value := range fields {
		require.NoError(t, writer.WriteField(key, value))
	}
	if fileContent != "" {
		part, err := writer.CreateFormFile("file", "certificate.txt")
		require.NoError(t, err)
		_, err = part.Write([]byte(fileContent))
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func TestAnalyzeDocumentEndpoint(t *testing.T) {
	store := newMemStore()
	intel := &fakeIntel{response: `{"organization_name": "Acme Relief Fund"}`}
	app := newTestApp(t, store, intel)

	body, contentType := multipartBody(t, map[string]string{
		"organization_id": "org-1",
		"email":           "contact@acme.org",
	}, "Certificate of Registration for Acme Relief Fund")

	req := httptest.NewRequest("POST", "/api/v1/analyses", body)
	req.Header.Set("Content-Type", contentType)

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var record models.AnalysisRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&record))
	assert.Equal(t, "org-1", record.OrganizationID)
	assert.Equal(t, "Acme Relief Fund", record.ExtractedFields.Name)
	assert.NotEmpty(t, record.ID)
	assert.Contains(t, store.records, record.ID)
}

func TestAnalyzeDocumentMissingOrgID(t *testing.T) {
	app := newTestApp(t, newMemStore(), &fakeIntel{response: "{}"})

	body, contentType := multipartBody(t, nil, "some text")
	req := httptest.NewRequest("POST", "/api/v1/analyses", body)
	req.Header.Set("Content-Type", contentType)

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestAnalyzeDocumentMissingFile(t *testing.T) {
	app := newTestApp(t, newMemStore(), &fakeIntel{response: "{}"})

	body, contentType := multipartBody(t, map[string]string{"organization_id": "org-1"}, "")
	req := httptest.NewRequest("POST", "/api/v1/analyses", body)
	req.Header.Set("Content-Type", contentType)

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestAnalyzeDocumentUnextractable(t *testing.T) {
	app := newTestApp(t, newMemStore(), &fakeIntel{response: "{}"})

	body, contentType := multipartBody(t, map[string]string{"organization_id": "org-1"}, "%PDF-1.7 binary")
	req := httptest.NewRequest("POST", "/api/v1/analyses", body)
	req.Header.Set("Content-Type", contentType)

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
}

func TestGetAnalysisNotFound(t *testing.T) {
	app := newTestApp(t, newMemStore(), &fakeIntel{})

	req := httptest.NewRequest("GET", "/api/v1/analyses/absent", nil)
	resp, err := app.Test(req, -1)

	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestApproveEndpoint(t *testing.T) {
	store := newMemStore()
	store.records["a1"] = &models.AnalysisRecord{ID: "a1", OrganizationID: "org-1", IsRejected: true}
	app := newTestApp(t, store, &fakeIntel{})

	req := httptest.NewRequest("PATCH", "/api/v1/analyses/a1/approve",
		strings.NewReader(`{"reviewer_id": "admin", "notes": "verified"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var record models.AnalysisRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&record))
	assert.False(t, record.IsRejected)
	assert.Equal(t, "admin", record.ReviewedBy)
}

func TestRejectEndpointRequiresReviewer(t *testing.T) {
	store := newMemStore()
	store.records["a1"] = &models.AnalysisRecord{ID: "a1", OrganizationID: "org-1"}
	app := newTestApp(t, store, &fakeIntel{})

	req := httptest.NewRequest("PATCH", "/api/v1/analyses/a1/reject",
		strings.NewReader(`{"notes": "no reviewer"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestReviewNotFoundEndpoint(t *testing.T) {
	app := newTestApp(t, newMemStore(), &fakeIntel{})

	req := httptest.NewRequest("PATCH", "/api/v1/analyses/absent/reject",
		strings.NewReader(`{"reviewer_id": "admin"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestAnalyzeDocumentSurvivesAIFailure(t *testing.T) {
	store := newMemStore()
	app := newTestApp(t, store, &fakeIntel{err: errors.New("provider down")})

	body, contentType := multipartBody(t, map[string]string{
		"organization_id": "org-1",
	}, "Certificate text")
	req := httptest.NewRequest("POST", "/api/v1/analyses", body)
	req.Header.Set("Content-Type", contentType)

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var record models.AnalysisRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&record))
	assert.Contains(t, record.Flags, "AI analysis service unavailable")
	assert.Equal(t, models.RiskMedium, record.FraudRiskLevel)
}

func TestRescanEndpoint(t *testing.T) {
	certServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("Certificate of Registration for Acme Relief Fund"))
	}))
	defer certServer.Close()

	store := newMemStore()
	intel := &fakeIntel{response: `{"organization_name": "Acme Relief Fund"}`}
	app := newTestApp(t, store, intel)

	req := httptest.NewRequest("POST", "/api/v1/analyses/rescan/org-9",
		strings.NewReader(`{"certificate_url": "`+certServer.URL+`", "email": "contact@acme.org"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var record models.AnalysisRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&record))
	assert.Equal(t, "org-9", record.OrganizationID)
	assert.Equal(t, "Acme Relief Fund", record.ExtractedFields.Name)
	assert.Len(t, store.records, 1)
}

func TestRescanRequiresCertificateURL(t *testing.T) {
	app := newTestApp(t, newMemStore(), &fakeIntel{response: "{}"})

	req := httptest.NewRequest("POST", "/api/v1/analyses/rescan/org-9",
		strings.NewReader(`{"email": "contact@acme.org"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestRescanDownloadFailure(t *testing.T) {
	certServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer certServer.Close()

	store := newMemStore()
	app := newTestApp(t, store, &fakeIntel{response: "{}"})

	req := httptest.NewRequest("POST", "/api/v1/analyses/rescan/org-9",
		strings.NewReader(`{"certificate_url": "`+certServer.URL+`"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadGateway, resp.StatusCode)
	assert.Empty(t, store.records)
}

type healthResponse struct {
	Status       string `json:"status"`
	Intelligence struct {
		Configured bool `json:"configured"`
		Healthy    bool `json:"healthy"`
	} `json:"intelligence"`
	Embedding struct {
		Ready bool `json:"ready"`
	} `json:"embedding"`
}

func newHealthApp(t *testing.T, embedder similarity.Embedder) *fiber.App {
	t.Helper()

	engine := similarity.NewEngine(embedder, noopIndex{}, nil, 2000)
	handler := NewHealthHandler(intelligence.NewClient("", "gpt-4o-mini", 0, 256, 5), engine)

	app := fiber.New()
	app.Get("/health", handler.Health)
	return app
}

func TestHealthDegradedWhenEmbeddingNotReady(t *testing.T) {
	app := newHealthApp(t, offlineEmbedder{})

	resp, err := app.Test(httptest.NewRequest("GET", "/health", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var health healthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "DEGRADED", health.Status)
	assert.False(t, health.Embedding.Ready)
	assert.False(t, health.Intelligence.Configured)
	assert.False(t, health.Intelligence.Healthy)
}

func TestHealthDegradedWithoutIntelligence(t *testing.T) {
	app := newHealthApp(t, fakeEmbedder{})

	resp, err := app.Test(httptest.NewRequest("GET", "/health", nil), -1)
	require.NoError(t, err)

	var health healthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "DEGRADED", health.Status)
	assert.True(t, health.Embedding.Ready)
	assert.False(t, health.Intelligence.Configured)
}