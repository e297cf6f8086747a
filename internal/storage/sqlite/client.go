package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/orgscan/backend/internal/storage"
	"github.com/orgscan/backend/internal/storage/models"
	"github.com/orgscan/backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS fraud_analyses (
		id TEXT PRIMARY KEY,
		organization_id TEXT NOT NULL,
		extracted_fields TEXT NOT NULL,
		ai_raw_response TEXT NOT NULL,
		document_inconsistency_score REAL NOT NULL,
		similarity_score REAL NOT NULL,
		similarity_risk TEXT NOT NULL,
		domain_risk_score REAL NOT NULL,
		fraud_risk_score REAL NOT NULL,
		fraud_risk_level TEXT NOT NULL,
		flags TEXT NOT NULL,
		embedding TEXT NOT NULL,
		email_domain TEXT,
		website_domain TEXT,
		is_rejected INTEGER NOT NULL DEFAULT 0,
		reviewed_at INTEGER,
		reviewed_by TEXT,
		review_notes TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_analyses_org ON fraud_analyses(organization_id);
	CREATE INDEX IF NOT EXISTS idx_analyses_level ON fraud_analyses(fraud_risk_level);
	CREATE INDEX IF NOT EXISTS idx_analyses_created ON fraud_analyses(created_at);
	`

	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

const recordColumns = `id, organization_id, extracted_fields, ai_raw_response,
	document_inconsistency_score, similarity_score, similarity_risk,
	domain_risk_score, fraud_risk_score, fraud_risk_level, flags, embedding,
	email_domain, website_domain, is_rejected, reviewed_at, reviewed_by,
	review_notes, created_at`

func (c *Client) Insert(ctx context.Context, record *models.AnalysisRecord) error {
	fieldsJSON, err := json.Marshal(record.ExtractedFields)
	if err != nil {
		return fmt.Errorf("failed to marshal extracted fields: %w", err)
	}
	flagsJSON, err := json.Marshal(record.Flags)
	if err != nil {
		return fmt.Errorf("failed to marshal flags: %w", err)
	}
	embeddingJSON, err := json.Marshal(record.Embedding)
	if err != nil {
		return fmt.Errorf("failed to marshal embedding: %w", err)
	}

	query := `
		INSERT INTO fraud_analyses (` + recordColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var reviewedAt *int64
	if record.ReviewedAt != nil {
		ts := record.ReviewedAt.Unix()
		reviewedAt = &ts
	}

	_, err = c.db.ExecContext(
		ctx,
		query,
		record.ID,
		record.OrganizationID,
		string(fieldsJSON),
		record.AIRawResponse,
		record.DocumentInconsistencyScore,
		record.SimilarityScore,
		string(record.SimilarityRisk),
		record.DomainRiskScore,
		record.FraudRiskScore,
		string(record.FraudRiskLevel),
		string(flagsJSON),
		string(embeddingJSON),
		record.EmailDomain,
		record.WebsiteDomain,
		boolToInt(record.IsRejected),
		reviewedAt,
		record.ReviewedBy,
		record.ReviewNotes,
		record.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert analysis record: %w", err)
	}

	logger.Debug("Analysis record inserted",
		zap.String("id", record.ID),
		zap.String("organization_id", record.OrganizationID),
	)
	return nil
}

func (c *Client) GetByID(ctx context.Context, id string) (*models.AnalysisRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM fraud_analyses WHERE id = ?`

	record, err := scanRecord(c.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis record: %w", err)
	}

	return record, nil
}

func (c *Client) GetByOrganization(ctx context.Context, orgID string) ([]models.AnalysisRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM fraud_analyses WHERE organization_id = ? ORDER BY created_at DESC`

	rows, err := c.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list organization analyses: %w", err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

func (c *Client) ListEmbeddings(ctx context.Context, excludeID string) ([]models.EmbeddingRef, error) {
	query := `SELECT id, embedding, is_rejected FROM fraud_analyses WHERE embedding != '[]' AND embedding != 'null' AND id != ?`

	rows, err := c.db.QueryContext(ctx, query, excludeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list embeddings: %w", err)
	}
	defer rows.Close()

	var refs []models.EmbeddingRef
	for rows.Next() {
		var ref models.EmbeddingRef
		var embeddingJSON string
		var rejected int

		if err := rows.Scan(&ref.ID, &embeddingJSON, &rejected); err != nil {
			return nil, fmt.Errorf("failed to scan embedding row: %w", err)
		}

		if err := json.Unmarshal([]byte(embeddingJSON), &ref.Embedding); err != nil {
			logger.Warn("Skipping record with malformed embedding", zap.String("id", ref.ID), zap.Error(err))
			continue
		}
		if len(ref.Embedding) == 0 {
			continue
		}

		ref.IsRejected = rejected != 0
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate embedding rows: %w", err)
	}

	return refs, nil
}

func (c *Client) ListPendingReview(ctx context.Context, level models.RiskLevel) ([]models.AnalysisRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM fraud_analyses WHERE reviewed_at IS NULL`
	args := []interface{}{}

	if level != "" {
		query += ` AND fraud_risk_level = ?`
		args = append(args, string(level))
	}
	query += ` ORDER BY fraud_risk_score DESC, created_at DESC`

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending reviews: %w", err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

func (c *Client) UpdateReview(ctx context.Context, id string, review models.Review) (*models.AnalysisRecord, error) {
	query := `
		UPDATE fraud_analyses
		SET is_rejected = ?, reviewed_at = ?, reviewed_by = ?, review_notes = ?
		WHERE id = ?
	`

	result, err := c.db.ExecContext(
		ctx,
		query,
		boolToInt(review.IsRejected),
		review.ReviewedAt.Unix(),
		review.ReviewedBy,
		review.ReviewNotes,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update review: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check review update: %w", err)
	}
	if affected == 0 {
		return nil, storage.ErrNotFound
	}

	return c.GetByID(ctx, id)
}

func (c *Client) Stats(ctx context.Context) (*models.Stats, error) {
	query := `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN fraud_risk_level = 'HIGH' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN fraud_risk_level = 'MEDIUM' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN fraud_risk_level = 'LOW' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN reviewed_at IS NULL THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN is_rejected = 1 THEN 1 ELSE 0 END), 0)
		FROM fraud_analyses
	`

	var stats models.Stats
	err := c.db.QueryRowContext(ctx, query).Scan(
		&stats.Total,
		&stats.HighRisk,
		&stats.MediumRisk,
		&stats.LowRisk,
		&stats.PendingReview,
		&stats.Rejected,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to collect stats: %w", err)
	}

	return &stats, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*models.AnalysisRecord, error) {
	var record models.AnalysisRecord
	var fieldsJSON, flagsJSON, embeddingJSON string
	var emailDomain, websiteDomain, reviewedBy, reviewNotes sql.NullString
	var rejected int
	var reviewedAt sql.NullInt64
	var createdAt int64

	err := row.Scan(
		&record.ID,
		&record.OrganizationID,
		&fieldsJSON,
		&record.AIRawResponse,
		&record.DocumentInconsistencyScore,
		&record.SimilarityScore,
		(*string)(&record.SimilarityRisk),
		&record.DomainRiskScore,
		&record.FraudRiskScore,
		(*string)(&record.FraudRiskLevel),
		&flagsJSON,
		&embeddingJSON,
		&emailDomain,
		&websiteDomain,
		&rejected,
		&reviewedAt,
		&reviewedBy,
		&reviewNotes,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(fieldsJSON), &record.ExtractedFields); err != nil {
		return nil, fmt.Errorf("failed to unmarshal extracted fields: %w", err)
	}
	if err := json.Unmarshal([]byte(flagsJSON), &record.Flags); err != nil {
		return nil, fmt.Errorf("failed to unmarshal flags: %w", err)
	}
	if err := json.Unmarshal([]byte(embeddingJSON), &record.Embedding); err != nil {
		return nil, fmt.Errorf("failed to unmarshal embedding: %w", err)
	}

	record.EmailDomain = emailDomain.String
	record.WebsiteDomain = websiteDomain.String
	record.ReviewedBy = reviewedBy.String
	record.ReviewNotes = reviewNotes.String
	record.IsRejected = rejected != 0
	if reviewedAt.Valid {
		ts := time.Unix(reviewedAt.Int64, 0)
		record.ReviewedAt = &ts
	}
	record.CreatedAt = time.Unix(createdAt, 0)

	return &record, nil
}

func collectRecords(rows *sql.Rows) ([]models.AnalysisRecord, error) {
	var records []models.AnalysisRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan analysis row: %w", err)
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate analysis rows: %w", err)
	}
	return records, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
