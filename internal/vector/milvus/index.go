package milvus

import (
	"context"
	"fmt"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/orgscan/backend/internal/similarity"
	"github.com/orgscan/backend/pkg/logger"
)

// Index is the ANN-backed similarity.Index for corpora that outgrow
// the brute-force store scan. Vectors are stored as float32; the
// COSINE metric keeps scores comparable with the store index after
// the same [-1,1] -> [0,1] renormalization.
type Index struct {
	client         client.Client
	collectionName string
	vectorDim      int
}

func NewIndex(endpoint, collectionName string, vectorDim int) (*Index, error) {
	c, err := client.NewGrpcClient(context.Background(), endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	logger.Info("Milvus similarity index initialized",
		zap.String("endpoint", endpoint),
		zap.String("collection", collectionName),
	)

	return &Index{
		client:         c,
		collectionName: collectionName,
		vectorDim:      vectorDim,
	}, nil
}

func (m *Index) Close() error {
	return m.client.Close()
}

func (m *Index) EnsureCollection(ctx context.Context) error {
	has, err := m.client.HasCollection(ctx, m.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if has {
		return nil
	}

	schema := &entity.Schema{
		CollectionName: m.collectionName,
		Description:    "Organization submission embeddings",
		Fields: []*entity.Field{
			{
				Name:       "analysis_id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				TypeParams: map[string]string{"max_length": "64"},
			},
			{
				Name:     "embedding",
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": fmt.Sprintf("%d", m.vectorDim),
				},
			},
			{
				Name:     "is_rejected",
				DataType: entity.FieldTypeBool,
			},
		},
	}

	if err := m.client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx, err := entity.NewIndexIvfFlat(entity.COSINE, 1024)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	if err := m.client.CreateIndex(ctx, m.collectionName, "embedding", idx, false); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	if err := m.client.LoadCollection(ctx, m.collectionName, false); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	logger.Info("Collection created and loaded", zap.String("collection", m.collectionName))
	return nil
}

func (m *Index) Add(ctx context.Context, id string, embedding []float64, rejected bool) error {
	if len(embedding) == 0 {
		return nil
	}

	_, err := m.client.Insert(
		ctx,
		m.collectionName,
		"",
		entity.NewColumnVarChar("analysis_id", []string{id}),
		entity.NewColumnFloatVector("embedding", m.vectorDim, [][]float32{toFloat32(embedding)}),
		entity.NewColumnBool("is_rejected", []bool{rejected}),
	)
	if err != nil {
		return fmt.Errorf("failed to insert embedding: %w", err)
	}

	if err := m.client.Flush(ctx, m.collectionName, false); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	logger.Debug("Embedding indexed", zap.String("analysis_id", id))
	return nil
}

// MarkRejected rewrites the entity with is_rejected set. Milvus has
// no scalar update, so the vector is read back, deleted, reinserted.
func (m *Index) MarkRejected(ctx context.Context, id string) error {
	expr := fmt.Sprintf(`analysis_id == "%s"`, id)

	rs, err := m.client.Query(ctx, m.collectionName, nil, expr, []string{"analysis_id", "embedding"})
	if err != nil {
		return fmt.Errorf("failed to query embedding: %w", err)
	}

	var embedding []float32
	for _, col := range rs {
		if vec, ok := col.(*entity.ColumnFloatVector); ok && vec.Len() > 0 {
			embedding = vec.Data()[0]
		}
	}
	if embedding == nil {
		// Record was analyzed without an embedding; nothing to flip.
		return nil
	}

	if err := m.client.Delete(ctx, m.collectionName, "", expr); err != nil {
		return fmt.Errorf("failed to delete embedding: %w", err)
	}

	_, err = m.client.Insert(
		ctx,
		m.collectionName,
		"",
		entity.NewColumnVarChar("analysis_id", []string{id}),
		entity.NewColumnFloatVector("embedding", m.vectorDim, [][]float32{embedding}),
		entity.NewColumnBool("is_rejected", []bool{true}),
	)
	if err != nil {
		return fmt.Errorf("failed to reinsert embedding: %w", err)
	}

	return nil
}

func (m *Index) MaxSimilarity(ctx context.Context, embedding []float64, excludeID string) (similarity.BestMatch, error) {
	expr := ""
	if excludeID != "" {
		expr = fmt.Sprintf(`analysis_id != "%s"`, excludeID)
	}

	sp, _ := entity.NewIndexIvfFlatSearchParam(16)

	results, err := m.client.Search(
		ctx,
		m.collectionName,
		[]string{},
		expr,
		[]string{"analysis_id", "is_rejected"},
		[]entity.Vector{entity.FloatVector(toFloat32(embedding))},
		"embedding",
		entity.COSINE,
		1,
		sp,
	)
	if err != nil {
		return similarity.BestMatch{}, fmt.Errorf("failed to search: %w", err)
	}

	var best similarity.BestMatch
	for _, sr := range results {
		if sr.ResultCount == 0 {
			continue
		}

		idCol := sr.Fields.GetColumn("analysis_id")
		rejectedCol := sr.Fields.GetColumn("is_rejected")

		idVal, _ := idCol.Get(0)
		rejectedVal, _ := rejectedCol.Get(0)

		score := renormalize(float64(sr.Scores[0]))
		if score > best.Score {
			best = similarity.BestMatch{
				ID:       idVal.(string),
				Score:    score,
				Rejected: rejectedVal.(bool),
			}
		}
	}

	logger.Debug("ANN search completed",
		zap.Float64("max_similarity", best.Score),
		zap.String("match_id", best.ID),
	)

	return best, nil
}

// renormalize maps a raw cosine in [-1,1] onto the engine's [0,1]
// scale so both index implementations tier identically.
func renormalize(cos float64) float64 {
	s := (cos + 1) / 2
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}
