// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package index

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	milvusindex "github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"

	"github.com/pdiddy/evidence-engine/internal/errs"
	"github.com/pdiddy/evidence-engine/internal/model"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

// Milvus collection fields.
const (
	fieldID             = "id"
	fieldVector         = "vector"
	fieldTitle          = "title"
	fieldAbstract       = "abstract"
	fieldYear           = "year"
	fieldJournal        = "journal"
	fieldModel          = "embedding_model"
	fieldCitationCount  = "citation_count"
	fieldReferenceCount = "reference_count"
)

var outputFields = []string{
	fieldID, fieldTitle, fieldAbstract, fieldYear, fieldJournal,
	fieldModel, fieldCitationCount, fieldReferenceCount,
}

// MilvusIndex is a HybridIndex over a Milvus collection. Milvus answers
// the dense half with pre-filters pushed down as a boolean expression;
// BM25 is computed over the returned candidates and fused in process.
type MilvusIndex struct {
	client     *milvusclient.Client
	collection string
	embedder   model.EmbeddingModel
}

// NewMilvusIndex connects to the Milvus server in cfg.
func NewMilvusIndex(ctx context.Context, cfg types.IndexConfig, m model.EmbeddingModel) (*MilvusIndex, error) {
	const op = "index.milvus.connect"
	if cfg.MilvusAddress == "" {
		return nil, errs.Ef(errs.Internal, op, "milvus address is required")
	}
	db := cfg.MilvusDatabase
	if db == "" {
		db = "default"
	}
	client, err := milvusclient.New(ctx, &milvusclient.ClientConfig{
		Address: cfg.MilvusAddress,
		DBName:  db,
		APIKey:  cfg.MilvusToken,
	})
	if err != nil {
		return nil, errs.E(errs.ExternalService, op, fmt.Errorf("connecting to milvus at %s: %w", cfg.MilvusAddress, err))
	}
	coll := cfg.Collection
	if coll == "" {
		coll = "documents"
	}
	return &MilvusIndex{client: client, collection: coll, embedder: m}, nil
}

// Close releases the client connection.
func (x *MilvusIndex) Close(ctx context.Context) error {
	return x.client.Close(ctx)
}

// EnsureCollection creates and loads the collection when it is missing.
func (x *MilvusIndex) EnsureCollection(ctx context.Context, dim int) error {
	const op = "index.milvus.ensure"
	has, err := x.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(x.collection))
	if err != nil {
		return errs.E(errs.ExternalService, op, err)
	}
	if !has {
		schema := entity.NewSchema().WithName(x.collection).
			WithField(entity.NewField().WithName(fieldID).WithDataType(entity.FieldTypeVarChar).WithIsPrimaryKey(true).WithMaxLength(64)).
			WithField(entity.NewField().WithName(fieldVector).WithDataType(entity.FieldTypeFloatVector).WithDim(int64(dim))).
			WithField(entity.NewField().WithName(fieldTitle).WithDataType(entity.FieldTypeVarChar).WithMaxLength(2048)).
			WithField(entity.NewField().WithName(fieldAbstract).WithDataType(entity.FieldTypeVarChar).WithMaxLength(65535)).
			WithField(entity.NewField().WithName(fieldYear).WithDataType(entity.FieldTypeInt64)).
			WithField(entity.NewField().WithName(fieldJournal).WithDataType(entity.FieldTypeVarChar).WithMaxLength(512)).
			WithField(entity.NewField().WithName(fieldModel).WithDataType(entity.FieldTypeVarChar).WithMaxLength(256)).
			WithField(entity.NewField().WithName(fieldCitationCount).WithDataType(entity.FieldTypeInt64)).
			WithField(entity.NewField().WithName(fieldReferenceCount).WithDataType(entity.FieldTypeInt64))
		err := x.client.CreateCollection(ctx, milvusclient.NewCreateCollectionOption(x.collection, schema).WithIndexOptions(
			milvusclient.NewCreateIndexOption(x.collection, fieldVector, milvusindex.NewHNSWIndex(entity.COSINE, 16, 64))))
		if err != nil {
			return errs.E(errs.ExternalService, op, fmt.Errorf("creating collection %s: %w", x.collection, err))
		}
	}
	task, err := x.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(x.collection))
	if err != nil {
		return errs.E(errs.ExternalService, op, fmt.Errorf("loading collection %s: %w", x.collection, err))
	}
	return task.Await(ctx)
}

// Add embeds docs and inserts them, creating the collection on first use.
// Ids are not deduplicated; load a corpus once per collection.
func (x *MilvusIndex) Add(ctx context.Context, docs ...types.CandidateDocument) error {
	const op = "index.milvus.insert"
	if len(docs) == 0 {
		return nil
	}
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = documentText(d)
	}
	vecs, err := model.EmbedAll(ctx, x.embedder, texts)
	if err != nil {
		return fmt.Errorf("embedding documents: %w", err)
	}
	dim := len(vecs[0])
	if err := x.EnsureCollection(ctx, dim); err != nil {
		return err
	}

	n := len(docs)
	ids := make([]string, n)
	titles := make([]string, n)
	abstracts := make([]string, n)
	journals := make([]string, n)
	models := make([]string, n)
	years := make([]int64, n)
	cites := make([]int64, n)
	refs := make([]int64, n)
	vectors := make([][]float32, n)
	for i, d := range docs {
		ids[i], titles[i], abstracts[i], journals[i] = d.ID, d.Title, d.Abstract, d.Journal
		models[i] = x.embedder.Identifier()
		years[i], cites[i], refs[i] = int64(d.Year), int64(d.CitationCount), int64(d.ReferenceCount)
		vectors[i] = toFloat32(vecs[i])
	}
	_, err = x.client.Insert(ctx, milvusclient.NewColumnBasedInsertOption(x.collection,
		column.NewColumnVarChar(fieldID, ids),
		column.NewColumnFloatVector(fieldVector, dim, vectors),
		column.NewColumnVarChar(fieldTitle, titles),
		column.NewColumnVarChar(fieldAbstract, abstracts),
		column.NewColumnInt64(fieldYear, years),
		column.NewColumnVarChar(fieldJournal, journals),
		column.NewColumnVarChar(fieldModel, models),
		column.NewColumnInt64(fieldCitationCount, cites),
		column.NewColumnInt64(fieldReferenceCount, refs),
	))
	if err != nil {
		return errs.E(errs.ExternalService, op, err)
	}
	return nil
}

// HybridSearch runs the filtered ANN search, then fuses BM25 over the
// returned candidates.
func (x *MilvusIndex) HybridSearch(ctx context.Context, q HybridQuery) ([]types.Hit, error) {
	const op = "index.milvus.search"
	qvec, err := x.embedder.Embed(ctx, q.Text)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	want := q.EmbeddingModel
	if want == "" {
		want = x.embedder.Identifier()
	}

	topK := max(q.Limit+q.Offset, 1) * vectorCandidates
	opt := milvusclient.NewSearchOption(x.collection, topK, []entity.Vector{entity.FloatVector(toFloat32(qvec))}).
		WithANNSField(fieldVector).
		WithOutputFields(outputFields...).
		WithConsistencyLevel(entity.ClBounded).
		WithFilter(filterExpr(q.Filter, want))
	results, err := x.client.Search(ctx, opt)
	if err != nil {
		return nil, errs.E(errs.ExternalService, op, err)
	}
	if len(results) == 0 {
		return nil, nil
	}
	docs, err := documentsFromColumns(results[0].Fields)
	if err != nil {
		return nil, errs.E(errs.ExternalService, op, err)
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = documentText(d)
	}
	lex := newBM25(texts).scores(q.Text)
	cands := make([]candidate, len(docs))
	for i, d := range docs {
		cands[i] = candidate{doc: d, lex: lex[i], hasVec: true}
		if i < len(results[0].Scores) {
			cands[i].vec = float64(results[0].Scores[i])
		}
	}
	return page(fuse(cands, q.Alpha), q.Offset, q.Limit), nil
}

// Get fetches one document by primary key.
func (x *MilvusIndex) Get(ctx context.Context, id string) (types.CandidateDocument, error) {
	const op = "index.milvus.get"
	rs, err := x.client.Query(ctx, milvusclient.NewQueryOption(x.collection).
		WithFilter(fieldID+" == "+strconv.Quote(id)).
		WithOutputFields(outputFields...).
		WithConsistencyLevel(entity.ClBounded))
	if err != nil {
		return types.CandidateDocument{}, errs.E(errs.ExternalService, op, err)
	}
	docs, err := documentsFromColumns(rs.Fields)
	if err != nil {
		return types.CandidateDocument{}, errs.E(errs.ExternalService, op, err)
	}
	if len(docs) == 0 {
		return types.CandidateDocument{}, ErrNotFound
	}
	return docs[0], nil
}

// filterExpr renders the pre-filters as a Milvus boolean expression.
// Documents with an unknown year (0) pass the date bounds, as in memory.
func filterExpr(f types.DocumentFilter, embeddingModel string) string {
	var parts []string
	if embeddingModel != "" {
		parts = append(parts, fieldModel+" == "+strconv.Quote(embeddingModel))
	}
	if f.PublishedAfter != nil {
		parts = append(parts, fmt.Sprintf("(%s == 0 || %s >= %d)", fieldYear, fieldYear, *f.PublishedAfter))
	}
	if f.PublishedBefore != nil {
		parts = append(parts, fmt.Sprintf("(%s == 0 || %s <= %d)", fieldYear, fieldYear, *f.PublishedBefore))
	}
	return strings.Join(parts, " && ")
}

// documentsFromColumns converts column-oriented results into documents.
func documentsFromColumns(cols []column.Column) ([]types.CandidateDocument, error) {
	if len(cols) == 0 {
		return nil, nil
	}
	n := cols[0].Len()
	docs := make([]types.CandidateDocument, n)
	for i := range docs {
		docs[i].Source = "index"
	}
	for _, col := range cols {
		for i := 0; i < col.Len() && i < n; i++ {
			val, err := col.Get(i)
			if err != nil {
				return nil, fmt.Errorf("reading %s: %w", col.Name(), err)
			}
			d := &docs[i]
			switch col.Name() {
			case fieldID:
				d.ID, _ = val.(string)
			case fieldTitle:
				d.Title, _ = val.(string)
			case fieldAbstract:
				d.Abstract, _ = val.(string)
			case fieldJournal:
				d.Journal, _ = val.(string)
			case fieldModel:
				d.EmbeddingModel, _ = val.(string)
			case fieldYear:
				d.Year = int(asInt64(val))
			case fieldCitationCount:
				d.CitationCount = int(asInt64(val))
			case fieldReferenceCount:
				d.ReferenceCount = int(asInt64(val))
			}
		}
	}
	return docs, nil
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int:
		return int64(n)
	}
	return 0
}
