package vectorstore

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/harikrshm/RAG-LLM-based-FAQ-Assistant-v2-sub000/internal/embedder"
	"github.com/harikrshm/RAG-LLM-based-FAQ-Assistant-v2-sub000/internal/knowledge"
)

// DefaultCollection is the collection the FAQ passages live in.
const DefaultCollection = "mutual_funds_faq"

// qdrantAPI is the part of *qdrant.Client the index uses.
type qdrantAPI interface {
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	Count(ctx context.Context, request *qdrant.CountPoints) (uint64, error)
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Close() error
}

var _ qdrantAPI = (*qdrant.Client)(nil)

// QdrantIndex implements Index using a Qdrant collection. Queries are
// embedded with the configured Embedder.
type QdrantIndex struct {
	client     qdrantAPI
	collection string
	embedder   embedder.Embedder
	logger     *slog.Logger
}

// QdrantOption configures a QdrantIndex.
type QdrantOption func(*QdrantIndex)

// WithCollection sets the collection name.
func WithCollection(name string) QdrantOption {
	return func(s *QdrantIndex) {
		if name != "" {
			s.collection = name
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) QdrantOption {
	return func(s *QdrantIndex) {
		s.logger = logger
	}
}

// NewQdrantIndex creates a new Qdrant index client.
// url should be in format "host:port" (e.g., "localhost:6334").
func NewQdrantIndex(url string, embed embedder.Embedder, opts ...QdrantOption) (*QdrantIndex, error) {
	host, portStr, err := net.SplitHostPort(url)
	if err != nil {
		host = url
		portStr = "6334"
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid port in qdrant url: %w", knowledge.ErrConfiguration, err)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	s := &QdrantIndex{
		client:     client,
		collection: DefaultCollection,
		embedder:   embed,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the Qdrant client connection.
func (s *QdrantIndex) Close() error {
	return s.client.Close()
}

// Ready checks that the collection exists and holds at least one point.
func (s *QdrantIndex) Ready(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("%w: checking collection: %w", knowledge.ErrIndexUnavailable, err)
	}
	if !exists {
		return fmt.Errorf("%w: collection %q does not exist", knowledge.ErrIndexUnavailable, s.collection)
	}

	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Exact:          qdrant.PtrOf(false),
	})
	if err != nil {
		return fmt.Errorf("%w: counting points: %w", knowledge.ErrIndexUnavailable, err)
	}
	if count == 0 {
		return fmt.Errorf("%w: collection %q is empty", knowledge.ErrIndexUnavailable, s.collection)
	}
	return nil
}

// Search performs similarity search. An empty result from a collection that
// is missing or holds no points fails with knowledge.ErrIndexUnavailable.
func (s *QdrantIndex) Search(ctx context.Context, query string, topK int, minScore float64, filters map[string]string) ([]knowledge.Candidate, error) {
	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, embeddingError(err)
	}

	response, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Filter:         buildFilter(filters),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
		ScoreThreshold: qdrant.PtrOf(float32(minScore)),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: search: %w", knowledge.ErrIndexUnavailable, err)
	}

	if len(response) == 0 {
		// no hits from a missing or unpopulated collection is an outage,
		// not an unanswerable question
		if err := s.Ready(ctx); err != nil {
			return nil, err
		}
	}

	candidates := make([]knowledge.Candidate, 0, len(response))
	for _, point := range response {
		id := pointID(point.GetId())
		c, ok := candidateFromFields(id, float64(point.GetScore()), payloadStrings(point.GetPayload()))
		if !ok {
			s.logger.Warn("dropping malformed point", "point_id", id, "collection", s.collection)
			continue
		}
		candidates = append(candidates, c)
	}

	return candidates, nil
}

// EnsureCollection creates the collection with cosine distance if it does not exist.
func (s *QdrantIndex) EnsureCollection(ctx context.Context, dimension int) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	return nil
}

// Add embeds passages that carry no vector and upserts them.
func (s *QdrantIndex) Add(ctx context.Context, passages []Passage) error {
	if len(passages) == 0 {
		return nil
	}

	var missing []string
	for _, p := range passages {
		if p.Vector == nil {
			missing = append(missing, p.Text)
		}
	}
	var vectors [][]float32
	if len(missing) > 0 {
		var err error
		vectors, err = s.embedder.EmbedBatch(ctx, missing)
		if err != nil {
			return embeddingError(err)
		}
	}

	if err := s.EnsureCollection(ctx, s.embedder.Dimension()); err != nil {
		return err
	}

	points := make([]*qdrant.PointStruct, len(passages))
	next := 0
	for i, p := range passages {
		vector := p.Vector
		if vector == nil {
			vector = vectors[next]
			next++
		}

		fields := passageFields(p)
		fields[keyContent] = p.Text
		payload := make(map[string]*qdrant.Value, len(fields))
		for k, v := range fields {
			payload[k] = qdrant.NewValueString(v)
		}

		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(PointUUID(passageID(p))),
			Vectors: qdrant.NewVectors(vector...),
			Payload: payload,
		}
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert points: %w", err)
	}
	return nil
}

// PointUUID maps an arbitrary passage id to a stable point UUID.
func PointUUID(id string) string {
	if _, err := uuid.Parse(id); err == nil {
		return id
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(id)).String()
}

func buildFilter(filters map[string]string) *qdrant.Filter {
	if len(filters) == 0 {
		return nil
	}
	keys := sortedKeys(filters)
	must := make([]*qdrant.Condition, 0, len(keys))
	for _, k := range keys {
		must = append(must, qdrant.NewMatch(k, filters[k]))
	}
	return &qdrant.Filter{Must: must}
}

func payloadStrings(payload map[string]*qdrant.Value) map[string]string {
	out := make(map[string]string, len(payload))
	for k, v := range payload {
		if s := v.GetStringValue(); s != "" {
			out[k] = s
		}
	}
	return out
}

func pointID(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if u := id.GetUuid(); u != "" {
		return u
	}
	return strconv.FormatUint(id.GetNum(), 10)
}

var (
	_ Index  = (*QdrantIndex)(nil)
	_ Loader = (*QdrantIndex)(nil)
)
