package knowledge

import (
	"context"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// QdrantConfig holds connection settings for a Qdrant instance.
type QdrantConfig struct {
	Host       string `json:"host"`
	Port       int    `json:"port"`
	Collection string `json:"collection"`
}

// Qdrant is a Lookup over a pre-indexed brand-knowledge collection.
// Snippets are matched by full-text payload filter; embedding the query
// is the ingestion pipeline's concern, not ours.
type Qdrant struct {
	conn       *grpc.ClientConn
	points     pb.PointsClient
	collection string
	logger     *zap.Logger
}

// NewQdrant dials the Qdrant gRPC endpoint and returns a ready Lookup.
func NewQdrant(cfg QdrantConfig, logger *zap.Logger) (*Qdrant, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect %s: %w", addr, err)
	}
	collection := cfg.Collection
	if collection == "" {
		collection = "brand_knowledge"
	}
	return &Qdrant{
		conn:       conn,
		points:     pb.NewPointsClient(conn),
		collection: collection,
		logger:     logger,
	}, nil
}

// Query scrolls the collection with a full-text match on the content
// payload field and returns up to topK snippets.
func (q *Qdrant) Query(ctx context.Context, text string, topK int) ([]Snippet, error) {
	if topK <= 0 {
		topK = 3
	}
	limit := uint32(topK)
	resp, err := q.points.Scroll(ctx, &pb.ScrollPoints{
		CollectionName: q.collection,
		Filter: &pb.Filter{
			Must: []*pb.Condition{{
				ConditionOneOf: &pb.Condition_Field{
					Field: &pb.FieldCondition{
						Key:   "content",
						Match: &pb.Match{MatchValue: &pb.Match_Text{Text: text}},
					},
				},
			}},
		},
		Limit: &limit,
		WithPayload: &pb.WithPayloadSelector{
			SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("scroll %s: %w", q.collection, err)
	}

	snippets := make([]Snippet, 0, len(resp.Result))
	for _, r := range resp.Result {
		content := ""
		source := q.collection
		if v, ok := r.Payload["content"]; ok {
			if sv, ok := v.Kind.(*pb.Value_StringValue); ok {
				content = sv.StringValue
			}
		}
		if v, ok := r.Payload["source"]; ok {
			if sv, ok := v.Kind.(*pb.Value_StringValue); ok {
				source = sv.StringValue
			}
		}
		if content == "" {
			continue
		}
		snippets = append(snippets, Snippet{Content: content, Source: source, Score: 1})
	}
	return snippets, nil
}

// Close tears down the underlying gRPC connection.
func (q *Qdrant) Close() error {
	return q.conn.Close()
}
