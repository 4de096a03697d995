// Package qdrant implements vector.Backend on a Qdrant server over gRPC.
package qdrant

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/efebarandurmaz/gloombot/internal/vector"
)

const (
	payloadDocument = "document"
	payloadChunkID  = "chunk_id"
)

// pointNamespace scopes the name-based UUIDs derived from chunk ids.
var pointNamespace = uuid.MustParse("6f1c8f1e-2b8a-4c55-9d8e-6a7b1f0c9e21")

// Config locates a Qdrant server.
type Config struct {
	Host      string
	Port      int
	APIKey    string
	UseTLS    bool
	Dimension int // vector size for collections created by this backend
}

// Backend implements vector.Backend using Qdrant.
type Backend struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	dimension   int
}

// New connects to Qdrant. The connection is lazy; errors surface on first use.
func New(cfg Config) (*Backend, error) {
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("qdrant: dimension must be positive, got %d", cfg.Dimension)
	}

	creds := insecure.NewCredentials()
	if cfg.UseTLS {
		creds = credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	opts := []grpc.DialOption{grpc.WithTransportCredentials(creds)}
	if cfg.APIKey != "" {
		opts = append(opts, grpc.WithUnaryInterceptor(apiKeyInterceptor(cfg.APIKey)))
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("qdrant connect: %w", err)
	}
	b := newBackend(pb.NewPointsClient(conn), pb.NewCollectionsClient(conn), cfg.Dimension)
	b.conn = conn
	return b, nil
}

func newBackend(points pb.PointsClient, collections pb.CollectionsClient, dimension int) *Backend {
	return &Backend{points: points, collections: collections, dimension: dimension}
}

func apiKeyInterceptor(key string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = metadata.AppendToOutgoingContext(ctx, "api-key", key)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

func (b *Backend) Open(ctx context.Context, name string, create bool) (vector.Index, error) {
	resp, err := b.collections.CollectionExists(ctx, &pb.CollectionExistsRequest{CollectionName: name})
	if err != nil {
		return nil, fmt.Errorf("qdrant collection exists: %w", err)
	}
	if resp.GetResult().GetExists() {
		return &Index{points: b.points, collection: name, dimension: b.dimension}, nil
	}
	if !create {
		return nil, vector.ErrCollectionNotFound
	}

	_, err = b.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: name,
		VectorsConfig: pb.NewVectorsConfig(&pb.VectorParams{
			Size:     uint64(b.dimension),
			Distance: pb.Distance_Cosine,
		}),
	})
	if err != nil && status.Code(err) != codes.AlreadyExists {
		return nil, fmt.Errorf("qdrant create collection: %w", err)
	}
	return &Index{points: b.points, collection: name, dimension: b.dimension}, nil
}

func (b *Backend) Close() error {
	if b.conn == nil {
		return nil
	}
	return b.conn.Close()
}

// Index is one Qdrant collection.
type Index struct {
	points     pb.PointsClient
	collection string
	dimension  int
}

func (r *Index) Upsert(ctx context.Context, records []vector.Record) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]*pb.PointStruct, len(records))
	for i, rec := range records {
		if len(rec.Embedding) != r.dimension {
			return fmt.Errorf("%w: record %s has %d, collection has %d", vector.ErrDimensionMismatch, rec.ID, len(rec.Embedding), r.dimension)
		}
		payload := map[string]*pb.Value{
			payloadDocument: pb.NewValueString(rec.Document),
			payloadChunkID:  pb.NewValueString(rec.ID),
		}
		for k, v := range rec.Metadata {
			payload[k] = toValue(v)
		}
		points[i] = &pb.PointStruct{
			Id:      pb.NewID(PointID(rec.ID)),
			Vectors: pb.NewVectors(rec.Embedding...),
			Payload: payload,
		}
	}

	_, err := r.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: r.collection,
		Wait:           pb.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert: %w", err)
	}
	return nil
}

func (r *Index) Search(ctx context.Context, vec []float32, topK int) ([]vector.Match, error) {
	resp, err := r.points.Search(ctx, &pb.SearchPoints{
		CollectionName: r.collection,
		Vector:         vec,
		Limit:          uint64(topK),
		WithPayload:    pb.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant search: %w", err)
	}

	results := make([]vector.Match, len(resp.GetResult()))
	for i, pt := range resp.GetResult() {
		m := vector.Match{
			ID:       pt.GetId().GetUuid(),
			Distance: 1 - pt.GetScore(),
			Metadata: make(map[string]any),
		}
		for k, v := range pt.GetPayload() {
			switch k {
			case payloadDocument:
				m.Document = v.GetStringValue()
			case payloadChunkID:
				m.ID = v.GetStringValue()
			default:
				m.Metadata[k] = fromValue(v)
			}
		}
		results[i] = m
	}
	return results, nil
}

func (r *Index) Count(ctx context.Context) (int, error) {
	resp, err := r.points.Count(ctx, &pb.CountPoints{
		CollectionName: r.collection,
		Exact:          pb.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant count: %w", err)
	}
	return int(resp.GetResult().GetCount()), nil
}

// PointID maps a chunk id onto the UUID Qdrant stores it under. The mapping is
// stable, so re-ingesting a chunk overwrites its point.
func PointID(chunkID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(chunkID)).String()
}

func toValue(v any) *pb.Value {
	switch val := v.(type) {
	case string:
		return pb.NewValueString(val)
	case int:
		return pb.NewValueInt(int64(val))
	case int64:
		return pb.NewValueInt(val)
	case float64:
		return pb.NewValueDouble(val)
	case float32:
		return pb.NewValueDouble(float64(val))
	case bool:
		return pb.NewValueBool(val)
	default:
		return pb.NewValueString(fmt.Sprint(val))
	}
}

func fromValue(v *pb.Value) any {
	switch k := v.GetKind().(type) {
	case *pb.Value_StringValue:
		return k.StringValue
	case *pb.Value_IntegerValue:
		return int(k.IntegerValue)
	case *pb.Value_DoubleValue:
		return k.DoubleValue
	case *pb.Value_BoolValue:
		return k.BoolValue
	default:
		return nil
	}
}

var _ vector.Backend = (*Backend)(nil)
