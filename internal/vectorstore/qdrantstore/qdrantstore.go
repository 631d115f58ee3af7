// Package qdrantstore persists collections in Qdrant over gRPC. Every save
// writes a fresh physical collection and then points the alias <name> at it,
// so readers switch from the old content to the new in one step.
package qdrantstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"studyrag/internal/domain"
	"studyrag/internal/vectorstore"
)

// Payload keys.
const (
	keyText   = "text"
	keyPage   = "page"
	keySource = "source_id"
	keyOffset = "offset"
	keyTotal  = "total"
	keyMetric = "metric"
)

const batchSize = 256

// PointsAPI is the subset of pb.PointsClient used here.
type PointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Scroll(ctx context.Context, in *pb.ScrollPoints, opts ...grpc.CallOption) (*pb.ScrollResponse, error)
}

// CollectionsAPI is the subset of pb.CollectionsClient used here.
type CollectionsAPI interface {
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeleteCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
	UpdateAliases(ctx context.Context, in *pb.ChangeAliases, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
	ListAliases(ctx context.Context, in *pb.ListAliasesRequest, opts ...grpc.CallOption) (*pb.ListAliasesResponse, error)
}

// Config contains connection details for Qdrant.
type Config struct {
	Addr    string // gRPC address, e.g. localhost:6334
	APIKey  string
	Timeout time.Duration
}

type Repository struct {
	conn        *grpc.ClientConn
	points      PointsAPI
	collections CollectionsAPI
	apiKey      string
	timeout     time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

// New dials Qdrant. The connection is established lazily by gRPC.
func New(cfg Config, logger *slog.Logger) (*Repository, error) {
	conn, err := grpc.NewClient(cfg.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrantstore: dial %s: %w", cfg.Addr, err)
	}
	r := NewWithClients(pb.NewPointsClient(conn), pb.NewCollectionsClient(conn), cfg, logger)
	r.conn = conn
	return r, nil
}

// NewWithClients builds a repository on existing clients.
func NewWithClients(points PointsAPI, collections CollectionsAPI, cfg Config, logger *slog.Logger) *Repository {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		points:      points,
		collections: collections,
		apiKey:      cfg.APIKey,
		timeout:     cfg.Timeout,
		logger:      logger.With("component", "qdrantstore"),
		now:         time.Now,
	}
}

func (r *Repository) Kind() string { return "qdrant" }

func (r *Repository) Close() error {
	if r.conn == nil {
		return nil
	}
	return r.conn.Close()
}

func (r *Repository) rpcContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.apiKey != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "api-key", r.apiKey)
	}
	return context.WithTimeout(ctx, r.timeout)
}

func (r *Repository) Save(ctx context.Context, name string, snap *vectorstore.Snapshot) error {
	ctx, cancel := r.rpcContext(ctx)
	defer cancel()

	previous, err := r.aliasTarget(ctx, name)
	if err != nil {
		return err
	}

	physical := fmt.Sprintf("%s_%d", name, r.now().UnixNano())
	distance := pb.Distance_Dot // cosine vectors are stored unit length
	if snap.Metric == vectorstore.L2 {
		distance = pb.Distance_Euclid
	}
	size := uint64(max(snap.Dimension, 1))
	if _, err := r.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: physical,
		VectorsConfig:  pb.NewVectorsConfig(&pb.VectorParams{Size: size, Distance: distance}),
	}); err != nil {
		return fmt.Errorf("qdrantstore: create collection %s: %w", physical, err)
	}

	if err := r.upsert(ctx, physical, snap); err != nil {
		r.dropCollection(ctx, physical)
		return err
	}

	actions := []*pb.AliasOperations{}
	if previous != "" {
		actions = append(actions, pb.NewAliasDelete(name))
	}
	actions = append(actions, pb.NewAliasCreate(name, physical))
	if _, err := r.collections.UpdateAliases(ctx, &pb.ChangeAliases{Actions: actions}); err != nil {
		r.dropCollection(ctx, physical)
		return fmt.Errorf("qdrantstore: switch alias %s: %w", name, err)
	}
	if previous != "" {
		r.dropCollection(ctx, previous)
	}
	return nil
}

func (r *Repository) upsert(ctx context.Context, physical string, snap *vectorstore.Snapshot) error {
	wait := true
	total := int64(len(snap.Chunks))
	for start := 0; start < len(snap.Chunks); start += batchSize {
		end := min(start+batchSize, len(snap.Chunks))
		points := make([]*pb.PointStruct, 0, end-start)
		for i := start; i < end; i++ {
			c := snap.Chunks[i]
			points = append(points, &pb.PointStruct{
				Id:      pb.NewIDNum(uint64(i)),
				Vectors: pb.NewVectorsDense(snap.Vectors[i]),
				Payload: pb.NewValueMap(map[string]any{
					keyText:   c.Text,
					keyPage:   int64(c.Page),
					keySource: c.SourceID,
					keyOffset: int64(c.Offset),
					keyTotal:  total,
					keyMetric: string(snap.Metric),
				}),
			})
		}
		if _, err := r.points.Upsert(ctx, &pb.UpsertPoints{
			CollectionName: physical,
			Wait:           &wait,
			Points:         points,
		}); err != nil {
			return fmt.Errorf("qdrantstore: upsert %d points: %w", len(points), err)
		}
	}
	return nil
}

func (r *Repository) Load(ctx context.Context, name string) (*vectorstore.Snapshot, error) {
	ctx, cancel := r.rpcContext(ctx)
	defer cancel()

	target, err := r.aliasTarget(ctx, name)
	if err != nil {
		return nil, err
	}
	if target == "" {
		return nil, domain.ErrNotFound
	}

	snap := &vectorstore.Snapshot{Metric: vectorstore.Cosine}
	total := -1
	limit := uint32(batchSize)
	var offset *pb.PointId
	for {
		resp, err := r.points.Scroll(ctx, &pb.ScrollPoints{
			CollectionName: target,
			Offset:         offset,
			Limit:          &limit,
			WithPayload:    pb.NewWithPayload(true),
			WithVectors:    pb.NewWithVectors(true),
		})
		if err != nil {
			return nil, fmt.Errorf("qdrantstore: scroll %s: %w", target, err)
		}
		for _, p := range resp.GetResult() {
			if err := collect(snap, &total, p); err != nil {
				return nil, err
			}
		}
		offset = resp.GetNextPageOffset()
		if offset == nil {
			break
		}
	}

	if total >= 0 && len(snap.Chunks) != total {
		return nil, fmt.Errorf("%w: %d points, payload expects %d", domain.ErrCorruptCollection, len(snap.Chunks), total)
	}
	if len(snap.Vectors) > 0 {
		snap.Dimension = len(snap.Vectors[0])
	}
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	return snap, nil
}

// collect places p at its ordinal. Qdrant scrolls numeric ids in ascending
// order, so any gap surfaces as an ordinal mismatch.
func collect(snap *vectorstore.Snapshot, total *int, p *pb.RetrievedPoint) error {
	payload := p.GetPayload()
	t := int(payload[keyTotal].GetIntegerValue())
	switch {
	case *total < 0:
		*total = t
		snap.Metric = vectorstore.Metric(payload[keyMetric].GetStringValue())
	case *total != t:
		return fmt.Errorf("%w: inconsistent totals %d and %d", domain.ErrCorruptCollection, *total, t)
	}

	data := p.GetVectors().GetVector().GetDense().GetData()
	snap.Chunks = append(snap.Chunks, domain.Chunk{
		Index:    int(p.GetId().GetNum()),
		Text:     payload[keyText].GetStringValue(),
		Page:     int(payload[keyPage].GetIntegerValue()),
		SourceID: payload[keySource].GetStringValue(),
		Offset:   int(payload[keyOffset].GetIntegerValue()),
	})
	snap.Vectors = append(snap.Vectors, data)
	return nil
}

// aliasTarget returns the physical collection behind alias name, or "" if the
// alias does not exist.
func (r *Repository) aliasTarget(ctx context.Context, name string) (string, error) {
	resp, err := r.collections.ListAliases(ctx, &pb.ListAliasesRequest{})
	if err != nil {
		return "", fmt.Errorf("qdrantstore: list aliases: %w", err)
	}
	for _, a := range resp.GetAliases() {
		if a.GetAliasName() == name {
			return a.GetCollectionName(), nil
		}
	}
	return "", nil
}

func (r *Repository) dropCollection(ctx context.Context, physical string) {
	if _, err := r.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: physical}); err != nil {
		r.logger.Warn("drop collection failed", "collection", physical, "error", err)
	}
}
