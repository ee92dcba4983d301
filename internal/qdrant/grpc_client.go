package qdrant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/docflow/internal/config"
	"github.com/fyrsmithlabs/docflow/internal/logging"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

// ErrCollectionNotFound is returned by collection lookups on a missing collection.
var ErrCollectionNotFound = errors.New("collection not found")

// GRPCClient implements Client using Qdrant's official Go client.
type GRPCClient struct {
	client *qdrant.Client
	config *ClientConfig
	logger *logging.Logger
}

// ClientConfig configures the Qdrant gRPC client.
type ClientConfig struct {
	// Host is the Qdrant server hostname or IP address.
	// Default: "localhost"
	Host string

	// Port is the Qdrant gRPC port (NOT HTTP REST port).
	// Default: 6334
	Port int

	UseTLS bool

	// APIKey is the optional API key for authentication.
	APIKey string

	// MaxMessageSize is the maximum gRPC message size in bytes.
	// Default: 50MB, enough for a large document upserted in one call.
	MaxMessageSize int

	DialTimeout    time.Duration
	RequestTimeout time.Duration

	// RetryAttempts is the number of retries for transient gRPC failures.
	// Default: 3
	RetryAttempts int

	// Distance is the metric for new collections.
	// Default: Euclid (L2)
	Distance qdrant.Distance
}

// DefaultClientConfig returns defaults for a local Qdrant.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Host:           "localhost",
		Port:           6334,
		UseTLS:         false,
		MaxMessageSize: 50 * 1024 * 1024,
		DialTimeout:    5 * time.Second,
		RequestTimeout: 30 * time.Second,
		RetryAttempts:  3,
		Distance:       qdrant.Distance_Euclid,
	}
}

// ConfigFrom maps the store.qdrant config section onto a ClientConfig.
func ConfigFrom(cfg config.QdrantConfig) *ClientConfig {
	c := &ClientConfig{
		Host:           cfg.Host,
		Port:           cfg.Port,
		UseTLS:         cfg.UseTLS,
		APIKey:         cfg.APIKey.Value(),
		RequestTimeout: cfg.RequestTimeout,
		RetryAttempts:  cfg.RetryAttempts,
	}
	c.ApplyDefaults()
	return c
}

// ApplyDefaults sets default values for unset fields.
func (c *ClientConfig) ApplyDefaults() {
	defaults := DefaultClientConfig()

	if c.Host == "" {
		c.Host = defaults.Host
	}
	if c.Port == 0 {
		c.Port = defaults.Port
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = defaults.MaxMessageSize
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = defaults.DialTimeout
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = defaults.RequestTimeout
	}
	if c.RetryAttempts == 0 {
		c.RetryAttempts = defaults.RetryAttempts
	}
	if c.Distance == qdrant.Distance_UnknownDistance {
		c.Distance = defaults.Distance
	}
}

// Validate validates the client configuration.
func (c *ClientConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be 1-65535)", c.Port)
	}
	if c.MaxMessageSize <= 0 {
		return fmt.Errorf("invalid max message size: %d (must be > 0)", c.MaxMessageSize)
	}
	if c.RetryAttempts < 0 {
		return fmt.Errorf("invalid retry attempts: %d", c.RetryAttempts)
	}
	return nil
}

// NewGRPCClient connects to Qdrant and verifies the connection with a health check.
func NewGRPCClient(cfg *ClientConfig, logger *logging.Logger) (*GRPCClient, error) {
	if cfg == nil {
		cfg = DefaultClientConfig()
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	qdrantConfig := &qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		UseTLS: cfg.UseTLS,
		APIKey: cfg.APIKey,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(cfg.MaxMessageSize),
				grpc.MaxCallSendMsgSize(cfg.MaxMessageSize),
			),
		},
	}
	if !cfg.UseTLS {
		qdrantConfig.GrpcOptions = append(qdrantConfig.GrpcOptions,
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		)
	}

	client, err := qdrant.NewClient(qdrantConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	c := &GRPCClient{
		client: client,
		config: cfg,
		logger: logger.Named("qdrant"),
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	c.logger.Info(ctx, "connecting to qdrant",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
	)
	if err := c.Health(ctx); err != nil {
		_ = client.Close()
		c.logger.Error(ctx, "qdrant health check failed",
			zap.String("host", cfg.Host),
			zap.Int("port", cfg.Port),
			zap.Error(err),
		)
		return nil, err
	}
	return c, nil
}

// Health performs a health check on the Qdrant connection.
func (c *GRPCClient) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	if _, err := c.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// CreateCollection creates a single dense-vector collection using the
// configured distance.
func (c *GRPCClient) CreateCollection(ctx context.Context, name string, vectorSize uint64) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	return c.retryOperation(ctx, func() error {
		return c.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     vectorSize,
				Distance: c.config.Distance,
			}),
		})
	})
}

// DeleteCollection deletes a collection and all its points.
func (c *GRPCClient) DeleteCollection(ctx context.Context, name string) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	return c.retryOperation(ctx, func() error {
		return c.client.DeleteCollection(ctx, name)
	})
}

// CollectionExists checks if a collection exists.
func (c *GRPCClient) CollectionExists(ctx context.Context, name string) (bool, error) {
	_, err := c.collectionInfo(ctx, name)
	if errors.Is(err, ErrCollectionNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CollectionVectorSize returns the dense vector size of an existing collection.
func (c *GRPCClient) CollectionVectorSize(ctx context.Context, name string) (uint64, error) {
	info, err := c.collectionInfo(ctx, name)
	if err != nil {
		return 0, err
	}
	size := info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()
	if size == 0 {
		return 0, fmt.Errorf("collection %s has no single dense vector config", name)
	}
	return size, nil
}

// CollectionPointCount returns the approximate number of points in a collection.
func (c *GRPCClient) CollectionPointCount(ctx context.Context, name string) (uint64, error) {
	info, err := c.collectionInfo(ctx, name)
	if err != nil {
		return 0, err
	}
	return info.GetPointsCount(), nil
}

func (c *GRPCClient) collectionInfo(ctx context.Context, name string) (*qdrant.CollectionInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	var info *qdrant.CollectionInfo
	err := c.retryOperation(ctx, func() error {
		res, err := c.client.GetCollectionInfo(ctx, name)
		if err != nil {
			if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
				return fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
			}
			return err
		}
		info = res
		return nil
	})
	return info, err
}

// CreateKeywordIndex creates a keyword payload index on field and waits for it.
func (c *GRPCClient) CreateKeywordIndex(ctx context.Context, collection, field string) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	return c.retryOperation(ctx, func() error {
		_, err := c.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: collection,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
			Wait:           qdrant.PtrOf(true),
		})
		return err
	})
}

// Upsert writes points and waits until they are persisted.
func (c *GRPCClient) Upsert(ctx context.Context, collection string, points []*Point) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	qdrantPoints := make([]*qdrant.PointStruct, len(points))
	for i, point := range points {
		qdrantPoints[i] = convertToQdrantPoint(point)
	}

	return c.retryOperation(ctx, func() error {
		_, err := c.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: collection,
			Points:         qdrantPoints,
			Wait:           qdrant.PtrOf(true),
		})
		return err
	})
}

// CountByField counts points whose keyword field equals value.
func (c *GRPCClient) CountByField(ctx context.Context, collection, field, value string) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	var n uint64
	err := c.retryOperation(ctx, func() error {
		res, err := c.client.Count(ctx, &qdrant.CountPoints{
			CollectionName: collection,
			Filter:         keywordFilter(field, value),
			Exact:          qdrant.PtrOf(true),
		})
		if err != nil {
			return err
		}
		n = res
		return nil
	})
	return n, err
}

// ScrollByField returns up to limit points (payload and vector) whose keyword
// field equals value.
func (c *GRPCClient) ScrollByField(ctx context.Context, collection, field, value string, limit uint32) ([]*Point, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	var points []*qdrant.RetrievedPoint
	err := c.retryOperation(ctx, func() error {
		res, err := c.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: collection,
			Filter:         keywordFilter(field, value),
			Limit:          qdrant.PtrOf(limit),
			WithPayload:    qdrant.NewWithPayload(true),
			WithVectors:    qdrant.NewWithVectors(true),
		})
		if err != nil {
			return err
		}
		points = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]*Point, len(points))
	for i, p := range points {
		out[i] = convertFromQdrantRetrievedPoint(p)
	}
	return out, nil
}

// Close closes the client connection.
func (c *GRPCClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// retryOperation retries an operation with exponential backoff.
func (c *GRPCClient) retryOperation(ctx context.Context, operation func() error) error {
	var lastErr error
	backoff := time.Second
	startTime := time.Now()

	for attempt := 0; attempt <= c.config.RetryAttempts; attempt++ {
		err := operation()
		if err == nil {
			if attempt > 0 {
				c.logger.Info(ctx, "operation recovered after retries",
					zap.Int("attempts", attempt),
					zap.Duration("total_time", time.Since(startTime)),
				)
			}
			return nil
		}

		lastErr = err
		if !isTransientError(err) {
			return err
		}
		if attempt == c.config.RetryAttempts {
			break
		}

		c.logger.Debug(ctx, "retrying operation after transient error",
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", c.config.RetryAttempts),
			zap.Error(err),
			zap.Duration("backoff", backoff),
		)

		select {
		case <-ctx.Done():
			return fmt.Errorf("operation canceled: %w", ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}

	c.logger.Warn(ctx, "operation failed after all retries exhausted",
		zap.Int("total_attempts", c.config.RetryAttempts+1),
		zap.Duration("total_time", time.Since(startTime)),
		zap.Error(lastErr),
	)
	return fmt.Errorf("operation failed after %d retries: %w", c.config.RetryAttempts, lastErr)
}

// isTransientError checks if an error is transient and should be retried.
func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	st, ok := status.FromError(err)
	if !ok {
		return false
	}

	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Aborted, codes.ResourceExhausted:
		return true
	default:
		return false
	}
}

func keywordFilter(field, value string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatchKeyword(field, value)},
	}
}

func convertToQdrantPoint(p *Point) *qdrant.PointStruct {
	payload := make(map[string]*qdrant.Value, len(p.Payload))
	for k, v := range p.Payload {
		payload[k] = convertToQdrantValue(v)
	}

	return &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(p.ID),
		Vectors: qdrant.NewVectors(p.Vector...),
		Payload: payload,
	}
}

func convertToQdrantValue(v interface{}) *qdrant.Value {
	switch val := v.(type) {
	case string:
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: val}}
	case int:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(val)}}
	case int64:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: val}}
	case float64:
		return &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: val}}
	case bool:
		return &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: val}}
	default:
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: fmt.Sprintf("%v", val)}}
	}
}

func convertFromQdrantRetrievedPoint(p *qdrant.RetrievedPoint) *Point {
	return &Point{
		ID:      extractPointID(p.Id),
		Vector:  extractVectorOutput(p.Vectors),
		Payload: extractPayload(p.Payload),
	}
}

func extractPointID(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if uuid := id.GetUuid(); uuid != "" {
		return uuid
	}
	if num := id.GetNum(); num != 0 {
		return fmt.Sprintf("%d", num)
	}
	return ""
}

func extractVectorOutput(vectors *qdrant.VectorsOutput) []float32 {
	if vectors == nil {
		return nil
	}
	if vec := vectors.GetVector(); vec != nil {
		if dense := vec.GetDense(); dense != nil {
			return dense.GetData()
		}
		// Older servers return the deprecated flat data field.
		return vec.GetData()
	}
	return nil
}

func extractPayload(payload map[string]*qdrant.Value) map[string]interface{} {
	if payload == nil {
		return nil
	}

	result := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		result[k] = extractValue(v)
	}
	return result
}

func extractValue(v *qdrant.Value) interface{} {
	if v == nil {
		return nil
	}

	switch val := v.Kind.(type) {
	case *qdrant.Value_StringValue:
		return val.StringValue
	case *qdrant.Value_IntegerValue:
		return val.IntegerValue
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue
	case *qdrant.Value_BoolValue:
		return val.BoolValue
	default:
		return nil
	}
}

var _ Client = (*GRPCClient)(nil)
