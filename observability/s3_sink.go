package observability

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// S3Config configures the archival sink. Endpoint supports
// S3-compatible stores (MinIO) via path-style addressing.
type S3Config struct {
	BucketName    string
	Region        string
	AccessKeyID   string
	SecretKey     string
	Endpoint      string
	PathPrefix    string
	FlushInterval time.Duration
	BatchSize     int
}

// S3Sink batches events as newline-delimited JSON objects and uploads
// them to date-partitioned keys. Emit never blocks on the network; a
// background flusher drains the queue.
type S3Sink struct {
	config S3Config
	client *s3.Client

	mu    sync.Mutex
	queue []Event

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewS3Sink builds the sink and starts its flusher.
func NewS3Sink(ctx context.Context, cfg S3Config) (*S3Sink, error) {
	if cfg.BucketName == "" {
		return nil, fmt.Errorf("s3 sink: bucket name is required")
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 10 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}

	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3 sink: load aws config: %w", err)
	}

	s3Opts := []func(*s3.Options){}
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	sink := &S3Sink{
		config: cfg,
		client: s3.NewFromConfig(awsCfg, s3Opts...),
		stopCh: make(chan struct{}),
	}
	sink.wg.Add(1)
	go sink.flushLoop()
	return sink, nil
}

// Emit enqueues e for the next flush.
func (s *S3Sink) Emit(_ context.Context, e Event) {
	s.mu.Lock()
	s.queue = append(s.queue, e)
	full := len(s.queue) >= s.config.BatchSize
	s.mu.Unlock()

	if full {
		go s.flush(context.Background())
	}
}

func (s *S3Sink) flushLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.flush(context.Background())
		case <-s.stopCh:
			s.flush(context.Background())
			return
		}
	}
}

type s3EventRecord struct {
	Timestamp    time.Time `json:"timestamp"`
	Kind         EventKind `json:"kind"`
	RequestID    string    `json:"request_id,omitempty"`
	Provider     string    `json:"provider,omitempty"`
	Model        string    `json:"model,omitempty"`
	LatencyMs    int64     `json:"latency_ms,omitempty"`
	InputTokens  int       `json:"input_tokens,omitempty"`
	OutputTokens int       `json:"output_tokens,omitempty"`
	Cost         *float64  `json:"cost,omitempty"`
	CacheHit     bool      `json:"cache_hit,omitempty"`
	Error        string    `json:"error,omitempty"`
	Detail       string    `json:"detail,omitempty"`
}

func (s *S3Sink) flush(ctx context.Context) {
	s.mu.Lock()
	if len(s.queue) == 0 {
		s.mu.Unlock()
		return
	}
	batch := s.queue
	s.queue = nil
	s.mu.Unlock()

	now := time.Now().UTC()
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, e := range batch {
		rec := s3EventRecord{
			Timestamp:    now,
			Kind:         e.Kind,
			RequestID:    e.RequestID,
			Provider:     e.Provider,
			Model:        e.Model,
			LatencyMs:    e.LatencyMs,
			InputTokens:  e.InputTokens,
			OutputTokens: e.OutputTokens,
			Cost:         e.Cost,
			CacheHit:     e.CacheHit,
			Detail:       e.Detail,
		}
		if e.Err != nil {
			rec.Error = e.Err.Error()
		}
		_ = enc.Encode(rec)
	}

	key := path.Join(
		s.config.PathPrefix,
		now.Format("2006/01/02"),
		fmt.Sprintf("events-%s-%s.jsonl", now.Format("150405"), uuid.NewString()[:8]),
	)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.config.BucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		// Telemetry must never fail a request; requeue the batch for the
		// next flush instead.
		s.mu.Lock()
		s.queue = append(batch, s.queue...)
		s.mu.Unlock()
	}
}

// Close flushes the remaining queue and stops the flusher.
func (s *S3Sink) Close() error {
	close(s.stopCh)
	s.wg.Wait()
	return nil
}
