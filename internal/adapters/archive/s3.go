package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/andrescamacho/takaro-connector/internal/domain/execution"
)

// PutObjectAPI is the S3 call the archive needs
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config holds configuration for the log archive
type S3Config struct {
	Bucket string
	Region string
	// Prefix is prepended to every object key
	Prefix string
	// Endpoint is an optional custom endpoint (MinIO, LocalStack)
	Endpoint string
}

// S3Archive writes execution logs as JSON objects keyed by
// <prefix>/<domainId>/<functionId>/<date>/<jobId>.json
type S3Archive struct {
	client     PutObjectAPI
	cfg        S3Config
	maxRetries int
}

// NewS3Archive loads the default AWS config and builds an S3 client
func NewS3Archive(ctx context.Context, cfg S3Config) (*S3Archive, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		// Custom endpoints are S3-compatible stores that need path-style addressing
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return NewS3ArchiveWithClient(s3.NewFromConfig(awsCfg, s3Opts...), cfg), nil
}

func NewS3ArchiveWithClient(client PutObjectAPI, cfg S3Config) *S3Archive {
	return &S3Archive{client: client, cfg: cfg, maxRetries: 3}
}

type archivedExecution struct {
	JobID        string              `json:"jobId"`
	FunctionID   string              `json:"functionId"`
	DomainID     string              `json:"domainId"`
	GameServerID string              `json:"gameServerId"`
	ItemKind     string              `json:"itemKind"`
	ItemID       string              `json:"itemId"`
	Success      bool                `json:"success"`
	Logs         []execution.LogLine `json:"logs"`
	StartedAt    time.Time           `json:"startedAt"`
	DurationMS   int64               `json:"durationMs"`
}

// Key returns the object key rec is stored under
func (a *S3Archive) Key(rec *execution.Record) string {
	return path.Join(a.cfg.Prefix, rec.DomainID, rec.FunctionID, rec.StartedAt.UTC().Format("2006-01-02"), rec.JobID+".json")
}

// Archive implements execution.LogArchive
func (a *S3Archive) Archive(ctx context.Context, rec *execution.Record) (string, error) {
	body, err := json.Marshal(archivedExecution{
		JobID:        rec.JobID,
		FunctionID:   rec.FunctionID,
		DomainID:     rec.DomainID,
		GameServerID: rec.GameServerID,
		ItemKind:     string(rec.ItemKind),
		ItemID:       rec.ItemID,
		Success:      rec.Success,
		Logs:         rec.Logs,
		StartedAt:    rec.StartedAt,
		DurationMS:   rec.Duration.Milliseconds(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode execution log: %w", err)
	}

	key := a.Key(rec)
	err = a.retryWithBackoff(ctx, func() error {
		_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(a.cfg.Bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(body),
			ContentType: aws.String("application/json"),
		})
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to archive execution %s: %w", rec.JobID, err)
	}
	return key, nil
}

func (a *S3Archive) retryWithBackoff(ctx context.Context, operation func() error) error {
	var lastErr error
	for attempt := 0; attempt <= a.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = operation()
		if lastErr == nil {
			return nil
		}

		if attempt < a.maxRetries {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * 100 * time.Millisecond
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return lastErr
}
