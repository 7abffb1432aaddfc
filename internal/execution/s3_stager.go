package execution

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dustin/go-humanize"

	"github.com/me/virocov/pkg/cwl"
)

// S3Downloader is the subset of manager.Downloader used by S3Stager.
type S3Downloader interface {
	Download(ctx context.Context, w io.WriterAt, input *s3.GetObjectInput, options ...func(*manager.Downloader)) (int64, error)
}

// S3StagerConfig contains settings for s3:// mirrors.
type S3StagerConfig struct {
	Region    string // AWS region; empty uses the default chain
	Endpoint  string // Custom endpoint for S3-compatible stores
	PathStyle bool   // Use path-style addressing
	Anonymous bool   // Skip request signing for public buckets

	// Downloader overrides the SDK downloader (tests).
	Downloader S3Downloader

	Logger *slog.Logger
}

// S3Stager stages s3://bucket/key locations.
type S3Stager struct {
	config S3StagerConfig
	logger *slog.Logger

	once       sync.Once
	downloader S3Downloader
	initErr    error
}

// NewS3Stager creates an S3Stager. AWS configuration is resolved on first use.
func NewS3Stager(cfg S3StagerConfig) *S3Stager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &S3Stager{
		config:     cfg,
		logger:     logger.With("component", "s3-stager"),
		downloader: cfg.Downloader,
	}
}

func (s *S3Stager) init(ctx context.Context) error {
	s.once.Do(func() {
		if s.downloader != nil {
			return
		}
		var opts []func(*awsconfig.LoadOptions) error
		if s.config.Region != "" {
			opts = append(opts, awsconfig.WithRegion(s.config.Region))
		}
		if s.config.Anonymous {
			opts = append(opts, awsconfig.WithCredentialsProvider(aws.AnonymousCredentials{}))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			s.initErr = fmt.Errorf("s3 stager: load aws config: %w", err)
			return
		}
		client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if s.config.Endpoint != "" {
				o.BaseEndpoint = aws.String(s.config.Endpoint)
			}
			o.UsePathStyle = s.config.PathStyle
		})
		s.downloader = manager.NewDownloader(client)
	})
	return s.initErr
}

// StageIn downloads s3://bucket/key to destPath.
func (s *S3Stager) StageIn(ctx context.Context, location string, destPath string) error {
	scheme, path := cwl.ParseLocationScheme(location)
	if scheme != cwl.SchemeS3 {
		return fmt.Errorf("s3 stager: unsupported scheme %q", scheme)
	}
	bucket, key, ok := splitBucketKey(path)
	if !ok {
		return fmt.Errorf("s3 stager: invalid location %q", location)
	}

	if err := s.init(ctx); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("s3 stager: mkdir: %w", err)
	}

	tmpPath := destPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("s3 stager: create temp file: %w", err)
	}

	start := time.Now()
	n, err := s.downloader.Download(ctx, f, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if closeErr := f.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("s3 stager: download %s: %w", location, err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("s3 stager: rename temp file: %w", err)
	}

	s.logger.Info("downloaded", "url", location, "size", humanize.Bytes(uint64(n)), "elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

func splitBucketKey(path string) (bucket, key string, ok bool) {
	bucket, key, found := strings.Cut(path, "/")
	if !found || bucket == "" || key == "" {
		return "", "", false
	}
	return bucket, key, true
}
