// Package reliability holds the operational safety nets around the
// operations database: offsite backups and periodic maintenance.
package reliability

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/chavapalmarubin-lab/FIDUS-sub008/internal/config"
	"github.com/chavapalmarubin-lab/FIDUS-sub008/internal/database"
)

const backupPrefix = "operations-db/"

// BackupService archives the operations database and uploads it to an
// S3-compatible bucket. A WAL checkpoint runs first so the archive contains
// a consistent single file.
type BackupService struct {
	db       *database.DB
	uploader *manager.Uploader
	client   *s3.Client
	bucket   string
	retain   int
	log      zerolog.Logger
	now      func() time.Time
}

// NewBackupService builds the S3 client from the backup configuration. A
// custom endpoint switches to path-style addressing for non-AWS providers.
func NewBackupService(ctx context.Context, db *database.DB, cfg config.BackupConfig, log zerolog.Logger) (*BackupService, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load S3 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &BackupService{
		db:       db,
		uploader: manager.NewUploader(client),
		client:   client,
		bucket:   cfg.Bucket,
		retain:   cfg.Retention,
		log:      log.With().Str("component", "backup").Logger(),
		now:      time.Now,
	}, nil
}

// Run performs one backup: checkpoint, archive, upload, prune. Returns the
// uploaded object key.
func (s *BackupService) Run(ctx context.Context) (string, error) {
	start := s.now()

	if err := s.db.WALCheckpoint("TRUNCATE"); err != nil {
		return "", fmt.Errorf("pre-backup checkpoint failed: %w", err)
	}

	archive, checksum, err := s.buildArchive()
	if err != nil {
		return "", err
	}

	key := fmt.Sprintf("%s%s.tar.gz", backupPrefix, start.UTC().Format("20060102-150405"))
	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(archive),
		Metadata: map[string]string{
			"sha256": checksum,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload backup %s: %w", key, err)
	}

	s.log.Info().
		Str("key", key).
		Int("size_bytes", len(archive)).
		Str("sha256", checksum).
		Dur("duration", s.now().Sub(start)).
		Msg("Backup uploaded")

	if err := s.prune(ctx); err != nil {
		// Retention failures must not fail the backup itself.
		s.log.Error().Err(err).Msg("Backup retention pruning failed")
	}

	return key, nil
}

// buildArchive produces a gzipped tarball of the database file and its
// sha256 hex digest.
func (s *BackupService) buildArchive() ([]byte, string, error) {
	data, err := os.ReadFile(s.db.Path())
	if err != nil {
		return nil, "", fmt.Errorf("failed to read database file: %w", err)
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	header := &tar.Header{
		Name:    filepath.Base(s.db.Path()),
		Mode:    0600,
		Size:    int64(len(data)),
		ModTime: s.now().UTC(),
	}
	if err := tw.WriteHeader(header); err != nil {
		return nil, "", fmt.Errorf("failed to write archive header: %w", err)
	}
	if _, err := io.Copy(tw, bytes.NewReader(data)); err != nil {
		return nil, "", fmt.Errorf("failed to write archive body: %w", err)
	}
	if err := tw.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finalize tar: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finalize gzip: %w", err)
	}

	sum := sha256.Sum256(data)
	return buf.Bytes(), hex.EncodeToString(sum[:]), nil
}

// prune deletes the oldest backups beyond the retention count. Keys embed a
// sortable timestamp, so lexical order is chronological order.
func (s *BackupService) prune(ctx context.Context) error {
	if s.retain <= 0 {
		return nil
	}

	out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(backupPrefix),
	})
	if err != nil {
		return fmt.Errorf("failed to list backups: %w", err)
	}

	var keys []string
	for _, obj := range out.Contents {
		key := aws.ToString(obj.Key)
		if strings.HasSuffix(key, ".tar.gz") {
			keys = append(keys, key)
		}
	}
	if len(keys) <= s.retain {
		return nil
	}

	sort.Strings(keys)
	excess := keys[:len(keys)-s.retain]

	for _, key := range excess {
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return fmt.Errorf("failed to delete old backup %s: %w", key, err)
		}
		s.log.Info().Str("key", key).Msg("Pruned old backup")
	}

	return nil
}
