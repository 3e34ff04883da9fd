// Package archive stores original report uploads in S3.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/medilens/internal/config"
	"go.uber.org/zap"
)

// uploader is the part of manager.Uploader the archive needs.
type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Archive uploads files under reports/<id>/<filename> in one bucket.
type S3Archive struct {
	uploader uploader
	bucket   string
	logger   *zap.Logger
}

// NewS3Archive builds an archive from the default AWS credential chain.
func NewS3Archive(ctx context.Context, cfg config.ArchiveConfig, logger *zap.Logger) (*S3Archive, error) {
	awsCfg, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg)
	return newS3Archive(manager.NewUploader(client), cfg.Bucket, logger), nil
}

func newS3Archive(u uploader, bucket string, logger *zap.Logger) *S3Archive {
	return &S3Archive{
		uploader: u,
		bucket:   bucket,
		logger:   logger.Named("archive"),
	}
}

// Archive uploads data and returns the object key.
func (a *S3Archive) Archive(ctx context.Context, reportID, filename, contentType string, data []byte) (string, error) {
	key := ObjectKey(reportID, filename)

	out, err := a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		Metadata:    map[string]string{"name": filename},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}

	a.logger.Info("archived upload",
		zap.String("bucket", a.bucket),
		zap.String("key", key),
		zap.String("location", out.Location),
		zap.Int("size", len(data)),
	)
	return key, nil
}

// ObjectKey returns the archive key for a report upload. Directory parts of
// filename are dropped.
func ObjectKey(reportID, filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" || name == ".." {
		name = "upload"
	}
	return fmt.Sprintf("reports/%s/%s", reportID, name)
}
