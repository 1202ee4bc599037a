// Package artifact archives successful build outputs to S3-compatible
// object storage before the orchestrator deletes them from disk.
package artifact

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/webapk-bot/webapk/internal/build"
)

type Archive struct {
	client *s3.Client // required
	bucket string     // required
}

var _ build.ArtifactArchiver = (*Archive)(nil)

func NewArchive(client *s3.Client, bucket string) *Archive {
	return &Archive{client: client, bucket: bucket}
}

// ArchiveArtifact implements build.ArtifactArchiver.
func (a *Archive) ArchiveArtifact(ctx context.Context, buildID uuid.UUID, file string) error {
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("archive artifact: %w", err)
	}
	defer f.Close()

	key := fmt.Sprintf("artifacts/%s/%s", buildID, filepath.Base(file))
	uploader := manager.NewUploader(a.client)
	_, err = uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: &a.bucket,
		Key:    &key,
		Body:   f,
	})
	if err != nil {
		return fmt.Errorf("archive artifact: %w", err)
	}

	return nil
}
