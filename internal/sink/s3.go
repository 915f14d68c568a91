package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// UploaderAPI defines the S3 upload operation used by S3Output.
type UploaderAPI interface {
	// Upload stores an object in S3, using multipart upload for large bodies.
	Upload(
		ctx context.Context,
		input *s3.PutObjectInput,
		opts ...func(*manager.Uploader),
	) (*manager.UploadOutput, error)
}

// S3Output spools the message stream to a temporary file and uploads it to S3
// when closed.
type S3Output struct {
	bucket   string
	file     *os.File
	key      string
	uploader UploaderAPI
}

// NewS3Output creates a spool file for a stream that will be uploaded to
// bucket under prefix. The object key is derived from now and a random ID.
func NewS3Output(uploader UploaderAPI, bucket string, prefix string, now time.Time) (*S3Output, error) {
	if uploader == nil {
		return nil, errors.New("s3 uploader is required")
	}
	if bucket == "" {
		return nil, errors.New("bucket is required")
	}

	file, err := os.CreateTemp("", "adsbridge-*.jsonl")
	if err != nil {
		return nil, fmt.Errorf("creating spool file: %w", err)
	}

	name := fmt.Sprintf("%s-%s.jsonl", now.UTC().Format("20060102T150405Z"), uuid.NewString())

	return &S3Output{
		bucket:   bucket,
		file:     file,
		key:      path.Join(prefix, now.UTC().Format("2006/01/02"), name),
		uploader: uploader,
	}, nil
}

// Key returns the object key the stream is uploaded to.
func (o *S3Output) Key() string {
	return o.key
}

// Write appends to the spool file.
func (o *S3Output) Write(p []byte) (int, error) {
	return o.file.Write(p)
}

// Close uploads the spooled stream and removes the spool file.
func (o *S3Output) Close(ctx context.Context) error {
	defer os.Remove(o.file.Name())
	defer o.file.Close()

	if _, err := o.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewinding spool file: %w", err)
	}

	_, err := o.uploader.Upload(ctx, &s3.PutObjectInput{
		Body:        o.file,
		Bucket:      aws.String(o.bucket),
		ContentType: aws.String("application/x-ndjson"),
		Key:         aws.String(o.key),
	})
	if err != nil {
		return fmt.Errorf("uploading stream to s3://%s/%s: %w", o.bucket, o.key, err)
	}

	return nil
}

// Discard removes the spool file without uploading it.
func (o *S3Output) Discard() error {
	_ = o.file.Close()
	if err := os.Remove(o.file.Name()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing spool file: %w", err)
	}
	return nil
}
