package sink

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"auroraetl/internal/mask"
	"auroraetl/internal/source"
)

type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Writer uploads one Parquet object per partition under s3://bucket/path/.
// It holds no mutable state, so partitions can be written concurrently.
type Writer struct {
	s3      S3Client
	bucket  string
	prefix  string
	runID   string
	schema  string
	columns []source.Column
}

func NewWriter(c S3Client, bucket, path, runID string, columns []source.Column) (*Writer, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, fmt.Errorf("missing output bucket")
	}
	schema, err := SchemaFor(columns)
	if err != nil {
		return nil, err
	}
	return &Writer{
		s3:      c,
		bucket:  bucket,
		prefix:  ensureTrailingSlash(strings.Trim(strings.TrimSpace(path), "/")),
		runID:   runID,
		schema:  schema,
		columns: columns,
	}, nil
}

func (w *Writer) URI() string {
	return OutputURI(w.bucket, w.prefix)
}

// PartKey names a partition's object the way Spark names part files.
func (w *Writer) PartKey(part int) string {
	return fmt.Sprintf("%spart-%05d-%s.snappy.parquet", w.prefix, part, w.runID)
}

// WritePart encodes and uploads one partition. Empty partitions produce no
// object and return an empty key.
func (w *Writer) WritePart(ctx context.Context, part int, records []mask.Record) (string, error) {
	if len(records) == 0 {
		return "", nil
	}
	data, err := EncodeParquet(w.schema, w.columns, records)
	if err != nil {
		return "", fmt.Errorf("partition %d: %w", part, err)
	}

	key := w.PartKey(part)
	_, err = w.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
		ACL:         s3types.ObjectCannedACLPrivate,
	})
	if err != nil {
		return "", fmt.Errorf("s3 putobject %s: %w", key, err)
	}
	return key, nil
}

func OutputURI(bucket, path string) string {
	return fmt.Sprintf("s3://%s/%s", bucket, path)
}

func ensureTrailingSlash(s string) string {
	if s == "" {
		return ""
	}
	if strings.HasSuffix(s, "/") {
		return s
	}
	return s + "/"
}
