// Package documents stores supplier-uploaded files, such as signed framework
// agreement signature pages, in an S3 bucket.
package documents

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/risicle/digitalmarketplace-supplier-frontend/pkg/apierrors"
)

// S3API is the subset of the S3 client the store uses
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Object describes a stored document
type Object struct {
	Key          string
	Filename     string
	Size         int64
	LastModified time.Time
}

// Config holds S3 store configuration
type Config struct {
	Bucket   string
	Region   string
	Endpoint string
}

// Store is an S3-backed document store
type Store struct {
	api     S3API
	presign func(ctx context.Context, key string, ttl time.Duration) (string, error)
	bucket  string
}

// NewStore creates a document store against a real S3 bucket. A custom
// endpoint switches on path-style addressing for MinIO and LocalStack.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	presignClient := s3.NewPresignClient(client)

	return &Store{
		api:    client,
		bucket: cfg.Bucket,
		presign: func(ctx context.Context, key string, ttl time.Duration) (string, error) {
			req, err := presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
				Bucket: aws.String(cfg.Bucket),
				Key:    aws.String(key),
			}, func(o *s3.PresignOptions) { o.Expires = ttl })
			if err != nil {
				return "", err
			}
			return req.URL, nil
		},
	}, nil
}

// NewStoreWithAPI creates a store over an injected S3 API, for tests.
func NewStoreWithAPI(api S3API, bucket string) *Store {
	return &Store{
		api:    api,
		bucket: bucket,
		presign: func(ctx context.Context, key string, ttl time.Duration) (string, error) {
			return "https://" + bucket + ".s3.amazonaws.com/" + key, nil
		},
	}
}

// Save uploads a document. The download filename is recorded as the
// Content-Disposition so browsers save it under a friendly name. Failures
// surface as unavailable errors so users see the 503 page.
func (s *Store) Save(ctx context.Context, key string, data []byte, contentType, downloadFilename string) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	}
	if downloadFilename != "" {
		input.ContentDisposition = aws.String(fmt.Sprintf("attachment; filename=%q", downloadFilename))
	}

	if _, err := s.api.PutObject(ctx, input); err != nil {
		slog.Error("document upload failed", "bucket", s.bucket, "key", key, "error", err)
		return apierrors.Unavailable("failed to store document", err)
	}
	slog.Info("document stored", "bucket", s.bucket, "key", key, "size", len(data))
	return nil
}

// Exists checks whether a document is present in the bucket.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return false, nil
	}
	return true, nil
}

// List returns the documents under a key prefix, most recent last.
func (s *Store) List(ctx context.Context, prefix string) ([]Object, error) {
	out, err := s.api.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	if err != nil {
		return nil, apierrors.Unavailable("failed to list documents", err)
	}

	objects := make([]Object, 0, len(out.Contents))
	for _, item := range out.Contents {
		key := aws.ToString(item.Key)
		if strings.HasSuffix(key, "/") {
			continue
		}
		obj := Object{Key: key, Filename: path.Base(key)}
		if item.Size != nil {
			obj.Size = *item.Size
		}
		if item.LastModified != nil {
			obj.LastModified = *item.LastModified
		}
		objects = append(objects, obj)
	}
	return objects, nil
}

// SignedURL returns a time-limited download URL for a stored document.
func (s *Store) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	url, err := s.presign(ctx, key, ttl)
	if err != nil {
		return "", apierrors.Unavailable("failed to sign document URL", err)
	}
	return url, nil
}

var (
	unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

	contentTypes = map[string]string{
		".pdf": "application/pdf",
		".jpg": "image/jpeg",
		".png": "image/png",
	}
)

// UploadPath builds the timestamped bucket key for a supplier document:
// <framework>/<category>/<supplierID>/<supplierID>-<name>-<timestamp>.<ext>
func UploadPath(frameworkSlug string, supplierID int, category, name, extension string, now time.Time) string {
	return fmt.Sprintf("%s/%s/%d/%d-%s-%s%s",
		frameworkSlug, category, supplierID, supplierID, name,
		now.UTC().Format("2006-01-02-1504"), extension)
}

// DownloadFilename builds the friendly filename a browser saves a document
// under, from the supplier's name and id.
func DownloadFilename(supplierName string, supplierID int, name, extension string) string {
	sanitised := unsafeFilenameChars.ReplaceAllString(supplierName, "_")
	return fmt.Sprintf("%s-%d-%s%s", sanitised, supplierID, name, extension)
}

// FileExtension returns the lower-cased extension of an uploaded filename,
// normalising jpeg to jpg.
func FileExtension(filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	if ext == ".jpeg" {
		ext = ".jpg"
	}
	return ext
}

// ContentTypeFor returns the MIME type for a permitted upload extension,
// and whether the extension is permitted at all.
func ContentTypeFor(extension string) (string, bool) {
	ct, ok := contentTypes[extension]
	return ct, ok
}
