// Package objectstore wraps an S3-compatible object store for uploaded
// source files: single-shot put/get, presigned URLs, and multipart upload
// session coordination.
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	cfgpkg "github.com/rowforge/ingest/internal/config"
)

// Client wraps an S3-compatible object store client plus multipart
// upload/download managers, configured for uploaded source files.
type Client struct {
	s3         *s3.Client
	presigner  *s3.PresignClient
	uploader   *manager.Uploader
	downloader *manager.Downloader

	bucket string
	cfg    cfgpkg.StorageConfig
}

// New builds a Client from StorageConfig. A non-empty EndpointURL targets
// an S3-compatible backend other than AWS (MinIO, R2, ...); empty
// AccessKeyID/SecretAccessKey fall back to the default AWS credential
// chain.
func New(ctx context.Context, sc cfgpkg.StorageConfig) (*Client, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(sc.Region),
	}
	if sc.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(sc.AccessKeyID, sc.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if sc.EndpointURL != "" {
			o.BaseEndpoint = aws.String(sc.EndpointURL)
			o.UsePathStyle = true
		}
	})

	uploader := manager.NewUploader(s3Client, func(u *manager.Uploader) {
		u.PartSize = sc.MultipartChunkMinBytes
		u.Concurrency = sc.MultipartMaxConcurrency
	})
	downloader := manager.NewDownloader(s3Client, func(d *manager.Downloader) {
		d.PartSize = sc.MultipartChunkMinBytes
		d.Concurrency = sc.MultipartMaxConcurrency
	})

	return &Client{
		s3:         s3Client,
		presigner:  s3.NewPresignClient(s3Client),
		uploader:   uploader,
		downloader: downloader,
		bucket:     sc.Bucket,
		cfg:        sc,
	}, nil
}

// ObjectKey builds the storage key for an uploaded source file.
func ObjectKey(importID string, fileName string) string {
	return fmt.Sprintf("uploads/%s/%s", importID, fileName)
}

// PresignUpload returns a time-limited URL the caller can PUT a file
// directly to, bypassing the API server for the transfer itself.
func (c *Client) PresignUpload(ctx context.Context, key, contentType string) (string, error) {
	req, err := c.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(c.cfg.PresignTTL))
	if err != nil {
		return "", fmt.Errorf("presigning upload: %w", err)
	}
	return req.URL, nil
}

// PresignDownload returns a time-limited URL to fetch an object, handed back
// to the client once a multipart upload completes.
func (c *Client) PresignDownload(ctx context.Context, key string) (string, error) {
	req, err := c.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(c.cfg.PresignTTL))
	if err != nil {
		return "", fmt.Errorf("presigning download: %w", err)
	}
	return req.URL, nil
}

// Put uploads data under key through the transfer manager, which splits a
// body larger than the configured part size into a multipart upload.
func (c *Client) Put(ctx context.Context, key, contentType string, body io.Reader) error {
	_, err := c.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("uploading %s: %w", key, err)
	}
	return nil
}

// Session tracks a caller-driven multipart upload in progress. The API
// layer persists the UploadID alongside the upload session row so a part request
// days later can still resolve it; AbandonedSessionAge governs cleanup.
type Session struct {
	Key       string
	UploadID  string
	Bucket    string
	StartedAt time.Time
}

// CreateSession starts a multipart upload for a large source file.
func (c *Client) CreateSession(ctx context.Context, key, contentType string) (Session, error) {
	out, err := c.s3.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return Session{}, fmt.Errorf("creating multipart upload: %w", err)
	}
	return Session{Key: key, UploadID: aws.ToString(out.UploadId), Bucket: c.bucket}, nil
}

// PartResult identifies one committed part, returned to the caller so it
// can be included verbatim in the CompleteSession call.
type PartResult struct {
	PartNumber int32
	ETag       string
}

// UploadPart uploads a single part of an in-progress multipart session,
// retrying transient failures up to MultipartMaxRetries.
func (c *Client) UploadPart(ctx context.Context, sess Session, partNumber int32, body io.Reader) (PartResult, error) {
	// Buffer the part once so every attempt re-sends the full body.
	data, err := io.ReadAll(body)
	if err != nil {
		return PartResult{}, fmt.Errorf("reading part %d: %w", partNumber, err)
	}
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MultipartMaxRetries; attempt++ {
		if attempt > 0 {
			slog.Warn("retrying multipart part upload",
				"upload_id", sess.UploadID, "part", partNumber, "attempt", attempt)
		}
		out, err := c.s3.UploadPart(ctx, &s3.UploadPartInput{
			Bucket:     aws.String(c.bucket),
			Key:        aws.String(sess.Key),
			UploadId:   aws.String(sess.UploadID),
			PartNumber: aws.Int32(partNumber),
			Body:       bytes.NewReader(data),
		})
		if err == nil {
			return PartResult{PartNumber: partNumber, ETag: aws.ToString(out.ETag)}, nil
		}
		lastErr = err
	}
	return PartResult{}, fmt.Errorf("uploading part %d after %d attempts: %w", partNumber, c.cfg.MultipartMaxRetries+1, lastErr)
}

// CompleteSession finalizes a multipart upload once every part has been
// acknowledged by the caller.
func (c *Client) CompleteSession(ctx context.Context, sess Session, parts []PartResult) error {
	completed := make([]s3types.CompletedPart, len(parts))
	for i, p := range parts {
		completed[i] = s3types.CompletedPart{PartNumber: aws.Int32(p.PartNumber), ETag: aws.String(p.ETag)}
	}
	_, err := c.s3.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(c.bucket),
		Key:      aws.String(sess.Key),
		UploadId: aws.String(sess.UploadID),
		MultipartUpload: &s3types.CompletedMultipartUpload{
			Parts: completed,
		},
	})
	if err != nil {
		return fmt.Errorf("completing multipart upload: %w", err)
	}
	return nil
}

// AbortSession cancels an in-progress multipart upload, releasing any
// parts already stored. Called on explicit client abort; the
// abandoned-session sweep only marks session rows aborted and does not
// call it.
func (c *Client) AbortSession(ctx context.Context, sess Session) error {
	_, err := c.s3.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(c.bucket),
		Key:      aws.String(sess.Key),
		UploadId: aws.String(sess.UploadID),
	})
	if err != nil {
		return fmt.Errorf("aborting multipart upload: %w", err)
	}
	return nil
}

// Get downloads an object's full contents.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	buf := manager.NewWriteAtBuffer(nil)
	_, err := c.downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", key, err)
	}
	return buf.Bytes(), nil
}

// Delete removes an object, used to clean up abandoned upload artifacts.
func (c *Client) Delete(ctx context.Context, key string) error {
	_, err := c.s3.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}
