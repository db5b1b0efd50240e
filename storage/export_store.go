package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"

	"soundscape/logger"
)

// ExportStore uploads finished exports and mints time-limited download URLs.
type ExportStore struct {
	client *minio.Client
	bucket string
}

func NewExportStore(client *minio.Client, bucket string) *ExportStore {
	return &ExportStore{client: client, bucket: bucket}
}

// WAVKey is the object key of a job's audio artifact.
func WAVKey(jobID string) string {
	return fmt.Sprintf("exports/%s/soundscape_%s.wav", jobID, jobID)
}

// CertificateKey is the object key of a job's license certificate.
func CertificateKey(jobID string) string {
	return fmt.Sprintf("exports/%s/license_%s.txt", jobID, jobID)
}

// PutWAV stores the rendered audio.
func (s *ExportStore) PutWAV(ctx context.Context, jobID string, data []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, WAVKey(jobID),
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "audio/wav"})
	if err != nil {
		return fmt.Errorf("failed to upload export audio: %w", err)
	}
	logger.Info("export audio uploaded",
		logger.String("job_id", jobID), logger.Int("bytes", len(data)))
	return nil
}

// PutCertificate stores the license certificate.
func (s *ExportStore) PutCertificate(ctx context.Context, jobID, text string) error {
	_, err := s.client.PutObject(ctx, s.bucket, CertificateKey(jobID),
		strings.NewReader(text), int64(len(text)),
		minio.PutObjectOptions{ContentType: "text/plain; charset=utf-8"})
	if err != nil {
		return fmt.Errorf("failed to upload certificate: %w", err)
	}
	return nil
}

// PresignedWAV returns a time-limited download URL for the audio, with a
// download filename attached.
func (s *ExportStore) PresignedWAV(ctx context.Context, jobID string, expiry time.Duration) (string, error) {
	params := make(url.Values)
	params.Set("response-content-disposition",
		fmt.Sprintf(`attachment; filename="soundscape_%s.wav"`, jobID))
	u, err := s.client.PresignedGetObject(ctx, s.bucket, WAVKey(jobID), expiry, params)
	if err != nil {
		return "", fmt.Errorf("failed to presign export download: %w", err)
	}
	return u.String(), nil
}

// PresignedCertificate returns a time-limited download URL for the license
// certificate.
func (s *ExportStore) PresignedCertificate(ctx context.Context, jobID string, expiry time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, CertificateKey(jobID), expiry, nil)
	if err != nil {
		return "", fmt.Errorf("failed to presign certificate download: %w", err)
	}
	return u.String(), nil
}
