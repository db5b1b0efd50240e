package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/minio/minio-go/v7"

	"soundscape/core/audio"
	"soundscape/logger"
)

// AssetStore serves source recordings out of the asset bucket. Objects are
// mirrored to a local cache directory on first use and decoded from there,
// so it satisfies both catalog.Prober and audio.Loader.
type AssetStore struct {
	client     *minio.Client
	bucket     string
	cacheDir   string
	decoder    audio.Decoder
	sampleRate int
}

func NewAssetStore(client *minio.Client, bucket, cacheDir string, decoder audio.Decoder, sampleRate int) *AssetStore {
	return &AssetStore{
		client:     client,
		bucket:     bucket,
		cacheDir:   cacheDir,
		decoder:    decoder,
		sampleRate: sampleRate,
	}
}

// Probe reports whether the object exists in the bucket.
func (s *AssetStore) Probe(ctx context.Context, objectPath string) bool {
	_, err := s.client.StatObject(ctx, s.bucket, objectPath, minio.StatObjectOptions{})
	return err == nil
}

// Load fetches the object into the local mirror (if not already present) and
// decodes it.
func (s *AssetStore) Load(ctx context.Context, objectPath string) (*audio.Buffer, error) {
	local, err := s.ensureLocal(ctx, objectPath)
	if err != nil {
		return nil, err
	}
	buf, err := s.decoder.DecodeFile(ctx, local, s.sampleRate)
	if err != nil {
		return nil, fmt.Errorf("failed to decode asset %s: %w", objectPath, err)
	}
	return buf, nil
}

func (s *AssetStore) ensureLocal(ctx context.Context, objectPath string) (string, error) {
	local := filepath.Join(s.cacheDir, filepath.FromSlash(objectPath))
	if _, err := os.Stat(local); err == nil {
		return local, nil
	}

	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return "", fmt.Errorf("failed to create asset cache dir: %w", err)
	}
	if err := s.client.FGetObject(ctx, s.bucket, objectPath, local, minio.GetObjectOptions{}); err != nil {
		return "", fmt.Errorf("failed to fetch asset %s: %w", objectPath, err)
	}
	logger.Debug("asset mirrored locally", logger.String("object", objectPath))
	return local, nil
}
