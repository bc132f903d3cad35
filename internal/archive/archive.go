package archive

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"

	"judgecore/internal/common/storage"
	appErr "judgecore/pkg/errors"
)

const contentType = "application/zstd"

// Store persists submission sources as zstd-compressed objects in object
// storage, keyed by submission id. The sha256 of the uncompressed source is
// returned on write and verified on read.
type Store struct {
	storage storage.ObjectStorage
	bucket  string
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewStore creates a source archive store backed by the given bucket.
func NewStore(storageClient storage.ObjectStorage, bucket string) (*Store, error) {
	if storageClient == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder failed: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder failed: %w", err)
	}
	return &Store{
		storage: storageClient,
		bucket:  bucket,
		encoder: encoder,
		decoder: decoder,
	}, nil
}

// ObjectKey returns the storage key for a submission's source archive.
func ObjectKey(submissionID string) string {
	return fmt.Sprintf("sources/%s.zst", submissionID)
}

// Put compresses and uploads the source, returning the hex sha256 of the
// uncompressed bytes.
func (s *Store) Put(ctx context.Context, submissionID, source string) (string, error) {
	if submissionID == "" {
		return "", appErr.ValidationError("submission_id", "required")
	}
	raw := []byte(source)
	sum := sha256.Sum256(raw)
	compressed := s.encoder.EncodeAll(raw, nil)

	key := ObjectKey(submissionID)
	if err := s.storage.PutObject(ctx, s.bucket, key, bytes.NewReader(compressed), int64(len(compressed)), contentType); err != nil {
		return "", appErr.Wrapf(err, appErr.StorageError, "upload source archive failed")
	}
	return hex.EncodeToString(sum[:]), nil
}

// Get downloads and decompresses a submission's source. When expectedHash is
// non-empty the uncompressed bytes must match it.
func (s *Store) Get(ctx context.Context, submissionID, expectedHash string) (string, error) {
	if submissionID == "" {
		return "", appErr.ValidationError("submission_id", "required")
	}
	key := ObjectKey(submissionID)
	reader, err := s.storage.GetObject(ctx, s.bucket, key)
	if err != nil {
		if storage.IsNotFound(err) {
			return "", appErr.Newf(appErr.ArchiveNotFound, "source archive %s not found", key)
		}
		return "", appErr.Wrapf(err, appErr.StorageError, "download source archive failed")
	}
	defer reader.Close()

	compressed, err := io.ReadAll(reader)
	if err != nil {
		return "", appErr.Wrapf(err, appErr.StorageError, "read source archive failed")
	}
	raw, err := s.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return "", appErr.Wrapf(err, appErr.ArchiveCorrupted, "decompress source archive failed")
	}
	if expectedHash != "" {
		sum := sha256.Sum256(raw)
		if !strings.EqualFold(hex.EncodeToString(sum[:]), expectedHash) {
			return "", appErr.New(appErr.ArchiveCorrupted).WithMessage("source archive hash mismatch")
		}
	}
	return string(raw), nil
}

// Close releases the codec resources.
func (s *Store) Close() {
	_ = s.encoder.Close()
	s.decoder.Close()
}
