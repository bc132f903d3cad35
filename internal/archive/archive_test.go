package archive

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/minio/minio-go/v7"

	"judgecore/internal/common/storage"
	appErr "judgecore/pkg/errors"
)

type fakeObject struct {
	data        []byte
	contentType string
}

type fakeStorage struct {
	objects map[string]fakeObject
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: make(map[string]fakeObject)}
}

func (f *fakeStorage) PutObject(ctx context.Context, bucket, key string, reader io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	f.objects[bucket+"/"+key] = fakeObject{data: data, contentType: contentType}
	return nil
}

func (f *fakeStorage) GetObject(ctx context.Context, bucket, key string) (storage.ObjectReader, error) {
	obj, ok := f.objects[bucket+"/"+key]
	if !ok {
		return nil, minio.ErrorResponse{Code: "NoSuchKey", Message: "The specified key does not exist."}
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (f *fakeStorage) StatObject(ctx context.Context, bucket, key string) (storage.ObjectStat, error) {
	obj, ok := f.objects[bucket+"/"+key]
	if !ok {
		return storage.ObjectStat{}, minio.ErrorResponse{Code: "NoSuchKey"}
	}
	return storage.ObjectStat{SizeBytes: int64(len(obj.data)), ContentType: obj.contentType}, nil
}

func (f *fakeStorage) EnsureBucket(ctx context.Context, bucket string) error { return nil }

func TestStoreRoundTrip(t *testing.T) {
	fs := newFakeStorage()
	store, err := NewStore(fs, "judge-sources")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	source := "#include <stdio.h>\nint main() { puts(\"hi\"); return 0; }\n"

	hash, err := store.Put(ctx, "sub-1", source)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if len(hash) != 64 {
		t.Fatalf("hash = %q, want 64 hex chars", hash)
	}

	got, err := store.Get(ctx, "sub-1", hash)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != source {
		t.Fatalf("Get returned %q, want %q", got, source)
	}

	// The stored object is compressed, not the raw source.
	obj := fs.objects["judge-sources/"+ObjectKey("sub-1")]
	if strings.Contains(string(obj.data), "stdio.h") {
		t.Fatal("stored object contains uncompressed source")
	}
}

func TestStoreGetMissing(t *testing.T) {
	store, err := NewStore(newFakeStorage(), "judge-sources")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer store.Close()

	_, err = store.Get(context.Background(), "nope", "")
	if appErr.GetCode(err) != appErr.ArchiveNotFound {
		t.Fatalf("Get missing = code %d, want ArchiveNotFound", appErr.GetCode(err))
	}
}

func TestStoreGetHashMismatch(t *testing.T) {
	fs := newFakeStorage()
	store, err := NewStore(fs, "judge-sources")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if _, err := store.Put(ctx, "sub-2", "print(1)"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	_, err = store.Get(ctx, "sub-2", strings.Repeat("0", 64))
	if appErr.GetCode(err) != appErr.ArchiveCorrupted {
		t.Fatalf("Get with wrong hash = code %d, want ArchiveCorrupted", appErr.GetCode(err))
	}
}

func TestStoreGetCorruptedPayload(t *testing.T) {
	fs := newFakeStorage()
	store, err := NewStore(fs, "judge-sources")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	fs.objects["judge-sources/"+ObjectKey("sub-3")] = fakeObject{data: []byte("not zstd at all")}

	_, err = store.Get(ctx, "sub-3", "")
	if appErr.GetCode(err) != appErr.ArchiveCorrupted {
		t.Fatalf("Get corrupted = code %d, want ArchiveCorrupted", appErr.GetCode(err))
	}
}
