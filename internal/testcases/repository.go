package testcases

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/codearena/judge/internal/storage"
	"github.com/codearena/judge/types"
)

var (
	// ErrNotFound is returned when no archive exists for a problem.
	ErrNotFound = errors.New("testcase archive not found")

	// ErrMalformed is returned when archive entries cannot be paired.
	ErrMalformed = errors.New("malformed testcase archive")

	// ErrNoTestCases is returned when an archive holds zero valid pairs.
	ErrNoTestCases = errors.New("no test cases")
)

// Archive formats in lookup order; the first key present wins.
var archiveSuffixes = []string{".zip", ".tar.gz", ".tgz", ".tar.zst"}

// ObjectStore is the subset of object storage the repository needs.
type ObjectStore interface {
	ReadAll(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, key string) error
}

// Repository loads test cases from archives kept in object storage.
type Repository struct {
	store ObjectStore
}

func NewRepository(store ObjectStore) *Repository {
	return &Repository{store: store}
}

// ArchiveKey returns the object key of a problem's archive.
func ArchiveKey(problemID int, suffix string) string {
	return fmt.Sprintf("problem_%d%s", problemID, suffix)
}

// Load returns the problem's test cases ordered by case number.
func (r *Repository) Load(ctx context.Context, problemID int) ([]types.TestCase, error) {
	for _, suffix := range archiveSuffixes {
		key := ArchiveKey(problemID, suffix)
		data, err := r.store.ReadAll(ctx, key)
		if errors.Is(err, storage.ErrObjectNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read archive %s: %w", key, err)
		}
		return Parse(key, data)
	}
	return nil, fmt.Errorf("%w: problem %d", ErrNotFound, problemID)
}

// SaveArchive validates an uploaded archive and stores it as the problem's
// archive, removing archives of other formats. It returns the stored key
// and the parsed test cases.
func (r *Repository) SaveArchive(ctx context.Context, problemID int, filename string, data []byte) (string, []types.TestCase, error) {
	cases, err := Parse(filename, data)
	if err != nil {
		return "", nil, err
	}
	suffix, err := archiveFormat(filename)
	if err != nil {
		return "", nil, err
	}

	key := ArchiveKey(problemID, suffix)
	if err := r.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType(suffix)); err != nil {
		return "", nil, fmt.Errorf("store archive %s: %w", key, err)
	}
	for _, other := range archiveSuffixes {
		if other == suffix {
			continue
		}
		err := r.store.Delete(ctx, ArchiveKey(problemID, other))
		if err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
			return "", nil, fmt.Errorf("remove stale archive: %w", err)
		}
	}
	return key, cases, nil
}

func contentType(suffix string) string {
	switch suffix {
	case ".zip":
		return "application/zip"
	case ".tar.zst":
		return "application/zstd"
	default:
		return "application/gzip"
	}
}
