package chunkstore

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sensorvault/upload-gateway/internal/uploadid"
)

// TemporaryChunk is the append-only file backing one active upload
// session, named after its UploadIdentifier. Its size on disk is the
// single source of truth for bytesUploaded — the store never caches an
// offset in memory, so a restart loses only sessions, never the
// already-received bytes of a session that survives.
type TemporaryChunk struct {
	dir string
	id  uploadid.UploadIdentifier
}

// New returns a handle to the temporary chunk file for id under dir. It
// does not create the file; callers observe existence via BytesUploaded
// or create it implicitly on the first Append.
func New(dir string, id uploadid.UploadIdentifier) TemporaryChunk {
	return TemporaryChunk{dir: dir, id: id}
}

func (c TemporaryChunk) path() string {
	return filepath.Join(c.dir, c.id.String())
}

// BytesUploaded stats the chunk file and returns its current size. A
// missing file reports zero bytes uploaded, matching a session that has
// not received any chunk yet.
func (c TemporaryChunk) BytesUploaded() (int64, error) {
	info, err := os.Stat(c.path())
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("stat chunk %s: %w", c.id, err)
	}

	return info.Size(), nil
}

// Append writes body to the end of the chunk file, creating it if
// necessary. Callers must hold the session's append lock; Append itself
// performs no locking, since mutual exclusion is scoped to the session,
// not to the file.
func (c TemporaryChunk) Append(body io.Reader, expectedOffset int64) (int64, error) {
	if err := os.MkdirAll(c.dir, 0o700); err != nil {
		return 0, fmt.Errorf("creating chunk dir: %w", err)
	}

	f, err := os.OpenFile(c.path(), os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return 0, fmt.Errorf("opening chunk %s: %w", c.id, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat chunk %s: %w", c.id, err)
	}

	if info.Size() != expectedOffset {
		return info.Size(), ErrOffsetMismatch
	}

	n, err := io.Copy(f, body)
	if err != nil {
		return info.Size(), fmt.Errorf("appending to chunk %s: %w", c.id, err)
	}

	return info.Size() + n, nil
}

// Delete removes the chunk file. A missing file is not an error — callers
// (storage.Service's Commit after a successful store, and its Clean on a
// terminal rejection) treat deletion as idempotent.
func (c TemporaryChunk) Delete() error {
	if err := os.Remove(c.path()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("deleting chunk %s: %w", c.id, err)
	}

	return nil
}

// Open returns a read handle on the chunk file, for the storage backend
// to stream into its final blob location on completion.
func (c TemporaryChunk) Open() (*os.File, error) {
	f, err := os.Open(c.path())
	if err != nil {
		return nil, fmt.Errorf("opening chunk %s for read: %w", c.id, err)
	}

	return f, nil
}

// ErrOffsetMismatch is returned by Append when the caller's expected
// offset does not match the file's current size — the client's view of
// bytesUploaded is stale, most commonly after a retried or out-of-order
// chunk.
var ErrOffsetMismatch = errors.New("chunkstore: expected offset does not match chunk size")
