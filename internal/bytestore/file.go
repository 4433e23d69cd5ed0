package bytestore

import (
	"fmt"
	"os"
)

// FileStore is a [RandomAccessStore] backed by an *os.File. Reads are
// positional (os.File.ReadAt); writes always append at the current end of
// file, matching the core's append-only write contract.
type FileStore struct {
	f *os.File
}

// OpenFileStore opens an existing file for random-access reads and
// append-only writes.
func OpenFileStore(path string) (*FileStore, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("opening byte store %q: %w", path, err)
	}

	return &FileStore{f: f}, nil
}

// CreateFileStore creates (or truncates) path for use as a fresh, empty
// random-access store.
func CreateFileStore(path string) (*FileStore, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("creating byte store %q: %w", path, err)
	}

	return &FileStore{f: f}, nil
}

// ReadAt implements [RandomAccessStore].
func (s *FileStore) ReadAt(buf []byte, at int64) (int, error) {
	return s.f.ReadAt(buf, at)
}

// Write implements [RandomAccessStore]: it always appends at the current
// end of file, regardless of any prior ReadAt cursor movement (ReadAt never
// touches the file's write offset since it uses pread semantics).
func (s *FileStore) Write(buf []byte) (int, error) {
	info, err := s.f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat byte store: %w", err)
	}

	return s.f.WriteAt(buf, info.Size())
}

// Size implements [RandomAccessStore].
func (s *FileStore) Size() (int64, error) {
	info, err := s.f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat byte store: %w", err)
	}

	return info.Size(), nil
}

// Close implements [RandomAccessStore].
func (s *FileStore) Close() error {
	return s.f.Close()
}

// PublishTemp durably and atomically publishes an already-written temp file
// as finalPath: fsync the temp file, then rename it over finalPath. Both the
// CLI's diff and apply commands stream their output into a temp FileStore
// and call this once the run succeeds, so a crash mid-run never leaves a
// half-written file at the final path.
func PublishTemp(tmpPath, finalPath string) error {
	f, err := os.OpenFile(tmpPath, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("opening temp output %q: %w", tmpPath, err)
	}

	if err := f.Sync(); err != nil {
		_ = f.Close()

		return fmt.Errorf("fsync temp output %q: %w", tmpPath, err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("closing temp output %q: %w", tmpPath, err)
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("publishing %q: %w", finalPath, err)
	}

	return nil
}
