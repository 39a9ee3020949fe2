// Copyright 2026 Teyda Authors

// Package filestore is the flat, content-addressed file storage shared by
// all adapters. A file reference ("td/<name>") is only ever handed out once
// the content is fully committed and, when requested, hash-verified.
// Fragmented uploads live under a temporary prefix until finish renames them
// into place.
package filestore

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/teyda/teyda/pkg/onebot"
)

// Namespace is the file-id namespace for locally stored content.
const Namespace = "td"

// TempPrefix marks files still being assembled by a fragmented upload.
const TempPrefix = "temp_"

var (
	// ErrNotFound means the name does not resolve to a regular file.
	ErrNotFound = errors.New("filestore: no such file")
	// ErrHashMismatch means the content did not match the declared SHA-256.
	ErrHashMismatch = errors.New("filestore: sha256 mismatch")
	// ErrBadName rejects names that would escape the storage directory.
	ErrBadName = errors.New("filestore: invalid file name")
)

// Store is a flat directory of files. It is an explicit injected dependency
// so tests can run against an isolated root.
type Store struct {
	root string
	log  zerolog.Logger
}

// New creates a store rooted at the given directory. The directory is
// created lazily on first write.
func New(root string, log zerolog.Logger) *Store {
	return &Store{
		root: root,
		log:  log.With().Str("component", "filestore").Logger(),
	}
}

// Root returns the storage directory.
func (s *Store) Root() string {
	return s.root
}

func validName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
}

func (s *Store) path(name string) (string, error) {
	if !validName(name) {
		return "", fmt.Errorf("%w: %q", ErrBadName, name)
	}
	return filepath.Join(s.root, name), nil
}

// statFile resolves a name to an existing regular file.
func (s *Store) statFile(name string) (string, os.FileInfo, error) {
	path, err := s.path(name)
	if err != nil {
		return "", nil, err
	}
	info, err := os.Lstat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return path, info, nil
}

// Save writes content under the given name in one shot. When expectedSHA256
// is non-empty and does not match, nothing is written and ErrHashMismatch is
// returned. On success the public file reference is returned.
func (s *Store) Save(name string, data []byte, expectedSHA256 string) (string, error) {
	path, err := s.path(name)
	if err != nil {
		return "", err
	}
	sum := Hash(data)
	if expectedSHA256 != "" && !strings.EqualFold(sum, expectedSHA256) {
		return "", fmt.Errorf("%w: got %s", ErrHashMismatch, sum)
	}
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return "", fmt.Errorf("create storage dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write %q: %w", name, err)
	}
	s.log.Debug().Str("name", name).Int("size", len(data)).Msg("Saved file")
	return onebot.MakeFileID(Namespace, name), nil
}

// Read returns the full content of a stored file together with its SHA-256.
func (s *Store) Read(name string) ([]byte, string, error) {
	path, _, err := s.statFile(name)
	if err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("read %q: %w", name, err)
	}
	return data, Hash(data), nil
}

// ReadAt returns an exact byte range of a stored file.
func (s *Store) ReadAt(name string, offset, size int64) ([]byte, error) {
	path, _, err := s.statFile(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", name, err)
	}
	defer f.Close()
	buf := make([]byte, size)
	if _, err := f.ReadAt(buf, offset); err != nil {
		return nil, fmt.Errorf("read %q at %d: %w", name, offset, err)
	}
	return buf, nil
}

// Path returns the absolute path of a stored file.
func (s *Store) Path(name string) (string, error) {
	path, _, err := s.statFile(name)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return abs, nil
}

// Size returns the size of a stored file in bytes.
func (s *Store) Size(name string) (int64, error) {
	_, info, err := s.statFile(name)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Prepare allocates a zero-filled file of the declared total size under the
// temporary prefix and returns the temporary file reference. Until Finish
// succeeds the content is only reachable through that temporary name.
func (s *Store) Prepare(name string, totalSize int64) (string, error) {
	tempName := TempPrefix + name
	path, err := s.path(tempName)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return "", fmt.Errorf("create storage dir: %w", err)
	}
	// O_TRUNC discards any earlier attempt so the allocation is zero-filled.
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return "", fmt.Errorf("prepare %q: %w", tempName, err)
	}
	defer f.Close()
	if err := f.Truncate(totalSize); err != nil {
		return "", fmt.Errorf("truncate %q: %w", tempName, err)
	}
	s.log.Debug().Str("name", tempName).Int64("total_size", totalSize).Msg("Prepared fragmented file")
	return onebot.MakeFileID(Namespace, tempName), nil
}

// Transfer writes a byte range at the given offset into a prepared file.
// Ordering across concurrent callers is not enforced; overlapping writes are
// last-write-wins.
func (s *Store) Transfer(name string, offset int64, data []byte) error {
	path, _, err := s.statFile(name)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %q: %w", name, err)
	}
	defer f.Close()
	if _, err := f.WriteAt(data, offset); err != nil {
		return fmt.Errorf("write %q at %d: %w", name, offset, err)
	}
	return nil
}

// Finish verifies the assembled file against the declared SHA-256 and
// renames it off the temporary prefix. On mismatch the temporary file stays
// in place; the caller has to re-prepare to retry.
func (s *Store) Finish(name, expectedSHA256 string) (string, error) {
	path, _, err := s.statFile(name)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %q: %w", name, err)
	}
	if sum := Hash(data); !strings.EqualFold(sum, expectedSHA256) {
		return "", fmt.Errorf("%w: got %s", ErrHashMismatch, sum)
	}
	finalName := strings.TrimPrefix(name, TempPrefix)
	finalPath, err := s.path(finalName)
	if err != nil {
		return "", err
	}
	if err := os.Rename(path, finalPath); err != nil {
		return "", fmt.Errorf("rename %q: %w", name, err)
	}
	s.log.Debug().Str("name", finalName).Msg("Finished fragmented file")
	return onebot.MakeFileID(Namespace, finalName), nil
}

// Hash returns the lowercase hex SHA-256 of the buffer.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
