// Package backup keeps ICS snapshots of mirrors before purge deletes them,
// so a purge can be inspected or re-imported afterwards.
package backup

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauern/calmirror/internal/util"
)

const (
	// DirPerm is the permission for snapshot directories.
	DirPerm = 0o700
	// FilePerm is the permission for snapshot files and the index.
	FilePerm = 0o600
)

// Store is a directory of snapshots plus an index.
type Store struct {
	Dir string
	now func() time.Time
}

// DefaultDir returns the snapshot directory under the data dir.
func DefaultDir() string {
	return filepath.Join(util.DataDir(), "backups")
}

// NewStore returns a store rooted at dir, or DefaultDir when dir is empty.
func NewStore(dir string) *Store {
	if dir == "" {
		dir = DefaultDir()
	}
	return &Store{Dir: dir, now: time.Now}
}

// Options describes what is being snapshotted.
type Options struct {
	Calendar    string // configured label, e.g. "personal.main"
	CalendarID  string
	Filter      string
	Events      int
	Description string
}

// Save writes data as a new snapshot and records it in the index.
func (s *Store) Save(data []byte, opts Options) (*Metadata, error) {
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])
	created := s.now().UTC()
	id := created.Format("20060102-150405-") + hash[:8]

	dir := filepath.Join(s.Dir, safeName(opts.Calendar))
	if err := os.MkdirAll(dir, DirPerm); err != nil {
		return nil, fmt.Errorf("create snapshot directory: %w", err)
	}
	path := filepath.Join(dir, id+".ics")
	if err := util.WriteFileAtomic(path, data, FilePerm); err != nil {
		return nil, fmt.Errorf("write snapshot: %w", err)
	}

	meta := Metadata{
		ID:          id,
		Calendar:    opts.Calendar,
		CalendarID:  opts.CalendarID,
		Filter:      opts.Filter,
		Path:        path,
		CreatedAt:   created,
		Hash:        hash,
		Size:        int64(len(data)),
		Events:      opts.Events,
		Description: opts.Description,
	}

	idx, err := s.LoadIndex()
	if err != nil {
		return nil, err
	}
	idx.Backups[id] = meta
	if err := s.SaveIndex(idx); err != nil {
		return nil, err
	}
	return &meta, nil
}

// Import adds a snapshot taken elsewhere, keeping its id and creation
// time. It reports false when the id is already present.
func (s *Store) Import(meta Metadata, data []byte) (bool, error) {
	if meta.ID == "" || safeName(meta.ID) != meta.ID {
		return false, fmt.Errorf("invalid backup id %q", meta.ID)
	}
	sum := sha256.Sum256(data)
	if got := hex.EncodeToString(sum[:]); got != meta.Hash {
		return false, fmt.Errorf("backup %s corrupted: hash mismatch (expected %s, got %s)", meta.ID, meta.Hash, got)
	}

	idx, err := s.LoadIndex()
	if err != nil {
		return false, err
	}
	if _, ok := idx.Backups[meta.ID]; ok {
		return false, nil
	}

	dir := filepath.Join(s.Dir, safeName(meta.Calendar))
	if err := os.MkdirAll(dir, DirPerm); err != nil {
		return false, fmt.Errorf("create snapshot directory: %w", err)
	}
	meta.Path = filepath.Join(dir, meta.ID+".ics")
	meta.Size = int64(len(data))
	if err := util.WriteFileAtomic(meta.Path, data, FilePerm); err != nil {
		return false, fmt.Errorf("write snapshot: %w", err)
	}
	idx.Backups[meta.ID] = meta
	return true, s.SaveIndex(idx)
}

// List returns snapshots newest first, optionally for one calendar label.
func (s *Store) List(calendar string) ([]Metadata, error) {
	idx, err := s.LoadIndex()
	if err != nil {
		return nil, err
	}
	all := idx.List()
	if calendar == "" {
		return all, nil
	}
	var out []Metadata
	for _, m := range all {
		if m.Calendar == calendar {
			out = append(out, m)
		}
	}
	return out, nil
}

// Get returns the metadata for id.
func (s *Store) Get(id string) (Metadata, error) {
	idx, err := s.LoadIndex()
	if err != nil {
		return Metadata{}, err
	}
	m, ok := idx.Backups[id]
	if !ok {
		return Metadata{}, fmt.Errorf("backup %q not found", id)
	}
	return m, nil
}

// Read returns the snapshot contents after checking the hash.
func (s *Store) Read(id string) ([]byte, error) {
	m, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(m.Path)
	if err != nil {
		return nil, fmt.Errorf("read backup %s: %w", id, err)
	}
	sum := sha256.Sum256(data)
	if got := hex.EncodeToString(sum[:]); got != m.Hash {
		return nil, fmt.Errorf("backup %s corrupted: hash mismatch (expected %s, got %s)", id, m.Hash, got)
	}
	return data, nil
}

// Verify checks that the snapshot file exists and matches its hash.
func (s *Store) Verify(id string) error {
	_, err := s.Read(id)
	return err
}

// Delete removes a snapshot file and its index entry.
func (s *Store) Delete(id string) error {
	idx, err := s.LoadIndex()
	if err != nil {
		return err
	}
	m, ok := idx.Backups[id]
	if !ok {
		return fmt.Errorf("backup %q not found", id)
	}
	if err := os.Remove(m.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete backup file: %w", err)
	}
	delete(idx.Backups, id)
	return s.SaveIndex(idx)
}

// safeName turns a calendar label into a directory name.
func safeName(label string) string {
	if label == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, label)
}
