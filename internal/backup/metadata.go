package backup

import (
	"cmp"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/klauern/calmirror/internal/util"
)

// Metadata describes one snapshot file.
type Metadata struct {
	ID          string    `json:"id"`
	Calendar    string    `json:"calendar"`
	CalendarID  string    `json:"calendar_id"`
	Filter      string    `json:"filter,omitempty"`
	Path        string    `json:"path"`
	CreatedAt   time.Time `json:"created_at"`
	Hash        string    `json:"hash"` // SHA256 of the file
	Size        int64     `json:"size"`
	Events      int       `json:"events"`
	Description string    `json:"description,omitempty"`
}

// Index maps snapshot ids to their metadata.
type Index struct {
	Version string              `json:"version"`
	Updated time.Time           `json:"updated"`
	Backups map[string]Metadata `json:"backups"`
}

const (
	// IndexVersion is the current version of the index format.
	IndexVersion = "1"
	// IndexFilename is the name of the index file inside the store.
	IndexFilename = "index.json"
)

func (s *Store) indexPath() string {
	return filepath.Join(s.Dir, IndexFilename)
}

// LoadIndex reads the index. A missing index is empty.
func (s *Store) LoadIndex() (*Index, error) {
	data, err := os.ReadFile(s.indexPath())
	if os.IsNotExist(err) {
		return &Index{Version: IndexVersion, Backups: make(map[string]Metadata)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}

	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("parse index: %w", err)
	}
	if idx.Backups == nil {
		idx.Backups = make(map[string]Metadata)
	}
	return &idx, nil
}

// SaveIndex writes the index atomically.
func (s *Store) SaveIndex(idx *Index) error {
	idx.Updated = s.now()
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal index: %w", err)
	}
	if err := util.WriteFileAtomic(s.indexPath(), data, FilePerm); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	return nil
}

// List returns snapshots newest first.
func (idx *Index) List() []Metadata {
	out := make([]Metadata, 0, len(idx.Backups))
	for _, m := range idx.Backups {
		out = append(out, m)
	}
	sortNewestFirst(out)
	return out
}

func sortNewestFirst(ms []Metadata) {
	slices.SortFunc(ms, func(a, b Metadata) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
}
