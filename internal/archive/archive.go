// Package archive bundles purge snapshots into a portable tar.gz so they can
// be moved to another machine and imported there.
package archive

import (
	"archive/tar"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/klauern/calmirror/internal/backup"
)

const (
	manifestName    = "manifest.json"
	manifestVersion = "1"
	snapshotDir     = "snapshots"
	// maxEntrySize bounds a single archive entry on extraction.
	maxEntrySize = 64 << 20
)

// Manifest lists the snapshots in an archive.
type Manifest struct {
	Version   string           `json:"version"`
	CreatedAt time.Time        `json:"created_at"`
	Count     int              `json:"count"`
	Backups   []ManifestBackup `json:"backups"`
}

// ManifestBackup is one snapshot entry. Filename is the archive member
// name; the local Path is never written.
type ManifestBackup struct {
	backup.Metadata
	Filename string `json:"filename"`
}

// CreateOptions selects the snapshots to bundle.
type CreateOptions struct {
	Calendar string    // Only this calendar label (empty = all)
	Since    time.Time // Only snapshots created at or after this time
	Before   time.Time // Only snapshots created strictly before this time
}

// ErrEmpty is returned by Create when no snapshot matches the options.
var ErrEmpty = errors.New("no backups match the specified filters")

// Create writes the selected snapshots of store to w. Each snapshot is
// verified against its hash before it is added.
func Create(w io.Writer, store *backup.Store, opts CreateOptions, now time.Time) (*Manifest, error) {
	all, err := store.List(opts.Calendar)
	if err != nil {
		return nil, err
	}
	selected := filterBackups(all, opts)
	if len(selected) == 0 {
		return nil, ErrEmpty
	}

	gzWriter := gzip.NewWriter(w)
	tarWriter := tar.NewWriter(gzWriter)

	manifest := &Manifest{
		Version:   manifestVersion,
		CreatedAt: now.UTC(),
		Count:     len(selected),
		Backups:   make([]ManifestBackup, 0, len(selected)),
	}
	for _, meta := range selected {
		data, err := store.Read(meta.ID)
		if err != nil {
			return nil, err
		}
		filename := path.Join(snapshotDir, meta.ID+".ics")
		if err := writeEntry(tarWriter, filename, data, meta.CreatedAt); err != nil {
			return nil, err
		}
		entry := ManifestBackup{Metadata: meta, Filename: filename}
		entry.Path = ""
		manifest.Backups = append(manifest.Backups, entry)
	}

	manifestData, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to serialize manifest: %w", err)
	}
	if err := writeEntry(tarWriter, manifestName, manifestData, now); err != nil {
		return nil, err
	}

	if err := tarWriter.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish archive: %w", err)
	}
	if err := gzWriter.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish archive: %w", err)
	}
	return manifest, nil
}

func writeEntry(tw *tar.Writer, name string, data []byte, mod time.Time) error {
	header := &tar.Header{
		Name:    name,
		Mode:    0o600,
		Size:    int64(len(data)),
		ModTime: mod,
	}
	if err := tw.WriteHeader(header); err != nil {
		return fmt.Errorf("failed to write tar header for %s: %w", name, err)
	}
	if _, err := tw.Write(data); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// Extract reads an archive and returns its manifest and member contents.
func Extract(r io.Reader) (*Manifest, map[string][]byte, error) {
	gzReader, err := gzip.NewReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gzReader.Close()

	tarReader := tar.NewReader(gzReader)
	var manifest *Manifest
	files := make(map[string][]byte)

	for {
		header, err := tarReader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read tar header: %w", err)
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}
		if header.Size > maxEntrySize {
			return nil, nil, fmt.Errorf("entry %s is too large (%d bytes)", header.Name, header.Size)
		}
		data, err := io.ReadAll(io.LimitReader(tarReader, maxEntrySize))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read entry %s: %w", header.Name, err)
		}

		if header.Name == manifestName {
			if err := json.Unmarshal(data, &manifest); err != nil {
				return nil, nil, fmt.Errorf("failed to parse manifest: %w", err)
			}
			continue
		}
		if name := path.Clean(header.Name); strings.HasPrefix(name, snapshotDir+"/") {
			files[name] = data
		}
	}

	if manifest == nil {
		return nil, nil, errors.New("archive missing manifest.json")
	}
	return manifest, files, nil
}

// ImportResult reports what Import did with each snapshot.
type ImportResult struct {
	Imported []string `json:"imported"`
	Skipped  []string `json:"skipped,omitempty"`
}

// Import extracts an archive into store. Snapshots whose id already exists
// are skipped; a snapshot whose content does not match its hash fails the
// import.
func Import(r io.Reader, store *backup.Store) (*ImportResult, error) {
	manifest, files, err := Extract(r)
	if err != nil {
		return nil, err
	}
	res := &ImportResult{}
	for _, entry := range manifest.Backups {
		data, ok := files[path.Clean(entry.Filename)]
		if !ok {
			return res, fmt.Errorf("archive missing %s for backup %s", entry.Filename, entry.ID)
		}
		added, err := store.Import(entry.Metadata, data)
		if err != nil {
			return res, err
		}
		if added {
			res.Imported = append(res.Imported, entry.ID)
		} else {
			res.Skipped = append(res.Skipped, entry.ID)
		}
	}
	return res, nil
}

// filterBackups applies the calendar-independent options.
func filterBackups(all []backup.Metadata, opts CreateOptions) []backup.Metadata {
	filtered := make([]backup.Metadata, 0, len(all))
	for _, m := range all {
		if !opts.Since.IsZero() && m.CreatedAt.Before(opts.Since) {
			continue
		}
		if !opts.Before.IsZero() && !m.CreatedAt.Before(opts.Before) {
			continue
		}
		filtered = append(filtered, m)
	}
	return filtered
}
