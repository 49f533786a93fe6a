// Package datasource discovers and reads metric data files: JSON documents,
// JSONL sample streams and SQLite sample databases.
package datasource

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// SourceType identifies the format of a data source
type SourceType string

const (
	// SourceTypeJSON is a document with series and tables
	SourceTypeJSON SourceType = "json"
	// SourceTypeJSONL is one sample per line
	SourceTypeJSONL SourceType = "jsonl"
	// SourceTypeSQLite is a database with a samples table
	SourceTypeSQLite SourceType = "sqlite"
)

// Source is one metric data file.
type Source struct {
	// Type is the file format; DetectType fills it from the extension
	Type SourceType `json:"type" yaml:"type"`
	// Path is the file location
	Path string `json:"path" yaml:"path"`
	// ModTime is the last modification time, set by Stat
	ModTime time.Time `json:"mod_time" yaml:"-"`
	// Size is the file size in bytes, set by Stat
	Size int64 `json:"size" yaml:"-"`
}

// String returns a human-readable description of the source
func (s Source) String() string {
	if s.ModTime.IsZero() {
		return fmt.Sprintf("%s (%s)", s.Path, s.Type)
	}
	return fmt.Sprintf("%s (%s, mod=%s, %d bytes)", s.Path, s.Type, s.ModTime.Format(time.RFC3339), s.Size)
}

// DetectType maps a file extension to a source type.
func DetectType(path string) (SourceType, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return SourceTypeJSON, nil
	case ".jsonl", ".ndjson":
		return SourceTypeJSONL, nil
	case ".db", ".sqlite", ".sqlite3":
		return SourceTypeSQLite, nil
	}
	return "", fmt.Errorf("unknown data source type for %s", path)
}

// Normalize fills a missing type and validates a given one.
func (s *Source) Normalize() error {
	if s.Path == "" {
		return fmt.Errorf("data source without path")
	}
	if s.Type == "" {
		t, err := DetectType(s.Path)
		if err != nil {
			return err
		}
		s.Type = t
		return nil
	}
	switch s.Type {
	case SourceTypeJSON, SourceTypeJSONL, SourceTypeSQLite:
		return nil
	}
	return fmt.Errorf("unknown data source type: %s", s.Type)
}

// Stat refreshes ModTime and Size.
func (s *Source) Stat() error {
	info, err := os.Stat(s.Path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", s.Path)
	}
	s.ModTime = info.ModTime()
	s.Size = info.Size()
	return nil
}

// Discover lists every data file directly inside dir, sorted by path.
// Backups and editor artifacts are skipped.
func Discover(dir string) ([]Source, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read data directory: %w", err)
	}

	var sources []Source
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, ".") ||
			strings.Contains(name, ".backup") ||
			strings.Contains(name, ".orig") ||
			strings.HasSuffix(name, "~") {
			continue
		}
		t, err := DetectType(name)
		if err != nil {
			continue
		}
		src := Source{Type: t, Path: filepath.Join(dir, name)}
		if err := src.Stat(); err != nil {
			continue
		}
		sources = append(sources, src)
	}

	sort.Slice(sources, func(i, j int) bool { return sources[i].Path < sources[j].Path })
	return sources, nil
}
