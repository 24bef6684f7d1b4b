package analyzer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Cache stores FileAnalysis results keyed by content hash, so files
// that have not changed are never re-parsed. Entries are JSON files
// fanned out into 256 subdirectories by the first two hash characters.
type Cache struct {
	dir string
}

// NewCache creates the cache directory if needed.
func NewCache(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	return &Cache{dir: dir}, nil
}

// Get returns the cached analysis for hash, or (nil, false) on a miss.
// Corrupt entries are treated as misses and removed.
func (c *Cache) Get(hash string) (*FileAnalysis, bool) {
	path, err := c.entryPath(hash)
	if err != nil {
		return nil, false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	var analysis FileAnalysis
	if err := json.Unmarshal(data, &analysis); err != nil {
		_ = os.Remove(path)
		return nil, false
	}
	return &analysis, true
}

// Put stores an analysis under its content hash.
func (c *Cache) Put(analysis *FileAnalysis) error {
	path, err := c.entryPath(analysis.Hash)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating cache fanout directory: %w", err)
	}
	data, err := json.Marshal(analysis)
	if err != nil {
		return fmt.Errorf("encoding cache entry: %w", err)
	}

	// Write-then-rename keeps readers from seeing partial entries.
	tmp, err := os.CreateTemp(filepath.Dir(path), ".entry-*")
	if err != nil {
		return fmt.Errorf("creating cache temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("writing cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("closing cache temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("installing cache entry: %w", err)
	}
	return nil
}

// Clear removes all cached entries.
func (c *Cache) Clear() error {
	if err := os.RemoveAll(c.dir); err != nil {
		return fmt.Errorf("clearing cache: %w", err)
	}
	return os.MkdirAll(c.dir, 0755)
}

func (c *Cache) entryPath(hash string) (string, error) {
	if len(hash) < 3 {
		return "", fmt.Errorf("invalid content hash %q", hash)
	}
	return filepath.Join(c.dir, hash[:2], hash+".json"), nil
}
