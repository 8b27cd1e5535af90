package registry

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// lastUpdatedLayout is the timestamp layout of metadata.lastUpdated.
const lastUpdatedLayout = "2006-01-02T15:04:05"

// Load reads a registry file. A missing file yields an empty registry.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read registry: %w", err)
	}

	legalRegistry := New()
	if err := json.Unmarshal(data, legalRegistry); err != nil {
		return nil, fmt.Errorf("failed to parse registry %s: %w", path, err)
	}
	if legalRegistry.Articles == nil {
		legalRegistry.Articles = make(map[string]Entry)
	}
	return legalRegistry, nil
}

// Save rewrites the registry file through a temporary file in the same
// directory, so readers never observe a partial document.
func Save(path string, legalRegistry *Registry) error {
	data, err := encode(legalRegistry, "  ")
	if err != nil {
		return fmt.Errorf("failed to encode registry: %w", err)
	}

	directory := filepath.Dir(path)
	if err := os.MkdirAll(directory, 0o755); err != nil {
		return fmt.Errorf("failed to create registry directory: %w", err)
	}

	temporary, err := os.CreateTemp(directory, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary registry file: %w", err)
	}
	temporaryPath := temporary.Name()
	defer os.Remove(temporaryPath)

	if _, err := temporary.Write(data); err != nil {
		temporary.Close()
		return fmt.Errorf("failed to write registry: %w", err)
	}
	if err := temporary.Chmod(0o644); err != nil {
		temporary.Close()
		return fmt.Errorf("failed to set registry permissions: %w", err)
	}
	if err := temporary.Close(); err != nil {
		return fmt.Errorf("failed to close registry: %w", err)
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		return fmt.Errorf("failed to replace registry: %w", err)
	}
	return nil
}

// ComputeMetadata summarizes a set of entries.
func ComputeMetadata(articles map[string]Entry, now time.Time) Metadata {
	valid := 0
	for _, entry := range articles {
		if entry.Valid() {
			valid++
		}
	}

	coverage := 0.0
	if len(articles) > 0 {
		coverage = float64(valid) / float64(len(articles)) * 100
	}

	return Metadata{
		Checksum:      ArticlesChecksum(articles),
		Coverage:      coverage,
		LastUpdated:   now.Format(lastUpdatedLayout),
		TotalArticles: len(articles),
		ValidArticles: valid,
		Version:       SchemaVersion,
	}
}

// ArticlesChecksum hashes the canonical JSON of the articles section.
func ArticlesChecksum(articles map[string]Entry) string {
	if articles == nil {
		articles = map[string]Entry{}
	}
	data, err := encode(articles, "")
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:12]
}

// encode marshals without escaping HTML characters, as the frontend file has
// always been written. Map keys come out sorted.
func encode(value any, indent string) ([]byte, error) {
	var buffer bytes.Buffer
	encoder := json.NewEncoder(&buffer)
	encoder.SetEscapeHTML(false)
	if indent != "" {
		encoder.SetIndent("", indent)
	}
	if err := encoder.Encode(value); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}
