// Package backup exports the collection of applications to a file and reads it back.
// JSON output is the persisted envelope, indented; YAML carries the same structure.
package backup

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/umputun/jobtrack/app/tracker"
)

// Format of the backup file
type Format string

// supported formats
const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat converts a format name, case-insensitive. Blank means json.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unsupported backup format %q", s)
}

// FormatFromPath picks the format by file extension
func FormatFromPath(path string) (Format, error) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return "", fmt.Errorf("can't detect backup format of %q, no extension", path)
	}
	return ParseFormat(ext)
}

// ContentType returns the mime type for http responses
func (f Format) ContentType() string {
	if f == FormatYAML {
		return "application/yaml; charset=utf-8"
	}
	return "application/json; charset=utf-8"
}

// Export writes apps to w wrapped in the current envelope
func Export(w io.Writer, apps []tracker.Application, format Format) error {
	if apps == nil {
		apps = []tracker.Application{}
	}
	env := tracker.Envelope{Version: tracker.SchemaVersion, Jobs: apps}

	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(env); err != nil {
			return fmt.Errorf("failed to write json backup: %w", err)
		}
		return nil
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(env); err != nil {
			return fmt.Errorf("failed to write yaml backup: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("failed to flush yaml backup: %w", err)
		}
		return nil
	}
	return fmt.Errorf("unsupported backup format %q", format)
}

// Import reads a backup from r. JSON accepts everything the store accepts, the legacy bare array included.
func Import(r io.Reader, format Format) ([]tracker.Application, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup: %w", err)
	}

	switch format {
	case FormatJSON:
		apps, err := tracker.Decode(string(data))
		if err != nil {
			return nil, fmt.Errorf("invalid json backup: %w", err)
		}
		return apps, nil
	case FormatYAML:
		var env tracker.Envelope
		if err := yaml.Unmarshal(data, &env); err != nil {
			return nil, fmt.Errorf("invalid yaml backup: %w", err)
		}
		if err := env.Validate(); err != nil {
			return nil, fmt.Errorf("invalid yaml backup: %w", err)
		}
		if env.Jobs == nil {
			env.Jobs = []tracker.Application{}
		}
		return env.Jobs, nil
	}
	return nil, fmt.Errorf("unsupported backup format %q", format)
}
