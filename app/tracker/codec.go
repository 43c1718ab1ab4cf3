package tracker

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/umputun/jobtrack/app/enums"
)

// SchemaVersion is the version of the persisted envelope written by this build
const SchemaVersion = 1

// ErrCorrupt is returned when the persisted collection can't be parsed
var ErrCorrupt = errors.New("corrupt persisted state")

// Envelope is the persisted form of the whole collection. Version 0 is the original,
// unversioned format: a bare JSON array of applications.
type Envelope struct {
	Version int           `json:"version" yaml:"version"`
	Jobs    []Application `json:"jobs" yaml:"jobs"`
}

// Validate checks the version, the id invariants and that every record has a status,
// and normalizes blank optional fields
func (e *Envelope) Validate() error {
	if e.Version < 0 || e.Version > SchemaVersion {
		return fmt.Errorf("%w: unsupported schema version %d", ErrCorrupt, e.Version)
	}
	seen := make(map[string]bool, len(e.Jobs))
	for i := range e.Jobs {
		id := e.Jobs[i].ID
		if id == "" {
			return fmt.Errorf("%w: record %d has no id", ErrCorrupt, i)
		}
		if seen[id] {
			return fmt.Errorf("%w: duplicate id %q", ErrCorrupt, id)
		}
		seen[id] = true
		if e.Jobs[i].Status == (enums.Status{}) {
			return fmt.Errorf("%w: record %q has no status", ErrCorrupt, id)
		}
		e.Jobs[i].normalizeOptionals()
	}
	return nil
}

// Encode serializes the collection into the current envelope format
func Encode(jobs []Application) (string, error) {
	if jobs == nil {
		jobs = []Application{}
	}
	data, err := json.Marshal(Envelope{Version: SchemaVersion, Jobs: jobs})
	if err != nil {
		return "", fmt.Errorf("failed to encode applications: %w", err)
	}
	return string(data), nil
}

// Decode parses a persisted blob, either the versioned envelope or the legacy bare array.
// A blank blob is an empty collection. Any parse failure wraps ErrCorrupt.
func Decode(raw string) ([]Application, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return []Application{}, nil
	}

	var env Envelope
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal([]byte(trimmed), &env.Jobs); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
	} else {
		if err := json.Unmarshal([]byte(trimmed), &env); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
	}

	if err := env.Validate(); err != nil {
		return nil, err
	}
	if env.Jobs == nil {
		env.Jobs = []Application{}
	}
	return env.Jobs, nil
}
