// Package backup serializes the whole store to a flat JSON bundle and
// restores it. The bundle format is the interchange contract: keys are the
// unprefixed storage keys, values the raw arrays, and export→import must
// round-trip to an identical store.
package backup

import (
	"context"
	"encoding/json"
	"fmt"

	"tardiness/internal/arrival"
	"tardiness/internal/kvstore"
	"tardiness/internal/schedule"
	"tardiness/internal/student"
)

// ImportResult reports the outcome of an Import. A malformed or
// shape-invalid bundle yields Success=false and leaves the store untouched.
type ImportResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Manager exports and imports the full data set through the store.
type Manager struct {
	store kvstore.Store
}

// NewManager creates a backup manager over the store.
func NewManager(store kvstore.Store) *Manager {
	return &Manager{store: store}
}

// Export returns the whole namespace as one JSON object.
func (m *Manager) Export(ctx context.Context) ([]byte, error) {
	data, err := m.store.ExportAll(ctx)
	if err != nil {
		return nil, err
	}
	return json.Marshal(data)
}

// validateShape checks that the known keys hold arrays of the right record
// type. Import is all-or-nothing: one bad key rejects the whole bundle.
func validateShape(key string, raw json.RawMessage) error {
	switch key {
	case kvstore.KeyClasses:
		var classes []schedule.Class
		if err := json.Unmarshal(raw, &classes); err != nil {
			return fmt.Errorf("key %q: %w", key, err)
		}
	case kvstore.KeyStudents:
		var students []student.Student
		if err := json.Unmarshal(raw, &students); err != nil {
			return fmt.Errorf("key %q: %w", key, err)
		}
	case kvstore.KeyArrivals:
		var arrivals []arrival.Arrival
		if err := json.Unmarshal(raw, &arrivals); err != nil {
			return fmt.Errorf("key %q: %w", key, err)
		}
	}
	return nil
}

// Import parses and validates a bundle, then overwrites the store. Parse and
// shape failures come back inside the result, not as an error; the error
// return is reserved for store write failures.
func (m *Manager) Import(ctx context.Context, payload []byte) (ImportResult, error) {
	var data map[string]json.RawMessage
	if err := json.Unmarshal(payload, &data); err != nil {
		return ImportResult{Error: fmt.Sprintf("invalid bundle: %v", err)}, nil
	}
	for key, raw := range data {
		if err := validateShape(key, raw); err != nil {
			return ImportResult{Error: err.Error()}, nil
		}
	}
	if err := m.store.ImportAll(ctx, data); err != nil {
		return ImportResult{}, err
	}
	return ImportResult{Success: true}, nil
}
