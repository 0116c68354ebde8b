// Package models defines core data structures for cached records, queries, and query results.
package models

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// EmbeddingRecord is the persisted unit of cached knowledge: an embedded query and the
// response that was computed for it.
type EmbeddingRecord struct {
	ID        int64     `json:"id"`
	Query     string    `json:"query"`
	Image     string    `json:"image"`
	Embedding []float32 `json:"embedding"`
	Response  string    `json:"response"`
	Timestamp int64     `json:"timestamp"` // seconds since epoch
}

// Field returns the store field name for the record (decimal id).
func (r *EmbeddingRecord) Field() string {
	return FieldForID(r.ID)
}

// Encode serializes the record as JSON.
func (r *EmbeddingRecord) Encode() (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecodeRecord parses a JSON-encoded record.
func DecodeRecord(raw string) (*EmbeddingRecord, error) {
	var rec EmbeddingRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return &rec, nil
}

// FieldForID formats an id as a store field name.
func FieldForID(id int64) string {
	return strconv.FormatInt(id, 10)
}
