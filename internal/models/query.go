package models

import (
	"fmt"
	"strings"
)

// QueryInput is a user query: text, optionally with an image reference (path or URL).
type QueryInput struct {
	Text  string `json:"text"`
	Image string `json:"image,omitempty"`
}

// Validate ensures the query has text and trims surrounding whitespace.
func (q *QueryInput) Validate() error {
	q.Text = strings.TrimSpace(q.Text)
	q.Image = strings.TrimSpace(q.Image)
	if q.Text == "" {
		return fmt.Errorf("query text cannot be empty")
	}
	return nil
}

// IsMultimodal reports whether the query carries an image.
func (q *QueryInput) IsMultimodal() bool {
	return q.Image != ""
}

// StoreRequest is the body for inserting a precomputed record into a modality.
type StoreRequest struct {
	Query     string    `json:"query"`
	Image     string    `json:"image,omitempty"`
	Embedding []float32 `json:"embedding"`
	Response  string    `json:"response"`
}

// Validate checks that an embedding is present.
func (r *StoreRequest) Validate() error {
	if len(r.Embedding) == 0 {
		return fmt.Errorf("embedding cannot be empty")
	}
	return nil
}

// SearchRequest is the body for a raw similarity search within a modality.
type SearchRequest struct {
	Embedding []float32 `json:"embedding"`
	K         int       `json:"k,omitempty"`
}

// Validate checks the embedding and sets the default k.
func (r *SearchRequest) Validate(defaultK int) error {
	if len(r.Embedding) == 0 {
		return fmt.Errorf("embedding cannot be empty")
	}
	if r.K <= 0 {
		r.K = defaultK
	}
	if r.K > 100 {
		r.K = 100
	}
	return nil
}
