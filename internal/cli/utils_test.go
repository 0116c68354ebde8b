package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/hyperjump/kioku/internal/models"
)

func TestWriteQueryResult_JSON(t *testing.T) {
	out := &models.QueryOutput{
		RequestID: "req-1",
		Modality:  "text",
		Text:      "cached answer",
		IsHit:     true,
		BestCandidate: &models.EmbeddingRecord{
			ID: 3, Query: "what is kioku", Response: "cached answer",
		},
		TextScore: 0.93,
		QueryTime: 4,
	}
	var buf bytes.Buffer
	if err := WriteQueryResult(&buf, out, OutputJSON); err != nil {
		t.Fatalf("WriteQueryResult(json): %v", err)
	}
	var decoded models.QueryOutput
	if err := json.NewDecoder(&buf).Decode(&decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.RequestID != "req-1" || !decoded.IsHit || decoded.BestCandidate.ID != 3 {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestWriteQueryResult_textHit(t *testing.T) {
	out := &models.QueryOutput{
		RequestID: "req-2",
		Modality:  "multimodal",
		Text:      "a cat on a sofa",
		IsHit:     true,
		BestCandidate: &models.EmbeddingRecord{
			ID: 7, Query: "describe", Image: "cat.png",
		},
		TextScore:  0.99,
		ImageScore: 0.97,
		QueryTime:  12,
	}
	var buf bytes.Buffer
	if err := WriteQueryResult(&buf, out, OutputText); err != nil {
		t.Fatal(err)
	}
	got := buf.String()
	for _, sub := range []string{"[multimodal] hit", "12ms", "req-2", "Matched #7", "cat.png", "text 0.9900", "image 0.9700", "a cat on a sofa"} {
		if !strings.Contains(got, sub) {
			t.Errorf("text output missing %q:\n%s", sub, got)
		}
	}
}

func TestWriteQueryResult_textMiss(t *testing.T) {
	out := &models.QueryOutput{RequestID: "req-3", Modality: "text", Text: "fresh answer"}
	var buf bytes.Buffer
	if err := WriteQueryResult(&buf, out, OutputText); err != nil {
		t.Fatal(err)
	}
	got := buf.String()
	if !strings.Contains(got, "miss (generated)") || !strings.Contains(got, "fresh answer") {
		t.Errorf("unexpected output:\n%s", got)
	}
	if strings.Contains(got, "Matched") {
		t.Errorf("miss should not print a match:\n%s", got)
	}
}

func TestWriteStatus(t *testing.T) {
	status := &models.StatusResponse{
		Store:     "sqlite",
		DiskBytes: 4096,
		TopK:      5,
		Threshold: 0.8,
		Modalities: []models.ModalityStats{
			{Name: "multimodal", Kind: "multimodal", Namespace: "embeddings:multimodal", Dimension: 1024, IndexType: "hnsw"},
			{Name: "text", Kind: "text", Namespace: "embeddings:text", Dimension: 768, IndexType: "hnsw",
				Count: 2, Capacity: 1000, NextID: 2, Initialized: true},
		},
	}
	var buf bytes.Buffer
	if err := WriteStatus(&buf, status, OutputText); err != nil {
		t.Fatal(err)
	}
	got := buf.String()
	for _, sub := range []string{"store:                sqlite", "4096", "top_k:                5", "0.8000",
		"# modality text (text)", "not loaded", "count:                2", "capacity:             1000"} {
		if !strings.Contains(got, sub) {
			t.Errorf("status output missing %q:\n%s", sub, got)
		}
	}

	buf.Reset()
	if err := WriteStatus(&buf, status, OutputJSON); err != nil {
		t.Fatal(err)
	}
	var decoded models.StatusResponse
	if err := json.NewDecoder(&buf).Decode(&decoded); err != nil {
		t.Fatalf("status JSON decode: %v", err)
	}
	if len(decoded.Modalities) != 2 {
		t.Errorf("decoded modalities = %d", len(decoded.Modalities))
	}
}

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", OutputText, false},
		{"text", OutputText, false},
		{"JSON", OutputJSON, false},
		{"compact", "", true},
	}
	for _, tt := range tests {
		got, err := ParseOutputFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseOutputFormat(%q) err = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseOutputFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
