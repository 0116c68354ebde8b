// Package cli provides output formatting for the kioku command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/kioku/internal/models"
	kerr "github.com/hyperjump/kioku/pkg/errors"
	"github.com/hyperjump/kioku/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(strings.TrimSpace(s))) {
	case OutputText, "":
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", kerr.New(kerr.CodeCLIInputInvalid, fmt.Sprintf("unknown output format %q; use text or json", s))
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteQueryResult writes a query result to w in the given format.
func WriteQueryResult(w io.Writer, out *models.QueryOutput, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, out)
	}
	source := "miss (generated)"
	if out.IsHit {
		source = "hit"
	}
	fmt.Fprintf(w, "\n[%s] %s in %dms (request %s)\n", out.Modality, source, out.QueryTime, out.RequestID)
	if out.IsHit && out.BestCandidate != nil {
		fmt.Fprintf(w, "Matched #%d: %q", out.BestCandidate.ID, utils.Truncate(out.BestCandidate.Query, 80))
		if out.BestCandidate.Image != "" {
			fmt.Fprintf(w, " with image %s", out.BestCandidate.Image)
		}
		fmt.Fprintf(w, "\nScore: text %.4f", out.TextScore)
		if out.BestCandidate.Image != "" {
			fmt.Fprintf(w, ", image %.4f", out.ImageScore)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "%s\n\n", out.Text)
	return nil
}

// WriteStatus writes server status to w in the given format.
func WriteStatus(w io.Writer, status *models.StatusResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, status)
	}
	fmt.Fprintf(w, "store:                %s\n", status.Store)
	if status.DiskBytes > 0 {
		fmt.Fprintf(w, "disk_usage_bytes:     %d   # record store on disk\n", status.DiskBytes)
	}
	fmt.Fprintf(w, "top_k:                %d\n", status.TopK)
	fmt.Fprintf(w, "similarity_threshold: %.4f\n", status.Threshold)
	for _, m := range status.Modalities {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "# modality %s (%s)\n", m.Name, m.Kind)
		fmt.Fprintf(w, "namespace:            %s\n", m.Namespace)
		fmt.Fprintf(w, "dimension:            %d\n", m.Dimension)
		fmt.Fprintf(w, "index_type:           %s\n", m.IndexType)
		if !m.Initialized {
			fmt.Fprintf(w, "index:                not loaded\n")
			continue
		}
		fmt.Fprintf(w, "count:                %d   # vectors in index\n", m.Count)
		fmt.Fprintf(w, "capacity:             %d\n", m.Capacity)
		fmt.Fprintf(w, "next_id:              %d\n", m.NextID)
	}
	return nil
}
