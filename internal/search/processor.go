package search

import (
	"github.com/hyperjump/kioku/internal/models"
	kerr "github.com/hyperjump/kioku/pkg/errors"
)

// ProcessQuery validates the query and returns the modality it routes to: the multimodal
// modality when an image is attached, the text modality otherwise.
func ProcessQuery(query *models.QueryInput, textModality, multimodalModality string) (string, error) {
	if err := query.Validate(); err != nil {
		return "", kerr.Wrap(err, kerr.CodeQueryInputInvalid, "invalid query")
	}
	if query.IsMultimodal() {
		return multimodalModality, nil
	}
	return textModality, nil
}
