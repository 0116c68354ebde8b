// Package policy decides whether a query is a cache hit and picks the best cached candidate.
package policy

import (
	"github.com/hyperjump/kioku/internal/models"
	"github.com/hyperjump/kioku/internal/registry"
	"github.com/hyperjump/kioku/internal/vector"
	kerr "github.com/hyperjump/kioku/pkg/errors"
)

// DefaultThreshold is the similarity a candidate must exceed to be served.
const DefaultThreshold = 0.8

// Policy applies a similarity threshold. Text modalities compare whole vectors; multimodal
// modalities require both the text and the image segment to clear the threshold.
type Policy struct {
	Threshold float64
}

// Score is the similarity of one candidate to the query.
type Score struct {
	Text     float64
	Image    float64
	Accepted bool
	Skipped  bool // embedding length did not match the modality
}

// Decision is the outcome for a query. Best is nil on a miss.
type Decision struct {
	Hit        bool
	Best       *models.EmbeddingRecord
	BestRank   int // position of Best among the candidates, -1 on a miss
	TextScore  float64
	ImageScore float64
	Scores     []Score
}

// Decide scores candidates against query. Candidates are expected in index order; ties keep
// the earlier candidate.
func (p Policy) Decide(mod *registry.Modality, query []float32, candidates []*models.EmbeddingRecord) (Decision, error) {
	if len(query) != mod.Dimension {
		return Decision{}, kerr.New(kerr.CodeCacheEmbeddingSizeMismatch, "query size does not match modality dimension",
			kerr.FieldModality(mod.Name), kerr.Field("got", len(query)), kerr.Field("expected", mod.Dimension))
	}
	d := Decision{BestRank: -1, Scores: make([]Score, len(candidates))}

	var q models.SegmentedVector
	if mod.Kind == registry.KindMultimodal {
		var err error
		q, err = models.NewSegmentedVector(query, mod.TextDimension, mod.ImageDimension())
		if err != nil {
			return Decision{}, kerr.Wrap(err, kerr.CodeCacheEmbeddingSizeMismatch, "splitting query", kerr.FieldModality(mod.Name))
		}
	}

	bestValue := 0.0
	for i, c := range candidates {
		if c == nil || len(c.Embedding) != mod.Dimension {
			d.Scores[i] = Score{Skipped: true}
			continue
		}
		var s Score
		var value float64
		if mod.Kind == registry.KindMultimodal {
			cv, _ := models.NewSegmentedVector(c.Embedding, mod.TextDimension, mod.ImageDimension())
			s.Text, s.Image = vector.SegmentScores(q, cv)
			s.Accepted = s.Text > p.Threshold && s.Image > p.Threshold
			value = s.Text*s.Text + s.Image*s.Image
		} else {
			s.Text = vector.CosineSimilarity(query, c.Embedding)
			s.Accepted = s.Text > p.Threshold
			value = s.Text
		}
		d.Scores[i] = s
		if s.Accepted && (!d.Hit || value > bestValue) {
			d.Hit = true
			d.Best = c
			d.BestRank = i
			d.TextScore, d.ImageScore = s.Text, s.Image
			bestValue = value
		}
	}
	return d, nil
}
