// Package registry binds each modality to its vector index, store namespace and dimensions.
package registry

import (
	"sort"
	"strings"

	"github.com/hyperjump/kioku/internal/vector"
	kerr "github.com/hyperjump/kioku/pkg/errors"
)

// Kind is the shape of a modality's embeddings.
type Kind string

const (
	KindText       Kind = "text"
	KindMultimodal Kind = "multimodal"
)

// Modality is the static configuration of one modality.
type Modality struct {
	Name string
	Kind Kind
	// Dimension is the full embedding length. For multimodal it is TextDimension + image length.
	Dimension       int
	TextDimension   int
	InitialCapacity int
	Index           vector.Index

	namespace string
}

// Namespace returns the record store namespace, "{prefix}:{name}".
func (m *Modality) Namespace() string {
	return m.namespace
}

// ImageDimension returns the image segment length (0 for text modalities).
func (m *Modality) ImageDimension() int {
	if m.Kind != KindMultimodal {
		return 0
	}
	return m.Dimension - m.TextDimension
}

// Registry is an immutable set of validated modalities.
type Registry struct {
	prefix     string
	modalities map[string]*Modality
}

// New validates every modality and builds the registry. prefix is the namespace prefix.
func New(prefix string, modalities []Modality) (*Registry, error) {
	if strings.TrimSpace(prefix) == "" {
		return nil, invalid("namespace prefix must not be empty")
	}
	if len(modalities) == 0 {
		return nil, invalid("at least one modality must be configured")
	}
	r := &Registry{prefix: prefix, modalities: make(map[string]*Modality, len(modalities))}
	for i := range modalities {
		m := modalities[i]
		if err := validate(&m); err != nil {
			return nil, kerr.With(err, kerr.FieldModality(m.Name))
		}
		if _, dup := r.modalities[m.Name]; dup {
			return nil, invalid("duplicate modality", kerr.FieldModality(m.Name))
		}
		m.namespace = prefix + ":" + m.Name
		r.modalities[m.Name] = &m
	}
	return r, nil
}

func validate(m *Modality) error {
	switch {
	case strings.TrimSpace(m.Name) == "":
		return invalid("modality name must not be empty")
	case m.Kind != KindText && m.Kind != KindMultimodal:
		return invalid("modality kind must be text or multimodal", kerr.Field("kind", string(m.Kind)))
	case m.Dimension <= 0:
		return invalid("modality dimension must be positive", kerr.Field("dimension", m.Dimension))
	case m.InitialCapacity <= 0:
		return invalid("initial capacity must be positive", kerr.Field("initial_capacity", m.InitialCapacity))
	case m.Index == nil:
		return invalid("modality has no vector index")
	}
	if m.Kind == KindMultimodal {
		if m.TextDimension <= 0 || m.TextDimension >= m.Dimension {
			return invalid("multimodal text dimension must be between 0 and dimension",
				kerr.Field("text_dimension", m.TextDimension), kerr.Field("dimension", m.Dimension))
		}
	} else {
		m.TextDimension = m.Dimension
	}
	return nil
}

func invalid(msg string, fields ...kerr.Attr) error {
	return kerr.New(kerr.CodeConfigValidateInvalidValue, msg, fields...)
}

// Lookup returns the modality named name, or a configuration error if it is not registered.
func (r *Registry) Lookup(name string) (*Modality, error) {
	m, ok := r.modalities[name]
	if !ok {
		return nil, kerr.New(kerr.CodeConfigModalityNotFound, "unknown modality",
			kerr.FieldModality(name), kerr.Field("known", strings.Join(r.Names(), ",")))
	}
	return m, nil
}

// Names returns the registered modality names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.modalities))
	for name := range r.modalities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Prefix returns the namespace prefix.
func (r *Registry) Prefix() string {
	return r.prefix
}
