package signature

import (
	_ "embed"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/thebtf/tasteid/pkg/models"
)

//go:embed vocabulary.yaml
var defaultVocabularyYAML []byte

// Archetype is a named prototype signature users are classified against.
type Archetype struct {
	ID        models.ArchetypeID
	Name      string
	Prototype models.ListeningSignature // normalized to sum to 1
}

// Vocabulary maps vibe tags onto signature dimensions and holds the archetype table.
type Vocabulary struct {
	vibes      map[string]models.ListeningSignature
	archetypes []Archetype
	Version    int
}

type vocabularyFile struct {
	Vibes      map[string]map[string]float64 `yaml:"vibes"`
	Archetypes []struct {
		ID        string             `yaml:"id"`
		Name      string             `yaml:"name"`
		Prototype map[string]float64 `yaml:"prototype"`
	} `yaml:"archetypes"`
	Version int `yaml:"version"`
}

// LoadVocabulary parses a vocabulary table. Dimension names must be canonical.
func LoadVocabulary(data []byte) (*Vocabulary, error) {
	var file vocabularyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse vocabulary: %w", err)
	}
	if len(file.Archetypes) == 0 {
		return nil, fmt.Errorf("vocabulary has no archetypes")
	}

	v := &Vocabulary{
		Version: file.Version,
		vibes:   make(map[string]models.ListeningSignature, len(file.Vibes)),
	}
	for tag, weights := range file.Vibes {
		sig, err := signatureFromMap(weights)
		if err != nil {
			return nil, fmt.Errorf("vibe %q: %w", tag, err)
		}
		v.vibes[tag] = sig
	}

	seen := make(map[string]bool, len(file.Archetypes))
	for _, a := range file.Archetypes {
		if a.ID == "" || seen[a.ID] {
			return nil, fmt.Errorf("archetype id %q is empty or duplicated", a.ID)
		}
		seen[a.ID] = true
		proto, err := signatureFromMap(a.Prototype)
		if err != nil {
			return nil, fmt.Errorf("archetype %q: %w", a.ID, err)
		}
		if proto.Sum() <= 0 {
			return nil, fmt.Errorf("archetype %q has an empty prototype", a.ID)
		}
		v.archetypes = append(v.archetypes, Archetype{
			ID:        models.ArchetypeID(a.ID),
			Name:      a.Name,
			Prototype: proto.Normalized(),
		})
	}
	sort.Slice(v.archetypes, func(i, j int) bool {
		return v.archetypes[i].ID < v.archetypes[j].ID
	})

	return v, nil
}

// DefaultVocabulary returns the vocabulary compiled into the binary.
func DefaultVocabulary() *Vocabulary {
	v, err := LoadVocabulary(defaultVocabularyYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded vocabulary is invalid: %v", err))
	}
	return v
}

// VibeWeights returns the dimension weights for a normalized vibe tag.
func (v *Vocabulary) VibeWeights(tag string) (models.ListeningSignature, bool) {
	w, ok := v.vibes[tag]
	return w, ok
}

// Archetypes returns the archetype table ordered by id.
func (v *Vocabulary) Archetypes() []Archetype {
	return v.archetypes
}

func signatureFromMap(weights map[string]float64) (models.ListeningSignature, error) {
	var sig models.ListeningSignature
	for name, w := range weights {
		dim := models.SignatureDimension(name)
		if !isDimension(dim) {
			return sig, fmt.Errorf("unknown dimension %q", name)
		}
		if w < 0 {
			return sig, fmt.Errorf("negative weight for %q", name)
		}
		sig.Add(dim, w)
	}
	return sig, nil
}

func isDimension(d models.SignatureDimension) bool {
	for _, dim := range models.SignatureDimensions {
		if dim == d {
			return true
		}
	}
	return false
}
