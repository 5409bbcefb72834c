package model

import (
	"encoding/json"
	"fmt"
)

// Version1 is the only serialized forest format so far.
const Version1 = "forest.v1"

// envelope wraps a serialized forest with a format version so a loader can
// refuse blobs it does not understand instead of misreading them.
type envelope struct {
	Version   string  `json:"version"`
	NFeatures int     `json:"n_features"`
	Trees     []*Tree `json:"trees"`
}

// Marshal serializes a fitted forest to its versioned JSON form.
func Marshal(f *Forest) ([]byte, error) {
	return json.Marshal(envelope{
		Version:   Version1,
		NFeatures: f.NFeatures,
		Trees:     f.Trees,
	})
}

// Unmarshal deserializes a forest, rejecting unknown format versions and
// structurally empty models.
func Unmarshal(data []byte) (*Forest, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode model blob: %w", err)
	}
	if env.Version != Version1 {
		return nil, fmt.Errorf("unsupported model format version %q", env.Version)
	}
	if env.NFeatures <= 0 || len(env.Trees) == 0 {
		return nil, fmt.Errorf("model blob is empty")
	}
	return &Forest{NFeatures: env.NFeatures, Trees: env.Trees}, nil
}
