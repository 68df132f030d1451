package stremio

import (
	"encoding/json"
	"strings"
)

// Manifest represents the Stremio addon manifest
type Manifest struct {
	ID          string    `json:"id"`
	Version     string    `json:"version"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Resources   []string  `json:"resources"`
	Types       []string  `json:"types"`
	Catalogs    []Catalog `json:"catalogs"`
	IDPrefixes  []string  `json:"idPrefixes,omitempty"`
}

// Catalog represents a content catalog
type Catalog struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Name string `json:"name"`
}

// NewManifest builds the addon manifest, deriving its id from name so a
// self-hosted instance can rebrand without colliding with another install.
func NewManifest(name string) *Manifest {
	if name == "" {
		name = "StreamNZB"
	}
	return &Manifest{
		ID:          "community." + slugify(name),
		Version:     "1.0.0",
		Name:        name,
		Description: "Streams triaged, health-verified Usenet releases directly into Stremio.",
		Resources:   []string{"stream"},
		Types:       []string{"movie", "series"},
		Catalogs:    []Catalog{},
		IDPrefixes:  []string{"tt", "tmdb"},
	}
}

func slugify(name string) string {
	name = strings.ToLower(name)
	name = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return -1
	}, name)
	if name == "" {
		name = "streamnzb"
	}
	return name
}

// ToJSON converts manifest to JSON
func (m *Manifest) ToJSON() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}
