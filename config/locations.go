package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/aluiziolira/idealista-price-trends/models"
	"github.com/aluiziolira/idealista-price-trends/parser"
)

// DefaultLocations is used when no locations file is configured.
// IDs extracted with https://igolaizola.github.io/idealista-scraper/
func DefaultLocations() []models.Location {
	return []models.Location{
		{Name: "Tres Cantos", ID: "0-EU-ES-28-01-001-903"},
		{Name: "Colmenar Viejo", ID: "0-EU-ES-28-01-009-045"},
	}
}

// LoadLocations reads a YAML mapping of location name to location ID,
// keeping the order of the document. An empty path yields DefaultLocations.
func LoadLocations(path string) ([]models.Location, error) {
	if path == "" {
		return DefaultLocations(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read locations: %w", err)
	}
	return ParseLocations(data)
}

// ParseLocations decodes a YAML mapping such as
//
//	Tres Cantos: 0-EU-ES-28-01-001-903
//	Colmenar Viejo: 0-EU-ES-28-01-009-045
func ParseLocations(data []byte) ([]models.Location, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, fmt.Errorf("locations file is empty")
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("locations must be a mapping of name to location id (line %d)", root.Line)
	}

	seen := make(map[string]struct{}, len(root.Content)/2)
	locations := make([]models.Location, 0, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, value := root.Content[i], root.Content[i+1]
		if value.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("location %q: id must be a string (line %d)", key.Value, value.Line)
		}

		loc := models.Location{
			Name: parser.NormalizeText(key.Value),
			ID:   strings.TrimSpace(value.Value),
		}
		if err := parser.ValidateLocation(loc); err != nil {
			return nil, fmt.Errorf("line %d: %w", key.Line, err)
		}
		if _, dup := seen[loc.Name]; dup {
			return nil, fmt.Errorf("line %d: duplicate location %q", key.Line, loc.Name)
		}
		seen[loc.Name] = struct{}{}
		locations = append(locations, loc)
	}

	if len(locations) == 0 {
		return nil, fmt.Errorf("locations file defines no locations")
	}
	return locations, nil
}
