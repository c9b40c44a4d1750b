package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"gotibia/typefile"
	"gotibia/world"
)

// itemsYAML is the hand-editable form of the item table.
type itemsYAML struct {
	Items   []world.ItemType `yaml:"items"`
	Outfits map[uint16]int   `yaml:"outfits,omitempty"`
}

// loadItemTypes reads the item attributes from path. YAML files are
// decoded directly; anything else is taken to be a binary type file. An
// empty path gives an empty table, in which every item is a plain common
// item.
func loadItemTypes(path string) (*world.StaticTypes, error) {
	if path == "" {
		return world.NewStaticTypes(), nil
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		var doc itemsYAML
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		types := world.NewStaticTypes(doc.Items...)
		for look, n := range doc.Outfits {
			types.Outfits[look] = n
		}
		return types, nil
	}
	t, err := typefile.Load(path)
	if err != nil {
		return nil, err
	}
	logInfo("loaded %d item types (version %d) from %s", len(t.Types.Items), t.Version, path)
	return t.Types, nil
}
