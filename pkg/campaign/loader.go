package campaign

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// ModuleFile is the top-level structure of a campaign module YAML file.
//
// Example:
//
//	module:
//	  id: "lost_tomb"
//	  name: "The Lost Tomb of Karavek"
//	  world_id: "ardenvale"
//	  starting_location: "village_square"
//	locations:
//	  - id: village_square
//	    name: "Village Square"
//	    description: "A muddy square ringed by timber houses."
type ModuleFile struct {
	Module    ModuleMeta `yaml:"module"`
	Locations []Location `yaml:"locations"`
	NPCs      []NPC      `yaml:"npcs"`
	Items     []Item     `yaml:"items"`
	Quests    []Quest    `yaml:"quests"`
	Events    []Event    `yaml:"events"`
}

// ModuleMeta holds top-level metadata for a campaign module.
type ModuleMeta struct {
	// ID is the module identifier referenced by sessions.
	ID string `yaml:"id"`

	// Name is the module's display name.
	Name string `yaml:"name"`

	// Description is a free-text summary of the module.
	Description string `yaml:"description,omitempty"`

	// WorldID names the world this module belongs to. A module may be
	// reused across worlds; the empty value means world-agnostic.
	WorldID string `yaml:"world_id,omitempty"`

	// StartingLocation is where fresh sessions begin.
	StartingLocation string `yaml:"starting_location,omitempty"`
}

// LoadModuleFile reads and parses a campaign module YAML file from disk.
// Returns a descriptive error if the file cannot be opened or parsed.
func LoadModuleFile(path string) (*ModuleFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("campaign: open module file %q: %w", path, err)
	}
	defer f.Close()

	mf, err := LoadModuleFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("campaign: parse module file %q: %w", path, err)
	}
	return mf, nil
}

// LoadModuleFromReader parses module YAML from an [io.Reader].
// The reader is consumed entirely; the caller is responsible for closing it.
func LoadModuleFromReader(r io.Reader) (*ModuleFile, error) {
	var mf ModuleFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true) // reject unknown keys to catch typos in authored content
	if err := dec.Decode(&mf); err != nil {
		return nil, fmt.Errorf("campaign: decode module yaml: %w", err)
	}
	return &mf, nil
}
