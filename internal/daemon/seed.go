package daemon

import (
	"maps"
	"slices"

	"github.com/jmylchreest/regbus/internal/registry"
)

// Seeds maps category name to its configured key/value pairs.
type Seeds map[string]map[string]registry.Value

// SeedCommands returns insert commands for every seeded key.
// Categories and keys are visited in sorted order.
func SeedCommands(seeds Seeds) []registry.Command {
	return SeedDiff(nil, seeds)
}

// SeedDiff returns the commands that move a registry seeded with oldSeeds
// to newSeeds. Changed or added keys are inserted, keys missing from a
// category are removed and categories missing entirely are dropped.
// Keys written at runtime are only touched when their category is dropped.
func SeedDiff(oldSeeds, newSeeds Seeds) []registry.Command {
	var cmds []registry.Command

	for _, category := range slices.Sorted(maps.Keys(oldSeeds)) {
		if _, ok := newSeeds[category]; !ok {
			cmds = append(cmds, registry.Drop(category))
		}
	}

	for _, category := range slices.Sorted(maps.Keys(newSeeds)) {
		prev := oldSeeds[category]
		next := newSeeds[category]

		for _, key := range slices.Sorted(maps.Keys(prev)) {
			if _, ok := next[key]; !ok {
				cmds = append(cmds, registry.RemoveKey(category, key))
			}
		}

		for _, key := range slices.Sorted(maps.Keys(next)) {
			v := next[key]
			if old, ok := prev[key]; ok && old.Equal(v) {
				continue
			}
			cmds = append(cmds, registry.Insert(category, key, v))
		}
	}

	return cmds
}
