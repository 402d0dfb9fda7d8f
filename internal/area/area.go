// Package area holds the static catalog of industrial areas. Areas are
// configuration, not mutable entities: each carries its reference imagery
// and the backing plot table used by the registry.
package area

import "fmt"

type ID string

const (
	Area1 ID = "area-1"
	Area2 ID = "area-2"
	Area3 ID = "area-3"
)

// Config describes one industrial area.
type Config struct {
	ID           ID
	Name         string
	OfficialMap  string
	SatelliteMap string
	PlotTable    string
}

// catalog is the single area -> configuration lookup. The plot table names
// replace the per-call collection branching the legacy system did.
var catalog = map[ID]Config{
	Area1: {
		ID:           Area1,
		Name:         "Industrial Area 1",
		OfficialMap:  "area-1/official_map.jpg",
		SatelliteMap: "area-1/satellite_map.jpg",
		PlotTable:    "plots_area1",
	},
	Area2: {
		ID:           Area2,
		Name:         "Industrial Area 2",
		OfficialMap:  "area-2/official_map.jpg",
		SatelliteMap: "area-2/satellite_map.jpg",
		PlotTable:    "plots_area2",
	},
	Area3: {
		ID:           Area3,
		Name:         "Industrial Area 3",
		OfficialMap:  "area-3/official_map.jpg",
		SatelliteMap: "area-3/satellite_map.jpg",
		PlotTable:    "plots_area3",
	},
}

var ordered = []ID{Area1, Area2, Area3}

// Lookup returns the configuration for an area id.
func Lookup(id ID) (Config, error) {
	cfg, ok := catalog[id]
	if !ok {
		return Config{}, fmt.Errorf("unknown area %q", id)
	}
	return cfg, nil
}

// Valid reports whether id names a configured area.
func Valid(id ID) bool {
	_, ok := catalog[id]
	return ok
}

// AllIDs returns every configured area id in display order.
func AllIDs() []ID {
	ids := make([]ID, len(ordered))
	copy(ids, ordered)
	return ids
}

// All returns every area configuration in display order.
func All() []Config {
	configs := make([]Config, 0, len(ordered))
	for _, id := range ordered {
		configs = append(configs, catalog[id])
	}
	return configs
}
