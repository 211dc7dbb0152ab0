package fetch

import (
	"fmt"
	"strings"

	"windtiler/internal/tileid"
)

// Naming maps a tile to the archive file name a dataset publishes it under.
type Naming func(tileid.ID) string

// ZIPNaming is the ALS point-cloud archive convention: als_33{x}-{y}.zip.
func ZIPNaming(id tileid.ID) string {
	return fmt.Sprintf("als_33%d-%d.zip", id.X, id.Y)
}

// LAZNaming is the DOM point-cloud convention: dom_33{x}_{y}.laz.
func LAZNaming(id tileid.ID) string {
	return fmt.Sprintf("dom_33%d_%d.laz", id.X, id.Y)
}

// NamingByName resolves a dataset name from the configuration.
func NamingByName(name string) (Naming, error) {
	switch strings.ToLower(name) {
	case "zip", "als":
		return ZIPNaming, nil
	case "laz", "dom":
		return LAZNaming, nil
	}
	return nil, fmt.Errorf("unknown archive naming %q (want zip or laz)", name)
}
