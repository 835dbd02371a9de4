package mapping

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
)

// PoolMapping associates ECB pool identifiers with their ESMA counterparts.
type PoolMapping struct {
	// Pools maps ECB pool id → pool entry.
	Pools map[string]PoolEntry `json:"pools"`
}

// PoolEntry names the ESMA side of a matched pool.
type PoolEntry struct {
	ESMAPool string `json:"esma_pool"`
}

// LoadPoolMapping reads the pool association file. A missing or malformed
// file is fatal: every matched-pool decision depends on it.
func LoadPoolMapping(path string) (*PoolMapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "mapping: read pool mapping")
	}
	var pm PoolMapping
	if err := json.Unmarshal(data, &pm); err != nil {
		return nil, eris.Wrap(err, "mapping: parse pool mapping")
	}
	if pm.Pools == nil {
		pm.Pools = map[string]PoolEntry{}
	}
	return &pm, nil
}
