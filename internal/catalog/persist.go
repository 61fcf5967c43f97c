package catalog

import (
	"encoding/json"
	"os"

	"github.com/skepa-db/skepadb/internal/pager"
)

// Load reads the catalog snapshot at path, returning a fresh empty
// catalog if the file does not exist yet (first open of a new database
// directory).
func Load(path string) (*Catalog, error) {
	data, err := pager.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(), nil
		}
		return nil, err
	}
	c := &Catalog{}
	if err := json.Unmarshal(data, c); err != nil {
		return nil, err
	}
	c.OnLoad()
	return c, nil
}

// Save rewrites the catalog snapshot atomically.
func (c *Catalog) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return pager.WriteAtomic(path, data, 0o644)
}
