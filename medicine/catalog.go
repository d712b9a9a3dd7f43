package medicine

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"git.0xdad.com/tblyler/mymed/apperr"
)

// DefaultResults listed when searching without a term
const DefaultResults = 10

//go:embed catalog.json
var catalogJSON []byte

// Medicine known to the catalog
type Medicine struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Category    string `json:"category"`
	Description string `json:"description"`
}

// Catalog of medicines in a stable order
type Catalog struct {
	medicines []Medicine
}

// Load the embedded catalog
func Load() (*Catalog, error) {
	var medicines []Medicine
	if err := json.Unmarshal(catalogJSON, &medicines); err != nil {
		return nil, fmt.Errorf("failed to decode medicine catalog: %w", err)
	}

	return &Catalog{medicines: medicines}, nil
}

// All medicines
func (c *Catalog) All() []Medicine {
	return append([]Medicine(nil), c.medicines...)
}

// Get a medicine by id
func (c *Catalog) Get(id string) (Medicine, error) {
	for _, m := range c.medicines {
		if m.ID == id {
			return m, nil
		}
	}

	return Medicine{}, fmt.Errorf("%w: medicine %s", apperr.ErrNotFound, id)
}

// Search name, category and description case insensitively. A blank term
// lists the first DefaultResults medicines.
func (c *Catalog) Search(term string) []Medicine {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		n := DefaultResults
		if n > len(c.medicines) {
			n = len(c.medicines)
		}

		return append([]Medicine(nil), c.medicines[:n]...)
	}

	var found []Medicine
	for _, m := range c.medicines {
		if strings.Contains(strings.ToLower(m.Name), term) ||
			strings.Contains(strings.ToLower(m.Category), term) ||
			strings.Contains(strings.ToLower(m.Description), term) {
			found = append(found, m)
		}
	}

	return found
}
