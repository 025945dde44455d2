package types

import "strings"

// TableID is the catalog identity of a table.
type TableID struct {
	Catalog string `json:"catalog" yaml:"catalog"`
	Name    string `json:"name" yaml:"name"`
}

func (id TableID) String() string {
	if id.Catalog == "" {
		return id.Name
	}
	return id.Catalog + "." + id.Name
}

func (id TableID) IsZero() bool {
	return id.Catalog == "" && id.Name == ""
}

// ParseTableID parses "catalog.name" or a bare "name" that gets the default catalog.
func ParseTableID(s, defaultCatalog string) TableID {
	catalog, name, ok := strings.Cut(s, ".")
	if !ok {
		return TableID{Catalog: defaultCatalog, Name: s}
	}
	return TableID{Catalog: catalog, Name: name}
}
