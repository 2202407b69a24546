package assets

import (
	_ "embed"

	"github.com/shortontech/showfor/internal/showfor"
)

// The default product catalog, compiled into the binary.
//
//go:embed catalog.yaml
var CatalogYAML []byte

// Catalog parses the embedded catalog. Each call returns a fresh copy.
func Catalog() (*showfor.Catalog, error) {
	return showfor.ParseCatalogYAML(CatalogYAML)
}
