// Package connect picks a registry backend from a registry URL.
package connect

import (
	"fmt"
	"net/url"

	"github.com/diamondlab/pricer/pkg/registry"
	"github.com/diamondlab/pricer/pkg/registry/rest"
	"github.com/diamondlab/pricer/pkg/registry/sql"
)

// Open returns a REST client for http(s) URLs and an embedded store for
// database URLs.
func Open(registryURL, token, artifactRoot string) (registry.Registry, error) {
	u, err := url.Parse(registryURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse registry URL %q: %w", registryURL, err)
	}

	switch u.Scheme {
	case "http", "https":
		return rest.NewClient(registryURL, token), nil
	case "sqlite", "postgres", "postgresql", "mysql", "sqlserver":
		return sql.NewStore(registryURL, artifactRoot)
	default:
		return nil, fmt.Errorf("unsupported registry URL scheme %q", u.Scheme)
	}
}
