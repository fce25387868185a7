// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package directory provides access to the Gluu directory store: the LDAP
// tree holding OpenID clients, custom scripts and the configuration flags
// that switch services on.
package directory

import (
	"context"

	"github.com/juju/errors"
)

// Unavailable is returned when the directory store cannot be reached or
// queried.
const Unavailable = errors.ConstError("directory unavailable")

// Well known parts of the Gluu tree.
const (
	ClientsBase         = "ou=clients,o=gluu"
	ScriptsBase         = "ou=scripts,o=gluu"
	ConfigurationDN     = "ou=configuration,o=gluu"
	AuthConfigurationDN = "ou=oxauth,ou=configuration,o=gluu"
	SchemaDN            = "cn=schema"
)

// Entry is a single directory entry returned by a search.
type Entry struct {
	DN         string
	Attributes map[string][]string
}

// Get returns the first value of attr, or "" when absent.
func (e Entry) Get(attr string) string {
	if values := e.Attributes[attr]; len(values) > 0 {
		return values[0]
	}
	return ""
}

// Store is the set of directory operations the installer needs.
type Store interface {
	// Search returns the entries below base that match filter. A missing
	// base yields no entries rather than an error.
	Search(ctx context.Context, base, filter string, attrs ...string) ([]Entry, error)

	// ImportLDIF applies the records of each LDIF file in turn. Entries
	// that already exist are left alone.
	ImportLDIF(ctx context.Context, paths ...string) error

	// ImportSchema applies a schema LDIF to the server schema.
	ImportSchema(ctx context.Context, path string) error

	// Rebind re-authenticates the connection, so that schema changes are
	// visible to it.
	Rebind(ctx context.Context) error

	// EnableService sets a service flag on the Gluu configuration entry.
	EnableService(ctx context.Context, flag string) error

	// EnableScript enables the custom script with the given inum.
	EnableScript(ctx context.Context, inum string) error

	// SetAuthConfDynamic merges updates into the oxAuth dynamic
	// configuration.
	SetAuthConfDynamic(ctx context.Context, updates map[string]interface{}) error

	// Close releases the connection.
	Close() error
}
