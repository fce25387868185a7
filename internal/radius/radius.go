// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package radius installs the Gluu RADIUS server: it bootstraps the
// server's OpenID client identity and signing keys, renders its
// configuration and registers both with the Gluu directory and the local
// machine.
package radius

import (
	"embed"
	"io/fs"

	"github.com/juju/loggo"
)

var logger = loggo.GetLogger("radius.install")

//go:embed templates
var templates embed.FS

// Templates returns the built in RADIUS templates.
func Templates() fs.FS {
	sub, err := fs.Sub(templates, "templates")
	if err != nil {
		panic(err)
	}
	return sub
}
