// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package keystore produces the signing key container used by the RADIUS
// server to sign its OpenID client assertions, together with the public
// JSON Web Key Set describing the keys in it.
package keystore

import (
	"context"
	"fmt"

	"github.com/juju/errors"
	"github.com/juju/loggo"
)

var logger = loggo.GetLogger("radius.keystore")

// DefaultAlgorithms are the signature algorithms a key set is generated for.
var DefaultAlgorithms = []string{"RS256", "RS384", "RS512", "ES256", "ES384", "ES512"}

// MinPassphraseLength is the shortest passphrase a key container accepts.
const MinPassphraseLength = 6

// Generator writes a fresh passphrase protected key container to path and
// returns the textual public key set for it.
type Generator interface {
	Generate(ctx context.Context, path, passphrase string) (string, error)
}

// Loader reads back the public key set of an existing container.
type Loader interface {
	Load(ctx context.Context, path, passphrase string) (string, error)
}

// KeyGenerationError is returned when no key container could be produced.
// Output carries whatever the generator printed, for the operator.
type KeyGenerationError struct {
	Path   string
	Output string
	Err    error
}

func (e *KeyGenerationError) Error() string {
	msg := fmt.Sprintf("generating keystore %q: %v", e.Path, e.Err)
	if e.Output != "" {
		msg += "\n" + e.Output
	}
	return msg
}

func (e *KeyGenerationError) Unwrap() error {
	return e.Err
}

func validatePassphrase(path, passphrase string) error {
	if len(passphrase) < MinPassphraseLength {
		return &KeyGenerationError{
			Path: path,
			Err:  errors.NotValidf("passphrase shorter than %d characters", MinPassphraseLength),
		}
	}
	return nil
}
