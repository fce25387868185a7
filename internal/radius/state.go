// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package radius

import (
	"os"

	"github.com/juju/errors"
	"github.com/juju/utils/v4"
	"gopkg.in/yaml.v3"

	"github.com/gluu/radius-setup/internal/obscure"
	"github.com/gluu/radius-setup/internal/render"
)

// State holds what has to survive between installer runs. Secrets are only
// ever kept in their obscured form.
type State struct {
	ClientID                string `yaml:"gluu-radius-client-id,omitempty"`
	ClientSecretEncoded     string `yaml:"gluu-ro-encoded-pw,omitempty"`
	KeystorePasswordEncoded string `yaml:"radius-jwt-pass,omitempty"`
	Salt                    string `yaml:"encode-salt,omitempty"`
}

// LoadState reads the state file at path. A missing file is an empty
// state, as on a fresh install.
func LoadState(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &State{}, nil
	} else if err != nil {
		return nil, errors.Trace(err)
	}
	var st State
	if err := yaml.Unmarshal(data, &st); err != nil {
		return nil, errors.Annotatef(err, "parsing state %q", path)
	}
	return &st, nil
}

// Save writes the state to path, readable by its owner only.
func (st *State) Save(path string) error {
	data, err := yaml.Marshal(st)
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Annotatef(utils.AtomicWriteFile(path, data, 0600), "saving state %q", path)
}

// Session is a single installer run. It carries the persisted State along
// with values that only live as long as the run: plaintext secrets and the
// rendering context.
type Session struct {
	*State

	// ClientSecret is the plaintext client secret, known only when it was
	// generated during this run.
	ClientSecret string

	// KeystorePassword is the plaintext keystore passphrase.
	KeystorePassword string

	// Rendering collects the template variables for this run.
	Rendering render.Context

	obscurer        *obscure.Obscurer
	configGenerated bool
}

// NewSession starts a run over st. An obscuring salt is created and
// recorded in st if it has none yet.
func NewSession(st *State) (*Session, error) {
	if st == nil {
		st = &State{}
	}
	if st.Salt == "" {
		st.Salt = obscure.NewSalt()
	}
	o, err := obscure.New(st.Salt)
	if err != nil {
		return nil, errors.Annotate(err, "loading obscuring salt")
	}
	return &Session{
		State:     st,
		Rendering: make(render.Context),
		obscurer:  o,
	}, nil
}

func (s *Session) obscure(plaintext string) string {
	return s.obscurer.Obscure(plaintext)
}

func (s *Session) reveal(encoded string) (string, error) {
	return s.obscurer.Reveal(encoded)
}
