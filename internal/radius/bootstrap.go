// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package radius

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/juju/errors"
	"github.com/juju/utils/v4"

	"github.com/gluu/radius-setup/internal/config"
	"github.com/gluu/radius-setup/internal/directory"
	"github.com/gluu/radius-setup/internal/jwks"
	"github.com/gluu/radius-setup/internal/keystore"
)

// ClientIDPrefix namespaces the OpenID client ids of RADIUS servers.
const ClientIDPrefix = "1701"

// SigningAlgorithm is the algorithm the RADIUS server signs its client
// assertions with.
const SigningAlgorithm = "RS512"

const (
	clientIDAttr     = "inum"
	clientSecretAttr = "oxAuthClientSecret"
)

// IdentitySource finds existing client registrations.
type IdentitySource interface {
	Search(ctx context.Context, base, filter string, attrs ...string) ([]directory.Entry, error)
}

// BootstrapperConfig holds the dependencies of a Bootstrapper.
type BootstrapperConfig struct {
	Identities   IdentitySource
	Generator    keystore.Generator
	KeystorePath string
	KeyPolicy    config.KeyPolicy

	// NewPassword and NewUUID default to utils.RandomPassword and
	// uuid.NewString.
	NewPassword func() (string, error)
	NewUUID     func() string
}

// Validate checks the configuration is usable.
func (cfg BootstrapperConfig) Validate() error {
	if cfg.Identities == nil {
		return errors.NotValidf("nil Identities")
	}
	if cfg.Generator == nil {
		return errors.NotValidf("nil Generator")
	}
	if cfg.KeystorePath == "" {
		return errors.NotValidf("empty KeystorePath")
	}
	switch cfg.KeyPolicy {
	case config.KeyPolicyRotate:
	case config.KeyPolicyReuse:
		if _, ok := cfg.Generator.(keystore.Loader); !ok {
			return errors.NotValidf("key policy %q with a generator that cannot load keystores", cfg.KeyPolicy)
		}
	default:
		return errors.NotValidf("key policy %q", cfg.KeyPolicy)
	}
	return nil
}

// Bootstrapper establishes the client identity and signing keys of the
// RADIUS server, and publishes them to a session's rendering context.
type Bootstrapper struct {
	cfg BootstrapperConfig
}

// NewBootstrapper returns a Bootstrapper for cfg.
func NewBootstrapper(cfg BootstrapperConfig) (*Bootstrapper, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if cfg.NewPassword == nil {
		cfg.NewPassword = utils.RandomPassword
	}
	if cfg.NewUUID == nil {
		cfg.NewUUID = uuid.NewString
	}
	return &Bootstrapper{cfg: cfg}, nil
}

// EnsureClientIdentity makes sure s holds a client id and an obscured
// client secret. An existing registration in the directory is adopted as
// is; otherwise a new id is made up. The directory is only asked while s
// has no client id.
func (b *Bootstrapper) EnsureClientIdentity(ctx context.Context, s *Session) error {
	if s.ClientID == "" {
		if err := b.lookupClient(ctx, s); err != nil {
			return errors.Trace(err)
		}
	}
	if s.ClientID == "" {
		s.ClientID = ClientIDPrefix + "." + b.cfg.NewUUID()
		logger.Infof("created RADIUS client id %s", s.ClientID)
	}
	if s.ClientSecretEncoded == "" {
		secret, err := b.cfg.NewPassword()
		if err != nil {
			return errors.Annotate(err, "generating client secret")
		}
		s.ClientSecret = secret
		s.ClientSecretEncoded = s.obscure(secret)
	}

	s.Rendering["gluu_radius_client_id"] = s.ClientID
	s.Rendering["gluu_ro_encoded_pw"] = s.ClientSecretEncoded
	return nil
}

func (b *Bootstrapper) lookupClient(ctx context.Context, s *Session) error {
	filter := fmt.Sprintf("(%s=%s.*)", clientIDAttr, ClientIDPrefix)
	entries, err := b.cfg.Identities.Search(ctx, directory.ClientsBase, filter, clientIDAttr, clientSecretAttr)
	if err != nil {
		return errors.Annotate(err, "looking up RADIUS client")
	}
	if len(entries) == 0 {
		return nil
	}
	if len(entries) > 1 {
		logger.Warningf("%d RADIUS clients registered, using %s", len(entries), entries[0].DN)
	}
	s.ClientID = entries[0].Get(clientIDAttr)
	s.ClientSecretEncoded = entries[0].Get(clientSecretAttr)
	logger.Infof("gluu_radius_client_id was found in the directory as %s", s.ClientID)
	logger.Debugf("gluu_ro_encoded_pw was found in the directory as %s", s.ClientSecretEncoded)
	return nil
}

// GenerateConfiguration produces the signing keystore and publishes the
// client identity, the obscured keystore passphrase, the public key set
// and the signing key id to the rendering context. It runs once per
// session; later calls do nothing.
func (b *Bootstrapper) GenerateConfiguration(ctx context.Context, s *Session) error {
	if err := b.EnsureClientIdentity(ctx, s); err != nil {
		return errors.Trace(err)
	}
	if s.configGenerated {
		logger.Debugf("configuration already generated in this session")
		return nil
	}
	if err := b.ensureKeystorePassword(s); err != nil {
		return errors.Trace(err)
	}

	raw, err := b.keySet(ctx, s)
	if err != nil {
		return errors.Trace(err)
	}
	set, err := jwks.Parse(raw)
	if err != nil {
		return errors.Annotatef(err, "reading keys of %q", b.cfg.KeystorePath)
	}
	encoded, err := set.Base64()
	if err != nil {
		return errors.Trace(err)
	}
	keyID, err := set.SigningKeyID(SigningAlgorithm)
	if err != nil {
		return errors.Annotatef(err, "reading keys of %q", b.cfg.KeystorePath)
	}

	s.Rendering["radius_jwt_pass"] = s.KeystorePasswordEncoded
	s.Rendering["gluu_ro_client_base64_jwks"] = encoded
	s.Rendering["radius_jwt_keyId"] = keyID
	s.configGenerated = true
	logger.Infof("RADIUS client %s signs with key %s", s.ClientID, keyID)
	return nil
}

// ensureKeystorePassword recovers the persisted passphrase, or makes a new
// one on the first run.
func (b *Bootstrapper) ensureKeystorePassword(s *Session) error {
	if s.KeystorePassword != "" {
		if s.KeystorePasswordEncoded == "" {
			s.KeystorePasswordEncoded = s.obscure(s.KeystorePassword)
		}
		return nil
	}
	if s.KeystorePasswordEncoded != "" {
		pass, err := s.reveal(s.KeystorePasswordEncoded)
		if err != nil {
			return errors.Annotate(err, "recovering keystore passphrase")
		}
		s.KeystorePassword = pass
		return nil
	}
	pass, err := b.cfg.NewPassword()
	if err != nil {
		return errors.Annotate(err, "generating keystore passphrase")
	}
	s.KeystorePassword = pass
	s.KeystorePasswordEncoded = s.obscure(pass)
	return nil
}

// keySet returns the textual public key set of the keystore, generating
// the keystore unless the policy allows an existing one to be kept.
func (b *Bootstrapper) keySet(ctx context.Context, s *Session) (string, error) {
	path := b.cfg.KeystorePath
	if b.cfg.KeyPolicy == config.KeyPolicyReuse {
		_, err := os.Stat(path)
		switch {
		case err == nil:
			logger.Infof("reusing keystore %q", path)
			raw, err := b.cfg.Generator.(keystore.Loader).Load(ctx, path, s.KeystorePassword)
			return raw, errors.Trace(err)
		case !errors.Is(err, os.ErrNotExist):
			return "", errors.Annotatef(err, "checking keystore %q", path)
		}
	}
	logger.Infof("generating keystore %q", path)
	raw, err := b.cfg.Generator.Generate(ctx, path, s.KeystorePassword)
	return raw, errors.Trace(err)
}
