// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package keystore

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"io"
	"os"

	"filippo.io/age"
	"github.com/google/uuid"
	"github.com/juju/errors"
	"github.com/juju/utils/v4"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

const rsaKeySize = 2048

// Native generates key sets in process. The container is the private key
// set as JSON, encrypted to the passphrase with age.
type Native struct {
	// Algorithms lists the signature algorithms to create a key for.
	// DefaultAlgorithms is used when empty.
	Algorithms []string

	// WorkFactor is the scrypt work factor (log2 N) protecting the
	// container. Zero selects the age default.
	WorkFactor int
}

// Generate implements Generator.
func (g *Native) Generate(ctx context.Context, path, passphrase string) (string, error) {
	if err := validatePassphrase(path, passphrase); err != nil {
		return "", err
	}
	algs := g.Algorithms
	if len(algs) == 0 {
		algs = DefaultAlgorithms
	}

	private := jwk.NewSet()
	for _, name := range algs {
		if err := ctx.Err(); err != nil {
			return "", errors.Trace(err)
		}
		key, err := newSigningKey(name)
		if err != nil {
			return "", &KeyGenerationError{Path: path, Err: err}
		}
		if err := private.AddKey(key); err != nil {
			return "", &KeyGenerationError{Path: path, Err: err}
		}
		logger.Debugf("generated %s key %q", name, key.KeyID())
	}

	data, err := json.Marshal(private)
	if err != nil {
		return "", errors.Trace(err)
	}
	sealed, err := g.seal(data, passphrase)
	if err != nil {
		return "", &KeyGenerationError{Path: path, Err: err}
	}
	if err := utils.AtomicWriteFile(path, sealed, 0600); err != nil {
		return "", &KeyGenerationError{Path: path, Err: err}
	}
	logger.Infof("wrote %d signing keys to %q", private.Len(), path)
	return publicText(private)
}

// Load implements Loader.
func (g *Native) Load(ctx context.Context, path, passphrase string) (string, error) {
	sealed, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Trace(err)
	}
	identity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return "", errors.Trace(err)
	}
	r, err := age.Decrypt(bytes.NewReader(sealed), identity)
	if err != nil {
		return "", &KeyGenerationError{
			Path:   path,
			Output: "the keystore does not open with the persisted passphrase; remove it or restore the state file",
			Err:    errors.Annotate(err, "opening keystore"),
		}
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", errors.Annotatef(err, "reading keystore %q", path)
	}
	private, err := jwk.Parse(data)
	if err != nil {
		return "", errors.Annotatef(err, "parsing keystore %q", path)
	}
	return publicText(private)
}

func (g *Native) seal(data []byte, passphrase string) ([]byte, error) {
	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if g.WorkFactor > 0 {
		recipient.SetWorkFactor(g.WorkFactor)
	}
	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, recipient)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, errors.Trace(err)
	}
	if err := w.Close(); err != nil {
		return nil, errors.Trace(err)
	}
	return buf.Bytes(), nil
}

func publicText(private jwk.Set) (string, error) {
	public, err := jwk.PublicSetOf(private)
	if err != nil {
		return "", errors.Trace(err)
	}
	data, err := json.Marshal(public)
	if err != nil {
		return "", errors.Trace(err)
	}
	return string(data), nil
}

func newSigningKey(name string) (jwk.Key, error) {
	var (
		raw interface{}
		err error
	)
	alg := jwa.SignatureAlgorithm(name)
	switch alg {
	case jwa.RS256, jwa.RS384, jwa.RS512:
		raw, err = rsa.GenerateKey(rand.Reader, rsaKeySize)
	case jwa.ES256:
		raw, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	case jwa.ES384:
		raw, err = ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	case jwa.ES512:
		raw, err = ecdsa.GenerateKey(elliptic.P521(), rand.Reader)
	default:
		return nil, errors.NotSupportedf("signature algorithm %q", name)
	}
	if err != nil {
		return nil, errors.Trace(err)
	}

	key, err := jwk.FromRaw(raw)
	if err != nil {
		return nil, errors.Trace(err)
	}
	for k, v := range map[string]interface{}{
		jwk.KeyIDKey:     uuid.NewString(),
		jwk.AlgorithmKey: alg,
		jwk.KeyUsageKey:  "sig",
	} {
		if err := key.Set(k, v); err != nil {
			return nil, errors.Annotatef(err, "setting %s", k)
		}
	}
	return key, nil
}
