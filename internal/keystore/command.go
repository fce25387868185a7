// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package keystore

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/juju/errors"
	"github.com/kballard/go-shellquote"

	"github.com/gluu/radius-setup/internal/jwks"
)

const (
	keyGeneratorClass = "org.gluu.oxauth.util.KeyGenerator"

	// DefaultDN is the subject of the certificates the oxAuth key
	// generator wraps each key in.
	DefaultDN = "CN=oxAuth CA Certificates"

	// DefaultExpirationDays is the validity of those certificates.
	DefaultExpirationDays = 365
)

// Command runs the oxAuth client key generator, which writes a Java key
// store and prints the public key set as a series of fragments on stdout.
type Command struct {
	// Java is the path of the java binary.
	Java string

	// Jar is the oxAuth client jar holding the key generator.
	Jar string

	// Algorithms lists the signature algorithms to create a key for.
	// DefaultAlgorithms is used when empty.
	Algorithms []string

	// DN is the certificate subject; DefaultDN when empty.
	DN string

	// ExpirationDays is the certificate validity; DefaultExpirationDays
	// when zero.
	ExpirationDays int
}

func (g *Command) args(path, passphrase string) []string {
	algs := g.Algorithms
	if len(algs) == 0 {
		algs = DefaultAlgorithms
	}
	dn := g.DN
	if dn == "" {
		dn = DefaultDN
	}
	days := g.ExpirationDays
	if days == 0 {
		days = DefaultExpirationDays
	}

	args := []string{
		"-Dlog4j.defaultInitOverride=true",
		"-cp", g.Jar,
		keyGeneratorClass,
		"-keystore", path,
		"-keypasswd", passphrase,
		"-sig_keys",
	}
	args = append(args, algs...)
	args = append(args, "-enc_keys")
	args = append(args, algs...)
	return append(args, "-dnname", dn, "-expiration", strconv.Itoa(days))
}

// commandLine is the generator invocation for path, quoted for a shell
// and with the passphrase masked.
func (g *Command) commandLine(path string) string {
	return shellquote.Join(append([]string{g.Java}, g.args(path, "***")...)...)
}

// Generate implements Generator.
func (g *Command) Generate(ctx context.Context, path, passphrase string) (string, error) {
	if err := validatePassphrase(path, passphrase); err != nil {
		return "", err
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, g.Java, g.args(path, passphrase)...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	logger.Debugf("running %s", g.commandLine(path))
	if err := cmd.Run(); err != nil {
		return "", &KeyGenerationError{
			Path:   path,
			Output: strings.TrimSpace(stdout.String() + "\n" + stderr.String()),
			Err:    err,
		}
	}
	if _, err := os.Stat(path); err != nil {
		return "", &KeyGenerationError{
			Path:   path,
			Output: strings.TrimSpace(stderr.String()),
			Err:    errors.Annotate(err, "key generator did not write the keystore"),
		}
	}

	var lines []string
	scanner := bufio.NewScanner(&stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return "", errors.Trace(err)
	}
	return jwks.JoinFragments(lines), nil
}
