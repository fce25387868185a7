// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package keystore_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/gluu/radius-setup/internal/jwks"
	"github.com/gluu/radius-setup/internal/keystore"
)

type commandSuite struct {
	testing.IsolationSuite

	dir string
}

var _ = gc.Suite(&commandSuite{})

func (s *commandSuite) SetUpTest(c *gc.C) {
	s.IsolationSuite.SetUpTest(c)
	s.dir = c.MkDir()
}

// fakeJava writes a shell script standing in for the java binary. The
// keystore path is the sixth argument.
func (s *commandSuite) fakeJava(c *gc.C, body string) string {
	path := filepath.Join(s.dir, "java")
	script := "#!/bin/sh\necho \"$@\" > " + filepath.Join(s.dir, "args") + "\n" + body + "\n"
	err := os.WriteFile(path, []byte(script), 0755)
	c.Assert(err, jc.ErrorIsNil)
	return path
}

func (s *commandSuite) TestGenerate(c *gc.C) {
	java := s.fakeJava(c, `: > "$6"
echo '{"keys":[{,"kid":"a","alg":"RS512"},'
echo ',{"kid":"b","alg":"RS256"}]}'`)
	gen := &keystore.Command{Java: java, Jar: "/opt/dist/gluu/oxauth-client.jar"}
	keystorePath := filepath.Join(s.dir, "gluu-radius.jks")

	text, err := gen.Generate(context.Background(), keystorePath, "topsecret")
	c.Assert(err, jc.ErrorIsNil)

	set, err := jwks.Parse(text)
	c.Assert(err, jc.ErrorIsNil)
	kid, err := set.SigningKeyID("RS512")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(kid, gc.Equals, "a")

	args, err := os.ReadFile(filepath.Join(s.dir, "args"))
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(strings.TrimSpace(string(args)), gc.Equals, strings.Join([]string{
		"-Dlog4j.defaultInitOverride=true",
		"-cp /opt/dist/gluu/oxauth-client.jar",
		"org.gluu.oxauth.util.KeyGenerator",
		"-keystore " + keystorePath,
		"-keypasswd topsecret",
		"-sig_keys RS256 RS384 RS512 ES256 ES384 ES512",
		"-enc_keys RS256 RS384 RS512 ES256 ES384 ES512",
		"-dnname CN=oxAuth CA Certificates",
		"-expiration 365",
	}, " "))
}

func (s *commandSuite) TestGenerateLogsMaskedCommand(c *gc.C) {
	var tw loggo.TestWriter
	c.Assert(loggo.RegisterWriter("keystore-test", &tw), jc.ErrorIsNil)
	s.AddCleanup(func(*gc.C) { _, _ = loggo.RemoveWriter("keystore-test") })
	logger := loggo.GetLogger("radius.keystore")
	level := logger.LogLevel()
	s.AddCleanup(func(*gc.C) { logger.SetLogLevel(level) })
	logger.SetLogLevel(loggo.DEBUG)

	java := s.fakeJava(c, `: > "$6"
echo '{"keys":[{"kid":"a","alg":"RS512"}]}'`)
	gen := &keystore.Command{Java: java, Jar: "client.jar", Algorithms: []string{"RS512"}}
	_, err := gen.Generate(context.Background(), filepath.Join(s.dir, "k.jks"), "topsecret")
	c.Assert(err, jc.ErrorIsNil)

	var logged []string
	for _, entry := range tw.Log() {
		logged = append(logged, entry.Message)
	}
	all := strings.Join(logged, "\n")
	c.Check(all, jc.Contains, "-keypasswd")
	c.Check(all, jc.Contains, "'CN=oxAuth CA Certificates'")
	c.Check(strings.Contains(all, "topsecret"), jc.IsFalse)
}

func (s *commandSuite) TestGenerateFails(c *gc.C) {
	java := s.fakeJava(c, `echo "keystore was tampered with" >&2
exit 3`)
	gen := &keystore.Command{Java: java, Jar: "client.jar"}

	_, err := gen.Generate(context.Background(), filepath.Join(s.dir, "k.jks"), "topsecret")
	var kerr *keystore.KeyGenerationError
	c.Assert(errors.As(err, &kerr), jc.IsTrue)
	c.Assert(kerr.Output, gc.Equals, "keystore was tampered with")
	c.Assert(err, gc.ErrorMatches, `(?s)generating keystore ".*k.jks": exit status 3\nkeystore was tampered with`)
}

func (s *commandSuite) TestGenerateNoKeystoreWritten(c *gc.C) {
	java := s.fakeJava(c, `echo '{"keys":[]}'`)
	gen := &keystore.Command{Java: java, Jar: "client.jar"}

	_, err := gen.Generate(context.Background(), filepath.Join(s.dir, "k.jks"), "topsecret")
	var kerr *keystore.KeyGenerationError
	c.Assert(errors.As(err, &kerr), jc.IsTrue)
	c.Assert(err, gc.ErrorMatches, `(?s).*key generator did not write the keystore.*`)
}

func (s *commandSuite) TestGenerateShortPassphrase(c *gc.C) {
	gen := &keystore.Command{Java: "/nonexistent/java", Jar: "client.jar"}
	_, err := gen.Generate(context.Background(), filepath.Join(s.dir, "k.jks"), "")
	var kerr *keystore.KeyGenerationError
	c.Assert(errors.As(err, &kerr), jc.IsTrue)
}

func (s *commandSuite) TestGenerateMissingJava(c *gc.C) {
	gen := &keystore.Command{Java: filepath.Join(s.dir, "no-java"), Jar: "client.jar"}
	_, err := gen.Generate(context.Background(), filepath.Join(s.dir, "k.jks"), "topsecret")
	var kerr *keystore.KeyGenerationError
	c.Assert(errors.As(err, &kerr), jc.IsTrue)
}
