// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package radius

import (
	"os"
	"path/filepath"

	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/gluu/radius-setup/internal/obscure"
)

type stateSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&stateSuite{})

func (s *stateSuite) TestLoadMissingIsEmpty(c *gc.C) {
	st, err := LoadState(filepath.Join(c.MkDir(), "state.yaml"))
	c.Assert(err, jc.ErrorIsNil)
	c.Check(*st, jc.DeepEquals, State{})
}

func (s *stateSuite) TestSaveLoad(c *gc.C) {
	path := filepath.Join(c.MkDir(), "state.yaml")
	st := &State{
		ClientID:                "1701.0f8fad5b-d9cb-469f-a165-70867728950e",
		ClientSecretEncoded:     "c2VjcmV0",
		KeystorePasswordEncoded: "cGFzcw==",
		Salt:                    "QwErTyUiOpAsDfGhJkLzXcVb",
	}
	c.Assert(st.Save(path), jc.ErrorIsNil)

	info, err := os.Stat(path)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(info.Mode().Perm(), gc.Equals, os.FileMode(0600))

	loaded, err := LoadState(path)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(loaded, jc.DeepEquals, st)
}

func (s *stateSuite) TestLoadCorrupt(c *gc.C) {
	path := filepath.Join(c.MkDir(), "state.yaml")
	c.Assert(os.WriteFile(path, []byte("gluu-radius-client-id: [\n"), 0600), jc.ErrorIsNil)

	_, err := LoadState(path)
	c.Assert(err, gc.ErrorMatches, `parsing state ".*state.yaml": .*`)
}

func (s *stateSuite) TestNewSessionCreatesSalt(c *gc.C) {
	st := &State{}
	sess, err := NewSession(st)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(st.Salt, gc.HasLen, obscure.SaltLength)
	c.Check(sess.Rendering, gc.HasLen, 0)

	revealed, err := sess.reveal(sess.obscure("topsecret"))
	c.Assert(err, jc.ErrorIsNil)
	c.Check(revealed, gc.Equals, "topsecret")
}

func (s *stateSuite) TestSessionsShareSalt(c *gc.C) {
	first, err := NewSession(nil)
	c.Assert(err, jc.ErrorIsNil)
	second, err := NewSession(&State{Salt: first.Salt})
	c.Assert(err, jc.ErrorIsNil)
	c.Check(second.obscure("topsecret"), gc.Equals, first.obscure("topsecret"))
}

func (s *stateSuite) TestNewSessionBadSalt(c *gc.C) {
	_, err := NewSession(&State{Salt: "short"})
	c.Assert(err, gc.ErrorMatches, "loading obscuring salt: .*")
}
