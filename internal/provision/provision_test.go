// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package provision_test

import (
	"os"
	"os/user"
	"path/filepath"

	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	"github.com/klauspost/compress/zip"
	gc "gopkg.in/check.v1"

	"github.com/gluu/radius-setup/internal/provision"
)

type provisionSuite struct {
	testing.IsolationSuite

	os provision.OS
}

var _ = gc.Suite(&provisionSuite{})

func writeZip(c *gc.C, path string, files map[string]string) {
	f, err := os.Create(path)
	c.Assert(err, jc.ErrorIsNil)
	defer f.Close()

	w := zip.NewWriter(f)
	for name, content := range files {
		entry, err := w.Create(name)
		c.Assert(err, jc.ErrorIsNil)
		_, err = entry.Write([]byte(content))
		c.Assert(err, jc.ErrorIsNil)
	}
	c.Assert(w.Close(), jc.ErrorIsNil)
}

func (s *provisionSuite) TestUnzip(c *gc.C) {
	dir := c.MkDir()
	archive := filepath.Join(dir, "libs.zip")
	writeZip(c, archive, map[string]string{
		"libs/a.jar":  "a",
		"libs/b.jar":  "b",
		"README.txt":  "readme",
		"conf/empty/": "",
	})

	target := filepath.Join(dir, "radius")
	c.Assert(s.os.Unzip(archive, target), jc.ErrorIsNil)

	data, err := os.ReadFile(filepath.Join(target, "libs", "b.jar"))
	c.Assert(err, jc.ErrorIsNil)
	c.Check(string(data), gc.Equals, "b")
	c.Check(filepath.Join(target, "conf", "empty"), jc.IsDirectory)
}

func (s *provisionSuite) TestUnzipKeepsExistingFiles(c *gc.C) {
	dir := c.MkDir()
	archive := filepath.Join(dir, "libs.zip")
	writeZip(c, archive, map[string]string{"libs/a.jar": "from archive"})

	target := filepath.Join(dir, "radius")
	c.Assert(os.MkdirAll(filepath.Join(target, "libs"), 0755), jc.ErrorIsNil)
	c.Assert(os.WriteFile(filepath.Join(target, "libs", "a.jar"), []byte("local"), 0644), jc.ErrorIsNil)

	c.Assert(s.os.Unzip(archive, target), jc.ErrorIsNil)

	data, err := os.ReadFile(filepath.Join(target, "libs", "a.jar"))
	c.Assert(err, jc.ErrorIsNil)
	c.Check(string(data), gc.Equals, "local")
}

func (s *provisionSuite) TestUnzipRejectsEscapingEntries(c *gc.C) {
	dir := c.MkDir()
	archive := filepath.Join(dir, "evil.zip")
	writeZip(c, archive, map[string]string{"../escaped": "x"})

	err := s.os.Unzip(archive, filepath.Join(dir, "radius"))
	c.Assert(err, jc.ErrorIs, errors.NotValid)
	c.Check(filepath.Join(dir, "escaped"), jc.DoesNotExist)
}

func (s *provisionSuite) TestCopyFile(c *gc.C) {
	dir := c.MkDir()
	src := filepath.Join(dir, "gluu-radius")
	c.Assert(os.WriteFile(src, []byte("#!/bin/sh\n"), 0755), jc.ErrorIsNil)

	dst, err := s.os.CopyFile(src, filepath.Join(dir, "init.d"))
	c.Assert(err, jc.ErrorIsNil)
	c.Check(dst, gc.Equals, filepath.Join(dir, "init.d", "gluu-radius"))

	info, err := os.Stat(dst)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(info.Mode().Perm(), gc.Equals, os.FileMode(0755))
}

func (s *provisionSuite) TestCopyMissingFile(c *gc.C) {
	dir := c.MkDir()
	_, err := s.os.CopyFile(filepath.Join(dir, "missing"), dir)
	c.Assert(err, jc.ErrorIs, os.ErrNotExist)
}

func (s *provisionSuite) TestTouch(c *gc.C) {
	path := filepath.Join(c.MkDir(), "gluu-radius.private-key.pem")
	c.Assert(s.os.Touch(path, 0660), jc.ErrorIsNil)

	info, err := os.Stat(path)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(info.Size(), gc.Equals, int64(0))

	c.Assert(os.WriteFile(path, []byte("key"), 0660), jc.ErrorIsNil)
	c.Assert(s.os.Touch(path, 0660), jc.ErrorIsNil)
	data, err := os.ReadFile(path)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(string(data), gc.Equals, "key")
}

func (s *provisionSuite) TestChmod(c *gc.C) {
	path := filepath.Join(c.MkDir(), "file")
	c.Assert(os.WriteFile(path, nil, 0600), jc.ErrorIsNil)

	c.Assert(s.os.Chmod(path, 0660), jc.ErrorIsNil)
	info, err := os.Stat(path)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(info.Mode().Perm(), gc.Equals, os.FileMode(0660))
}

func (s *provisionSuite) TestChownToCurrentUser(c *gc.C) {
	current, err := user.Current()
	c.Assert(err, jc.ErrorIsNil)
	group, err := user.LookupGroupId(current.Gid)
	if err != nil {
		c.Skip("current group has no name")
	}

	dir := c.MkDir()
	c.Assert(os.MkdirAll(filepath.Join(dir, "logs"), 0755), jc.ErrorIsNil)
	c.Assert(os.WriteFile(filepath.Join(dir, "logs", "server.log"), nil, 0644), jc.ErrorIsNil)

	c.Assert(s.os.Chown(dir, current.Username, group.Name, true), jc.ErrorIsNil)
	c.Assert(s.os.Chown(filepath.Join(dir, "logs"), current.Username, group.Name, false), jc.ErrorIsNil)
}

func (s *provisionSuite) TestChownUnknownUser(c *gc.C) {
	err := s.os.Chown(c.MkDir(), "no-such-user-radius", "gluu", false)
	c.Assert(err, gc.ErrorMatches, `looking up user "no-such-user-radius": .*`)
}
