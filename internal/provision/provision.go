// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package provision lays files out on the local machine: directories,
// copies of staged artifacts, archive extraction and ownership.
package provision

import (
	"io"
	"io/fs"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/juju/utils/v4"
	"github.com/klauspost/compress/zip"
)

var logger = loggo.GetLogger("radius.provision")

// OS provisions the local file system. All operations are idempotent and
// none of them are retried.
type OS struct{}

// MkdirAll creates path and any missing parents.
func (OS) MkdirAll(path string, perm os.FileMode) error {
	if err := os.MkdirAll(path, perm); err != nil {
		return errors.Annotatef(err, "creating %q", path)
	}
	return nil
}

// CopyFile copies src into dstDir, keeping its name and mode, and returns
// the path written.
func (OS) CopyFile(src, dstDir string) (string, error) {
	info, err := os.Stat(src)
	if err != nil {
		return "", errors.Trace(err)
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return "", errors.Trace(err)
	}
	if err := os.MkdirAll(dstDir, 0755); err != nil {
		return "", errors.Annotatef(err, "creating %q", dstDir)
	}
	dst := filepath.Join(dstDir, filepath.Base(src))
	if err := utils.AtomicWriteFile(dst, data, info.Mode().Perm()); err != nil {
		return "", errors.Annotatef(err, "copying %q to %q", src, dstDir)
	}
	logger.Debugf("copied %s to %s", src, dst)
	return dst, nil
}

// Touch creates an empty file at path unless one is already there.
func (OS) Touch(path string, perm os.FileMode) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, perm)
	if errors.Is(err, fs.ErrExist) {
		return nil
	} else if err != nil {
		return errors.Annotatef(err, "creating %q", path)
	}
	return errors.Trace(f.Close())
}

// Unzip extracts archive into dir. Files that already exist are left
// untouched.
func (OS) Unzip(archive, dir string) error {
	r, err := zip.OpenReader(archive)
	if err != nil {
		return errors.Annotatef(err, "opening %q", archive)
	}
	defer r.Close()

	root, err := filepath.Abs(dir)
	if err != nil {
		return errors.Trace(err)
	}
	var (
		written int
		size    uint64
	)
	for _, f := range r.File {
		target := filepath.Join(root, filepath.FromSlash(f.Name))
		if target != root && !strings.HasPrefix(target, root+string(filepath.Separator)) {
			return errors.NotValidf("archive entry %q outside %q", f.Name, dir)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return errors.Trace(err)
			}
			continue
		}
		if _, err := os.Lstat(target); err == nil {
			continue
		}
		if err := extract(f, target); err != nil {
			return errors.Annotatef(err, "extracting %q", f.Name)
		}
		written++
		size += f.UncompressedSize64
	}
	logger.Infof("extracted %d files (%s) from %s into %s", written, humanize.Bytes(size), archive, dir)
	return nil
}

func extract(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return errors.Trace(err)
	}
	src, err := f.Open()
	if err != nil {
		return errors.Trace(err)
	}
	defer src.Close()

	perm := f.Mode().Perm()
	if perm == 0 {
		perm = 0644
	}
	dst, err := os.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, perm)
	if err != nil {
		return errors.Trace(err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return errors.Trace(err)
	}
	return errors.Trace(dst.Close())
}

// Chown gives path to owner and group, descending into it when recursive
// is set.
func (OS) Chown(path, owner, group string, recursive bool) error {
	uid, gid, err := lookupIDs(owner, group)
	if err != nil {
		return errors.Trace(err)
	}
	if !recursive {
		return errors.Annotatef(os.Lchown(path, uid, gid), "chown %s:%s %q", owner, group, path)
	}
	err = filepath.WalkDir(path, func(p string, _ fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		return os.Lchown(p, uid, gid)
	})
	return errors.Annotatef(err, "chown -R %s:%s %q", owner, group, path)
}

func lookupIDs(owner, group string) (int, int, error) {
	u, err := user.Lookup(owner)
	if err != nil {
		return 0, 0, errors.Annotatef(err, "looking up user %q", owner)
	}
	g, err := user.LookupGroup(group)
	if err != nil {
		return 0, 0, errors.Annotatef(err, "looking up group %q", group)
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return 0, 0, errors.NotSupportedf("non numeric uid %q", u.Uid)
	}
	gid, err := strconv.Atoi(g.Gid)
	if err != nil {
		return 0, 0, errors.NotSupportedf("non numeric gid %q", g.Gid)
	}
	return uid, gid, nil
}

// Chmod sets the mode of path.
func (OS) Chmod(path string, perm os.FileMode) error {
	return errors.Annotatef(os.Chmod(path, perm), "chmod %o %q", perm, path)
}
