// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package render turns installer templates into concrete configuration and
// LDIF artifacts.
package render

import (
	"bytes"
	"encoding/base64"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"text/template"

	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/juju/utils/v4"
)

var logger = loggo.GetLogger("radius.render")

// Context maps template variable names to values.
type Context map[string]string

// Merge copies every value of other into c.
func (c Context) Merge(other Context) {
	for k, v := range other {
		c[k] = v
	}
}

// Renderer renders the templates found in Source.
type Renderer struct {
	Source fs.FS

	// Perm is the mode of written artifacts, 0640 when zero.
	Perm os.FileMode
}

// Execute renders the named template and returns the result. Every
// variable the template refers to must be present in vars.
func (r *Renderer) Execute(name string, vars Context) ([]byte, error) {
	text, err := fs.ReadFile(r.Source, name)
	if err != nil {
		return nil, errors.Annotatef(err, "reading template %q", name)
	}
	tmpl, err := template.New(path.Base(name)).Option("missingkey=error").Parse(string(text))
	if err != nil {
		return nil, errors.Annotatef(err, "parsing template %q", name)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, map[string]string(vars)); err != nil {
		return nil, errors.Annotatef(err, "rendering template %q", name)
	}
	return buf.Bytes(), nil
}

// Render renders the named template into outDir, keeping its base name,
// and returns the path written.
func (r *Renderer) Render(name string, vars Context, outDir string) (string, error) {
	data, err := r.Execute(name, vars)
	if err != nil {
		return "", errors.Trace(err)
	}
	perm := r.Perm
	if perm == 0 {
		perm = 0640
	}
	out := filepath.Join(outDir, path.Base(name))
	if err := utils.AtomicWriteFile(out, data, perm); err != nil {
		return "", errors.Annotatef(err, "writing %q", out)
	}
	logger.Debugf("rendered %s to %s", name, out)
	return out, nil
}

// Base64File returns the standard base64 encoding of a file, on one line.
func Base64File(fsys fs.FS, name string) (string, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return "", errors.Trace(err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
