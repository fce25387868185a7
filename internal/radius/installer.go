// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package radius

import (
	"context"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"github.com/juju/collections/set"
	"github.com/juju/errors"

	"github.com/gluu/radius-setup/internal/config"
	"github.com/gluu/radius-setup/internal/directory"
	"github.com/gluu/radius-setup/internal/render"
)

const (
	// ServiceName is the name of the RADIUS server OS service.
	ServiceName = "gluu-radius"

	// ServiceFlag is the configuration attribute switching RADIUS on in
	// the Gluu server.
	ServiceFlag = "gluuRadiusEnabled"

	baseLDIF       = "gluu_radius_base.ldif"
	clientsLDIF    = "gluu_radius_clients.ldif"
	serverLDIF     = "gluu_radius_server.ldif"
	propertiesFile = "gluu-radius.properties"

	libsArchive = "gluu-radius-libs.zip"
	serverJar   = "super-gluu-radius-server.jar"
	schemaLDIF  = "schema/98-radius.ldif"
)

// Scripts are the inums of the Super Gluu resource owner scripts the
// RADIUS server authenticates through.
var Scripts = set.NewStrings("5866-4202", "B8FD-4C11")

// roScripts maps staged scripts to the variables their base64 text is
// published under.
var roScripts = []struct {
	file string
	key  string
}{
	{"super_gluu_ro_session.py", "super_gluu_ro_session_script"},
	{"super_gluu_ro.py", "super_gluu_ro_script"},
}

// authConfUpdates are the oxAuth compatibility switches the RADIUS server
// depends on.
var authConfUpdates = map[string]interface{}{
	"legacyIdTokenClaims":              true,
	"openidScopeBackwardCompatibility": true,
}

// Provisioner lays files out on the local machine.
type Provisioner interface {
	MkdirAll(path string, perm os.FileMode) error
	CopyFile(src, dstDir string) (string, error)
	Touch(path string, perm os.FileMode) error
	Unzip(archive, dir string) error
	Chown(path, owner, group string, recursive bool) error
	Chmod(path string, perm os.FileMode) error
}

// ServiceRegistrar registers the installed OS service.
type ServiceRegistrar interface {
	Register(ctx context.Context) error
}

// InstallerConfig holds the dependencies of an Installer.
type InstallerConfig struct {
	Config       *config.Config
	Session      *Session
	Bootstrapper *Bootstrapper
	Store        directory.Store
	Templates    fs.FS
	Provisioner  Provisioner
	Service      ServiceRegistrar
}

// Validate checks the configuration is usable.
func (cfg InstallerConfig) Validate() error {
	if cfg.Config == nil {
		return errors.NotValidf("nil Config")
	}
	if cfg.Session == nil {
		return errors.NotValidf("nil Session")
	}
	if cfg.Bootstrapper == nil {
		return errors.NotValidf("nil Bootstrapper")
	}
	if cfg.Store == nil {
		return errors.NotValidf("nil Store")
	}
	if cfg.Templates == nil {
		return errors.NotValidf("nil Templates")
	}
	if cfg.Provisioner == nil {
		return errors.NotValidf("nil Provisioner")
	}
	if cfg.Service == nil {
		return errors.NotValidf("nil Service")
	}
	return nil
}

// Installer sequences the installation steps. Steps are never retried;
// the first failure stops the installation and running the installer
// again is the way to recover.
type Installer struct {
	cfg      InstallerConfig
	renderer *render.Renderer
}

// NewInstaller returns an Installer for cfg.
func NewInstaller(cfg InstallerConfig) (*Installer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &Installer{
		cfg:      cfg,
		renderer: &render.Renderer{Source: cfg.Templates},
	}, nil
}

// CreateFolders creates the RADIUS configuration directory.
func (i *Installer) CreateFolders() error {
	return errors.Trace(i.cfg.Provisioner.MkdirAll(i.cfg.Config.ConfDir(), 0755))
}

// Install generates the RADIUS configuration and loads it into the
// directory: the resource owner scripts, the RADIUS client and the service
// flag.
func (i *Installer) Install(ctx context.Context) error {
	cfg, s := i.cfg.Config, i.cfg.Session

	if err := i.cfg.Bootstrapper.GenerateConfiguration(ctx, s); err != nil {
		return errors.Annotate(err, "generating RADIUS configuration")
	}
	if err := i.publishSettings(); err != nil {
		return errors.Trace(err)
	}
	static := os.DirFS(cfg.StaticDir())
	for _, script := range roScripts {
		encoded, err := render.Base64File(static, path.Join("scripts", script.file))
		if err != nil {
			return errors.Annotatef(err, "encoding script %s", script.file)
		}
		s.Rendering[script.key] = encoded
	}

	ldifs, err := i.render(cfg.OutputDir(), baseLDIF, clientsLDIF)
	if err != nil {
		return errors.Trace(err)
	}
	if _, err := i.render(cfg.ConfDir(), propertiesFile); err != nil {
		return errors.Trace(err)
	}

	if err := i.cfg.Store.SetAuthConfDynamic(ctx, authConfUpdates); err != nil {
		return errors.Annotate(err, "updating oxAuth configuration")
	}

	return i.withBackend(func() error {
		if err := i.cfg.Store.ImportLDIF(ctx, ldifs...); err != nil {
			return errors.Trace(err)
		}
		return errors.Trace(i.cfg.Store.EnableService(ctx, ServiceFlag))
	}, ldifs...)
}

// InstallServer installs the staged RADIUS server on this machine and
// registers it with the directory and the init system. The staged binary
// artifacts must be in place.
func (i *Installer) InstallServer(ctx context.Context) error {
	cfg, s, prov := i.cfg.Config, i.cfg.Session, i.cfg.Provisioner

	if err := i.cfg.Bootstrapper.EnsureClientIdentity(ctx, s); err != nil {
		return errors.Trace(err)
	}
	if err := i.publishSettings(); err != nil {
		return errors.Trace(err)
	}
	ldifs, err := i.render(cfg.OutputDir(), serverLDIF)
	if err != nil {
		return errors.Trace(err)
	}

	radiusDir, confDir := cfg.RadiusDir(), cfg.ConfDir()
	if err := prov.MkdirAll(filepath.Join(radiusDir, "logs"), 0755); err != nil {
		return errors.Trace(err)
	}
	if err := prov.Unzip(filepath.Join(cfg.DistDir(), libsArchive), radiusDir); err != nil {
		return errors.Trace(err)
	}
	if _, err := prov.CopyFile(filepath.Join(cfg.DistDir(), serverJar), radiusDir); err != nil {
		return errors.Trace(err)
	}

	err = i.withBackend(func() error {
		if err := i.cfg.Store.ImportSchema(ctx, filepath.Join(cfg.StaticDir(), schemaLDIF)); err != nil {
			return errors.Trace(err)
		}
		if err := i.cfg.Store.Rebind(ctx); err != nil {
			return errors.Trace(err)
		}
		return errors.Trace(i.cfg.Store.ImportLDIF(ctx, ldifs...))
	}, ldifs...)
	if err != nil {
		return errors.Trace(err)
	}

	installed := make(map[string]string)
	for _, f := range []struct{ src, dstDir string }{
		{"etc/default/gluu-radius", cfg.OSDefaultDir()},
		{"etc/gluu/conf/radius/gluu-radius-logging.xml", confDir},
		{"scripts/gluu_common.py", cfg.PythonLibsDir()},
		{"etc/init.d/gluu-radius", cfg.InitDir()},
		{"systemd/gluu-radius.service", cfg.SystemdDir()},
	} {
		dst, err := prov.CopyFile(filepath.Join(cfg.StaticDir(), filepath.FromSlash(f.src)), f.dstDir)
		if err != nil {
			return errors.Trace(err)
		}
		installed[f.src] = dst
	}
	if err := prov.Chmod(installed["etc/init.d/gluu-radius"], 0755); err != nil {
		return errors.Trace(err)
	}
	if err := prov.Touch(cfg.PrivateKeyPath(), 0660); err != nil {
		return errors.Trace(err)
	}

	if err := i.harden(installed["scripts/gluu_common.py"]); err != nil {
		return errors.Trace(err)
	}

	for _, inum := range Scripts.SortedValues() {
		if err := i.cfg.Store.EnableScript(ctx, inum); err != nil {
			return errors.Trace(err)
		}
	}
	return errors.Annotate(i.cfg.Service.Register(ctx), "registering service")
}

func (i *Installer) harden(commonScript string) error {
	cfg, prov := i.cfg.Config, i.cfg.Provisioner
	user, group := cfg.RadiusUser(), cfg.GluuGroup()

	for _, o := range []struct {
		path, owner string
		recursive   bool
	}{
		{cfg.RadiusDir(), user, true},
		{cfg.ConfDir(), "root", true},
		{commonScript, "root", false},
		{cfg.KeystorePath(), user, false},
		{cfg.PrivateKeyPath(), user, false},
	} {
		if err := prov.Chown(o.path, o.owner, group, o.recursive); err != nil {
			return errors.Trace(err)
		}
	}
	for _, m := range []struct {
		path string
		perm os.FileMode
	}{
		{cfg.RadiusDir(), 0755},
		{cfg.ConfDir(), 0755},
		{cfg.KeystorePath(), 0660},
		{cfg.PrivateKeyPath(), 0660},
	} {
		if err := prov.Chmod(m.path, m.perm); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// withBackend runs load when the default backend is the directory. For
// Couchbase, loading RADIUS data is not supported and the step is skipped
// with a warning.
func (i *Installer) withBackend(load func() error, ldifs ...string) error {
	switch backend := i.cfg.Config.DefaultBackend(); backend {
	case config.BackendLDAP:
		return errors.Trace(load())
	case config.BackendCouchbase:
		logger.Warningf("default backend is %s, not importing %v", backend, ldifs)
		return nil
	default:
		return errors.NotSupportedf("backend %q", backend)
	}
}

func (i *Installer) render(outDir string, names ...string) ([]string, error) {
	if err := i.cfg.Provisioner.MkdirAll(outDir, 0755); err != nil {
		return nil, errors.Trace(err)
	}
	var written []string
	for _, name := range names {
		out, err := i.renderer.Render(name, i.cfg.Session.Rendering, outDir)
		if err != nil {
			return nil, errors.Trace(err)
		}
		written = append(written, out)
	}
	return written, nil
}

// publishSettings adds the installation settings templates refer to.
func (i *Installer) publishSettings() error {
	cfg, s := i.cfg.Config, i.cfg.Session
	u, err := url.Parse(cfg.LDAPURL())
	if err != nil {
		return errors.Annotatef(err, "parsing %s", config.LDAPURLKey)
	}
	port := u.Port()
	if port == "" {
		port = "1636"
	}
	s.Rendering.Merge(render.Context{
		"hostname":           cfg.Hostname(),
		"ldap_hostname":      u.Hostname(),
		"ldaps_port":         port,
		"ldap_binddn":        cfg.LDAPBindDN(),
		"encoded_ox_ldap_pw": s.obscure(cfg.LDAPBindPassword()),
		"cert_dir":           cfg.CertDir(),
		"radius_dir":         cfg.RadiusDir(),
		"conf_dir":           cfg.ConfDir(),
	})
	return nil
}
