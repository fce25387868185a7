// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package config holds the installer configuration: where things are
// installed, how to reach the directory store and how signing keys are
// produced.
package config

import (
	"os"
	"path/filepath"

	"github.com/juju/errors"
	"github.com/juju/schema"
	"gopkg.in/ini.v1"
	"gopkg.in/juju/environschema.v1"
	"gopkg.in/yaml.v3"
)

// Backend is the data backend Gluu keeps its default mapping in.
type Backend string

const (
	// BackendLDAP keeps data in the directory store.
	BackendLDAP Backend = "ldap"

	// BackendCouchbase keeps data in Couchbase. Importing RADIUS
	// artifacts into it is not supported.
	BackendCouchbase Backend = "couchbase"
)

// KeyGenerator selects how the signing key container is produced.
type KeyGenerator string

const (
	// KeyGeneratorNative seals a JWK set with age. The container is not a
	// Java key store, so it only suits hosts where the RADIUS server reads
	// keys some other way.
	KeyGeneratorNative KeyGenerator = "native"

	// KeyGeneratorCommand runs the oxAuth Java key generator, which writes
	// the JKS the RADIUS server loads.
	KeyGeneratorCommand KeyGenerator = "command"
)

// KeyPolicy decides what happens to an existing key container when the
// installer runs again.
type KeyPolicy string

const (
	// KeyPolicyRotate generates a new key set on every run, protected by
	// the same persisted passphrase.
	KeyPolicyRotate KeyPolicy = "rotate"

	// KeyPolicyReuse keeps an existing container and re-reads its public
	// key set. Only the native generator can read containers back.
	KeyPolicyReuse KeyPolicy = "reuse"
)

const (
	InstallDirKey             = "install-dir"
	BaseDirKey                = "base-dir"
	CertDirKey                = "cert-dir"
	OutputDirKey              = "output-dir"
	DistDirKey                = "dist-dir"
	StaticDirKey              = "static-dir"
	PythonLibsDirKey          = "python-libs-dir"
	OSDefaultDirKey           = "os-default-dir"
	InitDirKey                = "init-dir"
	SystemdDirKey             = "systemd-dir"
	DefaultBackendKey         = "default-backend"
	LDAPURLKey                = "ldap-url"
	LDAPBindDNKey             = "ldap-bind-dn"
	LDAPBindPasswordKey       = "ldap-bind-password"
	LDAPInsecureSkipVerifyKey = "ldap-insecure-skip-verify"
	KeyGeneratorKey           = "key-generator"
	KeyGeneratorJarKey        = "key-generator-jar"
	JavaKey                   = "java"
	KeyPolicyKey              = "key-policy"
	RadiusUserKey             = "radius-user"
	GluuGroupKey              = "gluu-group"
	HostnameKey               = "hostname"
	SaltFileKey               = "salt-file"
)

var configSchema = environschema.Fields{
	InstallDirKey: {
		Description: "Root of the Gluu installation.",
		Type:        environschema.Tstring,
	},
	BaseDirKey: {
		Description: "Root of the Gluu configuration.",
		Type:        environschema.Tstring,
	},
	CertDirKey: {
		Description: "Directory holding certificates and key stores.",
		Type:        environschema.Tstring,
	},
	OutputDirKey: {
		Description: "Directory rendered artifacts are written to.",
		Type:        environschema.Tstring,
	},
	DistDirKey: {
		Description: "Directory holding the staged binary artifacts.",
		Type:        environschema.Tstring,
	},
	StaticDirKey: {
		Description: "Directory holding the staged static files.",
		Type:        environschema.Tstring,
	},
	PythonLibsDirKey: {
		Description: "Directory of the Jython libraries used by custom scripts.",
		Type:        environschema.Tstring,
	},
	OSDefaultDirKey: {
		Description: "Directory of service environment defaults.",
		Type:        environschema.Tstring,
	},
	InitDirKey: {
		Description: "Directory of SysV init scripts.",
		Type:        environschema.Tstring,
	},
	SystemdDirKey: {
		Description: "Directory systemd unit files are installed to.",
		Type:        environschema.Tstring,
	},
	DefaultBackendKey: {
		Description: "Backend holding the default data mapping.",
		Type:        environschema.Tstring,
		Values:      []interface{}{string(BackendLDAP), string(BackendCouchbase)},
	},
	LDAPURLKey: {
		Description: "URL of the directory server.",
		Type:        environschema.Tstring,
	},
	LDAPBindDNKey: {
		Description: "DN to bind to the directory server as.",
		Type:        environschema.Tstring,
	},
	LDAPBindPasswordKey: {
		Description: "Password for the bind DN.",
		Type:        environschema.Tstring,
		Mandatory:   true,
		Secret:      true,
	},
	LDAPInsecureSkipVerifyKey: {
		Description: "Do not verify the directory server certificate.",
		Type:        environschema.Tbool,
	},
	KeyGeneratorKey: {
		Description: "How signing keys are generated.",
		Type:        environschema.Tstring,
		Values:      []interface{}{string(KeyGeneratorNative), string(KeyGeneratorCommand)},
	},
	KeyGeneratorJarKey: {
		Description: "oxAuth client jar used by the command key generator.",
		Type:        environschema.Tstring,
	},
	JavaKey: {
		Description: "Java binary used by the command key generator.",
		Type:        environschema.Tstring,
	},
	KeyPolicyKey: {
		Description: "Whether an existing key container is rotated or reused.",
		Type:        environschema.Tstring,
		Values:      []interface{}{string(KeyPolicyRotate), string(KeyPolicyReuse)},
	},
	RadiusUserKey: {
		Description: "System user the RADIUS server runs as.",
		Type:        environschema.Tstring,
	},
	GluuGroupKey: {
		Description: "System group shared by Gluu services.",
		Type:        environschema.Tstring,
	},
	HostnameKey: {
		Description: "Public host name of the Gluu server.",
		Type:        environschema.Tstring,
	},
	SaltFileKey: {
		Description: "Gluu file holding the salt secrets are obscured with.",
		Type:        environschema.Tstring,
	},
}

var configDefaults = schema.Defaults{
	InstallDirKey:             "/opt/gluu",
	BaseDirKey:                "/etc/gluu",
	CertDirKey:                "/etc/certs",
	OutputDirKey:              "/opt/gluu/setup/output",
	DistDirKey:                "/opt/dist/gluu",
	StaticDirKey:              "/opt/dist/gluu/static",
	PythonLibsDirKey:          "/opt/gluu/python/libs",
	OSDefaultDirKey:           "/etc/default",
	InitDirKey:                "/etc/init.d",
	SystemdDirKey:             "/usr/lib/systemd/system",
	DefaultBackendKey:         string(BackendLDAP),
	LDAPURLKey:                "ldaps://localhost:1636",
	LDAPBindDNKey:             "cn=directory manager",
	LDAPInsecureSkipVerifyKey: true,
	KeyGeneratorKey:           string(KeyGeneratorCommand),
	KeyGeneratorJarKey:        schema.Omit,
	JavaKey:                   "/opt/jre/bin/java",
	KeyPolicyKey:              string(KeyPolicyRotate),
	RadiusUserKey:             "radius",
	GluuGroupKey:              "gluu",
	HostnameKey:               schema.Omit,
	SaltFileKey:               "/etc/gluu/conf/salt",
}

// Config is a validated installer configuration.
type Config struct {
	attrs map[string]interface{}
}

// New validates attrs, fills in defaults and returns the configuration.
func New(attrs map[string]interface{}) (*Config, error) {
	fields, defaults, err := configSchema.ValidationSchema()
	if err != nil {
		return nil, errors.Trace(err)
	}
	for k, v := range configDefaults {
		defaults[k] = v
	}
	coerced, err := schema.FieldMap(fields, defaults).Coerce(attrs, nil)
	if err != nil {
		return nil, errors.Annotate(err, "validating installer config")
	}
	cfg := &Config{attrs: coerced.(map[string]interface{})}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return cfg, nil
}

// Load reads a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	attrs := make(map[string]interface{})
	if err := yaml.Unmarshal(data, &attrs); err != nil {
		return nil, errors.Annotatef(err, "parsing %q", path)
	}
	cfg, err := New(attrs)
	return cfg, errors.Annotatef(err, "loading %q", path)
}

// Validate checks the settings that depend on each other. Unknown variants
// are rejected here rather than skipped at install time.
func (c *Config) Validate() error {
	switch b := c.DefaultBackend(); b {
	case BackendLDAP, BackendCouchbase:
	default:
		return errors.NotValidf("default backend %q", b)
	}
	switch g := c.KeyGenerator(); g {
	case KeyGeneratorNative:
	case KeyGeneratorCommand:
		if c.KeyPolicy() == KeyPolicyReuse {
			return errors.NotValidf("key policy %q with the %q key generator", KeyPolicyReuse, g)
		}
	default:
		return errors.NotValidf("key generator %q", g)
	}
	switch p := c.KeyPolicy(); p {
	case KeyPolicyRotate, KeyPolicyReuse:
	default:
		return errors.NotValidf("key policy %q", p)
	}
	return nil
}

func (c *Config) str(key string) string {
	v, _ := c.attrs[key].(string)
	return v
}

// RadiusDir is where the RADIUS server is installed.
func (c *Config) RadiusDir() string {
	return filepath.Join(c.str(InstallDirKey), "radius")
}

// ConfDir is the RADIUS server configuration directory.
func (c *Config) ConfDir() string {
	return filepath.Join(c.str(BaseDirKey), "conf", "radius")
}

// CertDir holds the keystore and the RADIUS private key.
func (c *Config) CertDir() string {
	return c.str(CertDirKey)
}

// KeystorePath is the location of the signing key container.
func (c *Config) KeystorePath() string {
	return filepath.Join(c.CertDir(), "gluu-radius.jks")
}

// PrivateKeyPath is the location of the RADIUS server private key.
func (c *Config) PrivateKeyPath() string {
	return filepath.Join(c.CertDir(), "gluu-radius.private-key.pem")
}

// OutputDir is where rendered RADIUS artifacts are written.
func (c *Config) OutputDir() string {
	return filepath.Join(c.str(OutputDirKey), "radius")
}

// DistDir holds the staged RADIUS binaries and the oxAuth client jar.
func (c *Config) DistDir() string {
	return c.str(DistDirKey)
}

// StaticDir holds the staged RADIUS static files.
func (c *Config) StaticDir() string {
	return filepath.Join(c.str(StaticDirKey), "radius")
}

// PythonLibsDir receives the shared Gluu python helpers.
func (c *Config) PythonLibsDir() string {
	return c.str(PythonLibsDirKey)
}

// OSDefaultDir receives the service defaults file.
func (c *Config) OSDefaultDir() string {
	return c.str(OSDefaultDirKey)
}

// InitDir receives the init script.
func (c *Config) InitDir() string {
	return c.str(InitDirKey)
}

// SystemdDir receives the systemd unit.
func (c *Config) SystemdDir() string {
	return c.str(SystemdDirKey)
}

// DefaultBackend is the store Gluu keeps its data in.
func (c *Config) DefaultBackend() Backend {
	return Backend(c.str(DefaultBackendKey))
}

// LDAPURL is the directory server address.
func (c *Config) LDAPURL() string {
	return c.str(LDAPURLKey)
}

// LDAPBindDN is the DN the installer binds as.
func (c *Config) LDAPBindDN() string {
	return c.str(LDAPBindDNKey)
}

// LDAPBindPassword is the plaintext bind password.
func (c *Config) LDAPBindPassword() string {
	return c.str(LDAPBindPasswordKey)
}

// LDAPInsecureSkipVerify reports whether the directory certificate is trusted unverified.
func (c *Config) LDAPInsecureSkipVerify() bool {
	v, _ := c.attrs[LDAPInsecureSkipVerifyKey].(bool)
	return v
}

// KeyGenerator reports how signing keys are produced.
func (c *Config) KeyGenerator() KeyGenerator {
	return KeyGenerator(c.str(KeyGeneratorKey))
}

// KeyGeneratorJar defaults to the oxAuth client jar in the dist directory.
func (c *Config) KeyGeneratorJar() string {
	if jar := c.str(KeyGeneratorJarKey); jar != "" {
		return jar
	}
	return filepath.Join(c.DistDir(), "oxauth-client-jar-with-dependencies.jar")
}

// Java is the java binary the command key generator runs.
func (c *Config) Java() string {
	return c.str(JavaKey)
}

// KeyPolicy reports what happens to an existing keystore on a rerun.
func (c *Config) KeyPolicy() KeyPolicy {
	return KeyPolicy(c.str(KeyPolicyKey))
}

// RadiusUser owns the RADIUS installation.
func (c *Config) RadiusUser() string {
	return c.str(RadiusUserKey)
}

// GluuGroup is the group shared with the Gluu services.
func (c *Config) GluuGroup() string {
	return c.str(GluuGroupKey)
}

// Hostname defaults to the name of the local host.
func (c *Config) Hostname() string {
	if name := c.str(HostnameKey); name != "" {
		return name
	}
	name, err := os.Hostname()
	if err != nil {
		return "localhost"
	}
	return name
}

// EncodeSalt returns the salt the Gluu server obscures secrets with, or ""
// when the salt file does not exist.
func (c *Config) EncodeSalt() (string, error) {
	path := c.str(SaltFileKey)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	f, err := ini.Load(path)
	if err != nil {
		return "", errors.Annotatef(err, "reading salt file %q", path)
	}
	return f.Section("").Key("encodeSalt").String(), nil
}
