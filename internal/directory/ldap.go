// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package directory

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"github.com/go-ldap/ldif"
	"github.com/juju/errors"
	"github.com/juju/loggo"
)

var logger = loggo.GetLogger("radius.directory")

const (
	authConfDynamicAttr = "oxAuthConfDynamic"
	revisionAttr        = "oxRevision"
	scriptEnabledAttr   = "oxEnabled"
)

// Conn is the subset of an LDAP connection the store uses.
type Conn interface {
	Bind(username, password string) error
	Search(*ldap.SearchRequest) (*ldap.SearchResult, error)
	Add(*ldap.AddRequest) error
	Del(*ldap.DelRequest) error
	Modify(*ldap.ModifyRequest) error
}

// LDAPConfig holds what is needed to reach the directory server.
type LDAPConfig struct {
	URL                string
	BindDN             string
	BindPassword       string
	InsecureSkipVerify bool
}

// LDAPStore is a Store backed by an LDAP server.
type LDAPStore struct {
	conn         Conn
	bindDN       string
	bindPassword string
	close        func()
}

var _ Store = (*LDAPStore)(nil)

// Dial connects and binds to the directory server described by cfg.
func Dial(cfg LDAPConfig) (*LDAPStore, error) {
	conn, err := ldap.DialURL(cfg.URL, ldap.DialWithTLSConfig(&tls.Config{
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}))
	if err != nil {
		return nil, errors.Annotatef(Unavailable, "dialing %s: %v", cfg.URL, err)
	}
	store := NewLDAPStore(conn, cfg.BindDN, cfg.BindPassword)
	store.close = func() { conn.Close() }
	if err := store.bind(); err != nil {
		store.Close()
		return nil, errors.Trace(err)
	}
	logger.Debugf("bound to %s as %q", cfg.URL, cfg.BindDN)
	return store, nil
}

// NewLDAPStore returns a store using an already open connection. The
// credentials are used by Rebind.
func NewLDAPStore(conn Conn, bindDN, bindPassword string) *LDAPStore {
	return &LDAPStore{
		conn:         conn,
		bindDN:       bindDN,
		bindPassword: bindPassword,
	}
}

// Close implements Store.
func (s *LDAPStore) Close() error {
	if s.close != nil {
		s.close()
	}
	return nil
}

func (s *LDAPStore) bind() error {
	if err := s.conn.Bind(s.bindDN, s.bindPassword); err != nil {
		return s.annotate(err, "binding as %q", s.bindDN)
	}
	return nil
}

// Rebind implements Store.
func (s *LDAPStore) Rebind(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errors.Trace(err)
	}
	return s.bind()
}

// annotate marks connection level failures as Unavailable.
func (s *LDAPStore) annotate(err error, format string, args ...interface{}) error {
	if ldap.IsErrorWithCode(err, ldap.ErrorNetwork) {
		return errors.Annotatef(Unavailable, "%s: %v", fmt.Sprintf(format, args...), err)
	}
	return errors.Annotatef(err, format, args...)
}

// Search implements Store.
func (s *LDAPStore) Search(ctx context.Context, base, filter string, attrs ...string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Trace(err)
	}
	req := ldap.NewSearchRequest(
		base, ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 0, 0, false,
		filter, attrs, nil,
	)
	res, err := s.conn.Search(req)
	if ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject) {
		return nil, nil
	} else if err != nil {
		return nil, s.annotate(err, "searching %q for %s", base, filter)
	}

	entries := make([]Entry, 0, len(res.Entries))
	for _, e := range res.Entries {
		entry := Entry{DN: e.DN, Attributes: make(map[string][]string, len(e.Attributes))}
		for _, attr := range e.Attributes {
			entry.Attributes[attr.Name] = attr.Values
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func readLDIF(path string) (*ldif.LDIF, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	parsed, err := ldif.Parse(string(data))
	if err != nil {
		return nil, errors.Annotatef(err, "parsing %q", path)
	}
	return parsed, nil
}

// ImportLDIF implements Store.
func (s *LDAPStore) ImportLDIF(ctx context.Context, paths ...string) error {
	for _, path := range paths {
		parsed, err := readLDIF(path)
		if err != nil {
			return errors.Trace(err)
		}
		logger.Infof("importing %d records from %q", len(parsed.Entries), path)
		for _, record := range parsed.Entries {
			if err := ctx.Err(); err != nil {
				return errors.Trace(err)
			}
			if err := s.apply(record); err != nil {
				return errors.Annotatef(err, "importing %q", path)
			}
		}
	}
	return nil
}

func (s *LDAPStore) apply(record *ldif.Entry) error {
	switch {
	case record.Entry != nil:
		req := ldap.NewAddRequest(record.Entry.DN, nil)
		for _, attr := range record.Entry.Attributes {
			req.Attribute(attr.Name, attr.Values)
		}
		return s.add(req)
	case record.Add != nil:
		return s.add(record.Add)
	case record.Modify != nil:
		if err := s.conn.Modify(record.Modify); err != nil {
			return s.annotate(err, "modifying %q", record.Modify.DN)
		}
	case record.Del != nil:
		err := s.conn.Del(record.Del)
		if ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject) {
			logger.Debugf("%q already deleted", record.Del.DN)
		} else if err != nil {
			return s.annotate(err, "deleting %q", record.Del.DN)
		}
	}
	return nil
}

func (s *LDAPStore) add(req *ldap.AddRequest) error {
	err := s.conn.Add(req)
	if ldap.IsErrorWithCode(err, ldap.LDAPResultEntryAlreadyExists) {
		logger.Debugf("%q already exists", req.DN)
		return nil
	} else if err != nil {
		return s.annotate(err, "adding %q", req.DN)
	}
	return nil
}

// ImportSchema implements Store. Content records in the file are treated
// as subschema entries whose attribute types and object classes are added
// to the server schema one at a time; definitions the server already has
// are skipped.
func (s *LDAPStore) ImportSchema(ctx context.Context, path string) error {
	parsed, err := readLDIF(path)
	if err != nil {
		return errors.Trace(err)
	}
	for _, record := range parsed.Entries {
		if record.Entry == nil {
			if err := s.apply(record); err != nil {
				return errors.Annotatef(err, "importing schema %q", path)
			}
			continue
		}
		for _, name := range []string{"attributeTypes", "objectClasses"} {
			for _, def := range record.Entry.GetEqualFoldAttributeValues(name) {
				if err := ctx.Err(); err != nil {
					return errors.Trace(err)
				}
				req := ldap.NewModifyRequest(SchemaDN, nil)
				req.Add(name, []string{def})
				err := s.conn.Modify(req)
				if ldap.IsErrorWithCode(err, ldap.LDAPResultAttributeOrValueExists) {
					continue
				} else if err != nil {
					return s.annotate(err, "adding %s to schema", name)
				}
			}
		}
	}
	logger.Infof("imported schema %q", path)
	return nil
}

func (s *LDAPStore) replace(dn, attr, value string) error {
	req := ldap.NewModifyRequest(dn, nil)
	req.Replace(attr, []string{value})
	if err := s.conn.Modify(req); err != nil {
		return s.annotate(err, "setting %s on %q", attr, dn)
	}
	return nil
}

// EnableService implements Store.
func (s *LDAPStore) EnableService(ctx context.Context, flag string) error {
	if err := ctx.Err(); err != nil {
		return errors.Trace(err)
	}
	logger.Infof("enabling service flag %s", flag)
	return s.replace(ConfigurationDN, flag, "true")
}

// EnableScript implements Store.
func (s *LDAPStore) EnableScript(ctx context.Context, inum string) error {
	if err := ctx.Err(); err != nil {
		return errors.Trace(err)
	}
	logger.Infof("enabling script %s", inum)
	return s.replace(fmt.Sprintf("inum=%s,%s", ldap.EscapeDN(inum), ScriptsBase), scriptEnabledAttr, "true")
}

// SetAuthConfDynamic implements Store.
func (s *LDAPStore) SetAuthConfDynamic(ctx context.Context, updates map[string]interface{}) error {
	if err := ctx.Err(); err != nil {
		return errors.Trace(err)
	}
	req := ldap.NewSearchRequest(
		AuthConfigurationDN, ldap.ScopeBaseObject, ldap.NeverDerefAliases, 0, 0, false,
		"(objectClass=*)", []string{authConfDynamicAttr, revisionAttr}, nil,
	)
	res, err := s.conn.Search(req)
	if err != nil {
		return s.annotate(err, "reading oxAuth configuration")
	}
	if len(res.Entries) == 0 {
		return errors.NotFoundf("oxAuth configuration %q", AuthConfigurationDN)
	}
	entry := res.Entries[0]

	revision := 0
	if raw := entry.GetAttributeValue(revisionAttr); raw != "" {
		if revision, err = strconv.Atoi(raw); err != nil {
			return errors.Annotatef(err, "parsing %s of %q", revisionAttr, AuthConfigurationDN)
		}
	}

	conf := make(map[string]interface{})
	if raw := entry.GetAttributeValue(authConfDynamicAttr); raw != "" {
		dec := json.NewDecoder(strings.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&conf); err != nil {
			return errors.Annotate(err, "decoding oxAuth dynamic configuration")
		}
	}
	for k, v := range updates {
		conf[k] = v
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(conf); err != nil {
		return errors.Trace(err)
	}
	data := bytes.TrimSuffix(buf.Bytes(), []byte("\n"))

	mod := ldap.NewModifyRequest(AuthConfigurationDN, nil)
	mod.Replace(authConfDynamicAttr, []string{string(data)})
	mod.Replace(revisionAttr, []string{strconv.Itoa(revision + 1)})
	if err := s.conn.Modify(mod); err != nil {
		return s.annotate(err, "writing oxAuth configuration")
	}
	logger.Infof("updated oxAuth dynamic configuration (revision %d)", revision+1)
	return nil
}
