// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package jwks turns the key set text printed by a key generator into a
// validated JSON Web Key Set.
//
// The generator output is a run of almost-JSON fragments. Normalize repairs
// a fixed, enumerated set of artefacts in that text; anything else is
// rejected with MalformedKeySet rather than guessed at.
package jwks

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"strings"

	"github.com/juju/errors"
)

// MalformedKeySet is returned when key set text cannot be normalized into a
// valid key set, or when it lacks the descriptor a caller requires. It
// indicates a generator version mismatch and is never retried.
const MalformedKeySet = errors.ConstError("malformed key set")

// JoinFragments concatenates generator output lines into one text, dropping
// the line breaks between fragments.
func JoinFragments(lines []string) string {
	var b strings.Builder
	for _, line := range lines {
		b.WriteString(strings.TrimRight(line, "\r\n"))
	}
	return b.String()
}

// Normalize repairs raw key set text and returns it as JSON. The repairs
// are, in order:
//   - every single quote character is removed;
//   - runs of field separators (",,") are collapsed to one;
//   - a separator directly after an opening brace ("{,") is removed.
//
// The result must decode to an object holding a "keys" array of objects.
func Normalize(raw string) ([]byte, error) {
	text := strings.ReplaceAll(raw, "'", "")
	for strings.Contains(text, ",,") {
		text = strings.ReplaceAll(text, ",,", ",")
	}
	text = strings.ReplaceAll(text, "{,", "{")

	if _, err := decode([]byte(text)); err != nil {
		return nil, errors.Trace(err)
	}
	return []byte(text), nil
}

// Descriptor is a single key of a set, held as its decoded members.
type Descriptor map[string]interface{}

// Algorithm returns the descriptor's "alg" member.
func (d Descriptor) Algorithm() string {
	v, _ := d["alg"].(string)
	return v
}

// KeyID returns the descriptor's "kid" member.
func (d Descriptor) KeyID() string {
	v, _ := d["kid"].(string)
	return v
}

// KeySet is a parsed JSON Web Key Set.
type KeySet struct {
	Keys []Descriptor
}

// Parse normalizes raw key set text and decodes it.
func Parse(raw string) (*KeySet, error) {
	data, err := Normalize(raw)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return decode(data)
}

func decode(data []byte) (*KeySet, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc map[string]interface{}
	if err := dec.Decode(&doc); err != nil {
		return nil, errors.Annotatef(MalformedKeySet, "decoding key set: %v", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.Annotatef(MalformedKeySet, "trailing data after key set")
	}
	rawKeys, ok := doc["keys"].([]interface{})
	if !ok {
		return nil, errors.Annotatef(MalformedKeySet, `missing "keys" array`)
	}
	set := &KeySet{Keys: make([]Descriptor, 0, len(rawKeys))}
	for i, k := range rawKeys {
		members, ok := k.(map[string]interface{})
		if !ok {
			return nil, errors.Annotatef(MalformedKeySet, "key %d is not an object", i)
		}
		set.Keys = append(set.Keys, Descriptor(members))
	}
	return set, nil
}

// Canonical returns the set as compact JSON with object members sorted by
// name.
func (s *KeySet) Canonical() ([]byte, error) {
	keys := make([]map[string]interface{}, len(s.Keys))
	for i, k := range s.Keys {
		keys[i] = k
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(map[string]interface{}{"keys": keys}); err != nil {
		return nil, errors.Trace(err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Base64 returns the standard base64 encoding of the canonical set, with no
// line breaks.
func (s *KeySet) Base64() (string, error) {
	data, err := s.Canonical()
	if err != nil {
		return "", errors.Trace(err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// SigningKeyID returns the key id of the one descriptor using alg.
func (s *KeySet) SigningKeyID(alg string) (string, error) {
	var found []Descriptor
	for _, k := range s.Keys {
		if k.Algorithm() == alg {
			found = append(found, k)
		}
	}
	switch len(found) {
	case 0:
		return "", errors.Annotatef(MalformedKeySet, "no %s key", alg)
	case 1:
	default:
		return "", errors.Annotatef(MalformedKeySet, "%d %s keys, expected one", len(found), alg)
	}
	kid := found[0].KeyID()
	if kid == "" {
		return "", errors.Annotatef(MalformedKeySet, "%s key has no key id", alg)
	}
	return kid, nil
}
