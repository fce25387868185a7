// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package obscure implements the reversible encoding used to keep plaintext
// secrets out of Gluu configuration files. It is compatible with the
// encoding oxAuth and the RADIUS server use to decode those values: triple
// DES in ECB mode keyed by the install salt, PKCS#5 padded, base64 encoded.
//
// This is format obfuscation, not protection. Anyone holding the salt file
// can reveal every encoded value.
package obscure

import (
	"bytes"
	"crypto/cipher"
	"crypto/des"
	"encoding/base64"

	"github.com/juju/errors"
	"github.com/juju/utils/v4"
)

// SaltLength is the length of an install salt. Triple DES takes a 24 byte
// key and the salt is used as the key directly.
const SaltLength = 24

// NewSalt returns a fresh random install salt.
func NewSalt() string {
	return utils.RandomString(SaltLength, saltRunes)
}

var saltRunes = append(append(append([]rune{}, utils.LowerAlpha...), utils.UpperAlpha...), utils.Digits...)

// Obscurer encodes and decodes secrets with a fixed salt.
type Obscurer struct {
	block cipher.Block
}

// New returns an Obscurer keyed by salt.
func New(salt string) (*Obscurer, error) {
	if len(salt) != SaltLength {
		return nil, errors.NotValidf("salt of length %d", len(salt))
	}
	block, err := des.NewTripleDESCipher([]byte(salt))
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &Obscurer{block: block}, nil
}

// Obscure returns the printable encoded form of plaintext. The result is
// deterministic for a given salt.
func (o *Obscurer) Obscure(plaintext string) string {
	size := o.block.BlockSize()
	data := pad([]byte(plaintext), size)
	out := make([]byte, len(data))
	for i := 0; i < len(data); i += size {
		o.block.Encrypt(out[i:i+size], data[i:i+size])
	}
	return base64.StdEncoding.EncodeToString(out)
}

// Reveal reverses Obscure.
func (o *Obscurer) Reveal(encoded string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", errors.Annotate(err, "decoding obscured value")
	}
	size := o.block.BlockSize()
	if len(data) == 0 || len(data)%size != 0 {
		return "", errors.NotValidf("obscured value length %d", len(data))
	}
	out := make([]byte, len(data))
	for i := 0; i < len(data); i += size {
		o.block.Decrypt(out[i:i+size], data[i:i+size])
	}
	plain, err := unpad(out, size)
	if err != nil {
		return "", errors.Trace(err)
	}
	return string(plain), nil
}

func pad(data []byte, size int) []byte {
	n := size - len(data)%size
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(data []byte, size int) ([]byte, error) {
	n := int(data[len(data)-1])
	if n == 0 || n > size || n > len(data) {
		return nil, errors.NotValidf("padding")
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, errors.NotValidf("padding")
		}
	}
	return data[:len(data)-n], nil
}
