// Package charset converts between Go strings and the byte encoding a
// caller chose for metadata text.
package charset

import (
	"bytes"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"

	"github.com/ankit-chaubey/image-metadata-surgery/core"
)

// Default is used when no encoding is named.
const Default = "utf-8"

// Codec encodes and decodes text for one named encoding.
type Codec struct {
	name string
	enc  encoding.Encoding
}

// UTF8 is the default codec.
var UTF8 = &Codec{name: Default, enc: unicode.UTF8}

// Lookup resolves an encoding by its WHATWG name or alias
// ("utf-8", "latin1", "gbk", "shift_jis", ...).
func Lookup(name string) (*Codec, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return UTF8, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, core.Errorf(core.EncodingError, "charset", "unknown encoding %q", name)
	}
	canon, err := htmlindex.Name(enc)
	if err != nil {
		canon = name
	}
	return &Codec{name: canon, enc: enc}, nil
}

func (c *Codec) Name() string { return c.name }

// Encode converts s to bytes. Runes the encoding cannot represent, and
// results that do not decode back to s, fail with EncodingError.
func (c *Codec) Encode(s string) ([]byte, error) {
	b, err := c.enc.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, core.Errorf(core.EncodingError, "encode", "%q is not representable in %s: %v", s, c.name, err)
	}
	back, err := c.enc.NewDecoder().Bytes(b)
	if err != nil || !bytes.Equal(back, []byte(s)) {
		return nil, core.Errorf(core.EncodingError, "encode", "%q does not round-trip through %s", s, c.name)
	}
	return b, nil
}

// Decode converts bytes in the codec's encoding to a string.
func (c *Codec) Decode(b []byte) (string, error) {
	s, err := c.enc.NewDecoder().Bytes(b)
	if err != nil {
		return "", core.Errorf(core.EncodingError, "decode", "invalid %s text: %v", c.name, err)
	}
	return string(s), nil
}
