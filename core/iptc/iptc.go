// Package iptc reads and writes IPTC-IIM dataset streams and the Photoshop
// image resource blocks that carry them in JPEG and PNG files.
package iptc

import (
	"bytes"
	"encoding/binary"
	"strconv"
	"strings"
	"time"

	"github.com/ankit-chaubey/image-metadata-surgery/core"
	"github.com/ankit-chaubey/image-metadata-surgery/core/charset"
)

const marker = 0x1C

// utf8Escape is the 1:90 CharacterSet value declaring UTF-8 text.
var utf8Escape = []byte{0x1B, '%', 'G'}

// Dataset is one IIM record/dataset with its raw value.
type Dataset struct {
	Record byte
	ID     byte
	Data   []byte
}

// Data is an ordered dataset list. Repeated datasets keep their order.
type Data struct {
	Sets []Dataset
}

// Decode parses an IIM stream. Trailing zero padding is ignored.
func Decode(b []byte) (*Data, error) {
	d := &Data{}
	for i := 0; i < len(b); {
		if b[i] != marker {
			if allZero(b[i:]) {
				break
			}
			return nil, core.Errorf(core.MalformedContainer, "iptc decode", "expected tag marker at %d, got 0x%02x", i, b[i])
		}
		if len(b)-i < 5 {
			return nil, core.Errorf(core.TruncatedData, "iptc decode", "dataset header at %d cut short", i)
		}
		rec, id := b[i+1], b[i+2]
		n := int(binary.BigEndian.Uint16(b[i+3:]))
		i += 5
		if n&0x8000 != 0 {
			k := n & 0x7FFF
			if k == 0 || k > 4 {
				return nil, core.Errorf(core.MalformedContainer, "iptc decode", "extended length of %d bytes", k)
			}
			if len(b)-i < k {
				return nil, core.Errorf(core.TruncatedData, "iptc decode", "extended length cut short")
			}
			n = 0
			for _, c := range b[i : i+k] {
				n = n<<8 | int(c)
			}
			i += k
		}
		if n < 0 || len(b)-i < n {
			return nil, core.Errorf(core.TruncatedData, "iptc decode", "dataset %d:%d needs %d bytes, have %d", rec, id, n, len(b)-i)
		}
		d.Sets = append(d.Sets, Dataset{Record: rec, ID: id, Data: append([]byte(nil), b[i:i+n]...)})
		i += n
	}
	return d, nil
}

// Encode writes the stream. An empty list encodes to nil.
func (d *Data) Encode() []byte {
	if d.Empty() {
		return nil
	}
	var buf bytes.Buffer
	for _, s := range d.Sets {
		buf.Write([]byte{marker, s.Record, s.ID})
		if len(s.Data) <= 0x7FFF {
			buf.Write([]byte{byte(len(s.Data) >> 8), byte(len(s.Data))})
		} else {
			buf.Write([]byte{0x80, 0x04})
			var n [4]byte
			binary.BigEndian.PutUint32(n[:], uint32(len(s.Data)))
			buf.Write(n[:])
		}
		buf.Write(s.Data)
	}
	return buf.Bytes()
}

func (d *Data) Empty() bool { return d == nil || len(d.Sets) == 0 }

func (d *Data) Clear() { d.Sets = nil }

// textCodec honours a UTF-8 declaration in the envelope over cs.
func (d *Data) textCodec(cs *charset.Codec) *charset.Codec {
	for _, s := range d.Sets {
		if s.Record == RecordEnvelope && s.ID == 90 && bytes.Equal(s.Data, utf8Escape) {
			return charset.UTF8
		}
	}
	if cs == nil {
		return charset.UTF8
	}
	return cs
}

// Entries renders one entry per dataset, repeats included.
func (d *Data) Entries(cs *charset.Codec) []core.Entry {
	cs = d.textCodec(cs)
	out := make([]core.Entry, 0, len(d.Sets))
	for _, s := range d.Sets {
		k := KindOf(s.Record, s.ID)
		out = append(out, core.Entry{
			Key:   Key(s.Record, s.ID),
			Value: render(s.Data, k, cs),
			Type:  k.String(),
		})
	}
	return out
}

// Delete removes every dataset for key.
func (d *Data) Delete(key string) error {
	rec, id, err := ParseKey(key)
	if err != nil {
		return core.Wrap(core.EncodeError, "iptc delete", err)
	}
	d.remove(rec, id)
	return nil
}

func (d *Data) remove(rec, id byte) {
	kept := d.Sets[:0]
	for _, s := range d.Sets {
		if s.Record != rec || s.ID != id {
			kept = append(kept, s)
		}
	}
	d.Sets = kept
}

// Set applies one mutation. Every type but array replaces all repeats of
// the key; array appends one dataset per value and keeps what is there.
func (d *Data) Set(m core.Mutation, cs *charset.Codec) error {
	rec, id, err := ParseKey(m.Key)
	if err != nil {
		return core.Wrap(core.EncodeError, "iptc set", err)
	}
	if m.Type == core.TypeDelete {
		d.remove(rec, id)
		return nil
	}
	cs = d.textCodec(cs)
	kind := KindOf(rec, id)

	var values []string
	switch m.Type {
	case core.TypeString, "":
		values = []string{m.Value}
	case core.TypeDate:
		kind = KindDate
		values = []string{m.Value}
	case core.TypeBinary:
		kind = KindUndefined
		values = []string{m.Value}
	case core.TypeArray:
		values = m.Values
		if values == nil {
			values = []string{m.Value}
		}
	default:
		return core.Errorf(core.EncodeError, "iptc set", "type %q is not valid for IPTC", m.Type)
	}

	sets := make([]Dataset, 0, len(values))
	for _, v := range values {
		raw, err := parse(v, kind, cs)
		if err != nil {
			return core.Wrap(core.EncodeError, "iptc set "+m.Key, err)
		}
		sets = append(sets, Dataset{Record: rec, ID: id, Data: raw})
	}
	if m.Type != core.TypeArray {
		d.remove(rec, id)
	}
	d.Sets = append(d.Sets, sets...)
	return nil
}

func render(b []byte, k Kind, cs *charset.Codec) string {
	switch k {
	case KindString:
		s, err := cs.Decode(b)
		if err != nil {
			return string(b)
		}
		return s
	case KindDate:
		if len(b) == 8 && digits(b) {
			return string(b[:4]) + "-" + string(b[4:6]) + "-" + string(b[6:])
		}
	case KindTime:
		if len(b) >= 6 && digits(b[:6]) {
			s := string(b[:2]) + ":" + string(b[2:4]) + ":" + string(b[4:6])
			if len(b) == 11 {
				s += string(b[6:9]) + ":" + string(b[9:])
			}
			return s
		}
	case KindShort:
		if len(b) == 2 {
			return strconv.Itoa(int(binary.BigEndian.Uint16(b)))
		}
	}
	parts := make([]string, len(b))
	for i, c := range b {
		parts[i] = strconv.Itoa(int(c))
	}
	return strings.Join(parts, " ")
}

func digits(b []byte) bool {
	for _, c := range b {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func parse(text string, k Kind, cs *charset.Codec) ([]byte, error) {
	text = strings.TrimRightFunc(text, func(r rune) bool { return r == 0 })
	switch k {
	case KindString:
		return cs.Encode(text)
	case KindDate:
		for _, layout := range []string{"2006-01-02", "20060102", "2006:01:02"} {
			if t, err := time.Parse(layout, strings.TrimSpace(text)); err == nil {
				return []byte(t.Format("20060102")), nil
			}
		}
		return nil, core.Errorf(core.EncodeError, "iptc", "invalid date %q, want YYYY-MM-DD", text)
	case KindTime:
		for _, layout := range []string{"15:04:05-07:00", "150405-0700", "15:04:05", "150405"} {
			if t, err := time.Parse(layout, strings.TrimSpace(text)); err == nil {
				return []byte(t.Format("150405-0700")), nil
			}
		}
		return nil, core.Errorf(core.EncodeError, "iptc", "invalid time %q, want HH:MM:SS+HH:MM", text)
	case KindShort:
		v, err := strconv.ParseUint(strings.TrimSpace(text), 10, 16)
		if err != nil {
			return nil, core.Errorf(core.EncodeError, "iptc", "invalid Short %q", text)
		}
		return []byte{byte(v >> 8), byte(v)}, nil
	}
	fields := strings.Fields(text)
	out := make([]byte, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseUint(f, 10, 8)
		if err != nil {
			return nil, core.Errorf(core.EncodeError, "iptc", "invalid byte %q", f)
		}
		out = append(out, byte(v))
	}
	return out, nil
}
