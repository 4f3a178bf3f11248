// Package exif decodes and encodes EXIF data held as a TIFF stream: IFD0,
// the Exif, GPS and Interoperability sub-IFDs, and IFD1 with its JPEG
// thumbnail. Tags outside the dictionary keep their raw type and bytes.
package exif

import (
	"encoding/binary"
	"strings"

	"github.com/garyhouston/tiff66"
	"github.com/rwcarlsen/goexif/tiff"

	"github.com/ankit-chaubey/image-metadata-surgery/core"
	"github.com/ankit-chaubey/image-metadata-surgery/core/charset"
)

// Tag is one IFD entry. Val holds Count components in the owning Data's
// byte order; for a type with no known size it holds the raw value word.
type Tag struct {
	Group Group
	ID    uint16
	Type  tiff.DataType
	Count uint32
	Val   []byte
	// Sub holds the directories the tag points at when they are not part
	// of the model (maker notes, SubIFDs, IFD-typed fields). They are
	// written back with the tag and their offsets rebuilt.
	Sub []*tiff66.IFDNode
}

// Data is the decoded EXIF model.
type Data struct {
	Order     binary.ByteOrder
	Tags      []*Tag
	Thumbnail []byte
	// Next is the raw next-IFD pointer of IFD0 when IFD1 is not part of
	// the model (multi-page TIFF).
	Next uint32
}

// New returns an empty little-endian model.
func New() *Data {
	return &Data{Order: binary.LittleEndian}
}

// Clone returns a copy whose tag list can be changed without touching d.
// Tags themselves are shared.
func (d *Data) Clone() *Data {
	c := *d
	c.Tags = append([]*Tag(nil), d.Tags...)
	return &c
}

// Empty reports whether encoding d would produce nothing.
func (d *Data) Empty() bool {
	return len(d.Tags) == 0 && len(d.Thumbnail) == 0
}

// Entries renders every tag in decode order.
func (d *Data) Entries(cs *charset.Codec) []core.Entry {
	out := make([]core.Entry, 0, len(d.Tags))
	for _, t := range d.Tags {
		out = append(out, core.Entry{
			Key:   Key(t.Group, t.ID),
			Value: render(t, d.Order, cs),
			Type:  TypeName(t.Type),
		})
	}
	return out
}

// Find returns the first tag with the given group and id.
func (d *Data) Find(g Group, id uint16) *Tag {
	for _, t := range d.Tags {
		if t.Group == g && t.ID == id {
			return t
		}
	}
	return nil
}

// Take removes and returns the tag with the given group and id.
func (d *Data) Take(g Group, id uint16) *Tag {
	for i, t := range d.Tags {
		if t.Group == g && t.ID == id {
			d.Tags = append(d.Tags[:i], d.Tags[i+1:]...)
			return t
		}
	}
	return nil
}

// Put replaces any tag with the same group and id, or appends t.
func (d *Data) Put(t *Tag) {
	for i, old := range d.Tags {
		if old.Group == t.Group && old.ID == t.ID {
			d.Tags[i] = t
			return
		}
	}
	d.Tags = append(d.Tags, t)
}

// Delete removes every tag for key. Unknown keys are an error.
func (d *Data) Delete(key string) error {
	g, id, err := ParseKey(key)
	if err != nil {
		return core.Wrap(core.EncodeError, "exif delete", err)
	}
	for d.Take(g, id) != nil {
	}
	return nil
}

// DeleteGroup removes every tag of group g.
func (d *Data) DeleteGroup(g Group) {
	kept := d.Tags[:0]
	for _, t := range d.Tags {
		if t.Group != g {
			kept = append(kept, t)
		}
	}
	d.Tags = kept
}

// Clear removes every tag and the thumbnail.
func (d *Data) Clear() {
	d.Tags = nil
	d.Thumbnail = nil
}

// Set applies one mutation: the key's tags are removed first, then, unless
// the type is TypeDelete, a new tag is built from the value.
func (d *Data) Set(m core.Mutation, cs *charset.Codec) error {
	g, id, err := ParseKey(m.Key)
	if err != nil {
		return core.Wrap(core.EncodeError, "exif set", err)
	}
	if structural(g, id) {
		return core.Errorf(core.EncodeError, "exif set", "%s is maintained by the encoder", m.Key)
	}
	if cs == nil {
		cs = charset.UTF8
	}

	dt := defaultType(g, id)
	if old := d.Find(g, id); old != nil {
		dt = old.Type
	}
	if m.Type == core.TypeDelete {
		return d.Delete(m.Key)
	}

	var (
		val   []byte
		count uint32
	)
	switch m.Type {
	case core.TypeString, "":
		switch {
		case g == GroupPhoto && id == TagUserComment:
			val, err = encodeUserComment(m.Value, d.Order)
			dt, count = tiff.DTUndefined, uint32(len(val))
		case dateTags[tagKey{g, id}]:
			var s string
			if s, err = normalizeDate(m.Value); err == nil {
				val, count, err = parse(s, tiff.DTAscii, d.Order, cs)
			}
		default:
			val, count, err = parse(m.Value, dt, d.Order, cs)
		}
	case core.TypeDate:
		var s string
		if s, err = normalizeDate(m.Value); err == nil {
			dt = tiff.DTAscii
			val, count, err = parse(s, dt, d.Order, cs)
		}
	case core.TypeRational:
		if dt != tiff.DTSRational {
			dt = tiff.DTRational
			if strings.HasPrefix(strings.TrimSpace(m.Value), "-") {
				dt = tiff.DTSRational
			}
		}
		val, count, err = parse(m.Value, dt, d.Order, cs)
	case core.TypeBinary:
		dt = tiff.DTUndefined
		val, count, err = parse(m.Value, dt, d.Order, cs)
	case core.TypeArray:
		values := m.Values
		if values == nil {
			values = strings.Fields(m.Value)
		}
		if dt == tiff.DTAscii {
			val, count, err = parse(strings.Join(values, " "), dt, d.Order, cs)
		} else {
			val, count, err = parseFields(values, dt, d.Order)
		}
	default:
		return core.Errorf(core.EncodeError, "exif set", "type %q is not valid for EXIF", m.Type)
	}
	if err != nil {
		return core.Wrap(core.EncodeError, "exif set "+m.Key, err)
	}

	for d.Take(g, id) != nil {
	}
	d.Tags = append(d.Tags, &Tag{Group: g, ID: id, Type: dt, Count: count, Val: val})
	return nil
}

// SetThumbnail installs a JPEG thumbnail in IFD1. nil erases IFD1.
func (d *Data) SetThumbnail(jpeg []byte) {
	if len(jpeg) == 0 {
		d.DeleteGroup(GroupThumbnail)
		d.Thumbnail = nil
		return
	}
	v := make([]byte, 2)
	d.Order.PutUint16(v, 6)
	d.Put(&Tag{Group: GroupThumbnail, ID: TagCompression, Type: tiff.DTShort, Count: 1, Val: v})
	d.Thumbnail = append([]byte(nil), jpeg...)
}
