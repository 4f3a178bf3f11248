// Package meta holds the decoded metadata of one open image and tracks
// which families have changed since it was loaded or last saved.
package meta

import (
	"bytes"

	"github.com/ankit-chaubey/image-metadata-surgery/core"
	"github.com/ankit-chaubey/image-metadata-surgery/core/charset"
	"github.com/ankit-chaubey/image-metadata-surgery/core/exif"
	"github.com/ankit-chaubey/image-metadata-surgery/core/iptc"
	"github.com/ankit-chaubey/image-metadata-surgery/core/xmp"
)

// Store is the mutable metadata model of one image.
type Store struct {
	cs *charset.Codec

	exif *exif.Data
	iptc *iptc.Data
	xmp  *xmp.Packet
	// raw is the packet as found or as set; nil once properties change.
	raw     []byte
	comment []byte
	icc     []byte

	dirty map[core.Family]bool
}

// New returns an empty store that encodes text with cs.
func New(cs *charset.Codec) *Store {
	if cs == nil {
		cs = charset.UTF8
	}
	return &Store{
		cs:    cs,
		exif:  exif.New(),
		iptc:  &iptc.Data{},
		xmp:   xmp.New(),
		dirty: map[core.Family]bool{},
	}
}

// Load decodes located segments. Every family that fails to decode is
// reported; the others are still loaded.
func Load(segs []core.Segment, cs *charset.Codec) (*Store, error) {
	s := New(cs)
	c := core.NewCollector("load metadata")
	for _, seg := range segs {
		switch seg.Family {
		case core.FamilyExif:
			d, err := exif.Decode(seg.Payload, true)
			if err != nil {
				c.Add(err)
				continue
			}
			s.exif = d
		case core.FamilyIptc:
			d, err := iptc.Decode(seg.Payload)
			if err != nil {
				c.Add(err)
				continue
			}
			s.iptc = d
		case core.FamilyXmp:
			p, err := xmp.Decode(seg.Payload)
			if err != nil {
				c.Add(err)
				continue
			}
			s.xmp = p
			s.raw = bytes.Clone(seg.Payload)
		case core.FamilyComment:
			s.comment = bytes.Clone(seg.Payload)
		case core.FamilyIcc:
			s.icc = bytes.Clone(seg.Payload)
		}
	}
	return s, c.Err()
}

func (s *Store) Charset() *charset.Codec { return s.cs }

func (s *Store) mark(fs ...core.Family) {
	for _, f := range fs {
		s.dirty[f] = true
	}
}

// Get renders the keyed entries of f. Blob families have no keys and
// return nil.
func (s *Store) Get(f core.Family) []core.Entry {
	switch f {
	case core.FamilyExif:
		return s.exif.Entries(s.cs)
	case core.FamilyIptc:
		return s.iptc.Entries(s.cs)
	case core.FamilyXmp:
		return s.xmp.Entries()
	}
	return nil
}

// Set applies one mutation to a keyed family.
func (s *Store) Set(f core.Family, m core.Mutation) error {
	var err error
	switch f {
	case core.FamilyExif:
		err = s.exif.Set(m, s.cs)
	case core.FamilyIptc:
		err = s.iptc.Set(m, s.cs)
	case core.FamilyXmp:
		if err = s.xmp.Set(m); err == nil {
			s.raw = nil
			s.mark(core.FamilyRawXmp)
		}
	default:
		return core.Errorf(core.EncodeError, "set", "%s has no keyed entries", f)
	}
	if err != nil {
		return err
	}
	s.mark(f)
	return nil
}

// Apply runs Set for every row. Rows that fail are skipped and reported
// together once all rows have been tried.
func (s *Store) Apply(f core.Family, table []core.Mutation) error {
	c := core.NewCollector("modify " + f.String())
	for _, m := range table {
		c.Add(s.Set(f, m))
	}
	return c.Err()
}

// Clear empties f. Clearing EXIF drops the thumbnail with it.
func (s *Store) Clear(f core.Family) {
	switch f {
	case core.FamilyExif:
		if s.exif.Thumbnail != nil {
			s.mark(core.FamilyThumbnail)
		}
		s.exif.Clear()
	case core.FamilyIptc:
		s.iptc.Clear()
	case core.FamilyXmp, core.FamilyRawXmp:
		s.xmp.Clear()
		s.raw = nil
		s.mark(core.FamilyXmp, core.FamilyRawXmp)
	case core.FamilyComment:
		s.comment = nil
	case core.FamilyIcc:
		s.icc = nil
	case core.FamilyThumbnail:
		s.exif.SetThumbnail(nil)
		s.mark(core.FamilyExif)
	}
	s.mark(f)
}

// Comment decodes the comment with the store's charset.
func (s *Store) Comment() (string, error) {
	return s.cs.Decode(s.comment)
}

func (s *Store) SetComment(text string) error {
	b, err := s.cs.Encode(text)
	if err != nil {
		return err
	}
	if text == "" {
		b = nil
	}
	s.comment = b
	s.mark(core.FamilyComment)
	return nil
}

func (s *Store) ICC() []byte { return s.icc }

func (s *Store) SetICC(b []byte) {
	s.icc = nil
	if len(b) > 0 {
		s.icc = bytes.Clone(b)
	}
	s.mark(core.FamilyIcc)
}

func (s *Store) Thumbnail() []byte { return s.exif.Thumbnail }

// SetThumbnail replaces the EXIF thumbnail, which must be a JPEG stream;
// nil removes it.
func (s *Store) SetThumbnail(jpeg []byte) error {
	if len(jpeg) > 0 && !bytes.HasPrefix(jpeg, []byte{0xFF, 0xD8}) {
		return core.Errorf(core.EncodeError, "set thumbnail", "thumbnail is not a JPEG stream")
	}
	s.exif.SetThumbnail(jpeg)
	s.mark(core.FamilyThumbnail, core.FamilyExif)
	return nil
}

// RawXMP returns the packet verbatim when it has not been edited through
// properties, otherwise the packet re-serialized.
func (s *Store) RawXMP() ([]byte, error) {
	if s.raw != nil {
		return s.raw, nil
	}
	return s.xmp.Encode()
}

// SetRawXMP replaces the whole packet. It must parse.
func (s *Store) SetRawXMP(packet []byte) error {
	p, err := xmp.Decode(packet)
	if err != nil {
		return core.Wrap(core.EncodeError, "set raw xmp", err)
	}
	s.xmp = p
	s.raw = bytes.Clone(packet)
	if len(bytes.TrimSpace(packet)) == 0 {
		s.raw = nil
	}
	s.mark(core.FamilyXmp, core.FamilyRawXmp)
	return nil
}

// Dirty lists changed families in canonical order.
func (s *Store) Dirty() []core.Family {
	var out []core.Family
	for _, f := range core.Families {
		if s.dirty[f] {
			out = append(out, f)
		}
	}
	return out
}

// MarkClean forgets every pending change.
func (s *Store) MarkClean() {
	s.dirty = map[core.Family]bool{}
}

// Encode returns the payload of f for the container, nil meaning remove.
// Thumbnail travels inside EXIF and raw XMP inside XMP.
func (s *Store) Encode(f core.Family) ([]byte, error) {
	switch f {
	case core.FamilyExif, core.FamilyThumbnail:
		return s.exif.Encode()
	case core.FamilyIptc:
		return s.iptc.Encode(), nil
	case core.FamilyXmp, core.FamilyRawXmp:
		if s.raw != nil {
			return s.raw, nil
		}
		return s.xmp.Encode()
	case core.FamilyComment:
		return s.comment, nil
	case core.FamilyIcc:
		return s.icc, nil
	}
	return nil, core.Errorf(core.EncodeError, "encode", "unknown family %s", f)
}
