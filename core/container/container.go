// Package container locates metadata blocks inside image files and
// relinks a file around replacement blocks. Each format has a Strategy;
// image data is always copied through untouched.
package container

import (
	"github.com/ankit-chaubey/image-metadata-surgery/core"
)

// Edits maps a family to its new encoded payload. A nil payload removes
// the family. Families not in the map are copied through as they are.
//
// Payload forms:
//   - exif: a TIFF stream (byte-order header, IFD0 at its offset)
//   - iptc: an IIM dataset stream
//   - xmp: a serialized packet
//   - icc: the profile bytes
//   - comment: the comment bytes
type Edits map[core.Family][]byte

// Strategy walks and rewrites one container format.
type Strategy interface {
	// Locate returns at most one segment per family. Offset and Length
	// cover the container bytes the family occupies (its first block when
	// it is split); Payload is in the Edits form above.
	Locate(b []byte) ([]core.Segment, error)
	// Relink returns a new container with edits applied.
	Relink(b []byte, edits Edits) ([]byte, error)
	// Access reports what the format supports for each family.
	Access() map[core.Family]core.AccessMode
}

const (
	rw = core.AccessReadWrite
	ro = core.AccessRead
)

// For returns the strategy for a detected format.
func For(id core.FormatID) (Strategy, error) {
	switch id {
	case core.FmtJPEG:
		return jpegStrategy{}, nil
	case core.FmtTIFF:
		return tiffStrategy{}, nil
	case core.FmtPNG:
		return pngStrategy{}, nil
	case core.FmtWebP:
		return webpStrategy{}, nil
	case core.FmtGIF:
		return gifStrategy{}, nil
	case core.FmtBMP:
		return bmpStrategy{}, nil
	}
	return nil, core.Errorf(core.UnsupportedFormat, "container", "no strategy for %s", id)
}

// access fills in AccessNone for every family a table leaves out and
// mirrors raw XMP onto XMP.
func access(m map[core.Family]core.AccessMode) map[core.Family]core.AccessMode {
	out := make(map[core.Family]core.AccessMode, len(core.Families))
	for _, f := range core.Families {
		out[f] = m[f]
	}
	out[core.FamilyRawXmp] = out[core.FamilyXmp]
	return out
}

// Payload returns the payload of family f, or nil.
func Payload(segs []core.Segment, f core.Family) []byte {
	for _, s := range segs {
		if s.Family == f {
			return s.Payload
		}
	}
	return nil
}

func has(edits Edits, f core.Family) bool {
	_, ok := edits[f]
	return ok
}

func clone(b []byte) []byte { return append([]byte(nil), b...) }

// denyEdits fails for every family a read-only container is asked to change.
func denyEdits(name string, edits Edits) error {
	if len(edits) == 0 {
		return nil
	}
	c := core.NewCollector(name + " relink")
	for _, f := range core.Families {
		if has(edits, f) {
			c.Addf(core.AccessDenied, "%s does not support writing %s", name, f)
		}
	}
	return c.Err()
}
