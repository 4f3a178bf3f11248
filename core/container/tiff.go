package container

import (
	"bytes"

	"github.com/rwcarlsen/goexif/tiff"

	"github.com/ankit-chaubey/image-metadata-surgery/core"
	"github.com/ankit-chaubey/image-metadata-surgery/core/exif"
)

// IFD0 tags that describe the raster. Relink restores them from the
// source file whatever the edited model holds.
var tiffStructure = []uint16{
	0x00FE, // NewSubfileType
	0x0100, // ImageWidth
	0x0101, // ImageLength
	0x0102, // BitsPerSample
	0x0103, // Compression
	0x0106, // PhotometricInterpretation
	0x010A, // FillOrder
	0x0111, // StripOffsets
	0x0115, // SamplesPerPixel
	0x0116, // RowsPerStrip
	0x0117, // StripByteCounts
	0x011C, // PlanarConfiguration
	0x013D, // Predictor
	0x0140, // ColorMap
	0x0142, // TileWidth
	0x0143, // TileLength
	0x0144, // TileOffsets
	0x0145, // TileByteCounts
	0x014A, // SubIFDs
	0x0152, // ExtraSamples
	0x0153, // SampleFormat
	0x015B, // JPEGTables
	0x0201, // JPEGInterchangeFormat
	0x0202, // JPEGInterchangeFormatLength
	0x0212, // YCbCrSubSampling
}

// IFD0 tags surfaced as their own families.
var tiffFamilies = []struct {
	family core.Family
	tag    uint16
	typ    tiff.DataType
}{
	{core.FamilyIptc, exif.TagIPTC, tiff.DTUndefined},
	{core.FamilyXmp, exif.TagXMLPacket, tiff.DTByte},
	{core.FamilyIcc, exif.TagICCProfile, tiff.DTUndefined},
}

type tiffStrategy struct{}

func (tiffStrategy) Access() map[core.Family]core.AccessMode {
	return access(map[core.Family]core.AccessMode{
		core.FamilyExif: rw, core.FamilyIptc: rw, core.FamilyXmp: rw, core.FamilyIcc: rw,
	})
}

// decodeTIFF reads IFD0 and its sub-IFDs. Later pages are walked for
// cycles but not modelled.
func decodeTIFF(b []byte) (*exif.Data, error) {
	return exif.Decode(b, false)
}

// Locate reports the EXIF family as the IFD0 tree re-encoded on its own,
// without the tags of the other families and without the page chain.
func (tiffStrategy) Locate(b []byte) ([]core.Segment, error) {
	d, err := decodeTIFF(b)
	if err != nil {
		return nil, err
	}
	var out []core.Segment
	for _, tf := range tiffFamilies {
		t := d.Take(exif.GroupImage, tf.tag)
		if t == nil {
			continue
		}
		off := 0
		if len(t.Val) > 4 {
			off = bytes.Index(b, t.Val)
		}
		out = append(out, core.Segment{Family: tf.family, Offset: off, Length: len(t.Val), Payload: t.Val})
	}
	d.Next = 0
	blob, err := d.Encode()
	if err != nil {
		return nil, err
	}
	out = append([]core.Segment{{Family: core.FamilyExif, Offset: 0, Length: len(b), Payload: blob}}, out...)
	return out, nil
}

// Relink appends a new IFD0 tree after the original bytes and points the
// header at it. Strips, tiles and later pages stay where they are, so
// every offset the file already holds remains valid.
func (tiffStrategy) Relink(b []byte, edits Edits) ([]byte, error) {
	if len(edits) == 0 {
		return clone(b), nil
	}
	orig, err := decodeTIFF(b)
	if err != nil {
		return nil, err
	}

	next := orig.Clone()
	if has(edits, core.FamilyExif) {
		next = &exif.Data{Order: orig.Order}
		if p := edits[core.FamilyExif]; p != nil {
			if next, err = exif.Decode(p, true); err != nil {
				return nil, err
			}
			if next.Order != orig.Order {
				return nil, core.Errorf(core.EncodeError, "tiff relink", "EXIF byte order %v does not match file byte order %v", next.Order, orig.Order)
			}
		}
		for _, tf := range tiffFamilies {
			if t := orig.Find(exif.GroupImage, tf.tag); t != nil {
				next.Put(t)
			}
		}
	}
	for _, id := range tiffStructure {
		for next.Take(exif.GroupImage, id) != nil {
		}
		if t := orig.Find(exif.GroupImage, id); t != nil {
			next.Tags = append(next.Tags, t)
		}
	}
	for _, tf := range tiffFamilies {
		if !has(edits, tf.family) {
			continue
		}
		next.Take(exif.GroupImage, tf.tag)
		if p := edits[tf.family]; p != nil {
			next.Tags = append(next.Tags, &exif.Tag{Group: exif.GroupImage, ID: tf.tag, Type: tf.typ, Count: uint32(len(p)), Val: clone(p)})
		}
	}
	next.Thumbnail = nil
	next.DeleteGroup(exif.GroupThumbnail)
	next.Next = orig.Next
	return next.AppendTo(b)
}
