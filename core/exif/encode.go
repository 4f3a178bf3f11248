package exif

import (
	"math"
	"sort"

	"github.com/garyhouston/tiff66"
	"github.com/rwcarlsen/goexif/tiff"

	"github.com/ankit-chaubey/image-metadata-surgery/core"
	"github.com/ankit-chaubey/image-metadata-surgery/core/bytesio"
)

// Encode returns a standalone TIFF stream: header, IFD0 at offset 8 and
// everything it references. An empty model encodes to nil.
func (d *Data) Encode() ([]byte, error) {
	if d.Empty() {
		return nil, nil
	}
	if d.Order == nil {
		d.Order = New().Order
	}
	hdr := make([]byte, tiff66.HeaderSize)
	tiff66.PutHeader(hdr, d.Order, tiff66.HeaderSize)
	return d.AppendTo(hdr)
}

// AppendTo appends the IFD tree after prefix, which must start with a
// TIFF header in d's byte order, and points the header at the new IFD0.
// Bytes already in prefix are not moved, so absolute offsets held in
// preserved tag values stay valid.
func (d *Data) AppendTo(prefix []byte) (out []byte, err error) {
	if len(prefix) < tiff66.HeaderSize {
		return nil, core.Errorf(core.EncodeError, "exif encode", "prefix shorter than a TIFF header")
	}
	root, thumb := d.tree()

	pos := tiff66.Align(uint32(len(prefix)))
	size := uint64(pos) + uint64(root.TreeSize())
	thumbPos := size + size&1
	if len(d.Thumbnail) > 0 {
		size = thumbPos + uint64(len(d.Thumbnail))
	}
	if size > math.MaxUint32 {
		return nil, core.Errorf(core.EncodeError, "exif encode", "EXIF data exceeds 4 GiB")
	}

	buf := make([]byte, size)
	copy(buf, prefix)
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, core.Errorf(core.EncodeError, "exif encode", "laying out IFD tree: %v", r)
		}
	}()
	end, err := root.PutIFDTree(buf, pos)
	if err != nil {
		return nil, core.Wrap(core.EncodeError, "exif encode", err)
	}
	d.Order.PutUint32(buf[4:8], pos)

	r := bytesio.NewReader(buf, d.Order)
	next, _ := tableEnd(r, pos)
	if thumb == nil {
		d.Order.PutUint32(buf[next:], d.Next)
	} else {
		ifd1 := d.Order.Uint32(buf[next:])
		if len(d.Thumbnail) > 0 {
			copy(buf[thumbPos:], d.Thumbnail)
			word := make([]byte, 4)
			d.Order.PutUint32(word, uint32(thumbPos))
			patch(r, ifd1, tagThumbOffset, word)
			end = uint32(size)
		}
	}
	d.restoreRaw(r, pos)
	return buf[:end], nil
}

// tree builds the tiff66 directories for the model. thumb is IFD1, or
// nil when there is none.
func (d *Data) tree() (root, thumb *tiff66.IFDNode) {
	groups := map[Group][]*Tag{}
	for _, t := range d.Tags {
		groups[t.Group] = append(groups[t.Group], t)
	}
	if len(d.Thumbnail) > 0 {
		groups[GroupThumbnail] = append(groups[GroupThumbnail],
			d.longTag(GroupThumbnail, tagThumbOffset, 0),
			d.longTag(GroupThumbnail, tagThumbLength, uint32(len(d.Thumbnail))))
	}

	iop := d.node(tiff66.InteropSpace, groups[GroupIop])
	photo := d.node(tiff66.ExifSpace, groups[GroupPhoto])
	if iop != nil {
		photo = d.link(photo, tiff66.ExifSpace, GroupPhoto, tagIopIFD, iop)
	}
	gps := d.node(tiff66.GPSSpace, groups[GroupGPS])
	root = d.node(tiff66.TIFFSpace, groups[GroupImage])
	if photo != nil {
		root = d.link(root, tiff66.TIFFSpace, GroupImage, tagExifIFD, photo)
	}
	if gps != nil {
		root = d.link(root, tiff66.TIFFSpace, GroupImage, tagGPSIFD, gps)
	}
	thumb = d.node(tiff66.TIFFSpace, groups[GroupThumbnail])
	if root == nil {
		// IFD1 is only reachable through IFD0.
		root = d.newNode(tiff66.TIFFSpace)
	}
	root.Next = thumb
	return root, thumb
}

func (d *Data) newNode(space tiff66.TagSpace) *tiff66.IFDNode {
	n := tiff66.NewIFDNode(space)
	n.Order = d.Order
	return n
}

// node returns the directory holding tags, sorted by id, with the sub-IFDs
// of preserved tags attached. No tags means no directory.
func (d *Data) node(space tiff66.TagSpace, tags []*Tag) *tiff66.IFDNode {
	if len(tags) == 0 {
		return nil
	}
	sorted := append([]*Tag(nil), tags...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	n := d.newNode(space)
	for _, t := range sorted {
		n.Fields = append(n.Fields, field(t))
		for _, s := range t.Sub {
			n.SubIFDs = append(n.SubIFDs, tiff66.SubIFD{Tag: tiff66.Tag(t.ID), Node: s})
		}
	}
	return n
}

// link adds the pointer field for child to parent, creating parent when
// the group has no tags of its own.
func (d *Data) link(parent *tiff66.IFDNode, space tiff66.TagSpace, g Group, id uint16, child *tiff66.IFDNode) *tiff66.IFDNode {
	if parent == nil {
		parent = d.newNode(space)
	}
	parent.AddFields([]tiff66.Field{field(d.longTag(g, id, 0))})
	parent.SubIFDs = append(parent.SubIFDs, tiff66.SubIFD{Tag: tiff66.Tag(id), Node: child})
	return parent
}

func field(t *Tag) tiff66.Field {
	f := tiff66.Field{Tag: tiff66.Tag(t.ID), Type: tiff66.Type(t.Type), Count: t.Count, Data: t.Val}
	if f.Type.Size() == 0 {
		// Written as zeros by tiff66; restoreRaw puts the word back.
		f.Data = nil
	}
	return f
}

func (d *Data) longTag(g Group, id uint16, v uint32) *Tag {
	b := make([]byte, 4)
	d.Order.PutUint32(b, v)
	return &Tag{Group: g, ID: id, Type: tiff.DTLong, Count: 1, Val: b}
}

// patch overwrites the value word of tag id in the directory at ifd.
func patch(r *bytesio.Reader, ifd uint32, id uint16, word []byte) {
	n, err := r.U16At(int(ifd))
	if err != nil {
		return
	}
	for i := 0; i < int(n); i++ {
		e := int(ifd) + 2 + 12*i
		if tag, _ := r.U16At(e); tag == id {
			copy(r.Buf()[e+8:e+12], word)
			return
		}
	}
}

// restoreRaw writes back the value words of tags whose type has no known
// size, which tiff66 cannot lay out.
func (d *Data) restoreRaw(r *bytesio.Reader, ifd0 uint32) {
	var pending bool
	for _, t := range d.Tags {
		if tiff66.Type(t.Type).Size() == 0 && len(t.Val) == 4 {
			pending = true
		}
	}
	if !pending {
		return
	}
	pos := map[Group]uint32{GroupImage: ifd0}
	pointer := func(ifd uint32, id uint16) uint32 {
		if v := rawEntry(r, ifd, id); v != nil {
			return r.Order.Uint32(v)
		}
		return 0
	}
	if p := pointer(ifd0, tagExifIFD); p != 0 {
		pos[GroupPhoto] = p
		if q := pointer(p, tagIopIFD); q != 0 {
			pos[GroupIop] = q
		}
	}
	if p := pointer(ifd0, tagGPSIFD); p != 0 {
		pos[GroupGPS] = p
	}
	if end, err := tableEnd(r, ifd0); err == nil {
		if p, _ := r.U32At(end); p != 0 {
			pos[GroupThumbnail] = p
		}
	}
	for _, t := range d.Tags {
		ifd, ok := pos[t.Group]
		if !ok || tiff66.Type(t.Type).Size() != 0 || len(t.Val) != 4 {
			continue
		}
		patch(r, ifd, t.ID, t.Val)
	}
}
