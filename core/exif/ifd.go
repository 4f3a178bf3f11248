package exif

import (
	"encoding/binary"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/garyhouston/tiff66"
	"github.com/hashicorp/go-multierror"
	"github.com/rwcarlsen/goexif/tiff"

	"github.com/ankit-chaubey/image-metadata-surgery/core"
	"github.com/ankit-chaubey/image-metadata-surgery/core/bytesio"
	"github.com/ankit-chaubey/image-metadata-surgery/core/log"
)

// ReadHeader validates a TIFF header and returns its byte order and the
// offset of IFD0.
func ReadHeader(b []byte) (binary.ByteOrder, uint32, error) {
	if len(b) < tiff66.HeaderSize {
		return nil, 0, core.Errorf(core.TruncatedData, "tiff header", "need %d bytes, have %d", tiff66.HeaderSize, len(b))
	}
	ok, order, pos := tiff66.GetHeader(b)
	if !ok {
		return nil, 0, core.Errorf(core.MalformedContainer, "tiff header", "bad TIFF header % X", b[:tiff66.HeaderSize])
	}
	return order, pos, nil
}

// tableEnd returns the offset of the next-IFD pointer of the directory at
// pos, checking that the whole table is inside b.
func tableEnd(r *bytesio.Reader, pos uint32) (int, error) {
	n, err := r.U16At(int(pos))
	if err != nil {
		return 0, err
	}
	end := int(pos) + 2 + 12*int(n)
	if _, err := r.U32At(end); err != nil {
		return 0, err
	}
	return end, nil
}

// rawEntry returns the 4-byte value/offset word of tag id in the
// directory at pos.
func rawEntry(r *bytesio.Reader, pos uint32, id uint16) []byte {
	n, err := r.U16At(int(pos))
	if err != nil {
		return nil
	}
	for i := 0; i < int(n); i++ {
		e := int(pos) + 2 + 12*i
		if tag, err := r.U16At(e); err != nil || tag != id {
			continue
		}
		v, err := r.Slice(e+8, 4)
		if err != nil {
			return nil
		}
		return append([]byte(nil), v...)
	}
	return nil
}

type decoder struct {
	r    *bytesio.Reader
	data *Data
	// own holds the offsets of the directories mapped to groups; problems
	// inside them are fatal, problems elsewhere in the tree are logged.
	own map[uint32]Group
}

// Decode parses a TIFF stream into a Data model. With followNext the
// IFD after IFD0 is read as the thumbnail IFD; otherwise the raw next
// pointer of IFD0 is kept in Data.Next.
func Decode(b []byte, followNext bool) (*Data, error) {
	order, pos, err := ReadHeader(b)
	if err != nil {
		return nil, err
	}
	d := &decoder{
		r:    bytesio.NewReader(b, order),
		data: &Data{Order: order},
		own:  map[uint32]Group{pos: GroupImage},
	}
	end, err := tableEnd(d.r, pos)
	if err != nil {
		return nil, core.Wrap(core.TruncatedData, "exif decode", err)
	}
	next, _ := d.r.U32At(end)

	root, treeErr := getTree(b, order, pos)
	d.node(root, GroupImage, pos)
	if followNext && next != 0 {
		d.own[next] = GroupThumbnail
		if root.Next != nil {
			d.node(root.Next, GroupThumbnail, next)
		}
	} else {
		d.data.Next = next
	}
	if err := d.check(treeErr, followNext); err != nil {
		return nil, err
	}
	return d.data, nil
}

// getTree runs tiff66 over b. Its table recovery can index past a short
// buffer, so a panic there is reported as truncation.
func getTree(b []byte, order binary.ByteOrder, pos uint32) (root *tiff66.IFDNode, err error) {
	defer func() {
		if r := recover(); r != nil {
			root = &tiff66.IFDNode{Order: order}
			err = core.Errorf(core.TruncatedData, "", "IFD tree runs past end of input: %v", r)
		}
	}()
	return tiff66.GetIFDTree(b, order, pos, tiff66.TIFFSpace)
}

// node copies the fields of one directory into the model and descends
// into the sub-IFDs that map to groups. Other sub-IFDs stay attached to
// the tag that points at them.
func (d *decoder) node(n *tiff66.IFDNode, g Group, pos uint32) {
	subs := map[tiff66.Tag][]*tiff66.IFDNode{}
	for _, s := range n.SubIFDs {
		subs[s.Tag] = append(subs[s.Tag], s.Node)
	}
	for _, f := range n.Fields {
		id := uint16(f.Tag)
		if child, ok := childGroup(g, id); ok {
			if f.Type.Size() != 4 || f.Count != 1 {
				log.Warn().Str("ifd", g.String()).Uint16("tag", id).Msg("ignoring malformed sub-IFD pointer")
				continue
			}
			off := f.Long(0, n.Order)
			if off == 0 {
				log.Warn().Str("ifd", g.String()).Uint16("tag", id).Msg("ignoring null sub-IFD pointer")
				continue
			}
			d.own[off] = child
			for _, c := range subs[f.Tag] {
				d.node(c, child, off)
			}
			continue
		}
		if g == GroupThumbnail && (id == tagThumbOffset || id == tagThumbLength) {
			continue
		}

		t := &Tag{Group: g, ID: id, Type: tiff.DataType(f.Type), Count: f.Count, Val: append([]byte(nil), f.Data...)}
		if f.Type.Size() == 0 {
			t.Val = rawEntry(d.r, pos, id)
		}
		if s := subs[f.Tag]; len(s) > 0 && !anyEmpty(s) {
			t.Sub = s
		}
		d.data.Tags = append(d.data.Tags, t)
	}
	if g != GroupThumbnail {
		return
	}
	for _, img := range n.GetImageData() {
		if img.OffsetTag == tiff66.JPEGInterchangeFormat && len(img.Segments) == 1 && len(img.Segments[0]) > 0 {
			d.data.Thumbnail = append([]byte(nil), img.Segments[0]...)
		}
	}
}

func anyEmpty(nodes []*tiff66.IFDNode) bool {
	for _, n := range nodes {
		if n == nil || len(n.Fields) == 0 {
			return true
		}
	}
	return false
}

var ifdAt = regexp.MustCompile(`IFD at (\d+)`)

// check sorts the problems tiff66 reported into fatal ones, those inside
// directories the model depends on, and warnings.
func (d *decoder) check(err error, followNext bool) error {
	if err == nil {
		return nil
	}
	var all []error
	var me *multierror.Error
	if errors.As(err, &me) {
		all = me.Errors
	} else {
		all = []error{err}
	}

	var fatal *multierror.Error
	kind := core.KindUnknown
	for _, e := range all {
		msg := e.Error()
		k, ok := d.classify(e, msg, followNext)
		if !ok {
			log.Warn().Str("detail", msg).Msg("tolerating TIFF structure problem")
			continue
		}
		if fatal == nil {
			kind = k
		}
		fatal = multierror.Append(fatal, e)
	}
	if fatal == nil {
		return nil
	}
	return &core.Error{Kind: kind, Op: "exif decode", Err: fatal}
}

func (d *decoder) classify(e error, msg string, followNext bool) (core.Kind, bool) {
	var ce *core.Error
	switch {
	case errors.As(e, &ce):
		return ce.Kind, true
	case strings.Contains(msg, "cycle detected"):
		return core.MalformedContainer, true
	case strings.HasPrefix(msg, "Next pointer"):
		return core.TruncatedData, followNext
	case strings.Contains(msg, "doesn't contain any fields"), strings.HasPrefix(msg, "Unexpected pointer"):
		return core.KindUnknown, false
	}
	if m := ifdAt.FindStringSubmatch(msg); m != nil {
		pos, _ := strconv.ParseUint(m[1], 10, 32)
		if _, ours := d.own[uint32(pos)]; ours {
			return core.TruncatedData, true
		}
	}
	return core.KindUnknown, false
}

func childGroup(g Group, id uint16) (Group, bool) {
	for _, s := range subIFDs[g] {
		if s.tag == id {
			return s.child, true
		}
	}
	return 0, false
}
