package container

import (
	"bytes"
	"encoding/binary"
	"sort"

	"github.com/ankit-chaubey/image-metadata-surgery/core"
	"github.com/ankit-chaubey/image-metadata-surgery/core/iptc"
)

const (
	markerSOI   = 0xD8
	markerEOI   = 0xD9
	markerSOS   = 0xDA
	markerAPP0  = 0xE0
	markerAPP1  = 0xE1
	markerAPP2  = 0xE2
	markerAPP13 = 0xED
	markerCOM   = 0xFE

	maxSegment = 0xFFFF - 2
	iccChunk   = maxSegment - 14
)

var (
	sigExif      = []byte("Exif\x00\x00")
	sigXMP       = []byte("http://ns.adobe.com/xap/1.0/\x00")
	sigICC       = []byte("ICC_PROFILE\x00")
	sigPhotoshop = []byte("Photoshop 3.0\x00")
	sigJFIF      = []byte("JFIF\x00")
	sigJFXX      = []byte("JFXX\x00")
)

type jpegSegment struct {
	marker byte
	offset int // first byte, fill bytes included
	end    int
	data   []byte // payload after the length field
}

func (s jpegSegment) family() (core.Family, bool) {
	switch {
	case s.marker == markerAPP1 && bytes.HasPrefix(s.data, sigExif):
		return core.FamilyExif, true
	case s.marker == markerAPP1 && bytes.HasPrefix(s.data, sigXMP):
		return core.FamilyXmp, true
	case s.marker == markerAPP2 && bytes.HasPrefix(s.data, sigICC):
		return core.FamilyIcc, true
	case s.marker == markerAPP13 && bytes.HasPrefix(s.data, sigPhotoshop):
		return core.FamilyIptc, true
	case s.marker == markerCOM:
		return core.FamilyComment, true
	}
	return 0, false
}

// parseJPEG splits b into the marker segments before the first scan and
// the tail from SOS (or EOI) onward, which is never interpreted.
func parseJPEG(b []byte) ([]jpegSegment, []byte, error) {
	if len(b) < 2 || b[0] != 0xFF || b[1] != markerSOI {
		return nil, nil, core.Errorf(core.MalformedContainer, "jpeg", "missing SOI marker")
	}
	var segs []jpegSegment
	i := 2
	for {
		start := i
		if i >= len(b) {
			return nil, nil, core.Errorf(core.TruncatedData, "jpeg", "no scan data after offset %d", start)
		}
		if b[i] != 0xFF {
			return nil, nil, core.Errorf(core.MalformedContainer, "jpeg", "expected marker at offset %d, got 0x%02x", i, b[i])
		}
		for i < len(b) && b[i] == 0xFF {
			i++
		}
		if i >= len(b) {
			return nil, nil, core.Errorf(core.TruncatedData, "jpeg", "marker cut short at offset %d", start)
		}
		marker := b[i]
		i++
		switch {
		case marker == markerSOS || marker == markerEOI:
			return segs, b[start:], nil
		case marker == 0x01 || (marker >= 0xD0 && marker <= 0xD7):
			continue
		}
		if i+2 > len(b) {
			return nil, nil, core.Errorf(core.TruncatedData, "jpeg", "segment 0x%02x length cut short", marker)
		}
		n := int(binary.BigEndian.Uint16(b[i:]))
		if n < 2 {
			return nil, nil, core.Errorf(core.MalformedContainer, "jpeg", "segment 0x%02x has length %d", marker, n)
		}
		if i+n > len(b) {
			return nil, nil, core.Errorf(core.TruncatedData, "jpeg", "segment 0x%02x at %d needs %d bytes", marker, start, n)
		}
		segs = append(segs, jpegSegment{marker: marker, offset: start, end: i + n, data: b[i+2 : i+n]})
		i += n
	}
}

type jpegStrategy struct{}

func (jpegStrategy) Access() map[core.Family]core.AccessMode {
	return access(map[core.Family]core.AccessMode{
		core.FamilyExif: rw, core.FamilyIptc: rw, core.FamilyXmp: rw,
		core.FamilyComment: rw, core.FamilyIcc: rw, core.FamilyThumbnail: rw,
	})
}

func (jpegStrategy) Locate(b []byte) ([]core.Segment, error) {
	segs, _, err := parseJPEG(b)
	if err != nil {
		return nil, err
	}
	var (
		out    []core.Segment
		seen   = map[core.Family]bool{}
		icc    []jpegSegment
		irb    []byte
		irbSeg *jpegSegment
	)
	for i, s := range segs {
		f, ok := s.family()
		if !ok {
			continue
		}
		switch f {
		case core.FamilyIcc:
			icc = append(icc, s)
			continue
		case core.FamilyIptc:
			if irbSeg == nil {
				irbSeg = &segs[i]
			}
			irb = append(irb, s.data[len(sigPhotoshop):]...)
			continue
		}
		if seen[f] {
			continue
		}
		seen[f] = true
		payload := s.data
		switch f {
		case core.FamilyExif:
			payload = s.data[len(sigExif):]
		case core.FamilyXmp:
			payload = s.data[len(sigXMP):]
		}
		out = append(out, core.Segment{Family: f, Offset: s.offset, Length: s.end - s.offset, Payload: payload})
	}
	if len(icc) > 0 {
		profile, err := joinICC(icc)
		if err != nil {
			return nil, err
		}
		out = append(out, core.Segment{Family: core.FamilyIcc, Offset: icc[0].offset, Length: icc[0].end - icc[0].offset, Payload: profile})
	}
	if irbSeg != nil {
		iim, err := iptc.FromIRB(irb)
		if err != nil {
			return nil, err
		}
		if len(iim) > 0 {
			out = append(out, core.Segment{Family: core.FamilyIptc, Offset: irbSeg.offset, Length: irbSeg.end - irbSeg.offset, Payload: iim})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Offset < out[j].Offset })
	return out, nil
}

// joinICC reassembles APP2 chunks by sequence number.
func joinICC(chunks []jpegSegment) ([]byte, error) {
	type part struct {
		seq  byte
		data []byte
	}
	var parts []part
	for _, c := range chunks {
		d := c.data[len(sigICC):]
		if len(d) < 2 {
			return nil, core.Errorf(core.TruncatedData, "jpeg icc", "chunk at %d has no sequence header", c.offset)
		}
		parts = append(parts, part{seq: d[0], data: d[2:]})
	}
	sort.SliceStable(parts, func(i, j int) bool { return parts[i].seq < parts[j].seq })
	var out []byte
	for _, p := range parts {
		out = append(out, p.data...)
	}
	return out, nil
}

// jpegOrder is the order in which families new to a file are inserted.
var jpegOrder = []core.Family{core.FamilyExif, core.FamilyXmp, core.FamilyIcc, core.FamilyIptc, core.FamilyComment}

func (jpegStrategy) Relink(b []byte, edits Edits) ([]byte, error) {
	segs, tail, err := parseJPEG(b)
	if err != nil {
		return nil, err
	}

	var irb []byte
	for _, s := range segs {
		if f, ok := s.family(); ok && f == core.FamilyIptc {
			irb = append(irb, s.data[len(sigPhotoshop):]...)
		}
	}

	c := core.NewCollector("jpeg relink")
	fresh := map[core.Family][][]byte{} // complete segments, marker included
	add := func(f core.Family, marker byte, parts ...[]byte) {
		n := 0
		for _, p := range parts {
			n += len(p)
		}
		if n > maxSegment {
			c.Addf(core.EncodeError, "segment 0x%02x payload of %d bytes exceeds %d", marker, n, maxSegment)
			return
		}
		seg := []byte{0xFF, marker, byte((n + 2) >> 8), byte(n + 2)}
		for _, p := range parts {
			seg = append(seg, p...)
		}
		fresh[f] = append(fresh[f], seg)
	}
	if p := edits[core.FamilyExif]; p != nil {
		add(core.FamilyExif, markerAPP1, sigExif, p)
	}
	if p := edits[core.FamilyXmp]; p != nil {
		add(core.FamilyXmp, markerAPP1, sigXMP, p)
	}
	if p := edits[core.FamilyIcc]; p != nil {
		count := (len(p) + iccChunk - 1) / iccChunk
		if count > 255 {
			c.Addf(core.EncodeError, "ICC profile of %d bytes needs %d chunks", len(p), count)
		}
		for i := 0; i < count && count <= 255; i++ {
			end := min((i+1)*iccChunk, len(p))
			add(core.FamilyIcc, markerAPP2, sigICC, []byte{byte(i + 1), byte(count)}, p[i*iccChunk:end])
		}
	}
	if has(edits, core.FamilyIptc) {
		next, err := iptc.ReplaceIPTC(irb, edits[core.FamilyIptc])
		c.Add(err)
		if len(next) > 0 {
			add(core.FamilyIptc, markerAPP13, sigPhotoshop, next)
		}
	}
	if p := edits[core.FamilyComment]; p != nil {
		add(core.FamilyComment, markerCOM, p)
	}
	if err := c.Err(); err != nil {
		return nil, err
	}

	// A dirty family takes the place of its first segment. Families the
	// file did not have go after SOI and any JFIF/JFXX APP0, and after a
	// leading EXIF APP1 unless they are EXIF themselves.
	present := map[core.Family]bool{}
	for _, s := range segs {
		if f, ok := s.family(); ok {
			present[f] = true
		}
	}
	emitted := map[core.Family]bool{}
	var out bytes.Buffer
	out.Grow(len(b))
	out.Write([]byte{0xFF, markerSOI})
	emit := func(f core.Family) {
		if emitted[f] {
			return
		}
		for _, seg := range fresh[f] {
			out.Write(seg)
		}
		emitted[f] = true
	}
	writeNew := func(exifOnly bool) {
		for _, f := range jpegOrder {
			if !present[f] && (f == core.FamilyExif) == exifOnly {
				emit(f)
			}
		}
	}
	exifDone, restDone := false, false
	for _, s := range segs {
		f, ok := s.family()
		jfif := s.marker == markerAPP0 && (bytes.HasPrefix(s.data, sigJFIF) || bytes.HasPrefix(s.data, sigJFXX))
		if !exifDone && !jfif {
			writeNew(true)
			exifDone = true
		}
		if !restDone && !jfif && !(ok && f == core.FamilyExif) {
			writeNew(false)
			restDone = true
		}
		if !ok || !has(edits, f) {
			out.Write(b[s.offset:s.end])
			continue
		}
		emit(f)
	}
	if !exifDone {
		writeNew(true)
	}
	if !restDone {
		writeNew(false)
	}
	out.Write(tail)
	return out.Bytes(), nil
}
