package container

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash/crc32"
	"io"
	"strconv"
	"strings"

	"github.com/ankit-chaubey/image-metadata-surgery/core"
	"github.com/ankit-chaubey/image-metadata-surgery/core/iptc"
	"github.com/ankit-chaubey/image-metadata-surgery/core/log"
)

var pngSignature = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

const (
	kwXMP        = "XML:com.adobe.xmp"
	kwRawIPTC    = "Raw profile type iptc"
	kwRawExif    = "Raw profile type exif"
	kwRawAPP1    = "Raw profile type APP1"
	kwComment    = "Comment"
	iccName      = "ICC profile"
	maxPNGLength = 1<<31 - 1
)

type pngChunk struct {
	typ    string
	offset int
	end    int
	data   []byte
}

// textChunk is a decoded tEXt, zTXt or iTXt chunk.
type textChunk struct {
	keyword string
	text    []byte
}

func readPNGChunks(b []byte) ([]pngChunk, error) {
	if !bytes.HasPrefix(b, pngSignature) {
		return nil, core.Errorf(core.MalformedContainer, "png", "bad signature")
	}
	var chunks []pngChunk
	i := len(pngSignature)
	for i < len(b) {
		if len(b)-i < 12 {
			return nil, core.Errorf(core.TruncatedData, "png", "chunk header at %d cut short", i)
		}
		n := int(binary.BigEndian.Uint32(b[i:]))
		typ := string(b[i+4 : i+8])
		if n > maxPNGLength || len(b)-i-12 < n {
			return nil, core.Errorf(core.TruncatedData, "png", "chunk %q at %d needs %d bytes", typ, i, n)
		}
		data := b[i+8 : i+8+n]
		if crc := binary.BigEndian.Uint32(b[i+8+n:]); crc != crc32.Checksum(b[i+4:i+8+n], crc32.IEEETable) {
			log.Warn().Str("chunk", typ).Int("offset", i).Msg("png chunk CRC mismatch")
		}
		chunks = append(chunks, pngChunk{typ: typ, offset: i, end: i + 12 + n, data: data})
		i += 12 + n
		if typ == "IEND" {
			break
		}
	}
	if len(chunks) == 0 || chunks[0].typ != "IHDR" {
		return nil, core.Errorf(core.MalformedContainer, "png", "first chunk is not IHDR")
	}
	return chunks, nil
}

func writePNGChunk(w *bytes.Buffer, typ string, data []byte) {
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(data)))
	w.Write(n[:])
	start := w.Len()
	w.WriteString(typ)
	w.Write(data)
	binary.BigEndian.PutUint32(n[:], crc32.Checksum(w.Bytes()[start:], crc32.IEEETable))
	w.Write(n[:])
}

func inflate(b []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

func deflate(b []byte) []byte {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	zw.Write(b)
	zw.Close()
	return buf.Bytes()
}

// text decodes the keyword and text of a textual chunk.
func (c pngChunk) text() (textChunk, bool, error) {
	if c.typ != "tEXt" && c.typ != "zTXt" && c.typ != "iTXt" {
		return textChunk{}, false, nil
	}
	kw, rest, ok := bytes.Cut(c.data, []byte{0})
	if !ok {
		return textChunk{}, true, core.Errorf(core.MalformedContainer, "png", "%s chunk without keyword terminator", c.typ)
	}
	t := textChunk{keyword: string(kw)}
	bad := func(what string) (textChunk, bool, error) {
		return t, true, core.Errorf(core.MalformedContainer, "png", "%s %q: %s", c.typ, t.keyword, what)
	}
	switch c.typ {
	case "tEXt":
		t.text = rest
	case "zTXt":
		if len(rest) < 1 {
			return bad("missing compression method")
		}
		z, err := inflate(rest[1:])
		if err != nil {
			return bad(err.Error())
		}
		t.text = z
	case "iTXt":
		if len(rest) < 2 {
			return bad("missing compression flags")
		}
		compressed := rest[0] == 1
		rest = rest[2:]
		var found bool
		if _, rest, found = bytes.Cut(rest, []byte{0}); !found { // language
			return bad("missing language terminator")
		}
		if _, rest, found = bytes.Cut(rest, []byte{0}); !found { // translated keyword
			return bad("missing keyword terminator")
		}
		t.text = rest
		if compressed {
			z, err := inflate(rest)
			if err != nil {
				return bad(err.Error())
			}
			t.text = z
		}
	}
	return t, true, nil
}

func iTXt(keyword string, text []byte) []byte {
	out := append([]byte(keyword), 0, 0, 0, 0, 0)
	return append(out, text...)
}

func zTXt(keyword string, text []byte) []byte {
	out := append([]byte(keyword), 0, 0)
	return append(out, deflate(text)...)
}

// decodeRawProfile reads the ImageMagick "Raw profile type" text:
// "\n<name>\n<length>\n<hex digits>".
func decodeRawProfile(text []byte) ([]byte, error) {
	lines := strings.SplitN(strings.TrimLeft(string(text), "\n"), "\n", 3)
	if len(lines) < 3 {
		return nil, core.Errorf(core.MalformedContainer, "png raw profile", "missing header")
	}
	n, err := strconv.Atoi(strings.TrimSpace(lines[1]))
	if err != nil || n < 0 {
		return nil, core.Errorf(core.MalformedContainer, "png raw profile", "bad length %q", lines[1])
	}
	data, err := hex.DecodeString(strings.Join(strings.Fields(lines[2]), ""))
	if err != nil {
		return nil, core.Wrap(core.MalformedContainer, "png raw profile", err)
	}
	if len(data) < n {
		return nil, core.Errorf(core.TruncatedData, "png raw profile", "declares %d bytes, holds %d", n, len(data))
	}
	return data[:n], nil
}

func encodeRawProfile(name string, data []byte) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "\n%s\n%8d\n", name, len(data))
	h := hex.EncodeToString(data)
	for len(h) > 72 {
		buf.WriteString(h[:72])
		buf.WriteByte('\n')
		h = h[72:]
	}
	buf.WriteString(h)
	buf.WriteByte('\n')
	return buf.Bytes()
}

// pngFamily classifies a chunk and decodes its payload.
func pngFamily(c pngChunk) (core.Family, []byte, bool, error) {
	switch c.typ {
	case "eXIf":
		return core.FamilyExif, c.data, true, nil
	case "iCCP":
		_, rest, ok := bytes.Cut(c.data, []byte{0})
		if !ok || len(rest) < 1 {
			return core.FamilyIcc, nil, true, core.Errorf(core.MalformedContainer, "png", "iCCP without profile name")
		}
		p, err := inflate(rest[1:])
		if err != nil {
			return core.FamilyIcc, nil, true, core.Wrap(core.MalformedContainer, "png iCCP", err)
		}
		return core.FamilyIcc, p, true, nil
	}
	t, ok, err := c.text()
	if err != nil {
		log.Warn().Err(err).Int("offset", c.offset).Msg("skipping unreadable png text chunk")
		return 0, nil, false, nil
	}
	if !ok {
		return 0, nil, false, nil
	}
	switch t.keyword {
	case kwXMP:
		return core.FamilyXmp, t.text, true, nil
	case kwComment:
		return core.FamilyComment, t.text, true, nil
	case kwRawIPTC:
		raw, err := decodeRawProfile(t.text)
		if err != nil {
			return core.FamilyIptc, nil, true, err
		}
		if len(raw) > 0 && raw[0] == 0x1C {
			return core.FamilyIptc, raw, true, nil
		}
		iim, err := iptc.FromIRB(raw)
		return core.FamilyIptc, iim, true, err
	case kwRawExif, kwRawAPP1:
		raw, err := decodeRawProfile(t.text)
		if err != nil {
			return core.FamilyExif, nil, true, err
		}
		if i := bytes.Index(raw, sigExif); i >= 0 && i < 8 {
			raw = raw[i+len(sigExif):]
		}
		return core.FamilyExif, raw, true, nil
	}
	return 0, nil, false, nil
}

type pngStrategy struct{}

func (pngStrategy) Access() map[core.Family]core.AccessMode {
	return access(map[core.Family]core.AccessMode{
		core.FamilyExif: rw, core.FamilyIptc: rw, core.FamilyXmp: rw,
		core.FamilyComment: rw, core.FamilyIcc: rw, core.FamilyThumbnail: rw,
	})
}

func (pngStrategy) Locate(b []byte) ([]core.Segment, error) {
	chunks, err := readPNGChunks(b)
	if err != nil {
		return nil, err
	}
	var out []core.Segment
	seen := map[core.Family]bool{}
	for _, c := range chunks {
		f, payload, ok, err := pngFamily(c)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		// eXIf wins over a legacy raw profile that came first.
		if seen[f] && !(f == core.FamilyExif && c.typ == "eXIf") {
			continue
		}
		seg := core.Segment{Family: f, Offset: c.offset, Length: c.end - c.offset, Payload: payload}
		if seen[f] {
			for i := range out {
				if out[i].Family == f {
					out[i] = seg
				}
			}
			continue
		}
		seen[f] = true
		out = append(out, seg)
	}
	return out, nil
}

func (pngStrategy) Relink(b []byte, edits Edits) ([]byte, error) {
	chunks, err := readPNGChunks(b)
	if err != nil {
		return nil, err
	}

	var irb []byte
	if has(edits, core.FamilyIptc) {
		for _, c := range chunks {
			if t, ok, _ := c.text(); ok && t.keyword == kwRawIPTC {
				if raw, err := decodeRawProfile(t.text); err == nil && (len(raw) == 0 || raw[0] != 0x1C) {
					irb = raw
				}
				break
			}
		}
	}

	fresh, err := pngEdits(edits, irb)
	if err != nil {
		return nil, err
	}

	// A dirty family is rewritten where its first chunk was. New families
	// go before the first IDAT, ICC right after IHDR. eXIf and iCCP are
	// not left behind image data.
	present := map[core.Family]bool{}
	afterData := false
	for _, c := range chunks {
		if c.typ == "IDAT" {
			afterData = true
		}
		if f, _, ok, _ := pngFamily(c); ok && !(afterData && (f == core.FamilyExif || f == core.FamilyIcc)) {
			present[f] = true
		}
	}

	var buf bytes.Buffer
	buf.Grow(len(b))
	buf.Write(pngSignature)
	emitted := map[core.Family]bool{}
	emit := func(f core.Family) {
		if !emitted[f] {
			buf.Write(fresh[f])
			emitted[f] = true
		}
	}
	placed := false
	for _, c := range chunks {
		if !placed && (c.typ == "IDAT" || c.typ == "IEND") {
			for _, f := range pngOrder {
				if !present[f] {
					emit(f)
				}
			}
			placed = true
		}
		if f, _, ok, _ := pngFamily(c); ok && has(edits, f) {
			if present[f] {
				emit(f)
			}
			continue
		}
		buf.Write(b[c.offset:c.end])
		if c.typ == "IHDR" && !present[core.FamilyIcc] {
			emit(core.FamilyIcc)
		}
	}
	for _, f := range pngOrder {
		emit(f)
	}
	buf.Write(b[chunks[len(chunks)-1].end:])
	return buf.Bytes(), nil
}

// pngOrder is the order in which new families are inserted before image
// data.
var pngOrder = []core.Family{core.FamilyExif, core.FamilyXmp, core.FamilyIptc, core.FamilyComment}

// pngEdits renders the chunk of every edited family. A removed family
// renders to nothing.
func pngEdits(edits Edits, irb []byte) (map[core.Family][]byte, error) {
	out := map[core.Family][]byte{}
	chunk := func(f core.Family, typ string, data []byte) {
		var buf bytes.Buffer
		writePNGChunk(&buf, typ, data)
		out[f] = buf.Bytes()
	}
	if p := edits[core.FamilyIcc]; p != nil {
		chunk(core.FamilyIcc, "iCCP", append(append([]byte(iccName), 0, 0), deflate(p)...))
	}
	if p := edits[core.FamilyExif]; p != nil {
		chunk(core.FamilyExif, "eXIf", p)
	}
	if p := edits[core.FamilyXmp]; p != nil {
		chunk(core.FamilyXmp, "iTXt", iTXt(kwXMP, p))
	}
	if has(edits, core.FamilyIptc) {
		next, err := iptc.ReplaceIPTC(irb, edits[core.FamilyIptc])
		if err != nil {
			return nil, err
		}
		if len(next) > 0 {
			chunk(core.FamilyIptc, "zTXt", zTXt(kwRawIPTC, encodeRawProfile("IPTC profile", next)))
		}
	}
	if p := edits[core.FamilyComment]; p != nil {
		if asciiText(p) {
			chunk(core.FamilyComment, "tEXt", append(append([]byte(kwComment), 0), p...))
		} else {
			chunk(core.FamilyComment, "iTXt", iTXt(kwComment, p))
		}
	}
	return out, nil
}

// asciiText reports whether p can go in a tEXt chunk as is.
func asciiText(p []byte) bool {
	for _, c := range p {
		if c >= 0x80 || c == 0 {
			return false
		}
	}
	return true
}
