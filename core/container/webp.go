package container

import (
	"bytes"
	"encoding/binary"

	"github.com/ankit-chaubey/image-metadata-surgery/core"
)

// VP8X feature flags.
const (
	vp8xICC   = 0x20
	vp8xAlpha = 0x10
	vp8xExif  = 0x08
	vp8xXMP   = 0x04
)

type riffChunk struct {
	id     string
	offset int
	end    int // padding included
	data   []byte
}

func readRIFF(b []byte) ([]riffChunk, error) {
	if len(b) < 12 || string(b[:4]) != "RIFF" || string(b[8:12]) != "WEBP" {
		return nil, core.Errorf(core.MalformedContainer, "webp", "missing RIFF/WEBP header")
	}
	size := int(binary.LittleEndian.Uint32(b[4:]))
	if size+8 > len(b) {
		return nil, core.Errorf(core.TruncatedData, "webp", "RIFF declares %d bytes, file has %d", size+8, len(b))
	}
	body := b[:size+8]
	var chunks []riffChunk
	for i := 12; i < len(body); {
		if len(body)-i < 8 {
			return nil, core.Errorf(core.TruncatedData, "webp", "chunk header at %d cut short", i)
		}
		id := string(body[i : i+4])
		n := int(binary.LittleEndian.Uint32(body[i+4:]))
		if n < 0 || len(body)-i-8 < n {
			return nil, core.Errorf(core.TruncatedData, "webp", "chunk %q at %d needs %d bytes", id, i, n)
		}
		end := min(i+8+n+n&1, len(body))
		chunks = append(chunks, riffChunk{id: id, offset: i, end: end, data: body[i+8 : i+8+n]})
		i = end
	}
	return chunks, nil
}

func writeRIFFChunk(w *bytes.Buffer, id string, data []byte) {
	w.WriteString(id)
	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], uint32(len(data)))
	w.Write(n[:])
	w.Write(data)
	if len(data)&1 == 1 {
		w.WriteByte(0)
	}
}

func webpFamily(id string) (core.Family, bool) {
	switch id {
	case "EXIF":
		return core.FamilyExif, true
	case "XMP ":
		return core.FamilyXmp, true
	case "ICCP":
		return core.FamilyIcc, true
	}
	return 0, false
}

type webpStrategy struct{}

func (webpStrategy) Access() map[core.Family]core.AccessMode {
	return access(map[core.Family]core.AccessMode{
		core.FamilyExif: rw, core.FamilyXmp: rw, core.FamilyIcc: rw, core.FamilyThumbnail: rw,
	})
}

func (webpStrategy) Locate(b []byte) ([]core.Segment, error) {
	chunks, err := readRIFF(b)
	if err != nil {
		return nil, err
	}
	var out []core.Segment
	seen := map[core.Family]bool{}
	for _, c := range chunks {
		f, ok := webpFamily(c.id)
		if !ok || seen[f] {
			continue
		}
		seen[f] = true
		payload := c.data
		if f == core.FamilyExif {
			payload = bytes.TrimPrefix(payload, sigExif)
		}
		out = append(out, core.Segment{Family: f, Offset: c.offset, Length: c.end - c.offset, Payload: payload})
	}
	return out, nil
}

// canvas reads the canvas size from the first image bitstream.
func canvas(chunks []riffChunk) (w, h int, alpha bool, err error) {
	for _, c := range chunks {
		switch c.id {
		case "VP8 ":
			d := c.data
			if len(d) < 10 || d[3] != 0x9D || d[4] != 0x01 || d[5] != 0x2A {
				return 0, 0, false, core.Errorf(core.MalformedContainer, "webp", "bad VP8 frame header")
			}
			return int(binary.LittleEndian.Uint16(d[6:]) & 0x3FFF), int(binary.LittleEndian.Uint16(d[8:]) & 0x3FFF), false, nil
		case "VP8L":
			d := c.data
			if len(d) < 5 || d[0] != 0x2F {
				return 0, 0, false, core.Errorf(core.MalformedContainer, "webp", "bad VP8L header")
			}
			v := binary.LittleEndian.Uint32(d[1:])
			return int(v&0x3FFF) + 1, int(v>>14&0x3FFF) + 1, v>>28&1 == 1, nil
		}
	}
	return 0, 0, false, core.Errorf(core.MalformedContainer, "webp", "no image bitstream")
}

func put24(b []byte, v int) {
	b[0], b[1], b[2] = byte(v), byte(v>>8), byte(v>>16)
}

// Relink rebuilds the chunk list as VP8X, ICCP, image data and unknown
// chunks in source order, EXIF, XMP. A VP8X header is synthesized when
// the file had none and metadata is present.
func (webpStrategy) Relink(b []byte, edits Edits) ([]byte, error) {
	chunks, err := readRIFF(b)
	if err != nil {
		return nil, err
	}
	if len(edits) == 0 {
		return clone(b), nil
	}

	pick := func(f core.Family, id string) []byte {
		if has(edits, f) {
			return edits[f]
		}
		for _, c := range chunks {
			if c.id == id {
				return c.data
			}
		}
		return nil
	}
	icc := pick(core.FamilyIcc, "ICCP")
	exifData := pick(core.FamilyExif, "EXIF")
	xmpData := pick(core.FamilyXmp, "XMP ")

	var vp8x []byte
	for _, c := range chunks {
		if c.id == "VP8X" {
			if len(c.data) < 10 {
				return nil, core.Errorf(core.MalformedContainer, "webp", "VP8X chunk of %d bytes", len(c.data))
			}
			vp8x = clone(c.data)
		}
	}
	if vp8x == nil && (icc != nil || exifData != nil || xmpData != nil) {
		w, h, alpha, err := canvas(chunks)
		if err != nil {
			return nil, err
		}
		vp8x = make([]byte, 10)
		put24(vp8x[4:], w-1)
		put24(vp8x[7:], h-1)
		if alpha {
			vp8x[0] |= vp8xAlpha
		}
	}
	if vp8x != nil {
		vp8x[0] &^= vp8xICC | vp8xExif | vp8xXMP
		for _, c := range chunks {
			if c.id == "ALPH" {
				vp8x[0] |= vp8xAlpha
			}
		}
		if icc != nil {
			vp8x[0] |= vp8xICC
		}
		if exifData != nil {
			vp8x[0] |= vp8xExif
		}
		if xmpData != nil {
			vp8x[0] |= vp8xXMP
		}
	}

	var body bytes.Buffer
	body.WriteString("WEBP")
	if vp8x != nil {
		writeRIFFChunk(&body, "VP8X", vp8x)
	}
	if icc != nil {
		writeRIFFChunk(&body, "ICCP", icc)
	}
	for _, c := range chunks {
		if _, meta := webpFamily(c.id); meta || c.id == "VP8X" {
			continue
		}
		body.Write(b[c.offset:c.end])
		if c.end-c.offset < 8+len(c.data)+len(c.data)&1 {
			body.WriteByte(0)
		}
	}
	if exifData != nil {
		writeRIFFChunk(&body, "EXIF", exifData)
	}
	if xmpData != nil {
		writeRIFFChunk(&body, "XMP ", xmpData)
	}

	var out bytes.Buffer
	out.Grow(body.Len() + 8)
	out.WriteString("RIFF")
	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], uint32(body.Len()))
	out.Write(n[:])
	out.Write(body.Bytes())
	return out.Bytes(), nil
}
