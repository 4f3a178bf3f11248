package container

import (
	"bytes"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/google/go-cmp/cmp"
	goexif "github.com/rwcarlsen/goexif/exif"
	xtiff "golang.org/x/image/tiff"
	"golang.org/x/image/webp"

	"github.com/ankit-chaubey/image-metadata-surgery/core"
	"github.com/ankit-chaubey/image-metadata-surgery/core/charset"
	"github.com/ankit-chaubey/image-metadata-surgery/core/exif"
	"github.com/ankit-chaubey/image-metadata-surgery/core/iptc"
)

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 8, 6))
	for y := 0; y < 6; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 30), uint8(y * 40), 90, 255})
		}
	}
	return img
}

func jpegFixture(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, testImage(), nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func pngFixture(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, testImage()); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func tiffFixture(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := xtiff.Encode(&buf, testImage(), nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func exifBlob(t *testing.T, make string) []byte {
	t.Helper()
	d := exif.New()
	if err := d.Set(core.Mutation{Key: "Exif.Image.Make", Value: make}, charset.UTF8); err != nil {
		t.Fatal(err)
	}
	b, err := d.Encode()
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func iimBlob(t *testing.T, name string) []byte {
	t.Helper()
	d := &iptc.Data{}
	if err := d.Set(core.Mutation{Key: "Iptc.Application2.ObjectName", Value: name}, charset.UTF8); err != nil {
		t.Fatal(err)
	}
	return d.Encode()
}

func payloads(t *testing.T, s Strategy, b []byte) map[core.Family][]byte {
	t.Helper()
	segs, err := s.Locate(b)
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	out := map[core.Family][]byte{}
	for _, seg := range segs {
		if seg.Offset < 0 || seg.Offset+seg.Length > len(b) {
			t.Errorf("%s segment [%d,+%d) outside file of %d bytes", seg.Family, seg.Offset, seg.Length, len(b))
		}
		out[seg.Family] = seg.Payload
	}
	return out
}

func TestJPEGRelinkAllFamilies(t *testing.T) {
	src := jpegFixture(t)
	s, err := For(core.FmtJPEG)
	if err != nil {
		t.Fatal(err)
	}
	icc := bytes.Repeat([]byte("icc-profile-"), 7000) // two APP2 chunks
	edits := Edits{
		core.FamilyExif:    exifBlob(t, "Acme"),
		core.FamilyXmp:     []byte("<x:xmpmeta/>"),
		core.FamilyIcc:     icc,
		core.FamilyIptc:    iimBlob(t, "Harbour"),
		core.FamilyComment: []byte("hello"),
	}
	out, err := s.Relink(src, edits)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := jpeg.Decode(bytes.NewReader(out)); err != nil {
		t.Fatalf("rewritten JPEG does not decode: %v", err)
	}
	_, srcTail, _ := parseJPEG(src)
	if !bytes.HasSuffix(out, srcTail) {
		t.Errorf("scan data changed")
	}
	got := payloads(t, s, out)
	want := map[core.Family][]byte(edits)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("payloads mismatch (-want +got):\n%s", diff)
	}

	// Removing everything gives back the original.
	removeAll := Edits{}
	for f := range edits {
		removeAll[f] = nil
	}
	back, err := s.Relink(out, removeAll)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(back, src) {
		t.Errorf("removing every family did not restore the source")
	}
}

func TestJPEGInsertAfterJFIF(t *testing.T) {
	src := jpegFixture(t)
	app0 := []byte{0xFF, 0xE0, 0, 16, 'J', 'F', 'I', 'F', 0, 1, 1, 0, 0, 1, 0, 1, 0, 0}
	withJFIF := append(append(append([]byte{}, src[:2]...), app0...), src[2:]...)

	out, err := jpegStrategy{}.Relink(withJFIF, Edits{core.FamilyComment: []byte("c")})
	if err != nil {
		t.Fatal(err)
	}
	segs, _, err := parseJPEG(out)
	if err != nil {
		t.Fatal(err)
	}
	if segs[0].marker != markerAPP0 || segs[1].marker != markerCOM {
		t.Errorf("markers = 0x%02x 0x%02x, want APP0 then COM", segs[0].marker, segs[1].marker)
	}
}

// metaOrder lists the metadata segments of a JPEG by family.
func metaOrder(t *testing.T, b []byte) []string {
	t.Helper()
	segs, _, err := parseJPEG(b)
	if err != nil {
		t.Fatal(err)
	}
	var out []string
	for _, s := range segs {
		if f, ok := s.family(); ok {
			out = append(out, f.String())
		}
	}
	return out
}

func TestJPEGDirtyFamilyKeepsItsSlot(t *testing.T) {
	src, err := jpegStrategy{}.Relink(jpegFixture(t), Edits{core.FamilyExif: exifBlob(t, "Acme")})
	if err != nil {
		t.Fatal(err)
	}
	steps := []struct {
		name  string
		edits Edits
		want  []string
	}{
		{"new xmp after exif", Edits{core.FamilyXmp: []byte("<x:xmpmeta/>")}, []string{"exif", "xmp"}},
		{"new comment", Edits{core.FamilyComment: []byte("c")}, []string{"exif", "comment", "xmp"}},
		{"xmp in place", Edits{core.FamilyXmp: []byte("<x:xmpmeta>2</x:xmpmeta>")}, []string{"exif", "comment", "xmp"}},
		{"exif in place", Edits{core.FamilyExif: exifBlob(t, "Zenith")}, []string{"exif", "comment", "xmp"}},
		{"drop comment", Edits{core.FamilyComment: nil}, []string{"exif", "xmp"}},
	}
	cur := src
	for _, st := range steps {
		out, err := jpegStrategy{}.Relink(cur, st.edits)
		if err != nil {
			t.Fatalf("%s: %v", st.name, err)
		}
		if diff := cmp.Diff(st.want, metaOrder(t, out)); diff != "" {
			t.Errorf("%s: segment order (-want +got):\n%s", st.name, diff)
		}
		x, err := goexif.Decode(bytes.NewReader(out))
		if err != nil {
			t.Fatalf("%s: goexif cannot find EXIF: %v", st.name, err)
		}
		if _, err := x.Get(goexif.Make); err != nil {
			t.Errorf("%s: Make: %v", st.name, err)
		}
		cur = out
	}
}

func TestJPEGKeepsOtherPhotoshopResources(t *testing.T) {
	src := jpegFixture(t)
	other := iptc.Resource{Sig: [4]byte{'8', 'B', 'I', 'M'}, ID: 0x03ED, Name: []byte{0, 0}, Data: []byte{1, 2, 3, 4}}
	irb := iptc.EncodeIRB([]iptc.Resource{other})
	seg := append([]byte{0xFF, markerAPP13, 0, byte(2 + len(sigPhotoshop) + len(irb))}, sigPhotoshop...)
	seg = append(seg, irb...)
	withIRB := append(append(append([]byte{}, src[:2]...), seg...), src[2:]...)

	out, err := jpegStrategy{}.Relink(withIRB, Edits{core.FamilyIptc: iimBlob(t, "Harbour")})
	if err != nil {
		t.Fatal(err)
	}
	segs, _, _ := parseJPEG(out)
	var found []iptc.Resource
	for _, s := range segs {
		if f, ok := s.family(); ok && f == core.FamilyIptc {
			found, err = iptc.ParseIRB(s.data[len(sigPhotoshop):])
			if err != nil {
				t.Fatal(err)
			}
		}
	}
	if len(found) != 2 || found[0].ID != 0x03ED || found[1].ID != iptc.ResIPTC {
		t.Errorf("resources = %+v", found)
	}
}

func TestJPEGErrors(t *testing.T) {
	src := jpegFixture(t)
	tests := []struct {
		name  string
		in    []byte
		edits Edits
		want  error
	}{
		{"no SOI", []byte("not a jpeg"), nil, core.ErrMalformedContainer},
		{"truncated segment", src[:5], nil, core.ErrTruncatedData},
		{"oversize exif", src, Edits{core.FamilyExif: make([]byte, 70000)}, core.ErrEncode},
		{"oversize comment", src, Edits{core.FamilyComment: make([]byte, 70000)}, core.ErrEncode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err error
			if tt.edits == nil {
				_, err = jpegStrategy{}.Locate(tt.in)
			} else {
				_, err = jpegStrategy{}.Relink(tt.in, tt.edits)
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestPNGRelinkAllFamilies(t *testing.T) {
	src := pngFixture(t)
	s, _ := For(core.FmtPNG)
	edits := Edits{
		core.FamilyExif:    exifBlob(t, "Acme"),
		core.FamilyXmp:     []byte("<x:xmpmeta/>"),
		core.FamilyIcc:     bytes.Repeat([]byte{1, 2, 3}, 100),
		core.FamilyIptc:    iimBlob(t, "Harbour"),
		core.FamilyComment: []byte("日本"),
	}
	out, err := s.Relink(src, edits)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := png.Decode(bytes.NewReader(out)); err != nil {
		t.Fatalf("rewritten PNG does not decode: %v", err)
	}
	if diff := cmp.Diff(map[core.Family][]byte(edits), payloads(t, s, out)); diff != "" {
		t.Errorf("payloads mismatch (-want +got):\n%s", diff)
	}
	chunks, _ := readPNGChunks(out)
	if chunks[1].typ != "iCCP" {
		t.Errorf("second chunk = %s, want iCCP", chunks[1].typ)
	}

	again, err := s.Relink(out, Edits{core.FamilyComment: []byte("plain")})
	if err != nil {
		t.Fatal(err)
	}
	got := payloads(t, s, again)
	if string(got[core.FamilyComment]) != "plain" || !bytes.Equal(got[core.FamilyIptc], edits[core.FamilyIptc]) {
		t.Errorf("second relink: comment %q, iptc % X", got[core.FamilyComment], got[core.FamilyIptc])
	}
}

// chunkOrder lists chunk types, with the keyword of text chunks.
func chunkOrder(t *testing.T, b []byte) []string {
	t.Helper()
	chunks, err := readPNGChunks(b)
	if err != nil {
		t.Fatal(err)
	}
	var out []string
	for _, c := range chunks {
		if tc, ok, _ := c.text(); ok {
			out = append(out, c.typ+":"+tc.keyword)
			continue
		}
		out = append(out, c.typ)
	}
	return out
}

func TestPNGDirtyChunkKeepsItsSlot(t *testing.T) {
	plain := pngFixture(t)
	chunks, err := readPNGChunks(plain)
	if err != nil {
		t.Fatal(err)
	}
	var src bytes.Buffer
	src.Write(plain[:chunks[0].end])
	writePNGChunk(&src, "tEXt", []byte("Comment\x00first"))
	writePNGChunk(&src, "tEXt", []byte("Author\x00someone"))
	src.Write(plain[chunks[0].end:])

	steps := []struct {
		name  string
		edits Edits
		want  []string
	}{
		{"comment in place", Edits{core.FamilyComment: []byte("second")},
			[]string{"IHDR", "tEXt:Comment", "tEXt:Author", "IDAT", "IEND"}},
		{"new exif before IDAT", Edits{core.FamilyExif: exifBlob(t, "Acme")},
			[]string{"IHDR", "tEXt:Comment", "tEXt:Author", "eXIf", "IDAT", "IEND"}},
		{"exif in place", Edits{core.FamilyExif: exifBlob(t, "Zenith"), core.FamilyIcc: []byte{1, 2, 3}},
			[]string{"IHDR", "iCCP", "tEXt:Comment", "tEXt:Author", "eXIf", "IDAT", "IEND"}},
	}
	cur := src.Bytes()
	for _, st := range steps {
		out, err := pngStrategy{}.Relink(cur, st.edits)
		if err != nil {
			t.Fatalf("%s: %v", st.name, err)
		}
		if diff := cmp.Diff(st.want, chunkOrder(t, out)); diff != "" {
			t.Errorf("%s: chunk order (-want +got):\n%s", st.name, diff)
		}
		if _, err := png.Decode(bytes.NewReader(out)); err != nil {
			t.Fatalf("%s: rewritten PNG does not decode: %v", st.name, err)
		}
		cur = out
	}
	if got := payloads(t, pngStrategy{}, cur)[core.FamilyComment]; string(got) != "second" {
		t.Errorf("comment = %q", got)
	}
}

func TestPNGRawProfile(t *testing.T) {
	data := bytes.Repeat([]byte{0xAB}, 100)
	got, err := decodeRawProfile(encodeRawProfile("IPTC profile", data))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("raw profile round trip = % X", got)
	}
	if _, err := decodeRawProfile([]byte("\nexif\n  10\n00ff\n")); !errors.Is(err, core.ErrTruncatedData) {
		t.Errorf("short profile error = %v", err)
	}
}

func TestTIFFRelink(t *testing.T) {
	src := tiffFixture(t)
	s, _ := For(core.FmtTIFF)
	got := payloads(t, s, src)
	d, err := exif.Decode(got[core.FamilyExif], true)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Set(core.Mutation{Key: "Exif.Image.Artist", Value: "Ansel"}, charset.UTF8); err != nil {
		t.Fatal(err)
	}
	if err := d.Set(core.Mutation{Key: "Exif.Image.ImageWidth", Value: "999"}, charset.UTF8); err != nil {
		t.Fatal(err)
	}
	blob, err := d.Encode()
	if err != nil {
		t.Fatal(err)
	}
	xmp := []byte("<x:xmpmeta/>")
	out, err := s.Relink(src, Edits{core.FamilyExif: blob, core.FamilyXmp: xmp})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out[8:len(src)], src[8:]) {
		t.Errorf("original bytes moved")
	}
	img, err := xtiff.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("rewritten TIFF does not decode: %v", err)
	}
	if img.Bounds().Dx() != 8 {
		t.Errorf("width = %d, structure tag was not restored", img.Bounds().Dx())
	}

	got = payloads(t, s, out)
	if !bytes.Equal(got[core.FamilyXmp], xmp) {
		t.Errorf("xmp = %q", got[core.FamilyXmp])
	}
	d, err = exif.Decode(got[core.FamilyExif], true)
	if err != nil {
		t.Fatal(err)
	}
	entries := map[string]string{}
	for _, e := range d.Entries(charset.UTF8) {
		entries[e.Key] = e.Value
	}
	if entries["Exif.Image.Artist"] != "Ansel" || entries["Exif.Image.ImageWidth"] != "8" {
		t.Errorf("entries = %v", entries)
	}
	if _, ok := entries["Exif.Image.XMLPacket"]; ok {
		t.Errorf("XMLPacket leaked into the EXIF family")
	}
}

func TestTIFFSingleFamilyEdit(t *testing.T) {
	src := tiffFixture(t)
	want, err := xtiff.Decode(bytes.NewReader(src))
	if err != nil {
		t.Fatal(err)
	}
	before, err := exif.Decode(src, false)
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name   string
		family core.Family
		value  []byte
	}{
		{"xmp", core.FamilyXmp, []byte("<x:xmpmeta/>")},
		{"iptc", core.FamilyIptc, iimBlob(t, "Harbour")},
		{"icc", core.FamilyIcc, bytes.Repeat([]byte{9}, 300)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := tiffStrategy{}.Relink(src, Edits{tt.family: tt.value})
			if err != nil {
				t.Fatal(err)
			}
			got, err := xtiff.Decode(bytes.NewReader(out))
			if err != nil {
				t.Fatalf("rewritten TIFF does not decode: %v", err)
			}
			if got.Bounds() != want.Bounds() {
				t.Fatalf("bounds = %v, want %v", got.Bounds(), want.Bounds())
			}
			b := want.Bounds()
			for y := b.Min.Y; y < b.Max.Y; y++ {
				for x := b.Min.X; x < b.Max.X; x++ {
					if got.At(x, y) != want.At(x, y) {
						t.Fatalf("pixel (%d,%d) = %v, want %v", x, y, got.At(x, y), want.At(x, y))
					}
				}
			}

			after, err := exif.Decode(out, false)
			if err != nil {
				t.Fatal(err)
			}
			for _, tag := range before.Tags {
				if after.Find(tag.Group, tag.ID) == nil {
					t.Errorf("IFD0 tag 0x%04x lost", tag.ID)
				}
			}
			if p := payloads(t, tiffStrategy{}, out)[tt.family]; !bytes.Equal(p, tt.value) {
				t.Errorf("%s payload = % X", tt.family, p)
			}
		})
	}
}

func TestTIFFCycle(t *testing.T) {
	b := []byte{'I', 'I', 42, 0, 8, 0, 0, 0, 0, 0, 8, 0, 0, 0}
	if _, err := (tiffStrategy{}).Locate(b); !errors.Is(err, core.ErrMalformedContainer) {
		t.Errorf("Locate() error = %v, want MalformedContainer", err)
	}
}

// vp8lFixture is a lossless WebP holding only a bitstream header; enough
// for DecodeConfig.
func vp8lFixture(w, h int, alpha bool) []byte {
	v := uint32(w-1) | uint32(h-1)<<14
	if alpha {
		v |= 1 << 28
	}
	bits := make([]byte, 5)
	bits[0] = 0x2F
	binary.LittleEndian.PutUint32(bits[1:], v)
	var body bytes.Buffer
	body.WriteString("WEBP")
	writeRIFFChunk(&body, "VP8L", bits)
	out := []byte("RIFF")
	out = binary.LittleEndian.AppendUint32(out, uint32(body.Len()))
	return append(out, body.Bytes()...)
}

func TestWebPSynthesizesVP8X(t *testing.T) {
	src := vp8lFixture(300, 200, true)
	s, _ := For(core.FmtWebP)
	edits := Edits{
		core.FamilyExif: exifBlob(t, "Acme"),
		core.FamilyXmp:  []byte("<x:xmpmeta/>"),
		core.FamilyIcc:  []byte("icc"),
	}
	out, err := s.Relink(src, edits)
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := webp.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Width != 300 || cfg.Height != 200 {
		t.Errorf("canvas = %dx%d", cfg.Width, cfg.Height)
	}
	chunks, err := readRIFF(out)
	if err != nil {
		t.Fatal(err)
	}
	var ids []string
	for _, c := range chunks {
		ids = append(ids, c.id)
	}
	if diff := cmp.Diff([]string{"VP8X", "ICCP", "VP8L", "EXIF", "XMP "}, ids); diff != "" {
		t.Errorf("chunk order (-want +got):\n%s", diff)
	}
	if flags := chunks[0].data[0]; flags != vp8xICC|vp8xAlpha|vp8xExif|vp8xXMP {
		t.Errorf("VP8X flags = %08b", flags)
	}
	if diff := cmp.Diff(map[core.Family][]byte(edits), payloads(t, s, out)); diff != "" {
		t.Errorf("payloads mismatch (-want +got):\n%s", diff)
	}

	out, err = s.Relink(out, Edits{core.FamilyExif: nil, core.FamilyIcc: nil})
	if err != nil {
		t.Fatal(err)
	}
	chunks, _ = readRIFF(out)
	if flags := chunks[0].data[0]; flags != vp8xAlpha|vp8xXMP {
		t.Errorf("VP8X flags after removal = %08b", flags)
	}
	if size := binary.LittleEndian.Uint32(out[4:]); int(size)+8 != len(out) {
		t.Errorf("RIFF size %d for %d bytes", size, len(out))
	}
}

// minimal 1x1 GIF with a comment extension before the image.
var gifFixture = []byte("GIF89a\x01\x00\x01\x00\x80\x00\x00\x00\x00\x00\xff\xff\xff" +
	"\x21\xfe\x05hello\x00" +
	"!\xf9\x04\x01\x00\x00\x00\x00" +
	",\x00\x00\x00\x00\x01\x00\x01\x00\x00\x02\x02D\x01\x00;")

func TestGIFCommentReadOnly(t *testing.T) {
	if _, err := gif.Decode(bytes.NewReader(gifFixture)); err != nil {
		t.Fatalf("fixture: %v", err)
	}
	s, _ := For(core.FmtGIF)
	if got := payloads(t, s, gifFixture)[core.FamilyComment]; string(got) != "hello" {
		t.Errorf("comment = %q", got)
	}
	if _, err := s.Relink(gifFixture, Edits{core.FamilyComment: []byte("x"), core.FamilyExif: nil}); !errors.Is(err, core.ErrAccessDenied) {
		t.Errorf("Relink() error = %v, want AccessDenied", err)
	}
	if got := s.Access()[core.FamilyComment]; got != core.AccessRead {
		t.Errorf("comment access = %v", got)
	}
}

func TestAccessTables(t *testing.T) {
	want := map[core.FormatID]map[core.Family]core.AccessMode{
		core.FmtJPEG: {core.FamilyExif: rw, core.FamilyIptc: rw, core.FamilyXmp: rw, core.FamilyComment: rw, core.FamilyIcc: rw, core.FamilyThumbnail: rw, core.FamilyRawXmp: rw},
		core.FmtTIFF: {core.FamilyExif: rw, core.FamilyIptc: rw, core.FamilyXmp: rw, core.FamilyComment: 0, core.FamilyIcc: rw, core.FamilyThumbnail: 0, core.FamilyRawXmp: rw},
		core.FmtWebP: {core.FamilyExif: rw, core.FamilyIptc: 0, core.FamilyXmp: rw, core.FamilyComment: 0, core.FamilyIcc: rw, core.FamilyThumbnail: rw, core.FamilyRawXmp: rw},
		core.FmtBMP:  {core.FamilyExif: 0, core.FamilyIptc: 0, core.FamilyXmp: 0, core.FamilyComment: 0, core.FamilyIcc: 0, core.FamilyThumbnail: 0, core.FamilyRawXmp: 0},
	}
	for id, w := range want {
		s, err := For(id)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(w, s.Access()); diff != "" {
			t.Errorf("%s access (-want +got):\n%s", id, diff)
		}
	}
	if _, err := For(core.FmtUnknown); !errors.Is(err, core.ErrUnsupportedFormat) {
		t.Errorf("For(unknown) error = %v", err)
	}
}
