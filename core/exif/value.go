package exif

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/garyhouston/tiff66"
	"github.com/rwcarlsen/goexif/tiff"
	"golang.org/x/text/encoding/unicode"

	"github.com/ankit-chaubey/image-metadata-surgery/core"
	"github.com/ankit-chaubey/image-metadata-surgery/core/charset"
	"github.com/ankit-chaubey/image-metadata-surgery/core/log"
)

// UserComment character code prefixes.
var (
	ucASCII     = []byte("ASCII\x00\x00\x00")
	ucUnicode   = []byte("UNICODE\x00")
	ucJIS       = []byte("JIS\x00\x00\x00\x00\x00")
	ucUndefined = make([]byte, 8)
)

const exifDateLayout = "2006:01:02 15:04:05"

// render formats a tag value as text. Rationals keep their exact pair.
func render(t *Tag, order binary.ByteOrder, cs *charset.Codec) string {
	if t.Group == GroupPhoto && t.ID == TagUserComment {
		return renderUserComment(t.Val, order)
	}
	size := tiff66.Type(t.Type).Size()
	if size == 0 {
		return hex.EncodeToString(t.Val)
	}
	n := int(t.Count)
	if size*t.Count > uint32(len(t.Val)) {
		n = len(t.Val) / int(size)
	}
	parts := make([]string, 0, n)
	for i := 0; i < n; i++ {
		b := t.Val[i*int(size):]
		switch t.Type {
		case tiff.DTAscii:
			text := string(bytes.TrimRight(t.Val, "\x00"))
			if cs != nil {
				s, err := cs.Decode(bytes.TrimRight(t.Val, "\x00"))
				if err != nil {
					log.Warn().Str("tag", Key(t.Group, t.ID)).Err(err).Msg("rendering raw ascii")
				} else {
					text = s
				}
			}
			return text
		case tiff.DTByte, tiff.DTUndefined:
			parts = append(parts, strconv.Itoa(int(b[0])))
		case tiff.DTSByte:
			parts = append(parts, strconv.Itoa(int(int8(b[0]))))
		case tiff.DTShort:
			parts = append(parts, strconv.Itoa(int(order.Uint16(b))))
		case tiff.DTSShort:
			parts = append(parts, strconv.Itoa(int(int16(order.Uint16(b)))))
		case tiff.DTLong, dtIFD:
			parts = append(parts, strconv.FormatUint(uint64(order.Uint32(b)), 10))
		case tiff.DTSLong:
			parts = append(parts, strconv.Itoa(int(int32(order.Uint32(b)))))
		case tiff.DTRational:
			parts = append(parts, fmt.Sprintf("%d/%d", order.Uint32(b), order.Uint32(b[4:])))
		case tiff.DTSRational:
			parts = append(parts, fmt.Sprintf("%d/%d", int32(order.Uint32(b)), int32(order.Uint32(b[4:]))))
		case tiff.DTFloat:
			parts = append(parts, strconv.FormatFloat(float64(math.Float32frombits(order.Uint32(b))), 'g', -1, 32))
		case tiff.DTDouble:
			parts = append(parts, strconv.FormatFloat(math.Float64frombits(order.Uint64(b)), 'g', -1, 64))
		}
	}
	return strings.Join(parts, " ")
}

func renderUserComment(v []byte, order binary.ByteOrder) string {
	if len(v) < 8 {
		return string(bytes.TrimRight(v, "\x00 "))
	}
	head, body := v[:8], v[8:]
	switch {
	case bytes.Equal(head, ucUnicode):
		end := unicode.LittleEndian
		if order == binary.BigEndian {
			end = unicode.BigEndian
		}
		s, err := unicode.UTF16(end, unicode.UseBOM).NewDecoder().Bytes(body)
		if err == nil {
			return strings.TrimRight(string(s), "\x00 ")
		}
	case bytes.Equal(head, ucJIS):
		return "charset=Jis " + string(bytes.TrimRight(body, "\x00 "))
	case bytes.Equal(head, ucUndefined):
		return string(bytes.TrimRight(body, "\x00 "))
	}
	return string(bytes.TrimRight(body, "\x00 "))
}

func encodeUserComment(text string, order binary.ByteOrder) ([]byte, error) {
	cs := ""
	if strings.HasPrefix(text, "charset=") {
		sp := strings.IndexByte(text, ' ')
		if sp < 0 {
			cs, text = text[len("charset="):], ""
		} else {
			cs, text = text[len("charset="):sp], text[sp+1:]
		}
		cs = strings.Trim(cs, `"`)
	}
	if cs == "" {
		cs = "Ascii"
		for _, r := range text {
			if r > 0x7F {
				cs = "Unicode"
				break
			}
		}
	}
	switch strings.ToLower(cs) {
	case "ascii":
		for _, r := range text {
			if r > 0x7F {
				return nil, core.Errorf(core.EncodingError, "exif", "UserComment %q is not ASCII", text)
			}
		}
		return append(append([]byte(nil), ucASCII...), text...), nil
	case "unicode":
		end := unicode.LittleEndian
		if order == binary.BigEndian {
			end = unicode.BigEndian
		}
		b, err := unicode.UTF16(end, unicode.IgnoreBOM).NewEncoder().Bytes([]byte(text))
		if err != nil {
			return nil, core.Wrap(core.EncodingError, "exif", err)
		}
		return append(append([]byte(nil), ucUnicode...), b...), nil
	case "jis":
		return append(append([]byte(nil), ucJIS...), text...), nil
	case "undefined":
		return append(append([]byte(nil), ucUndefined...), text...), nil
	}
	return nil, core.Errorf(core.EncodeError, "exif", "unknown UserComment charset %q", cs)
}

// normalizeDate accepts EXIF and ISO 8601 date-times.
func normalizeDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{exifDateLayout, "2006-01-02T15:04:05", "2006-01-02 15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(exifDateLayout), nil
		}
	}
	return "", core.Errorf(core.EncodeError, "exif", "invalid date %q, want YYYY:MM:DD HH:MM:SS", s)
}

// parse encodes text as a value of type dt. It returns the raw bytes and
// the component count.
func parse(text string, dt tiff.DataType, order binary.ByteOrder, cs *charset.Codec) ([]byte, uint32, error) {
	if dt == tiff.DTAscii {
		b, err := cs.Encode(text)
		if err != nil {
			return nil, 0, err
		}
		b = append(b, 0)
		return b, uint32(len(b)), nil
	}
	return parseFields(strings.Fields(text), dt, order)
}

func parseFields(fields []string, dt tiff.DataType, order binary.ByteOrder) ([]byte, uint32, error) {
	if len(fields) == 0 {
		return nil, 0, core.Errorf(core.EncodeError, "exif", "empty %s value", TypeName(dt))
	}
	var buf bytes.Buffer
	for _, f := range fields {
		if err := appendField(&buf, f, dt, order); err != nil {
			return nil, 0, err
		}
	}
	return buf.Bytes(), uint32(len(fields)), nil
}

func appendField(buf *bytes.Buffer, f string, dt tiff.DataType, order binary.ByteOrder) error {
	bad := func(err error) error {
		return core.Errorf(core.EncodeError, "exif", "invalid %s component %q: %v", TypeName(dt), f, err)
	}
	var tmp [8]byte
	switch dt {
	case tiff.DTByte, tiff.DTUndefined:
		v, err := strconv.ParseUint(f, 10, 8)
		if err != nil {
			return bad(err)
		}
		buf.WriteByte(byte(v))
	case tiff.DTSByte:
		v, err := strconv.ParseInt(f, 10, 8)
		if err != nil {
			return bad(err)
		}
		buf.WriteByte(byte(int8(v)))
	case tiff.DTShort:
		v, err := strconv.ParseUint(f, 10, 16)
		if err != nil {
			return bad(err)
		}
		order.PutUint16(tmp[:], uint16(v))
		buf.Write(tmp[:2])
	case tiff.DTSShort:
		v, err := strconv.ParseInt(f, 10, 16)
		if err != nil {
			return bad(err)
		}
		order.PutUint16(tmp[:], uint16(int16(v)))
		buf.Write(tmp[:2])
	case tiff.DTLong:
		v, err := strconv.ParseUint(f, 10, 32)
		if err != nil {
			return bad(err)
		}
		order.PutUint32(tmp[:], uint32(v))
		buf.Write(tmp[:4])
	case tiff.DTSLong:
		v, err := strconv.ParseInt(f, 10, 32)
		if err != nil {
			return bad(err)
		}
		order.PutUint32(tmp[:], uint32(int32(v)))
		buf.Write(tmp[:4])
	case tiff.DTRational, tiff.DTSRational:
		num, den, err := parseRational(f, dt == tiff.DTSRational)
		if err != nil {
			return bad(err)
		}
		order.PutUint32(tmp[:], uint32(num))
		order.PutUint32(tmp[4:], uint32(den))
		buf.Write(tmp[:8])
	case tiff.DTFloat:
		v, err := strconv.ParseFloat(f, 32)
		if err != nil {
			return bad(err)
		}
		order.PutUint32(tmp[:], math.Float32bits(float32(v)))
		buf.Write(tmp[:4])
	case tiff.DTDouble:
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return bad(err)
		}
		order.PutUint64(tmp[:], math.Float64bits(v))
		buf.Write(tmp[:8])
	default:
		return core.Errorf(core.EncodeError, "exif", "cannot encode type %d from text", dt)
	}
	return nil
}

// parseRational reads "n/d" verbatim, or a decimal converted to its exact
// reduced fraction.
func parseRational(f string, signed bool) (int64, int64, error) {
	lo, hi := int64(0), int64(math.MaxUint32)
	if signed {
		lo, hi = math.MinInt32, math.MaxInt32
	}
	var num, den int64
	if i := strings.IndexByte(f, '/'); i >= 0 {
		var err error
		if num, err = strconv.ParseInt(f[:i], 10, 64); err != nil {
			return 0, 0, err
		}
		if den, err = strconv.ParseInt(f[i+1:], 10, 64); err != nil {
			return 0, 0, err
		}
	} else {
		r, ok := new(big.Rat).SetString(f)
		if !ok {
			return 0, 0, fmt.Errorf("not a number")
		}
		if !r.Num().IsInt64() || !r.Denom().IsInt64() {
			return 0, 0, fmt.Errorf("out of range")
		}
		num, den = r.Num().Int64(), r.Denom().Int64()
	}
	if num < lo || num > hi || den < lo || den > hi {
		return 0, 0, fmt.Errorf("out of range")
	}
	return num, den, nil
}
