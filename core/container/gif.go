package container

import (
	"github.com/ankit-chaubey/image-metadata-surgery/core"
)

// ─── GIF ─────────────────────────────────────────────────────────────────────

type gifStrategy struct{}

func (gifStrategy) Access() map[core.Family]core.AccessMode {
	return access(map[core.Family]core.AccessMode{core.FamilyComment: ro})
}

// subBlocks reads a data sub-block sequence starting at i and returns its
// joined data and the offset after the terminator.
func subBlocks(b []byte, i int) ([]byte, int, error) {
	var data []byte
	for {
		if i >= len(b) {
			return nil, 0, core.Errorf(core.TruncatedData, "gif", "sub-block sequence cut short")
		}
		n := int(b[i])
		i++
		if n == 0 {
			return data, i, nil
		}
		if i+n > len(b) {
			return nil, 0, core.Errorf(core.TruncatedData, "gif", "sub-block at %d needs %d bytes", i-1, n)
		}
		data = append(data, b[i:i+n]...)
		i += n
	}
}

func colorTable(flags byte) int {
	if flags&0x80 == 0 {
		return 0
	}
	return 3 << (int(flags&0x07) + 1)
}

// Locate reports the first comment extension.
func (gifStrategy) Locate(b []byte) ([]core.Segment, error) {
	if len(b) < 13 || (string(b[:6]) != "GIF87a" && string(b[:6]) != "GIF89a") {
		return nil, core.Errorf(core.MalformedContainer, "gif", "bad header")
	}
	i := 13 + colorTable(b[10])
	for {
		if i >= len(b) {
			return nil, core.Errorf(core.TruncatedData, "gif", "missing trailer")
		}
		switch b[i] {
		case 0x3B:
			return nil, nil
		case 0x21:
			if i+2 > len(b) {
				return nil, core.Errorf(core.TruncatedData, "gif", "extension at %d cut short", i)
			}
			start, label := i, b[i+1]
			data, next, err := subBlocks(b, i+2)
			if err != nil {
				return nil, err
			}
			if label == 0xFE {
				return []core.Segment{{Family: core.FamilyComment, Offset: start, Length: next - start, Payload: data}}, nil
			}
			i = next
		case 0x2C:
			if i+11 > len(b) {
				return nil, core.Errorf(core.TruncatedData, "gif", "image descriptor at %d cut short", i)
			}
			_, next, err := subBlocks(b, i+10+colorTable(b[i+9])+1)
			if err != nil {
				return nil, err
			}
			i = next
		default:
			return nil, core.Errorf(core.MalformedContainer, "gif", "unexpected block 0x%02x at %d", b[i], i)
		}
	}
}

func (gifStrategy) Relink(b []byte, edits Edits) ([]byte, error) {
	if err := denyEdits("GIF", edits); err != nil {
		return nil, err
	}
	return clone(b), nil
}

// ─── BMP ─────────────────────────────────────────────────────────────────────

type bmpStrategy struct{}

func (bmpStrategy) Access() map[core.Family]core.AccessMode {
	return access(nil)
}

func (bmpStrategy) Locate(b []byte) ([]core.Segment, error) {
	if len(b) < 14 || b[0] != 'B' || b[1] != 'M' {
		return nil, core.Errorf(core.MalformedContainer, "bmp", "bad header")
	}
	return nil, nil
}

func (bmpStrategy) Relink(b []byte, edits Edits) ([]byte, error) {
	if err := denyEdits("BMP", edits); err != nil {
		return nil, err
	}
	return clone(b), nil
}
