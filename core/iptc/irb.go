package iptc

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"

	"github.com/ankit-chaubey/image-metadata-surgery/core"
	"github.com/ankit-chaubey/image-metadata-surgery/core/bytesio"
)

// Photoshop image resource ids.
const (
	ResIPTC       uint16 = 0x0404
	ResIPTCDigest uint16 = 0x0425
)

var signatures = [][]byte{[]byte("8BIM"), []byte("PHUT"), []byte("DCSR"), []byte("AgHg"), []byte("MeSa")}

// Resource is one Photoshop image resource block.
type Resource struct {
	Sig  [4]byte
	ID   uint16
	Name []byte // raw Pascal string including its length byte and pad
	Data []byte
}

// ParseIRB splits a Photoshop image resource stream into its blocks.
func ParseIRB(b []byte) ([]Resource, error) {
	r := bytesio.NewReader(b, binary.BigEndian)
	var out []Resource
	for r.Remaining() > 0 {
		if r.Remaining() < 12 && allZero(b[r.Pos():]) {
			break
		}
		sig, err := r.Bytes(4)
		if err != nil {
			return nil, core.Wrap(core.TruncatedData, "photoshop irb", err)
		}
		if !knownSignature(sig) {
			return nil, core.Errorf(core.MalformedContainer, "photoshop irb", "bad resource signature %q at %d", sig, r.Pos()-4)
		}
		var res Resource
		copy(res.Sig[:], sig)
		if res.ID, err = r.U16(); err != nil {
			return nil, core.Wrap(core.TruncatedData, "photoshop irb", err)
		}
		n, err := r.U8()
		if err != nil {
			return nil, core.Wrap(core.TruncatedData, "photoshop irb", err)
		}
		nameLen := 1 + int(n)
		nameLen += nameLen & 1
		name, err := r.Slice(r.Pos()-1, nameLen)
		if err != nil {
			return nil, core.Wrap(core.TruncatedData, "photoshop irb", err)
		}
		res.Name = name
		if err := r.Skip(nameLen - 1); err != nil {
			return nil, core.Wrap(core.TruncatedData, "photoshop irb", err)
		}
		size, err := r.U32()
		if err != nil {
			return nil, core.Wrap(core.TruncatedData, "photoshop irb", err)
		}
		if res.Data, err = r.Bytes(int(size)); err != nil {
			return nil, core.Wrap(core.TruncatedData, "photoshop irb", err)
		}
		if size&1 == 1 && r.Remaining() > 0 {
			r.Skip(1)
		}
		out = append(out, res)
	}
	return out, nil
}

func knownSignature(sig []byte) bool {
	for _, s := range signatures {
		if bytes.Equal(sig, s) {
			return true
		}
	}
	return false
}

func allZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

// EncodeIRB serialises resource blocks with even padding.
func EncodeIRB(rs []Resource) []byte {
	var buf bytes.Buffer
	for _, res := range rs {
		buf.Write(res.Sig[:])
		bytesio.PutU16(&buf, binary.BigEndian, res.ID)
		if len(res.Name) == 0 {
			buf.Write([]byte{0, 0})
		} else {
			buf.Write(res.Name)
		}
		bytesio.PutU32(&buf, binary.BigEndian, uint32(len(res.Data)))
		buf.Write(res.Data)
		if len(res.Data)&1 == 1 {
			buf.WriteByte(0)
		}
	}
	return buf.Bytes()
}

// FromIRB returns the IIM stream held in resource 0x0404, or nil.
func FromIRB(b []byte) ([]byte, error) {
	rs, err := ParseIRB(b)
	if err != nil {
		return nil, err
	}
	var iim []byte
	for _, res := range rs {
		if res.ID == ResIPTC && string(res.Sig[:]) == "8BIM" {
			iim = append(iim, res.Data...)
		}
	}
	return iim, nil
}

// ReplaceIPTC swaps the IIM resource of irb for iim, keeping every other
// resource in place. A nil iim removes the resource. The IPTC digest
// resource, if present, is refreshed to match.
func ReplaceIPTC(irb, iim []byte) ([]byte, error) {
	rs, err := ParseIRB(irb)
	if err != nil {
		return nil, err
	}
	var out []Resource
	placed := false
	for _, res := range rs {
		switch {
		case res.ID == ResIPTC && string(res.Sig[:]) == "8BIM":
			if !placed && len(iim) > 0 {
				res.Data = iim
				out = append(out, res)
			}
			placed = true
		case res.ID == ResIPTCDigest && string(res.Sig[:]) == "8BIM":
			if len(iim) > 0 {
				sum := md5.Sum(iim)
				res.Data = sum[:]
				out = append(out, res)
			}
		default:
			out = append(out, res)
		}
	}
	if !placed && len(iim) > 0 {
		out = append(out, Resource{Sig: [4]byte{'8', 'B', 'I', 'M'}, ID: ResIPTC, Data: iim})
	}
	return EncodeIRB(out), nil
}
