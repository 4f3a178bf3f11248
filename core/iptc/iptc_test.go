package iptc

import (
	"bytes"
	"crypto/md5"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ankit-chaubey/image-metadata-surgery/core"
	"github.com/ankit-chaubey/image-metadata-surgery/core/charset"
)

func mustSet(t *testing.T, d *Data, m core.Mutation) {
	t.Helper()
	if err := d.Set(m, charset.UTF8); err != nil {
		t.Fatalf("Set(%s): %v", m.Key, err)
	}
}

func TestRoundTrip(t *testing.T) {
	d := &Data{}
	mustSet(t, d, core.Mutation{Key: "Iptc.Envelope.ModelVersion", Value: "4", Type: core.TypeString})
	mustSet(t, d, core.Mutation{Key: "Iptc.Application2.ObjectName", Value: "Harbour", Type: core.TypeString})
	mustSet(t, d, core.Mutation{Key: "Iptc.Application2.Keywords", Values: []string{"sea", "boats"}, Type: core.TypeArray})
	mustSet(t, d, core.Mutation{Key: "Iptc.Application2.DateCreated", Value: "2019-06-23", Type: core.TypeString})
	mustSet(t, d, core.Mutation{Key: "Iptc.Application2.TimeCreated", Value: "19:45:17+02:00", Type: core.TypeString})
	mustSet(t, d, core.Mutation{Key: "Iptc.Application2.Copyright", Value: "© Zenith", Type: core.TypeString})

	got, err := Decode(d.Encode())
	if err != nil {
		t.Fatal(err)
	}
	want := []core.Entry{
		{Key: "Iptc.Envelope.ModelVersion", Value: "4", Type: "Short"},
		{Key: "Iptc.Application2.ObjectName", Value: "Harbour", Type: "String"},
		{Key: "Iptc.Application2.Keywords", Value: "sea", Type: "String"},
		{Key: "Iptc.Application2.Keywords", Value: "boats", Type: "String"},
		{Key: "Iptc.Application2.DateCreated", Value: "2019-06-23", Type: "Date"},
		{Key: "Iptc.Application2.TimeCreated", Value: "19:45:17+02:00", Type: "Time"},
		{Key: "Iptc.Application2.Copyright", Value: "© Zenith", Type: "String"},
	}
	if diff := cmp.Diff(want, got.Entries(charset.UTF8)); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}
	if !bytes.Equal(got.Encode(), d.Encode()) {
		t.Errorf("re-encoding changed the stream")
	}
}

func TestArrayAppends(t *testing.T) {
	d := &Data{}
	m := core.Mutation{Key: "Iptc.Application2.Keywords", Values: []string{"a", "b"}, Type: core.TypeArray}
	for n := 1; n <= 3; n++ {
		mustSet(t, d, m)
		if got := len(d.Sets); got != 2*n {
			t.Fatalf("after %d appends: %d datasets, want %d", n, got, 2*n)
		}
	}

	mustSet(t, d, core.Mutation{Key: "Iptc.Application2.Keywords", Value: "only", Type: core.TypeString})
	if diff := cmp.Diff([]core.Entry{{Key: "Iptc.Application2.Keywords", Value: "only", Type: "String"}}, d.Entries(nil)); diff != "" {
		t.Errorf("string set did not replace repeats (-want +got):\n%s", diff)
	}

	mustSet(t, d, core.Mutation{Key: "Iptc.Application2.Keywords", Type: core.TypeDelete})
	if !d.Empty() {
		t.Errorf("_delete left %d datasets", len(d.Sets))
	}
}

func TestUnknownDatasetPreserved(t *testing.T) {
	raw := []byte{0x1C, 2, 0xF0, 0, 3, 0xDE, 0xAD, 0x01, 0x1C, 2, 5, 0, 2, 'h', 'i'}
	d, err := Decode(raw)
	if err != nil {
		t.Fatal(err)
	}
	want := []core.Entry{
		{Key: "Iptc.Application2.0x00f0", Value: "222 173 1", Type: "Undefined"},
		{Key: "Iptc.Application2.ObjectName", Value: "hi", Type: "String"},
	}
	if diff := cmp.Diff(want, d.Entries(nil)); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}
	mustSet(t, d, core.Mutation{Key: "Iptc.Application2.ObjectName", Value: "there"})
	out := d.Encode()
	if !bytes.HasPrefix(out, raw[:8]) {
		t.Errorf("unknown dataset bytes changed: % X", out[:8])
	}
}

func TestExtendedLength(t *testing.T) {
	d := &Data{Sets: []Dataset{{Record: 2, ID: 202, Data: bytes.Repeat([]byte{7}, 0x9000)}}}
	b := d.Encode()
	if !bytes.Equal(b[:5], []byte{0x1C, 2, 202, 0x80, 0x04}) {
		t.Fatalf("header = % X", b[:5])
	}
	got, err := Decode(b)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Sets) != 1 || len(got.Sets[0].Data) != 0x9000 {
		t.Errorf("decoded %d sets", len(got.Sets))
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want error
	}{
		{"garbage", []byte{0x1C, 2, 5, 0, 1, 'x', 0x42}, core.ErrMalformedContainer},
		{"short header", []byte{0x1C, 2, 5}, core.ErrTruncatedData},
		{"short value", []byte{0x1C, 2, 5, 0, 9, 'x'}, core.ErrTruncatedData},
		{"bad extended", []byte{0x1C, 2, 5, 0x80, 0x09, 0, 0}, core.ErrMalformedContainer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(tt.in); !errors.Is(err, tt.want) {
				t.Errorf("Decode() error = %v, want %v", err, tt.want)
			}
		})
	}
	if d, err := Decode([]byte{0x1C, 2, 5, 0, 1, 'x', 0, 0, 0}); err != nil || len(d.Sets) != 1 {
		t.Errorf("zero padding: %v", err)
	}
}

func TestSetErrors(t *testing.T) {
	latin1, err := charset.Lookup("latin1")
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name string
		m    core.Mutation
		cs   *charset.Codec
		want error
	}{
		{"bad key", core.Mutation{Key: "Iptc.Nope.City", Value: "x"}, nil, core.ErrEncode},
		{"bad date", core.Mutation{Key: "Iptc.Application2.DateCreated", Value: "yesterday"}, nil, core.ErrEncode},
		{"bad short", core.Mutation{Key: "Iptc.Envelope.ModelVersion", Value: "70000"}, nil, core.ErrEncode},
		{"rational", core.Mutation{Key: "Iptc.Application2.City", Value: "1/2", Type: core.TypeRational}, nil, core.ErrEncode},
		{"unencodable", core.Mutation{Key: "Iptc.Application2.City", Value: "北京"}, latin1, core.ErrEncoding},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &Data{}
			if err := d.Set(tt.m, tt.cs); !errors.Is(err, tt.want) {
				t.Errorf("Set() error = %v, want %v", err, tt.want)
			}
			if !d.Empty() {
				t.Errorf("failed Set left %d datasets", len(d.Sets))
			}
		})
	}
}

func TestUTF8Declaration(t *testing.T) {
	latin1, err := charset.Lookup("latin1")
	if err != nil {
		t.Fatal(err)
	}
	d := &Data{Sets: []Dataset{{Record: 1, ID: 90, Data: utf8Escape}}}
	mustSet(t, d, core.Mutation{Key: "Iptc.Application2.City", Value: "北京"})
	if got := d.Entries(latin1)[1].Value; got != "北京" {
		t.Errorf("City = %q", got)
	}
}

func TestReplaceIPTC(t *testing.T) {
	other := Resource{Sig: [4]byte{'8', 'B', 'I', 'M'}, ID: 0x03ED, Name: []byte{0, 0}, Data: []byte{1, 2, 3}}
	digest := Resource{Sig: [4]byte{'8', 'B', 'I', 'M'}, ID: ResIPTCDigest, Name: []byte{0, 0}, Data: make([]byte, 16)}
	old := Resource{Sig: [4]byte{'8', 'B', 'I', 'M'}, ID: ResIPTC, Name: []byte{0, 0}, Data: []byte{0x1C, 2, 5, 0, 1, 'x'}}
	irb := EncodeIRB([]Resource{other, old, digest})

	iim := []byte{0x1C, 2, 5, 0, 3, 'n', 'e', 'w'}
	out, err := ReplaceIPTC(irb, iim)
	if err != nil {
		t.Fatal(err)
	}
	rs, err := ParseIRB(out)
	if err != nil {
		t.Fatal(err)
	}
	sum := md5.Sum(iim)
	want := []Resource{other, {Sig: old.Sig, ID: ResIPTC, Name: []byte{0, 0}, Data: iim}, {Sig: digest.Sig, ID: ResIPTCDigest, Name: []byte{0, 0}, Data: sum[:]}}
	if diff := cmp.Diff(want, rs); diff != "" {
		t.Errorf("resources mismatch (-want +got):\n%s", diff)
	}
	got, err := FromIRB(out)
	if err != nil || !bytes.Equal(got, iim) {
		t.Errorf("FromIRB = % X, %v", got, err)
	}

	out, err = ReplaceIPTC(out, nil)
	if err != nil {
		t.Fatal(err)
	}
	rs, _ = ParseIRB(out)
	if diff := cmp.Diff([]Resource{other}, rs); diff != "" {
		t.Errorf("after removal (-want +got):\n%s", diff)
	}
}

func TestParseIRBOddSizesAndNames(t *testing.T) {
	named := Resource{Sig: [4]byte{'8', 'B', 'I', 'M'}, ID: 0x0400, Name: []byte{3, 'a', 'b', 'c'}, Data: []byte{9}}
	b := EncodeIRB([]Resource{named, {Sig: [4]byte{'8', 'B', 'I', 'M'}, ID: 1, Name: []byte{0, 0}, Data: []byte{4, 5}}})
	rs, err := ParseIRB(b)
	if err != nil {
		t.Fatal(err)
	}
	if len(rs) != 2 || !bytes.Equal(rs[0].Name, named.Name) || !bytes.Equal(rs[1].Data, []byte{4, 5}) {
		t.Errorf("ParseIRB = %+v", rs)
	}
	if _, err := ParseIRB([]byte("XXXX\x04\x04\x00\x00\x00\x00\x00\x00")); !errors.Is(err, core.ErrMalformedContainer) {
		t.Errorf("bad signature error = %v", err)
	}
}
