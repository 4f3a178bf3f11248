package xmp

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ankit-chaubey/image-metadata-surgery/core"
)

const lightroomPacket = `<?xpacket begin="` + "\uFEFF" + `" id="W5M0MpCehiHzreSzNTczkc9d"?>
<x:xmpmeta xmlns:x="adobe:ns:meta/">
 <rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#">
  <rdf:Description rdf:about=""
    xmlns:xmp="http://ns.adobe.com/xap/1.0/"
    xmlns:dc="http://purl.org/dc/elements/1.1/"
    xmlns:xmpMM="http://ns.adobe.com/xap/1.0/mm/"
    xmlns:stEvt="http://ns.adobe.com/xap/1.0/sType/ResourceEvent#"
    xmlns:stRef="http://ns.adobe.com/xap/1.0/sType/ResourceRef#"
    xmlns:acme="http://acme.example/ns/1.0/"
   xmp:Rating="5"
   acme:Level="7">
   <xmp:CreatorTool>Darkroom &amp; Co</xmp:CreatorTool>
   <dc:subject>
    <rdf:Bag>
     <rdf:li>sea</rdf:li>
     <rdf:li>boats</rdf:li>
    </rdf:Bag>
   </dc:subject>
   <dc:title>
    <rdf:Alt>
     <rdf:li xml:lang="x-default">Harbour</rdf:li>
     <rdf:li xml:lang="de-DE">Hafen</rdf:li>
    </rdf:Alt>
   </dc:title>
   <xmpMM:History>
    <rdf:Seq>
     <rdf:li stEvt:action="saved" stEvt:when="2019-06-23T19:45:17"/>
    </rdf:Seq>
   </xmpMM:History>
   <xmpMM:DerivedFrom stRef:documentID="doc-1"/>
  </rdf:Description>
 </rdf:RDF>
</x:xmpmeta>
<?xpacket end="w"?>` + "\x00\x00"

func TestDecode(t *testing.T) {
	p, err := Decode([]byte(lightroomPacket))
	if err != nil {
		t.Fatal(err)
	}
	want := []core.Entry{
		{Key: "Xmp.xmp.Rating", Value: "5", Type: "XmpText"},
		{Key: "Xmp.acme.Level", Value: "7", Type: "XmpText"},
		{Key: "Xmp.xmp.CreatorTool", Value: "Darkroom & Co", Type: "XmpText"},
		{Key: "Xmp.dc.subject", Value: "sea, boats", Values: []string{"sea", "boats"}, Type: "XmpBag"},
		{Key: "Xmp.dc.title", Value: `lang="x-default" Harbour, lang="de-DE" Hafen`,
			Values: []string{`lang="x-default" Harbour`, `lang="de-DE" Hafen`}, Type: "LangAlt"},
		{Key: "Xmp.xmpMM.History", Value: `<rdf:Seq>
     <rdf:li stEvt:action="saved" stEvt:when="2019-06-23T19:45:17"/>
    </rdf:Seq>`, Type: "XmpStruct"},
		{Key: "Xmp.xmpMM.DerivedFrom", Value: `stRef:documentID="doc-1"`, Type: "XmpStruct"},
	}
	if diff := cmp.Diff(want, p.Entries()); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	p, err := Decode([]byte(lightroomPacket))
	if err != nil {
		t.Fatal(err)
	}
	b, err := p.Encode()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(b, []byte("<?xpacket begin=\"\uFEFF\" id=\"W5M0MpCehiHzreSzNTczkc9d\"?>")) {
		t.Errorf("missing xpacket header: %.60q", b)
	}
	if !bytes.HasSuffix(b, []byte(`<?xpacket end="w"?>`)) {
		t.Errorf("missing xpacket trailer")
	}
	again, err := Decode(b)
	if err != nil {
		t.Fatalf("re-decode: %v\n%s", err, b)
	}
	if diff := cmp.Diff(p.Entries(), again.Entries()); diff != "" {
		t.Errorf("round trip changed entries (-want +got):\n%s", diff)
	}
	b2, err := again.Encode()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(b, b2) {
		t.Errorf("encoding is not stable")
	}
}

func TestSimpleValueQualifiersSurvive(t *testing.T) {
	const packet = `<x:xmpmeta xmlns:x="adobe:ns:meta/"><rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#">
<rdf:Description rdf:about="" xmlns:xmp="http://ns.adobe.com/xap/1.0/" xmlns:xmpRights="http://ns.adobe.com/xap/1.0/rights/">
 <xmp:Label xml:lang="fr-FR">Rouge</xmp:Label>
 <xmpRights:WebStatement rdf:resource="https://acme.example/licence"/>
 <xmp:Rating>3</xmp:Rating>
</rdf:Description></rdf:RDF></x:xmpmeta>`

	p, err := Decode([]byte(packet))
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Set(core.Mutation{Key: "Xmp.xmp.Rating", Value: "5"}); err != nil {
		t.Fatal(err)
	}
	b, err := p.Encode()
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		`<xmp:Label xml:lang="fr-FR">Rouge</xmp:Label>`,
		`<xmpRights:WebStatement rdf:resource="https://acme.example/licence"/>`,
		`<xmp:Rating>5</xmp:Rating>`,
	} {
		if !bytes.Contains(b, []byte(want)) {
			t.Errorf("encoded packet lacks %s:\n%s", want, b)
		}
	}

	again, err := Decode(b)
	if err != nil {
		t.Fatal(err)
	}
	opts := cmp.AllowUnexported(Property{})
	if diff := cmp.Diff(p.Props, again.Props, opts); diff != "" {
		t.Errorf("round trip changed properties (-want +got):\n%s", diff)
	}
}

func TestSetShapes(t *testing.T) {
	tests := []struct {
		name string
		m    core.Mutation
		want core.Entry
	}{
		{"text", core.Mutation{Key: "Xmp.xmp.CreatorTool", Value: "Zenith", Type: core.TypeString},
			core.Entry{Key: "Xmp.xmp.CreatorTool", Value: "Zenith", Type: "XmpText"}},
		{"known bag", core.Mutation{Key: "Xmp.dc.subject", Value: "sea", Type: core.TypeString},
			core.Entry{Key: "Xmp.dc.subject", Value: "sea", Values: []string{"sea"}, Type: "XmpBag"}},
		{"known langalt", core.Mutation{Key: "Xmp.dc.title", Value: "Harbour"},
			core.Entry{Key: "Xmp.dc.title", Value: `lang="x-default" Harbour`, Values: []string{`lang="x-default" Harbour`}, Type: "LangAlt"}},
		{"explicit lang", core.Mutation{Key: "Xmp.dc.rights", Value: `lang="de-DE" Alle Rechte`},
			core.Entry{Key: "Xmp.dc.rights", Value: `lang="de-DE" Alle Rechte`, Values: []string{`lang="de-DE" Alle Rechte`}, Type: "LangAlt"}},
		{"array", core.Mutation{Key: "Xmp.dc.subject", Values: []string{"a", "b"}, Type: core.TypeArray},
			core.Entry{Key: "Xmp.dc.subject", Value: "a, b", Values: []string{"a", "b"}, Type: "XmpSeq"}},
		{"date", core.Mutation{Key: "Xmp.xmp.CreateDate", Value: "2019:06:23 19:45:17", Type: core.TypeDate},
			core.Entry{Key: "Xmp.xmp.CreateDate", Value: "2019-06-23T19:45:17", Type: "XmpText"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New()
			for i := 0; i < 2; i++ {
				if err := p.Set(tt.m); err != nil {
					t.Fatal(err)
				}
			}
			if diff := cmp.Diff([]core.Entry{tt.want}, p.Entries()); diff != "" {
				t.Errorf("entries mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSetErrors(t *testing.T) {
	tests := []struct {
		name string
		m    core.Mutation
	}{
		{"bad key", core.Mutation{Key: "Xmp.title", Value: "x"}},
		{"unknown prefix", core.Mutation{Key: "Xmp.nope.Thing", Value: "x"}},
		{"bad language", core.Mutation{Key: "Xmp.dc.title", Value: `lang="not a tag!" x`}},
		{"bad date", core.Mutation{Key: "Xmp.xmp.CreateDate", Value: "soon", Type: core.TypeDate}},
		{"binary", core.Mutation{Key: "Xmp.xmp.Rating", Value: "1 2", Type: core.TypeBinary}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New()
			if err := p.Set(tt.m); !errors.Is(err, core.ErrEncode) {
				t.Errorf("Set() error = %v, want EncodeError", err)
			}
			if !p.Empty() {
				t.Errorf("failed Set left properties behind")
			}
		})
	}
}

func TestDeleteAndClear(t *testing.T) {
	p, err := Decode([]byte(lightroomPacket))
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Set(core.Mutation{Key: "Xmp.dc.subject", Type: core.TypeDelete}); err != nil {
		t.Fatal(err)
	}
	for _, e := range p.Entries() {
		if e.Key == "Xmp.dc.subject" {
			t.Errorf("dc.subject survived _delete")
		}
	}
	p.Clear()
	if b, err := p.Encode(); err != nil || b != nil {
		t.Errorf("Encode() of empty packet = %q, %v", b, err)
	}
}

func TestRegisterNamespace(t *testing.T) {
	const uri = "http://widgets.example/xmp/1.0/"
	if err := RegisterNamespace(uri, "widget"); err != nil {
		t.Fatal(err)
	}
	p := New()
	if err := p.Set(core.Mutation{Key: "Xmp.widget.Gear", Value: "3"}); err != nil {
		t.Fatal(err)
	}
	b, err := p.Encode()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), `xmlns:widget="`+uri+`"`) {
		t.Errorf("namespace not declared:\n%s", b)
	}

	for _, bad := range [][2]string{{"", "p"}, {"http://x.example/ns", "p"}, {"http://x.example/", "a:b"}} {
		if err := RegisterNamespace(bad[0], bad[1]); !errors.Is(err, core.ErrEncode) {
			t.Errorf("RegisterNamespace(%q, %q) error = %v", bad[0], bad[1], err)
		}
	}
}

func TestDecodeMalformed(t *testing.T) {
	_, err := Decode([]byte(`<x:xmpmeta xmlns:x="adobe:ns:meta/"><rdf:RDF`))
	if !errors.Is(err, core.ErrMalformedContainer) {
		t.Errorf("Decode() error = %v, want MalformedContainer", err)
	}
	p, err := Decode([]byte("  \x00"))
	if err != nil || !p.Empty() {
		t.Errorf("blank packet: %v", err)
	}
}
