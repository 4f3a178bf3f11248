package xmp

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"sort"

	"golang.org/x/exp/maps"

	"github.com/ankit-chaubey/image-metadata-surgery/core"
)

const (
	packetID = "W5M0MpCehiHzreSzNTczkc9d"
	toolkit  = "image-metadata-surgery"
)

// Encode serializes p as a complete packet. An empty packet encodes to nil.
func (p *Packet) Encode() ([]byte, error) {
	if p.Empty() {
		return nil, nil
	}
	decls, err := p.declarations()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString("<?xpacket begin=\"\uFEFF\" id=\"" + packetID + "\"?>\n")
	fmt.Fprintf(&buf, "<x:xmpmeta xmlns:x=%q x:xmptk=%q>\n", adobeNS, toolkit)
	fmt.Fprintf(&buf, " <rdf:RDF xmlns:rdf=%q>\n", rdfNS)
	buf.WriteString("  <rdf:Description rdf:about=\"\"")
	pfxs := maps.Keys(decls)
	sort.Strings(pfxs)
	for _, pfx := range pfxs {
		fmt.Fprintf(&buf, "\n    xmlns:%s=%q", pfx, decls[pfx])
	}
	buf.WriteString(">\n")
	for _, prop := range p.Props {
		if err := p.writeProperty(&buf, prop); err != nil {
			return nil, err
		}
	}
	buf.WriteString("  </rdf:Description>\n </rdf:RDF>\n</x:xmpmeta>\n")
	buf.WriteString(`<?xpacket end="w"?>`)
	return buf.Bytes(), nil
}

// declarations collects the namespaces the properties need. Struct values
// keep the prefixes of their source packet, so those bindings are carried
// over when a struct is present.
func (p *Packet) declarations() (map[string]string, error) {
	decls := map[string]string{}
	structs := false
	for _, prop := range p.Props {
		u, ok := p.uriFor(prop.Prefix)
		if !ok {
			return nil, core.Errorf(core.EncodeError, "xmp encode", "no namespace for prefix %q", prop.Prefix)
		}
		decls[prop.Prefix] = u
		if prop.Kind == KindStruct {
			structs = true
			for _, a := range prop.fields {
				if pfx, ok := p.prefixFor(a.Name.Space); ok {
					decls[pfx] = a.Name.Space
				}
			}
		}
	}
	if structs {
		for pfx, u := range p.ns {
			switch pfx {
			case "x", "rdf", "xml":
				continue
			}
			if _, taken := decls[pfx]; !taken {
				decls[pfx] = u
			}
		}
	}
	return decls, nil
}

func escape(buf *bytes.Buffer, s string) {
	xml.EscapeText(buf, []byte(s))
}

func (p *Packet) writeProperty(buf *bytes.Buffer, prop *Property) error {
	name := prop.Prefix + ":" + prop.Name
	switch prop.Kind {
	case KindText:
		buf.WriteString("   <" + name)
		if prop.uri {
			buf.WriteString(` rdf:resource="`)
			escape(buf, prop.Text)
			buf.WriteString("\"/>\n")
			return nil
		}
		if prop.lang != "" {
			buf.WriteString(` xml:lang="`)
			escape(buf, prop.lang)
			buf.WriteString(`"`)
		}
		buf.WriteString(">")
		escape(buf, prop.Text)
		buf.WriteString("</" + name + ">\n")
	case KindStruct:
		buf.WriteString("   <" + name)
		if prop.resource {
			buf.WriteString(` rdf:parseType="Resource"`)
		}
		for _, a := range prop.fields {
			pfx, ok := p.prefixFor(a.Name.Space)
			if !ok {
				return core.Errorf(core.EncodeError, "xmp encode", "no prefix for namespace %q", a.Name.Space)
			}
			buf.WriteString(" " + pfx + ":" + a.Name.Local + `="`)
			escape(buf, a.Value)
			buf.WriteString(`"`)
		}
		if prop.Raw == "" && !prop.resource {
			buf.WriteString("/>\n")
			return nil
		}
		buf.WriteString(">" + prop.Raw + "</" + name + ">\n")
	default:
		container := map[Kind]string{KindBag: "rdf:Bag", KindSeq: "rdf:Seq", KindAlt: "rdf:Alt", KindLangAlt: "rdf:Alt"}[prop.Kind]
		buf.WriteString("   <" + name + ">\n    <" + container + ">\n")
		for _, it := range prop.Items {
			buf.WriteString("     <rdf:li")
			if it.Lang != "" {
				buf.WriteString(` xml:lang="`)
				escape(buf, it.Lang)
				buf.WriteString(`"`)
			}
			buf.WriteString(">")
			escape(buf, it.Text)
			buf.WriteString("</rdf:li>\n")
		}
		buf.WriteString("    </" + container + ">\n   </" + name + ">\n")
	}
	return nil
}
