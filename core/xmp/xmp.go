// Package xmp decodes XMP packets into flat Xmp.<prefix>.<Name> properties
// and encodes them back into a single rdf:Description.
package xmp

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/text/language"

	"github.com/ankit-chaubey/image-metadata-surgery/core"
	"github.com/ankit-chaubey/image-metadata-surgery/core/log"
)

// Kind is the shape of a property value.
type Kind int

const (
	KindText Kind = iota
	KindBag
	KindSeq
	KindAlt
	KindLangAlt
	KindStruct
)

var kindTypes = map[Kind]string{
	KindText:    "XmpText",
	KindBag:     "XmpBag",
	KindSeq:     "XmpSeq",
	KindAlt:     "XmpAlt",
	KindLangAlt: "LangAlt",
	KindStruct:  "XmpStruct",
}

func (k Kind) String() string { return kindTypes[k] }

// known array shapes; a plain string set on one of these becomes a
// one-item array.
var known = map[string]Kind{
	"dc.contributor":                   KindBag,
	"dc.creator":                       KindSeq,
	"dc.date":                          KindSeq,
	"dc.description":                   KindLangAlt,
	"dc.language":                      KindBag,
	"dc.publisher":                     KindBag,
	"dc.relation":                      KindBag,
	"dc.rights":                        KindLangAlt,
	"dc.subject":                       KindBag,
	"dc.title":                         KindLangAlt,
	"dc.type":                          KindBag,
	"xmp.Identifier":                   KindBag,
	"xmpRights.Owner":                  KindBag,
	"xmpRights.UsageTerms":             KindLangAlt,
	"photoshop.SupplementalCategories": KindBag,
	"lr.hierarchicalSubject":           KindBag,
	"Iptc4xmpExt.PersonInImage":        KindBag,
	"exif.ISOSpeedRatings":             KindSeq,
	"tiff.BitsPerSample":               KindSeq,
}

const defaultLang = "x-default"

// Item is one array element.
type Item struct {
	Lang string
	Text string
}

// Property is one top-level XMP property.
type Property struct {
	Prefix string
	Name   string
	Kind   Kind
	Text   string
	Items  []Item
	// Raw holds the inner XML of a KindStruct value.
	Raw string
	// resource marks a struct written with rdf:parseType="Resource".
	resource bool
	// fields holds struct fields written as attributes of the property
	// element.
	fields []xml.Attr
	// lang is the xml:lang qualifier of a simple value.
	lang string
	// uri marks a simple value written as rdf:resource.
	uri bool
}

func (p *Property) Key() string { return "Xmp." + p.Prefix + "." + p.Name }

// Packet is a decoded XMP packet.
type Packet struct {
	Props []*Property
	// ns holds prefix to uri bindings declared in the source packet.
	ns map[string]string
}

// New returns an empty packet.
func New() *Packet { return &Packet{ns: map[string]string{}} }

func (p *Packet) Empty() bool { return p == nil || len(p.Props) == 0 }

func (p *Packet) Clear() { p.Props = nil }

var nameDescription = xml.Name{Space: rdfNS, Local: "Description"}

// node captures one property element with its raw inner XML.
type node struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Children []node     `xml:",any"`
	Text     string     `xml:",chardata"`
	Inner    string     `xml:",innerxml"`
}

func (n *node) attr(space, local string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Name.Space == space && a.Name.Local == local {
			return a.Value, true
		}
	}
	return "", false
}

// Decode parses a serialized packet. Blank input decodes to an empty packet.
func Decode(b []byte) (*Packet, error) {
	b = bytes.TrimPrefix(b, []byte("\xef\xbb\xbf"))
	b = bytes.TrimRight(b, "\x00")
	p := New()
	if len(bytes.TrimSpace(b)) == 0 {
		return p, nil
	}
	dec := xml.NewDecoder(bytes.NewReader(b))
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, core.Wrap(core.MalformedContainer, "xmp decode", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		p.learn(start.Attr)
		if start.Name == nameDescription {
			if err := p.readDescription(dec, start); err != nil {
				return nil, err
			}
		}
	}
	return p, nil
}

func (p *Packet) learn(attrs []xml.Attr) {
	for _, a := range attrs {
		if a.Name.Space == "xmlns" {
			p.ns[a.Name.Local] = a.Value
		}
	}
}

// prefixFor maps a namespace uri to the registered prefix, falling back
// to the prefix the packet declared.
func (p *Packet) prefixFor(uri string) (string, bool) {
	if pfx, ok := Prefix(uri); ok {
		return pfx, true
	}
	for pfx, u := range p.ns {
		if u == uri {
			return pfx, true
		}
	}
	return "", false
}

// uriFor is the reverse of prefixFor.
func (p *Packet) uriFor(prefix string) (string, bool) {
	if u, ok := NamespaceURI(prefix); ok {
		return u, true
	}
	u, ok := p.ns[prefix]
	return u, ok
}

func skipAttr(a xml.Attr) bool {
	switch a.Name.Space {
	case "", "xmlns", rdfNS, xmlNS:
		return true
	}
	return false
}

func (p *Packet) readDescription(dec *xml.Decoder, start xml.StartElement) error {
	for _, a := range start.Attr {
		if skipAttr(a) {
			continue
		}
		pfx, ok := p.prefixFor(a.Name.Space)
		if !ok {
			log.Warn().Str("namespace", a.Name.Space).Msg("skipping xmp attribute in undeclared namespace")
			continue
		}
		p.Props = append(p.Props, &Property{Prefix: pfx, Name: a.Name.Local, Text: a.Value})
	}
	for {
		tok, err := dec.Token()
		if err != nil {
			return core.Wrap(core.MalformedContainer, "xmp decode", err)
		}
		switch t := tok.(type) {
		case xml.EndElement:
			return nil
		case xml.StartElement:
			var n node
			if err := dec.DecodeElement(&n, &t); err != nil {
				return core.Wrap(core.MalformedContainer, "xmp decode", err)
			}
			p.learn(n.Attrs)
			pfx, ok := p.prefixFor(n.XMLName.Space)
			if !ok {
				log.Warn().Str("namespace", n.XMLName.Space).Msg("skipping xmp property in undeclared namespace")
				continue
			}
			prop := property(&n)
			prop.Prefix, prop.Name = pfx, n.XMLName.Local
			p.Props = append(p.Props, prop)
		}
	}
}

func hasFields(n *node) bool {
	for _, a := range n.Attrs {
		if !skipAttr(a) {
			return true
		}
	}
	return false
}

func property(n *node) *Property {
	if v, ok := n.attr(rdfNS, "resource"); ok {
		return &Property{Text: v, uri: true}
	}
	if pt, _ := n.attr(rdfNS, "parseType"); pt == "Resource" {
		return &Property{Kind: KindStruct, Raw: n.Inner, resource: true}
	}
	var fields []xml.Attr
	for _, a := range n.Attrs {
		if !skipAttr(a) {
			fields = append(fields, a)
		}
	}
	if len(fields) > 0 {
		return &Property{Kind: KindStruct, Raw: n.Inner, fields: fields}
	}
	if len(n.Children) == 0 {
		lang, _ := n.attr(xmlNS, "lang")
		return &Property{Text: n.Text, lang: lang}
	}
	if len(n.Children) == 1 && n.Children[0].XMLName.Space == rdfNS {
		c := &n.Children[0]
		var kind Kind
		switch c.XMLName.Local {
		case "Bag":
			kind = KindBag
		case "Seq":
			kind = KindSeq
		case "Alt":
			kind = KindAlt
		default:
			return &Property{Kind: KindStruct, Raw: n.Inner}
		}
		prop := &Property{Kind: kind}
		for i := range c.Children {
			li := &c.Children[i]
			if li.XMLName.Space != rdfNS || li.XMLName.Local != "li" || len(li.Children) > 0 || hasFields(li) {
				return &Property{Kind: KindStruct, Raw: n.Inner}
			}
			lang, _ := li.attr(xmlNS, "lang")
			prop.Items = append(prop.Items, Item{Lang: lang, Text: li.Text})
		}
		if kind == KindAlt && len(prop.Items) > 0 && prop.Items[0].Lang != "" {
			prop.Kind = KindLangAlt
		}
		return prop
	}
	return &Property{Kind: KindStruct, Raw: n.Inner}
}

// Entries renders every property. Arrays carry their items in Values and
// a comma-joined Value.
func (p *Packet) Entries() []core.Entry {
	out := make([]core.Entry, 0, len(p.Props))
	for _, prop := range p.Props {
		e := core.Entry{Key: prop.Key(), Type: prop.Kind.String()}
		switch prop.Kind {
		case KindText:
			e.Value = prop.Text
		case KindStruct:
			var parts []string
			for _, a := range prop.fields {
				pfx, _ := p.prefixFor(a.Name.Space)
				parts = append(parts, fmt.Sprintf("%s:%s=%q", pfx, a.Name.Local, a.Value))
			}
			if raw := strings.TrimSpace(prop.Raw); raw != "" {
				parts = append(parts, raw)
			}
			e.Value = strings.Join(parts, " ")
		default:
			for _, it := range prop.Items {
				v := it.Text
				if prop.Kind == KindLangAlt {
					v = fmt.Sprintf("lang=%q %s", it.Lang, it.Text)
				}
				e.Values = append(e.Values, v)
			}
			e.Value = strings.Join(e.Values, ", ")
		}
		out = append(out, e)
	}
	return out
}

// ParseKey splits Xmp.<prefix>.<Name>.
func ParseKey(key string) (string, string, error) {
	parts := strings.SplitN(key, ".", 3)
	if len(parts) != 3 || parts[0] != "Xmp" || parts[1] == "" || parts[2] == "" {
		return "", "", fmt.Errorf("invalid XMP key %q", key)
	}
	return parts[1], parts[2], nil
}

// Delete removes the property for key.
func (p *Packet) Delete(key string) error {
	pfx, name, err := ParseKey(key)
	if err != nil {
		return core.Wrap(core.EncodeError, "xmp delete", err)
	}
	p.remove(pfx, name)
	return nil
}

func (p *Packet) remove(pfx, name string) {
	kept := p.Props[:0]
	for _, prop := range p.Props {
		if prop.Prefix != pfx || prop.Name != name {
			kept = append(kept, prop)
		}
	}
	p.Props = kept
}

// Set replaces the property for m.Key. string on a known array property
// makes a one-item array of its kind, array makes an XmpSeq.
func (p *Packet) Set(m core.Mutation) error {
	pfx, name, err := ParseKey(m.Key)
	if err != nil {
		return core.Wrap(core.EncodeError, "xmp set", err)
	}
	if _, ok := p.uriFor(pfx); !ok {
		return core.Errorf(core.EncodeError, "xmp set", "no namespace registered for prefix %q", pfx)
	}
	if m.Type == core.TypeDelete {
		p.remove(pfx, name)
		return nil
	}

	prop := &Property{Prefix: pfx, Name: name}
	switch m.Type {
	case core.TypeString, "":
		prop.Kind = known[pfx+"."+name]
		switch prop.Kind {
		case KindText:
			prop.Text = m.Value
		case KindLangAlt:
			it, err := parseLangItem(m.Value)
			if err != nil {
				return err
			}
			prop.Items = []Item{it}
		default:
			prop.Items = []Item{{Text: m.Value}}
		}
	case core.TypeArray:
		prop.Kind = KindSeq
		values := m.Values
		if values == nil {
			values = []string{m.Value}
		}
		for _, v := range values {
			prop.Items = append(prop.Items, Item{Text: v})
		}
	case core.TypeDate:
		t, err := parseDate(m.Value)
		if err != nil {
			return err
		}
		prop.Text = t
	case core.TypeRational:
		var num, den int64
		if _, err := fmt.Sscanf(m.Value, "%d/%d", &num, &den); err != nil {
			return core.Errorf(core.EncodeError, "xmp set", "invalid rational %q", m.Value)
		}
		prop.Text = fmt.Sprintf("%d/%d", num, den)
	default:
		return core.Errorf(core.EncodeError, "xmp set", "type %q is not valid for XMP", m.Type)
	}
	p.remove(pfx, name)
	p.Props = append(p.Props, prop)
	return nil
}

// parseLangItem reads `lang="de-DE" text`; a bare text is x-default.
func parseLangItem(s string) (Item, error) {
	if !strings.HasPrefix(s, `lang="`) {
		return Item{Lang: defaultLang, Text: s}, nil
	}
	rest := s[len(`lang="`):]
	end := strings.IndexByte(rest, '"')
	if end < 0 {
		return Item{}, core.Errorf(core.EncodeError, "xmp set", "unterminated language in %q", s)
	}
	lang, text := rest[:end], strings.TrimPrefix(rest[end+1:], " ")
	if lang != defaultLang {
		if _, err := language.Parse(lang); err != nil {
			return Item{}, core.Errorf(core.EncodeError, "xmp set", "invalid language %q: %v", lang, err)
		}
	}
	return Item{Lang: lang, Text: text}, nil
}

func parseDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006:01:02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			switch layout {
			case time.RFC3339:
				return t.Format(time.RFC3339), nil
			case "2006-01-02":
				return t.Format("2006-01-02"), nil
			}
			return t.Format("2006-01-02T15:04:05"), nil
		}
	}
	return "", core.Errorf(core.EncodeError, "xmp set", "invalid date %q", s)
}
