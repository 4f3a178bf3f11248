package xmp

import (
	"strings"
	"sync"

	"github.com/ankit-chaubey/image-metadata-surgery/core"
)

const (
	rdfNS   = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	xmlNS   = "http://www.w3.org/XML/1998/namespace"
	adobeNS = "adobe:ns:meta/"
)

var (
	nsMu     sync.RWMutex
	prefixes = map[string]string{ // uri -> prefix
		"http://purl.org/dc/elements/1.1/":                     "dc",
		"http://ns.adobe.com/xap/1.0/":                         "xmp",
		"http://ns.adobe.com/xap/1.0/rights/":                  "xmpRights",
		"http://ns.adobe.com/xap/1.0/mm/":                      "xmpMM",
		"http://ns.adobe.com/xap/1.0/bj/":                      "xmpBJ",
		"http://ns.adobe.com/xap/1.0/t/pg/":                    "xmpTPg",
		"http://ns.adobe.com/xmp/1.0/DynamicMedia/":            "xmpDM",
		"http://ns.adobe.com/photoshop/1.0/":                   "photoshop",
		"http://ns.adobe.com/tiff/1.0/":                        "tiff",
		"http://ns.adobe.com/exif/1.0/":                        "exif",
		"http://cipa.jp/exif/1.0/":                             "exifEX",
		"http://ns.adobe.com/exif/1.0/aux/":                    "aux",
		"http://ns.adobe.com/camera-raw-settings/1.0/":         "crs",
		"http://ns.adobe.com/pdf/1.3/":                         "pdf",
		"http://ns.adobe.com/lightroom/1.0/":                   "lr",
		"http://iptc.org/std/Iptc4xmpCore/1.0/xmlns/":          "Iptc4xmpCore",
		"http://iptc.org/std/Iptc4xmpExt/2008-02-29/":          "Iptc4xmpExt",
		"http://ns.adobe.com/xap/1.0/sType/ResourceEvent#":     "stEvt",
		"http://ns.adobe.com/xap/1.0/sType/ResourceRef#":       "stRef",
		"http://ns.adobe.com/xap/1.0/sType/Dimensions#":        "stDim",
		"http://ns.adobe.com/xmp/Identifier/qual/1.0/":         "xmpidq",
		"http://www.metadataworkinggroup.com/schemas/regions/": "mwg-rs",
		"http://ns.google.com/photos/1.0/panorama/":            "GPano",
	}
	uris = invert(prefixes) // prefix -> uri
)

func invert(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[v] = k
	}
	return out
}

// RegisterNamespace binds prefix to uri for every packet decoded or
// encoded afterwards. Re-registering a prefix rebinds it.
func RegisterNamespace(uri, prefix string) error {
	if uri == "" || prefix == "" || strings.ContainsAny(prefix, ": .") {
		return core.Errorf(core.EncodeError, "xmp register namespace", "invalid namespace %q / prefix %q", uri, prefix)
	}
	if !strings.HasSuffix(uri, "/") && !strings.HasSuffix(uri, "#") {
		return core.Errorf(core.EncodeError, "xmp register namespace", "namespace %q must end in / or #", uri)
	}
	nsMu.Lock()
	defer nsMu.Unlock()
	if old, ok := uris[prefix]; ok {
		delete(prefixes, old)
	}
	if old, ok := prefixes[uri]; ok {
		delete(uris, old)
	}
	prefixes[uri] = prefix
	uris[prefix] = uri
	return nil
}

// NamespaceURI returns the uri registered for prefix.
func NamespaceURI(prefix string) (string, bool) {
	nsMu.RLock()
	defer nsMu.RUnlock()
	u, ok := uris[prefix]
	return u, ok
}

// Prefix returns the prefix registered for uri.
func Prefix(uri string) (string, bool) {
	nsMu.RLock()
	defer nsMu.RUnlock()
	p, ok := prefixes[uri]
	return p, ok
}
