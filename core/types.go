// Package core defines the shared types, interfaces, error kinds and format
// registry for image metadata surgery.
package core

import "fmt"

// Version of the library and the surgery command.
const Version = "0.3.0"

// Family identifies one independently addressable kind of embedded metadata.
type Family int

const (
	FamilyExif Family = iota
	FamilyIptc
	FamilyXmp
	FamilyComment
	FamilyIcc
	FamilyThumbnail
	FamilyRawXmp
)

// Families lists every family in canonical order.
var Families = []Family{
	FamilyExif, FamilyIptc, FamilyXmp, FamilyComment,
	FamilyIcc, FamilyThumbnail, FamilyRawXmp,
}

var familyNames = map[Family]string{
	FamilyExif:      "exif",
	FamilyIptc:      "iptc",
	FamilyXmp:       "xmp",
	FamilyComment:   "comment",
	FamilyIcc:       "icc",
	FamilyThumbnail: "thumbnail",
	FamilyRawXmp:    "raw_xmp",
}

func (f Family) String() string {
	if n, ok := familyNames[f]; ok {
		return n
	}
	return fmt.Sprintf("family(%d)", int(f))
}

// ParseFamily resolves a family name as printed by String.
func ParseFamily(s string) (Family, error) {
	for f, n := range familyNames {
		if n == s {
			return f, nil
		}
	}
	return 0, Errorf(EncodeError, "parse family", "unknown metadata family %q", s)
}

// AccessMode is a per-family capability flag. The numeric values are
// stable: none=0, read=1, write=2, read-write=3.
type AccessMode int

const (
	AccessNone      AccessMode = 0
	AccessRead      AccessMode = 1
	AccessWrite     AccessMode = 2
	AccessReadWrite AccessMode = 3
)

func (m AccessMode) CanRead() bool  { return m&AccessRead != 0 }
func (m AccessMode) CanWrite() bool { return m&AccessWrite != 0 }

func (m AccessMode) String() string {
	switch m {
	case AccessRead:
		return "read"
	case AccessWrite:
		return "write"
	case AccessReadWrite:
		return "read-write"
	default:
		return "none"
	}
}

// TypeTag is the mutation type attached to a Set call.
type TypeTag string

const (
	TypeString   TypeTag = "string"
	TypeRational TypeTag = "rational"
	TypeArray    TypeTag = "array"
	TypeBinary   TypeTag = "undefined"
	TypeDate     TypeTag = "date"
	// TypeDelete removes every entry for the key and adds nothing.
	TypeDelete TypeTag = "_delete"
)

// Entry is one decoded metadata item. Type carries the codec's own type
// name (Ascii, Rational, XmpBag, ...). Values is set for multi-valued
// entries; Value is always the rendered text.
type Entry struct {
	Key    string   `json:"key" yaml:"key"`
	Value  string   `json:"value" yaml:"value"`
	Values []string `json:"values,omitempty" yaml:"values,omitempty"`
	Type   string   `json:"type" yaml:"type"`
}

// Mutation is one row of a mutation table: (key, value or values, type).
type Mutation struct {
	Key    string   `yaml:"key"`
	Value  string   `yaml:"value,omitempty"`
	Values []string `yaml:"values,omitempty"`
	Type   TypeTag  `yaml:"type"`
}

// Segment describes where a family's encoded bytes live in a container.
// Payload aliases the container bytes and must not be modified.
type Segment struct {
	Family  Family
	Offset  int
	Length  int
	Payload []byte
}

// MetaField represents a single metadata key-value pair for display.
type MetaField struct {
	Key      string // Full metadata key (e.g. "Exif.Image.Make")
	Value    string // String representation of the value
	Category string // Family label (e.g. "EXIF", "IPTC", "XMP")
	Editable bool   // Whether the container accepts writes for this family
	Raw      string // Codec type name
}

// Metadata holds all metadata extracted from a single file.
type Metadata struct {
	FilePath string
	Format   string // Human-readable format name (e.g. "JPEG", "PNG")
	Fields   []MetaField
}

// StripOptions controls which parts of metadata to remove.
type StripOptions struct {
	// KeepFields lists field keys that should NOT be removed.
	// If empty, all metadata is stripped.
	KeepFields []string
	// StripGPS removes GPS coordinates only (for privacy).
	StripGPS bool
	// StripAll removes every possible metadata structure.
	StripAll bool
}

// EditOptions holds field changes for an edit operation.
type EditOptions struct {
	// Set is a map of full key → value for fields to set or update.
	Set map[string]string
	// Delete is a list of full keys to remove.
	Delete []string
	// DryRun previews changes without writing.
	DryRun bool
}

// FormatInfo describes what a format handler supports.
type FormatInfo struct {
	Name       string   // "JPEG"
	Extensions []string // [".jpg", ".jpeg"]
	MIMETypes  []string
	CanView    bool
	CanEdit    bool
	CanStrip   bool
	Access     map[Family]AccessMode
	Notes      string
}

// Handler is the file-level interface the command line drives.
type Handler interface {
	// View reads and returns all discoverable metadata from path.
	View(path string) (*Metadata, error)
	// Edit writes new/updated fields into path, saving to outPath.
	// outPath == "" means in-place edit.
	Edit(path string, outPath string, opts EditOptions) error
	// Strip removes metadata from path, saving to outPath.
	Strip(path string, outPath string, opts StripOptions) error
	// Info returns format capabilities.
	Info() FormatInfo
}
