// Package image opens JPEG, TIFF, PNG, WebP, GIF and BMP files, exposes
// their embedded metadata per family and rewrites it in place.
package image

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"golang.org/x/exp/maps"

	"github.com/ankit-chaubey/image-metadata-surgery/core"
	"github.com/ankit-chaubey/image-metadata-surgery/core/bytesio"
	"github.com/ankit-chaubey/image-metadata-surgery/core/container"
)

// ──────────────────────────────────────────────────────────────────────────────
// Handler
// ──────────────────────────────────────────────────────────────────────────────

// Handler implements core.Handler for one image format on top of Handle.
type Handler struct {
	format core.FormatID
	opts   []Option
}

// New returns a Handler for the given format. opts are passed to every
// Open the handler performs.
func New(id core.FormatID, opts ...Option) *Handler {
	return &Handler{format: id, opts: opts}
}

func (h *Handler) Info() core.FormatInfo {
	info := formatInfo[h.format]
	strat, err := container.For(h.format)
	if err != nil {
		return info
	}
	info.Access = strat.Access()
	for _, m := range info.Access {
		if m.CanWrite() {
			info.CanEdit, info.CanStrip = true, true
		}
	}
	info.CanView = true
	return info
}

var formatInfo = map[core.FormatID]core.FormatInfo{
	core.FmtJPEG: {
		Name:       "JPEG",
		Extensions: []string{".jpg", ".jpeg", ".jpe"},
		MIMETypes:  []string{"image/jpeg"},
		Notes:      "APP1 EXIF and XMP, APP2 ICC, APP13 IPTC, COM comment.",
	},
	core.FmtPNG: {
		Name:       "PNG",
		Extensions: []string{".png"},
		MIMETypes:  []string{"image/png"},
		Notes:      "eXIf, iCCP, iTXt XMP, raw profile text chunks, comment text.",
	},
	core.FmtGIF: {
		Name:       "GIF",
		Extensions: []string{".gif"},
		MIMETypes:  []string{"image/gif"},
		Notes:      "Comment extension, read only.",
	},
	core.FmtWebP: {
		Name:       "WebP",
		Extensions: []string{".webp"},
		MIMETypes:  []string{"image/webp"},
		Notes:      "EXIF, XMP and ICCP chunks in the RIFF container; VP8X is added when needed.",
	},
	core.FmtTIFF: {
		Name:       "TIFF",
		Extensions: []string{".tiff", ".tif"},
		MIMETypes:  []string{"image/tiff"},
		Notes:      "IFD0 tags with IPTC, XMP and ICC as tags; the new tree is appended.",
	},
	core.FmtBMP: {
		Name:       "BMP",
		Extensions: []string{".bmp"},
		MIMETypes:  []string{"image/x-ms-bmp"},
		Notes:      "No embedded metadata.",
	},
}

// categories labels each family in View output.
var categories = map[core.Family]string{
	core.FamilyExif:      "EXIF",
	core.FamilyIptc:      "IPTC",
	core.FamilyXmp:       "XMP",
	core.FamilyComment:   "Comment",
	core.FamilyIcc:       "ICC",
	core.FamilyThumbnail: "Thumbnail",
}

// Keys used for the blob families in View, Edit and Strip.
const (
	KeyComment   = "Comment"
	KeyICC       = "ICC.Profile"
	KeyThumbnail = "Thumbnail.JPEG"
)

// ──────────────────────────────────────────────────────────────────────────────
// View
// ──────────────────────────────────────────────────────────────────────────────

func (h *Handler) View(path string) (*core.Metadata, error) {
	m := &core.Metadata{FilePath: path, Format: formatInfo[h.format].Name}
	img, err := Open(path, h.opts...)
	if err != nil {
		return m, err
	}
	defer img.Close()

	if m.Format == "" {
		m.Format = formatInfo[img.Format()].Name
	}
	fields, err := img.Fields()
	m.Fields = fields
	return m, err
}

// Fields renders every readable family as display fields.
func (h *Handle) Fields() ([]core.MetaField, error) {
	if err := h.live("view"); err != nil {
		return nil, err
	}
	var out []core.MetaField
	add := func(f core.Family, key, value, typ string) {
		out = append(out, core.MetaField{
			Key:      key,
			Value:    value,
			Category: categories[f],
			Editable: h.access[f].CanWrite(),
			Raw:      typ,
		})
	}

	for _, f := range []core.Family{core.FamilyExif, core.FamilyIptc, core.FamilyXmp} {
		if !h.access[f].CanRead() {
			continue
		}
		for _, e := range h.store.Get(f) {
			add(f, e.Key, e.Value, e.Type)
		}
	}
	if h.access[core.FamilyComment].CanRead() {
		text, err := h.store.Comment()
		if err != nil {
			return out, err
		}
		if text != "" {
			add(core.FamilyComment, KeyComment, text, "Text")
		}
	}
	if icc := h.store.ICC(); len(icc) > 0 && h.access[core.FamilyIcc].CanRead() {
		add(core.FamilyIcc, KeyICC, fmt.Sprintf("%d bytes", len(icc)), "Undefined")
	}
	if th := h.store.Thumbnail(); len(th) > 0 && h.access[core.FamilyThumbnail].CanRead() {
		add(core.FamilyThumbnail, KeyThumbnail, fmt.Sprintf("%d bytes", len(th)), "Undefined")
	}
	return out, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Edit
// ──────────────────────────────────────────────────────────────────────────────

// FamilyOfKey resolves the keyed family a full metadata key belongs to.
func FamilyOfKey(key string) (core.Family, error) {
	prefix, _, _ := strings.Cut(key, ".")
	switch prefix {
	case "Exif":
		return core.FamilyExif, nil
	case "Iptc":
		return core.FamilyIptc, nil
	case "Xmp":
		return core.FamilyXmp, nil
	}
	return 0, core.Errorf(core.EncodeError, "edit", "key %q has no Exif, Iptc or Xmp prefix", key)
}

func (h *Handler) Edit(path string, outPath string, opts core.EditOptions) error {
	img, err := h.openFor(path, outPath)
	if err != nil {
		return err
	}
	defer img.Close()

	c := core.NewCollector("edit")
	tables := map[core.Family][]core.Mutation{}
	keys := maps.Keys(opts.Set)
	sort.Strings(keys)
	for _, k := range keys {
		if k == KeyComment {
			c.Add(img.ModifyComment(opts.Set[k]))
			continue
		}
		f, err := FamilyOfKey(k)
		if err != nil {
			c.Add(err)
			continue
		}
		tables[f] = append(tables[f], core.Mutation{Key: k, Value: opts.Set[k], Type: core.TypeString})
	}
	for _, k := range opts.Delete {
		switch k {
		case KeyComment:
			c.Add(img.ModifyComment(""))
			continue
		case KeyICC:
			c.Add(img.ModifyICC(nil))
			continue
		case KeyThumbnail:
			c.Add(img.ClearThumbnail())
			continue
		}
		f, err := FamilyOfKey(k)
		if err != nil {
			c.Add(err)
			continue
		}
		tables[f] = append(tables[f], core.Mutation{Key: k, Type: core.TypeDelete})
	}
	for _, f := range core.Families {
		if t := tables[f]; len(t) > 0 {
			c.Add(img.Modify(f, t))
		}
	}
	if err := c.Err(); err != nil {
		return err
	}
	if opts.DryRun {
		return nil
	}
	return h.finish(img, path, outPath)
}

// openFor opens path for rewriting. When the result goes elsewhere the
// source is opened as a buffer so it is never modified.
func (h *Handler) openFor(path, outPath string) (*Handle, error) {
	out := core.ResolveOutPath(path, outPath)
	if out == path {
		return Open(path, h.opts...)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, core.Wrap(core.IOError, "open", err)
	}
	return OpenBytes(b, h.opts...)
}

func (h *Handler) finish(img *Handle, path, outPath string) error {
	if err := img.Save(); err != nil {
		return err
	}
	out := core.ResolveOutPath(path, outPath)
	if out == path {
		return nil
	}
	b, err := img.Bytes()
	if err != nil {
		return err
	}
	return bytesio.AtomicWrite(out, b, 0o644)
}

// ──────────────────────────────────────────────────────────────────────────────
// Strip
// ──────────────────────────────────────────────────────────────────────────────

func (h *Handler) Strip(path string, outPath string, opts core.StripOptions) error {
	img, err := h.openFor(path, outPath)
	if err != nil {
		return err
	}
	defer img.Close()

	if err := img.Strip(opts); err != nil {
		return err
	}
	return h.finish(img, path, outPath)
}

// Strip removes metadata from every writable family according to opts.
// StripGPS alone removes only the EXIF GPS directory. KeepFields lists
// keys that survive; without it every writable family is cleared. Keeping
// Thumbnail.JPEG keeps the IFD1 tags with it.
func (h *Handle) Strip(opts core.StripOptions) error {
	if err := h.live("strip"); err != nil {
		return err
	}
	if opts.StripGPS && !opts.StripAll && len(opts.KeepFields) == 0 {
		return h.stripGPS()
	}

	keep := map[string]bool{}
	for _, k := range opts.KeepFields {
		keep[k] = true
	}
	if opts.StripAll {
		keep = map[string]bool{}
	}

	writable := 0
	c := core.NewCollector("strip")
	for _, f := range []core.Family{core.FamilyExif, core.FamilyIptc, core.FamilyXmp} {
		if !h.access[f].CanWrite() {
			continue
		}
		writable++
		if len(keep) == 0 {
			h.store.Clear(f)
			continue
		}
		var table []core.Mutation
		for _, e := range h.store.Get(f) {
			// IFD1 describes the thumbnail.
			if keep[KeyThumbnail] && strings.HasPrefix(e.Key, "Exif.Thumbnail.") {
				continue
			}
			if !keep[e.Key] {
				table = append(table, core.Mutation{Key: e.Key, Type: core.TypeDelete})
			}
		}
		if len(table) > 0 {
			c.Add(h.store.Apply(f, dedupe(table)))
		}
	}
	blobs := []struct {
		f   core.Family
		key string
		has bool
	}{
		{core.FamilyComment, KeyComment, h.hasComment()},
		{core.FamilyIcc, KeyICC, len(h.store.ICC()) > 0},
		{core.FamilyThumbnail, KeyThumbnail, len(h.store.Thumbnail()) > 0},
	}
	for _, b := range blobs {
		if !h.access[b.f].CanWrite() {
			continue
		}
		writable++
		if b.has && !keep[b.key] {
			h.store.Clear(b.f)
		}
	}
	if writable == 0 {
		return core.Errorf(core.AccessDenied, "strip", "%s carries no writable metadata", h.format)
	}
	return c.Err()
}

func (h *Handle) hasComment() bool {
	text, err := h.store.Comment()
	return err != nil || text != ""
}

func (h *Handle) stripGPS() error {
	if !h.access[core.FamilyExif].CanWrite() {
		return core.Errorf(core.AccessDenied, "strip gps", "%s does not support writing exif", h.format)
	}
	var table []core.Mutation
	for _, e := range h.store.Get(core.FamilyExif) {
		if strings.HasPrefix(e.Key, "Exif.GPSInfo.") {
			table = append(table, core.Mutation{Key: e.Key, Type: core.TypeDelete})
		}
	}
	return h.store.Apply(core.FamilyExif, dedupe(table))
}

// dedupe drops repeated keys; one delete removes every entry of a key.
func dedupe(table []core.Mutation) []core.Mutation {
	seen := map[string]bool{}
	out := table[:0]
	for _, m := range table {
		if !seen[m.Key] {
			seen[m.Key] = true
			out = append(out, m)
		}
	}
	return out
}
