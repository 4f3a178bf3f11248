package image

import (
	"bytes"

	"github.com/rs/zerolog"

	"github.com/ankit-chaubey/image-metadata-surgery/core"
	"github.com/ankit-chaubey/image-metadata-surgery/core/bytesio"
	"github.com/ankit-chaubey/image-metadata-surgery/core/charset"
	"github.com/ankit-chaubey/image-metadata-surgery/core/container"
	"github.com/ankit-chaubey/image-metadata-surgery/core/log"
	"github.com/ankit-chaubey/image-metadata-surgery/core/meta"
)

// Handle owns the bytes of one open image and the metadata decoded from
// them. Mutations are buffered in memory until Save. A Handle is not safe
// for concurrent use; distinct handles share nothing.
type Handle struct {
	src    *bytesio.Source
	format core.FormatID
	strat  container.Strategy
	access map[core.Family]core.AccessMode
	segs   []core.Segment
	store  *meta.Store
	log    zerolog.Logger
	key    string // set while h is the writer of its file
	closed bool
}

type options struct {
	encoding string
	logger   *zerolog.Logger
}

// Option configures Open and OpenBytes.
type Option func(*options)

// WithEncoding selects the charset used for text values, by any name
// the WHATWG encoding index knows. The default is utf-8.
func WithEncoding(name string) Option {
	return func(o *options) { o.encoding = name }
}

// WithLogger routes the handle's own events to l.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = &l }
}

// Open reads the image at path. Save writes back to the same path.
func Open(path string, opts ...Option) (*Handle, error) {
	src, err := bytesio.Open(path)
	if err != nil {
		return nil, err
	}
	return open(src, opts)
}

// OpenBytes wraps a private copy of b. Save only updates the buffer
// returned by Bytes.
func OpenBytes(b []byte, opts ...Option) (*Handle, error) {
	return open(bytesio.FromBytes(b), opts)
}

func open(src *bytesio.Source, opts []Option) (h *Handle, err error) {
	defer func() {
		if err != nil {
			src.Close()
		}
	}()

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	cs := charset.UTF8
	if o.encoding != "" {
		if cs, err = charset.Lookup(o.encoding); err != nil {
			return nil, err
		}
	}
	lg := *log.Logger()
	if o.logger != nil {
		lg = *o.logger
	}

	data, err := src.Bytes()
	if err != nil {
		return nil, err
	}
	id, err := core.Detect(data[:min(len(data), core.HeadSize)])
	if err != nil {
		return nil, err
	}
	strat, err := container.For(id)
	if err != nil {
		return nil, err
	}
	segs, err := strat.Locate(data)
	if err != nil {
		return nil, err
	}
	store, err := meta.Load(segs, cs)
	if err != nil {
		return nil, err
	}

	lg.Debug().Str("path", src.Path()).Str("format", string(id)).Int("segments", len(segs)).Msg("opened")
	return &Handle{
		src:    src,
		format: id,
		strat:  strat,
		access: strat.Access(),
		segs:   segs,
		store:  store,
		log:    lg,
	}, nil
}

// Close releases the byte source. Pending mutations are discarded.
// Calling Close again is a no-op.
func (h *Handle) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	h.release()
	h.store = nil
	h.segs = nil
	return h.src.Close()
}

func (h *Handle) live(op string) error {
	if h.closed {
		return core.Errorf(core.IOError, op, "handle is closed")
	}
	return nil
}

func (h *Handle) Format() core.FormatID { return h.format }

func (h *Handle) MimeType() string { return core.MIMEType(h.format) }

// AccessModes returns a copy of the format's per-family capabilities.
func (h *Handle) AccessModes() map[core.Family]core.AccessMode {
	out := make(map[core.Family]core.AccessMode, len(h.access))
	for f, m := range h.access {
		out[f] = m
	}
	return out
}

// Segments lists where each family was found when the handle was opened
// or last saved.
func (h *Handle) Segments() []core.Segment { return h.segs }

// readable reports whether f may be read. Families the format cannot
// read are reported absent rather than as an error.
func (h *Handle) readable(op string, f core.Family) (bool, error) {
	if err := h.live(op); err != nil {
		return false, err
	}
	return h.access[f].CanRead(), nil
}

// ─── Reads ───────────────────────────────────────────────────────────────────

// Read returns the entries of a keyed family (exif, iptc or xmp), pending
// mutations included. An absent or unreadable family yields no entries.
func (h *Handle) Read(f core.Family) ([]core.Entry, error) {
	ok, err := h.readable("read "+f.String(), f)
	if !ok {
		return nil, err
	}
	return h.store.Get(f), nil
}

func (h *Handle) ReadComment() (string, error) {
	ok, err := h.readable("read comment", core.FamilyComment)
	if !ok {
		return "", err
	}
	return h.store.Comment()
}

// ReadICC returns the embedded ICC profile, or nil.
func (h *Handle) ReadICC() ([]byte, error) {
	ok, err := h.readable("read icc", core.FamilyIcc)
	if !ok {
		return nil, err
	}
	return bytes.Clone(h.store.ICC()), nil
}

// ReadThumbnail returns the JPEG stream held in IFD1, or nil.
func (h *Handle) ReadThumbnail() ([]byte, error) {
	ok, err := h.readable("read thumbnail", core.FamilyThumbnail)
	if !ok {
		return nil, err
	}
	return bytes.Clone(h.store.Thumbnail()), nil
}

// ReadRawXMP returns the packet bytes. An unedited packet is returned
// exactly as found in the file.
func (h *Handle) ReadRawXMP() ([]byte, error) {
	ok, err := h.readable("read raw xmp", core.FamilyRawXmp)
	if !ok {
		return nil, err
	}
	b, err := h.store.RawXMP()
	return bytes.Clone(b), err
}

// ─── Mutations ───────────────────────────────────────────────────────────────
// Mutations are accepted whatever the access mode says; Save enforces it.

// Modify applies a mutation table to a keyed family. Rows that fail are
// skipped and reported together; the others still apply.
func (h *Handle) Modify(f core.Family, table []core.Mutation) error {
	if err := h.live("modify"); err != nil {
		return err
	}
	return h.store.Apply(f, table)
}

// ModifyComment replaces the comment. "" removes it.
func (h *Handle) ModifyComment(text string) error {
	if err := h.live("modify comment"); err != nil {
		return err
	}
	return h.store.SetComment(text)
}

// ModifyICC replaces the ICC profile. nil removes it.
func (h *Handle) ModifyICC(profile []byte) error {
	if err := h.live("modify icc"); err != nil {
		return err
	}
	h.store.SetICC(profile)
	return nil
}

// ModifyThumbnail replaces the EXIF thumbnail with a JPEG stream.
func (h *Handle) ModifyThumbnail(jpeg []byte) error {
	if err := h.live("modify thumbnail"); err != nil {
		return err
	}
	return h.store.SetThumbnail(jpeg)
}

// ModifyRawXMP replaces the XMP packet. It must be well-formed.
func (h *Handle) ModifyRawXMP(packet []byte) error {
	if err := h.live("modify raw xmp"); err != nil {
		return err
	}
	return h.store.SetRawXMP(packet)
}

// Clear removes every entry of f.
func (h *Handle) Clear(f core.Family) error {
	if err := h.live("clear " + f.String()); err != nil {
		return err
	}
	h.store.Clear(f)
	return nil
}

func (h *Handle) ClearThumbnail() error { return h.Clear(core.FamilyThumbnail) }

// Dirty lists the families changed since open or the last Save.
func (h *Handle) Dirty() []core.Family {
	if h.closed {
		return nil
	}
	return h.store.Dirty()
}
