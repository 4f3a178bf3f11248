package image

import (
	"bytes"

	"github.com/ankit-chaubey/image-metadata-surgery/core"
	"github.com/ankit-chaubey/image-metadata-surgery/core/container"
)

// carrier maps families that travel inside another family's payload.
var carrier = map[core.Family]core.Family{
	core.FamilyThumbnail: core.FamilyExif,
	core.FamilyRawXmp:    core.FamilyXmp,
}

// Save writes pending mutations back to the source. Either every dirty
// family is written or nothing is: a failure leaves the file, the buffer
// and the pending mutations as they were. Saving with nothing pending
// does not touch the source.
func (h *Handle) Save() error {
	if err := h.live("save"); err != nil {
		return err
	}
	dirty := h.store.Dirty()
	if len(dirty) == 0 {
		return nil
	}

	c := core.NewCollector("save")
	for _, f := range dirty {
		if !h.access[f].CanWrite() {
			c.Addf(core.AccessDenied, "%s does not support writing %s", h.format, f)
		}
	}
	if err := c.Err(); err != nil {
		return err
	}

	if err := h.claim(); err != nil {
		return err
	}
	edits, err := h.edits(dirty)
	if err != nil {
		return err
	}
	old, err := h.src.Bytes()
	if err != nil {
		return err
	}
	out, err := h.strat.Relink(old, edits)
	if err != nil {
		return err
	}
	segs, err := h.strat.Locate(out)
	if err != nil {
		// A container we cannot read back is never committed.
		return core.Wrap(core.EncodeError, "save", err)
	}
	if err := h.src.Commit(out); err != nil {
		return err
	}

	h.segs = segs
	h.store.MarkClean()
	h.log.Debug().Str("path", h.src.Path()).Int("families", len(edits)).Int("bytes", len(out)).Msg("saved")
	return nil
}

// edits encodes every dirty family once, folding carried families into
// their carrier.
func (h *Handle) edits(dirty []core.Family) (container.Edits, error) {
	edits := container.Edits{}
	c := core.NewCollector("save")
	for _, f := range dirty {
		if to, ok := carrier[f]; ok {
			f = to
		}
		if _, done := edits[f]; done {
			continue
		}
		b, err := h.store.Encode(f)
		if err != nil {
			c.Add(err)
			continue
		}
		edits[f] = b
	}
	if err := c.Err(); err != nil {
		return nil, err
	}
	return edits, nil
}

// Bytes returns a copy of the committed container bytes. Mutations not
// yet saved are not included.
func (h *Handle) Bytes() ([]byte, error) {
	if err := h.live("bytes"); err != nil {
		return nil, err
	}
	b, err := h.src.Bytes()
	if err != nil {
		return nil, err
	}
	return bytes.Clone(b), nil
}
