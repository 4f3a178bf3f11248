package exif

import (
	"bytes"
	"fmt"

	goexif "github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"

	"github.com/ankit-chaubey/image-metadata-surgery/core"
)

// CrossCheck decodes blob with both this package and goexif and reports
// every field goexif sees whose type or bytes differ from ours. A nil
// slice means the two decoders agree.
func CrossCheck(blob []byte) ([]string, error) {
	ours, err := Decode(blob, true)
	if err != nil {
		return nil, err
	}
	theirs, err := goexif.Decode(bytes.NewReader(blob))
	if err != nil {
		return nil, core.Wrap(core.MalformedContainer, "crosscheck", err)
	}
	w := &crossWalker{ours: ours}
	if err := theirs.Walk(w); err != nil {
		return nil, core.Wrap(core.MalformedContainer, "crosscheck", err)
	}
	return w.diffs, nil
}

type crossWalker struct {
	ours  *Data
	diffs []string
}

func (w *crossWalker) Walk(name goexif.FieldName, tag *tiff.Tag) error {
	switch tag.Id {
	case tagExifIFD, tagGPSIFD, tagIopIFD, tagThumbOffset, tagThumbLength:
		return nil
	}
	var mine *Tag
	for _, t := range w.ours.Tags {
		if t.ID == tag.Id && t.Type == tag.Type && t.Count == tag.Count {
			mine = t
			break
		}
	}
	switch {
	case mine == nil:
		w.diffs = append(w.diffs, fmt.Sprintf("%s (0x%04x): missing", name, tag.Id))
	case !bytes.Equal(mine.Val, tag.Val):
		w.diffs = append(w.diffs, fmt.Sprintf("%s (0x%04x): value % X, goexif % X", name, tag.Id, mine.Val, tag.Val))
	}
	return nil
}
