package iptc

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind is the value type of a dataset.
type Kind int

const (
	KindString Kind = iota
	KindDate
	KindTime
	KindShort
	KindUndefined
)

var kindNames = map[Kind]string{
	KindString:    "String",
	KindDate:      "Date",
	KindTime:      "Time",
	KindShort:     "Short",
	KindUndefined: "Undefined",
}

func (k Kind) String() string { return kindNames[k] }

// Record numbers.
const (
	RecordEnvelope     byte = 1
	RecordApplication2 byte = 2
)

var recordNames = map[byte]string{
	RecordEnvelope:     "Envelope",
	RecordApplication2: "Application2",
}

type dataset struct {
	name string
	kind Kind
	// repeatable datasets may occur more than once in a stream.
	repeatable bool
}

var envelope = map[byte]dataset{
	0:   {"ModelVersion", KindShort, false},
	5:   {"Destination", KindString, true},
	20:  {"FileFormat", KindShort, false},
	22:  {"FileVersion", KindShort, false},
	30:  {"ServiceId", KindString, false},
	40:  {"EnvelopeNumber", KindString, false},
	50:  {"ProductId", KindString, true},
	60:  {"EnvelopePriority", KindString, false},
	70:  {"DateSent", KindDate, false},
	80:  {"TimeSent", KindTime, false},
	90:  {"CharacterSet", KindUndefined, false},
	100: {"UNO", KindString, false},
	120: {"ARMId", KindShort, false},
	122: {"ARMVersion", KindShort, false},
}

var application2 = map[byte]dataset{
	0:   {"RecordVersion", KindShort, false},
	3:   {"ObjectType", KindString, false},
	4:   {"ObjectAttribute", KindString, true},
	5:   {"ObjectName", KindString, false},
	7:   {"EditStatus", KindString, false},
	8:   {"EditorialUpdate", KindString, false},
	10:  {"Urgency", KindString, false},
	12:  {"Subject", KindString, true},
	15:  {"Category", KindString, false},
	20:  {"SuppCategory", KindString, true},
	22:  {"FixtureId", KindString, false},
	25:  {"Keywords", KindString, true},
	26:  {"LocationCode", KindString, true},
	27:  {"LocationName", KindString, true},
	30:  {"ReleaseDate", KindDate, false},
	35:  {"ReleaseTime", KindTime, false},
	37:  {"ExpirationDate", KindDate, false},
	38:  {"ExpirationTime", KindTime, false},
	40:  {"SpecialInstructions", KindString, false},
	42:  {"ActionAdvised", KindString, false},
	45:  {"ReferenceService", KindString, true},
	47:  {"ReferenceDate", KindDate, true},
	50:  {"ReferenceNumber", KindString, true},
	55:  {"DateCreated", KindDate, false},
	60:  {"TimeCreated", KindTime, false},
	62:  {"DigitizationDate", KindDate, false},
	63:  {"DigitizationTime", KindTime, false},
	65:  {"Program", KindString, false},
	70:  {"ProgramVersion", KindString, false},
	75:  {"ObjectCycle", KindString, false},
	80:  {"Byline", KindString, true},
	85:  {"BylineTitle", KindString, true},
	90:  {"City", KindString, false},
	92:  {"SubLocation", KindString, false},
	95:  {"ProvinceState", KindString, false},
	100: {"CountryCode", KindString, false},
	101: {"CountryName", KindString, false},
	103: {"TransmissionReference", KindString, false},
	105: {"Headline", KindString, false},
	110: {"Credit", KindString, false},
	115: {"Source", KindString, false},
	116: {"Copyright", KindString, false},
	118: {"Contact", KindString, true},
	120: {"Caption", KindString, false},
	122: {"Writer", KindString, true},
	125: {"RasterizedCaption", KindUndefined, false},
	130: {"ImageType", KindString, false},
	131: {"ImageOrientation", KindString, false},
	135: {"Language", KindString, false},
	150: {"AudioType", KindString, false},
	151: {"AudioRate", KindString, false},
	152: {"AudioResolution", KindString, false},
	153: {"AudioDuration", KindString, false},
	154: {"AudioOutcue", KindString, false},
	200: {"PreviewFormat", KindShort, false},
	201: {"PreviewVersion", KindShort, false},
	202: {"Preview", KindUndefined, false},
}

func records(rec byte) map[byte]dataset {
	switch rec {
	case RecordEnvelope:
		return envelope
	case RecordApplication2:
		return application2
	}
	return nil
}

func lookup(rec, id byte) (dataset, bool) {
	ds, ok := records(rec)[id]
	return ds, ok
}

// KindOf returns the value kind of a dataset. Unknown datasets are
// Undefined.
func KindOf(rec, id byte) Kind {
	if ds, ok := lookup(rec, id); ok {
		return ds.kind
	}
	return KindUndefined
}

// Key returns the Iptc.<Record>.<Name> key of a dataset.
func Key(rec, id byte) string {
	rn, ok := recordNames[rec]
	if !ok {
		rn = fmt.Sprintf("0x%04x", rec)
	}
	if ds, ok := lookup(rec, id); ok {
		return "Iptc." + rn + "." + ds.name
	}
	return fmt.Sprintf("Iptc.%s.0x%04x", rn, id)
}

// ParseKey resolves Iptc.<Record>.<Name>; the name may be a hex dataset id.
func ParseKey(key string) (byte, byte, error) {
	parts := strings.Split(key, ".")
	if len(parts) != 3 || parts[0] != "Iptc" {
		return 0, 0, fmt.Errorf("invalid IPTC key %q", key)
	}
	var rec byte
	found := false
	for r, n := range recordNames {
		if n == parts[1] {
			rec, found = r, true
		}
	}
	if !found {
		return 0, 0, fmt.Errorf("unknown IPTC record in %q", key)
	}
	if strings.HasPrefix(parts[2], "0x") {
		v, err := strconv.ParseUint(parts[2][2:], 16, 8)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid IPTC dataset in %q", key)
		}
		return rec, byte(v), nil
	}
	for id, ds := range records(rec) {
		if ds.name == parts[2] {
			return rec, id, nil
		}
	}
	return 0, 0, fmt.Errorf("unknown IPTC dataset in %q", key)
}
