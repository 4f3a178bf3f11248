package exif

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/garyhouston/tiff66"
	"github.com/rwcarlsen/goexif/tiff"
)

// Group names the IFD a tag lives in.
type Group int

const (
	GroupImage     Group = iota // IFD0
	GroupPhoto                  // Exif sub-IFD
	GroupGPS                    // GPS sub-IFD
	GroupIop                    // Interoperability sub-IFD
	GroupThumbnail              // IFD1
)

var groupNames = [...]string{
	GroupImage:     "Image",
	GroupPhoto:     "Photo",
	GroupGPS:       "GPSInfo",
	GroupIop:       "Iop",
	GroupThumbnail: "Thumbnail",
}

func (g Group) String() string {
	if int(g) < len(groupNames) {
		return groupNames[g]
	}
	return "Group" + strconv.Itoa(int(g))
}

// Structural tags: managed by the codec, never stored in Data.Tags.
const (
	tagExifIFD     uint16 = 0x8769
	tagGPSIFD      uint16 = 0x8825
	tagIopIFD      uint16 = 0xA005
	tagThumbOffset uint16 = 0x0201
	tagThumbLength uint16 = 0x0202
)

// Tags that TIFF containers surface as separate families.
const (
	TagIPTC        uint16 = 0x83BB
	TagXMLPacket   uint16 = 0x02BC
	TagICCProfile  uint16 = 0x8773
	TagCompression uint16 = 0x0103
	TagUserComment uint16 = 0x9286
)

// pointer tag → child group
var subIFDs = map[Group][]struct {
	tag   uint16
	child Group
}{
	GroupImage: {{tagExifIFD, GroupPhoto}, {tagGPSIFD, GroupGPS}},
	GroupPhoto: {{tagIopIFD, GroupIop}},
}

type tagInfo struct {
	name string
	typ  tiff.DataType
}

type tagKey struct {
	g  Group
	id uint16
}

// Image tags also apply to IFD1.
var imageTags = map[uint16]tagInfo{
	0x00FE: {"NewSubfileType", tiff.DTLong},
	0x0100: {"ImageWidth", tiff.DTLong},
	0x0101: {"ImageLength", tiff.DTLong},
	0x0102: {"BitsPerSample", tiff.DTShort},
	0x0103: {"Compression", tiff.DTShort},
	0x0106: {"PhotometricInterpretation", tiff.DTShort},
	0x010A: {"FillOrder", tiff.DTShort},
	0x010D: {"DocumentName", tiff.DTAscii},
	0x010E: {"ImageDescription", tiff.DTAscii},
	0x010F: {"Make", tiff.DTAscii},
	0x0110: {"Model", tiff.DTAscii},
	0x0111: {"StripOffsets", tiff.DTLong},
	0x0112: {"Orientation", tiff.DTShort},
	0x0115: {"SamplesPerPixel", tiff.DTShort},
	0x0116: {"RowsPerStrip", tiff.DTLong},
	0x0117: {"StripByteCounts", tiff.DTLong},
	0x011A: {"XResolution", tiff.DTRational},
	0x011B: {"YResolution", tiff.DTRational},
	0x011C: {"PlanarConfiguration", tiff.DTShort},
	0x011D: {"PageName", tiff.DTAscii},
	0x0128: {"ResolutionUnit", tiff.DTShort},
	0x0129: {"PageNumber", tiff.DTShort},
	0x012D: {"TransferFunction", tiff.DTShort},
	0x0131: {"Software", tiff.DTAscii},
	0x0132: {"DateTime", tiff.DTAscii},
	0x013B: {"Artist", tiff.DTAscii},
	0x013C: {"HostComputer", tiff.DTAscii},
	0x013D: {"Predictor", tiff.DTShort},
	0x013E: {"WhitePoint", tiff.DTRational},
	0x013F: {"PrimaryChromaticities", tiff.DTRational},
	0x0140: {"ColorMap", tiff.DTShort},
	0x0142: {"TileWidth", tiff.DTLong},
	0x0143: {"TileLength", tiff.DTLong},
	0x0144: {"TileOffsets", tiff.DTLong},
	0x0145: {"TileByteCounts", tiff.DTLong},
	0x014A: {"SubIFDs", tiff.DTLong},
	0x0152: {"ExtraSamples", tiff.DTShort},
	0x0153: {"SampleFormat", tiff.DTShort},
	0x0211: {"YCbCrCoefficients", tiff.DTRational},
	0x0212: {"YCbCrSubSampling", tiff.DTShort},
	0x0213: {"YCbCrPositioning", tiff.DTShort},
	0x0214: {"ReferenceBlackWhite", tiff.DTRational},
	0x02BC: {"XMLPacket", tiff.DTByte},
	0x4746: {"Rating", tiff.DTShort},
	0x4749: {"RatingPercent", tiff.DTShort},
	0x8298: {"Copyright", tiff.DTAscii},
	0x83BB: {"IPTCNAA", tiff.DTLong},
	0x8773: {"InterColorProfile", tiff.DTUndefined},
	0x9C9B: {"XPTitle", tiff.DTByte},
	0x9C9C: {"XPComment", tiff.DTByte},
	0x9C9D: {"XPAuthor", tiff.DTByte},
	0x9C9E: {"XPKeywords", tiff.DTByte},
	0x9C9F: {"XPSubject", tiff.DTByte},
	0xA480: {"GDALMetadata", tiff.DTAscii},
	0xC612: {"DNGVersion", tiff.DTByte},
}

var photoTags = map[uint16]tagInfo{
	0x829A: {"ExposureTime", tiff.DTRational},
	0x829D: {"FNumber", tiff.DTRational},
	0x8822: {"ExposureProgram", tiff.DTShort},
	0x8824: {"SpectralSensitivity", tiff.DTAscii},
	0x8827: {"ISOSpeedRatings", tiff.DTShort},
	0x8828: {"OECF", tiff.DTUndefined},
	0x8830: {"SensitivityType", tiff.DTShort},
	0x8832: {"RecommendedExposureIndex", tiff.DTLong},
	0x9000: {"ExifVersion", tiff.DTUndefined},
	0x9003: {"DateTimeOriginal", tiff.DTAscii},
	0x9004: {"DateTimeDigitized", tiff.DTAscii},
	0x9010: {"OffsetTime", tiff.DTAscii},
	0x9011: {"OffsetTimeOriginal", tiff.DTAscii},
	0x9012: {"OffsetTimeDigitized", tiff.DTAscii},
	0x9101: {"ComponentsConfiguration", tiff.DTUndefined},
	0x9102: {"CompressedBitsPerPixel", tiff.DTRational},
	0x9201: {"ShutterSpeedValue", tiff.DTSRational},
	0x9202: {"ApertureValue", tiff.DTRational},
	0x9203: {"BrightnessValue", tiff.DTSRational},
	0x9204: {"ExposureBiasValue", tiff.DTSRational},
	0x9205: {"MaxApertureValue", tiff.DTRational},
	0x9206: {"SubjectDistance", tiff.DTRational},
	0x9207: {"MeteringMode", tiff.DTShort},
	0x9208: {"LightSource", tiff.DTShort},
	0x9209: {"Flash", tiff.DTShort},
	0x920A: {"FocalLength", tiff.DTRational},
	0x9214: {"SubjectArea", tiff.DTShort},
	0x927C: {"MakerNote", tiff.DTUndefined},
	0x9286: {"UserComment", tiff.DTUndefined},
	0x9290: {"SubSecTime", tiff.DTAscii},
	0x9291: {"SubSecTimeOriginal", tiff.DTAscii},
	0x9292: {"SubSecTimeDigitized", tiff.DTAscii},
	0xA000: {"FlashpixVersion", tiff.DTUndefined},
	0xA001: {"ColorSpace", tiff.DTShort},
	0xA002: {"PixelXDimension", tiff.DTLong},
	0xA003: {"PixelYDimension", tiff.DTLong},
	0xA004: {"RelatedSoundFile", tiff.DTAscii},
	0xA20B: {"FlashEnergy", tiff.DTRational},
	0xA20E: {"FocalPlaneXResolution", tiff.DTRational},
	0xA20F: {"FocalPlaneYResolution", tiff.DTRational},
	0xA210: {"FocalPlaneResolutionUnit", tiff.DTShort},
	0xA214: {"SubjectLocation", tiff.DTShort},
	0xA215: {"ExposureIndex", tiff.DTRational},
	0xA217: {"SensingMethod", tiff.DTShort},
	0xA300: {"FileSource", tiff.DTUndefined},
	0xA301: {"SceneType", tiff.DTUndefined},
	0xA302: {"CFAPattern", tiff.DTUndefined},
	0xA401: {"CustomRendered", tiff.DTShort},
	0xA402: {"ExposureMode", tiff.DTShort},
	0xA403: {"WhiteBalance", tiff.DTShort},
	0xA404: {"DigitalZoomRatio", tiff.DTRational},
	0xA405: {"FocalLengthIn35mmFilm", tiff.DTShort},
	0xA406: {"SceneCaptureType", tiff.DTShort},
	0xA407: {"GainControl", tiff.DTShort},
	0xA408: {"Contrast", tiff.DTShort},
	0xA409: {"Saturation", tiff.DTShort},
	0xA40A: {"Sharpness", tiff.DTShort},
	0xA40B: {"DeviceSettingDescription", tiff.DTUndefined},
	0xA40C: {"SubjectDistanceRange", tiff.DTShort},
	0xA420: {"ImageUniqueID", tiff.DTAscii},
	0xA430: {"CameraOwnerName", tiff.DTAscii},
	0xA431: {"BodySerialNumber", tiff.DTAscii},
	0xA432: {"LensSpecification", tiff.DTRational},
	0xA433: {"LensMake", tiff.DTAscii},
	0xA434: {"LensModel", tiff.DTAscii},
	0xA435: {"LensSerialNumber", tiff.DTAscii},
	0xA460: {"CompositeImage", tiff.DTShort},
}

var gpsTags = map[uint16]tagInfo{
	0x0000: {"GPSVersionID", tiff.DTByte},
	0x0001: {"GPSLatitudeRef", tiff.DTAscii},
	0x0002: {"GPSLatitude", tiff.DTRational},
	0x0003: {"GPSLongitudeRef", tiff.DTAscii},
	0x0004: {"GPSLongitude", tiff.DTRational},
	0x0005: {"GPSAltitudeRef", tiff.DTByte},
	0x0006: {"GPSAltitude", tiff.DTRational},
	0x0007: {"GPSTimeStamp", tiff.DTRational},
	0x0008: {"GPSSatellites", tiff.DTAscii},
	0x0009: {"GPSStatus", tiff.DTAscii},
	0x000A: {"GPSMeasureMode", tiff.DTAscii},
	0x000B: {"GPSDOP", tiff.DTRational},
	0x000C: {"GPSSpeedRef", tiff.DTAscii},
	0x000D: {"GPSSpeed", tiff.DTRational},
	0x000E: {"GPSTrackRef", tiff.DTAscii},
	0x000F: {"GPSTrack", tiff.DTRational},
	0x0010: {"GPSImgDirectionRef", tiff.DTAscii},
	0x0011: {"GPSImgDirection", tiff.DTRational},
	0x0012: {"GPSMapDatum", tiff.DTAscii},
	0x0013: {"GPSDestLatitudeRef", tiff.DTAscii},
	0x0014: {"GPSDestLatitude", tiff.DTRational},
	0x0015: {"GPSDestLongitudeRef", tiff.DTAscii},
	0x0016: {"GPSDestLongitude", tiff.DTRational},
	0x0017: {"GPSDestBearingRef", tiff.DTAscii},
	0x0018: {"GPSDestBearing", tiff.DTRational},
	0x0019: {"GPSDestDistanceRef", tiff.DTAscii},
	0x001A: {"GPSDestDistance", tiff.DTRational},
	0x001B: {"GPSProcessingMethod", tiff.DTUndefined},
	0x001C: {"GPSAreaInformation", tiff.DTUndefined},
	0x001D: {"GPSDateStamp", tiff.DTAscii},
	0x001E: {"GPSDifferential", tiff.DTShort},
	0x001F: {"GPSHPositioningError", tiff.DTRational},
}

var iopTags = map[uint16]tagInfo{
	0x0001: {"InteroperabilityIndex", tiff.DTAscii},
	0x0002: {"InteroperabilityVersion", tiff.DTUndefined},
	0x1000: {"RelatedImageFileFormat", tiff.DTAscii},
	0x1001: {"RelatedImageWidth", tiff.DTLong},
	0x1002: {"RelatedImageLength", tiff.DTLong},
}

var (
	byID   = map[tagKey]tagInfo{}
	byName = map[string]tagKey{}
)

func init() {
	add := func(g Group, m map[uint16]tagInfo) {
		for id, ti := range m {
			byID[tagKey{g, id}] = ti
			byName[g.String()+"."+ti.name] = tagKey{g, id}
		}
	}
	add(GroupImage, imageTags)
	add(GroupThumbnail, imageTags)
	add(GroupPhoto, photoTags)
	add(GroupGPS, gpsTags)
	add(GroupIop, iopTags)
}

// dateTags hold "YYYY:MM:DD HH:MM:SS" values.
var dateTags = map[tagKey]bool{
	{GroupImage, 0x0132}:     true,
	{GroupThumbnail, 0x0132}: true,
	{GroupPhoto, 0x9003}:     true,
	{GroupPhoto, 0x9004}:     true,
}

// Key renders the canonical key for a tag.
func Key(g Group, id uint16) string {
	if ti, ok := byID[tagKey{g, id}]; ok {
		return "Exif." + g.String() + "." + ti.name
	}
	return fmt.Sprintf("Exif.%s.0x%04x", g, id)
}

// ParseKey resolves "Exif.<Group>.<Name>" or "Exif.<Group>.0xNNNN".
func ParseKey(key string) (Group, uint16, error) {
	parts := strings.Split(key, ".")
	if len(parts) != 3 || parts[0] != "Exif" {
		return 0, 0, fmt.Errorf("invalid EXIF key %q", key)
	}
	if k, ok := byName[parts[1]+"."+parts[2]]; ok {
		return k.g, k.id, nil
	}
	g := -1
	for i, n := range groupNames {
		if n == parts[1] {
			g = i
		}
	}
	if g < 0 {
		return 0, 0, fmt.Errorf("unknown EXIF group in key %q", key)
	}
	if strings.HasPrefix(parts[2], "0x") {
		id, err := strconv.ParseUint(parts[2][2:], 16, 16)
		if err == nil {
			return Group(g), uint16(id), nil
		}
	}
	return 0, 0, fmt.Errorf("unknown EXIF tag in key %q", key)
}

// structural reports tags the encoder derives on its own.
func structural(g Group, id uint16) bool {
	switch {
	case g == GroupImage && (id == tagExifIFD || id == tagGPSIFD):
		return true
	case g == GroupPhoto && id == tagIopIFD:
		return true
	case g == GroupThumbnail && (id == tagThumbOffset || id == tagThumbLength):
		return true
	}
	return false
}

// defaultType is the type a new tag gets when set from text.
func defaultType(g Group, id uint16) tiff.DataType {
	if ti, ok := byID[tagKey{g, id}]; ok {
		return ti.typ
	}
	return tiff.DTAscii
}

// dtIFD is the TIFF supplement 1 type for sub-IFD offsets, which goexif
// does not name.
const dtIFD = tiff.DataType(tiff66.IFD)

var typeNames = map[tiff.DataType]string{
	tiff.DTByte:      "Byte",
	tiff.DTAscii:     "Ascii",
	tiff.DTShort:     "Short",
	tiff.DTLong:      "Long",
	tiff.DTRational:  "Rational",
	tiff.DTSByte:     "SByte",
	tiff.DTUndefined: "Undefined",
	tiff.DTSShort:    "SShort",
	tiff.DTSLong:     "SLong",
	tiff.DTSRational: "SRational",
	tiff.DTFloat:     "Float",
	tiff.DTDouble:    "Double",
	dtIFD:            "IFD",
}

// TypeName returns the display name of a TIFF data type.
func TypeName(t tiff.DataType) string {
	if n, ok := typeNames[t]; ok {
		return n
	}
	return "Unknown"
}
