package tiff

import "errors"

// ErrUnsupported is returned for layouts this package cannot decode or encode.
var ErrUnsupported = errors.New("tiff: unsupported format")

// ErrFormat is returned for malformed files.
var ErrFormat = errors.New("tiff: malformed file")

const (
	leHeader = "II"
	beHeader = "MM"

	versionClassic = 42
	versionBig     = 43
)

// Tags used by the reader and writer.
const (
	tNewSubfileType   = 254
	tImageWidth       = 256
	tImageLength      = 257
	tBitsPerSample    = 258
	tCompression      = 259
	tPhotometric      = 262
	tImageDescription = 270
	tStripOffsets     = 273
	tSamplesPerPixel  = 277
	tRowsPerStrip     = 278
	tStripByteCounts  = 279
	tXResolution      = 282
	tYResolution      = 283
	tPlanarConfig     = 284
	tResolutionUnit   = 296
	tSoftware         = 305
	tPredictor        = 317
	tTileWidth        = 322
	tTileLength       = 323
	tTileOffsets      = 324
	tTileByteCounts   = 325
	tSubIFDs          = 330
	tSampleFormat     = 339
)

// Field data types.
const (
	dtByte      = 1
	dtASCII     = 2
	dtShort     = 3
	dtLong      = 4
	dtRational  = 5
	dtSByte     = 6
	dtUndefined = 7
	dtSShort    = 8
	dtSLong     = 9
	dtSRational = 10
	dtFloat     = 11
	dtDouble    = 12
	dtIFD       = 13
	dtLong8     = 16
	dtSLong8    = 17
	dtIFD8      = 18
)

var typeSize = map[uint16]int{
	dtByte: 1, dtASCII: 1, dtSByte: 1, dtUndefined: 1,
	dtShort: 2, dtSShort: 2,
	dtLong: 4, dtSLong: 4, dtFloat: 4, dtIFD: 4,
	dtRational: 8, dtSRational: 8, dtDouble: 8,
	dtLong8: 8, dtSLong8: 8, dtIFD8: 8,
}

const (
	compressionNone          = 1
	compressionDeflate       = 8
	compressionDeflateLegacy = 32946

	photometricWhiteIsZero = 0
	photometricBlackIsZero = 1

	sampleFormatUint  = 1
	sampleFormatInt   = 2
	sampleFormatFloat = 3

	resolutionUnitCentimeter = 3
)
