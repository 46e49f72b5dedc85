// Package exiftest builds minimal little-endian TIFF/EXIF blobs for tests.
package exiftest

import (
	"bytes"
	"encoding/binary"
	"os"
	"testing"
)

const (
	typeByte     = 1
	typeASCII    = 2
	typeLong     = 4
	typeRational = 5
)

// Fixture describes the tags to encode. Empty fields are left out.
type Fixture struct {
	DateTime     string // e.g. "2021:06:15 10:30:00"
	LatitudeRef  string
	Latitude     *[3]float64
	LongitudeRef string
	Longitude    *[3]float64
	AltitudeRef  *byte
	Altitude     *float64
}

type entry struct {
	tag   uint16
	typ   uint16
	count uint32
	data  []byte
}

var le = binary.LittleEndian

func ascii(tag uint16, s string) entry {
	b := append([]byte(s), 0)
	return entry{tag: tag, typ: typeASCII, count: uint32(len(b)), data: b}
}

func rationals(tag uint16, vals ...float64) entry {
	b := make([]byte, 0, 8*len(vals))
	for _, v := range vals {
		// fixed denominator keeps typical test values exact
		b = le.AppendUint32(b, uint32(v*1000+0.5))
		b = le.AppendUint32(b, 1000)
	}
	return entry{tag: tag, typ: typeRational, count: uint32(len(vals)), data: b}
}

func long(tag uint16, v uint32) entry {
	return entry{tag: tag, typ: typeLong, count: 1, data: le.AppendUint32(nil, v)}
}

// layout encodes one IFD placed at offset, followed by its out-of-line values.
func layout(entries []entry, offset uint32) []byte {
	size := uint32(2 + 12*len(entries) + 4)
	var ifd, extra bytes.Buffer
	ifd.Write(le.AppendUint16(nil, uint16(len(entries))))
	for _, e := range entries {
		ifd.Write(le.AppendUint16(nil, e.tag))
		ifd.Write(le.AppendUint16(nil, e.typ))
		ifd.Write(le.AppendUint32(nil, e.count))
		if len(e.data) <= 4 {
			val := make([]byte, 4)
			copy(val, e.data)
			ifd.Write(val)
			continue
		}
		ifd.Write(le.AppendUint32(nil, offset+size+uint32(extra.Len())))
		extra.Write(e.data)
		if extra.Len()%2 == 1 {
			extra.WriteByte(0)
		}
	}
	ifd.Write(le.AppendUint32(nil, 0)) // no next IFD
	ifd.Write(extra.Bytes())
	return ifd.Bytes()
}

// Build returns a raw TIFF stream carrying the fixture's tags.
func Build(f Fixture) []byte {
	var gps []entry
	if f.LatitudeRef != "" {
		gps = append(gps, ascii(0x0001, f.LatitudeRef))
	}
	if f.Latitude != nil {
		gps = append(gps, rationals(0x0002, f.Latitude[:]...))
	}
	if f.LongitudeRef != "" {
		gps = append(gps, ascii(0x0003, f.LongitudeRef))
	}
	if f.Longitude != nil {
		gps = append(gps, rationals(0x0004, f.Longitude[:]...))
	}
	if f.AltitudeRef != nil {
		gps = append(gps, entry{tag: 0x0005, typ: typeByte, count: 1, data: []byte{*f.AltitudeRef}})
	}
	if f.Altitude != nil {
		gps = append(gps, rationals(0x0006, *f.Altitude))
	}

	var ifd0 []entry
	if f.DateTime != "" {
		ifd0 = append(ifd0, ascii(0x0132, f.DateTime))
	}
	if len(gps) > 0 {
		ifd0 = append(ifd0, long(0x8825, 0))
	}
	if len(ifd0) == 0 {
		// goexif wants at least one tag in IFD0
		ifd0 = append(ifd0, long(0x0100, 1))
	}

	const ifd0Offset = 8
	main := layout(ifd0, ifd0Offset)
	if len(gps) > 0 {
		gpsOffset := uint32(ifd0Offset + len(main))
		ifd0[len(ifd0)-1] = long(0x8825, gpsOffset)
		main = layout(ifd0, ifd0Offset)
		main = append(main, layout(gps, gpsOffset)...)
	}

	var out bytes.Buffer
	out.WriteString("II")
	out.Write(le.AppendUint16(nil, 42))
	out.Write(le.AppendUint32(nil, ifd0Offset))
	out.Write(main)
	return out.Bytes()
}

// WriteFile writes the fixture to path and fails the test on error.
func WriteFile(t testing.TB, path string, f Fixture) {
	t.Helper()
	if err := os.WriteFile(path, Build(f), 0o644); err != nil {
		t.Fatalf("failed to write EXIF fixture %s: %v", path, err)
	}
}

// DMS is a convenience constructor for coordinate triples.
func DMS(d, m, s float64) *[3]float64 {
	return &[3]float64{d, m, s}
}
