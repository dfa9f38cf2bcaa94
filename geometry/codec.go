package geometry

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/klauspost/compress/zstd"
)

// Blob format: 4-byte magic, 1-byte version, then a zstd frame containing
// little-endian sections:
//
//	[numSources:4][dim:1]
//	per source: [t:8][dt:8][numPoints:4][numPoints*dim*8 coordinate bytes]
const (
	codecMagic   = "SGEO"
	codecVersion = uint8(1)
)

// Encode serializes a geometry for blob storage.
func Encode(g *Geometry) ([]byte, error) {
	var body bytes.Buffer
	le := binary.LittleEndian

	write := func(v any) { binary.Write(&body, le, v) } //nolint:errcheck // bytes.Buffer cannot fail

	write(uint32(g.NumSources()))
	write(uint8(g.Dim()))
	for s := 0; s < g.NumSources(); s++ {
		write(g.t[s])
		write(g.dt[s])
		pts := g.positions[s]
		write(uint32(len(pts)))
		for _, pt := range pts {
			for _, c := range pt {
				write(c)
			}
		}
	}

	var out bytes.Buffer
	out.WriteString(codecMagic)
	out.WriteByte(codecVersion)
	enc, err := zstd.NewWriter(&out)
	if err != nil {
		return nil, fmt.Errorf("geometry: create compressor: %w", err)
	}
	if _, err := enc.Write(body.Bytes()); err != nil {
		enc.Close()
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// Decode parses a geometry blob produced by Encode.
func Decode(data []byte) (*Geometry, error) {
	if len(data) < 5 || string(data[:4]) != codecMagic {
		return nil, fmt.Errorf("geometry: not a geometry blob")
	}
	if data[4] != codecVersion {
		return nil, fmt.Errorf("geometry: unsupported blob version %d", data[4])
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("geometry: create decompressor: %w", err)
	}
	defer dec.Close()

	body, err := dec.DecodeAll(data[5:], nil)
	if err != nil {
		return nil, fmt.Errorf("geometry: decompress blob: %w", err)
	}
	r := bytes.NewReader(body)
	le := binary.LittleEndian

	var nsrc uint32
	var dim uint8
	if err := binary.Read(r, le, &nsrc); err != nil {
		return nil, fmt.Errorf("geometry: truncated blob: %w", err)
	}
	if err := binary.Read(r, le, &dim); err != nil {
		return nil, fmt.Errorf("geometry: truncated blob: %w", err)
	}
	if nsrc == 0 || (dim != 2 && dim != 3) {
		return nil, fmt.Errorf("geometry: blob declares %d sources with %d axes", nsrc, dim)
	}

	positions := make([]Points, nsrc)
	t := make([]float64, nsrc)
	dt := make([]float64, nsrc)
	for s := range positions {
		var npts uint32
		if err := binary.Read(r, le, &t[s]); err != nil {
			return nil, fmt.Errorf("geometry: truncated blob: %w", err)
		}
		if err := binary.Read(r, le, &dt[s]); err != nil {
			return nil, fmt.Errorf("geometry: truncated blob: %w", err)
		}
		if err := binary.Read(r, le, &npts); err != nil {
			return nil, fmt.Errorf("geometry: truncated blob: %w", err)
		}
		if int64(npts)*int64(dim)*8 > int64(r.Len()) {
			return nil, fmt.Errorf("geometry: blob declares %d points but only %d bytes remain", npts, r.Len())
		}
		pts := make(Points, npts)
		raw := make([]byte, int(npts)*int(dim)*8)
		if _, err := r.Read(raw); err != nil {
			return nil, fmt.Errorf("geometry: truncated blob: %w", err)
		}
		for p := range pts {
			pt := make([]float64, dim)
			for a := range pt {
				pt[a] = math.Float64frombits(le.Uint64(raw[(p*int(dim)+a)*8:]))
			}
			pts[p] = pt
		}
		positions[s] = pts
	}
	return New(positions, t, dt)
}
