// Package zarr reads and writes datasets as directory-based Zarr v2
// stores: one subdirectory per variable holding a .zarray descriptor,
// per-chunk binary files, and xarray-style _ARRAY_DIMENSIONS attributes.
package zarr

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

const (
	zarrFormat   = 2
	groupFile    = ".zgroup"
	arrayFile    = ".zarray"
	attrsFile    = ".zattrs"
	dimsAttrName = "_ARRAY_DIMENSIONS"
)

// ArrayMeta is the persisted .zarray descriptor of one variable.
type ArrayMeta struct {
	Shape      []int           `json:"shape"`
	Chunks     []int           `json:"chunks"`
	Dtype      string          `json:"dtype"`
	Compressor *CompressorMeta `json:"compressor"`
	FillValue  any             `json:"fill_value"`
	Order      string          `json:"order"`
	ZarrFormat int             `json:"zarr_format"`
}

// CompressorMeta identifies the chunk codec. Only zstd is produced, but
// nil (uncompressed) stores read fine too.
type CompressorMeta struct {
	ID    string `json:"id"`
	Level int    `json:"level,omitempty"`
}

// fill returns the numeric fill value, NaN when absent or declared "NaN".
func (m *ArrayMeta) fill() float64 {
	switch v := m.FillValue.(type) {
	case float64:
		return v
	case string:
		// JSON cannot hold NaN; zarr writes it as a string.
		return math.NaN()
	default:
		return math.NaN()
	}
}

func (m *ArrayMeta) validate() error {
	if m.ZarrFormat != zarrFormat {
		return fmt.Errorf("zarr: unsupported format %d", m.ZarrFormat)
	}
	if len(m.Chunks) != len(m.Shape) {
		return fmt.Errorf("zarr: chunk layout %v does not match shape %v", m.Chunks, m.Shape)
	}
	for i, c := range m.Chunks {
		if c <= 0 || m.Shape[i] <= 0 {
			return fmt.Errorf("zarr: invalid shape %v / chunks %v", m.Shape, m.Chunks)
		}
	}
	if m.Order != "" && m.Order != "C" {
		return fmt.Errorf("zarr: only C order is supported, got %q", m.Order)
	}
	if m.Compressor != nil && m.Compressor.ID != "zstd" {
		return fmt.Errorf("zarr: unsupported compressor %q", m.Compressor.ID)
	}
	if _, err := parseDtype(m.Dtype); err != nil {
		return err
	}
	return nil
}

// dtypeInfo describes a parsed NumPy typestr such as "<f8" or "|u1".
type dtypeInfo struct {
	kind byte // f, i, u
	size int
}

// parseDtype parses a NumPy typestr. Multi-byte types must be
// little-endian; big-endian stores are rejected rather than silently
// misread.
func parseDtype(s string) (dtypeInfo, error) {
	if len(s) != 3 {
		return dtypeInfo{}, fmt.Errorf("zarr: invalid dtype %q", s)
	}
	order, kind := s[0], s[1]
	size := int(s[2] - '0')
	switch kind {
	case 'f':
		if size != 4 && size != 8 {
			return dtypeInfo{}, fmt.Errorf("zarr: unsupported float size in %q", s)
		}
	case 'i', 'u':
		if size != 1 && size != 2 && size != 4 && size != 8 {
			return dtypeInfo{}, fmt.Errorf("zarr: unsupported int size in %q", s)
		}
	default:
		return dtypeInfo{}, fmt.Errorf("zarr: unsupported dtype kind %q", s)
	}
	switch order {
	case '<':
	case '|':
		if size != 1 {
			return dtypeInfo{}, fmt.Errorf("zarr: dtype %q needs a byte order", s)
		}
	default:
		return dtypeInfo{}, fmt.Errorf("zarr: unsupported byte order in %q", s)
	}
	return dtypeInfo{kind: kind, size: size}, nil
}

// dtypeFor maps the in-memory element type names used by variables onto
// NumPy typestrs. Unknown or empty names store as float64.
func dtypeFor(name string) string {
	switch name {
	case "float32":
		return "<f4"
	case "int8":
		return "|i1"
	case "int16":
		return "<i2"
	case "int32":
		return "<i4"
	case "int64":
		return "<i8"
	case "uint8":
		return "|u1"
	case "uint16":
		return "<u2"
	case "uint32":
		return "<u4"
	default:
		return "<f8"
	}
}

// typeNameFor is the inverse of dtypeFor, for round-tripping Dtype.
func typeNameFor(typestr string) string {
	switch typestr {
	case "<f4":
		return "float32"
	case "|i1":
		return "int8"
	case "<i2":
		return "int16"
	case "<i4":
		return "int32"
	case "<i8":
		return "int64"
	case "|u1":
		return "uint8"
	case "<u2":
		return "uint16"
	case "<u4":
		return "uint32"
	default:
		return "float64"
	}
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("zarr: parsing %s: %w", filepath.Base(path), err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// chunkFileName joins chunk grid indices with dots, the zarr v2 layout:
// "0.0", "2.1.0", ... Scalars store their single chunk as "0".
func chunkFileName(idx []int) string {
	if len(idx) == 0 {
		return "0"
	}
	name := ""
	for k, i := range idx {
		if k > 0 {
			name += "."
		}
		name += fmt.Sprintf("%d", i)
	}
	return name
}
