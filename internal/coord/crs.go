package coord

import (
	"fmt"
	"strconv"
	"strings"
)

// CRS identifies a coordinate reference system. Grid mappings carry a CRS
// for bookkeeping and encoding; the resampling core never reprojects
// between systems, it only needs identity and the geographic flag.
type CRS struct {
	// Code is the EPSG code, or 0 if unknown.
	Code int
	// Name is a human-readable label, e.g. "WGS 84".
	Name string
	// Geographic is true for longitude/latitude systems (degrees).
	Geographic bool
}

// WGS84 is the geographic default assumed when a dataset carries no
// explicit CRS metadata.
var WGS84 = CRS{Code: 4326, Name: "WGS 84", Geographic: true}

// WebMercator is the spherical mercator system used by web map tiles.
var WebMercator = CRS{Code: 3857, Name: "WGS 84 / Pseudo-Mercator"}

// ParseCRS interprets a CRS identifier string. Accepted forms are
// "EPSG:<code>" (any case), a bare numeric EPSG code, a WKT string
// (sniffed by its leading keyword), or a PROJ string ("+proj=...").
func ParseCRS(s string) (CRS, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return CRS{}, fmt.Errorf("empty CRS identifier")
	}

	if code, ok := epsgCode(s); ok {
		return crsForEPSG(code), nil
	}

	upper := strings.ToUpper(s)
	switch {
	case strings.HasPrefix(upper, "GEOGCS") || strings.HasPrefix(upper, "GEOGCRS"):
		return CRS{Name: wktName(s), Geographic: true}, nil
	case strings.HasPrefix(upper, "PROJCS") || strings.HasPrefix(upper, "PROJCRS"):
		crs := CRS{Name: wktName(s)}
		if code, ok := wktEPSG(s); ok {
			return crsForEPSG(code), nil
		}
		return crs, nil
	case strings.HasPrefix(s, "+proj="):
		proj := s[len("+proj="):]
		if i := strings.IndexByte(proj, ' '); i >= 0 {
			proj = proj[:i]
		}
		return CRS{Name: "+proj=" + proj, Geographic: proj == "longlat" || proj == "latlong"}, nil
	}

	return CRS{}, fmt.Errorf("unrecognized CRS identifier %q", s)
}

func epsgCode(s string) (int, bool) {
	upper := strings.ToUpper(s)
	if strings.HasPrefix(upper, "EPSG:") {
		s = s[len("EPSG:"):]
	}
	code, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || code <= 0 {
		return 0, false
	}
	return code, true
}

func crsForEPSG(code int) CRS {
	switch code {
	case 4326:
		return WGS84
	case 3857:
		return WebMercator
	case 4258:
		return CRS{Code: 4258, Name: "ETRS89", Geographic: true}
	default:
		// Codes in the 4000-4999 block are geographic in the EPSG registry.
		return CRS{Code: code, Name: fmt.Sprintf("EPSG:%d", code), Geographic: code >= 4000 && code < 5000}
	}
}

// wktName extracts the quoted name following the first WKT keyword.
func wktName(s string) string {
	i := strings.IndexByte(s, '"')
	if i < 0 {
		return ""
	}
	j := strings.IndexByte(s[i+1:], '"')
	if j < 0 {
		return ""
	}
	return s[i+1 : i+1+j]
}

// wktEPSG extracts the EPSG code from the last AUTHORITY clause, if any.
func wktEPSG(s string) (int, bool) {
	idx := strings.LastIndex(strings.ToUpper(s), `AUTHORITY["EPSG"`)
	if idx < 0 {
		return 0, false
	}
	rest := s[idx:]
	start := strings.IndexByte(rest, ',')
	if start < 0 {
		return 0, false
	}
	rest = rest[start+1:]
	end := strings.IndexByte(rest, ']')
	if end < 0 {
		return 0, false
	}
	code, err := strconv.Atoi(strings.Trim(rest[:end], `" `))
	if err != nil {
		return 0, false
	}
	return code, true
}

// String returns the canonical identifier, preferring the EPSG form.
func (c CRS) String() string {
	if c.Code != 0 {
		return fmt.Sprintf("EPSG:%d", c.Code)
	}
	if c.Name != "" {
		return c.Name
	}
	return "unknown"
}

// Equal reports whether two CRS identify the same system. Systems with
// EPSG codes compare by code; otherwise by name.
func (c CRS) Equal(other CRS) bool {
	if c.Code != 0 || other.Code != 0 {
		return c.Code == other.Code
	}
	return c.Name == other.Name
}
