package tiger

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
)

// SRIDs recognized in .prj files.
const (
	SRIDNAD83 = 4269
	SRIDWGS84 = 4326
)

// SRIDFromPRJ reads a .prj file and returns its EPSG code.
func SRIDFromPRJ(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, eris.Wrapf(err, "tiger: read %s", path)
	}
	return ParsePRJ(string(data))
}

// ParsePRJ maps the WKT of a geographic coordinate system to its EPSG code.
// Only unprojected NAD83 and WGS84 are recognized.
func ParsePRJ(wkt string) (int, error) {
	norm := strings.ToUpper(strings.ReplaceAll(wkt, " ", "_"))
	switch {
	case strings.Contains(norm, "PROJCS["):
		return 0, eris.Errorf("tiger: projected coordinate system not supported: %.60s", wkt)
	case !strings.Contains(norm, "GEOGCS["):
		return 0, eris.Errorf("tiger: unrecognized .prj: %.60s", wkt)
	case strings.Contains(norm, "NORTH_AMERICAN_1983") && !strings.Contains(norm, "HARN") && !strings.Contains(norm, "2011"):
		return SRIDNAD83, nil
	case strings.Contains(norm, "WGS_1984") || strings.Contains(norm, "WGS_84"):
		return SRIDWGS84, nil
	default:
		return 0, eris.Errorf("tiger: unsupported datum in .prj: %.60s", wkt)
	}
}
