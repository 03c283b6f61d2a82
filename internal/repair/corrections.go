package repair

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Corrections maps an address the geocoder could not resolve to a hand
// corrected replacement. Keys match case-insensitively with runs of
// whitespace collapsed.
type Corrections map[string]string

type correctionsFile struct {
	Corrections map[string]string `yaml:"corrections"`
}

// LoadCorrections reads a YAML corrections table:
//
//	corrections:
//	  "66 Buttrick Ave, Bronx, NY 10465": "66 Buttrick Avenue, Bronx, NY 10465"
//
// An empty path or a missing file yields an empty table.
func LoadCorrections(path string) (Corrections, error) {
	if path == "" {
		return Corrections{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			zap.L().Debug("repair: no corrections file", zap.String("path", path))
			return Corrections{}, nil
		}
		return nil, eris.Wrapf(err, "repair: read corrections %s", path)
	}
	return ParseCorrections(data)
}

// ParseCorrections decodes a YAML corrections table.
func ParseCorrections(data []byte) (Corrections, error) {
	var f correctionsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "repair: parse corrections")
	}
	c := make(Corrections, len(f.Corrections))
	for bad, fixed := range f.Corrections {
		if strings.TrimSpace(fixed) == "" {
			return nil, eris.Errorf("repair: empty correction for %q", bad)
		}
		k := correctionKey(bad)
		if _, dup := c[k]; dup {
			return nil, eris.Errorf("repair: duplicate correction for %q", bad)
		}
		c[k] = strings.TrimSpace(fixed)
	}
	return c, nil
}

// Lookup returns the corrected address for addr, if any.
func (c Corrections) Lookup(addr string) (string, bool) {
	fixed, ok := c[correctionKey(addr)]
	return fixed, ok
}

func correctionKey(addr string) string {
	return strings.ToLower(strings.Join(strings.Fields(addr), " "))
}
