package census

import (
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/pollsite-census/internal/tiger"
)

// JoinPopulation attaches population estimates to tract polygons by GEOID.
// Every polygon needs exactly one population row and vice versa.
func JoinPopulation(shapes []tiger.TractShape, pop []PopulationRow) ([]Tract, error) {
	byID := make(map[string]PopulationRow, len(pop))
	for _, p := range pop {
		if _, dup := byID[p.GEOID]; dup {
			return nil, eris.Errorf("census: duplicate population row for tract %s", p.GEOID)
		}
		byID[p.GEOID] = p
	}

	seen := make(map[string]bool, len(shapes))
	var noPop []string
	tracts := make([]Tract, 0, len(shapes))
	for _, s := range shapes {
		if seen[s.GEOID] {
			return nil, eris.Errorf("census: duplicate tract polygon %s", s.GEOID)
		}
		seen[s.GEOID] = true

		p, ok := byID[s.GEOID]
		if !ok {
			noPop = append(noPop, s.GEOID)
			continue
		}
		name := p.Name
		if name == "" {
			name = s.NameLSAD
		}
		tracts = append(tracts, Tract{
			GEOID:      s.GEOID,
			CountyFIPS: s.CountyFP,
			Name:       name,
			Population: p.Population,
			Geometry:   s.Geometry,
		})
	}

	var noShape []string
	for id := range byID {
		if !seen[id] {
			noShape = append(noShape, id)
		}
	}

	if len(noPop) > 0 || len(noShape) > 0 {
		sort.Strings(noShape)
		return nil, eris.Errorf("census: tract polygons and population disagree: %d without population [%s], %d without polygon [%s]",
			len(noPop), abbreviate(noPop), len(noShape), abbreviate(noShape))
	}

	sort.Slice(tracts, func(i, j int) bool { return tracts[i].GEOID < tracts[j].GEOID })
	return tracts, nil
}

func abbreviate(ids []string) string {
	const limit = 10
	if len(ids) > limit {
		return strings.Join(ids[:limit], " ") + " ..."
	}
	return strings.Join(ids, " ")
}
