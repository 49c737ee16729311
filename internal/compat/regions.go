package compat

import "strings"

// Region is a coarse grouping of localities
type Region string

const (
	RegionNorth     Region = "north"
	RegionNorthEast Region = "north-east"
	RegionEast      Region = "east"
	RegionWest      Region = "west"
	RegionCentral   Region = "central"
)

var regionLocalities = map[Region][]string{
	RegionNorth: {
		"woodlands", "sembawang", "yishun", "admiralty", "marsiling", "kranji", "mandai",
		"sungei kadut", "lim chu kang", "canberra",
	},
	RegionNorthEast: {
		"ang mo kio", "hougang", "punggol", "sengkang", "serangoon", "seletar", "buangkok",
		"kovan", "lorong chuan",
	},
	RegionEast: {
		"bedok", "changi", "pasir ris", "tampines", "paya lebar", "simei", "tanah merah",
		"loyang", "eunos", "kembangan", "siglap",
	},
	RegionWest: {
		"bukit batok", "bukit panjang", "choa chu kang", "clementi", "jurong east",
		"jurong west", "boon lay", "pioneer", "tengah", "tuas", "west coast", "lakeside",
	},
	RegionCentral: {
		"bishan", "bukit merah", "bukit timah", "geylang", "kallang", "marine parade", "novena",
		"orchard", "outram", "queenstown", "tanglin", "toa payoh", "downtown", "river valley",
		"newton", "tiong bahru", "holland village",
	},
}

var localityRegion = func() map[string]Region {
	m := make(map[string]Region)
	for region, names := range regionLocalities {
		for _, n := range names {
			m[n] = region
		}
	}
	return m
}()

// RegionOf resolves a locality name to its region
func RegionOf(location string) (Region, bool) {
	r, ok := localityRegion[strings.ToLower(strings.TrimSpace(location))]
	return r, ok
}
