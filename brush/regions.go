package brush

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// defaultRegions are the template rectangles of the stock 1500x2048 brush
// sheet: seventeen large bristle strokes in four rows followed by thirteen
// small dabs in a column on the right.
var defaultRegions = []Region{
	{Left: 23, Top: 40, Right: 249, Bottom: 417},
	{Left: 278, Top: 30, Right: 469, Bottom: 513},
	{Left: 487, Top: 52, Right: 717, Bottom: 421},
	{Left: 730, Top: 49, Right: 884, Bottom: 463},
	{Left: 908, Top: 75, Right: 1044, Bottom: 436},
	{Left: 16, Top: 539, Right: 497, Bottom: 808},
	{Left: 537, Top: 512, Right: 1033, Bottom: 822},
	{Left: 21, Top: 860, Right: 143, Bottom: 1540},
	{Left: 201, Top: 884, Right: 396, Bottom: 1543},
	{Left: 422, Top: 919, Right: 619, Bottom: 1502},
	{Left: 681, Top: 1055, Right: 827, Bottom: 1359},
	{Left: 857, Top: 1031, Right: 996, Bottom: 1441},
	{Left: 19, Top: 1609, Right: 120, Bottom: 1938},
	{Left: 151, Top: 1591, Right: 263, Bottom: 1951},
	{Left: 286, Top: 1529, Right: 463, Bottom: 2035},
	{Left: 512, Top: 1604, Right: 625, Bottom: 1949},
	{Left: 639, Top: 1595, Right: 934, Bottom: 1959},
	{Left: 1241, Top: 21, Right: 1463, Bottom: 70},
	{Left: 1290, Top: 88, Right: 1398, Bottom: 128},
	{Left: 1261, Top: 141, Right: 1393, Bottom: 192},
	{Left: 1249, Top: 216, Right: 1414, Bottom: 250},
	{Left: 1255, Top: 275, Right: 1439, Bottom: 303},
	{Left: 1251, Top: 338, Right: 1432, Bottom: 392},
	{Left: 1257, Top: 410, Right: 1399, Bottom: 449},
	{Left: 1258, Top: 480, Right: 1415, Bottom: 521},
	{Left: 1268, Top: 531, Right: 1293, Bottom: 560},
	{Left: 1298, Top: 530, Right: 1327, Bottom: 559},
	{Left: 1335, Top: 527, Right: 1386, Bottom: 561},
	{Left: 1285, Top: 570, Right: 1377, Bottom: 605},
	{Left: 1270, Top: 616, Right: 1414, Bottom: 653},
}

// DefaultRegions returns the regions of the stock brush sheet.
func DefaultRegions() []Region {
	return append([]Region(nil), defaultRegions...)
}

// LoadRegions reads a YAML list of regions:
//
//	- {left: 23, top: 40, right: 249, bottom: 417}
//	- {left: 278, top: 30, right: 469, bottom: 513}
func LoadRegions(r io.Reader) ([]Region, error) {
	var regions []Region
	if err := yaml.NewDecoder(r).Decode(&regions); err != nil {
		return nil, fmt.Errorf("brush: decode regions: %w", err)
	}
	if len(regions) == 0 {
		return nil, fmt.Errorf("brush: no regions")
	}
	return regions, nil
}
