package source

import (
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/riskgrid/internal/model"
)

// LoadShapefile reads grid cells from a polygon shapefile. DBF numeric
// fields become numbers, empty fields become null. Records without a gid
// or id field are keyed by their 1-based record number.
func LoadShapefile(shpPath string) ([]model.GridCell, error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "source: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = strings.ToLower(strings.TrimRight(f.String(), "\x00"))
	}

	var cells []model.GridCell
	var skipped int
	for reader.Next() {
		n, shape := reader.Shape()

		attrs := make(map[string]any, len(fields)+1)
		for i, f := range fields {
			val := strings.TrimSpace(strings.TrimRight(reader.Attribute(i), "\x00"))
			attrs[names[i]] = fieldValue(f.Fieldtype, val)
		}
		if model.IdentifierOf(attrs) == "" {
			attrs[model.KeyGID] = strconv.Itoa(n + 1)
		}

		g := shapeGeometry(shape)
		if g == nil {
			skipped++
		}
		cells = append(cells, model.NewGridCell(attrs, g))
	}

	if skipped > 0 {
		zap.L().Debug("source: shapefile records without polygon geometry",
			zap.String("path", shpPath),
			zap.Int("skipped", skipped),
		)
	}
	return cells, nil
}

func fieldValue(fieldType byte, val string) any {
	if val == "" {
		return nil
	}
	switch fieldType {
	case 'N', 'F':
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return val
}

// shapeGeometry converts polygon shapes; every part becomes one polygon of
// a multi-polygon so the first part is the first ring of the first polygon.
func shapeGeometry(shape shp.Shape) geom.T {
	p, ok := shape.(*shp.Polygon)
	if !ok || p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY).SetSRID(4326)
	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}

		flat := make([]float64, 0, (end-start)*2)
		for j := start; j < end; j++ {
			flat = append(flat, p.Points[j].X, p.Points[j].Y)
		}

		poly := geom.NewPolygon(geom.XY)
		if err := poly.Push(geom.NewLinearRingFlat(geom.XY, flat)); err != nil {
			zap.L().Debug("source: skipping malformed ring", zap.Int32("part", i), zap.Error(err))
			continue
		}
		if err := mp.Push(poly); err != nil {
			zap.L().Debug("source: skipping malformed polygon", zap.Int32("part", i), zap.Error(err))
			continue
		}
	}

	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}
