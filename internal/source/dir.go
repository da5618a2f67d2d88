package source

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Dir loads districts from files under Root. A district named "Central
// Delhi" is looked up as central_delhi.json (a saved payload with grids and
// police stations), then central_delhi.geojson, then central_delhi.shp.
type Dir struct {
	Root string
	POIs POILoader
}

// NewDir returns a file loader rooted at root.
func NewDir(root string) *Dir {
	return &Dir{Root: root}
}

// WithPOILoader sets the loader used for districts whose files carry no
// POIs of their own.
func (d *Dir) WithPOILoader(l POILoader) *Dir {
	d.POIs = l
	return d
}

// FileBase maps a district name to its file base name.
func FileBase(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), "_")
}

// LoadDistrict implements Loader.
func (d *Dir) LoadDistrict(ctx context.Context, name string) (*District, error) {
	base := FileBase(name)
	if base == "" {
		return nil, eris.New("source: district name is required")
	}
	path := filepath.Join(d.Root, base)

	var file string
	for _, ext := range fileExts {
		if exists(path + ext) {
			file = path + ext
			break
		}
	}
	if file == "" {
		return nil, eris.Errorf("source: no grid file for %q under %s", name, d.Root)
	}

	out, err := LoadFile(file, name)
	if err != nil {
		return nil, err
	}

	if len(out.POIs) == 0 && d.POIs != nil {
		if b, ok := Bounds(out.Cells); ok {
			pois, err := d.POIs.LoadPOIs(ctx, b)
			if err != nil {
				return nil, eris.Wrap(err, "source: load POIs")
			}
			out.POIs = pois
		}
	}

	zap.L().Info("source: loaded district from files",
		zap.String("district", name),
		zap.String("file", file),
		zap.Int("cells", len(out.Cells)),
		zap.Int("pois", len(out.POIs)),
	)
	return out, nil
}

// Extensions LoadDistrict tries, in order.
var fileExts = []string{".json", ".geojson", ".shp"}

// LoadFile reads one district file, choosing the decoder by extension:
// .json is a saved payload, .geojson a FeatureCollection of cells and
// .shp a polygon shapefile.
func LoadFile(path, name string) (*District, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".shp" {
		cells, err := LoadShapefile(path)
		if err != nil {
			return nil, err
		}
		return &District{Name: name, Cells: cells}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "source: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	switch ext {
	case ".json":
		return DecodeDistrict(f, name)
	case ".geojson":
		cells, err := LoadGeoJSON(f)
		if err != nil {
			return nil, err
		}
		return &District{Name: name, Cells: cells}, nil
	default:
		return nil, eris.Errorf("source: unsupported file type %q", ext)
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil || !errors.Is(err, fs.ErrNotExist)
}
