package tiger

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pollsite-census/internal/fetcher"
)

// Files locates the parts of an extracted shapefile that are read.
type Files struct {
	Shp string
	Prj string
}

// LocalFiles returns the Files for a shapefile already on disk. The .prj is
// expected next to the .shp with the same base name.
func LocalFiles(shpPath string) (Files, error) {
	if !strings.EqualFold(filepath.Ext(shpPath), ".shp") {
		return Files{}, eris.Errorf("tiger: %s is not a .shp file", shpPath)
	}
	base := strings.TrimSuffix(shpPath, filepath.Ext(shpPath))
	for _, ext := range []string{".prj", ".PRJ"} {
		if _, err := os.Stat(base + ext); err == nil {
			return Files{Shp: shpPath, Prj: base + ext}, nil
		}
	}
	return Files{}, eris.Errorf("tiger: no .prj next to %s", shpPath)
}

// Download fetches a TIGER/Line ZIP archive into destDir and extracts the
// shapefile from it. An archive already in destDir is reused: downloads are
// atomic, so a file at that path is always complete.
func Download(ctx context.Context, f fetcher.Fetcher, url, destDir string) (Files, error) {
	zipName := path.Base(url)
	if !strings.HasSuffix(strings.ToLower(zipName), ".zip") {
		return Files{}, eris.Errorf("tiger: %s does not name a .zip archive", url)
	}
	zipPath := filepath.Join(destDir, zipName)
	log := zap.L().With(zap.String("component", "tiger"), zap.String("archive", zipName))

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return Files{}, eris.Wrap(err, "tiger: create dest dir")
	}
	switch _, err := os.Stat(zipPath); {
	case err == nil:
		log.Debug("reusing downloaded archive", zap.String("path", zipPath))
	case os.IsNotExist(err):
		n, err := f.DownloadToFile(ctx, url, zipPath)
		if err != nil {
			return Files{}, eris.Wrap(err, "tiger: download shapefile")
		}
		log.Info("downloaded tract shapefile", zap.Int64("bytes", n))
	default:
		return Files{}, eris.Wrapf(err, "tiger: stat %s", zipPath)
	}

	// The reader needs the index and attribute table beside the geometry.
	files, err := fetcher.ExtractByExt(zipPath, filepath.Join(destDir, strings.TrimSuffix(zipName, path.Ext(zipName))),
		".shp", ".shx", ".dbf", ".prj")
	if err != nil {
		return Files{}, eris.Wrap(err, "tiger: extract shapefile")
	}
	return Files{Shp: files[".shp"], Prj: files[".prj"]}, nil
}
