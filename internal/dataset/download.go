package dataset

import (
	"archive/zip"
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Fetch re-downloads the dataset file regardless of local state and returns
// the path to the parseable file. The in-memory collection is not refreshed;
// callers restart or Load in a new process to pick up the replacement.
func (s *Store) Fetch(ctx context.Context) (string, error) {
	if err := os.Remove(s.opts.Path); err != nil && !os.IsNotExist(err) {
		return "", eris.Wrap(err, "dataset: remove stale file")
	}
	return s.ensureFile(ctx)
}

// ensureFile makes sure the dataset file exists locally, downloading it from
// the configured URL when missing. Returns the path to the parseable file,
// extracting ZIP archives (zipped shapefiles) as needed.
func (s *Store) ensureFile(ctx context.Context) (string, error) {
	path := s.opts.Path

	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		zap.L().Debug("dataset file already present", zap.String("path", path))
		return s.maybeExtract(path)
	}

	if s.opts.URL == "" {
		return "", eris.Errorf("dataset: %s missing and no download url configured", path)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", eris.Wrap(err, "dataset: create data dir")
		}
	}

	zap.L().Info("downloading dataset", zap.String("url", s.opts.URL), zap.String("path", path))
	if err := s.downloadFile(ctx, s.opts.URL, path); err != nil {
		return "", eris.Wrap(err, "dataset: download")
	}

	return s.maybeExtract(path)
}

// downloadFile streams a URL to a local file.
func (s *Store) downloadFile(ctx context.Context, url, dest string) error {
	client := &http.Client{Timeout: s.opts.DownloadTimeout}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return eris.Wrap(err, "build request")
	}

	resp, err := client.Do(req)
	if err != nil {
		return eris.Wrap(err, "download")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return eris.Errorf("download returned status %d", resp.StatusCode)
	}

	f, err := os.Create(dest)
	if err != nil {
		return eris.Wrap(err, "create file")
	}
	defer f.Close() //nolint:errcheck

	if _, err := io.Copy(f, resp.Body); err != nil {
		return eris.Wrap(err, "write file")
	}

	return nil
}

// maybeExtract handles ZIP-packaged datasets: the archive is extracted next
// to itself and the contained .shp file is returned. Non-archives pass
// through unchanged.
func (s *Store) maybeExtract(path string) (string, error) {
	if !strings.EqualFold(filepath.Ext(path), ".zip") {
		return path, nil
	}

	extractDir := strings.TrimSuffix(path, filepath.Ext(path))
	if err := os.MkdirAll(extractDir, 0o755); err != nil {
		return "", eris.Wrap(err, "dataset: create extract dir")
	}

	if err := extractZIP(path, extractDir); err != nil {
		return "", eris.Wrap(err, "dataset: extract ZIP")
	}

	shpPath, err := findFileByExt(extractDir, ".shp")
	if err != nil {
		return "", eris.Wrap(err, "dataset: find .shp file")
	}
	return shpPath, nil
}

// extractZIP extracts a ZIP archive to the destination directory, flattening
// any directory structure.
func extractZIP(zipPath, destDir string) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return eris.Wrap(err, "open zip")
	}
	defer r.Close() //nolint:errcheck

	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		destPath := filepath.Join(destDir, filepath.Base(f.Name))

		rc, err := f.Open()
		if err != nil {
			return eris.Wrapf(err, "open zip entry %s", f.Name)
		}

		outFile, err := os.Create(destPath)
		if err != nil {
			_ = rc.Close()
			return eris.Wrapf(err, "create %s", destPath)
		}

		if _, err := io.Copy(outFile, rc); err != nil {
			_ = outFile.Close()
			_ = rc.Close()
			return eris.Wrapf(err, "extract %s", f.Name)
		}
		_ = outFile.Close()
		_ = rc.Close()
	}

	return nil
}

// findFileByExt finds the first file with the given extension in a directory.
func findFileByExt(dir, ext string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", eris.Wrap(err, "read directory")
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), ext) {
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return "", eris.Errorf("no %s file found in %s", ext, dir)
}
