package resolver

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rtrevinnoc/siliconcompiler/pkg/errors"
)

// HTTPResolver downloads a file over http(s) into the download cache.
// Archives (.tar.gz, .tgz, .zip) are extracted, and a lone top-level
// directory inside an archive is flattened away.
type HTTPResolver struct {
	*Remote
	client      *http.Client
	header      http.Header
	downloadURL func(ctx context.Context) (string, error)
}

// NewHTTP builds a resolver for http:// and https:// sources.
func NewHTTP(name string, root Root, source, reference string) (*HTTPResolver, error) {
	remote, err := NewRemote(name, root, source, reference)
	if err != nil {
		return nil, err
	}
	r := &HTTPResolver{
		Remote: remote,
		client: &http.Client{},
	}
	r.downloadURL = r.sourceDownloadURL
	remote.bind(r)
	return r, nil
}

func (r *HTTPResolver) sourceDownloadURL(_ context.Context) (string, error) {
	parsed, err := r.sourceURL()
	if err != nil {
		return "", err
	}
	return parsed.String(), nil
}

// SetHeader adds a header to the download request.
func (r *HTTPResolver) SetHeader(key, value string) {
	if r.header == nil {
		r.header = http.Header{}
	}
	r.header.Set(key, value)
}

// CheckCache reports whether the cache entry already exists.
func (r *HTTPResolver) CheckCache() (bool, error) {
	_, err := os.Stat(r.CachePath())
	return err == nil, nil
}

// ResolveRemote downloads the source into the cache path, extracting
// archives in place.
func (r *HTTPResolver) ResolveRemote(ctx context.Context) error {
	target, err := r.downloadURL(ctx)
	if err != nil {
		return err
	}

	r.log.Infof("Downloading %s data from %s", r.name, target)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	for key, values := range r.header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return errors.NewResolveError(r.name,
			fmt.Sprintf("unable to download '%s'", target), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.NewResolveError(r.name,
			fmt.Sprintf("unable to download '%s': %s", target, resp.Status), nil)
	}

	if err := os.MkdirAll(r.CachePath(), 0o755); err != nil {
		return err
	}

	fileName := path.Base(resp.Request.URL.Path)
	switch {
	case strings.HasSuffix(fileName, ".tar.gz"), strings.HasSuffix(fileName, ".tgz"):
		err = extractTarGz(resp.Body, r.CachePath())
	case strings.HasSuffix(fileName, ".zip"):
		err = extractZip(resp.Body, r.CachePath())
	default:
		err = saveFile(resp.Body, filepath.Join(r.CachePath(), fileName))
	}
	if err != nil {
		// A failed unpack must not look like a valid cache entry.
		os.RemoveAll(r.CachePath())
		return errors.NewResolveError(r.name,
			fmt.Sprintf("unable to unpack '%s'", fileName), err)
	}

	return flattenSingleDir(r.CachePath())
}

// securePath joins an archive entry name onto dir, rejecting names
// that escape it.
func securePath(dir, name string) (string, error) {
	target := filepath.Join(dir, filepath.FromSlash(name))
	if target != dir && !strings.HasPrefix(target, dir+string(os.PathSeparator)) {
		return "", fmt.Errorf("archive entry '%s' escapes the extraction directory", name)
	}
	return target, nil
}

func extractTarGz(r io.Reader, dir string) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return err
	}
	defer gz.Close()

	archive := tar.NewReader(gz)
	for {
		header, err := archive.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		target, err := securePath(dir, header.Name)
		if err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			perm := os.FileMode(header.Mode) & 0o777
			if perm == 0 {
				perm = 0o644
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, archive); err != nil {
				out.Close()
				return err
			}
			if err := out.Close(); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			if err := os.Symlink(header.Linkname, target); err != nil {
				return err
			}
		}
	}
}

func extractZip(r io.Reader, dir string) error {
	tmp, err := os.CreateTemp("", "sc-download-*.zip")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	size, err := io.Copy(tmp, r)
	if err != nil {
		return err
	}
	archive, err := zip.NewReader(tmp, size)
	if err != nil {
		return err
	}

	for _, file := range archive.File {
		target, err := securePath(dir, file.Name)
		if err != nil {
			return err
		}
		if file.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}

		in, err := file.Open()
		if err != nil {
			return err
		}
		perm := file.Mode().Perm()
		if perm == 0 {
			perm = 0o644
		}
		out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
		if err != nil {
			in.Close()
			return err
		}
		_, err = io.Copy(out, in)
		in.Close()
		if closeErr := out.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func saveFile(r io.Reader, path string) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// flattenSingleDir lifts the contents of a lone top-level directory,
// the usual layout of release archives, up into dir.
func flattenSingleDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	if len(entries) != 1 || !entries[0].IsDir() {
		return nil
	}

	nested := filepath.Join(dir, entries[0].Name())
	children, err := os.ReadDir(nested)
	if err != nil {
		return err
	}
	for _, child := range children {
		if _, err := os.Stat(filepath.Join(dir, child.Name())); err == nil {
			return nil
		}
	}
	for _, child := range children {
		source := filepath.Join(nested, child.Name())
		if err := os.Rename(source, filepath.Join(dir, child.Name())); err != nil {
			return err
		}
	}
	return os.Remove(nested)
}
