// Package resource manages files that back offline optimization datasets:
// each Handle describes one remote-backed file, knows where it lives on
// disk, and can fetch-and-cache itself on demand. The remote backend is
// hidden behind the Channel interface so loaders never touch transport
// details directly.
package resource

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// RepoEnvVar names the environment variable that selects the default
// remote repository identifier for keyed fetches.
const RepoEnvVar = "DESIGNBENCH_DATA"

// DefaultRepo is used when RepoEnvVar is not set.
const DefaultRepo = "designbench/designbench-data"

var dataDir = func() string {
	abs, err := filepath.Abs("designbench_data")
	if err != nil {
		return "designbench_data"
	}
	return abs
}()

// DataDir returns the local folder that stores all downloaded resource
// files.
func DataDir() string { return dataDir }

// SetDataDir changes the local data folder. The path is made absolute.
func SetDataDir(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolve data dir %q: %w", dir, err)
	}
	dataDir = abs
	return nil
}

// DataPath resolves a path relative to the data folder into an absolute
// location on disk.
func DataPath(rel string) string {
	return filepath.Join(dataDir, rel)
}

// Repo returns the remote repository identifier, taking RepoEnvVar into
// account.
func Repo() string {
	if v := os.Getenv(RepoEnvVar); v != "" {
		return v
	}
	return DefaultRepo
}

// Method selects how a Handle contacts the remote backend.
type Method int

const (
	// MethodDirect downloads the locator as a plain URL.
	MethodDirect Method = iota
	// MethodKeyed resolves the locator through a repository-mediated
	// backend; the backend decides the final storage location.
	MethodKeyed
)

func (m Method) String() string {
	switch m {
	case MethodDirect:
		return "direct"
	case MethodKeyed:
		return "keyed"
	}
	return fmt.Sprintf("Method(%d)", int(m))
}

// Handle describes one remote-backed file.
//
// LocalPath is always absolute and normalized. Presence on disk is
// determined solely by the filesystem at call time; it is never cached.
type Handle struct {
	// LocalPath is the absolute location where the file is (or will be)
	// stored. A successful keyed fetch may rewrite it to the
	// backend-resolved location.
	LocalPath string

	// Locator is the URL or backend file id the file is fetched from.
	Locator string

	// Method selects the fetch mechanism.
	Method Method

	channel Channel
}

// NewHandle builds a Handle for target. A relative target is resolved
// against DataDir().
func NewHandle(target, locator string, method Method) *Handle {
	if !filepath.IsAbs(target) {
		target = DataPath(target)
	}
	return &Handle{
		LocalPath: filepath.Clean(target),
		Locator:   locator,
		Method:    method,
	}
}

// WithChannel overrides the channel used for fetching. Mostly useful for
// tests and alternative backends.
func (h *Handle) WithChannel(c Channel) *Handle {
	h.channel = c
	return h
}

// Exists reports whether the file is present at LocalPath. The check is
// re-evaluated on every call.
func (h *Handle) Exists() bool {
	_, err := os.Stat(h.LocalPath)
	return err == nil
}

// Fetch downloads the file if it is not already present.
//
// A transport failure is not fatal: it is logged as a warning and Fetch
// returns false, leaving the caller to decide how to proceed. Archive
// expansion failures are fatal and returned as an error. On success for
// keyed fetches, LocalPath is rewritten to the resolved location.
func (h *Handle) Fetch(expandArchives bool) (bool, error) {
	if h.Exists() {
		return true, nil
	}

	locator := strings.TrimPrefix(h.Locator, "/")
	resolved, err := h.resolveChannel().Fetch(locator, h.LocalPath)
	if err != nil {
		log.Warn().
			Err(err).
			Str("locator", h.Locator).
			Str("method", h.Method.String()).
			Msg("unable to download resource")
		return false, nil
	}
	if resolved != "" {
		h.LocalPath = resolved
	}

	if expandArchives && strings.HasSuffix(h.LocalPath, ".zip") {
		if err := expandZip(h.LocalPath); err != nil {
			return true, fmt.Errorf("expand %s: %w", h.LocalPath, err)
		}
	}
	return true, nil
}

func (h *Handle) resolveChannel() Channel {
	if h.channel != nil {
		return h.channel
	}
	switch h.Method {
	case MethodKeyed:
		return &KeyedChannel{Repo: Repo()}
	default:
		return &DirectChannel{}
	}
}

// expandZip extracts every entry of the archive at path into the
// archive's containing directory.
func expandZip(path string) error {
	r, err := zip.OpenReader(path)
	if err != nil {
		return err
	}
	defer r.Close()

	dir := filepath.Dir(path)
	for _, f := range r.File {
		dst := filepath.Join(dir, filepath.Clean(f.Name))
		if !strings.HasPrefix(dst, dir+string(os.PathSeparator)) && dst != dir {
			return fmt.Errorf("archive entry %q escapes %s", f.Name, dir)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(dst, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return err
		}
		if err := extractZipFile(f, dst); err != nil {
			return fmt.Errorf("extract %s: %w", f.Name, err)
		}
	}
	return nil
}

func extractZipFile(f *zip.File, dst string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, rc)
	return err
}
