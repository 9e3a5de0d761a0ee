package resource

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// Channel fetches one remote file to a local destination. It returns the
// path the file actually ended up at, which may differ from dest for
// backend-mediated channels. The caching and loading layers depend only
// on this interface, never on a specific backend.
type Channel interface {
	Fetch(locator, dest string) (resolved string, err error)
}

// DirectChannel downloads a locator as a plain URL via HTTP GET.
type DirectChannel struct {
	// Client defaults to http.DefaultClient when nil.
	Client *http.Client
}

func (c *DirectChannel) Fetch(locator, dest string) (string, error) {
	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Get(locator)
	if err != nil {
		return "", fmt.Errorf("get %s: %w", locator, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("get %s: unexpected status %s", locator, resp.Status)
	}
	if err := writeBody(dest, resp.Body); err != nil {
		return "", err
	}
	return dest, nil
}

// KeyedChannel resolves a relative filename against a remote repository
// identifier. Authentication and the exact resolution scheme belong to
// the backend; this channel only composes the request and stores the
// result under the shared data folder, preserving the relative layout.
type KeyedChannel struct {
	// Repo is the repository identifier, e.g. "org/dataset-name".
	Repo string

	// BaseURL is the backend endpoint prefix. A default public endpoint
	// is used when empty.
	BaseURL string

	// Client defaults to http.DefaultClient when nil.
	Client *http.Client
}

const defaultKeyedBaseURL = "https://huggingface.co/datasets"

func (c *KeyedChannel) Fetch(locator, dest string) (string, error) {
	base := c.BaseURL
	if base == "" {
		base = defaultKeyedBaseURL
	}
	url := fmt.Sprintf("%s/%s/resolve/main/%s",
		strings.TrimSuffix(base, "/"), c.Repo, locator)

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Get(url)
	if err != nil {
		return "", fmt.Errorf("resolve %s from %s: %w", locator, c.Repo, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("resolve %s from %s: unexpected status %s",
			locator, c.Repo, resp.Status)
	}

	// The repository decides the storage layout: files land under the
	// data folder at their repository-relative path.
	resolved := DataPath(filepath.FromSlash(locator))
	if err := writeBody(resolved, resp.Body); err != nil {
		return "", err
	}
	return resolved, nil
}

// writeBody stages the download in a temp file and renames it into
// place only after the full body arrived. A transport failure mid-body
// must never leave a truncated file at dest, where a later Fetch would
// mistake it for a cached download.
func writeBody(dest string, body io.Reader) error {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", dest, err)
	}
	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", dest, err)
	}
	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", dest, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", dest, err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("finalize %s: %w", dest, err)
	}
	return nil
}
