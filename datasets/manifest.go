package datasets

import (
	"fmt"
	"os"
	"strings"

	"github.com/designbench/designbench/resource"
	"gopkg.in/yaml.v3"
)

// Manifest declares a dataset's shard inventory: an ordered list of x
// shard files with their y counterparts. It keeps the loader generic
// instead of baking file inventories into per-dataset code.
type Manifest struct {
	// Name identifies the dataset (informational).
	Name string `yaml:"name"`

	// Method is "direct" or "keyed". Default: direct.
	Method string `yaml:"method,omitempty"`

	// BaseURL prefixes every shard file for direct fetches.
	BaseURL string `yaml:"base_url,omitempty"`

	// Repo overrides the default repository identifier for keyed
	// fetches.
	Repo string `yaml:"repo,omitempty"`

	// NumClasses is set for discrete (categorical) design spaces.
	NumClasses int `yaml:"num_classes,omitempty"`

	Shards []ShardEntry `yaml:"shards"`
}

// ShardEntry names one x shard file. When Y is empty, the y file is
// derived by the "-x-" to "-y-" filename convention.
type ShardEntry struct {
	X string `yaml:"x"`
	Y string `yaml:"y,omitempty"`
}

// YFile returns the y shard filename for the entry.
func (e ShardEntry) YFile() string {
	if e.Y != "" {
		return e.Y
	}
	return strings.Replace(e.X, "-x-", "-y-", 1)
}

// LoadManifest reads a YAML manifest from path.
func LoadManifest(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	if len(m.Shards) == 0 {
		return nil, fmt.Errorf("manifest %s: no shards declared", path)
	}
	switch m.Method {
	case "", "direct", "keyed":
	default:
		return nil, fmt.Errorf("manifest %s: unknown method %q", path, m.Method)
	}
	return &m, nil
}

// ShardSet builds the resource handles declared by the manifest.
func (m *Manifest) ShardSet() (*ShardSet, error) {
	method := resource.MethodDirect
	if m.Method == "keyed" {
		method = resource.MethodKeyed
	}

	xs := make([]*resource.Handle, len(m.Shards))
	ys := make([]*resource.Handle, len(m.Shards))
	for i, e := range m.Shards {
		yFile := e.YFile()
		xs[i] = resource.NewHandle(e.X, m.locator(e.X), method)
		ys[i] = resource.NewHandle(yFile, m.locator(yFile), method)
		if method == resource.MethodKeyed && m.Repo != "" {
			ch := &resource.KeyedChannel{Repo: m.Repo}
			xs[i].WithChannel(ch)
			ys[i].WithChannel(ch)
		}
	}
	return NewShardSet(xs, ys)
}

func (m *Manifest) locator(file string) string {
	if m.Method == "keyed" || m.BaseURL == "" {
		return file
	}
	return strings.TrimSuffix(m.BaseURL, "/") + "/" + file
}
