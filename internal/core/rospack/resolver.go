package rospack

import (
	"encoding/xml"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/zeusync/vrepclient/internal/core/observability/log"
)

// EnvPackagePath is the environment variable holding the search roots.
const EnvPackagePath = "ROS_PACKAGE_PATH"

const manifestFile = "package.xml"

var ErrPackageNotFound = errors.New("ros package not found")

// Manifest is the part of package.xml the resolver reads.
type Manifest struct {
	XMLName xml.Name `xml:"package"`
	Name    string   `xml:"name"`
	Version string   `xml:"version"`
}

// ReadManifest parses the package.xml at path.
func ReadManifest(path string) (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(path)
	if err != nil {
		return m, err
	}
	if err = xml.Unmarshal(data, &m); err != nil {
		return m, err
	}
	m.Name = strings.TrimSpace(m.Name)
	return m, nil
}

// Resolver maps package names to directories. It is safe for concurrent use.
type Resolver struct {
	roots     []string
	overrides map[string]string
	logger    log.Log

	mu    sync.Mutex
	cache map[string]string
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithOverrides pins package names to directories. Overrides are returned
// as-is without looking for a manifest.
func WithOverrides(overrides map[string]string) Option {
	return func(r *Resolver) {
		for name, dir := range overrides {
			r.overrides[name] = dir
		}
	}
}

// WithLogger sets the logger used to report unreadable manifests.
func WithLogger(logger log.Log) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger.With(log.String("component", "rospack"))
		}
	}
}

// NewResolver creates a resolver searching roots in order. Empty roots and
// duplicates are dropped.
func NewResolver(roots []string, opts ...Option) *Resolver {
	r := &Resolver{
		overrides: make(map[string]string),
		logger:    log.NewNop(),
		cache:     make(map[string]string),
	}

	seen := make(map[string]struct{}, len(roots))
	for _, root := range roots {
		root = strings.TrimSpace(root)
		if root == "" {
			continue
		}
		root = filepath.Clean(root)
		if _, ok := seen[root]; ok {
			continue
		}
		seen[root] = struct{}{}
		r.roots = append(r.roots, root)
	}

	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SplitPackagePath splits a ROS_PACKAGE_PATH value into its roots.
func SplitPackagePath(value string) []string {
	if value == "" {
		return nil
	}
	return filepath.SplitList(value)
}

// FromEnv creates a resolver over extra followed by the roots in
// ROS_PACKAGE_PATH.
func FromEnv(extra []string, opts ...Option) *Resolver {
	roots := append(append([]string{}, extra...), SplitPackagePath(os.Getenv(EnvPackagePath))...)
	return NewResolver(roots, opts...)
}

// Roots returns the search roots.
func (r *Resolver) Roots() []string {
	return append([]string(nil), r.roots...)
}

// Find returns the directory of package name.
func (r *Resolver) Find(name string) (string, error) {
	if dir, ok := r.overrides[name]; ok {
		return dir, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if dir, ok := r.cache[name]; ok {
		return dir, nil
	}

	for _, root := range r.roots {
		dir, err := r.scan(root, name)
		if err != nil {
			return "", err
		}
		if dir != "" {
			r.cache[name] = dir
			r.logger.Debug("Resolved package", log.String("package", name), log.String("dir", dir))
			return dir, nil
		}
	}

	return "", &NotFoundError{Name: name, Roots: r.Roots()}
}

// Forget drops every memoised lookup.
func (r *Resolver) Forget() {
	r.mu.Lock()
	r.cache = make(map[string]string)
	r.mu.Unlock()
}

// scan walks root looking for name. A directory holding a manifest is a
// package and is not descended into, nor is one holding a CATKIN_IGNORE
// marker. Hidden directories are skipped.
func (r *Resolver) scan(root, name string) (string, error) {
	var found string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root && errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipAll
			}
			r.logger.Debug("Skipping unreadable path", log.String("path", path), log.Error(err))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if exists(filepath.Join(path, "CATKIN_IGNORE")) {
			return filepath.SkipDir
		}

		manifest := filepath.Join(path, manifestFile)
		if !exists(manifest) {
			return nil
		}

		m, merr := ReadManifest(manifest)
		if merr != nil {
			r.logger.Warn("Ignoring malformed manifest", log.String("path", manifest), log.Error(merr))
			return filepath.SkipDir
		}
		if m.Name == name {
			found = path
			return filepath.SkipAll
		}
		return filepath.SkipDir
	})

	return found, err
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
