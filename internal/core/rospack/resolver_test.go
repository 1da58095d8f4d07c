package rospack

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeManifest(t *testing.T, dir, name string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	manifest := `<?xml version="1.0"?>
<package format="2">
  <name> ` + name + ` </name>
  <version>0.1.0</version>
</package>
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, manifestFile), []byte(manifest), 0o644))
}

func TestFindPackage(t *testing.T) {
	root := t.TempDir()
	// the directory name does not have to match the package name
	writeManifest(t, filepath.Join(root, "src", "robots"), "vrep_scenes")
	writeManifest(t, filepath.Join(root, "src", "other"), "other_pkg")

	r := NewResolver([]string{root})
	dir, err := r.Find("vrep_scenes")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "src", "robots"), dir)
}

func TestFindIsMemoised(t *testing.T) {
	root := t.TempDir()
	pkg := filepath.Join(root, "pkg")
	writeManifest(t, pkg, "scenes")

	r := NewResolver([]string{root})
	dir, err := r.Find("scenes")
	require.NoError(t, err)

	require.NoError(t, os.RemoveAll(pkg))
	again, err := r.Find("scenes")
	require.NoError(t, err)
	assert.Equal(t, dir, again)

	r.Forget()
	_, err = r.Find("scenes")
	assert.ErrorIs(t, err, ErrPackageNotFound)
}

func TestFindFirstRootWins(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()
	writeManifest(t, filepath.Join(first, "a"), "dup")
	writeManifest(t, filepath.Join(second, "b"), "dup")

	dir, err := NewResolver([]string{first, second}).Find("dup")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(first, "a"), dir)
}

func TestNestedPackagesAreNotSearched(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, filepath.Join(root, "outer"), "outer")
	writeManifest(t, filepath.Join(root, "outer", "inner"), "inner")

	_, err := NewResolver([]string{root}).Find("inner")
	assert.ErrorIs(t, err, ErrPackageNotFound)
}

func TestIgnoredDirectories(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, filepath.Join(root, ".hidden", "pkg"), "hidden")
	writeManifest(t, filepath.Join(root, "ignored", "pkg"), "ignored")
	require.NoError(t, os.WriteFile(filepath.Join(root, "ignored", "CATKIN_IGNORE"), nil, 0o644))

	r := NewResolver([]string{root})
	_, err := r.Find("hidden")
	assert.ErrorIs(t, err, ErrPackageNotFound)
	_, err = r.Find("ignored")
	assert.ErrorIs(t, err, ErrPackageNotFound)
}

func TestMalformedManifestIsSkipped(t *testing.T) {
	root := t.TempDir()
	bad := filepath.Join(root, "bad")
	require.NoError(t, os.MkdirAll(bad, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(bad, manifestFile), []byte("<package><name>"), 0o644))
	writeManifest(t, filepath.Join(root, "good"), "good")

	dir, err := NewResolver([]string{root}).Find("good")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "good"), dir)
}

func TestOverridesWin(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, filepath.Join(root, "pkg"), "scenes")

	r := NewResolver([]string{root}, WithOverrides(map[string]string{"scenes": "/opt/scenes"}))
	dir, err := r.Find("scenes")
	require.NoError(t, err)
	assert.Equal(t, "/opt/scenes", dir)
}

func TestNotFoundError(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "does-not-exist")

	_, err := NewResolver([]string{missing}).Find("nothing")
	require.ErrorIs(t, err, ErrPackageNotFound)

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "nothing", nf.Name)
	assert.Contains(t, err.Error(), missing)

	_, err = NewResolver(nil).Find("nothing")
	assert.Contains(t, err.Error(), EnvPackagePath)
}

func TestFromEnv(t *testing.T) {
	a := t.TempDir()
	b := t.TempDir()
	t.Setenv(EnvPackagePath, b+string(os.PathListSeparator)+a)

	r := FromEnv([]string{a, " "})
	assert.Equal(t, []string{filepath.Clean(a), filepath.Clean(b)}, r.Roots())
}

func TestReadManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "named")

	m, err := ReadManifest(filepath.Join(dir, manifestFile))
	require.NoError(t, err)
	assert.Equal(t, "named", m.Name)
	assert.Equal(t, "0.1.0", m.Version)
}
