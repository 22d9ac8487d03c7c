package jail

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/onkernel/jailrun/lib/rootfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStaging(t *testing.T) (*rootfs.Staging, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "staging")
	s, err := rootfs.Prepare(path, nil)
	require.NoError(t, err)
	return s, path
}

func writeBinary(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tool")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\necho hi\n"), 0755))
	return path
}

func TestPrepare(t *testing.T) {
	staging, root := newStaging(t)
	bin := writeBinary(t)

	b := New(nil)
	require.NoError(t, b.Prepare(staging, bin, "/usr/local/bin/tool"))

	info, err := os.Stat(filepath.Join(root, "dev/null"))
	require.NoError(t, err)
	assert.True(t, info.Mode().IsRegular())
	assert.Equal(t, int64(0), info.Size())

	placed := filepath.Join(root, "usr/local/bin/tool")
	content, err := os.ReadFile(placed)
	require.NoError(t, err)
	assert.Equal(t, "#!/bin/sh\necho hi\n", string(content))

	info, err = os.Stat(placed)
	require.NoError(t, err)
	assert.NotZero(t, info.Mode().Perm()&0100, "binary must stay executable")
}

func TestPrepareLocalEntrypoint(t *testing.T) {
	staging, root := newStaging(t)
	bin := writeBinary(t)

	require.NoError(t, New(nil).Prepare(staging, bin, rootfs.LocalEntrypoint))

	assert.FileExists(t, filepath.Join(root, "init"))
	assert.FileExists(t, filepath.Join(root, "dev/null"))
}

func TestPrepareTruncatesExistingDevNull(t *testing.T) {
	staging, root := newStaging(t)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "dev"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "dev/null"), []byte("junk from a layer"), 0644))

	require.NoError(t, New(nil).Prepare(staging, writeBinary(t), "/init"))

	info, err := os.Stat(filepath.Join(root, "dev/null"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), info.Size())
}

func TestPrepareReplacesSymlinkAtPlacement(t *testing.T) {
	staging, root := newStaging(t)
	outside := filepath.Join(t.TempDir(), "host-binary")
	require.NoError(t, os.WriteFile(outside, []byte("host"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "bin"), 0755))
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "bin/tool")))

	require.NoError(t, New(nil).Prepare(staging, writeBinary(t), "/bin/tool"))

	host, err := os.ReadFile(outside)
	require.NoError(t, err)
	assert.Equal(t, "host", string(host))

	info, err := os.Lstat(filepath.Join(root, "bin/tool"))
	require.NoError(t, err)
	assert.True(t, info.Mode().IsRegular())
}

func TestPrepareMissingBinary(t *testing.T) {
	staging, _ := newStaging(t)
	missing := filepath.Join(t.TempDir(), "nope")

	err := New(nil).Prepare(staging, missing, "/init")
	require.ErrorIs(t, err, ErrCopy)
	assert.Contains(t, err.Error(), missing)
}

func TestPrepareCommittedRoot(t *testing.T) {
	staging, _ := newStaging(t)
	require.NoError(t, staging.Commit())

	err := New(nil).Prepare(staging, writeBinary(t), "/init")
	require.ErrorIs(t, err, ErrJail)
	require.ErrorIs(t, err, rootfs.ErrCommitted)
}

func TestResolveCommand(t *testing.T) {
	bin := writeBinary(t)

	got, err := ResolveCommand(bin)
	require.NoError(t, err)
	assert.Equal(t, bin, got)

	t.Setenv("PATH", filepath.Dir(bin))
	got, err = ResolveCommand("tool")
	require.NoError(t, err)
	assert.Equal(t, bin, got)

	_, err = ResolveCommand("definitely-not-on-path")
	require.ErrorIs(t, err, ErrCopy)

	_, err = ResolveCommand("")
	require.ErrorIs(t, err, ErrCopy)
}

func TestCommit(t *testing.T) {
	staging, root := newStaging(t)

	var chrooted, chdired string
	b := New(nil)
	b.chroot = func(path string) error { chrooted = path; return nil }
	b.chdir = func(path string) error { chdired = path; return nil }

	require.NoError(t, b.Commit(staging))
	assert.Equal(t, root, chrooted)
	assert.Equal(t, "/", chdired)
	assert.True(t, staging.Committed())

	_, err := staging.Path()
	require.ErrorIs(t, err, rootfs.ErrCommitted)
}

func TestCommitChrootFails(t *testing.T) {
	staging, _ := newStaging(t)

	b := New(nil)
	b.chroot = func(string) error { return os.ErrPermission }
	b.chdir = func(string) error { t.Fatal("chdir must not run after a failed chroot"); return nil }

	err := b.Commit(staging)
	require.ErrorIs(t, err, ErrJail)
	require.ErrorIs(t, err, os.ErrPermission)
	assert.False(t, staging.Committed())
}

func TestCommitChdirFails(t *testing.T) {
	staging, _ := newStaging(t)

	b := New(nil)
	b.chroot = func(string) error { return nil }
	b.chdir = func(string) error { return errors.New("no such directory") }

	err := b.Commit(staging)
	require.ErrorIs(t, err, ErrJail)
	assert.True(t, staging.Committed(), "root changed even though chdir failed")
}

func TestCommitWithoutPrivilege(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("running as root, chroot would succeed")
	}
	staging, _ := newStaging(t)

	err := New(nil).Commit(staging)
	require.ErrorIs(t, err, ErrJail)
	assert.False(t, staging.Committed())
}

func TestPrepareParentSymlinkStaysInRoot(t *testing.T) {
	staging, root := newStaging(t)
	host := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "usr"), 0755))
	require.NoError(t, os.Symlink(host, filepath.Join(root, "usr/local")))

	require.NoError(t, New(nil).Prepare(staging, writeBinary(t), "/usr/local/bin/tool"))

	assert.NoFileExists(t, filepath.Join(host, "bin/tool"))
	// the absolute link is followed as if root were "/"
	assert.FileExists(t, filepath.Join(root, host, "bin/tool"))
}

func TestPrepareDevSymlinkStaysInRoot(t *testing.T) {
	staging, root := newStaging(t)
	host := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(host, "null"), []byte("host file"), 0644))
	require.NoError(t, os.Symlink(host, filepath.Join(root, "dev")))

	require.NoError(t, New(nil).Prepare(staging, writeBinary(t), "/init"))

	content, err := os.ReadFile(filepath.Join(host, "null"))
	require.NoError(t, err)
	assert.Equal(t, "host file", string(content))

	info, err := os.Stat(filepath.Join(root, host, "null"))
	require.NoError(t, err)
	assert.True(t, info.Mode().IsRegular())
	assert.Equal(t, int64(0), info.Size())
}

func TestPrepareReplacesDevNullSymlink(t *testing.T) {
	staging, root := newStaging(t)
	host := filepath.Join(t.TempDir(), "null")
	require.NoError(t, os.WriteFile(host, []byte("host file"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "dev"), 0755))
	require.NoError(t, os.Symlink(host, filepath.Join(root, "dev/null")))

	require.NoError(t, New(nil).Prepare(staging, writeBinary(t), "/init"))

	content, err := os.ReadFile(host)
	require.NoError(t, err)
	assert.Equal(t, "host file", string(content))

	info, err := os.Lstat(filepath.Join(root, "dev/null"))
	require.NoError(t, err)
	assert.True(t, info.Mode().IsRegular())
}
