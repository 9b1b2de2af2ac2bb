package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"lxcdriver/internal/common"
	"lxcdriver/internal/driver"
	"lxcdriver/internal/executor/executortest"
	"lxcdriver/internal/lxc"
	"lxcdriver/internal/manager"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFolders(t *testing.T) {
	folders, err := parseFolders([]string{"/src:/vagrant", "/data:/srv/data"})
	require.NoError(t, err)
	assert.Equal(t, []driver.Folder{
		{HostPath: "/src", GuestPath: "/vagrant"},
		{HostPath: "/data", GuestPath: "/srv/data"},
	}, folders)

	_, err = parseFolders([]string{"/src"})
	var validationErr *common.ValidationError
	assert.ErrorAs(t, err, &validationErr)
}

func TestParseCustomizationsKeepsOrder(t *testing.T) {
	customizations, err := parseCustomizations([]string{"cgroup.memory.limit_in_bytes=512M", "aa_profile=unconfined"})
	require.NoError(t, err)
	assert.Equal(t, lxc.Customizations{
		{Key: "cgroup.memory.limit_in_bytes", Value: "512M"},
		{Key: "aa_profile", Value: "unconfined"},
	}, customizations)

	_, err = parseCustomizations([]string{"=x"})
	assert.Error(t, err)
}

func TestParsePairs(t *testing.T) {
	pairs, err := parsePairs([]string{"release=jammy", "arch=amd64"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"release": "jammy", "arch": "amd64"}, pairs)

	_, err = parsePairs([]string{"release"})
	assert.Error(t, err)
}

func TestLoadConfigDefault(t *testing.T) {
	config, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, common.GetDefaultConfig().Driver.TemplatePrefix, config.Driver.TemplatePrefix)
}

func newCommandManager(t *testing.T) (*manager.Manager, *executortest.Recorder, string) {
	t.Helper()
	t.Setenv(driver.StartLogFileEnv, "")
	root := t.TempDir()
	templates := filepath.Join(root, "templates")
	require.NoError(t, os.MkdirAll(templates, 0o755))
	rootfs := filepath.Join(root, "lxc", "web", "rootfs")
	require.NoError(t, os.MkdirAll(rootfs, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "lxc", "web", "config"),
		[]byte("lxc.rootfs = "+rootfs+"\n"), 0o644))

	rec := executortest.NewRecorder()
	rec.
		On("lxc-ls", executortest.Response{Stdout: "web\n"}).
		On("lxc-info", executortest.Response{Stdout: "state: RUNNING\n"})
	cm := manager.NewManager(rec, driver.Options{
		ContainersRoot: filepath.Join(root, "lxc"),
		TemplatesPaths: []string{templates},
		InvokingUser:   func() (int, int) { return 1000, 1000 },
	})
	return cm, rec, rootfs
}

func TestRunCommand_StartWithFolders(t *testing.T) {
	cm, rec, rootfs := newCommandManager(t)

	_, err := runCommand(context.Background(), cm, "start",
		[]string{"-name", "web", "-folder", "/src:/vagrant", "-s", "aa_profile=unconfined"})

	require.NoError(t, err)
	var startLine string
	for _, line := range rec.Lines() {
		if strings.HasPrefix(line, "lxc-start") {
			startLine = line
		}
	}
	assert.Equal(t, "lxc-start -d --name web -s lxc.aa_profile=unconfined -s lxc.mount.entry=/src "+
		filepath.Join(rootfs, "vagrant")+" none bind 0 0", startLine)
	assert.Equal(t, 1, rec.Count("mkdir -p "+filepath.Join(rootfs, "vagrant")))
}

func TestRunCommand_ShareIsNotACommand(t *testing.T) {
	cm, rec, _ := newCommandManager(t)

	_, err := runCommand(context.Background(), cm, "share", []string{"-name", "web", "-folder", "/src:/vagrant"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")
	assert.Empty(t, rec.Lines())
}
