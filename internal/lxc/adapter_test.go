package lxc

import (
	"context"
	"errors"
	"testing"
	"time"

	"lxcdriver/internal/common"
	"lxcdriver/internal/executor"
	"lxcdriver/internal/executor/executortest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func failed(cmd string) error {
	return &executor.ExecuteError{Command: cmd, ExitCode: 1}
}

func TestParseInfoState(t *testing.T) {
	cases := map[string]State{
		"state:   RUNNING\npid:       1234\n": StateRunning,
		"Name: web\nstate:   STOPPED\n":       StateStopped,
		"state: FROZEN":                       StateFrozen,
		"state:   WEIRD\n":                    StateUnknown,
		"no state here":                       StateUnknown,
	}
	for output, want := range cases {
		assert.Equal(t, want, ParseInfoState(output), output)
	}
}

func TestStateHelpers(t *testing.T) {
	assert.Equal(t, "RUNNING", StateRunning.Upper())
	assert.True(t, StateStarting.Transitional())
	assert.False(t, StateRunning.Transitional())
}

func TestCustomizationFlag(t *testing.T) {
	assert.Equal(t, "lxc.mount.entry=/a /b none bind 0 0", BindMount("/a", "/b").Flag())
	assert.Equal(t, "lxc.aa_profile=unconfined", Customization{Key: "lxc.aa_profile", Value: "unconfined"}.Flag())
}

func TestCustomizationsMergePreservesOrder(t *testing.T) {
	caller := Customizations{{Key: "a", Value: "1"}, {Key: "b", Value: "2"}}
	var accumulated Customizations
	accumulated.Add(Customization{Key: "c", Value: "3"})

	merged := caller.Merge(accumulated)

	assert.Equal(t, Customizations{{Key: "a", Value: "1"}, {Key: "b", Value: "2"}, {Key: "c", Value: "3"}}, merged)
	assert.Equal(t, 2, caller.Len())
	assert.Equal(t, 1, accumulated.Len())
}

func TestCreateArgs(t *testing.T) {
	args := createArgs("web", "vagrant-tmp-web", "", map[string]string{"--tarball": "/tmp/rootfs.tar.gz", "--auth-key": "/k"})
	assert.Equal(t, []string{
		"--template", "vagrant-tmp-web", "--name", "web",
		"--", "--auth-key", "/k", "--tarball", "/tmp/rootfs.tar.gz",
	}, args)

	args = createArgs("web", "t", "/etc/lxc/default.conf", nil)
	assert.Equal(t, []string{"--template", "t", "--name", "web", "-f", "/etc/lxc/default.conf"}, args)
}

func TestStartArgs(t *testing.T) {
	args := startArgs("web", Customizations{BindMount("/h", "/g")}, []string{"-o", "/tmp/start.log", "-l", "DEBUG"})
	assert.Equal(t, []string{
		"-d", "--name", "web",
		"-s", "lxc.mount.entry=/h /g none bind 0 0",
		"-o", "/tmp/start.log", "-l", "DEBUG",
	}, args)
}

func TestWaitArgs(t *testing.T) {
	assert.Equal(t, []string{"--name", "web", "--state", "RUNNING"}, waitArgs("web", StateRunning, 0))
	assert.Equal(t, []string{"--name", "web", "--state", "STOPPED", "-t", "2"}, waitArgs("web", StateStopped, 1500*time.Millisecond))
}

func TestAttachArgs(t *testing.T) {
	args := attachArgs("web", AttachOptions{Namespaces: []string{"network"}}, []string{"/sbin/ip", "-4", "addr"})
	assert.Equal(t, []string{"--name", "web", "--namespaces", "NETWORK", "--", "/sbin/ip", "-4", "addr"}, args)
}

func TestParseList(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, parseList("a  b\nc\na\n"))
	assert.Empty(t, parseList("   \n"))
}

func TestParseVersion(t *testing.T) {
	assert.Equal(t, "0.7.5", parseVersion("lxc version: 0.7.5\n"))
	assert.Equal(t, "4.0.12", parseVersion("4.0.12\n"))
}

func TestCLI_CommandsArePrivileged(t *testing.T) {
	rec := executortest.NewRecorder()
	cli := NewCLI(rec, "web")

	require.NoError(t, cli.Shutdown(context.Background()))
	require.NoError(t, cli.Destroy(context.Background()))

	assert.Equal(t, []string{"lxc-shutdown --name web", "lxc-destroy --name web"}, rec.Lines())
	for _, cmd := range rec.Commands {
		assert.True(t, cmd.Privileged)
	}
}

func TestCLI_RequiresName(t *testing.T) {
	cli := NewCLI(executortest.NewRecorder(), "")

	err := cli.Start(context.Background(), nil, nil)

	assert.ErrorIs(t, err, common.ErrNameRequired)
}

func TestCLI_List(t *testing.T) {
	rec := executortest.NewRecorder().On("lxc-ls", executortest.Response{Stdout: "web db\nweb\n"})
	cli := NewCLI(rec, "")

	names, err := cli.List(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"web", "db"}, names)
}

func TestCLI_State(t *testing.T) {
	rec := executortest.NewRecorder().On("lxc-info --name web", executortest.Response{Stdout: "state:   RUNNING\n"})
	cli := NewCLI(rec, "web")

	state, err := cli.State(context.Background())

	require.NoError(t, err)
	assert.Equal(t, StateRunning, state)
}

func TestCLI_StateNotFound(t *testing.T) {
	rec := executortest.NewRecorder().
		On("lxc-info", executortest.Response{Err: failed("lxc-info --name web")}).
		On("lxc-ls", executortest.Response{Stdout: "db\n"})
	cli := NewCLI(rec, "web")

	state, err := cli.State(context.Background())

	require.NoError(t, err)
	assert.Equal(t, StateNotFound, state)
}

func TestCLI_StateErrorWhenContainerListed(t *testing.T) {
	rec := executortest.NewRecorder().
		On("lxc-info", executortest.Response{Err: failed("lxc-info --name web")}).
		On("lxc-ls", executortest.Response{Stdout: "web\n"})
	cli := NewCLI(rec, "web")

	_, err := cli.State(context.Background())

	var execErr *executor.ExecuteError
	assert.True(t, errors.As(err, &execErr))
}

func TestCLI_Attach(t *testing.T) {
	rec := executortest.NewRecorder().On("lxc-attach", executortest.Response{Stdout: "out"})
	cli := NewCLI(rec, "web")

	out, err := cli.Attach(context.Background(), AttachOptions{Namespaces: []string{"network"}}, "hostname")

	require.NoError(t, err)
	assert.Equal(t, "out", out)
	assert.Equal(t, []string{"lxc-attach --name web --namespaces NETWORK -- hostname"}, rec.Lines())
}

func TestCLI_VersionFallsBackToLegacy(t *testing.T) {
	rec := executortest.NewRecorder().
		On("lxc-create --version", executortest.Response{Err: failed("lxc-create --version")}).
		On("lxc-version", executortest.Response{Stdout: "lxc version: 0.7.5\n"})
	cli := NewCLI(rec, "")

	version, err := cli.Version(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "0.7.5", version)
}
