package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestResolve_PrivilegedWithSudo(t *testing.T) {
	e := NewProcessExecutor(Config{SudoPath: "/usr/bin/sudo", UseSudo: true})

	name, args := e.resolve(Command{Name: "lxc-ls", Args: []string{"-1"}, Privileged: true})

	assert.Equal(t, "/usr/bin/sudo", name)
	assert.Equal(t, []string{"lxc-ls", "-1"}, args)
}

func TestResolve_PrivilegedWithoutSudo(t *testing.T) {
	e := NewProcessExecutor(Config{UseSudo: false})

	name, args := e.resolve(Command{Name: "mkdir", Args: []string{"-p", "/tmp/x"}, Privileged: true})

	assert.Equal(t, "mkdir", name)
	assert.Equal(t, []string{"-p", "/tmp/x"}, args)
}

func TestResolve_UnprivilegedIgnoresSudo(t *testing.T) {
	e := NewProcessExecutor(Config{UseSudo: true})

	name, args := e.resolve(Command{Name: "ip", Args: []string{"addr"}})

	assert.Equal(t, "ip", name)
	assert.Equal(t, []string{"addr"}, args)
}

func TestNewProcessExecutor_DefaultSudoPath(t *testing.T) {
	e := NewProcessExecutor(Config{})
	assert.Equal(t, "sudo", e.config.SudoPath)
}

func TestCommandString(t *testing.T) {
	assert.Equal(t, "lxc-info --name web", Command{Name: "lxc-info", Args: []string{"--name", "web"}}.String())
	assert.Equal(t, "(privileged) rm /tmp/t", Command{Name: "rm", Args: []string{"/tmp/t"}, Privileged: true}.String())
}

func TestExecute_CapturesStdout(t *testing.T) {
	e := NewProcessExecutor(Config{})

	result, err := e.Execute(context.Background(), Command{Name: "echo", Args: []string{"hello"}})

	require.NoError(t, err)
	assert.Equal(t, "hello\n", result.Stdout)
	assert.Equal(t, 0, result.ExitCode)
}

func TestExecute_NonZeroExit(t *testing.T) {
	e := NewProcessExecutor(Config{})

	result, err := e.Execute(context.Background(), Command{Name: "sh", Args: []string{"-c", "echo oops >&2; exit 3"}})

	require.Error(t, err)
	var execErr *ExecuteError
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, 3, execErr.ExitCode)
	assert.Equal(t, 3, result.ExitCode)
	assert.Contains(t, execErr.Command, "sh -c")
	assert.Contains(t, err.Error(), "oops")
}

func TestExecute_MissingBinary(t *testing.T) {
	e := NewProcessExecutor(Config{})

	_, err := e.Execute(context.Background(), Command{Name: "definitely-not-a-real-binary-xyz"})

	var execErr *ExecuteError
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, -1, execErr.ExitCode)
}

func TestIsPermissionDenied(t *testing.T) {
	assert.False(t, IsPermissionDenied(nil))
	assert.True(t, IsPermissionDenied(fmt.Errorf("mkdir: %w", unix.EACCES)))
	assert.True(t, IsPermissionDenied(&os.PathError{Op: "mkdir", Path: "/x", Err: unix.EPERM}))
	assert.True(t, IsPermissionDenied(&ExecuteError{Command: "mkdir -p /x", ExitCode: 1, Stderr: "mkdir: cannot create directory '/x': Permission denied"}))
	assert.False(t, IsPermissionDenied(&ExecuteError{Command: "mkdir -p /x", ExitCode: 1, Stderr: "No space left on device"}))
	assert.False(t, IsPermissionDenied(errors.New("boom")))
}

func TestInvokingUser_SudoEnv(t *testing.T) {
	t.Setenv("SUDO_UID", "1234")
	t.Setenv("SUDO_GID", "5678")

	uid, gid := InvokingUser()

	assert.Equal(t, 1234, uid)
	assert.Equal(t, 5678, gid)
}

func TestInvokingUser_NoSudoEnv(t *testing.T) {
	t.Setenv("SUDO_UID", "")
	t.Setenv("SUDO_GID", "")

	uid, gid := InvokingUser()

	assert.Equal(t, os.Getuid(), uid)
	assert.Equal(t, os.Getgid(), gid)
}
