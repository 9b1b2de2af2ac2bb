package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"lxcdriver/internal/common"

	"go.uber.org/zap"
)

// Command 外部命令描述，参数以列表形式传递，不经过 shell
type Command struct {
	Name       string
	Args       []string
	Privileged bool
}

// String 返回命令的可读形式
func (c Command) String() string {
	parts := append([]string{c.Name}, c.Args...)
	s := strings.Join(parts, " ")
	if c.Privileged {
		return "(privileged) " + s
	}
	return s
}

// Result 命令执行结果
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// ExecuteError 外部命令执行失败
type ExecuteError struct {
	Command  string
	ExitCode int
	Stdout   string
	Stderr   string
	Err      error
}

func (e *ExecuteError) Error() string {
	msg := fmt.Sprintf("command failed: %s (exit %d)", e.Command, e.ExitCode)
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		msg += ": " + stderr
	}
	return msg
}

func (e *ExecuteError) Unwrap() error {
	return e.Err
}

// Executor 进程执行器接口
type Executor interface {
	// Execute 同步执行一条命令，非零退出码返回 *ExecuteError
	Execute(ctx context.Context, cmd Command) (*Result, error)
}

// Config 进程执行器配置
type Config struct {
	SudoPath string
	UseSudo  bool
}

// ProcessExecutor 基于 os/exec 的进程执行器
type ProcessExecutor struct {
	config Config
	logger *zap.Logger
}

// NewProcessExecutor 创建进程执行器
func NewProcessExecutor(config Config) *ProcessExecutor {
	if config.SudoPath == "" {
		config.SudoPath = "sudo"
	}
	return &ProcessExecutor{
		config: config,
		logger: common.ComponentLogger("process-executor"),
	}
}

// resolve 返回实际执行的程序与参数
func (e *ProcessExecutor) resolve(cmd Command) (string, []string) {
	if cmd.Privileged && e.config.UseSudo {
		return e.config.SudoPath, append([]string{cmd.Name}, cmd.Args...)
	}
	return cmd.Name, append([]string(nil), cmd.Args...)
}

// Execute 执行命令
func (e *ProcessExecutor) Execute(ctx context.Context, cmd Command) (*Result, error) {
	name, args := e.resolve(cmd)

	e.logger.Debug("Executing command",
		zap.String("name", name),
		zap.Strings("args", args),
		zap.Bool("privileged", cmd.Privileged))

	c := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	err := c.Run()
	result := &Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err == nil {
		return result, nil
	}

	execErr := &ExecuteError{
		Command:  cmd.String(),
		ExitCode: -1,
		Stdout:   result.Stdout,
		Stderr:   result.Stderr,
		Err:      err,
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		execErr.ExitCode = exitErr.ExitCode()
	}
	result.ExitCode = execErr.ExitCode

	e.logger.Debug("Command failed",
		zap.String("command", execErr.Command),
		zap.Int("exit_code", execErr.ExitCode),
		zap.String("stderr", strings.TrimSpace(execErr.Stderr)))

	return result, execErr
}
