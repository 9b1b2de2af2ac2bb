package lxc

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"lxcdriver/internal/common"
	"lxcdriver/internal/executor"

	"go.uber.org/zap"
)

// Adapter LXC 命令适配器接口
// 所有方法都会阻塞直到外部命令结束，失败时返回包含命令信息的 *executor.ExecuteError
type Adapter interface {
	Name() string
	SetName(name string)

	// List 返回 lxc-ls 列出的全部容器名
	List(ctx context.Context) ([]string, error)

	Create(ctx context.Context, template, configFile string, options map[string]string) error
	Start(ctx context.Context, customizations Customizations, extraFlags []string) error
	Shutdown(ctx context.Context) error
	Destroy(ctx context.Context) error

	// State 查询当前状态，不做缓存
	State(ctx context.Context) (State, error)

	// Wait 阻塞直到容器进入 state 或超时
	Wait(ctx context.Context, state State, timeout time.Duration) error

	// Attach 在容器内执行命令并返回标准输出
	Attach(ctx context.Context, opts AttachOptions, cmd ...string) (string, error)

	Version(ctx context.Context) (string, error)
}

// AttachOptions lxc-attach 选项
type AttachOptions struct {
	Namespaces []string
}

// CLI 基于 lxc-* 命令行工具的适配器实现
type CLI struct {
	name   string
	exec   executor.Executor
	logger *zap.Logger
}

// NewCLI 创建命令行适配器
func NewCLI(exec executor.Executor, name string) *CLI {
	return &CLI{
		name:   name,
		exec:   exec,
		logger: common.ComponentLogger("lxc-cli"),
	}
}

// Name 返回容器名
func (c *CLI) Name() string {
	return c.name
}

// SetName 设置容器名
func (c *CLI) SetName(name string) {
	c.name = name
}

// run 以特权模式执行 lxc-<command>
func (c *CLI) run(ctx context.Context, command string, args ...string) (string, error) {
	result, err := c.exec.Execute(ctx, executor.Command{
		Name:       "lxc-" + command,
		Args:       args,
		Privileged: true,
	})
	if err != nil {
		return "", err
	}
	return result.Stdout, nil
}

func (c *CLI) requireName() error {
	if c.name == "" {
		return common.ErrNameRequired
	}
	return nil
}

// List 列出容器
func (c *CLI) List(ctx context.Context) ([]string, error) {
	out, err := c.run(ctx, "ls")
	if err != nil {
		return nil, err
	}
	return parseList(out), nil
}

// Create 使用模板创建容器
func (c *CLI) Create(ctx context.Context, template, configFile string, options map[string]string) error {
	if err := c.requireName(); err != nil {
		return err
	}
	c.logger.Debug("Creating container",
		zap.String("name", c.name),
		zap.String("template", template))
	_, err := c.run(ctx, "create", createArgs(c.name, template, configFile, options)...)
	return err
}

// Start 后台启动容器
func (c *CLI) Start(ctx context.Context, customizations Customizations, extraFlags []string) error {
	if err := c.requireName(); err != nil {
		return err
	}
	_, err := c.run(ctx, "start", startArgs(c.name, customizations, extraFlags)...)
	return err
}

// Shutdown 请求容器正常关闭
func (c *CLI) Shutdown(ctx context.Context) error {
	if err := c.requireName(); err != nil {
		return err
	}
	_, err := c.run(ctx, "shutdown", "--name", c.name)
	return err
}

// Destroy 删除容器
func (c *CLI) Destroy(ctx context.Context) error {
	if err := c.requireName(); err != nil {
		return err
	}
	_, err := c.run(ctx, "destroy", "--name", c.name)
	return err
}

// State 查询容器状态；lxc-info 失败且容器不在列表中时返回 StateNotFound
func (c *CLI) State(ctx context.Context) (State, error) {
	if err := c.requireName(); err != nil {
		return "", err
	}
	out, err := c.run(ctx, "info", "--name", c.name)
	if err == nil {
		return ParseInfoState(out), nil
	}

	var execErr *executor.ExecuteError
	if !errors.As(err, &execErr) {
		return "", err
	}
	names, listErr := c.List(ctx)
	if listErr != nil {
		return "", fmt.Errorf("%w (listing containers: %v)", err, listErr)
	}
	if !slices.Contains(names, c.name) {
		return StateNotFound, nil
	}
	return "", err
}

// Wait 等待容器进入指定状态
func (c *CLI) Wait(ctx context.Context, state State, timeout time.Duration) error {
	if err := c.requireName(); err != nil {
		return err
	}
	_, err := c.run(ctx, "wait", waitArgs(c.name, state, timeout)...)
	return err
}

// Attach 在容器命名空间内执行命令
func (c *CLI) Attach(ctx context.Context, opts AttachOptions, cmd ...string) (string, error) {
	if err := c.requireName(); err != nil {
		return "", err
	}
	return c.run(ctx, "attach", attachArgs(c.name, opts, cmd)...)
}

// Version 返回 lxc 用户空间工具版本
func (c *CLI) Version(ctx context.Context) (string, error) {
	out, err := c.run(ctx, "create", "--version")
	if err != nil {
		// 旧版本只提供 lxc-version
		legacy, legacyErr := c.run(ctx, "version")
		if legacyErr != nil {
			return "", err
		}
		out = legacy
	}
	return parseVersion(out), nil
}
