// Package driver 实现单个 LXC 容器的生命周期驱动。
//
// Driver 是外部调用者唯一的入口：文件系统事实由路径解析方法提供，
// 所有对外可见的状态变化都委托给 lxc.Adapter。一个 Driver 实例只服务一个容器，
// 内部不加锁，调用方需要自行串行化对同一容器的操作。
package driver

import (
	"context"
	"fmt"
	"os"
	"slices"
	"time"

	"lxcdriver/internal/common"
	"lxcdriver/internal/executor"
	"lxcdriver/internal/lxc"
	"lxcdriver/internal/retry"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StartLogFileEnv 启动日志文件的环境变量
const StartLogFileEnv = "LXC_START_LOG_FILE"

// DefaultWaitTimeout lxc-wait 的默认超时，未配置时使用
const DefaultWaitTimeout = 30 * time.Second

// Folder 共享目录
type Folder struct {
	HostPath  string `json:"host_path"`
	GuestPath string `json:"guest_path"`
}

// Options 驱动选项
type Options struct {
	ContainersRoot string
	TemplatesPaths []string
	TemplatePrefix string
	ConfigFile     string
	NamePrefix     string
	WaitTimeout    time.Duration
	IPRetry        retry.Policy
	IPInterface    string
	StartLogFile   string
	TempDir        string

	// Sleep 覆盖重试等待，测试使用
	Sleep retry.Sleeper
	// InvokingUser 覆盖归档文件属主的解析
	InvokingUser func() (uid, gid int)
	// OnIPAttempts 每次地址解析结束后回调实际尝试次数
	OnIPAttempts func(attempts int)
}

// OptionsFromConfig 从驱动配置构造选项
func OptionsFromConfig(cfg common.DriverConfig) Options {
	return Options{
		ContainersRoot: cfg.ContainersRoot,
		TemplatesPaths: cfg.TemplatesPaths,
		TemplatePrefix: cfg.TemplatePrefix,
		ConfigFile:     cfg.ConfigFile,
		NamePrefix:     cfg.NamePrefix,
		WaitTimeout:    cfg.WaitTimeout,
		IPRetry:        retry.Policy{Attempts: cfg.IPRetryAttempts, Delay: cfg.IPRetryDelay},
		IPInterface:    cfg.IPInterface,
		StartLogFile:   cfg.StartLogFile,
	}
}

// Driver 容器生命周期驱动
type Driver struct {
	name     string
	adapter  lxc.Adapter
	exec     executor.Executor
	strategy AddressStrategy
	opts     Options
	logger   *zap.Logger

	// 共享目录累积的配置项，在每次 Start 时追加，不会被清空
	customizations lxc.Customizations

	// 模板目录在首次解析成功后缓存
	templatesPath string
}

// New 创建驱动，name 可以为空（尚未创建的容器）
func New(adapter lxc.Adapter, exec executor.Executor, name string, opts Options) *Driver {
	if len(opts.TemplatesPaths) == 0 {
		opts.TemplatesPaths = common.DefaultTemplatesPaths
	}
	if opts.TemplatePrefix == "" {
		opts.TemplatePrefix = "vagrant-tmp-"
	}
	if opts.NamePrefix == "" {
		opts.NamePrefix = "lxcdriver"
	}
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = DefaultWaitTimeout
	}
	if opts.IPRetry.Attempts == 0 {
		opts.IPRetry = retry.Policy{Attempts: 10, Delay: 3 * time.Second}
	}
	if opts.IPInterface == "" {
		opts.IPInterface = "eth0"
	}
	if opts.InvokingUser == nil {
		opts.InvokingUser = executor.InvokingUser
	}

	adapter.SetName(name)
	return &Driver{
		name:     name,
		adapter:  adapter,
		exec:     exec,
		strategy: &IPAddrStrategy{Interface: opts.IPInterface},
		opts:     opts,
		logger:   common.ComponentLogger("lxc-driver"),
	}
}

// SetAddressStrategy 替换地址解析策略
func (d *Driver) SetAddressStrategy(s AddressStrategy) {
	d.strategy = s
}

// Name 容器名
func (d *Driver) Name() string {
	return d.name
}

// Customizations 返回累积配置项的副本
func (d *Driver) Customizations() lxc.Customizations {
	return slices.Clone(d.customizations)
}

// Validate 检查已设置的容器名是否存在于 lxc-ls 列表中
func (d *Driver) Validate(ctx context.Context) error {
	if d.name == "" {
		return nil
	}
	names, err := d.adapter.List(ctx)
	if err != nil {
		return err
	}
	if !slices.Contains(names, d.name) {
		return common.NewNotFoundError("validate", d.name)
	}
	return nil
}

// Create 使用模板创建容器，name 为空时自动生成
func (d *Driver) Create(ctx context.Context, name, templatePath string, options map[string]string) error {
	if name == "" {
		name = d.generateName()
	}
	d.name = name
	d.adapter.SetName(name)

	d.logger.Info("Creating container",
		zap.String("name", name),
		zap.String("template", templatePath))

	return d.withStagedTemplate(ctx, templatePath, func(templateName string) error {
		return d.adapter.Create(ctx, templateName, d.opts.ConfigFile, options)
	})
}

// ShareFolders 为每个共享目录准备 guest 端目录并累积绑定挂载配置，不会启动或重启容器
func (d *Driver) ShareFolders(ctx context.Context, folders []Folder) error {
	if len(folders) == 0 {
		return nil
	}
	rootfs, err := d.RootfsPath()
	if err != nil {
		return err
	}

	for _, folder := range folders {
		guestPath := guestPathUnder(rootfs, folder.GuestPath)

		if info, statErr := os.Stat(guestPath); statErr != nil || !info.IsDir() {
			d.logger.Debug("Creating shared folder guest path", zap.String("path", guestPath))
			_, mkErr := d.exec.Execute(ctx, executor.Command{
				Name:       "mkdir",
				Args:       []string{"-p", guestPath},
				Privileged: true,
			})
			if mkErr != nil {
				if executor.IsPermissionDenied(mkErr) {
					return common.NewSharedFolderError(guestPath, mkErr)
				}
				return mkErr
			}
		}

		d.customizations.Add(lxc.BindMount(folder.HostPath, guestPath))
	}
	return nil
}

// Start 启动容器：调用方配置在前，累积配置在后
func (d *Driver) Start(ctx context.Context, customizations lxc.Customizations) error {
	d.logger.Info("Starting container", zap.String("name", d.name))

	all := customizations.Merge(d.customizations)
	var extra []string
	if logFile := d.startLogFile(); logFile != "" {
		extra = []string{"-o", logFile, "-l", "DEBUG"}
	}

	return d.transitionTo(ctx, lxc.StateRunning, func() error {
		return d.adapter.Start(ctx, all, extra)
	})
}

// Halt 请求容器正常关闭并确认进入 stopped。
// 超时后不会升级为强制停止。
func (d *Driver) Halt(ctx context.Context) error {
	d.logger.Info("Stopping container", zap.String("name", d.name))
	return d.transitionTo(ctx, lxc.StateStopped, func() error {
		return d.adapter.Shutdown(ctx)
	})
}

// Destroy 删除容器
func (d *Driver) Destroy(ctx context.Context) error {
	d.logger.Info("Destroying container", zap.String("name", d.name))
	return d.adapter.Destroy(ctx)
}

// State 返回当前状态；未设置容器名时 ok 为 false
func (d *Driver) State(ctx context.Context) (lxc.State, bool, error) {
	if d.name == "" {
		return "", false, nil
	}
	state, err := d.adapter.State(ctx)
	if err != nil {
		return "", true, err
	}
	return state, true, nil
}

// transitionTo 执行动作后等待并确认目标状态
func (d *Driver) transitionTo(ctx context.Context, target lxc.State, action func() error) error {
	if err := action(); err != nil {
		return err
	}
	if err := d.adapter.Wait(ctx, target, d.opts.WaitTimeout); err != nil {
		return err
	}
	state, err := d.adapter.State(ctx)
	if err != nil {
		return err
	}
	if state != target {
		return &common.TransitionError{Container: d.name, Want: target.String(), Got: state.String()}
	}
	return nil
}

func (d *Driver) startLogFile() string {
	if logFile := os.Getenv(StartLogFileEnv); logFile != "" {
		return logFile
	}
	return d.opts.StartLogFile
}

func (d *Driver) generateName() string {
	return fmt.Sprintf("%s-%s", d.opts.NamePrefix, uuid.NewString()[:8])
}
