package manager

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"lxcdriver/internal/common"
	"lxcdriver/internal/driver"
	"lxcdriver/internal/events"
	"lxcdriver/internal/executor"
	"lxcdriver/internal/lxc"

	"go.uber.org/zap"
)

// AdapterFactory 为指定容器名创建命令适配器
type AdapterFactory func(name string) lxc.Adapter

// Manager 容器管理器，同名操作共享一个驱动实例并串行执行；
// 只有累积了共享目录配置项的驱动会在操作之间保留
type Manager struct {
	mu      sync.Mutex
	entries map[string]*entry

	exec       executor.Executor
	newAdapter AdapterFactory
	options    driver.Options
	publisher  events.Publisher
	metrics    *common.Metrics
	logger     *zap.Logger
}

type entry struct {
	mu     sync.Mutex
	driver *driver.Driver
	// refs 由 Manager.mu 保护，记录正在使用该条目的调用数
	refs int
}

// Metrics 返回管理器使用的指标
func (m *Manager) Metrics() *common.Metrics {
	return m.metrics
}

func (m *Manager) newDriver(name string) *driver.Driver {
	return driver.New(m.newAdapter(name), m.exec, name, m.options)
}

// acquire 获取或创建容器对应的条目并增加引用计数
func (m *Manager) acquire(name string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[name]
	if !ok {
		e = &entry{driver: m.newDriver(name)}
		m.entries[name] = e
	}
	e.refs++
	return e
}

// release 释放引用，drop 为 true 且无其他调用者时移除条目
func (m *Manager) release(name string, e *entry, drop bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.refs--
	if drop && e.refs == 0 && m.entries[name] == e {
		delete(m.entries, name)
	}
}

// retainable 条目只在驱动持有共享目录配置项且容器仍存在时保留
func retainable(d *driver.Driver, op string, err error) bool {
	if errors.Is(err, common.ErrContainerNotFound) {
		return false
	}
	if op == "destroy" && err == nil {
		return false
	}
	return d.Customizations().Len() > 0
}

// withDriver 在容器锁内执行操作并记录指标，validate 为 true 时先确认容器存在
func (m *Manager) withDriver(ctx context.Context, name, op string, validate bool, fn func(d *driver.Driver) error) error {
	e := m.acquire(name)
	e.mu.Lock()

	start := time.Now()
	err := func() error {
		if validate {
			if err := e.driver.Validate(ctx); err != nil {
				return err
			}
		}
		return fn(e.driver)
	}()
	m.metrics.ObserveOperation(op, start, err)
	keep := retainable(e.driver, op, err)
	e.mu.Unlock()
	m.release(name, e, !keep)

	if err != nil {
		m.logger.Warn("Container operation failed",
			zap.String("container", name),
			zap.String("operation", op),
			zap.Error(err))
	}
	return err
}

func (m *Manager) publish(ctx context.Context, name string, t events.Type, details map[string]string) {
	if err := m.publisher.Publish(ctx, events.NewEvent(name, t, details)); err != nil {
		m.logger.Warn("Failed to publish lifecycle event",
			zap.String("container", name),
			zap.String("type", string(t)),
			zap.Error(err))
	}
}

// List 返回 lxc-ls 列出的容器名（已排序）
func (m *Manager) List(ctx context.Context) ([]string, error) {
	start := time.Now()
	names, err := m.newAdapter("").List(ctx)
	m.metrics.ObserveOperation("list", start, err)
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	m.metrics.SetKnownContainers(len(names))
	return names, nil
}

// Create 创建容器并返回最终使用的容器名
func (m *Manager) Create(ctx context.Context, name, templatePath string, options map[string]string) (string, error) {
	var err error
	if name == "" {
		// 名称由驱动生成，生成前不存在可供串行化的条目
		start := time.Now()
		d := m.newDriver("")
		err = d.Create(ctx, "", templatePath, options)
		name = d.Name()
		m.metrics.ObserveOperation("create", start, err)
		if err != nil {
			m.logger.Warn("Container create failed", zap.String("container", name), zap.Error(err))
		}
	} else {
		err = m.withDriver(ctx, name, "create", false, func(d *driver.Driver) error {
			return d.Create(ctx, name, templatePath, options)
		})
	}
	if err != nil {
		return "", err
	}

	m.logger.Info("Container created", zap.String("container", name))
	m.publish(ctx, name, events.TypeCreated, map[string]string{"template": templatePath})
	return name, nil
}

// ShareFolders 为容器准备共享目录，下次启动时生效
func (m *Manager) ShareFolders(ctx context.Context, name string, folders []driver.Folder) error {
	err := m.withDriver(ctx, name, "share_folders", true, func(d *driver.Driver) error {
		return d.ShareFolders(ctx, folders)
	})
	if err == nil {
		m.publish(ctx, name, events.TypeFoldersShared, nil)
	}
	return err
}

// Start 启动容器
func (m *Manager) Start(ctx context.Context, name string, customizations lxc.Customizations) error {
	err := m.withDriver(ctx, name, "start", true, func(d *driver.Driver) error {
		return d.Start(ctx, customizations)
	})
	if err == nil {
		m.publish(ctx, name, events.TypeStarted, nil)
	}
	return err
}

// Halt 停止容器
func (m *Manager) Halt(ctx context.Context, name string) error {
	err := m.withDriver(ctx, name, "halt", true, func(d *driver.Driver) error {
		return d.Halt(ctx)
	})
	if err == nil {
		m.publish(ctx, name, events.TypeHalted, nil)
	}
	return err
}

// Destroy 删除容器并丢弃其驱动状态
func (m *Manager) Destroy(ctx context.Context, name string) error {
	err := m.withDriver(ctx, name, "destroy", true, func(d *driver.Driver) error {
		return d.Destroy(ctx)
	})
	if err != nil {
		return err
	}
	m.publish(ctx, name, events.TypeDestroyed, nil)
	return nil
}

// State 查询容器状态
func (m *Manager) State(ctx context.Context, name string) (lxc.State, error) {
	var state lxc.State
	err := m.withDriver(ctx, name, "state", false, func(d *driver.Driver) error {
		s, _, err := d.State(ctx)
		state = s
		return err
	})
	return state, err
}

// AssignedIP 解析容器地址
func (m *Manager) AssignedIP(ctx context.Context, name string) (string, error) {
	var ip string
	err := m.withDriver(ctx, name, "assigned_ip", true, func(d *driver.Driver) error {
		var err error
		ip, err = d.AssignedIP(ctx)
		return err
	})
	return ip, err
}

// CompressRootfs 归档容器 rootfs 并返回归档路径
func (m *Manager) CompressRootfs(ctx context.Context, name string) (string, error) {
	var path string
	err := m.withDriver(ctx, name, "compress_rootfs", true, func(d *driver.Driver) error {
		var err error
		path, err = d.CompressRootfs(ctx)
		return err
	})
	if err == nil {
		m.publish(ctx, name, events.TypeRootfsCompressed, map[string]string{"path": path})
	}
	return path, err
}

// Version 返回 lxc 工具版本
func (m *Manager) Version(ctx context.Context) (string, error) {
	return m.newAdapter("").Version(ctx)
}
