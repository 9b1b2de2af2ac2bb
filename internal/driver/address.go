package driver

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"regexp"

	"lxcdriver/internal/common"
	"lxcdriver/internal/executor"
	"lxcdriver/internal/lxc"
	"lxcdriver/internal/retry"

	"go.uber.org/zap"
)

var inetLinePattern = regexp.MustCompile(`(?m)^\s*inet ([0-9]{1,3}(?:\.[0-9]{1,3}){3})/[0-9]{1,2}\b`)

// AddressStrategy 地址解析策略
type AddressStrategy interface {
	// Resolve 返回容器的 IPv4 地址，尚未分配时返回 common.ErrNoAddress
	Resolve(ctx context.Context, adapter lxc.Adapter) (string, error)
}

// IPAddrStrategy 在容器网络命名空间中执行 ip addr show 并解析输出
type IPAddrStrategy struct {
	Interface string
}

// Resolve 实现 AddressStrategy
func (s *IPAddrStrategy) Resolve(ctx context.Context, adapter lxc.Adapter) (string, error) {
	out, err := adapter.Attach(ctx, lxc.AttachOptions{Namespaces: []string{"network"}},
		"/sbin/ip", "-4", "addr", "show", "scope", "global", s.Interface)
	if err != nil {
		return "", err
	}
	ip, ok := ParseIPv4(out)
	if !ok {
		return "", common.ErrNoAddress
	}
	return ip, nil
}

// ParseIPv4 从 ip addr 输出中提取第一个 "inet a.b.c.d/n" 地址
func ParseIPv4(output string) (string, bool) {
	for _, m := range inetLinePattern.FindAllStringSubmatch(output, -1) {
		addr, err := netip.ParseAddr(m[1])
		if err == nil && addr.Is4() {
			return addr.String(), true
		}
	}
	return "", false
}

// isRetryableAddressError 执行失败与尚未分配地址均可重试
func isRetryableAddressError(err error) bool {
	var execErr *executor.ExecuteError
	return errors.As(err, &execErr) || errors.Is(err, common.ErrNoAddress)
}

// AssignedIP 解析容器 IPv4 地址，按固定次数与间隔重试
func (d *Driver) AssignedIP(ctx context.Context) (string, error) {
	ip, attempts, err := retry.Do(ctx, d.opts.IPRetry, d.opts.Sleep, isRetryableAddressError,
		func(ctx context.Context, attempt int) (string, error) {
			ip, err := d.strategy.Resolve(ctx, d.adapter)
			if err != nil {
				d.logger.Debug("Container address not available yet",
					zap.String("name", d.name),
					zap.Int("attempt", attempt),
					zap.Error(err))
			}
			return ip, err
		})
	if d.opts.OnIPAttempts != nil {
		d.opts.OnIPAttempts(attempts)
	}
	if err != nil {
		return "", fmt.Errorf("resolve address of %s after %d attempts: %w", d.name, attempts, err)
	}
	return ip, nil
}
