package driver

import (
	"bufio"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"lxcdriver/internal/common"
)

// lxc 2.x 及之前使用 lxc.rootfs，3.x 起改为 lxc.rootfs.path，可能带 "dir:" 前缀
var rootfsLinePattern = regexp.MustCompile(`^lxc\.rootfs(?:\.path)?\s*=\s*(.+)$`)

// BasePath 容器目录
func (d *Driver) BasePath() string {
	return filepath.Join(d.opts.ContainersRoot, d.name)
}

// ConfigPath 容器配置文件路径
func (d *Driver) ConfigPath() string {
	return filepath.Join(d.BasePath(), "config")
}

// RootfsPath 每次调用都重新解析配置文件中的第一条 rootfs 配置
func (d *Driver) RootfsPath() (string, error) {
	configPath := d.ConfigPath()
	f, err := os.Open(configPath)
	if err != nil {
		return "", common.NewConfigurationError("rootfs_path", configPath, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		m := rootfsLinePattern.FindStringSubmatch(strings.TrimRight(scanner.Text(), " \t\r"))
		if m == nil {
			continue
		}
		return strings.TrimPrefix(m[1], "dir:"), nil
	}
	if err := scanner.Err(); err != nil {
		return "", common.NewConfigurationError("rootfs_path", configPath, err)
	}
	return "", common.NewConfigurationError("rootfs_path", configPath, common.ErrRootfsNotConfigured)
}

// TemplatesPath 按顺序探测模板目录，第一次成功后缓存在当前实例
func (d *Driver) TemplatesPath() (string, error) {
	if d.templatesPath != "" {
		return d.templatesPath, nil
	}
	for _, candidate := range d.opts.TemplatesPaths {
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			d.templatesPath = candidate
			return candidate, nil
		}
	}
	return "", common.NewConfigurationError("templates_path",
		strings.Join(d.opts.TemplatesPaths, ", "), common.ErrTemplatesDirMissing)
}

// guestPathUnder 将 guest 路径（去掉前导分隔符）拼接到 rootfs 下
func guestPathUnder(rootfs, guestPath string) string {
	return filepath.Join(rootfs, strings.TrimLeft(guestPath, string(filepath.Separator)))
}
