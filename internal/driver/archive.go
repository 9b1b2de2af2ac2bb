package driver

import (
	"archive/tar"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"lxcdriver/internal/common"
	"lxcdriver/internal/executor"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"
)

const rootfsArchiveName = "rootfs.tar.gz"

// CompressRootfs 将 rootfs 打包为 gzip 压缩的 tar 文件并交给调用用户，返回文件路径。
// TODO: 目标文件已存在时直接覆盖，归档过程不是原子的。
func (d *Driver) CompressRootfs(ctx context.Context) (string, error) {
	rootfs, err := d.RootfsPath()
	if err != nil {
		return "", err
	}

	dir, err := os.MkdirTemp(d.opts.TempDir, "lxc-rootfs-")
	if err != nil {
		return "", fmt.Errorf("failed to create temp directory: %w", err)
	}
	target := filepath.Join(dir, rootfsArchiveName)

	d.logger.Info("Compressing rootfs",
		zap.String("rootfs", rootfs),
		zap.String("target", target))

	if _, err := d.exec.Execute(ctx, executor.Command{
		Name:       "tar",
		Args:       []string{"--numeric-owner", "-czf", target, "-C", filepath.Dir(rootfs), filepath.Base(rootfs)},
		Privileged: true,
	}); err != nil {
		return "", err
	}

	uid, gid := d.opts.InvokingUser()
	d.logger.Info("Changing rootfs tarball owner", zap.Int("uid", uid), zap.Int("gid", gid))
	if _, err := d.exec.Execute(ctx, executor.Command{
		Name:       "chown",
		Args:       []string{fmt.Sprintf("%d:%d", uid, gid), target},
		Privileged: true,
	}); err != nil {
		return "", err
	}

	if err := verifyArchive(target); err != nil {
		return "", common.NewExecutionError("compress_rootfs", "rootfs archive is not a readable tar.gz", err)
	}
	return target, nil
}

// verifyArchive 确认文件是合法 gzip 且至少包含一个 tar 条目
func verifyArchive(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return err
	}
	defer zr.Close()

	if _, err := tar.NewReader(zr).Next(); err != nil {
		return fmt.Errorf("read first tar entry: %w", err)
	}
	return nil
}
