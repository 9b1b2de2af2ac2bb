package driver

import (
	"context"
	"errors"
	"path/filepath"

	"lxcdriver/internal/executor"

	"go.uber.org/zap"
)

// stagedTemplateName 模板在模板目录中的名称（lxc-create --template 使用）
func (d *Driver) stagedTemplateName() string {
	return d.opts.TemplatePrefix + d.name
}

// withStagedTemplate 将模板复制到特权模板目录后调用 fn，无论成功失败都会删除临时模板
func (d *Driver) withStagedTemplate(ctx context.Context, templatePath string, fn func(templateName string) error) (err error) {
	templatesDir, err := d.TemplatesPath()
	if err != nil {
		return err
	}

	templateName := d.stagedTemplateName()
	stagedPath := filepath.Join(templatesDir, "lxc-"+templateName)

	defer func() {
		// 使用独立的 context，调用方取消后仍需清理
		_, rmErr := d.exec.Execute(context.WithoutCancel(ctx), executor.Command{
			Name:       "rm",
			Args:       []string{"-f", stagedPath},
			Privileged: true,
		})
		if rmErr != nil {
			d.logger.Warn("Failed to remove staged template",
				zap.String("path", stagedPath),
				zap.Error(rmErr))
			err = errors.Join(err, rmErr)
		}
	}()

	d.logger.Info("Copying LXC template into place",
		zap.String("source", templatePath),
		zap.String("destination", stagedPath))

	if _, err = d.exec.Execute(ctx, executor.Command{
		Name:       "cp",
		Args:       []string{templatePath, stagedPath},
		Privileged: true,
	}); err != nil {
		return err
	}

	return fn(templateName)
}
