package common

import (
	"errors"
	"fmt"
)

// 定义常见错误类型
var (
	ErrContainerNotFound        = errors.New("container not found")
	ErrSharedFolderCreateFailed = errors.New("shared folder create failed")
	ErrTemplatesDirMissing      = errors.New("lxc templates directory missing")
	ErrRootfsNotConfigured      = errors.New("rootfs not configured")
	ErrTransitionFailed         = errors.New("container state transition failed")
	ErrNoAddress                = errors.New("no ip address assigned yet")
	ErrNameRequired             = errors.New("container name not set")
	ErrInvalidConfiguration     = errors.New("invalid configuration")
)

// ErrorKind 错误分类
type ErrorKind string

const (
	KindNotFound      ErrorKind = "NotFound"
	KindExecution     ErrorKind = "Execution"
	KindPermission    ErrorKind = "Permission"
	KindConfiguration ErrorKind = "Configuration"
)

// DriverError 驱动错误类型
type DriverError struct {
	Kind    ErrorKind `json:"kind"`
	Op      string    `json:"op"`
	Path    string    `json:"path,omitempty"`
	Message string    `json:"message"`
	Cause   error     `json:"-"`
}

func (e *DriverError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Message)
	if e.Path != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Path)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *DriverError) Unwrap() error {
	return e.Cause
}

// NewNotFoundError 创建容器不存在错误
func NewNotFoundError(op, name string) *DriverError {
	return &DriverError{
		Kind:    KindNotFound,
		Op:      op,
		Message: fmt.Sprintf("container %q is not known to lxc", name),
		Cause:   ErrContainerNotFound,
	}
}

// NewSharedFolderError 创建共享目录创建失败错误
func NewSharedFolderError(path string, cause error) *DriverError {
	return &DriverError{
		Kind:    KindPermission,
		Op:      "share_folders",
		Path:    path,
		Message: "permission denied creating guest directory",
		Cause:   errors.Join(ErrSharedFolderCreateFailed, cause),
	}
}

// NewConfigurationError 创建配置错误
func NewConfigurationError(op, path string, cause error) *DriverError {
	return &DriverError{
		Kind:    KindConfiguration,
		Op:      op,
		Path:    path,
		Message: "required path could not be resolved",
		Cause:   cause,
	}
}

// NewExecutionError 创建执行错误
func NewExecutionError(op, message string, cause error) *DriverError {
	return &DriverError{
		Kind:    KindExecution,
		Op:      op,
		Message: message,
		Cause:   cause,
	}
}

// KindOf 返回错误链中第一个 DriverError 的分类
func KindOf(err error) (ErrorKind, bool) {
	var de *DriverError
	if errors.As(err, &de) {
		return de.Kind, true
	}
	return "", false
}

// TransitionError 状态迁移错误
type TransitionError struct {
	Container string
	Want      string
	Got       string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("container %s: expected state %s, got %s", e.Container, e.Want, e.Got)
}

func (e *TransitionError) Unwrap() error {
	return ErrTransitionFailed
}

// ValidationError 验证错误
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field '%s': %s", e.Field, e.Message)
}

// NewValidationError 创建验证错误
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}
