package executor

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// IsPermissionDenied 判断错误是否由权限不足引起
func IsPermissionDenied(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, unix.EACCES) || errors.Is(err, unix.EPERM) || errors.Is(err, os.ErrPermission) {
		return true
	}
	var execErr *ExecuteError
	if errors.As(err, &execErr) {
		return strings.Contains(execErr.Stderr, "Permission denied") ||
			strings.Contains(execErr.Stderr, "Operation not permitted")
	}
	return false
}

// InvokingUser 返回发起调用的非特权用户的 uid/gid，sudo 下使用 SUDO_UID/SUDO_GID
func InvokingUser() (uid, gid int) {
	uid, gid = unix.Getuid(), unix.Getgid()
	if v, err := strconv.Atoi(os.Getenv("SUDO_UID")); err == nil {
		uid = v
	}
	if v, err := strconv.Atoi(os.Getenv("SUDO_GID")); err == nil {
		gid = v
	}
	return uid, gid
}
