// Package retry 提供固定次数、固定间隔的重试组合器
package retry

import (
	"context"
	"time"
)

// Policy 重试策略：固定次数，固定间隔，无指数退避，无抖动
type Policy struct {
	Attempts int
	Delay    time.Duration
}

// Classifier 判断一次失败是否可重试
type Classifier func(err error) bool

// Sleeper 等待函数，返回 ctx 的错误表示等待被取消
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep 默认的等待实现
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Do 执行 op 直到成功、遇到不可重试的错误或次数耗尽，返回结果、实际尝试次数与最后一次错误
func Do[T any](ctx context.Context, policy Policy, sleep Sleeper, retryable Classifier, op func(ctx context.Context, attempt int) (T, error)) (T, int, error) {
	if sleep == nil {
		sleep = Sleep
	}
	attempts := policy.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var (
		zero    T
		lastErr error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		value, err := op(ctx, attempt)
		if err == nil {
			return value, attempt, nil
		}
		lastErr = err
		if retryable != nil && !retryable(err) {
			return zero, attempt, err
		}
		if attempt == attempts {
			break
		}
		if sleepErr := sleep(ctx, policy.Delay); sleepErr != nil {
			return zero, attempt, lastErr
		}
	}
	return zero, attempts, lastErr
}
