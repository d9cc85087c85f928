package core

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/RecoveryAshes/govpolicy/internal/utils"
)

// RetryPolicy 显式的有界重试策略
// MaxAttempts 为总尝试次数 (含首次), 每次失败后等待固定的 Delay
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// DefaultRetryPolicy 3次尝试, 间隔2秒
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Delay: 2 * time.Second}
}

// NoRetry 只尝试一次
func NoRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 1}
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

func (p RetryPolicy) backoff() retry.Backoff {
	delay := p.Delay
	if delay <= 0 {
		delay = time.Nanosecond
	}
	return retry.WithMaxRetries(uint64(p.attempts()-1), retry.NewConstant(delay))
}

// retryableError 可重试错误
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// Retryable 标记错误为可重试
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &retryableError{err: err}
}

// Do 按策略执行fn
// fn 返回 Retryable 包装的错误时重试, 其余错误立即返回
// 返回实际尝试次数与最后一次的错误 (已去掉可重试标记)
func (p RetryPolicy) Do(ctx context.Context, name string, fn func(ctx context.Context) error) (int, error) {
	attempts := 0
	max := p.attempts()

	err := retry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		attempts++
		err := fn(ctx)
		if err == nil {
			return nil
		}

		var re *retryableError
		if !errors.As(err, &re) {
			return err
		}
		if attempts < max {
			utils.Warnf("%s 失败 (第 %d/%d 次), %v 后重试: %v", name, attempts, max, p.Delay, re.err)
		}
		return retry.RetryableError(re.err)
	})
	return attempts, err
}
