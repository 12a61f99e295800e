package scan

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"
)

var (
	// ErrScanLockHeld 已有扫描在运行
	ErrScanLockHeld = errors.New("scan lock is held by another run")

	// ErrUnsupportedFormat 没有解析器支持该mime类型
	ErrUnsupportedFormat = errors.New("unsupported document format")
)

// TransientError 网络、限流等可重试错误
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// PermanentError 格式不支持、内容非法等不可重试错误
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}

// RetryPolicy 所有外部调用边界共用的有界重试策略
// 仅重试Transient错误，每次尝试受单独的超时约束
type RetryPolicy struct {
	Attempts uint
	Delay    time.Duration
	Timeout  time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts: 3,
		Delay:    time.Second,
		Timeout:  120 * time.Second,
	}
}

func (p RetryPolicy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts == 0 {
		attempts = 1
	}

	return retry.Do(
		func() error {
			callCtx := ctx
			if p.Timeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(ctx, p.Timeout)
				defer cancel()
			}
			return fn(callCtx)
		},
		retry.Attempts(attempts),
		retry.Delay(p.Delay),
		retry.DelayType(retry.BackOffDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.RetryIf(IsTransient),
		retry.OnRetry(func(n uint, err error) {
			slog.Warn("Retrying external call",
				"op", op,
				"attempt", n+1,
				"err", err,
			)
		}),
	)
}
