// Package retry 提供带退避的重试执行器。
// 注册代理的注册与续约重连使用指数退避加抖动，
// 避免注册中心恢复瞬间被心跳风暴打垮。
package retry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// RetryCondition 判定某次失败是否继续重试
type RetryCondition interface {
	ShouldRetry(err error, attempt int) bool
}

// ConditionFunc 函数式重试条件
type ConditionFunc func(err error, attempt int) bool

func (f ConditionFunc) ShouldRetry(err error, attempt int) bool {
	return f(err, attempt)
}

// AlwaysRetry 所有错误都重试
func AlwaysRetry() RetryCondition {
	return ConditionFunc(func(err error, attempt int) bool {
		return err != nil
	})
}

// RetryIf 满足谓词的错误才重试
func RetryIf(pred func(err error) bool) RetryCondition {
	return ConditionFunc(func(err error, attempt int) bool {
		return err != nil && pred(err)
	})
}

// UnlessIs 除指定错误外都重试（errors.Is 匹配）
func UnlessIs(targets ...error) RetryCondition {
	return ConditionFunc(func(err error, attempt int) bool {
		for _, t := range targets {
			if errors.Is(err, t) {
				return false
			}
		}
		return err != nil
	})
}

// Config 重试配置
type config struct {
	maxAttempts int
	backoff     BackoffStrategy
	condition   RetryCondition
	onRetry     func(attempt int, err error)
	timeout     time.Duration
}

func defaultRetryConfig() *config {
	return &config{
		maxAttempts: 3,
		backoff:     ExponentialBackoff(time.Second),
		condition:   AlwaysRetry(),
	}
}

// Option 重试选项
type Option func(*config)

// MaxAttempts 最大尝试次数（0 表示无限重试，直到 context 取消）
func MaxAttempts(n int) Option {
	return func(c *config) {
		if n >= 0 {
			c.maxAttempts = n
		}
	}
}

// Backoff 设置退避策略
func Backoff(b BackoffStrategy) Option {
	return func(c *config) {
		if b != nil {
			c.backoff = b
		}
	}
}

// Condition 设置重试条件
func Condition(cond RetryCondition) Option {
	return func(c *config) {
		if cond != nil {
			c.condition = cond
		}
	}
}

// OnRetry 每次将要重试时回调（记日志用）
func OnRetry(f func(attempt int, err error)) Option {
	return func(c *config) {
		c.onRetry = f
	}
}

// Timeout 单次尝试的超时
func Timeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// Do 执行 operation，失败按策略重试，返回最终错误
func Do(ctx context.Context, operation func(ctx context.Context) error, opts ...Option) error {
	_, err := DoWithData(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, operation(ctx)
	}, opts...)
	return err
}

// DoWithData 执行带返回值的 operation，失败按策略重试
func DoWithData[T any](ctx context.Context, operation func(ctx context.Context) (T, error), opts ...Option) (T, error) {
	cfg := defaultRetryConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	var zero T
	var errs []error

	for attempt := 1; cfg.maxAttempts == 0 || attempt <= cfg.maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		default:
		}

		result, err := runOnce(ctx, cfg.timeout, operation)
		if err == nil {
			return result, nil
		}
		errs = append(errs, err)

		if !cfg.condition.ShouldRetry(err, attempt) {
			return zero, &AttemptsError{Errors: errs, Attempts: attempt}
		}
		if cfg.maxAttempts != 0 && attempt == cfg.maxAttempts {
			return zero, &AttemptsError{Errors: errs, Attempts: attempt}
		}

		if cfg.onRetry != nil {
			cfg.onRetry(attempt, err)
		}

		select {
		case <-time.After(cfg.backoff.Next(attempt)):
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}

	return zero, &AttemptsError{Errors: errs, Attempts: len(errs)}
}

func runOnce[T any](ctx context.Context, timeout time.Duration, operation func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return operation(ctx)
	}
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return operation(opCtx)
}

// AttemptsError 聚合全部尝试的错误
type AttemptsError struct {
	Errors   []error
	Attempts int
}

// Error 返回最后一次错误的文本
func (e *AttemptsError) Error() string {
	if len(e.Errors) == 0 {
		return "retry: no errors recorded"
	}
	return fmt.Sprintf("retry failed after %d attempts: %v", e.Attempts, e.Errors[len(e.Errors)-1])
}

// Unwrap 返回最后一次错误，errors.Is/As 得以穿透
func (e *AttemptsError) Unwrap() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e.Errors[len(e.Errors)-1]
}

// AllErrors 全部尝试错误的多行文本
func (e *AttemptsError) AllErrors() string {
	var b strings.Builder
	fmt.Fprintf(&b, "retry failed after %d attempts:", e.Attempts)
	for i, err := range e.Errors {
		fmt.Fprintf(&b, "\n  attempt %d: %v", i+1, err)
	}
	return b.String()
}
