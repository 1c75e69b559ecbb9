package core

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"
)

// ErrPanic marks errors produced from a recovered panic.
var ErrPanic = errors.New("recovered panic")

// SafeCall 安全执行 fn，捕获 panic 并转换为错误
func SafeCall[T any](ctx context.Context, logger *zap.SugaredLogger, name string, fn func(context.Context) (T, error)) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := string(debug.Stack())
			err = fmt.Errorf("%w in %s: %v", ErrPanic, name, r)

			if logger != nil {
				logger.Errorw("panic recovered",
					"component", name,
					"panic", r,
					"stack", stack,
				)
			}

			var zero T
			result = zero
		}
	}()

	return fn(ctx)
}
