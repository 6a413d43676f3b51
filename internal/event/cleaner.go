package event

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/logger"
)

const DefaultInvokeTimeout = 10 * time.Second

type Callable interface {
	Invoke(ctx context.Context) error
}

// CallableFunc 适配普通函数为 Callable
type CallableFunc func(ctx context.Context) error

func (f CallableFunc) Invoke(ctx context.Context) error {
	return f(ctx)
}

type Cleaner struct {
	cleaners       []Callable
	mu             sync.Mutex
	cleaning       bool
	loggerShutdown Callable
	invokeTimeout  time.Duration
}

func NewCleaner(loggerShutdown Callable) *Cleaner {
	return &Cleaner{loggerShutdown: loggerShutdown, invokeTimeout: DefaultInvokeTimeout}
}

// SetInvokeTimeout 设置单个清理函数的超时时间
func (c *Cleaner) SetInvokeTimeout(timeout time.Duration) {
	if timeout > 0 {
		c.invokeTimeout = timeout
	}
}

func (c *Cleaner) Add(callable Callable) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cleaning {
		logger.Debug("Cleaner is already shutting down, ignoring new cleaner")
		return
	}
	c.cleaners = append(c.cleaners, callable)
}

// Cleanup 按注册的逆序执行清理，最后关闭日志。只会生效一次
func (c *Cleaner) Cleanup() error {
	c.mu.Lock()
	if c.cleaning {
		c.mu.Unlock()
		return nil
	}
	c.cleaning = true
	cleanersCopy := make([]Callable, len(c.cleaners))
	copy(cleanersCopy, c.cleaners)
	c.mu.Unlock()

	logger.DebugF("Starting cleanup of %d registered functions", len(cleanersCopy))

	var errs []error
	for i := len(cleanersCopy) - 1; i >= 0; i-- {
		callable := cleanersCopy[i]
		logger.DebugF("Invoking cleaner #%d (%T)", i+1, callable)
		timeoutCtx, cancel := context.WithTimeout(context.Background(), c.invokeTimeout)
		if err := callable.Invoke(timeoutCtx); err != nil {
			logger.ErrorF("Cleaner #%d (%T) failed: %v", i+1, callable, err)
			errs = append(errs, err)
		}
		cancel()
	}

	if len(errs) > 0 {
		logger.ErrorF("%d errors occurred during cleanup", len(errs))
	} else {
		logger.Debug("All cleaners executed successfully")
	}
	logger.Info("Cleanup finished, server offline")

	if c.loggerShutdown != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := c.loggerShutdown.Invoke(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "LOGGER SHUTDOWN ERROR: %v\n", err)
		}
	}
	return errors.Join(errs...)
}
