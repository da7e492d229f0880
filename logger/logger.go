// Package logger wraps a process-wide zap logger.
package logger

import (
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu  sync.RWMutex
	log = zap.NewNop()

	sentryEnabled bool
)

// Init builds the global logger. Production mode emits JSON, otherwise a
// human-readable console encoder is used.
func Init(level string, production bool) error {
	var cfg zap.Config
	if production {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	built, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return err
	}

	Set(built)
	return nil
}

// Set replaces the global logger (primarily for testing)
func Set(l *zap.Logger) {
	mu.Lock()
	log = l
	mu.Unlock()
}

// L returns the global logger
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

// EnableSentry makes Report forward errors to Sentry.
func EnableSentry(dsn, environment string) error {
	if dsn == "" {
		return nil
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		AttachStacktrace: true,
	}); err != nil {
		return err
	}
	mu.Lock()
	sentryEnabled = true
	mu.Unlock()
	return nil
}

// Flush drains buffered log entries and pending Sentry events.
func Flush() {
	_ = L().Sync()
	mu.RLock()
	enabled := sentryEnabled
	mu.RUnlock()
	if enabled {
		sentry.Flush(2 * time.Second)
	}
}

func Debug(msg string, fields ...zap.Field) { L().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { L().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { L().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { L().Error(msg, fields...) }

// Report logs err at error level and sends it to Sentry when enabled.
func Report(msg string, err error, fields ...zap.Field) {
	L().Error(msg, append(fields, zap.Error(err))...)

	mu.RLock()
	enabled := sentryEnabled
	mu.RUnlock()
	if enabled {
		sentry.WithScope(func(scope *sentry.Scope) {
			scope.SetTag("operation", msg)
			sentry.CaptureException(err)
		})
	}
}

// Middleware logs one line per request.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch status := c.Writer.Status(); {
		case status >= 500:
			L().Error("request", fields...)
		case status >= 400:
			L().Warn("request", fields...)
		default:
			L().Info("request", fields...)
		}
	}
}
