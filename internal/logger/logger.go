package logger

import (
	"context"
	"fmt"
	"time"

	"github.com/fluent/fluent-logger-golang/fluent"
	"github.com/revuo/revuo/internal/config"
	"github.com/revuo/revuo/internal/types"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.SugaredLogger and optionally mirrors entries to Fluentd.
type Logger struct {
	*zap.SugaredLogger
	fluentdLogger *fluent.Fluent
	serviceName   string
}

// L is the process-wide logger for scripts and init paths. Everything else gets a *Logger
// injected.
var L *Logger

// NewLogger creates and returns a new Logger instance
func NewLogger(cfg *config.Configuration) (*Logger, error) {
	zapConfig := zap.NewProductionConfig()
	if cfg.Logging.Level == types.LogLevelDebug {
		zapConfig = zap.NewDevelopmentConfig()
	}

	zapConfig.EncoderConfig.TimeKey = "timestamp"
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapConfig.DisableStacktrace = true

	zapLogger, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}

	var fluentdLogger *fluent.Fluent
	if cfg.Logging.FluentdEnabled {
		if cfg.Logging.FluentdHost == "" || cfg.Logging.FluentdPort <= 0 {
			zapLogger.Sugar().Warn("fluentd is enabled but host/port not configured properly")
		} else {
			fluentdLogger, err = fluent.New(fluent.Config{
				FluentHost:   cfg.Logging.FluentdHost,
				FluentPort:   cfg.Logging.FluentdPort,
				Async:        true,
				BufferLimit:  8 * 1024 * 1024,
				WriteTimeout: 3 * time.Second,
				RetryWait:    500,
				MaxRetry:     5,
			})
			if err != nil {
				zapLogger.Sugar().Warnf("failed to initialize fluentd logger: %v, falling back to stdout only", err)
				fluentdLogger = nil
			}
		}
	}

	return &Logger{
		SugaredLogger: zapLogger.Sugar(),
		fluentdLogger: fluentdLogger,
		serviceName:   "revuo-" + string(cfg.Deployment.Mode),
	}, nil
}

func init() {
	L, _ = NewLogger(config.GetDefaultConfig())
}

func GetLogger() *Logger {
	if L == nil {
		L, _ = NewLogger(config.GetDefaultConfig())
	}
	return L
}

// NewNoopLogger discards everything. Used by tests that do not assert on logs.
func NewNoopLogger() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

func (l *Logger) WithContext(ctx context.Context) *Logger {
	fields := []interface{}{}
	if requestID := types.GetRequestID(ctx); requestID != "" {
		fields = append(fields, "request_id", requestID)
	}
	if eventID := types.GetEventID(ctx); eventID != "" {
		fields = append(fields, "event_id", eventID)
	}
	if len(fields) == 0 {
		return l
	}
	return &Logger{
		SugaredLogger: l.SugaredLogger.With(fields...),
		fluentdLogger: l.fluentdLogger,
		serviceName:   l.serviceName,
	}
}

// Sync flushes zap buffers and closes the fluentd connection.
func (l *Logger) Sync() error {
	if l.fluentdLogger != nil {
		_ = l.fluentdLogger.Close()
	}
	return l.SugaredLogger.Sync()
}

func (l *Logger) sendToFluentd(level string, msg string, fields map[string]interface{}) {
	if l.fluentdLogger == nil {
		return
	}

	logData := map[string]interface{}{
		"level":     level,
		"message":   msg,
		"service":   l.serviceName,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range fields {
		logData[k] = v
	}

	if err := l.fluentdLogger.Post("app.logs", logData); err != nil {
		l.SugaredLogger.Warnf("failed to send log to fluentd: %v", err)
	}
}

func (l *Logger) Debugf(template string, args ...interface{}) {
	l.SugaredLogger.Debugf(template, args...)
	l.sendToFluentd("debug", fmt.Sprintf(template, args...), nil)
}

func (l *Logger) Infof(template string, args ...interface{}) {
	l.SugaredLogger.Infof(template, args...)
	l.sendToFluentd("info", fmt.Sprintf(template, args...), nil)
}

func (l *Logger) Warnf(template string, args ...interface{}) {
	l.SugaredLogger.Warnf(template, args...)
	l.sendToFluentd("warning", fmt.Sprintf(template, args...), nil)
}

func (l *Logger) Errorf(template string, args ...interface{}) {
	l.SugaredLogger.Errorf(template, args...)
	l.sendToFluentd("error", fmt.Sprintf(template, args...), nil)
}

func (l *Logger) Fatalf(template string, args ...interface{}) {
	l.sendToFluentd("fatal", fmt.Sprintf(template, args...), nil)
	l.SugaredLogger.Fatalf(template, args...)
}

func (l *Logger) Debugw(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Debugw(msg, keysAndValues...)
	l.sendToFluentd("debug", msg, keysAndValuesToMap(keysAndValues...))
}

func (l *Logger) Infow(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Infow(msg, keysAndValues...)
	l.sendToFluentd("info", msg, keysAndValuesToMap(keysAndValues...))
}

func (l *Logger) Warnw(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Warnw(msg, keysAndValues...)
	l.sendToFluentd("warning", msg, keysAndValuesToMap(keysAndValues...))
}

func (l *Logger) Errorw(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Errorw(msg, keysAndValues...)
	l.sendToFluentd("error", msg, keysAndValuesToMap(keysAndValues...))
}

func keysAndValuesToMap(keysAndValues ...interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		if key, ok := keysAndValues[i].(string); ok {
			fields[key] = keysAndValues[i+1]
		}
	}
	return fields
}

// ginLogger adapts Logger to gin's io.Writer based default writer.
type ginLogger struct {
	logger *Logger
}

func (l *Logger) GetGinLogger() *ginLogger {
	return &ginLogger{logger: l}
}

func (g *ginLogger) Write(p []byte) (n int, err error) {
	g.logger.Info(string(p))
	return len(p), nil
}

// stripeLeveledLogger adapts Logger to stripe.LeveledLoggerInterface.
type stripeLeveledLogger struct {
	logger *Logger
}

func (l *Logger) GetStripeLogger() *stripeLeveledLogger {
	return &stripeLeveledLogger{logger: l}
}

func (s *stripeLeveledLogger) Debugf(format string, v ...interface{}) {
	s.logger.SugaredLogger.Debugf(format, v...)
}

func (s *stripeLeveledLogger) Infof(format string, v ...interface{}) {
	s.logger.SugaredLogger.Debugf(format, v...)
}

func (s *stripeLeveledLogger) Warnf(format string, v ...interface{}) {
	s.logger.Warnf(format, v...)
}

func (s *stripeLeveledLogger) Errorf(format string, v ...interface{}) {
	s.logger.Errorf(format, v...)
}
