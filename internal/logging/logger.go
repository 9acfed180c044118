package logging

import (
	"fmt"

	"go.uber.org/zap"
)

// NewLogger builds the production JSON logger tagged with the service name.
// level accepts zap level names; empty means info.
func NewLogger(serviceName, level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if level != "" {
		lvl, err := zap.ParseAtomicLevel(level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
		cfg.Level = lvl
	}
	cfg.InitialFields = map[string]interface{}{
		"service": serviceName,
	}
	return cfg.Build()
}

// WithRun scopes a logger to one sync run
func WithRun(logger *zap.Logger, runID, trigger string) *zap.Logger {
	return logger.With(zap.String("run_id", runID), zap.String("trigger", trigger))
}

// WithRequestID tags a logger with the id of an on-demand sync request
func WithRequestID(logger *zap.Logger, requestID string) *zap.Logger {
	return logger.With(zap.String("request_id", requestID))
}
