package main

import (
	"github.com/septivank/crm-topology-worker/internal/config"
	"github.com/septivank/crm-topology-worker/internal/logging"
	"go.uber.org/zap"
)

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.NewLogger(cfg.ServiceName, cfg.LogLevel)
}
