// File: internal/service/app.go
package service

import (
	"go.uber.org/zap"

	"github.com/xkilldash9x/pilot-cli/internal/config"
)

// AppContext carries the process-wide dependencies built once at the entry point.
// It is passed explicitly instead of living in package globals.
type AppContext struct {
	Config config.Interface
	Logger *zap.Logger
}
