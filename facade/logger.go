// File: facade/logger.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package facade

import (
	"go.uber.org/zap"

	"github.com/momentics/hioload-ftp/control"
)

// NewLogger builds the root logger: JSON production output, or the
// console development encoder when lc.Development is set.
func NewLogger(lc control.LogConfig) (*zap.Logger, error) {
	lvl, err := lc.ZapLevel()
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if lc.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}
