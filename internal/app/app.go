// Package app hosts an application body behind the single-instance
// election, the way a desktop application base class would: startup runs
// only in the primary instance, and the election is always released on exit.
package app

import (
	"context"

	"go.uber.org/zap"

	"github.com/it-atelier-gn/single-instance/internal/instance"
)

type SingleInstanceApp struct {
	name   string
	coord  *instance.Coordinator
	logger *zap.Logger
}

func New(name string, coord *instance.Coordinator, logger *zap.Logger) *SingleInstanceApp {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SingleInstanceApp{name: name, coord: coord, logger: logger}
}

// Run elects and, when this process is primary, runs body until it returns.
// A secondary has already relayed its command line when Run returns; it
// reports primary=false and a nil error so the caller can exit quietly.
// The coordinator is closed on every path.
func (a *SingleInstanceApp) Run(ctx context.Context, body func(context.Context) error) (primary bool, err error) {
	defer a.coord.Close()

	primary, err = a.coord.InitializeAsFirstInstance(a.name)
	if err != nil {
		return false, err
	}
	if !primary {
		a.logger.Info("another instance is running, arguments handed over", zap.String("name", a.name))
		return false, nil
	}
	return true, body(ctx)
}
