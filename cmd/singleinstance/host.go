package main

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/it-atelier-gn/single-instance/internal/app"
	"github.com/it-atelier-gn/single-instance/internal/instance"
)

type relayedLine struct {
	ReceivedAt time.Time `json:"received_at"`
	Args       []string  `json:"args"`
}

// forwarder hands relayed arguments from the relay goroutine to the host
// loop. Once the loop has returned, further arguments are dropped so the
// relay goroutine never blocks on a full channel.
type forwarder struct {
	ch     chan []string
	done   chan struct{}
	logger *zap.Logger
}

func newForwarder(size int, logger *zap.Logger) *forwarder {
	return &forwarder{
		ch:     make(chan []string, size),
		done:   make(chan struct{}),
		logger: logger,
	}
}

func (f *forwarder) OnExternalArgs(args []string) {
	select {
	case f.ch <- args:
	case <-f.done:
		f.logger.Debug("host loop stopped, relayed command line dropped", zap.Strings("args", args))
	}
}

// run writes every relayed command line to out as one JSON object per line
// until ctx is done or a write fails. It must be called once.
func (f *forwarder) run(ctx context.Context, out io.Writer) error {
	defer close(f.done)

	enc := json.NewEncoder(out)
	for {
		select {
		case <-ctx.Done():
			f.logger.Info("shutting down")
			return nil
		case args := <-f.ch:
			f.logger.Info("command line relayed from another launch", zap.Strings("args", args))
			if err := enc.Encode(relayedLine{ReceivedAt: time.Now().UTC(), Args: args}); err != nil {
				return err
			}
		}
	}
}

func runHost(ctx context.Context, out io.Writer, opts *rootOptions) error {
	cfg, logger, err := opts.load(true)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	fwd := newForwarder(16, logger)
	coord := instance.New(instance.Options{
		Receiver:        fwd,
		Logger:          logger,
		LockDir:         cfg.LockDir,
		PublishPresence: cfg.Presence,
	})

	_, err = app.New(cfg.Name, coord, logger).Run(ctx, func(ctx context.Context) error {
		logger.Info("waiting for relayed command lines", zap.String("name", cfg.Name), zap.String("relay_dir", coord.RelayDir()))
		return fwd.run(ctx, out)
	})
	return err
}
