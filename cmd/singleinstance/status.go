package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/it-atelier-gn/single-instance/internal/identity"
	"github.com/it-atelier-gn/single-instance/internal/procinfo"
	"github.com/it-atelier-gn/single-instance/internal/shm"
)

var errNoPrimary = errors.New("no primary instance is running")

type statusReport struct {
	shm.Presence `yaml:",inline"`
	Alive        bool   `json:"alive" yaml:"alive"`
	Process      string `json:"process,omitempty" yaml:"process,omitempty"`
}

func newStatusCommand(opts *rootOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the primary instance for the configured name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load(false)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			id, err := identity.New(cfg.Name)
			if err != nil {
				return err
			}
			p, err := shm.ReadPresence(id)
			if err != nil {
				logger.Debug("read presence", zap.Error(err))
				return fmt.Errorf("%w for %q", errNoPrimary, cfg.Name)
			}
			return writeStatus(cmd.OutOrStdout(), format, newStatusReport(*p))
		},
	}
	cmd.Flags().StringVar(&format, "format", "json", "output format: json|yaml")
	return cmd
}

func newStatusReport(p shm.Presence) statusReport {
	return statusReport{
		Presence: p,
		Alive:    procinfo.Alive(p.PID),
		Process:  procinfo.ExecutableName(p.PID),
	}
}

func writeStatus(w io.Writer, format string, r statusReport) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("invalid --format value: %s (allowed: json, yaml)", format)
	}
}
