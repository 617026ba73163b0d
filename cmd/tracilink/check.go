package main

import (
	"fmt"

	"github.com/kalifun/tracilink/pkg/core"
	"github.com/spf13/cobra"
)

// checkCmd validates the configuration and the backend's command table
// without starting the simulator.
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration and print the backend's command table",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		transport, err := newTransport(newRegistry(), cfg)
		if err != nil {
			return err
		}
		registry := core.NewRegistry()
		if err := registry.RegisterBackend(transport.Backend(), transport.Commands()); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "federate %s, backend %s\n", cfg.Federate, transport.Backend())
		for _, c := range core.Contracts() {
			d, _ := registry.Descriptor(transport.Backend(), c)
			if d.Until != 0 {
				fmt.Fprintf(out, "  %-30s %-10s %s until %s\n", c, d, d.Since, d.Until)
				continue
			}
			fmt.Fprintf(out, "  %-30s %-10s %s\n", c, d, d.Since)
		}
		return nil
	},
}
