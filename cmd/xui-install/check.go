package main

import (
	"context"
	"fmt"

	"github.com/nvoss/xui-install/internal/services/panel"
	"github.com/nvoss/xui-install/internal/services/release"
	"github.com/nvoss/xui-install/internal/services/shell"
	"github.com/nvoss/xui-install/internal/services/systemd"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check whether the panel is installed and healthy",
	Long:  `Probe the installed panel without changing anything and report its state.`,
	RunE:  runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	// Probes only; nothing here mutates, so the dry-run executor is safe
	// even without root.
	executor := shell.NewDry(log.Logger)
	systemdSvc := systemd.New(log.Logger, executor)
	releaseSvc := release.New(log.Logger, executor)
	panelSvc := panel.New(log.Logger, executor, systemdSvc, releaseSvc)

	if !panelSvc.Healthy(ctx) {
		fmt.Println("Panel is not installed or not healthy.")
		return fmt.Errorf("panel not healthy")
	}

	fmt.Println("Panel is installed and healthy.")

	status, err := panelSvc.Status(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("could not read panel settings")
		return nil
	}
	if status.PortFound {
		fmt.Printf("  Port:      %d\n", status.Port)
	}
	if status.BasePathFound {
		fmt.Printf("  Base path: %s\n", status.BasePath)
	}
	return nil
}
