package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/nvoss/xui-install/internal/config"
	"github.com/nvoss/xui-install/internal/models"
	"github.com/nvoss/xui-install/internal/services/runner"
	"github.com/nvoss/xui-install/internal/services/shell"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var installOpts config.Options

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Run the provisioning sequence",
	Long: `Run the complete provisioning sequence:
1. Install required OS packages
2. Create or update the administrative Linux account
3. Ensure the SSH daemon permits password authentication
4. Skip the rest if the panel is already healthy (unless --force)
5. Resolve version and architecture, download and unpack the release
6. Install files, register the systemd service
7. Configure panel credentials, port and base path
8. Start the service and print the access report`,
	RunE: runInstall,
}

func init() {
	flags := installCmd.Flags()
	flags.StringVar(&installOpts.Username, "username", "", "shared username for panel and system account")
	flags.StringVar(&installOpts.Password, "password", "", "shared password for panel and system account")
	flags.StringVar(&installOpts.PanelUsername, "panel-username", "", "panel username (overrides --username)")
	flags.StringVar(&installOpts.PanelPassword, "panel-password", "", "panel password (overrides --password)")
	flags.StringVar(&installOpts.ServerUsername, "server-username", "", "system account username (overrides --username)")
	flags.StringVar(&installOpts.ServerPassword, "server-password", "", "system account password (overrides --password)")
	flags.StringVar(&installOpts.Path, "path", "/", "panel base path")
	flags.StringVar(&installOpts.Port, "port", "2053", "panel port")
	flags.StringVar(&installOpts.Version, "version", "", "panel release tag (default: latest upstream release)")
	flags.BoolVar(&installOpts.Force, "force", false, "reinstall even if the panel is already healthy")
	flags.BoolVar(&installOpts.DryRun, "dry-run", false, "render every command without executing anything")
	flags.BoolVar(&installOpts.Generate, "generate-credentials", false, "fill missing credentials with random values")
}

func runInstall(cmd *cobra.Command, args []string) error {
	opts := installOpts

	// File and environment defaults fill in flags the user did not set.
	parser := config.NewParser()
	var fileCfg *models.FileConfig
	if configFile != "" {
		var err error
		fileCfg, err = parser.LoadFile(configFile)
		if err != nil {
			log.Error().Err(err).Str("file", configFile).Msg("failed to load config")
			return err
		}
	} else {
		fileCfg = parser.Env()
	}
	config.ApplyDefaults(&opts, fileCfg, cmd.Flags().Changed)

	req, err := config.Resolve(opts)
	if err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		return err
	}

	log.Info().
		Str("panel_user", req.PanelUsername).
		Str("system_user", req.SystemUsername).
		Int("port", req.PanelPort).
		Str("path", req.PanelPath).
		Bool("dry_run", req.DryRun).
		Msg("configuration resolved")

	// Set up context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Warn().Str("signal", sig.String()).Msg("received signal, shutting down")
		cancel()
	}()

	var executor shell.Executor
	if req.DryRun {
		executor = shell.NewDry(log.Logger)
	} else {
		executor = shell.NewLive(log.Logger)
	}

	runnerSvc := runner.New(log.Logger, executor)
	result, err := runnerSvc.Run(ctx, *req)
	if err != nil {
		log.Error().Err(err).Msg("provisioning failed")
		return err
	}

	if result.Skipped {
		log.Info().Msg("nothing to do")
	}
	return nil
}
