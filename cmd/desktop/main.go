package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/splax/localpost/internal/browser"
	"github.com/splax/localpost/pkg/config"
	"github.com/splax/localpost/pkg/logger"
)

func main() {
	cfg := config.LoadDesktopConfig()
	log := logger.New("desktop", slog.LevelInfo)

	rootCmd := &cobra.Command{
		Use:   "localpost-desktop",
		Short: "Text mode browser shell for the localpost service",
	}
	rootCmd.PersistentFlags().StringVar(&cfg.ServerURL, "server", cfg.ServerURL, "base URL of the localpost service")
	rootCmd.PersistentFlags().StringVar(&cfg.HomeURL, "home", cfg.HomeURL, "home page URL")
	rootCmd.PersistentFlags().StringVar(&cfg.BrowserPath, "browser", cfg.BrowserPath, "browser executable for external pages")

	rootCmd.AddCommand(shellCmd(&cfg, log), openCmd(&cfg), statusCmd(&cfg))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func shellCmd(cfg *config.DesktopConfig, log *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Start the interactive browser shell",
		RunE: func(cmd *cobra.Command, args []string) error {
			nav := browser.NewNavigator(cfg.HomeURL, cfg.ServerURL)
			renderer := browser.NewRenderer(cfg.ServerURL)
			probe := browser.NewProbe(cfg.ServerURL, cfg.ProbeTimeout)

			launcher, err := browser.NewLauncher(cfg.BrowserPath)
			if err != nil {
				// External handoff degrades gracefully, everything else works.
				log.Warn("no external browser available", "error", err)
				launcher = nil
			}

			shell := browser.NewShell(nav, renderer, launcher, probe, cfg.HomeURL, cmd.InOrStdin(), cmd.OutOrStdout())
			return shell.Run(cmd.Context())
		},
	}
}

func openCmd(cfg *config.DesktopConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "open [url]",
		Short: "Open a URL in the external browser",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			launcher, err := browser.NewLauncher(cfg.BrowserPath)
			if err != nil {
				return err
			}
			target := cfg.ServerURL
			if len(args) == 1 {
				target = browser.NewNavigator(cfg.HomeURL, cfg.ServerURL).Normalize(args[0])
			}
			if err := launcher.Open(target); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "opened %s in %s\n", target, launcher.Path())
			return nil
		},
	}
}

func statusCmd(cfg *config.DesktopConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Probe the localpost service health endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			probe := browser.NewProbe(cfg.ServerURL, cfg.ProbeTimeout)
			health, err := probe.Check(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "service: %s (version %s)\n", health.Status, health.Version)
			return nil
		},
	}
}
