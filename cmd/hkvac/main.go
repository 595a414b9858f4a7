package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/shimmeringbee/persistence/impl/file"
	"github.com/spf13/cobra"

	"github.com/hkvac/hkvac"
	"github.com/hkvac/hkvac/hkclient"
)

func main() {
	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "hkvac",
		Short: "Bridge a vacuum exposed by a secondary HomeKit bridge to a primary hub",
	}

	root.AddCommand(serveCommand())
	root.AddCommand(pairCommand())

	return root
}

func serveCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run one discovery cycle and serve the resulting accessories",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := hkvac.LoadConfig(configPath)
			if err != nil {
				return err
			}

			if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
				return fmt.Errorf("data directory: %w", err)
			}

			bridge := hkvac.New(cfg, file.New(cfg.RegistryPath()), hkclient.Connector())
			bridge.WithGoLogger(log.New(os.Stdout, "", log.LstdFlags))

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if err := bridge.Discover(ctx); err != nil {
				return err
			}

			return bridge.Run(ctx)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the configuration file")

	return cmd
}

func pairCommand() *cobra.Command {
	var (
		deviceID string
		pin      string
		outPath  string
	)

	cmd := &cobra.Command{
		Use:   "pair",
		Short: "Pair with the secondary bridge and write the pairing artifact",
		RunE: func(cmd *cobra.Command, args []string) error {
			artifact, err := hkclient.Pair(cmd.Context(), deviceID, pin)
			if err != nil {
				return err
			}

			if err := os.WriteFile(outPath, artifact, 0600); err != nil {
				return fmt.Errorf("write artifact: %w", err)
			}

			fmt.Printf("Paired with %s, artifact written to %s\n", deviceID, outPath)

			return nil
		},
	}

	cmd.Flags().StringVar(&deviceID, "id", "", "device id of the secondary bridge")
	cmd.Flags().StringVar(&pin, "pin", "", "setup pin of the secondary bridge")
	cmd.Flags().StringVar(&outPath, "out", "pairing.json", "path to write the pairing artifact to")

	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("pin")

	return cmd
}
