package main

import (
	"fmt"
	"os"

	"github.com/iwtcode/grblService/internal/app"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	serveEnvFile string
	servePort    string
	serveSerial  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the streaming server",
	Long: `Run the streaming server.

Configuration is read from environment variables. An optional env file is
loaded first; variables already set in the environment take precedence.
Use --serial sim to run against the built-in controller simulator.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if serveEnvFile != "" {
			if err := godotenv.Load(serveEnvFile); err != nil {
				return fmt.Errorf("failed to load env file %s: %w", serveEnvFile, err)
			}
		}
		if servePort != "" {
			if err := os.Setenv("APP_PORT", servePort); err != nil {
				return err
			}
		}
		if serveSerial != "" {
			if err := os.Setenv("SERIAL_PORT", serveSerial); err != nil {
				return err
			}
		}

		// Создаем и запускаем новый экземпляр приложения fx
		app.New().Run()
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveEnvFile, "env-file", "", "path to .env file")
	serveCmd.Flags().StringVar(&servePort, "port", "", "protocol server port (overrides APP_PORT)")
	serveCmd.Flags().StringVar(&serveSerial, "serial", "", "serial device, \"sim\" or tcp://host:port (overrides SERIAL_PORT)")
}
