// @title GRBL Service API
// @version 1.0.0
// @description API для потоковой передачи G-code в контроллер GRBL и трансляции событий клиентам.
// @host localhost:8082
// @BasePath /api/v1
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "grbl-service",
	Short: "GRBL streaming server",
	Long: `Streams G-code programs to a GRBL controller over a serial link and
exposes job control to multiple clients over a JSON-over-TCP protocol and HTTP.`,
	SilenceUsage: true,
}

func main() {
	rootCmd.AddCommand(serveCmd, portsCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
