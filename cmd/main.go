package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Ricardolombre/acdn-elearning/internal/config"
	"github.com/Ricardolombre/acdn-elearning/internal/server"
)

const envPrefix = "ACDN"

var rootCmd = &cobra.Command{
	Use:           "elearning",
	Short:         "Quiz scoring and lesson progression service",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gRPC and HTTP servers",
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, syscall.SIGTERM, os.Interrupt)

		s, err := server.Init(c)
		if err != nil {
			return fmt.Errorf("init server: %w", err)
		}

		go s.Start()

		<-shutdown
		s.Shutdown()
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to the config file (overrides CONFIG_PATH)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(lessonsCmd)
	rootCmd.AddCommand(tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("%s: %v", rootCmd.Name(), err)
	}
}

// loadConfig reads the file named by --config, then CONFIG_PATH. Environment variables prefixed with ACDN_
// override it.
func loadConfig(cmd *cobra.Command) (server.Config, error) {
	c := server.DefaultConfig()

	p, _ := cmd.Flags().GetString("config")
	if p == "" {
		p = os.Getenv("CONFIG_PATH")
	}
	if p == "" {
		return c, fmt.Errorf("CONFIG_PATH not set")
	}

	if err := config.Load(p, &c, config.WithEnvPrefix(envPrefix)); err != nil {
		return c, fmt.Errorf("load config: %w", err)
	}

	return c, nil
}
