package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/Builder-Lawyers/hub-provisioner/pkg/env"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "hub-provisioner",
	Short: "Provisions and tears down customer hubs",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		envErr := godotenv.Load(envFile)
		setupLogger()
		if envErr != nil {
			slog.Debug("no env file loaded, relying on process env", "file", envFile)
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveCmd.RunE(cmd, args)
	},
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading configuration")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(provisionCmd)
	rootCmd.AddCommand(deprovisionCmd)
}

func setupLogger() {
	var level slog.Level
	if err := level.UnmarshalText([]byte(env.GetEnv("LOG_LEVEL", "info"))); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(env.GetEnv("LOG_FORMAT", "text"), "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
