package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:           "tasktalk",
	Short:         "Conversational task management",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	viper.SetEnvPrefix("TASKTALK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	rootCmd.PersistentFlags().String("server", "", "server base URL (default: from server.addr)")
	rootCmd.PersistentFlags().String("token", "", "bearer token for the server (env TASKTALK_TOKEN)")
	rootCmd.PersistentFlags().StringP("output", "o", "table", "output format: table, json or yaml")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", os.Getenv("NO_COLOR") != "", "disable colored output")
	_ = viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))
	_ = viper.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))
	_ = viper.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output"))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(conversationsCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}

func outputFormat() (string, error) {
	f := strings.ToLower(viper.GetString("output"))
	switch f {
	case "", "table":
		return "table", nil
	case "json", "yaml":
		return f, nil
	}
	return "", fmt.Errorf("unknown output format %q (want table, json or yaml)", f)
}
