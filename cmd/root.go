package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	cfgFile string

	// Version is set at build time via ldflags on main.Version.
	Version = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "ekaya-studio",
	Short: "Browse and edit the tables of any PostgreSQL, MySQL or SQLite database",
	Long: `
ekaya-studio serves a database admin panel. Point it at a connection URL and
it introspects the schema, lists tables and lets you page, sort, create,
update and delete records, following foreign keys in both directions.

Database Support:
- PostgreSQL (postgresql://)
- MySQL (mysql://)
- SQLite (sqlite:// or a .db file path)`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		printBanner()
		fmt.Println()
		return cmd.Help()
	},
}

// Execute runs the root command with the given build version.
func Execute(version string) error {
	if version != "" {
		Version = version
	}
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initEnv)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
}

// initEnv loads .env files so they can feed environment-based configuration.
// Variables already set in the process environment win.
func initEnv() {
	if err := godotenv.Load(); err != nil {
		_ = godotenv.Load(".env.local")
	}
}

func printBanner() {
	color.New(color.FgGreen, color.Bold).Println("ekaya-studio")
	color.New(color.FgCyan).Print("Version: ")
	color.New(color.FgYellow, color.Bold).Println(Version)
}
