package main

import (
	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	envFiles []string
)

var rootCmd = &cobra.Command{
	Use:   "crm",
	Short: "Neural CRM lead ingestion and AI orchestration service",
	Long: `crm serves the lead pipeline API: batch imports mapped by a language
model, outreach drafting, chat triage, funnel-stage advice and lead
scoring. Subcommands run the same services from the terminal.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "crm.yml", "config file path")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{".env"}, "dotenv files loaded before the environment")
}
