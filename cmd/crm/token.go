package main

import (
	"fmt"
	"time"

	"github.com/boddenberg/crm-leads-bfa-go/internal/config"
	"github.com/boddenberg/crm-leads-bfa-go/internal/service"

	"github.com/spf13/cobra"
)

var (
	tokenTenant string
	tokenUser   string
	tokenTTL    time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print a session bearer token signed with jwt_secret",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadDotEnv(envFiles...); err != nil {
			return err
		}
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if cfg.JWTSecret == "" {
			return fmt.Errorf("jwt_secret is not configured")
		}

		sess := (&app{cfg: cfg}).session()
		if tokenTenant != "" {
			sess.TenantID = tokenTenant
		}
		if tokenUser != "" {
			sess.UserID = tokenUser
		}

		token, err := service.NewSessions(cfg.JWTSecret, tokenTTL, sess).Issue(sess)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenTenant, "tenant", "", "tenant id (default from config)")
	tokenCmd.Flags().StringVar(&tokenUser, "user", "", "user id (default from config)")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
	rootCmd.AddCommand(tokenCmd)
}
