/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/recipebox/apiserver/internal/db"
	"github.com/recipebox/apiserver/internal/logger"
	"github.com/recipebox/apiserver/internal/services"
	"github.com/recipebox/apiserver/internal/store"
	"github.com/spf13/cobra"
)

var superuserFlags struct {
	email    string
	username string
}

// createsuperuserCmd represents the createsuperuser command
var createsuperuserCmd = &cobra.Command{
	Use:   "createsuperuser",
	Short: "Creates an administrator account",
	Long: `Creates an active, verified staff and superuser account. The password
is read from the SUPERUSER_PASSWORD environment variable or, when unset,
from the first line of standard input.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		password, err := superuserPassword()
		if err != nil {
			return err
		}

		conn, err := db.Open(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer conn.Close()

		users := services.NewUserService(store.NewUserRepository(conn))
		user, err := users.CreateSuperuser(cmd.Context(), services.NewUser{
			Email:    superuserFlags.email,
			Username: superuserFlags.username,
			Password: password,
		})
		if err != nil {
			return err
		}

		log := logger.Get()
		log.Info().Int("user_id", user.ID).Str("email", user.Email).Msg("superuser created")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(createsuperuserCmd)
	createsuperuserCmd.Flags().StringVar(&superuserFlags.email, "email", "", "email address of the new account")
	createsuperuserCmd.Flags().StringVar(&superuserFlags.username, "username", "", "username of the new account")
	_ = createsuperuserCmd.MarkFlagRequired("email")
	_ = createsuperuserCmd.MarkFlagRequired("username")
}

func superuserPassword() (string, error) {
	if password := os.Getenv("SUPERUSER_PASSWORD"); password != "" {
		return password, nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", errors.New("no password given: set SUPERUSER_PASSWORD or pipe it on stdin")
	}
	return strings.TrimRight(line, "\r\n"), nil
}
