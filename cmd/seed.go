/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"os"

	"github.com/boardtrack/apiserver/config"
	"github.com/boardtrack/apiserver/internal/db"
	"github.com/boardtrack/apiserver/internal/logging"
	"github.com/boardtrack/apiserver/internal/store"
	"github.com/boardtrack/apiserver/types"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

const (
	defaultAdminUsername = "admin"
	defaultAdminPassword = "password"
)

var seedDepartments []string

// seedCmd represents the seed command. It provisions the default admin
// account and any requested department shards so a fresh install is
// usable immediately after migrating.
var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Provision the default admin account and department shards",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		return runSeed(cmd.Context(), cfg)
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
	seedCmd.Flags().StringArrayVar(&seedDepartments, "department", nil, "department to create (repeatable)")
}

func runSeed(ctx context.Context, cfg config.Config) error {
	log := logging.WithComponent("seed")

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = dbConn.Close()
	}()

	users := store.NewUserRepository(dbConn)
	departments := store.NewDepartmentRepository(dbConn)
	shards := store.NewShardManager(dbConn)

	if err := seedAdmin(ctx, users, log); err != nil {
		return err
	}

	for _, name := range seedDepartments {
		dept, err := departments.Create(ctx, name)
		switch {
		case err == nil:
			log.Info().Str("department", dept.Name).Msg("department created")
		case errors.Is(err, store.ErrDuplicateDepartment):
			log.Info().Str("department", name).Msg("department already exists")
		default:
			return err
		}
		if err := shards.EnsureShard(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

func seedAdmin(ctx context.Context, users *store.UserRepository, log zerolog.Logger) error {
	username := os.Getenv("ADMIN_USERNAME")
	if username == "" {
		username = defaultAdminUsername
	}
	password := os.Getenv("ADMIN_PASSWORD")
	if password == "" {
		password = defaultAdminPassword
	}

	_, err := users.GetByUsername(ctx, username)
	if err == nil {
		log.Info().Str("username", username).Msg("admin account already exists")
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	_, err = users.Create(ctx, types.User{
		Username:     username,
		PasswordHash: string(hashed),
		Role:         types.RoleAdmin,
	})
	if err != nil {
		return err
	}
	log.Info().Str("username", username).Msg("admin account created")
	return nil
}
