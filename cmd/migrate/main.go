// migrate applies or rolls back the embedded SQL schema. Run with go run ./cmd/migrate up.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/noahsadir/courseman/internal/config"
	"github.com/noahsadir/courseman/internal/db/migrate"
)

func main() {
	rootCommand := &cobra.Command{
		Use:          "migrate",
		Short:        "Manage the database schema",
		SilenceUsage: true,
	}

	for _, direction := range []migrate.Direction{migrate.Up, migrate.Down} {
		direction := direction
		rootCommand.AddCommand(&cobra.Command{
			Use:   string(direction),
			Short: fmt.Sprintf("Run every migration %s", direction),
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				dsn, err := databaseURL()
				if err != nil {
					return err
				}
				if err := migrate.Run(dsn, direction); err != nil && !errors.Is(err, migrate.ErrNoChange) {
					return err
				}
				return printVersion(dsn)
			},
		})
	}

	rootCommand.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn, err := databaseURL()
			if err != nil {
				return err
			}
			return printVersion(dsn)
		},
	})

	if err := rootCommand.Execute(); err != nil {
		os.Exit(1)
	}
}

func databaseURL() (string, error) {
	cfg, err := config.Load()
	if err != nil {
		return "", err
	}
	if cfg.DatabaseURL == "" {
		return "", errors.New("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}
	return cfg.DatabaseURL, nil
}

func printVersion(dsn string) error {
	v, dirty, err := migrate.Version(dsn)
	if err != nil {
		return err
	}
	if dirty {
		fmt.Printf("schema version %d (dirty)\n", v)
		return nil
	}
	fmt.Printf("schema version %d\n", v)
	return nil
}
