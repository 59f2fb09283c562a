// seed inserts development sample data for local testing. Run with go run ./cmd/seed.
// Idempotent: skips everything if the dev account (dev@example.com) already exists.
package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	accountrepo "github.com/noahsadir/courseman/internal/account/repository"
	accountservice "github.com/noahsadir/courseman/internal/account/service"
	"github.com/noahsadir/courseman/internal/config"
	"github.com/noahsadir/courseman/internal/db"
	gradebookdomain "github.com/noahsadir/courseman/internal/gradebook/domain"
	gradebookrepo "github.com/noahsadir/courseman/internal/gradebook/repository"
	gradebookservice "github.com/noahsadir/courseman/internal/gradebook/service"
	"github.com/noahsadir/courseman/internal/identifier"
	"github.com/noahsadir/courseman/internal/logging"
	permissionrepo "github.com/noahsadir/courseman/internal/permission/repository"
	permissionservice "github.com/noahsadir/courseman/internal/permission/service"
	"github.com/noahsadir/courseman/internal/security"
	sessionrepo "github.com/noahsadir/courseman/internal/session/repository"
	sessionservice "github.com/noahsadir/courseman/internal/session/service"
)

const (
	devEmail    = "dev@example.com"
	memberEmail = "member@example.com"
	devPassword = "Dev-Password-2024!"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load config")
	}
	logging.Init(cfg.Level(), true)

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer conn.Close()

	alloc := identifier.NewAllocator(nil, identifier.NewPostgresChecker(conn), cfg.IDMaxAttempts, nil)
	tokens := sessionservice.NewTokenService(sessionrepo.NewPostgresRepository(conn), alloc, cfg.TokenTTL(), cfg.TokenLength, nil, nil)
	permissions := permissionservice.NewRegistry(permissionrepo.NewPostgresRepository(conn), nil, nil)
	accounts := accountservice.NewAccountService(
		accountrepo.NewPostgresRepository(conn), alloc, tokens, security.NewHasher(cfg.BcryptCost), cfg.IDLength, nil,
	)
	gradebook := gradebookservice.NewGradebookService(
		gradebookrepo.NewPostgresRepository(conn),
		permissions,
		alloc,
		gradebookrepo.Transactor(conn, func(q db.Querier) gradebookservice.TxGrants {
			return permissions.WithRepo(permissionrepo.NewPostgresRepository(q))
		}),
		cfg.IDLength,
	)

	ctx := context.Background()
	dev, err := accounts.Register(ctx, devEmail, devPassword)
	if errors.Is(err, accountservice.ErrEmailAlreadyRegistered) {
		logging.Info().Msg("Seed already applied (dev@example.com exists). Skipping.")
		return
	}
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to create dev account")
	}
	member, err := accounts.Register(ctx, memberEmail, devPassword)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to create member account")
	}

	class, err := gradebook.CreateClass(ctx, dev.InternalID, gradebookdomain.Class{
		Name:   "Intro to Databases",
		Code:   "CS 340",
		Color:  0x3f51b5,
		Weight: 4,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to create class")
	}
	if err := gradebook.ShareClass(ctx, class.ID, member.InternalID); err != nil {
		logging.Fatal().Err(err).Msg("failed to share class")
	}

	start := time.Now().UTC().Truncate(24 * time.Hour)
	if _, err := gradebook.CreateTerm(ctx, dev.InternalID, gradebookdomain.Term{
		Title:     "Fall Semester",
		StartDate: start.UnixMilli(),
		EndDate:   start.AddDate(0, 4, 0).UnixMilli(),
	}); err != nil {
		logging.Fatal().Err(err).Msg("failed to create term")
	}

	logging.Info().Str("class_id", class.ID).Msg("Seed completed successfully.")
	fmt.Printf("Dev login: %s / %s (internal_id %s)\n", devEmail, devPassword, dev.InternalID)
	fmt.Printf("Member login: %s / %s (internal_id %s)\n", memberEmail, devPassword, member.InternalID)
}
