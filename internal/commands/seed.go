package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ruralpay/ledger/internal/config"
	"github.com/ruralpay/ledger/internal/models"
	"github.com/ruralpay/ledger/internal/services"
)

func newSeedCommand(configPath *string) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create tenants and account trees from a chart file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.store.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migrating: %w", err)
			}
			return seedFromFile(cmd.Context(), a, file)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "chart of accounts file (required)")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func seedFromFile(ctx context.Context, a *app, path string) error {
	seed, err := config.LoadSeed(path)
	if err != nil {
		return err
	}
	created, err := applySeed(ctx, a.ledger, seed)
	if err != nil {
		return err
	}
	a.logger.Info("seed applied", zap.String("file", path), zap.Int("created", created))
	return nil
}

// applySeed creates whatever the seed names that does not exist yet, so it
// can be run repeatedly. It returns the number of tenants and accounts created.
func applySeed(ctx context.Context, ledger *services.LedgerService, seed *config.Seed) (int, error) {
	created := 0
	for _, t := range seed.Tenants {
		_, err := ledger.CreateTenant(ctx, services.CreateTenantInput{ID: t.ID, Name: t.Name})
		switch {
		case err == nil:
			created++
		case errors.Is(err, models.ErrAlreadyExists):
		default:
			return created, fmt.Errorf("seeding tenant %s: %w", t.ID, err)
		}

		for _, ref := range t.Flatten() {
			_, err := ledger.CreateAccount(ctx, services.CreateAccountInput{
				TenantID:        t.ID,
				ID:              ref.ID,
				Name:            ref.Name,
				ParentAccountID: ref.ParentID,
			})
			switch {
			case err == nil:
				created++
			case errors.Is(err, models.ErrAlreadyExists):
			default:
				return created, fmt.Errorf("seeding account %s/%s: %w", t.ID, ref.ID, err)
			}
		}
	}
	return created, nil
}
