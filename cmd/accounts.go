package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/fitx/internal/models"
	"github.com/desertthunder/fitx/internal/shared"
	"github.com/urfave/cli/v3"
)

// validPlatforms are the platforms an account can be saved for.
var validPlatforms = map[string]bool{"coros": true, "garmin": true}

// AccountsSet saves (or replaces) credentials for one platform.
func (r *Runner) AccountsSet(ctx context.Context, cmd *cli.Command) error {
	platform := cmd.StringArg("platform")
	if !validPlatforms[platform] {
		return fmt.Errorf("%w: platform must be 'coros' or 'garmin'", shared.ErrValidation)
	}

	db, err := r.openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	accounts, err := r.accountStore(db)
	if err != nil {
		return err
	}

	account := &models.Account{
		Platform: platform,
		Email:    cmd.String("email"),
		Password: cmd.String("password"),
	}
	if err := accounts.Save(account); err != nil {
		return err
	}

	r.logger.Info("account saved", "platform", platform, "email", account.Email)
	r.writePlain("✓ %s credentials saved for %s\n", platform, account.Email)
	return nil
}

// AccountsList lists saved accounts without credentials.
func (r *Runner) AccountsList(ctx context.Context, cmd *cli.Command) error {
	db, err := r.openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	accounts, err := r.accountStore(db)
	if err != nil {
		return err
	}

	list, err := accounts.List()
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(list, cmd.Bool("pretty"))
	}

	if len(list) == 0 {
		r.writePlain("No accounts saved\n")
		return nil
	}
	for _, account := range list {
		r.writePlain("%-8s %s\n", account.Platform, account.Email)
	}
	return nil
}

// AccountsDelete removes saved credentials for one platform.
func (r *Runner) AccountsDelete(ctx context.Context, cmd *cli.Command) error {
	platform := cmd.StringArg("platform")
	if !validPlatforms[platform] {
		return fmt.Errorf("%w: platform must be 'coros' or 'garmin'", shared.ErrValidation)
	}

	db, err := r.openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	accounts, err := r.accountStore(db)
	if err != nil {
		return err
	}

	if err := accounts.Delete(platform); err != nil {
		return err
	}
	r.writePlain("✓ %s credentials deleted\n", platform)
	return nil
}
