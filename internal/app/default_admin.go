package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"garden.school/lessonbank/internal/auth"
	"garden.school/lessonbank/internal/config"
	"garden.school/lessonbank/internal/db"
	"garden.school/lessonbank/internal/globaltime"
)

// ensureDefaultAdmin creates the bootstrap operator when none exists yet.
// Skipped entirely when DEFAULT_ADMIN_PASSWORD is unset so production
// deployments can opt out.
func ensureDefaultAdmin(ctx context.Context, pool *db.Pool, cfg *config.Config, logger zerolog.Logger) error {
	if pool == nil || cfg == nil {
		return fmt.Errorf("ensure default admin: missing dependencies")
	}

	username := auth.NormalizeUsername(cfg.DefaultAdminUser)
	password := strings.TrimSpace(cfg.DefaultAdminPassword)
	if username == "" || password == "" {
		return nil
	}

	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash default admin password: %w", err)
	}

	created, err := pool.EnsureOperator(ctx, username, passwordHash, cfg.DefaultAdminMustChangePassword, globaltime.UTC())
	if err != nil {
		return err
	}

	if created {
		logger.Warn().
			Str("username", username).
			Bool("must_change_password", cfg.DefaultAdminMustChangePassword).
			Msg("created default admin operator")
	}

	return nil
}
