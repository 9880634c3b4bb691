package infra

import (
	"context"
	"os"

	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

// EnvStressDSN points the stress run at an existing database instead of
// a container.
const EnvStressDSN = "OUTREACH_STRESS_PG_DSN"

// PGContainer wraps the throwaway Postgres container, if one was
// started. It is empty when the run reuses an external database.
type PGContainer struct {
	C *postgres.PostgresContainer
}

// StartPostgres16 resolves the database for a stress run: an explicit
// override DSN wins, then EnvStressDSN, then a fresh postgres:16
// container.
func StartPostgres16(ctx context.Context, overrideDSN string) (*PGContainer, string, error) {
	for _, dsn := range []string{overrideDSN, os.Getenv(EnvStressDSN)} {
		if dsn != "" {
			return &PGContainer{}, dsn, nil
		}
	}

	pgC, err := postgres.Run(ctx,
		"postgres:16",
		postgres.WithDatabase(stressDB),
		postgres.WithUsername(stressUser),
		postgres.WithPassword(stressPass),
	)
	if err != nil {
		return nil, "", err
	}

	dsn, err := pgC.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = pgC.Terminate(ctx)
		return nil, "", err
	}
	return &PGContainer{C: pgC}, dsn, nil
}

// Terminate stops the container when one was started; a no-op for
// external databases.
func (p *PGContainer) Terminate(ctx context.Context) error {
	if p == nil || p.C == nil {
		return nil
	}
	return p.C.Terminate(ctx)
}
