// Package pg provides utilities for interacting with PostgreSQL using the
// pgx/v5 driver. It offers a thin abstraction around connection pooling,
// migrations, health checks, and common error helpers so the service can
// bootstrap a resilient database layer with only a few lines of code.
//
// The package keeps a very small API surface while relying on battle-tested
// upstream libraries (`pgx/v5` for connectivity and `goose/v3` for schema
// migrations).
//
// # Architecture
//
// Three cooperating building blocks:
//
//   - Config – a declarative struct whose fields are populated from
//     environment variables via github.com/caarlos0/env. It controls
//     connection pool limits, health-check cadence and migration paths.
//
//   - Connect – opens a *pgxpool.Pool based on Config, retrying with
//     backoff until the database becomes available.
//
//   - Migrate – runs goose database migrations against the same connection
//     pool, guaranteeing the schema is up-to-date before the service starts
//     serving traffic.
//
// # Usage
//
//	var cfg pg.Config
//	config.MustLoad(&cfg)
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//	    panic(err)
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, cfg, slog.Default()); err != nil {
//	    panic(err)
//	}
//
//	health := pg.Healthcheck(pool)
//
// # Error Handling
//
// Helpers such as [pg.IsNotFoundError] and [pg.IsDuplicateKeyError] unwrap
// errors returned by pgx / `*pgconn.PgError` and make error classification
// trivial inside business logic.
package pg
