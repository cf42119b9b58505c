// Package config loads application configuration from environment
// variables into plain structs.
//
// It wraps `github.com/joho/godotenv` and `github.com/caarlos0/env/v11`:
//
//   - Loads values from one or multiple `.env` files (fallback to the
//     default `.env` in the current working directory).
//   - Parses the environment into any Go struct using field tags.
//   - Exposes a helper that panics on failure (`MustLoad`) for
//     configuration the application cannot start without.
//
// Configuration is parsed once at startup and passed to components as
// explicit values. The package keeps no global state beyond the one-time
// default .env load, so tests can set environment variables and parse a
// fresh struct without cache invalidation tricks.
//
// # Usage
//
// Create a struct describing your configuration and annotate its fields
// with `env` tags:
//
//	type DatabaseConfig struct {
//	    Host string `env:"DB_HOST,required"`
//	    Port int    `env:"DB_PORT" envDefault:"5432"`
//	}
//
// Then populate it at startup and hand it to whatever needs it:
//
//	var db DatabaseConfig
//	if err := config.Load(&db); err != nil {
//	    log.Fatalf("parsing env: %v", err)
//	}
//
// # Error Handling
//
// The package defines sentinel errors that can be compared with `errors.Is`:
//
//   - `ErrParsingConfig`   – failed to parse env vars into struct.
//   - `ErrEnvFileNotFound` – explicitly requested .env file missing.
//   - `ErrNilPointer`      – nil pointer passed to `Load`/`MustLoad`.
package config
