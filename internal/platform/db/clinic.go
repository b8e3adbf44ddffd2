package db

import (
	"context"
	"fmt"
	"net/http"
	"regexp"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	ClinicIDKey contextKey = "clinic_id"
	DBConnKey   contextKey = "db_conn"
)

var clinicIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// ClinicMiddleware resolves the clinic for the request, pins a pooled
// connection to that clinic's schema, and stores both on the request context
// so repositories can pick them up.
func ClinicMiddleware(pool *pgxpool.Pool, defaultClinic string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			clinicID := extractClinicID(c, defaultClinic)

			if !clinicIDPattern.MatchString(clinicID) {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid clinic identifier")
			}

			ctx := c.Request().Context()
			conn, err := pool.Acquire(ctx)
			if err != nil {
				return echo.NewHTTPError(http.StatusServiceUnavailable, "database unavailable")
			}
			defer conn.Release()

			schema := fmt.Sprintf("clinic_%s", clinicID)
			_, err = conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s, shared, public", schema))
			if err != nil {
				return echo.NewHTTPError(http.StatusInternalServerError, "clinic resolution failed")
			}

			ctx = context.WithValue(ctx, ClinicIDKey, clinicID)
			ctx = context.WithValue(ctx, DBConnKey, conn)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set("clinic_id", clinicID)
			c.Set("db", conn)

			return next(c)
		}
	}
}

func extractClinicID(c echo.Context, defaultClinic string) string {
	// 1. Check JWT claim (set by auth middleware)
	if cid, ok := c.Get("jwt_clinic_id").(string); ok && cid != "" {
		return cid
	}

	// 2. Check X-Clinic-ID header
	if cid := c.Request().Header.Get("X-Clinic-ID"); cid != "" {
		return cid
	}

	// 3. Check query parameter
	if cid := c.QueryParam("clinic_id"); cid != "" {
		return cid
	}

	return defaultClinic
}

// ConnFromContext retrieves the clinic-scoped database connection from context.
func ConnFromContext(ctx context.Context) *pgxpool.Conn {
	conn, _ := ctx.Value(DBConnKey).(*pgxpool.Conn)
	return conn
}

// ClinicFromContext retrieves the clinic ID from context.
func ClinicFromContext(ctx context.Context) string {
	cid, _ := ctx.Value(ClinicIDKey).(string)
	return cid
}

// CreateClinicSchema creates a new schema for a clinic and runs all migrations
// against it. If migrationsDir is empty, migrations are skipped.
func CreateClinicSchema(ctx context.Context, pool *pgxpool.Pool, clinicID string, migrationsDir string) error {
	if !clinicIDPattern.MatchString(clinicID) {
		return fmt.Errorf("invalid clinic identifier: %s", clinicID)
	}

	schema := fmt.Sprintf("clinic_%s", clinicID)

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema))
	if err != nil {
		return fmt.Errorf("create schema %s: %w", schema, err)
	}

	if migrationsDir != "" {
		migrator := NewMigrator(pool, migrationsDir)
		if _, err := migrator.Up(ctx, schema); err != nil {
			return fmt.Errorf("run migrations for %s: %w", schema, err)
		}
	}

	return nil
}
