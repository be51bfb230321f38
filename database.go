package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// How long an app found unreleased or otherwise non-idle-able stays in
// the ignore list before the catalog is consulted again.
const UnplayableCacheDuration = 24 * time.Hour

// GlobalDatabase is the process-wide cache shared by all bots: package
// ownership metadata and the time-boxed unplayable-app ignore list.
// Backed by SQLite (local file) or Postgres, selected by DSN; every
// statement sticks to the dialect both engines accept.
type GlobalDatabase struct {
	db *sql.DB
}

// OpenGlobalDatabase connects to the cache database and ensures the
// schema exists. A postgres:// DSN selects the Postgres driver, any
// other value is treated as a SQLite file path.
func OpenGlobalDatabase(dsn string) (*GlobalDatabase, error) {
	var db *sql.DB
	var err error

	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		db, err = sql.Open("postgres", dsn)
	} else {
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, err
			}
		}

		db, err = sql.Open("sqlite", dsn)
		if err == nil {
			// SQLite handles one writer at a time
			db.SetMaxOpenConns(1)
		}
	}

	if err != nil {
		return nil, err
	}

	if err = db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	g := &GlobalDatabase{db: db}
	if err = g.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return g, nil
}

func (g *GlobalDatabase) migrate() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS package_cache (
			package_id BIGINT PRIMARY KEY,
			app_ids TEXT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS unplayable_cache (
			app_id BIGINT PRIMARY KEY,
			until_unix BIGINT NOT NULL
		)`,
	}

	for _, statement := range statements {
		if _, err := g.db.Exec(statement); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// Close closes the database connection.
func (g *GlobalDatabase) Close() {
	if g != nil && g.db != nil {
		g.db.Close()
	}
}

// GetPackageApps returns the cached app IDs contained in a package.
func (g *GlobalDatabase) GetPackageApps(packageID uint32) ([]uint32, bool, error) {
	var raw string
	err := g.db.QueryRow(
		`SELECT app_ids FROM package_cache WHERE package_id = $1`, int64(packageID),
	).Scan(&raw)

	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var appIDs []uint32
	if err := json.Unmarshal([]byte(raw), &appIDs); err != nil {
		return nil, false, err
	}

	return appIDs, true, nil
}

// SavePackageApps upserts the package→apps mapping.
func (g *GlobalDatabase) SavePackageApps(packageID uint32, appIDs []uint32) error {
	raw, err := json.Marshal(appIDs)
	if err != nil {
		return err
	}

	_, err = g.db.Exec(
		`INSERT INTO package_cache (package_id, app_ids, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (package_id) DO UPDATE SET
			app_ids = EXCLUDED.app_ids,
			updated_at = EXCLUDED.updated_at`,
		int64(packageID), string(raw), time.Now().Unix(),
	)

	return err
}

// IsAppUnplayable reports whether the app sits in the active ignore
// list. Errors degrade to "playable" so a broken cache never blocks
// farming.
func (g *GlobalDatabase) IsAppUnplayable(appID uint32) bool {
	var until int64
	err := g.db.QueryRow(
		`SELECT until_unix FROM unplayable_cache WHERE app_id = $1`, int64(appID),
	).Scan(&until)

	if err == sql.ErrNoRows {
		return false
	}
	if err != nil {
		LogWarning("Unplayable cache lookup failed for app %d: %v", appID, err)
		return false
	}

	return time.Now().Unix() < until
}

// MarkAppUnplayable puts the app in the ignore list until the cache
// duration elapses.
func (g *GlobalDatabase) MarkAppUnplayable(appID uint32) error {
	until := time.Now().Add(UnplayableCacheDuration).Unix()

	_, err := g.db.Exec(
		`INSERT INTO unplayable_cache (app_id, until_unix) VALUES ($1, $2)
		 ON CONFLICT (app_id) DO UPDATE SET until_unix = EXCLUDED.until_unix`,
		int64(appID), until,
	)

	return err
}

// PruneExpired deletes ignore-list rows past their deadline.
func (g *GlobalDatabase) PruneExpired() {
	if _, err := g.db.Exec(
		`DELETE FROM unplayable_cache WHERE until_unix < $1`, time.Now().Unix(),
	); err != nil {
		LogWarning("Failed to prune unplayable cache: %v", err)
	}
}
