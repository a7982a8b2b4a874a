package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"momento/internal/middleware"

	"gorm.io/gorm"
)

// MigrationStore records which embedded migrations the database has run.
type MigrationStore interface {
	GetAppliedMigrations(ctx context.Context) ([]int, error)
	ApplyMigration(ctx context.Context, version int, name, sql string) error
	RemoveMigration(ctx context.Context, version int) error
}

type migrationStore struct {
	db *gorm.DB
}

// MigrationLog is one row of schema_migrations.
type MigrationLog struct {
	Version   int       `gorm:"primaryKey;autoIncrement:false"`
	Name      string    `gorm:"size:255"`
	AppliedAt time.Time `gorm:"autoCreateTime"`
}

func (MigrationLog) TableName() string {
	return "schema_migrations"
}

func NewMigrationStore(db *gorm.DB) MigrationStore {
	return &migrationStore{db: db}
}

// GetAppliedMigrations returns applied versions ascending. A database that
// has never been migrated reports none.
func (s *migrationStore) GetAppliedMigrations(ctx context.Context) ([]int, error) {
	var versions []int
	err := s.db.WithContext(ctx).Model(&MigrationLog{}).Order("version ASC").Pluck("version", &versions).Error
	switch {
	case err == nil:
		return versions, nil
	case errors.Is(err, gorm.ErrRecordNotFound), isMissingTableError(err):
		return []int{}, nil
	default:
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}
}

// isMissingTableError matches postgres and sqlite wording.
func isMissingTableError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "no such table") ||
		(strings.Contains(msg, "relation") && strings.Contains(msg, "does not exist"))
}

func (s *migrationStore) ApplyMigration(ctx context.Context, version int, name, sql string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(sql).Error; err != nil {
			return fmt.Errorf("migration %06d_%s: %w", version, name, err)
		}
		return tx.Create(&MigrationLog{Version: version, Name: name}).Error
	})
	if err != nil {
		return err
	}
	middleware.Logger.Info("Schema migration applied", slog.Int("version", version), slog.String("name", name))
	return nil
}

func (s *migrationStore) RemoveMigration(ctx context.Context, version int) error {
	res := s.db.WithContext(ctx).Where("version = ?", version).Delete(&MigrationLog{})
	if res.Error != nil {
		return fmt.Errorf("forget migration %06d: %w", version, res.Error)
	}
	middleware.Logger.Info("Schema migration reverted", slog.Int("version", version), slog.Int64("rows", res.RowsAffected))
	return nil
}

const createSchemaMigrationsSQL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version BIGINT PRIMARY KEY,
	name VARCHAR(255) NOT NULL,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

// RunMigrations applies every embedded migration the database has not run
// yet, oldest first. Each script commits together with its log row.
func RunMigrations(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).Exec(createSchemaMigrationsSQL).Error; err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	store := NewMigrationStore(db)
	applied, err := store.GetAppliedMigrations(ctx)
	if err != nil {
		return err
	}
	if err := validateAppliedVersions(applied, migrations); err != nil {
		return err
	}

	pending := pendingMigrations(applied, migrations)
	if len(pending) == 0 {
		middleware.Logger.Debug("Feed schema up to date", slog.Int("applied", len(applied)))
		return nil
	}
	for _, m := range pending {
		if err := store.ApplyMigration(ctx, m.Version, m.Name, m.UpScript); err != nil {
			return err
		}
	}
	return nil
}

// pendingMigrations keeps the registered order.
func pendingMigrations(applied []int, registered []Migration) []Migration {
	done := make(map[int]bool, len(applied))
	for _, v := range applied {
		done[v] = true
	}
	var pending []Migration
	for _, m := range registered {
		if !done[m.Version] {
			pending = append(pending, m)
		}
	}
	return pending
}

// validateAppliedVersions refuses to run against a database migrated by a
// newer build, since its posts or comments tables may not match this code.
func validateAppliedVersions(applied []int, registered []Migration) error {
	known := make(map[int]bool, len(registered))
	for _, m := range registered {
		known[m.Version] = true
	}

	var unknown []int
	for _, v := range applied {
		if !known[v] {
			unknown = append(unknown, v)
		}
	}
	if len(unknown) == 0 {
		return nil
	}

	sort.Ints(unknown)
	names := make([]string, len(unknown))
	for i, v := range unknown {
		names[i] = fmt.Sprintf("%06d", v)
	}
	return fmt.Errorf("database has migrations this build does not ship: %s; deploy the matching build or roll them back with it",
		strings.Join(names, ", "))
}

// checkRollbackOrder only allows reverting the newest applied migration.
// Later migrations reference tables created by earlier ones.
func checkRollbackOrder(applied []int, version int) error {
	if len(applied) == 0 {
		return fmt.Errorf("migration %06d has not been applied", version)
	}
	newest := applied[0]
	found := false
	for _, v := range applied {
		if v > newest {
			newest = v
		}
		if v == version {
			found = true
		}
	}
	if !found {
		return fmt.Errorf("migration %06d has not been applied", version)
	}
	if version != newest {
		return fmt.Errorf("migration %06d is not the newest applied (%06d); roll back newer migrations first", version, newest)
	}
	return nil
}

// RollbackMigration runs the down script for version and forgets it.
func RollbackMigration(ctx context.Context, db *gorm.DB, version int) error {
	m := GetMigrationByVersion(version)
	if m == nil {
		return fmt.Errorf("no embedded migration %06d", version)
	}

	store := NewMigrationStore(db)
	applied, err := store.GetAppliedMigrations(ctx)
	if err != nil {
		return err
	}
	if err := checkRollbackOrder(applied, version); err != nil {
		return err
	}

	middleware.Logger.Info("Reverting schema migration", slog.String("migration", m.String()))
	if err := db.WithContext(ctx).Exec(m.DownScript).Error; err != nil {
		return fmt.Errorf("down script %s: %w", m.String(), err)
	}
	return store.RemoveMigration(ctx, version)
}
