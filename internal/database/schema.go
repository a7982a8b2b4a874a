package database

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"momento/internal/config"
	"momento/internal/middleware"

	"gorm.io/gorm"
)

// SchemaMode selects how the feed schema is brought up to date at boot.
//
//   - hybrid: embedded SQL migrations always, AutoMigrate on top outside prod
//   - sql: embedded SQL migrations only
//   - auto: AutoMigrate only, refused in prod unless explicitly allowed
type SchemaMode string

const (
	SchemaModeHybrid SchemaMode = "hybrid"
	SchemaModeSQL    SchemaMode = "sql"
	SchemaModeAuto   SchemaMode = "auto"
)

// schemaPlan is what ApplySchema will do for a given config.
type schemaPlan struct {
	Mode SchemaMode
	SQL  bool
	Auto bool
}

// SchemaStatus reports the plan for the current config plus what the
// database already holds.
type SchemaStatus struct {
	Mode               SchemaMode
	Environment        string
	WillRunSQL         bool
	WillRunAutoMigrate bool
	AppliedVersions    []int
	PendingMigrations  []Migration
	// MissingTables lists feed tables the database does not have yet.
	MissingTables []string
}

var prodLikeEnvs = map[string]bool{"production": true, "prod": true, "staging": true, "stage": true}

func modeFor(cfg *config.Config) SchemaMode {
	mode := SchemaMode(strings.ToLower(strings.TrimSpace(cfg.DBSchemaMode)))
	if mode == "" {
		return SchemaModeHybrid
	}
	return mode
}

func planSchema(cfg *config.Config) (schemaPlan, error) {
	mode := modeFor(cfg)
	prod := prodLikeEnvs[strings.ToLower(strings.TrimSpace(cfg.Env))]

	switch mode {
	case SchemaModeSQL:
		return schemaPlan{Mode: mode, SQL: true}, nil
	case SchemaModeAuto:
		if prod && !cfg.DBAutoMigrateAllowDestructive {
			return schemaPlan{}, fmt.Errorf("schema mode auto is not allowed in %q; use sql migrations or set DB_AUTOMIGRATE_ALLOW_DESTRUCTIVE=true", cfg.Env)
		}
		return schemaPlan{Mode: mode, Auto: true}, nil
	case SchemaModeHybrid:
		return schemaPlan{Mode: mode, SQL: true, Auto: !prod}, nil
	default:
		return schemaPlan{}, fmt.Errorf("unknown DB_SCHEMA_MODE %q (want hybrid, sql or auto)", mode)
	}
}

// missingTables returns the feed tables that are not present, in
// PersistentModels order.
func missingTables(db *gorm.DB) []string {
	var missing []string
	migrator := db.Migrator()
	for _, model := range PersistentModels() {
		if migrator.HasTable(model) {
			continue
		}
		stmt := &gorm.Statement{DB: db}
		if err := stmt.Parse(model); err != nil {
			missing = append(missing, fmt.Sprintf("%T", model))
			continue
		}
		missing = append(missing, stmt.Schema.Table)
	}
	return missing
}

// ApplySchema migrates the database for cfg and fails if any table the
// feed reads from is still absent afterwards.
func ApplySchema(ctx context.Context, db *gorm.DB, cfg *config.Config) error {
	plan, err := planSchema(cfg)
	if err != nil {
		return err
	}

	if plan.SQL {
		if err := RunMigrations(ctx, db); err != nil {
			return fmt.Errorf("sql migrations: %w", err)
		}
	}

	if plan.Auto {
		if plan.Mode == SchemaModeAuto && cfg.DBAutoMigrateAllowDestructive {
			middleware.Logger.Warn("AutoMigrate allowed in a prod-like environment; column drops are not applied but type changes are",
				slog.String("env", cfg.Env))
		}
		middleware.Logger.Info("Syncing feed models", slog.String("mode", string(plan.Mode)), slog.Int("models", len(PersistentModels())))
		if err := db.WithContext(ctx).AutoMigrate(PersistentModels()...); err != nil {
			return fmt.Errorf("automigrate feed models: %w", err)
		}
	}

	if missing := missingTables(db.WithContext(ctx)); len(missing) > 0 {
		return fmt.Errorf("schema incomplete after %s apply, missing tables: %s", plan.Mode, strings.Join(missing, ", "))
	}
	return nil
}

// GetSchemaStatus describes what ApplySchema would do without changing anything.
func GetSchemaStatus(ctx context.Context, db *gorm.DB, cfg *config.Config) (*SchemaStatus, error) {
	plan, err := planSchema(cfg)
	if err != nil {
		return nil, err
	}

	status := &SchemaStatus{
		Mode:               plan.Mode,
		Environment:        cfg.Env,
		WillRunSQL:         plan.SQL,
		WillRunAutoMigrate: plan.Auto,
		MissingTables:      missingTables(db.WithContext(ctx)),
	}
	if !plan.SQL {
		return status, nil
	}

	applied, err := NewMigrationStore(db).GetAppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}
	status.AppliedVersions = applied
	status.PendingMigrations = pendingMigrations(applied, GetMigrations())
	return status, nil
}
