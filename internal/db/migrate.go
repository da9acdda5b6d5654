package db

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
)

//go:embed sql/pre_automigrate.sql
var preAutoMigrateSQL string

//go:embed sql/post_automigrate.sql
var postAutoMigrateSQL string

type migrationStep struct {
	label string
	run   func(ctx context.Context, p *Pool) error
}

// migrationSteps creates the vector extension and schema, lets gorm shape the
// tables, then adds the HNSW index and the checks gorm cannot express.
func migrationSteps() []migrationStep {
	return []migrationStep{
		{label: "pre-auto-migrate", run: rawSQLStep(preAutoMigrateSQL)},
		{label: "gorm auto-migrate", run: func(ctx context.Context, p *Pool) error {
			return p.gdb.WithContext(ctx).AutoMigrate(autoMigrateModels()...)
		}},
		{label: "post-auto-migrate", run: rawSQLStep(postAutoMigrateSQL)},
	}
}

func (p *Pool) autoMigrate(ctx context.Context) error {
	if p == nil || p.gdb == nil {
		return ErrNotInitialized
	}
	for _, step := range migrationSteps() {
		if err := step.run(ctx, p); err != nil {
			return fmt.Errorf("%s: %w", step.label, err)
		}
	}
	return nil
}

func rawSQLStep(sqlText string) func(ctx context.Context, p *Pool) error {
	trimmed := strings.TrimSpace(sqlText)
	return func(ctx context.Context, p *Pool) error {
		if trimmed == "" {
			return nil
		}
		return p.gdb.WithContext(ctx).Exec(trimmed).Error
	}
}
