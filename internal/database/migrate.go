// Package database はデータベース接続とマイグレーション管理を提供する。
package database

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/primary/*.sql migrations/secondary/*.sql
var migrationsFS embed.FS

// Schema はマイグレーションセットの識別子。データストアごとに別のスキーマを持つ。
type Schema string

const (
	// SchemaPrimary はユーザープロフィールを保持するプライマリストアのスキーマ。
	SchemaPrimary Schema = "primary"
	// SchemaSecondary はユーザースタブ、日記、セッション、ブックマークを保持するセカンダリストアのスキーマ。
	SchemaSecondary Schema = "secondary"
)

// NewMigrator はマイグレーション実行用のmigrateインスタンスを生成する。
// databaseURLはPostgreSQLの接続URLを指定する。
func NewMigrator(schema Schema, databaseURL string) (*migrate.Migrate, error) {
	switch schema {
	case SchemaPrimary, SchemaSecondary:
	default:
		return nil, fmt.Errorf("unknown migration schema: %q", schema)
	}

	source, err := iofs.New(migrationsFS, "migrations/"+string(schema))
	if err != nil {
		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}

	return m, nil
}

// RunMigrations は指定スキーマのすべてのマイグレーションを適用する。
// すでに最新の場合はエラーなしで返る。
func RunMigrations(schema Schema, databaseURL string) error {
	m, err := NewMigrator(schema, databaseURL)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run %s migrations: %w", schema, err)
	}

	return nil
}
