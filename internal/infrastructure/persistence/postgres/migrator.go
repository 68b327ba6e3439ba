// internal/infrastructure/persistence/postgres/migrator.go
package postgres

import (
	"crypto/sha256"
	"embed"
	"fmt"
	"sort"
	"strings"
	"time"

	"sports-fixtures-bot/pkg/logger"

	"github.com/jmoiron/sqlx"
)

// Файлы миграций зашиты в бинарник: схема едет вместе с кодом,
// рабочая директория процесса не важна
//
//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migration одна миграция схемы
type Migration struct {
	ID       int
	Name     string
	SQL      string
	Checksum string
}

// Migrator применяет миграции схемы при старте сервиса базы данных.
// Только вперёд: отката нет, применённая миграция не должна меняться
// (контрольная сумма это проверяет).
type Migrator struct {
	db         *sqlx.DB
	migrations []Migration
}

// NewMigrator создает мигратор поверх открытого соединения
func NewMigrator(db *sqlx.DB) *Migrator {
	return &Migrator{db: db}
}

// Load читает зашитые миграции и проверяет непрерывность нумерации
func (m *Migrator) Load() error {
	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("failed to read embedded migrations: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	m.migrations = m.migrations[:0]
	for _, filename := range names {
		id, name, perr := parseMigrationFilename(filename)
		if perr != nil {
			return perr
		}

		content, rerr := migrationFiles.ReadFile("migrations/" + filename)
		if rerr != nil {
			return fmt.Errorf("failed to read migration %s: %w", filename, rerr)
		}

		m.migrations = append(m.migrations, Migration{
			ID:       id,
			Name:     name,
			SQL:      string(content),
			Checksum: checksum(string(content)),
		})
	}

	if len(m.migrations) == 0 {
		return fmt.Errorf("no migrations found")
	}
	for i, migration := range m.migrations {
		if migration.ID != i+1 {
			return fmt.Errorf("migration IDs must be sequential: expected %d, got %d (%s)",
				i+1, migration.ID, migration.Name)
		}
	}
	return nil
}

// Migrate применяет все неприменённые миграции по порядку.
// Каждая миграция выполняется в своей транзакции вместе с записью
// в таблицу migrations.
func (m *Migrator) Migrate() error {
	if len(m.migrations) == 0 {
		if err := m.Load(); err != nil {
			return err
		}
	}

	if err := m.initTable(); err != nil {
		return err
	}

	applied, err := m.appliedChecksums()
	if err != nil {
		return err
	}

	appliedCount := 0
	for _, migration := range m.migrations {
		if existing, ok := applied[migration.ID]; ok {
			if existing != migration.Checksum {
				return fmt.Errorf("migration %d (%s) changed after being applied", migration.ID, migration.Name)
			}
			continue
		}

		if err := m.apply(migration); err != nil {
			return fmt.Errorf("failed to apply migration %d (%s): %w", migration.ID, migration.Name, err)
		}
		appliedCount++
	}

	if appliedCount > 0 {
		logger.Info("✅ [DB] Применено миграций: %d", appliedCount)
	} else {
		logger.Debug("✅ [DB] Схема актуальна (%d миграций)", len(m.migrations))
	}
	return nil
}

// initTable создает таблицу учёта миграций
func (m *Migrator) initTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS migrations (
		id         INTEGER PRIMARY KEY,
		name       TEXT        NOT NULL,
		checksum   TEXT        NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)
	`
	if _, err := m.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

// appliedChecksums возвращает контрольные суммы применённых миграций
func (m *Migrator) appliedChecksums() (map[int]string, error) {
	rows, err := m.db.Query(`SELECT id, checksum FROM migrations ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]string)
	for rows.Next() {
		var id int
		var sum string
		if err := rows.Scan(&id, &sum); err != nil {
			return nil, fmt.Errorf("failed to scan migration record: %w", err)
		}
		applied[id] = sum
	}
	return applied, rows.Err()
}

// apply выполняет одну миграцию в транзакции
func (m *Migrator) apply(migration Migration) error {
	logger.Info("📤 [DB] Применяем миграцию %d: %s", migration.ID, migration.Name)

	tx, err := m.db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(migration.SQL); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}

	record := `INSERT INTO migrations (id, name, checksum, applied_at) VALUES ($1, $2, $3, $4)`
	if _, err := tx.Exec(record, migration.ID, migration.Name, migration.Checksum, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to save migration record: %w", err)
	}

	return tx.Commit()
}

// parseMigrationFilename разбирает имя файла формата 001_init.sql
func parseMigrationFilename(filename string) (int, string, error) {
	base := strings.TrimSuffix(filename, ".sql")
	parts := strings.SplitN(base, "_", 2)
	if len(parts) != 2 {
		return 0, "", fmt.Errorf("invalid migration filename: %s (expected 001_name.sql)", filename)
	}

	var id int
	if _, err := fmt.Sscanf(parts[0], "%d", &id); err != nil || id <= 0 {
		return 0, "", fmt.Errorf("invalid migration ID in filename: %s", filename)
	}

	return id, strings.ReplaceAll(parts[1], "_", " "), nil
}

func checksum(content string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(content)))
}
