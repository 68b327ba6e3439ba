// internal/infrastructure/persistence/postgres/migrator_test.go
package postgres

import (
	"strings"
	"testing"
)

// Зашитые миграции должны загружаться и идти без пропусков в нумерации
func TestLoadEmbeddedMigrations(t *testing.T) {
	m := NewMigrator(nil)
	if err := m.Load(); err != nil {
		t.Fatal(err)
	}

	if len(m.migrations) == 0 {
		t.Fatal("в бинарнике нет ни одной миграции")
	}

	for i, migration := range m.migrations {
		if migration.ID != i+1 {
			t.Errorf("нумерация миграций: на позиции %d ID %d", i, migration.ID)
		}
		if strings.TrimSpace(migration.SQL) == "" {
			t.Errorf("миграция %d пустая", migration.ID)
		}
		if migration.Checksum == "" {
			t.Errorf("миграция %d без контрольной суммы", migration.ID)
		}
	}

	// Первая миграция создаёт таблицы, в которые пишут репозитории
	first := m.migrations[0].SQL
	if !strings.Contains(first, "prefetch_health_history") || !strings.Contains(first, "aggregate_history") {
		t.Error("первая миграция должна создавать таблицы истории")
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		filename string
		id       int
		name     string
		wantErr  bool
	}{
		{"001_init.sql", 1, "init", false},
		{"012_add_league_column.sql", 12, "add league column", false},
		{"init.sql", 0, "", true},
		{"abc_init.sql", 0, "", true},
		{"000_zero.sql", 0, "", true},
	}

	for _, tt := range tests {
		id, name, err := parseMigrationFilename(tt.filename)
		if tt.wantErr {
			if err == nil {
				t.Errorf("%s: ожидали ошибку", tt.filename)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: %v", tt.filename, err)
			continue
		}
		if id != tt.id || name != tt.name {
			t.Errorf("%s: получили (%d, %q)", tt.filename, id, name)
		}
	}
}

// Контрольная сумма стабильна и чувствительна к содержимому
func TestChecksum(t *testing.T) {
	a := checksum("CREATE TABLE t (id INT);")
	b := checksum("CREATE TABLE t (id INT);")
	c := checksum("CREATE TABLE t (id BIGINT);")

	if a != b {
		t.Error("сумма одинакового содержимого должна совпадать")
	}
	if a == c {
		t.Error("сумма разного содержимого не должна совпадать")
	}
	if len(a) != 64 {
		t.Errorf("ожидали hex sha256 длиной 64, получили %d", len(a))
	}
}
