// internal/infrastructure/persistence/postgres/repository/health/repository.go
package health

import (
	"context"
	"fmt"
	"time"

	"sports-fixtures-bot/internal/core/domain/fixtures"

	"github.com/jmoiron/sqlx"
)

// HealthRepository интерфейс архива телеметрии префетча и сводок.
// Архив append-only: кэш хранит только последний снапшот, история
// живёт здесь.
type HealthRepository interface {
	SaveHealthSnapshot(ctx context.Context, record fixtures.PrefetchHealthRecord) error
	SaveAggregateTotals(ctx context.Context, snapshot *fixtures.AggregateSnapshot) error
	RecentHealth(ctx context.Context, sport string, limit int) ([]fixtures.PrefetchHealthRecord, error)
}

// HealthRepositoryImpl реализация архива на Postgres
type HealthRepositoryImpl struct {
	db *sqlx.DB
}

// NewHealthRepository создает новый репозиторий телеметрии
func NewHealthRepository(db *sqlx.DB) *HealthRepositoryImpl {
	return &HealthRepositoryImpl{db: db}
}

// healthRow строка таблицы prefetch_health_history
type healthRow struct {
	Sport         string    `db:"sport"`
	LastUpdated   time.Time `db:"last_updated"`
	FixturesCount int       `db:"fixtures_count"`
	TeamsCount    int       `db:"teams_count"`
	HTTPStatus    int       `db:"http_status"`
	ErrorReason   string    `db:"error_reason"`
	PathUsed      string    `db:"path_used"`
}

// SaveHealthSnapshot добавляет запись телеметрии в историю
func (r *HealthRepositoryImpl) SaveHealthSnapshot(ctx context.Context, record fixtures.PrefetchHealthRecord) error {
	query := `
    INSERT INTO prefetch_health_history
        (sport, last_updated, fixtures_count, teams_count, http_status, error_reason, path_used)
    VALUES
        (:sport, :last_updated, :fixtures_count, :teams_count, :http_status, :error_reason, :path_used)
    `

	row := healthRow{
		Sport:         record.Sport,
		LastUpdated:   record.LastUpdated,
		FixturesCount: record.FixturesCount,
		TeamsCount:    record.TeamsCount,
		HTTPStatus:    record.HTTPStatus,
		ErrorReason:   record.ErrorReason,
		PathUsed:      record.PathUsed,
	}

	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("failed to save health snapshot: %w", err)
	}
	return nil
}

// SaveAggregateTotals добавляет сводные счётчики прохода агрегации
func (r *HealthRepositoryImpl) SaveAggregateTotals(ctx context.Context, snapshot *fixtures.AggregateSnapshot) error {
	query := `
    INSERT INTO aggregate_history (total_live, total_upcoming, sports_count, providers_count, created_at)
    VALUES ($1, $2, $3, $4, $5)
    `

	_, err := r.db.ExecContext(ctx, query,
		snapshot.TotalLiveMatches,
		snapshot.TotalUpcomingFixtures,
		len(snapshot.BySport),
		len(snapshot.ByProvider),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save aggregate totals: %w", err)
	}
	return nil
}

// RecentHealth возвращает последние записи телеметрии по виду спорта
func (r *HealthRepositoryImpl) RecentHealth(ctx context.Context, sport string, limit int) ([]fixtures.PrefetchHealthRecord, error) {
	query := `
    SELECT sport, last_updated, fixtures_count, teams_count, http_status, error_reason, path_used
    FROM prefetch_health_history
    WHERE sport = $1
    ORDER BY last_updated DESC
    LIMIT $2
    `

	var rows []healthRow
	if err := r.db.SelectContext(ctx, &rows, query, sport, limit); err != nil {
		return nil, fmt.Errorf("failed to load health history: %w", err)
	}

	records := make([]fixtures.PrefetchHealthRecord, len(rows))
	for i, row := range rows {
		records[i] = fixtures.PrefetchHealthRecord{
			Sport:         row.Sport,
			LastUpdated:   row.LastUpdated,
			FixturesCount: row.FixturesCount,
			TeamsCount:    row.TeamsCount,
			HTTPStatus:    row.HTTPStatus,
			ErrorReason:   row.ErrorReason,
			PathUsed:      row.PathUsed,
		}
	}
	return records, nil
}
