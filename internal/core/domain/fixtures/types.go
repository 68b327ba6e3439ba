// internal/core/domain/fixtures/types.go
package fixtures

import (
	"encoding/json"
	"strings"
	"time"
)

// Типы фикстур
const (
	TypeLive     = "live"
	TypeUpcoming = "upcoming"
)

// NormalizedFixture - каноническая форма одного матча.
// Все провайдерские схемы приводятся к ней до слияния;
// отдельно фикстуры не хранятся, только внутри ограниченного списка.
type NormalizedFixture struct {
	Provider  string          `json:"provider"`
	Sport     string          `json:"sport"`
	League    string          `json:"league"`
	HomeTeam  string          `json:"homeTeam"`
	AwayTeam  string          `json:"awayTeam"`
	StartTime string          `json:"startTime"`
	Type      string          `json:"type"` // live | upcoming
	Odds      json.RawMessage `json:"odds,omitempty"`
}

// DedupKey - составной ключ идентичности матча.
// Две записи с одинаковым ключом из разных провайдеров — один матч.
func (f NormalizedFixture) DedupKey() string {
	normalize := func(s string) string {
		return strings.ToLower(strings.TrimSpace(s))
	}
	return normalize(f.HomeTeam) + "::" + normalize(f.AwayTeam) + "::" + normalize(f.StartTime)
}

// SportCounts пара счётчиков live/upcoming
type SportCounts struct {
	Live     int `json:"live"`
	Upcoming int `json:"upcoming"`
}

// WriteResult результат одного шага персистентности агрегатора.
// Ошибки записи не прерывают агрегацию, но и не теряются молча.
type WriteResult struct {
	Step string
	Err  error
}

// AggregateSnapshot - сводка одного прохода агрегации.
// Пересчитывается с нуля каждый раз, инкрементально не изменяется.
// Инварианты: TotalLiveMatches == сумма BySport[*].Live,
// TotalUpcomingFixtures == сумма BySport[*].Upcoming.
type AggregateSnapshot struct {
	TotalLiveMatches      int                    `json:"totalLiveMatches"`
	TotalUpcomingFixtures int                    `json:"totalUpcomingFixtures"`
	BySport               map[string]SportCounts `json:"bySport"`
	ByProvider            map[string]SportCounts `json:"byProvider"`
	Fixtures              []NormalizedFixture    `json:"fixtures"`

	// Результаты шагов записи; в ключи кэша не сериализуются
	WriteResults []WriteResult `json:"-"`
}

// PrefetchHealthRecord - телеметрия последнего прогона префетча
// по одному виду спорта. Все поля присутствуют всегда (нулевые при
// полном провале), чтобы потребители могли сравнивать два снапшота
// без проверок на null.
type PrefetchHealthRecord struct {
	Sport         string    `json:"sport"`
	LastUpdated   time.Time `json:"lastUpdated"`
	FixturesCount int       `json:"fixturesCount"`
	TeamsCount    int       `json:"teamsCount"`
	HTTPStatus    int       `json:"httpStatus"`
	ErrorReason   string    `json:"errorReason"`
	PathUsed      string    `json:"pathUsed"`
}
