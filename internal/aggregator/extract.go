// internal/aggregator/extract.go
package aggregator

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"

	"sports-fixtures-bot/internal/core/domain/fixtures"
)

// Поля, под которыми провайдеры прячут массив событий.
// Проверяются строго по порядку, первый найденный массив побеждает.
var eventArrayFields = []string{"data", "fixtures", "events", "items", "matches", "list"}

// Цепочки кандидатов для каждого атрибута: схемы провайдеров разные,
// берём первое непустое значение строго по порядку
var (
	homeTeamPaths = []string{"home_team", "home", "homeTeam.name", "homeTeam", "team1", "teams.0", "teams.0.name", "home.name"}
	awayTeamPaths = []string{"away_team", "away", "awayTeam.name", "awayTeam", "team2", "teams.1", "teams.1.name", "away.name"}
	startPaths    = []string{"start_time", "startTime", "commence_time", "start", "date", "kickoff", "scheduled", "time"}
	sportPaths    = []string{"sport", "sport_key", "sport_title", "category", "discipline"}
	leaguePaths   = []string{"league", "league_name", "tournament", "competition", "league.name", "tournament.name"}
	statusPaths   = []string{"status", "state", "match_status", "type", "status.type"}
	providerPaths = []string{"provider", "bookmaker", "source"}
	oddsPaths     = []string{"odds", "markets", "bookmakers"}
)

// Словарь "живых" статусов
var liveStatusRe = regexp.MustCompile(`(?i)\b(live|inplay|in[ _-]play|running)\b`)

// locateEvents ищет массив событий внутри распарсенного значения.
// Значение, которое само является массивом, принимается как есть.
func locateEvents(value interface{}) []interface{} {
	if arr, ok := value.([]interface{}); ok {
		return arr
	}

	obj, ok := value.(map[string]interface{})
	if !ok {
		return nil
	}
	for _, field := range eventArrayFields {
		if arr, ok := obj[field].([]interface{}); ok {
			return arr
		}
	}
	return nil
}

// lookupPath извлекает значение по точечному пути.
// Числовой сегмент индексирует массив: "teams.0" — первая команда.
func lookupPath(value interface{}, path string) interface{} {
	current := value
	for _, segment := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]interface{}:
			current = node[segment]
		case []interface{}:
			index, err := strconv.Atoi(segment)
			if err != nil || index < 0 || index >= len(node) {
				return nil
			}
			current = node[index]
		default:
			return nil
		}
		if current == nil {
			return nil
		}
	}
	return current
}

// firstString возвращает первое непустое строковое значение по цепочке путей
func firstString(event map[string]interface{}, paths []string) string {
	for _, p := range paths {
		if s, ok := lookupPath(event, p).(string); ok {
			if trimmed := strings.TrimSpace(s); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}

// firstScalar — как firstString, но числа тоже принимаются
// (время старта часто приходит unix-таймстампом)
func firstScalar(event map[string]interface{}, paths []string) string {
	for _, p := range paths {
		switch v := lookupPath(event, p).(type) {
		case string:
			if trimmed := strings.TrimSpace(v); trimmed != "" {
				return trimmed
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

// firstRaw возвращает первое найденное значение как сырой JSON
func firstRaw(event map[string]interface{}, paths []string) json.RawMessage {
	for _, p := range paths {
		value := lookupPath(event, p)
		if value == nil {
			continue
		}
		raw, err := json.Marshal(value)
		if err != nil {
			continue
		}
		return raw
	}
	return nil
}

// Форматы времени старта, которые встречались у провайдеров
var startTimeLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseStartTime пытается разобрать время старта.
// Понимает ISO-форматы и unix-таймстампы в секундах и миллисекундах.
func parseStartTime(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}

	for _, layout := range startTimeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}

	if ts, err := strconv.ParseInt(raw, 10, 64); err == nil && ts > 0 {
		if ts > 1e12 {
			return time.UnixMilli(ts).UTC(), true
		}
		return time.Unix(ts, 0).UTC(), true
	}

	return time.Time{}, false
}

// classify относит событие к live или upcoming.
// Live: статус из живого словаря ИЛИ статуса нет вовсе, а время старта
// разобралось и уже наступило. Всё остальное — upcoming, включая
// события с явным неживым статусом, даже если они уже начались.
func classify(status, startRaw string, now time.Time) string {
	if status != "" {
		if liveStatusRe.MatchString(status) {
			return fixtures.TypeLive
		}
		return fixtures.TypeUpcoming
	}

	if start, ok := parseStartTime(startRaw); ok && !start.After(now) {
		return fixtures.TypeLive
	}
	return fixtures.TypeUpcoming
}

// NormalizeEvents приводит пачку сырых провайдерских записей
// к канонической форме. Префетч пользуется теми же правилами
// извлечения, что и агрегатор, поэтому их снапшоты совместимы.
func NormalizeEvents(items []json.RawMessage, provider, sport string, now time.Time) []fixtures.NormalizedFixture {
	result := make([]fixtures.NormalizedFixture, 0, len(items))
	for _, item := range items {
		var decoded interface{}
		if err := json.Unmarshal(item, &decoded); err != nil {
			continue
		}
		if f, ok := extractFixture(decoded, provider, sport, now); ok {
			result = append(result, f)
		}
	}
	return result
}

// extractFixture приводит одно провайдерское событие к канонической форме.
// Событие без обеих команд отбрасывается: его нельзя ни дедуплицировать,
// ни показать пользователю.
func extractFixture(event interface{}, keyProvider, keySport string, now time.Time) (fixtures.NormalizedFixture, bool) {
	obj, ok := event.(map[string]interface{})
	if !ok {
		return fixtures.NormalizedFixture{}, false
	}

	home := firstString(obj, homeTeamPaths)
	away := firstString(obj, awayTeamPaths)
	if home == "" || away == "" {
		return fixtures.NormalizedFixture{}, false
	}

	provider := firstString(obj, providerPaths)
	if provider == "" {
		provider = keyProvider
	}
	sport := firstString(obj, sportPaths)
	if sport == "" {
		sport = keySport
	}

	startRaw := firstScalar(obj, startPaths)
	status := firstString(obj, statusPaths)

	return fixtures.NormalizedFixture{
		Provider:  provider,
		Sport:     sport,
		League:    firstString(obj, leaguePaths),
		HomeTeam:  home,
		AwayTeam:  away,
		StartTime: startRaw,
		Type:      classify(status, startRaw, now),
		Odds:      firstRaw(obj, oddsPaths),
	}, true
}
