// internal/aggregator/extract_test.go
package aggregator

import (
	"encoding/json"
	"testing"
	"time"

	"sports-fixtures-bot/internal/core/domain/fixtures"
)

func decode(t *testing.T, raw string) map[string]interface{} {
	t.Helper()
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		t.Fatal(err)
	}
	return obj
}

func TestLookupPath(t *testing.T) {
	obj := decode(t, `{"homeTeam":{"name":"Real"},"teams":["Alpha","Beta"],"a":{"b":{"c":"deep"}}}`)

	if got := lookupPath(obj, "homeTeam.name"); got != "Real" {
		t.Errorf("homeTeam.name = %v", got)
	}
	if got := lookupPath(obj, "teams.0"); got != "Alpha" {
		t.Errorf("teams.0 = %v", got)
	}
	if got := lookupPath(obj, "teams.5"); got != nil {
		t.Errorf("выход за границы массива должен давать nil, получили %v", got)
	}
	if got := lookupPath(obj, "a.b.c"); got != "deep" {
		t.Errorf("a.b.c = %v", got)
	}
	if got := lookupPath(obj, "missing.path"); got != nil {
		t.Errorf("отсутствующий путь должен давать nil, получили %v", got)
	}
}

// Цепочки кандидатов перебираются по порядку до первого непустого
func TestHomeTeamFallbackChain(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{`{"home_team":"Snake"}`, "Snake"},
		{`{"home":"Plain"}`, "Plain"},
		{`{"homeTeam":{"name":"Nested"}}`, "Nested"},
		{`{"team1":"Numbered"}`, "Numbered"},
		{`{"teams":["First","Second"]}`, "First"},
		{`{"home":{"name":"ObjHome"}}`, "ObjHome"},
		// home_team побеждает home при обоих заполненных
		{`{"home_team":"Winner","home":"Loser"}`, "Winner"},
	}

	for _, tc := range cases {
		if got := firstString(decode(t, tc.raw), homeTeamPaths); got != tc.want {
			t.Errorf("%s: получили %q, ожидали %q", tc.raw, got, tc.want)
		}
	}
}

func TestFirstScalarAcceptsNumbers(t *testing.T) {
	obj := decode(t, `{"start_time":1767225600}`)
	if got := firstScalar(obj, startPaths); got != "1767225600" {
		t.Errorf("числовой таймстамп: %q", got)
	}
}

func TestParseStartTime(t *testing.T) {
	cases := []struct {
		raw string
		ok  bool
	}{
		{"2026-03-01T15:00:00Z", true},
		{"2026-03-01 15:00:00", true},
		{"2026-03-01", true},
		{"1767225600", true},    // unix секунды
		{"1767225600000", true}, // unix миллисекунды
		{"tomorrow", false},
		{"", false},
	}

	for _, tc := range cases {
		if _, ok := parseStartTime(tc.raw); ok != tc.ok {
			t.Errorf("parseStartTime(%q): ok=%v, ожидали %v", tc.raw, ok, tc.ok)
		}
	}

	sec, _ := parseStartTime("1767225600")
	millis, _ := parseStartTime("1767225600000")
	if !sec.Equal(millis) {
		t.Errorf("секунды и миллисекунды одного момента разошлись: %v vs %v", sec, millis)
	}
}

func TestClassify(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := "2026-03-01T11:00:00Z"
	future := "2026-03-01T18:00:00Z"

	cases := []struct {
		status string
		start  string
		want   string
	}{
		{"LIVE", "", fixtures.TypeLive},
		{"inplay", "", fixtures.TypeLive},
		{"In_Play", "", fixtures.TypeLive},
		{"running", "", fixtures.TypeLive},
		{"finished", past, fixtures.TypeUpcoming}, // явный неживой статус сильнее времени
		{"", past, fixtures.TypeLive},             // нет статуса, но матч уже начался
		{"", future, fixtures.TypeUpcoming},
		{"", "garbage", fixtures.TypeUpcoming}, // время не разобралось — не рискуем
		{"", "", fixtures.TypeUpcoming},
	}

	for _, tc := range cases {
		if got := classify(tc.status, tc.start, now); got != tc.want {
			t.Errorf("classify(%q, %q) = %q, ожидали %q", tc.status, tc.start, got, tc.want)
		}
	}
}

func TestLocateEvents(t *testing.T) {
	// Значение-массив принимается как есть
	var arr interface{}
	json.Unmarshal([]byte(`[{"a":1}]`), &arr)
	if events := locateEvents(arr); len(events) != 1 {
		t.Errorf("массив верхнего уровня: %v", events)
	}

	// Поля проверяются по порядку: data раньше events
	var obj interface{}
	json.Unmarshal([]byte(`{"events":[{"a":1},{"b":2}],"data":[{"c":3}]}`), &obj)
	events := locateEvents(obj)
	if len(events) != 1 {
		t.Fatalf("должен победить data: %v", events)
	}

	// Ни одного кандидата — событий нет
	json.Unmarshal([]byte(`{"payload":[1,2,3]}`), &obj)
	if events := locateEvents(obj); events != nil {
		t.Errorf("неизвестное поле не должно приниматься: %v", events)
	}
}

func TestExtractFixtureOdds(t *testing.T) {
	raw := `{"home_team":"A","away_team":"B","sport":"soccer","odds":{"1":1.5,"x":3.2,"2":6.0}}`
	var event interface{}
	json.Unmarshal([]byte(raw), &event)

	fixture, ok := extractFixture(event, "alpha", "", time.Now())
	if !ok {
		t.Fatal("фикстура с обеими командами должна извлекаться")
	}
	if len(fixture.Odds) == 0 {
		t.Error("котировки должны сохраняться как сырой JSON")
	}

	var odds map[string]float64
	if err := json.Unmarshal(fixture.Odds, &odds); err != nil {
		t.Fatalf("котировки должны оставаться валидным JSON: %v", err)
	}
	if odds["x"] != 3.2 {
		t.Errorf("котировки исказились: %v", odds)
	}
}

func TestExtractFixtureFallsBackToKeyContext(t *testing.T) {
	raw := `{"home_team":"A","away_team":"B"}`
	var event interface{}
	json.Unmarshal([]byte(raw), &event)

	fixture, ok := extractFixture(event, "betfair", "soccer", time.Now())
	if !ok {
		t.Fatal("ожидали фикстуру")
	}
	if fixture.Provider != "betfair" || fixture.Sport != "soccer" {
		t.Errorf("контекст ключа не подхватился: %+v", fixture)
	}
}

func TestNormalizeEventsSkipsGarbage(t *testing.T) {
	items := []json.RawMessage{
		json.RawMessage(`{"home_team":"A","away_team":"B","sport":"soccer"}`),
		json.RawMessage(`"just a string"`),
		json.RawMessage(`{"no_teams":true}`),
	}

	normalized := NormalizeEvents(items, "alpha", "soccer", time.Now())
	if len(normalized) != 1 {
		t.Fatalf("ожидали 1 фикстуру, получили %d", len(normalized))
	}
}

func TestDedupKeyNormalization(t *testing.T) {
	a := fixtures.NormalizedFixture{HomeTeam: " Real ", AwayTeam: "BARCA", StartTime: "2026-03-01T18:00:00Z"}
	b := fixtures.NormalizedFixture{HomeTeam: "real", AwayTeam: "barca", StartTime: "2026-03-01T18:00:00Z"}

	if a.DedupKey() != b.DedupKey() {
		t.Errorf("нормализация регистра и пробелов не сработала: %q vs %q", a.DedupKey(), b.DedupKey())
	}
}
