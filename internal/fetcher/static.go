// internal/fetcher/static.go
package fetcher

import (
	"context"
	"encoding/json"
	"time"
)

// StaticFetcher отдаёт заранее заданные ответы.
// Используется в тестах и в демо-режиме без внешнего API.
type StaticFetcher struct {
	Teams    map[string][]json.RawMessage // sport -> записи команд
	Fixtures map[string][]json.RawMessage // sport -> события
	Path     string
	Provider string

	// Err задаёт вид спорта, для которого эмулируется сбой
	Err       map[string]string
	ErrStatus int
}

func NewStaticFetcher() *StaticFetcher {
	return &StaticFetcher{
		Teams:    make(map[string][]json.RawMessage),
		Fixtures: make(map[string][]json.RawMessage),
		Err:      make(map[string]string),
		Path:     "/static",
		Provider: "static",
	}
}

func (f *StaticFetcher) Name() string {
	return f.Provider
}

func (f *StaticFetcher) FetchTeams(ctx context.Context, sport string) FetchResult {
	if reason, ok := f.Err[sport]; ok {
		return FetchResult{HTTPStatus: f.errStatus(), PathUsed: f.Path, ErrorReason: reason}
	}
	return FetchResult{
		Items:      f.Teams[sport],
		HTTPStatus: 200,
		PathUsed:   f.Path + "/teams/" + sport,
	}
}

func (f *StaticFetcher) FetchFixtures(ctx context.Context, sport string, from, to time.Time) FetchResult {
	if reason, ok := f.Err[sport]; ok {
		return FetchResult{HTTPStatus: f.errStatus(), PathUsed: f.Path, ErrorReason: reason}
	}
	return FetchResult{
		Items:      f.Fixtures[sport],
		HTTPStatus: 200,
		PathUsed:   f.Path + "/fixtures/" + sport,
	}
}

func (f *StaticFetcher) errStatus() int {
	if f.ErrStatus != 0 {
		return f.ErrStatus
	}
	return 502
}
