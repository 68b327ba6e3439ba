// internal/fetcher/fetcher.go
package fetcher

import (
	"context"
	"encoding/json"
	"time"
)

// FetchResult - итог одного обращения к провайдеру.
// Ошибки возвращаются как данные: префетчу нужен HTTP-статус и причина
// для телеметрии, а не паника через полстека.
type FetchResult struct {
	Items       []json.RawMessage
	HTTPStatus  int
	PathUsed    string
	ErrorReason string
}

// Failed сообщает, завершился ли запрос ошибкой
func (r FetchResult) Failed() bool {
	return r.ErrorReason != ""
}

// ProviderFetcher - граница с внешним спортивным API.
// Реализации не должны блокироваться бесконечно: таймауты — их зона
// ответственности.
type ProviderFetcher interface {
	// Name возвращает имя провайдера для канонических записей и ключей
	Name() string

	// FetchTeams возвращает сырые записи команд по виду спорта
	FetchTeams(ctx context.Context, sport string) FetchResult

	// FetchFixtures возвращает сырые события за диапазон дат
	FetchFixtures(ctx context.Context, sport string, from, to time.Time) FetchResult
}
