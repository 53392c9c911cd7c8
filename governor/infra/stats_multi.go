package infra

import (
	"context"

	"filevault-client/governor/domain"

	"go.uber.org/multierr"
)

// MultiStatsStore repassa cada evento para todos os stores.
// Um store com erro não impede os demais; os erros são combinados.
type MultiStatsStore []domain.StatsStore

func (m MultiStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	var err error
	for _, s := range m {
		if s == nil {
			continue
		}
		err = multierr.Append(err, s.Record(ctx, ev))
	}
	return err
}
