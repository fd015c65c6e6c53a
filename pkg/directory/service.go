package directory

import (
	"context"
	"errors"

	"github.com/synaptica-ai/provider-hub/pkg/common/apperr"
	"github.com/synaptica-ai/provider-hub/pkg/common/models"
	"github.com/synaptica-ai/provider-hub/pkg/recordstore"
)

// Service is the typed provider directory on top of the record store.
type Service struct {
	store    recordstore.Store
	resolver *Resolver
	table    string
	view     string
}

func NewService(store recordstore.Store, table, view, overrideIDField string) *Service {
	return &Service{
		store:    store,
		resolver: NewResolver(store, table, view, overrideIDField),
		table:    table,
		view:     view,
	}
}

func (s *Service) List(ctx context.Context) ([]models.Provider, error) {
	records, err := s.store.Select(ctx, s.table, recordstore.SelectOptions{View: s.view})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, "directory.List", err)
	}

	providers := make([]models.Provider, 0, len(records))
	for _, rec := range records {
		providers = append(providers, ProviderFromRecord(rec, s.resolver.candidates))
	}
	return providers, nil
}

// Get resolves identifier and returns ErrProviderNotFound when nothing matches.
func (s *Service) Get(ctx context.Context, identifier string) (models.Provider, error) {
	rec, err := s.resolver.Resolve(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrProviderNotFound) {
			return models.Provider{}, err
		}
		return models.Provider{}, apperr.Wrap(apperr.KindUpstream, "directory.Get", err)
	}
	return ProviderFromRecord(rec, s.resolver.candidates), nil
}

// Update writes fields onto the provider row identified by its record handle.
func (s *Service) Update(ctx context.Context, recordID string, fields map[string]interface{}) error {
	if _, err := s.store.Update(ctx, s.table, recordID, fields); err != nil {
		if errors.Is(err, recordstore.ErrNotFound) {
			return ErrProviderNotFound
		}
		return apperr.Wrap(apperr.KindUpstream, "directory.Update", err)
	}
	return nil
}
