package directory

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/synaptica-ai/provider-hub/pkg/common/apperr"
	"github.com/synaptica-ai/provider-hub/pkg/common/logger"
	"github.com/synaptica-ai/provider-hub/pkg/recordstore"
)

var ErrProviderNotFound = apperr.E(apperr.KindNotFound, "directory.Resolve", "provider not found")

// Resolver maps an external provider identifier onto a provider row. The
// identifier field is not named consistently across deployments, so each
// candidate field is tried in order until one matches.
type Resolver struct {
	store      recordstore.Store
	table      string
	view       string
	candidates []string
}

func NewResolver(store recordstore.Store, table, view, overrideField string) *Resolver {
	return &Resolver{
		store:      store,
		table:      table,
		view:       view,
		candidates: CandidateFields(overrideField),
	}
}

func (r *Resolver) Candidates() []string {
	return append([]string(nil), r.candidates...)
}

// Resolve returns ErrProviderNotFound when no candidate matches. Filter
// rejections (unknown field) move on to the next candidate; every other store
// error aborts.
func (r *Resolver) Resolve(ctx context.Context, identifier string) (recordstore.Record, error) {
	id := strings.TrimSpace(identifier)
	if id == "" {
		return recordstore.Record{}, ErrProviderNotFound
	}

	if recordstore.IsRecordID(id) {
		rec, err := r.store.Find(ctx, r.table, id)
		if errors.Is(err, recordstore.ErrNotFound) {
			return recordstore.Record{}, ErrProviderNotFound
		}
		if err != nil {
			return recordstore.Record{}, fmt.Errorf("find provider %s: %w", id, err)
		}
		return rec, nil
	}

	_, numErr := strconv.ParseFloat(id, 64)
	numeric := numErr == nil

	for _, field := range r.candidates {
		ops := []recordstore.Op{recordstore.OpEquals}
		if numeric {
			ops = append(ops, recordstore.OpNumberEquals)
		}

		for _, op := range ops {
			records, err := r.store.Select(ctx, r.table, recordstore.SelectOptions{
				Filter:     recordstore.Where(field, op, id),
				MaxRecords: 1,
				View:       r.view,
			})
			if errors.Is(err, recordstore.ErrInvalidFilter) {
				logger.Log.WithFields(map[string]interface{}{
					"field": field,
					"error": err.Error(),
				}).Debug("Identifier field rejected, trying next candidate")
				break
			}
			if err != nil {
				return recordstore.Record{}, fmt.Errorf("lookup provider by %q: %w", field, err)
			}
			if len(records) > 0 {
				return records[0], nil
			}
		}
	}

	return recordstore.Record{}, ErrProviderNotFound
}
