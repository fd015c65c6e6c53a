// Package patients upserts patient intake records keyed by email or phone.
package patients

import (
	"context"
	"errors"
	"strings"

	"github.com/synaptica-ai/provider-hub/pkg/common/apperr"
	"github.com/synaptica-ai/provider-hub/pkg/common/kafka"
	"github.com/synaptica-ai/provider-hub/pkg/common/logger"
	"github.com/synaptica-ai/provider-hub/pkg/common/models"
	"github.com/synaptica-ai/provider-hub/pkg/directory"
	"github.com/synaptica-ai/provider-hub/pkg/dlp"
	"github.com/synaptica-ai/provider-hub/pkg/observability/metrics"
	"github.com/synaptica-ai/provider-hub/pkg/recordstore"
)

const (
	FieldFirstName = "First Name"
	FieldLastName  = "Last Name"
	FieldEmail     = "Email"
	FieldPhone     = "Phone Number"
	FieldService   = "Service"
	FieldDoctors   = "Doctors"

	eventSource = "patients"
)

type ProviderLookup interface {
	Get(ctx context.Context, identifier string) (models.Provider, error)
}

type Service struct {
	store     recordstore.Store
	table     string
	providers ProviderLookup
	events    kafka.Publisher
	masker    *dlp.Masker
}

func NewService(store recordstore.Store, table string, providers ProviderLookup, events kafka.Publisher, masker *dlp.Masker) *Service {
	if events == nil {
		events = kafka.NopPublisher{}
	}
	return &Service{store: store, table: table, providers: providers, events: events, masker: masker}
}

// Upsert updates the first patient whose email matches case-insensitively or
// whose phone matches on digits, and creates one otherwise. Empty intake values
// never overwrite stored ones.
func (s *Service) Upsert(ctx context.Context, intake models.PatientIntake) (models.PatientUpsertResult, error) {
	if err := Validate(intake); err != nil {
		return models.PatientUpsertResult{}, err
	}

	existing, err := s.findExisting(ctx, intake)
	if err != nil {
		return models.PatientUpsertResult{}, err
	}

	fields := map[string]interface{}{}
	setIfPresent(fields, FieldFirstName, intake.FirstName)
	setIfPresent(fields, FieldLastName, intake.LastName)
	setIfPresent(fields, FieldEmail, intake.Email)
	setIfPresent(fields, FieldPhone, intake.Phone)
	setIfPresent(fields, FieldService, intake.Service)

	doctorID, err := s.doctorRecord(ctx, intake.ProviderID)
	if err != nil {
		return models.PatientUpsertResult{}, err
	}
	if doctorID != "" {
		fields[FieldDoctors] = []string{doctorID}
	}

	var rec recordstore.Record
	created := existing == nil
	if created {
		rec, err = s.store.Create(ctx, s.table, fields)
	} else {
		rec, err = s.store.Update(ctx, s.table, existing.ID, fields)
	}
	if err != nil {
		return models.PatientUpsertResult{}, apperr.Wrap(apperr.KindUpstream, "patients.Upsert", err)
	}

	metrics.ObservePatientUpsert(created)
	logger.WithFields(map[string]interface{}{
		"patient_id":  rec.ID,
		"created":     created,
		"provider_id": intake.ProviderID,
		"fields":      s.masker.Sanitize(fields),
	}).Info("Patient upserted")

	if err := s.events.PublishEvent(ctx, models.EventPatientUpserted, eventSource, map[string]interface{}{
		"patient_id":  rec.ID,
		"created":     created,
		"provider_id": intake.ProviderID,
	}); err != nil {
		logger.Log.WithError(err).Warn("Failed to publish patient event")
	}

	return models.PatientUpsertResult{ID: rec.ID, Created: created, Fields: rec.Fields}, nil
}

func (s *Service) findExisting(ctx context.Context, intake models.PatientIntake) (*recordstore.Record, error) {
	filter := &recordstore.Filter{}
	if email := strings.ToLower(strings.TrimSpace(intake.Email)); email != "" {
		filter.Or(FieldEmail, recordstore.OpEqualsFold, email)
	}
	if digits := digitsOnly(intake.Phone); digits != "" {
		filter.Or(FieldPhone, recordstore.OpDigitsEqual, digits)
	}
	if filter.Empty() {
		return nil, nil
	}

	recs, err := s.store.Select(ctx, s.table, recordstore.SelectOptions{Filter: filter, MaxRecords: 1})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, "patients.findExisting", err)
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return &recs[0], nil
}

// doctorRecord returns the provider's record handle, or "" when no provider was
// named or none matches. The intake is kept either way.
func (s *Service) doctorRecord(ctx context.Context, providerID string) (string, error) {
	if providerID == "" || s.providers == nil {
		return "", nil
	}
	provider, err := s.providers.Get(ctx, providerID)
	if err != nil {
		if errors.Is(err, directory.ErrProviderNotFound) {
			logger.WithProvider(providerID).Warn("Patient intake names an unknown provider")
			return "", nil
		}
		return "", err
	}
	return provider.RecordID, nil
}

func setIfPresent(fields map[string]interface{}, key, value string) {
	if value = strings.TrimSpace(value); value != "" {
		fields[key] = value
	}
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
