package zoho

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/synaptica-ai/provider-hub/pkg/common/apperr"
	"github.com/synaptica-ai/provider-hub/pkg/common/kafka"
	"github.com/synaptica-ai/provider-hub/pkg/common/logger"
	"github.com/synaptica-ai/provider-hub/pkg/common/models"
	"github.com/synaptica-ai/provider-hub/pkg/observability/metrics"
)

const (
	leadsPath        = "/crm/v3/Leads"
	defaultDealStage = "Intake"
	noteTitle        = "Chat transcript"
	defaultLastName  = "Unknown"
	eventSource      = "zoho"
)

type LeadSettings struct {
	Company string
	Source  string
}

type LeadService struct {
	crm      Requester
	settings LeadSettings
	events   kafka.Publisher
}

func NewLeadService(crm Requester, settings LeadSettings, events kafka.Publisher) *LeadService {
	if events == nil {
		events = kafka.NopPublisher{}
	}
	return &LeadService{crm: crm, settings: settings, events: events}
}

type UpsertResult struct {
	LeadID       string
	Created      bool
	NoteAttached bool
	Response     *Response
}

type zohoRecords struct {
	Data []struct {
		ID      string `json:"id"`
		Code    string `json:"code"`
		Status  string `json:"status"`
		Details struct {
			ID string `json:"id"`
		} `json:"details"`
	} `json:"data"`
}

// UpsertLead finds the lead by email (or phone when no email is given),
// updates or creates it, then attaches the conversation as a note. The note is
// best effort and never fails the upsert.
func (s *LeadService) UpsertLead(ctx context.Context, providerID string, req models.LeadRequest) (*UpsertResult, error) {
	req.UserEmail = strings.TrimSpace(req.UserEmail)
	req.UserPhone = strings.TrimSpace(req.UserPhone)
	if strings.TrimSpace(providerID) == "" {
		return nil, apperr.E(apperr.KindValidation, "zoho.UpsertLead", "Invalid providerId")
	}
	if req.UserEmail == "" && req.UserPhone == "" {
		return nil, apperr.E(apperr.KindValidation, "zoho.UpsertLead", "Require user_email or user_phone")
	}

	existingID, err := s.searchLead(ctx, providerID, req)
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"data":    []interface{}{s.leadRecord(req)},
		"trigger": []string{"workflow"},
	}

	result := &UpsertResult{Created: existingID == ""}
	if existingID != "" {
		result.Response, err = s.crm.Do(ctx, providerID, http.MethodPut, leadsPath+"/"+url.PathEscape(existingID), payload)
	} else {
		result.Response, err = s.crm.Do(ctx, providerID, http.MethodPost, leadsPath, payload)
	}
	if err != nil {
		return nil, err
	}
	metrics.IncLeadUpsert()

	var written zohoRecords
	if err := result.Response.Decode(&written); err == nil && len(written.Data) > 0 {
		result.LeadID = written.Data[0].Details.ID
	}

	log := logger.WithProvider(providerID).WithFields(map[string]interface{}{
		"lead_id": result.LeadID,
		"created": result.Created,
		"status":  result.Response.StatusCode,
	})

	if result.LeadID != "" {
		result.NoteAttached = s.attachNote(ctx, providerID, result.LeadID, req)
		s.publish(ctx, models.EventLeadUpserted, map[string]interface{}{
			"provider_id": providerID,
			"lead_id":     result.LeadID,
			"created":     result.Created,
			"channel":     req.Channel,
			"intent":      req.Intent,
		})
	}

	log.Info("Lead upserted")
	return result, nil
}

func (s *LeadService) searchLead(ctx context.Context, providerID string, req models.LeadRequest) (string, error) {
	criteria := fmt.Sprintf("(Email:equals:%s)", req.UserEmail)
	if req.UserEmail == "" {
		criteria = fmt.Sprintf("(Phone:equals:%s)", req.UserPhone)
	}

	resp, err := s.crm.Do(ctx, providerID, http.MethodGet, leadsPath+"/search?criteria="+url.QueryEscape(criteria), nil)
	if err != nil {
		return "", err
	}
	if !resp.OK() {
		return "", nil
	}

	var found zohoRecords
	if err := resp.Decode(&found); err != nil {
		return "", apperr.Wrap(apperr.KindUpstream, "zoho.searchLead", err)
	}
	if len(found.Data) == 0 {
		return "", nil
	}
	return found.Data[0].ID, nil
}

func (s *LeadService) leadRecord(req models.LeadRequest) map[string]interface{} {
	record := map[string]interface{}{
		"Company":     s.settings.Company,
		"Last_Name":   firstNonEmpty(req.UserName, defaultLastName),
		"Lead_Source": firstNonEmpty(req.Channel, s.settings.Source),
	}
	optional := map[string]string{
		"Email":       req.UserEmail,
		"Phone":       req.UserPhone,
		"Description": req.Message,
		"VF_Intent":   req.Intent,
	}
	for field, value := range optional {
		if value != "" {
			record[field] = value
		}
	}
	return record
}

func (s *LeadService) attachNote(ctx context.Context, providerID, leadID string, req models.LeadRequest) bool {
	log := logger.WithProvider(providerID).WithField("lead_id", leadID)

	content, err := json.MarshalIndent(map[string]interface{}{
		"intent":  req.Intent,
		"message": req.Message,
		"context": req.Context,
	}, "", "  ")
	if err != nil {
		metrics.IncLeadNoteFailure()
		log.WithError(err).Warn("Failed to encode lead note")
		return false
	}

	payload := map[string]interface{}{
		"data": []interface{}{map[string]interface{}{
			"Note_Title":   noteTitle,
			"Note_Content": string(content),
		}},
	}
	resp, err := s.crm.Do(ctx, providerID, http.MethodPost, leadsPath+"/"+url.PathEscape(leadID)+"/Notes", payload)
	if err != nil {
		metrics.IncLeadNoteFailure()
		log.WithError(err).Warn("Failed to attach note to lead")
		return false
	}
	if !resp.OK() {
		metrics.IncLeadNoteFailure()
		log.WithField("status", resp.StatusCode).Warn("Zoho rejected lead note")
		return false
	}
	return true
}

// ConvertLead converts a lead into a contact, and a deal when a deal name is
// given. The CRM answer is returned verbatim.
func (s *LeadService) ConvertLead(ctx context.Context, providerID, leadID string, req models.ConvertLeadRequest) (*Response, error) {
	if strings.TrimSpace(providerID) == "" || strings.TrimSpace(leadID) == "" {
		return nil, apperr.E(apperr.KindValidation, "zoho.ConvertLead", "Invalid providerId or leadId")
	}

	notify := true
	if req.NotifyLeadOwner != nil {
		notify = *req.NotifyLeadOwner
	}

	conversion := map[string]interface{}{
		"overwrite":         true,
		"notify_lead_owner": notify,
		"assign_to":         req.AssignTo,
	}
	if req.DealName != "" {
		deal := map[string]interface{}{
			"Deal_Name": req.DealName,
			"Stage":     firstNonEmpty(req.Stage, defaultDealStage),
		}
		if req.Amount != nil {
			deal["Amount"] = *req.Amount
		}
		conversion["Deals"] = deal
	}

	resp, err := s.crm.Do(ctx, providerID, http.MethodPost,
		leadsPath+"/"+url.PathEscape(leadID)+"/actions/convert",
		map[string]interface{}{"data": []interface{}{conversion}})
	if err != nil {
		return nil, err
	}
	metrics.IncLeadConversion()

	if resp.OK() {
		s.publish(ctx, models.EventLeadConverted, map[string]interface{}{
			"provider_id": providerID,
			"lead_id":     leadID,
			"deal":        req.DealName != "",
		})
	}
	return resp, nil
}

func (s *LeadService) publish(ctx context.Context, eventType string, data map[string]interface{}) {
	if err := s.events.PublishEvent(ctx, eventType, eventSource, data); err != nil {
		logger.Log.WithError(err).WithField("event_type", eventType).Warn("Failed to publish CRM event")
	}
}
