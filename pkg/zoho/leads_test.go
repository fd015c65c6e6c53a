package zoho

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synaptica-ai/provider-hub/pkg/common/apperr"
	"github.com/synaptica-ai/provider-hub/pkg/common/models"
)

type crmCall struct {
	Method string
	Path   string
	Body   map[string]interface{}
}

// stubCRM answers by "METHOD path-prefix" and records every call.
type stubCRM struct {
	calls   []crmCall
	answers map[string]*Response
	errs    map[string]error
}

func (s *stubCRM) Do(ctx context.Context, providerID, method, path string, body interface{}) (*Response, error) {
	call := crmCall{Method: method, Path: path}
	if body != nil {
		raw, _ := json.Marshal(body)
		json.Unmarshal(raw, &call.Body)
	}
	s.calls = append(s.calls, call)

	if key := longestMatch(s.errs, method, path); key != "" {
		return nil, s.errs[key]
	}
	if key := longestMatch(s.answers, method, path); key != "" {
		return s.answers[key], nil
	}
	return &Response{StatusCode: http.StatusNoContent}, nil
}

func longestMatch[V any](m map[string]V, method, path string) string {
	best := ""
	for key := range m {
		if matchesCall(key, method, path) && len(key) > len(best) {
			best = key
		}
	}
	return best
}

func matchesCall(key, method, path string) bool {
	parts := strings.SplitN(key, " ", 2)
	return parts[0] == method && strings.HasPrefix(path, parts[1])
}

func jsonResponse(status int, body string) *Response {
	return &Response{StatusCode: status, Body: []byte(body)}
}

type recordingPublisher struct {
	types []string
	data  []map[string]interface{}
}

func (p *recordingPublisher) PublishEvent(ctx context.Context, eventType, source string, data map[string]interface{}) error {
	p.types = append(p.types, eventType)
	p.data = append(p.data, data)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

var testLeadSettings = LeadSettings{Company: "Inbound - Voiceflow", Source: "Chatbot"}

func TestUpsertLeadCreates(t *testing.T) {
	crm := &stubCRM{answers: map[string]*Response{
		"POST /crm/v3/Leads/L1/Notes": jsonResponse(http.StatusCreated, `{"data":[{"code":"SUCCESS"}]}`),
		"POST /crm/v3/Leads":          jsonResponse(http.StatusCreated, `{"data":[{"code":"SUCCESS","details":{"id":"L1"}}]}`),
	}}
	events := &recordingPublisher{}
	svc := NewLeadService(crm, testLeadSettings, events)

	result, err := svc.UpsertLead(context.Background(), "42", models.LeadRequest{
		UserEmail: " jane@x.com ",
		Message:   "need a checkup",
		Intent:    "book",
	})
	require.NoError(t, err)

	assert.True(t, result.Created)
	assert.Equal(t, "L1", result.LeadID)
	assert.True(t, result.NoteAttached)
	assert.Equal(t, http.StatusCreated, result.Response.StatusCode)

	require.Len(t, crm.calls, 3)
	assert.Equal(t, http.MethodGet, crm.calls[0].Method)
	assert.Equal(t, "/crm/v3/Leads/search?criteria="+"%28Email%3Aequals%3Ajane%40x.com%29", crm.calls[0].Path)

	create := crm.calls[1]
	assert.Equal(t, "/crm/v3/Leads", create.Path)
	assert.Equal(t, []interface{}{"workflow"}, create.Body["trigger"])
	record := create.Body["data"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "Inbound - Voiceflow", record["Company"])
	assert.Equal(t, "Unknown", record["Last_Name"])
	assert.Equal(t, "Chatbot", record["Lead_Source"])
	assert.Equal(t, "jane@x.com", record["Email"])
	assert.Equal(t, "need a checkup", record["Description"])
	assert.Equal(t, "book", record["VF_Intent"])
	assert.NotContains(t, record, "Phone")

	note := crm.calls[2]
	assert.Equal(t, "/crm/v3/Leads/L1/Notes", note.Path)
	noteRecord := note.Body["data"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "Chat transcript", noteRecord["Note_Title"])
	assert.Contains(t, noteRecord["Note_Content"], "need a checkup")

	assert.Equal(t, []string{models.EventLeadUpserted}, events.types)
	assert.Equal(t, true, events.data[0]["created"])
}

func TestUpsertLeadUpdatesExistingByPhone(t *testing.T) {
	crm := &stubCRM{answers: map[string]*Response{
		"GET /crm/v3/Leads/search": jsonResponse(http.StatusOK, `{"data":[{"id":"L9"}]}`),
		"PUT /crm/v3/Leads/L9":     jsonResponse(http.StatusOK, `{"data":[{"code":"SUCCESS","details":{"id":"L9"}}]}`),
		"POST /crm/v3/Leads/L9":    jsonResponse(http.StatusCreated, `{}`),
	}}
	svc := NewLeadService(crm, testLeadSettings, nil)

	result, err := svc.UpsertLead(context.Background(), "42", models.LeadRequest{UserPhone: "555-0100", UserName: "Doe", Channel: "web"})
	require.NoError(t, err)

	assert.False(t, result.Created)
	assert.Equal(t, "L9", result.LeadID)
	assert.Contains(t, crm.calls[0].Path, "Phone%3Aequals%3A555-0100")
	assert.Equal(t, http.MethodPut, crm.calls[1].Method)
	record := crm.calls[1].Body["data"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "Doe", record["Last_Name"])
	assert.Equal(t, "web", record["Lead_Source"])
}

func TestUpsertLeadNoteFailureIsSwallowed(t *testing.T) {
	crm := &stubCRM{
		answers: map[string]*Response{
			"POST /crm/v3/Leads": jsonResponse(http.StatusCreated, `{"data":[{"details":{"id":"L1"}}]}`),
		},
		errs: map[string]error{
			"POST /crm/v3/Leads/L1/Notes": errors.New("connection reset"),
		},
	}
	svc := NewLeadService(crm, testLeadSettings, nil)

	result, err := svc.UpsertLead(context.Background(), "42", models.LeadRequest{UserEmail: "a@b.c"})
	require.NoError(t, err)
	assert.False(t, result.NoteAttached)
	assert.Equal(t, "L1", result.LeadID)
}

func TestUpsertLeadSearchFailureCreates(t *testing.T) {
	crm := &stubCRM{answers: map[string]*Response{
		"GET /crm/v3/Leads/search": jsonResponse(http.StatusBadRequest, `{"code":"INVALID_QUERY"}`),
		"POST /crm/v3/Leads":       jsonResponse(http.StatusBadRequest, `{"code":"MANDATORY_NOT_FOUND"}`),
	}}
	svc := NewLeadService(crm, testLeadSettings, nil)

	result, err := svc.UpsertLead(context.Background(), "42", models.LeadRequest{UserEmail: "a@b.c"})
	require.NoError(t, err)
	assert.True(t, result.Created)
	assert.Empty(t, result.LeadID)
	assert.False(t, result.Response.OK())
	assert.Len(t, crm.calls, 2)
}

func TestUpsertLeadValidation(t *testing.T) {
	svc := NewLeadService(&stubCRM{}, testLeadSettings, nil)

	_, err := svc.UpsertLead(context.Background(), "", models.LeadRequest{UserEmail: "a@b.c"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = svc.UpsertLead(context.Background(), "42", models.LeadRequest{UserName: "x"})
	assert.Equal(t, "Require user_email or user_phone", apperr.Message(err))
}

func TestConvertLeadPayload(t *testing.T) {
	crm := &stubCRM{answers: map[string]*Response{
		"POST /crm/v3/Leads/L1/actions/convert": jsonResponse(http.StatusOK, `{"data":[{"Contacts":{"id":"C1"}}]}`),
	}}
	events := &recordingPublisher{}
	svc := NewLeadService(crm, testLeadSettings, events)

	amount := 250.0
	resp, err := svc.ConvertLead(context.Background(), "42", "L1", models.ConvertLeadRequest{DealName: "Checkup", Amount: &amount})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	conversion := crm.calls[0].Body["data"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, true, conversion["overwrite"])
	assert.Equal(t, true, conversion["notify_lead_owner"])
	assert.Nil(t, conversion["assign_to"])
	deal := conversion["Deals"].(map[string]interface{})
	assert.Equal(t, "Checkup", deal["Deal_Name"])
	assert.Equal(t, "Intake", deal["Stage"])
	assert.Equal(t, 250.0, deal["Amount"])
	assert.Equal(t, []string{models.EventLeadConverted}, events.types)
}

func TestConvertLeadWithoutDeal(t *testing.T) {
	crm := &stubCRM{answers: map[string]*Response{
		"POST /crm/v3/Leads/L1/actions/convert": jsonResponse(http.StatusBadRequest, `{"code":"INVALID_DATA"}`),
	}}
	events := &recordingPublisher{}
	svc := NewLeadService(crm, testLeadSettings, events)

	notify := false
	owner := "u-7"
	resp, err := svc.ConvertLead(context.Background(), "42", "L1", models.ConvertLeadRequest{NotifyLeadOwner: &notify, AssignTo: &owner})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	conversion := crm.calls[0].Body["data"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, false, conversion["notify_lead_owner"])
	assert.Equal(t, "u-7", conversion["assign_to"])
	assert.NotContains(t, conversion, "Deals")
	assert.Empty(t, events.types)

	_, err = svc.ConvertLead(context.Background(), "42", " ", models.ConvertLeadRequest{})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}
