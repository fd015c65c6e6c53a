package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

var (
	tokenCacheHits         atomic.Int64
	tokenRefreshes         atomic.Int64
	tokenRefreshFailures   atomic.Int64
	crmRequests            atomic.Int64
	crmUnauthorizedRetries atomic.Int64
	leadUpserts            atomic.Int64
	leadNoteFailures       atomic.Int64
	leadConversions        atomic.Int64
	patientsCreated        atomic.Int64
	patientsUpdated        atomic.Int64
	llmRequests            atomic.Int64
	llmFailures            atomic.Int64
)

func IncTokenCacheHit()        { tokenCacheHits.Add(1) }
func IncTokenRefresh()         { tokenRefreshes.Add(1) }
func IncTokenRefreshFailure()  { tokenRefreshFailures.Add(1) }
func IncCRMRequest()           { crmRequests.Add(1) }
func IncCRMUnauthorizedRetry() { crmUnauthorizedRetries.Add(1) }
func IncLeadUpsert()           { leadUpserts.Add(1) }
func IncLeadNoteFailure()      { leadNoteFailures.Add(1) }
func IncLeadConversion()       { leadConversions.Add(1) }
func IncLLMRequest()           { llmRequests.Add(1) }
func IncLLMFailure()           { llmFailures.Add(1) }

func ObservePatientUpsert(created bool) {
	if created {
		patientsCreated.Add(1)
		return
	}
	patientsUpdated.Add(1)
}

type counter struct {
	name  string
	help  string
	value *atomic.Int64
}

func counters() []counter {
	return []counter{
		{"providerhub_crm_token_cache_hits_total", "Access tokens served from the provider record without a refresh.", &tokenCacheHits},
		{"providerhub_crm_token_refreshes_total", "Successful refresh token exchanges.", &tokenRefreshes},
		{"providerhub_crm_token_refresh_failures_total", "Failed refresh token exchanges.", &tokenRefreshFailures},
		{"providerhub_crm_requests_total", "Outbound CRM API calls, retries included.", &crmRequests},
		{"providerhub_crm_unauthorized_retries_total", "CRM calls retried after a 401.", &crmUnauthorizedRetries},
		{"providerhub_crm_lead_upserts_total", "Lead create or update calls issued.", &leadUpserts},
		{"providerhub_crm_lead_note_failures_total", "Lead notes that could not be attached.", &leadNoteFailures},
		{"providerhub_crm_lead_conversions_total", "Lead convert calls issued.", &leadConversions},
		{"providerhub_patients_created_total", "Patient intake records created.", &patientsCreated},
		{"providerhub_patients_updated_total", "Patient intake records updated.", &patientsUpdated},
		{"providerhub_llm_requests_total", "Questions proxied to a provider LLM.", &llmRequests},
		{"providerhub_llm_failures_total", "LLM calls that failed or returned no reply.", &llmFailures},
	}
}

func WritePrometheus(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	for _, c := range counters() {
		fmt.Fprintf(w, "# HELP %s %s\n", c.name, c.help)
		fmt.Fprintf(w, "# TYPE %s counter\n", c.name)
		fmt.Fprintf(w, "%s %d\n", c.name, c.value.Load())
	}
}
