package models

import (
	"time"
)

// CRMCredentials is the per-provider Zoho credential bundle stored on the provider row.
// AccessToken and TokenExpiresAt are untrusted until checked against the clock.
type CRMCredentials struct {
	ClientID       string
	ClientSecret   string
	DataCenter     string
	AccessToken    string
	RefreshToken   string
	TokenExpiresAt time.Time
}

func (c CRMCredentials) Connected() bool {
	return c.RefreshToken != ""
}

// Provider is the typed view of a provider ("doctor") row.
type Provider struct {
	RecordID      string
	ProviderID    string
	Name          string
	Specialty     string
	MedicalCenter string
	WebsiteURL    string
	ContactNumber string
	ContactEmail  string
	OfficeHours   string
	Address       string
	LLM           string
	LLMAPIKey     string
	CRM           CRMCredentials
}

// DoctorResponse is the public projection of a provider. Credentials never leave the service.
type DoctorResponse struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	ProviderID        string `json:"provider_id"`
	ProviderName      string `json:"provider_name"`
	ProviderSpecialty string `json:"provider_specialty"`
	MedicalCenter     string `json:"medical_center"`
	WebsiteURL        string `json:"website_url"`
	ContactNumber     string `json:"contact_number"`
	ContactEmail      string `json:"contact_email"`
	OfficeHours       string `json:"office_hours"`
	Address           string `json:"address"`
	LLM               string `json:"llm"`
	CRMConnected      bool   `json:"crm_connected"`
}

func NewDoctorResponse(p Provider) DoctorResponse {
	return DoctorResponse{
		ID:                p.RecordID,
		Name:              p.Name,
		ProviderID:        p.ProviderID,
		ProviderName:      p.Name,
		ProviderSpecialty: p.Specialty,
		MedicalCenter:     p.MedicalCenter,
		WebsiteURL:        p.WebsiteURL,
		ContactNumber:     p.ContactNumber,
		ContactEmail:      p.ContactEmail,
		OfficeHours:       p.OfficeHours,
		Address:           p.Address,
		LLM:               p.LLM,
		CRMConnected:      p.CRM.Connected(),
	}
}

type AskRequest struct {
	Question string `json:"question"`
}

type AskResponse struct {
	Reply string `json:"reply"`
}

// PatientIntake is a normalised intake submission.
type PatientIntake struct {
	ProviderID string
	FirstName  string
	LastName   string
	Email      string
	Phone      string
	Service    string
}

type PatientUpsertResult struct {
	ID      string                 `json:"patient_id"`
	Created bool                   `json:"created"`
	Fields  map[string]interface{} `json:"patient"`
}

type LeadRequest struct {
	UserName  string      `json:"user_name"`
	UserEmail string      `json:"user_email"`
	UserPhone string      `json:"user_phone"`
	Message   string      `json:"message"`
	Intent    string      `json:"intent"`
	Channel   string      `json:"channel"`
	Context   interface{} `json:"context,omitempty"`
}

type ConvertLeadRequest struct {
	DealName        string   `json:"deal_name"`
	Stage           string   `json:"stage"`
	Amount          *float64 `json:"amount"`
	AssignTo        *string  `json:"assign_to"`
	NotifyLeadOwner *bool    `json:"notify_lead_owner"`
}

// Event Bus models
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]string      `json:"metadata,omitempty"`
}

const (
	EventPatientUpserted   = "patient.upserted"
	EventLeadUpserted      = "crm.lead.upserted"
	EventLeadConverted     = "crm.lead.converted"
	EventProviderConnected = "crm.provider.connected"
)
