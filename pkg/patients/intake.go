package patients

import (
	"strings"

	"github.com/synaptica-ai/provider-hub/pkg/common/apperr"
	"github.com/synaptica-ai/provider-hub/pkg/common/models"
)

// Accepted spellings per intake field, in priority order.
var (
	providerKeys = []string{"provider_id", "provider", "doctor_id", "pid"}
	firstKeys    = []string{"fname", "first_name", "firstName"}
	lastKeys     = []string{"lname", "last_name", "lastName"}
	emailKeys    = []string{"email", "user_email", "contact_email"}
	phoneKeys    = []string{"phone", "user_phone", "contact_phone"}
	serviceKeys  = []string{"service", "requested_service", "reason"}
)

// IntakeFromValues normalises a loosely shaped submission. A single "name"
// value fills whichever name part is missing: first word, then the rest.
func IntakeFromValues(values map[string]string) models.PatientIntake {
	intake := models.PatientIntake{
		ProviderID: pick(values, providerKeys),
		FirstName:  pick(values, firstKeys),
		LastName:   pick(values, lastKeys),
		Email:      pick(values, emailKeys),
		Phone:      pick(values, phoneKeys),
		Service:    pick(values, serviceKeys),
	}

	if name := strings.Fields(values["name"]); len(name) > 0 {
		if intake.FirstName == "" {
			intake.FirstName = name[0]
		}
		if intake.LastName == "" {
			intake.LastName = strings.Join(name[1:], " ")
		}
	}
	return intake
}

func Validate(intake models.PatientIntake) error {
	if intake.FirstName == "" || intake.LastName == "" {
		return apperr.E(apperr.KindValidation, "patients.Validate", "Missing fname/lname")
	}
	if intake.Email == "" && intake.Phone == "" {
		return apperr.E(apperr.KindValidation, "patients.Validate", "Provide at least email or phone")
	}
	return nil
}

func pick(values map[string]string, keys []string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(values[k]); v != "" {
			return v
		}
	}
	return ""
}
