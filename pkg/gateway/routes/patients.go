package routes

import (
	"context"
	"encoding/json"
	"mime"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/synaptica-ai/provider-hub/pkg/common/models"
	"github.com/synaptica-ai/provider-hub/pkg/patients"
)

const maxMultipartMemory = 1 << 20

type PatientUpserter interface {
	Upsert(ctx context.Context, intake models.PatientIntake) (models.PatientUpsertResult, error)
}

type PatientHandler struct {
	patients PatientUpserter
}

func NewPatientHandler(p PatientUpserter) *PatientHandler {
	return &PatientHandler{patients: p}
}

func (h *PatientHandler) Register(r *mux.Router) {
	r.HandleFunc("/patients", h.handleUpsert).Methods(http.MethodPost)
}

func (h *PatientHandler) handleUpsert(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	values, err := formValues(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}

	intake := patients.IntakeFromValues(values)
	if err := patients.Validate(intake); err != nil {
		writeError(w, err, "Invalid request body")
		return
	}

	result, err := h.patients.Upsert(r.Context(), intake)
	if err != nil {
		writeError(w, err, "Failed to upsert patient")
		return
	}

	writeJSON(w, http.StatusOK, struct {
		OK bool `json:"ok"`
		models.PatientUpsertResult
	}{OK: true, PatientUpsertResult: result})
}

// formValues flattens a JSON, urlencoded or multipart body into strings.
func formValues(r *http.Request) (map[string]string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	values := make(map[string]string)

	switch mediaType {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		if mediaType == "multipart/form-data" {
			if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
				return nil, err
			}
		} else if err := r.ParseForm(); err != nil {
			return nil, err
		}
		for k, v := range r.PostForm {
			if len(v) > 0 {
				values[k] = v[0]
			}
		}
	default:
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return nil, err
		}
		for k, v := range body {
			switch val := v.(type) {
			case nil:
			case string:
				values[k] = val
			case float64:
				values[k] = strconv.FormatFloat(val, 'f', -1, 64)
			case bool:
				values[k] = strconv.FormatBool(val)
			}
		}
	}
	return values, nil
}
