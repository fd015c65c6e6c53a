package routes

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/synaptica-ai/provider-hub/pkg/gateway/middleware"
)

type Handlers struct {
	Doctors  *DoctorHandler
	Patients *PatientHandler
	Zoho     *ZohoHandler
}

type RouterOptions struct {
	AllowedOrigins []string
	MaxBodyBytes   int64
}

// NewRouter mounts the API under /api and the ops endpoints at the root.
func NewRouter(h Handlers, opts RouterOptions) http.Handler {
	router := mux.NewRouter()
	RegisterOps(router)

	api := router.PathPrefix("/api").Subrouter()
	if h.Doctors != nil {
		h.Doctors.Register(api)
	}
	if h.Patients != nil {
		h.Patients.Register(api)
	}
	if h.Zoho != nil {
		h.Zoho.Register(api)
	}

	// Wrapped outside the router so preflight requests for unmatched methods
	// still get CORS headers.
	var handler http.Handler = router
	if opts.MaxBodyBytes > 0 {
		handler = middleware.BodyLimit(opts.MaxBodyBytes)(handler)
	}
	handler = middleware.CORS(opts.AllowedOrigins)(handler)
	handler = middleware.Logging(handler)
	return middleware.Recovery(handler)
}
