package zoho

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/synaptica-ai/provider-hub/pkg/directory"
	"github.com/synaptica-ai/provider-hub/pkg/recordstore"
)

const (
	testTable    = "Doctors"
	testRecordID = "recDOC00000000042"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeZoho serves both the accounts and the CRM API hosts.
type fakeZoho struct {
	t   *testing.T
	srv *httptest.Server

	mu         sync.Mutex
	tokenCalls []map[string]string
	apiCalls   []apiCall

	tokenHandler func(w http.ResponseWriter, form map[string]string)
	apiHandler   func(w http.ResponseWriter, call apiCall)
}

type apiCall struct {
	Method string
	Path   string
	Query  string
	Auth   string
	Body   map[string]interface{}
}

func newFakeZoho(t *testing.T) *fakeZoho {
	f := &fakeZoho{t: t}
	f.tokenHandler = func(w http.ResponseWriter, form map[string]string) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"access_token": "fresh-token", "expires_in": 3600, "token_type": "Bearer"})
	}
	f.apiHandler = func(w http.ResponseWriter, call apiCall) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"data": []interface{}{}})
	}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeZoho) serve(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/oauth/v2/token" {
		require.NoError(f.t, r.ParseForm())
		form := make(map[string]string)
		for k := range r.PostForm {
			form[k] = r.PostForm.Get(k)
		}
		f.mu.Lock()
		f.tokenCalls = append(f.tokenCalls, form)
		f.mu.Unlock()
		f.tokenHandler(w, form)
		return
	}

	call := apiCall{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, Auth: r.Header.Get("Authorization")}
	if raw, _ := io.ReadAll(r.Body); len(raw) > 0 {
		require.NoError(f.t, json.Unmarshal(raw, &call.Body))
	}
	f.mu.Lock()
	f.apiCalls = append(f.apiCalls, call)
	f.mu.Unlock()
	f.apiHandler(w, call)
}

func (f *fakeZoho) hosts() HostResolver {
	return StaticHosts(f.srv.URL, f.srv.URL)
}

func (f *fakeZoho) tokenCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tokenCalls)
}

func (f *fakeZoho) calls() []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]apiCall(nil), f.apiCalls...)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func expiryField(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

// connectedProvider seeds provider 42 with client credentials, a refresh token
// and an access token expiring at expiresAt (zero for none).
func connectedProvider(store *recordstore.MemoryStore, expiresAt time.Time) {
	fields := map[string]interface{}{
		"Provider ID":        float64(42),
		"Name":               "Ada",
		"ZOHO_CLIENT_ID":     "client-1",
		"ZOHO_CLIENT_SECRET": "secret-1",
		"ZOHO_DC":            "eu",
		"ZOHO_REFRESH_TOKEN": "refresh-1",
	}
	if !expiresAt.IsZero() {
		fields["ZOHO_ACCESS_TOKEN"] = "cached-token"
		fields["ZOHO_TOKEN_EXPIRES_AT"] = expiryField(expiresAt)
	}
	store.Seed(testTable, testRecordID, fields)
}

func newDirectory(store recordstore.Store) *directory.Service {
	return directory.NewService(store, testTable, "", "")
}

func newTestTokenManager(store recordstore.Store, f *fakeZoho) *TokenManager {
	m := NewTokenManager(newDirectory(store), f.hosts(), f.srv.Client())
	m.now = func() time.Time { return testNow }
	return m
}

func storedFields(t *testing.T, store *recordstore.MemoryStore) map[string]interface{} {
	rec, err := store.Find(context.Background(), testTable, testRecordID)
	require.NoError(t, err)
	return rec.Fields
}
