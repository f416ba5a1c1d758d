package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/openbank-platform/openbank/internal/security"
	"github.com/openbank-platform/openbank/internal/shared"
)

func newTestRouter(t *testing.T, repo Repository) *chi.Mux {
	t.Helper()
	svc, _ := newTestService(t, repo)
	handler := NewHandler(nil, svc)
	r := chi.NewRouter()
	handler.MountRoutes(r)
	handler.MountAdminRoutes(r)
	return r
}

func doJSON(t *testing.T, router http.Handler, method, path, body string, principal *shared.Principal) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "203.0.113.7:51000"
	if principal != nil {
		req = req.WithContext(shared.ContextWithPrincipal(req.Context(), principal))
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestLoginEndpoint(t *testing.T) {
	account := newTestAccount(t)
	router := newTestRouter(t, newStubRepo(account))

	rec := doJSON(t, router, http.MethodPost, "/auth/login",
		`{"email":"dev@openbank.example","password":"`+testPassword+`"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		PrincipalID string `json:"principal_id"`
		Email       string `json:"email"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, account.ID.String(), resp.PrincipalID)
	require.Equal(t, account.Email, resp.Email)
}

func TestLoginEndpointRejectsBadCredentials(t *testing.T) {
	account := newTestAccount(t)
	router := newTestRouter(t, newStubRepo(account))

	rec := doJSON(t, router, http.MethodPost, "/auth/login",
		`{"email":"dev@openbank.example","password":"wrong-password"}`, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestLoginEndpointRejectsLockedAccount(t *testing.T) {
	account := newTestAccount(t)
	repo := newStubRepo(account)
	router := newTestRouter(t, repo)

	for i := 0; i < 5; i++ {
		doJSON(t, router, http.MethodPost, "/auth/login",
			`{"email":"dev@openbank.example","password":"wrong-password"}`, nil)
	}

	rec := doJSON(t, router, http.MethodPost, "/auth/login",
		`{"email":"dev@openbank.example","password":"`+testPassword+`"}`, nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestLoginEndpointValidatesPayload(t *testing.T) {
	router := newTestRouter(t, newStubRepo(nil))

	rec := doJSON(t, router, http.MethodPost, "/auth/login",
		`{"email":"not-an-email","password":"short"}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "email")
	require.Contains(t, rec.Body.String(), "password")
}

func TestLoginEndpointRejectsMalformedBody(t *testing.T) {
	router := newTestRouter(t, newStubRepo(nil))

	rec := doJSON(t, router, http.MethodPost, "/auth/login", `{"email": `, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChangePasswordEndpoint(t *testing.T) {
	account := newTestAccount(t)
	repo := newStubRepo(account)
	router := newTestRouter(t, repo)
	principal := &shared.Principal{ID: account.ID, Email: account.Email}

	body := `{"email":"dev@openbank.example","current_password":"` + testPassword + `","new_password":"Entirely-New-Secret-77!"}`
	rec := doJSON(t, router, http.MethodPost, "/auth/password", body, principal)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, repo.rotated)
}

func TestChangePasswordEndpointRequiresPrincipal(t *testing.T) {
	router := newTestRouter(t, newStubRepo(newTestAccount(t)))

	rec := doJSON(t, router, http.MethodPost, "/auth/password",
		`{"email":"dev@openbank.example","current_password":"x","new_password":"y"}`, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestChangePasswordEndpointReportsPolicyViolations(t *testing.T) {
	account := newTestAccount(t)
	router := newTestRouter(t, newStubRepo(account))
	principal := &shared.Principal{ID: account.ID, Email: account.Email}

	body := `{"email":"dev@openbank.example","current_password":"` + testPassword + `","new_password":"weakweakweak"}`
	rec := doJSON(t, router, http.MethodPost, "/auth/password", body, principal)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Contains(t, rec.Body.String(), "uppercase")
}

func TestUnlockEndpoint(t *testing.T) {
	account := newTestAccount(t)
	repo := newStubRepo(account)
	router := newTestRouter(t, repo)

	record := security.NewAccount(account.ID)
	record.FailedAttempts = 9
	repo.security[account.ID] = record

	rec := doJSON(t, router, http.MethodPost, "/auth/unlock/"+account.ID.String(),
		`{"reason":"identity verified by support"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Zero(t, repo.security[account.ID].FailedAttempts)
}

func TestUnlockEndpointRejectsBadID(t *testing.T) {
	router := newTestRouter(t, newStubRepo(nil))

	rec := doJSON(t, router, http.MethodPost, "/auth/unlock/not-a-uuid",
		`{"reason":"x"}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
