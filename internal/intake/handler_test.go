package intake

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/incierge/incierge-intake/internal/leads"
	"github.com/incierge/incierge-intake/internal/notify"
	"github.com/incierge/incierge-intake/internal/turnstile"
)

var uuidPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func lookup(f *fixture, ticket string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/contact?ticket="+ticket, nil)
	rec := httptest.NewRecorder()
	f.handler.Lookup(rec, req)
	return rec
}

func TestSubmitAcceptedRedirectsAndReadsBack(t *testing.T) {
	f := newFixture(t, Options{CaptureUTM: true}, HandlerConfig{})

	rec := httptest.NewRecorder()
	f.handler.Submit(rec, formRequest(validForm()))

	require.Equal(t, http.StatusSeeOther, rec.Code)
	location := rec.Header().Get("Location")
	assert.True(t, strings.HasPrefix(location, "/contact/thanks/?ticket="), location)
	ticket := ticketFromLocation(t, location)
	assert.Len(t, ticket, 36)
	assert.Regexp(t, uuidPattern, ticket)
	assert.Equal(t, "203.0.113.7", f.verifier.lastIP.Load())

	got := lookup(f, ticket)
	require.Equal(t, http.StatusOK, got.Code)
	var stored leads.Record
	require.NoError(t, json.Unmarshal(got.Body.Bytes(), &stored))
	assert.Equal(t, ticket, stored.Ticket)
	assert.Equal(t, "Taro", stored.Name)
	assert.Equal(t, "Example KK", stored.Company)
	assert.Equal(t, "", stored.Website)
	assert.Equal(t, "203.0.113.***", stored.ClientIP)
	assert.Equal(t, "Mozilla/5.0 (test)", stored.UserAgent)
	assert.Equal(t, "newsletter", stored.UTMSource)
	assert.Equal(t, "spring", stored.UTMCampaign)
	_, err := time.Parse(leads.SubmittedAtLayout, stored.SubmittedAt)
	assert.NoError(t, err)

	f.drain(t)
	assert.Equal(t, 1, f.notifier.count())
}

func TestSubmitJSONScenario(t *testing.T) {
	f := newFixture(t, Options{}, HandlerConfig{AcceptJSON: true})

	rec := httptest.NewRecorder()
	f.handler.Submit(rec, jsonRequest(`{"name":"Taro","email":"taro@example.com","message":"please call","token":"valid-token"}`))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	ticket := ticketFromLocation(t, rec.Header().Get("Location"))
	require.Len(t, ticket, 36)

	got := lookup(f, ticket)
	require.Equal(t, http.StatusOK, got.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(got.Body.Bytes(), &body))
	assert.Equal(t, "Taro", body["name"])
}

func TestSubmitRejectedVerificationStoresNothing(t *testing.T) {
	f := newFixture(t, Options{}, HandlerConfig{AcceptJSON: true})
	f.verifier.err = &turnstile.RejectedError{Codes: []string{"invalid-input-response"}}

	rec := httptest.NewRecorder()
	f.handler.Submit(rec, jsonRequest(`{"name":"Taro","email":"taro@example.com","message":"please call","token":"valid-token"}`))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeError(t, rec)
	assert.False(t, body.OK)
	assert.Equal(t, ReasonVerificationFailed, body.Error)
	assert.Equal(t, []string{"invalid-input-response"}, body.Codes)
	assert.Zero(t, f.store.puts.Load())
	assert.Equal(t, 0, f.store.Len())

	for _, ticket := range []string{"00000000-0000-4000-8000-000000000000", "anything"} {
		got := lookup(f, ticket)
		assert.Equal(t, http.StatusNotFound, got.Code)
		assert.Equal(t, ReasonNotFound, decodeError(t, got).Error)
	}

	f.drain(t)
	assert.Zero(t, f.notifier.count())
}

func TestSubmitValidationHappensBeforeAnyCall(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(map[string][]string)
		reason string
	}{
		{"missing name", func(v map[string][]string) { delete(v, "name") }, ReasonMissingFields},
		{"blank email", func(v map[string][]string) { v["email"] = []string{"   "} }, ReasonMissingFields},
		{"blank message", func(v map[string][]string) { v["message"] = []string{""} }, ReasonMissingFields},
		{"missing token", func(v map[string][]string) { delete(v, TokenField) }, ReasonMissingToken},
		{"bad email", func(v map[string][]string) { v["email"] = []string{"taro.example.com"} }, ReasonInvalidEmail},
		{"oversized message", func(v map[string][]string) { v["message"] = []string{strings.Repeat("a", 10001)} }, ReasonFieldTooLong},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, Options{}, HandlerConfig{})
			form := validForm()
			tc.mutate(form)

			rec := httptest.NewRecorder()
			f.handler.Submit(rec, formRequest(form))

			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tc.reason, decodeError(t, rec).Error)
			assert.Zero(t, f.verifier.calls.Load())
			assert.Zero(t, f.store.puts.Load())
			f.drain(t)
			assert.Zero(t, f.notifier.count())
		})
	}
}

func TestSubmitContentTypes(t *testing.T) {
	f := newFixture(t, Options{}, HandlerConfig{})

	for _, ct := range []string{"application/json", "text/plain", "multipart/form-data; boundary=x", ""} {
		req := httptest.NewRequest(http.MethodPost, "/api/contact", strings.NewReader(`{}`))
		if ct != "" {
			req.Header.Set("Content-Type", ct)
		}
		rec := httptest.NewRecorder()
		f.handler.Submit(rec, req)
		assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code, ct)
		assert.Equal(t, ReasonBadContentType, decodeError(t, rec).Error, ct)
	}
	assert.Zero(t, f.verifier.calls.Load())

	req := formRequest(validForm())
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	rec := httptest.NewRecorder()
	f.handler.Submit(rec, req)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
}

func TestSubmitMalformedBodies(t *testing.T) {
	f := newFixture(t, Options{}, HandlerConfig{AcceptJSON: true})

	rec := httptest.NewRecorder()
	f.handler.Submit(rec, jsonRequest(`{"name":`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, ReasonBadRequest, decodeError(t, rec).Error)

	form := validForm()
	form.Set("message", strings.Repeat("x", MaxBodyBytes))
	rec = httptest.NewRecorder()
	f.handler.Submit(rec, formRequest(form))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, ReasonBadRequest, decodeError(t, rec).Error)

	assert.Zero(t, f.verifier.calls.Load())
}

func TestSubmitJSONTokenFields(t *testing.T) {
	f := newFixture(t, Options{}, HandlerConfig{AcceptJSON: true})

	rec := httptest.NewRecorder()
	f.handler.Submit(rec, jsonRequest(`{"name":"A","email":"a@example.com","message":"m","cf-turnstile-response":"tok"}`))
	assert.Equal(t, http.StatusSeeOther, rec.Code)

	rec = httptest.NewRecorder()
	f.handler.Submit(rec, jsonRequest(`{"name":"A","email":"a@example.com","message":"m"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, ReasonMissingToken, decodeError(t, rec).Error)
}

func TestSubmitVerificationOutcomes(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		reason string
	}{
		{"secret missing", &turnstile.ConfigError{Err: turnstile.ErrSecretMissing}, http.StatusInternalServerError, ReasonConfigError},
		{"secret rejected", &turnstile.ConfigError{Err: turnstile.ErrSecretRejected, Codes: []string{"invalid-input-secret"}}, http.StatusInternalServerError, ReasonConfigError},
		{"unavailable", fmt.Errorf("%w: dial tcp", turnstile.ErrUnavailable), http.StatusServiceUnavailable, ReasonVerificationUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, Options{}, HandlerConfig{})
			f.verifier.err = tc.err

			rec := httptest.NewRecorder()
			f.handler.Submit(rec, formRequest(validForm()))
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.reason, decodeError(t, rec).Error)
			assert.Zero(t, f.store.puts.Load())
		})
	}
}

func TestSubmitStorageFailure(t *testing.T) {
	f := newFixture(t, Options{}, HandlerConfig{})
	f.store.putErr = errBoom

	rec := httptest.NewRecorder()
	f.handler.Submit(rec, formRequest(validForm()))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, ReasonStorageFailure, decodeError(t, rec).Error)
	f.drain(t)
	assert.Zero(t, f.notifier.count())
}

func TestSubmitSurvivesNotificationFailure(t *testing.T) {
	f := newFixture(t, Options{}, HandlerConfig{})
	f.notifier.report = notify.Report{AdminErr: errBoom, AckErr: errBoom}

	rec := httptest.NewRecorder()
	f.handler.Submit(rec, formRequest(validForm()))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	f.drain(t)

	ticket := ticketFromLocation(t, rec.Header().Get("Location"))
	assert.Equal(t, http.StatusOK, lookup(f, ticket).Code)
}

func TestSubmitDoesNotAwaitSideEffects(t *testing.T) {
	f := newFixture(t, Options{}, HandlerConfig{})
	f.notifier.delay = 200 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	req := formRequest(validForm()).WithContext(ctx)

	start := time.Now()
	rec := httptest.NewRecorder()
	f.handler.Submit(rec, req)
	cancel()

	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Less(t, time.Since(start), 150*time.Millisecond)
	assert.Zero(t, f.notifier.count())

	f.drain(t)
	require.Equal(t, 1, f.notifier.count())
	assert.NoError(t, f.notifier.ctxErrs[0], "side effects run after the request context is gone")
}

func TestSubmitSecondaryIndexFailureIsLoggedOnly(t *testing.T) {
	f := newFixture(t, Options{}, HandlerConfig{})
	f.store.indexErr = errBoom

	rec := httptest.NewRecorder()
	f.handler.Submit(rec, formRequest(validForm()))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
}

func TestSubmitCustomConfirmationPath(t *testing.T) {
	f := newFixture(t, Options{}, HandlerConfig{ConfirmationPath: "/ja/contact/done/"})

	rec := httptest.NewRecorder()
	f.handler.Submit(rec, formRequest(validForm()))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Location"), "/ja/contact/done/?ticket="))
}

func TestSubmitConfirmationPathWithQuery(t *testing.T) {
	f := newFixture(t, Options{}, HandlerConfig{ConfirmationPath: "/contact/thanks/?lang=ja&ticket=stale"})

	rec := httptest.NewRecorder()
	f.handler.Submit(rec, formRequest(validForm()))
	require.Equal(t, http.StatusSeeOther, rec.Code)

	location, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/contact/thanks/", location.Path)
	assert.Equal(t, "ja", location.Query().Get("lang"))
	assert.Len(t, location.Query()["ticket"], 1)
	assert.Len(t, location.Query().Get("ticket"), 36)
}

func TestLookupErrors(t *testing.T) {
	f := newFixture(t, Options{}, HandlerConfig{})

	rec := lookup(f, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, ReasonTicketRequired, decodeError(t, rec).Error)

	rec = lookup(f, "not-a-uuid")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = lookup(f, "7c9e6679-7425-40de-944b-e07fc1f90ae7")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"ok":false,"error":"not_found"}`, rec.Body.String())
}

func TestLookupAfterExpiry(t *testing.T) {
	now := time.Now()
	f := newFixture(t, Options{TTL: time.Hour}, HandlerConfig{})
	f.store.InMemoryStore.WithClock(func() time.Time { return now })

	rec := httptest.NewRecorder()
	f.handler.Submit(rec, formRequest(validForm()))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	ticket := ticketFromLocation(t, rec.Header().Get("Location"))

	require.Equal(t, http.StatusOK, lookup(f, ticket).Code)

	now = now.Add(time.Hour + time.Minute)
	got := lookup(f, ticket)
	assert.Equal(t, http.StatusNotFound, got.Code)
	assert.Equal(t, ReasonNotFound, decodeError(t, got).Error)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.RemoteAddr = "198.51.100.20:5555"
	assert.Equal(t, "198.51.100.20", clientIP(req))

	req.Header.Set("CF-Connecting-IP", "203.0.113.9")
	assert.Equal(t, "198.51.100.20", clientIP(req), "headers are only honoured once middleware rewrites RemoteAddr")

	req.RemoteAddr = "203.0.113.9"
	assert.Equal(t, "203.0.113.9", clientIP(req))

	req.RemoteAddr = "pipe"
	assert.Equal(t, "", clientIP(req))
}
