package intake

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/incierge/incierge-intake/internal/analytics"
	"github.com/incierge/incierge-intake/internal/leads"
	"github.com/incierge/incierge-intake/internal/notify"
	"github.com/incierge/incierge-intake/internal/turnstile"
)

type stubVerifier struct {
	calls  atomic.Int32
	err    error
	lastIP atomic.Value
}

func (v *stubVerifier) Verify(ctx context.Context, token, remoteIP string) (*turnstile.Result, error) {
	v.calls.Add(1)
	v.lastIP.Store(remoteIP)
	if v.err != nil {
		return &turnstile.Result{Success: false}, v.err
	}
	return &turnstile.Result{Success: true}, nil
}

type stubNotifier struct {
	mu      sync.Mutex
	records []*leads.Record
	ctxErrs []error
	report  notify.Report
	delay   time.Duration
}

func (n *stubNotifier) NotifyLead(ctx context.Context, rec *leads.Record) notify.Report {
	if n.delay > 0 {
		time.Sleep(n.delay)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.records = append(n.records, rec)
	n.ctxErrs = append(n.ctxErrs, ctx.Err())
	return n.report
}

func (n *stubNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.records)
}

type failingStore struct {
	*leads.InMemoryStore
	putErr   error
	indexErr error
	puts     atomic.Int32
}

func (f *failingStore) Put(ctx context.Context, rec *leads.Record, ttl time.Duration) error {
	f.puts.Add(1)
	if f.putErr != nil {
		return f.putErr
	}
	return f.InMemoryStore.Put(ctx, rec, ttl)
}

func (f *failingStore) IndexByTime(ctx context.Context, rec *leads.Record, ttl time.Duration) error {
	if f.indexErr != nil {
		return f.indexErr
	}
	return f.InMemoryStore.IndexByTime(ctx, rec, ttl)
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []analytics.Event
}

func (e *recordingEmitter) Emit(ctx context.Context, evt analytics.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, evt)
}

type recordingSink struct {
	mu       sync.Mutex
	mirrored []string
	archived []string
	err      error
}

func (s *recordingSink) Mirror(ctx context.Context, rec *leads.Record) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mirrored = append(s.mirrored, rec.Ticket)
	return s.err == nil, s.err
}

func (s *recordingSink) ArchiveLead(ctx context.Context, rec *leads.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.archived = append(s.archived, rec.Ticket)
	return s.err
}

type fixture struct {
	verifier *stubVerifier
	store    *failingStore
	notifier *stubNotifier
	emitter  *recordingEmitter
	sink     *recordingSink
	service  *Service
	handler  *Handler
}

func newFixture(t *testing.T, opts Options, cfg HandlerConfig) *fixture {
	t.Helper()
	f := &fixture{
		verifier: &stubVerifier{},
		store:    &failingStore{InMemoryStore: leads.NewInMemoryStore()},
		notifier: &stubNotifier{report: notify.Report{AdminSent: true, AckSent: true}},
		emitter:  &recordingEmitter{},
		sink:     &recordingSink{},
	}
	f.service = NewService(Deps{
		Verifier:   f.verifier,
		Records:    f.store,
		Index:      f.store,
		Notifier:   f.notifier,
		Analytics:  f.emitter,
		Mirror:     f.sink,
		Archiver:   f.sink,
		Background: NewBackground(time.Second, nil),
	}, opts, nil)
	f.handler = NewHandler(f.service, cfg, nil)
	return f
}

func (f *fixture) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.service.Background().Wait(ctx))
}

func validForm() url.Values {
	return url.Values{
		"name":     {"Taro"},
		"email":    {"taro@example.com"},
		"message":  {"please call"},
		"company":  {"Example KK"},
		TokenField: {"valid-token"},
	}
}

func formRequest(form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/contact", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", "Mozilla/5.0 (test)")
	req.RemoteAddr = "203.0.113.7:40112"
	req.Header.Set("Referer", "https://incierge.example/contact/?utm_source=newsletter&utm_campaign=spring")
	return req
}

func jsonRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/contact", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	return req
}

func ticketFromLocation(t *testing.T, location string) string {
	t.Helper()
	u, err := url.Parse(location)
	require.NoError(t, err)
	return u.Query().Get("ticket")
}

var errBoom = errors.New("boom")
