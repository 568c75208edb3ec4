package analytics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingObserver struct {
	failures atomic.Int32
}

func (c *countingObserver) ObserveAnalyticsFailure() { c.failures.Add(1) }

func TestPlausibleEmitterPostsEvent(t *testing.T) {
	var (
		got       Event
		gotUA     string
		gotFwd    string
		gotCT     string
		gotMethod string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotUA = r.Header.Get("User-Agent")
		gotFwd = r.Header.Get("X-Forwarded-For")
		gotCT = r.Header.Get("Content-Type")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	obs := &countingObserver{}
	emitter := NewPlausibleEmitter(srv.URL, "incierge.example", obs, nil)
	require.NotNil(t, emitter)

	emitter.Emit(context.Background(), Event{
		Name:      EventContactSubmitted,
		URL:       "https://incierge.example/contact/",
		Referrer:  "https://google.com/",
		Props:     map[string]string{"ticket": "abc", "utm_source": "news"},
		UserAgent: "Mozilla/5.0",
		ClientIP:  "203.0.113.7",
	})

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "application/json", gotCT)
	assert.Equal(t, "Mozilla/5.0", gotUA)
	assert.Equal(t, "203.0.113.7", gotFwd)
	assert.Equal(t, "Contact Submitted", got.Name)
	assert.Equal(t, "incierge.example", got.Domain)
	assert.Equal(t, "https://google.com/", got.Referrer)
	assert.Equal(t, "abc", got.Props["ticket"])
	assert.Zero(t, obs.failures.Load())
}

func TestPlausibleEmitterSwallowsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	obs := &countingObserver{}
	emitter := NewPlausibleEmitter(srv.URL, "incierge.example", obs, nil)
	emitter.Emit(context.Background(), Event{Name: EventContactSubmitted})

	dead := NewPlausibleEmitter("http://127.0.0.1:1/api/event", "incierge.example", obs, nil)
	dead.Emit(context.Background(), Event{Name: EventContactSubmitted})

	assert.Equal(t, int32(2), obs.failures.Load())
}

func TestNewPlausibleEmitterRequiresDomain(t *testing.T) {
	assert.Nil(t, NewPlausibleEmitter("", "", nil, nil))
	e := NewPlausibleEmitter("", "incierge.example", nil, nil)
	require.NotNil(t, e)
	assert.Equal(t, DefaultEventURL, e.eventURL)
}
