package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alisaviation/carbonintensity/internal/metrics"
	"github.com/alisaviation/carbonintensity/internal/models"
)

type fixedFaults bool

func (f fixedFaults) ShouldFail() bool { return bool(f) }

const okBody = `{"zone":"DE","carbonIntensity":312,"datetime":"2024-05-21T10:00:00.000Z","updatedAt":"2024-05-21T09:48:41.063Z","emissionFactorType":"lifecycle","isEstimated":true}`

func newUpstream(t *testing.T, status int, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "test-key", r.Header.Get(AuthHeader))
		assert.Equal(t, "DE", r.URL.Query().Get("zone"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(ts.Close)
	return ts, &hits
}

func TestFetchIntensity(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantValue  float64
		wantStatus int
	}{
		{"ok", http.StatusOK, okBody, 312, http.StatusOK},
		{"fractional", http.StatusOK, `{"zone":"DE","carbonIntensity":123.45}`, 123.45, http.StatusOK},
		{"zero reading", http.StatusOK, `{"zone":"DE","carbonIntensity":0}`, 0, http.StatusOK},
		{"missing field", http.StatusOK, `{"zone":"DE"}`, 0, http.StatusBadGateway},
		{"malformed json", http.StatusOK, `{"zone":`, 0, http.StatusBadGateway},
		{"unauthorized", http.StatusUnauthorized, `{"error":"bad token"}`, 0, http.StatusUnauthorized},
		{"server error", http.StatusInternalServerError, okBody, 0, http.StatusInternalServerError},
		{"rate limited", http.StatusTooManyRequests, ``, 0, http.StatusTooManyRequests},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, hits := newUpstream(t, tt.status, tt.body)
			reg := metrics.NewRegistry()
			c := NewClient(ts.URL, "test-key", time.Second, fixedFaults(false), reg)

			value, status := c.FetchIntensity(context.Background(), "DE")

			require.Equal(t, tt.wantStatus, status)
			require.Equal(t, tt.wantValue, value)
			require.EqualValues(t, 1, hits.Load())
			require.Equal(t, 1.0, reg.Count(strconv.Itoa(tt.wantStatus), models.EndpointUpstream))
		})
	}
}

func TestFetchIntensity_SimulatedOutage(t *testing.T) {
	ts, hits := newUpstream(t, http.StatusOK, okBody)
	reg := metrics.NewRegistry()
	c := NewClient(ts.URL, "test-key", time.Second, fixedFaults(true), reg)

	value, status := c.FetchIntensity(context.Background(), "DE")

	require.Zero(t, value)
	require.Equal(t, http.StatusServiceUnavailable, status)
	require.Zero(t, hits.Load(), "no network call on simulated outage")
	require.Equal(t, 1.0, reg.Count("503", models.EndpointUpstream))
}

func TestFetchIntensity_Unreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	reg := metrics.NewRegistry()
	c := NewClient(url, "test-key", time.Second, nil, reg)

	value, status := c.FetchIntensity(context.Background(), "DE")

	require.Zero(t, value)
	require.Equal(t, http.StatusBadGateway, status)
	require.Equal(t, 1.0, reg.Count("502", models.EndpointUpstream))
}

func TestFetchIntensity_Timeout(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer ts.Close()
	defer close(release)

	reg := metrics.NewRegistry()
	c := NewClient(ts.URL, "test-key", 50*time.Millisecond, fixedFaults(false), reg)

	value, status := c.FetchIntensity(context.Background(), "DE")

	require.Zero(t, value)
	require.Equal(t, http.StatusGatewayTimeout, status)
	require.Equal(t, 1.0, reg.Count("504", models.EndpointUpstream))
}

func TestFetchIntensity_NeverMixesValueAndFailure(t *testing.T) {
	ts, _ := newUpstream(t, http.StatusOK, okBody)
	reg := metrics.NewRegistry()
	faults := &alternatingFaults{}
	c := NewClient(ts.URL, "test-key", time.Second, faults, reg)

	for i := 0; i < 20; i++ {
		value, status := c.FetchIntensity(context.Background(), "DE")
		if status == http.StatusOK {
			require.Equal(t, 312.0, value)
		} else {
			require.Zero(t, value)
		}
	}
	require.Equal(t, 10.0, reg.Count("200", models.EndpointUpstream))
	require.Equal(t, 10.0, reg.Count("503", models.EndpointUpstream))
}

type alternatingFaults struct {
	n atomic.Int32
}

func (a *alternatingFaults) ShouldFail() bool {
	return a.n.Add(1)%2 == 0
}

func TestStatusFromError(t *testing.T) {
	require.Equal(t, http.StatusGatewayTimeout, statusFromError(context.DeadlineExceeded))
	require.Equal(t, http.StatusBadGateway, statusFromError(ErrMissingIntensity))
}
