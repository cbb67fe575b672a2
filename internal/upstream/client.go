// Package upstream talks to the Electricity Maps carbon intensity API.
//
// Every failure, real or simulated, is folded into a (0, non-200) result, so callers never
// see an error.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/alisaviation/carbonintensity/internal/logger"
	"github.com/alisaviation/carbonintensity/internal/models"
)

const (
	AuthHeader     = "auth-token"
	DefaultTimeout = 10 * time.Second
)

var (
	ErrMissingIntensity = errors.New("carbonIntensity field is missing")
	ErrSimulatedOutage  = errors.New("simulated upstream outage")
)

type Faults interface {
	ShouldFail() bool
}

type Recorder interface {
	Increment(status, endpoint string)
	ObserveUpstream(status int, d time.Duration)
}

type Client struct {
	baseURL  string
	apiKey   string
	client   *resty.Client
	faults   Faults
	recorder Recorder
}

func NewClient(baseURL, apiKey string, timeout time.Duration, faults Faults, recorder Recorder) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &Client{
		baseURL:  baseURL,
		apiKey:   apiKey,
		client:   client,
		faults:   faults,
		recorder: recorder,
	}
}

// FetchIntensity returns the latest carbon intensity for zone and the status code of the call.
// The value is 0 whenever the status is not 200.
func (c *Client) FetchIntensity(ctx context.Context, zone string) (float64, int) {
	start := time.Now()
	reading, err := c.fetch(ctx, zone)
	if err != nil {
		logger.Log.Warn("Carbon intensity upstream call failed",
			zap.String("zone", zone),
			zap.Int("status", reading.StatusCode),
			zap.Error(err))
	}

	c.recorder.Increment(strconv.Itoa(reading.StatusCode), models.EndpointUpstream)
	c.recorder.ObserveUpstream(reading.StatusCode, time.Since(start))
	return reading.Value, reading.StatusCode
}

func (c *Client) fetch(ctx context.Context, zone string) (models.Reading, error) {
	if c.faults != nil && c.faults.ShouldFail() {
		return models.Reading{StatusCode: http.StatusServiceUnavailable}, ErrSimulatedOutage
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader(AuthHeader, c.apiKey).
		SetQueryParam("zone", zone).
		Get(c.baseURL)
	if err != nil {
		return models.Reading{StatusCode: statusFromError(err)}, err
	}

	if resp.StatusCode() != http.StatusOK {
		return models.Reading{StatusCode: resp.StatusCode()}, fmt.Errorf("upstream returned %s", resp.Status())
	}

	value, err := parseIntensity(resp.Body())
	if err != nil {
		return models.Reading{StatusCode: http.StatusBadGateway}, err
	}
	return models.Reading{Value: value, StatusCode: http.StatusOK}, nil
}

func parseIntensity(body []byte) (float64, error) {
	var payload models.CarbonIntensity
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, err
	}
	if payload.CarbonIntensity == nil {
		return 0, ErrMissingIntensity
	}
	return *payload.CarbonIntensity, nil
}

// statusFromError maps transport failures to the status a gateway would have answered with.
func statusFromError(err error) int {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}
