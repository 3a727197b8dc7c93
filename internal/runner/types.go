package runner

import (
	"strings"
	"time"

	"github.com/goware/urlx"
	"github.com/pkg/errors"
)

const (
	DefaultBaseURL        = "http://localhost:3333"
	DefaultToken          = "abcdef0123456789"
	DefaultVUs            = 20
	DefaultDuration       = 60 * time.Second
	DefaultRequestTimeout = 60 * time.Second

	// PizzaPath is the QuickPizza endpoint every virtual user hits.
	PizzaPath = "/api/pizza"
	// CheckName is the name of the only check evaluated per request.
	CheckName = "status is 200"
)

var (
	ErrInvalidBaseURL = errors.New("invalid base URL")
	ErrInvalidVUs     = errors.New("virtual users must be greater than 0")
	ErrInvalidDur     = errors.New("duration cannot be negative")
)

// Config is built once at startup and never mutated afterwards. Workers
// receive it by value.
type Config struct {
	BaseURL        string
	Token          string
	Label          string
	VUs            int
	Duration       time.Duration
	RequestTimeout time.Duration
	ThinkTime      time.Duration // pause between iterations of one VU, 0 by default
	Payload        Restrictions
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return errors.Wrap(ErrInvalidBaseURL, "empty")
	}
	// urlx defaults a missing scheme to http, which would hide typos like
	// "localhost:3333" until every request fails
	if !strings.Contains(c.BaseURL, "://") {
		return errors.Wrapf(ErrInvalidBaseURL, "%q: missing scheme", c.BaseURL)
	}
	u, err := urlx.Parse(c.BaseURL)
	if err != nil {
		return errors.Wrapf(ErrInvalidBaseURL, "%q: %v", c.BaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.Wrapf(ErrInvalidBaseURL, "%q: unsupported scheme %q", c.BaseURL, u.Scheme)
	}
	if u.Host == "" {
		return errors.Wrapf(ErrInvalidBaseURL, "%q: missing host", c.BaseURL)
	}
	if c.VUs <= 0 {
		return errors.Wrapf(ErrInvalidVUs, "got %d", c.VUs)
	}
	if c.Duration < 0 {
		return errors.Wrapf(ErrInvalidDur, "got %s", c.Duration)
	}
	return c.Payload.Validate()
}

// TargetURL is the absolute URL of the pizza endpoint.
func (c Config) TargetURL() string {
	return strings.TrimRight(c.BaseURL, "/") + PizzaPath
}

// Outcome is what one virtual user observed for one HTTP call.
type Outcome struct {
	VU        int
	Iteration uint64
	Start     time.Time
	Latency   time.Duration
	Status    int    // 0 when the request never got a response
	Proto     string // protocol of the response, empty without one
	BytesSent int64
	BytesRecv int64
	Err       error
	Passed    bool // CheckName
}

// Failed reports whether the request counts towards http_req_failed.
func (o Outcome) Failed() bool {
	return !o.Passed
}

// StatsSnapshot is sent over the channel
type StatsSnapshot struct {
	Requests uint64
	Success  uint64
	Fail     uint64
	Bytes    uint64
	Inflight int64

	P50Ms float64
	P90Ms float64
	P95Ms float64
	P99Ms float64
	MaxMs float64
}

// StatsUpdateChan is the channel type
type StatsUpdateChan chan StatsSnapshot
