package sink

import (
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Metric names, as written by k6 CSV output.
const (
	MetricHTTPReqs          = "http_reqs"
	MetricHTTPReqDuration   = "http_req_duration"
	MetricHTTPReqFailed     = "http_req_failed"
	MetricDataSent          = "data_sent"
	MetricDataReceived      = "data_received"
	MetricChecks            = "checks"
	MetricIterations        = "iterations"
	MetricIterationDuration = "iteration_duration"
)

// Header is the column layout of a result file.
var Header = []string{
	"metric_name", "timestamp", "metric_value", "check", "error", "error_code",
	"expected_response", "group", "method", "name", "proto", "scenario", "service",
	"status", "subproto", "tls_version", "url", "extra_tags", "metadata",
}

// ErrMalformedRow is returned by the reader for rows it cannot decode.
var ErrMalformedRow = errors.New("malformed result row")

// Tags is the request metadata attached to a sample.
type Tags struct {
	Check            string
	Error            string
	ErrorCode        string
	ExpectedResponse string
	Group            string
	Method           string
	Name             string
	Proto            string
	Scenario         string
	Service          string
	Status           int
	Subproto         string
	TLSVersion       string
	URL              string
	ExtraTags        string
	Metadata         string
}

// Sample is one row of a result file.
type Sample struct {
	Metric string
	Time   time.Time
	Value  float64
	Tags   Tags
}

// FormatTimestamp renders t as unix seconds with a microsecond fraction.
func FormatTimestamp(t time.Time) string {
	us := t.UnixMicro()
	sec, frac := us/1e6, us%1e6
	if frac < 0 {
		sec--
		frac += 1e6
	}
	return strconv.FormatInt(sec, 10) + "." + leftPad(strconv.FormatInt(frac, 10), 6)
}

// ParseTimestamp accepts integer seconds ("1697040000") as k6 writes them and
// fractional seconds as written by FormatTimestamp.
func ParseTimestamp(s string) (time.Time, error) {
	whole, frac, hasFrac := strings.Cut(s, ".")
	sec, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return time.Time{}, errors.Wrapf(ErrMalformedRow, "timestamp %q", s)
	}
	if !hasFrac || frac == "" {
		return time.Unix(sec, 0).UTC(), nil
	}
	if len(frac) > 9 {
		frac = frac[:9]
	}
	ns, err := strconv.ParseInt(frac+strings.Repeat("0", 9-len(frac)), 10, 64)
	if err != nil {
		return time.Time{}, errors.Wrapf(ErrMalformedRow, "timestamp %q", s)
	}
	return time.Unix(sec, ns).UTC(), nil
}

func leftPad(s string, n int) string {
	if len(s) >= n {
		return s
	}
	return strings.Repeat("0", n-len(s)) + s
}

func encode(s Sample, row []string) []string {
	row = row[:0]
	status := ""
	if s.Tags.Status != 0 || s.Tags.Method != "" {
		status = strconv.Itoa(s.Tags.Status)
	}
	return append(row,
		s.Metric,
		FormatTimestamp(s.Time),
		strconv.FormatFloat(s.Value, 'f', -1, 64),
		s.Tags.Check,
		s.Tags.Error,
		s.Tags.ErrorCode,
		s.Tags.ExpectedResponse,
		s.Tags.Group,
		s.Tags.Method,
		s.Tags.Name,
		s.Tags.Proto,
		s.Tags.Scenario,
		s.Tags.Service,
		status,
		s.Tags.Subproto,
		s.Tags.TLSVersion,
		s.Tags.URL,
		s.Tags.ExtraTags,
		s.Tags.Metadata,
	)
}

// columns maps header names to their index so files with reordered or
// additional columns can still be decoded.
type columns map[string]int

func newColumns(header []string) (columns, error) {
	c := make(columns, len(header))
	for i, h := range header {
		c[strings.TrimSpace(h)] = i
	}
	for _, required := range []string{"metric_name", "timestamp", "metric_value"} {
		if _, ok := c[required]; !ok {
			return nil, errors.Errorf("result file is missing required column %q", required)
		}
	}
	return c, nil
}

func (c columns) get(row []string, name string) string {
	i, ok := c[name]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}

func (c columns) decode(row []string) (Sample, error) {
	ts, err := ParseTimestamp(c.get(row, "timestamp"))
	if err != nil {
		return Sample{}, err
	}
	raw := c.get(row, "metric_value")
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return Sample{}, errors.Wrapf(ErrMalformedRow, "metric_value %q", raw)
	}
	s := Sample{
		Metric: c.get(row, "metric_name"),
		Time:   ts,
		Value:  v,
		Tags: Tags{
			Check:            c.get(row, "check"),
			Error:            c.get(row, "error"),
			ErrorCode:        c.get(row, "error_code"),
			ExpectedResponse: c.get(row, "expected_response"),
			Group:            c.get(row, "group"),
			Method:           c.get(row, "method"),
			Name:             c.get(row, "name"),
			Proto:            c.get(row, "proto"),
			Scenario:         c.get(row, "scenario"),
			Service:          c.get(row, "service"),
			Subproto:         c.get(row, "subproto"),
			TLSVersion:       c.get(row, "tls_version"),
			URL:              c.get(row, "url"),
			ExtraTags:        c.get(row, "extra_tags"),
			Metadata:         c.get(row, "metadata"),
		},
	}
	if st := c.get(row, "status"); st != "" {
		if s.Tags.Status, err = strconv.Atoi(st); err != nil {
			return Sample{}, errors.Wrapf(ErrMalformedRow, "status %q", st)
		}
	}
	return s, nil
}
