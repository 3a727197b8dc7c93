package runner

import (
	"net/http"
	"strconv"

	"quickbench/internal/sink"
)

const scenario = "default"

// Samples expands an outcome into the rows k6 writes for one iteration of
// the pizza script. The rows carry no time: the sink stamps the whole batch
// when it records it, which keeps a run's timestamps in recording order.
func (o Outcome) Samples(url string) []sink.Sample {
	ms := float64(o.Latency.Microseconds()) / 1000.0

	tags := sink.Tags{
		ExpectedResponse: strconv.FormatBool(o.Status == http.StatusOK),
		Method:           http.MethodPost,
		Name:             url,
		Proto:            o.Proto,
		Scenario:         scenario,
		Status:           o.Status,
		URL:              url,
	}
	if o.Err != nil {
		tags.Error = o.Err.Error()
		tags.ErrorCode = strconv.Itoa(errorCode(o))
	} else if o.Status >= 400 {
		tags.ErrorCode = strconv.Itoa(errorCode(o))
	}

	checkTags := tags
	checkTags.Check = CheckName

	iterTags := sink.Tags{Scenario: scenario}

	return []sink.Sample{
		{Metric: sink.MetricHTTPReqs, Value: 1, Tags: tags},
		{Metric: sink.MetricHTTPReqDuration, Value: ms, Tags: tags},
		{Metric: sink.MetricHTTPReqFailed, Value: boolValue(o.Failed()), Tags: tags},
		{Metric: sink.MetricDataSent, Value: float64(o.BytesSent), Tags: iterTags},
		{Metric: sink.MetricDataReceived, Value: float64(o.BytesRecv), Tags: iterTags},
		{Metric: sink.MetricChecks, Value: boolValue(o.Passed), Tags: checkTags},
		{Metric: sink.MetricIterations, Value: 1, Tags: iterTags},
		{Metric: sink.MetricIterationDuration, Value: ms, Tags: iterTags},
	}
}

// errorCode follows k6's scheme loosely: 1xxx for transport failures,
// 1000+status for HTTP errors.
func errorCode(o Outcome) int {
	if o.Err != nil {
		return 1000
	}
	return 1000 + o.Status
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
