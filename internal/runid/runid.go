// Package runid names benchmark result files.
//
// A name encodes when the run happened, which collector configuration was
// under test and the load profile, for example
//
//	141025-quickpizza-custom-grpc-20vus-60s-t3.medium.gz
//
// Two runs on the same day with the same label and profile get the same name.
package runid

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	// App is the fixed application segment of every name.
	App = "quickpizza"
	// Ext is the suffix of compressed result files.
	Ext = ".gz"
	// DefaultHardware matches the instance type the benchmarks were recorded on.
	DefaultHardware = "t3.medium"

	dateLayout = "020106" // DDMMYY
)

var (
	ErrEmptyLabel   = errors.New("configuration label is required")
	ErrInvalidLabel = errors.New("configuration label must not contain path separators")
	ErrInvalidVUs   = errors.New("virtual users must be greater than 0")
)

// Params are the load parameters that become part of the name.
type Params struct {
	VUs      int
	Duration time.Duration
	Hardware string
}

// Name returns the result file name for a run. It is a pure function of its
// inputs.
func Name(date time.Time, label string, p Params) (string, error) {
	if err := ValidateLabel(label); err != nil {
		return "", err
	}
	if p.VUs <= 0 {
		return "", errors.Wrapf(ErrInvalidVUs, "got %d", p.VUs)
	}
	hw := p.Hardware
	if hw == "" {
		hw = DefaultHardware
	}
	if strings.ContainsAny(hw, `/\`) {
		return "", errors.Errorf("hardware tag %q must not contain path separators", hw)
	}
	return fmt.Sprintf("%s-%s-%s-%dvus-%s-%s%s",
		date.Format(dateLayout), App, label, p.VUs, FormatDuration(p.Duration), hw, Ext), nil
}

func ValidateLabel(label string) error {
	if strings.TrimSpace(label) == "" {
		return ErrEmptyLabel
	}
	if strings.ContainsAny(label, `/\`) {
		return errors.Wrapf(ErrInvalidLabel, "%q", label)
	}
	return nil
}

// FormatDuration renders d the way k6 options spell durations: whole seconds
// as "60s", everything else in milliseconds.
func FormatDuration(d time.Duration) string {
	if d%time.Second == 0 {
		return strconv.FormatInt(int64(d/time.Second), 10) + "s"
	}
	return strconv.FormatInt(d.Milliseconds(), 10) + "ms"
}

var nameRe = regexp.MustCompile(`^(\d{6})-` + App + `-(.+)-(\d+)vus-(\d+(?:ms|s))-(.+)\.gz$`)

// Info is what Parse recovers from a file name.
type Info struct {
	Date     time.Time
	Label    string
	VUs      int
	Duration time.Duration
	Hardware string
}

// Parse reverses Name. Files that do not follow the scheme yield ok=false and
// an Info whose Label is the file stem, so charts still get a title.
func Parse(path string) (info Info, ok bool) {
	base := filepath.Base(path)
	m := nameRe.FindStringSubmatch(base)
	if m == nil {
		stem := strings.TrimSuffix(base, Ext)
		stem = strings.TrimSuffix(stem, filepath.Ext(stem))
		return Info{Label: stem}, false
	}

	date, err := time.Parse(dateLayout, m[1])
	if err != nil {
		return Info{Label: strings.TrimSuffix(base, Ext)}, false
	}
	vus, _ := strconv.Atoi(m[3])
	dur, err := time.ParseDuration(m[4])
	if err != nil {
		return Info{Label: strings.TrimSuffix(base, Ext)}, false
	}
	return Info{
		Date:     date,
		Label:    m[2],
		VUs:      vus,
		Duration: dur,
		Hardware: m[5],
	}, true
}
