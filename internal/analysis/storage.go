package analysis

import (
	"encoding/csv"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// DefaultCostPerGB is the S3 standard storage price in dollars per GiB-month.
const DefaultCostPerGB = 0.023

// BaselineConfig is the configuration storage savings are measured against.
const BaselineConfig = "Default Collector"

var (
	ErrNoBaseline = errors.New("storage data has no default-collector row")
	ErrBadSize    = errors.New("unparseable size")
)

var configNames = map[string]string{
	"http-json":             "Custom HTTP-JSON",
	"default-collector":     BaselineConfig,
	"custom-http-json-gzip": "Custom HTTP-JSON+gzip",
	"custom-grcp-gzip":      "Custom gRPC+gzip",
	"custom-grpc-gzip":      "Custom gRPC+gzip",
	"custom-grpc":           "Custom gRPC",
}

// StorageRow is one bucket listing from the storage comparison CSV.
type StorageRow struct {
	Configuration string
	Name          string
	SizeMiB       float64
	Objects       float64
	// Savings and ObjectChange are percentages relative to the baseline.
	Savings      float64
	ObjectChange float64
}

// MonthlyCost estimates the storage bill for the row at costPerGB dollars
// per GiB-month.
func (r StorageRow) MonthlyCost(costPerGB float64) float64 {
	return r.SizeMiB / 1024 * costPerGB
}

func (r StorageRow) Baseline() bool {
	return r.Name == BaselineConfig
}

// ParseSize converts "120.1 MiB", "1.5 GiB" or "512 KiB" into MiB. A bare
// number is taken as MiB.
func ParseSize(s string) (float64, error) {
	s = strings.TrimSpace(s)
	mult := 1.0
	for _, u := range []struct {
		suffix string
		mult   float64
	}{{"GiB", 1024}, {"MiB", 1}, {"KiB", 1.0 / 1024}} {
		if strings.HasSuffix(s, u.suffix) {
			s = strings.TrimSpace(strings.TrimSuffix(s, u.suffix))
			mult = u.mult
			break
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errors.Wrapf(ErrBadSize, "%q", s)
	}
	return v * mult, nil
}

// CleanConfigName strips bucket naming noise and maps known configurations
// to display names. Unknown names are title-cased.
func CleanConfigName(name string) string {
	name = strings.ReplaceAll(name, "quickpizza-", "")
	name = strings.ReplaceAll(name, "-bucket", "")
	if n, ok := configNames[name]; ok {
		return n
	}
	return titleCase(name)
}

// titleCase upper-cases the first letter of every alphabetic run.
func titleCase(s string) string {
	b := []byte(strings.ToLower(s))
	prevLetter := false
	for i, c := range b {
		isLetter := c >= 'a' && c <= 'z'
		if isLetter && !prevLetter {
			b[i] = c - 'a' + 'A'
		}
		prevLetter = isLetter
	}
	return string(b)
}

// ReadStorage parses a storage comparison CSV with the columns
// configuration, total size and total objects. Rows come back sorted by
// size, largest first.
func ReadStorage(r io.Reader) ([]StorageRow, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, errors.Wrap(err, "read storage header")
	}
	idx := map[string]int{}
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, col := range []string{"configuration", "total size", "total objects"} {
		if _, ok := idx[col]; !ok {
			return nil, errors.Errorf("storage csv: missing column %q", col)
		}
	}

	var rows []StorageRow
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "storage csv line %d", line)
		}
		size, err := ParseSize(rec[idx["total size"]])
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}
		objects, err := strconv.ParseFloat(strings.TrimSpace(rec[idx["total objects"]]), 64)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d: total objects", line)
		}
		cfg := strings.TrimSpace(rec[idx["configuration"]])
		rows = append(rows, StorageRow{
			Configuration: cfg,
			Name:          CleanConfigName(cfg),
			SizeMiB:       size,
			Objects:       objects,
		})
	}

	var base *StorageRow
	for i := range rows {
		if rows[i].Baseline() {
			base = &rows[i]
			break
		}
	}
	if base == nil {
		return nil, ErrNoBaseline
	}
	baseSize, baseObjects := base.SizeMiB, base.Objects
	for i := range rows {
		if baseSize != 0 {
			rows[i].Savings = (baseSize - rows[i].SizeMiB) / baseSize * 100
		}
		if baseObjects != 0 {
			rows[i].ObjectChange = (rows[i].Objects - baseObjects) / baseObjects * 100
		}
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].SizeMiB > rows[j].SizeMiB })
	return rows, nil
}

func ReadStorageFile(path string) ([]StorageRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open storage csv")
	}
	defer f.Close()
	return ReadStorage(f)
}
