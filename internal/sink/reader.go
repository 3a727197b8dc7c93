package sink

import (
	"bufio"
	"encoding/csv"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

// Reader decodes a result file, compressed or not.
type Reader struct {
	csv  *csv.Reader
	cols columns
	line int
	gz   *gzip.Reader
}

// NewReader detects gzip by its magic bytes so both "*.gz" files and plain
// CSV exports can be analysed.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)
	rd := &Reader{}

	var src io.Reader = br
	magic, err := br.Peek(2)
	if err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, errors.Wrap(err, "open gzip stream")
		}
		rd.gz = gz
		src = gz
	}

	rd.csv = csv.NewReader(src)
	rd.csv.ReuseRecord = true
	rd.csv.FieldsPerRecord = -1

	header, err := rd.csv.Read()
	if err != nil {
		if err == io.EOF {
			return nil, errors.New("result file is empty")
		}
		return nil, errors.Wrap(err, "read header")
	}
	if rd.cols, err = newColumns(header); err != nil {
		return nil, err
	}
	rd.line = 1
	return rd, nil
}

// Next returns the next sample or io.EOF.
func (r *Reader) Next() (Sample, error) {
	row, err := r.csv.Read()
	if err != nil {
		if err == io.EOF {
			return Sample{}, io.EOF
		}
		return Sample{}, errors.Wrapf(err, "line %d", r.line+1)
	}
	r.line++
	s, err := r.cols.decode(row)
	if err != nil {
		return Sample{}, errors.Wrapf(err, "line %d", r.line)
	}
	return s, nil
}

// ReadAll drains the reader.
func (r *Reader) ReadAll() ([]Sample, error) {
	var out []Sample
	for {
		s, err := r.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, s)
	}
}

func (r *Reader) Close() error {
	if r.gz != nil {
		return r.gz.Close()
	}
	return nil
}

// ReadFile loads every sample of the result file at path.
func ReadFile(path string) ([]Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	r, err := NewReader(f)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	defer r.Close()
	return r.ReadAll()
}
