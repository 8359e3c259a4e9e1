package pipeline

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"sync"

	"github.com/aluiziolira/idealista-price-trends/models"
)

// ErrSchemaMismatch is returned when an existing CSV file has a different header.
var ErrSchemaMismatch = errors.New("pipeline: csv header does not match")

var csvHeader = []string{"location", "timestamp", "avg_price_per_sqm", "num_flats"}

// CSVWriter appends summary rows to a CSV file, opening it once per row.
type CSVWriter struct {
	path string
	mu   sync.Mutex
}

// NewCSVWriter prepares a CSV writer for path. The file is not touched until
// the first Append.
func NewCSVWriter(path string) (*CSVWriter, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	return &CSVWriter{path: path}, nil
}

// Append writes row, preceded by the header when the file is absent or empty.
func (cw *CSVWriter) Append(row *models.SummaryRow) (err error) {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	f, err := os.OpenFile(cw.path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open csv file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close csv file: %w", cerr)
		}
	}()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat csv file: %w", err)
	}

	writer := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := writer.Write(csvHeader); err != nil {
			return fmt.Errorf("write csv header: %w", err)
		}
	} else if err := checkHeader(f); err != nil {
		return err
	}

	if err := writer.Write(csvRecord(row)); err != nil {
		return fmt.Errorf("write csv record: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush csv record: %w", err)
	}
	return nil
}

func checkHeader(r io.Reader) error {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("%w: read header: %v", ErrSchemaMismatch, err)
	}
	if !slices.Equal(header, csvHeader) {
		return fmt.Errorf("%w: got %v", ErrSchemaMismatch, header)
	}
	return nil
}

func csvRecord(row *models.SummaryRow) []string {
	return []string{
		row.Location,
		row.Timestamp.Format(models.TimestampLayout),
		strconv.FormatFloat(row.AvgPricePerSqm, 'f', -1, 64),
		strconv.Itoa(row.NumFlats),
	}
}

// Close is a no-op; the file is closed after every row.
func (cw *CSVWriter) Close() error {
	return nil
}

// Validate ensures the file has content besides the header.
func (cw *CSVWriter) Validate() error {
	return validateFile(cw.path, "csv")
}

// JSONWriter appends newline-delimited JSON records, opening the file per row.
type JSONWriter struct {
	path string
	mu   sync.Mutex
}

type jsonRecord struct {
	Location       string  `json:"location"`
	Timestamp      string  `json:"timestamp"`
	AvgPricePerSqm float64 `json:"avg_price_per_sqm"`
	NumFlats       int     `json:"num_flats"`
}

// NewJSONWriter prepares the JSON writer.
func NewJSONWriter(path string) (*JSONWriter, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	return &JSONWriter{path: path}, nil
}

// Append writes row as a single JSON line.
func (jw *JSONWriter) Append(row *models.SummaryRow) (err error) {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	f, err := os.OpenFile(jw.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open json file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close json file: %w", cerr)
		}
	}()

	record := jsonRecord{
		Location:       row.Location,
		Timestamp:      row.Timestamp.Format(models.TimestampLayout),
		AvgPricePerSqm: row.AvgPricePerSqm,
		NumFlats:       row.NumFlats,
	}
	if err := json.NewEncoder(f).Encode(record); err != nil {
		return fmt.Errorf("encode json record: %w", err)
	}
	return nil
}

// Close is a no-op; the file is closed after every row.
func (jw *JSONWriter) Close() error {
	return nil
}

// Validate ensures the JSON file has data.
func (jw *JSONWriter) Validate() error {
	return validateFile(jw.path, "json")
}

func validateFile(path, kind string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s file: %w", kind, err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("%s file is empty", kind)
	}
	return nil
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
