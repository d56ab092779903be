// Package parser reads mortality tables and exported edge lists.
package parser

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"github.com/gilchrisn/mortality-clustering-service/pkg/graph"
	"github.com/gilchrisn/mortality-clustering-service/pkg/models"
)

// Column positions of the mortality table. Column 0 is a row index.
const (
	colUnit = iota + 1
	colUnitNum
	colStubName
	colStubNameNum
	colStubLabel
	colStubLabelNum
	colYear
	colYearNum
	colAge
	colAgeNum
	colEstimate

	numColumns
)

// Stats counts what happened to the rows of one table
type Stats struct {
	Rows          int `json:"rows" yaml:"rows"`
	Records       int `json:"records" yaml:"records"`
	ShortRows     int `json:"short_rows" yaml:"short_rows"`
	MalformedRows int `json:"malformed_rows" yaml:"malformed_rows"`
	Invalid       int `json:"invalid" yaml:"invalid"`
	Defaulted     int `json:"defaulted" yaml:"defaulted"` // numeric fields that fell back to zero
}

// LoadRecordsCSV opens path and reads its records
func LoadRecordsCSV(path string, logger zerolog.Logger) ([]models.Record, Stats, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, Stats{}, errors.Wrapf(err, "failed to open %s", path)
	}
	defer file.Close()

	records, stats, err := ReadRecords(file, logger.With().Str("file", path).Logger())
	if err != nil {
		return nil, stats, errors.Wrapf(err, "failed to read %s", path)
	}
	return records, stats, nil
}

// ReadRecords parses a mortality table. The header row is skipped. Rows
// that cannot be split or carry too few columns are skipped, numeric fields
// that do not parse default to zero, and records failing validation are
// dropped. Each case is logged as a warning.
func ReadRecords(r io.Reader, logger zerolog.Logger) ([]models.Record, Stats, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	var stats Stats
	if _, err := reader.Read(); err != nil {
		if err == io.EOF {
			return []models.Record{}, stats, nil
		}
		return nil, stats, errors.Wrap(err, "failed to read header")
	}

	records := make([]models.Record, 0)
	for row := 1; ; row++ {
		fields, err := reader.Read()
		if err == io.EOF {
			break
		}
		stats.Rows++
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				stats.MalformedRows++
				logger.Warn().Int("row", row).Err(err).Msg("Skipping malformed row")
				continue
			}
			return nil, stats, errors.Wrapf(err, "row %d", row)
		}
		if len(fields) < numColumns {
			stats.ShortRows++
			logger.Warn().Int("row", row).Int("columns", len(fields)).Msg("Skipping short row")
			continue
		}

		fp := fieldParser{row: row, logger: logger}
		rec := models.Record{
			Unit:         fields[colUnit],
			UnitNum:      fp.int("unit_num", fields[colUnitNum]),
			StubName:     fields[colStubName],
			StubNameNum:  fp.int("stub_name_num", fields[colStubNameNum]),
			StubLabel:    fields[colStubLabel],
			StubLabelNum: fp.float("stub_label_num", fields[colStubLabelNum]),
			Year:         fields[colYear],
			YearNum:      fp.int("year_num", fields[colYearNum]),
			Age:          fields[colAge],
			AgeNum:       fp.int("age_num", fields[colAgeNum]),
			Estimate:     fp.float("estimate", fields[colEstimate]),
		}
		stats.Defaulted += fp.defaulted

		if err := rec.Validate(); err != nil {
			stats.Invalid++
			logger.Warn().Int("row", row).Err(err).Msg("Skipping invalid record")
			continue
		}
		records = append(records, rec)
	}

	stats.Records = len(records)
	logger.Debug().
		Int("rows", stats.Rows).
		Int("records", stats.Records).
		Int("defaulted", stats.Defaulted).
		Msg("Records parsed")

	return records, stats, nil
}

// fieldParser converts numeric columns, defaulting to zero on failure
type fieldParser struct {
	row       int
	logger    zerolog.Logger
	defaulted int
}

func (p *fieldParser) int(name, raw string) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		p.fallback(name, raw)
		return 0
	}
	return value
}

func (p *fieldParser) float(name, raw string) float64 {
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		p.fallback(name, raw)
		return 0
	}
	return value
}

func (p *fieldParser) fallback(name, raw string) {
	p.defaulted++
	p.logger.Warn().
		Int("row", p.row).
		Str("field", name).
		Str("value", raw).
		Msg("Unparseable number, using 0")
}

// LoadEdgesCSV opens path and reads it with ReadEdgesCSV
func LoadEdgesCSV(path string) (*graph.Graph, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	defer file.Close()

	g, err := ReadEdgesCSV(file)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}
	return g, nil
}

// ReadEdgesCSV reads a "source,target,weight" edge list, as written by the
// export package, back into a graph. Every row is one stored direction, so
// a row without its reverse leaves a one-sided edge, and a target that never
// appears as a source leaves a dangling entry. Graph.Validate reports both.
func ReadEdgesCSV(r io.Reader) (*graph.Graph, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 3

	g := graph.New()
	if _, err := reader.Read(); err != nil {
		if err == io.EOF {
			return g, nil
		}
		return nil, errors.Wrap(err, "failed to read header")
	}

	for row := 1; ; row++ {
		fields, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "row %d", row)
		}

		weight, err := strconv.ParseFloat(strings.TrimSpace(fields[2]), 64)
		if err != nil {
			return nil, errors.Wrapf(err, "row %d: invalid weight %q", row, fields[2])
		}
		source := models.NodeID(strings.TrimSpace(fields[0]))
		target := models.NodeID(strings.TrimSpace(fields[1]))
		if err := g.AddHalfEdge(source, target, weight); err != nil {
			return nil, errors.Wrapf(err, "row %d", row)
		}
	}

	return g, nil
}
