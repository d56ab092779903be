// Package grouping splits a mortality table into the sub-populations that
// are clustered independently.
package grouping

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/gilchrisn/mortality-clustering-service/pkg/models"
)

// NumStubGroups is the number of stub-name codes, 0 through 11
const NumStubGroups = 12

// PrimaryUnit is the unit code split off first
const PrimaryUnit = 1

// Group is one (unit, stub name) bucket
type Group struct {
	Name        string          `json:"name" yaml:"name"`
	Primary     bool            `json:"primary" yaml:"primary"` // unit code 1
	StubNameNum int             `json:"stub_name_num" yaml:"stub_name_num"`
	StubName    string          `json:"stub_name" yaml:"stub_name"`
	Records     []models.Record `json:"-" yaml:"-"`
}

// SplitByUnit separates records with the primary unit code from the rest.
// Input order is kept within each side.
func SplitByUnit(records []models.Record) (primary, other []models.Record) {
	primary = make([]models.Record, 0)
	other = make([]models.Record, 0)
	for _, r := range records {
		if r.UnitNum == PrimaryUnit {
			primary = append(primary, r)
		} else {
			other = append(other, r)
		}
	}
	return primary, other
}

// SubdivideByStubName buckets records by stub-name code. Codes outside
// 0..11 are skipped with a warning.
func SubdivideByStubName(records []models.Record, logger zerolog.Logger) [NumStubGroups][]models.Record {
	var buckets [NumStubGroups][]models.Record
	for _, r := range records {
		if r.StubNameNum < 0 || r.StubNameNum >= NumStubGroups {
			logger.Warn().
				Int("stub_name_num", r.StubNameNum).
				Str("node", string(r.ID())).
				Msg("Skipping record with invalid stub name code")
			continue
		}
		buckets[r.StubNameNum] = append(buckets[r.StubNameNum], r)
	}
	return buckets
}

// Partition returns every non-empty bucket: primary unit first, then by
// stub-name code.
func Partition(records []models.Record, logger zerolog.Logger) []Group {
	primary, other := SplitByUnit(records)

	groups := make([]Group, 0)
	for _, side := range []struct {
		primary bool
		records []models.Record
	}{{true, primary}, {false, other}} {
		buckets := SubdivideByStubName(side.records, logger)
		for code, bucket := range buckets {
			if len(bucket) == 0 {
				continue
			}
			groups = append(groups, Group{
				Name:        GroupName(side.primary, code),
				Primary:     side.primary,
				StubNameNum: code,
				StubName:    bucket[0].StubName,
				Records:     bucket,
			})
		}
	}
	return groups
}

// GroupName is the stable, file-system safe name of a bucket
func GroupName(primary bool, stubNameNum int) string {
	unit := "other"
	if primary {
		unit = fmt.Sprintf("unit%d", PrimaryUnit)
	}
	return fmt.Sprintf("%s-stub%02d", unit, stubNameNum)
}
