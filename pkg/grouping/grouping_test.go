package grouping

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gilchrisn/mortality-clustering-service/pkg/models"
)

func record(unit, stub, year int, estimate float64) models.Record {
	return models.Record{
		UnitNum:      unit,
		StubName:     "stub",
		StubNameNum:  stub,
		StubLabelNum: 1.1,
		YearNum:      year,
		Estimate:     estimate,
	}
}

func TestSplitByUnit(t *testing.T) {
	records := []models.Record{
		record(1, 0, 1, 10),
		record(2, 0, 2, 20),
		record(1, 3, 3, 30),
		record(3, 0, 4, 40),
	}

	primary, other := SplitByUnit(records)

	require.Len(t, primary, 2)
	require.Len(t, other, 2)
	assert.Equal(t, 10.0, primary[0].Estimate)
	assert.Equal(t, 30.0, primary[1].Estimate)
	assert.Equal(t, 20.0, other[0].Estimate)
	assert.Equal(t, 40.0, other[1].Estimate)
}

func TestSplitByUnitEmpty(t *testing.T) {
	primary, other := SplitByUnit(nil)
	assert.Empty(t, primary)
	assert.Empty(t, other)
}

func TestSubdivideByStubName(t *testing.T) {
	var logs bytes.Buffer
	records := []models.Record{
		record(1, 0, 1, 10),
		record(1, 11, 2, 20),
		record(1, 0, 3, 30),
		record(1, 12, 4, 40),
		record(1, -1, 5, 50),
	}

	buckets := SubdivideByStubName(records, zerolog.New(&logs))

	assert.Len(t, buckets[0], 2)
	assert.Len(t, buckets[11], 1)
	total := 0
	for _, b := range buckets {
		total += len(b)
	}
	assert.Equal(t, 3, total)
	assert.Contains(t, logs.String(), "invalid stub name code")
}

func TestPartitionOrdersGroups(t *testing.T) {
	records := []models.Record{
		record(2, 4, 1, 10),
		record(1, 4, 2, 20),
		record(1, 0, 3, 30),
		record(2, 1, 4, 40),
	}

	groups := Partition(records, zerolog.Nop())

	names := make([]string, 0, len(groups))
	for _, g := range groups {
		names = append(names, g.Name)
	}
	assert.Equal(t, []string{"unit1-stub00", "unit1-stub04", "other-stub01", "other-stub04"}, names)
	assert.True(t, groups[0].Primary)
	assert.False(t, groups[3].Primary)
	assert.Equal(t, "stub", groups[1].StubName)
	assert.Len(t, groups[2].Records, 1)
}

func TestPartitionEmpty(t *testing.T) {
	assert.Empty(t, Partition(nil, zerolog.Nop()))
}
