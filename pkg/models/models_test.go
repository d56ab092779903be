package models

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewNodeID(t *testing.T) {
	tests := []struct {
		name   string
		record Record
		want   NodeID
	}{
		{"fractional label", Record{StubLabelNum: 4.13, YearNum: 12, AgeNum: 0}, "4.13-12-0"},
		{"integral label", Record{StubLabelNum: 4, YearNum: 1, AgeNum: 3}, "4-1-3"},
		{"zero codes", Record{}, "0-0-0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NewNodeID(tt.record))
			assert.Equal(t, tt.want, tt.record.ID())
		})
	}
}

func TestSharesCode(t *testing.T) {
	base := Record{StubLabelNum: 1.1, YearNum: 2, AgeNum: 3}

	assert.True(t, base.SharesCode(Record{StubLabelNum: 1.1, YearNum: 9, AgeNum: 9}))
	assert.True(t, base.SharesCode(Record{StubLabelNum: 9, YearNum: 2, AgeNum: 9}))
	assert.True(t, base.SharesCode(Record{StubLabelNum: 9, YearNum: 9, AgeNum: 3}))
	assert.False(t, base.SharesCode(Record{StubLabelNum: 9, YearNum: 9, AgeNum: 9}))
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Record{Estimate: 20.2, UnitNum: 1}.Validate())
	assert.Error(t, Record{Estimate: -1}.Validate())
	assert.Error(t, Record{Estimate: 1, YearNum: -2}.Validate())
}

func TestValidateRejectsNonFiniteValues(t *testing.T) {
	assert.Error(t, Record{Estimate: math.Inf(1)}.Validate())
	assert.Error(t, Record{Estimate: math.NaN()}.Validate())
	assert.Error(t, Record{Estimate: 1, StubLabelNum: math.Inf(1)}.Validate())
}

func TestHasEstimate(t *testing.T) {
	assert.False(t, Record{}.HasEstimate())
	assert.True(t, Record{Estimate: 0.5}.HasEstimate())
	assert.False(t, Record{Estimate: math.Inf(1)}.HasEstimate())
	assert.False(t, Record{Estimate: math.NaN()}.HasEstimate())
}
