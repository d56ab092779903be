package models

import (
	"math"
	"reflect"
	"strconv"

	"github.com/go-playground/validator/v10"
)

// NodeID identifies a record in the similarity graph, or a community at a
// coarsened level. Build record ids with NewNodeID only.
type NodeID string

// Record is one row of the mortality table
type Record struct {
	Unit         string  `json:"unit" yaml:"unit"`
	UnitNum      int     `json:"unit_num" yaml:"unit_num" validate:"gte=0"`
	StubName     string  `json:"stub_name" yaml:"stub_name"`
	StubNameNum  int     `json:"stub_name_num" yaml:"stub_name_num" validate:"gte=0"`
	StubLabel    string  `json:"stub_label" yaml:"stub_label"`
	StubLabelNum float64 `json:"stub_label_num" yaml:"stub_label_num" validate:"finite,gte=0"`
	Year         string  `json:"year" yaml:"year"`
	YearNum      int     `json:"year_num" yaml:"year_num" validate:"gte=0"`
	Age          string  `json:"age" yaml:"age"`
	AgeNum       int     `json:"age_num" yaml:"age_num" validate:"gte=0"`
	Estimate     float64 `json:"estimate" yaml:"estimate" validate:"finite,gte=0"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// gte alone lets +Inf through
	v.RegisterValidation("finite", func(fl validator.FieldLevel) bool {
		field := fl.Field()
		if field.Kind() != reflect.Float32 && field.Kind() != reflect.Float64 {
			return true
		}
		f := field.Float()
		return !math.IsInf(f, 0) && !math.IsNaN(f)
	})
	return v
}

// NewNodeID canonicalizes the categorical codes of a record into its node id:
// "<stub_label_num>-<year_num>-<age_num>".
func NewNodeID(r Record) NodeID {
	label := strconv.FormatFloat(r.StubLabelNum, 'f', -1, 64)
	return NodeID(label + "-" + strconv.Itoa(r.YearNum) + "-" + strconv.Itoa(r.AgeNum))
}

// CommunityNodeID names community c at a coarsened level.
func CommunityNodeID(c int) NodeID {
	return NodeID(strconv.Itoa(c))
}

// ID returns the record's node id
func (r Record) ID() NodeID {
	return NewNodeID(r)
}

// HasEstimate reports whether the record carries a usable estimate
func (r Record) HasEstimate() bool {
	return r.Estimate != 0 && !math.IsInf(r.Estimate, 0) && !math.IsNaN(r.Estimate)
}

// SharesCode reports whether two records match on label, period or age code
func (r Record) SharesCode(other Record) bool {
	return r.StubLabelNum == other.StubLabelNum ||
		r.YearNum == other.YearNum ||
		r.AgeNum == other.AgeNum
}

// Validate checks structural constraints on a parsed record
func (r Record) Validate() error {
	return validate.Struct(r)
}
