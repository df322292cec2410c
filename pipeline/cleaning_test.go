package pipeline

import (
	"errors"
	"testing"

	"glucorisk/ml"
)

func validRecord() ml.RawRecord {
	return ml.RawRecord{
		"age":               35,
		"bmi":               25.0,
		"physical_activity": "Moderate",
		"diet":              "Balanced",
		"family_history":    "No",
		"blood_pressure":    120,
		"glucose":           100,
	}
}

func TestNewRecordValidator(t *testing.T) {
	validator := NewRecordValidator()
	if len(validator.rules) != len(ml.FeatureNames()) {
		t.Fatalf("expected one rule per feature, got %d", len(validator.rules))
	}
	if err := validator.Validate(validRecord()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRecordValidatorRejections(t *testing.T) {
	tests := []struct {
		name  string
		field string
		value interface{}
	}{
		{"age too young", "age", 0},
		{"age too old", "age", 121},
		{"fractional age", "age", 35.5},
		{"bmi too low", "bmi", 9.9},
		{"bmi too high", "bmi", 60.1},
		{"blood pressure too high", "blood_pressure", 201},
		{"glucose too low", "glucose", 59},
		{"glucose not a number", "glucose", "high"},
		{"unknown activity", "physical_activity", "Extreme"},
		{"lowercase diet", "diet", "balanced"},
		{"unknown history", "family_history", "Maybe"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := validRecord()
			record[tt.field] = tt.value
			err := NewRecordValidator().Validate(record)
			var validationErr *ValidationError
			if !errors.As(err, &validationErr) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if len(validationErr.Issues) != 1 || validationErr.Issues[0].Field != tt.field {
				t.Fatalf("unexpected issues: %+v", validationErr.Issues)
			}
		})
	}
}

func TestRecordValidatorBoundariesAndMissing(t *testing.T) {
	validator := NewRecordValidator()
	record := validRecord()
	record["age"] = 1
	record["bmi"] = 60.0
	record["blood_pressure"] = 200
	record["glucose"] = nil
	record["diet"] = nil
	if err := validator.Validate(record); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	partial := validRecord()
	delete(partial, "glucose")
	if err := validator.Validate(partial); err != nil {
		t.Fatalf("absent keys are left to the schema check, got %v", err)
	}
}

func TestRecordValidatorStats(t *testing.T) {
	validator := NewRecordValidator()
	bad := validRecord()
	bad["age"] = 500
	_ = validator.Validate(validRecord())
	_ = validator.Validate(bad)

	stats := validator.GetStats()
	if stats.TotalProcessed != 2 || stats.Passed != 1 || stats.Rejected != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.Issues["age_range"] != 1 {
		t.Fatalf("expected one age_range issue, got %v", stats.Issues)
	}
}
