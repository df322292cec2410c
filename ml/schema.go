package ml

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	FeatureAge              = "age"
	FeatureBMI              = "bmi"
	FeaturePhysicalActivity = "physical_activity"
	FeatureDiet             = "diet"
	FeatureFamilyHistory    = "family_history"
	FeatureBloodPressure    = "blood_pressure"
	FeatureGlucose          = "glucose"

	TargetColumn = "diabetes"
)

// RawRecord is one observation keyed by feature name. A nil value is a missing
// value and gets imputed; an absent key is a schema violation.
type RawRecord map[string]interface{}

func NumericFeatures() []string {
	return []string{FeatureAge, FeatureBMI, FeatureBloodPressure, FeatureGlucose}
}

func CategoricalFeatures() []string {
	return []string{FeaturePhysicalActivity, FeatureDiet, FeatureFamilyHistory}
}

// FeatureNames returns every input feature, numeric block first.
func FeatureNames() []string {
	return append(NumericFeatures(), CategoricalFeatures()...)
}

// CheckSchema verifies the record carries exactly the declared feature keys.
func CheckSchema(record RawRecord) error {
	for _, name := range FeatureNames() {
		if _, ok := record[name]; !ok {
			return schemaErrorf(name, "required feature is absent")
		}
	}
	if len(record) == len(FeatureNames()) {
		return nil
	}
	known := make(map[string]struct{}, len(FeatureNames()))
	for _, name := range FeatureNames() {
		known[name] = struct{}{}
	}
	for key := range record {
		if _, ok := known[key]; !ok {
			return schemaErrorf(key, "unexpected feature")
		}
	}
	return nil
}

// numericValue coerces a raw value. ok is false when the value is missing.
func numericValue(field string, raw interface{}) (value float64, ok bool, err error) {
	switch v := raw.(type) {
	case nil:
		return 0, false, nil
	case float64:
		value = v
	case float32:
		value = float64(v)
	case int:
		value = float64(v)
	case int8:
		value = float64(v)
	case int16:
		value = float64(v)
	case int32:
		value = float64(v)
	case int64:
		value = float64(v)
	case uint:
		value = float64(v)
	case uint8:
		value = float64(v)
	case uint16:
		value = float64(v)
	case uint32:
		value = float64(v)
	case uint64:
		value = float64(v)
	case json.Number:
		value, err = strconv.ParseFloat(v.String(), 64)
		if err != nil {
			return 0, false, schemaErrorf(field, "cannot convert %q to a number", v.String())
		}
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return 0, false, nil
		}
		value, err = strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return 0, false, schemaErrorf(field, "cannot convert %q to a number", v)
		}
	default:
		return 0, false, schemaErrorf(field, "cannot convert %T to a number", raw)
	}
	if math.IsNaN(value) {
		return 0, false, nil
	}
	if math.IsInf(value, 0) {
		return 0, false, schemaErrorf(field, "value is infinite")
	}
	return value, true, nil
}

// categoricalValue stringifies a raw value. ok is false when the value is missing.
func categoricalValue(raw interface{}) (string, bool) {
	switch v := raw.(type) {
	case nil:
		return "", false
	case string:
		if v == "" {
			return "", false
		}
		return v, true
	case float64:
		if math.IsNaN(v) {
			return "", false
		}
	}
	return fmt.Sprint(raw), true
}

// CoerceNumeric applies the numeric coercion rules used by Transform.
func CoerceNumeric(field string, raw interface{}) (float64, bool, error) {
	return numericValue(field, raw)
}

// CoerceCategorical applies the categorical coercion rules used by Transform.
func CoerceCategorical(raw interface{}) (string, bool) {
	return categoricalValue(raw)
}
