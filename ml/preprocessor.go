package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
)

type NumericStats struct {
	Name   string  `json:"name"`
	Median float64 `json:"median"`
	Mean   float64 `json:"mean"`
	Std    float64 `json:"std"`
}

type CategoricalStats struct {
	Name         string   `json:"name"`
	MostFrequent string   `json:"most_frequent"`
	Vocabulary   []string `json:"vocabulary"`
}

// Preprocessor holds the imputation, scaling and one-hot statistics frozen at
// fit time. It is never mutated after construction and is safe for concurrent use.
type Preprocessor struct {
	numeric     []NumericStats
	categorical []CategoricalStats
	positions   []map[string]int
	width       int
}

// FitPreprocessor computes the frozen statistics over a training partition.
func FitPreprocessor(records []RawRecord) (*Preprocessor, error) {
	if len(records) == 0 {
		return nil, errors.New("fit preprocessor: records is empty")
	}
	for i, record := range records {
		if err := CheckSchema(record); err != nil {
			return nil, fmt.Errorf("fit preprocessor: record %d: %w", i, err)
		}
	}

	numeric := make([]NumericStats, 0, len(NumericFeatures()))
	for _, name := range NumericFeatures() {
		stats, err := fitNumeric(name, records)
		if err != nil {
			return nil, fmt.Errorf("fit preprocessor: %w", err)
		}
		numeric = append(numeric, stats)
	}

	categorical := make([]CategoricalStats, 0, len(CategoricalFeatures()))
	for _, name := range CategoricalFeatures() {
		stats, err := fitCategorical(name, records)
		if err != nil {
			return nil, fmt.Errorf("fit preprocessor: %w", err)
		}
		categorical = append(categorical, stats)
	}

	return newPreprocessor(numeric, categorical)
}

func newPreprocessor(numeric []NumericStats, categorical []CategoricalStats) (*Preprocessor, error) {
	if err := checkLayout(numeric, categorical); err != nil {
		return nil, err
	}
	p := &Preprocessor{
		numeric:     numeric,
		categorical: categorical,
		positions:   make([]map[string]int, len(categorical)),
		width:       len(numeric),
	}
	for i, stats := range categorical {
		positions := make(map[string]int, len(stats.Vocabulary))
		for j, value := range stats.Vocabulary {
			if _, dup := positions[value]; dup {
				return nil, fmt.Errorf("preprocessor: duplicate category %q for %s", value, stats.Name)
			}
			positions[value] = j
		}
		p.positions[i] = positions
		p.width += len(stats.Vocabulary)
	}
	return p, nil
}

func checkLayout(numeric []NumericStats, categorical []CategoricalStats) error {
	names := NumericFeatures()
	if len(numeric) != len(names) {
		return fmt.Errorf("preprocessor: expected %d numeric features, got %d", len(names), len(numeric))
	}
	for i, stats := range numeric {
		if stats.Name != names[i] {
			return fmt.Errorf("preprocessor: numeric feature %d is %q, expected %q", i, stats.Name, names[i])
		}
		if stats.Std < 0 || math.IsNaN(stats.Std) || math.IsNaN(stats.Mean) || math.IsNaN(stats.Median) {
			return fmt.Errorf("preprocessor: invalid statistics for %s", stats.Name)
		}
	}
	names = CategoricalFeatures()
	if len(categorical) != len(names) {
		return fmt.Errorf("preprocessor: expected %d categorical features, got %d", len(names), len(categorical))
	}
	for i, stats := range categorical {
		if stats.Name != names[i] {
			return fmt.Errorf("preprocessor: categorical feature %d is %q, expected %q", i, stats.Name, names[i])
		}
	}
	return nil
}

func fitNumeric(name string, records []RawRecord) (NumericStats, error) {
	observed := make([]float64, 0, len(records))
	present := make([]bool, len(records))
	values := make([]float64, len(records))
	for i, record := range records {
		value, ok, err := numericValue(name, record[name])
		if err != nil {
			return NumericStats{}, fmt.Errorf("record %d: %w", i, err)
		}
		if ok {
			observed = append(observed, value)
			values[i] = value
			present[i] = true
		}
	}
	if len(observed) == 0 {
		return NumericStats{}, fmt.Errorf("%s has no observed values", name)
	}

	stats := NumericStats{Name: name, Median: median(observed)}
	for i := range values {
		if !present[i] {
			values[i] = stats.Median
		}
	}
	stats.Mean, stats.Std = meanStd(values)
	return stats, nil
}

func fitCategorical(name string, records []RawRecord) (CategoricalStats, error) {
	counts := make(map[string]int)
	for _, record := range records {
		if value, ok := categoricalValue(record[name]); ok {
			counts[value]++
		}
	}
	if len(counts) == 0 {
		return CategoricalStats{}, fmt.Errorf("%s has no observed values", name)
	}

	vocabulary := make([]string, 0, len(counts))
	for value := range counts {
		vocabulary = append(vocabulary, value)
	}
	sort.Strings(vocabulary)

	mostFrequent := vocabulary[0]
	for _, value := range vocabulary[1:] {
		if counts[value] > counts[mostFrequent] {
			mostFrequent = value
		}
	}
	return CategoricalStats{Name: name, MostFrequent: mostFrequent, Vocabulary: vocabulary}, nil
}

// Transform maps one record onto the feature vector layout fixed at fit time.
func (p *Preprocessor) Transform(record RawRecord) ([]float64, error) {
	if err := CheckSchema(record); err != nil {
		return nil, err
	}
	vector := make([]float64, p.width)
	for i, stats := range p.numeric {
		value, ok, err := numericValue(stats.Name, record[stats.Name])
		if err != nil {
			return nil, err
		}
		if !ok {
			value = stats.Median
		}
		if stats.Std == 0 {
			vector[i] = 0
			continue
		}
		vector[i] = (value - stats.Mean) / stats.Std
	}

	offset := len(p.numeric)
	for i, stats := range p.categorical {
		value, ok := categoricalValue(record[stats.Name])
		if !ok {
			value = stats.MostFrequent
		}
		if pos, known := p.positions[i][value]; known {
			vector[offset+pos] = 1
		}
		offset += len(stats.Vocabulary)
	}
	return vector, nil
}

func (p *Preprocessor) TransformBatch(records []RawRecord) ([][]float64, error) {
	vectors := make([][]float64, len(records))
	for i, record := range records {
		vector, err := p.Transform(record)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		vectors[i] = vector
	}
	return vectors, nil
}

// Width is the length of every vector produced by Transform.
func (p *Preprocessor) Width() int {
	return p.width
}

func (p *Preprocessor) ColumnNames() []string {
	names := make([]string, 0, p.width)
	for _, stats := range p.numeric {
		names = append(names, stats.Name)
	}
	for _, stats := range p.categorical {
		for _, value := range stats.Vocabulary {
			names = append(names, stats.Name+"="+value)
		}
	}
	return names
}

func (p *Preprocessor) NumericStats() []NumericStats {
	return append([]NumericStats(nil), p.numeric...)
}

func (p *Preprocessor) CategoricalStats() []CategoricalStats {
	out := make([]CategoricalStats, len(p.categorical))
	for i, stats := range p.categorical {
		out[i] = stats
		out[i].Vocabulary = append([]string(nil), stats.Vocabulary...)
	}
	return out
}

type preprocessorState struct {
	Numeric     []NumericStats     `json:"numeric"`
	Categorical []CategoricalStats `json:"categorical"`
}

func (p *Preprocessor) MarshalJSON() ([]byte, error) {
	return json.Marshal(preprocessorState{Numeric: p.numeric, Categorical: p.categorical})
}

func (p *Preprocessor) UnmarshalJSON(data []byte) error {
	var state preprocessorState
	if err := json.Unmarshal(data, &state); err != nil {
		return err
	}
	decoded, err := newPreprocessor(state.Numeric, state.Categorical)
	if err != nil {
		return err
	}
	*p = *decoded
	return nil
}
