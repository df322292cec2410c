package pipeline

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"glucorisk/ml"
)

// ValidationRule 输入记录校验规则
type ValidationRule interface {
	Apply(ml.RawRecord) error
	Name() string
}

// QualityIssue 质量问题
type QualityIssue struct {
	Rule    string `json:"rule"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError 汇总一条记录的所有问题
type ValidationError struct {
	Issues []QualityIssue
}

func (e *ValidationError) Error() string {
	messages := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		messages[i] = issue.Message
	}
	return "invalid record: " + strings.Join(messages, "; ")
}

// ValidationStats 校验统计
type ValidationStats struct {
	TotalProcessed int64            `json:"total_processed"`
	Passed         int64            `json:"passed"`
	Rejected       int64            `json:"rejected"`
	Issues         map[string]int64 `json:"issues"`
	LastValidated  time.Time        `json:"last_validated"`
}

// RecordValidator 按领域范围校验原始记录。缺失值放行（由预处理插补），
// 缺失字段交给 ml.CheckSchema 处理。
type RecordValidator struct {
	rules []ValidationRule

	stats     ValidationStats
	statsLock sync.RWMutex
}

// NewRecordValidator 创建带默认规则的校验器
func NewRecordValidator() *RecordValidator {
	v := &RecordValidator{
		stats: ValidationStats{Issues: make(map[string]int64)},
	}
	v.AddRule(NewRangeRule(ml.FeatureAge, 1, 120, true))
	v.AddRule(NewRangeRule(ml.FeatureBMI, 10, 60, false))
	v.AddRule(NewRangeRule(ml.FeatureBloodPressure, 60, 200, true))
	v.AddRule(NewRangeRule(ml.FeatureGlucose, 60, 300, true))
	v.AddRule(NewChoiceRule(ml.FeaturePhysicalActivity, "Low", "Moderate", "High"))
	v.AddRule(NewChoiceRule(ml.FeatureDiet, "Balanced", "Low Carb", "High Sugar", "High Fat"))
	v.AddRule(NewChoiceRule(ml.FeatureFamilyHistory, "No", "Yes"))
	return v
}

// AddRule 添加校验规则
func (v *RecordValidator) AddRule(rule ValidationRule) {
	v.rules = append(v.rules, rule)
}

// Validate 应用所有规则，返回 *ValidationError 或 nil
func (v *RecordValidator) Validate(record ml.RawRecord) error {
	var issues []QualityIssue
	for _, rule := range v.rules {
		if err := rule.Apply(record); err != nil {
			issue := QualityIssue{Rule: rule.Name(), Message: err.Error()}
			if fe, ok := err.(*fieldError); ok {
				issue.Field = fe.field
			}
			issues = append(issues, issue)
		}
	}

	v.statsLock.Lock()
	v.stats.TotalProcessed++
	v.stats.LastValidated = time.Now()
	if len(issues) > 0 {
		v.stats.Rejected++
		for _, issue := range issues {
			v.stats.Issues[issue.Rule]++
		}
	} else {
		v.stats.Passed++
	}
	v.statsLock.Unlock()

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

// GetStats 获取统计信息
func (v *RecordValidator) GetStats() ValidationStats {
	v.statsLock.RLock()
	defer v.statsLock.RUnlock()

	stats := v.stats
	stats.Issues = make(map[string]int64, len(v.stats.Issues))
	for k, n := range v.stats.Issues {
		stats.Issues[k] = n
	}
	return stats
}

type fieldError struct {
	field   string
	message string
}

func (e *fieldError) Error() string {
	return e.message
}

// ============ 规则实现 ============

// RangeRule 数值范围规则（闭区间）
type RangeRule struct {
	Field   string
	Min     float64
	Max     float64
	Integer bool
}

func NewRangeRule(field string, min, max float64, integer bool) *RangeRule {
	return &RangeRule{Field: field, Min: min, Max: max, Integer: integer}
}

func (r *RangeRule) Name() string {
	return r.Field + "_range"
}

func (r *RangeRule) Apply(record ml.RawRecord) error {
	raw, present := record[r.Field]
	if !present {
		return nil
	}
	value, ok, err := ml.CoerceNumeric(r.Field, raw)
	if err != nil {
		return &fieldError{field: r.Field, message: err.Error()}
	}
	if !ok {
		return nil
	}
	if value < r.Min || value > r.Max {
		return &fieldError{field: r.Field, message: fmt.Sprintf("%s %v out of range [%v, %v]", r.Field, value, r.Min, r.Max)}
	}
	if r.Integer && value != math.Trunc(value) {
		return &fieldError{field: r.Field, message: fmt.Sprintf("%s %v must be a whole number", r.Field, value)}
	}
	return nil
}

// ChoiceRule 枚举取值规则
type ChoiceRule struct {
	Field   string
	Allowed []string
}

func NewChoiceRule(field string, allowed ...string) *ChoiceRule {
	return &ChoiceRule{Field: field, Allowed: allowed}
}

func (r *ChoiceRule) Name() string {
	return r.Field + "_choice"
}

func (r *ChoiceRule) Apply(record ml.RawRecord) error {
	raw, present := record[r.Field]
	if !present {
		return nil
	}
	value, ok := ml.CoerceCategorical(raw)
	if !ok {
		return nil
	}
	for _, allowed := range r.Allowed {
		if value == allowed {
			return nil
		}
	}
	return &fieldError{field: r.Field, message: fmt.Sprintf("%s %q is not one of %s", r.Field, value, strings.Join(r.Allowed, ", "))}
}
