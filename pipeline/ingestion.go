package pipeline

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"glucorisk/ml"

	"go.uber.org/zap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// CSVSource 从CSV文件加载训练数据集
type CSVSource struct {
	path      string
	logger    *zap.Logger
	validator *RecordValidator
}

// NewCSVSource 创建CSV数据源
func NewCSVSource(path string, logger *zap.Logger) *CSVSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CSVSource{path: path, logger: logger, validator: NewRecordValidator()}
}

// Load 读取并解析数据集，任何失败都归类为 ErrDataLoad
func (s *CSVSource) Load(ctx context.Context) (ml.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return ml.Dataset{}, fmt.Errorf("%w: %w", ml.ErrDataLoad, err)
	}
	file, err := os.Open(s.path)
	if err != nil {
		return ml.Dataset{}, fmt.Errorf("%w: open %s: %w", ml.ErrDataLoad, s.path, err)
	}
	defer file.Close()

	dataset, err := ReadDataset(file)
	if err != nil {
		return ml.Dataset{}, fmt.Errorf("%s: %w", s.path, err)
	}

	// 范围外的行仍参与训练，这里只记录数据质量
	outOfRange := 0
	for _, record := range dataset.Records {
		if err := s.validator.Validate(record); err != nil {
			outOfRange++
		}
	}
	positives := 0
	for _, label := range dataset.Labels {
		positives += label
	}
	s.logger.Info("dataset loaded",
		zap.String("path", s.path),
		zap.Int("rows", len(dataset.Records)),
		zap.Int("positives", positives),
		zap.Int("out_of_range_rows", outOfRange),
	)
	return dataset, nil
}

// ReadDataset 解析带表头的CSV：七个特征列加上 diabetes 目标列
func ReadDataset(r io.Reader) (ml.Dataset, error) {
	decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	reader := csv.NewReader(decoded)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return ml.Dataset{}, fmt.Errorf("%w: dataset is empty", ml.ErrDataLoad)
		}
		return ml.Dataset{}, fmt.Errorf("%w: read header: %w", ml.ErrDataLoad, err)
	}
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.TrimSpace(name)] = i
	}
	required := append(ml.FeatureNames(), ml.TargetColumn)
	for _, name := range required {
		if _, ok := columns[name]; !ok {
			return ml.Dataset{}, fmt.Errorf("%w: missing column %q", ml.ErrDataLoad, name)
		}
	}

	numeric := make(map[string]bool, len(ml.NumericFeatures()))
	for _, name := range ml.NumericFeatures() {
		numeric[name] = true
	}

	var dataset ml.Dataset
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return ml.Dataset{}, fmt.Errorf("%w: %w", ml.ErrDataLoad, err)
		}
		line, _ := reader.FieldPos(0)

		record := make(ml.RawRecord, len(ml.FeatureNames()))
		for _, name := range ml.FeatureNames() {
			cell := strings.TrimSpace(row[columns[name]])
			if cell == "" {
				record[name] = nil
				continue
			}
			if !numeric[name] {
				record[name] = cell
				continue
			}
			value, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return ml.Dataset{}, fmt.Errorf("%w: line %d: column %s: %q is not a number", ml.ErrDataLoad, line, name, cell)
			}
			record[name] = value
		}

		label, err := parseLabel(row[columns[ml.TargetColumn]])
		if err != nil {
			return ml.Dataset{}, fmt.Errorf("%w: line %d: %w", ml.ErrDataLoad, line, err)
		}
		dataset.Records = append(dataset.Records, record)
		dataset.Labels = append(dataset.Labels, label)
	}

	if len(dataset.Records) == 0 {
		return ml.Dataset{}, fmt.Errorf("%w: dataset has no rows", ml.ErrDataLoad)
	}
	return dataset, nil
}

func parseLabel(cell string) (int, error) {
	switch strings.ToLower(strings.TrimSpace(cell)) {
	case "1", "1.0", "true", "yes":
		return 1, nil
	case "0", "0.0", "false", "no":
		return 0, nil
	}
	return 0, fmt.Errorf("target %q is not binary", cell)
}
