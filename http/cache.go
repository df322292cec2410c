package http

import (
	"encoding/json"

	"glucorisk/ml"

	lru "github.com/hashicorp/golang-lru/v2"
)

// PredictionCache 以模型ID和规范化输入为键缓存预测结果。
// 键里带着模型ID，换模型后旧条目不会再命中。
type PredictionCache struct {
	entries *lru.Cache[string, ml.Prediction]
}

// NewPredictionCache size<=0 时返回 nil，表示不缓存
func NewPredictionCache(size int) (*PredictionCache, error) {
	if size <= 0 {
		return nil, nil
	}
	entries, err := lru.New[string, ml.Prediction](size)
	if err != nil {
		return nil, err
	}
	return &PredictionCache{entries: entries}, nil
}

func cacheKey(artifactID string, record ml.RawRecord) (string, bool) {
	// map 按键排序编码，结果稳定
	payload, err := json.Marshal(record)
	if err != nil {
		return "", false
	}
	return artifactID + "|" + string(payload), true
}

func (c *PredictionCache) Get(artifactID string, record ml.RawRecord) (ml.Prediction, bool) {
	if c == nil {
		return ml.Prediction{}, false
	}
	key, ok := cacheKey(artifactID, record)
	if !ok {
		return ml.Prediction{}, false
	}
	return c.entries.Get(key)
}

func (c *PredictionCache) Add(artifactID string, record ml.RawRecord, prediction ml.Prediction) {
	if c == nil {
		return
	}
	if key, ok := cacheKey(artifactID, record); ok {
		c.entries.Add(key, prediction)
	}
}

func (c *PredictionCache) Len() int {
	if c == nil {
		return 0
	}
	return c.entries.Len()
}

// Purge 模型替换后清空
func (c *PredictionCache) Purge() {
	if c == nil {
		return
	}
	c.entries.Purge()
}
