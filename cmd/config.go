package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	qhttp "glucorisk/http"
	"glucorisk/logging"
	"glucorisk/ml"

	"gopkg.in/yaml.v2"
)

type Config struct {
	HTTP     qhttp.ServerConfig `yaml:"http"`
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Log   logging.Config `yaml:"log"`
	Model struct {
		Path string `yaml:"path"`
	} `yaml:"model"`
	Dataset struct {
		Path string `yaml:"path"`
	} `yaml:"dataset"`
	Training struct {
		Seed      int64         `yaml:"seed"`
		TestRatio float64       `yaml:"test_ratio"`
		Trees     int           `yaml:"trees"`
		Timeout   time.Duration `yaml:"timeout"`
	} `yaml:"training"`
	Cache struct {
		Size int `yaml:"size"`
	} `yaml:"cache"`
}

func defaultConfig() *Config {
	config := &Config{HTTP: qhttp.DefaultServerConfig()}
	config.Database.Path = "data/glucorisk.db"
	config.Log.Level = "info"
	config.Model.Path = ml.DefaultModelPath
	config.Dataset.Path = "data/diabetes.csv"
	config.Training.Seed = ml.DefaultSeed
	config.Training.TestRatio = ml.DefaultTestRatio
	config.Training.Trees = ml.DefaultRandomForestConfig().Trees
	config.Training.Timeout = qhttp.DefaultTrainTimeout
	config.Cache.Size = 1024
	return config
}

// loadConfig 在默认值之上叠加配置文件
func loadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	config := defaultConfig()
	if err := yaml.NewDecoder(file).Decode(config); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return config, nil
}

func (c *Config) validate() error {
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port %d out of range", c.HTTP.Port)
	}
	if c.Training.TestRatio <= 0 || c.Training.TestRatio >= 1 {
		return fmt.Errorf("training.test_ratio must be in (0, 1), got %v", c.Training.TestRatio)
	}
	if c.Training.Timeout <= 0 {
		return fmt.Errorf("training.timeout must be positive, got %v", c.Training.Timeout)
	}
	if c.Training.Trees <= 0 {
		return fmt.Errorf("training.trees must be positive, got %d", c.Training.Trees)
	}
	if c.Model.Path == "" {
		return fmt.Errorf("model.path is required")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// resolvePaths 让相对路径相对于配置文件所在目录
func (c *Config) resolvePaths(configPath string) {
	base := filepath.Dir(configPath)
	for _, p := range []*string{&c.Database.Path, &c.Model.Path, &c.Dataset.Path, &c.Log.File} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(base, *p)
		}
	}
}
