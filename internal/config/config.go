package config

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/viper"
)

type Config struct {
	DataDir           string `mapstructure:"data_dir"`
	PrescriptionsFile string `mapstructure:"prescriptions_file"`
	InputEventsCVFile string `mapstructure:"inputevents_cv_file"`
	InputEventsMVFile string `mapstructure:"inputevents_mv_file"`
	AdmissionsFile    string `mapstructure:"admissions_file"`
	CheckpointDir     string `mapstructure:"checkpoint_dir"`
	VocabularyFile    string `mapstructure:"vocabulary_file"`
	InputEncoding     string `mapstructure:"input_encoding"`
	TimeLayout        string `mapstructure:"time_layout"`
	TTestMode         string `mapstructure:"ttest_mode"`
	YatesCorrection   bool   `mapstructure:"yates_correction"`
	SkipUntimed       bool   `mapstructure:"skip_untimed"`
	PlotFile          string `mapstructure:"plot_file"`
	MetricsFile       string `mapstructure:"metrics_file"`
	DatabaseURL       string `mapstructure:"database_url"`
	LogLevel          string `mapstructure:"log_level"`
	LogFormat         string `mapstructure:"log_format"`
}

var keys = []string{
	"data_dir",
	"prescriptions_file",
	"inputevents_cv_file",
	"inputevents_mv_file",
	"admissions_file",
	"checkpoint_dir",
	"vocabulary_file",
	"input_encoding",
	"time_layout",
	"ttest_mode",
	"yates_correction",
	"skip_untimed",
	"plot_file",
	"metrics_file",
	"database_url",
	"log_level",
	"log_format",
}

// Load reads configuration from defaults, an optional YAML file at path,
// and ANTICOAG_* environment variables, in increasing precedence.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("anticoag")

	v.SetDefault("data_dir", "data")
	v.SetDefault("prescriptions_file", "patients_anticoag_prescriptions.csv")
	v.SetDefault("inputevents_cv_file", "patients_anticoag_inputeventscv.csv")
	v.SetDefault("inputevents_mv_file", "patients_anticoag_inputeventsmv.csv")
	v.SetDefault("admissions_file", "patients_anticoag.csv")
	v.SetDefault("checkpoint_dir", "data/checkpoints")
	v.SetDefault("vocabulary_file", "") // built-in list
	v.SetDefault("input_encoding", "utf-8")
	v.SetDefault("time_layout", "2006-01-02 15:04:05")
	v.SetDefault("ttest_mode", "student")
	v.SetDefault("yates_correction", true)
	v.SetDefault("skip_untimed", false)
	v.SetDefault("plot_file", "data/delay_by_status.png")
	v.SetDefault("metrics_file", "")
	v.SetDefault("database_url", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")

	for _, k := range keys {
		if err := v.BindEnv(k); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", k, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// Validate rejects unknown enum values and missing paths.
func (c *Config) Validate() error {
	required := map[string]string{
		"prescriptions_file":  c.PrescriptionsFile,
		"inputevents_cv_file": c.InputEventsCVFile,
		"inputevents_mv_file": c.InputEventsMVFile,
		"admissions_file":     c.AdmissionsFile,
		"checkpoint_dir":      c.CheckpointDir,
		"time_layout":         c.TimeLayout,
	}
	for _, k := range keys {
		if v, ok := required[k]; ok && v == "" {
			return fmt.Errorf("%s is required", k)
		}
	}

	switch c.InputEncoding {
	case "utf-8", "windows-1252":
	default:
		return fmt.Errorf("input_encoding must be \"utf-8\" or \"windows-1252\", got %q", c.InputEncoding)
	}
	switch c.TTestMode {
	case "student", "welch":
	default:
		return fmt.Errorf("ttest_mode must be \"student\" or \"welch\", got %q", c.TTestMode)
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("log_format must be \"json\" or \"console\", got %q", c.LogFormat)
	}
	switch c.LogLevel {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level %q is not one of trace, debug, info, warn, error", c.LogLevel)
	}
	return nil
}

// DataPath resolves a source file name against DataDir. Absolute names
// are returned unchanged.
func (c *Config) DataPath(name string) string {
	if filepath.IsAbs(name) || c.DataDir == "" {
		return name
	}
	return filepath.Join(c.DataDir, name)
}
