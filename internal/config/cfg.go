package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	validator "github.com/go-playground/validator/v10"
	"github.com/rupor-github/gencfg"
	"go.uber.org/zap"
	yaml "gopkg.in/yaml.v3"

	"github.com/njchilds90/mdsafe"
)

//go:embed config.yaml
var defaultConfig []byte

type (
	RenderConfig struct {
		HighlightStyle   string   `yaml:"highlight_style"`
		FontHosts        []string `yaml:"font_hosts" validate:"dive,hostname_rfc1123"`
		LinkifyFragments bool     `yaml:"linkify_fragments"`
		MaxDepth         int      `yaml:"max_depth" validate:"min=0"`
	}

	PageConfig struct {
		StyleID string `yaml:"style_id" validate:"required,excludesall= "`
		FontKey string `yaml:"font_key" validate:"required,excludesall= "`
	}

	Config struct {
		Version int           `yaml:"version" validate:"eq=1"`
		Render  RenderConfig  `yaml:"render"`
		Page    PageConfig    `yaml:"page"`
		Logging LoggingConfig `yaml:"logging"`
	}
)

func unmarshalConfig(data []byte, cfg *Config, process bool) (*Config, error) {
	// only fields we defined are accepted, so no yaml.Unmarshal here
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode configuration data: %w", err)
	}
	if process {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// LoadConfiguration reads the configuration file at path on top of the
// embedded defaults and validates the result. An empty path gives the
// defaults.
func LoadConfiguration(path string) (*Config, error) {
	haveFile := len(path) > 0

	cfg, err := unmarshalConfig(defaultConfig, &Config{}, !haveFile)
	if err != nil {
		return nil, fmt.Errorf("failed to process default configuration: %w", err)
	}
	if !haveFile {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if cfg, err = unmarshalConfig(data, cfg, haveFile); err != nil {
		return nil, fmt.Errorf("failed to process configuration file: %w", err)
	}
	return cfg, nil
}

// Validate checks the validate tags of the whole configuration and the
// rules spanning several fields. All failures are reported at once.
func (cfg *Config) Validate() error {
	return gencfg.Validate(cfg, gencfg.WithAdditionalChecks(crossFieldChecks))
}

// crossFieldChecks holds rules a tag cannot express: the file logger shares
// LoggerConfig with the console logger, but only it needs a destination.
func crossFieldChecks(sl validator.StructLevel) {
	cfg := sl.Current().Interface().(Config)
	if file := cfg.Logging.FileLogger; file.Level != "none" && file.Destination == "" {
		sl.ReportError(file.Destination, "Logging.FileLogger.Destination", "Destination", "required_for_level", file.Level)
	}
}

// RendererOptions translates the render section into mdsafe options.
func (cfg *Config) RendererOptions(log *zap.Logger) []mdsafe.Option {
	return []mdsafe.Option{
		mdsafe.WithLogger(log),
		mdsafe.WithHighlightStyle(cfg.Render.HighlightStyle),
		mdsafe.WithFontHosts(cfg.Render.FontHosts...),
		mdsafe.WithFragmentLinkify(cfg.Render.LinkifyFragments),
		mdsafe.WithMaxDepth(cfg.Render.MaxDepth),
	}
}

// Prepare returns the embedded default configuration.
func Prepare() []byte {
	return slices.Clone(defaultConfig)
}

func Dump(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(*cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config to yaml: %w", err)
	}
	return data, nil
}
