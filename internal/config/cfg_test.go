package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	validator "github.com/go-playground/validator/v10"

	"github.com/njchilds90/mdsafe"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestLoadConfiguration_NoFile(t *testing.T) {
	cfg, err := LoadConfiguration("")
	if err != nil {
		t.Fatalf("LoadConfiguration() with empty path error = %v", err)
	}

	if cfg.Version != 1 {
		t.Errorf("Default config version = %d, want 1", cfg.Version)
	}
	if cfg.Render.HighlightStyle != mdsafe.DefaultHighlightStyle {
		t.Errorf("HighlightStyle = %q, want %q", cfg.Render.HighlightStyle, mdsafe.DefaultHighlightStyle)
	}
	if cfg.Page.StyleID != mdsafe.FormStyleID {
		t.Errorf("StyleID = %q, want %q", cfg.Page.StyleID, mdsafe.FormStyleID)
	}
	if cfg.Logging.ConsoleLogger.Level != "normal" || cfg.Logging.FileLogger.Level != "none" {
		t.Errorf("unexpected logging defaults: %+v", cfg.Logging)
	}
}

func TestLoadConfiguration_WithFile(t *testing.T) {
	path := writeConfig(t, `version: 1
render:
  font_hosts: ["fonts.googleapis.com", "fonts.gstatic.com"]
  max_depth: 12
page:
  font_key: landing
logging:
  console:
    level: debug
`)

	cfg, err := LoadConfiguration(path)
	if err != nil {
		t.Fatalf("LoadConfiguration() error = %v", err)
	}

	if want := []string{"fonts.googleapis.com", "fonts.gstatic.com"}; !reflect.DeepEqual(cfg.Render.FontHosts, want) {
		t.Errorf("FontHosts = %v, want %v", cfg.Render.FontHosts, want)
	}
	if cfg.Render.MaxDepth != 12 {
		t.Errorf("MaxDepth = %d, want 12", cfg.Render.MaxDepth)
	}
	if cfg.Page.FontKey != "landing" {
		t.Errorf("FontKey = %q, want landing", cfg.Page.FontKey)
	}
	// values missing from the file keep their defaults
	if cfg.Page.StyleID != mdsafe.FormStyleID {
		t.Errorf("StyleID = %q, want default", cfg.Page.StyleID)
	}
	if cfg.Render.HighlightStyle != mdsafe.DefaultHighlightStyle {
		t.Errorf("HighlightStyle = %q, want default", cfg.Render.HighlightStyle)
	}
	if cfg.Logging.ConsoleLogger.Level != "debug" {
		t.Errorf("console level = %q, want debug", cfg.Logging.ConsoleLogger.Level)
	}
}

func TestLoadConfiguration_EmptyFile(t *testing.T) {
	cfg, err := LoadConfiguration(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("LoadConfiguration() error = %v", err)
	}
	if cfg.Version != 1 {
		t.Errorf("Version = %d, want 1", cfg.Version)
	}
}

func TestLoadConfiguration_UnknownField(t *testing.T) {
	_, err := LoadConfiguration(writeConfig(t, "version: 1\nrender:\n  sanitize_harder: true\n"))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
	if !strings.Contains(err.Error(), "sanitize_harder") {
		t.Errorf("error does not name the field: %v", err)
	}
}

func TestLoadConfiguration_MissingFile(t *testing.T) {
	if _, err := LoadConfiguration(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		ns     string
		tag    string
	}{
		{"version", func(c *Config) { c.Version = 2 }, "Config.Version", "eq"},
		{"max depth", func(c *Config) { c.Render.MaxDepth = -1 }, "Config.Render.MaxDepth", "min"},
		{"font host url", func(c *Config) { c.Render.FontHosts = []string{"https://fonts.example"} }, "Config.Render.FontHosts[0]", "hostname_rfc1123"},
		{"font host empty", func(c *Config) { c.Render.FontHosts = []string{"fonts.example", " "} }, "Config.Render.FontHosts[1]", "hostname_rfc1123"},
		{"style id", func(c *Config) { c.Page.StyleID = "" }, "Config.Page.StyleID", "required"},
		{"font key", func(c *Config) { c.Page.FontKey = "my fonts" }, "Config.Page.FontKey", "excludesall"},
		{"console level", func(c *Config) { c.Logging.ConsoleLogger.Level = "loud" }, "Config.Logging.ConsoleLogger.Level", "oneof"},
		{"file mode", func(c *Config) { c.Logging.FileLogger.Mode = "rotate" }, "Config.Logging.FileLogger.Mode", "oneof"},
		{"file destination", func(c *Config) { c.Logging.FileLogger.Level = "debug" }, "Config.Logging.FileLogger.Destination", "required_for_level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadConfiguration("")
			if err != nil {
				t.Fatal(err)
			}
			tt.modify(cfg)
			err = cfg.Validate()

			var verrs validator.ValidationErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("expected validation errors, got %v", err)
			}
			if len(verrs) != 1 || verrs[0].Namespace() != tt.ns || verrs[0].Tag() != tt.tag {
				t.Errorf("got %v, want %s failing on %s", err, tt.ns, tt.tag)
			}
		})
	}
}

func TestValidate_Accepts(t *testing.T) {
	cfg, err := LoadConfiguration("")
	if err != nil {
		t.Fatal(err)
	}
	cfg.Render.FontHosts = []string{"Fonts.GoogleAPIs.com", "fonts.gstatic.com"}
	cfg.Logging.FileLogger = LoggerConfig{Level: "normal", Destination: filepath.Join(t.TempDir(), "mdsafe.log"), Mode: "overwrite"}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestValidate_ReportsAll(t *testing.T) {
	cfg, err := LoadConfiguration("")
	if err != nil {
		t.Fatal(err)
	}
	cfg.Version = 0
	cfg.Page.StyleID = ""
	cfg.Logging.FileLogger.Level = "debug"
	err = cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, field := range []string{"Version", "StyleID", "Destination"} {
		if !strings.Contains(err.Error(), "."+field+"'") {
			t.Errorf("%s not reported in %v", field, err)
		}
	}
}

func TestLoadConfiguration_InvalidFile(t *testing.T) {
	_, err := LoadConfiguration(writeConfig(t, "render:\n  max_depth: -3\nlogging:\n  file:\n    mode: rotate\n"))
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) != 2 {
		t.Fatalf("expected two validation errors, got %v", err)
	}
}

func TestRendererOptions(t *testing.T) {
	cfg, err := LoadConfiguration("")
	if err != nil {
		t.Fatal(err)
	}
	cfg.Render.FontHosts = []string{"fonts.googleapis.com"}

	r := mdsafe.New(cfg.RendererOptions(nil)...)
	res := r.RenderMarkdown("<style>@import url(https://evil.example/a.css); @import url(https://fonts.googleapis.com/b.css);</style>")
	if want := []string{"https://fonts.googleapis.com/b.css"}; !reflect.DeepEqual(res.FontHrefs, want) {
		t.Errorf("FontHrefs = %v, want %v", res.FontHrefs, want)
	}
}

func TestPrepare(t *testing.T) {
	data := Prepare()
	if !bytes.Equal(data, defaultConfig) {
		t.Fatal("Prepare() should return embedded defaults")
	}
	data[0] = '#'
	if bytes.Equal(Prepare(), data) {
		t.Error("Prepare() should return a copy")
	}
}

func TestDump_RoundTrip(t *testing.T) {
	cfg, err := LoadConfiguration("")
	if err != nil {
		t.Fatal(err)
	}
	cfg.Page.FontKey = "dumped"

	data, err := Dump(cfg)
	if err != nil {
		t.Fatalf("Dump() error = %v", err)
	}
	if !strings.Contains(string(data), "font_key: dumped") {
		t.Errorf("unexpected dump:\n%s", data)
	}

	loaded, err := LoadConfiguration(writeConfig(t, string(data)))
	if err != nil {
		t.Fatalf("dumped configuration does not load: %v", err)
	}
	if !reflect.DeepEqual(loaded, cfg) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", loaded, cfg)
	}
}
