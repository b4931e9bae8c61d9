// Package config holds the run configuration handed to a preprocessing
// context: predefinitions, warning selection and the numeric limits.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rubiojr/rpp/diag"
	"github.com/rubiojr/rpp/scanner"
)

const (
	DefaultMaxDepth        = 64
	DefaultMaxParams       = 127
	DefaultMaxMacros       = 4096
	DefaultMaxIncludeDepth = 32

	// HardMaxParams bounds MaxParams regardless of configuration.
	HardMaxParams = 256
)

// Config is the opaque configuration object of a run. The zero value is
// not usable; start from Default.
type Config struct {
	// Defines are applied in order at context creation. Each entry is
	// NAME, NAME=VALUE or F(x,y)=BODY.
	Defines []string `yaml:"defines"`
	// Undefines are applied after Defines and may remove predefined macros.
	Undefines []string `yaml:"undefines"`
	// IncludeDirs are searched after the including file's directory.
	IncludeDirs []string `yaml:"include_dirs"`
	// WarningNames feed diag.ParseWarnings when loading from YAML.
	WarningNames []string       `yaml:"warnings"`
	Warnings     diag.WarnClass `yaml:"-"`

	Strict          bool `yaml:"strict"`
	MaxDepth        int  `yaml:"max_depth"`
	MaxParams       int  `yaml:"max_params"`
	// MaxMacros is the table size that triggers a limits warning; 0 turns
	// the warning off.
	MaxMacros       int  `yaml:"max_macros"`
	MaxIncludeDepth int  `yaml:"max_include_depth"`

	// VendorDirectives are accepted and ignored instead of being reported
	// as unknown.
	VendorDirectives []string `yaml:"vendor_directives"`
	// LineMarkers makes the driver emit #line markers after a block of
	// skipped lines.
	LineMarkers bool `yaml:"line_markers"`
}

// Default returns the configuration used when nothing is specified.
func Default() *Config {
	return &Config{
		Warnings:         diag.WarnDefault,
		MaxDepth:         DefaultMaxDepth,
		MaxParams:        DefaultMaxParams,
		MaxMacros:        DefaultMaxMacros,
		MaxIncludeDepth:  DefaultMaxIncludeDepth,
		VendorDirectives: []string{"version", "extension"},
	}
}

// Load reads a YAML file over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML configuration over the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if len(cfg.WarningNames) > 0 {
		mask, err := diag.ParseWarnings(cfg.WarningNames)
		if err != nil {
			return nil, err
		}
		cfg.Warnings = mask
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks limits and predefinition syntax.
func (c *Config) Validate() error {
	if c.MaxDepth <= 0 {
		return fmt.Errorf("max_depth must be positive, got %d", c.MaxDepth)
	}
	if c.MaxParams <= 0 || c.MaxParams > HardMaxParams {
		return fmt.Errorf("max_params must be in 1..%d, got %d", HardMaxParams, c.MaxParams)
	}
	if c.MaxMacros < 0 {
		return fmt.Errorf("max_macros must not be negative, got %d", c.MaxMacros)
	}
	if c.MaxIncludeDepth <= 0 {
		return fmt.Errorf("max_include_depth must be positive, got %d", c.MaxIncludeDepth)
	}
	for _, d := range c.Defines {
		if _, _, err := ParseDefine(d); err != nil {
			return err
		}
	}
	for _, u := range c.Undefines {
		if !isIdent(u) {
			return fmt.Errorf("invalid undefine %q", u)
		}
	}
	return nil
}

// IsVendorDirective reports whether name is configured as a vendor directive.
func (c *Config) IsVendorDirective(name string) bool {
	for _, v := range c.VendorDirectives {
		if v == name {
			return true
		}
	}
	return false
}

// ParseDefine splits a -D style entry into the macro head (name plus any
// parameter list) and its body. A bare NAME defines NAME as 1.
func ParseDefine(s string) (head, body string, err error) {
	head, body, found := strings.Cut(s, "=")
	if !found {
		body = "1"
	}
	name := head
	if i := strings.IndexByte(head, '('); i >= 0 {
		name = head[:i]
		if !strings.HasSuffix(head, ")") {
			return "", "", fmt.Errorf("invalid define %q: unterminated parameter list", s)
		}
	}
	if !isIdent(name) {
		return "", "", fmt.Errorf("invalid define %q: macro names must be identifiers", s)
	}
	return head, body, nil
}

func isIdent(s string) bool {
	if s == "" || !scanner.IsIdentStart(s[0]) {
		return false
	}
	for i := 1; i < len(s); i++ {
		if !scanner.IsIdentPart(s[i]) {
			return false
		}
	}
	return true
}
