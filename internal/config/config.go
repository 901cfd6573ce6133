// Package config builds the immutable run configuration for thrushdeps.
//
// Defaults are embedded JSON. An optional YAML file, environment variables and
// CLI flags are layered on top, and the effective value is validated against
// an embedded JSON Schema before any component sees it.
package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"

	"github.com/thrushlang/thrushdeps/internal/model"
)

//go:embed defaults.json
var embeddedDefaultsJSON []byte

//go:embed schema.json
var embeddedSchemaJSON []byte

const schemaURL = "https://thrushlang.github.io/schemas/thrushdeps-config.json"

// Selection strategies.
const (
	StrategyDigitSum = "digitsum"
	StrategySemver   = "semver"
)

// Extractor kinds.
const (
	ExtractorNative = "native"
	ExtractorTar    = "tar"
)

type Index struct {
	URL      string `json:"url,omitempty" yaml:"url"`
	Tag      string `json:"tag,omitempty" yaml:"tag"`
	AssetURL string `json:"assetURL,omitempty" yaml:"assetURL"`
}

type Probe struct {
	Address        string `json:"address" yaml:"address"`
	TimeoutSeconds int    `json:"timeoutSeconds" yaml:"timeoutSeconds"`
	Disabled       bool   `json:"disabled,omitempty" yaml:"disabled"`
}

// Timeout returns the probe dial timeout.
func (p Probe) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

type Install struct {
	AppDir     string `json:"appDir" yaml:"appDir"`
	Subpath    string `json:"subpath" yaml:"subpath"`
	StagingDir string `json:"stagingDir" yaml:"stagingDir"`
}

// Platform describes how one target platform is provisioned.
type Platform struct {
	AssetToken      string `json:"assetToken" yaml:"assetToken"`
	RootEnv         string `json:"rootEnv" yaml:"rootEnv"`
	StripComponents int    `json:"stripComponents" yaml:"stripComponents"`
}

type Selection struct {
	Strategy string `json:"strategy" yaml:"strategy"`
}

// Config is the effective configuration of one run. It is built once by the
// CLI and passed by value; nothing mutates it afterwards.
type Config struct {
	Schema          string              `json:"schema" yaml:"schema"`
	Version         int                 `json:"version" yaml:"version"`
	Index           Index               `json:"index" yaml:"index"`
	Probe           Probe               `json:"probe" yaml:"probe"`
	Install         Install             `json:"install" yaml:"install"`
	Platforms       map[string]Platform `json:"platforms" yaml:"platforms"`
	Selection       Selection           `json:"selection" yaml:"selection"`
	Extractor       string              `json:"extractor" yaml:"extractor"`
	VerifyChecksums bool                `json:"verifyChecksums" yaml:"verifyChecksums"`

	// Token authenticates GitHub API requests. Never serialized.
	Token string `json:"-" yaml:"-"`
}

// Platform returns the settings for key. The bool is false when the
// configuration has no entry for it.
func (c Config) Platform(key model.PlatformKey) (Platform, bool) {
	p, ok := c.Platforms[string(key)]
	return p, ok
}

// FixedURL reports whether the index is bypassed in favor of a fixed asset URL.
func (c Config) FixedURL() bool {
	return strings.TrimSpace(c.Index.AssetURL) != ""
}

func (c Config) clone() Config {
	out := c
	out.Platforms = make(map[string]Platform, len(c.Platforms))
	for k, v := range c.Platforms {
		out.Platforms[k] = v
	}
	return out
}

var (
	defaultsOnce sync.Once
	defaults     Config
	defaultsErr  error
)

// Defaults returns a copy of the embedded default configuration.
func Defaults() (Config, error) {
	defaultsOnce.Do(func() {
		if len(embeddedDefaultsJSON) == 0 {
			defaultsErr = fmt.Errorf("%w: embedded defaults are empty", model.ErrInvalidConfig)
			return
		}
		var cfg Config
		if err := json.Unmarshal(embeddedDefaultsJSON, &cfg); err != nil {
			defaultsErr = fmt.Errorf("%w: parse embedded defaults: %w", model.ErrInvalidConfig, err)
			return
		}
		defaults = cfg
	})
	if defaultsErr != nil {
		return Config{}, defaultsErr
	}
	return defaults.clone(), nil
}

// LoadFile layers the YAML document at path over base. Keys absent from the
// file keep their base value; a platform entry present in the file replaces
// the whole base entry.
func LoadFile(base Config, path string) (Config, error) {
	// #nosec G304 -- path is supplied by the user on purpose
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: read %s: %w", model.ErrInvalidConfig, path, err)
	}
	cfg := base.clone()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: parse %s: %w", model.ErrInvalidConfig, path, err)
	}
	return cfg, nil
}

// ApplyEnv layers THRUSHDEPS_* variables and the GitHub token over cfg.
func ApplyEnv(cfg Config, getenv func(string) string) Config {
	out := cfg.clone()
	if v := strings.TrimSpace(getenv("THRUSHDEPS_INDEX_URL")); v != "" {
		out.Index.URL = v
	}
	if v := strings.TrimSpace(getenv("THRUSHDEPS_ASSET_URL")); v != "" {
		out.Index.AssetURL = v
	}
	if v := strings.TrimSpace(getenv("THRUSHDEPS_STAGING_DIR")); v != "" {
		out.Install.StagingDir = v
	}
	if tok := strings.TrimSpace(getenv("THRUSHDEPS_GITHUB_TOKEN")); tok != "" {
		out.Token = tok
	} else if tok := strings.TrimSpace(getenv("GITHUB_TOKEN")); tok != "" {
		out.Token = tok
	}
	return out
}

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(embeddedSchemaJSON))
		if err != nil {
			schemaErr = fmt.Errorf("parse embedded config schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(schemaURL, doc); err != nil {
			schemaErr = fmt.Errorf("add config schema: %w", err)
			return
		}
		schema, schemaErr = c.Compile(schemaURL)
	})
	return schema, schemaErr
}

// Validate checks cfg against the embedded schema and the cross-field rules
// the schema cannot express.
func Validate(cfg Config) error {
	sch, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("%w: %w", model.ErrInvalidConfig, err)
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("%w: encode: %w", model.ErrInvalidConfig, err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("%w: decode: %w", model.ErrInvalidConfig, err)
	}
	if err := sch.Validate(inst); err != nil {
		return fmt.Errorf("%w: %w", model.ErrInvalidConfig, err)
	}

	var problems []string
	if cfg.FixedURL() {
		if !isHTTPURL(cfg.Index.AssetURL) {
			problems = append(problems, fmt.Sprintf("index.assetURL: must be http(s) (got %q)", cfg.Index.AssetURL))
		}
	} else {
		if !isHTTPURL(cfg.Index.URL) {
			problems = append(problems, fmt.Sprintf("index.url: must be http(s) (got %q)", cfg.Index.URL))
		}
		if strings.TrimSpace(cfg.Index.Tag) == "" {
			problems = append(problems, "index.tag: missing")
		}
	}
	if strings.ContainsAny(cfg.Install.AppDir, `/\`) {
		problems = append(problems, fmt.Sprintf("install.appDir: must be a single path element (got %q)", cfg.Install.AppDir))
	}
	for _, key := range model.Platforms {
		p, ok := cfg.Platform(key)
		if !ok {
			continue
		}
		if strings.TrimSpace(p.AssetToken) != p.AssetToken {
			problems = append(problems, fmt.Sprintf("platforms.%s.assetToken: surrounding whitespace", key))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w:\n- %s", model.ErrInvalidConfig, strings.Join(problems, "\n- "))
	}
	return nil
}

func isHTTPURL(value string) bool {
	lower := strings.ToLower(strings.TrimSpace(value))
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
