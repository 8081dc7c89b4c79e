// Package pipeline loads pipeline definitions from YAML and turns them into
// schedulable jobs.
package pipeline

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the top level of a pipelines file.
type Config struct {
	Sources   map[string]*Source `yaml:"sources"   validate:"required,dive,required"`
	Targets   map[string]*Target `yaml:"targets"   validate:"omitempty,dive,required"`
	Pipelines []*Pipeline        `yaml:"pipelines" validate:"required,min=1,dive,required"`
}

type KeyValue struct {
	Key   string `yaml:"key"   validate:"required"`
	Value string `yaml:"value"`
}

// Source is an HTTP endpoint records are fetched from.
type Source struct {
	URL         string        `yaml:"url"          validate:"required,url"`
	Method      string        `yaml:"method"       validate:"omitempty,oneof=GET POST"`
	Headers     []KeyValue    `yaml:"headers"      validate:"dive"`
	QueryParams []KeyValue    `yaml:"query_params" validate:"dive"`
	Body        string        `yaml:"body"`
	DataPath    string        `yaml:"data_path"`
	Timeout     time.Duration `yaml:"timeout"      validate:"gte=0"`
}

// Target is a database records are appended to.
type Target struct {
	Type string `yaml:"type" validate:"required,oneof=postgres"`
	URL  string `yaml:"url"  validate:"required"`
}

type Pipeline struct {
	ID       string      `yaml:"id"       validate:"required"`
	Schedule string      `yaml:"schedule" validate:"required"`
	Source   string      `yaml:"source"   validate:"required"`
	Target   string      `yaml:"target"`
	Table    string      `yaml:"table"    validate:"required_with=Target"`
	Retry    RetryConfig `yaml:"retry"`
}

// RetryConfig overrides the scheduler's default retry policy field by field.
// A zero field keeps the default, so a pipeline cannot turn jitter off or set
// a zero min_delay when the default has them on or non-zero.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" validate:"gte=0"`
	MinDelay    time.Duration `yaml:"min_delay"    validate:"gte=0"`
	MaxDelay    time.Duration `yaml:"max_delay"    validate:"gte=0"`
	Jitter      bool          `yaml:"jitter"`
}

func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading pipelines file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a pipelines document, expands ${VAR} references from the
// environment and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing pipelines YAML: %w", err)
	}
	if err := cfg.expandEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid pipelines: %w", err)
	}

	var errs []error
	for _, p := range c.Pipelines {
		if _, ok := c.Sources[p.Source]; !ok {
			errs = append(errs, fmt.Errorf("pipeline %s: unknown source %q", p.ID, p.Source))
		}
		if p.Target != "" {
			if _, ok := c.Targets[p.Target]; !ok {
				errs = append(errs, fmt.Errorf("pipeline %s: unknown target %q", p.ID, p.Target))
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid pipelines: %w", errors.Join(errs...))
	}
	return nil
}

// expandEnv substitutes ${VAR} in source urls, header and query values,
// request bodies and target urls. An unset variable is an error.
func (c *Config) expandEnv() error {
	var missing []string
	expand := func(s string) string {
		return os.Expand(s, func(name string) string {
			v, ok := os.LookupEnv(name)
			if !ok {
				missing = append(missing, name)
			}
			return v
		})
	}

	for _, src := range c.Sources {
		if src == nil {
			continue
		}
		src.URL = expand(src.URL)
		src.Body = expand(src.Body)
		for i := range src.Headers {
			src.Headers[i].Value = expand(src.Headers[i].Value)
		}
		for i := range src.QueryParams {
			src.QueryParams[i].Value = expand(src.QueryParams[i].Value)
		}
	}
	for _, tgt := range c.Targets {
		if tgt == nil {
			continue
		}
		tgt.URL = expand(tgt.URL)
	}

	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("pipelines reference unset environment variables: %s", strings.Join(dedupe(missing), ", "))
	}
	return nil
}

func dedupe(sorted []string) []string {
	out := sorted[:0]
	for i, s := range sorted {
		if i == 0 || s != sorted[i-1] {
			out = append(out, s)
		}
	}
	return out
}
