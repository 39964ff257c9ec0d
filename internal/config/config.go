// Package config loads the release configuration file.
//
// The file is YAML and decoded strictly: unknown keys, trailing documents and
// missing required fields are configuration errors. Secrets never appear in
// the file; it names the environment variables that hold them.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"releaseweaver/internal/release"
)

// DefaultPath is the file loaded when no path is given.
const DefaultPath = "releaseweaver.yaml"

const op = "config"

type Config struct {
	Project  Project  `yaml:"project"`
	Access   Access   `yaml:"access"`
	Build    Build    `yaml:"build"`
	Registry Registry `yaml:"registry"`
	Release  Release  `yaml:"release"`
	Notify   Notify   `yaml:"notify"`
	Hooks    []Hook   `yaml:"hooks,omitempty"`
}

type Project struct {
	// Name is used in release titles and announcements.
	Name string `yaml:"name"`
	// Repository is the owner/name the release host publishes to.
	Repository string `yaml:"repository"`
}

// Access configures the run guard.
type Access struct {
	Owner      string `yaml:"owner"`
	Repository string `yaml:"repository,omitempty"`
}

type Build struct {
	// Workdir is resolved against the directory holding the config file.
	Workdir        string            `yaml:"workdir,omitempty"`
	Env            map[string]string `yaml:"env,omitempty"`
	Recipes        map[string]Recipe `yaml:"recipes"`
	PackageFormats []string          `yaml:"package_formats"`
	ReleaseFormats []string          `yaml:"release_formats"`
}

type Recipe struct {
	Run     string            `yaml:"run"`
	Env     map[string]string `yaml:"env,omitempty"`
	Outputs []string          `yaml:"outputs"`
}

type Registry struct {
	Bucket      string `yaml:"bucket"`
	Prefix      string `yaml:"prefix,omitempty"`
	Region      string `yaml:"region,omitempty"`
	Endpoint    string `yaml:"endpoint,omitempty"`
	PathStyle   bool   `yaml:"path_style,omitempty"`
	PublicURL   string `yaml:"public_url,omitempty"`
	UsernameEnv string `yaml:"username_env,omitempty"`
	TokenEnv    string `yaml:"token_env,omitempty"`
}

type Release struct {
	APIURL    string `yaml:"api_url,omitempty"`
	TokenEnv  string `yaml:"token_env,omitempty"`
	Changelog string `yaml:"changelog,omitempty"`
}

type Notify struct {
	WebhookURLEnv string `yaml:"webhook_url_env,omitempty"`
}

// Hook is an extra shell job scheduled alongside the release jobs.
type Hook struct {
	Name  string            `yaml:"name"`
	Needs []string          `yaml:"needs,omitempty"`
	Run   string            `yaml:"run"`
	Env   map[string]string `yaml:"env,omitempty"`
}

// Load reads, decodes and validates the file at path.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, release.ConfigurationError(op, fmt.Errorf("read %s: %w", path, err))
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, release.ConfigurationError(op, err)
	}
	if !filepath.IsAbs(cfg.Build.Workdir) {
		cfg.Build.Workdir = filepath.Clean(filepath.Join(filepath.Dir(abs), cfg.Build.Workdir))
	}
	return cfg, nil
}

// Parse decodes and validates a config document.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, release.ConfigurationError(op, errors.New("empty config"))
		}
		return nil, release.ConfigurationError(op, fmt.Errorf("parse: %w", err))
	}
	var trailing any
	if err := dec.Decode(&trailing); !errors.Is(err, io.EOF) {
		return nil, release.ConfigurationError(op, errors.New("parse: more than one document"))
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, release.ConfigurationError(op, err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Build.Workdir == "" {
		c.Build.Workdir = "."
	}
	if c.Release.Changelog == "" {
		c.Release.Changelog = "CHANGES.md"
	}
	if c.Release.TokenEnv == "" {
		c.Release.TokenEnv = "GITHUB_TOKEN"
	}
}

// Validate reports every problem in c at once.
func (c *Config) Validate() error {
	var errs []error
	req := func(v, field string) {
		if strings.TrimSpace(v) == "" {
			errs = append(errs, fmt.Errorf("%s is required", field))
		}
	}

	req(c.Project.Name, "project.name")
	if !validRepository(c.Project.Repository) {
		errs = append(errs, fmt.Errorf("project.repository must be owner/name (got %q)", c.Project.Repository))
	}
	req(c.Access.Owner, "access.owner")
	if c.Access.Repository != "" && !validRepository(c.Access.Repository) {
		errs = append(errs, fmt.Errorf("access.repository must be owner/name (got %q)", c.Access.Repository))
	}

	if len(c.Build.Recipes) == 0 {
		errs = append(errs, errors.New("build.recipes must declare at least one format"))
	}
	for _, name := range sortedKeys(c.Build.Recipes) {
		r := c.Build.Recipes[name]
		req(r.Run, "build.recipes."+name+".run")
		if len(r.Outputs) == 0 {
			errs = append(errs, fmt.Errorf("build.recipes.%s.outputs is required", name))
		}
	}
	errs = append(errs, c.checkFormats("build.package_formats", c.Build.PackageFormats)...)
	errs = append(errs, c.checkFormats("build.release_formats", c.Build.ReleaseFormats)...)

	req(c.Registry.Bucket, "registry.bucket")
	if (c.Registry.UsernameEnv == "") != (c.Registry.TokenEnv == "") {
		errs = append(errs, errors.New("registry.username_env and registry.token_env must be set together"))
	}

	seen := make(map[string]bool, len(c.Hooks))
	for i, h := range c.Hooks {
		field := fmt.Sprintf("hooks[%d]", i)
		req(h.Name, field+".name")
		req(h.Run, field+".run")
		if seen[h.Name] {
			errs = append(errs, fmt.Errorf("%s: duplicate hook name %q", field, h.Name))
		}
		seen[h.Name] = true
	}

	return errors.Join(errs...)
}

func (c *Config) checkFormats(field string, formats []string) []error {
	if len(formats) == 0 {
		return []error{fmt.Errorf("%s must list at least one format", field)}
	}
	var errs []error
	for _, f := range formats {
		if _, ok := c.Build.Recipes[f]; !ok {
			errs = append(errs, fmt.Errorf("%s: no recipe for format %q", field, f))
		}
	}
	return errs
}

// Credentials reads the registry credentials from the environment.
func (c *Config) Credentials(getenv func(string) string) release.Credentials {
	if c.Registry.UsernameEnv == "" {
		return release.Credentials{}
	}
	return release.Credentials{
		Username: getenv(c.Registry.UsernameEnv),
		Token:    getenv(c.Registry.TokenEnv),
	}
}

// ReleaseToken reads the release host token from the environment.
func (c *Config) ReleaseToken(getenv func(string) string) string {
	return getenv(c.Release.TokenEnv)
}

// WebhookURL reads the announcement webhook from the environment. Empty
// means announcements are only logged.
func (c *Config) WebhookURL(getenv func(string) string) string {
	if c.Notify.WebhookURLEnv == "" {
		return ""
	}
	return getenv(c.Notify.WebhookURLEnv)
}

// Formats converts names to release formats.
func Formats(names []string) []release.Format {
	out := make([]release.Format, 0, len(names))
	for _, n := range names {
		out = append(out, release.Format(n))
	}
	return out
}

func validRepository(s string) bool {
	owner, name, ok := strings.Cut(s, "/")
	return ok && owner != "" && name != "" && !strings.Contains(name, "/")
}
