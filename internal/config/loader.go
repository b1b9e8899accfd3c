package config

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigError is returned by LoadConfig. Type says which stage failed.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// An env var named FOO_SSM_PARAM holds the SSM path whose value becomes FOO.
const ssmParamSuffix = "_SSM_PARAM"

const localEnv = "local"

const ssmResolveTimeout = 30 * time.Second

// loaderDeps lets tests swap out the process environment.
type loaderDeps struct {
	lookupEnv func(key string) (string, bool)
	setEnv    func(key, value string) error
	environ   func() []string
}

func defaultDeps() loaderDeps {
	return loaderDeps{
		lookupEnv: os.LookupEnv,
		setEnv:    os.Setenv,
		environ:   os.Environ,
	}
}

// LoadConfig resolves, parses and validates the process configuration.
//
// Order of operations:
//  1. Force time.Local to UTC. Every schedule computation carries an explicit
//     location, so an ambient local zone would only hide bugs.
//  2. Load .env if present. Existing variables win.
//  3. Outside APP_ENV=local, resolve *_SSM_PARAM pointers through provider.
//  4. Populate Config via envconfig, attach BuildInfo, run validator.
//
// provider may be nil when APP_ENV=local or when no pointers are set.
func LoadConfig(provider SecretProvider) (*Config, error) {
	return loadConfigWithDeps(provider, defaultDeps())
}

func loadConfigWithDeps(provider SecretProvider, deps loaderDeps) (*Config, error) {
	time.Local = time.UTC

	_ = godotenv.Load()

	appEnv, ok := deps.lookupEnv("APP_ENV")
	if !ok || appEnv == "" {
		return nil, &ConfigError{Type: ErrMissingEnv, Message: "APP_ENV is not set"}
	}

	if appEnv != localEnv {
		if err := resolveSSMParams(provider, deps); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}

	cfg.Build = NewBuildInfo()

	if err := validator.New().Struct(cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}

	return &cfg, nil
}

// ResolveSecrets runs only the SSM step. Lambda entry points call it before
// LoadConfig when they need secrets injected ahead of other initialization.
func ResolveSecrets(provider SecretProvider) error {
	if appEnv, _ := os.LookupEnv("APP_ENV"); appEnv == localEnv {
		return nil
	}
	return resolveSSMParams(provider, defaultDeps())
}

// resolveSSMParams fetches every *_SSM_PARAM pointer whose target variable is
// not already set and injects the values into the environment.
func resolveSSMParams(provider SecretProvider, deps loaderDeps) error {
	targets := make(map[string]string) // ssm path -> env var
	for _, entry := range deps.environ() {
		key, path, found := strings.Cut(entry, "=")
		if !found || !strings.HasSuffix(key, ssmParamSuffix) || path == "" {
			continue
		}
		target := strings.TrimSuffix(key, ssmParamSuffix)
		if _, set := deps.lookupEnv(target); set {
			continue
		}
		targets[path] = target
	}
	if len(targets) == 0 {
		return nil
	}

	paths := make([]string, 0, len(targets))
	for p := range targets {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	if provider == nil {
		names := make([]string, 0, len(paths))
		for _, p := range paths {
			names = append(names, targets[p])
		}
		return &ConfigError{
			Type:    ErrSSMResolution,
			Message: "no secret provider configured to resolve: " + strings.Join(names, ", "),
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), ssmResolveTimeout)
	defer cancel()

	resolved, err := provider.GetParametersBatch(ctx, paths)
	if err != nil {
		return &ConfigError{
			Type:    ErrSSMResolution,
			Message: fmt.Sprintf("failed to resolve %d SSM parameters", len(paths)),
			Err:     err,
		}
	}

	var missing []string
	for _, p := range paths {
		value, ok := resolved[p]
		if !ok {
			missing = append(missing, targets[p])
			continue
		}
		if err := deps.setEnv(targets[p], value); err != nil {
			return &ConfigError{
				Type:    ErrSSMResolution,
				Message: "failed to set " + targets[p],
				Err:     err,
			}
		}
	}
	if len(missing) > 0 {
		return &ConfigError{
			Type:    ErrSSMResolution,
			Message: "SSM parameters not found for: " + strings.Join(missing, ", "),
		}
	}
	return nil
}
