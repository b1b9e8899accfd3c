package config

import (
	"context"
	"os"
)

// SecretProvider resolves secret identifiers to plaintext values. Keys that
// cannot be found are omitted from the result rather than reported as errors.
type SecretProvider interface {
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}

// EnvVarProvider treats each key as an environment variable name. It stands in
// for SSM when running the binaries locally.
type EnvVarProvider struct{}

func NewEnvVarProvider() *EnvVarProvider {
	return &EnvVarProvider{}
}

func (p *EnvVarProvider) GetParametersBatch(_ context.Context, keys []string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		if v, ok := os.LookupEnv(k); ok {
			out[k] = v
		}
	}
	return out, nil
}

// NewSecretProvider picks the provider for appEnv.
func NewSecretProvider(appEnv, region string) SecretProvider {
	if appEnv == localEnv {
		return NewEnvVarProvider()
	}
	return NewSSMProvider(region)
}
