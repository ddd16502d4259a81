package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultAddr    = ":8080"
	defaultTimeout = 100 * time.Second
)

// Phi4 locates the completion deployment. Either field may be empty; the
// relay reports that as a configuration problem instead of failing startup.
type Phi4 struct {
	Endpoint       string
	DeploymentName string
	Timeout        time.Duration
}

// Configured reports whether both the endpoint and the deployment are set.
func (p Phi4) Configured() bool {
	return strings.TrimSpace(p.Endpoint) != "" && strings.TrimSpace(p.DeploymentName) != ""
}

type Config struct {
	Phi4 Phi4

	// Server
	Addr string

	// AWS
	ParamPrefix   string
	ExchangeTable string

	// Local development token; managed identity is used when empty.
	BearerToken string
}

// ParamLookup is satisfied by *paramstore.Client.
type ParamLookup interface {
	Lookup(ctx context.Context, name string) (string, bool, error)
}

// Load reads a .env file if present and then the process environment.
func Load(envFiles ...string) Config {
	_ = godotenv.Load(envFiles...)
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() Config {
	addr := getEnvOrDefault("ADDR", "")
	if addr == "" {
		if port := os.Getenv("PORT"); port != "" {
			addr = ":" + port
		} else {
			addr = defaultAddr
		}
	}

	return Config{
		Phi4: Phi4{
			Endpoint:       firstEnv("PHI4_ENDPOINT", "Phi4__Endpoint"),
			DeploymentName: firstEnv("PHI4_DEPLOYMENT_NAME", "Phi4__DeploymentName"),
			Timeout:        getEnvAsDurationOrDefault("PHI4_TIMEOUT", defaultTimeout),
		},
		Addr:          addr,
		ParamPrefix:   strings.TrimRight(strings.TrimSpace(os.Getenv("PARAM_PREFIX")), "/"),
		ExchangeTable: strings.TrimSpace(os.Getenv("EXCHANGE_TABLE")),
		BearerToken:   strings.TrimSpace(os.Getenv("PHI4_BEARER_TOKEN")),
	}
}

// EndpointParameter and DeploymentParameter name the SSM parameters read
// under ParamPrefix.
func (c Config) EndpointParameter() string   { return c.ParamPrefix + "/phi4/endpoint" }
func (c Config) DeploymentParameter() string { return c.ParamPrefix + "/phi4/deployment_name" }

// ResolvePhi4 fills Phi4 settings that the environment left empty from the
// parameter store. Parameters that do not exist stay empty.
func (c *Config) ResolvePhi4(ctx context.Context, params ParamLookup) error {
	if c.ParamPrefix == "" || params == nil {
		return nil
	}
	fill := []struct {
		dst  *string
		name string
	}{
		{&c.Phi4.Endpoint, c.EndpointParameter()},
		{&c.Phi4.DeploymentName, c.DeploymentParameter()},
	}
	for _, f := range fill {
		if *f.dst != "" {
			continue
		}
		v, ok, err := params.Lookup(ctx, f.name)
		if err != nil {
			return fmt.Errorf("config: resolve %s: %w", f.name, err)
		}
		if ok {
			*f.dst = strings.TrimSpace(v)
		}
	}
	return nil
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

func getEnvOrDefault(key, defaultVal string) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}
