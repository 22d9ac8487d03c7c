package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every key when read from the environment.
const EnvPrefix = "JAILRUN"

type Config struct {
	DataDir           string
	RegistryURL       string
	AuthURL           string
	RegistryService   string
	RegistryNamespace string
	VerifyDigests     bool
	MaxLayerSize      int64
	CaptureOutput     bool
	LogLevel          string
	HTTPTimeout       time.Duration
	OtelEndpoint      string
	OtelInsecure      bool
}

// Load loads configuration from JAILRUN_* environment variables
// Automatically loads .env file if present
func Load() (*Config, error) {
	// Try to load .env file (fail silently if not present)
	_ = godotenv.Load()

	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("DATA_DIR", "/tmp/jailrun")
	v.SetDefault("REGISTRY_URL", "")
	v.SetDefault("AUTH_URL", "")
	v.SetDefault("REGISTRY_SERVICE", "")
	v.SetDefault("REGISTRY_NAMESPACE", "library")
	v.SetDefault("VERIFY_DIGESTS", true)
	v.SetDefault("MAX_LAYER_SIZE", "16GB")
	v.SetDefault("CAPTURE_OUTPUT", false)
	v.SetDefault("LOG_LEVEL", "warn")
	v.SetDefault("HTTP_TIMEOUT", "0s")
	v.SetDefault("OTEL_ENDPOINT", "")
	v.SetDefault("OTEL_INSECURE", false)

	maxLayerSize, err := parseSize(v.GetString("MAX_LAYER_SIZE"))
	if err != nil {
		return nil, fmt.Errorf("%s_MAX_LAYER_SIZE: %w", EnvPrefix, err)
	}

	timeout, err := time.ParseDuration(v.GetString("HTTP_TIMEOUT"))
	if err != nil {
		return nil, fmt.Errorf("%s_HTTP_TIMEOUT: %w", EnvPrefix, err)
	}

	cfg := &Config{
		DataDir:           v.GetString("DATA_DIR"),
		RegistryURL:       v.GetString("REGISTRY_URL"),
		AuthURL:           v.GetString("AUTH_URL"),
		RegistryService:   v.GetString("REGISTRY_SERVICE"),
		RegistryNamespace: v.GetString("REGISTRY_NAMESPACE"),
		VerifyDigests:     v.GetBool("VERIFY_DIGESTS"),
		MaxLayerSize:      maxLayerSize,
		CaptureOutput:     v.GetBool("CAPTURE_OUTPUT"),
		LogLevel:          v.GetString("LOG_LEVEL"),
		HTTPTimeout:       timeout,
		OtelEndpoint:      v.GetString("OTEL_ENDPOINT"),
		OtelInsecure:      v.GetBool("OTEL_INSECURE"),
	}

	if cfg.DataDir == "" {
		return nil, fmt.Errorf("%s_DATA_DIR must not be empty", EnvPrefix)
	}
	return cfg, nil
}

// parseSize accepts datasize strings ("512MB", "16GB") and plain byte counts.
// "0" disables the limit.
func parseSize(s string) (int64, error) {
	var size datasize.ByteSize
	if err := size.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, err
	}
	return int64(size.Bytes()), nil
}
