package observability

import (
	"strings"

	"github.com/smallbiznis/duespay/internal/config"
	"github.com/spf13/viper"
)

// Config holds observability settings. Values from the application config are
// defaults; the standard OTEL_* and LOG_* variables override them.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

func LoadConfig(cfg config.Config) Config {
	return loadConfig(viper.New(), cfg)
}

func loadConfig(v *viper.Viper, cfg config.Config) Config {
	v.AutomaticEnv()
	v.SetDefault("DEPLOYMENT_ENV", cfg.Environment)
	v.SetDefault("SERVICE_VERSION", cfg.AppVersion)
	v.SetDefault("LOG_LEVEL", cfg.Logger.Level)
	v.SetDefault("LOG_FORMAT", cfg.Logger.Format)
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTLPEndpoint)
	v.SetDefault("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")
	v.SetDefault("OTEL_ENABLED", strings.TrimSpace(cfg.OTLPEndpoint) != "")

	environment := trimmed(v, "DEPLOYMENT_ENV")

	// Scheduler runs are rare, so development traces keep every one.
	v.SetDefault("OTEL_SAMPLING_RATIO", 0.1)
	if isDevEnv(environment) {
		v.SetDefault("OTEL_SAMPLING_RATIO", 1.0)
	}

	protocol := trimmed(v, "OTEL_EXPORTER_OTLP_TRACES_PROTOCOL")
	if protocol == "" {
		protocol = trimmed(v, "OTEL_EXPORTER_OTLP_PROTOCOL")
	}

	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "duespay"
	}

	return Config{
		ServiceName:          serviceName,
		Environment:          environment,
		Version:              trimmed(v, "SERVICE_VERSION"),
		LogLevel:             strings.ToLower(trimmed(v, "LOG_LEVEL")),
		LogFormat:            strings.ToLower(trimmed(v, "LOG_FORMAT")),
		OtelEnabled:          v.GetBool("OTEL_ENABLED"),
		OtelExporterEndpoint: trimmed(v, "OTEL_EXPORTER_OTLP_ENDPOINT"),
		OtelExporterProtocol: strings.ToLower(protocol),
		OtelSamplingRatio:    v.GetFloat64("OTEL_SAMPLING_RATIO"),
	}
}

func trimmed(v *viper.Viper, key string) string {
	return strings.TrimSpace(v.GetString(key))
}

// Debug reports whether verbose request logging and error stacks are on.
func (c Config) Debug() bool {
	if strings.EqualFold(strings.TrimSpace(c.LogLevel), "debug") {
		return true
	}
	return isDevEnv(c.Environment)
}

func isDevEnv(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}
