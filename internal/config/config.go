package config

import "github.com/kelseyhightower/envconfig"

type APIConfig struct {
	DBDSN       string `envconfig:"DB_DSN" required:"true"`
	Port        string `envconfig:"PORT" default:"8080"`
	MetricsPort string `envconfig:"METRICS_PORT" default:"9090"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`
	AppEnv      string `envconfig:"APP_ENV" default:"production"`

	// Redis backs the runtime test-mode toggle. Optional: with no
	// address the toggle chain falls through to the environment flag.
	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	// Dispatcher knobs
	BatchSize       int     `envconfig:"DISPATCH_BATCH_SIZE" default:"50"`
	BatchDelayMs    int     `envconfig:"DISPATCH_BATCH_DELAY_MS" default:"500"`
	ProviderRPS     float64 `envconfig:"PROVIDER_RPS" default:"10"`
	ProviderBurst   int     `envconfig:"PROVIDER_BURST" default:"20"`
	ProviderTimeout int     `envconfig:"PROVIDER_TIMEOUT_SECONDS" default:"10"`

	// Test mode
	TestModeEnv     string `envconfig:"EMAIL_TEST_MODE"`
	TestModeAddress string `envconfig:"EMAIL_TEST_ADDRESS"`

	// AWS (SES provider only; region is harmless for the REST providers)
	AWSRegion string `envconfig:"AWS_REGION" default:"us-east-1"`
}

type MigrateConfig struct {
	DBDSN          string `envconfig:"DB_DSN" required:"true"`
	MigrationsPath string `envconfig:"MIGRATIONS_PATH" default:"file://migrations"`
	LogFormat      string `envconfig:"LOG_FORMAT" default:"text"`
}

func LoadAPI() APIConfig {
	var cfg APIConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	return cfg
}

func LoadMigrate() MigrateConfig {
	var cfg MigrateConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	return cfg
}
