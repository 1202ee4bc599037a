package main

import (
	"github.com/caarlos0/env/v11"

	"github.com/webapk-bot/webapk/internal/build"
	"github.com/webapk-bot/webapk/internal/build/webapk"
	"github.com/webapk-bot/webapk/internal/buildlock"
	"github.com/webapk-bot/webapk/internal/flow"
	"github.com/webapk-bot/webapk/internal/server"
)

// config holds the application configuration.
type config struct {
	Development bool   `env:"WEBAPK_DEVELOPMENT"`
	BotToken    string `env:"WEBAPK_BOT_TOKEN,required"`
	// BotAPIURL overrides the Bot API endpoint, for tests and local API
	// servers. Empty means the public endpoint.
	BotAPIURL string `env:"WEBAPK_BOT_API_URL"`

	// Optional collaborators; each is enabled by a non-empty connection
	// string.
	PostgresConnectionString string `env:"WEBAPK_PG_CONNECTION_STRING"`
	AMQPConnectionString     string `env:"WEBAPK_AMQP_CONNECTION_STRING"`
	S3ConnectionString       string `env:"WEBAPK_S3_CONNECTION_STRING"`
	S3Bucket                 string `env:"WEBAPK_S3_BUCKET" envDefault:"webapk-artifacts"`

	Lock     buildlock.Config `envPrefix:"WEBAPK_LOCK_"`
	Build    build.Config     `envPrefix:"WEBAPK_BUILD_"`
	Executor webapk.Config    `envPrefix:"WEBAPK_EXECUTOR_"`
	Flow     flow.Config      `envPrefix:"WEBAPK_FLOW_"`
	Server   server.Config    `envPrefix:"WEBAPK_SERVER_"`
}

// parseConfig parses the application configuration from the environment
// variables.
func parseConfig(environ []string) (*config, error) {
	var cfg config

	err := env.ParseWithOptions(&cfg, env.Options{
		Environment: env.ToMap(environ),
	})
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}
