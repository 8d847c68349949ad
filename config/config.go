package config

import (
	"context"

	"github.com/sethvargo/go-envconfig"

	"github.com/eqtlab/bank-syncer/notify"
	"github.com/eqtlab/bank-syncer/pkg/cache"
	"github.com/eqtlab/bank-syncer/pkg/postgres"
	"github.com/eqtlab/bank-syncer/powens"
	"github.com/eqtlab/bank-syncer/syncer"
)

type Config struct {
	Debug       bool            `env:"APP_DEBUG"`
	MetricsAddr string          `env:"METRICS_ADDR"` // e.g. :9090, empty disables the endpoint
	DB          postgres.Config `env:",prefix=DB_"`
	Cache       cache.Config    `env:",prefix=REDIS_"`
	Powens      powens.Config   `env:",prefix=POWENS_"`
	Syncer      syncer.Config   `env:",prefix=SYNCER_"`
	Notify      notify.Config   `env:",prefix=NOTIFY_"`
}

func ParseEnv(ctx context.Context) (Config, error) {
	cfg := Config{}
	return cfg, envconfig.Process(ctx, &cfg)
}
