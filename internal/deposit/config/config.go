package config

import (
	"time"

	"coinvault.com/internal/currency"
)

type Cfg struct {
	Name          string           `yaml:"name" mapstructure:"name"`
	LogLevel      string           `yaml:"log_level" mapstructure:"log_level"`
	Db            DBConfig         `yaml:"db" mapstructure:"db"`
	Redis         Redis            `yaml:"redis" mapstructure:"redis"`
	Nats          Nats             `yaml:"nats" mapstructure:"nats"`
	OTel          OTel             `yaml:"otel" mapstructure:"otel"`
	HTTP          HTTP             `yaml:"http" mapstructure:"http"`
	Lock          Lock             `yaml:"lock" mapstructure:"lock"`
	Currencies    []currency.Entry `yaml:"currencies" mapstructure:"currencies"`
	Notify        Notify           `yaml:"notify" mapstructure:"notify"`
	AccountStatus AccountStatus    `yaml:"account_status" mapstructure:"account_status"`
}

type DBConfig struct {
	SourceName             string `yaml:"source_name" mapstructure:"source_name"`
	MaxOpenConns           int    `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes" mapstructure:"conn_max_lifetime_minutes"`
	Debug                  bool   `yaml:"debug" mapstructure:"debug"`
	AutoMigrate            bool   `yaml:"auto_migrate" mapstructure:"auto_migrate"`
}

type Redis struct {
	Addr         string `yaml:"addr" mapstructure:"addr"`
	Database     int    `yaml:"db" mapstructure:"db"`
	Auth         string `yaml:"auth" mapstructure:"auth"`
	PoolSize     int    `yaml:"pool_size" mapstructure:"pool_size"`
	MinIdleConns int    `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
}

type Nats struct {
	URL string `yaml:"url" mapstructure:"url"`
	// JetStream false 时退回 core NATS（本地联调）
	JetStream  bool   `yaml:"jetstream" mapstructure:"jetstream"`
	QueueGroup string `yaml:"queue_group" mapstructure:"queue_group"`
	// Workers 命令并发处理上限，0 用默认值
	Workers int `yaml:"workers" mapstructure:"workers"`
}

type OTel struct {
	Enabled     bool    `yaml:"enabled" mapstructure:"enabled"`
	Addr        string  `yaml:"addr" mapstructure:"addr"`
	SampleRatio float64 `yaml:"sample_ratio" mapstructure:"sample_ratio"`
	Env         string  `yaml:"env" mapstructure:"env"`
}

type HTTP struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// Lock backend: memory | redis
type Lock struct {
	Backend string `yaml:"backend" mapstructure:"backend"`
	WaitMs  int    `yaml:"wait_ms" mapstructure:"wait_ms"`
	TTLMs   int    `yaml:"ttl_ms" mapstructure:"ttl_ms"`
}

func (l Lock) Wait() time.Duration { return msOr(l.WaitMs, 3000) }
func (l Lock) TTL() time.Duration  { return msOr(l.TTLMs, 30000) }

type Notify struct {
	IntervalMs  int     `yaml:"interval_ms" mapstructure:"interval_ms"`
	GraceMs     int     `yaml:"grace_ms" mapstructure:"grace_ms"`
	Batch       int     `yaml:"batch" mapstructure:"batch"`
	Rate        float64 `yaml:"rate" mapstructure:"rate"`
	MaxAttempts int     `yaml:"max_attempts" mapstructure:"max_attempts"`
}

type AccountStatus struct {
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutMs int    `yaml:"timeout_ms" mapstructure:"timeout_ms"`
}

func (a AccountStatus) Timeout() time.Duration { return msOr(a.TimeoutMs, 2000) }

func msOr(ms, def int) time.Duration {
	if ms <= 0 {
		ms = def
	}
	return time.Duration(ms) * time.Millisecond
}
