package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	Env                    string `mapstructure:"env"`
	Port                   int    `mapstructure:"port"`
	InstanceID             string `mapstructure:"instance_id"`
	InternalToken          string `mapstructure:"internal_token"`
	HandlerTimeoutSeconds  int    `mapstructure:"handler_timeout_seconds"`
	ShutdownTimeoutSeconds int    `mapstructure:"shutdown_timeout_seconds"`
}

type AuthConfig struct {
	JWTSecret        string `mapstructure:"jwt_secret"`
	JWTPublicKeyPath string `mapstructure:"jwt_public_key_path"`
}

type MongoConfig struct {
	URI                   string `mapstructure:"uri"`
	Database              string `mapstructure:"database"`
	ConnectTimeoutSeconds int    `mapstructure:"connect_timeout_seconds"`
	QueryTimeoutSeconds   int    `mapstructure:"query_timeout_seconds"`
}

type RedisConfig struct {
	Addr               string `mapstructure:"addr"`
	Password           string `mapstructure:"password"`
	DB                 int    `mapstructure:"db"`
	Prefix             string `mapstructure:"prefix"`
	PresenceTTLSeconds int    `mapstructure:"presence_ttl_seconds"`
	RelayChannel       string `mapstructure:"relay_channel"`
	HTTPRateLimit      int    `mapstructure:"http_rate_limit"`
	HTTPRateWindowSecs int    `mapstructure:"http_rate_window_seconds"`
}

type KafkaConfig struct {
	Brokers                 []string `mapstructure:"brokers"`
	TopicMessageSent        string   `mapstructure:"topic_message_sent"`
	TopicApplicationCreated string   `mapstructure:"topic_application_created"`
	GroupID                 string   `mapstructure:"group_id"`
}

type WSConfig struct {
	PingIntervalSeconds  int     `mapstructure:"ping_interval_seconds"`
	PongWaitSeconds      int     `mapstructure:"pong_wait_seconds"`
	WriteDeadlineSeconds int     `mapstructure:"write_deadline_seconds"`
	MaxMessageSizeBytes  int64   `mapstructure:"max_message_size_bytes"`
	SendBuffer           int     `mapstructure:"send_buffer"`
	RateLimit            float64 `mapstructure:"rate_limit"`
	RateBurst            int     `mapstructure:"rate_burst"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type Config struct {
	App   AppConfig   `mapstructure:"app"`
	Auth  AuthConfig  `mapstructure:"auth"`
	Mongo MongoConfig `mapstructure:"mongo"`
	Redis RedisConfig `mapstructure:"redis"`
	Kafka KafkaConfig `mapstructure:"kafka"`
	WS    WSConfig    `mapstructure:"ws"`
	Log   LogConfig   `mapstructure:"log"`

	// derived
	PingInterval    time.Duration `mapstructure:"-"`
	PongWait        time.Duration `mapstructure:"-"`
	WriteDeadline   time.Duration `mapstructure:"-"`
	HandlerTimeout  time.Duration `mapstructure:"-"`
	ShutdownTimeout time.Duration `mapstructure:"-"`
	ConnectTimeout  time.Duration `mapstructure:"-"`
	QueryTimeout    time.Duration `mapstructure:"-"`
	PresenceTTL     time.Duration `mapstructure:"-"`
	HTTPRateWindow  time.Duration `mapstructure:"-"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.instance_id", "")
	v.SetDefault("app.internal_token", "")
	v.SetDefault("app.handler_timeout_seconds", 10)
	v.SetDefault("app.shutdown_timeout_seconds", 15)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.jwt_public_key_path", "")

	v.SetDefault("mongo.uri", "")
	v.SetDefault("mongo.database", "jobsearch")
	v.SetDefault("mongo.connect_timeout_seconds", 30)
	v.SetDefault("mongo.query_timeout_seconds", 5)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "realtime")
	v.SetDefault("redis.presence_ttl_seconds", 86400)
	v.SetDefault("redis.relay_channel", "realtime:rooms")
	v.SetDefault("redis.http_rate_limit", 120)
	v.SetDefault("redis.http_rate_window_seconds", 60)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic_message_sent", "chat.message.sent")
	v.SetDefault("kafka.topic_application_created", "application.created")
	v.SetDefault("kafka.group_id", "realtime-service")

	v.SetDefault("ws.ping_interval_seconds", 25)
	v.SetDefault("ws.pong_wait_seconds", 60)
	v.SetDefault("ws.write_deadline_seconds", 10)
	v.SetDefault("ws.max_message_size_bytes", 65536)
	v.SetDefault("ws.send_buffer", 256)
	v.SetDefault("ws.rate_limit", 20)
	v.SetDefault("ws.rate_burst", 40)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Load reads path when given and overlays environment variables such as
// AUTH_JWT_SECRET or MONGO_URI.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	c.derive()
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func (c *Config) derive() {
	c.PingInterval = seconds(c.WS.PingIntervalSeconds)
	c.PongWait = seconds(c.WS.PongWaitSeconds)
	c.WriteDeadline = seconds(c.WS.WriteDeadlineSeconds)
	c.HandlerTimeout = seconds(c.App.HandlerTimeoutSeconds)
	c.ShutdownTimeout = seconds(c.App.ShutdownTimeoutSeconds)
	c.ConnectTimeout = seconds(c.Mongo.ConnectTimeoutSeconds)
	c.QueryTimeout = seconds(c.Mongo.QueryTimeoutSeconds)
	c.PresenceTTL = seconds(c.Redis.PresenceTTLSeconds)
	c.HTTPRateWindow = seconds(c.Redis.HTTPRateWindowSecs)

	var brokers []string
	for _, b := range c.Kafka.Brokers {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	c.Kafka.Brokers = brokers
}

func (c *Config) validate() error {
	if c.Auth.JWTSecret == "" && c.Auth.JWTPublicKeyPath == "" {
		return errors.New("auth.jwt_secret or auth.jwt_public_key_path is required")
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		return fmt.Errorf("app.port %d out of range", c.App.Port)
	}
	if c.WS.PongWaitSeconds <= c.WS.PingIntervalSeconds {
		return errors.New("ws.pong_wait_seconds must exceed ws.ping_interval_seconds")
	}
	return nil
}

func (c *Config) Addr() string { return fmt.Sprintf(":%d", c.App.Port) }

func (c *Config) KafkaEnabled() bool { return len(c.Kafka.Brokers) > 0 }
