package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/T3-Labs/edge-framepool/pkg/framepool"
)

// StreamConfig descreve um stream de captura e os limites do pool dele.
// Campos de pool zerados caem nos defaults do alocador (3/10/5).
type StreamConfig struct {
	ID           string `mapstructure:"id"`
	Name         string `mapstructure:"name"`
	Width        int    `mapstructure:"width"`
	Height       int    `mapstructure:"height"`
	PixelFormat  string `mapstructure:"pixel_format"`
	MinBuffers   int    `mapstructure:"min_buffers"`
	MaxBuffers   int    `mapstructure:"max_buffers"`
	MaxAvailable int    `mapstructure:"max_available"`
}

// PoolConfig converte a entrada de configuração para o formato do alocador.
func (s StreamConfig) PoolConfig() framepool.PoolConfig {
	return framepool.PoolConfig{
		Width:        s.Width,
		Height:       s.Height,
		Format:       framepool.ParsePixelFormat(s.PixelFormat),
		MinBuffers:   s.MinBuffers,
		MaxBuffers:   s.MaxBuffers,
		MaxAvailable: s.MaxAvailable,
	}
}

type MemoryConfig struct {
	LimitMB          uint64  `mapstructure:"limit_mb"`
	WarningPercent   float64 `mapstructure:"warning_percent"`
	CriticalPercent  float64 `mapstructure:"critical_percent"`
	EmergencyPercent float64 `mapstructure:"emergency_percent"`
	CheckIntervalSec int     `mapstructure:"check_interval_seconds"`
}

type AMQPConfig struct {
	AmqpURL          string `mapstructure:"amqp_url"`
	Exchange         string `mapstructure:"exchange"`
	RoutingKeyPrefix string `mapstructure:"routing_key_prefix"`
}

type MQTTConfig struct {
	Broker      string `mapstructure:"broker"`
	TopicPrefix string `mapstructure:"topic_prefix"`
}

type RedisConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Address    string `mapstructure:"address"`
	TTLSeconds int    `mapstructure:"ttl_seconds"`
	Prefix     string `mapstructure:"prefix"`
	Namespace  string `mapstructure:"namespace"`
}

type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Exchange    string `mapstructure:"exchange"`
	RoutingKey  string `mapstructure:"routing_key"`
	IntervalSec int    `mapstructure:"interval_seconds"`
}

type MetricsConfig struct {
	Address string `mapstructure:"address"`
}

type Compression struct {
	Enabled bool `mapstructure:"enabled"`
	Level   int  `mapstructure:"level"`
}

type Simulation struct {
	TargetFPS          float64 `mapstructure:"target_fps"`
	MaxWorkers         int     `mapstructure:"max_workers"`
	QueueSize          int     `mapstructure:"queue_size"`
	CircuitMaxFailures int     `mapstructure:"circuit_max_failures"`
	CircuitResetSec    int     `mapstructure:"circuit_reset_seconds"`
}

type Config struct {
	Protocol    string          `mapstructure:"protocol"`
	Memory      MemoryConfig    `mapstructure:"memory"`
	AMQP        AMQPConfig      `mapstructure:"amqp"`
	MQTT        MQTTConfig      `mapstructure:"mqtt"`
	Redis       RedisConfig     `mapstructure:"redis"`
	Telemetry   TelemetryConfig `mapstructure:"telemetry"`
	Metrics     MetricsConfig   `mapstructure:"metrics"`
	Compression Compression     `mapstructure:"compression"`
	Simulation  Simulation      `mapstructure:"simulation"`
	Streams     []StreamConfig  `mapstructure:"streams"`
}

// GetFrameInterval calcula o intervalo de tempo entre os frames com base no
// TargetFPS. Retorna um intervalo padrão de 2 FPS se o valor for inválido.
func (c *Config) GetFrameInterval() time.Duration {
	if c.Simulation.TargetFPS <= 0 {
		return time.Second / 2 // Padrão: 2 FPS
	}
	return time.Duration(float64(time.Second) / c.Simulation.TargetFPS)
}

// GetTelemetryInterval retorna o período de publicação de telemetria,
// padrão 30s.
func (c *Config) GetTelemetryInterval() time.Duration {
	if c.Telemetry.IntervalSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Telemetry.IntervalSec) * time.Second
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
