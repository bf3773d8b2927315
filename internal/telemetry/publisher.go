package telemetry

import (
	"encoding/json"
	"time"

	"github.com/streadway/amqp"

	"github.com/T3-Labs/edge-framepool/pkg/framepool"
)

type EventType string

const (
	EventTypePoolStats     EventType = "pool_stats"
	EventTypePressure      EventType = "pressure"
	EventTypePoolLifecycle EventType = "pool_lifecycle"
)

type PoolAction string

const (
	PoolActionCreated PoolAction = "created"
	PoolActionRemoved PoolAction = "removed"
)

// Publisher envia eventos de telemetria do alocador para RabbitMQ.
type Publisher struct {
	channel    *amqp.Channel
	exchange   string
	routingKey string
	enabled    bool
}

// NewPublisher creates a new telemetry Publisher.
func NewPublisher(ch *amqp.Channel, exchange, routingKey string, enabled bool) *Publisher {
	// Se estiver habilitado e o canal existir, declara o exchange
	if enabled && ch != nil {
		err := ch.ExchangeDeclare(
			exchange,
			"topic",
			true,  // durable
			false, // auto-deleted
			false, // internal
			false, // no-wait
			nil,   // arguments
		)
		if err != nil {
			// Log o erro mas não falha a criação do publisher
			// Isso permite que a aplicação continue mesmo se o exchange já existir
			// ou houver problemas temporários
			_ = err
		}
	}

	return &Publisher{
		channel:    ch,
		exchange:   exchange,
		routingKey: routingKey,
		enabled:    enabled,
	}
}

// Enabled returns true if the telemetry publisher is enabled.
func (p *Publisher) Enabled() bool {
	return p.enabled
}

// PoolStatsEvent é o snapshot periódico do pool de um stream.
type PoolStatsEvent struct {
	EventType      EventType `json:"event_type"`
	StreamID       string    `json:"stream_id"`
	Timestamp      time.Time `json:"timestamp"`
	Requested      int64     `json:"requested"`
	Missed         int64     `json:"missed"`
	Returned       int64     `json:"returned"`
	EmergencyFreed int64     `json:"emergency_freed"`
	HitRate        float64   `json:"hit_rate"`
	Available      int       `json:"available"`
	InUse          int       `json:"in_use"`
	MemoryBytes    int64     `json:"memory_bytes,omitempty"`
	RedisKey       string    `json:"redis_key,omitempty"`
}

type PressureEvent struct {
	EventType    EventType `json:"event_type"`
	Timestamp    time.Time `json:"timestamp"`
	Level        string    `json:"level"`
	FreedBuffers int64     `json:"freed_buffers"`
	Message      string    `json:"message,omitempty"`
}

type PoolLifecycleEvent struct {
	EventType  EventType  `json:"event_type"`
	StreamID   string     `json:"stream_id"`
	Timestamp  time.Time  `json:"timestamp"`
	Action     PoolAction `json:"action"`
	Width      int        `json:"width,omitempty"`
	Height     int        `json:"height,omitempty"`
	Format     string     `json:"format,omitempty"`
	MaxBuffers int        `json:"max_buffers,omitempty"`
	FrameBytes int        `json:"frame_bytes,omitempty"`
}

// PublishPoolStats sends a JSON snapshot of one stream's pool to RabbitMQ.
func (p *Publisher) PublishPoolStats(streamID string, st framepool.StreamStats, available, inUse int, memoryBytes int64, redisKey string) error {
	if !p.enabled {
		return nil
	}

	event := PoolStatsEvent{
		EventType:      EventTypePoolStats,
		StreamID:       streamID,
		Timestamp:      time.Now(),
		Requested:      st.Requested,
		Missed:         st.Missed,
		Returned:       st.Returned,
		EmergencyFreed: st.EmergencyFreed,
		HitRate:        st.HitRate,
		Available:      available,
		InUse:          inUse,
		MemoryBytes:    memoryBytes,
		RedisKey:       redisKey,
	}

	return p.publish(p.routingKey, event)
}

// PublishPressure sends a memory-pressure event to RabbitMQ.
func (p *Publisher) PublishPressure(level string, freedBuffers int64, message string) error {
	if !p.enabled {
		return nil
	}

	event := PressureEvent{
		EventType:    EventTypePressure,
		Timestamp:    time.Now(),
		Level:        level,
		FreedBuffers: freedBuffers,
		Message:      message,
	}

	return p.publish(p.routingKey+".pressure", event)
}

// PublishPoolLifecycle sends pool created/removed events to RabbitMQ.
func (p *Publisher) PublishPoolLifecycle(streamID string, action PoolAction, cfg framepool.PoolConfig) error {
	if !p.enabled {
		return nil
	}

	event := PoolLifecycleEvent{
		EventType:  EventTypePoolLifecycle,
		StreamID:   streamID,
		Timestamp:  time.Now(),
		Action:     action,
		Width:      cfg.Width,
		Height:     cfg.Height,
		Format:     cfg.Format.String(),
		MaxBuffers: cfg.MaxBuffers,
		FrameBytes: cfg.FrameBytes(),
	}

	return p.publish(p.routingKey+".lifecycle", event)
}

func (p *Publisher) publish(routingKey string, event interface{}) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return p.channel.Publish(
		p.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
}
