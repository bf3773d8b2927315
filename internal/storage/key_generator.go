package storage

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// KeyStrategy define a estratégia de geração de chaves Redis
type KeyStrategy string

const (
	// StrategyBasic usa apenas timestamp (não recomendado para alta concorrência)
	StrategyBasic KeyStrategy = "basic"
	// StrategySequence usa timestamp + contador sequencial (recomendado)
	StrategySequence KeyStrategy = "sequence"
	// StrategyUUID usa timestamp + UUID (para sistemas distribuídos)
	StrategyUUID KeyStrategy = "uuid"
)

// KeyGeneratorConfig configuração do gerador de chaves
type KeyGeneratorConfig struct {
	Strategy  KeyStrategy
	Prefix    string
	Namespace string // Identificador único do dispositivo/cliente
}

// KeyGenerator gera chaves únicas para snapshots de estatísticas no Redis
type KeyGenerator struct {
	config   KeyGeneratorConfig
	sequence uint64
	mu       sync.Mutex
}

// NewKeyGenerator cria um novo gerador de chaves
func NewKeyGenerator(config KeyGeneratorConfig) *KeyGenerator {
	if config.Strategy == "" {
		config.Strategy = StrategySequence
	}
	if config.Namespace == "" {
		config.Namespace = "default"
	}

	return &KeyGenerator{
		config: config,
	}
}

// GenerateKey gera uma chave única para um snapshot
// Formato: {namespace}:{prefix}:{streamID}:{unix_timestamp}:{sufixo}
// Exemplo: loja42:framepool:cam1:1731024000123456789:00001
func (kg *KeyGenerator) GenerateKey(streamID string, timestamp time.Time) string {
	baseKey := fmt.Sprintf("%s:%s:%s:%d",
		kg.config.Namespace,
		kg.config.Prefix,
		streamID,
		timestamp.UnixNano(),
	)

	switch kg.config.Strategy {
	case StrategySequence:
		seq := kg.getNextSequence()
		return fmt.Sprintf("%s:%05d", baseKey, seq)
	case StrategyUUID:
		return fmt.Sprintf("%s:%s", baseKey, uuid.New().String()[:8])
	case StrategyBasic:
		fallthrough
	default:
		return baseKey
	}
}

// KeyComponents decompõe uma chave Redis em seus componentes
type KeyComponents struct {
	Namespace string
	Prefix    string
	StreamID  string
	Timestamp time.Time
	Suffix    string
}

// ParseKey extrai os componentes de uma chave Redis
func (kg *KeyGenerator) ParseKey(key string) (*KeyComponents, error) {
	// Formato: namespace:prefix:streamID:unix_timestamp[:suffix]
	parts := strings.SplitN(key, ":", 4)
	if len(parts) != 4 {
		return nil, fmt.Errorf("invalid key format: %s", key)
	}

	remaining := parts[3]

	// Procura por sufixo (após o último ":")
	lastColon := strings.LastIndex(remaining, ":")
	var timestampStr, suffix string

	if lastColon > 0 {
		timestampStr = remaining[:lastColon]
		suffix = remaining[lastColon+1:]
	} else {
		timestampStr = remaining
	}

	// Parse Unix timestamp (em nanoseconds)
	var unixNano int64
	if _, err := fmt.Sscanf(timestampStr, "%d", &unixNano); err != nil {
		return nil, fmt.Errorf("invalid timestamp in key: %w", err)
	}

	return &KeyComponents{
		Namespace: parts[0],
		Prefix:    parts[1],
		StreamID:  parts[2],
		Timestamp: time.Unix(0, unixNano),
		Suffix:    suffix,
	}, nil
}

// QueryPattern retorna o padrão para buscar chaves no Redis
// Exemplos:
// - Todos os snapshots do namespace: QueryPattern("", "")
// - Todos os snapshots de um stream: QueryPattern("cam1", "")
func (kg *KeyGenerator) QueryPattern(streamID string, namespace string) string {
	if namespace == "" {
		namespace = kg.config.Namespace
	}

	if streamID == "" {
		return fmt.Sprintf("%s:%s:*", namespace, kg.config.Prefix)
	}
	return fmt.Sprintf("%s:%s:%s:*", namespace, kg.config.Prefix, streamID)
}

// getNextSequence retorna o próximo número sequencial (thread-safe)
func (kg *KeyGenerator) getNextSequence() uint64 {
	kg.mu.Lock()
	defer kg.mu.Unlock()
	kg.sequence++
	// Reset após 99999 para manter o formato de 5 dígitos
	if kg.sequence > 99999 {
		kg.sequence = 1
	}
	return kg.sequence
}

// GetConfig retorna a configuração atual
func (kg *KeyGenerator) GetConfig() KeyGeneratorConfig {
	return kg.config
}
