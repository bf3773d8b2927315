package util

import (
	"fmt"
	"sync"

	zstd "github.com/klauspost/compress/zstd"
)

// Compressor comprime payloads de frame antes da publicação. O encoder é
// reutilizado entre chamadas; EncodeAll é seguro sob o mutex.
type Compressor struct {
	mu      sync.Mutex
	encoder *zstd.Encoder
	level   int
}

func NewCompressor(level int) (*Compressor, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	if err != nil {
		return nil, fmt.Errorf("zstd new writer: %w", err)
	}
	return &Compressor{encoder: enc, level: level}, nil
}

func (c *Compressor) Compress(data []byte) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.encoder.EncodeAll(data, nil)
}

func (c *Compressor) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.encoder.Close()
}

func Decompress(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(data, nil)
}
