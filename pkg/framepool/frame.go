package framepool

import "time"

// Frame embrulha um payload com os metadados de timing do pipeline de
// captura. O alocador só transporta esses campos; quem interpreta é o
// pipeline.
type Frame struct {
	StreamID string
	Payload  *Buffer

	PTS      time.Duration
	DTS      time.Duration
	Duration time.Duration
}

// Transform é uma função pura aplicada ao payload de um frame. Retornar
// (nil, false) descarta o frame inteiro.
type Transform func(*Buffer) (*Buffer, bool)
