package framepool

// PixelFormat identifica o layout de pixels de um buffer. O alocador não
// interpreta o formato: ele só entra no cálculo do tamanho em bytes.
type PixelFormat uint32

const (
	FormatBGRA PixelFormat = iota + 1
	FormatNV12
	FormatYUY2
	FormatGray8
)

func (f PixelFormat) String() string {
	switch f {
	case FormatBGRA:
		return "bgra"
	case FormatNV12:
		return "nv12"
	case FormatYUY2:
		return "yuy2"
	case FormatGray8:
		return "gray8"
	default:
		return "unknown"
	}
}

// ParsePixelFormat converte o nome usado nos arquivos de configuração.
// Formatos desconhecidos caem em BGRA (4 bytes por pixel, o pior caso).
func ParsePixelFormat(s string) PixelFormat {
	switch s {
	case "nv12":
		return FormatNV12
	case "yuy2":
		return FormatYUY2
	case "gray8":
		return FormatGray8
	default:
		return FormatBGRA
	}
}

// frameBytes calcula o tamanho do bloco para um frame width x height.
func frameBytes(width, height int, format PixelFormat) int {
	if width <= 0 || height <= 0 {
		return 0
	}
	pixels := width * height
	switch format {
	case FormatNV12:
		// Plano Y + plano UV subamostrado: 12 bits por pixel
		return pixels * 3 / 2
	case FormatYUY2:
		return pixels * 2
	case FormatGray8:
		return pixels
	default:
		return pixels * 4
	}
}

// Handle identifica um buffer dentro do arena de um pool. O campo de geração
// é incrementado quando o slot é reaproveitado, então um handle antigo nunca
// casa com o ocupante novo do mesmo slot.
type Handle struct {
	Index uint32
	Gen   uint32
}

// Buffer é um bloco de memória de tamanho fixo marcado com as dimensões e o
// formato com que foi criado. A identidade é por alocação (via Handle), não
// por conteúdo.
type Buffer struct {
	handle Handle
	data   []byte
	width  int
	height int
	format PixelFormat
	pooled bool
}

// Data retorna o bloco de pixels do buffer.
func (b *Buffer) Data() []byte { return b.data }

// Size retorna o tamanho do bloco em bytes.
func (b *Buffer) Size() int { return len(b.data) }

func (b *Buffer) Width() int          { return b.width }
func (b *Buffer) Height() int         { return b.height }
func (b *Buffer) Format() PixelFormat { return b.format }
func (b *Buffer) Handle() Handle      { return b.handle }

// Wrap embrulha dados avulsos em um Buffer que não pertence a pool nenhum.
// Usado por transforms que produzem um payload novo (ex.: compressão);
// devolver um buffer desses a um pool é um no-op.
func Wrap(data []byte, width, height int, format PixelFormat) *Buffer {
	return &Buffer{
		data:   data,
		width:  width,
		height: height,
		format: format,
	}
}
