package framepool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecorderHitRate(t *testing.T) {
	r := newRecorder()

	for i := 0; i < 10; i++ {
		r.recordRequest("cam1")
	}
	for i := 0; i < 3; i++ {
		r.recordMiss("cam1")
	}

	st := r.snapshot()["cam1"]
	assert.Equal(t, int64(10), st.Requested)
	assert.Equal(t, int64(3), st.Missed)
	assert.InDelta(t, 0.7, st.HitRate, 0.0001)
}

func TestRecorderHitRateZeroRequests(t *testing.T) {
	r := newRecorder()

	// Contadores existem mas nenhuma requisição: hit rate 0, não NaN
	r.recordReturn("cam1")

	st := r.snapshot()["cam1"]
	assert.Equal(t, int64(0), st.Requested)
	assert.Equal(t, float64(0), st.HitRate)
}

func TestRecorderEmergencyFreedAccumulates(t *testing.T) {
	r := newRecorder()

	r.recordEmergencyFreed("cam1", 3)
	r.recordEmergencyFreed("cam1", 2)

	assert.Equal(t, int64(5), r.snapshot()["cam1"].EmergencyFreed)
}

func TestRecorderSnapshotIsolation(t *testing.T) {
	r := newRecorder()
	r.recordRequest("cam1")

	snap := r.snapshot()
	snap["cam1"] = StreamStats{Requested: 999}
	snap["cam2"] = StreamStats{}

	// Mutação do snapshot não vaza para os contadores vivos
	again := r.snapshot()
	assert.Equal(t, int64(1), again["cam1"].Requested)
	_, exists := again["cam2"]
	assert.False(t, exists)
}

func TestRecorderReset(t *testing.T) {
	r := newRecorder()
	r.recordRequest("cam1")
	r.recordMiss("cam2")

	r.reset()

	assert.Empty(t, r.snapshot())
}

func TestStreamStatsString(t *testing.T) {
	st := StreamStats{Requested: 10, Missed: 3, Returned: 7, EmergencyFreed: 5, HitRate: 0.7}

	s := st.String()
	assert.Contains(t, s, "Requested: 10")
	assert.Contains(t, s, "Missed: 3")
	assert.Contains(t, s, "70.00%")
}

func TestParsePixelFormat(t *testing.T) {
	tests := []struct {
		in       string
		expected PixelFormat
	}{
		{"bgra", FormatBGRA},
		{"BGRA", FormatBGRA},
		{"nv12", FormatNV12},
		{"yuy2", FormatYUY2},
		{"gray8", FormatGray8},
		{"", FormatBGRA},
		{"desconhecido", FormatBGRA},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, ParsePixelFormat(tt.in), "entrada %q", tt.in)
	}
}

func TestWrapBuffer(t *testing.T) {
	data := make([]byte, 64)
	b := Wrap(data, 4, 4, FormatBGRA)

	assert.Equal(t, 64, b.Size())
	assert.Equal(t, 4, b.Width())
	assert.Equal(t, 4, b.Height())
	assert.Equal(t, FormatBGRA, b.Format())
}
