package pipeline

import (
	"bytes"
	"context"
	stderrors "errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windfall/lecturelens/internal/filestore"
	"github.com/windfall/lecturelens/internal/resilience"
	"github.com/windfall/lecturelens/internal/service"
	"github.com/windfall/lecturelens/internal/telemetry"
	"github.com/windfall/lecturelens/internal/validate"
)

type stubTranscriber struct {
	calls      int
	text       string
	err        error
	sawTempMap []bool // whether the temp file existed when the engine ran
}

func (s *stubTranscriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	s.calls++
	_, statErr := os.Stat(audioPath)
	s.sawTempMap = append(s.sawTempMap, statErr == nil)
	return s.text, s.err
}

type stubAnalyzer struct {
	analyzeCalls int
	scoreCalls   int
	analysis     string
	analysisErr  error
	score        service.ScoreResult
	scoreErr     error
}

func (s *stubAnalyzer) Analyze(ctx context.Context, transcript, syllabus string) (string, error) {
	s.analyzeCalls++
	return s.analysis, s.analysisErr
}

func (s *stubAnalyzer) Score(ctx context.Context, analysis, transcript, syllabus string) (service.ScoreResult, error) {
	s.scoreCalls++
	return s.score, s.scoreErr
}

type testRig struct {
	orch  *Orchestrator
	store *filestore.Store
	tel   *telemetry.Recorder
}

func newTestRig(t *testing.T, maxBytes int64, trans TranscriptionEngine, analysis AnalysisEngine) *testRig {
	t.Helper()

	store, err := filestore.New(filepath.Join(t.TempDir(), "uploads"), zerolog.Nop())
	require.NoError(t, err)

	tel := telemetry.NewRecorder(zerolog.Nop(), prometheus.NewRegistry())
	caller := resilience.NewCaller(resilience.Config{
		CallTimeout:      time.Second,
		MaxAttempts:      2,
		BackoffBase:      time.Millisecond,
		FailureThreshold: 100,
		Cooldown:         time.Minute,
		Window:           time.Minute,
	}, zerolog.Nop(), tel)

	validator := validate.New(maxBytes, true)
	return &testRig{
		orch:  NewOrchestrator(validator, store, caller, tel, trans, analysis),
		store: store,
		tel:   tel,
	}
}

func wavUpload(size int) validate.Upload {
	content := make([]byte, size)
	copy(content, "RIFF")
	copy(content[8:], "WAVE")
	return validate.NewUpload("lecture.wav", "audio/wav", int64(size), bytes.NewReader(content))
}

func tempFileCount(t *testing.T, store *filestore.Store) int {
	t.Helper()
	entries, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	return len(entries)
}

func intPtr(v int) *int { return &v }

func TestHandle_Success(t *testing.T) {
	trans := &stubTranscriber{text: "hello world"}
	analysis := &stubAnalyzer{
		analysis: "ok",
		score:    service.ScoreResult{Score: intPtr(80), Reasoning: "clear objectives"},
	}
	rig := newTestRig(t, 4<<20, trans, analysis)

	env := rig.orch.Handle(context.Background(), wavUpload(2<<20), "")

	require.True(t, env.IsSuccess())
	_, err := uuid.Parse(env.RequestID)
	require.NoError(t, err)

	data, ok := env.Data.(*AnalysisData)
	require.True(t, ok)
	assert.Equal(t, "ok", data.Analysis)
	assert.Equal(t, 80, data.PedagogicalScore)
	assert.Equal(t, "clear objectives", data.ScoreReasoning)
	assert.GreaterOrEqual(t, data.ProcessingTimeSeconds, 0.0)

	// The temp file existed while the engine ran and is gone afterwards.
	require.Len(t, trans.sawTempMap, 1)
	assert.True(t, trans.sawTempMap[0])
	assert.Zero(t, tempFileCount(t, rig.store))

	s := rig.tel.Snapshot()
	assert.Equal(t, uint64(1), s.Total)
	assert.Equal(t, uint64(1), s.Succeeded)
}

func TestHandle_OversizedUpload(t *testing.T) {
	trans := &stubTranscriber{text: "hello"}
	analysis := &stubAnalyzer{analysis: "ok"}
	rig := newTestRig(t, 1024, trans, analysis)

	env := rig.orch.Handle(context.Background(), wavUpload(2048), "")

	require.False(t, env.IsSuccess())
	assert.Equal(t, http.StatusBadRequest, env.StatusCode)
	assert.Contains(t, env.Detail, "exceeds maximum")

	// No engine calls, no temp file.
	assert.Zero(t, trans.calls)
	assert.Zero(t, analysis.analyzeCalls)
	assert.Zero(t, tempFileCount(t, rig.store))

	// Telemetry is still recorded exactly once, as a failure.
	s := rig.tel.Snapshot()
	assert.Equal(t, uint64(1), s.Total)
	assert.Zero(t, s.Succeeded)
}

func TestHandle_UnsupportedContentType(t *testing.T) {
	rig := newTestRig(t, 1<<20, &stubTranscriber{}, &stubAnalyzer{})

	body := []byte("just text")
	upload := validate.NewUpload("notes.txt", "text/plain", int64(len(body)), bytes.NewReader(body))
	env := rig.orch.Handle(context.Background(), upload, "")

	require.False(t, env.IsSuccess())
	assert.Equal(t, http.StatusBadRequest, env.StatusCode)
	assert.Contains(t, env.Detail, "unsupported content type")
}

func TestHandle_TranscriptionFailure(t *testing.T) {
	trans := &stubTranscriber{err: stderrors.New("whisper unavailable")}
	analysis := &stubAnalyzer{analysis: "ok"}
	rig := newTestRig(t, 4<<20, trans, analysis)

	env := rig.orch.Handle(context.Background(), wavUpload(4096), "")

	require.False(t, env.IsSuccess())
	assert.Equal(t, http.StatusBadGateway, env.StatusCode)
	assert.Contains(t, env.Detail, "External service error")
	// Internal cause detail stays in logs, the engine id is enough here.
	assert.Contains(t, env.Detail, "transcription")

	// Retried to the attempt budget, later stages never ran.
	assert.Equal(t, 2, trans.calls)
	assert.Zero(t, analysis.analyzeCalls)

	// Temp file still destroyed, telemetry still recorded as failure.
	assert.Zero(t, tempFileCount(t, rig.store))
	s := rig.tel.Snapshot()
	assert.Equal(t, uint64(1), s.Total)
	assert.Zero(t, s.Succeeded)
}

func TestHandle_ScoringFailure(t *testing.T) {
	trans := &stubTranscriber{text: "hello world"}
	analysis := &stubAnalyzer{analysis: "ok", scoreErr: stderrors.New("scoring down")}
	rig := newTestRig(t, 4<<20, trans, analysis)

	env := rig.orch.Handle(context.Background(), wavUpload(4096), "")

	require.False(t, env.IsSuccess())
	assert.Equal(t, http.StatusBadGateway, env.StatusCode)
	assert.Zero(t, tempFileCount(t, rig.store))
}

func TestHandle_ScoreDefaults(t *testing.T) {
	trans := &stubTranscriber{text: "hello world"}
	analysis := &stubAnalyzer{analysis: "ok", score: service.ScoreResult{}}
	rig := newTestRig(t, 4<<20, trans, analysis)

	env := rig.orch.Handle(context.Background(), wavUpload(4096), "")

	require.True(t, env.IsSuccess())
	data := env.Data.(*AnalysisData)
	assert.Equal(t, 50, data.PedagogicalScore)
	assert.Equal(t, "Score generated", data.ScoreReasoning)
	assert.NotEmpty(t, data.ScoreReasoning)
}

func TestHandle_PartialScoreKeepsProvidedFields(t *testing.T) {
	trans := &stubTranscriber{text: "hello world"}
	analysis := &stubAnalyzer{analysis: "ok", score: service.ScoreResult{Reasoning: "engine explained itself"}}
	rig := newTestRig(t, 4<<20, trans, analysis)

	env := rig.orch.Handle(context.Background(), wavUpload(4096), "")

	require.True(t, env.IsSuccess())
	data := env.Data.(*AnalysisData)
	assert.Equal(t, 50, data.PedagogicalScore)
	assert.Equal(t, "engine explained itself", data.ScoreReasoning)
}

func TestHandle_TelemetryRecordedOncePerRequest(t *testing.T) {
	trans := &stubTranscriber{text: "hello world"}
	analysis := &stubAnalyzer{
		analysis: "ok",
		score:    service.ScoreResult{Score: intPtr(70), Reasoning: "fine"},
	}
	rig := newTestRig(t, 4<<20, trans, analysis)

	env1 := rig.orch.Handle(context.Background(), wavUpload(4096), "syllabus text")
	env2 := rig.orch.Handle(context.Background(), wavUpload(2048), "")
	require.True(t, env1.IsSuccess())
	require.True(t, env2.IsSuccess())
	assert.NotEqual(t, env1.RequestID, env2.RequestID)

	s := rig.tel.Snapshot()
	assert.Equal(t, uint64(2), s.Total)
	assert.Equal(t, uint64(2), s.Succeeded)
	assert.InDelta(t, 1.0, s.SuccessRatio, 1e-9)
}
