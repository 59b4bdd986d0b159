package pipeline

import (
	"context"
	stderrors "errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/windfall/lecturelens/internal/errors"
	"github.com/windfall/lecturelens/internal/filestore"
	"github.com/windfall/lecturelens/internal/resilience"
	"github.com/windfall/lecturelens/internal/service"
	"github.com/windfall/lecturelens/internal/telemetry"
	"github.com/windfall/lecturelens/internal/validate"
	"github.com/windfall/lecturelens/pkg/response"
)

// Defaults applied when the scoring engine returns partial data. Part of
// the response contract, not incidental.
const (
	defaultScore     = 50
	defaultReasoning = "Score generated"
)

// TranscriptionEngine converts an audio file into transcript text.
type TranscriptionEngine interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// AnalysisEngine derives the pedagogical analysis and score.
type AnalysisEngine interface {
	Analyze(ctx context.Context, transcript, syllabus string) (string, error)
	Score(ctx context.Context, analysis, transcript, syllabus string) (service.ScoreResult, error)
}

// AnalysisData is the payload of a success envelope.
type AnalysisData struct {
	Analysis              string  `json:"analysis"`
	PedagogicalScore      int     `json:"pedagogical_score"`
	ScoreReasoning        string  `json:"score_reasoning"`
	ProcessingTimeSeconds float64 `json:"processing_time_seconds"`
}

// Orchestrator runs the analysis pipeline: validate, persist, transcribe,
// analyze, score, respond. It is the only layer that maps failures to
// response envelopes, and its cleanup phase (temp file destruction,
// telemetry) runs on every exit path exactly once.
type Orchestrator struct {
	validator     *validate.Validator
	store         *filestore.Store
	caller        *resilience.Caller
	tel           *telemetry.Recorder
	transcription TranscriptionEngine
	analysis      AnalysisEngine
}

// NewOrchestrator wires the pipeline together.
func NewOrchestrator(
	validator *validate.Validator,
	store *filestore.Store,
	caller *resilience.Caller,
	tel *telemetry.Recorder,
	transcription TranscriptionEngine,
	analysis AnalysisEngine,
) *Orchestrator {
	return &Orchestrator{
		validator:     validator,
		store:         store,
		caller:        caller,
		tel:           tel,
		transcription: transcription,
		analysis:      analysis,
	}
}

// Handle processes one upload end to end and returns exactly one
// envelope. Stages are strictly sequential; the first failure
// short-circuits the rest but never the deferred cleanup.
func (o *Orchestrator) Handle(ctx context.Context, upload validate.Upload, syllabus string) *response.Envelope {
	requestID := uuid.NewString()
	start := time.Now()
	success := false

	var handle *filestore.Handle

	defer func() {
		o.store.Destroy(handle)

		elapsed := time.Since(start)
		o.tel.RecordRequest(elapsed, success, requestID)
		o.tel.Info(requestID).
			Bool("success", success).
			Str("total_time", fmt.Sprintf("%.2fs", elapsed.Seconds())).
			Msg("Request completed")
	}()

	o.tel.Info(requestID).
		Str("filename", upload.Filename).
		Int64("size_bytes", upload.Size).
		Msg("Received analysis request")

	if err := o.validator.Validate(upload); err != nil {
		o.tel.Error(requestID).Err(err).Msg("Validation failed")
		return o.failure(requestID, err)
	}
	o.tel.Info(requestID).Msg("File validation passed")

	var err error
	handle, err = o.store.Create()
	if err != nil {
		return o.failure(requestID, errors.InternalWrap("failed to create temp file", err))
	}
	written, err := handle.Write(upload.Body)
	if err != nil {
		return o.failure(requestID, errors.InternalWrap("failed to persist upload", err))
	}
	o.tel.Info(requestID).Int64("bytes_written", written).Msg("File saved temporarily")

	transcript, err := resilience.Call(ctx, o.caller, "transcription", func(ctx context.Context) (string, error) {
		return o.transcription.Transcribe(ctx, handle.Path())
	})
	if err != nil {
		return o.failure(requestID, err)
	}
	o.tel.Info(requestID).
		Str("transcript_preview", telemetry.Sanitize(transcript)).
		Msg("Transcription completed")

	analysis, err := resilience.Call(ctx, o.caller, "analysis", func(ctx context.Context) (string, error) {
		return o.analysis.Analyze(ctx, transcript, syllabus)
	})
	if err != nil {
		return o.failure(requestID, err)
	}
	o.tel.Info(requestID).
		Str("analysis_preview", telemetry.Sanitize(analysis)).
		Msg("Analysis completed")

	scoreData, err := resilience.Call(ctx, o.caller, "scoring", func(ctx context.Context) (service.ScoreResult, error) {
		return o.analysis.Score(ctx, analysis, transcript, syllabus)
	})
	if err != nil {
		return o.failure(requestID, err)
	}

	score, reasoning := applyScoreDefaults(scoreData)
	o.tel.Info(requestID).Int("score", score).Msg("Scoring completed")

	success = true
	return response.Success(requestID, &AnalysisData{
		Analysis:              analysis,
		PedagogicalScore:      score,
		ScoreReasoning:        reasoning,
		ProcessingTimeSeconds: round2(time.Since(start).Seconds()),
	})
}

// failure maps a typed error to its envelope. Internal causes are logged
// here and never surfaced verbatim to the caller.
func (o *Orchestrator) failure(requestID string, err error) *response.Envelope {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		switch appErr.Code {
		case errors.ErrValidation:
			return response.Failure(http.StatusBadRequest, appErr.Message)
		case errors.ErrExternal, errors.ErrTimeout, errors.ErrCircuitOpen, errors.ErrEngineRejected:
			o.tel.Error(requestID).Err(err).Msg("External engine error")
			return response.Failure(http.StatusBadGateway, "External service error: "+appErr.Message)
		}
	}

	o.tel.Error(requestID).Err(err).Msg("Unexpected error")
	return response.Failure(http.StatusInternalServerError, "Internal server error")
}

// applyScoreDefaults fills in the contractual defaults for fields the
// scoring engine omitted.
func applyScoreDefaults(r service.ScoreResult) (int, string) {
	score := defaultScore
	if r.Score != nil {
		score = *r.Score
	}
	reasoning := r.Reasoning
	if reasoning == "" {
		reasoning = defaultReasoning
	}
	return score, reasoning
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
