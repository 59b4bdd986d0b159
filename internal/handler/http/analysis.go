package http

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/windfall/lecturelens/internal/pipeline"
	"github.com/windfall/lecturelens/internal/validate"
	"github.com/windfall/lecturelens/pkg/response"
)

// maxFormMemory bounds how much of the multipart form is held in memory;
// larger uploads spill to disk inside net/http before validation runs.
const maxFormMemory = 10 << 20

// AnalysisHandler handles the audio-to-document endpoint.
type AnalysisHandler struct {
	log          zerolog.Logger
	orchestrator *pipeline.Orchestrator
}

// NewAnalysisHandler creates a new analysis handler.
func NewAnalysisHandler(log zerolog.Logger, orchestrator *pipeline.Orchestrator) *AnalysisHandler {
	return &AnalysisHandler{
		log:          log,
		orchestrator: orchestrator,
	}
}

// AudioToDocument handles POST /api/v1/audio-to-document.
//
// Request: multipart/form-data with an "audio" file field and an optional
// "syllabus" text field.
// Response: one envelope, success or error, shaped by the pipeline.
func (h *AnalysisHandler) AudioToDocument(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		response.BadRequest(w, "failed to parse multipart form")
		return
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		response.BadRequest(w, "audio file is required")
		return
	}
	defer file.Close()

	syllabus := r.FormValue("syllabus")

	upload := validate.NewUpload(
		header.Filename,
		header.Header.Get("Content-Type"),
		header.Size,
		file,
	)

	env := h.orchestrator.Handle(r.Context(), upload, syllabus)
	response.WriteJSON(w, env)
}
