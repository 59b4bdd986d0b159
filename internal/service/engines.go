package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/windfall/lecturelens/internal/errors"
)

// ChatClient is the completion surface shared by the AI providers.
type ChatClient interface {
	Chat(ctx context.Context, message string) (string, error)
}

// Transcriber converts an audio file into transcript text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// ScoreResult is the scoring engine's reply. Score is a pointer so a
// missing field survives deserialization and can be defaulted downstream.
type ScoreResult struct {
	Score     *int   `json:"score"`
	Reasoning string `json:"reasoning"`
}

// AnalysisService implements the three external engine contracts:
// transcription, pedagogical analysis, and scoring.
type AnalysisService struct {
	provider    string
	openai      ChatClient
	gemini      ChatClient
	transcriber Transcriber
}

// NewAnalysisService creates the engine service. provider selects which
// chat client backs the analysis and scoring engines.
func NewAnalysisService(transcriber Transcriber, openaiClient, geminiClient ChatClient, provider string) *AnalysisService {
	return &AnalysisService{
		provider:    provider,
		openai:      openaiClient,
		gemini:      geminiClient,
		transcriber: transcriber,
	}
}

// Transcribe converts the audio file at audioPath into plain text.
func (s *AnalysisService) Transcribe(ctx context.Context, audioPath string) (string, error) {
	if s.transcriber == nil {
		return "", errors.New(errors.ErrExternal, "transcription engine not configured")
	}
	return s.transcriber.Transcribe(ctx, audioPath)
}

// complete routes a prompt to the configured provider.
func (s *AnalysisService) complete(ctx context.Context, prompt string) (string, error) {
	switch s.provider {
	case "gemini":
		if s.gemini == nil {
			return "", errors.New(errors.ErrExternal, "Gemini client not configured")
		}
		return s.gemini.Chat(ctx, prompt)

	case "openai":
		if s.openai == nil {
			return "", errors.New(errors.ErrExternal, "OpenAI client not configured")
		}
		return s.openai.Chat(ctx, prompt)

	default:
		// Default to OpenAI if available, otherwise Gemini
		if s.openai != nil {
			return s.openai.Chat(ctx, prompt)
		}
		if s.gemini != nil {
			return s.gemini.Chat(ctx, prompt)
		}
		return "", errors.New(errors.ErrExternal, "no AI provider configured")
	}
}

// Analyze derives a structured pedagogical analysis from the transcript
// and optional syllabus.
func (s *AnalysisService) Analyze(ctx context.Context, transcript, syllabus string) (string, error) {
	if syllabus == "" {
		syllabus = "(no syllabus provided)"
	}

	prompt := fmt.Sprintf(`
You are an instructional design reviewer.
Analyze the lecture transcript below and produce a structured pedagogical analysis.

Cover these sections, each with concrete observations from the transcript:
- Learning Objectives: what the lecture sets out to teach, stated or implied
- Structure and Pacing: how the material is sequenced and whether the pacing supports learning
- Engagement: questions, examples, activities, and other engagement techniques used
- Syllabus Alignment: how the lecture content maps onto the provided syllabus

Transcript:
%s

Syllabus:
%s
`, transcript, syllabus)

	return s.complete(ctx, prompt)
}

// Score rates the lecture 0-100 given the analysis, transcript and
// syllabus. Fields missing from the engine's reply stay unset; defaults
// are applied by the pipeline, not here.
func (s *AnalysisService) Score(ctx context.Context, analysis, transcript, syllabus string) (ScoreResult, error) {
	if syllabus == "" {
		syllabus = "(no syllabus provided)"
	}

	prompt := fmt.Sprintf(`
You are grading the pedagogical quality of a lecture.
You are given a pedagogical analysis, the lecture transcript, and the course syllabus.

Rate the lecture from 0 to 100 and explain the rating in one or two sentences.

Output STRICTLY in raw JSON format (no markdown backticks).
Structure the JSON to match the following schema:
{
  "score": <integer 0-100>,
  "reasoning": "<one or two sentences>"
}

Analysis:
%s

Transcript:
%s

Syllabus:
%s
`, analysis, transcript, syllabus)

	respStr, err := s.complete(ctx, prompt)
	if err != nil {
		return ScoreResult{}, err
	}

	cleanResp := strings.TrimSpace(respStr)
	cleanResp = strings.TrimPrefix(cleanResp, "```json")
	cleanResp = strings.TrimPrefix(cleanResp, "```")
	cleanResp = strings.TrimSuffix(cleanResp, "```")

	var result ScoreResult
	if err := json.Unmarshal([]byte(cleanResp), &result); err != nil {
		return ScoreResult{}, fmt.Errorf("failed to parse scoring response: %w", err)
	}

	return result, nil
}
