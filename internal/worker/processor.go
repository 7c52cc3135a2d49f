package worker

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/Aafimalek/prompt-to-animate/internal/collaborator/render"
	"github.com/Aafimalek/prompt-to-animate/internal/entity"
	"github.com/Aafimalek/prompt-to-animate/internal/service"
)

type Generator interface {
	Generate(ctx context.Context, prompt string, length entity.Length) (string, error)
}

type Renderer interface {
	Render(ctx context.Context, code string, quality entity.Quality) (render.Artifact, error)
}

// Uploader publishes a local video and resolves a viewer URL for its key.
type Uploader interface {
	Upload(ctx context.Context, localPath string) (string, error)
	URL(ctx context.Context, key string) (string, error)
}

// LocalURLer builds the fallback URL for a file left in the render output.
type LocalURLer interface {
	URL(fileName string) string
}

type HistoryStore interface {
	Save(ctx context.Context, g entity.Generation) (string, error)
}

type QuotaConsumer interface {
	Consume(ctx context.Context, userID string) error
}

type Checkpointer interface {
	Checkpoint(ctx context.Context, jobID string, p entity.Progress) error
}

type Deps struct {
	Progress  Checkpointer
	Generator Generator
	Renderer  Renderer
	Uploader  Uploader // nil when object storage is not configured
	Local     LocalURLer
	History   HistoryStore
	Quota     QuotaConsumer
}

// Processor drives one job through
// RECEIVED -> CODE_READY -> RENDERING -> UPLOADING -> COMPLETE,
// or to FAILED from any of them. Every checkpoint is written before the
// work of its state starts.
type Processor struct {
	d   Deps
	log zerolog.Logger
}

const (
	msgInternal   = "Something went wrong while processing your job. Please try again."
	finalAttempts = 3
	finalBackoff  = 100 * time.Millisecond
)

func NewProcessor(d Deps, log zerolog.Logger) *Processor {
	return &Processor{d: d, log: log}
}

func (p *Processor) Process(ctx context.Context, job *entity.Job) error {
	start := time.Now()
	log := p.log.With().Str("job_id", job.ID).Str("user_id", job.UserID).Logger()
	log.Info().Str("length", string(job.Length)).Str("quality", string(job.Quality)).Msg("job received")

	final, err := p.run(ctx, job, log)
	if err == nil {
		log.Info().
			Str("status", "complete").
			Bool("degraded", final.Degraded).
			Int64("duration_ms", time.Since(start).Milliseconds()).
			Msg("job finished")
		return nil
	}
	if errors.Is(err, service.ErrTerminal) {
		log.Warn().Msg("progress already terminal, abandoning job")
		return err
	}

	msg := entity.UserMessage(err)
	if cerr := p.d.Progress.Checkpoint(ctx, job.ID, entity.FailedProgress(msg)); cerr != nil && !errors.Is(cerr, service.ErrTerminal) {
		log.Error().Err(cerr).Msg("write failure checkpoint")
	}
	log.Error().
		Str("status", "error").
		Str("kind", string(entity.KindOf(err))).
		Int64("duration_ms", time.Since(start).Milliseconds()).
		Str("error", msg).
		Err(err).
		Msg("job failed")
	return err
}

func (p *Processor) run(ctx context.Context, job *entity.Job, log zerolog.Logger) (entity.Progress, error) {
	// RECEIVED
	if err := p.checkpoint(ctx, job.ID, entity.StepAnalyzing, "analyzing", "Analyzing your prompt..."); err != nil {
		return entity.Progress{}, err
	}
	if err := p.checkpoint(ctx, job.ID, entity.StepGenerating, "generating", "Generating Manim code..."); err != nil {
		return entity.Progress{}, err
	}
	code, err := p.d.Generator.Generate(ctx, job.Prompt, job.Length)
	if err != nil {
		return entity.Progress{}, entity.WrapError(entity.KindCollaboratorFailure, "", err)
	}

	// CODE_READY
	if err := p.checkpoint(ctx, job.ID, entity.StepCodeReady, "code_ready", "Code generated successfully!"); err != nil {
		return entity.Progress{}, err
	}

	// RENDERING
	if err := p.checkpoint(ctx, job.ID, entity.StepRendering, "rendering", "Rendering animation frames..."); err != nil {
		return entity.Progress{}, err
	}
	art, err := p.d.Renderer.Render(ctx, code, job.Quality)
	if err != nil {
		return entity.Progress{}, entity.WrapError(entity.KindCollaboratorFailure, "", err)
	}

	// UPLOADING
	if err := p.checkpoint(ctx, job.ID, entity.StepFinalizing, "finalizing", "Uploading to cloud storage..."); err != nil {
		return entity.Progress{}, err
	}
	videoURL, key, degraded := p.publish(ctx, art, log)

	// COMPLETE
	gen := entity.Generation{
		UserID:     job.UserID,
		JobID:      job.ID,
		Prompt:     job.Prompt,
		Length:     job.Length,
		VideoURL:   videoURL,
		StorageKey: key,
		Code:       code,
	}
	chatID, err := p.d.History.Save(ctx, gen)
	if err != nil {
		log.Warn().Err(err).Msg("save history failed")
	}

	final := entity.Progress{
		Step:     entity.StepComplete,
		Status:   "complete",
		Message:  "Video ready!",
		VideoURL: videoURL,
		Code:     code,
		ChatID:   chatID,
		Degraded: degraded,
	}
	if err := p.complete(ctx, job.ID, final, log); err != nil {
		return final, err
	}

	// quota is only spent once the success record is stored
	if err := p.d.Quota.Consume(ctx, job.UserID); err != nil {
		log.Error().Err(err).Msg("consume quota failed")
	}
	return final, nil
}

// complete writes the success record, retrying transient store errors.
func (p *Processor) complete(ctx context.Context, jobID string, final entity.Progress, log zerolog.Logger) error {
	var err error
	for attempt := 1; attempt <= finalAttempts; attempt++ {
		err = p.d.Progress.Checkpoint(ctx, jobID, final)
		if err == nil || errors.Is(err, service.ErrTerminal) {
			return err
		}
		log.Warn().Err(err).Int("attempt", attempt).Msg("write complete checkpoint")
		if attempt == finalAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return entity.WrapError(entity.KindInfrastructureFailure, msgInternal, ctx.Err())
		case <-time.After(finalBackoff * time.Duration(attempt)):
		}
	}
	return entity.WrapError(entity.KindInfrastructureFailure, msgInternal, err)
}

// publish uploads the artifact. Any upload error falls back to the local URL
// and the job still completes.
func (p *Processor) publish(ctx context.Context, art render.Artifact, log zerolog.Logger) (videoURL, key string, degraded bool) {
	if p.d.Uploader == nil {
		return p.d.Local.URL(art.FileName), "", false
	}

	key, err := p.d.Uploader.Upload(ctx, art.Path)
	if err == nil {
		var u string
		if u, err = p.d.Uploader.URL(ctx, key); err == nil {
			if rmErr := os.Remove(art.Path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				log.Warn().Err(rmErr).Str("path", art.Path).Msg("remove local video")
			}
			return u, key, false
		}
	}
	log.Warn().Err(err).Msg("upload failed, serving local file")
	return p.d.Local.URL(art.FileName), "", true
}

func (p *Processor) checkpoint(ctx context.Context, jobID string, step int, status, msg string) error {
	err := p.d.Progress.Checkpoint(ctx, jobID, entity.Progress{Step: step, Status: status, Message: msg})
	if err == nil || errors.Is(err, service.ErrTerminal) {
		return err
	}
	return entity.WrapError(entity.KindInfrastructureFailure, msgInternal, err)
}
