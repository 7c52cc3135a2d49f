// Package render runs generated scene code through the Manim CLI.
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Aafimalek/prompt-to-animate/internal/entity"
)

const sceneClass = "GenScene"

// Artifact is a rendered video on local disk.
type Artifact struct {
	Path     string
	FileName string
}

type Options struct {
	Python    string
	OutputDir string
	ScriptDir string
	Timeout   time.Duration
}

type Manim struct {
	python    string
	outputDir string
	scriptDir string
	timeout   time.Duration
	log       zerolog.Logger
}

func NewManim(opts Options, log zerolog.Logger) (*Manim, error) {
	if opts.Python == "" {
		opts.Python = "python3"
	}
	out, err := filepath.Abs(opts.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("render: resolve output dir: %w", err)
	}
	if err := os.MkdirAll(out, 0o755); err != nil {
		return nil, fmt.Errorf("render: ensure output dir: %w", err)
	}
	if err := os.MkdirAll(opts.ScriptDir, 0o755); err != nil {
		return nil, fmt.Errorf("render: ensure script dir: %w", err)
	}
	return &Manim{
		python:    opts.Python,
		outputDir: out,
		scriptDir: opts.ScriptDir,
		timeout:   opts.Timeout,
		log:       log,
	}, nil
}

func (m *Manim) OutputDir() string { return m.outputDir }

func qualityFlag(q entity.Quality) string {
	switch q {
	case entity.Quality480p15:
		return "-ql"
	case entity.Quality720p30:
		return "-qm"
	case entity.Quality1080p60:
		return "-qh"
	case entity.Quality4k60:
		return "-qk"
	default:
		return "-qh"
	}
}

// Render writes code to a scene script, runs Manim on it and moves the video
// to <output>/<id>.mp4. A non-zero exit or a missing video is an error that
// carries the tool's output.
func (m *Manim) Render(ctx context.Context, code string, quality entity.Quality) (Artifact, error) {
	id := uuid.NewString()
	sceneName := "scene_" + id
	script := filepath.Join(m.scriptDir, sceneName+".py")
	if err := os.WriteFile(script, []byte(code), 0o644); err != nil {
		return Artifact{}, fmt.Errorf("write scene script: %w", err)
	}
	defer func() {
		_ = os.Remove(script)
	}()

	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	args := []string{"-m", "manim", qualityFlag(quality), "--media_dir", m.outputDir, script, sceneClass}
	cmd := exec.CommandContext(ctx, m.python, args...)
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	start := time.Now()
	err := cmd.Run()
	m.log.Debug().
		Str("script", script).
		Str("quality", string(quality)).
		Int64("duration_ms", time.Since(start).Milliseconds()).
		Msg("manim finished")
	if err != nil {
		var execErr *exec.Error
		if errors.As(err, &execErr) {
			return Artifact{}, fmt.Errorf("manim command not found: %w", err)
		}
		if ctx.Err() != nil {
			return Artifact{}, fmt.Errorf("manim execution timed out: %w", ctx.Err())
		}
		msg := strings.TrimSpace(errBuf.String())
		if msg == "" {
			msg = strings.TrimSpace(outBuf.String())
		}
		if msg == "" {
			msg = "Unknown error"
		}
		return Artifact{}, fmt.Errorf("manim execution failed:\n%s", msg)
	}

	found, err := findVideo(filepath.Join(m.outputDir, "videos", sceneName))
	if err != nil {
		return Artifact{}, err
	}

	name := id + ".mp4"
	final := filepath.Join(m.outputDir, name)
	if err := os.Rename(found, final); err != nil {
		return Artifact{}, fmt.Errorf("move rendered video: %w", err)
	}
	return Artifact{Path: final, FileName: name}, nil
}

// findVideo prefers GenScene.mp4 and falls back to any mp4 under root.
func findVideo(root string) (string, error) {
	var named, first string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".mp4") {
			return nil
		}
		if d.Name() == sceneClass+".mp4" {
			named = path
			return fs.SkipAll
		}
		if first == "" {
			first = path
		}
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("search rendered video: %w", err)
	}
	switch {
	case named != "":
		return named, nil
	case first != "":
		return first, nil
	default:
		return "", errors.New("video file was not generated at the expected path, check manim logs")
	}
}
