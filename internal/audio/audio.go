// Package audio assembles dialogue parts and show music into the final
// episode file with ffmpeg.
package audio

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/TobiSchelling/saintcast/internal/config"
)

// fallbackDuration is used for fade placement when ffprobe cannot read a
// music file.
const fallbackDuration = 10.0

// Runner executes an external command and returns its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	// #nosec G204 -- binary comes from config and arguments are built internally
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("%s: %w: %s", filepath.Base(name), err, lastLines(string(out), 5))
	}
	return out, nil
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}

// Assembler builds the episode audio.
type Assembler struct {
	runner   Runner
	ffmpeg   string
	ffprobe  string
	bitrate  string
	fade     float64
	loudnorm string
	logger   *slog.Logger
}

// NewAssembler creates an Assembler. A nil runner uses ExecRunner.
func NewAssembler(cfg config.Audio, runner Runner, logger *slog.Logger) *Assembler {
	if runner == nil {
		runner = ExecRunner{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	a := &Assembler{
		runner:  runner,
		ffmpeg:  cfg.FFmpeg,
		ffprobe: cfg.FFprobe,
		bitrate: cfg.Bitrate,
		fade:    cfg.FadeSeconds,
		loudnorm: fmt.Sprintf("loudnorm=I=%s:LRA=%s:TP=%s",
			num(cfg.Loudness.Integrated), num(cfg.Loudness.Range), num(cfg.Loudness.TruePeak)),
		logger: logger,
	}
	if a.ffmpeg == "" {
		a.ffmpeg = "ffmpeg"
	}
	if a.ffprobe == "" {
		a.ffprobe = "ffprobe"
	}
	if a.bitrate == "" {
		a.bitrate = "128k"
	}
	return a
}

func num(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Assemble writes the finished episode to out. Parts are concatenated in
// order and loudness-normalized; intro and outro, when non-empty, are faded
// out and wrapped around the dialogue before a final normalization.
// Intermediate files are written next to out.
func (a *Assembler) Assemble(ctx context.Context, parts []string, intro, outro, out string) error {
	if len(parts) == 0 {
		return fmt.Errorf("assembling audio: no dialogue parts")
	}
	workDir := filepath.Dir(out)

	raw := parts[0]
	if len(parts) > 1 {
		raw = filepath.Join(workDir, "dialogue_raw.mp3")
		a.logger.Info("concatenating dialogue parts", "parts", len(parts))
		if err := a.ffmpegRun(ctx, parts, fmt.Sprintf("concat=n=%d:v=0:a=1[dialogue]", len(parts)), "[dialogue]", raw); err != nil {
			return fmt.Errorf("concatenating dialogue: %w", err)
		}
	}

	dialogue := filepath.Join(workDir, "dialogue.mp3")
	if err := a.ffmpegRun(ctx, []string{raw}, "[0:a]"+a.loudnorm+"[final]", "[final]", dialogue); err != nil {
		return fmt.Errorf("normalizing dialogue: %w", err)
	}

	inputs, graph := a.mixGraph(ctx, dialogue, intro, outro)
	a.logger.Info("mixing episode audio", "intro", intro != "", "outro", outro != "")
	if err := a.ffmpegRun(ctx, inputs, graph, "[final]", out); err != nil {
		return fmt.Errorf("mixing episode: %w", err)
	}
	return nil
}

// mixGraph returns the ffmpeg inputs and filter graph for whichever music
// files are present.
func (a *Assembler) mixGraph(ctx context.Context, dialogue, intro, outro string) ([]string, string) {
	final := "[mixed]" + a.loudnorm + "[final]"
	switch {
	case intro != "" && outro != "":
		return []string{intro, dialogue, outro},
			a.fadeOut(ctx, 0, intro, "intro_faded") +
				a.fadeOut(ctx, 2, outro, "outro_faded") +
				"[intro_faded][1:a][outro_faded]concat=n=3:v=0:a=1[mixed];" + final
	case intro != "":
		return []string{intro, dialogue},
			a.fadeOut(ctx, 0, intro, "intro_faded") +
				"[intro_faded][1:a]concat=n=2:v=0:a=1[mixed];" + final
	case outro != "":
		return []string{dialogue, outro},
			a.fadeOut(ctx, 1, outro, "outro_faded") +
				"[0:a][outro_faded]concat=n=2:v=0:a=1[mixed];" + final
	default:
		return []string{dialogue}, "[0:a]" + a.loudnorm + "[final]"
	}
}

func (a *Assembler) fadeOut(ctx context.Context, input int, path, label string) string {
	start := max(0, a.Duration(ctx, path)-a.fade)
	return fmt.Sprintf("[%d:a]afade=t=out:st=%s:d=%s[%s];", input, num(start), num(a.fade), label)
}

func (a *Assembler) ffmpegRun(ctx context.Context, inputs []string, graph, mapLabel, out string) error {
	args := []string{"-y", "-hide_banner", "-loglevel", "error"}
	for _, in := range inputs {
		args = append(args, "-i", in)
	}
	args = append(args,
		"-filter_complex", graph,
		"-map", mapLabel,
		"-c:a", "libmp3lame",
		"-b:a", a.bitrate,
		out,
	)
	_, err := a.runner.Run(ctx, a.ffmpeg, args...)
	return err
}

// ProbeDuration returns the duration of path in seconds.
func (a *Assembler) ProbeDuration(ctx context.Context, path string) (float64, error) {
	out, err := a.runner.Run(ctx, a.ffprobe, "-v", "quiet", "-show_entries", "format=duration", "-of", "csv=p=0", path)
	if err != nil {
		return 0, err
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe parse %q: %w", strings.TrimSpace(string(out)), err)
	}
	return d, nil
}

// Duration is ProbeDuration with a 10 second fallback.
func (a *Assembler) Duration(ctx context.Context, path string) float64 {
	d, err := a.ProbeDuration(ctx, path)
	if err != nil {
		a.logger.Warn("ffprobe failed, assuming default duration", "path", path, "error", err)
		return fallbackDuration
	}
	return d
}
