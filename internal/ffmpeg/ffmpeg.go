// Package ffmpeg provides FFmpeg binary detection and a fluent command
// builder for the cutting, segmenting and burn-in operations the pipeline
// performs.
package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
)

// FindBinary locates a tool binary. Search order: explicit path from
// configuration, CLIPFORGE_<NAME>_BINARY env var, $PATH.
func FindBinary(name, configured string) (string, error) {
	if configured != "" {
		if _, err := os.Stat(configured); err != nil {
			return "", fmt.Errorf("configured %s binary %q: %w", name, configured, err)
		}
		return configured, nil
	}
	envKey := "CLIPFORGE_" + strings.ToUpper(name) + "_BINARY"
	if p := os.Getenv(envKey); p != "" {
		if _, err := os.Stat(p); err != nil {
			return "", fmt.Errorf("%s=%q: %w", envKey, p, err)
		}
		return p, nil
	}
	p, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%s not found in PATH: %w", name, err)
	}
	return p, nil
}

// CommandBuilder builds FFmpeg commands with a fluent API.
type CommandBuilder struct {
	binary     string
	globalArgs []string
	inputArgs  []string
	input      string
	filterArgs []string
	outputArgs []string
	output     string
	logLevel   string
	overwrite  bool
}

// NewCommandBuilder creates a new FFmpeg command builder.
func NewCommandBuilder(ffmpegPath string) *CommandBuilder {
	return &CommandBuilder{
		binary:   ffmpegPath,
		logLevel: "error",
	}
}

// LogLevel sets the FFmpeg log level.
func (b *CommandBuilder) LogLevel(level string) *CommandBuilder {
	b.logLevel = level
	return b
}

// HideBanner hides the FFmpeg banner.
func (b *CommandBuilder) HideBanner() *CommandBuilder {
	b.globalArgs = append(b.globalArgs, "-hide_banner")
	return b
}

// Overwrite enables output file overwriting.
func (b *CommandBuilder) Overwrite() *CommandBuilder {
	b.overwrite = true
	return b
}

// Seek sets the input seek position in seconds. It is placed before -i so
// FFmpeg seeks by keyframe first, which is what clip cutting wants.
func (b *CommandBuilder) Seek(seconds float64) *CommandBuilder {
	b.inputArgs = append(b.inputArgs, "-ss", formatSeconds(seconds))
	return b
}

// Input sets the input source.
func (b *CommandBuilder) Input(input string) *CommandBuilder {
	b.input = input
	return b
}

// InputArgs adds arbitrary input arguments.
func (b *CommandBuilder) InputArgs(args ...string) *CommandBuilder {
	b.inputArgs = append(b.inputArgs, args...)
	return b
}

// Duration limits the output to the given length in seconds.
func (b *CommandBuilder) Duration(seconds float64) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-t", formatSeconds(seconds))
	return b
}

// VideoCodec sets the video codec.
func (b *CommandBuilder) VideoCodec(codec string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-c:v", codec)
	return b
}

// AudioCodec sets the audio codec.
func (b *CommandBuilder) AudioCodec(codec string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-c:a", codec)
	return b
}

// CopyCodecs keeps both streams untouched.
func (b *CommandBuilder) CopyCodecs() *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-c", "copy")
	return b
}

// VideoPreset sets the encoding preset.
func (b *CommandBuilder) VideoPreset(preset string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-preset", preset)
	return b
}

// VideoFilter adds a video filter.
func (b *CommandBuilder) VideoFilter(filter string) *CommandBuilder {
	b.filterArgs = append(b.filterArgs, filter)
	return b
}

// Frames limits the number of output video frames.
func (b *CommandBuilder) Frames(n int) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-frames:v", strconv.Itoa(n))
	return b
}

// SegmentArgs configures the stream segment muxer: fixed-length pieces with
// copied codecs and timestamps reset per piece.
func (b *CommandBuilder) SegmentArgs(segmentSeconds int) *CommandBuilder {
	b.outputArgs = append(b.outputArgs,
		"-f", "segment",
		"-segment_time", strconv.Itoa(segmentSeconds),
		"-reset_timestamps", "1",
		"-avoid_negative_ts", "make_zero",
	)
	return b
}

// OutputArgs adds arbitrary output arguments.
func (b *CommandBuilder) OutputArgs(args ...string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, args...)
	return b
}

// Output sets the output destination.
func (b *CommandBuilder) Output(output string) *CommandBuilder {
	b.output = output
	return b
}

// Build builds the command.
func (b *CommandBuilder) Build() *Command {
	var args []string

	args = append(args, "-loglevel", b.logLevel)
	args = append(args, b.globalArgs...)

	if b.overwrite {
		args = append(args, "-y")
	}

	args = append(args, b.inputArgs...)
	args = append(args, "-i", b.input)

	if len(b.filterArgs) > 0 {
		args = append(args, "-vf", strings.Join(b.filterArgs, ","))
	}

	args = append(args, b.outputArgs...)
	args = append(args, b.output)

	return &Command{
		Binary: b.binary,
		Args:   args,
	}
}

// Command represents a built FFmpeg invocation.
type Command struct {
	Binary string
	Args   []string

	stderrMu    sync.Mutex
	stderrLines []string
}

// String returns the command as a string.
func (c *Command) String() string {
	return c.Binary + " " + strings.Join(c.Args, " ")
}

// Run executes the command and waits for completion. On failure the error
// carries the tail of stderr.
func (c *Command) Run(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, c.Binary, c.Args...)

	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		tail := stderrTail(stderr.String(), 10)
		c.stderrMu.Lock()
		c.stderrLines = tail
		c.stderrMu.Unlock()
		if len(tail) > 0 {
			return fmt.Errorf("ffmpeg failed: %w: %s", err, strings.Join(tail, " | "))
		}
		return fmt.Errorf("ffmpeg failed: %w", err)
	}
	return nil
}

// StderrLines returns the captured stderr tail from the last failed run.
func (c *Command) StderrLines() []string {
	c.stderrMu.Lock()
	defer c.stderrMu.Unlock()
	out := make([]string, len(c.stderrLines))
	copy(out, c.stderrLines)
	return out
}

func stderrTail(s string, n int) []string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) == 1 && lines[0] == "" {
		return nil
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}

// formatSeconds renders a seconds value without trailing zero noise so the
// resulting command line stays readable in logs.
func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
