// Package audio delivers synthesized PCM to something that can be heard or
// inspected later.
package audio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
)

// Format describes raw little-endian PCM.
type Format struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// PCM16Mono16k is what both speech backends produce.
var PCM16Mono16k = Format{SampleRate: 16000, Channels: 1, BitDepth: 16}

// BytesPerSecond reports the PCM data rate.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * f.BitDepth / 8
}

// Sink plays one utterance. Play returns once playback has finished, which
// the speech player treats as the utterance completion event.
type Sink interface {
	Play(ctx context.Context, pcm io.Reader, format Format) error
}

// Discard drains audio without playing it.
type Discard struct{}

// Play consumes pcm.
func (Discard) Play(ctx context.Context, pcm io.Reader, _ Format) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := io.Copy(io.Discard, pcm)
	return err
}

// Command pipes PCM into an external player such as
// `aplay -q -t raw -f S16_LE -r 16000 -c 1`. The process is killed when the
// context is cancelled.
type Command struct {
	name string
	args []string
	log  *slog.Logger
}

// NewCommand parses a whitespace-separated command line.
func NewCommand(commandLine string, logger *slog.Logger) (*Command, error) {
	fields := strings.Fields(commandLine)
	if len(fields) == 0 {
		return nil, fmt.Errorf("audio: player command is empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Command{
		name: fields[0],
		args: fields[1:],
		log:  logger.With("component", "audio", "player", fields[0]),
	}, nil
}

// Play runs the player with pcm on stdin and waits for it to exit.
func (c *Command) Play(ctx context.Context, pcm io.Reader, format Format) error {
	cmd := exec.CommandContext(ctx, c.name, c.args...)
	cmd.Stdin = pcm
	var stderr strings.Builder
	cmd.Stderr = &stderr

	c.log.Debug("starting player", "sample_rate", format.SampleRate, "channels", format.Channels)
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return fmt.Errorf("audio: player %s: %w: %s", c.name, err, msg)
		}
		return fmt.Errorf("audio: player %s: %w", c.name, err)
	}
	return nil
}
