package voice

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"cosmconsole/internal/logger"
)

// Player turns synthesized audio bytes into sound. Play blocks until playback
// completes or ctx is cancelled.
type Player interface {
	Play(ctx context.Context, audio []byte) error
}

// playerCandidates are tried in order when no player command is configured.
var playerCandidates = []string{"afplay", "aplay", "ffplay", "mpv", "play"}

// playerArgs maps a player binary to the flags that make it consume a file
// argument quietly.
func playerArgs(command, path string) []string {
	switch command {
	case "ffplay":
		return []string{"-nodisp", "-autoexit", "-loglevel", "quiet", path}
	case "mpv":
		return []string{"--no-video", "--really-quiet", path}
	default:
		return []string{path}
	}
}

// ExecPlayer plays audio through an external command line player. Audio is
// written to a temporary file and handed to the player process; cancelling
// ctx kills the process.
type ExecPlayer struct {
	command string
}

// NewExecPlayer discovers a playback command. The override wins when set;
// otherwise the first candidate found on PATH is used. Returns an error when
// no player is available, at which point callers should fall back to
// NullPlayer.
func NewExecPlayer(override string) (*ExecPlayer, error) {
	if override != "" {
		if _, err := exec.LookPath(override); err != nil {
			return nil, fmt.Errorf("configured player %q not found: %w", override, err)
		}
		return &ExecPlayer{command: override}, nil
	}
	for _, candidate := range playerCandidates {
		if _, err := exec.LookPath(candidate); err == nil {
			return &ExecPlayer{command: candidate}, nil
		}
	}
	return nil, fmt.Errorf("no audio player found on PATH (tried %v)", playerCandidates)
}

// Play writes the audio to a temp file and runs the player on it.
func (p *ExecPlayer) Play(ctx context.Context, audio []byte) error {
	tmp, err := os.CreateTemp("", "cosm-audio-*.mp3")
	if err != nil {
		return fmt.Errorf("failed to stage audio: %w", err)
	}
	path := tmp.Name()
	defer func() { _ = os.Remove(path) }()

	if _, err := tmp.Write(audio); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to stage audio: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to stage audio: %w", err)
	}

	cmd := exec.CommandContext(ctx, p.command, playerArgs(p.command, path)...)
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("playback via %s failed: %w", p.command, err)
	}
	return nil
}

// NullPlayer is the silent fallback used when no playback command exists. It
// logs once per utterance and reports success so the voice flow keeps moving.
type NullPlayer struct{}

// Play discards the audio.
func (NullPlayer) Play(_ context.Context, audio []byte) error {
	logger.Debug("audio playback unavailable, discarding", "bytes", len(audio))
	return nil
}
