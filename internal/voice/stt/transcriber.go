// Package stt provides speech capture and transcription for the voice
// pipeline: an exec-based microphone recorder plus Whisper and Gemini
// transcriber backends.
package stt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"cosmconsole/internal/logger"
)

// ErrNoAPIKey indicates the transcriber's provider credential is missing.
var ErrNoAPIKey = errors.New("transcription API key not configured")

// Recorder captures one utterance from the microphone and returns it as WAV
// bytes. Record blocks until end-of-speech (or ctx cancellation) and returns
// ctx.Err() when cancelled.
type Recorder interface {
	Record(ctx context.Context) ([]byte, error)
}

// Transcriber converts captured audio into text.
type Transcriber interface {
	Name() string
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// recorderCandidates are tried in order when no recorder command is
// configured. sox stops on trailing silence, approximating end-of-speech
// detection; arecord falls back to a fixed capture window.
var recorderCandidates = []struct {
	command string
	args    []string
}{
	{"sox", []string{"-d", "-t", "wav", "-", "silence", "1", "0.1", "3%", "1", "2.0", "3%"}},
	{"arecord", []string{"-f", "S16_LE", "-r", "16000", "-c", "1", "-t", "wav", "-d", "15", "-"}},
	{"rec", []string{"-t", "wav", "-", "silence", "1", "0.1", "3%", "1", "2.0", "3%"}},
}

// ExecRecorder captures audio through an external command writing WAV to
// stdout.
type ExecRecorder struct {
	command string
	args    []string
}

// NewExecRecorder discovers a capture command. An override is split on
// whitespace; its first token must resolve on PATH.
func NewExecRecorder(override string) (*ExecRecorder, error) {
	if override != "" {
		fields := strings.Fields(override)
		if _, err := exec.LookPath(fields[0]); err != nil {
			return nil, fmt.Errorf("configured recorder %q not found: %w", fields[0], err)
		}
		return &ExecRecorder{command: fields[0], args: fields[1:]}, nil
	}
	for _, candidate := range recorderCandidates {
		if _, err := exec.LookPath(candidate.command); err == nil {
			return &ExecRecorder{command: candidate.command, args: candidate.args}, nil
		}
	}
	return nil, fmt.Errorf("no audio recorder found on PATH")
}

// Record runs the capture command and returns its stdout as WAV bytes.
func (r *ExecRecorder) Record(ctx context.Context) ([]byte, error) {
	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, r.command, r.args...)
	cmd.Stdout = &out

	logger.Debug("capture start", "recorder", r.command)
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("capture via %s failed: %w", r.command, err)
	}
	logger.Debug("capture done", "recorder", r.command, "bytes", out.Len())
	return out.Bytes(), nil
}
