package stt

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewExecRecorderOverrideMustExist(t *testing.T) {
	_, err := NewExecRecorder("definitely-not-a-real-recorder-binary")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestNewExecRecorderOverrideSplitsArgs(t *testing.T) {
	// "true" exists everywhere and exits immediately with empty stdout.
	r, err := NewExecRecorder("true -ignored -flags")
	require.NoError(t, err)
	assert.Equal(t, "true", r.command)
	assert.Equal(t, []string{"-ignored", "-flags"}, r.args)

	audio, err := r.Record(context.Background())
	require.NoError(t, err)
	assert.Empty(t, audio)
}

func TestExecRecorderCancellation(t *testing.T) {
	r, err := NewExecRecorder("sleep 10")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = r.Record(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWhisperTranscriberRequiresKey(t *testing.T) {
	w := NewWhisperTranscriber("")
	_, err := w.Transcribe(context.Background(), []byte("wav"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

func TestGeminiTranscriberRequiresKey(t *testing.T) {
	g := NewGeminiTranscriber("")
	_, err := g.Transcribe(context.Background(), []byte("wav"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoAPIKey)
}
