// Package main is the cosm console entry point: a terminal chat frontend for
// the multi-agent market-opportunity backend, with optional voice input and
// spoken replies.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/abiosoft/ishell/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"cosmconsole/internal/agentapi"
	"cosmconsole/internal/config"
	"cosmconsole/internal/console"
	"cosmconsole/internal/logger"
	"cosmconsole/internal/renderer"
	"cosmconsole/internal/version"
	"cosmconsole/internal/voice"
	"cosmconsole/internal/voice/stt"
	"cosmconsole/internal/voice/tts"
	"cosmconsole/pkg/cosmtypes"
)

var (
	logLevel string
	logFile  string
	testMode bool
)

// rootCmd starts the interactive console when called without a subcommand.
var rootCmd = &cobra.Command{
	Use:   "cosm",
	Short: "Cosm Console - terminal frontend for the cosm agent backend",
	Long: `Cosm Console is a terminal chat frontend for the cosm multi-agent backend.
It streams agent events over SSE, reconciles them into a readable transcript,
and can capture spoken questions and read the coordinator's replies aloud.`,
	Run: runShell,
}

// shellCmd is the explicit version of the default behavior.
var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Start the interactive console",
	Run:   runShell,
}

// sendCmd dispatches one message and prints the reply, for scripting.
var sendCmd = &cobra.Command{
	Use:   "send <message>",
	Short: "Send one message and print the reply",
	Args:  cobra.MinimumNArgs(1),
	Run:   runSend,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Println(version.GetFormattedVersion())
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Set log level (debug|info|warn|error) [default: info]")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write logs to file instead of stderr")
	rootCmd.PersistentFlags().BoolVar(&testMode, "test-mode", false, "Run in deterministic test mode")

	if err := viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level")); err != nil {
		fmt.Fprintf(os.Stderr, "Error binding log-level flag: %v\n", err)
		os.Exit(1)
	}
	if err := viper.BindPFlag("log-file", rootCmd.PersistentFlags().Lookup("log-file")); err != nil {
		fmt.Fprintf(os.Stderr, "Error binding log-file flag: %v\n", err)
		os.Exit(1)
	}
	if err := viper.BindPFlag("test-mode", rootCmd.PersistentFlags().Lookup("test-mode")); err != nil {
		fmt.Fprintf(os.Stderr, "Error binding test-mode flag: %v\n", err)
		os.Exit(1)
	}

	rootCmd.AddCommand(shellCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(versionCmd)

	cobra.OnInitialize(initConfig)
}

func initConfig() {
	if err := logger.Configure(logLevel, logFile, testMode); err != nil {
		fmt.Fprintf(os.Stderr, "Error configuring logger: %v\n", err)
		os.Exit(1)
	}
}

// buildConsole loads configuration and wires the backend client, the voice
// pipeline, and the renderer client into a console.
func buildConsole() (*console.Console, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	api := agentapi.New(cfg.BackendURL, cfg.AppName, cfg.UserID)

	opts := []console.Option{
		console.WithRenderer(renderer.New(cfg.RendererURL)),
	}

	speaker := buildSpeaker(cfg)
	if speaker != nil {
		opts = append(opts, console.WithSpeaker(speaker))
	}

	c := console.New(console.Config{
		AppName:         cfg.AppName,
		UserID:          cfg.UserID,
		PrimaryAgent:    cfg.PrimaryAgent,
		UserAuthor:      cfg.UserAuthor,
		DuplicateWindow: cfg.DuplicateWindow,
	}, api, opts...)

	if speaker != nil {
		if ctrl := buildController(cfg, speaker, c); ctrl != nil {
			console.WithController(ctrl)(c)
		}
	}
	return c, nil
}

// buildSpeaker assembles the synthesis pipeline from configuration. A missing
// playback command degrades to silent playback rather than failing startup.
func buildSpeaker(cfg *config.Config) *voice.Speaker {
	vc := resolveVoice(cfg)

	var synth tts.Synthesizer
	switch cfg.TTSProvider {
	case "openai":
		synth = tts.NewOpenAISynthesizer(cfg.OpenAIAPIKey)
	default:
		endpoint := cfg.SynthesisURL
		if endpoint == "" {
			endpoint = tts.DefaultGoogleEndpoint
		}
		synth = tts.NewGoogleEndpoint(endpoint, cfg.GoogleAPIKey)
	}

	var player voice.Player
	execPlayer, err := voice.NewExecPlayer(cfg.PlayerCommand)
	if err != nil {
		logger.Warn("no audio playback command found, replies will not be audible", "error", err)
		player = voice.NullPlayer{}
	} else {
		player = execPlayer
	}

	opts := []voice.SpeakerOption{voice.WithMinSpeakLength(cfg.MinSpeakLength)}
	if vc.Provider == "google" {
		opts = append(opts, voice.WithSSML())
	}

	cache := voice.NewAudioCache(cfg.AudioCacheSize, cfg.AudioCacheTTL)
	return voice.NewSpeaker(synth, player, cache, vc, opts...)
}

// buildController assembles the capture side. Capture is optional: without a
// recorder the console still runs as a typed chat.
func buildController(cfg *config.Config, speaker *voice.Speaker, c *console.Console) *voice.Controller {
	recorder, err := stt.NewExecRecorder(cfg.RecorderCommand)
	if err != nil {
		logger.Warn("no audio capture command found, voice input disabled", "error", err)
		return nil
	}

	var transcriber stt.Transcriber
	switch cfg.STTProvider {
	case "gemini":
		transcriber = stt.NewGeminiTranscriber(cfg.GoogleAPIKey)
	default:
		transcriber = stt.NewWhisperTranscriber(cfg.OpenAIAPIKey)
	}

	send := func(text string) {
		if err := c.Send(text); err != nil {
			logger.Error("spoken message failed", "error", err)
		}
	}
	return voice.NewController(recorder, transcriber, speaker, send, cfg.RestartDelay)
}

// resolveVoice looks the configured voice up in the embedded catalog and
// falls back to a config-built voice when it is not listed.
func resolveVoice(cfg *config.Config) cosmtypes.VoiceConfig {
	if catalog, err := voice.LoadCatalog(); err == nil {
		if vc, ok := catalog.Resolve(cfg.VoiceName); ok {
			if cfg.SpeakingRate != 0 {
				vc.SpeakingRate = cfg.SpeakingRate
			}
			return vc
		}
	}
	return cosmtypes.VoiceConfig{
		Provider:     cfg.TTSProvider,
		Name:         cfg.VoiceName,
		LanguageCode: cfg.VoiceLanguage,
		Gender:       cfg.VoiceGender,
		SpeakingRate: cfg.SpeakingRate,
	}
}

func runShell(_ *cobra.Command, _ []string) {
	logger.Info("Starting cosm console", "version", version.Version)

	c, err := buildConsole()
	if err != nil {
		logger.Fatal("Failed to build console", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := c.EnsureSession(ctx); err != nil {
		logger.Fatal("Failed to establish a session", "error", err)
	}

	sh := ishell.New()
	sh.SetPrompt("cosm> ")

	// Remove built-in commands so they become user messages or \-commands.
	sh.DeleteCmd("exit")
	sh.DeleteCmd("help")

	sh.Println(version.GetFormattedVersion() + " - agent backend chat console")
	sh.Println("Type '\\help' for commands or '\\exit' to quit; anything else is sent to the agents.")

	sh.NotFound(c.ProcessInput)

	sh.Run()
	c.Shutdown()
}

func runSend(_ *cobra.Command, args []string) {
	c, err := buildConsole()
	if err != nil {
		logger.Fatal("Failed to build console", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := c.EnsureSession(ctx); err != nil {
		logger.Fatal("Failed to establish a session", "error", err)
	}

	if err := c.Send(strings.Join(args, " ")); err != nil {
		logger.Fatal("Send failed", "error", err)
	}
	c.Shutdown()
}
