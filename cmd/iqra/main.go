// Iqra: a voice-first companion for listening to the Quran, learning
// supplications and taking quizzes.
//
// Usage:
//
//	iqra [-voice] [-verbose] [-quiet] [-content file.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	stdlog "log"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"github.com/hammamikhairi/iqra/internal/catalog"
	"github.com/hammamikhairi/iqra/internal/conversation"
	"github.com/hammamikhairi/iqra/internal/dialog"
	"github.com/hammamikhairi/iqra/internal/display"
	"github.com/hammamikhairi/iqra/internal/engine"
	"github.com/hammamikhairi/iqra/internal/idle"
	"github.com/hammamikhairi/iqra/internal/logger"
	"github.com/hammamikhairi/iqra/internal/speech"
	"github.com/hammamikhairi/iqra/internal/storage"
)

func main() {
	_ = godotenv.Load()

	verbose := flag.Bool("verbose", false, "enable verbose/debug logging")
	quiet := flag.Bool("quiet", false, "disable all logging")
	logFile := flag.String("log-file", ".iqra-logs/iqra.log", "file to write logs to (use \"stderr\" to log to console)")
	contentFile := flag.String("content", "", "YAML file replacing the built-in chapters, supplications and questions")
	noSpeech := flag.Bool("no-speech", false, "disable text-to-speech even if a backend is configured")
	diskCache := flag.Bool("disk-cache", true, "persist TTS audio cache to disk (reads from disk even when false)")
	cacheDir := flag.String("cache-dir", ".iqra-cache", "directory for persistent TTS audio cache")
	voice := flag.Bool("voice", false, "enable voice input via local Whisper STT")
	whisperBin := flag.String("whisper-bin", "whisper-cli", "path to the whisper-cpp CLI binary")
	whisperModel := flag.String("whisper-model", "bin/ggml-small.bin", "path to the Whisper GGML model file")
	recordSecs := flag.Float64("record-secs", 1.5, "seconds per voice recording chunk")
	autoListen := flag.Bool("auto-listen", true, "listen for a reply after every prompt when voice is on")
	quizLength := flag.Int("quiz-length", 5, "questions per quiz")
	shuffle := flag.Bool("shuffle", true, "shuffle quiz questions")
	idleAfter := flag.Duration("idle-after", 45*time.Second, "inactivity before a gentle nudge (0 disables)")
	flag.Parse()

	logLevel := logger.LevelNormal
	if *verbose {
		logLevel = logger.LevelVerbose
	}
	if *quiet {
		logLevel = logger.LevelOff
	}

	// Logs go to a file by default so the UI stays clean.
	var logOut io.Writer = os.Stderr
	if *logFile != "" && *logFile != "stderr" {
		if dir := filepath.Dir(*logFile); dir != "" && dir != "." {
			os.MkdirAll(dir, 0o755)
		}
		f, err := os.OpenFile(*logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not open log file %s: %v (falling back to stderr)\n", *logFile, err)
		} else {
			logOut = f
			defer f.Close()
		}
	}

	// Third-party libraries such as the whisper transcriber log through the
	// standard logger.
	stdlog.SetOutput(logOut)
	stdlog.SetFlags(stdlog.Ltime)

	log := logger.New(logLevel, logOut)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Content and state ──

	var (
		content *catalog.MemorySource
		err     error
	)
	if *contentFile != "" {
		content, err = catalog.Load(*contentFile, log.With("catalog"))
	} else {
		content, err = catalog.NewMemorySource(log.With("catalog"))
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: loading content: %v\n", err)
		os.Exit(1)
	}

	store := storage.NewMemoryStore(log.With("store"))
	engOpts := []engine.Option{engine.WithQuizLength(*quizLength)}
	if *shuffle {
		engOpts = append(engOpts, engine.WithShuffle(uint64(time.Now().UnixNano())))
	}
	eng := engine.New(content, store, log.With("engine"), engOpts...)

	// ── Audio ──

	var condOpts []dialog.ConductorOption

	player, err := speech.NewPlayer(log.With("player"))
	if err != nil {
		log.Error("audio player init failed, running text only: %v", err)
	} else {
		condOpts = append(condOpts, dialog.WithReciter(speech.NewReciter(player, log.With("reciter"))))
	}

	var mouth *speech.Mouth
	if tts := selectTTS(log, *noSpeech); tts != nil && player != nil {
		cache := speech.NewAudioCache(tts.Voice(), log.With("cache"),
			speech.WithDiskLayer(*cacheDir, *diskCache),
		)
		mouth = speech.NewMouth(tts, player, log.With("mouth"), speech.WithCache(cache))
		mouth.Start(ctx)
		mouth.Prefetch(ctx, speech.Prefetchable()...)
		condOpts = append(condOpts, dialog.WithMouth(mouth))
	}

	if *voice {
		if _, err := os.Stat(*whisperModel); err != nil {
			fmt.Fprintf(os.Stderr, "error: whisper model not found at %s\n", *whisperModel)
			os.Exit(1)
		}
		sttDir := ".iqra-stt"
		os.MkdirAll(sttDir, 0o755)
		rec := speech.NewWhisperRecognizer(*whisperBin, *whisperModel, sttDir, log.With("whisper"))
		ear := speech.NewEar(rec, log.With("ear"),
			speech.WithRecordDuration(time.Duration(*recordSecs*float64(time.Second))),
		)
		condOpts = append(condOpts, dialog.WithListener(ear))
		log.Info("voice input enabled (bin=%s, model=%s)", *whisperBin, *whisperModel)
	}

	cond := dialog.NewConductor(log.With("conductor"), condOpts...)
	defer cond.Close()

	// ── UI, notifications, controller ──

	ui := display.NewUI(store, content, display.WithTurn(func() string { return cond.Turn().String() }))
	textNotifier := conversation.NewCLINotifier(log, ui.Printf)
	notifier := dialog.NewSpeakingNotifier(textNotifier, cond, log)

	if *idleAfter > 0 {
		supervisor := idle.New(store, notifier, log.With("idle"), idle.WithIdleAfter(*idleAfter))
		supervisor.Start(ctx)
		defer supervisor.Stop()
	}

	ctrl := dialog.NewController(eng, conversation.NewKeywordParser(log), cond, ui, log.With("controller"),
		dialog.WithAutoListen(*voice && *autoListen),
	)

	fmt.Println(display.RenderBanner())
	if *voice {
		fmt.Println(display.BannerStyle.Render("  Voice mode ON: press Tab to talk, or type. Type 'quit' to exit."))
	} else {
		fmt.Println(display.BannerStyle.Render("  Type 'help' for commands, 'quit' to exit."))
	}
	fmt.Println()

	go func() {
		ui.WaitReady()
		if err := ctrl.Run(ctx, ui.InputChan(), ui.MicChan()); err != nil {
			log.Error("controller: %v", err)
		}
		ui.Quit()
	}()

	// Bubble Tea owns the terminal until quit.
	if err := ui.Run(); err != nil {
		log.Error("display: %v", err)
	}
	cancel()
	if mouth != nil {
		mouth.Wait()
	}
}

// selectTTS picks the synthesis backend: the proxy when configured, then
// Azure directly, else none.
func selectTTS(log *logger.Logger, disabled bool) speech.Synthesizer {
	if disabled {
		return nil
	}
	if url := os.Getenv(speech.EnvTTSProxyURL); url != "" {
		log.Info("TTS via proxy %s", url)
		return speech.NewRetrying(speech.NewProxyClient(url, log.With("tts-proxy")), log.With("tts"))
	}
	key := os.Getenv(speech.EnvAzureSpeechKey)
	region := os.Getenv(speech.EnvAzureSpeechRegion)
	if key != "" && region != "" {
		log.Info("TTS via Azure (voice=%s, region=%s)", speech.DefaultVoice, region)
		return speech.NewRetrying(speech.NewAzureClient(key, region, log.With("azure")), log.With("tts"))
	}
	log.Info("TTS disabled: set %s, or %s and %s", speech.EnvTTSProxyURL, speech.EnvAzureSpeechKey, speech.EnvAzureSpeechRegion)
	return nil
}
