// iqra-tts-proxy relays synthesis requests to Azure so devices never hold
// the subscription key.
//
// Usage:
//
//	iqra-tts-proxy [-addr :8090] [-verbose]
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/hammamikhairi/iqra/internal/httpapi"
	"github.com/hammamikhairi/iqra/internal/logger"
	"github.com/hammamikhairi/iqra/internal/speech"
)

func main() {
	_ = godotenv.Load()

	addr := flag.String("addr", ":8090", "address to listen on")
	voice := flag.String("voice", speech.DefaultVoice, "default Azure voice")
	maxChars := flag.Int("max-chars", 1000, "longest text accepted per request")
	timeout := flag.Duration("timeout", 20*time.Second, "upstream synthesis timeout per request")
	verbose := flag.Bool("verbose", false, "enable verbose/debug logging")
	flag.Parse()

	logLevel := logger.LevelNormal
	if *verbose {
		logLevel = logger.LevelVerbose
	}
	log := logger.New(logLevel, os.Stderr)

	key := os.Getenv(speech.EnvAzureSpeechKey)
	region := os.Getenv(speech.EnvAzureSpeechRegion)
	if key == "" || region == "" {
		log.Error("set %s and %s", speech.EnvAzureSpeechKey, speech.EnvAzureSpeechRegion)
		os.Exit(1)
	}

	azure := func(v string) speech.Synthesizer {
		return speech.NewRetrying(speech.NewAzureClient(key, region, log.With("azure"), speech.WithVoice(v)), log)
	}

	srv := &http.Server{
		Addr: *addr,
		Handler: httpapi.NewServer(azure(*voice), log.With("http"),
			httpapi.WithVoices(azure),
			httpapi.WithMaxChars(*maxChars),
			httpapi.WithTimeout(*timeout),
		),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("shutdown: %v", err)
		}
	}()

	log.Info("listening on %s (voice=%s, region=%s)", *addr, *voice, region)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server: %v", err)
		os.Exit(1)
	}
}
