// ABOUTME: Entry point for the mock Live API server
// ABOUTME: Parses CLI flags and serves a local stand-in for the realtime voice service
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/Resonate-Protocol/ose-go/internal/logging"
	"github.com/Resonate-Protocol/ose-go/internal/server"
	"github.com/rs/zerolog/log"
)

var (
	addr      = flag.String("addr", ":8765", "Listen address")
	name      = flag.String("name", "", "Server friendly name (default: hostname-ose-mock)")
	logFile   = flag.String("log-file", "ose-mock-server.log", "Log file path")
	logLevel  = flag.String("log-level", "info", "Log level")
	noMDNS    = flag.Bool("no-mdns", false, "Disable mDNS advertisement")
	apiKey    = flag.String("api-key", "", "Require this API key from clients")
	reply     = flag.String("reply", "echo", "Reply mode: echo, tone or file")
	audioFile = flag.String("audio", "", "MP3 or FLAC file to answer with (implies -reply file)")
	threshold = flag.Float64("vad-threshold", 0, "Speech RMS threshold (default 0.02)")
)

func main() {
	flag.Parse()

	// Log to both file and stdout
	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening log file: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()
	logging.Init(*logLevel, true, io.MultiWriter(os.Stdout, f))

	serverName := *name
	if serverName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		serverName = fmt.Sprintf("%s-ose-mock", hostname)
	}

	mode := *reply
	if *audioFile != "" {
		mode = server.ReplyFile
	}

	srv, err := server.New(server.Config{
		Addr:       *addr,
		Name:       serverName,
		EnableMDNS: !*noMDNS,
		APIKey:     *apiKey,
		ReplyMode:  mode,
		ReplyFile:  *audioFile,
		VAD:        server.VADConfig{EnergyThreshold: *threshold},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create server")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Str("name", serverName).Str("addr", *addr).Msg("Starting mock live server, press Ctrl-C to stop")

	if err := srv.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server error")
	}
}
