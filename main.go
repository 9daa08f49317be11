// ABOUTME: Entry point for the Ose realtime voice client
// ABOUTME: Parses CLI flags, wires devices, session and TUI, then runs until quit
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Resonate-Protocol/ose-go/internal/app"
	"github.com/Resonate-Protocol/ose-go/internal/config"
	"github.com/Resonate-Protocol/ose-go/internal/discovery"
	"github.com/Resonate-Protocol/ose-go/internal/logging"
	"github.com/Resonate-Protocol/ose-go/internal/metrics"
	"github.com/Resonate-Protocol/ose-go/internal/player"
	"github.com/Resonate-Protocol/ose-go/internal/ui"
	"github.com/Resonate-Protocol/ose-go/internal/version"
	"github.com/Resonate-Protocol/ose-go/pkg/audio/input"
	"github.com/Resonate-Protocol/ose-go/pkg/audio/output"
	"github.com/Resonate-Protocol/ose-go/pkg/protocol"
	"github.com/Resonate-Protocol/ose-go/pkg/protocol/genailive"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

var (
	logFile     = flag.String("log-file", "ose.log", "Log file path")
	noTUI       = flag.Bool("no-tui", false, "Disable TUI, start talking immediately and stream logs")
	serverURL   = flag.String("server", "", "Live service base URL, e.g. http://localhost:8765 for the mock server")
	discover    = flag.Bool("discover", false, "Find a mock live server via mDNS")
	transport   = flag.String("transport", "", "Session transport: wire or genai (default from OSE_TRANSPORT)")
	outputName  = flag.String("output", "", "Speaker backend: oto or malgo (default from OSE_OUTPUT)")
	personaFile = flag.String("persona", "", "Persona YAML file (default: built-in)")
	metricsAddr = flag.String("metrics-addr", "", "Serve Prometheus metrics on this address")
)

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "ose: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	applyFlags(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	useTUI := !*noTUI

	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return fmt.Errorf("error opening log file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if useTUI {
		// TUI mode: log only to file
		logging.Init(cfg.LogLevel, cfg.LogPretty, f)
	} else {
		logging.Init(cfg.LogLevel, cfg.LogPretty, io.MultiWriter(os.Stdout, f))
	}
	log.Info().Str("version", version.String()).Bool("tui", useTUI).Msg("Starting")

	persona, err := config.LoadPersona(cfg.PersonaFile)
	if err != nil {
		return err
	}

	if *discover {
		mgr := discovery.NewManager(discovery.Config{})
		server, err := mgr.Find(5 * time.Second)
		mgr.Stop()
		if err != nil {
			return fmt.Errorf("discovery failed: %w", err)
		}
		cfg.BaseURL = server.BaseURL()
	}
	if cfg.BaseURL == "" || cfg.BaseURL == protocol.DefaultBaseURL {
		if err := cfg.RequireAPIKey(); err != nil {
			return err
		}
	}

	sessionCfg := protocol.Config{
		BaseURL:          cfg.BaseURL,
		APIKey:           cfg.APIKey,
		Model:            firstNonEmpty(cfg.Model, persona.Model),
		Voice:            firstNonEmpty(cfg.Voice, persona.Voice),
		SystemPrompt:     persona.SystemPrompt,
		HandshakeTimeout: cfg.HandshakeTimeout,
	}

	var dialer protocol.Dialer = protocol.NewWireDialer()
	if cfg.Transport == config.TransportGenAI {
		dialer = genailive.NewDialer()
	}

	// Playback: scheduler -> timeline -> speaker
	gain := player.NewGain()
	timeline := player.NewTimeline(cfg.OutputSampleRate, 1, gain)
	scheduler := player.NewScheduler(timeline)

	speaker, err := output.New(cfg.Output)
	if err != nil {
		return err
	}
	if err := speaker.Open(cfg.OutputSampleRate, 1, timeline); err != nil {
		return fmt.Errorf("failed to open speaker: %w", err)
	}
	defer func() { _ = speaker.Close() }()

	mic := input.NewMicrophone(input.Config{
		SampleRate: cfg.InputSampleRate,
		Channels:   1,
		FrameSize:  cfg.FrameSize,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		ctrl *app.Controller
		prog *tea.Program
	)

	if useTUI {
		prog = ui.New(ui.Controls{
			Start:       func() { _ = ctrl.StartRecording(ctx) },
			Stop:        func() { ctrl.StopRecording() },
			Reset:       func() { ctrl.Reset() },
			Gain:        gain,
			ErrorPrefix: persona.Messages.ErrorPrefix,
			InputLevel:  func() float64 { return ctrl.InputLevel() },
			OutputLevel: timeline.Level,
			Stats: func() ui.DebugStats {
				capture := ctrl.CaptureStats()
				playback := scheduler.Stats()
				return ui.DebugStats{
					FramesSent:     capture.Sent,
					FramesDropped:  capture.Dropped,
					UnitsScheduled: playback.Scheduled,
					Interruptions:  playback.Interruptions,
					ActiveUnits:    scheduler.Active(),
				}
			},
		})
	}

	ctrl, err = app.New(app.Config{
		Session:         sessionCfg,
		Dialer:          dialer,
		Microphone:      mic,
		Scheduler:       scheduler,
		Messages:        persona.Messages,
		InputSampleRate: cfg.InputSampleRate,
		ReplySampleRate: cfg.OutputSampleRate,
		OnStatus: func(st app.Status) {
			if prog != nil {
				prog.Send(ui.StatusMsg{Status: st})
				return
			}
			logStatus(persona.Messages, st)
		},
		OnTranscript: func(role, text string) {
			if prog != nil {
				prog.Send(ui.TranscriptMsg{Role: role, Text: text})
				return
			}
			log.Info().Str("role", role).Str("text", text).Msg("Transcript")
		},
	})
	if err != nil {
		return err
	}
	defer ctrl.Close()

	g, gctx := errgroup.WithContext(ctx)

	if addr := firstNonEmpty(*metricsAddr, cfg.MetricsAddr); addr != "" {
		g.Go(func() error {
			return metrics.Serve(gctx, addr)
		})
	}

	if prog != nil {
		quitCtx, quit := context.WithCancel(gctx)
		g.Go(func() error {
			defer quit()
			if _, err := prog.Run(); err != nil {
				return fmt.Errorf("TUI failed: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-quitCtx.Done()
			prog.Quit()
			stop()
			return nil
		})

		// The TUI loop must be running before status updates are sent.
		// A failed first connect leaves the error shown; talking retries.
		_ = ctrl.Connect(gctx)
	} else {
		if err := ctrl.StartRecording(gctx); err != nil {
			log.Error().Err(err).Msg("Could not start recording")
		}
		g.Go(func() error {
			<-gctx.Done()
			log.Info().Msg("Shutdown signal received")
			return nil
		})
	}

	err = g.Wait()
	log.Info().Msg("Stopped")
	return err
}

// applyFlags lets CLI flags override the environment
func applyFlags(cfg *config.Config) {
	if *serverURL != "" {
		cfg.BaseURL = *serverURL
	}
	if *transport != "" {
		cfg.Transport = *transport
	}
	if *outputName != "" {
		cfg.Output = *outputName
	}
	if *personaFile != "" {
		cfg.PersonaFile = *personaFile
	}
}

func logStatus(msgs config.Messages, st app.Status) {
	if st.Error != "" {
		log.Warn().Str("state", st.State.String()).Msg(msgs.ErrorPrefix + " " + st.Error)
		return
	}
	log.Info().Str("state", st.State.String()).Bool("recording", st.Recording).Msg(st.Status)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
