package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/motion.report/internal/admission"
	"github.com/banshee-data/motion.report/internal/api"
	"github.com/banshee-data/motion.report/internal/config"
	"github.com/banshee-data/motion.report/internal/db"
	"github.com/banshee-data/motion.report/internal/health"
	"github.com/banshee-data/motion.report/internal/ingest"
	"github.com/banshee-data/motion.report/internal/motion"
	"github.com/banshee-data/motion.report/internal/serialmux"
	"github.com/banshee-data/motion.report/internal/version"
)

var (
	devMode     = flag.Bool("dev", false, "Run in dev mode with a synthetic pose feed instead of a serial port")
	listen      = flag.String("listen", ":8080", "HTTP listen address")
	port        = flag.String("port", "", "Serial port of the pose coprocessor (empty disables)")
	baudRate    = flag.Int("baud", serialmux.DefaultBaudRate, "Serial baud rate")
	frameRate   = flag.Int("frame-rate", 30, "Frame rate requested from the pose feed")
	udpAddr     = flag.String("udp", "", "UDP address for the pose feed, e.g. :7300 (empty disables)")
	udpRcvBuf   = flag.Int("udp-rcvbuf", 1<<20, "UDP receive buffer in bytes")
	pcapFile    = flag.String("pcap", "", "Replay a pcap capture of the UDP feed at startup")
	pcapPort    = flag.Int("pcap-port", 7300, "UDP destination port selected from the pcap")
	pcapSpeed   = flag.Float64("pcap-speed", 1, "Replay speed multiplier; 0 replays as fast as possible")
	dbPath      = flag.String("db", "motion.db", "SQLite database for recorded sessions (empty disables)")
	configFile  = flag.String("config", "", "Tuning config JSON (defaults to built-in calibration)")
	grpcListen  = flag.String("grpc-listen", "", "gRPC health listen address, e.g. :8081 (empty disables)")
	initialMode = flag.String("mode", "tremor", "Initial analysis mode: tremor or gait")
	autoStart   = flag.Bool("start", false, "Start a session immediately")
	synthAmp    = flag.Float64("dev-amplitude", 0.01, "Wrist oscillation amplitude of the synthetic feed")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("motiond %s\n", version.String())
		return
	}
	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	tuning := config.EmptyTuningConfig()
	if *configFile != "" {
		var err error
		tuning, err = config.LoadTuningConfig(*configFile)
		if err != nil {
			log.Fatalf("failed to load tuning config: %v", err)
		}
		log.Printf("loaded tuning config %s", *configFile)
	}
	cal := motion.CalibrationFromTuning(tuning)

	mode, err := motion.ParseMode(*initialMode)
	if err != nil {
		log.Fatalf("invalid -mode: %v", err)
	}

	engine := motion.NewEngine(cal)
	engine.SetMode(mode)
	if *autoStart {
		engine.Start()
	}
	frames := admission.New(nil, tuning.GetAdmissionInterval())

	var feedSerial serialmux.SerialMuxInterface
	switch {
	case *devMode:
		feedSerial = serialmux.NewSyntheticSerialMux(*frameRate, *synthAmp)
	case *port != "":
		feedSerial, err = serialmux.NewRealSerialMux(*port, serialmux.PortOptions{BaudRate: *baudRate})
		if err != nil {
			log.Fatalf("failed to open serial port: %v", err)
		}
	default:
		feedSerial = serialmux.NewDisabledSerialMux()
	}
	defer feedSerial.Close()

	if err := feedSerial.Initialise(serialmux.StreamOptions{
		FrameRate:     *frameRate,
		MinConfidence: cal.ConfidenceThreshold,
	}); err != nil {
		log.Fatalf("failed to initialise pose feed: %v", err)
	}

	var store *db.DB
	var recorder *db.Recorder
	if *dbPath != "" {
		store, err = db.NewDB(*dbPath)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer store.Close()
		recorder = db.NewRecorder(store, engine, nil, tuning.GetRecordInterval())
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// single admission worker feeding the engine
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := frames.Run(ctx, engine); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("admission worker stopped: %v", err)
		}
		log.Print("admission routine terminated")
	}()

	feeds := map[string]*ingest.Counters{}

	if _, disabled := feedSerial.(*serialmux.DisabledSerialMux); !disabled {
		counters := &ingest.Counters{}
		feeds["serial"] = counters
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ingest.RunSerial(ctx, feedSerial, frames, counters); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("serial feed stopped: %v", err)
			}
			log.Print("serial feed routine terminated")
		}()
	}

	if *udpAddr != "" {
		counters := &ingest.Counters{}
		feeds["udp"] = counters
		listener := ingest.NewUDPListener(ingest.UDPListenerConfig{
			Address:  *udpAddr,
			RcvBuf:   *udpRcvBuf,
			Sink:     frames,
			Counters: counters,
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := listener.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("UDP feed stopped: %v", err)
			}
			log.Print("UDP feed routine terminated")
		}()
	}

	if *pcapFile != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stats, err := ingest.ReplayPCAP(ctx, *pcapFile, ingest.ReplayOptions{
				Port:     *pcapPort,
				Realtime: *pcapSpeed > 0,
				Speed:    *pcapSpeed,
			}, frames)
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("pcap replay failed: %v", err)
				return
			}
			log.Printf("pcap replay delivered %d frames spanning %s", stats.Frames, stats.Duration)
		}()
	}

	if recorder != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := recorder.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("session recorder stopped: %v", err)
			}
			log.Print("recorder routine terminated")
		}()
	}

	if *grpcListen != "" {
		probes := map[string]health.Probe{
			"motion.Admission": func(context.Context) error {
				if frames.Stats().Closed {
					return errors.New("admission mailbox closed")
				}
				return nil
			},
		}
		if store != nil {
			probes["motion.Store"] = func(ctx context.Context) error { return store.PingContext(ctx) }
		}
		hs := health.New(probes, nil, 5*time.Second)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := hs.ListenAndServe(ctx, *grpcListen); err != nil {
				log.Printf("gRPC health server failed: %v", err)
			}
			log.Print("gRPC health routine terminated")
		}()
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()

		// mount the admin debugging routes (only reachable from loopback or
		// over Tailscale)
		feedSerial.AttachAdminRoutes(mux)
		if store != nil {
			if err := store.AttachAdminRoutes(mux); err != nil {
				log.Printf("failed to attach database admin routes: %v", err)
			}
		}

		api.NewServer(api.Config{
			Engine:   engine,
			Frames:   frames,
			DB:       store,
			Recorder: recorder,
			Feeds:    feeds,
		}).AttachRoutes(mux)

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()
		log.Printf("motiond %s listening on %s", version.Version, *listen)

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			// Force close the server if graceful shutdown fails
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	// Wait for all goroutines to finish
	wg.Wait()
	engine.Stop()
	log.Printf("Graceful shutdown complete")
}
