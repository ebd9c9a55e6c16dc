package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/kwv/fllplanner/planner"
)

// App encapsulates the application state and dependencies
type App struct {
	Config     *planner.Config
	Session    *planner.Session
	MQTTClient *planner.MQTTClient
	Publisher  *planner.Publisher
	Out        io.Writer

	// CLI Flags
	ConfigFile    string
	TelemetryFile string
	OutputFile    string
	RenderFormat  string
	HttpPort      int
	MqttMode      bool
	HttpMode      bool
}

// NewApp creates a new App instance
func NewApp() *App {
	return &App{Out: os.Stdout}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.ConfigFile = opts.ConfigFile
	a.TelemetryFile = opts.TelemetryFile
	a.OutputFile = opts.OutputFile
	a.RenderFormat = opts.RenderFormat
	a.HttpPort = opts.HttpPort
	a.MqttMode = opts.MqttMode
	a.HttpMode = opts.HttpMode
}

// loadConfig loads the config file, falling back to defaults when it does not exist
func (a *App) loadConfig() error {
	if a.Config != nil {
		return nil
	}
	if a.ConfigFile == "" {
		a.Config = planner.DefaultConfig()
		return nil
	}
	if _, err := os.Stat(a.ConfigFile); errors.Is(err, fs.ErrNotExist) {
		log.Printf("No config at %s, using defaults", a.ConfigFile)
		a.Config = planner.DefaultConfig()
		return nil
	}
	config, err := planner.LoadConfig(a.ConfigFile)
	if err != nil {
		return fmt.Errorf("loading config %s: %w", a.ConfigFile, err)
	}
	log.Printf("Loaded config from %s", a.ConfigFile)
	a.Config = config
	return nil
}

// newSession creates the session and loads the telemetry file, if any
func (a *App) newSession() ([]planner.SkippedLine, error) {
	if err := a.loadConfig(); err != nil {
		return nil, err
	}
	a.Session = planner.NewSession(a.Config)
	if a.TelemetryFile == "" {
		return nil, nil
	}

	text, err := planner.ReadTelemetryFile(a.TelemetryFile)
	if err != nil {
		return nil, err
	}
	_, skipped := a.Session.LoadTelemetry(text)
	log.Printf("Loaded %d steps from %s", a.Session.Snapshot().StepCount, a.TelemetryFile)
	return skipped, nil
}

func (a *App) out() io.Writer {
	if a.Out == nil {
		return os.Stdout
	}
	return a.Out
}

// RunCheck decodes the telemetry file and prints the replayed plan
func (a *App) RunCheck() error {
	if a.TelemetryFile == "" {
		return fmt.Errorf("--check requires --telemetry")
	}
	skipped, err := a.newSession()
	if err != nil {
		return err
	}

	out := a.out()
	state := a.Session.State()
	scale := state.Scale

	fmt.Fprintf(out, "Telemetry: %s\n", a.TelemetryFile)
	fmt.Fprintf(out, "  Steps: %d\n", len(state.Path))
	for i, step := range state.Path {
		switch s := step.(type) {
		case planner.Move:
			fmt.Fprintf(out, "  %3d move   turn %7.1f°  drive %7.2f  heading %5.1f°\n",
				i+1, s.TurnAngle, s.Distance, s.Heading)
		case planner.Turn:
			fmt.Fprintf(out, "  %3d turn   %7.1f°\n", i+1, s.Delta)
		case planner.Marker:
			fmt.Fprintf(out, "  %3d marker M%d at (%.2f, %.2f)\n",
				i+1, s.ID, s.Pose.X/scale, s.Pose.Y/scale)
		}
	}

	if len(skipped) > 0 {
		fmt.Fprintf(out, "  Skipped lines: %d\n", len(skipped))
		for _, sl := range skipped {
			fmt.Fprintf(out, "    %s\n", sl)
		}
	}

	snap := a.Session.Snapshot()
	fmt.Fprintf(out, "  Final pose: (%.2f, %.2f) angle %.1f°\n",
		snap.Pose.X/scale, snap.Pose.Y/scale, snap.UserAngle)
	fmt.Fprintf(out, "  Path length: %.2f\n", snap.PathLength)
	return nil
}

// RunRender renders the plan in the selected format and exits
func (a *App) RunRender() error {
	if _, err := a.newSession(); err != nil {
		return err
	}

	format := strings.ToLower(a.RenderFormat)
	if format == "" {
		format = "svg"
	}
	output := a.OutputFile
	if output == "" {
		ext := format
		if format == "raster" {
			ext = "png"
		}
		output = "plan." + ext
	}

	snap := a.Session.Snapshot()
	if err := renderPlan(output, format, a.Config, snap); err != nil {
		return err
	}
	fmt.Fprintf(a.out(), "Rendered %d steps to %s (%s)\n", snap.StepCount, output, format)
	return nil
}

// renderPlan writes snap to path in one of the supported formats
func renderPlan(path, format string, config *planner.Config, snap planner.Snapshot) error {
	if format == "raster" {
		rr, err := planner.NewRasterRenderer(config)
		if err != nil {
			log.Printf("Warning: %v, rendering without field image", err)
		}
		return rr.SavePNG(path, snap)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer f.Close()

	switch format {
	case "svg":
		err = planner.NewPlanRenderer(config).RenderToSVG(f, snap)
	case "png":
		err = planner.NewPlanRenderer(config).RenderToPNG(f, snap)
	case "geojson":
		var data []byte
		data, err = planner.PlanFeatureCollection(snap, config.Scale()).MarshalJSON()
		if err == nil {
			_, err = f.Write(data)
		}
	default:
		return fmt.Errorf("unknown render format %q (use svg, png, raster or geojson)", format)
	}
	if err != nil {
		return fmt.Errorf("rendering %s: %w", format, err)
	}
	return nil
}

// RunService runs the HTTP API and/or MQTT bridge until interrupted
func (a *App) RunService() error {
	if _, err := a.newSession(); err != nil {
		return err
	}

	if a.MqttMode {
		session := a.Session
		mqttClient, err := planner.InitMQTT(a.Config, func(text string) {
			applied, skipped := session.LoadTelemetry(text)
			log.Printf("[MQTT] telemetry applied=%v skipped=%d", applied, len(skipped))
		})
		if err != nil {
			return fmt.Errorf("initializing MQTT: %w", err)
		}
		if mqttClient == nil {
			return fmt.Errorf("MQTT broker not configured (set MQTT_BROKER or mqtt.broker)")
		}
		a.MQTTClient = mqttClient
		a.Publisher = planner.NewPublisher(mqttClient.GetClient(), planner.TopicPrefix(a.Config), a.Config.Scale())
		a.Session.OnChange(a.Publisher.Listener())
		publisher := a.Publisher
		mqttClient.OnConnected(func() {
			if err := publisher.PublishCurrent(session); err != nil {
				log.Printf("[MQTT] Error publishing current plan: %v", err)
			}
		})
		fmt.Fprintln(a.out(), "MQTT plan publisher initialized")
	}

	port := a.HttpPort
	if port == 0 {
		port = a.Config.HTTPPort
	}

	var server *http.Server
	if a.HttpMode {
		server = &http.Server{
			Addr:              fmt.Sprintf("0.0.0.0:%d", port),
			Handler:           newHTTPServer(a.Session, a.Config),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Printf("[HTTP] Starting server on %s", server.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatalf("[HTTP] Server error: %v", err)
			}
		}()
	}

	a.printServiceInfo(port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	fmt.Fprintln(a.out(), "\nShutting down service...")
	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("[HTTP] shutdown error: %v", err)
		}
	}
	if a.MQTTClient != nil {
		a.MQTTClient.Disconnect()
	}
	fmt.Fprintln(a.out(), "Service stopped")
	return nil
}

func (a *App) printServiceInfo(port int) {
	out := a.out()
	fmt.Fprintln(out, "\nService Running")
	fmt.Fprintln(out, "===============")
	fmt.Fprintf(out, "Session: %s\n", a.Session.ID())

	if a.MqttMode {
		prefix := planner.TopicPrefix(a.Config)
		fmt.Fprintln(out, "\nMQTT:")
		fmt.Fprintf(out, "  Subscribed: %s\n", a.MQTTClient.CommandTopic())
		fmt.Fprintf(out, "  Publishing: %s/telemetry, %s/pose\n", prefix, prefix)
	}

	if a.HttpMode {
		fmt.Fprintf(out, "\nHTTP endpoints (port %d):\n", port)
		fmt.Fprintln(out, "  GET  /health          - Health check")
		fmt.Fprintln(out, "  GET  /api/state       - Current plan snapshot")
		fmt.Fprintln(out, "  GET  /api/telemetry   - Telemetry text")
		fmt.Fprintln(out, "  POST /api/{start,profile,click,turn,marker,undo,reset,telemetry,regenerate}")
		fmt.Fprintln(out, "  GET  /plan.svg /plan.png /field.png /plan.geojson")
	}

	if !a.MqttMode && !a.HttpMode {
		fmt.Fprintln(out, "\nNo interfaces enabled; use --http and/or --mqtt")
	}

	fmt.Fprintln(out, "\nPress Ctrl+C to stop")
}
