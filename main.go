package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
)

// Version is set at build time via -ldflags
var Version = "dev"

// AppOptions holds the parsed command line options
type AppOptions struct {
	ConfigFile    string
	TelemetryFile string
	CheckOnly     bool
	RenderOnly    bool
	OutputFile    string
	RenderFormat  string
	HttpMode      bool
	HttpPort      int
	MqttMode      bool
}

// AppRunner is implemented by App; tests substitute a mock
type AppRunner interface {
	ApplyOptions(opts AppOptions)
	RunCheck() error
	RunRender() error
	RunService() error
}

func main() {
	if err := run(os.Args[1:], os.Stdout, NewApp()); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		log.Fatalf("fllplanner: %v", err)
	}
}

// run parses args and dispatches to the selected mode
func run(args []string, out io.Writer, app AppRunner) error {
	fs := flag.NewFlagSet("fllplanner", flag.ContinueOnError)
	fs.SetOutput(out)

	var opts AppOptions
	fs.StringVar(&opts.ConfigFile, "config", "config.yaml", "Path to configuration file")
	fs.StringVar(&opts.TelemetryFile, "telemetry", "", "Telemetry file to load as the initial plan")
	fs.BoolVar(&opts.CheckOnly, "check", false, "Decode the telemetry file, print steps and the final pose, and exit")
	fs.BoolVar(&opts.RenderOnly, "render", false, "Render the plan and exit")
	fs.StringVar(&opts.OutputFile, "output", "", "Output file for --render mode (default plan.<format>)")
	fs.StringVar(&opts.RenderFormat, "format", "svg", "Render format: svg, png, raster or geojson")
	fs.BoolVar(&opts.HttpMode, "http", false, "Enable the HTTP API")
	fs.IntVar(&opts.HttpPort, "http-port", 0, "HTTP server port (default from config)")
	fs.BoolVar(&opts.MqttMode, "mqtt", false, "Receive telemetry and publish plans over MQTT")

	if err := fs.Parse(args); err != nil {
		return err
	}

	fmt.Fprintf(out, "fllplanner version: %s\n", Version)
	app.ApplyOptions(opts)

	switch {
	case opts.CheckOnly:
		return app.RunCheck()
	case opts.RenderOnly:
		return app.RunRender()
	default:
		fmt.Fprintln(out, "fllplanner service starting...")
		return app.RunService()
	}
}
