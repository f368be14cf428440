package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-map/internal/logging"
	"github.com/joeblew999/plat-map/internal/server"
)

// Options defines all CLI flags and env vars for the map server.
// Flags: --host, --port, --data-dir, --token, --style, --geocode-url,
// --layers-file, --log-level, --cache, --web-dir
// Env vars: SERVICE_HOST, SERVICE_PORT, SERVICE_DATA_DIR, SERVICE_TOKEN, ...
type Options struct {
	Host       string `doc:"Host to bind to" default:"0.0.0.0"`
	Port       int    `doc:"Port to listen on" short:"p" default:"8086"`
	DataDir    string `doc:"Directory for the DuckDB geocode cache; empty keeps it in memory" default:".data"`
	Token      string `doc:"Mapbox access token (falls back to MAPBOX_ACCESS_TOKEN)"`
	Style      string `doc:"Map style URL" default:"mapbox://styles/mapbox/streets-v12"`
	GeocodeURL string `doc:"Geocoding API base URL" default:"https://api.mapbox.com"`
	LayersFile string `doc:"YAML file defining the layer groups"`
	LogLevel   string `doc:"Log level: trace, debug, info, warn, error, disabled" default:"info"`
	Cache      bool   `doc:"Persist geocode results in DuckDB" default:"true"`
	WebDir     string `doc:"Load templates from this directory instead of the embedded copy"`
}

func (o *Options) token() string {
	if o.Token != "" {
		return o.Token
	}
	return os.Getenv("MAPBOX_ACCESS_TOKEN")
}

func newServer(opts *Options, logOut io.Writer) (*server.Server, error) {
	return server.New(server.Config{
		Host:       opts.Host,
		Port:       fmt.Sprintf("%d", opts.Port),
		DataDir:    opts.DataDir,
		Token:      opts.token(),
		Style:      opts.Style,
		GeocodeURL: opts.GeocodeURL,
		LayersFile: opts.LayersFile,
		Cache:      opts.Cache,
		WebDir:     opts.WebDir,
		Logger:     logging.NewWriter(logOut, opts.LogLevel),
	})
}

func mustServer(opts *Options) *server.Server {
	srv, err := newServer(opts, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return srv
}

func main() {
	// A missing .env is fine; real env vars and flags still apply.
	_ = godotenv.Load()

	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		ctx, cancel := context.WithCancel(context.Background())
		stopped := make(chan struct{})

		hooks.OnStart(func() {
			defer close(stopped)
			srv, err := newServer(opts, os.Stdout)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			defer srv.Close()

			addr := fmt.Sprintf("%s:%d", opts.Host, opts.Port)
			displayHost := opts.Host
			if displayHost == "0.0.0.0" {
				displayHost = "localhost"
			}
			baseURL := fmt.Sprintf("http://%s:%d", displayHost, opts.Port)

			fmt.Println()
			fmt.Printf("plat-map server starting...\n")
			fmt.Printf("  Server:  %s\n", baseURL)
			fmt.Printf("  Map:     %s/map\n", baseURL)
			fmt.Printf("  Docs:    %s/docs\n", baseURL)
			fmt.Printf("  OpenAPI: %s/openapi.json\n", baseURL)
			fmt.Printf("  Metrics: %s/metrics\n", baseURL)
			if opts.token() == "" {
				fmt.Printf("  Warning: no Mapbox token; the map page shows a placeholder\n")
			}
			fmt.Println()

			if err := srv.Run(ctx, addr); err != nil {
				fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
				os.Exit(1)
			}
		})
		hooks.OnStop(func() {
			cancel()
			<-stopped
		})
	})

	cli.Root().Use = "mapx"
	cli.Root().Short = "Interactive street map explorer"
	cli.Root().Version = "0.1.0"

	// spec subcommand: export OpenAPI spec
	specCmd := &cobra.Command{
		Use:   "spec",
		Short: "Export OpenAPI spec (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			srv := mustServer(opts)
			defer srv.Close()
			spec := srv.OpenAPI()

			useYAML, _ := cmd.Flags().GetBool("yaml")

			var output []byte
			var err error
			if useYAML {
				output, err = yaml.Marshal(spec)
			} else {
				output, err = json.MarshalIndent(spec, "", "  ")
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error marshaling spec: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(string(output))
		}),
	}
	specCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	cli.Root().AddCommand(specCmd)

	// layers subcommand: print the layer groups as a YAML layers file
	cli.Root().AddCommand(&cobra.Command{
		Use:   "layers",
		Short: "Print the layer groups in --layers-file format",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			srv := mustServer(opts)
			defer srv.Close()
			out, err := yaml.Marshal(srv.Registry())
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error marshaling layers: %v\n", err)
				os.Exit(1)
			}
			fmt.Print(string(out))
		}),
	})

	// geocode subcommand: one lookup through the cache
	cli.Root().AddCommand(&cobra.Command{
		Use:   "geocode <query>",
		Short: "Look up a place the way the search panel does",
		Args:  cobra.MinimumNArgs(1),
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			srv := mustServer(opts)
			defer srv.Close()
			place, err := srv.Geocoder().Lookup(context.Background(), strings.Join(args, " "))
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			out, _ := json.MarshalIndent(place, "", "  ")
			fmt.Println(string(out))
		}),
	})

	cli.Run()
}
