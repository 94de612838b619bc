// Command circle-thumb-cli runs the HTTP editor and composes thumbnails
// headlessly.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"circle-thumb/src/apperr"
	"circle-thumb/src/compositor"
	"circle-thumb/src/config"
	"circle-thumb/src/logutil"
	"circle-thumb/src/runtimeinit"
	"circle-thumb/src/selection"
	"circle-thumb/src/server"
	"circle-thumb/src/source"
	"circle-thumb/src/tray"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type serveOptions struct {
	addr    string
	dir     string
	tray    bool
	envPath string
}

type cropOptions struct {
	filePath   string
	centerX    float64
	centerY    float64
	radius     float64
	background string
	out        string
	save       string
	jsonOutput bool
	verbose    bool
	envPath    string
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	return runWithArgs(normalizeLegacyArgs(os.Args))
}

func runWithArgs(args []string) error {
	if len(args) == 0 {
		args = []string{"circle-thumb-cli"}
	}
	cmd := newRootCmd()
	cmd.SetArgs(args[1:])
	return cmd.Execute()
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "circle-thumb-cli",
		Short:         "Circular thumbnail server and headless cropper",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newServeCmd(&serveOptions{}), newCropCmd(&cropOptions{}), newVersionCmd())
	return cmd
}

func newServeCmd(opts *serveOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the browser editor and the /save-image endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, *opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.addr, "addr", "", "Listen address (default LISTEN_ADDR or "+config.DefaultListenAddr+")")
	cmd.Flags().StringVar(&opts.dir, "dir", "", "Thumbnails directory (default THUMBNAILS_DIR or "+config.DefaultThumbnailsDir+")")
	cmd.Flags().BoolVar(&opts.tray, "tray", false, "Show a tray icon")
	cmd.Flags().StringVar(&opts.envPath, "env", "", "Path to a .env file (highest precedence)")
	return cmd
}

func newCropCmd(opts *cropOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crop",
		Short: "Compose a thumbnail from a circle in an image",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrop(cmd.Context(), *opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.filePath, "file", "", "Source image (use '-' for stdin)")
	cmd.Flags().Float64Var(&opts.centerX, "cx", 0, "Circle centre X in image pixels")
	cmd.Flags().Float64Var(&opts.centerY, "cy", 0, "Circle centre Y in image pixels")
	cmd.Flags().Float64Var(&opts.radius, "radius", 0, "Circle radius in image pixels")
	cmd.Flags().StringVar(&opts.background, "bg", "", "Background: white or black (default DEFAULT_BACKGROUND)")
	cmd.Flags().StringVar(&opts.out, "out", "", "Write the PNG to this path ('-' for stdout)")
	cmd.Flags().StringVar(&opts.save, "save", "", "Save into the thumbnails directory under this name")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Print a JSON summary")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose output to stderr")
	cmd.Flags().StringVar(&opts.envPath, "env", "", "Path to a .env file (highest precedence)")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("radius")
	cmd.MarkFlagsOneRequired("out", "save")
	cmd.MarkFlagsMutuallyExclusive("out", "save")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "circle-thumb %s\n", version)
		},
	}
}

// normalizeLegacyArgs maps single-dash long flags to the double-dash form.
func normalizeLegacyArgs(args []string) []string {
	if len(args) == 0 {
		return args
	}
	long := []string{"addr", "dir", "tray", "env", "file", "cx", "cy", "radius", "bg", "out", "save", "json", "verbose"}

	normalized := make([]string, len(args))
	copy(normalized, args)
	for i := 1; i < len(normalized); i++ {
		arg := normalized[i]
		for _, name := range long {
			if arg == "-"+name || strings.HasPrefix(arg, "-"+name+"=") {
				normalized[i] = "-" + arg
				break
			}
		}
	}
	return normalized
}

func runServe(ctx context.Context, opts serveOptions, stdout io.Writer) error {
	rt, err := runtimeinit.Bootstrap(runtimeinit.Options{
		LoadOptions: config.LoadOptions{
			EnvPathOverride:       opts.envPath,
			ListenAddrOverride:    opts.addr,
			ThumbnailsDirOverride: opts.dir,
			EnableTrayOverride:    opts.tray,
		},
		SetupLogging: func(enable bool) { logutil.Setup(enable, os.Stderr) },
		Workers:      2,
	})
	if err != nil {
		return err
	}
	defer rt.Close()
	cfg := rt.Config

	srv := server.New(server.Options{
		Store:          rt.Store,
		Compositor:     rt.Compositor,
		Pool:           rt.Pool,
		Fetcher:        rt.Fetcher,
		Background:     rt.Background,
		SessionTTL:     cfg.SessionTTL(),
		ExportDeadline: cfg.ExportDeadline(),
		MaxUploadBytes: cfg.MaxUploadBytes(),
	})

	ready := func(addr net.Addr) {
		fmt.Fprintf(stdout, "Server running at http://%s\n", addr)
	}
	if !cfg.EnableTray {
		return srv.Run(ctx, cfg.ListenAddr, ready)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	t, err := tray.New(tray.Config{
		Tooltip: "Circle Thumbnail Creator - " + cfg.ListenAddr,
		URL:     "http://" + cfg.ListenAddr,
		OnExit:  cancel,
	})
	if err != nil {
		return err
	}
	t.SetAboutExtra("Thumbnails: " + cfg.ThumbnailsDir)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run(ctx, cfg.ListenAddr, ready)
		t.Quit()
	}()
	// systray owns this goroutine's thread until Quit.
	t.Run()
	cancel()
	return <-errCh
}

type cropResult struct {
	Source     string  `json:"source"`
	CenterX    float64 `json:"centerX"`
	CenterY    float64 `json:"centerY"`
	Radius     float64 `json:"radius"`
	TargetSize int     `json:"targetSize"`
	Background string  `json:"background"`
	Output     string  `json:"output"`
	Bytes      int     `json:"bytes"`
}

func runCrop(ctx context.Context, opts cropOptions, stdin io.Reader, stdout io.Writer) error {
	if !opts.verbose {
		log.SetOutput(io.Discard)
	} else {
		log.SetOutput(os.Stderr)
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	var rt *runtimeinit.Runtime
	var cfg *config.Config
	var err error
	if opts.save != "" {
		rt, err = runtimeinit.Bootstrap(runtimeinit.Options{LoadOptions: config.LoadOptions{EnvPathOverride: opts.envPath}})
		if err != nil {
			return err
		}
		defer rt.Close()
		cfg = rt.Config
	} else {
		if cfg, err = config.LoadWithOptions(config.LoadOptions{EnvPathOverride: opts.envPath}); err != nil {
			return err
		}
		source.SetMaxPixels(cfg.MaxImagePixels())
	}

	img, err := loadCropSource(opts.filePath, stdin)
	if err != nil {
		return errors.New(apperr.Message(err))
	}
	circle := selection.Circle{CenterX: opts.centerX, CenterY: opts.centerY, Radius: opts.radius}
	if circle.Radius <= 0 || !circle.Fits(img.Width, img.Height) {
		return fmt.Errorf("circle (%.1f, %.1f) r=%.1f must lie inside the %dx%d image",
			circle.CenterX, circle.CenterY, circle.Radius, img.Width, img.Height)
	}

	bg := compositor.ParseBackground(cfg.DefaultBackground)
	if opts.background != "" {
		bg = compositor.ParseBackground(opts.background)
	}
	data, spec, err := compositor.New(cfg.ResampleFilter).ComposePNG(img.Raster, circle, bg)
	if err != nil {
		return errors.New(apperr.Message(err))
	}
	log.Printf("Composed %dx%d thumbnail (%d bytes)", spec.TargetSize, spec.TargetSize, len(data))

	output := opts.out
	switch {
	case opts.save != "":
		output, err = rt.Store.Save(ctx, data, spec.TargetSize, opts.save)
		if err != nil {
			return errors.New("Failed to save image: " + apperr.Message(err))
		}
	case opts.out == "-":
		if opts.jsonOutput {
			return fmt.Errorf("--json cannot be combined with --out -")
		}
		_, err := stdout.Write(data)
		return err
	default:
		if err := os.WriteFile(opts.out, data, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", opts.out, err)
		}
	}

	if opts.jsonOutput {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(cropResult{
			Source:     opts.filePath,
			CenterX:    circle.CenterX,
			CenterY:    circle.CenterY,
			Radius:     circle.Radius,
			TargetSize: spec.TargetSize,
			Background: string(bg),
			Output:     output,
			Bytes:      len(data),
		})
	}
	fmt.Fprintf(stdout, "Image saved successfully as %s\n", output)
	return nil
}

func loadCropSource(p string, stdin io.Reader) (*source.Image, error) {
	if p == "-" {
		return source.Decode(stdin, "stdin")
	}
	return source.LoadFile(p)
}
