// Command circle-thumb is the desktop thumbnail editor. A second launch
// hands its --file to the running editor and exits.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"github.com/spf13/cobra"

	"circle-thumb/src/config"
	"circle-thumb/src/eventloop"
	"circle-thumb/src/gui"
	"circle-thumb/src/hotkey"
	"circle-thumb/src/logutil"
	"circle-thumb/src/runtimeinit"
	"circle-thumb/src/singleinstance"
)

type mainOptions struct {
	filePath string
	envPath  string
}

func main() {
	// Screen capture needs physical pixels on scaled displays.
	enableDPIAwareness()

	if err := runWithArgs(normalizeLegacyArgs(os.Args)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runWithArgs(args []string) error {
	if len(args) == 0 {
		args = []string{"circle-thumb"}
	}
	opts := &mainOptions{}
	cmd := newRootCmd(opts)
	cmd.SetArgs(args[1:])
	return cmd.Execute()
}

func newRootCmd(opts *mainOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "circle-thumb",
		Short:         "Cut circular thumbnails out of images",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEditor(*opts)
		},
	}
	cmd.Flags().StringVar(&opts.filePath, "file", "", "Image to open on start (forwarded to a running editor)")
	cmd.Flags().StringVar(&opts.envPath, "env", "", "Path to a .env file (highest precedence)")
	return cmd
}

// normalizeLegacyArgs maps single-dash long flags to the double-dash form.
func normalizeLegacyArgs(args []string) []string {
	if len(args) == 0 {
		return args
	}
	normalized := make([]string, len(args))
	copy(normalized, args)
	for i := 1; i < len(normalized); i++ {
		arg := normalized[i]
		for _, name := range []string{"file", "env"} {
			switch {
			case arg == "-"+name:
				normalized[i] = "--" + name
			case strings.HasPrefix(arg, "-"+name+"="):
				normalized[i] = "-" + arg
			}
		}
	}
	return normalized
}

func runEditor(opts mainOptions) error {
	// Load .env early so CIRCLE_THUMB_PORT_* apply to the delegation scan.
	_, _ = config.LoadWithOptions(config.LoadOptions{EnvPathOverride: opts.envPath})

	path := opts.filePath
	if path != "" {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}
	return delegateOrStart(path, singleinstance.NewClient(), func() error {
		return startEditor(opts, path)
	})
}

// delegateOrStart forwards path to a resident editor, or runs start when
// none answers. A resident's refusal is returned rather than starting a
// second editor.
func delegateOrStart(path string, client singleinstance.Client, start func() error) error {
	delegated, err := client.TryOpen(context.Background(), singleinstance.Request{Path: path})
	if delegated {
		if err != nil {
			return fmt.Errorf("running editor could not open %s: %w", path, err)
		}
		log.Printf("Delegated to resident editor")
		return nil
	}
	if err != nil {
		log.Printf("Delegation error: %v; starting editor", err)
	}
	return start()
}

func setupLogging(enableFileLogging bool) {
	logutil.Setup(enableFileLogging, nil)
}

func startEditor(opts mainOptions, path string) error {
	rt, err := runtimeinit.Bootstrap(runtimeinit.Options{
		LoadOptions:      config.LoadOptions{EnvPathOverride: opts.envPath},
		SetupLogging:     setupLogging,
		AllowRemoteStore: true,
		InitClipboard:    true,
	})
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var instance singleinstance.Server
	srv := singleinstance.NewServer()
	if err := srv.Start(ctx); err != nil {
		log.Printf("Single-instance port unavailable, later launches will open new windows: %v", err)
	} else {
		instance = srv
		defer srv.Close()
	}

	a := app.NewWithID("io.github.circle-thumb")
	editor := gui.NewEditor(a, rt.Background)
	loop := eventloop.New(editor, eventloop.Options{
		Exporter:   rt.Exporter(),
		Fetcher:    rt.Fetcher,
		Background: rt.Background,
		Instance:   instance,
	})
	editor.Bind(loop)

	if err := hotkey.Listen(ctx, rt.Config.Hotkey, loop.Hotkey); err != nil {
		log.Printf("Hotkey disabled: %v", err)
	} else {
		log.Printf("Hotkey: %s captures the screen", rt.Config.Hotkey)
	}

	go func() {
		if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("event loop stopped: %v", err)
		}
	}()
	if path != "" {
		loop.LoadFile(path)
	}

	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-ch:
			fyne.Do(a.Quit)
		case <-ctx.Done():
		}
	}()

	log.Printf("%s started", gui.Title)
	editor.ShowAndRun()
	return nil
}
