package main

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"circle-thumb/src/apperr"
	"circle-thumb/src/compositor"
	"circle-thumb/src/selection"
	"circle-thumb/src/singleinstance"
	"circle-thumb/src/store"
)

type stressOptions struct {
	n        int
	mode     string
	url      string
	name     string
	deadline time.Duration
}

type stressResult struct {
	launched  int
	ok        int32
	busy      int32
	errs      int32
	filenames map[string]int
	elapsed   time.Duration
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	opts := &stressOptions{}
	cmd := newRootCmd(opts)
	return cmd.Execute()
}

func newRootCmd(opts *stressOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "stress-save",
		Short:         "Stress test concurrent saves and editor delegation",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := runWithOptions(cmd.Context(), *opts)
			if err != nil {
				return err
			}
			report(cmd.OutOrStdout(), res)
			return nil
		},
	}

	cmd.Flags().IntVar(&opts.n, "n", 50, "number of concurrent clients")
	cmd.Flags().StringVar(&opts.mode, "mode", "save", "save|open: POST /save-image or delegate FOCUS to a running editor")
	cmd.Flags().StringVar(&opts.url, "url", "http://127.0.0.1:3000", "server base URL for save mode")
	cmd.Flags().StringVar(&opts.name, "name", "stress", "filename every client saves under")
	cmd.Flags().DurationVar(&opts.deadline, "deadline", 5*time.Second, "per-client timeout")

	return cmd
}

func runWithOptions(ctx context.Context, opts stressOptions) (stressResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var attempt func(context.Context) (string, error)
	switch opts.mode {
	case "save":
		data, size, err := thumbnail()
		if err != nil {
			return stressResult{}, err
		}
		rs := store.NewRemoteStore(opts.url)
		attempt = func(ctx context.Context) (string, error) {
			return rs.Save(ctx, data, size, opts.name)
		}
	case "open":
		attempt = func(ctx context.Context) (string, error) {
			delegated, err := singleinstance.NewClient().TryOpen(ctx, singleinstance.Request{})
			if err == nil && !delegated {
				err = fmt.Errorf("no resident editor")
			}
			return "", err
		}
	default:
		return stressResult{}, fmt.Errorf("unknown mode %q (want save or open)", opts.mode)
	}

	res := stressResult{launched: opts.n, filenames: make(map[string]int)}
	var mu sync.Mutex
	var wg sync.WaitGroup

	start := time.Now()
	for i := 0; i < opts.n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(ctx, opts.deadline)
			defer cancel()
			filename, err := attempt(ctx)
			if err != nil {
				if apperr.Kind(err) == apperr.ErrBusy || strings.Contains(strings.ToLower(err.Error()), "busy") {
					atomic.AddInt32(&res.busy, 1)
					return
				}
				atomic.AddInt32(&res.errs, 1)
				return
			}
			atomic.AddInt32(&res.ok, 1)
			if filename != "" {
				mu.Lock()
				res.filenames[filename]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	res.elapsed = time.Since(start)
	return res, nil
}

func report(w io.Writer, res stressResult) {
	fmt.Fprintf(w, "launched=%d ok=%d busy=%d err=%d elapsed=%s\n", res.launched, res.ok, res.busy, res.errs, res.elapsed)
	if len(res.filenames) > 0 {
		fmt.Fprintf(w, "distinct files=%d\n", len(res.filenames))
	}
}

// thumbnail composes the payload every save client sends.
func thumbnail() ([]byte, int, error) {
	src := image.NewNRGBA(image.Rect(0, 0, 240, 240))
	for y := 0; y < 240; y++ {
		for x := 0; x < 240; x++ {
			src.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 0x80, A: 0xff})
		}
	}
	c := selection.Circle{CenterX: 120, CenterY: 120, Radius: 110}
	data, spec, err := compositor.New("").ComposePNG(src, c, compositor.White)
	if err != nil {
		return nil, 0, err
	}
	return data, spec.TargetSize, nil
}
