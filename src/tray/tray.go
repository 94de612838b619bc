// Package tray shows the server's notification-area icon.
package tray

import (
	"fmt"
	"log"
	"os/exec"
	"runtime"
	"strings"
	"sync"

	"github.com/getlantern/systray"
)

// Config describes the tray icon and its actions.
type Config struct {
	Title   string
	Tooltip string
	// URL is opened by "Open editor".
	URL    string
	OnExit func()
}

type Tray struct {
	cfg Config

	mu         sync.Mutex
	aboutExtra []string
	ready      bool
}

func New(cfg Config) (*Tray, error) {
	if cfg.Title == "" {
		cfg.Title = "Circle Thumbnail Creator"
	}
	if cfg.Tooltip == "" {
		cfg.Tooltip = cfg.Title
	}
	return &Tray{cfg: cfg}, nil
}

// Run blocks on the systray message loop until Quit.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit tears the icon down; Run returns afterwards.
func (t *Tray) Quit() { systray.Quit() }

// SetAboutExtra adds a line to the About text.
func (t *Tray) SetAboutExtra(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.aboutExtra = append(t.aboutExtra, line)
}

// SetTooltip updates the hover text once the icon exists.
func (t *Tray) SetTooltip(s string) {
	t.mu.Lock()
	ready := t.ready
	t.mu.Unlock()
	if ready {
		systray.SetTooltip(s)
	}
}

func (t *Tray) aboutText() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	lines := []string{t.cfg.Title, "Select a circle in any image and save it as a 200 or 400 px thumbnail."}
	if t.cfg.URL != "" {
		lines = append(lines, "Editor: "+t.cfg.URL)
	}
	lines = append(lines, t.aboutExtra...)
	return strings.Join(lines, "\n")
}

func (t *Tray) onReady() {
	if icon, err := iconBytes(); err != nil {
		log.Printf("Tray: icon render failed: %v", err)
	} else {
		systray.SetIcon(icon)
	}
	systray.SetTitle(t.cfg.Title)
	systray.SetTooltip(t.cfg.Tooltip)

	mOpen := systray.AddMenuItem("Open editor", "Open the editor in a browser")
	mAbout := systray.AddMenuItem("About", "About this tool")
	systray.AddSeparator()
	mQuit := systray.AddMenuItem("Quit", "Stop the server")

	t.mu.Lock()
	t.ready = true
	t.mu.Unlock()

	go func() {
		for {
			select {
			case <-mOpen.ClickedCh:
				if err := OpenBrowser(t.cfg.URL); err != nil {
					log.Printf("Tray: open browser failed: %v", err)
				}
			case <-mAbout.ClickedCh:
				showAbout("About", t.aboutText())
			case <-mQuit.ClickedCh:
				systray.Quit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {
	if t.cfg.OnExit != nil {
		t.cfg.OnExit()
	}
}

// OpenBrowser opens url with the platform's default handler.
func OpenBrowser(url string) error {
	if url == "" {
		return fmt.Errorf("no url to open")
	}
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	case "darwin":
		cmd = exec.Command("open", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}
