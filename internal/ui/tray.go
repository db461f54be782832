package ui

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"sync"

	"github.com/getlantern/systray"

	"github.com/heimdex/heimdex-review/internal/index"
	"github.com/heimdex/heimdex-review/internal/playback"
	"github.com/heimdex/heimdex-review/internal/review"
)

//go:embed icon.png
var iconBytes []byte

// Tray is a menu-bar observer of the review session. It shows the loaded
// project and the playhead and offers play/pause, reload and quit.
type Tray struct {
	review   *review.Service
	playback *playback.Controller
	logger   *slog.Logger

	projectItem  *systray.MenuItem
	gameItem     *systray.MenuItem
	playheadItem *systray.MenuItem
	playItem     *systray.MenuItem

	mu    sync.Mutex
	ready bool

	onQuit func()
}

type TrayConfig struct {
	Review   *review.Service
	Playback *playback.Controller
	Logger   *slog.Logger
	OnQuit   func()
}

func NewTray(cfg TrayConfig) *Tray {
	return &Tray{
		review:   cfg.Review,
		playback: cfg.Playback,
		logger:   cfg.Logger,
		onQuit:   cfg.OnQuit,
	}
}

// Run blocks on the platform event loop. It must be called from the main
// goroutine.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

func (t *Tray) onReady() {
	systray.SetIcon(iconBytes)
	systray.SetTitle("Heimdex")
	systray.SetTooltip("Heimdex Review")

	t.projectItem = systray.AddMenuItem("Project: none", "Open project")
	t.projectItem.Disable()

	t.gameItem = systray.AddMenuItem("Game: none", "Loaded game")
	t.gameItem.Disable()

	t.playheadItem = systray.AddMenuItem("Paused 00:00.000", "Playhead")
	t.playheadItem.Disable()

	systray.AddSeparator()

	t.playItem = systray.AddMenuItem("Play", "Play or pause")
	reloadItem := systray.AddMenuItem("Reload", "Reload annotations and moments")

	systray.AddSeparator()

	quitItem := systray.AddMenuItem("Quit", "Quit Heimdex Review")

	t.mu.Lock()
	t.ready = true
	t.mu.Unlock()

	t.ShowSnapshot(t.review.Snapshot())
	t.ShowPlayback(t.playback.State())

	go func() {
		for {
			select {
			case <-t.playItem.ClickedCh:
				t.togglePlayback()
			case <-reloadItem.ClickedCh:
				t.reload()
			case <-quitItem.ClickedCh:
				t.logger.Info("quit requested from tray")
				if t.onQuit != nil {
					t.onQuit()
				}
				systray.Quit()
				return
			}
		}
	}()

	t.logger.Info("system tray ready")
}

func (t *Tray) onExit() {
	t.logger.Info("system tray exiting")
}

// Watch mirrors playback state into the menu until ctx is done.
func (t *Tray) Watch(ctx context.Context) {
	sub := t.playback.Subscribe()
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-sub.C:
			if !ok {
				return
			}
			t.ShowPlayback(st)
		}
	}
}

func (t *Tray) togglePlayback() {
	if _, err := t.playback.Toggle(); err != nil {
		t.logger.Error("failed to toggle playback", "error", err)
	}
}

func (t *Tray) reload() {
	if _, err := t.review.Reload(context.Background()); err != nil {
		t.logger.Error("reload from tray failed", "error", err)
	}
}

// ShowSnapshot is registered as a reload listener.
func (t *Tray) ShowSnapshot(snap *index.Snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.ready {
		return
	}

	ctx := context.Background()
	project := "none"
	if p, err := t.review.Project(ctx); err == nil && p != nil {
		project = p.Name
	}
	game := "none"
	if g, err := t.review.Game(ctx); err == nil && g != nil {
		game = fmt.Sprintf("%s (%d moments)", g.Title, snap.MomentCount())
	}

	t.projectItem.SetTitle("Project: " + project)
	t.gameItem.SetTitle("Game: " + game)
}

func (t *Tray) ShowPlayback(st playback.State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.ready {
		return
	}

	label := "Paused"
	action := "Play"
	if st.Playing() {
		label = "Playing"
		action = "Pause"
	}
	if st.Seeking {
		label += " (seeking)"
	}
	t.playheadItem.SetTitle(label + " " + index.FormatTimestamp(st.PositionMs()))
	t.playItem.SetTitle(action)
}
