// Package tray shows handwheel's state in the system tray and lets the user pause
// detection or quit.
package tray

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/getlantern/systray"
)

// refreshInterval is how often the status lines are redrawn.
const refreshInterval = 500 * time.Millisecond

// Snapshot is what the tray displays.
type Snapshot struct {
	Enabled     bool
	Subscribers int
	Angle       float64
	FistClosed  bool
}

// Tray represents the system tray application.
type Tray struct {
	endpoint string
	snapshot func() Snapshot
	onToggle func(enabled bool)
	onQuit   func()
	mu       sync.RWMutex

	menuToggle  *systray.MenuItem
	menuWheel   *systray.MenuItem
	menuClients *systray.MenuItem
}

// New creates a Tray. snapshot is polled to refresh the menu; endpoint is shown as the
// tooltip.
func New(endpoint string, snapshot func() Snapshot) *Tray {
	return &Tray{endpoint: endpoint, snapshot: snapshot}
}

// OnToggle sets the callback function to be called when the enabled state is toggled.
func (t *Tray) OnToggle(fn func(enabled bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray and blocks until Quit is clicked or ctx is done.
// It must be called from the main goroutine.
func (t *Tray) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		systray.Quit()
	}()
	systray.Run(func() { t.onReady(ctx) }, func() {})
}

func (t *Tray) onReady(ctx context.Context) {
	systray.SetTitle("Handwheel")
	systray.SetTooltip("Steering stream on " + t.endpoint)

	snap := t.snapshot()

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(toggleTitle(snap.Enabled), "Pause or resume hand tracking")
	systray.AddSeparator()
	t.menuWheel = systray.AddMenuItem(wheelTitle(snap), "Current wheel state")
	t.menuWheel.Disable()
	t.menuClients = systray.AddMenuItem(clientsTitle(snap.Subscribers), "Connected subscribers")
	t.menuClients.Disable()
	t.mu.Unlock()

	systray.AddSeparator()
	menuQuit := systray.AddMenuItem("Quit", "Quit Handwheel")

	go func() {
		ticker := time.NewTicker(refreshInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.refresh()
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func (t *Tray) refresh() {
	snap := t.snapshot()

	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.menuToggle == nil {
		return
	}
	t.menuToggle.SetTitle(toggleTitle(snap.Enabled))
	t.menuWheel.SetTitle(wheelTitle(snap))
	t.menuClients.SetTitle(clientsTitle(snap.Subscribers))
}

// handleToggle flips the enabled state reported by the snapshot.
func (t *Tray) handleToggle() {
	enabled := !t.snapshot().Enabled

	t.mu.RLock()
	callback := t.onToggle
	t.mu.RUnlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		callback(enabled)
	}
	t.refresh()
}

func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

func toggleTitle(enabled bool) string {
	if enabled {
		return "● Tracking"
	}
	return "○ Paused"
}

func wheelTitle(s Snapshot) string {
	hand := "open"
	if s.FistClosed {
		hand = "fist"
	}
	return fmt.Sprintf("Wheel: %.2f rad, %s", s.Angle, hand)
}

func clientsTitle(n int) string {
	if n == 1 {
		return "1 client"
	}
	return fmt.Sprintf("%d clients", n)
}
