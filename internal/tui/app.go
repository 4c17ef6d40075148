// Package tui is the terminal viewer: a tview desktop that renders the
// window manager's panes and turns mouse and key input into gestures.
package tui

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/zsprackett/display/internal/viewer"
	"github.com/zsprackett/display/internal/wm"
)

type App struct {
	tapp    *tview.Application
	pages   *tview.Pages
	desktop *Desktop
	footer  *tview.TextView
	mgr     *wm.Manager
	client  *viewer.Client
	logger  *slog.Logger

	url     string
	since   time.Time
	now     func() time.Time
	stopped chan struct{}
}

func NewApp(mgr *wm.Manager, client *viewer.Client, url string, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{
		mgr:     mgr,
		client:  client,
		logger:  logger,
		url:     url,
		now:     time.Now,
		stopped: make(chan struct{}),
	}
	a.since = a.now()

	a.tapp = tview.NewApplication()
	a.pages = tview.NewPages()
	a.desktop = NewDesktop(mgr, DefaultMetrics, logger).SetChangedFunc(a.refreshFooter)

	a.footer = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)

	root := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(a.desktop, 0, 1, true).
		AddItem(a.footer, 1, 0, false)
	a.pages.AddPage("desktop", root, true, true)

	mgr.OnStatus(func(wm.Status) {
		a.since = a.now()
		a.refreshFooter()
	})
	a.applyTheme()

	a.tapp.SetRoot(a.pages, true).EnableMouse(true)
	a.tapp.SetInputCapture(a.handleKey)
	if client != nil {
		client.SetExecutor(a.queue)
	}
	return a
}

// queue runs fn on the UI goroutine and redraws. Calls after the app has
// stopped are dropped.
func (a *App) queue(fn func()) {
	select {
	case <-a.stopped:
		return
	default:
	}
	a.tapp.QueueUpdateDraw(func() {
		fn()
		a.refreshFooter()
	})
}

// Run starts streaming and blocks until the user quits or ctx ends.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if a.client != nil {
		go func() {
			if err := a.client.Run(ctx); err != nil && ctx.Err() == nil {
				a.logger.Error("tui: viewer stopped", "err", err)
			}
		}()
	}
	go func() {
		<-ctx.Done()
		a.tapp.Stop()
	}()
	a.refreshFooter()
	err := a.tapp.Run()
	close(a.stopped)
	return err
}

func (a *App) handleKey(event *tcell.EventKey) *tcell.EventKey {
	if a.pages.GetPageCount() > 1 {
		return event
	}
	switch event.Key() {
	case tcell.KeyEscape:
		if p, ok := a.mgr.Active(); ok {
			p.CancelGesture()
			a.mgr.PointerUp(p.Rect().Position())
		}
		return nil
	case tcell.KeyTab:
		if stack := a.mgr.Registry().Stacked(); len(stack) > 1 {
			a.mgr.Focus(stack[0].ID())
		}
		return nil
	}
	switch event.Rune() {
	case 'q':
		a.tapp.Stop()
	case '?':
		a.showHelp()
	case 'l':
		a.mgr.ToggleLights()
		a.applyTheme()
	case 'c':
		a.toggleConnection()
	case 'm':
		if p, ok := a.top(); ok {
			a.mgr.ToggleMaximize(p)
		}
	case 'r':
		if p, ok := a.top(); ok {
			if pn, found := a.mgr.Pane(p); found {
				pn.ResetView()
			}
		}
	case 'x':
		if p, ok := a.top(); ok {
			a.confirmClose(p)
		}
	default:
		return event
	}
	a.refreshFooter()
	return nil
}

// top is the focused pane, the one drawn last.
func (a *App) top() (string, bool) {
	stack := a.mgr.Registry().Stacked()
	if len(stack) == 0 {
		return "", false
	}
	return stack[len(stack)-1].ID(), true
}

func (a *App) toggleConnection() {
	if a.client == nil {
		return
	}
	if a.client.Connected() {
		a.client.Disconnect()
		return
	}
	a.client.Reconnect()
}

func (a *App) applyTheme() {
	t := ThemeFor(a.mgr.LightsOff())
	a.desktop.SetBackgroundColor(t.Background)
	a.footer.SetBackgroundColor(t.Panel)
	a.footer.SetTextColor(t.Text)
}

func (a *App) refreshFooter() {
	a.footer.SetText(Footer(a.mgr, a.url, a.since, a.now()))
}

// Footer is the status line: connection state, pane count and key hints.
func Footer(mgr *wm.Manager, url string, since, now time.Time) string {
	icon, _ := StatusIcon(mgr.Status(), ThemeFor(mgr.LightsOff()))
	color := "red"
	if mgr.Status() == wm.Online {
		color = "green"
	}
	return fmt.Sprintf("[%s]%s %s[-] %s since %s  %s  "+
		"[green]drag[-] move  [green]◢[-] resize  [green]wheel[-] zoom  "+
		"[green]m[-] max  [green]x[-] close  [green]c[-] connect  [green]l[-] lights  [green]?[-] help  [green]q[-] quit",
		color, icon, mgr.Status(), tview.Escape(url),
		humanize.RelTime(since, now, "ago", "from now"),
		panesLabel(mgr.Len()))
}

func panesLabel(n int) string {
	if n == 1 {
		return "1 pane"
	}
	return humanize.Comma(int64(n)) + " panes"
}

func (a *App) showDialog(name string, widget tview.Primitive, width, height int) {
	modal := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().SetDirection(tview.FlexColumn).
			AddItem(nil, 0, 1, false).
			AddItem(widget, width, 0, true).
			AddItem(nil, 0, 1, false), height, 0, true).
		AddItem(nil, 0, 1, false)
	a.pages.AddPage(name, modal, true, true)
	a.tapp.SetFocus(widget)
}

func (a *App) closeDialog(name string) {
	a.pages.RemovePage(name)
	a.tapp.SetFocus(a.desktop)
}

func (a *App) showHelp() {
	a.showDialog("help", HelpDialog(func() { a.closeDialog("help") }), 56, 22)
}

func (a *App) confirmClose(id string) {
	title := id
	if p, ok := a.mgr.Pane(id); ok {
		title = BarTitle(p, 40)
	}
	modal := ConfirmDialog(
		fmt.Sprintf("Close pane %q?\nIts saved position is forgotten.", title),
		func() {
			a.closeDialog("confirm-close")
			if err := a.mgr.Close(id); err != nil {
				a.logger.Debug("tui: close", "pane", id, "err", err)
			}
			a.refreshFooter()
		},
		func() { a.closeDialog("confirm-close") },
	)
	a.pages.AddPage("confirm-close", modal, true, true)
}
