package tui

import (
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

const helpText = `[yellow]Mouse[-]

  [green]drag bar[-]     Move pane
  [green]drag ◢[-]       Resize pane
  [green]drag content[-] Pan image
  [green]wheel[-]        Zoom image
  [green]□ / dbl-click[-] Maximize or restore
  [green]×[-]            Close pane

[yellow]Keys[-]

  [green]Tab[-]      Focus next pane
  [green]m[-]        Maximize or restore focused pane
  [green]r[-]        Reset zoom of focused pane
  [green]x[-]        Close focused pane
  [green]c[-]        Disconnect or reconnect
  [green]l[-]        Toggle lights
  [green]Esc[-]      Cancel drag
  [green]?[-]        This help
  [green]q[-]        Quit

Press [green]Escape[-] or [green]?[-] to close.`

func HelpDialog(onClose func()) *tview.TextView {
	tv := tview.NewTextView()
	tv.SetBorder(true).SetTitle(" Help ").SetTitleAlign(tview.AlignLeft)
	tv.SetDynamicColors(true)
	tv.SetBackgroundColor(tcell.ColorDefault)
	tv.SetText(helpText)
	tv.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyEscape || event.Rune() == '?' {
			onClose()
			return nil
		}
		return event
	})
	return tv
}

// ConfirmDialog shows a modal with a message and Yes/No buttons.
// onConfirm is called when the user selects Yes; onCancel on No or Escape.
func ConfirmDialog(message string, onConfirm func(), onCancel func()) *tview.Modal {
	modal := tview.NewModal().
		SetText(message).
		AddButtons([]string{"Yes", "No"}).
		SetDoneFunc(func(_ int, label string) {
			if label == "Yes" {
				onConfirm()
			} else {
				onCancel()
			}
		})
	modal.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyEscape {
			onCancel()
			return nil
		}
		return event
	})
	return modal
}
