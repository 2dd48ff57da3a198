package tui

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/rs/zerolog"

	"chat-client/internal/chat"
	"chat-client/internal/models"
	"chat-client/internal/presence"
)

var (
	ColorBg     = tcell.NewRGBColor(0, 0, 128)
	ColorFg     = tcell.NewRGBColor(192, 192, 192)
	ColorBorder = tcell.NewRGBColor(0, 255, 255)
	ColorTitle  = tcell.NewRGBColor(255, 255, 255)
	ColorBar    = tcell.NewRGBColor(0, 128, 128)
)

const noticeTTL = 4 * time.Second

// Controls is what the UI drives.
type Controls interface {
	Select(userID int)
	Back()
	LoadOlder()
	Search(term string)
	Send(text string)
	Input(draft string)
}

// App is a tview front-end implementing chat.Renderer.
type App struct {
	app   *tview.Application
	pages *tview.Pages
	ctl   Controls
	log   zerolog.Logger
	done  chan struct{}

	users     *tview.List
	search    *tview.InputField
	rosterBar *tview.TextView

	chatView *tview.TextView
	input    *tview.InputField
	chatBar  *tview.TextView

	// owned by the UI goroutine
	shown       []models.User
	openID      int
	pending     string
	settingText bool
	chatStatus  string
	noticeGen   int
}

func New(logger zerolog.Logger) *App {
	a := &App{
		app:        tview.NewApplication(),
		pages:      tview.NewPages(),
		log:        logger,
		done:       make(chan struct{}),
		chatStatus: chatHelp,
	}
	a.pages.AddPage("roster", a.createRosterPage(), true, true)
	a.pages.AddPage("chat", a.createChatPage(), true, false)
	return a
}

// Run blocks until the user quits or ctx is cancelled.
func (a *App) Run(ctx context.Context, ctl Controls) error {
	a.ctl = ctl
	defer close(a.done)

	go func() {
		select {
		case <-ctx.Done():
			a.app.Stop()
		case <-a.done:
		}
	}()

	a.app.SetFocus(a.users)
	return a.app.SetRoot(a.pages, true).EnableMouse(false).Run()
}

// queue schedules fn on the UI goroutine unless the UI has exited.
func (a *App) queue(fn func()) {
	select {
	case <-a.done:
		return
	default:
	}
	a.app.QueueUpdateDraw(fn)
}

func (a *App) createRosterPage() tview.Primitive {
	a.search = tview.NewInputField()
	a.search.SetLabel("Search: ")
	a.search.SetFieldWidth(0)
	a.search.SetBackgroundColor(ColorBg)
	a.search.SetFieldBackgroundColor(tcell.NewRGBColor(0, 0, 64))
	a.search.SetFieldTextColor(ColorFg)
	a.search.SetLabelColor(ColorBorder)
	a.search.SetChangedFunc(func(text string) {
		if a.ctl != nil {
			a.ctl.Search(text)
		}
	})
	a.search.SetDoneFunc(func(tcell.Key) {
		a.app.SetFocus(a.users)
	})

	a.users = tview.NewList()
	a.users.SetBorder(true)
	a.users.SetBorderColor(ColorBorder)
	a.users.SetBackgroundColor(ColorBg)
	a.users.SetTitle(" Users ")
	a.users.SetTitleColor(ColorTitle)
	a.users.SetMainTextColor(ColorFg)
	a.users.SetSelectedTextColor(ColorTitle)
	a.users.SetSelectedBackgroundColor(ColorBar)
	a.users.SetHighlightFullLine(true)
	a.users.ShowSecondaryText(true)
	a.users.SetSelectedFunc(func(index int, _, _ string, _ rune) {
		if index < len(a.shown) && a.ctl != nil {
			a.ctl.Select(a.shown[index].ID)
		}
	})

	a.rosterBar = tview.NewTextView()
	a.rosterBar.SetDynamicColors(true)
	a.rosterBar.SetBackgroundColor(ColorBar)
	a.rosterBar.SetTextColor(ColorTitle)
	a.rosterBar.SetTextAlign(tview.AlignCenter)
	a.rosterBar.SetText(rosterHelp)

	flex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(a.search, 1, 0, false).
		AddItem(a.users, 0, 1, true).
		AddItem(a.rosterBar, 1, 0, false)
	flex.SetBackgroundColor(ColorBg)

	flex.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch {
		case event.Key() == tcell.KeyEsc:
			a.app.SetFocus(a.users)
			return nil
		case event.Rune() == '/' && a.users.HasFocus():
			a.app.SetFocus(a.search)
			return nil
		}
		return event
	})
	return flex
}

func (a *App) createChatPage() tview.Primitive {
	a.chatView = tview.NewTextView()
	a.chatView.SetBorder(true)
	a.chatView.SetBorderColor(ColorBorder)
	a.chatView.SetBackgroundColor(ColorBg)
	a.chatView.SetTitleColor(ColorTitle)
	a.chatView.SetTextColor(ColorFg)
	a.chatView.SetDynamicColors(true)
	a.chatView.SetScrollable(true)
	a.chatView.SetWrap(false)

	a.input = tview.NewInputField()
	a.input.SetLabel("> ")
	a.input.SetFieldWidth(0)
	a.input.SetBackgroundColor(ColorBg)
	a.input.SetFieldBackgroundColor(tcell.NewRGBColor(0, 0, 64))
	a.input.SetFieldTextColor(ColorFg)
	a.input.SetLabelColor(ColorBorder)
	a.input.SetBorder(true)
	a.input.SetBorderColor(ColorBorder)
	a.input.SetTitle(" Message ")
	a.input.SetTitleColor(ColorTitle)
	a.input.SetChangedFunc(func(text string) {
		if a.settingText || a.ctl == nil {
			return
		}
		a.ctl.Input(text)
	})
	a.input.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter || a.ctl == nil {
			return
		}
		text := a.input.GetText()
		a.pending = strings.TrimSpace(text)
		a.ctl.Send(text)
	})

	a.chatBar = tview.NewTextView()
	a.chatBar.SetDynamicColors(true)
	a.chatBar.SetBackgroundColor(ColorBar)
	a.chatBar.SetTextColor(ColorTitle)
	a.chatBar.SetTextAlign(tview.AlignCenter)
	a.chatBar.SetText(chatHelp)

	flex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(a.chatView, 0, 1, false).
		AddItem(a.input, 3, 0, true).
		AddItem(a.chatBar, 1, 0, false)
	flex.SetBackgroundColor(ColorBg)

	flex.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyEsc:
			if a.ctl != nil {
				a.ctl.Back()
			}
			return nil
		case tcell.KeyPgUp:
			row, col := a.chatView.GetScrollOffset()
			if row <= 0 {
				if a.ctl != nil {
					a.ctl.LoadOlder()
				}
				return nil
			}
			a.chatView.ScrollTo(max(row-10, 0), col)
			return nil
		case tcell.KeyPgDn:
			row, col := a.chatView.GetScrollOffset()
			a.chatView.ScrollTo(row+10, col)
			return nil
		}
		return event
	})
	return flex
}

func (a *App) setInputText(text string) {
	a.settingText = true
	a.input.SetText(text)
	a.settingText = false
}

// flash shows a transient message in the status bars.
func (a *App) flash(text string) {
	a.noticeGen++
	gen := a.noticeGen
	a.chatBar.SetText(text)
	a.rosterBar.SetText(text)
	time.AfterFunc(noticeTTL, func() {
		a.queue(func() {
			if gen != a.noticeGen {
				return
			}
			a.chatBar.SetText(a.chatStatus)
			a.rosterBar.SetText(rosterHelp)
		})
	})
}

var _ chat.Renderer = (*App)(nil)

func (a *App) RenderRoster(v chat.RosterView) {
	a.queue(func() {
		current := 0
		if i := a.users.GetCurrentItem(); i >= 0 && i < len(a.shown) {
			current = a.shown[i].ID
		}

		a.shown = v.Users
		a.users.Clear()
		for i, u := range v.Users {
			a.users.AddItem(rosterEntry(u), "  "+presence.StatusLine(u), 0, nil)
			if u.ID == current {
				a.users.SetCurrentItem(i)
			}
		}
		a.users.SetTitle(" Users ─ " + strconv.Itoa(v.OnlineCount) + " online ")
	})
}

func (a *App) RenderConversation(v chat.ConversationView) {
	a.queue(func() {
		if !v.Open {
			if a.openID != 0 {
				a.openID = 0
				a.pending = ""
				a.setInputText("")
				a.chatView.Clear()
			}
			a.pages.SwitchToPage("roster")
			a.app.SetFocus(a.users)
			return
		}

		if v.User.ID != a.openID {
			a.openID = v.User.ID
			a.pending = ""
			a.setInputText("")
			a.chatView.Clear()
			a.pages.SwitchToPage("chat")
			a.app.SetFocus(a.input)
		}

		a.chatView.SetTitle(chatTitle(v))
		a.input.SetDisabled(!v.CanSend)

		row, col := a.chatView.GetScrollOffset()
		a.chatView.SetText(transcript(v))
		switch v.Scroll {
		case chat.ScrollBottom:
			a.chatView.ScrollToEnd()
		case chat.ScrollAnchor:
			a.chatView.ScrollTo(row+v.Prepended, col)
		default:
			a.chatView.ScrollTo(row, col)
		}

		if sentConfirmed(v, a.pending) {
			a.pending = ""
			a.setInputText("")
		}

		a.chatStatus = chatStatus(v)
		a.chatBar.SetText(a.chatStatus)
	})
}

func (a *App) ShowNotice(text string) {
	a.queue(func() {
		a.pending = ""
		a.flash(" [red]" + tview.Escape(text) + "[-] ")
	})
}

func (a *App) Notify(from models.User, m models.Message) {
	a.queue(func() {
		a.log.Debug().Int("from", from.ID).Msg("[tui] notification")
		a.flash(" [yellow]" + tview.Escape(displayName(from)) + ":[-] " + tview.Escape(preview(m.Content)) + " ")
	})
}
