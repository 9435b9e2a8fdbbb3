package middleware

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	bm "github.com/charmbracelet/wish/bubbletea"
	"github.com/muesli/termenv"
	"github.com/ristiko/smilodon/db"
	"github.com/ristiko/smilodon/ui"
	"github.com/ristiko/smilodon/util"
)

// MainTui starts the operator console for an authenticated session. The
// color profile is forced to ANSI256 because the renderer cannot query
// the remote terminal.
func MainTui(conf *util.AppConfig, database *db.DB) wish.Middleware {
	teaHandler := func(s ssh.Session) (tea.Model, []tea.ProgramOption) {
		pty, _, active := s.Pty()
		if !active {
			wish.Fatalln(s, "no active terminal, skipping")
			return nil, nil
		}

		account := AccountFromSession(s)
		if account == nil {
			wish.Fatalln(s, "no account in session")
			return nil, nil
		}

		model := ui.NewModel(*account, conf, database, pty.Window.Width, pty.Window.Height)
		return model, []tea.ProgramOption{tea.WithAltScreen()}
	}

	return bm.MiddlewareWithColorProfile(teaHandler, termenv.ANSI256)
}
