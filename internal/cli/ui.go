package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/term"

	"cna-finance/internal/admin"
	"cna-finance/internal/app"
	"cna-finance/internal/gateway"
	"cna-finance/internal/model"
	"cna-finance/internal/payment"
	"cna-finance/internal/view"
)

const (
	msgAccountCreated = "Conta criada! Faça login."
	msgInvalidOption  = "Opção inválida."
	msgInvalidUser    = "Usuário inválido."
	msgBusy           = "Pagamento em andamento. Aguarde."
)

// UI drives the client screens over a line-oriented terminal.
type UI struct {
	app *app.App
	in  *bufio.Reader
	out io.Writer

	eof         bool
	lastChoice  string
	adminLoaded bool

	// readSecret, when set, reads a password without echo.
	readSecret func() ([]byte, error)
}

func NewUI(a *app.App, in *bufio.Reader, out io.Writer) *UI {
	return &UI{app: a, in: in, out: out}
}

// UseTerminal hides typed passwords when fd is an interactive terminal.
// Piped input keeps the line reader.
func (ui *UI) UseTerminal(fd int) {
	if !term.IsTerminal(fd) {
		return
	}
	ui.readSecret = func() ([]byte, error) { return term.ReadPassword(fd) }
}

// Run shows screens until the user exits, input ends or ctx is cancelled.
// Background work is stopped before it returns; the session stays persisted.
func (ui *UI) Run(ctx context.Context) error {
	defer ui.app.LeaveDashboard()

	for ctx.Err() == nil {
		var keepGoing bool
		switch ui.app.View() {
		case view.Login:
			keepGoing = ui.loginScreen(ctx)
		case view.Register:
			keepGoing = ui.registerScreen(ctx)
		case view.UserDashboard:
			ui.app.EnterDashboard(ctx)
			keepGoing = ui.userScreen(ctx)
		case view.AdminDashboard:
			ui.app.EnterDashboard(ctx)
			keepGoing = ui.adminScreen(ctx)
		}
		if !keepGoing || ui.eof {
			return nil
		}
	}
	return ctx.Err()
}

func (ui *UI) loginScreen(ctx context.Context) bool {
	if notice := ui.app.TakeNotice(); notice != "" {
		fmt.Fprintln(ui.out, notice)
	}
	fmt.Fprintln(ui.out, "\n=== CNA Finance: Entrar ===")
	fmt.Fprintln(ui.out, "1) Entrar")
	fmt.Fprintln(ui.out, "2) Criar conta")
	fmt.Fprintln(ui.out, "0) Sair")
	switch ui.choice() {
	case "1":
		username := ui.prompt("Usuário:")
		password := ui.readPassword("Senha:")
		if ui.eof {
			return false
		}
		sess, err := ui.app.Login(ctx, username, password)
		if err != nil {
			ui.printErr(err, gateway.MsgLoginFailed)
			return true
		}
		fmt.Fprintf(ui.out, "Bem-vindo, %s!\n", sess.Username)
	case "2":
		ui.app.Router().ShowRegister()
	case "0":
		return false
	case "":
		return !ui.eof
	default:
		fmt.Fprintln(ui.out, msgInvalidOption)
	}
	return true
}

func (ui *UI) registerScreen(ctx context.Context) bool {
	fmt.Fprintln(ui.out, "\n=== CNA Finance: Criar conta ===")
	fmt.Fprintln(ui.out, "1) Cadastrar")
	fmt.Fprintln(ui.out, "2) Já tenho conta")
	fmt.Fprintln(ui.out, "0) Sair")
	switch ui.choice() {
	case "1":
		username := ui.prompt("Usuário:")
		password := ui.readPassword("Senha:")
		if ui.eof {
			return false
		}
		if err := ui.app.Register(ctx, username, password); err != nil {
			ui.printErr(err, gateway.MsgRegisterFailed)
			return true
		}
		fmt.Fprintln(ui.out, msgAccountCreated)
	case "2":
		ui.app.Router().ShowLogin()
	case "0":
		return false
	case "":
		return !ui.eof
	default:
		fmt.Fprintln(ui.out, msgInvalidOption)
	}
	return true
}

func (ui *UI) userScreen(ctx context.Context) bool {
	sess, ok := ui.app.Session()
	if !ok {
		return true
	}
	fmt.Fprintf(ui.out, "\n=== Olá, %s ===\n", sess.Username)
	fmt.Fprintf(ui.out, "Saldo: %s\n", model.FormatMoney(sess.Balance))
	fmt.Fprintln(ui.out, "1) Pagar")
	fmt.Fprintln(ui.out, "2) Atualizar saldo")
	if sess.IsAdmin() {
		fmt.Fprintln(ui.out, "3) Painel administrativo")
	}
	fmt.Fprintln(ui.out, "0) Sair da conta")

	choice := ui.choice()
	if _, ok := ui.app.Session(); !ok {
		// Logged out in the background while the menu was up.
		return !ui.eof
	}
	switch choice {
	case "1":
		amount := ui.prompt("Valor (CNA$):")
		if ui.eof {
			return false
		}
		out, err := ui.app.Pay(ctx, amount)
		if errors.Is(err, payment.ErrBusy) {
			fmt.Fprintln(ui.out, msgBusy)
			return true
		}
		fmt.Fprintln(ui.out, out.Message)
	case "2":
		ui.app.Refresh()
	case "3":
		if sess.IsAdmin() {
			ui.adminLoaded = false
			ui.app.Router().SelectTab(view.TabAdmin)
			return true
		}
		fmt.Fprintln(ui.out, msgInvalidOption)
	case "0":
		ui.app.Logout()
	case "":
		return !ui.eof
	default:
		fmt.Fprintln(ui.out, msgInvalidOption)
	}
	return true
}

func (ui *UI) adminScreen(ctx context.Context) bool {
	dash := ui.app.Admin()
	fmt.Fprintln(ui.out, "\n=== Painel administrativo ===")

	if dash.Variant() == admin.VariantList {
		if !ui.adminLoaded {
			ui.adminLoaded = true
			if !ui.report(dash.Refresh(ctx)) {
				return true
			}
		}
		return ui.adminListMenu(ctx, dash)
	}
	return ui.adminSearchMenu(ctx, dash)
}

func (ui *UI) adminSearchMenu(ctx context.Context, dash *admin.Dashboard) bool {
	if sel, ok := dash.Selected(); ok {
		fmt.Fprintf(ui.out, "Selecionado: %s (%s)\n", sel.Username, model.FormatMoney(sel.Balance))
	}
	fmt.Fprintln(ui.out, "1) Buscar usuário")
	fmt.Fprintln(ui.out, "2) Selecionar usuário")
	fmt.Fprintln(ui.out, "3) Adicionar saldo")
	fmt.Fprintln(ui.out, "4) Remover saldo")
	fmt.Fprintln(ui.out, "5) Minha conta")
	fmt.Fprintln(ui.out, "0) Sair da conta")

	switch ui.choice() {
	case "1":
		term := ui.prompt("Nome:")
		if ui.report(dash.Search(ctx, term)) {
			ui.printUsers(dash, dash.Users())
		}
	case "2":
		id, ok := ui.promptID()
		if !ok {
			return !ui.eof
		}
		if _, err := dash.Select(id); err != nil {
			fmt.Fprintln(ui.out, msgInvalidUser)
		}
	case "3", "4":
		sel, ok := dash.Selected()
		if !ok {
			fmt.Fprintln(ui.out, admin.MsgSelectAndFill)
			return true
		}
		amount := ui.prompt("Valor (CNA$):")
		ui.report(dash.ApplyAdjustment(ctx, sel.ID, amount, direction(ui.lastChoice)))
	case "5":
		ui.app.Router().SelectTab(view.TabUser)
	case "0":
		ui.app.Logout()
	case "":
		return !ui.eof
	default:
		fmt.Fprintln(ui.out, msgInvalidOption)
	}
	return true
}

func (ui *UI) adminListMenu(ctx context.Context, dash *admin.Dashboard) bool {
	ui.printUsers(dash, dash.Visible())
	fmt.Fprintln(ui.out, "1) Recarregar lista")
	fmt.Fprintln(ui.out, "2) Filtrar por nome")
	fmt.Fprintln(ui.out, "3) Definir valor")
	fmt.Fprintln(ui.out, "4) Adicionar saldo")
	fmt.Fprintln(ui.out, "5) Remover saldo")
	fmt.Fprintln(ui.out, "6) Minha conta")
	fmt.Fprintln(ui.out, "0) Sair da conta")

	switch ui.choice() {
	case "1":
		ui.report(dash.Refresh(ctx))
	case "2":
		dash.SetFilter(ui.prompt("Filtro:"))
	case "3":
		id, ok := ui.promptID()
		if !ok {
			return !ui.eof
		}
		dash.SetPending(id, ui.prompt("Valor (CNA$):"))
	case "4", "5":
		id, ok := ui.promptID()
		if !ok {
			return !ui.eof
		}
		dir := admin.Add
		if ui.lastChoice == "5" {
			dir = admin.Remove
		}
		ui.report(dash.ApplyPending(ctx, id, dir))
	case "6":
		ui.app.Router().SelectTab(view.TabUser)
	case "0":
		ui.app.Logout()
	case "":
		return !ui.eof
	default:
		fmt.Fprintln(ui.out, msgInvalidOption)
	}
	return true
}

func direction(choice string) admin.Direction {
	if choice == "4" {
		return admin.Remove
	}
	return admin.Add
}

// report prints an admin result and reports whether it was a success.
func (ui *UI) report(res admin.Result) bool {
	res = ui.app.AdminResult(res)
	if res.Message != "" {
		fmt.Fprintln(ui.out, res.Message)
	}
	return res.Err == nil && !res.NoResults
}

func (ui *UI) printUsers(dash *admin.Dashboard, users []model.RemoteUser) {
	if banner := dash.Banner(); banner != "" {
		fmt.Fprintf(ui.out, "! %s\n", banner)
	}
	for _, u := range users {
		line := fmt.Sprintf("#%d  %-16s %s", u.ID, u.Username, model.FormatMoney(u.Balance))
		if pending, ok := dash.Pending(u.ID); ok && pending != "" {
			line += fmt.Sprintf("  [valor: %s]", pending)
		}
		fmt.Fprintln(ui.out, line)
	}
}

func (ui *UI) printErr(err error, fallback string) {
	fmt.Fprintln(ui.out, "Erro:", gateway.Message(err, fallback))
}

func (ui *UI) choice() string {
	fmt.Fprint(ui.out, "> ")
	ui.lastChoice = strings.TrimSpace(ui.readLine())
	return ui.lastChoice
}

func (ui *UI) prompt(label string) string {
	fmt.Fprint(ui.out, label+" ")
	return strings.TrimSpace(ui.readLine())
}

func (ui *UI) promptID() (int64, bool) {
	raw := strings.TrimPrefix(ui.prompt("ID do usuário:"), "#")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		if !ui.eof {
			fmt.Fprintln(ui.out, msgInvalidUser)
		}
		return 0, false
	}
	return id, true
}

func (ui *UI) readLine() string {
	s, err := ui.in.ReadString('\n')
	if err != nil && s == "" {
		ui.eof = true
	}
	return strings.TrimRight(s, "\r\n")
}

func (ui *UI) readPassword(label string) string {
	fmt.Fprint(ui.out, label+" ")
	if ui.readSecret == nil {
		return ui.readLine()
	}
	secret, err := ui.readSecret()
	fmt.Fprintln(ui.out)
	if err != nil {
		ui.eof = true
		return ""
	}
	return strings.TrimRight(string(secret), "\r\n")
}
