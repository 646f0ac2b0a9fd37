package view

import (
	"sync"

	"cna-finance/internal/model"
)

type View int

const (
	Login View = iota
	Register
	UserDashboard
	AdminDashboard
)

func (v View) String() string {
	switch v {
	case Login:
		return "login"
	case Register:
		return "register"
	case UserDashboard:
		return "user-dashboard"
	case AdminDashboard:
		return "admin-dashboard"
	default:
		return "unknown"
	}
}

type Tab int

const (
	TabUser Tab = iota
	TabAdmin
)

// Resolve picks the screen for the given state. Without a session only the
// auth screens are reachable; plain users never see the admin tab.
func Resolve(sess *model.Session, authScreen View, tab Tab) View {
	if sess == nil {
		if authScreen == Register {
			return Register
		}
		return Login
	}
	if sess.IsAdmin() && tab == TabAdmin {
		return AdminDashboard
	}
	return UserDashboard
}

// Router holds the UI selections Resolve needs besides the session.
type Router struct {
	mu         sync.Mutex
	authScreen View
	tab        Tab
}

func NewRouter() *Router {
	return &Router{authScreen: Login, tab: TabUser}
}

func (r *Router) Current(sess *model.Session) View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Resolve(sess, r.authScreen, r.tab)
}

func (r *Router) ShowLogin() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.authScreen = Login
}

func (r *Router) ShowRegister() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.authScreen = Register
}

func (r *Router) SelectTab(tab Tab) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tab = tab
}

func (r *Router) Tab() Tab {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tab
}

// Reset returns to the defaults used right after logout.
func (r *Router) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.authScreen = Login
	r.tab = TabUser
}
