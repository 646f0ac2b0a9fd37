package view

import (
	"testing"

	"cna-finance/internal/model"
)

func TestResolve(t *testing.T) {
	user := &model.Session{ID: 1, Username: "alice", Role: model.RoleUser}
	admin := &model.Session{ID: 2, Username: "root", Role: model.RoleAdmin}

	cases := []struct {
		name string
		sess *model.Session
		auth View
		tab  Tab
		want View
	}{
		{"logged out", nil, Login, TabUser, Login},
		{"register screen", nil, Register, TabAdmin, Register},
		{"user", user, Login, TabUser, UserDashboard},
		{"user cannot reach admin", user, Login, TabAdmin, UserDashboard},
		{"admin default", admin, Login, TabUser, UserDashboard},
		{"admin tab", admin, Login, TabAdmin, AdminDashboard},
	}
	for _, tc := range cases {
		if got := Resolve(tc.sess, tc.auth, tc.tab); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestRouter_ResetAfterLogout(t *testing.T) {
	admin := &model.Session{ID: 2, Username: "root", Role: model.RoleAdmin}
	r := NewRouter()
	r.SelectTab(TabAdmin)
	if r.Current(admin) != AdminDashboard {
		t.Fatalf("expected admin dashboard")
	}

	r.Reset()
	if r.Current(nil) != Login {
		t.Fatalf("expected login after logout")
	}
	if r.Current(admin) != UserDashboard {
		t.Fatalf("re-login must start on the user tab")
	}
}

func TestRouter_SwitchAuthScreens(t *testing.T) {
	r := NewRouter()
	r.ShowRegister()
	if r.Current(nil) != Register {
		t.Fatalf("expected register")
	}
	r.ShowLogin()
	if r.Current(nil) != Login {
		t.Fatalf("expected login")
	}
}
