//go:build integration

package integration

import (
	"net/http"
	"testing"
)

type profileResponse struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Avatar string `json:"avatar"`
}

func TestUpdateMe_PersistsProfile(t *testing.T) {
	s := register(t)

	resp := do(t, http.MethodPatch, "/api/v1/users/me", s.Token, map[string]string{"name": "Renamed User"})
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusOK)

	me := do(t, http.MethodGet, "/api/v1/users/me", s.Token, nil)
	defer me.Body.Close()
	expectStatus(t, me, http.StatusOK)
	got := decodeJSON[envelope[profileResponse]](t, me).Data
	if got.Name != "Renamed User" {
		t.Fatalf("name after update: got %q", got.Name)
	}
	if got.Email != s.User.Email {
		t.Fatalf("email changed: got %q, want %q", got.Email, s.User.Email)
	}
}

func TestChangePassword_OldPasswordStopsWorking(t *testing.T) {
	s := register(t)

	resp := do(t, http.MethodPut, "/api/v1/auth/password", s.Token, map[string]string{
		"currentPassword": "correct-horse",
		"newPassword":     "battery-staple",
	})
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusOK)

	login(t, s.User.Email, "battery-staple")

	old := do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email":    s.User.Email,
		"password": "correct-horse",
	})
	defer old.Body.Close()
	expectStatus(t, old, http.StatusUnauthorized)
}

func TestListUsers_AdminOnly(t *testing.T) {
	s := register(t)

	resp := do(t, http.MethodGet, "/api/v1/users", s.Token, nil)
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusForbidden)

	admin := login(t, adminEmail, adminPassword)
	list := do(t, http.MethodGet, "/api/v1/users?limit=200", admin.Token, nil)
	defer list.Body.Close()
	expectStatus(t, list, http.StatusOK)

	found := false
	for _, u := range decodeJSON[envelope[[]profileResponse]](t, list).Data {
		if u.ID == s.User.ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("registered user %s missing from admin listing", s.User.ID)
	}
}
