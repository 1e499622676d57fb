package control

import (
	"github.com/nerrad567/homedash-core/internal/session"
	"github.com/nerrad567/homedash-core/internal/store"
)

// Theme is the colour scheme a client renders with.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// ParseTheme returns ThemeDark for "dark" and ThemeLight otherwise.
func ParseTheme(s string) Theme {
	if Theme(s) == ThemeDark {
		return ThemeDark
	}
	return ThemeLight
}

// Env is the per-client context every surface renders in. It is replaced
// wholesale when the session changes; surfaces built for the old Env are
// closed and rebuilt.
type Env struct {
	Principal session.Principal
	Theme     Theme
}

// Authenticated reports whether the environment carries a principal.
func (e Env) Authenticated() bool {
	return e.Principal.UserID != ""
}

// Actor returns the store actor writes are made as.
func (e Env) Actor() store.Actor {
	return store.Actor{
		UserID: e.Principal.UserID,
		Email:  e.Principal.Email,
		Role:   e.Principal.Role,
	}
}
