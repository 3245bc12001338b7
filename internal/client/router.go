package client

import (
	"strings"

	"campusattend/internal/auth"
)

// Action is what the UI should do for a path.
type Action int

const (
	// Wait means the session is still loading and no decision is made.
	Wait Action = iota
	Redirect
	Render
)

func (a Action) String() string {
	switch a {
	case Wait:
		return "wait"
	case Redirect:
		return "redirect"
	default:
		return "render"
	}
}

// Decision is the router's answer. Path is the redirect target for
// Redirect and the workflow path for Render.
type Decision struct {
	Action Action
	Path   string
}

const (
	PathRoot     = "/"
	PathLogin    = "/login"
	PathRegister = "/register"
)

// Router maps (session, path) to a decision.
type Router struct{}

func (Router) Resolve(s SessionView, path string) Decision {
	if path == "" {
		path = PathRoot
	}
	switch s.Status() {
	case StatusLoading:
		return Decision{Action: Wait}
	case StatusAnonymous:
		if path == PathLogin || path == PathRegister {
			return Decision{Action: Render, Path: path}
		}
		return Decision{Action: Redirect, Path: PathLogin}
	}

	role := s.Role()
	if role == nil {
		return Decision{Action: Redirect, Path: PathLogin}
	}
	root := role.RootPath()
	if path == PathRoot || path == PathLogin || path == PathRegister {
		return Decision{Action: Redirect, Path: root}
	}
	if owner, ok := pathRole(path); !ok || !sameRole(owner, role) {
		return Decision{Action: Redirect, Path: root}
	}
	return Decision{Action: Render, Path: path}
}

func sameRole(a, b auth.Role) bool {
	switch {
	case auth.IsStudent(a):
		return auth.IsStudent(b)
	case auth.IsAdmin(a):
		return auth.IsAdmin(b)
	default:
		return false
	}
}

// pathRole returns the role that owns a workflow path.
func pathRole(path string) (auth.Role, bool) {
	for _, r := range []auth.Role{auth.Student, auth.Admin} {
		prefix := "/" + r.String()
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return r, true
		}
	}
	return nil, false
}
