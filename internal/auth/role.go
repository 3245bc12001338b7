package auth

import (
	"encoding/json"
	"fmt"
)

// Role is the closed set {Student, Admin}. The unexported method keeps
// other packages from adding variants, so a type switch over
// studentRole/adminRole is exhaustive.
type Role interface {
	String() string
	// RootPath is the landing path of the role's workflow tree.
	RootPath() string
	sealed()
}

type studentRole struct{}

func (studentRole) String() string   { return "student" }
func (studentRole) RootPath() string { return "/student/dashboard" }
func (studentRole) sealed()          {}

type adminRole struct{}

func (adminRole) String() string   { return "admin" }
func (adminRole) RootPath() string { return "/admin/dashboard" }
func (adminRole) sealed()          {}

var (
	Student Role = studentRole{}
	Admin   Role = adminRole{}
)

// ErrUnknownRole is returned for role strings outside the closed set.
var ErrUnknownRole = fmt.Errorf("unknown role")

// ParseRole converts a wire value into a Role.
func ParseRole(s string) (Role, error) {
	switch s {
	case "student":
		return Student, nil
	case "admin":
		return Admin, nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownRole, s)
	}
}

// IsStudent and IsAdmin are exhaustive helpers for callers that only care
// about one side.
func IsStudent(r Role) bool {
	_, ok := r.(studentRole)
	return ok
}

func IsAdmin(r Role) bool {
	_, ok := r.(adminRole)
	return ok
}

// Identity is the signed-in principal. It is created at registration and
// never changes afterwards.
type Identity struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	Role       Role   `json:"-"`
	StudentID  string `json:"student_id,omitempty"`
	Name       string `json:"name,omitempty"`
	Department string `json:"department,omitempty"`
	Year       string `json:"year,omitempty"`
}

func roleName(r Role) string {
	if r == nil {
		return ""
	}
	return r.String()
}

func (i Identity) MarshalJSON() ([]byte, error) {
	type alias Identity
	return json.Marshal(struct {
		alias
		Role string `json:"role"`
	}{alias(i), roleName(i.Role)})
}

func (i *Identity) UnmarshalJSON(b []byte) error {
	type alias Identity
	aux := struct {
		*alias
		Role string `json:"role"`
	}{alias: (*alias)(i)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	r, err := ParseRole(aux.Role)
	if err != nil {
		return err
	}
	i.Role = r
	return nil
}
