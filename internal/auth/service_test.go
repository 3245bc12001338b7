package auth

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"campusattend/internal/apperr"
)

type rosterStub struct {
	ids []string
}

func (r *rosterStub) Upsert(studentID, _, _, _ string) error {
	r.ids = append(r.ids, studentID)
	return nil
}

func newTestService(t *testing.T) (*Service, *rosterStub) {
	t.Helper()
	roster := &rosterStub{}
	return NewService(NewMemoryStore(), roster, "test", "secret", time.Hour, nil), roster
}

func TestRegisterAndLogin(t *testing.T) {
	svc, roster := newTestService(t)
	ctx := context.Background()

	id, err := svc.Register(ctx, RegisterInput{Username: "sujithra", Password: "pw", Role: "student", StudentID: "23IT56", Name: "Sujithra B"})
	require.NoError(t, err)
	require.True(t, IsStudent(id.Role))
	require.Equal(t, []string{"23IT56"}, roster.ids)

	sess, err := svc.Login(ctx, "sujithra", "pw")
	require.NoError(t, err)
	require.NotEmpty(t, sess.Token)

	got, err := svc.Authenticate(ctx, sess.Token)
	require.NoError(t, err)
	require.Equal(t, "23IT56", got.StudentID)
	require.Equal(t, Student, got.Role)
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterInput{Username: "x", Password: "pw", Role: "staff"})
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.Register(ctx, RegisterInput{Username: "x", Password: "pw", Role: "student"})
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.Register(ctx, RegisterInput{Username: "x", Password: "pw", Role: "student", StudentID: "23IT01"})
	require.NoError(t, err)
	_, err = svc.Register(ctx, RegisterInput{Username: "x", Password: "pw", Role: "student", StudentID: "23IT02"})
	require.ErrorIs(t, err, apperr.ErrConflict)
}

func TestRegisterRefusesAdminByDefault(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterInput{Username: "mallory", Password: "x", Role: "admin"})
	require.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = svc.Login(ctx, "mallory", "x")
	require.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestRegisterAdminWhenSignupEnabled(t *testing.T) {
	svc := NewService(NewMemoryStore(), nil, "test", "secret", time.Hour, nil, WithAdminSignup(true))
	id, err := svc.Register(context.Background(), RegisterInput{Username: "dean", Password: "pw", Role: "admin"})
	require.NoError(t, err)
	require.True(t, IsAdmin(id.Role))
}

func TestLoginRejectsBadPassword(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	require.NoError(t, svc.EnsureAdmin(ctx, "admin", "admin123"))
	require.NoError(t, svc.EnsureAdmin(ctx, "admin", "admin123"))

	_, err := svc.Login(ctx, "admin", "wrong")
	require.ErrorIs(t, err, apperr.ErrUnauthorized)
	_, err = svc.Login(ctx, "nobody", "x")
	require.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestAuthenticateRejectsForeignToken(t *testing.T) {
	svc, _ := newTestService(t)
	token, _, err := Issue(Identity{Username: "admin", Role: Admin}, "test", "other-key", time.Hour)
	require.NoError(t, err)

	_, err = svc.Authenticate(context.Background(), token)
	require.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestIdentityJSONCarriesRoleName(t *testing.T) {
	in := Identity{ID: "1", Username: "admin", Role: Admin}
	raw, err := json.Marshal(in)
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"1","username":"admin","role":"admin"}`, string(raw))

	var out Identity
	require.NoError(t, json.Unmarshal(raw, &out))
	require.Equal(t, in, out)

	require.Error(t, json.Unmarshal([]byte(`{"role":"root"}`), &out))
}
