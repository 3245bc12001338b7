package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"campusattend/internal/apperr"
)

// RosterWriter receives every newly registered student.
type RosterWriter interface {
	Upsert(studentID, name, department, year string) error
}

// RegisterInput is the payload of a registration.
type RegisterInput struct {
	Username   string
	Password   string
	Role       string
	StudentID  string
	Name       string
	Department string
	Year       string
}

// Session is the result of a successful login.
type Session struct {
	Token     string
	ExpiresAt time.Time
	Identity  Identity
}

// Service registers users, logs them in and authenticates bearer tokens.
type Service struct {
	users  UserStore
	roster RosterWriter
	issuer string
	key    string
	ttl    time.Duration
	log    *zap.Logger

	adminSignup bool
}

// Option configures a Service.
type Option func(*Service)

// WithAdminSignup lets public registration create administrators.
func WithAdminSignup(allow bool) Option {
	return func(s *Service) { s.adminSignup = allow }
}

// NewService builds the auth service; roster may be nil.
func NewService(users UserStore, roster RosterWriter, issuer, key string, ttl time.Duration, log *zap.Logger, opts ...Option) *Service {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{users: users, roster: roster, issuer: issuer, key: key, ttl: ttl, log: log}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Register creates a new identity on behalf of an anonymous caller.
// Administrators can only be created this way when admin signup is enabled.
func (s *Service) Register(ctx context.Context, in RegisterInput) (Identity, error) {
	if role, err := ParseRole(strings.TrimSpace(in.Role)); err == nil && IsAdmin(role) && !s.adminSignup {
		return Identity{}, apperr.With(apperr.ErrForbidden, "admin accounts cannot be self-registered")
	}
	return s.create(ctx, in)
}

func (s *Service) create(ctx context.Context, in RegisterInput) (Identity, error) {
	in.Username = strings.TrimSpace(in.Username)
	if in.Username == "" || in.Password == "" || in.Role == "" {
		return Identity{}, apperr.With(apperr.ErrValidation, "missing required fields")
	}
	role, err := ParseRole(in.Role)
	if err != nil {
		return Identity{}, apperr.With(apperr.ErrValidation, err.Error())
	}
	if IsStudent(role) && strings.TrimSpace(in.StudentID) == "" {
		return Identity{}, apperr.With(apperr.ErrValidation, "student_id is required for students")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return Identity{}, err
	}
	u, err := s.users.Create(ctx, User{
		Identity: Identity{
			Username:   in.Username,
			Role:       role,
			StudentID:  strings.TrimSpace(in.StudentID),
			Name:       in.Name,
			Department: in.Department,
			Year:       in.Year,
		},
		PasswordHash: string(hash),
	})
	if err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			return Identity{}, apperr.With(apperr.ErrConflict, "username already exists")
		}
		return Identity{}, err
	}

	if IsStudent(role) && s.roster != nil {
		if err := s.roster.Upsert(u.StudentID, u.Name, u.Department, u.Year); err != nil {
			s.log.Warn("roster update failed", zap.String("student_id", u.StudentID), zap.Error(err))
		}
	}
	return u.Identity, nil
}

// Login checks credentials and issues a token.
func (s *Service) Login(ctx context.Context, username, password string) (Session, error) {
	u, err := s.users.ByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return Session{}, apperr.With(apperr.ErrUnauthorized, "invalid credentials")
		}
		return Session{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return Session{}, apperr.With(apperr.ErrUnauthorized, "invalid credentials")
	}
	token, exp, err := Issue(u.Identity, s.issuer, s.key, s.ttl)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, ExpiresAt: exp, Identity: u.Identity}, nil
}

// Authenticate resolves a bearer token to the current identity.
func (s *Service) Authenticate(ctx context.Context, token string) (Identity, error) {
	claims, err := Parse(token, s.key, s.issuer)
	if err != nil {
		return Identity{}, apperr.Wrap(apperr.ErrUnauthorized, err, "token is invalid")
	}
	u, err := s.users.ByUsername(ctx, claims.Username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return Identity{}, apperr.With(apperr.ErrUnauthorized, "token is invalid")
		}
		return Identity{}, err
	}
	return u.Identity, nil
}

// CountStudents reports the number of registered students.
func (s *Service) CountStudents(ctx context.Context) (int, error) {
	return s.users.CountByRole(ctx, Student)
}

// EnsureAdmin seeds the default administrator if it does not exist yet.
func (s *Service) EnsureAdmin(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return nil
	}
	_, err := s.create(ctx, RegisterInput{
		Username: username,
		Password: password,
		Role:     Admin.String(),
		Name:     "System Administrator",
	})
	if err != nil && !errors.Is(err, apperr.ErrConflict) {
		return err
	}
	return nil
}
