package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"retail-core/internal/auth"
	"retail-core/internal/models"
	"retail-core/internal/store"
	"retail-core/internal/util"

	"go.uber.org/zap"
)

// UserService owns accounts, sessions and role management
type UserService struct {
	repo       store.Repository
	tokens     *auth.TokenManager
	refreshTTL time.Duration
	protected  map[string]bool
	logger     *zap.Logger
	now        func() time.Time
}

// NewUserService creates a new user service. Accounts whose email is listed
// in protectedEmails cannot be re-roled or deleted.
func NewUserService(repo store.Repository, tokens *auth.TokenManager, refreshTTL time.Duration, protectedEmails []string) *UserService {
	protected := make(map[string]bool, len(protectedEmails))
	for _, email := range protectedEmails {
		protected[strings.ToLower(email)] = true
	}
	return &UserService{
		repo:       repo,
		tokens:     tokens,
		refreshTTL: refreshTTL,
		protected:  protected,
		logger:     util.Named("users"),
		now:        time.Now,
	}
}

type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	ShopName string `json:"shop_name" validate:"max=200"`
	Phone    string `json:"phone" validate:"max=30"`
}

type LoginRequest struct {
	Username   string `json:"username" validate:"required"`
	Password   string `json:"password" validate:"required"`
	RememberMe bool   `json:"remember_me"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8"`
}

type ResetPasswordRequest struct {
	NewPassword string `json:"new_password" validate:"required,min=6"`
}

// Session is what a successful sign-in returns
type Session struct {
	Token        string        `json:"token"`
	ExpiresAt    time.Time     `json:"expires_at"`
	RefreshToken string        `json:"refresh_token,omitempty"`
	User         *models.User  `json:"user"`
	Permissions  []auth.Action `json:"permissions"`
}

// Profile is the signed-in user with their effective permissions
type Profile struct {
	User        *models.User  `json:"user"`
	Permissions []auth.Action `json:"permissions"`
}

func (s *UserService) isProtected(u *models.User) bool {
	return s.protected[strings.ToLower(u.Email)]
}

func (s *UserService) issue(ctx context.Context, user *models.User, withRefresh bool) (*Session, error) {
	token, expiresAt, err := s.tokens.Generate(user)
	if err != nil {
		return nil, err
	}
	session := &Session{
		Token:       token,
		ExpiresAt:   expiresAt,
		User:        user,
		Permissions: auth.PermissionsFor(user.Role),
	}
	if !withRefresh {
		return session, nil
	}

	refresh, err := auth.NewRefreshToken()
	if err != nil {
		return nil, err
	}
	expiry := s.now().Add(s.refreshTTL)
	user.RefreshToken, user.RefreshTokenExpiry = refresh, &expiry
	if err := s.repo.UpdateUser(ctx, user); err != nil {
		return nil, translate(err)
	}
	session.RefreshToken = refresh
	return session, nil
}

// Register creates a viewer account and signs it in
func (s *UserService) Register(ctx context.Context, req *RegisterRequest) (*Session, error) {
	ctx, span := util.StartSpan(ctx, "UserService.Register")
	defer span.End()

	if err := validateRequest(req); err != nil {
		return nil, err
	}

	user := &models.User{
		Username: strings.TrimSpace(req.Username),
		Email:    strings.ToLower(strings.TrimSpace(req.Email)),
		Role:     models.RoleViewer,
		ShopName: req.ShopName,
		Phone:    req.Phone,
	}
	if err := user.SetPassword(req.Password); err != nil {
		return nil, util.RecordError(span, err)
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, conflictError("Username or email already exists")
		}
		return nil, util.RecordError(span, translate(err))
	}

	s.logger.Info("User registered", zap.Int64("user_id", user.ID), zap.String("username", user.Username))
	return s.issue(ctx, user, false)
}

// Login checks credentials. RememberMe also issues a refresh token.
func (s *UserService) Login(ctx context.Context, req *LoginRequest) (*Session, error) {
	ctx, span := util.StartSpan(ctx, "UserService.Login")
	defer span.End()

	if err := validateRequest(req); err != nil {
		return nil, err
	}

	user, err := s.repo.GetUserByUsername(ctx, strings.TrimSpace(req.Username))
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, util.RecordError(span, err)
	}
	if user == nil || !user.CheckPassword(req.Password) {
		util.AuthFailuresTotal.WithLabelValues("bad_credentials").Inc()
		return nil, unauthorizedError("Invalid credentials")
	}

	return s.issue(ctx, user, req.RememberMe)
}

// Refresh exchanges a live refresh token for a new session. The refresh
// token rotates on every use.
func (s *UserService) Refresh(ctx context.Context, req *RefreshRequest) (*Session, error) {
	ctx, span := util.StartSpan(ctx, "UserService.Refresh")
	defer span.End()

	if err := validateRequest(req); err != nil {
		return nil, err
	}

	user, err := s.repo.GetUserByRefreshToken(ctx, req.RefreshToken)
	if errors.Is(err, store.ErrNotFound) {
		util.AuthFailuresTotal.WithLabelValues("bad_refresh_token").Inc()
		return nil, unauthorizedError("Invalid refresh token")
	}
	if err != nil {
		return nil, util.RecordError(span, err)
	}
	if user.RefreshTokenExpiry == nil || !s.now().Before(*user.RefreshTokenExpiry) {
		util.AuthFailuresTotal.WithLabelValues("expired_refresh_token").Inc()
		return nil, unauthorizedError("Refresh token expired")
	}

	return s.issue(ctx, user, true)
}

// Logout drops the caller's refresh token
func (s *UserService) Logout(ctx context.Context) error {
	actor, err := requireActor(ctx)
	if err != nil {
		return err
	}
	user, err := s.repo.GetUser(ctx, actor.UserID)
	if err != nil {
		return translate(err)
	}
	user.RefreshToken, user.RefreshTokenExpiry = "", nil
	return translate(s.repo.UpdateUser(ctx, user))
}

// Authenticate resolves a bearer token to an actor. The role is read from
// the store, so a role change applies to tokens already issued.
func (s *UserService) Authenticate(ctx context.Context, token string) (models.Actor, error) {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		util.AuthFailuresTotal.WithLabelValues("invalid_token").Inc()
		return models.Actor{}, unauthorizedError("Invalid or expired token")
	}
	user, err := s.repo.GetUser(ctx, claims.UserID)
	if errors.Is(err, store.ErrNotFound) {
		util.AuthFailuresTotal.WithLabelValues("unknown_user").Inc()
		return models.Actor{}, unauthorizedError("User no longer exists")
	}
	if err != nil {
		return models.Actor{}, err
	}
	return models.Actor{UserID: user.ID, Username: user.Username, Role: user.Role}, nil
}

// Me returns the caller's profile
func (s *UserService) Me(ctx context.Context) (*Profile, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	user, err := s.repo.GetUser(ctx, actor.UserID)
	if err != nil {
		return nil, translate(err)
	}
	return &Profile{User: user, Permissions: auth.PermissionsFor(user.Role)}, nil
}

// ChangePassword replaces the caller's password after checking the current one
func (s *UserService) ChangePassword(ctx context.Context, req *ChangePasswordRequest) error {
	actor, err := requireActor(ctx)
	if err != nil {
		return err
	}
	if err := validateRequest(req); err != nil {
		return err
	}
	user, err := s.repo.GetUser(ctx, actor.UserID)
	if err != nil {
		return translate(err)
	}
	if !user.CheckPassword(req.CurrentPassword) {
		util.AuthFailuresTotal.WithLabelValues("bad_credentials").Inc()
		return unauthorizedError("Current password is incorrect")
	}
	if err := user.SetPassword(req.NewPassword); err != nil {
		return err
	}
	return translate(s.repo.UpdateUser(ctx, user))
}

// ListUsers returns every account, newest first
func (s *UserService) ListUsers(ctx context.Context) ([]models.User, error) {
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, translate(err)
	}
	return users, nil
}

func (s *UserService) lastAdmin(ctx context.Context, user *models.User) (bool, error) {
	if user.Role != models.RoleAdmin {
		return false, nil
	}
	admins, err := s.repo.CountUsers(ctx, models.RoleAdmin)
	if err != nil {
		return false, err
	}
	return admins <= 1, nil
}

// UpdateRole assigns a new role to a user
func (s *UserService) UpdateRole(ctx context.Context, id int64, role string) (*models.User, error) {
	ctx, span := util.StartSpan(ctx, "UserService.UpdateRole")
	defer span.End()

	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	if !validRole(role) {
		return nil, validationError("Invalid role. Must be one of: %s", strings.Join(models.ValidRoles, ", "))
	}

	user, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	if s.isProtected(user) {
		return nil, conflictError("This admin account is protected and cannot be modified")
	}
	if role != models.RoleAdmin {
		last, err := s.lastAdmin(ctx, user)
		if err != nil {
			return nil, util.RecordError(span, err)
		}
		if last {
			return nil, conflictError("Cannot demote the last admin")
		}
	}

	previous := user.Role
	user.Role = role
	if err := s.repo.UpdateUser(ctx, user); err != nil {
		return nil, util.RecordError(span, translate(err))
	}

	s.logger.Info("User role changed",
		zap.Int64("user_id", user.ID),
		zap.String("from", previous),
		zap.String("to", role),
		zap.Int64("by", actor.UserID))
	return user, nil
}

// DeleteUser removes an account. Callers cannot delete themselves.
func (s *UserService) DeleteUser(ctx context.Context, id int64) error {
	actor, err := requireActor(ctx)
	if err != nil {
		return err
	}
	if actor.UserID == id {
		return conflictError("You cannot delete your own account")
	}

	user, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return translate(err)
	}
	if s.isProtected(user) {
		return conflictError("This admin account is protected and cannot be deleted")
	}
	last, err := s.lastAdmin(ctx, user)
	if err != nil {
		return err
	}
	if last {
		return conflictError("Cannot delete the last admin")
	}

	if err := s.repo.DeleteUser(ctx, id); err != nil {
		return translate(err)
	}
	s.logger.Info("User deleted", zap.Int64("user_id", id), zap.Int64("by", actor.UserID))
	return nil
}

// ResetPassword sets another user's password
func (s *UserService) ResetPassword(ctx context.Context, id int64, req *ResetPasswordRequest) error {
	if _, err := requireActor(ctx); err != nil {
		return err
	}
	if err := validateRequest(req); err != nil {
		return err
	}
	user, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return translate(err)
	}
	if err := user.SetPassword(req.NewPassword); err != nil {
		return err
	}
	user.RefreshToken, user.RefreshTokenExpiry = "", nil
	return translate(s.repo.UpdateUser(ctx, user))
}

// EnsureAdmin creates the bootstrap admin when no account exists yet.
// An empty password skips bootstrapping.
func (s *UserService) EnsureAdmin(ctx context.Context, username, email, password string) error {
	count, err := s.repo.CountUsers(ctx, "")
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	if password == "" {
		s.logger.Warn("No users exist and BOOTSTRAP_ADMIN_PASSWORD is empty; skipping admin bootstrap")
		return nil
	}

	admin := &models.User{Username: username, Email: strings.ToLower(email), Role: models.RoleAdmin}
	if err := admin.SetPassword(password); err != nil {
		return err
	}
	if err := s.repo.CreateUser(ctx, admin); err != nil {
		return err
	}
	s.logger.Info("Bootstrap admin created", zap.String("username", username))
	return nil
}

func validRole(role string) bool {
	for _, r := range models.ValidRoles {
		if r == role {
			return true
		}
	}
	return false
}
