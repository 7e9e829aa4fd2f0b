package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"knot-backend/internal/api"
	"knot-backend/internal/email"
	"knot-backend/internal/instrument"
	"knot-backend/internal/model"
	"knot-backend/internal/store"
	"knot-backend/internal/validate"
)

// QuestionnaireLinker attaches a pre-registration questionnaire to a new
// account and reports whether it was complete.
type QuestionnaireLinker interface {
	LinkToUser(ctx context.Context, user *model.User, leadID string) (bool, error)
}

type Options struct {
	JWTSecret   string
	TrialDays   int
	AdminEmails []string
}

// Service implements account registration and the token lifecycle.
type Service struct {
	users  store.UserRepository
	leads  store.LeadRepository
	tokens store.TokenRepository
	linker QuestionnaireLinker
	mailer *email.Mailer
	events instrument.Recorder
	opts   Options
	admins map[string]bool
	log    *zap.Logger
	now    func() time.Time
}

func NewService(repos *store.Repositories, linker QuestionnaireLinker, mailer *email.Mailer, events instrument.Recorder, opts Options, log *zap.Logger) *Service {
	if events == nil {
		events = instrument.NoopRecorder{}
	}
	if opts.TrialDays <= 0 {
		opts.TrialDays = 7
	}
	admins := make(map[string]bool, len(opts.AdminEmails))
	for _, e := range opts.AdminEmails {
		admins[validate.NormalizeEmail(e)] = true
	}
	return &Service{
		users:  repos.Users,
		leads:  repos.Leads,
		tokens: repos.Tokens,
		linker: linker,
		mailer: mailer,
		events: events,
		opts:   opts,
		admins: admins,
		log:    log,
		now:    time.Now,
	}
}

// Session is returned by register, login and refresh.
type Session struct {
	TokenPair
	User *model.User `json:"user"`
}

type RegisterInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
	LeadID   string `json:"leadId"`
}

// Register creates an account on a free trial, links any questionnaire
// answered before signing up and marks the originating lead verified.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	var errs validate.Errors
	validate.Name(&errs, "name", in.Name)
	validate.Email(&errs, "email", in.Email)
	validate.Phone(&errs, "phone", in.Phone)
	validate.Password(&errs, "password", in.Password)
	if err := errs.Err(); err != nil {
		return nil, err
	}

	emailAddr := validate.NormalizeEmail(in.Email)
	if _, err := s.users.FindByEmail(ctx, emailAddr); err == nil {
		return nil, api.ConflictError("User with this email already exists")
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	trialEnds := now.AddDate(0, 0, s.opts.TrialDays)
	user := &model.User{
		Name:         strings.TrimSpace(in.Name),
		Email:        emailAddr,
		Phone:        validate.NormalizePhone(in.Phone),
		Interests:    []string{},
		Roles:        s.rolesFor(emailAddr),
		Active:       true,
		PasswordHash: hash,
		LeadID:       in.LeadID,
		Subscription: model.Subscription{
			Plan:           model.PlanTrial,
			Status:         model.SubscriptionTrialing,
			TrialStartedAt: &now,
			TrialEndsAt:    &trialEnds,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	lead := s.originatingLead(ctx, in.LeadID, emailAddr)
	if lead != nil {
		user.LeadID = lead.ID
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, api.ConflictError("User with this email already exists")
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	if s.linker != nil {
		complete, err := s.linker.LinkToUser(ctx, user, user.LeadID)
		if err != nil {
			s.log.Warn("link questionnaire", zap.String("user_id", user.ID), zap.Error(err))
		} else if complete {
			user.QuestionnaireComplete = true
			if err := s.users.Update(ctx, user); err != nil {
				s.log.Warn("mark questionnaire complete", zap.String("user_id", user.ID), zap.Error(err))
			}
		}
	}

	if lead != nil && lead.Status != model.LeadStatusVerified {
		status := model.LeadStatusVerified
		if _, err := s.leads.Update(ctx, lead.ID, model.LeadUpdate{Status: &status}); err != nil {
			s.log.Warn("verify lead", zap.String("lead_id", lead.ID), zap.Error(err))
		}
	}

	if s.mailer != nil {
		_ = s.mailer.Welcome(ctx, user.Email, user.Name)
	}
	s.events.Record(ctx, instrument.Event{
		Type:     instrument.EventUserRegistered,
		Entity:   "user",
		RecordID: user.ID,
		UserID:   user.ID,
		Metadata: map[string]any{"leadId": user.LeadID, "questionnaireComplete": user.QuestionnaireComplete},
	})

	return s.issue(ctx, user)
}

func (s *Service) rolesFor(emailAddr string) []string {
	if s.admins[emailAddr] {
		return []string{model.RoleUser, model.RoleAdmin}
	}
	return []string{model.RoleUser}
}

// originatingLead finds the lead a registration came from, by id when the
// client sent one and otherwise by email.
func (s *Service) originatingLead(ctx context.Context, leadID, emailAddr string) *model.Lead {
	var (
		lead *model.Lead
		err  error
	)
	if leadID != "" {
		lead, err = s.leads.Get(ctx, leadID)
	} else {
		lead, err = s.leads.FindByEmail(ctx, emailAddr)
	}
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.log.Warn("lookup lead", zap.String("lead_id", leadID), zap.Error(err))
		}
		return nil
	}
	return lead
}

func (s *Service) Login(ctx context.Context, emailAddr, password string) (*Session, error) {
	if emailAddr == "" || password == "" {
		return nil, api.UnauthorizedError("Email and password are required")
	}
	user, err := s.users.FindByEmail(ctx, validate.NormalizeEmail(emailAddr))
	if errors.Is(err, store.ErrNotFound) {
		return nil, api.UnauthorizedError("Invalid email or password")
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if !user.Active {
		return nil, api.UnauthorizedError("Account is disabled")
	}
	if !CheckPassword(password, user.PasswordHash) {
		return nil, api.UnauthorizedError("Invalid email or password")
	}

	s.events.Record(ctx, instrument.Event{
		Type: instrument.EventUserLogin, Entity: "user", RecordID: user.ID, UserID: user.ID,
	})
	return s.issue(ctx, user)
}

// Refresh rotates a refresh token: the presented token is consumed and a
// new pair issued.
func (s *Service) Refresh(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, api.UnauthorizedError("Refresh token is required")
	}
	rt, err := s.tokens.GetRefresh(ctx, token)
	if errors.Is(err, store.ErrNotFound) {
		return nil, api.UnauthorizedError("Invalid refresh token")
	}
	if err != nil {
		return nil, fmt.Errorf("lookup refresh token: %w", err)
	}
	if err := s.tokens.DeleteRefresh(ctx, token); err != nil {
		return nil, fmt.Errorf("revoke refresh token: %w", err)
	}
	if s.now().After(rt.ExpiresAt) {
		return nil, api.UnauthorizedError("Refresh token expired")
	}

	user, err := s.users.Get(ctx, rt.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, api.UnauthorizedError("Invalid refresh token")
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if !user.Active {
		return nil, api.UnauthorizedError("Account is disabled")
	}
	return s.issue(ctx, user)
}

func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return api.UnauthorizedError("Refresh token is required")
	}
	return s.tokens.DeleteRefresh(ctx, token)
}

func (s *Service) Me(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.users.Get(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, api.NotFoundError("user", userID)
	}
	return user, err
}

// ForgotPassword mails a reset link when the address belongs to an
// account. It never reveals whether it does.
func (s *Service) ForgotPassword(ctx context.Context, emailAddr string) error {
	user, err := s.users.FindByEmail(ctx, validate.NormalizeEmail(emailAddr))
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup user: %w", err)
	}

	raw, hash := GenerateResetToken()
	now := s.now().UTC()
	if err := s.tokens.SaveReset(ctx, &model.PasswordReset{
		TokenHash: hash,
		UserID:    user.ID,
		ExpiresAt: now.Add(ResetTokenTTL),
		CreatedAt: now,
	}); err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}
	if s.mailer != nil {
		_ = s.mailer.PasswordReset(ctx, user.Email, raw)
	}
	return nil
}

// ResetPassword consumes a reset token, sets the new password and signs
// the user out everywhere.
func (s *Service) ResetPassword(ctx context.Context, token, password string) error {
	var errs validate.Errors
	validate.Required(&errs, "token", token, "Reset token is required")
	validate.Password(&errs, "password", password)
	if err := errs.Err(); err != nil {
		return err
	}

	hash := HashResetToken(token)
	reset, err := s.tokens.GetReset(ctx, hash)
	if errors.Is(err, store.ErrNotFound) {
		return api.BadRequestError("Invalid or expired reset token")
	}
	if err != nil {
		return fmt.Errorf("lookup reset token: %w", err)
	}
	now := s.now().UTC()
	if reset.UsedAt != nil || now.After(reset.ExpiresAt) {
		return api.BadRequestError("Invalid or expired reset token")
	}

	user, err := s.users.Get(ctx, reset.UserID)
	if err != nil {
		return api.BadRequestError("Invalid or expired reset token")
	}
	if err := s.tokens.MarkResetUsed(ctx, hash, now); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return api.BadRequestError("Invalid or expired reset token")
		}
		return fmt.Errorf("consume reset token: %w", err)
	}

	pw, err := HashPassword(password)
	if err != nil {
		return err
	}
	user.PasswordHash = pw
	user.UpdatedAt = now
	if err := s.users.Update(ctx, user); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return s.tokens.DeleteUserRefresh(ctx, user.ID)
}

// EnsureAdmin creates the bootstrap admin account if no user holds the
// address yet, or grants the admin role to the existing one.
func (s *Service) EnsureAdmin(ctx context.Context, name, emailAddr, password string) error {
	emailAddr = validate.NormalizeEmail(emailAddr)
	user, err := s.users.FindByEmail(ctx, emailAddr)
	switch {
	case err == nil:
		if user.HasRole(model.RoleAdmin) {
			return nil
		}
		user.Roles = append(user.Roles, model.RoleAdmin)
		user.UpdatedAt = s.now().UTC()
		return s.users.Update(ctx, user)
	case !errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("lookup admin: %w", err)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	s.log.Info("creating admin account", zap.String("email", emailAddr))
	return s.users.Create(ctx, &model.User{
		Name:         name,
		Email:        emailAddr,
		Interests:    []string{},
		Roles:        []string{model.RoleUser, model.RoleAdmin},
		Active:       true,
		IsVerified:   true,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
}

func (s *Service) issue(ctx context.Context, user *model.User) (*Session, error) {
	access, err := GenerateAccessToken(user.ID, user.Roles, s.opts.JWTSecret)
	if err != nil {
		return nil, api.NewAppError("INTERNAL_ERROR", 500, "Failed to generate access token")
	}

	now := s.now().UTC()
	refresh := GenerateRefreshToken()
	if err := s.tokens.SaveRefresh(ctx, &model.RefreshToken{
		Token:     refresh,
		UserID:    user.ID,
		ExpiresAt: now.Add(RefreshTokenTTL),
		CreatedAt: now,
	}); err != nil {
		return nil, api.NewAppError("INTERNAL_ERROR", 500, "Failed to store refresh token")
	}

	return &Session{
		TokenPair: TokenPair{
			AccessToken:  access,
			RefreshToken: refresh,
			ExpiresIn:    int(AccessTokenTTL.Seconds()),
		},
		User: user,
	}, nil
}
