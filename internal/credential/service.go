// Package credential is the verifier side of patternlock: it enrolls users,
// checks pattern tokens against bcrypt hashes and resets forgotten patterns.
package credential

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/patternlock/patternlock/internal/domain"
	"github.com/patternlock/patternlock/internal/form"
	"github.com/patternlock/patternlock/internal/guard"
	"github.com/patternlock/patternlock/internal/logging"
	"github.com/patternlock/patternlock/internal/metrics"
	"github.com/patternlock/patternlock/internal/pattern"
	"github.com/patternlock/patternlock/internal/store"
)

// Config holds the verifier's credential policy.
type Config struct {
	MinPatternLength int
	BcryptCost       int
}

// Service implements the four verifier operations over the store.
type Service struct {
	db      *sql.DB
	users   *store.UserRepo
	audit   *store.AuditRepo
	guard   *guard.Guard
	metrics metrics.Recorder
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time
}

// NewService creates a Service. A nil guard disables throttling and a nil
// recorder discards metrics.
func NewService(db *sql.DB, g *guard.Guard, rec metrics.Recorder, cfg Config, logger *slog.Logger) *Service {
	if cfg.MinPatternLength <= 0 {
		cfg.MinPatternLength = pattern.DefaultMinLength
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if g == nil {
		g = guard.NewGuard(guard.GuardConfig{})
	}
	if rec == nil {
		rec = metrics.Nop{}
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{
		db:      db,
		users:   &store.UserRepo{},
		audit:   &store.AuditRepo{},
		guard:   g,
		metrics: rec,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// Register validates and stores a new account.
func (s *Service) Register(ctx context.Context, req domain.RegisterRequest, remoteAddr string) (profile *domain.UserProfile, err error) {
	start := s.now()
	defer func() { s.finish(ctx, domain.ActionRegister, req.Username, remoteAddr, start, err) }()

	if errs := form.Registration(req.Name, req.Email, req.Username); !errs.OK() {
		return nil, invalidFields(errs)
	}
	if err := s.checkPattern(req.Pattern); err != nil {
		return nil, err
	}
	if err := s.guard.CheckRateLimit("register:" + remoteAddr); err != nil {
		return nil, err
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := s.users.GetByEmail(ctx, s.db, email); err == nil {
		return nil, domain.ErrUserExists
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, domain.WrapAuthError(domain.ErrStoreQuery.Code, "lookup email", err)
	}

	hash, err := s.hash(req.Pattern)
	if err != nil {
		return nil, err
	}
	now := s.now().Unix()
	u := domain.User{
		ID:          uuid.New().String(),
		Name:        strings.TrimSpace(req.Name),
		Email:       email,
		Username:    req.Username,
		PatternHash: hash,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.users.Create(ctx, s.db, u); err != nil {
		if errors.Is(err, domain.ErrUserExists) {
			return nil, err
		}
		return nil, domain.WrapAuthError(domain.ErrStoreWrite.Code, "create user", err)
	}

	p := u.Profile()
	return &p, nil
}

// SignIn checks a username and pattern token.
func (s *Service) SignIn(ctx context.Context, req domain.SignInRequest, remoteAddr string) (profile *domain.UserProfile, err error) {
	start := s.now()
	defer func() { s.finish(ctx, domain.ActionSignIn, req.Username, remoteAddr, start, err) }()

	if errs := form.SignIn(req.Username); !errs.OK() {
		return nil, invalidFields(errs)
	}
	if strings.TrimSpace(req.Pattern) == "" {
		return nil, domain.NewAuthError(domain.ErrInvalidRequest.Code, "Pattern is required")
	}
	if _, err := pattern.Parse(pattern.Token(req.Pattern)); err != nil {
		return nil, domain.WrapAuthError(domain.ErrInvalidRequest.Code, "Invalid pattern", err)
	}
	if err := s.guard.CheckAll(req.Username); err != nil {
		return nil, err
	}

	u, err := s.users.GetByUsername(ctx, s.db, req.Username)
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil, s.failSignIn(req.Username)
	}
	if err != nil {
		return nil, domain.WrapAuthError(domain.ErrStoreQuery.Code, "lookup user", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PatternHash), []byte(req.Pattern)); err != nil {
		return nil, s.failSignIn(req.Username)
	}

	s.guard.RecordSuccess(req.Username)
	p := u.Profile()
	return &p, nil
}

// VerifyUser checks that username and email belong to the same account.
func (s *Service) VerifyUser(ctx context.Context, req domain.VerifyUserRequest, remoteAddr string) (err error) {
	start := s.now()
	defer func() { s.finish(ctx, domain.ActionVerifyUser, req.Username, remoteAddr, start, err) }()

	if errs := form.Recovery(req.Username, req.Email); !errs.OK() {
		return invalidFields(errs)
	}
	if err := s.guard.CheckRateLimit("verify:" + req.Username); err != nil {
		return err
	}
	_, err = s.lookupIdentity(ctx, req.Username, req.Email)
	return err
}

// ResetPattern replaces the pattern of the account matching username and
// email. A successful reset clears the account's failure count.
func (s *Service) ResetPattern(ctx context.Context, req domain.ResetPatternRequest, remoteAddr string) (err error) {
	start := s.now()
	defer func() { s.finish(ctx, domain.ActionResetPattern, req.Username, remoteAddr, start, err) }()

	if errs := form.Recovery(req.Username, req.Email); !errs.OK() {
		return invalidFields(errs)
	}
	if err := s.checkPattern(req.NewPattern); err != nil {
		return err
	}
	if err := s.guard.CheckRateLimit("reset:" + req.Username); err != nil {
		return err
	}

	u, err := s.lookupIdentity(ctx, req.Username, req.Email)
	if err != nil {
		return err
	}
	hash, err := s.hash(req.NewPattern)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePatternHash(ctx, s.db, u.ID, hash, s.now().Unix()); err != nil {
		return domain.WrapAuthError(domain.ErrStoreWrite.Code, "update pattern", err)
	}
	s.guard.RecordSuccess(req.Username)
	return nil
}

// AuditTrail returns the latest audit records of a username.
func (s *Service) AuditTrail(ctx context.Context, username string, limit int) ([]domain.AuditRecord, error) {
	records, err := s.audit.ListByUsername(ctx, s.db, username, limit)
	if err != nil {
		return nil, domain.WrapAuthError(domain.ErrStoreQuery.Code, "list audit", err)
	}
	return records, nil
}

func (s *Service) lookupIdentity(ctx context.Context, username, email string) (*domain.User, error) {
	u, err := s.users.GetByUsername(ctx, s.db, username)
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil, domain.ErrIdentityMismatch
	}
	if err != nil {
		return nil, domain.WrapAuthError(domain.ErrStoreQuery.Code, "lookup user", err)
	}
	if !strings.EqualFold(u.Email, strings.TrimSpace(email)) {
		return nil, domain.ErrIdentityMismatch
	}
	return u, nil
}

func (s *Service) failSignIn(username string) error {
	if s.guard.RecordFailure(username) {
		s.metrics.IncLockout()
		s.logger.Warn("account locked", "username", username)
	}
	return domain.ErrInvalidCredentials
}

func (s *Service) checkPattern(token string) error {
	err := pattern.Validate(pattern.Token(token), s.cfg.MinPatternLength)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrPatternTooShort):
		return domain.NewAuthError(domain.ErrInvalidRequest.Code,
			fmt.Sprintf("Pattern must connect at least %d dots", s.cfg.MinPatternLength))
	default:
		return domain.WrapAuthError(domain.ErrInvalidRequest.Code, "Invalid pattern", err)
	}
}

func (s *Service) hash(token string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(token), s.cfg.BcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash pattern: %w", err)
	}
	return string(b), nil
}

// finish writes the audit record and metrics of one operation.
func (s *Service) finish(ctx context.Context, action, username, remoteAddr string, start time.Time, err error) {
	outcome := outcomeOf(err)
	s.metrics.ObserveAttempt(action, outcome, s.now().Sub(start))
	if errors.Is(err, domain.ErrRateLimitExceeded) {
		s.metrics.IncThrottle(action)
	}

	detail := ""
	if err != nil {
		detail = err.Error()
	}
	rec := domain.AuditRecord{
		ID:         uuid.NewString(),
		Username:   username,
		Action:     action,
		Outcome:    outcome,
		Detail:     detail,
		RemoteAddr: remoteAddr,
		CreatedAt:  s.now().Unix(),
	}
	if aerr := s.audit.Record(ctx, s.db, rec); aerr != nil {
		s.logger.Warn("audit write failed", "action", action, "error", aerr)
	}

	switch outcome {
	case domain.OutcomeSuccess:
		s.logger.Info("auth operation", "action", action, "username", username, "outcome", outcome)
	case domain.OutcomeError:
		s.logger.Error("auth operation", "action", action, "username", username, "error", err)
	default:
		s.logger.Warn("auth operation", "action", action, "username", username, "outcome", outcome, "error", err)
	}
}

func outcomeOf(err error) string {
	var ae *domain.AuthError
	switch {
	case err == nil:
		return domain.OutcomeSuccess
	case errors.Is(err, domain.ErrAccountLocked):
		return domain.OutcomeLocked
	case errors.As(err, &ae) && ae.Code != domain.ErrStoreQuery.Code && ae.Code != domain.ErrStoreWrite.Code:
		return domain.OutcomeRejected
	default:
		return domain.OutcomeError
	}
}

// invalidFields reports the error of the first invalid field, in form order,
// as the request's message.
func invalidFields(errs form.Errors) error {
	return domain.NewAuthError(domain.ErrInvalidRequest.Code, errs.First())
}
