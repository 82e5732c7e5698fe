package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/caravelhq/storefront/pkg/audit"
	"github.com/caravelhq/storefront/pkg/contextkeys"
	"github.com/caravelhq/storefront/pkg/membership"
	"github.com/caravelhq/storefront/pkg/observability"
	"github.com/caravelhq/storefront/pkg/tenant"
)

// CredentialVerifier authenticates a user from primary credentials. Password
// storage and verification live outside this core.
type CredentialVerifier interface {
	Verify(ctx context.Context, email, password string) (userID int64, err error)
}

// TokenPair is the result of a login or refresh
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token,omitempty"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at,omitempty"`
}

// Service implements login, refresh rotation, and logout
type Service struct {
	verifier    CredentialVerifier
	memberships *membership.Store
	issuer      *Issuer
	tokens      *TokenStore
	auditLog    audit.Logger
	metrics     *observability.Metrics
	logger      *observability.Logger
	refreshTTL  time.Duration
}

// NewService wires the auth service. metrics may be nil.
func NewService(
	verifier CredentialVerifier,
	memberships *membership.Store,
	issuer *Issuer,
	tokens *TokenStore,
	auditLog audit.Logger,
	metrics *observability.Metrics,
	logger *observability.Logger,
	refreshTTL time.Duration,
) *Service {
	return &Service{
		verifier:    verifier,
		memberships: memberships,
		issuer:      issuer,
		tokens:      tokens,
		auditLog:    auditLog,
		metrics:     metrics,
		logger:      logger,
		refreshTTL:  refreshTTL,
	}
}

// Login authenticates primary credentials and issues a token pair bound to
// the resolved company. headerCompany carries the optional tenant-selector
// header; ambiguity between several memberships is a login-time failure the
// caller resolves by sending that header.
//
// Platform admins with no membership in the resolved company receive an
// access token only: a refresh token must be bound to a membership, and they
// have none to bind.
func (s *Service) Login(ctx context.Context, email, password string, headerCompany *int64) (*TokenPair, error) {
	userID, err := s.verifier.Verify(ctx, email, password)
	if err != nil {
		s.record(ctx, audit.Event{
			EventType: audit.EventTypeAuthLoginFailed,
			Status:    audit.EventStatusFailure,
			Message:   "credential verification failed",
		})
		s.countLogin("failure")
		return nil, ErrUnauthenticated
	}

	user, err := s.memberships.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if !user.IsActive {
		s.countLogin("failure")
		return nil, ErrUnauthenticated
	}

	members, err := s.memberships.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load memberships: %w", err)
	}

	companies := make([]int64, 0, len(members))
	for _, m := range members {
		companies = append(companies, m.CompanyID)
	}

	resolved, err := tenant.Resolve(nil, headerCompany, companies, user.PlatformAdmin)
	if err != nil {
		s.countLogin("failure")
		return nil, err
	}

	var bound *membership.Membership
	if resolved != nil {
		for _, m := range members {
			if m.CompanyID == *resolved {
				bound = m
				break
			}
		}
	}

	pair, err := s.issuePair(ctx, user, resolved, bound)
	if err != nil {
		return nil, err
	}

	s.record(ctx, audit.Event{
		EventType: audit.EventTypeAuthLogin,
		Status:    audit.EventStatusSuccess,
		UserID:    &user.ID,
		CompanyID: resolved,
	})
	s.countLogin("success")
	return pair, nil
}

// Refresh validates a presented refresh credential, rotates it, and issues a
// fresh pair. Claims are re-derived from the CURRENT membership state, never
// copied from the old token, so role and permission changes apply on the
// next refresh. The new session re-binds to the membership the token was
// minted against; no tenant disambiguation happens here.
func (s *Service) Refresh(ctx context.Context, presented string) (*TokenPair, error) {
	if err := ValidateRefreshFormat(presented); err != nil {
		s.countRefresh("invalid")
		return nil, ErrRefreshInvalid
	}

	stored, err := s.tokens.GetByHash(ctx, HashRefreshToken(presented))
	if err != nil {
		if errors.Is(err, ErrRefreshInvalid) {
			s.countRefresh("invalid")
			s.record(ctx, audit.Event{
				EventType: audit.EventTypeAuthRefreshFail,
				Status:    audit.EventStatusFailure,
				Message:   "unknown refresh token",
			})
		}
		return nil, err
	}

	now := time.Now()

	if stored.RevokedAt != nil {
		if stored.Rotated() {
			// The legitimate holder already moved to the successor; a second
			// presentation means a duplicate copy is in play. Kill the whole
			// chain and report the generic error.
			revoked, chainErr := s.tokens.RevokeChain(ctx, stored.CodeHash)
			if chainErr != nil {
				s.logger.WithError(chainErr).Error("failed to revoke token chain after reuse")
			}
			s.record(ctx, audit.Event{
				EventType:   audit.EventTypeAuthTokenReuse,
				Status:      audit.EventStatusDenied,
				UserID:      &stored.UserID,
				TokenPrefix: stored.CodePrefix,
				Message:     fmt.Sprintf("rotated token presented again; revoked %d chain tokens", revoked),
			})
			if s.metrics != nil {
				s.metrics.RefreshReuseTotal.Inc()
			}
		}
		s.countRefresh("revoked")
		return nil, ErrRefreshInvalid
	}

	if !now.Before(stored.ExpiresAt) {
		s.countRefresh("expired")
		s.record(ctx, audit.Event{
			EventType:   audit.EventTypeAuthRefreshFail,
			Status:      audit.EventStatusFailure,
			UserID:      &stored.UserID,
			TokenPrefix: stored.CodePrefix,
			Message:     "refresh token expired",
		})
		return nil, ErrRefreshInvalid
	}

	if stored.MembershipID == 0 {
		s.logger.WithField("token_prefix", stored.CodePrefix).Error("refresh token has no bound membership")
		s.countRefresh("integrity")
		return nil, ErrSessionIntegrity
	}

	bound, err := s.memberships.GetByID(ctx, stored.MembershipID)
	if err != nil {
		if errors.Is(err, membership.ErrNotFound) {
			// Membership removed or soft-deleted since issuance: the session
			// has no live tenant relationship left, so rotation fails and the
			// caller re-authenticates.
			s.countRefresh("membership_gone")
			s.record(ctx, audit.Event{
				EventType:   audit.EventTypeAuthRefreshFail,
				Status:      audit.EventStatusFailure,
				UserID:      &stored.UserID,
				TokenPrefix: stored.CodePrefix,
				Message:     "membership no longer exists",
			})
			return nil, ErrRefreshInvalid
		}
		return nil, err
	}

	user, err := s.memberships.GetUser(ctx, stored.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if !user.IsActive {
		s.countRefresh("invalid")
		return nil, ErrRefreshInvalid
	}

	plaintext, hash, prefix, err := GenerateRefreshToken()
	if err != nil {
		return nil, err
	}

	successor := &RefreshToken{
		UserID:       stored.UserID,
		MembershipID: stored.MembershipID,
		CodeHash:     hash,
		CodePrefix:   prefix,
		IssuedAt:     now,
		ExpiresAt:    now.Add(s.refreshTTL),
	}

	if err := s.tokens.Rotate(ctx, stored.CodeHash, successor); err != nil {
		if errors.Is(err, ErrRefreshInvalid) {
			s.countRefresh("race")
		}
		return nil, err
	}

	companyID := bound.CompanyID
	access, err := s.issuer.Issue(user.ID, user.Email, user.DisplayName, &companyID)
	if err != nil {
		return nil, err
	}

	s.record(ctx, audit.Event{
		EventType:   audit.EventTypeAuthRefresh,
		Status:      audit.EventStatusSuccess,
		UserID:      &user.ID,
		CompanyID:   &companyID,
		TokenPrefix: prefix,
	})
	s.countRefresh("success")
	s.countIssued("access")
	s.countIssued("refresh")

	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     plaintext,
		AccessExpiresAt:  now.Add(s.issuer.AccessTTL()),
		RefreshExpiresAt: successor.ExpiresAt,
	}, nil
}

// Logout revokes a single session's refresh token
func (s *Service) Logout(ctx context.Context, presented string) error {
	if err := ValidateRefreshFormat(presented); err != nil {
		return ErrRefreshInvalid
	}
	if err := s.tokens.Revoke(ctx, HashRefreshToken(presented)); err != nil {
		return err
	}
	s.record(ctx, audit.Event{
		EventType: audit.EventTypeAuthLogout,
		Status:    audit.EventStatusSuccess,
	})
	return nil
}

// LogoutEverywhere revokes every active refresh token of a user. Used for
// logout-all-devices and after password reset.
func (s *Service) LogoutEverywhere(ctx context.Context, userID int64) (int64, error) {
	n, err := s.tokens.RevokeAllForUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.record(ctx, audit.Event{
		EventType: audit.EventTypeAuthLogoutAll,
		Status:    audit.EventStatusSuccess,
		UserID:    &userID,
		Message:   fmt.Sprintf("revoked %d sessions", n),
	})
	if s.metrics != nil {
		s.metrics.SessionsRevokedTotal.Add(float64(n))
	}
	return n, nil
}

// issuePair mints an access token and, when a membership is bound, a refresh
// token persisted against it.
func (s *Service) issuePair(ctx context.Context, user *membership.User, companyID *int64, bound *membership.Membership) (*TokenPair, error) {
	now := time.Now()

	access, err := s.issuer.Issue(user.ID, user.Email, user.DisplayName, companyID)
	if err != nil {
		return nil, err
	}
	s.countIssued("access")

	pair := &TokenPair{
		AccessToken:     access,
		AccessExpiresAt: now.Add(s.issuer.AccessTTL()),
	}

	if bound == nil {
		return pair, nil
	}

	plaintext, hash, prefix, err := GenerateRefreshToken()
	if err != nil {
		return nil, err
	}

	token := &RefreshToken{
		UserID:       user.ID,
		MembershipID: bound.ID,
		CodeHash:     hash,
		CodePrefix:   prefix,
		IssuedAt:     now,
		ExpiresAt:    now.Add(s.refreshTTL),
	}
	if err := s.tokens.Create(ctx, token); err != nil {
		return nil, err
	}
	s.countIssued("refresh")

	pair.RefreshToken = plaintext
	pair.RefreshExpiresAt = token.ExpiresAt
	return pair, nil
}

func (s *Service) record(ctx context.Context, event audit.Event) {
	event.RequestID = contextkeys.GetRequestID(ctx)
	s.auditLog.Record(event)
}

func (s *Service) countLogin(result string) {
	if s.metrics != nil {
		s.metrics.LoginsTotal.WithLabelValues(result).Inc()
	}
}

func (s *Service) countRefresh(result string) {
	if s.metrics != nil {
		s.metrics.RefreshTotal.WithLabelValues(result).Inc()
	}
}

func (s *Service) countIssued(kind string) {
	if s.metrics != nil {
		s.metrics.TokensIssuedTotal.WithLabelValues(kind).Inc()
	}
}
