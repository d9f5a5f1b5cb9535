package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mudler/xlog"

	"github.com/maisonhq/chatcore/internal/domain"
)

// ResolveOrCreateSession returns the live session for the given token, or
// mints a new one when the token is empty, unknown or expired. A fresh token
// is never an error: stale callers silently restart on a new session.
func (s *Service) ResolveOrCreateSession(ctx context.Context, token, userID string) (*domain.Session, error) {
	now := time.Now().UTC()

	if token != "" {
		session, err := s.store.GetSession(ctx, token)
		if err != nil {
			return nil, err
		}
		if session != nil {
			expired, err := s.sessionExpired(ctx, session, now)
			if err != nil {
				return nil, err
			}
			if !expired {
				if err := s.store.TouchSession(ctx, token, now); err != nil {
					return nil, err
				}
				session.LastActivityAt = now
				return session, nil
			}
			if err := s.store.DeleteSession(ctx, token); err != nil {
				return nil, err
			}
			xlog.Info("Session expired, minting replacement", "session_id", token)
		}
	}

	session := &domain.Session{
		SessionID:      uuid.NewString(),
		UserID:         userID,
		Kind:           domain.SessionAnonymous,
		CreatedAt:      now,
		LastActivityAt: now,
	}
	if userID != "" {
		session.Kind = domain.SessionAuthenticated
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// sessionExpired applies the TTL for the session kind. A session past its TTL
// is still live while it owns an open property conversation, so long-running
// negotiations are never cut off by the idle policy.
func (s *Service) sessionExpired(ctx context.Context, session *domain.Session, now time.Time) (bool, error) {
	ttl := s.cfg.AnonymousSessionTTL
	if session.Kind == domain.SessionAuthenticated {
		ttl = s.cfg.AuthenticatedSessionTTL
	}
	if now.Sub(session.LastActivityAt) <= ttl {
		return false, nil
	}
	conv, err := s.store.GetOpenPropertyConversationBySession(ctx, session.SessionID)
	if err != nil {
		return false, err
	}
	return conv == nil, nil
}

// SweepExpiredSessions evicts idle sessions of both kinds and returns how
// many were removed. Conversations and messages are kept; only session rows
// go away.
func (s *Service) SweepExpiredSessions(ctx context.Context) (int64, error) {
	now := time.Now().UTC()

	anon, err := s.store.DeleteExpiredSessions(ctx, domain.SessionAnonymous, now.Add(-s.cfg.AnonymousSessionTTL))
	if err != nil {
		return 0, err
	}
	auth, err := s.store.DeleteExpiredSessions(ctx, domain.SessionAuthenticated, now.Add(-s.cfg.AuthenticatedSessionTTL))
	if err != nil {
		return anon, err
	}

	total := anon + auth
	if total > 0 {
		xlog.Info("Swept expired sessions", "anonymous", anon, "authenticated", auth)
	}
	return total, nil
}
