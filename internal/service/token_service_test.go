package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"jobdesk-auth/internal/apperr"
	"jobdesk-auth/internal/audit"
	"jobdesk-auth/internal/config"
	"jobdesk-auth/internal/model"
)

func testTokenConfig() config.TokenConfig {
	return config.TokenConfig{
		Secret:     "test-secret-test-secret-test-secret",
		Issuer:     "jobdesk-auth",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 168 * time.Hour,
	}
}

type tokenEnv struct {
	svc    *TokenService
	tokens *fakeTokenRepo
	users  *fakeUserRepo
	user   *model.User
}

func newTokenEnv(t *testing.T, cfg config.TokenConfig) *tokenEnv {
	t.Helper()

	env := &tokenEnv{
		tokens: newFakeTokenRepo(),
		users:  newFakeUserRepo(),
	}
	env.svc = NewTokenService(env.tokens, env.users, audit.NewPublisher(nil, nil), cfg)

	env.user = &model.User{Email: "candidate@example.com", IsVerified: true}
	if err := env.users.CreateUser(context.Background(), env.user); err != nil {
		t.Fatalf("seed user failed: %v", err)
	}

	return env
}

func TestIssueAndVerifyAccess(t *testing.T) {
	env := newTokenEnv(t, testTokenConfig())
	ctx := context.Background()

	session, err := env.svc.IssueSession(ctx, env.user, "test-agent")
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if session.AccessToken == "" || session.RefreshToken == "" {
		t.Fatal("incomplete session")
	}

	claims, err := env.svc.VerifyAccess(session.AccessToken)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if claims.UserID != env.user.UserID {
		t.Errorf("claims user = %s, want %s", claims.UserID, env.user.UserID)
	}
	if claims.Email != "candidate@example.com" || !claims.IsVerified {
		t.Errorf("unexpected claims: %+v", claims)
	}
	if claims.Issuer != "jobdesk-auth" {
		t.Errorf("issuer = %s", claims.Issuer)
	}
}

func TestVerifyAccessRejectsForgedToken(t *testing.T) {
	env := newTokenEnv(t, testTokenConfig())

	otherCfg := testTokenConfig()
	otherCfg.Secret = "a-different-secret-entirely-here"
	other := NewTokenService(newFakeTokenRepo(), env.users, audit.NewPublisher(nil, nil), otherCfg)

	session, err := other.IssueSession(context.Background(), env.user, "")
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	_, err = env.svc.VerifyAccess(session.AccessToken)
	if apperr.KindOf(err) != apperr.KindTokenInvalid {
		t.Errorf("expected token-invalid for wrong key, got %v", err)
	}
}

func TestVerifyAccessExpired(t *testing.T) {
	cfg := testTokenConfig()
	cfg.AccessTTL = -time.Minute
	env := newTokenEnv(t, cfg)

	session, err := env.svc.IssueSession(context.Background(), env.user, "")
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	_, err = env.svc.VerifyAccess(session.AccessToken)
	if apperr.KindOf(err) != apperr.KindTokenExpired {
		t.Errorf("expected token-expired, got %v", err)
	}
}

func TestRefreshRotates(t *testing.T) {
	env := newTokenEnv(t, testTokenConfig())
	ctx := context.Background()

	session, err := env.svc.IssueSession(ctx, env.user, "agent-1")
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	next, user, err := env.svc.Refresh(ctx, session.RefreshToken, "agent-1")
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if user.UserID != env.user.UserID {
		t.Errorf("refresh returned wrong user: %s", user.UserID)
	}
	if next.RefreshToken == session.RefreshToken {
		t.Error("refresh token was not rotated")
	}

	// The consumed token never rotates again
	_, _, err = env.svc.Refresh(ctx, session.RefreshToken, "agent-1")
	if apperr.KindOf(err) != apperr.KindTokenRevoked {
		t.Errorf("expected token-revoked on replay, got %v", err)
	}

	// The new token still works
	if _, _, err := env.svc.Refresh(ctx, next.RefreshToken, "agent-1"); err != nil {
		t.Errorf("rotated token did not refresh: %v", err)
	}
}

func TestRefreshRejectsTamperedSecret(t *testing.T) {
	env := newTokenEnv(t, testTokenConfig())
	ctx := context.Background()

	session, err := env.svc.IssueSession(ctx, env.user, "")
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	tokenID, _, _ := strings.Cut(session.RefreshToken, ".")
	forged := tokenID + "." + strings.Repeat("A", 43)

	_, _, err = env.svc.Refresh(ctx, forged, "")
	if apperr.KindOf(err) != apperr.KindTokenInvalid {
		t.Errorf("expected token-invalid for forged secret, got %v", err)
	}

	for _, malformed := range []string{"", "no-dot", ".secret", "id."} {
		_, _, err := env.svc.Refresh(ctx, malformed, "")
		if apperr.KindOf(err) != apperr.KindTokenInvalid {
			t.Errorf("Refresh(%q) = %v, want token-invalid", malformed, err)
		}
	}
}

func TestRefreshExpired(t *testing.T) {
	cfg := testTokenConfig()
	cfg.RefreshTTL = -time.Hour
	env := newTokenEnv(t, cfg)
	ctx := context.Background()

	session, err := env.svc.IssueSession(ctx, env.user, "")
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	_, _, err = env.svc.Refresh(ctx, session.RefreshToken, "")
	if apperr.KindOf(err) != apperr.KindTokenExpired {
		t.Errorf("expected token-expired, got %v", err)
	}
}

func TestRevokeIsIdempotent(t *testing.T) {
	env := newTokenEnv(t, testTokenConfig())
	ctx := context.Background()

	session, err := env.svc.IssueSession(ctx, env.user, "")
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	if err := env.svc.Revoke(ctx, session.RefreshToken); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}
	if err := env.svc.Revoke(ctx, session.RefreshToken); err != nil {
		t.Errorf("second revoke failed: %v", err)
	}
	if err := env.svc.Revoke(ctx, "unknown.token"); err != nil {
		t.Errorf("revoke of unknown token failed: %v", err)
	}

	_, _, err = env.svc.Refresh(ctx, session.RefreshToken, "")
	if apperr.KindOf(err) != apperr.KindTokenRevoked {
		t.Errorf("expected token-revoked after logout, got %v", err)
	}
}

func TestRevokeAllForUser(t *testing.T) {
	env := newTokenEnv(t, testTokenConfig())
	ctx := context.Background()

	first, err := env.svc.IssueSession(ctx, env.user, "laptop")
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	second, err := env.svc.IssueSession(ctx, env.user, "phone")
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	if err := env.svc.RevokeAllForUser(ctx, env.user.UserID); err != nil {
		t.Fatalf("revoke all failed: %v", err)
	}

	for _, token := range []string{first.RefreshToken, second.RefreshToken} {
		_, _, err := env.svc.Refresh(ctx, token, "")
		if apperr.KindOf(err) != apperr.KindTokenRevoked {
			t.Errorf("expected token-revoked, got %v", err)
		}
	}
}
