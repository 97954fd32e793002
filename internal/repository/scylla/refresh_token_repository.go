package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"jobdesk-auth/internal/apperr"
	"jobdesk-auth/internal/model"
	"jobdesk-auth/internal/util"
)

// RefreshTokenRepository stores refresh token records keyed by token ID,
// with a per-user index for bulk revocation. Rows carry a TTL matching the
// token lifetime so expired records age out on their own.
type RefreshTokenRepository struct {
	client *ScyllaClient
}

func NewRefreshTokenRepository(client *ScyllaClient) *RefreshTokenRepository {
	return &RefreshTokenRepository{client: client}
}

func (r *RefreshTokenRepository) CreateToken(ctx context.Context, token *model.RefreshToken) error {
	ttl := int(time.Until(token.ExpiresAt).Seconds())
	if ttl <= 0 {
		return fmt.Errorf("refresh token already expired at %s", token.ExpiresAt)
	}

	batch := r.client.Session.NewBatch(gocql.LoggedBatch).WithContext(ctx)

	batch.Query(r.client.Prepared.CreateRefreshToken.Statement(),
		token.TokenID, token.UserID, token.TokenHash, token.DeviceInfo,
		token.IssuedAt, token.ExpiresAt, token.Revoked, ttl)

	batch.Query(r.client.Prepared.CreateRefreshTokenByUser.Statement(),
		token.UserID, token.TokenID, token.IssuedAt, ttl)

	if err := r.client.ExecuteBatch(batch); err != nil {
		util.Error("Failed to create refresh token",
			zap.String("user_id", token.UserID),
			zap.String("token_id", token.TokenID),
			zap.Error(err))
		return fmt.Errorf("failed to create refresh token: %w", err)
	}

	util.Debug("Refresh token created",
		zap.String("user_id", token.UserID),
		zap.String("token_id", token.TokenID))

	return nil
}

func (r *RefreshTokenRepository) GetToken(ctx context.Context, tokenID string) (*model.RefreshToken, error) {
	token := &model.RefreshToken{}

	query := r.client.Prepared.GetRefreshToken.Bind(tokenID).WithContext(ctx)

	err := r.client.ScanWithRetry(query,
		&token.TokenID, &token.UserID, &token.TokenHash, &token.DeviceInfo,
		&token.IssuedAt, &token.ExpiresAt, &token.Revoked)

	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, apperr.New(apperr.KindNotFound, "refresh token not found")
		}
		util.Error("Failed to get refresh token",
			zap.String("token_id", tokenID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}

	return token, nil
}

func (r *RefreshTokenRepository) RevokeToken(ctx context.Context, tokenID string) error {
	query := r.client.Prepared.RevokeRefreshToken.Bind(tokenID).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 3); err != nil {
		util.Error("Failed to revoke refresh token",
			zap.String("token_id", tokenID),
			zap.Error(err))
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}

	util.Info("Refresh token revoked", zap.String("token_id", tokenID))
	return nil
}

func (r *RefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID string) error {
	iter := r.client.Prepared.ListRefreshTokensForUser.
		Bind(userID).WithContext(ctx).Iter()

	var tokenIDs []string
	var tokenID string
	for iter.Scan(&tokenID) {
		tokenIDs = append(tokenIDs, tokenID)
	}
	if err := iter.Close(); err != nil {
		return fmt.Errorf("failed to list refresh tokens for user: %w", err)
	}

	if len(tokenIDs) == 0 {
		return nil
	}

	batch := r.client.Session.NewBatch(gocql.UnloggedBatch).WithContext(ctx)
	for _, id := range tokenIDs {
		batch.Query(r.client.Prepared.RevokeRefreshToken.Statement(), id)
	}

	if err := r.client.ExecuteBatch(batch); err != nil {
		util.Error("Failed to revoke refresh tokens for user",
			zap.String("user_id", userID),
			zap.Int("token_count", len(tokenIDs)),
			zap.Error(err))
		return fmt.Errorf("failed to revoke refresh tokens for user: %w", err)
	}

	util.Info("All refresh tokens revoked for user",
		zap.String("user_id", userID),
		zap.Int("token_count", len(tokenIDs)))

	return nil
}
