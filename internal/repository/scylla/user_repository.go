package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"jobdesk-auth/internal/apperr"
	"jobdesk-auth/internal/bucketing"
	"jobdesk-auth/internal/model"
	"jobdesk-auth/internal/util"
)

// UserRepository persists users partitioned by bucketed user ID, with a
// contact_to_user lookup table keyed by normalized contact.
type UserRepository struct {
	client  *ScyllaClient
	buckets *bucketing.Manager
}

func NewUserRepository(client *ScyllaClient, buckets *bucketing.Manager) *UserRepository {
	return &UserRepository{
		client:  client,
		buckets: buckets,
	}
}

func (r *UserRepository) CreateUser(ctx context.Context, user *model.User) error {
	if user.UserID == "" {
		user.UserID = uuid.New().String()
	}
	user.UserBucket = r.buckets.UserBucket(user.UserID)

	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	// Batch keeps the main table and contact lookups consistent
	batch := r.client.Session.NewBatch(gocql.LoggedBatch).WithContext(ctx)

	batch.Query(r.client.Prepared.CreateUser.Statement(),
		user.UserBucket, user.UserID, user.Email, user.Phone,
		user.IsVerified, user.LastLogin, user.CreatedAt, user.UpdatedAt)

	if user.Email != "" {
		key := model.Contact{Value: user.Email, Kind: model.ContactEmail}.Key()
		batch.Query(r.client.Prepared.CreateContactIndex.Statement(),
			key, user.UserBucket, user.UserID, now)
	}
	if user.Phone != "" {
		key := model.Contact{Value: user.Phone, Kind: model.ContactPhone}.Key()
		batch.Query(r.client.Prepared.CreateContactIndex.Statement(),
			key, user.UserBucket, user.UserID, now)
	}

	if err := r.client.ExecuteBatch(batch); err != nil {
		util.Error("Failed to create user",
			zap.String("user_id", user.UserID),
			zap.Error(err))
		return fmt.Errorf("failed to create user: %w", err)
	}

	util.Info("User created",
		zap.String("user_id", user.UserID),
		zap.Int("user_bucket", user.UserBucket))

	return nil
}

func (r *UserRepository) GetUserByID(ctx context.Context, userID string) (*model.User, error) {
	user := &model.User{}
	bucket := r.buckets.UserBucket(userID)

	query := r.client.Prepared.GetUserByID.Bind(bucket, userID).WithContext(ctx)

	err := r.client.ScanWithRetry(query,
		&user.UserBucket, &user.UserID, &user.Email, &user.Phone,
		&user.IsVerified, &user.LastLogin, &user.CreatedAt, &user.UpdatedAt)

	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, apperr.New(apperr.KindNotFound, "user not found")
		}
		util.Error("Failed to get user by ID",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get user by ID: %w", err)
	}

	return user, nil
}

func (r *UserRepository) GetUserByContact(ctx context.Context, contact model.Contact) (*model.User, error) {
	var bucket int
	var userID string

	query := r.client.Prepared.GetContactIndex.Bind(contact.Key()).WithContext(ctx)

	err := r.client.ScanWithRetry(query, &bucket, &userID)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, apperr.New(apperr.KindNotFound, "user not found")
		}
		util.Error("Failed to resolve contact",
			zap.String("contact_kind", string(contact.Kind)),
			zap.Error(err))
		return nil, fmt.Errorf("failed to resolve contact: %w", err)
	}

	return r.GetUserByID(ctx, userID)
}

func (r *UserRepository) UpdateVerification(ctx context.Context, userID string, isVerified bool) error {
	bucket := r.buckets.UserBucket(userID)
	now := time.Now().UTC()

	query := r.client.Prepared.UpdateVerification.
		Bind(isVerified, now, bucket, userID).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 3); err != nil {
		util.Error("Failed to update verification status",
			zap.String("user_id", userID),
			zap.Bool("is_verified", isVerified),
			zap.Error(err))
		return fmt.Errorf("failed to update verification status: %w", err)
	}

	util.Info("User verification status updated",
		zap.String("user_id", userID),
		zap.Bool("is_verified", isVerified))

	return nil
}

func (r *UserRepository) UpdateLastLogin(ctx context.Context, userID string, at time.Time) error {
	bucket := r.buckets.UserBucket(userID)

	query := r.client.Prepared.UpdateLastLogin.
		Bind(at.UTC(), time.Now().UTC(), bucket, userID).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 3); err != nil {
		util.Error("Failed to update last login",
			zap.String("user_id", userID),
			zap.Error(err))
		return fmt.Errorf("failed to update last login: %w", err)
	}

	return nil
}

func (r *UserRepository) HealthCheck(ctx context.Context) error {
	return r.client.HealthCheck(ctx)
}
