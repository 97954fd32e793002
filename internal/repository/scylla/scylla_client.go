package scylla

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"jobdesk-auth/internal/config"
	"jobdesk-auth/internal/util"
)

// PreparedStatements holds prepared statements that are actually used by the repositories
type PreparedStatements struct {
	CreateUser         *gocql.Query
	CreateContactIndex *gocql.Query
	GetContactIndex    *gocql.Query
	GetUserByID        *gocql.Query
	UpdateVerification *gocql.Query
	UpdateLastLogin    *gocql.Query

	CreateRefreshToken       *gocql.Query
	CreateRefreshTokenByUser *gocql.Query
	GetRefreshToken          *gocql.Query
	RevokeRefreshToken       *gocql.Query
	ListRefreshTokensForUser *gocql.Query
}

type ScyllaClient struct {
	Session      *gocql.Session
	config       *config.ScyllaConfig
	Prepared     *PreparedStatements
	prepareMutex sync.RWMutex
	isPrepared   bool
}

func NewScyllaClient(cfg *config.Config) (*ScyllaClient, error) {
	scyllaConfig := cfg.Scylla

	cluster := gocql.NewCluster(scyllaConfig.Nodes...)
	cluster.Keyspace = scyllaConfig.Keyspace
	cluster.Consistency = gocql.LocalQuorum
	cluster.Timeout = 10 * time.Second
	cluster.ConnectTimeout = 10 * time.Second
	cluster.NumConns = 4
	cluster.SocketKeepalive = 30 * time.Second
	cluster.MaxPreparedStmts = 1000
	cluster.MaxRoutingKeyInfo = 1000
	cluster.PageSize = 1000
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		Min:        time.Second,
		Max:        10 * time.Second,
		NumRetries: 3,
	}

	if !cfg.IsDevelopment() {
		cluster.SslOpts = &gocql.SslOptions{
			CaPath:                 "/root/certs/ca.pem",
			CertPath:               "/root/certs/server.pem",
			KeyPath:                "/root/certs/server.key",
			EnableHostVerification: true,
		}
	}

	if scyllaConfig.Username != "" && scyllaConfig.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: scyllaConfig.Username,
			Password: scyllaConfig.Password,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create scylla session: %w", err)
	}

	client := &ScyllaClient{
		Session: session,
		config:  &scyllaConfig,
	}

	if err := client.prepareStatements(); err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	util.Info("ScyllaDB client initialized with prepared statements",
		zap.Strings("nodes", scyllaConfig.Nodes),
		zap.String("keyspace", scyllaConfig.Keyspace))

	return client, nil
}

func (s *ScyllaClient) prepareStatements() error {
	s.prepareMutex.Lock()
	defer s.prepareMutex.Unlock()

	if s.isPrepared {
		return nil
	}

	prepared := &PreparedStatements{}

	prepared.CreateUser = s.Session.Query(`
        INSERT INTO users (
            user_bucket, user_id, email, phone, is_verified,
            last_login, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)

	prepared.CreateContactIndex = s.Session.Query(`
        INSERT INTO contact_to_user (contact_key, user_bucket, user_id, created_at)
        VALUES (?, ?, ?, ?)`)

	prepared.GetContactIndex = s.Session.Query(`
        SELECT user_bucket, user_id FROM contact_to_user WHERE contact_key = ?`)

	prepared.GetUserByID = s.Session.Query(`
        SELECT user_bucket, user_id, email, phone, is_verified,
            last_login, created_at, updated_at
        FROM users WHERE user_bucket = ? AND user_id = ?`)

	prepared.UpdateVerification = s.Session.Query(`
        UPDATE users SET is_verified = ?, updated_at = ?
        WHERE user_bucket = ? AND user_id = ?`)

	prepared.UpdateLastLogin = s.Session.Query(`
        UPDATE users SET last_login = ?, updated_at = ?
        WHERE user_bucket = ? AND user_id = ?`)

	prepared.CreateRefreshToken = s.Session.Query(`
        INSERT INTO refresh_tokens (
            token_id, user_id, token_hash, device_info,
            issued_at, expires_at, revoked
        ) VALUES (?, ?, ?, ?, ?, ?, ?) USING TTL ?`)

	prepared.CreateRefreshTokenByUser = s.Session.Query(`
        INSERT INTO refresh_tokens_by_user (user_id, token_id, issued_at)
        VALUES (?, ?, ?) USING TTL ?`)

	prepared.GetRefreshToken = s.Session.Query(`
        SELECT token_id, user_id, token_hash, device_info,
            issued_at, expires_at, revoked
        FROM refresh_tokens WHERE token_id = ?`)

	prepared.RevokeRefreshToken = s.Session.Query(`
        UPDATE refresh_tokens SET revoked = true WHERE token_id = ?`)

	prepared.ListRefreshTokensForUser = s.Session.Query(`
        SELECT token_id FROM refresh_tokens_by_user WHERE user_id = ?`)

	s.Prepared = prepared
	s.isPrepared = true

	util.Info("ScyllaDB prepared statements created successfully")
	return nil
}

func (s *ScyllaClient) Close() {
	if s.Session != nil {
		s.Session.Close()
		util.Info("ScyllaDB client closed")
	}
}

func (s *ScyllaClient) Query(stmt string, values ...interface{}) *gocql.Query {
	return s.Session.Query(stmt, values...)
}

func (s *ScyllaClient) Batch(typ gocql.BatchType) *gocql.Batch {
	return s.Session.NewBatch(typ)
}

func (s *ScyllaClient) ExecuteBatch(batch *gocql.Batch) error {
	return s.Session.ExecuteBatch(batch)
}

func (s *ScyllaClient) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var clusterName string
	err := s.Session.Query(`SELECT cluster_name FROM system.local`).WithContext(ctx).Scan(&clusterName)
	if err != nil {
		return fmt.Errorf("scylla health check failed: %w", err)
	}

	util.Debug("ScyllaDB health check passed", zap.String("cluster_name", clusterName))
	return nil
}

func (s *ScyllaClient) ExecuteWithRetry(query *gocql.Query, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if err := query.Exec(); err != nil {
			lastErr = err
			if i < maxRetries {
				time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
				continue
			}
		} else {
			return nil
		}
	}
	return lastErr
}

func (s *ScyllaClient) ScanWithRetry(query *gocql.Query, dest ...interface{}) error {
	var lastErr error
	for i := 0; i < 3; i++ {
		if err := query.Scan(dest...); err != nil {
			lastErr = err
			if err == gocql.ErrNotFound {
				return err
			}
			if i < 2 {
				time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
				continue
			}
		} else {
			return nil
		}
	}
	return lastErr
}
