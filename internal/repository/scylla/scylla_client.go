package scylla

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/gocql/gocql"

	"suvidha-service/internal/config"
	"suvidha-service/internal/util"
)

// PreparedStatements holds the statements the OTP record repository uses.
type PreparedStatements struct {
	InsertRecord      *gocql.Query
	InsertRecordIndex *gocql.Query
	SelectLatest      *gocql.Query
	SelectRecordIndex *gocql.Query
	MarkVerified      *gocql.Query
	SelectAttempts    *gocql.Query
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

	cluster := gocql.NewCluster(scyllaConfig.Hosts...)
	cluster.Keyspace = scyllaConfig.Keyspace
	cluster.Consistency = gocql.LocalQuorum
	cluster.Timeout = scyllaConfig.Timeout
	cluster.ConnectTimeout = 10 * time.Second
	cluster.NumConns = 4
	cluster.SocketKeepalive = 30 * time.Second
	cluster.PageSize = 1000
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		Min:        time.Second,
		Max:        10 * time.Second,
		NumRetries: 3,
	}

	if !cfg.IsDevelopment() {
		cluster.SslOpts = &gocql.SslOptions{
			CaPath:                 getEnvPath("SCYLLA_TLS_CA_FILE", "/root/certs/ca.pem"),
			CertPath:               getEnvPath("SCYLLA_TLS_CERT_FILE", "/root/certs/server.pem"),
			KeyPath:                getEnvPath("SCYLLA_TLS_KEY_FILE", "/root/certs/server.key"),
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
		util.Any("hosts", scyllaConfig.Hosts),
		util.String("keyspace", scyllaConfig.Keyspace))

	return client, nil
}

// Schema (managed out of band):
//
//	CREATE TABLE otp_records (
//	    phone_bucket int, identity text, phone text,
//	    issued_at timestamp, record_id text,
//	    code text, expires_at timestamp,
//	    attempt_count int, verified boolean, delivery_ref text,
//	    PRIMARY KEY ((phone_bucket, identity, phone), issued_at, record_id)
//	) WITH CLUSTERING ORDER BY (issued_at DESC, record_id DESC);
//
//	CREATE TABLE otp_records_by_id (
//	    record_id text PRIMARY KEY,
//	    phone_bucket int, identity text, phone text, issued_at timestamp
//	);
func (s *ScyllaClient) prepareStatements() error {
	s.prepareMutex.Lock()
	defer s.prepareMutex.Unlock()

	if s.isPrepared {
		return nil
	}

	prepared := &PreparedStatements{}

	prepared.InsertRecord = s.Session.Query(`
        INSERT INTO otp_records (
            phone_bucket, identity, phone, issued_at, record_id,
            code, expires_at, attempt_count, verified, delivery_ref
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	prepared.InsertRecordIndex = s.Session.Query(`
        INSERT INTO otp_records_by_id (record_id, phone_bucket, identity, phone, issued_at)
        VALUES (?, ?, ?, ?, ?)`)

	prepared.SelectLatest = s.Session.Query(`
        SELECT record_id, issued_at, code, expires_at, attempt_count, verified, delivery_ref
        FROM otp_records
        WHERE phone_bucket = ? AND identity = ? AND phone = ?
        LIMIT 20`)

	prepared.SelectRecordIndex = s.Session.Query(`
        SELECT phone_bucket, identity, phone, issued_at
        FROM otp_records_by_id WHERE record_id = ?`)

	prepared.MarkVerified = s.Session.Query(`
        UPDATE otp_records SET verified = true
        WHERE phone_bucket = ? AND identity = ? AND phone = ? AND issued_at = ? AND record_id = ?`)

	prepared.SelectAttempts = s.Session.Query(`
        SELECT attempt_count FROM otp_records
        WHERE phone_bucket = ? AND identity = ? AND phone = ? AND issued_at = ? AND record_id = ?`)

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

func (s *ScyllaClient) HealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var clusterName string
	err := s.Session.Query(`SELECT cluster_name FROM system.local`).WithContext(ctx).Scan(&clusterName)
	if err != nil {
		return fmt.Errorf("scylla health check failed: %w", err)
	}

	util.Debug("ScyllaDB health check passed", util.String("cluster_name", clusterName))
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

func getEnvPath(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (s *ScyllaClient) ScanWithRetry(query *gocql.Query, dest ...interface{}) error {
	var lastErr error
	for i := 0; i < 3; i++ {
		if err := query.Scan(dest...); err != nil {
			lastErr = err
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
