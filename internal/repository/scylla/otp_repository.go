package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"

	"suvidha-service/internal/bucketing"
	"suvidha-service/internal/otp"
	"suvidha-service/internal/util"
)

// OTPRepository is the durable otp.RecordStore. Records land in an
// append-only table partitioned by (phone bucket, identity, phone) and
// clustered newest first, plus a by-id index so verification updates can
// address a record without scanning.
type OTPRepository struct {
	client  *ScyllaClient
	buckets *bucketing.Manager
}

func NewOTPRepository(client *ScyllaClient, buckets *bucketing.Manager) *OTPRepository {
	return &OTPRepository{
		client:  client,
		buckets: buckets,
	}
}

func (r *OTPRepository) Save(ctx context.Context, rec *otp.Record) error {
	bucket := r.buckets.PhoneBucket(rec.Phone)
	issuedAt := rec.IssuedAt.UTC()

	query := r.client.Prepared.InsertRecord.Bind(
		bucket, rec.Identity, rec.Phone, issuedAt, rec.ID,
		rec.Code, rec.ExpiresAt.UTC(), rec.AttemptCount, rec.Verified, rec.DeliveryRef,
	).WithContext(ctx)
	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("Failed to save OTP record",
			util.String("record_id", rec.ID),
			util.ErrorField(err))
		return fmt.Errorf("failed to save otp record: %w", err)
	}

	idx := r.client.Prepared.InsertRecordIndex.Bind(
		rec.ID, bucket, rec.Identity, rec.Phone, issuedAt,
	).WithContext(ctx)
	if err := r.client.ExecuteWithRetry(idx, 2); err != nil {
		util.Error("Failed to index OTP record",
			util.String("record_id", rec.ID),
			util.ErrorField(err))
		return fmt.Errorf("failed to index otp record: %w", err)
	}

	util.Debug("OTP record saved",
		util.String("record_id", rec.ID),
		util.Int("phone_bucket", bucket))
	return nil
}

// LatestUnverified walks the partition newest first and returns the first
// record that has not been verified, regardless of expiry.
func (r *OTPRepository) LatestUnverified(ctx context.Context, identity, phone string) (*otp.Record, error) {
	bucket := r.buckets.PhoneBucket(phone)

	iter := r.client.Prepared.SelectLatest.Bind(bucket, identity, phone).WithContext(ctx).Iter()
	defer iter.Close()

	var (
		recordID, code, deliveryRef string
		issuedAt, expiresAt         time.Time
		attemptCount                int
		verified                    bool
	)
	for iter.Scan(&recordID, &issuedAt, &code, &expiresAt, &attemptCount, &verified, &deliveryRef) {
		if verified {
			continue
		}
		return &otp.Record{
			ID:           recordID,
			Identity:     identity,
			Phone:        phone,
			Code:         code,
			IssuedAt:     issuedAt,
			ExpiresAt:    expiresAt,
			AttemptCount: attemptCount,
			Verified:     false,
			DeliveryRef:  deliveryRef,
		}, nil
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to read otp records: %w", err)
	}
	return nil, otp.ErrNoRecord
}

func (r *OTPRepository) MarkVerified(ctx context.Context, id string) error {
	key, err := r.lookupKey(ctx, id)
	if err != nil {
		return err
	}

	query := r.client.Prepared.MarkVerified.Bind(
		key.bucket, key.identity, key.phone, key.issuedAt, id,
	).WithContext(ctx)
	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("Failed to mark OTP record verified",
			util.String("record_id", id),
			util.ErrorField(err))
		return fmt.Errorf("failed to mark otp record verified: %w", err)
	}

	util.Info("OTP record marked verified", util.String("record_id", id))
	return nil
}

// IncrementAttempt bumps the attempt counter with a compare-and-set loop
// so concurrent failures cannot collapse into one.
func (r *OTPRepository) IncrementAttempt(ctx context.Context, id string) (int, error) {
	key, err := r.lookupKey(ctx, id)
	if err != nil {
		return 0, err
	}

	for i := 0; i < 5; i++ {
		var current int
		read := r.client.Prepared.SelectAttempts.Bind(
			key.bucket, key.identity, key.phone, key.issuedAt, id,
		).WithContext(ctx)
		if err := r.client.ScanWithRetry(read, &current); err != nil {
			if err == gocql.ErrNotFound {
				return 0, otp.ErrNoRecord
			}
			return 0, fmt.Errorf("failed to read attempt count: %w", err)
		}

		next := current + 1
		cas := r.client.Query(`
            UPDATE otp_records SET attempt_count = ?
            WHERE phone_bucket = ? AND identity = ? AND phone = ? AND issued_at = ? AND record_id = ?
            IF attempt_count = ?`,
			next, key.bucket, key.identity, key.phone, key.issuedAt, id, current,
		).WithContext(ctx)

		applied, err := cas.ScanCAS(&current)
		if err != nil {
			return 0, fmt.Errorf("failed to increment attempt count: %w", err)
		}
		if applied {
			util.Debug("OTP attempt incremented",
				util.String("record_id", id),
				util.Int("attempt_count", next))
			return next, nil
		}
		// lost the race, re-read and retry
	}
	return 0, fmt.Errorf("failed to increment attempt count for %s: too much contention", id)
}

type recordKey struct {
	bucket   int
	identity string
	phone    string
	issuedAt time.Time
}

func (r *OTPRepository) lookupKey(ctx context.Context, id string) (*recordKey, error) {
	var key recordKey
	query := r.client.Prepared.SelectRecordIndex.Bind(id).WithContext(ctx)
	if err := r.client.ScanWithRetry(query, &key.bucket, &key.identity, &key.phone, &key.issuedAt); err != nil {
		if err == gocql.ErrNotFound {
			return nil, otp.ErrNoRecord
		}
		return nil, fmt.Errorf("failed to look up otp record %s: %w", id, err)
	}
	return &key, nil
}

// PurgeOlderThan removes records issued before the cutoff, in batches.
// Verification history has no value past the audit window.
func (r *OTPRepository) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	iter := r.client.Query(`
        SELECT phone_bucket, identity, phone, issued_at, record_id
        FROM otp_records WHERE issued_at < ? ALLOW FILTERING`, cutoff.UTC()).
		WithContext(ctx).Iter()

	var (
		bucket          int
		identity, phone string
		issuedAt        time.Time
		recordID        string
	)
	deleted := 0
	batch := r.client.Session.NewBatch(gocql.UnloggedBatch)
	batchSize := 0

	flush := func() error {
		if batchSize == 0 {
			return nil
		}
		if err := r.client.Session.ExecuteBatch(batch); err != nil {
			return err
		}
		deleted += batchSize
		batch = r.client.Session.NewBatch(gocql.UnloggedBatch)
		batchSize = 0
		return nil
	}

	for iter.Scan(&bucket, &identity, &phone, &issuedAt, &recordID) {
		batch.Query(`DELETE FROM otp_records WHERE phone_bucket = ? AND identity = ? AND phone = ? AND issued_at = ? AND record_id = ?`,
			bucket, identity, phone, issuedAt, recordID)
		batch.Query(`DELETE FROM otp_records_by_id WHERE record_id = ?`, recordID)
		batchSize++

		if batchSize >= 50 {
			if err := flush(); err != nil {
				iter.Close()
				return deleted, fmt.Errorf("failed to purge otp records: %w", err)
			}
		}
	}
	if err := flush(); err != nil {
		iter.Close()
		return deleted, fmt.Errorf("failed to purge otp records: %w", err)
	}
	if err := iter.Close(); err != nil {
		return deleted, fmt.Errorf("failed to scan otp records for purge: %w", err)
	}

	util.Info("Old OTP records purged", util.Int("deleted_count", deleted))
	return deleted, nil
}
