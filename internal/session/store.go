package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oblisync/oblisync/internal/marketplace"
)

const (
	keyConfig   = "oblisync:config"
	keyPackages = "oblisync:session:packages"
	keyRecords  = "oblisync:session:records"
	keyLog      = "oblisync:session:log"
	keySelected = "oblisync:session:selected"

	// logCap bounds the activity log; LTRIM keeps the newest entries.
	logCap = 200
)

// ErrRecordNotFound is returned when a processing record does not
// exist for the requested package.
var ErrRecordNotFound = errors.New("session: record not found")

// Store is the Redis-backed session store. Session-scoped keys carry
// a TTL so an abandoned session expires like browser storage would;
// the encrypted configuration is kept without one.
type Store struct {
	client *redis.Client
	key    [32]byte
	ttl    time.Duration
}

// NewStore constructs a Store. secret seals the stored credentials.
func NewStore(client *redis.Client, secret string, ttl time.Duration) *Store {
	return &Store{client: client, key: deriveKey(secret), ttl: ttl}
}

// SaveConfig encrypts and persists the integration configuration.
func (s *Store) SaveConfig(ctx context.Context, cfg IntegrationConfig) error {
	plaintext, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("session: marshal config: %w", err)
	}
	box, err := seal(s.key, plaintext)
	if err != nil {
		return fmt.Errorf("session: seal config: %w", err)
	}
	if err := s.client.Set(ctx, keyConfig, box, 0).Err(); err != nil {
		return fmt.Errorf("session: save config: %w", err)
	}
	return nil
}

// Config returns the stored configuration, or nil when none was saved.
func (s *Store) Config(ctx context.Context) (*IntegrationConfig, error) {
	box, err := s.client.Get(ctx, keyConfig).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("session: load config: %w", err)
	}
	plaintext, err := open(s.key, box)
	if err != nil {
		return nil, err
	}
	var cfg IntegrationConfig
	if err := json.Unmarshal(plaintext, &cfg); err != nil {
		return nil, fmt.Errorf("session: unmarshal config: %w", err)
	}
	return &cfg, nil
}

// ReplacePackages overwrites the session's working set.
func (s *Store) ReplacePackages(ctx context.Context, packages []marketplace.ShipmentPackage) error {
	data, err := json.Marshal(packages)
	if err != nil {
		return fmt.Errorf("session: marshal packages: %w", err)
	}
	if err := s.client.Set(ctx, keyPackages, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("session: save packages: %w", err)
	}
	return nil
}

// Packages returns the current working set; nil when nothing was
// fetched this session.
func (s *Store) Packages(ctx context.Context) ([]marketplace.ShipmentPackage, error) {
	data, err := s.client.Get(ctx, keyPackages).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("session: load packages: %w", err)
	}
	var packages []marketplace.ShipmentPackage
	if err := json.Unmarshal(data, &packages); err != nil {
		return nil, fmt.Errorf("session: unmarshal packages: %w", err)
	}
	return packages, nil
}

// SaveRecord creates or replaces the processing record for a package.
func (s *Store) SaveRecord(ctx context.Context, record ProcessedInvoiceRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("session: marshal record: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, keyRecords, recordField(record.PackageID), data)
	pipe.Expire(ctx, keyRecords, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("session: save record: %w", err)
	}
	return nil
}

// Record returns the processing record for one package, or nil when
// the package was never attempted.
func (s *Store) Record(ctx context.Context, packageID int64) (*ProcessedInvoiceRecord, error) {
	data, err := s.client.HGet(ctx, keyRecords, recordField(packageID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("session: load record: %w", err)
	}
	var record ProcessedInvoiceRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("session: unmarshal record: %w", err)
	}
	return &record, nil
}

// Records returns every processing record keyed by package id.
func (s *Store) Records(ctx context.Context) (map[int64]ProcessedInvoiceRecord, error) {
	raw, err := s.client.HGetAll(ctx, keyRecords).Result()
	if err != nil {
		return nil, fmt.Errorf("session: load records: %w", err)
	}
	records := make(map[int64]ProcessedInvoiceRecord, len(raw))
	for field, data := range raw {
		id, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			continue
		}
		var record ProcessedInvoiceRecord
		if err := json.Unmarshal([]byte(data), &record); err != nil {
			return nil, fmt.Errorf("session: unmarshal record %s: %w", field, err)
		}
		records[id] = record
	}
	return records, nil
}

// UpdateRecord re-reads the stored record, applies mutate, and writes
// it back. Fails with ErrRecordNotFound when no record exists.
func (s *Store) UpdateRecord(ctx context.Context, packageID int64, mutate func(*ProcessedInvoiceRecord)) error {
	record, err := s.Record(ctx, packageID)
	if err != nil {
		return err
	}
	if record == nil {
		return ErrRecordNotFound
	}
	mutate(record)
	return s.SaveRecord(ctx, *record)
}

// AppendLog pushes one entry onto the capped activity log.
func (s *Store) AppendLog(ctx context.Context, entry LogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("session: marshal log entry: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, keyLog, data)
	pipe.LTrim(ctx, keyLog, 0, logCap-1)
	pipe.Expire(ctx, keyLog, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("session: append log: %w", err)
	}
	return nil
}

// Logs returns up to limit entries, newest first.
func (s *Store) Logs(ctx context.Context, limit int) ([]LogEntry, error) {
	if limit <= 0 || limit > logCap {
		limit = logCap
	}
	raw, err := s.client.LRange(ctx, keyLog, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("session: load logs: %w", err)
	}
	entries := make([]LogEntry, 0, len(raw))
	for _, data := range raw {
		var entry LogEntry
		if err := json.Unmarshal([]byte(data), &entry); err != nil {
			return nil, fmt.Errorf("session: unmarshal log entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// SetSelected stores the package ids picked for manual action.
func (s *Store) SetSelected(ctx context.Context, ids []int64) error {
	data, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("session: marshal selection: %w", err)
	}
	if err := s.client.Set(ctx, keySelected, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("session: save selection: %w", err)
	}
	return nil
}

// Selected returns the stored selection, possibly empty.
func (s *Store) Selected(ctx context.Context) ([]int64, error) {
	data, err := s.client.Get(ctx, keySelected).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("session: load selection: %w", err)
	}
	var ids []int64
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("session: unmarshal selection: %w", err)
	}
	return ids, nil
}

// Clear discards the session working set. The encrypted configuration
// is deliberately kept.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, keyPackages, keyRecords, keyLog, keySelected).Err(); err != nil {
		return fmt.Errorf("session: clear: %w", err)
	}
	return nil
}

func recordField(packageID int64) string {
	return strconv.FormatInt(packageID, 10)
}
