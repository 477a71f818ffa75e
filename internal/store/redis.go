package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/trust-engine/internal/trust"
	"github.com/wolfman30/trust-engine/pkg/logging"
)

const defaultKeyPrefix = "trust"

// RedisStore persists records, agreements and ledgers as JSON values. Commits
// run in a MULTI/EXEC transaction guarded by WATCH on every record key, so a
// concurrent writer in another process surfaces as ErrConcurrentUpdate.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	logger *logging.Logger
}

var (
	_ trust.Store          = (*RedisStore)(nil)
	_ trust.AgreementStore = (*RedisStore)(nil)
)

// NewRedisStore wraps a redis client.
func NewRedisStore(client redis.UniversalClient, logger *logging.Logger) *RedisStore {
	if client == nil {
		panic("store: redis client required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RedisStore{client: client, prefix: defaultKeyPrefix, logger: logger}
}

// WithPrefix namespaces every key, e.g. per environment.
func (s *RedisStore) WithPrefix(prefix string) *RedisStore {
	if prefix != "" {
		s.prefix = prefix
	}
	return s
}

func (s *RedisStore) recordKey(actorID string) string {
	return fmt.Sprintf("%s:record:%s", s.prefix, actorID)
}

func (s *RedisStore) agreementKey(actorID string) string {
	return fmt.Sprintf("%s:agreement:%s", s.prefix, actorID)
}

func (s *RedisStore) linksKey(actorID string) string {
	return fmt.Sprintf("%s:links:%s", s.prefix, actorID)
}

func (s *RedisStore) proofsKey(actorID string) string {
	return fmt.Sprintf("%s:proofs:%s", s.prefix, actorID)
}

func (s *RedisStore) reportKey(reportID string) string {
	return fmt.Sprintf("%s:report:%s", s.prefix, reportID)
}

func (s *RedisStore) filedKey(actorID string) string {
	return fmt.Sprintf("%s:reports_filed:%s", s.prefix, actorID)
}

func (s *RedisStore) receivedKey(actorID string) string {
	return fmt.Sprintf("%s:reports_received:%s", s.prefix, actorID)
}

// IsSigned reports whether an agreement key exists.
func (s *RedisStore) IsSigned(ctx context.Context, actorID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.agreementKey(actorID)).Result()
	if err != nil {
		return false, fmt.Errorf("store: check agreement: %w", err)
	}
	return n > 0, nil
}

// Sign stores the agreement if absent. Existing agreements are kept.
func (s *RedisStore) Sign(ctx context.Context, actorID string, metadata map[string]string) error {
	data, err := json.Marshal(trust.Agreement{ActorID: actorID, SignedAt: nowUTC(), Metadata: metadata})
	if err != nil {
		return fmt.Errorf("store: marshal agreement: %w", err)
	}
	if err := s.client.SetNX(ctx, s.agreementKey(actorID), data, 0).Err(); err != nil {
		return fmt.Errorf("store: sign agreement: %w", err)
	}
	return nil
}

// LoadRecord returns trust.ErrRecordNotFound when the actor has no record.
func (s *RedisStore) LoadRecord(ctx context.Context, actorID string) (*trust.TrustRecord, error) {
	data, err := s.client.Get(ctx, s.recordKey(actorID)).Bytes()
	if err == redis.Nil {
		return nil, trust.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get record: %w", err)
	}
	var rec trust.TrustRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("store: decode record: %w", err)
	}
	if rec.CategoryScores == nil {
		rec.CategoryScores = map[trust.Category]int{}
	}
	return &rec, nil
}

func (s *RedisStore) LoadLedger(ctx context.Context, actorID string) (trust.Ledger, error) {
	var ledger trust.Ledger

	links, err := s.client.HGetAll(ctx, s.linksKey(actorID)).Result()
	if err != nil {
		return ledger, fmt.Errorf("store: get links: %w", err)
	}
	for _, raw := range links {
		var l trust.VerifiedLink
		if err := json.Unmarshal([]byte(raw), &l); err != nil {
			return ledger, fmt.Errorf("store: decode link: %w", err)
		}
		ledger.Links = append(ledger.Links, l)
	}
	sort.SliceStable(ledger.Links, func(i, j int) bool {
		return ledger.Links[i].VerifiedAt.Before(ledger.Links[j].VerifiedAt)
	})

	proofs, err := s.client.HGetAll(ctx, s.proofsKey(actorID)).Result()
	if err != nil {
		return ledger, fmt.Errorf("store: get proofs: %w", err)
	}
	for _, raw := range proofs {
		var p trust.ProofOfActionRecord
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return ledger, fmt.Errorf("store: decode proof: %w", err)
		}
		ledger.Proofs = append(ledger.Proofs, p)
	}
	sort.SliceStable(ledger.Proofs, func(i, j int) bool {
		return ledger.Proofs[i].CreatedAt.Before(ledger.Proofs[j].CreatedAt)
	})

	if ledger.ReportsFiled, err = s.loadReportSet(ctx, s.filedKey(actorID)); err != nil {
		return ledger, err
	}
	if ledger.ReportsReceived, err = s.loadReportSet(ctx, s.receivedKey(actorID)); err != nil {
		return ledger, err
	}
	return ledger, nil
}

func (s *RedisStore) loadReportSet(ctx context.Context, setKey string) ([]trust.PeerReport, error) {
	ids, err := s.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return nil, fmt.Errorf("store: list reports: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.reportKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("store: get reports: %w", err)
	}
	out := make([]trust.PeerReport, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var r trust.PeerReport
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, fmt.Errorf("store: decode report: %w", err)
		}
		out = append(out, r)
	}
	sortReports(out)
	return out, nil
}

func (s *RedisStore) LoadReport(ctx context.Context, reportID string) (*trust.PeerReport, error) {
	data, err := s.client.Get(ctx, s.reportKey(reportID)).Bytes()
	if err == redis.Nil {
		return nil, trust.ErrReportNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get report: %w", err)
	}
	var r trust.PeerReport
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("store: decode report: %w", err)
	}
	return &r, nil
}

// Commit applies every write in one transaction.
func (s *RedisStore) Commit(ctx context.Context, c trust.Commit) error {
	payload, err := s.encodeCommit(c)
	if err != nil {
		return err
	}

	watched := make([]string, 0, len(c.Records))
	for _, rec := range c.Records {
		watched = append(watched, s.recordKey(rec.ActorID))
	}

	txf := func(tx *redis.Tx) error {
		for _, rec := range c.Records {
			stored, err := storedVersion(ctx, tx, s.recordKey(rec.ActorID))
			if err != nil {
				return err
			}
			if stored != rec.Version-1 {
				return fmt.Errorf("%w: actor %s at version %d, commit expects %d",
					trust.ErrConcurrentUpdate, rec.ActorID, stored, rec.Version-1)
			}
		}
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for key, value := range payload.strings {
				pipe.Set(ctx, key, value, 0)
			}
			for key, fields := range payload.hashes {
				pipe.HSet(ctx, key, fields)
			}
			for key, members := range payload.sets {
				pipe.SAdd(ctx, key, members...)
			}
			return nil
		})
		return err
	}

	err = s.client.Watch(ctx, txf, watched...)
	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("%w: watched record changed", trust.ErrConcurrentUpdate)
	}
	if err != nil && !errors.Is(err, trust.ErrConcurrentUpdate) {
		return fmt.Errorf("store: commit: %w", err)
	}
	return err
}

type encodedCommit struct {
	strings map[string][]byte
	hashes  map[string]map[string]any
	sets    map[string][]any
}

func (s *RedisStore) encodeCommit(c trust.Commit) (encodedCommit, error) {
	out := encodedCommit{
		strings: map[string][]byte{},
		hashes:  map[string]map[string]any{},
		sets:    map[string][]any{},
	}
	put := func(key string, v any) error {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("store: marshal %s: %w", key, err)
		}
		out.strings[key] = data
		return nil
	}
	field := func(key, id string, v any) error {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("store: marshal %s: %w", key, err)
		}
		if out.hashes[key] == nil {
			out.hashes[key] = map[string]any{}
		}
		out.hashes[key][id] = string(data)
		return nil
	}

	if c.Agreement != nil {
		if err := put(s.agreementKey(c.Agreement.ActorID), c.Agreement); err != nil {
			return out, err
		}
	}
	for _, rec := range c.Records {
		if err := put(s.recordKey(rec.ActorID), rec); err != nil {
			return out, err
		}
	}
	for _, l := range c.Links {
		if err := field(s.linksKey(l.ActorID), l.ID, l); err != nil {
			return out, err
		}
	}
	for _, p := range c.Proofs {
		if err := field(s.proofsKey(p.ActorID), p.ID, p); err != nil {
			return out, err
		}
	}
	for _, r := range c.Reports {
		if err := put(s.reportKey(r.ID), r); err != nil {
			return out, err
		}
		out.sets[s.filedKey(r.ReporterID)] = append(out.sets[s.filedKey(r.ReporterID)], r.ID)
		out.sets[s.receivedKey(r.TargetID)] = append(out.sets[s.receivedKey(r.TargetID)], r.ID)
	}
	return out, nil
}

// storedVersion reads only the version field of a record; 0 when absent.
func storedVersion(ctx context.Context, tx *redis.Tx, key string) (int64, error) {
	data, err := tx.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("store: read version: %w", err)
	}
	var head struct {
		Version json.Number `json:"version"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return 0, fmt.Errorf("store: decode version: %w", err)
	}
	if head.Version == "" {
		return 0, nil
	}
	return strconv.ParseInt(head.Version.String(), 10, 64)
}
