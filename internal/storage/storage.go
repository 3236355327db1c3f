// Package storage provides a trimmed event archiver for the trading
// engine. It uses BoltDB as the underlying storage engine, one bucket per
// event bus topic, persisting the JSON-encoded envelope for later
// time-range queries.
//
// This is an auditable event trail, not a full OHLCV/trade repository
// layer: it gives the composition root's persistence-writer observer a
// concrete, testable implementation.
package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"go.etcd.io/bbolt"

	"github.com/Inkedup1114/bitrader/internal/eventbus"
)

// Store archives event bus events to BoltDB, one bucket per topic.
type Store struct {
	db *bbolt.DB
}

// New opens (creating if absent) the archive database under dataPath.
func New(dataPath string) (*Store, error) {
	dbPath := filepath.Join(dataPath, "bitrader-events.db")

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// record is the on-disk shape for an archived event; Payload is kept as
// raw JSON so arbitrary topic payloads round-trip without a type registry.
type record struct {
	Topic         eventbus.Topic  `json:"topic"`
	Timestamp     int64           `json:"timestamp"`
	Symbol        string          `json:"symbol"`
	CorrelationID string          `json:"correlation_id"`
	Payload       json.RawMessage `json:"payload"`
}

// Archive persists one event under its topic's bucket, keyed by
// "symbol_timestamp" for efficient range scans.
func (s *Store) Archive(ev eventbus.Event) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	rec := record{
		Topic:         ev.Topic,
		Timestamp:     ev.Timestamp,
		Symbol:        ev.Symbol,
		CorrelationID: ev.CorrelationID,
		Payload:       payload,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(ev.Topic))
		if err != nil {
			return fmt.Errorf("create bucket %s: %w", ev.Topic, err)
		}
		key := fmt.Sprintf("%s_%020d", ev.Symbol, ev.Timestamp)
		return b.Put([]byte(key), data)
	})
}

// Query returns archived events for a topic and symbol within [start, end],
// ordered by timestamp.
func (s *Store) Query(topic eventbus.Topic, symbol string, start, end time.Time) ([]eventbus.Event, error) {
	var out []eventbus.Event

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(topic))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		prefix := []byte(symbol + "_")
		startKey := []byte(fmt.Sprintf("%s_%020d", symbol, start.UnixNano()))

		for k, v := c.Seek(startKey); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var rec record
			if err := json.Unmarshal(v, &rec); err != nil {
				continue
			}
			if rec.Timestamp > end.UnixNano() {
				break
			}
			out = append(out, eventbus.Event{
				Topic:         rec.Topic,
				Timestamp:     rec.Timestamp,
				Symbol:        rec.Symbol,
				CorrelationID: rec.CorrelationID,
				Payload:       rec.Payload,
			})
		}
		return nil
	})

	return out, err
}

// Subscribe attaches the store to every topic in topics, archiving each
// event as it's published. Returns the subscription handles so the caller
// can unsubscribe on shutdown.
func Subscribe(bus *eventbus.Bus, store *Store, topics ...eventbus.Topic) []*eventbus.Subscription {
	subs := make([]*eventbus.Subscription, 0, len(topics))
	for _, topic := range topics {
		sub := bus.Subscribe(topic, 256, eventbus.DropOldest, nil)
		subs = append(subs, sub)
		go func(sub *eventbus.Subscription) {
			for ev := range sub.Events() {
				if err := store.Archive(ev); err != nil {
					log.Warn().Err(err).Str("topic", string(ev.Topic)).Msg("storage: archive failed")
				}
			}
		}(sub)
	}
	return subs
}
