// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	badger "github.com/dgraph-io/badger/v4"
)

const (
	badgerSessionPrefix    = "s:"
	badgerTransitionPrefix = "t:"
	badgerSeqKey           = "!transition_seq"
	badgerSeqBandwidth     = 128
)

// Badger is a durable Store backed by an embedded badger key-value database.
// Transition rows carry a persistent sequence number so append order survives
// restarts.
type Badger struct {
	db  *badger.DB
	seq *badger.Sequence
}

func NewBadger(dir string) (*Badger, error) {
	if dir == "" {
		return nil, errors.New("badger store directory required")
	}

	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}

	seq, err := db.GetSequence([]byte(badgerSeqKey), badgerSeqBandwidth)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open transition sequence: %w", err)
	}
	return &Badger{db: db, seq: seq}, nil
}

func (b *Badger) Close() error {
	return errors.Join(b.seq.Release(), b.db.Close())
}

func sessionKey(id string) []byte {
	return []byte(badgerSessionPrefix + id)
}

func transitionKey(sessionID string, n uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d", badgerTransitionPrefix, sessionID, n))
}

func (b *Badger) PutSession(ctx context.Context, rec *SessionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(sessionKey(rec.SessionID), data)
	})
}

func (b *Badger) GetSession(ctx context.Context, id string) (*SessionRecord, error) {
	var rec SessionRecord
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(sessionKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (b *Badger) UpdateSession(ctx context.Context, id string, fn func(*SessionRecord) error) (*SessionRecord, error) {
	var rec SessionRecord
	err := b.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(sessionKey(id))
		if err != nil {
			return err
		}
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		}); err != nil {
			return err
		}
		if err := fn(&rec); err != nil {
			return err
		}
		data, err := json.Marshal(&rec)
		if err != nil {
			return err
		}
		return txn.Set(sessionKey(id), data)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (b *Badger) ListSessions(ctx context.Context) ([]*SessionRecord, error) {
	var list []*SessionRecord
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(badgerSessionPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var rec SessionRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			list = append(list, &rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAtUnix != list[j].CreatedAtUnix {
			return list[i].CreatedAtUnix < list[j].CreatedAtUnix
		}
		return list[i].SessionID < list[j].SessionID
	})
	return list, nil
}

func (b *Badger) DeleteSession(ctx context.Context, id string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(sessionKey(id)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(badgerTransitionPrefix + id + ":")
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		var keys [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		it.Close()

		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *Badger) AppendTransition(ctx context.Context, tr TransitionRecord) error {
	n, err := b.seq.Next()
	if err != nil {
		return fmt.Errorf("next transition sequence: %w", err)
	}
	data, err := json.Marshal(&tr)
	if err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(transitionKey(tr.SessionID, n), data)
	})
}

func (b *Badger) Transitions(ctx context.Context, sessionID string) ([]TransitionRecord, error) {
	var list []TransitionRecord
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(badgerTransitionPrefix + sessionID + ":")
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var tr TransitionRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &tr)
			}); err != nil {
				return err
			}
			list = append(list, tr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return list, nil
}
