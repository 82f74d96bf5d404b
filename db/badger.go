package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	badger "github.com/dgraph-io/badger/v4"
)

const (
	sessionPrefix = "session/"
	counterPrefix = "counter/"
)

// BadgerStore backs both the session store and the call counter with a local
// badger database. Used for development and tests; the deployed services use
// the DynamoDB backends.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadger opens a badger store at dir. An empty dir opens an in-memory
// store.
func OpenBadger(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}

	bdb, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}

	return &BadgerStore{db: bdb}, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func (s *BadgerStore) Put(ctx context.Context, session Session) error {
	value, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(sessionPrefix+session.MeetingID), value)
	})
	if err != nil {
		return fmt.Errorf("put session: %w", err)
	}

	return nil
}

func (s *BadgerStore) GetByMeetingID(
	ctx context.Context,
	meetingID string,
) (Session, error) {
	var session Session

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(sessionPrefix + meetingID))
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			return json.Unmarshal(value, &session)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Session{}, ErrSessionNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("get session: %w", err)
	}

	return session, nil
}

func (s *BadgerStore) Delete(ctx context.Context, meetingID string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(sessionPrefix + meetingID))
	})
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	return nil
}

// Add runs inside a serializable transaction and retries on conflict, which
// gives the same lost-update safety as the DynamoDB ADD expression.
func (s *BadgerStore) Add(
	ctx context.Context,
	name string,
	delta int64,
) (int64, error) {
	key := []byte(counterPrefix + name)

	for {
		var value int64

		err := s.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get(key)
			if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}

			if err == nil {
				err = item.Value(func(raw []byte) error {
					value, err = strconv.ParseInt(string(raw), 10, 64)
					return err
				})
				if err != nil {
					return err
				}
			}

			value += delta
			return txn.Set(key, []byte(strconv.FormatInt(value, 10)))
		})

		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("update counter: %w", err)
		}

		return value, nil
	}
}
