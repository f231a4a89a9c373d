package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"DealScanner/internal/domain"
	"DealScanner/internal/ports"
)

const receiveConflictRetries = 3

// message is the record stored in Badger for each job.
type message struct {
	ID        string              `json:"id"`
	Job       domain.IngestionJob `json:"job"`
	Status    domain.JobStatus    `json:"status"`
	Attempt   int                 `json:"attempt"`
	VisibleAt time.Time           `json:"visible_at"`
	LastError string              `json:"last_error,omitempty"`
	FailedAt  *time.Time          `json:"failed_at,omitempty"`
}

// Stats counts the jobs in each queue state.
type Stats struct {
	Queued   int `json:"queued"`
	InFlight int `json:"in_flight"`
	Dead     int `json:"dead"`
}

// BadgerQueue is a persistent at-least-once job queue. A received job stays invisible for the
// visibility timeout and is delivered again if it is neither acked, retried nor dead-lettered.
type BadgerQueue struct {
	db                *badger.DB
	name              string
	visibilityTimeout time.Duration
}

var _ ports.JobQueue = (*BadgerQueue)(nil)

// Open opens a Badger database at path, or an in-memory one.
func Open(path string, inMemory bool) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	} else if path == "" {
		return nil, errors.New("queue path is required")
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return db, nil
}

// NewBadgerQueue wraps db; the database lifecycle stays with the caller.
func NewBadgerQueue(db *badger.DB, name string, visibilityTimeout time.Duration) (*BadgerQueue, error) {
	if db == nil {
		return nil, errors.New("badger db is required")
	}
	if name == "" {
		return nil, errors.New("queue name is required")
	}
	if visibilityTimeout <= 0 {
		visibilityTimeout = 10 * time.Minute
	}
	return &BadgerQueue{db: db, name: name, visibilityTimeout: visibilityTimeout}, nil
}

// Enqueue stores a job as immediately visible. A job without id gets one.
func (q *BadgerQueue) Enqueue(ctx context.Context, job domain.IngestionJob) error {
	now := time.Now()
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = now.UTC()
	}

	msg := message{
		ID:        uuid.NewString(),
		Job:       job,
		Status:    domain.JobQueued,
		VisibleAt: now,
	}

	return q.db.Update(func(txn *badger.Txn) error {
		if err := q.put(txn, msg); err != nil {
			return err
		}
		return txn.Set(q.indexKey(msg.VisibleAt, msg.ID), []byte{})
	})
}

// Receive claims the oldest visible job and bumps its attempt counter.
func (q *BadgerQueue) Receive(ctx context.Context) (*domain.JobDelivery, error) {
	var (
		delivery *domain.JobDelivery
		err      error
	)
	for i := 0; i < receiveConflictRetries; i++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		delivery, err = q.receiveOnce()
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
	}
	if errors.Is(err, badger.ErrConflict) {
		// another worker claimed the same job; report empty so the caller polls again.
		return nil, fmt.Errorf("receive: %w", domain.ErrQueueEmpty)
	}
	return delivery, err
}

func (q *BadgerQueue) receiveOnce() (*domain.JobDelivery, error) {
	var claimed message

	err := q.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := q.indexPrefix()
		it := txn.NewIterator(opts)
		defer it.Close()

		now := time.Now()
		var (
			indexKey []byte
			found    bool
		)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			ts, id, err := q.parseIndexKey(key)
			if err != nil {
				continue
			}
			if ts.After(now) {
				// index is ordered by visibility time.
				break
			}

			msg, err := q.get(txn, id)
			if errors.Is(err, badger.ErrKeyNotFound) {
				if err := txn.Delete(key); err != nil {
					return err
				}
				continue
			}
			if err != nil {
				return err
			}

			claimed = msg
			indexKey = key
			found = true
			break
		}
		if !found {
			return domain.ErrQueueEmpty
		}

		claimed.Attempt++
		claimed.Status = domain.JobRunning
		claimed.VisibleAt = now.Add(q.visibilityTimeout)

		if err := txn.Delete(indexKey); err != nil {
			return err
		}
		if err := q.put(txn, claimed); err != nil {
			return err
		}
		return txn.Set(q.indexKey(claimed.VisibleAt, claimed.ID), []byte{})
	})
	if err != nil {
		if errors.Is(err, domain.ErrQueueEmpty) {
			return nil, fmt.Errorf("receive: %w", err)
		}
		return nil, err
	}

	return &domain.JobDelivery{MessageID: claimed.ID, Job: claimed.Job, Attempt: claimed.Attempt}, nil
}

// Ack removes a completed job.
func (q *BadgerQueue) Ack(ctx context.Context, d *domain.JobDelivery) error {
	return q.db.Update(func(txn *badger.Txn) error {
		msg, err := q.get(txn, d.MessageID)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return q.remove(txn, msg)
	})
}

// Retry makes the job visible again after delay.
func (q *BadgerQueue) Retry(ctx context.Context, d *domain.JobDelivery, delay time.Duration) error {
	return q.db.Update(func(txn *badger.Txn) error {
		msg, err := q.get(txn, d.MessageID)
		if err != nil {
			return fmt.Errorf("retry %s: %w", d.MessageID, err)
		}
		if err := txn.Delete(q.indexKey(msg.VisibleAt, msg.ID)); err != nil {
			return err
		}

		msg.Status = domain.JobQueued
		msg.VisibleAt = time.Now().Add(delay)
		if err := q.put(txn, msg); err != nil {
			return err
		}
		return txn.Set(q.indexKey(msg.VisibleAt, msg.ID), []byte{})
	})
}

// DeadLetter moves the job out of the queue and keeps it with the failure reason.
func (q *BadgerQueue) DeadLetter(ctx context.Context, d *domain.JobDelivery, reason string) error {
	return q.db.Update(func(txn *badger.Txn) error {
		msg, err := q.get(txn, d.MessageID)
		if err != nil {
			return fmt.Errorf("dead letter %s: %w", d.MessageID, err)
		}
		if err := q.remove(txn, msg); err != nil {
			return err
		}

		now := time.Now().UTC()
		msg.Status = domain.JobFailed
		msg.LastError = reason
		msg.FailedAt = &now
		data, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("marshal dead letter: %w", err)
		}
		return txn.Set(q.deadKey(msg.ID), data)
	})
}

// Stats counts queued, in-flight and dead-lettered jobs.
func (q *BadgerQueue) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := q.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		msgPrefix := q.msgPrefix()
		for it.Seek(msgPrefix); it.ValidForPrefix(msgPrefix); it.Next() {
			var msg message
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &msg)
			}); err != nil {
				return err
			}
			if msg.Status == domain.JobRunning && msg.VisibleAt.After(time.Now()) {
				s.InFlight++
			} else {
				s.Queued++
			}
		}

		deadPrefix := q.deadPrefix()
		for it.Seek(deadPrefix); it.ValidForPrefix(deadPrefix); it.Next() {
			s.Dead++
		}
		return nil
	})
	return s, err
}

func (q *BadgerQueue) get(txn *badger.Txn, id string) (message, error) {
	var msg message
	item, err := txn.Get(q.msgKey(id))
	if err != nil {
		return msg, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &msg)
	})
	return msg, err
}

func (q *BadgerQueue) put(txn *badger.Txn, msg message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal queue message: %w", err)
	}
	return txn.Set(q.msgKey(msg.ID), data)
}

func (q *BadgerQueue) remove(txn *badger.Txn, msg message) error {
	if err := txn.Delete(q.indexKey(msg.VisibleAt, msg.ID)); err != nil {
		return err
	}
	return txn.Delete(q.msgKey(msg.ID))
}

func (q *BadgerQueue) msgPrefix() []byte {
	return []byte(fmt.Sprintf("queue:%s:msg:", q.name))
}

func (q *BadgerQueue) msgKey(id string) []byte {
	return []byte(fmt.Sprintf("queue:%s:msg:%s", q.name, id))
}

func (q *BadgerQueue) deadPrefix() []byte {
	return []byte(fmt.Sprintf("queue:%s:dead:", q.name))
}

func (q *BadgerQueue) deadKey(id string) []byte {
	return []byte(fmt.Sprintf("queue:%s:dead:%s", q.name, id))
}

func (q *BadgerQueue) indexPrefix() []byte {
	return []byte(fmt.Sprintf("queue:%s:index:", q.name))
}

// indexKey zero-pads the timestamp so byte order matches time order.
func (q *BadgerQueue) indexKey(visibleAt time.Time, id string) []byte {
	return []byte(fmt.Sprintf("queue:%s:index:%020d:%s", q.name, visibleAt.UnixNano(), id))
}

func (q *BadgerQueue) parseIndexKey(key []byte) (time.Time, string, error) {
	prefix := q.indexPrefix()
	if len(key) < len(prefix)+21 {
		return time.Time{}, "", fmt.Errorf("invalid index key %q", key)
	}
	suffix := string(key[len(prefix):])

	var ts int64
	if _, err := fmt.Sscanf(suffix[:20], "%d", &ts); err != nil {
		return time.Time{}, "", err
	}
	return time.Unix(0, ts), suffix[21:], nil
}
