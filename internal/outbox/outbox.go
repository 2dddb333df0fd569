// Package outbox implements a durable task queue on the local database.
// Side-effecting work (like delivering captured count items to a connected
// business) is enqueued in the same transaction as the local write that
// caused it, then drained by the sync runner when the server is reachable.
package outbox

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Task kinds.
const (
	KindDeliverCapturedItems = "deliver_captured_items"
)

// Task states.
const (
	StatePending  = "pending"
	StateInFlight = "in_flight"
	StateDone     = "done"
	StateFailed   = "failed"
)

// DefaultMaxAttempts is the retry budget before a task is parked as failed.
const DefaultMaxAttempts = 3

// Task is one unit of durable work.
type Task struct {
	ID          int64
	Kind        string
	Payload     json.RawMessage
	State       string
	Attempts    int
	MaxAttempts int
	LastError   string
	CreatedAt   int64
}

// DeliverItemsPayload is the payload for deliver_captured_items tasks.
type DeliverItemsPayload struct {
	RequestID string   `json:"requestId"`
	SessionID string   `json:"sessionId"`
	ItemIDs   []string `json:"itemIds"`
}

// Queue manages outbox tasks on a shared database connection.
type Queue struct {
	db *sql.DB
}

func New(db *sql.DB) *Queue {
	return &Queue{db: db}
}

// Enqueue adds a pending task outside any caller transaction.
func (q *Queue) Enqueue(kind string, payload any) (int64, error) {
	return enqueue(q.db, kind, payload)
}

// EnqueueTx adds a pending task inside the caller's transaction so the task
// commits or rolls back together with the domain write that spawned it.
func (q *Queue) EnqueueTx(tx *sql.Tx, kind string, payload any) (int64, error) {
	return enqueue(tx, kind, payload)
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func enqueue(e execer, kind string, payload any) (int64, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal task payload: %w", err)
	}
	res, err := e.Exec(
		`INSERT INTO outbox (kind, payload, state, attempts, max_attempts, created_at)
		 VALUES (?, ?, 'pending', 0, ?, ?)`,
		kind, string(raw), DefaultMaxAttempts, time.Now().UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("enqueue task: %w", err)
	}
	return res.LastInsertId()
}

// ClaimPending atomically moves up to limit pending tasks to in_flight and
// returns them oldest first. A task claimed here cannot be claimed again
// until it is marked done or failed back to pending.
func (q *Queue) ClaimPending(limit int) ([]Task, error) {
	tx, err := q.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.Query(
		`SELECT task_id, kind, payload, state, attempts, max_attempts, COALESCE(last_error, ''), created_at
		 FROM outbox WHERE state = 'pending' ORDER BY task_id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("select pending: %w", err)
	}

	var tasks []Task
	for rows.Next() {
		var t Task
		var payload string
		if err := rows.Scan(&t.ID, &t.Kind, &payload, &t.State, &t.Attempts, &t.MaxAttempts, &t.LastError, &t.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan task: %w", err)
		}
		t.Payload = json.RawMessage(payload)
		tasks = append(tasks, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range tasks {
		res, err := tx.Exec(
			`UPDATE outbox SET state = 'in_flight', attempts = attempts + 1
			 WHERE task_id = ? AND state = 'pending'`, tasks[i].ID)
		if err != nil {
			return nil, fmt.Errorf("claim task %d: %w", tasks[i].ID, err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return nil, fmt.Errorf("task %d claimed concurrently", tasks[i].ID)
		}
		tasks[i].State = StateInFlight
		tasks[i].Attempts++
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}
	return tasks, nil
}

// MarkDone finishes a task successfully.
func (q *Queue) MarkDone(taskID int64) error {
	_, err := q.db.Exec(`UPDATE outbox SET state = 'done', last_error = '' WHERE task_id = ?`, taskID)
	if err != nil {
		return fmt.Errorf("mark done: %w", err)
	}
	return nil
}

// MarkFailed records a failure. The task returns to pending while attempts
// remain; once the budget is spent it is parked as failed and kept for
// inspection.
func (q *Queue) MarkFailed(taskID int64, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	_, err := q.db.Exec(
		`UPDATE outbox SET
		   state = CASE WHEN attempts >= max_attempts THEN 'failed' ELSE 'pending' END,
		   last_error = ?
		 WHERE task_id = ?`, msg, taskID)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// ResetFailed moves failed tasks back to pending with a fresh attempt budget.
func (q *Queue) ResetFailed() (int64, error) {
	res, err := q.db.Exec(`UPDATE outbox SET state = 'pending', attempts = 0, last_error = '' WHERE state = 'failed'`)
	if err != nil {
		return 0, fmt.Errorf("reset failed: %w", err)
	}
	return res.RowsAffected()
}

// RequeueInFlight returns in_flight tasks to pending. Called at startup to
// recover tasks orphaned by a crash mid-dispatch.
func (q *Queue) RequeueInFlight() (int64, error) {
	res, err := q.db.Exec(`UPDATE outbox SET state = 'pending' WHERE state = 'in_flight'`)
	if err != nil {
		return 0, fmt.Errorf("requeue in-flight: %w", err)
	}
	return res.RowsAffected()
}

// Counts returns the number of tasks per state.
func (q *Queue) Counts() (map[string]int64, error) {
	rows, err := q.db.Query(`SELECT state, COUNT(*) FROM outbox GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("count tasks: %w", err)
	}
	defer rows.Close()

	counts := map[string]int64{}
	for rows.Next() {
		var state string
		var n int64
		if err := rows.Scan(&state, &n); err != nil {
			return nil, err
		}
		counts[state] = n
	}
	return counts, rows.Err()
}

// Failed lists parked tasks for operator inspection.
func (q *Queue) Failed() ([]Task, error) {
	rows, err := q.db.Query(
		`SELECT task_id, kind, payload, state, attempts, max_attempts, COALESCE(last_error, ''), created_at
		 FROM outbox WHERE state = 'failed' ORDER BY task_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list failed: %w", err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		var t Task
		var payload string
		if err := rows.Scan(&t.ID, &t.Kind, &payload, &t.State, &t.Attempts, &t.MaxAttempts, &t.LastError, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan failed task: %w", err)
		}
		t.Payload = json.RawMessage(payload)
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}
