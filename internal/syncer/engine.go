// Package syncer drives bidirectional synchronization between the local
// store and the inventad server: push dirty records, drain the outbox, pull
// and merge remote changes.
package syncer

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jvega/inventa/internal/models"
	"github.com/jvega/inventa/internal/outbox"
	"github.com/jvega/inventa/internal/store"
	"github.com/jvega/inventa/internal/syncclient"
)

// ErrSyncInProgress is returned when a sync round is already running.
var ErrSyncInProgress = errors.New("sync already in progress")

// ErrAuthCooldown is returned while background sync is paused after a 401.
var ErrAuthCooldown = errors.New("sync paused after auth failure")

// authCooldown is how long background sync pauses after an unauthorized
// response, so a bad key does not hammer the server every round.
const authCooldown = 60 * time.Second

// outboxClaimLimit caps outbox tasks dispatched per round.
const outboxClaimLimit = 10

// maxPullPages bounds the pull loop per round.
const maxPullPages = 10

// Result summarizes one sync round.
type Result struct {
	Pushed       int // dirty records sent
	Applied      int // acknowledged by the server
	Rejected     int // refused by the server
	OutboxDone   int
	OutboxFailed int
	Pulled       int // records received
	Merged       int // applied locally
	Skipped      int // local dirty won
}

// Engine runs sync rounds. Only one round runs at a time; concurrent calls
// get ErrSyncInProgress and the scheduler coalesces them instead.
type Engine struct {
	store      *store.Store
	outbox     *outbox.Queue
	client     *syncclient.Client
	businessID string
	log        *slog.Logger

	mu             sync.Mutex
	busy           bool
	authPauseUntil time.Time
}

// New creates an Engine.
func New(st *store.Store, ob *outbox.Queue, client *syncclient.Client, businessID string) *Engine {
	return &Engine{
		store:      st,
		outbox:     ob,
		client:     client,
		businessID: businessID,
		log:        slog.Default().With("component", "syncer"),
	}
}

// Sync runs one full round: push, outbox, pull. A transport failure during
// push skips the pull so a half-reachable server does not advance state.
func (e *Engine) Sync() (*Result, error) {
	return e.run(e.push, e.outboxPhase, e.pull)
}

// PushOnly runs the push and outbox phases without pulling.
func (e *Engine) PushOnly() (*Result, error) {
	return e.run(e.push, e.outboxPhase)
}

// PullOnly runs only the pull phase. Dirty local records are left alone by
// the merge, so pulling without pushing never loses local edits.
func (e *Engine) PullOnly() (*Result, error) {
	return e.run(e.pull)
}

func (e *Engine) run(phases ...func(*Result) error) (*Result, error) {
	e.mu.Lock()
	if e.busy {
		e.mu.Unlock()
		return nil, ErrSyncInProgress
	}
	if time.Now().Before(e.authPauseUntil) {
		e.mu.Unlock()
		return nil, ErrAuthCooldown
	}
	e.busy = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.busy = false
		e.mu.Unlock()
	}()

	res := &Result{}
	for _, phase := range phases {
		if err := phase(res); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (e *Engine) outboxPhase(res *Result) error {
	e.drainOutbox(res)
	return nil
}

// noteAuthFailure starts the cooldown window on an unauthorized response.
func (e *Engine) noteAuthFailure() {
	e.mu.Lock()
	e.authPauseUntil = time.Now().Add(authCooldown)
	e.mu.Unlock()
}

func (e *Engine) push(res *Result) error {
	dirty, err := e.store.ListDirty(e.businessID)
	if err != nil {
		return fmt.Errorf("collect dirty records: %w", err)
	}
	if len(dirty) == 0 {
		return nil
	}

	changes := map[string][]models.Record{}
	// Snapshot timestamps keyed per entity so acks only clear rows that
	// were not edited again while the batch was in flight.
	snapshots := map[string]map[string]int64{}
	for _, d := range dirty {
		changes[d.EntityType] = append(changes[d.EntityType], d.Record)
		if snapshots[d.EntityType] == nil {
			snapshots[d.EntityType] = map[string]int64{}
		}
		snapshots[d.EntityType][d.Record.ExternalID] = d.Record.UpdatedAt
	}
	res.Pushed = len(dirty)

	resp, err := e.client.Batch(changes)
	if err != nil {
		if errors.Is(err, syncclient.ErrUnauthorized) {
			e.noteAuthFailure()
		}
		return fmt.Errorf("push batch: %w", err)
	}

	for et, result := range resp.Processed {
		var acks []store.Ack
		for _, a := range result.Applied {
			acks = append(acks, store.Ack{
				ExternalID:        a.ExternalID,
				SnapshotUpdatedAt: snapshots[et][a.ExternalID],
			})
		}
		if err := e.store.MarkSynced(et, acks); err != nil {
			return fmt.Errorf("mark synced %s: %w", et, err)
		}
		res.Applied += len(result.Applied)

		for _, rej := range result.Rejected {
			e.log.Warn("record rejected", "entity", et, "id", rej.ExternalID, "reason", rej.Reason)
			if err := e.store.MarkRejected(et, rej.ExternalID); err != nil {
				return fmt.Errorf("mark rejected %s: %w", et, err)
			}
		}
		res.Rejected += len(result.Rejected)
	}
	return nil
}

// drainOutbox dispatches claimed tasks. Task failures are retried by the
// queue's attempt budget and never abort the round.
func (e *Engine) drainOutbox(res *Result) {
	tasks, err := e.outbox.ClaimPending(outboxClaimLimit)
	if err != nil {
		e.log.Error("claim outbox tasks", "err", err)
		return
	}
	for _, task := range tasks {
		if err := e.dispatch(task); err != nil {
			e.log.Warn("outbox task failed", "task", task.ID, "kind", task.Kind, "attempt", task.Attempts, "err", err)
			if mErr := e.outbox.MarkFailed(task.ID, err); mErr != nil {
				e.log.Error("mark task failed", "task", task.ID, "err", mErr)
			}
			res.OutboxFailed++
			continue
		}
		if err := e.outbox.MarkDone(task.ID); err != nil {
			e.log.Error("mark task done", "task", task.ID, "err", err)
		}
		res.OutboxDone++
	}
}

func (e *Engine) dispatch(task outbox.Task) error {
	switch task.Kind {
	case outbox.KindDeliverCapturedItems:
		return e.deliverCapturedItems(task)
	default:
		return fmt.Errorf("unknown task kind %q", task.Kind)
	}
}

// deliverCapturedItems sends locally captured counted items to the business
// that issued the connection request, then clears them locally.
func (e *Engine) deliverCapturedItems(task outbox.Task) error {
	var p outbox.DeliverItemsPayload
	if err := json.Unmarshal(task.Payload, &p); err != nil {
		return fmt.Errorf("decode task payload: %w", err)
	}

	var items []models.Record
	var acks []store.Ack
	for _, id := range p.ItemIDs {
		rec, err := e.store.Get(models.EntityCountedItems, id)
		if err != nil {
			return fmt.Errorf("load item %s: %w", id, err)
		}
		if rec == nil || rec.Deleted {
			continue
		}
		items = append(items, *rec)
		acks = append(acks, store.Ack{ExternalID: rec.ExternalID, SnapshotUpdatedAt: rec.UpdatedAt})
	}
	if len(items) == 0 {
		return nil
	}

	resp, err := e.client.DeliverCapturedItems(p.RequestID, p.SessionID, items)
	if err != nil {
		if errors.Is(err, syncclient.ErrUnauthorized) {
			e.noteAuthFailure()
		}
		return fmt.Errorf("deliver items: %w", err)
	}
	e.log.Info("captured items delivered", "request", p.RequestID, "accepted", resp.Accepted)

	if err := e.store.MarkSynced(models.EntityCountedItems, acks); err != nil {
		return fmt.Errorf("clear delivered items: %w", err)
	}
	return nil
}

func (e *Engine) pull(res *Result) error {
	for page := 0; page < maxPullPages; page++ {
		watermark, err := e.store.LastPulledAt(e.businessID)
		if err != nil {
			return fmt.Errorf("read watermark: %w", err)
		}

		resp, err := e.client.Pull(watermark, nil)
		if err != nil {
			if errors.Is(err, syncclient.ErrUnauthorized) {
				e.noteAuthFailure()
			}
			return fmt.Errorf("pull: %w", err)
		}

		pulled := 0
		for _, recs := range resp.Updates {
			pulled += len(recs)
		}
		if pulled == 0 {
			return nil
		}
		res.Pulled += pulled

		applied, err := e.store.ApplyPull(e.businessID, resp.Updates, resp.ServerTimestamp)
		if err != nil {
			return fmt.Errorf("apply pull: %w", err)
		}
		res.Merged += applied.Applied + applied.Deleted
		res.Skipped += applied.Skipped
	}
	return nil
}
