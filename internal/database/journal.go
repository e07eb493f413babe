package database

import (
	"database/sql"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"collision-server/internal/action"
	"collision-server/internal/actor"
)

// Journal entry kinds
const (
	EntryDispatch       = "dispatch"
	EntryDestroyRequest = "destroy_request"
	EntryNetworkMiss    = "network_miss"
)

const (
	journalQueueSize = 1024
	journalBatchSize = 50
	journalInterval  = 5 * time.Second
)

// JournalEntry is one persisted collision outcome.
type JournalEntry struct {
	ID           string
	Kind         string
	Emitter      string
	EmitterState int32
	Target       string
	TargetState  int32
	Action       string
	TargetKind   string
	Network      bool
	Count        int
	Err          string
	Timestamp    time.Time
}

// Journal records collision outcomes with batched background writes. It
// satisfies the collision driver's Recorder.
type Journal struct {
	db      *DB
	entries chan JournalEntry
	stop    chan struct{}
	wg      sync.WaitGroup

	mu      sync.Mutex
	dropped int
}

// NewJournal creates and starts the journal background writer
func NewJournal(db *DB) *Journal {
	j := &Journal{
		db:      db,
		entries: make(chan JournalEntry, journalQueueSize),
		stop:    make(chan struct{}),
	}
	j.wg.Add(1)
	go j.writer()
	return j
}

// Track enqueues an entry for async persistence (non-blocking)
func (j *Journal) Track(e JournalEntry) {
	if j == nil {
		return
	}
	if e.ID == "" {
		e.ID = ulid.Make().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.Count == 0 {
		e.Count = 1
	}
	select {
	case j.entries <- e:
	default:
		// Queue full: drop rather than stall the tick.
		j.mu.Lock()
		j.dropped++
		j.mu.Unlock()
	}
}

// Dropped returns how many entries were discarded because the queue was full.
func (j *Journal) Dropped() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.dropped
}

func stateOf(a *actor.Actor) int32 {
	if !a.Alive() {
		return 0
	}
	return a.StateID()
}

// Dispatched records one reactive target run.
func (j *Journal) Dispatched(a *action.CollisionAction, kind string, hit action.Hit, err error) {
	e := JournalEntry{
		Kind:         EntryDispatch,
		Emitter:      hit.Emitter.String(),
		EmitterState: stateOf(hit.Emitter),
		Action:       a.Name,
		TargetKind:   kind,
		Network:      hit.Network,
	}
	if hit.Actor != nil {
		e.Target = hit.Actor.String()
		e.TargetState = stateOf(hit.Actor)
	}
	if err != nil {
		e.Err = err.Error()
	}
	j.Track(e)
}

// DestroyRequested records a destroy-after-action request.
func (j *Journal) DestroyRequested(emitter *actor.Actor) {
	j.Track(JournalEntry{
		Kind:         EntryDestroyRequest,
		Emitter:      emitter.String(),
		EmitterState: stateOf(emitter),
	})
}

// NetworkMisses records remote hits that did not resolve locally.
func (j *Journal) NetworkMisses(tick uint64, n int) {
	slog.Debug("journal: network misses", "tick", tick, "count", n)
	j.Track(JournalEntry{Kind: EntryNetworkMiss, Count: n})
}

// Stop gracefully shuts down the journal writer
func (j *Journal) Stop() {
	close(j.stop)
	j.wg.Wait()
}

// writer is the background goroutine that batches and writes entries to DB
func (j *Journal) writer() {
	defer j.wg.Done()

	batch := make([]JournalEntry, 0, 64)
	ticker := time.NewTicker(journalInterval)
	defer ticker.Stop()

	for {
		select {
		case e := <-j.entries:
			batch = append(batch, e)
			if len(batch) >= journalBatchSize {
				j.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				j.flush(batch)
				batch = batch[:0]
			}
		case <-j.stop:
			// Drain whatever is still queued.
			for {
				select {
				case e := <-j.entries:
					batch = append(batch, e)
				default:
					j.flush(batch)
					return
				}
			}
		}
	}
}

// flush writes a batch of entries to the database
func (j *Journal) flush(entries []JournalEntry) {
	if j.db == nil || len(entries) == 0 {
		return
	}
	tx, err := j.db.conn.Begin()
	if err != nil {
		slog.Error("journal: begin tx", "err", err)
		return
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO dispatch_journal
		(id, kind, emitter, emitter_state, target, target_state, action, target_kind, network, count, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		slog.Error("journal: prepare", "err", err)
		return
	}
	defer stmt.Close()

	for _, e := range entries {
		errText := sql.NullString{String: e.Err, Valid: e.Err != ""}
		_, err := stmt.Exec(e.ID, e.Kind, e.Emitter, e.EmitterState, e.Target, e.TargetState,
			e.Action, e.TargetKind, e.Network, e.Count, errText, e.Timestamp.Format(time.RFC3339Nano))
		if err != nil {
			slog.Error("journal: insert", "id", e.ID, "err", err)
		}
	}
	if err := tx.Commit(); err != nil {
		slog.Error("journal: commit", "err", err)
	}
}

// CountsByKind returns the summed entry counts per kind.
func (j *Journal) CountsByKind() (map[string]int, error) {
	if j.db == nil {
		return nil, nil
	}
	rows, err := j.db.conn.Query(`SELECT kind, SUM(count) FROM dispatch_journal GROUP BY kind`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			continue
		}
		result[kind] = n
	}
	return result, rows.Err()
}

// Recent returns the newest entries, newest first.
func (j *Journal) Recent(limit int) ([]JournalEntry, error) {
	if j.db == nil {
		return nil, nil
	}
	rows, err := j.db.conn.Query(`
		SELECT id, kind, emitter, emitter_state, target, target_state, action, target_kind, network, count, COALESCE(error, '')
		FROM dispatch_journal ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []JournalEntry
	for rows.Next() {
		var e JournalEntry
		if err := rows.Scan(&e.ID, &e.Kind, &e.Emitter, &e.EmitterState, &e.Target, &e.TargetState,
			&e.Action, &e.TargetKind, &e.Network, &e.Count, &e.Err); err != nil {
			continue
		}
		result = append(result, e)
	}
	return result, rows.Err()
}
