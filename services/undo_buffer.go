package services

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
)

const (
	BackupKindParticipant = "participant"
	BackupKindAttendance  = "attendance"
)

// ErrNoUndoAvailable is returned when no backup exists for the event, the
// kind or token does not match, or the backup was already consumed. The
// caller cannot distinguish which; the token is a one-shot capability.
var ErrNoUndoAvailable = errors.New("no undo available")

// AttendanceSnapshot is one pre-delete attendance row together with the
// participant fields needed to recreate the participant on restore.
type AttendanceSnapshot struct {
	AttendanceID     string    `json:"attendance_id"`
	ParticipantID    string    `json:"participant_id"`
	Status           *string   `json:"status"`
	MarkedAt         time.Time `json:"marked_at"`
	ParticipantName  string    `json:"participant_name"`
	ParticipantEmail string    `json:"participant_email"`
	IsBlocklisted    bool      `json:"is_blocklisted"`
	BlocklistReason  *string   `json:"blocklist_reason"`
}

// DeleteBackup is the snapshot captured by a bulk delete, keyed by event.
type DeleteBackup struct {
	EventID   string
	Kind      string // participant | attendance
	Token     string
	CreatedAt time.Time
	Used      bool
	Rows      []AttendanceSnapshot
}

// UndoBuffer holds at most one pending backup per event, in process memory
// only. A new bulk delete for the same event overwrites the previous slot
// (last delete wins the undo), and a token is accepted at most once.
// Fiber handlers run on separate goroutines, so the map is mutex-guarded.
type UndoBuffer struct {
	mu      sync.Mutex
	backups map[string]*DeleteBackup
}

func NewUndoBuffer() *UndoBuffer {
	return &UndoBuffer{backups: make(map[string]*DeleteBackup)}
}

// Put stores a fresh backup for the event and returns its one-time token.
// Any prior backup for that event is silently overwritten, consumed or not.
func (b *UndoBuffer) Put(eventID, kind string, rows []AttendanceSnapshot) string {
	token := uuid.NewString()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.backups[eventID] = &DeleteBackup{
		EventID:   eventID,
		Kind:      kind,
		Token:     token,
		CreatedAt: time.Now(),
		Rows:      rows,
	}
	return token
}

// Consume validates and atomically marks the backup used. The backup is
// consumed even if the caller's subsequent restore only partially succeeds;
// the token is single-use by design, not retryable.
func (b *UndoBuffer) Consume(eventID, kind, token string) (*DeleteBackup, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	bk, ok := b.backups[eventID]
	if !ok || bk.Kind != kind || bk.Token != token || bk.Used {
		return nil, ErrNoUndoAvailable
	}
	bk.Used = true
	return bk, nil
}

// Peek reports whether an unconsumed backup exists for the event without
// touching it. Used by the dashboard to decide whether to offer undo.
func (b *UndoBuffer) Peek(eventID string) (kind string, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	bk, found := b.backups[eventID]
	if !found || bk.Used {
		return "", false
	}
	return bk.Kind, true
}

// Prune drops consumed backups and backups older than maxAge, returning the
// number of slots removed.
func (b *UndoBuffer) Prune(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	b.mu.Lock()
	defer b.mu.Unlock()
	removed := 0
	for eventID, bk := range b.backups {
		if bk.Used || bk.CreatedAt.Before(cutoff) {
			delete(b.backups, eventID)
			removed++
		}
	}
	return removed
}

// StartJanitor sweeps the buffer in the background so consumed and stale
// backups do not accumulate for the life of the process. The sweep never
// drops a live slot younger than maxAge, so undo semantics are unaffected.
func (b *UndoBuffer) StartJanitor(maxAge time.Duration) {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	_, _ = sched.NewJob(
		gocron.DurationJob(10*time.Minute),
		gocron.NewTask(func() {
			if n := b.Prune(maxAge); n > 0 {
				log.Printf("[UndoBuffer] pruned %d stale backup(s)", n)
			}
		}),
	)
}
