package memory

import (
	"context"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/events"
	"stockledger/internal/domain/movement"
)

// EntryTypeRepo implements movement.EntryTypeRepository.
type EntryTypeRepo struct {
	s *Store
}

var _ movement.EntryTypeRepository = (*EntryTypeRepo)(nil)

func (r *EntryTypeRepo) Get(_ context.Context, t movement.Type) (movement.StockEntryType, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	et, ok := r.s.entryTypes[t]
	if !ok {
		return movement.StockEntryType{}, apperror.NewNotFound("stock entry type", string(t))
	}
	return et, nil
}

func (r *EntryTypeRepo) List(_ context.Context) ([]movement.StockEntryType, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]movement.StockEntryType, 0, len(r.s.entryTypes))
	for _, t := range movement.AllTypes {
		if et, ok := r.s.entryTypes[t]; ok {
			out = append(out, et)
		}
	}
	return out, nil
}

// Put compiles and stores an entry type, replacing the one for its movement type.
func (r *EntryTypeRepo) Put(et movement.StockEntryType) error {
	compiled, err := et.Compile()
	if err != nil {
		return err
	}
	r.s.mu.Lock()
	r.s.entryTypes[et.MovementType] = compiled
	r.s.mu.Unlock()
	return nil
}

// Journal implements movement.Journal.
type Journal struct {
	s *Store
}

func (j *Journal) Record(_ context.Context, rec movement.JournalRecord) error {
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now().UTC()
	}
	j.s.mu.Lock()
	j.s.journal[rec.Movement.ID] = rec
	j.s.mu.Unlock()
	return nil
}

func (j *Journal) Get(_ context.Context, movementID id.ID) (movement.JournalRecord, error) {
	j.s.mu.RLock()
	defer j.s.mu.RUnlock()
	rec, ok := j.s.journal[movementID]
	if !ok {
		return movement.JournalRecord{}, apperror.NewNotFound("movement", movementID.String())
	}
	return rec, nil
}

type outboxItem struct {
	evt events.Event
	// token identifies the Publish call, for rollback
	token *int
}

// Outbox collects events transactionally.
type Outbox struct {
	s *Store
}

func (o *Outbox) Publish(ctx context.Context, evts []events.Event) error {
	if len(evts) == 0 {
		return nil
	}
	s := o.s
	s.mu.Lock()
	defer s.mu.Unlock()

	token := new(int)
	for _, e := range evts {
		s.outbox = append(s.outbox, outboxItem{evt: e, token: token})
	}
	onRollback(ctx, func() {
		kept := s.outbox[:0]
		for _, it := range s.outbox {
			if it.token != token {
				kept = append(kept, it)
			}
		}
		s.outbox = kept
	})
	return nil
}
