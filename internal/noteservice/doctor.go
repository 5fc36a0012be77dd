package noteservice

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/nodeid"
)

// DoctorReport lists the duplicate ids found in the stored corpus and, after
// a repair, how many ids each note had replaced.
type DoctorReport struct {
	Notes      int                `json:"notes"`
	Duplicates []nodeid.Duplicate `json:"duplicates"`
	Repaired   map[string]int     `json:"repaired,omitempty"`
}

// Doctor scans every stored note for node ids used more than once. With
// repair set, the registry is rebuilt from the store and the repaired notes
// are written back; their open sessions are discarded.
func (s *Service) Doctor(ctx context.Context, repair bool) (*DoctorReport, error) {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()

	notes, err := s.store.AllNotes(ctx)
	if err != nil {
		return nil, fmt.Errorf("noteservice: doctor: %w", err)
	}
	docs := contents(notes)
	report := &DoctorReport{Notes: len(notes), Duplicates: nonNilSlice(nodeid.Verify(docs))}
	if !repair || len(report.Duplicates) == 0 {
		return report, nil
	}

	report.Repaired = s.ids.Load(docs)
	for _, id := range sortedKeys(report.Repaired) {
		s.CloseSession(id)
		if err := s.store.ApplyContentChange(ctx, id, docs[id]); err != nil {
			return report, &apperr.PersistenceError{NoteID: id, Field: "content", Err: err}
		}
		s.notify("updated", id)
	}
	s.index.Touch()
	s.logger.Info("noteservice: doctor repaired ids",
		slog.Int("duplicates", len(report.Duplicates)), slog.Int("notes", len(report.Repaired)))
	return report, nil
}
