package store

import (
	"context"
	"time"

	"vergabeflow/internal/logging"
	"vergabeflow/internal/wizard"
)

// Recorder persists wizard state changes. Saving is best effort; a failed
// write is logged and the wizard carries on.
type Recorder struct {
	store   *HistoryStore
	timeout time.Duration
}

// NewRecorder returns a wizard.Observer writing to s.
func NewRecorder(s *HistoryStore) *Recorder {
	return &Recorder{store: s, timeout: 5 * time.Second}
}

// StateChanged saves every state that has produced questions.
func (r *Recorder) StateChanged(st wizard.State) {
	if st.AnalysisID == "" || len(st.Questions) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.store.Save(ctx, FromState(st)); err != nil {
		logging.Get(logging.CategoryStore).Warnw("failed to record analysis", "id", st.AnalysisID, "error", err)
	}
}
