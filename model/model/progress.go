package model

// Progress - Persisted progress record for resumable batch jobs. The batch
// driver owns it and hands it to the core loop, so resumability is testable
// independent of the hosting timeout.
type Progress struct {
	RunID      string         `json:"run_id"`
	DatesDone  []string       `json:"dates_done,omitempty"`
	LastCursor int            `json:"last_cursor,omitempty"`
	Counts     map[string]int `json:"counts"`
	UpdatedAt  int64          `json:"updated_at"`
}

func NewProgress(runID string) *Progress {
	return &Progress{RunID: runID, Counts: make(map[string]int)}
}

func (p *Progress) IsDateDone(date string) bool {
	for _, done := range p.DatesDone {
		if done == date {
			return true
		}
	}
	return false
}

func (p *Progress) MarkDateDone(date string) {
	if !p.IsDateDone(date) {
		p.DatesDone = append(p.DatesDone, date)
	}
}

func (p *Progress) Add(counter string, n int) {
	if p.Counts == nil {
		p.Counts = make(map[string]int)
	}
	p.Counts[counter] += n
}
