package replication

// DeleteStatus is the outcome of deleting one book.
type DeleteStatus string

const (
	DeleteDeleted DeleteStatus = "deleted"
	DeleteSkipped DeleteStatus = "skipped"
	DeleteFailed  DeleteStatus = "failed"
)

// DeleteOutcome is the result for one requested title.
type DeleteOutcome struct {
	Title  string       `json:"title"`
	Status DeleteStatus `json:"status"`
	Error  string       `json:"error,omitempty"`
}

// DeleteResult reports per-title outcomes of DeleteBookData. Titles after a
// cancellation are not listed.
type DeleteResult struct {
	Outcomes  []DeleteOutcome `json:"outcomes"`
	Cancelled bool            `json:"cancelled"`
}

func (r *DeleteResult) add(title string, status DeleteStatus, err error) {
	outcome := DeleteOutcome{Title: title, Status: status}
	if err != nil {
		outcome.Error = err.Error()
	}
	r.Outcomes = append(r.Outcomes, outcome)
}

// Deleted records a successful deletion.
func (r *DeleteResult) Deleted(title string) { r.add(title, DeleteDeleted, nil) }

// Skipped records a title that had nothing to delete.
func (r *DeleteResult) Skipped(title string) { r.add(title, DeleteSkipped, nil) }

// Failed records a failed deletion.
func (r *DeleteResult) Failed(title string, err error) { r.add(title, DeleteFailed, err) }

// Count returns the number of outcomes with status.
func (r DeleteResult) Count(status DeleteStatus) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}
