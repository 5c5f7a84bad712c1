package dto

import "time"

// RunSummary reports the outcome counts of one mailbox run.
type RunSummary struct {
	RunID              string     `json:"runId"`
	Mailbox            string     `json:"mailbox"`
	StartedAt          time.Time  `json:"startedAt"`
	FinishedAt         time.Time  `json:"finishedAt"`
	Processed          int        `json:"processed"`
	Skipped            int        `json:"skipped"`
	Failed             int        `json:"failed"`
	DroppedAttachments int        `json:"droppedAttachments"`
	PreviousUID        uint32     `json:"previousUid"`
	Watermark          uint32     `json:"watermark"`
	Error              string     `json:"error,omitempty"`
	Outcomes           []UIDState `json:"outcomes,omitempty"`
}

// UIDState is the terminal outcome of a single message in a run.
type UIDState struct {
	UID      uint32 `json:"uid"`
	Status   string `json:"status"`
	Reason   string `json:"reason"`
	TicketID string `json:"ticketId,omitempty"`
}

func (s *RunSummary) Total() int {
	return s.Processed + s.Skipped + s.Failed
}
