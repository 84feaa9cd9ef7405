package attendance

import (
	"time"

	"github.com/volatiletech/null/v8"
)

// CheckIn is one student's presence mark on a session.
type CheckIn struct {
	StudentID string    `json:"student_id"`
	At        time.Time `json:"at"` // UTC
}

// Session is one attendance round for a group. Code is the opaque payload the
// QR encodes; a check-in must present it back.
type Session struct {
	ID            string      `json:"id"`
	InstitutionID string      `json:"institution_id"`
	GroupID       string      `json:"group_id"`
	SedeID        null.String `json:"sede_id"` // snapshot of the group's sede at open time
	Code          string      `json:"code"`
	OpenedBy      string      `json:"opened_by"`
	OpenedAt      time.Time   `json:"opened_at"` // UTC
	ClosedAt      null.Time   `json:"closed_at"`
	CheckIns      []CheckIn   `json:"check_ins"`
}

func (s *Session) IsClosed() bool {
	return s.ClosedAt.Valid
}

func (s *Session) HasCheckIn(studentID string) bool {
	for _, ci := range s.CheckIns {
		if ci.StudentID == studentID {
			return true
		}
	}
	return false
}
