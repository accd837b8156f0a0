package models

import "time"

// EditorialAssignment statuses. At most one assignment per submission may be
// accepted; accepting one deprecates every sibling row.
const (
	AssignmentPreassigned = "preassigned"
	AssignmentInvited     = "invited"
	AssignmentAccepted    = "accepted"
	AssignmentDeclined    = "declined"
	AssignmentDeprecated  = "deprecated"
	AssignmentCompleted   = "completed"
)

// Refusal reason codes shared by editorial assignments and referee invitations.
const (
	RefusalTooBusy          = "BUS"
	RefusalVacation         = "VAC"
	RefusalCOICoauthor      = "COI"
	RefusalCOIColleague     = "CCC"
	RefusalNotImpartial     = "NIR"
	RefusalNotInterested    = "NIE"
	RefusalDoNotConsider    = "DNP"
)

// EditorialAssignment invites a fellow to become editor-in-charge of a
// submission. InvitationOrder drives the strict-priority invitation flow.
type EditorialAssignment struct {
	AssignmentID    int        `gorm:"primaryKey;column:assignment_id" json:"assignment_id"`
	SubmissionID    int        `gorm:"column:submission_id;index" json:"submission_id"`
	EditorID        int        `gorm:"column:editor_id" json:"editor_id"`
	InvitationOrder int        `gorm:"column:invitation_order" json:"invitation_order"`
	Status          string     `gorm:"column:status;default:preassigned" json:"status"`
	RefusalReason   *string    `gorm:"column:refusal_reason" json:"refusal_reason,omitempty"`
	DateCreated     time.Time  `gorm:"column:date_created" json:"date_created"`
	DateInvited     *time.Time `gorm:"column:date_invited" json:"date_invited,omitempty"`
	DateAnswered    *time.Time `gorm:"column:date_answered" json:"date_answered,omitempty"`

	Editor *User `gorm:"foreignKey:EditorID" json:"editor,omitempty"`
}

// Open reports whether the assignment may still receive a response.
func (a *EditorialAssignment) Open() bool {
	return a.Status == AssignmentPreassigned || a.Status == AssignmentInvited
}

func (EditorialAssignment) TableName() string { return "editorial_assignments" }
