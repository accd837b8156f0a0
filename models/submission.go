package models

import "time"

// Submission statuses. Status is only ever written through the state machine
// transition in the services package.
const (
	StatusIncoming                = "incoming"
	StatusSeekingAssignment       = "seeking_assignment"
	StatusAssignmentFailed        = "assignment_failed"
	StatusAssigned                = "assigned"
	StatusAwaitingResubmission    = "awaiting_resubmission"
	StatusVotingInPreparation     = "voting_in_preparation"
	StatusPutToVoting             = "put_to_voting"
	StatusAccepted                = "accepted"
	StatusAcceptedAltOfferPending = "accepted_alt_awaiting_offer"
	StatusAcceptedAlt             = "accepted_in_alternative"
	StatusRejected                = "rejected"
	StatusWithdrawn               = "withdrawn"
	StatusPublished               = "published"
)

// Refereeing cycles. The direct recommendation cycle skips referee invitations
// entirely and jumps straight to the editorial recommendation.
const (
	CycleDefault   = "default"
	CycleShort     = "short"
	CycleDirectRec = "direct_rec"
)

// Submission is the aggregate root of the editorial lifecycle. It owns all
// assignment, refereeing, recommendation and decision sub-entities; the
// ThreadID is stable across resubmitted versions of the same manuscript.
type Submission struct {
	SubmissionID       int        `gorm:"primaryKey;column:submission_id" json:"submission_id"`
	ThreadID           string     `gorm:"column:thread_id;index" json:"thread_id"`
	VersionNr          int        `gorm:"column:version_nr;default:1" json:"version_nr"`
	Title              string     `gorm:"column:title" json:"title"`
	Abstract           string     `gorm:"column:abstract" json:"abstract"`
	AuthorList         string     `gorm:"column:author_list" json:"author_list"`
	SubmittedBy        int        `gorm:"column:submitted_by" json:"submitted_by"`
	JournalID          int        `gorm:"column:journal_id" json:"journal_id"`
	Status             string     `gorm:"column:status;default:incoming" json:"status"`
	EditorInChargeID   *int       `gorm:"column:editor_in_charge_id" json:"editor_in_charge_id,omitempty"`
	RefereeingCycle    string     `gorm:"column:refereeing_cycle;default:default" json:"refereeing_cycle"`
	OpenForReporting   bool       `gorm:"column:open_for_reporting" json:"open_for_reporting"`
	AssignmentDeadline *time.Time `gorm:"column:assignment_deadline" json:"assignment_deadline,omitempty"`
	ReportingDeadline  *time.Time `gorm:"column:reporting_deadline" json:"reporting_deadline,omitempty"`
	SubmissionDate     time.Time  `gorm:"column:submission_date" json:"submission_date"`
	AcceptanceDate     *time.Time `gorm:"column:acceptance_date" json:"acceptance_date,omitempty"`
	IsCurrent          bool       `gorm:"column:is_current;default:true" json:"is_current"`
	VisiblePublic      bool       `gorm:"column:visible_public" json:"visible_public"`
	LatestActivity     time.Time  `gorm:"column:latest_activity" json:"latest_activity"`
	CreateAt           time.Time  `gorm:"column:create_at" json:"create_at"`
	DeleteAt           *time.Time `gorm:"column:delete_at" json:"delete_at,omitempty"`

	// Relations
	Journal         Journal               `gorm:"foreignKey:JournalID" json:"journal,omitempty"`
	SubmittedByUser *User                 `gorm:"foreignKey:SubmittedBy" json:"submitted_by_user,omitempty"`
	EditorInCharge  *User                 `gorm:"foreignKey:EditorInChargeID" json:"editor_in_charge,omitempty"`
	Fellows         []User                `gorm:"many2many:submission_fellows;foreignKey:SubmissionID;joinForeignKey:SubmissionID;References:UserID;joinReferences:UserID" json:"fellows,omitempty"`
	Authors         []User                `gorm:"many2many:submission_authors;foreignKey:SubmissionID;joinForeignKey:SubmissionID;References:UserID;joinReferences:UserID" json:"authors,omitempty"`
	Specialties     []Specialty           `gorm:"many2many:submission_specialties;foreignKey:SubmissionID;joinForeignKey:SubmissionID;References:SpecialtyID;joinReferences:SpecialtyID" json:"specialties,omitempty"`
	Events          []SubmissionEvent     `gorm:"foreignKey:SubmissionID;constraint:OnDelete:CASCADE" json:"events,omitempty"`
	Assignments     []EditorialAssignment `gorm:"foreignKey:SubmissionID;constraint:OnDelete:CASCADE" json:"assignments,omitempty"`
	Invitations     []RefereeInvitation   `gorm:"foreignKey:SubmissionID;constraint:OnDelete:CASCADE" json:"invitations,omitempty"`
	Reports         []Report              `gorm:"foreignKey:SubmissionID;constraint:OnDelete:CASCADE" json:"reports,omitempty"`
	Recommendations []EICRecommendation   `gorm:"foreignKey:SubmissionID;constraint:OnDelete:CASCADE" json:"recommendations,omitempty"`
	Decisions       []EditorialDecision   `gorm:"foreignKey:SubmissionID;constraint:OnDelete:CASCADE" json:"decisions,omitempty"`
}

// Event audiences. Author-facing event texts must not leak fellow identities.
const (
	EventGeneral   = "gen"
	EventForAuthor = "auth"
	EventForEIC    = "eic"
)

// SubmissionEvent is an immutable log entry on the submission's event log.
// ActorID 0 means the system (deadline sweep, automatic advancement).
type SubmissionEvent struct {
	EventID      int       `gorm:"primaryKey;column:event_id" json:"event_id"`
	SubmissionID int       `gorm:"column:submission_id;index" json:"submission_id"`
	Audience     string    `gorm:"column:audience;default:gen" json:"audience"`
	ActorID      int       `gorm:"column:actor_id" json:"actor_id"`
	Text         string    `gorm:"column:text" json:"text"`
	CreatedAt    time.Time `gorm:"column:created_at" json:"created_at"`
}

func (s *Submission) IsTerminal() bool {
	switch s.Status {
	case StatusAssignmentFailed, StatusRejected, StatusWithdrawn, StatusPublished:
		return true
	}
	return false
}

// InRefereeing reports whether the submission sits between assignment and a
// fixed decision, the stretch of the lifecycle the refereeing controller owns.
func (s *Submission) InRefereeing() bool {
	switch s.Status {
	case StatusAssigned, StatusAwaitingResubmission, StatusVotingInPreparation, StatusPutToVoting:
		return true
	}
	return false
}

func (s *Submission) ReportingDeadlinePassed(now time.Time) bool {
	return s.ReportingDeadline != nil && now.After(*s.ReportingDeadline)
}

func (s *Submission) IsOpenForReporting(now time.Time) bool {
	return s.OpenForReporting && !s.ReportingDeadlinePassed(now)
}

func (Submission) TableName() string      { return "submissions" }
func (SubmissionEvent) TableName() string { return "submission_events" }
