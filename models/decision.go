package models

import "time"

// EditorialDecision outcomes and statuses. A decision is fixed exactly once;
// fixation is the only path that moves a submission into an accepted or
// rejected terminal state.
const (
	DecisionPublish = "publish"
	DecisionReject  = "reject"
)

const (
	DecisionDrafted              = "drafted"
	DecisionFixed                = "fixed"
	DecisionAwaitingOfferAccept  = "awaiting_offer_acceptance"
	DecisionOfferAccepted        = "offer_accepted"
)

// EditorialDecision turns a converged recommendation into the binding outcome
// handed to production (publish) or closing the thread (reject).
type EditorialDecision struct {
	DecisionID       int        `gorm:"primaryKey;column:decision_id" json:"decision_id"`
	SubmissionID     int        `gorm:"column:submission_id;index" json:"submission_id"`
	RecommendationID int        `gorm:"column:recommendation_id" json:"recommendation_id"`
	JournalID        int        `gorm:"column:journal_id" json:"journal_id"`
	Outcome          string     `gorm:"column:outcome" json:"outcome"`
	Status           string     `gorm:"column:status;default:drafted" json:"status"`
	Version          int        `gorm:"column:version;default:1" json:"version"`
	TakenOn          time.Time  `gorm:"column:taken_on" json:"taken_on"`
	FixedOn          *time.Time `gorm:"column:fixed_on" json:"fixed_on,omitempty"`
	FixedBy          *int       `gorm:"column:fixed_by" json:"fixed_by,omitempty"`

	Journal *Journal `gorm:"foreignKey:JournalID" json:"journal,omitempty"`
}

// ProductionHandoff is the idempotency ledger for the production collaborator:
// one row per (submission, decision) pair, written the moment the handoff is
// invoked. A retry that finds the row is a no-op.
type ProductionHandoff struct {
	HandoffID    int       `gorm:"primaryKey;column:handoff_id" json:"handoff_id"`
	SubmissionID int       `gorm:"column:submission_id;uniqueIndex:uniq_sub_decision" json:"submission_id"`
	DecisionID   int       `gorm:"column:decision_id;uniqueIndex:uniq_sub_decision" json:"decision_id"`
	HandedOffAt  time.Time `gorm:"column:handed_off_at" json:"handed_off_at"`
}

// IsFixed reports whether the decision has been irreversibly taken.
func (d *EditorialDecision) IsFixed() bool {
	return d.Status != DecisionDrafted
}

func (EditorialDecision) TableName() string { return "editorial_decisions" }
func (ProductionHandoff) TableName() string { return "production_handoffs" }
