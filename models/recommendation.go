package models

import "time"

// EICRecommendation statuses. Only one recommendation per submission may be
// active (non-deprecated) at a time; reformulation deprecates the prior
// version and clears its votes.
const (
	RecVotingInPreparation = "voting_in_preparation"
	RecPutToVoting         = "put_to_voting"
	RecDecisionFixed       = "decision_fixed"
	RecDeprecated          = "deprecated"
)

// Vote choices.
const (
	VoteAgree    = "agree"
	VoteDisagree = "disagree"
	VoteAbstain  = "abstain"
)

// EICRecommendation is the handling editor's recommendation on a submission,
// put to the college for voting.
type EICRecommendation struct {
	RecommendationID int        `gorm:"primaryKey;column:recommendation_id" json:"recommendation_id"`
	SubmissionID     int        `gorm:"column:submission_id;index" json:"submission_id"`
	Version          int        `gorm:"column:version;default:1" json:"version"`
	Recommendation   int        `gorm:"column:recommendation" json:"recommendation"`
	ForJournalID     int        `gorm:"column:for_journal_id" json:"for_journal_id"`
	RemarksForAuthors   string  `gorm:"column:remarks_for_authors" json:"remarks_for_authors"`
	RequestedChanges    string  `gorm:"column:requested_changes" json:"requested_changes"`
	RemarksForCollege   string  `gorm:"column:remarks_for_college" json:"remarks_for_college"`
	Status           string     `gorm:"column:status;default:voting_in_preparation" json:"status"`
	DateFormulated   time.Time  `gorm:"column:date_formulated" json:"date_formulated"`
	VotingDeadline   *time.Time `gorm:"column:voting_deadline" json:"voting_deadline,omitempty"`

	ForJournal     *Journal             `gorm:"foreignKey:ForJournalID" json:"for_journal,omitempty"`
	EligibleVoters []User               `gorm:"many2many:recommendation_eligibility;foreignKey:RecommendationID;joinForeignKey:RecommendationID;References:UserID;joinReferences:UserID" json:"eligible_voters,omitempty"`
	Votes          []RecommendationVote `gorm:"foreignKey:RecommendationID;constraint:OnDelete:CASCADE" json:"votes,omitempty"`
	Remarks        []Remark             `gorm:"foreignKey:RecommendationID;constraint:OnDelete:CASCADE" json:"remarks,omitempty"`
}

// RecommendationVote is one fellow's vote on a recommendation version. A
// repeat cast by the same voter overwrites the previous row.
type RecommendationVote struct {
	VoteID           int        `gorm:"primaryKey;column:vote_id" json:"vote_id"`
	RecommendationID int        `gorm:"column:recommendation_id;uniqueIndex:uniq_rec_voter" json:"recommendation_id"`
	VoterID          int        `gorm:"column:voter_id;uniqueIndex:uniq_rec_voter" json:"voter_id"`
	Vote             string     `gorm:"column:vote" json:"vote"`
	Tier             *int       `gorm:"column:tier" json:"tier,omitempty"`
	AltJournalID     *int       `gorm:"column:alt_journal_id" json:"alt_journal_id,omitempty"`
	AltRecommendation *int      `gorm:"column:alt_recommendation" json:"alt_recommendation,omitempty"`
	CreatedAt        time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt        *time.Time `gorm:"column:updated_at" json:"updated_at,omitempty"`

	Voter *User `gorm:"foreignKey:VoterID" json:"voter,omitempty"`
}

// Remark is a short note attached to a recommendation during voting. Vote
// changes append an audit remark automatically.
type Remark struct {
	RemarkID         int       `gorm:"primaryKey;column:remark_id" json:"remark_id"`
	RecommendationID int       `gorm:"column:recommendation_id;index" json:"recommendation_id"`
	ContributorID    int       `gorm:"column:contributor_id" json:"contributor_id"`
	Text             string    `gorm:"column:text" json:"text"`
	Date             time.Time `gorm:"column:date" json:"date"`
}

// VoteTally aggregates the votes on a recommendation version.
type VoteTally struct {
	For       int         `json:"for"`
	Against   int         `json:"against"`
	Abstained int         `json:"abstained"`
	Tiers     map[int]int `json:"tiers"`
}

// Active reports whether this recommendation version still governs the
// submission.
func (r *EICRecommendation) Active() bool {
	return r.Status != RecDeprecated
}

// AsksRevision reports whether the recommendation asks the authors for a
// revised version rather than a publish/reject outcome.
func (r *EICRecommendation) AsksRevision() bool {
	return r.Recommendation == RecommendationMinorRevision ||
		r.Recommendation == RecommendationMajorRevision
}

func (r *EICRecommendation) IsPublishRecommendation() bool {
	return r.Recommendation > 0
}

func (EICRecommendation) TableName() string  { return "eic_recommendations" }
func (RecommendationVote) TableName() string { return "recommendation_votes" }
func (Remark) TableName() string             { return "remarks" }
