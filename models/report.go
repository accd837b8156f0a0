package models

import "time"

// Report statuses. Only vetted reports are visible to authors and feed the
// editorial recommendation.
const (
	ReportDraft    = "draft"
	ReportUnvetted = "unvetted"
	ReportVetted   = "vetted"
	ReportRefused  = "refused"
)

// Report refusal reasons recorded at vetting time.
const (
	ReportRefusalUnclear     = "unclear"
	ReportRefusalIncorrect   = "incorrect"
	ReportRefusalNotUseful   = "notuseful"
	ReportRefusalNotAcademic = "notacademic"
)

// Recommendation values shared by referee reports and editorial
// recommendations. Positive values are publication tiers, negative values ask
// for revision or rejection.
const (
	RecommendationTier1         = 1
	RecommendationTier2         = 2
	RecommendationTier3         = 3
	RecommendationMinorRevision = -1
	RecommendationMajorRevision = -2
	RecommendationReject        = -3
)

// Report is a referee's evaluation of a submission. A referee holds at most
// one draft per submission; finalizing moves it to unvetted and the handling
// editor vets it from there.
type Report struct {
	ReportID         int        `gorm:"primaryKey;column:report_id" json:"report_id"`
	SubmissionID     int        `gorm:"column:submission_id;index" json:"submission_id"`
	AuthorID         int        `gorm:"column:author_id" json:"author_id"`
	ReportNr         int        `gorm:"column:report_nr" json:"report_nr"`
	Status           string     `gorm:"column:status;default:draft" json:"status"`
	Invited          bool       `gorm:"column:invited" json:"invited"`
	Qualification    int        `gorm:"column:qualification" json:"qualification"`
	Strengths        string     `gorm:"column:strengths" json:"strengths"`
	Weaknesses       string     `gorm:"column:weaknesses" json:"weaknesses"`
	Report           string     `gorm:"column:report" json:"report"`
	RequestedChanges string     `gorm:"column:requested_changes" json:"requested_changes"`
	Recommendation   int        `gorm:"column:recommendation" json:"recommendation"`
	DateSubmitted    *time.Time `gorm:"column:date_submitted" json:"date_submitted,omitempty"`
	VettedByID       *int       `gorm:"column:vetted_by_id" json:"vetted_by_id,omitempty"`
	DateVetted       *time.Time `gorm:"column:date_vetted" json:"date_vetted,omitempty"`
	RefusalReason    *string    `gorm:"column:refusal_reason" json:"refusal_reason,omitempty"`

	Author   *User `gorm:"foreignKey:AuthorID" json:"author,omitempty"`
	VettedBy *User `gorm:"foreignKey:VettedByID" json:"vetted_by,omitempty"`
}

func (r *Report) IsInDraft() bool  { return r.Status == ReportDraft }
func (r *Report) IsVetted() bool   { return r.Status == ReportVetted }
func (r *Report) IsUnvetted() bool { return r.Status == ReportUnvetted }

func (Report) TableName() string { return "reports" }
