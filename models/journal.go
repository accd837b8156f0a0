package models

import "time"

// Editorial invitation policies per journal. In priority mode the assignment
// manager keeps at most one live invitation out at a time and advances down
// the preassigned list on each decline; in broadcast mode all preassigned
// fellows may be invited concurrently.
const (
	AssignmentModePriority  = "priority"
	AssignmentModeBroadcast = "broadcast"
)

type Journal struct {
	JournalID           int        `gorm:"primaryKey;column:journal_id" json:"journal_id"`
	Code                string     `gorm:"column:code;unique" json:"code"`
	Name                string     `gorm:"column:name" json:"name"`
	AssignmentMode      string     `gorm:"column:assignment_mode;default:priority" json:"assignment_mode"`
	AssignmentPeriodDays int       `gorm:"column:assignment_period_days;default:5" json:"assignment_period_days"`
	RefereeingPeriodDays int       `gorm:"column:refereeing_period_days;default:28" json:"refereeing_period_days"`
	VotingPeriodDays     int       `gorm:"column:voting_period_days;default:7" json:"voting_period_days"`
	MinimumReferees      int       `gorm:"column:minimum_referees;default:3" json:"minimum_referees"`
	CreateAt             time.Time `gorm:"column:create_at" json:"create_at"`
	DeleteAt             *time.Time `gorm:"column:delete_at" json:"delete_at,omitempty"`
}

type Specialty struct {
	SpecialtyID int    `gorm:"primaryKey;column:specialty_id" json:"specialty_id"`
	Code        string `gorm:"column:code;unique" json:"code"`
	Name        string `gorm:"column:name" json:"name"`
}

func (Journal) TableName() string   { return "journals" }
func (Specialty) TableName() string { return "specialties" }
