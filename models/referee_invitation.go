package models

import "time"

// RefereeInvitation invites a referee to deliver a report on a submission.
// Accepted is a tri-state: nil while the response is pending. A cancelled or
// fulfilled invitation is terminal; a cycle restart issues a fresh row rather
// than reopening an old one.
type RefereeInvitation struct {
	InvitationID     int        `gorm:"primaryKey;column:invitation_id" json:"invitation_id"`
	SubmissionID     int        `gorm:"column:submission_id;index" json:"submission_id"`
	RefereeID        *int       `gorm:"column:referee_id" json:"referee_id,omitempty"`
	FirstName        string     `gorm:"column:first_name" json:"first_name"`
	LastName         string     `gorm:"column:last_name" json:"last_name"`
	EmailAddress     string     `gorm:"column:email_address" json:"email_address"`
	InvitationKey    string     `gorm:"column:invitation_key;index" json:"-"`
	InvitedBy        int        `gorm:"column:invited_by" json:"invited_by"`
	DateInvited      time.Time  `gorm:"column:date_invited" json:"date_invited"`
	Accepted         *bool      `gorm:"column:accepted" json:"accepted,omitempty"`
	DateResponded    *time.Time `gorm:"column:date_responded" json:"date_responded,omitempty"`
	RefusalReason    *string    `gorm:"column:refusal_reason" json:"refusal_reason,omitempty"`
	Fulfilled        bool       `gorm:"column:fulfilled" json:"fulfilled"`
	Cancelled        bool       `gorm:"column:cancelled" json:"cancelled"`
	AutoReminders    bool       `gorm:"column:auto_reminders;default:true" json:"auto_reminders"`
	NrReminders      int        `gorm:"column:nr_reminders" json:"nr_reminders"`
	DateLastReminded *time.Time `gorm:"column:date_last_reminded" json:"date_last_reminded,omitempty"`
	EICAlerted       bool       `gorm:"column:eic_alerted" json:"eic_alerted"`

	Referee *User `gorm:"foreignKey:RefereeID" json:"referee,omitempty"`
}

// Pending reports whether the referee has not yet responded.
func (i *RefereeInvitation) Pending() bool {
	return i.Accepted == nil && !i.Cancelled
}

// InProcess reports whether the referee accepted but has not delivered yet.
func (i *RefereeInvitation) InProcess() bool {
	return i.Accepted != nil && *i.Accepted && !i.Fulfilled && !i.Cancelled
}

// Terminal reports whether the invitation can no longer change state.
func (i *RefereeInvitation) Terminal() bool {
	return i.Cancelled || i.Fulfilled
}

func (i *RefereeInvitation) RefereeName() string {
	return i.FirstName + " " + i.LastName
}

func (RefereeInvitation) TableName() string { return "referee_invitations" }
