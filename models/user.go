package models

import "time"

// Role IDs as stored in the roles table.
const (
	RoleAuthor         = 1
	RoleFellow         = 2
	RoleEditorialAdmin = 3
)

type User struct {
	UserID       int        `gorm:"primaryKey;column:user_id" json:"user_id"`
	FirstName    string     `gorm:"column:first_name" json:"first_name"`
	LastName     string     `gorm:"column:last_name" json:"last_name"`
	Email        string     `gorm:"column:email;unique" json:"email"`
	Password     string     `gorm:"column:password" json:"-"`
	RoleID       int        `gorm:"column:role_id" json:"role_id"`
	ORCID        *string    `gorm:"column:orcid" json:"orcid,omitempty"`
	Affiliation  *string    `gorm:"column:affiliation" json:"affiliation,omitempty"`
	IsAvailable  bool       `gorm:"column:is_available;default:true" json:"is_available"`
	CreateAt     *time.Time `gorm:"column:create_at" json:"create_at"`
	UpdateAt     *time.Time `gorm:"column:update_at" json:"update_at"`
	DeleteAt     *time.Time `gorm:"column:delete_at" json:"delete_at,omitempty"`

	// Relations
	Role        Role        `gorm:"foreignKey:RoleID" json:"role,omitempty"`
	Specialties []Specialty `gorm:"many2many:user_specialties;foreignKey:UserID;joinForeignKey:UserID;References:SpecialtyID;joinReferences:SpecialtyID" json:"specialties,omitempty"`
}

type Role struct {
	RoleID   int        `gorm:"primaryKey;column:role_id" json:"role_id"`
	Role     string     `gorm:"column:role" json:"role"`
	CreateAt *time.Time `gorm:"column:create_at" json:"create_at"`
	UpdateAt *time.Time `gorm:"column:update_at" json:"update_at"`
	DeleteAt *time.Time `gorm:"column:delete_at" json:"delete_at,omitempty"`
}

// CompetingInterest records a relation between two people (coauthorship,
// supervision, close colleague, ...) that disqualifies one from acting on the
// other's submission.
type CompetingInterest struct {
	InterestID    int        `gorm:"primaryKey;column:interest_id" json:"interest_id"`
	UserID        int        `gorm:"column:user_id" json:"user_id"`
	RelatedUserID int        `gorm:"column:related_user_id" json:"related_user_id"`
	Nature        string     `gorm:"column:nature" json:"nature"` // coauthor|colleague|supervisor|other
	DeclaredBy    *int       `gorm:"column:declared_by" json:"declared_by,omitempty"`
	CreateAt      time.Time  `gorm:"column:create_at" json:"create_at"`
	DeleteAt      *time.Time `gorm:"column:delete_at" json:"delete_at,omitempty"`
}

func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}

func (u *User) IsFellow() bool {
	return u.RoleID == RoleFellow || u.RoleID == RoleEditorialAdmin
}

func (User) TableName() string              { return "users" }
func (Role) TableName() string              { return "roles" }
func (CompetingInterest) TableName() string { return "competing_interests" }
