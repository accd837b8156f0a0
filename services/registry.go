package services

import (
	"errors"

	"peer-review-api/models"

	"gorm.io/gorm"
)

// EditorRegistry supplies candidate handling editors and their competing
// interest status. The default implementation reads the local tables; another
// deployment can plug in a remote college directory.
type EditorRegistry interface {
	// EligibleFellows returns the pool members allowed to act on the
	// submission: active fellows of the submission's journal pool with no
	// competing interest against any author.
	EligibleFellows(tx *gorm.DB, sub *models.Submission) ([]models.User, error)
	// HasCompetingInterest reports whether userID holds a recorded competing
	// interest against any author of the submission.
	HasCompetingInterest(tx *gorm.DB, userID int, sub *models.Submission) (bool, error)
}

// ProfileRegistry resolves referee identity and contact channel.
type ProfileRegistry interface {
	ResolveContact(tx *gorm.DB, profileID int) (*Contact, error)
}

// Contact is the resolved identity/channel for a profile.
type Contact struct {
	UserID    int
	FirstName string
	LastName  string
	Email     string
	Available bool
}

type dbEditorRegistry struct{}

// NewEditorRegistry returns the database-backed editor registry.
func NewEditorRegistry() EditorRegistry { return dbEditorRegistry{} }

func (dbEditorRegistry) EligibleFellows(tx *gorm.DB, sub *models.Submission) ([]models.User, error) {
	var fellows []models.User
	err := tx.
		Joins("JOIN submission_fellows sf ON sf.user_id = users.user_id AND sf.submission_id = ?", sub.SubmissionID).
		Where("users.delete_at IS NULL AND users.is_available = ?", true).
		Find(&fellows).Error
	if err != nil {
		return nil, err
	}

	eligible := make([]models.User, 0, len(fellows))
	for _, fellow := range fellows {
		conflicted, err := dbEditorRegistry{}.HasCompetingInterest(tx, fellow.UserID, sub)
		if err != nil {
			return nil, err
		}
		if !conflicted {
			eligible = append(eligible, fellow)
		}
	}
	return eligible, nil
}

func (dbEditorRegistry) HasCompetingInterest(tx *gorm.DB, userID int, sub *models.Submission) (bool, error) {
	authorIDs, err := submissionAuthorIDs(tx, sub)
	if err != nil {
		return false, err
	}
	if len(authorIDs) == 0 {
		return false, nil
	}

	var count int64
	err = tx.Model(&models.CompetingInterest{}).
		Where("delete_at IS NULL").
		Where("(user_id = ? AND related_user_id IN ?) OR (related_user_id = ? AND user_id IN ?)",
			userID, authorIDs, userID, authorIDs).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func submissionAuthorIDs(tx *gorm.DB, sub *models.Submission) ([]int, error) {
	var ids []int
	err := tx.Table("submission_authors").
		Where("submission_id = ?", sub.SubmissionID).
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, err
	}
	// The submitting author is always an author, even if the claimed-author
	// mapping has not been completed yet.
	for _, id := range ids {
		if id == sub.SubmittedBy {
			return ids, nil
		}
	}
	return append(ids, sub.SubmittedBy), nil
}

type dbProfileRegistry struct{}

// NewProfileRegistry returns the database-backed profile registry.
func NewProfileRegistry() ProfileRegistry { return dbProfileRegistry{} }

func (dbProfileRegistry) ResolveContact(tx *gorm.DB, profileID int) (*Contact, error) {
	var user models.User
	err := tx.Where("user_id = ? AND delete_at IS NULL", profileID).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("profile %d not found", profileID)
		}
		return nil, err
	}
	return &Contact{
		UserID:    user.UserID,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Email:     user.Email,
		Available: user.IsAvailable,
	}, nil
}
