package services

import (
	"errors"
	"strings"

	"peer-review-api/config"
	"peer-review-api/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SubmissionService handles intake: new manuscripts and resubmissions within
// an existing thread.
type SubmissionService struct {
	db    *gorm.DB
	clock Clock
}

func NewSubmissionService(db *gorm.DB, clock Clock) *SubmissionService {
	if db == nil {
		db = config.DB
	}
	if clock == nil {
		clock = SystemClock
	}
	return &SubmissionService{db: db, clock: clock}
}

// SubmissionInput carries the author-supplied manuscript metadata.
type SubmissionInput struct {
	Title      string `json:"title" binding:"required"`
	Abstract   string `json:"abstract" binding:"required"`
	AuthorList string `json:"author_list" binding:"required"`
	JournalID  int    `json:"journal_id" binding:"required"`
	AuthorIDs  []int  `json:"author_ids"`
}

// Create opens a new manuscript thread in the incoming state.
func (s *SubmissionService) Create(submitterID int, input SubmissionInput) (*models.Submission, error) {
	var sub models.Submission

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var journal models.Journal
		if err := tx.First(&journal, input.JournalID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("journal %d not found", input.JournalID)
			}
			return err
		}

		now := s.clock.Now()
		sub = models.Submission{
			ThreadID:       uuid.NewString(),
			VersionNr:      1,
			Title:          strings.TrimSpace(input.Title),
			Abstract:       input.Abstract,
			AuthorList:     input.AuthorList,
			SubmittedBy:    submitterID,
			JournalID:      input.JournalID,
			Status:         models.StatusIncoming,
			IsCurrent:      true,
			VisiblePublic:  true,
			SubmissionDate: now,
			LatestActivity: now,
			CreateAt:       now,
		}
		if err := tx.Create(&sub).Error; err != nil {
			return err
		}
		if err := s.attachAuthors(tx, &sub, input.AuthorIDs, submitterID); err != nil {
			return err
		}
		return addEvent(tx, s.clock, sub.SubmissionID, models.EventGeneral, submitterID,
			"The submission has been received and awaits editorial pre-screening.")
	})
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// Resubmit files a revised version in an existing thread. Only the submitting
// author may resubmit, and only while the current version awaits resubmission.
// The new version inherits the thread and, when one is still in place, the
// editor-in-charge, so refereeing continues without a new assignment round.
func (s *SubmissionService) Resubmit(previousSubmissionID, submitterID int, input SubmissionInput) (*models.Submission, error) {
	var sub models.Submission

	err := s.db.Transaction(func(tx *gorm.DB) error {
		prev, err := loadSubmission(tx, previousSubmissionID)
		if err != nil {
			return err
		}
		if prev.SubmittedBy != submitterID {
			return notEligible("only the submitting author may resubmit")
		}
		if prev.Status != models.StatusAwaitingResubmission {
			return guardViolation("submission %d is not awaiting a resubmission", previousSubmissionID)
		}
		if !prev.IsCurrent {
			return guardViolation("submission %d is not the current version of its thread", previousSubmissionID)
		}

		res := tx.Model(&models.Submission{}).
			Where("submission_id = ? AND is_current = ?", previousSubmissionID, true).
			Update("is_current", false)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return guardViolation("submission %d was superseded concurrently", previousSubmissionID)
		}

		now := s.clock.Now()
		sub = models.Submission{
			ThreadID:       prev.ThreadID,
			VersionNr:      prev.VersionNr + 1,
			Title:          strings.TrimSpace(input.Title),
			Abstract:       input.Abstract,
			AuthorList:     input.AuthorList,
			SubmittedBy:    submitterID,
			JournalID:      prev.JournalID,
			Status:         models.StatusIncoming,
			IsCurrent:      true,
			VisiblePublic:  true,
			SubmissionDate: now,
			LatestActivity: now,
			CreateAt:       now,
		}
		if prev.EditorInChargeID != nil {
			// The previous editor stays in charge; the revised version goes
			// straight back under refereeing.
			sub.Status = models.StatusAssigned
			sub.EditorInChargeID = prev.EditorInChargeID
			sub.RefereeingCycle = models.CycleDefault
		}
		if err := tx.Create(&sub).Error; err != nil {
			return err
		}
		if err := s.attachAuthors(tx, &sub, input.AuthorIDs, submitterID); err != nil {
			return err
		}
		if err := copyFellows(tx, prev.SubmissionID, sub.SubmissionID); err != nil {
			return err
		}
		return addEvent(tx, s.clock, sub.SubmissionID, models.EventGeneral, submitterID,
			"A revised version has been submitted.")
	})
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// Get loads one submission with its relations.
func (s *SubmissionService) Get(submissionID int) (*models.Submission, error) {
	var sub models.Submission
	err := s.db.Preload("Journal").Preload("Authors").Preload("Fellows").
		Preload("Events", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		Where("submission_id = ? AND delete_at IS NULL", submissionID).
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("submission %d not found", submissionID)
		}
		return nil, err
	}
	return &sub, nil
}

// List returns current submissions, optionally filtered by status.
func (s *SubmissionService) List(status string) ([]models.Submission, error) {
	query := s.db.Preload("Journal").
		Where("is_current = ? AND delete_at IS NULL", true)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var subs []models.Submission
	err := query.Order("latest_activity DESC").Find(&subs).Error
	return subs, err
}

// Thread returns all versions in a manuscript thread, newest first.
func (s *SubmissionService) Thread(threadID string) ([]models.Submission, error) {
	var subs []models.Submission
	err := s.db.Where("thread_id = ? AND delete_at IS NULL", threadID).
		Order("version_nr DESC").Find(&subs).Error
	if err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		return nil, notFound("thread %s not found", threadID)
	}
	return subs, nil
}

// SetFellowPool replaces the submission's fellow pool; done by editorial
// administration before preassignment.
func (s *SubmissionService) SetFellowPool(submissionID, actorID int, fellowIDs []int) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		sub, err := loadSubmission(tx, submissionID)
		if err != nil {
			return err
		}
		actor, err := loadUser(tx, actorID)
		if err != nil {
			return err
		}
		if err := Authorize(actor, sub, OpPreassign); err != nil {
			return err
		}

		var fellows []models.User
		for _, id := range fellowIDs {
			fellow, err := loadUser(tx, id)
			if err != nil {
				return err
			}
			if !fellow.IsFellow() {
				return notEligible("user %d is not an editorial fellow", id)
			}
			fellows = append(fellows, *fellow)
		}
		return tx.Model(sub).Association("Fellows").Replace(fellows)
	})
}

func (s *SubmissionService) attachAuthors(tx *gorm.DB, sub *models.Submission, authorIDs []int, submitterID int) error {
	seen := map[int]bool{}
	var authors []models.User
	for _, id := range append(authorIDs, submitterID) {
		if seen[id] {
			continue
		}
		seen[id] = true
		author, err := loadUser(tx, id)
		if err != nil {
			return err
		}
		authors = append(authors, *author)
	}
	return tx.Model(sub).Association("Authors").Replace(authors)
}

// copyFellows carries the fellow pool of the previous version over to the new
// one.
func copyFellows(tx *gorm.DB, fromSubmissionID, toSubmissionID int) error {
	var prev models.Submission
	if err := tx.Preload("Fellows").First(&prev, fromSubmissionID).Error; err != nil {
		return err
	}
	if len(prev.Fellows) == 0 {
		return nil
	}
	next := models.Submission{SubmissionID: toSubmissionID}
	return tx.Model(&next).Association("Fellows").Replace(prev.Fellows)
}
