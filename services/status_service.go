package services

import (
	"errors"

	"peer-review-api/models"

	"gorm.io/gorm"
)

// allowedTransitions is the single authority on submission status changes.
// Nothing outside transition() writes submissions.status.
var allowedTransitions = map[string][]string{
	models.StatusIncoming: {
		models.StatusSeekingAssignment,
		models.StatusWithdrawn,
	},
	models.StatusSeekingAssignment: {
		models.StatusAssigned,
		models.StatusAssignmentFailed,
		models.StatusWithdrawn,
	},
	models.StatusAssigned: {
		models.StatusAwaitingResubmission,
		models.StatusVotingInPreparation,
		models.StatusWithdrawn,
	},
	models.StatusAwaitingResubmission: {
		models.StatusAssigned,
		models.StatusWithdrawn,
	},
	models.StatusVotingInPreparation: {
		models.StatusPutToVoting,
		models.StatusAssigned, // cycle restart
		models.StatusWithdrawn,
	},
	models.StatusPutToVoting: {
		models.StatusAccepted,
		models.StatusAcceptedAltOfferPending,
		models.StatusRejected,
		models.StatusAssigned, // cycle restart after failed voting
		models.StatusWithdrawn,
	},
	models.StatusAccepted: {
		models.StatusPublished,
	},
	models.StatusAcceptedAltOfferPending: {
		models.StatusAcceptedAlt,
		models.StatusWithdrawn,
	},
	models.StatusAcceptedAlt: {
		models.StatusPublished,
	},
}

// CanTransition reports whether the state machine permits from -> to.
func CanTransition(from, to string) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// transition moves the submission to newStatus inside tx, guarded against the
// state machine table and against concurrent writers: the UPDATE is
// conditional on the status the caller loaded, so of two racing writers
// exactly one commits and the other gets a GuardViolation. Every transition
// appends an event naming actor and rationale.
func transition(tx *gorm.DB, clock Clock, sub *models.Submission, newStatus string, actor int, rationale string) error {
	if !CanTransition(sub.Status, newStatus) {
		return guardViolation("submission %d cannot move from %s to %s",
			sub.SubmissionID, sub.Status, newStatus)
	}

	now := clock.Now()
	res := tx.Model(&models.Submission{}).
		Where("submission_id = ? AND status = ?", sub.SubmissionID, sub.Status).
		Updates(map[string]any{"status": newStatus, "latest_activity": now})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return guardViolation("submission %d was modified concurrently", sub.SubmissionID)
	}

	sub.Status = newStatus
	sub.LatestActivity = now
	return addEvent(tx, clock, sub.SubmissionID, models.EventGeneral, actor, rationale)
}

// addEvent appends an immutable entry to the submission's event log.
func addEvent(tx *gorm.DB, clock Clock, submissionID int, audience string, actor int, text string) error {
	event := models.SubmissionEvent{
		SubmissionID: submissionID,
		Audience:     audience,
		ActorID:      actor,
		Text:         text,
		CreatedAt:    clock.Now(),
	}
	return tx.Create(&event).Error
}

// loadSubmission fetches a live submission or a NotFound domain error.
func loadSubmission(tx *gorm.DB, submissionID int) (*models.Submission, error) {
	var sub models.Submission
	err := tx.Preload("Journal").
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

// ensureNotWithdrawn is the pre-commit re-check every mutating operation runs:
// a withdrawal may land concurrently with an in-flight operation.
func ensureNotWithdrawn(tx *gorm.DB, submissionID int) error {
	var status string
	if err := tx.Model(&models.Submission{}).
		Where("submission_id = ?", submissionID).
		Pluck("status", &status).Error; err != nil {
		return err
	}
	if status == models.StatusWithdrawn {
		return guardViolation("submission %d has been withdrawn", submissionID)
	}
	return nil
}
