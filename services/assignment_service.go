package services

import (
	"errors"
	"fmt"
	"time"

	"peer-review-api/config"
	"peer-review-api/models"

	"gorm.io/gorm"
)

// AssignmentService manages the selection and invitation of an
// editor-in-charge: preassignment of candidates, invitation dispatch,
// accept/decline processing and assignment failure.
type AssignmentService struct {
	db       *gorm.DB
	clock    Clock
	notifier Notifier
	registry EditorRegistry
}

func NewAssignmentService(db *gorm.DB, clock Clock, notifier Notifier, registry EditorRegistry) *AssignmentService {
	if db == nil {
		db = config.DB
	}
	if clock == nil {
		clock = SystemClock
	}
	if notifier == nil {
		notifier = NewMailNotifier(db, clock)
	}
	if registry == nil {
		registry = NewEditorRegistry()
	}
	return &AssignmentService{db: db, clock: clock, notifier: notifier, registry: registry}
}

// notice is a notification queued during a transaction and dispatched only
// after the transaction commits.
type notice struct {
	code         string
	submissionID int
	recipient    Recipient
	vars         map[string]string
}

func dispatchAll(n Notifier, notes []notice) {
	for _, note := range notes {
		n.Notify(note.code, note.submissionID, note.recipient, note.vars)
	}
}

// Preassign creates EditorialAssignment rows for the given fellows in priority
// order without sending invitations. A submission still in pre-screening moves
// to seeking-assignment and gets its assignment deadline stamped.
func (s *AssignmentService) Preassign(submissionID, actorID int, editorIDs []int) ([]models.EditorialAssignment, error) {
	var created []models.EditorialAssignment
	var notes []notice

	err := s.db.Transaction(func(tx *gorm.DB) error {
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
		if sub.Status != models.StatusIncoming && sub.Status != models.StatusSeekingAssignment {
			return guardViolation("submission %d is not in pre-screening", submissionID)
		}

		var maxOrder int
		tx.Model(&models.EditorialAssignment{}).
			Where("submission_id = ?", submissionID).
			Select("COALESCE(MAX(invitation_order), 0)").Scan(&maxOrder)

		for i, editorID := range editorIDs {
			editor, err := loadUser(tx, editorID)
			if err != nil {
				return err
			}
			if !editor.IsFellow() {
				return notEligible("user %d is not a fellow", editorID)
			}
			conflicted, err := s.registry.HasCompetingInterest(tx, editorID, sub)
			if err != nil {
				return err
			}
			if conflicted {
				return notEligible("fellow %d has a competing interest with the authors", editorID)
			}

			var count int64
			if err := tx.Model(&models.EditorialAssignment{}).
				Where("submission_id = ? AND editor_id = ? AND status IN ?",
					submissionID, editorID,
					[]string{models.AssignmentPreassigned, models.AssignmentInvited, models.AssignmentAccepted}).
				Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return alreadyExists("fellow %d already has an open assignment for submission %d", editorID, submissionID)
			}

			assignment := models.EditorialAssignment{
				SubmissionID:    submissionID,
				EditorID:        editorID,
				InvitationOrder: maxOrder + i + 1,
				Status:          models.AssignmentPreassigned,
				DateCreated:     s.clock.Now(),
			}
			if err := tx.Create(&assignment).Error; err != nil {
				return err
			}
			created = append(created, assignment)
		}

		if sub.Status == models.StatusIncoming {
			deadline := s.clock.Now().AddDate(0, 0, sub.Journal.AssignmentPeriodDays)
			if err := tx.Model(&models.Submission{}).
				Where("submission_id = ?", submissionID).
				Update("assignment_deadline", deadline).Error; err != nil {
				return err
			}
			if err := transition(tx, s.clock, sub, models.StatusSeekingAssignment, actorID,
				"Candidate editors-in-charge have been preassigned."); err != nil {
				return err
			}
		} else if err := addEvent(tx, s.clock, submissionID, models.EventForEIC, actorID,
			fmt.Sprintf("%d additional candidate editors preassigned.", len(editorIDs))); err != nil {
			return err
		}

		return ensureNotWithdrawn(tx, submissionID)
	})
	if err != nil {
		return nil, err
	}

	dispatchAll(s.notifier, notes)
	return created, nil
}

// SendInvitation transitions a preassigned row to invited and notifies the
// fellow. In priority mode only one invitation may be live at a time; in
// broadcast mode several may run concurrently.
func (s *AssignmentService) SendInvitation(assignmentID, actorID int) (*models.EditorialAssignment, error) {
	var assignment models.EditorialAssignment
	var notes []notice

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&assignment, assignmentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("assignment %d not found", assignmentID)
			}
			return err
		}
		sub, err := loadSubmission(tx, assignment.SubmissionID)
		if err != nil {
			return err
		}
		actor, err := loadUser(tx, actorID)
		if err != nil {
			return err
		}
		if err := Authorize(actor, sub, OpSendInvitation); err != nil {
			return err
		}
		if assignment.Status != models.AssignmentPreassigned {
			return guardViolation("assignment %d is %s, not preassigned", assignmentID, assignment.Status)
		}
		if sub.Status != models.StatusSeekingAssignment {
			return guardViolation("submission %d is not seeking assignment", sub.SubmissionID)
		}

		if sub.Journal.AssignmentMode == models.AssignmentModePriority {
			var live int64
			if err := tx.Model(&models.EditorialAssignment{}).
				Where("submission_id = ? AND status = ?", sub.SubmissionID, models.AssignmentInvited).
				Count(&live).Error; err != nil {
				return err
			}
			if live > 0 {
				return guardViolation("submission %d already has a live invitation in priority mode", sub.SubmissionID)
			}
		}

		now := s.clock.Now()
		res := tx.Model(&models.EditorialAssignment{}).
			Where("assignment_id = ? AND status = ?", assignmentID, models.AssignmentPreassigned).
			Updates(map[string]any{"status": models.AssignmentInvited, "date_invited": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return guardViolation("assignment %d was modified concurrently", assignmentID)
		}
		assignment.Status = models.AssignmentInvited
		assignment.DateInvited = &now

		if err := addEvent(tx, s.clock, sub.SubmissionID, models.EventForEIC, actorID,
			"An editorial assignment invitation has been sent."); err != nil {
			return err
		}
		notes = append(notes, notice{TplAssignmentInvitation, sub.SubmissionID,
			ToUser(assignment.EditorID), map[string]string{"title": sub.Title}})

		return ensureNotWithdrawn(tx, sub.SubmissionID)
	})
	if err != nil {
		return nil, err
	}

	dispatchAll(s.notifier, notes)
	return &assignment, nil
}

// Respond processes a fellow's accept or decline of an assignment invitation.
// Acceptance wins the submission for exactly one fellow: siblings are
// deprecated, the editor-in-charge is set and refereeing opens. A decline
// advances to the next candidate, or fails the assignment when no candidates
// remain.
func (s *AssignmentService) Respond(assignmentID, editorID int, accept bool, refusalReason *string) (*models.EditorialAssignment, error) {
	var assignment models.EditorialAssignment
	var notes []notice

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&assignment, assignmentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("assignment %d not found", assignmentID)
			}
			return err
		}
		if assignment.EditorID != editorID {
			return notEligible("assignment %d does not belong to user %d", assignmentID, editorID)
		}
		if assignment.Status != models.AssignmentInvited {
			return guardViolation("assignment %d is %s and can no longer be answered",
				assignmentID, assignment.Status)
		}

		sub, err := loadSubmission(tx, assignment.SubmissionID)
		if err != nil {
			return err
		}
		if sub.Status != models.StatusSeekingAssignment {
			return guardViolation("submission %d is no longer seeking assignment", sub.SubmissionID)
		}

		if accept {
			return s.acceptInTx(tx, sub, &assignment, &notes)
		}
		return s.declineInTx(tx, sub, &assignment, refusalReason, &notes)
	})
	if err != nil {
		return nil, err
	}

	dispatchAll(s.notifier, notes)
	return &assignment, nil
}

// acceptInTx performs the accept path. The status transition inside is a
// conditional update, so two fellows accepting concurrently resolve to one
// winner and one GuardViolation.
func (s *AssignmentService) acceptInTx(tx *gorm.DB, sub *models.Submission, assignment *models.EditorialAssignment, notes *[]notice) error {
	if err := transition(tx, s.clock, sub, models.StatusAssigned, assignment.EditorID,
		"The editor-in-charge has been assigned."); err != nil {
		return err
	}

	now := s.clock.Now()
	res := tx.Model(&models.EditorialAssignment{}).
		Where("assignment_id = ? AND status = ?", assignment.AssignmentID, models.AssignmentInvited).
		Updates(map[string]any{"status": models.AssignmentAccepted, "date_answered": now})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return guardViolation("assignment %d was answered concurrently", assignment.AssignmentID)
	}
	assignment.Status = models.AssignmentAccepted
	assignment.DateAnswered = &now

	// All sibling rows become deprecated the instant one is accepted.
	if err := tx.Model(&models.EditorialAssignment{}).
		Where("submission_id = ? AND assignment_id != ? AND status IN ?",
			sub.SubmissionID, assignment.AssignmentID,
			[]string{models.AssignmentPreassigned, models.AssignmentInvited}).
		Update("status", models.AssignmentDeprecated).Error; err != nil {
		return err
	}

	deadline := now.Add(reportingPeriod(sub.Journal, sub.RefereeingCycle))
	updates := map[string]any{
		"editor_in_charge_id": assignment.EditorID,
		"latest_activity":     now,
	}
	if sub.RefereeingCycle != models.CycleDirectRec {
		updates["open_for_reporting"] = true
		updates["reporting_deadline"] = deadline
	}
	if err := tx.Model(&models.Submission{}).
		Where("submission_id = ?", sub.SubmissionID).
		Updates(updates).Error; err != nil {
		return err
	}
	sub.EditorInChargeID = &assignment.EditorID

	if err := addEvent(tx, s.clock, sub.SubmissionID, models.EventForAuthor, assignment.EditorID,
		"An editor-in-charge has been assigned and refereeing is underway."); err != nil {
		return err
	}

	*notes = append(*notes,
		notice{TplEICAppointed, sub.SubmissionID, ToUser(assignment.EditorID), map[string]string{"title": sub.Title}},
		notice{TplAuthorsEICAssigned, sub.SubmissionID, ToAuthors(), map[string]string{"title": sub.Title}},
	)
	return ensureNotWithdrawn(tx, sub.SubmissionID)
}

func (s *AssignmentService) declineInTx(tx *gorm.DB, sub *models.Submission, assignment *models.EditorialAssignment, refusalReason *string, notes *[]notice) error {
	now := s.clock.Now()
	res := tx.Model(&models.EditorialAssignment{}).
		Where("assignment_id = ? AND status = ?", assignment.AssignmentID, models.AssignmentInvited).
		Updates(map[string]any{
			"status":         models.AssignmentDeclined,
			"refusal_reason": refusalReason,
			"date_answered":  now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return guardViolation("assignment %d was answered concurrently", assignment.AssignmentID)
	}
	assignment.Status = models.AssignmentDeclined
	assignment.RefusalReason = refusalReason
	assignment.DateAnswered = &now

	if err := addEvent(tx, s.clock, sub.SubmissionID, models.EventForEIC, assignment.EditorID,
		"An editorial assignment invitation has been declined."); err != nil {
		return err
	}

	// In priority mode the next preassigned candidate is invited
	// automatically; in broadcast mode the remaining invitations are already
	// out.
	if sub.Journal.AssignmentMode == models.AssignmentModePriority {
		var next models.EditorialAssignment
		err := tx.Where("submission_id = ? AND status = ?", sub.SubmissionID, models.AssignmentPreassigned).
			Order("invitation_order ASC").
			First(&next).Error
		if err == nil {
			if err := tx.Model(&models.EditorialAssignment{}).
				Where("assignment_id = ?", next.AssignmentID).
				Updates(map[string]any{"status": models.AssignmentInvited, "date_invited": now}).Error; err != nil {
				return err
			}
			*notes = append(*notes, notice{TplAssignmentInvitation, sub.SubmissionID,
				ToUser(next.EditorID), map[string]string{"title": sub.Title}})
			return ensureNotWithdrawn(tx, sub.SubmissionID)
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
	}

	var open int64
	if err := tx.Model(&models.EditorialAssignment{}).
		Where("submission_id = ? AND status IN ?", sub.SubmissionID,
			[]string{models.AssignmentPreassigned, models.AssignmentInvited}).
		Count(&open).Error; err != nil {
		return err
	}
	if open == 0 {
		return s.failInTx(tx, sub, 0, notes)
	}
	return ensureNotWithdrawn(tx, sub.SubmissionID)
}

// failInTx moves a submission to the terminal assignment-failed state and
// informs the authors. Used when candidates are exhausted or when the sweep
// finds the assignment deadline passed.
func (s *AssignmentService) failInTx(tx *gorm.DB, sub *models.Submission, actorID int, notes *[]notice) error {
	if err := transition(tx, s.clock, sub, models.StatusAssignmentFailed, actorID,
		"No fellow accepted to become editor-in-charge; the submission leaves the workflow."); err != nil {
		return err
	}
	if err := tx.Model(&models.EditorialAssignment{}).
		Where("submission_id = ? AND status IN ?", sub.SubmissionID,
			[]string{models.AssignmentPreassigned, models.AssignmentInvited}).
		Update("status", models.AssignmentDeprecated).Error; err != nil {
		return err
	}
	*notes = append(*notes, notice{TplAssignmentFailed, sub.SubmissionID, ToAuthors(),
		map[string]string{"title": sub.Title}})
	return nil
}

// Volunteer lets a pool fellow take charge of a submission directly, without
// waiting for an invitation.
func (s *AssignmentService) Volunteer(submissionID, editorID int) (*models.EditorialAssignment, error) {
	var assignment models.EditorialAssignment
	var notes []notice

	err := s.db.Transaction(func(tx *gorm.DB) error {
		sub, err := loadSubmission(tx, submissionID)
		if err != nil {
			return err
		}
		if sub.Status != models.StatusSeekingAssignment {
			return guardViolation("submission %d is not seeking assignment", submissionID)
		}
		editor, err := loadUser(tx, editorID)
		if err != nil {
			return err
		}
		if !editor.IsFellow() {
			return notEligible("user %d is not a fellow", editorID)
		}
		inPool, err := s.inPool(tx, submissionID, editorID)
		if err != nil {
			return err
		}
		if !inPool {
			return notEligible("fellow %d is not in the pool of submission %d", editorID, submissionID)
		}
		conflicted, err := s.registry.HasCompetingInterest(tx, editorID, sub)
		if err != nil {
			return err
		}
		if conflicted {
			return notEligible("fellow %d has a competing interest with the authors", editorID)
		}

		// The fellow may already hold a row from an earlier invitation.
		err = tx.Where("submission_id = ? AND editor_id = ? AND status IN ?",
			submissionID, editorID,
			[]string{models.AssignmentPreassigned, models.AssignmentInvited}).
			First(&assignment).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			assignment = models.EditorialAssignment{
				SubmissionID: submissionID,
				EditorID:     editorID,
				Status:       models.AssignmentInvited,
				DateCreated:  s.clock.Now(),
			}
			if err := tx.Create(&assignment).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		} else if assignment.Status == models.AssignmentPreassigned {
			if err := tx.Model(&models.EditorialAssignment{}).
				Where("assignment_id = ?", assignment.AssignmentID).
				Update("status", models.AssignmentInvited).Error; err != nil {
				return err
			}
			assignment.Status = models.AssignmentInvited
		}

		return s.acceptInTx(tx, sub, &assignment, &notes)
	})
	if err != nil {
		return nil, err
	}

	dispatchAll(s.notifier, notes)
	return &assignment, nil
}

// Reassign is the administrative override: the current editor-in-charge is
// replaced while referee invitations and collected reports are preserved.
func (s *AssignmentService) Reassign(submissionID, newEditorID, actorID int) (*models.EditorialAssignment, error) {
	var assignment models.EditorialAssignment
	var notes []notice

	err := s.db.Transaction(func(tx *gorm.DB) error {
		sub, err := loadSubmission(tx, submissionID)
		if err != nil {
			return err
		}
		actor, err := loadUser(tx, actorID)
		if err != nil {
			return err
		}
		if err := Authorize(actor, sub, OpReassign); err != nil {
			return err
		}
		if sub.EditorInChargeID == nil {
			return guardViolation("submission %d has no editor-in-charge to replace", submissionID)
		}
		if !sub.InRefereeing() {
			return guardViolation("submission %d is not in a reassignable state", submissionID)
		}
		if *sub.EditorInChargeID == newEditorID {
			return alreadyExists("user %d is already editor-in-charge of submission %d", newEditorID, submissionID)
		}
		editor, err := loadUser(tx, newEditorID)
		if err != nil {
			return err
		}
		if !editor.IsFellow() {
			return notEligible("user %d is not a fellow", newEditorID)
		}
		conflicted, err := s.registry.HasCompetingInterest(tx, newEditorID, sub)
		if err != nil {
			return err
		}
		if conflicted {
			return notEligible("fellow %d has a competing interest with the authors", newEditorID)
		}

		now := s.clock.Now()
		if err := tx.Model(&models.EditorialAssignment{}).
			Where("submission_id = ? AND status = ?", submissionID, models.AssignmentAccepted).
			Update("status", models.AssignmentDeprecated).Error; err != nil {
			return err
		}

		assignment = models.EditorialAssignment{
			SubmissionID: submissionID,
			EditorID:     newEditorID,
			Status:       models.AssignmentAccepted,
			DateCreated:  now,
			DateAnswered: &now,
		}
		if err := tx.Create(&assignment).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Submission{}).
			Where("submission_id = ?", submissionID).
			Updates(map[string]any{"editor_in_charge_id": newEditorID, "latest_activity": now}).Error; err != nil {
			return err
		}
		if err := addEvent(tx, s.clock, submissionID, models.EventGeneral, actorID,
			"The submission has been reassigned to a new editor-in-charge."); err != nil {
			return err
		}

		notes = append(notes, notice{TplEICAppointed, submissionID, ToUser(newEditorID),
			map[string]string{"title": sub.Title}})
		return ensureNotWithdrawn(tx, submissionID)
	})
	if err != nil {
		return nil, err
	}

	dispatchAll(s.notifier, notes)
	return &assignment, nil
}

func (s *AssignmentService) inPool(tx *gorm.DB, submissionID, editorID int) (bool, error) {
	var count int64
	err := tx.Table("submission_fellows").
		Where("submission_id = ? AND user_id = ?", submissionID, editorID).
		Count(&count).Error
	return count > 0, err
}

// reportingPeriod derives the reporting window from journal policy and the
// chosen refereeing cycle. The short cycle runs on a fixed two weeks.
func reportingPeriod(journal models.Journal, cycle string) time.Duration {
	days := journal.RefereeingPeriodDays
	if days <= 0 {
		days = 28
	}
	switch cycle {
	case models.CycleShort:
		days = 14
	case models.CycleDirectRec:
		days = 0
	}
	return time.Duration(days) * 24 * time.Hour
}
