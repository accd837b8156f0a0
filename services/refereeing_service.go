package services

import (
	"errors"
	"fmt"
	"strings"

	"peer-review-api/config"
	"peer-review-api/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RefereeingService drives the refereeing cycle: cycle choice, referee
// invitations, report collection and vetting, deadline management and the
// administrative cycle restart.
type RefereeingService struct {
	db       *gorm.DB
	clock    Clock
	notifier Notifier
	registry EditorRegistry
	profiles ProfileRegistry
}

func NewRefereeingService(db *gorm.DB, clock Clock, notifier Notifier, registry EditorRegistry, profiles ProfileRegistry) *RefereeingService {
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
	if profiles == nil {
		profiles = NewProfileRegistry()
	}
	return &RefereeingService{db: db, clock: clock, notifier: notifier, registry: registry, profiles: profiles}
}

// ChooseCycle selects the refereeing cycle for the current round. Only valid
// before any referee invitation has been sent; the direct recommendation
// cycle closes reporting immediately so the editor can formulate straight
// away.
func (s *RefereeingService) ChooseCycle(submissionID, actorID int, cycle string) error {
	switch cycle {
	case models.CycleDefault, models.CycleShort, models.CycleDirectRec:
	default:
		return guardViolation("unknown refereeing cycle %q", cycle)
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		sub, err := loadSubmission(tx, submissionID)
		if err != nil {
			return err
		}
		actor, err := loadUser(tx, actorID)
		if err != nil {
			return err
		}
		if err := Authorize(actor, sub, OpChooseCycle); err != nil {
			return err
		}
		if sub.Status != models.StatusAssigned {
			return guardViolation("submission %d is not under refereeing", submissionID)
		}

		var invited int64
		if err := tx.Model(&models.RefereeInvitation{}).
			Where("submission_id = ? AND cancelled = ?", submissionID, false).
			Count(&invited).Error; err != nil {
			return err
		}
		if invited > 0 {
			return guardViolation("cycle of submission %d can no longer be changed: referees have been invited", submissionID)
		}

		now := s.clock.Now()
		updates := map[string]any{"refereeing_cycle": cycle, "latest_activity": now}
		switch cycle {
		case models.CycleDirectRec:
			updates["open_for_reporting"] = false
			updates["reporting_deadline"] = now
		default:
			updates["open_for_reporting"] = true
			updates["reporting_deadline"] = now.Add(reportingPeriod(sub.Journal, cycle))
		}
		if err := tx.Model(&models.Submission{}).
			Where("submission_id = ?", submissionID).
			Updates(updates).Error; err != nil {
			return err
		}

		if err := addEvent(tx, s.clock, submissionID, models.EventForEIC, actorID,
			fmt.Sprintf("The %s refereeing cycle has been chosen.", cycle)); err != nil {
			return err
		}
		return ensureNotWithdrawn(tx, submissionID)
	})
}

// RefereeDetails identifies the referee to invite: a registered profile by ID,
// or name/email for someone outside the registry.
type RefereeDetails struct {
	ProfileID int    `json:"profile_id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

// InviteReferee creates (or reactivates) a referee invitation with a fresh
// access key. It fails with an eligibility error when the candidate has a
// competing interest against an author, and with already-exists when a
// non-cancelled invitation is already out.
func (s *RefereeingService) InviteReferee(submissionID, actorID int, referee RefereeDetails, autoReminders bool) (*models.RefereeInvitation, error) {
	var invitation models.RefereeInvitation
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
		if err := Authorize(actor, sub, OpInviteReferee); err != nil {
			return err
		}
		if sub.Status != models.StatusAssigned {
			return guardViolation("submission %d is not open for refereeing", submissionID)
		}
		if sub.RefereeingCycle == models.CycleDirectRec {
			return guardViolation("submission %d runs a direct recommendation cycle; no referees are invited", submissionID)
		}

		var refereeID *int
		firstName, lastName, email := referee.FirstName, referee.LastName, referee.Email
		if referee.ProfileID != 0 {
			contact, err := s.profiles.ResolveContact(tx, referee.ProfileID)
			if err != nil {
				return err
			}
			if !contact.Available {
				return notEligible("referee %d is marked as currently unavailable", referee.ProfileID)
			}
			conflicted, err := s.registry.HasCompetingInterest(tx, contact.UserID, sub)
			if err != nil {
				return err
			}
			if conflicted {
				return notEligible("referee %d has a competing interest with the authors", contact.UserID)
			}
			refereeID = &contact.UserID
			firstName, lastName, email = contact.FirstName, contact.LastName, contact.Email
		}
		if strings.TrimSpace(email) == "" {
			return guardViolation("a referee email address is required")
		}

		// Idempotency guard: only one live invitation per referee per
		// submission. Cancelled rows stay in the record untouched; a
		// re-invitation is always a fresh row with a fresh key.
		query := tx.Where("submission_id = ? AND cancelled = ?", submissionID, false)
		if refereeID != nil {
			query = query.Where("referee_id = ?", *refereeID)
		} else {
			query = query.Where("email_address = ?", email)
		}
		var existing models.RefereeInvitation
		err = query.First(&existing).Error
		if err == nil {
			return alreadyExists("referee %s is already invited for submission %d", email, submissionID)
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		invitation = models.RefereeInvitation{
			SubmissionID:  submissionID,
			RefereeID:     refereeID,
			FirstName:     firstName,
			LastName:      lastName,
			EmailAddress:  email,
			InvitationKey: uuid.NewString(),
			InvitedBy:     actorID,
			DateInvited:   s.clock.Now(),
			AutoReminders: autoReminders,
		}
		if err := tx.Create(&invitation).Error; err != nil {
			return err
		}

		if err := addEvent(tx, s.clock, submissionID, models.EventForAuthor, actorID,
			"A referee has been invited."); err != nil {
			return err
		}
		if err := addEvent(tx, s.clock, submissionID, models.EventForEIC, actorID,
			fmt.Sprintf("Referee %s has been invited.", lastName)); err != nil {
			return err
		}
		notes = append(notes, notice{TplRefereeInvitation, submissionID,
			ToAddress(email), map[string]string{"title": sub.Title}})

		return ensureNotWithdrawn(tx, submissionID)
	})
	if err != nil {
		return nil, err
	}

	dispatchAll(s.notifier, notes)
	return &invitation, nil
}

// RespondToInvitation registers the referee's accept or decline, keyed by the
// personal access key. The response is terminal. A late accept is still
// honored while refereeing remains open; once reporting has closed it is
// rejected as expired.
func (s *RefereeingService) RespondToInvitation(invitationKey string, accept bool, refusalReason *string) (*models.RefereeInvitation, error) {
	var invitation models.RefereeInvitation
	var notes []notice

	err := s.db.Transaction(func(tx *gorm.DB) error {
		err := tx.Where("invitation_key = ?", invitationKey).First(&invitation).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("no invitation matches this key")
			}
			return err
		}
		if !invitation.Pending() {
			return guardViolation("invitation %d has already been answered or cancelled", invitation.InvitationID)
		}
		sub, err := loadSubmission(tx, invitation.SubmissionID)
		if err != nil {
			return err
		}
		if !sub.IsOpenForReporting(s.clock.Now()) {
			return deadlineExpired("refereeing for submission %d has closed", sub.SubmissionID)
		}

		now := s.clock.Now()
		res := tx.Model(&models.RefereeInvitation{}).
			Where("invitation_id = ? AND accepted IS NULL AND cancelled = ?", invitation.InvitationID, false).
			Updates(map[string]any{
				"accepted":       accept,
				"date_responded": now,
				"refusal_reason": refusalReason,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return guardViolation("invitation %d was answered concurrently", invitation.InvitationID)
		}
		invitation.Accepted = &accept
		invitation.DateResponded = &now
		invitation.RefusalReason = refusalReason

		verb := "declined"
		if accept {
			verb = "accepted"
		}
		if err := addEvent(tx, s.clock, sub.SubmissionID, models.EventForEIC, 0,
			fmt.Sprintf("Referee %s has %s the refereeing invitation.", invitation.LastName, verb)); err != nil {
			return err
		}
		return ensureNotWithdrawn(tx, sub.SubmissionID)
	})
	if err != nil {
		return nil, err
	}

	dispatchAll(s.notifier, notes)
	return &invitation, nil
}

// CancelInvitation deactivates an invitation. Terminal: a later re-invite
// creates a fresh row, never revives this one.
func (s *RefereeingService) CancelInvitation(invitationID, actorID int) error {
	var notes []notice

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var invitation models.RefereeInvitation
		if err := tx.First(&invitation, invitationID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("invitation %d not found", invitationID)
			}
			return err
		}
		if invitation.Terminal() {
			return guardViolation("invitation %d is already cancelled or fulfilled", invitationID)
		}
		sub, err := loadSubmission(tx, invitation.SubmissionID)
		if err != nil {
			return err
		}
		actor, err := loadUser(tx, actorID)
		if err != nil {
			return err
		}
		if err := Authorize(actor, sub, OpCancelInvitation); err != nil {
			return err
		}

		if err := tx.Model(&models.RefereeInvitation{}).
			Where("invitation_id = ?", invitationID).
			Update("cancelled", true).Error; err != nil {
			return err
		}
		if err := addEvent(tx, s.clock, sub.SubmissionID, models.EventForEIC, actorID,
			fmt.Sprintf("The invitation of referee %s has been cancelled.", invitation.LastName)); err != nil {
			return err
		}
		notes = append(notes, notice{TplInvitationCancelled, sub.SubmissionID,
			ToAddress(invitation.EmailAddress), map[string]string{"title": sub.Title}})
		return ensureNotWithdrawn(tx, sub.SubmissionID)
	})
	if err != nil {
		return err
	}

	dispatchAll(s.notifier, notes)
	return nil
}

// RemindReferee sends a manual reminder for a pending or in-process
// invitation and records it on the row.
func (s *RefereeingService) RemindReferee(invitationID, actorID int) error {
	var notes []notice

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var invitation models.RefereeInvitation
		if err := tx.First(&invitation, invitationID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("invitation %d not found", invitationID)
			}
			return err
		}
		if !invitation.Pending() && !invitation.InProcess() {
			return guardViolation("invitation %d is not awaiting a reminder", invitationID)
		}
		sub, err := loadSubmission(tx, invitation.SubmissionID)
		if err != nil {
			return err
		}
		actor, err := loadUser(tx, actorID)
		if err != nil {
			return err
		}
		if err := Authorize(actor, sub, OpRemindReferee); err != nil {
			return err
		}

		now := s.clock.Now()
		if err := tx.Model(&models.RefereeInvitation{}).
			Where("invitation_id = ?", invitationID).
			Updates(map[string]any{
				"nr_reminders":       gorm.Expr("nr_reminders + 1"),
				"date_last_reminded": now,
			}).Error; err != nil {
			return err
		}
		notes = append(notes, notice{TplRefereeReminder, sub.SubmissionID,
			ToAddress(invitation.EmailAddress), map[string]string{"title": sub.Title}})
		return nil
	})
	if err != nil {
		return err
	}

	dispatchAll(s.notifier, notes)
	return nil
}

// SetAutoReminders toggles the automatic reminder permission on an invitation.
func (s *RefereeingService) SetAutoReminders(invitationID, actorID int, allowed bool) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var invitation models.RefereeInvitation
		if err := tx.First(&invitation, invitationID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("invitation %d not found", invitationID)
			}
			return err
		}
		sub, err := loadSubmission(tx, invitation.SubmissionID)
		if err != nil {
			return err
		}
		actor, err := loadUser(tx, actorID)
		if err != nil {
			return err
		}
		if err := Authorize(actor, sub, OpRemindReferee); err != nil {
			return err
		}
		return tx.Model(&models.RefereeInvitation{}).
			Where("invitation_id = ?", invitationID).
			Update("auto_reminders", allowed).Error
	})
}

// ReportContent carries the evaluation fields of a referee report.
type ReportContent struct {
	Qualification    int    `json:"qualification"`
	Strengths        string `json:"strengths"`
	Weaknesses       string `json:"weaknesses"`
	Report           string `json:"report" binding:"required"`
	RequestedChanges string `json:"requested_changes"`
	Recommendation   int    `json:"recommendation" binding:"required"`
}

// SubmitReport creates or updates the referee's draft report. A referee holds
// at most one draft per submission; the draft only becomes visible to the
// editor after FinalizeReport.
func (s *RefereeingService) SubmitReport(submissionID, authorID int, content ReportContent) (*models.Report, error) {
	var report models.Report

	err := s.db.Transaction(func(tx *gorm.DB) error {
		sub, err := loadSubmission(tx, submissionID)
		if err != nil {
			return err
		}
		if !sub.IsOpenForReporting(s.clock.Now()) {
			return deadlineExpired("submission %d is not open for reporting", submissionID)
		}
		authorIDs, err := submissionAuthorIDs(tx, sub)
		if err != nil {
			return err
		}
		for _, id := range authorIDs {
			if id == authorID {
				return notEligible("authors cannot referee their own submission")
			}
		}
		conflicted, err := s.registry.HasCompetingInterest(tx, authorID, sub)
		if err != nil {
			return err
		}
		if conflicted {
			return notEligible("user %d has a competing interest with the authors", authorID)
		}

		err = tx.Where("submission_id = ? AND author_id = ? AND status = ?",
			submissionID, authorID, models.ReportDraft).First(&report).Error
		switch {
		case err == nil:
			if err := tx.Model(&models.Report{}).
				Where("report_id = ?", report.ReportID).
				Updates(map[string]any{
					"qualification":     content.Qualification,
					"strengths":         content.Strengths,
					"weaknesses":        content.Weaknesses,
					"report":            content.Report,
					"requested_changes": content.RequestedChanges,
					"recommendation":    content.Recommendation,
				}).Error; err != nil {
				return err
			}
			return tx.First(&report, report.ReportID).Error
		case errors.Is(err, gorm.ErrRecordNotFound):
			var maxNr int
			tx.Model(&models.Report{}).
				Where("submission_id = ?", submissionID).
				Select("COALESCE(MAX(report_nr), 0)").Scan(&maxNr)

			invited, err := s.hasLiveInvitation(tx, submissionID, authorID)
			if err != nil {
				return err
			}
			report = models.Report{
				SubmissionID:     submissionID,
				AuthorID:         authorID,
				ReportNr:         maxNr + 1,
				Status:           models.ReportDraft,
				Invited:          invited,
				Qualification:    content.Qualification,
				Strengths:        content.Strengths,
				Weaknesses:       content.Weaknesses,
				Report:           content.Report,
				RequestedChanges: content.RequestedChanges,
				Recommendation:   content.Recommendation,
			}
			return tx.Create(&report).Error
		default:
			return err
		}
	})
	if err != nil {
		return nil, err
	}
	return &report, nil
}

// FinalizeReport moves the referee's draft to awaiting-vetting, fulfils the
// matching invitation and alerts the editor-in-charge. A report left in draft
// when the round closes stays invisible.
func (s *RefereeingService) FinalizeReport(reportID, authorID int) (*models.Report, error) {
	var report models.Report
	var notes []notice

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&report, reportID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("report %d not found", reportID)
			}
			return err
		}
		if report.AuthorID != authorID {
			return notEligible("report %d does not belong to user %d", reportID, authorID)
		}
		if !report.IsInDraft() {
			return guardViolation("report %d is %s, not draft", reportID, report.Status)
		}
		sub, err := loadSubmission(tx, report.SubmissionID)
		if err != nil {
			return err
		}
		if !sub.IsOpenForReporting(s.clock.Now()) {
			return deadlineExpired("the reporting window for submission %d has closed", sub.SubmissionID)
		}

		now := s.clock.Now()
		res := tx.Model(&models.Report{}).
			Where("report_id = ? AND status = ?", reportID, models.ReportDraft).
			Updates(map[string]any{"status": models.ReportUnvetted, "date_submitted": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return guardViolation("report %d was finalized concurrently", reportID)
		}
		report.Status = models.ReportUnvetted
		report.DateSubmitted = &now

		if err := tx.Model(&models.RefereeInvitation{}).
			Where("submission_id = ? AND referee_id = ? AND cancelled = ?", sub.SubmissionID, authorID, false).
			Update("fulfilled", true).Error; err != nil {
			return err
		}

		author, err := loadUser(tx, authorID)
		if err != nil {
			return err
		}
		if err := addEvent(tx, s.clock, sub.SubmissionID, models.EventForEIC, authorID,
			fmt.Sprintf("Referee %s has delivered a report.", author.LastName)); err != nil {
			return err
		}
		notes = append(notes, notice{TplReportDelivered, sub.SubmissionID, ToEIC(),
			map[string]string{"title": sub.Title, "referee": author.FullName()}})
		return ensureNotWithdrawn(tx, sub.SubmissionID)
	})
	if err != nil {
		return nil, err
	}

	dispatchAll(s.notifier, notes)
	return &report, nil
}

// VetReport accepts or refuses a delivered report. Restricted to the handling
// editor or editorial administration; acceptance makes the report visible and
// informs its author, refusal is terminal.
func (s *RefereeingService) VetReport(reportID, actorID int, accept bool, refusalReason *string) (*models.Report, error) {
	var report models.Report
	var notes []notice

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&report, reportID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("report %d not found", reportID)
			}
			return err
		}
		if !report.IsUnvetted() {
			return guardViolation("report %d is %s, not awaiting vetting", reportID, report.Status)
		}
		sub, err := loadSubmission(tx, report.SubmissionID)
		if err != nil {
			return err
		}
		actor, err := loadUser(tx, actorID)
		if err != nil {
			return err
		}
		if err := Authorize(actor, sub, OpVetReport); err != nil {
			return err
		}

		now := s.clock.Now()
		newStatus := models.ReportVetted
		if !accept {
			newStatus = models.ReportRefused
		}
		res := tx.Model(&models.Report{}).
			Where("report_id = ? AND status = ?", reportID, models.ReportUnvetted).
			Updates(map[string]any{
				"status":         newStatus,
				"vetted_by_id":   actorID,
				"date_vetted":    now,
				"refusal_reason": refusalReason,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return guardViolation("report %d was vetted concurrently", reportID)
		}
		report.Status = newStatus
		report.VettedByID = &actorID
		report.DateVetted = &now
		report.RefusalReason = refusalReason

		if accept {
			if err := addEvent(tx, s.clock, sub.SubmissionID, models.EventForAuthor, actorID,
				"A referee report has been vetted and is now visible."); err != nil {
				return err
			}
			notes = append(notes, notice{TplReportVetted, sub.SubmissionID,
				ToUser(report.AuthorID), map[string]string{"title": sub.Title}})
		} else {
			reason := ""
			if refusalReason != nil {
				reason = *refusalReason
			}
			notes = append(notes, notice{TplReportRefused, sub.SubmissionID,
				ToUser(report.AuthorID), map[string]string{"title": sub.Title, "reason": reason}})
		}
		return ensureNotWithdrawn(tx, sub.SubmissionID)
	})
	if err != nil {
		return nil, err
	}

	dispatchAll(s.notifier, notes)
	return &report, nil
}

// CloseRound stops new reports and stamps the reporting deadline as now.
func (s *RefereeingService) CloseRound(submissionID, actorID int) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		sub, err := loadSubmission(tx, submissionID)
		if err != nil {
			return err
		}
		actor, err := loadUser(tx, actorID)
		if err != nil {
			return err
		}
		if err := Authorize(actor, sub, OpCloseRound); err != nil {
			return err
		}
		if sub.Status != models.StatusAssigned {
			return guardViolation("submission %d is not under refereeing", submissionID)
		}

		now := s.clock.Now()
		if err := tx.Model(&models.Submission{}).
			Where("submission_id = ?", submissionID).
			Updates(map[string]any{
				"open_for_reporting": false,
				"reporting_deadline": now,
				"latest_activity":    now,
			}).Error; err != nil {
			return err
		}
		return addEvent(tx, s.clock, submissionID, models.EventGeneral, actorID,
			"The refereeing round has been closed.")
	})
}

// ExtendDeadline pushes the reporting deadline forward by the given number of
// days and reopens reporting. The explicit extension is the only way to
// recover from an expired deadline.
func (s *RefereeingService) ExtendDeadline(submissionID, actorID, days int) error {
	if days <= 0 {
		return guardViolation("deadline extension must be a positive number of days")
	}
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
		if err := Authorize(actor, sub, OpExtendDeadline); err != nil {
			return err
		}
		if sub.Status != models.StatusAssigned {
			return guardViolation("submission %d is not under refereeing", submissionID)
		}

		now := s.clock.Now()
		base := now
		if sub.ReportingDeadline != nil && sub.ReportingDeadline.After(now) {
			base = *sub.ReportingDeadline
		}
		deadline := base.AddDate(0, 0, days)
		if err := tx.Model(&models.Submission{}).
			Where("submission_id = ?", submissionID).
			Updates(map[string]any{
				"open_for_reporting": true,
				"reporting_deadline": deadline,
				"latest_activity":    now,
			}).Error; err != nil {
			return err
		}
		if err := addEvent(tx, s.clock, submissionID, models.EventGeneral, actorID,
			fmt.Sprintf("The reporting deadline has been extended by %d days.", days)); err != nil {
			return err
		}

		var inProcess []models.RefereeInvitation
		if err := tx.Where("submission_id = ? AND accepted = ? AND fulfilled = ? AND cancelled = ?",
			submissionID, true, false, false).Find(&inProcess).Error; err != nil {
			return err
		}
		for _, inv := range inProcess {
			notes = append(notes, notice{TplRefereeDeadlineWeek, submissionID,
				ToAddress(inv.EmailAddress), map[string]string{"title": sub.Title}})
		}
		return ensureNotWithdrawn(tx, submissionID)
	})
	if err != nil {
		return err
	}

	dispatchAll(s.notifier, notes)
	return err
}

// RestartCycle is the administrative escalation used when committee voting
// fails to converge or the authors successfully appeal: the active
// recommendation is invalidated, reporting reopens and the restart reason is
// logged. Old invitations stay terminal; replacements are fresh rows.
func (s *RefereeingService) RestartCycle(submissionID, actorID int, reason string) error {
	if strings.TrimSpace(reason) == "" {
		return guardViolation("a restart reason is required")
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		sub, err := loadSubmission(tx, submissionID)
		if err != nil {
			return err
		}
		actor, err := loadUser(tx, actorID)
		if err != nil {
			return err
		}
		if err := Authorize(actor, sub, OpRestartCycle); err != nil {
			return err
		}
		if sub.Status != models.StatusVotingInPreparation && sub.Status != models.StatusPutToVoting {
			return guardViolation("submission %d has no voting cycle to restart", submissionID)
		}

		var rec models.EICRecommendation
		err = tx.Where("submission_id = ? AND status != ?", submissionID, models.RecDeprecated).
			Order("version DESC").First(&rec).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err == nil {
			if err := deprecateRecommendation(tx, &rec); err != nil {
				return err
			}
		}

		if err := transition(tx, s.clock, sub, models.StatusAssigned, actorID,
			fmt.Sprintf("The refereeing cycle has been restarted: %s", reason)); err != nil {
			return err
		}

		now := s.clock.Now()
		return tx.Model(&models.Submission{}).
			Where("submission_id = ?", submissionID).
			Updates(map[string]any{
				"open_for_reporting": true,
				"reporting_deadline": now.Add(reportingPeriod(sub.Journal, sub.RefereeingCycle)),
				"latest_activity":    now,
			}).Error
	})
}

// VettedReports returns the vetted report set used for the recommendation.
func (s *RefereeingService) VettedReports(submissionID int) ([]models.Report, error) {
	var reports []models.Report
	err := s.db.Where("submission_id = ? AND status = ?", submissionID, models.ReportVetted).
		Order("report_nr ASC").Find(&reports).Error
	return reports, err
}

func (s *RefereeingService) hasLiveInvitation(tx *gorm.DB, submissionID, refereeID int) (bool, error) {
	var count int64
	err := tx.Model(&models.RefereeInvitation{}).
		Where("submission_id = ? AND referee_id = ? AND cancelled = ?", submissionID, refereeID, false).
		Count(&count).Error
	return count > 0, err
}

// deprecateRecommendation retires a recommendation version and clears its
// votes, keeping the remark trail.
func deprecateRecommendation(tx *gorm.DB, rec *models.EICRecommendation) error {
	if err := tx.Model(&models.EICRecommendation{}).
		Where("recommendation_id = ?", rec.RecommendationID).
		Update("status", models.RecDeprecated).Error; err != nil {
		return err
	}
	rec.Status = models.RecDeprecated
	return tx.Where("recommendation_id = ?", rec.RecommendationID).
		Delete(&models.RecommendationVote{}).Error
}
