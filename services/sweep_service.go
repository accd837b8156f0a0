package services

import (
	"log"
	"time"

	"peer-review-api/config"
	"peer-review-api/models"

	"gorm.io/gorm"
)

// SweepService is the idempotent periodic pass over deadlines and pending
// work: referee reminders, unresponsive-referee alerts, reporting deadline
// warnings, assignment deadline failures and voting deadline alerts. Re-runs
// are no-ops; the counters and timestamps on each row make every reminder fire
// at most once.
type SweepService struct {
	db          *gorm.DB
	clock       Clock
	notifier    Notifier
	assignments *AssignmentService
}

func NewSweepService(db *gorm.DB, clock Clock, notifier Notifier, assignments *AssignmentService) *SweepService {
	if db == nil {
		db = config.DB
	}
	if clock == nil {
		clock = SystemClock
	}
	if notifier == nil {
		notifier = NewMailNotifier(db, clock)
	}
	if assignments == nil {
		assignments = NewAssignmentService(db, clock, notifier, nil)
	}
	return &SweepService{db: db, clock: clock, notifier: notifier, assignments: assignments}
}

// SweepReport counts what a sweep pass did.
type SweepReport struct {
	RefereeReminders    int `json:"referee_reminders"`
	UnresponsiveAlerts  int `json:"unresponsive_alerts"`
	DeadlineWarnings    int `json:"deadline_warnings"`
	AssignmentsFailed   int `json:"assignments_failed"`
	VotingDeadlineNotes int `json:"voting_deadline_notes"`
}

// Run executes one full sweep pass. Each sub-sweep works independently;
// a failure in one is logged and does not stop the others.
func (s *SweepService) Run() SweepReport {
	var report SweepReport

	if err := s.remindPendingReferees(&report); err != nil {
		log.Printf("sweep: referee reminders failed: %v", err)
	}
	if err := s.warnApproachingDeadlines(&report); err != nil {
		log.Printf("sweep: deadline warnings failed: %v", err)
	}
	if err := s.failExpiredAssignments(&report); err != nil {
		log.Printf("sweep: assignment expiry failed: %v", err)
	}
	if err := s.flagExpiredVoting(&report); err != nil {
		log.Printf("sweep: voting deadline flags failed: %v", err)
	}
	return report
}

// remindPendingReferees nudges unanswered invitations at 2 and 4 workdays
// after the invite and alerts the editor-in-charge at 6. The nr_reminders
// counter keeps reminder re-runs silent; the eic_alerted flag makes the
// unresponsiveness alert a one-off.
func (s *SweepService) remindPendingReferees(report *SweepReport) error {
	now := s.clock.Now()
	var notes []notice

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var pending []models.RefereeInvitation
		if err := tx.Where("accepted IS NULL AND cancelled = ?", false).
			Find(&pending).Error; err != nil {
			return err
		}

		for _, inv := range pending {
			sub, err := loadSubmission(tx, inv.SubmissionID)
			if err != nil || !sub.IsOpenForReporting(now) {
				continue
			}
			age := workdaysBetween(inv.DateInvited, now)

			switch {
			case age >= 6 && inv.NrReminders >= 2:
				// Referee stayed silent through both reminders. The alert
				// goes to the editor-in-charge once per invitation.
				if inv.EICAlerted {
					continue
				}
				if err := tx.Model(&models.RefereeInvitation{}).
					Where("invitation_id = ?", inv.InvitationID).
					Update("eic_alerted", true).Error; err != nil {
					return err
				}
				notes = append(notes, notice{TplRefereeUnresponsive, inv.SubmissionID, ToEIC(),
					map[string]string{"title": sub.Title, "referee": inv.RefereeName()}})
				report.UnresponsiveAlerts++

			case age >= 4 && inv.NrReminders == 1, age >= 2 && inv.NrReminders == 0:
				if !inv.AutoReminders {
					continue
				}
				if err := s.markReminded(tx, inv.InvitationID, now); err != nil {
					return err
				}
				notes = append(notes, notice{TplRefereeReminder, inv.SubmissionID,
					ToAddress(inv.EmailAddress), map[string]string{"title": sub.Title}})
				report.RefereeReminders++
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	dispatchAll(s.notifier, notes)
	return nil
}

func (s *SweepService) markReminded(tx *gorm.DB, invitationID int, now time.Time) error {
	return tx.Model(&models.RefereeInvitation{}).
		Where("invitation_id = ?", invitationID).
		Updates(map[string]any{
			"nr_reminders":       gorm.Expr("nr_reminders + 1"),
			"date_last_reminded": now,
		}).Error
}

// warnApproachingDeadlines reminds referees who accepted but have not yet
// delivered when the reporting deadline is five workdays out.
func (s *SweepService) warnApproachingDeadlines(report *SweepReport) error {
	now := s.clock.Now()
	var notes []notice

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var inProcess []models.RefereeInvitation
		if err := tx.Where("accepted = ? AND fulfilled = ? AND cancelled = ?",
			true, false, false).Find(&inProcess).Error; err != nil {
			return err
		}

		for _, inv := range inProcess {
			sub, err := loadSubmission(tx, inv.SubmissionID)
			if err != nil || sub.ReportingDeadline == nil || !sub.OpenForReporting {
				continue
			}
			if sub.ReportingDeadline.Before(now) {
				continue
			}
			if workdaysBetween(now, *sub.ReportingDeadline) > 5 {
				continue
			}
			// One warning per deadline window.
			if inv.DateLastReminded != nil && workdaysBetween(*inv.DateLastReminded, now) < 5 {
				continue
			}
			if err := s.markReminded(tx, inv.InvitationID, now); err != nil {
				return err
			}
			notes = append(notes, notice{TplRefereeDeadlineWeek, inv.SubmissionID,
				ToAddress(inv.EmailAddress), map[string]string{"title": sub.Title}})
			report.DeadlineWarnings++
		}
		return nil
	})
	if err != nil {
		return err
	}

	dispatchAll(s.notifier, notes)
	return nil
}

// failExpiredAssignments moves submissions whose assignment deadline has
// passed with nobody in charge and no invitation still pending into the
// terminal assignment-failed state.
func (s *SweepService) failExpiredAssignments(report *SweepReport) error {
	now := s.clock.Now()

	var candidates []models.Submission
	if err := s.db.Where("status = ? AND assignment_deadline IS NOT NULL AND assignment_deadline < ? AND delete_at IS NULL",
		models.StatusSeekingAssignment, now).Find(&candidates).Error; err != nil {
		return err
	}

	for _, candidate := range candidates {
		var notes []notice
		err := s.db.Transaction(func(tx *gorm.DB) error {
			sub, err := loadSubmission(tx, candidate.SubmissionID)
			if err != nil {
				return err
			}
			if sub.Status != models.StatusSeekingAssignment {
				return nil
			}
			var open int64
			if err := tx.Model(&models.EditorialAssignment{}).
				Where("submission_id = ? AND status = ?", sub.SubmissionID, models.AssignmentInvited).
				Count(&open).Error; err != nil {
				return err
			}
			if open > 0 {
				// An invitation is still out; give the invitee their chance.
				return nil
			}
			if err := s.assignments.failInTx(tx, sub, 0, &notes); err != nil {
				return err
			}
			report.AssignmentsFailed++
			return nil
		})
		if err != nil {
			log.Printf("sweep: failing assignment of submission %d: %v", candidate.SubmissionID, err)
			continue
		}
		dispatchAll(s.notifier, notes)
	}
	return nil
}

// flagExpiredVoting alerts the editorial administration when a voting deadline
// has passed without a fixed decision. Convergence policy stays with the
// administrators; the sweep only surfaces the overdue vote once per deadline.
func (s *SweepService) flagExpiredVoting(report *SweepReport) error {
	now := s.clock.Now()
	var notes []notice

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var overdue []models.EICRecommendation
		if err := tx.Where("status = ? AND voting_deadline IS NOT NULL AND voting_deadline < ?",
			models.RecPutToVoting, now).Find(&overdue).Error; err != nil {
			return err
		}

		for _, rec := range overdue {
			sub, err := loadSubmission(tx, rec.SubmissionID)
			if err != nil {
				continue
			}
			var flagged int64
			if err := tx.Model(&models.SubmissionEvent{}).
				Where("submission_id = ? AND text = ? AND created_at > ?",
					rec.SubmissionID, votingOverdueEventText, *rec.VotingDeadline).
				Count(&flagged).Error; err != nil {
				return err
			}
			if flagged > 0 {
				continue
			}
			if err := addEvent(tx, s.clock, rec.SubmissionID, models.EventForEIC, 0,
				votingOverdueEventText); err != nil {
				return err
			}
			notes = append(notes, notice{TplVotingDeadlinePassed, rec.SubmissionID,
				ToRole(models.RoleEditorialAdmin), map[string]string{"title": sub.Title}})
			report.VotingDeadlineNotes++
		}
		return nil
	})
	if err != nil {
		return err
	}

	dispatchAll(s.notifier, notes)
	return nil
}

const votingOverdueEventText = "The voting deadline has passed without a fixed decision."
