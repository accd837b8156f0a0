package services

import (
	"errors"
	"fmt"

	"peer-review-api/config"
	"peer-review-api/models"

	"gorm.io/gorm"
)

// ProductionHandoffer hands an accepted submission over to the production
// stage. The call happens inside the fixation transaction; implementations
// must be idempotent per (submission, decision) pair.
type ProductionHandoffer interface {
	Handoff(tx *gorm.DB, sub *models.Submission, decision *models.EditorialDecision) error
}

// ledgerHandoffer is the default: it records the handoff in the
// production_handoffs ledger, exactly once per pair. A retry that finds the
// ledger row does nothing.
type ledgerHandoffer struct {
	clock Clock
}

func NewLedgerHandoffer(clock Clock) ProductionHandoffer {
	if clock == nil {
		clock = SystemClock
	}
	return ledgerHandoffer{clock: clock}
}

func (h ledgerHandoffer) Handoff(tx *gorm.DB, sub *models.Submission, decision *models.EditorialDecision) error {
	var count int64
	if err := tx.Model(&models.ProductionHandoff{}).
		Where("submission_id = ? AND decision_id = ?", sub.SubmissionID, decision.DecisionID).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	row := models.ProductionHandoff{
		SubmissionID: sub.SubmissionID,
		DecisionID:   decision.DecisionID,
		HandedOffAt:  h.clock.Now(),
	}
	return tx.Create(&row).Error
}

// DecisionService fixes editorial decisions and handles the publication offer
// and withdrawal endgames.
type DecisionService struct {
	db       *gorm.DB
	clock    Clock
	notifier Notifier
	handoff  ProductionHandoffer
}

func NewDecisionService(db *gorm.DB, clock Clock, notifier Notifier, handoff ProductionHandoffer) *DecisionService {
	if db == nil {
		db = config.DB
	}
	if clock == nil {
		clock = SystemClock
	}
	if notifier == nil {
		notifier = NewMailNotifier(db, clock)
	}
	if handoff == nil {
		handoff = NewLedgerHandoffer(clock)
	}
	return &DecisionService{db: db, clock: clock, notifier: notifier, handoff: handoff}
}

// FixDecision irreversibly converts the voted recommendation into the binding
// editorial decision, all inside one transaction: the recommendation is
// sealed, reporting closed, unfulfilled referee invitations cancelled, the
// decision row fixed and the submission moved to its outcome status. Publish
// in the original target journal also hands off to production. A retry with
// identical arguments returns the existing decision without side effects.
func (s *DecisionService) FixDecision(submissionID, actorID int, outcome string, targetJournalID int) (*models.EditorialDecision, error) {
	if outcome != models.DecisionPublish && outcome != models.DecisionReject {
		return nil, guardViolation("unknown decision outcome %q", outcome)
	}

	var decision models.EditorialDecision
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
		if err := Authorize(actor, sub, OpFixDecision); err != nil {
			return err
		}

		// Idempotent retry: an already-fixed decision with the same arguments
		// is returned as-is, anything else is a violation.
		var existing models.EditorialDecision
		err = tx.Where("submission_id = ?", submissionID).
			Order("version DESC").First(&existing).Error
		if err == nil && existing.IsFixed() {
			if existing.Outcome == outcome && existing.JournalID == targetJournalID {
				decision = existing
				return nil
			}
			return guardViolation("submission %d already has a fixed decision (%s)", submissionID, existing.Outcome)
		}
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if sub.Status != models.StatusPutToVoting {
			return guardViolation("submission %d is not awaiting a decision", submissionID)
		}

		var rec models.EICRecommendation
		err = tx.Where("submission_id = ? AND status = ?", submissionID, models.RecPutToVoting).
			Order("version DESC").First(&rec).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return guardViolation("submission %d has no recommendation under voting", submissionID)
			}
			return err
		}

		res := tx.Model(&models.EICRecommendation{}).
			Where("recommendation_id = ? AND status = ?", rec.RecommendationID, models.RecPutToVoting).
			Update("status", models.RecDecisionFixed)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return guardViolation("recommendation %d was sealed concurrently", rec.RecommendationID)
		}

		now := s.clock.Now()
		if err := tx.Model(&models.Submission{}).
			Where("submission_id = ?", submissionID).
			Updates(map[string]any{
				"open_for_reporting": false,
				"reporting_deadline": now,
			}).Error; err != nil {
			return err
		}

		// Cancel everything the referees still owe; they are notified that no
		// further action is needed.
		var pending []models.RefereeInvitation
		if err := tx.Where("submission_id = ? AND fulfilled = ? AND cancelled = ?",
			submissionID, false, false).Find(&pending).Error; err != nil {
			return err
		}
		if len(pending) > 0 {
			if err := tx.Model(&models.RefereeInvitation{}).
				Where("submission_id = ? AND fulfilled = ? AND cancelled = ?", submissionID, false, false).
				Update("cancelled", true).Error; err != nil {
				return err
			}
			for _, inv := range pending {
				notes = append(notes, notice{TplInvitationCancelled, submissionID,
					ToAddress(inv.EmailAddress), map[string]string{"title": sub.Title}})
			}
		}

		var maxVersion int
		tx.Model(&models.EditorialDecision{}).
			Where("submission_id = ?", submissionID).
			Select("COALESCE(MAX(version), 0)").Scan(&maxVersion)

		alternative := outcome == models.DecisionPublish && targetJournalID != sub.JournalID
		decisionStatus := models.DecisionFixed
		if alternative {
			decisionStatus = models.DecisionAwaitingOfferAccept
		}
		decision = models.EditorialDecision{
			SubmissionID:     submissionID,
			RecommendationID: rec.RecommendationID,
			JournalID:        targetJournalID,
			Outcome:          outcome,
			Status:           decisionStatus,
			Version:          maxVersion + 1,
			TakenOn:          now,
			FixedOn:          &now,
			FixedBy:          &actorID,
		}
		if err := tx.Create(&decision).Error; err != nil {
			return err
		}

		journalName, err := journalNameByID(tx, targetJournalID)
		if err != nil {
			return err
		}

		switch {
		case outcome == models.DecisionReject:
			if err := transition(tx, s.clock, sub, models.StatusRejected, actorID,
				"The editorial decision is to reject."); err != nil {
				return err
			}
			// A rejection closes the whole thread: earlier versions come off
			// the public listings together with this one.
			if err := tx.Model(&models.Submission{}).
				Where("thread_id = ?", sub.ThreadID).
				Update("visible_public", false).Error; err != nil {
				return err
			}
			notes = append(notes, notice{TplDecisionRejected, submissionID, ToAuthors(),
				map[string]string{"title": sub.Title}})

		case alternative:
			if err := transition(tx, s.clock, sub, models.StatusAcceptedAltOfferPending, actorID,
				fmt.Sprintf("Publication has been offered in %s.", journalName)); err != nil {
				return err
			}
			notes = append(notes, notice{TplDecisionOfferPending, submissionID, ToAuthors(),
				map[string]string{"title": sub.Title, "journal": journalName}})

		default:
			if err := transition(tx, s.clock, sub, models.StatusAccepted, actorID,
				fmt.Sprintf("The submission has been accepted in %s.", journalName)); err != nil {
				return err
			}
			if err := tx.Model(&models.Submission{}).
				Where("submission_id = ?", submissionID).
				Update("acceptance_date", now).Error; err != nil {
				return err
			}
			if err := s.handoff.Handoff(tx, sub, &decision); err != nil {
				return err
			}
			notes = append(notes, notice{TplDecisionAccepted, submissionID, ToAuthors(),
				map[string]string{"title": sub.Title, "journal": journalName}})
			notes = append(notes, notice{TplProductionHandoff, submissionID,
				ToRole(models.RoleEditorialAdmin), map[string]string{"title": sub.Title}})
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	dispatchAll(s.notifier, notes)
	return &decision, nil
}

// AcceptPublicationOffer registers the authors' acceptance of publication in
// the alternative journal. Only the submitting author may accept, exactly
// once; acceptance triggers the production handoff.
func (s *DecisionService) AcceptPublicationOffer(submissionID, authorID int) (*models.EditorialDecision, error) {
	var decision models.EditorialDecision
	var notes []notice

	err := s.db.Transaction(func(tx *gorm.DB) error {
		sub, err := loadSubmission(tx, submissionID)
		if err != nil {
			return err
		}
		if sub.SubmittedBy != authorID {
			return notEligible("only the submitting author may accept the publication offer")
		}
		if sub.Status != models.StatusAcceptedAltOfferPending {
			return guardViolation("submission %d has no pending publication offer", submissionID)
		}

		err = tx.Where("submission_id = ? AND status = ?",
			submissionID, models.DecisionAwaitingOfferAccept).
			Order("version DESC").First(&decision).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return guardViolation("submission %d has no offer awaiting acceptance", submissionID)
			}
			return err
		}

		res := tx.Model(&models.EditorialDecision{}).
			Where("decision_id = ? AND status = ?", decision.DecisionID, models.DecisionAwaitingOfferAccept).
			Update("status", models.DecisionOfferAccepted)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return guardViolation("the offer on submission %d was answered concurrently", submissionID)
		}
		decision.Status = models.DecisionOfferAccepted

		if err := transition(tx, s.clock, sub, models.StatusAcceptedAlt, authorID,
			"The authors have accepted the alternative publication offer."); err != nil {
			return err
		}
		now := s.clock.Now()
		if err := tx.Model(&models.Submission{}).
			Where("submission_id = ?", submissionID).
			Update("acceptance_date", now).Error; err != nil {
			return err
		}
		if err := s.handoff.Handoff(tx, sub, &decision); err != nil {
			return err
		}

		journalName, err := journalNameByID(tx, decision.JournalID)
		if err != nil {
			return err
		}
		notes = append(notes, notice{TplDecisionOfferAccepted, submissionID, ToAuthors(),
			map[string]string{"title": sub.Title, "journal": journalName}})
		notes = append(notes, notice{TplProductionHandoff, submissionID,
			ToRole(models.RoleEditorialAdmin), map[string]string{"title": sub.Title}})
		return nil
	})
	if err != nil {
		return nil, err
	}

	dispatchAll(s.notifier, notes)
	return &decision, nil
}

// WithdrawSubmission is the authors' pre-emption of the process from any
// non-terminal state: outstanding invitations are cancelled, open assignments
// and the active recommendation deprecated, the submission withdrawn.
func (s *DecisionService) WithdrawSubmission(submissionID, authorID int) error {
	var notes []notice

	err := s.db.Transaction(func(tx *gorm.DB) error {
		sub, err := loadSubmission(tx, submissionID)
		if err != nil {
			return err
		}
		if sub.SubmittedBy != authorID {
			return notEligible("only the submitting author may withdraw the submission")
		}
		if sub.IsTerminal() {
			return guardViolation("submission %d has already reached a terminal state", submissionID)
		}
		if !CanTransition(sub.Status, models.StatusWithdrawn) {
			return guardViolation("submission %d can no longer be withdrawn", submissionID)
		}

		hadEIC := sub.EditorInChargeID != nil

		var pending []models.RefereeInvitation
		if err := tx.Where("submission_id = ? AND fulfilled = ? AND cancelled = ?",
			submissionID, false, false).Find(&pending).Error; err != nil {
			return err
		}
		if len(pending) > 0 {
			if err := tx.Model(&models.RefereeInvitation{}).
				Where("submission_id = ? AND fulfilled = ? AND cancelled = ?", submissionID, false, false).
				Update("cancelled", true).Error; err != nil {
				return err
			}
			for _, inv := range pending {
				notes = append(notes, notice{TplInvitationCancelled, submissionID,
					ToAddress(inv.EmailAddress), map[string]string{"title": sub.Title}})
			}
		}

		if err := tx.Model(&models.EditorialAssignment{}).
			Where("submission_id = ? AND status IN ?", submissionID,
				[]string{models.AssignmentPreassigned, models.AssignmentInvited, models.AssignmentAccepted}).
			Update("status", models.AssignmentDeprecated).Error; err != nil {
			return err
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

		if err := transition(tx, s.clock, sub, models.StatusWithdrawn, authorID,
			"The authors have withdrawn the submission."); err != nil {
			return err
		}
		if err := tx.Model(&models.Submission{}).
			Where("submission_id = ?", submissionID).
			Updates(map[string]any{
				"open_for_reporting": false,
				"visible_public":     false,
			}).Error; err != nil {
			return err
		}

		if hadEIC {
			notes = append(notes, notice{TplSubmissionWithdrawn, submissionID, ToEIC(),
				map[string]string{"title": sub.Title}})
		}
		return nil
	})
	if err != nil {
		return err
	}

	dispatchAll(s.notifier, notes)
	return nil
}

// DecisionForSubmission returns the latest decision on a submission.
func (s *DecisionService) DecisionForSubmission(submissionID int) (*models.EditorialDecision, error) {
	var decision models.EditorialDecision
	err := s.db.Preload("Journal").
		Where("submission_id = ?", submissionID).
		Order("version DESC").First(&decision).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("submission %d has no editorial decision", submissionID)
		}
		return nil, err
	}
	return &decision, nil
}

func journalNameByID(tx *gorm.DB, journalID int) (string, error) {
	var journal models.Journal
	if err := tx.First(&journal, journalID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", notFound("journal %d not found", journalID)
		}
		return "", err
	}
	return journal.Name, nil
}
