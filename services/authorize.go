package services

import (
	"errors"

	"peer-review-api/models"

	"gorm.io/gorm"
)

// Operations gated by the authorization predicate. Each service entry point
// evaluates Authorize exactly once; no handler-level permission stacking.
const (
	OpPreassign        = "assignment.preassign"
	OpSendInvitation   = "assignment.send_invitation"
	OpReassign         = "assignment.reassign"
	OpChooseCycle      = "refereeing.choose_cycle"
	OpInviteReferee    = "refereeing.invite_referee"
	OpCancelInvitation = "refereeing.cancel_invitation"
	OpRemindReferee    = "refereeing.remind_referee"
	OpVetReport        = "refereeing.vet_report"
	OpCloseRound       = "refereeing.close_round"
	OpExtendDeadline   = "refereeing.extend_deadline"
	OpRestartCycle     = "refereeing.restart_cycle"
	OpFormulate        = "recommendation.formulate"
	OpPrepareVoting    = "recommendation.prepare_for_voting"
	OpReformulate      = "recommendation.reformulate"
	OpFixDecision      = "decision.fix"
)

// adminOnly lists the operations reserved for editorial administration.
var adminOnly = map[string]bool{
	OpPreassign:      true,
	OpSendInvitation: true,
	OpReassign:       true,
	OpPrepareVoting:  true,
	OpRestartCycle:   true,
	OpFixDecision:    true,
}

// Authorize is the single capability check evaluated per operation: a
// predicate over (actor, submission, operation). Editorial admins may perform
// any operation; the remaining operations require the actor to be the
// submission's editor-in-charge.
func Authorize(actor *models.User, sub *models.Submission, op string) error {
	if actor == nil {
		return notEligible("operation %s requires an acting user", op)
	}
	if actor.RoleID == models.RoleEditorialAdmin {
		return nil
	}
	if adminOnly[op] {
		return notEligible("operation %s requires editorial administration", op)
	}
	if sub.EditorInChargeID != nil && *sub.EditorInChargeID == actor.UserID {
		return nil
	}
	return notEligible("operation %s is restricted to the editor-in-charge", op)
}

func loadUser(tx *gorm.DB, userID int) (*models.User, error) {
	var user models.User
	err := tx.Where("user_id = ? AND delete_at IS NULL", userID).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("user %d not found", userID)
		}
		return nil, err
	}
	return &user, nil
}
