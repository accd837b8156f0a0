package services

import (
	"testing"

	"peer-review-api/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreassignCreatesOrderedCandidates(t *testing.T) {
	f := newFixture(t)
	sub := f.seedSubmission(models.StatusIncoming)
	fellowA, fellowB := f.seedFellow(), f.seedFellow()

	created, err := f.assignments().Preassign(sub.SubmissionID, f.admin.UserID,
		[]int{fellowA.UserID, fellowB.UserID})
	require.NoError(t, err)
	require.Len(t, created, 2)

	assert.Equal(t, 1, created[0].InvitationOrder)
	assert.Equal(t, 2, created[1].InvitationOrder)
	assert.Equal(t, models.AssignmentPreassigned, created[0].Status)

	got := f.reload(&sub)
	assert.Equal(t, models.StatusSeekingAssignment, got.Status)
	require.NotNil(t, got.AssignmentDeadline)

	// Preassignment is silent: no invitations go out yet.
	assert.Empty(t, f.sent.Codes())
}

func TestPreassignRejectsNonAdmin(t *testing.T) {
	f := newFixture(t)
	sub := f.seedSubmission(models.StatusIncoming)
	fellow := f.seedFellow()

	_, err := f.assignments().Preassign(sub.SubmissionID, fellow.UserID, []int{fellow.UserID})
	assert.ErrorIs(t, err, ErrEligibility)
}

func TestPreassignRejectsConflictedFellow(t *testing.T) {
	f := newFixture(t)
	sub := f.seedSubmission(models.StatusIncoming)
	fellow := f.seedFellow()
	f.declareConflict(fellow.UserID, f.author.UserID)

	_, err := f.assignments().Preassign(sub.SubmissionID, f.admin.UserID, []int{fellow.UserID})
	assert.ErrorIs(t, err, ErrEligibility)
}

func TestAcceptAssignsAndDeprecatesSiblings(t *testing.T) {
	f := newFixture(t)
	sub := f.seedSubmission(models.StatusIncoming)
	fellowA, fellowB := f.seedFellow(), f.seedFellow()

	created, err := f.assignments().Preassign(sub.SubmissionID, f.admin.UserID,
		[]int{fellowA.UserID, fellowB.UserID})
	require.NoError(t, err)

	_, err = f.assignments().SendInvitation(created[0].AssignmentID, f.admin.UserID)
	require.NoError(t, err)

	accepted, err := f.assignments().Respond(created[0].AssignmentID, fellowA.UserID, true, nil)
	require.NoError(t, err)
	assert.Equal(t, models.AssignmentAccepted, accepted.Status)

	got := f.reload(&sub)
	assert.Equal(t, models.StatusAssigned, got.Status)
	require.NotNil(t, got.EditorInChargeID)
	assert.Equal(t, fellowA.UserID, *got.EditorInChargeID)
	assert.True(t, got.OpenForReporting)
	require.NotNil(t, got.ReportingDeadline)

	var sibling models.EditorialAssignment
	require.NoError(t, f.db.First(&sibling, created[1].AssignmentID).Error)
	assert.Equal(t, models.AssignmentDeprecated, sibling.Status)

	assert.Contains(t, f.sent.Codes(), TplEICAppointed)
	assert.Contains(t, f.sent.Codes(), TplAuthorsEICAssigned)
}

func TestDeclineAdvancesToNextCandidateInPriorityMode(t *testing.T) {
	f := newFixture(t)
	sub := f.seedSubmission(models.StatusIncoming)
	fellowA, fellowB := f.seedFellow(), f.seedFellow()

	created, err := f.assignments().Preassign(sub.SubmissionID, f.admin.UserID,
		[]int{fellowA.UserID, fellowB.UserID})
	require.NoError(t, err)
	_, err = f.assignments().SendInvitation(created[0].AssignmentID, f.admin.UserID)
	require.NoError(t, err)

	reason := models.RefusalTooBusy
	_, err = f.assignments().Respond(created[0].AssignmentID, fellowA.UserID, false, &reason)
	require.NoError(t, err)

	// B was auto-invited and can still accept.
	var next models.EditorialAssignment
	require.NoError(t, f.db.First(&next, created[1].AssignmentID).Error)
	assert.Equal(t, models.AssignmentInvited, next.Status)

	accepted, err := f.assignments().Respond(created[1].AssignmentID, fellowB.UserID, true, nil)
	require.NoError(t, err)
	assert.Equal(t, models.AssignmentAccepted, accepted.Status)

	got := f.reload(&sub)
	require.NotNil(t, got.EditorInChargeID)
	assert.Equal(t, fellowB.UserID, *got.EditorInChargeID)

	var declined models.EditorialAssignment
	require.NoError(t, f.db.First(&declined, created[0].AssignmentID).Error)
	assert.Equal(t, models.AssignmentDeclined, declined.Status)
	require.NotNil(t, declined.RefusalReason)
	assert.Equal(t, models.RefusalTooBusy, *declined.RefusalReason)
}

func TestDeclineResponseIsTerminal(t *testing.T) {
	f := newFixture(t)
	sub := f.seedSubmission(models.StatusIncoming)
	fellowA, fellowB := f.seedFellow(), f.seedFellow()

	created, err := f.assignments().Preassign(sub.SubmissionID, f.admin.UserID,
		[]int{fellowA.UserID, fellowB.UserID})
	require.NoError(t, err)
	_, err = f.assignments().SendInvitation(created[0].AssignmentID, f.admin.UserID)
	require.NoError(t, err)
	_, err = f.assignments().Respond(created[0].AssignmentID, fellowA.UserID, false, nil)
	require.NoError(t, err)

	_, err = f.assignments().Respond(created[0].AssignmentID, fellowA.UserID, true, nil)
	assert.ErrorIs(t, err, ErrGuardViolation)
}

func TestLastDeclineFailsAssignment(t *testing.T) {
	f := newFixture(t)
	sub := f.seedSubmission(models.StatusIncoming)
	fellow := f.seedFellow()

	created, err := f.assignments().Preassign(sub.SubmissionID, f.admin.UserID, []int{fellow.UserID})
	require.NoError(t, err)
	_, err = f.assignments().SendInvitation(created[0].AssignmentID, f.admin.UserID)
	require.NoError(t, err)
	_, err = f.assignments().Respond(created[0].AssignmentID, fellow.UserID, false, nil)
	require.NoError(t, err)

	got := f.reload(&sub)
	assert.Equal(t, models.StatusAssignmentFailed, got.Status)
	assert.Contains(t, f.sent.Codes(), TplAssignmentFailed)
}

func TestPriorityModeAllowsOneLiveInvitation(t *testing.T) {
	f := newFixture(t)
	sub := f.seedSubmission(models.StatusIncoming)
	fellowA, fellowB := f.seedFellow(), f.seedFellow()

	created, err := f.assignments().Preassign(sub.SubmissionID, f.admin.UserID,
		[]int{fellowA.UserID, fellowB.UserID})
	require.NoError(t, err)
	_, err = f.assignments().SendInvitation(created[0].AssignmentID, f.admin.UserID)
	require.NoError(t, err)

	_, err = f.assignments().SendInvitation(created[1].AssignmentID, f.admin.UserID)
	assert.ErrorIs(t, err, ErrGuardViolation)
}

func TestVolunteerTakesCharge(t *testing.T) {
	f := newFixture(t)
	sub := f.seedSubmission(models.StatusIncoming)
	fellow := f.seedFellow()
	other := f.seedFellow()
	f.addToPool(&sub, fellow)

	// Move out of pre-screening first.
	_, err := f.assignments().Preassign(sub.SubmissionID, f.admin.UserID, []int{other.UserID})
	require.NoError(t, err)

	assignment, err := f.assignments().Volunteer(sub.SubmissionID, fellow.UserID)
	require.NoError(t, err)
	assert.Equal(t, models.AssignmentAccepted, assignment.Status)

	got := f.reload(&sub)
	assert.Equal(t, models.StatusAssigned, got.Status)
	require.NotNil(t, got.EditorInChargeID)
	assert.Equal(t, fellow.UserID, *got.EditorInChargeID)
}

func TestVolunteerRequiresPoolMembership(t *testing.T) {
	f := newFixture(t)
	sub := f.seedSubmission(models.StatusIncoming)
	outsider := f.seedFellow()
	other := f.seedFellow()

	_, err := f.assignments().Preassign(sub.SubmissionID, f.admin.UserID, []int{other.UserID})
	require.NoError(t, err)

	_, err = f.assignments().Volunteer(sub.SubmissionID, outsider.UserID)
	assert.ErrorIs(t, err, ErrEligibility)
}

func TestReassignPreservesInvitationsAndReports(t *testing.T) {
	f := newFixture(t)
	eic := f.seedFellow()
	replacement := f.seedFellow()
	sub := f.assignedSubmission(eic)
	f.addToPool(&sub, replacement)

	invitation, err := f.refereeing().InviteReferee(sub.SubmissionID, eic.UserID,
		RefereeDetails{FirstName: "Rita", LastName: "Reviewer", Email: "rita@example.org"}, true)
	require.NoError(t, err)

	assignment, err := f.assignments().Reassign(sub.SubmissionID, replacement.UserID, f.admin.UserID)
	require.NoError(t, err)
	assert.Equal(t, models.AssignmentAccepted, assignment.Status)

	got := f.reload(&sub)
	require.NotNil(t, got.EditorInChargeID)
	assert.Equal(t, replacement.UserID, *got.EditorInChargeID)

	// The referee invitation survives the editor change.
	var inv models.RefereeInvitation
	require.NoError(t, f.db.First(&inv, invitation.InvitationID).Error)
	assert.False(t, inv.Cancelled)

	var old models.EditorialAssignment
	require.NoError(t, f.db.Where("submission_id = ? AND editor_id = ?", sub.SubmissionID, eic.UserID).
		Order("assignment_id DESC").First(&old).Error)
	assert.Equal(t, models.AssignmentDeprecated, old.Status)
}

func TestBroadcastModeRunsConcurrentInvitations(t *testing.T) {
	f := newFixture(t)
	f.journal = f.seedJournal(models.AssignmentModeBroadcast)
	first := f.seedFellow()
	second := f.seedFellow()
	third := f.seedFellow()
	sub := f.seedSubmission(models.StatusIncoming)

	created, err := f.assignments().Preassign(sub.SubmissionID, f.admin.UserID,
		[]int{first.UserID, second.UserID, third.UserID})
	require.NoError(t, err)
	require.Len(t, created, 3)

	// All three invitations go out at once.
	for _, assignment := range created {
		_, err := f.assignments().SendInvitation(assignment.AssignmentID, f.admin.UserID)
		require.NoError(t, err)
	}

	// A decline does not auto-advance anything: the others are already out
	// and the submission keeps seeking.
	_, err = f.assignments().Respond(created[0].AssignmentID, first.UserID, false, nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSeekingAssignment, f.reload(&sub).Status)

	var invited int64
	require.NoError(t, f.db.Model(&models.EditorialAssignment{}).
		Where("submission_id = ? AND status = ?", sub.SubmissionID, models.AssignmentInvited).
		Count(&invited).Error)
	assert.EqualValues(t, 2, invited)

	// First accept wins the submission.
	_, err = f.assignments().Respond(created[1].AssignmentID, second.UserID, true, nil)
	require.NoError(t, err)

	got := f.reload(&sub)
	assert.Equal(t, models.StatusAssigned, got.Status)
	require.NotNil(t, got.EditorInChargeID)
	assert.Equal(t, second.UserID, *got.EditorInChargeID)

	// The race loser's accept lands on a deprecated row.
	_, err = f.assignments().Respond(created[2].AssignmentID, third.UserID, true, nil)
	assert.ErrorIs(t, err, ErrGuardViolation)
}
