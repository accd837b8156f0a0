package services

import (
	"testing"
	"time"

	"peer-review-api/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pendingInvitation(t *testing.T, f *fixture, eic models.User, sub models.Submission) *models.RefereeInvitation {
	t.Helper()
	invitation, err := f.refereeing().InviteReferee(sub.SubmissionID, eic.UserID,
		RefereeDetails{FirstName: "Rita", LastName: "Reviewer", Email: "rita@example.org"}, true)
	require.NoError(t, err)
	return invitation
}

func TestSweepRemindsAtTwoAndFourWorkdays(t *testing.T) {
	f := newFixture(t)
	eic := f.seedFellow()
	sub := f.assignedSubmission(eic)
	invitation := pendingInvitation(t, f, eic, sub)

	// Monday + 2 days = Wednesday: 2 workdays.
	f.clock.advance(48 * time.Hour)
	report := f.sweep().Run()
	assert.Equal(t, 1, report.RefereeReminders)

	// Same day re-run is a no-op.
	report = f.sweep().Run()
	assert.Zero(t, report.RefereeReminders)

	var inv models.RefereeInvitation
	require.NoError(t, f.db.First(&inv, invitation.InvitationID).Error)
	assert.Equal(t, 1, inv.NrReminders)

	// Friday: 4 workdays after the invite.
	f.clock.advance(48 * time.Hour)
	report = f.sweep().Run()
	assert.Equal(t, 1, report.RefereeReminders)

	require.NoError(t, f.db.First(&inv, invitation.InvitationID).Error)
	assert.Equal(t, 2, inv.NrReminders)
}

func TestSweepAlertsEICAfterSixWorkdays(t *testing.T) {
	f := newFixture(t)
	eic := f.seedFellow()
	sub := f.assignedSubmission(eic)
	pendingInvitation(t, f, eic, sub)

	f.clock.advance(48 * time.Hour) // Wed, reminder 1
	f.sweep().Run()
	f.clock.advance(48 * time.Hour) // Fri, reminder 2
	f.sweep().Run()
	f.clock.advance(4 * 24 * time.Hour) // Tue next week: 6 workdays
	f.sent.Sent = nil

	report := f.sweep().Run()
	assert.Equal(t, 1, report.UnresponsiveAlerts)
	assert.Contains(t, f.sent.Codes(), TplRefereeUnresponsive)

	// The alert fires once per invitation, never again on later passes.
	f.clock.advance(3 * 24 * time.Hour) // Fri: three more workdays
	f.sent.Sent = nil
	report = f.sweep().Run()
	assert.Zero(t, report.UnresponsiveAlerts)
	assert.NotContains(t, f.sent.Codes(), TplRefereeUnresponsive)
}

func TestSweepHonorsAutoReminderOptOut(t *testing.T) {
	f := newFixture(t)
	eic := f.seedFellow()
	sub := f.assignedSubmission(eic)
	invitation := pendingInvitation(t, f, eic, sub)
	require.NoError(t, f.refereeing().SetAutoReminders(invitation.InvitationID, eic.UserID, false))

	f.clock.advance(48 * time.Hour)
	report := f.sweep().Run()
	assert.Zero(t, report.RefereeReminders)
}

func TestSweepSkipsAnsweredInvitations(t *testing.T) {
	f := newFixture(t)
	eic := f.seedFellow()
	sub := f.assignedSubmission(eic)
	invitation := pendingInvitation(t, f, eic, sub)

	_, err := f.refereeing().RespondToInvitation(invitation.InvitationKey, false, nil)
	require.NoError(t, err)

	f.clock.advance(48 * time.Hour)
	report := f.sweep().Run()
	assert.Zero(t, report.RefereeReminders)
}

func TestSweepWarnsBeforeReportingDeadline(t *testing.T) {
	f := newFixture(t)
	eic := f.seedFellow()
	sub := f.assignedSubmission(eic)
	invitation := pendingInvitation(t, f, eic, sub)

	_, err := f.refereeing().RespondToInvitation(invitation.InvitationKey, true, nil)
	require.NoError(t, err)

	// Move to within five workdays of the 28-day deadline.
	f.clock.advance(25 * 24 * time.Hour)
	f.sent.Sent = nil

	report := f.sweep().Run()
	assert.Equal(t, 1, report.DeadlineWarnings)
	assert.Contains(t, f.sent.Codes(), TplRefereeDeadlineWeek)

	// Idempotent.
	report = f.sweep().Run()
	assert.Zero(t, report.DeadlineWarnings)
}

func TestSweepFailsExpiredAssignments(t *testing.T) {
	f := newFixture(t)
	sub := f.seedSubmission(models.StatusIncoming)
	fellow := f.seedFellow()

	_, err := f.assignments().Preassign(sub.SubmissionID, f.admin.UserID, []int{fellow.UserID})
	require.NoError(t, err)

	// Past the 5-day assignment deadline, invitation never sent.
	f.clock.advance(6 * 24 * time.Hour)
	report := f.sweep().Run()
	assert.Equal(t, 1, report.AssignmentsFailed)

	got := f.reload(&sub)
	assert.Equal(t, models.StatusAssignmentFailed, got.Status)
	assert.Contains(t, f.sent.Codes(), TplAssignmentFailed)

	// Re-run does nothing.
	report = f.sweep().Run()
	assert.Zero(t, report.AssignmentsFailed)
}

func TestSweepSparesAssignmentsWithLiveInvitation(t *testing.T) {
	f := newFixture(t)
	sub := f.seedSubmission(models.StatusIncoming)
	fellow := f.seedFellow()

	created, err := f.assignments().Preassign(sub.SubmissionID, f.admin.UserID, []int{fellow.UserID})
	require.NoError(t, err)
	_, err = f.assignments().SendInvitation(created[0].AssignmentID, f.admin.UserID)
	require.NoError(t, err)

	f.clock.advance(6 * 24 * time.Hour)
	report := f.sweep().Run()
	assert.Zero(t, report.AssignmentsFailed)
	assert.Equal(t, models.StatusSeekingAssignment, f.reload(&sub).Status)
}

func TestSweepFlagsExpiredVotingOnce(t *testing.T) {
	f := newFixture(t)
	eic := f.seedFellow()
	voter := f.seedFellow()
	sub, _ := votingFixture(t, f, eic, voter)

	// Past the 7-day voting deadline.
	f.clock.advance(8 * 24 * time.Hour)
	f.sent.Sent = nil

	report := f.sweep().Run()
	assert.Equal(t, 1, report.VotingDeadlineNotes)
	assert.Contains(t, f.sent.Codes(), TplVotingDeadlinePassed)
	assert.Equal(t, models.StatusPutToVoting, f.reload(&sub).Status)

	report = f.sweep().Run()
	assert.Zero(t, report.VotingDeadlineNotes)
}
