package services

import (
	"testing"
	"time"

	"peer-review-api/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChooseCycleBeforeInvitationsOnly(t *testing.T) {
	f := newFixture(t)
	eic := f.seedFellow()
	sub := f.assignedSubmission(eic)

	require.NoError(t, f.refereeing().ChooseCycle(sub.SubmissionID, eic.UserID, models.CycleShort))

	_, err := f.refereeing().InviteReferee(sub.SubmissionID, eic.UserID,
		RefereeDetails{FirstName: "Rita", LastName: "Reviewer", Email: "rita@example.org"}, true)
	require.NoError(t, err)

	err = f.refereeing().ChooseCycle(sub.SubmissionID, eic.UserID, models.CycleDefault)
	assert.ErrorIs(t, err, ErrGuardViolation)
}

func TestDirectRecCycleClosesReporting(t *testing.T) {
	f := newFixture(t)
	eic := f.seedFellow()
	sub := f.assignedSubmission(eic)

	require.NoError(t, f.refereeing().ChooseCycle(sub.SubmissionID, eic.UserID, models.CycleDirectRec))

	got := f.reload(&sub)
	assert.False(t, got.OpenForReporting)
	assert.Equal(t, models.CycleDirectRec, got.RefereeingCycle)

	_, err := f.refereeing().InviteReferee(sub.SubmissionID, eic.UserID,
		RefereeDetails{FirstName: "Rita", LastName: "Reviewer", Email: "rita@example.org"}, true)
	assert.ErrorIs(t, err, ErrGuardViolation)
}

func TestInviteRefereeRejectsConflictAndDuplicate(t *testing.T) {
	f := newFixture(t)
	eic := f.seedFellow()
	referee := f.seedUser(models.RoleAuthor)
	sub := f.assignedSubmission(eic)

	f.declareConflict(referee.UserID, f.author.UserID)
	_, err := f.refereeing().InviteReferee(sub.SubmissionID, eic.UserID,
		RefereeDetails{ProfileID: referee.UserID}, true)
	assert.ErrorIs(t, err, ErrEligibility)

	clean := f.seedUser(models.RoleAuthor)
	first, err := f.refereeing().InviteReferee(sub.SubmissionID, eic.UserID,
		RefereeDetails{ProfileID: clean.UserID}, true)
	require.NoError(t, err)
	assert.NotEmpty(t, first.InvitationKey)

	_, err = f.refereeing().InviteReferee(sub.SubmissionID, eic.UserID,
		RefereeDetails{ProfileID: clean.UserID}, true)
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestReinviteAfterCancelCreatesFreshInvitation(t *testing.T) {
	f := newFixture(t)
	eic := f.seedFellow()
	referee := f.seedUser(models.RoleAuthor)
	sub := f.assignedSubmission(eic)

	first, err := f.refereeing().InviteReferee(sub.SubmissionID, eic.UserID,
		RefereeDetails{ProfileID: referee.UserID}, true)
	require.NoError(t, err)
	require.NoError(t, f.refereeing().CancelInvitation(first.InvitationID, eic.UserID))

	second, err := f.refereeing().InviteReferee(sub.SubmissionID, eic.UserID,
		RefereeDetails{ProfileID: referee.UserID}, true)
	require.NoError(t, err)

	// A new row with a new key; the cancelled one stays in the record.
	assert.NotEqual(t, first.InvitationID, second.InvitationID)
	assert.NotEqual(t, first.InvitationKey, second.InvitationKey)
	assert.False(t, second.Cancelled)
	assert.Nil(t, second.Accepted)
	assert.Zero(t, second.NrReminders)

	var old models.RefereeInvitation
	require.NoError(t, f.db.First(&old, first.InvitationID).Error)
	assert.True(t, old.Cancelled)
	assert.Equal(t, first.InvitationKey, old.InvitationKey)

	// The old key no longer answers.
	_, err = f.refereeing().RespondToInvitation(first.InvitationKey, true, nil)
	assert.ErrorIs(t, err, ErrGuardViolation)

	// Still only one live invitation per referee.
	_, err = f.refereeing().InviteReferee(sub.SubmissionID, eic.UserID,
		RefereeDetails{ProfileID: referee.UserID}, true)
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestInvitationResponseIsTerminal(t *testing.T) {
	f := newFixture(t)
	eic := f.seedFellow()
	sub := f.assignedSubmission(eic)

	invitation, err := f.refereeing().InviteReferee(sub.SubmissionID, eic.UserID,
		RefereeDetails{FirstName: "Rita", LastName: "Reviewer", Email: "rita@example.org"}, true)
	require.NoError(t, err)

	answered, err := f.refereeing().RespondToInvitation(invitation.InvitationKey, true, nil)
	require.NoError(t, err)
	require.NotNil(t, answered.Accepted)
	assert.True(t, *answered.Accepted)

	_, err = f.refereeing().RespondToInvitation(invitation.InvitationKey, false, nil)
	assert.ErrorIs(t, err, ErrGuardViolation)
}

func TestResponseAfterReportingClosedExpires(t *testing.T) {
	f := newFixture(t)
	eic := f.seedFellow()
	sub := f.assignedSubmission(eic)

	invitation, err := f.refereeing().InviteReferee(sub.SubmissionID, eic.UserID,
		RefereeDetails{FirstName: "Rita", LastName: "Reviewer", Email: "rita@example.org"}, true)
	require.NoError(t, err)

	require.NoError(t, f.refereeing().CloseRound(sub.SubmissionID, eic.UserID))

	_, err = f.refereeing().RespondToInvitation(invitation.InvitationKey, true, nil)
	assert.ErrorIs(t, err, ErrDeadlineExpired)
}

func TestLateAcceptHonoredWhileReportingOpen(t *testing.T) {
	f := newFixture(t)
	eic := f.seedFellow()
	sub := f.assignedSubmission(eic)

	invitation, err := f.refereeing().InviteReferee(sub.SubmissionID, eic.UserID,
		RefereeDetails{FirstName: "Rita", LastName: "Reviewer", Email: "rita@example.org"}, true)
	require.NoError(t, err)

	// Weeks pass, reporting still open.
	f.clock.advance(20 * 24 * time.Hour)

	answered, err := f.refereeing().RespondToInvitation(invitation.InvitationKey, true, nil)
	require.NoError(t, err)
	require.NotNil(t, answered.Accepted)
	assert.True(t, *answered.Accepted)
}

func TestReportLifecycle(t *testing.T) {
	f := newFixture(t)
	eic := f.seedFellow()
	referee := f.seedUser(models.RoleAuthor)
	sub := f.assignedSubmission(eic)

	content := ReportContent{
		Qualification:  3,
		Report:         "A thorough study; minor issues in section 4.",
		Recommendation: models.RecommendationMinorRevision,
	}
	draft, err := f.refereeing().SubmitReport(sub.SubmissionID, referee.UserID, content)
	require.NoError(t, err)
	assert.Equal(t, models.ReportDraft, draft.Status)
	assert.Equal(t, 1, draft.ReportNr)

	// Re-submission updates the same draft.
	content.Report = "A thorough study; serious issues in section 4."
	again, err := f.refereeing().SubmitReport(sub.SubmissionID, referee.UserID, content)
	require.NoError(t, err)
	assert.Equal(t, draft.ReportID, again.ReportID)

	finalized, err := f.refereeing().FinalizeReport(draft.ReportID, referee.UserID)
	require.NoError(t, err)
	assert.Equal(t, models.ReportUnvetted, finalized.Status)
	assert.Contains(t, f.sent.Codes(), TplReportDelivered)

	vetted, err := f.refereeing().VetReport(draft.ReportID, eic.UserID, true, nil)
	require.NoError(t, err)
	assert.Equal(t, models.ReportVetted, vetted.Status)
	assert.Contains(t, f.sent.Codes(), TplReportVetted)
}

func TestAuthorsCannotRefereeOwnSubmission(t *testing.T) {
	f := newFixture(t)
	eic := f.seedFellow()
	sub := f.assignedSubmission(eic)

	_, err := f.refereeing().SubmitReport(sub.SubmissionID, f.author.UserID, ReportContent{
		Report:         "Looks great to me.",
		Recommendation: models.RecommendationTier1,
	})
	assert.ErrorIs(t, err, ErrEligibility)
}

func TestDraftLeftAtCloseStaysInvisible(t *testing.T) {
	f := newFixture(t)
	eic := f.seedFellow()
	referee := f.seedUser(models.RoleAuthor)
	sub := f.assignedSubmission(eic)

	draft, err := f.refereeing().SubmitReport(sub.SubmissionID, referee.UserID, ReportContent{
		Report:         "Half-written thoughts.",
		Recommendation: models.RecommendationTier2,
	})
	require.NoError(t, err)

	require.NoError(t, f.refereeing().CloseRound(sub.SubmissionID, eic.UserID))

	_, err = f.refereeing().FinalizeReport(draft.ReportID, referee.UserID)
	assert.ErrorIs(t, err, ErrDeadlineExpired)

	reports, err := f.refereeing().VettedReports(sub.SubmissionID)
	require.NoError(t, err)
	assert.Empty(t, reports)
}

func TestVetReportRequiresHandlingEditor(t *testing.T) {
	f := newFixture(t)
	eic := f.seedFellow()
	bystander := f.seedFellow()
	referee := f.seedUser(models.RoleAuthor)
	sub := f.assignedSubmission(eic)

	draft, err := f.refereeing().SubmitReport(sub.SubmissionID, referee.UserID, ReportContent{
		Report:         "Fine work.",
		Recommendation: models.RecommendationTier2,
	})
	require.NoError(t, err)
	_, err = f.refereeing().FinalizeReport(draft.ReportID, referee.UserID)
	require.NoError(t, err)

	_, err = f.refereeing().VetReport(draft.ReportID, bystander.UserID, true, nil)
	assert.ErrorIs(t, err, ErrEligibility)
}

func TestRefuseReportIsTerminal(t *testing.T) {
	f := newFixture(t)
	eic := f.seedFellow()
	referee := f.seedUser(models.RoleAuthor)
	sub := f.assignedSubmission(eic)

	draft, err := f.refereeing().SubmitReport(sub.SubmissionID, referee.UserID, ReportContent{
		Report:         "Unrelated rant.",
		Recommendation: models.RecommendationReject,
	})
	require.NoError(t, err)
	_, err = f.refereeing().FinalizeReport(draft.ReportID, referee.UserID)
	require.NoError(t, err)

	reason := models.ReportRefusalNotAcademic
	refused, err := f.refereeing().VetReport(draft.ReportID, eic.UserID, false, &reason)
	require.NoError(t, err)
	assert.Equal(t, models.ReportRefused, refused.Status)

	_, err = f.refereeing().VetReport(draft.ReportID, eic.UserID, true, nil)
	assert.ErrorIs(t, err, ErrGuardViolation)
}

func TestExtendDeadlineReopensReporting(t *testing.T) {
	f := newFixture(t)
	eic := f.seedFellow()
	sub := f.assignedSubmission(eic)

	require.NoError(t, f.refereeing().CloseRound(sub.SubmissionID, eic.UserID))
	assert.False(t, f.reload(&sub).OpenForReporting)

	require.NoError(t, f.refereeing().ExtendDeadline(sub.SubmissionID, eic.UserID, 14))

	got := f.reload(&sub)
	assert.True(t, got.OpenForReporting)
	require.NotNil(t, got.ReportingDeadline)
	assert.True(t, got.ReportingDeadline.After(f.clock.Now()))
}

func TestRestartCycleReopensAndDeprecatesRecommendation(t *testing.T) {
	f := newFixture(t)
	eic := f.seedFellow()
	sub := f.assignedSubmission(eic)

	require.NoError(t, f.refereeing().CloseRound(sub.SubmissionID, eic.UserID))
	rec, err := f.voting().Formulate(sub.SubmissionID, eic.UserID, RecommendationContent{
		Recommendation: models.RecommendationTier2,
		ForJournalID:   f.journal.JournalID,
	})
	require.NoError(t, err)

	require.NoError(t, f.refereeing().RestartCycle(sub.SubmissionID, f.admin.UserID,
		"the reports conflict and more input is needed"))

	got := f.reload(&sub)
	assert.Equal(t, models.StatusAssigned, got.Status)
	assert.True(t, got.OpenForReporting)

	var gotRec models.EICRecommendation
	require.NoError(t, f.db.First(&gotRec, rec.RecommendationID).Error)
	assert.Equal(t, models.RecDeprecated, gotRec.Status)
}
