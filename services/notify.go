package services

import (
	"fmt"
	"html/template"
	"log"
	"strings"
	"sync"
	"time"

	"peer-review-api/config"
	"peer-review-api/models"

	"gorm.io/gorm"
)

// Notification template codes, one per lifecycle transition that notifies
// someone.
const (
	TplAssignmentInvitation   = "assignment/invitation"
	TplEICAppointed           = "assignment/eic_appointed"
	TplAuthorsEICAssigned     = "authors/eic_assigned"
	TplAssignmentFailed       = "authors/assignment_failed"
	TplRefereeInvitation      = "referees/invitation"
	TplRefereeReminder        = "referees/invitation_reminder"
	TplRefereeUnresponsive    = "eic/referee_unresponsive"
	TplRefereeDeadlineWeek    = "referees/deadline_one_week"
	TplInvitationCancelled    = "referees/invitation_cancelled"
	TplReportDelivered        = "eic/report_delivered"
	TplReportVetted           = "referees/report_vetted"
	TplReportRefused          = "referees/report_refused"
	TplRevisionRequested      = "authors/revision_requested"
	TplVotingOpened           = "fellows/voting_opened"
	TplVoteReminder           = "fellows/vote_reminder"
	TplDecisionAccepted       = "authors/decision_accepted"
	TplDecisionOfferPending   = "authors/decision_offer_pending"
	TplDecisionOfferAccepted  = "authors/decision_offer_accepted"
	TplDecisionRejected       = "authors/decision_rejected"
	TplProductionHandoff      = "production/handoff"
	TplSubmissionWithdrawn    = "eic/submission_withdrawn"
	TplVotingDeadlinePassed   = "eic/voting_deadline_passed"
)

type messageTemplate struct {
	Title string
	Body  string
}

// Inline template registry; the rendering pipeline for rich mail templates is
// an external collaborator, these cover the transition notifications the core
// owes.
var messageTemplates = map[string]messageTemplate{
	TplAssignmentInvitation:  {"Invitation to handle a submission", "You have been invited to become Editor-in-charge of \"{{title}}\". Please accept or decline."},
	TplEICAppointed:          {"You are now Editor-in-charge", "Thank you for becoming Editor-in-charge of \"{{title}}\"."},
	TplAuthorsEICAssigned:    {"Editor-in-charge assigned", "An Editor-in-charge has been assigned to your submission \"{{title}}\". Refereeing is now underway."},
	TplAssignmentFailed:      {"Assignment unsuccessful", "We could not find an Editor-in-charge for your submission \"{{title}}\". The submission has been removed from consideration."},
	TplRefereeInvitation:     {"Refereeing invitation", "You have been invited to referee \"{{title}}\". Respond using your personal link."},
	TplRefereeReminder:       {"Reminder: refereeing invitation", "A reminder of your pending refereeing invitation for \"{{title}}\"."},
	TplRefereeUnresponsive:   {"Referee unresponsive", "Referee {{referee}} has not responded to the invitation for \"{{title}}\". Consider cancelling and inviting a replacement."},
	TplRefereeDeadlineWeek:   {"Reporting deadline approaching", "The reporting deadline for \"{{title}}\" is one week away."},
	TplInvitationCancelled:   {"Refereeing invitation cancelled", "Your refereeing invitation for \"{{title}}\" has been cancelled. No further action is needed."},
	TplReportDelivered:       {"Report delivered", "{{referee}} has delivered a report on \"{{title}}\". Please vet it."},
	TplReportVetted:          {"Your report has been vetted", "Your report on \"{{title}}\" has been accepted and is now visible."},
	TplReportRefused:         {"Your report was not accepted", "Your report on \"{{title}}\" was not accepted: {{reason}}."},
	TplRevisionRequested:     {"Revision requested", "The Editor-in-charge has requested a revised version of \"{{title}}\". Please consult the requested changes and resubmit."},
	TplVotingOpened:          {"Recommendation put to voting", "The editorial recommendation on \"{{title}}\" is open for your vote."},
	TplVoteReminder:          {"Reminder: vote pending", "Your vote on the recommendation for \"{{title}}\" is still pending."},
	TplDecisionAccepted:      {"Submission accepted", "Your submission \"{{title}}\" has been accepted for publication in {{journal}}."},
	TplDecisionOfferPending:  {"Publication offer", "Your submission \"{{title}}\" has been offered publication in {{journal}}. The offer requires your explicit acceptance."},
	TplDecisionOfferAccepted: {"Publication offer accepted", "Your acceptance of the publication offer for \"{{title}}\" has been registered."},
	TplDecisionRejected:      {"Submission not accepted", "Your submission \"{{title}}\" has not been accepted for publication."},
	TplProductionHandoff:     {"Accepted submission ready for production", "Submission \"{{title}}\" has been accepted and handed off to production."},
	TplSubmissionWithdrawn:   {"Submission withdrawn", "The authors have withdrawn \"{{title}}\". All outstanding tasks for it are cancelled."},
	TplVotingDeadlinePassed:  {"Voting deadline passed", "The voting deadline on the recommendation for \"{{title}}\" has passed. Please round up the voting."},
}

// Recipient resolution is an enumerated tagged variant: an explicit address, a
// role-based list, or a party derived from the submission. No dotted-path
// traversal of domain objects.
type RecipientKind int

const (
	RecipientUser RecipientKind = iota
	RecipientAddress
	RecipientRole
	RecipientSubmissionAuthors
	RecipientSubmissionEIC
)

type Recipient struct {
	Kind    RecipientKind
	UserID  int
	Address string
	RoleID  int
}

func ToUser(userID int) Recipient     { return Recipient{Kind: RecipientUser, UserID: userID} }
func ToAddress(addr string) Recipient { return Recipient{Kind: RecipientAddress, Address: addr} }
func ToRole(roleID int) Recipient     { return Recipient{Kind: RecipientRole, RoleID: roleID} }
func ToAuthors() Recipient            { return Recipient{Kind: RecipientSubmissionAuthors} }
func ToEIC() Recipient                { return Recipient{Kind: RecipientSubmissionEIC} }

// Notifier dispatches a templated notification. Dispatch is fire-and-forget:
// it must never block or fail the transition that triggered it.
type Notifier interface {
	Notify(code string, submissionID int, recipient Recipient, vars map[string]string)
}

// MailNotifier writes in-app notification rows and sends mail over SMTP.
type MailNotifier struct {
	db       *gorm.DB
	clock    Clock
	sendMail func(to []string, subject, html string) error

	// wg lets tests wait for in-flight dispatches.
	wg sync.WaitGroup
}

func NewMailNotifier(db *gorm.DB, clock Clock) *MailNotifier {
	if db == nil {
		db = config.DB
	}
	if clock == nil {
		clock = SystemClock
	}
	return &MailNotifier{db: db, clock: clock, sendMail: config.SendMail}
}

// Notify resolves recipients and dispatches in the background. Failures are
// logged, never propagated: the transition that produced the notification has
// already committed.
func (n *MailNotifier) Notify(code string, submissionID int, recipient Recipient, vars map[string]string) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		if err := n.dispatch(code, submissionID, recipient, vars); err != nil {
			log.Printf("notification dispatch failed (code=%s submission=%d): %v",
				code, submissionID, err)
		}
	}()
}

// Wait blocks until all in-flight dispatches finish. Test helper.
func (n *MailNotifier) Wait() { n.wg.Wait() }

func (n *MailNotifier) dispatch(code string, submissionID int, recipient Recipient, vars map[string]string) error {
	tmpl, ok := messageTemplates[code]
	if !ok {
		return fmt.Errorf("notification template missing for %s", code)
	}

	users, addresses, err := n.resolveRecipients(submissionID, recipient)
	if err != nil {
		return err
	}

	title := applyPlaceholders(tmpl.Title, vars)
	body := applyPlaceholders(tmpl.Body, vars)

	subID := uint(submissionID)
	for _, user := range users {
		row := models.Notification{
			UserID:              uint(user.UserID),
			Title:               title,
			Message:             body,
			Type:                "info",
			RelatedSubmissionID: &subID,
			CreateAt:            n.clock.Now(),
		}
		if err := n.db.Create(&row).Error; err != nil {
			log.Printf("notification row insert failed (user=%d code=%s): %v", user.UserID, code, err)
		}
		addresses = append(addresses, user.Email)
	}

	if len(addresses) == 0 {
		return nil
	}
	if err := n.sendMail(addresses, title, renderMailHTML(title, body)); err != nil {
		log.Printf("notification email send failed (subject=%q to=%v): %v", title, addresses, err)
	}
	return nil
}

func (n *MailNotifier) resolveRecipients(submissionID int, recipient Recipient) ([]models.User, []string, error) {
	switch recipient.Kind {
	case RecipientAddress:
		return nil, []string{recipient.Address}, nil

	case RecipientUser:
		var user models.User
		if err := n.db.Where("user_id = ? AND delete_at IS NULL", recipient.UserID).First(&user).Error; err != nil {
			return nil, nil, err
		}
		return []models.User{user}, nil, nil

	case RecipientRole:
		var users []models.User
		if err := n.db.Where("role_id = ? AND delete_at IS NULL", recipient.RoleID).Find(&users).Error; err != nil {
			return nil, nil, err
		}
		return users, nil, nil

	case RecipientSubmissionAuthors:
		var sub models.Submission
		if err := n.db.Preload("Authors").First(&sub, submissionID).Error; err != nil {
			return nil, nil, err
		}
		users := sub.Authors
		seen := false
		for _, u := range users {
			if u.UserID == sub.SubmittedBy {
				seen = true
			}
		}
		if !seen {
			var submitter models.User
			if err := n.db.First(&submitter, sub.SubmittedBy).Error; err == nil {
				users = append(users, submitter)
			}
		}
		return users, nil, nil

	case RecipientSubmissionEIC:
		var sub models.Submission
		if err := n.db.First(&sub, submissionID).Error; err != nil {
			return nil, nil, err
		}
		if sub.EditorInChargeID == nil {
			return nil, nil, fmt.Errorf("submission %d has no editor-in-charge", submissionID)
		}
		var eic models.User
		if err := n.db.First(&eic, *sub.EditorInChargeID).Error; err != nil {
			return nil, nil, err
		}
		return []models.User{eic}, nil, nil
	}
	return nil, nil, fmt.Errorf("unknown recipient kind %d", recipient.Kind)
}

func applyPlaceholders(text string, vars map[string]string) string {
	result := text
	for key, value := range vars {
		result = strings.ReplaceAll(result, "{{"+key+"}}", value)
	}
	return result
}

func renderMailHTML(subject, message string) string {
	escapedSubject := template.HTMLEscapeString(subject)
	escapedMessage := template.HTMLEscapeString(strings.TrimSpace(message))
	escapedMessage = strings.ReplaceAll(strings.ReplaceAll(escapedMessage, "\r\n", "\n"), "\r", "\n")
	escapedMessage = strings.ReplaceAll(escapedMessage, "\n", "<br />")

	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>%s</title>
</head>
<body style="margin:0;padding:0;background-color:#f9fafb;font-family:'Segoe UI',Tahoma,Arial,sans-serif;">
<div style="max-width:640px;margin:0 auto;padding:24px 20px;">
  <div style="background-color:#ffffff;border:1px solid #e5e7eb;border-radius:12px;padding:24px;">
    <p style="margin:0;font-size:16px;line-height:1.7;color:#111827;word-break:break-word;">%s</p>
  </div>
</div>
</body>
</html>`, escapedSubject, escapedMessage)
}

// recordedNotification and RecordingNotifier support tests and offline runs.
type recordedNotification struct {
	Code         string
	SubmissionID int
	Recipient    Recipient
	Vars         map[string]string
	At           time.Time
}

type RecordingNotifier struct {
	mu    sync.Mutex
	clock Clock
	Sent  []recordedNotification
}

func NewRecordingNotifier(clock Clock) *RecordingNotifier {
	if clock == nil {
		clock = SystemClock
	}
	return &RecordingNotifier{clock: clock}
}

func (r *RecordingNotifier) Notify(code string, submissionID int, recipient Recipient, vars map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Sent = append(r.Sent, recordedNotification{
		Code:         code,
		SubmissionID: submissionID,
		Recipient:    recipient,
		Vars:         vars,
		At:           r.clock.Now(),
	})
}

// Codes returns the template codes sent so far, in order.
func (r *RecordingNotifier) Codes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	codes := make([]string, len(r.Sent))
	for i, s := range r.Sent {
		codes[i] = s.Code
	}
	return codes
}
