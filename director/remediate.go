package director

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tjobarow/okta-fastpass-deployment-toolkit/mail"
	"github.com/tjobarow/okta-fastpass-deployment-toolkit/okta"
	"github.com/tjobarow/okta-fastpass-deployment-toolkit/types"
)

// Remediator drives the remediation workflows against a scan artifact. The
// ledger database makes every workflow idempotent per wave: users already
// recorded for a wave and action are skipped on re-runs, so a crashed run
// can be restarted against the same CSV without double-sending email or
// double-resetting factors.
type Remediator struct {
	client   okta.ClientAPI
	mailer   mail.Sender
	database *gorm.DB
	wave     string

	ProactiveTemplatePath  string
	EnrollmentTemplatePath string
	AttachmentPath         string
}

// RemediationSummary is the outcome of one remediation pass
type RemediationSummary struct {
	Wave        string
	Processed   int
	AlreadyDone int
	Failed      int
}

// NewRemediator builds a remediator for one wave
func NewRemediator(client okta.ClientAPI, mailer mail.Sender, database *gorm.DB, wave string) *Remediator {
	return &Remediator{
		client:   client,
		mailer:   mailer,
		database: database,
		wave:     wave,
	}
}

// alreadyProcessed reports whether a successful event for this wave, user
// and action is already in the ledger
func (r *Remediator) alreadyProcessed(userID string, action types.RemediationAction) (bool, error) {
	var count int64
	err := r.database.Model(&types.RemediationEvent{}).
		Where("wave = ? AND user_id = ? AND action = ? AND succeeded = ?", r.wave, userID, action, true).
		Count(&count).Error
	if err != nil {
		return false, errors.Wrap(err, "query remediation ledger")
	}
	return count > 0, nil
}

// record upserts one event into the ledger. The wave+user+action row is
// unique, so a retry after a failed attempt overwrites the failure instead
// of colliding with it.
func (r *Remediator) record(userID, email string, action types.RemediationAction, succeeded bool, detail string) error {
	event := types.RemediationEvent{
		ID:        uuid.New(),
		Wave:      r.wave,
		UserID:    userID,
		Action:    action,
		UserEmail: email,
		Succeeded: succeeded,
		Detail:    detail,
	}
	err := r.database.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "wave"}, {Name: "user_id"}, {Name: "action"}},
		DoUpdates: clause.AssignmentColumns([]string{"succeeded", "detail", "updated_at"}),
	}).Create(&event).Error
	if err != nil {
		return errors.Wrap(err, "record remediation event")
	}
	return nil
}

// Notify sends the proactive heads-up email to every user in records,
// telling them re-enrollment will be required on dateOfChange
func (r *Remediator) Notify(ctx context.Context, records []types.ReenrollmentRecord, dateOfChange string) (*RemediationSummary, error) {
	summary := &RemediationSummary{Wave: r.wave}
	subject := fmt.Sprintf("[FUTURE ACTION REQUIRED] Action will be required on %s", dateOfChange)

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		userID := r.resolveUserID(ctx, rec)
		if userID == "" {
			summary.Failed++
			continue
		}

		done, err := r.alreadyProcessed(userID, types.ActionNotify)
		if err != nil {
			return summary, err
		}
		if done {
			summary.AlreadyDone++
			DebugLogger(LogHolder{Wave: r.wave, UserID: userID, UserEmail: rec.UserEmail, Message: "already notified, skipping"})
			continue
		}

		body, err := mail.RenderTemplate(r.ProactiveTemplatePath, mail.TemplateVars{
			Name:   rec.UserFullName,
			Date:   dateOfChange,
			Action: string(types.ActionNotify),
		})
		if err != nil {
			return summary, err
		}

		err = r.mailer.Send(ctx, mail.Message{
			To:             rec.UserEmail,
			Subject:        subject,
			HTMLBody:       body,
			AttachmentPath: r.AttachmentPath,
		})
		if err != nil {
			summary.Failed++
			ErrorLogger(LogHolder{Wave: r.wave, UserID: userID, UserEmail: rec.UserEmail, Message: "failed to send notification: " + err.Error()})
			if recordErr := r.record(userID, rec.UserEmail, types.ActionNotify, false, err.Error()); recordErr != nil {
				return summary, recordErr
			}
			continue
		}

		EmailsSent.Inc()
		summary.Processed++
		InfoLogger(LogHolder{Wave: r.wave, UserID: userID, UserEmail: rec.UserEmail, Message: "notification sent"})
		if err := r.record(userID, rec.UserEmail, types.ActionNotify, true, ""); err != nil {
			return summary, err
		}
	}
	return summary, nil
}

// Reset unenrolls every active Okta Verify push factor for each user, enrolls
// a fresh one, and emails the user their activation instructions
func (r *Remediator) Reset(ctx context.Context, records []types.ReenrollmentRecord) (*RemediationSummary, error) {
	summary := &RemediationSummary{Wave: r.wave}

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		if err := r.resetOne(ctx, rec, summary); err != nil {
			return summary, err
		}
	}
	return summary, nil
}

func (r *Remediator) resetOne(ctx context.Context, rec types.ReenrollmentRecord, summary *RemediationSummary) error {
	user, err := r.client.GetUserByEmail(ctx, rec.UserEmail)
	if err != nil {
		summary.Failed++
		ErrorLogger(LogHolder{Wave: r.wave, UserEmail: rec.UserEmail, Message: "failed to look up user: " + err.Error()})
		return nil
	}

	done, err := r.alreadyProcessed(user.ID, types.ActionReset)
	if err != nil {
		return err
	}
	if done {
		summary.AlreadyDone++
		DebugLogger(LogHolder{Wave: r.wave, UserID: user.ID, UserEmail: rec.UserEmail, Message: "already reset, skipping"})
		return nil
	}

	factors, err := r.client.ListUserFactors(ctx, user.ID)
	if err != nil {
		summary.Failed++
		ErrorLogger(LogHolder{Wave: r.wave, UserID: user.ID, UserEmail: rec.UserEmail, Message: "failed to list factors: " + err.Error()})
		return nil
	}

	for _, factor := range factors {
		if !factor.IsPush() {
			continue
		}
		if err := r.client.DeleteFactor(ctx, user.ID, factor.ID); err != nil {
			summary.Failed++
			ErrorLogger(LogHolder{
				Wave:      r.wave,
				UserID:    user.ID,
				UserEmail: rec.UserEmail,
				FactorID:  factor.ID,
				Message:   "failed to unenroll factor: " + err.Error(),
			})
			if recordErr := r.record(user.ID, rec.UserEmail, types.ActionReset, false, err.Error()); recordErr != nil {
				return recordErr
			}
			return nil
		}
		DebugLogger(LogHolder{Wave: r.wave, UserID: user.ID, FactorID: factor.ID, Message: "unenrolled push factor"})
	}

	enrollment, err := r.client.EnrollPushFactor(ctx, user.ID)
	if err != nil {
		summary.Failed++
		ErrorLogger(LogHolder{Wave: r.wave, UserID: user.ID, UserEmail: rec.UserEmail, Message: "failed to enroll replacement factor: " + err.Error()})
		if recordErr := r.record(user.ID, rec.UserEmail, types.ActionReset, false, err.Error()); recordErr != nil {
			return recordErr
		}
		return nil
	}
	FactorsReset.Inc()

	body, err := mail.RenderTemplate(r.EnrollmentTemplatePath, mail.TemplateVars{
		Name:   rec.UserFullName,
		Action: string(types.ActionReset),
	})
	if err != nil {
		return err
	}

	err = r.mailer.Send(ctx, mail.Message{
		To:             rec.UserEmail,
		Subject:        "[ACTION REQUIRED] Re-enroll your Okta Verify account",
		HTMLBody:       body,
		AttachmentPath: r.AttachmentPath,
	})
	if err != nil {
		summary.Failed++
		ErrorLogger(LogHolder{Wave: r.wave, UserID: user.ID, UserEmail: rec.UserEmail, Message: "factor reset but enrollment email failed: " + err.Error()})
		if recordErr := r.record(user.ID, rec.UserEmail, types.ActionReset, false, "email failed: "+err.Error()); recordErr != nil {
			return recordErr
		}
		return nil
	}
	EmailsSent.Inc()

	summary.Processed++
	InfoLogger(LogHolder{
		Wave:      r.wave,
		UserID:    user.ID,
		UserEmail: rec.UserEmail,
		FactorID:  enrollment.ID,
		Message:   "push factor reset and enrollment email sent",
	})
	return r.record(user.ID, rec.UserEmail, types.ActionReset, true, "new factor "+enrollment.ID)
}

// resolveUserID returns the user's Okta ID, looking it up by email when the
// CSV row carries no ID
func (r *Remediator) resolveUserID(ctx context.Context, rec types.ReenrollmentRecord) string {
	if rec.UserID != "" {
		return rec.UserID
	}
	user, err := r.client.GetUserByEmail(ctx, rec.UserEmail)
	if err != nil {
		ErrorLogger(LogHolder{Wave: r.wave, UserEmail: rec.UserEmail, Message: "failed to look up user: " + err.Error()})
		return ""
	}
	return user.ID
}
