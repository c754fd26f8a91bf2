package director

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tjobarow/okta-fastpass-deployment-toolkit/db"
	"github.com/tjobarow/okta-fastpass-deployment-toolkit/mail"
	"github.com/tjobarow/okta-fastpass-deployment-toolkit/okta"
	"github.com/tjobarow/okta-fastpass-deployment-toolkit/okta/mocks"
	"github.com/tjobarow/okta-fastpass-deployment-toolkit/types"
)

type mockSender struct {
	sendFunc func(ctx context.Context, msg mail.Message) error
	sent     []mail.Message
}

func (m *mockSender) Send(ctx context.Context, msg mail.Message) error {
	m.sent = append(m.sent, msg)
	if m.sendFunc != nil {
		return m.sendFunc(ctx, msg)
	}
	return nil
}

func newTestLedger(t *testing.T) *gorm.DB {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	return database
}

func writeTemplate(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func testRecords() []types.ReenrollmentRecord {
	return []types.ReenrollmentRecord{
		{UserID: "u1", UserFullName: "Jane Doe", UserEmail: "jdoe@example.com"},
		{UserID: "u2", UserFullName: "Sam Smith", UserEmail: "ssmith@example.com"},
	}
}

func TestRemediatorNotify_SendsAndRecords(t *testing.T) {
	database := newTestLedger(t)
	sender := &mockSender{}
	remediator := NewRemediator(&mocks.MockOktaClient{}, sender, database, "2026-03-14")
	remediator.ProactiveTemplatePath = writeTemplate(t, "notify.html", "<p>Hello {{.Name}}, change lands {{.Date}}</p>")

	summary, err := remediator.Notify(context.Background(), testRecords(), "April 1st 2026")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 0, summary.AlreadyDone)
	assert.Equal(t, 0, summary.Failed)

	require.Len(t, sender.sent, 2)
	assert.Equal(t, "jdoe@example.com", sender.sent[0].To)
	assert.Contains(t, sender.sent[0].Subject, "April 1st 2026")
	assert.Contains(t, sender.sent[0].HTMLBody, "Hello Jane Doe")

	var count int64
	require.NoError(t, database.Model(&types.RemediationEvent{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestRemediatorNotify_SecondRunIsNoOp(t *testing.T) {
	database := newTestLedger(t)
	sender := &mockSender{}
	remediator := NewRemediator(&mocks.MockOktaClient{}, sender, database, "2026-03-14")
	remediator.ProactiveTemplatePath = writeTemplate(t, "notify.html", "<p>Hello {{.Name}}</p>")

	_, err := remediator.Notify(context.Background(), testRecords(), "April 1st 2026")
	require.NoError(t, err)

	summary, err := remediator.Notify(context.Background(), testRecords(), "April 1st 2026")
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Processed)
	assert.Equal(t, 2, summary.AlreadyDone)
	assert.Len(t, sender.sent, 2)
}

func TestRemediatorNotify_DifferentWaveSendsAgain(t *testing.T) {
	database := newTestLedger(t)
	sender := &mockSender{}

	first := NewRemediator(&mocks.MockOktaClient{}, sender, database, "wave-1")
	first.ProactiveTemplatePath = writeTemplate(t, "notify.html", "<p>Hello {{.Name}}</p>")
	_, err := first.Notify(context.Background(), testRecords(), "April 1st 2026")
	require.NoError(t, err)

	second := NewRemediator(&mocks.MockOktaClient{}, sender, database, "wave-2")
	second.ProactiveTemplatePath = first.ProactiveTemplatePath
	summary, err := second.Notify(context.Background(), testRecords(), "May 1st 2026")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Processed)
	assert.Len(t, sender.sent, 4)
}

func TestRemediatorNotify_SendFailureRecorded(t *testing.T) {
	database := newTestLedger(t)
	sender := &mockSender{
		sendFunc: func(ctx context.Context, msg mail.Message) error {
			if msg.To == "jdoe@example.com" {
				return errors.New("mailbox unavailable")
			}
			return nil
		},
	}
	remediator := NewRemediator(&mocks.MockOktaClient{}, sender, database, "2026-03-14")
	remediator.ProactiveTemplatePath = writeTemplate(t, "notify.html", "<p>Hello {{.Name}}</p>")

	summary, err := remediator.Notify(context.Background(), testRecords(), "April 1st 2026")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, summary.Failed)

	// the failure is in the ledger but does not mark the user done
	var failed types.RemediationEvent
	require.NoError(t, database.Where("user_id = ?", "u1").First(&failed).Error)
	assert.False(t, failed.Succeeded)
	assert.Contains(t, failed.Detail, "mailbox unavailable")
}

func TestRemediatorNotify_RetryAfterFailureSucceeds(t *testing.T) {
	database := newTestLedger(t)
	failing := true
	sender := &mockSender{
		sendFunc: func(ctx context.Context, msg mail.Message) error {
			if failing {
				return errors.New("mailbox unavailable")
			}
			return nil
		},
	}
	remediator := NewRemediator(&mocks.MockOktaClient{}, sender, database, "2026-03-14")
	remediator.ProactiveTemplatePath = writeTemplate(t, "notify.html", "<p>Hello {{.Name}}</p>")

	records := testRecords()[:1]
	summary, err := remediator.Notify(context.Background(), records, "April 1st 2026")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)

	failing = false
	summary, err = remediator.Notify(context.Background(), records, "April 1st 2026")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)

	// one ledger row per wave+user+action, flipped to succeeded
	var count int64
	require.NoError(t, database.Model(&types.RemediationEvent{}).Where("user_id = ?", "u1").Count(&count).Error)
	assert.Equal(t, int64(1), count)
	var event types.RemediationEvent
	require.NoError(t, database.Where("user_id = ?", "u1").First(&event).Error)
	assert.True(t, event.Succeeded)
}

func newResetMock() *mocks.MockOktaClient {
	return &mocks.MockOktaClient{
		GetUserByEmailFunc: func(ctx context.Context, email string) (*okta.User, error) {
			return &okta.User{ID: "u1", Profile: okta.UserProfile{Email: email}}, nil
		},
		ListUserFactorsFunc: func(ctx context.Context, userID string) ([]okta.Factor, error) {
			return []okta.Factor{
				{ID: "f-push", FactorType: "push", Provider: "OKTA", Status: "ACTIVE"},
				{ID: "f-sms", FactorType: "sms", Provider: "OKTA", Status: "ACTIVE"},
			}, nil
		},
		EnrollPushFactorFunc: func(ctx context.Context, userID string) (*okta.FactorEnrollment, error) {
			enrollment := &okta.FactorEnrollment{}
			enrollment.ID = "f-new"
			return enrollment, nil
		},
	}
}

func TestRemediatorReset_Flow(t *testing.T) {
	database := newTestLedger(t)
	sender := &mockSender{}
	mock := newResetMock()
	remediator := NewRemediator(mock, sender, database, "2026-03-14")
	remediator.EnrollmentTemplatePath = writeTemplate(t, "enroll.html", "<p>{{.Name}}, re-enroll now</p>")

	records := []types.ReenrollmentRecord{
		{UserFullName: "Jane Doe", UserEmail: "jdoe@example.com"},
	}
	summary, err := remediator.Reset(context.Background(), records)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 0, summary.Failed)

	// only the push factor is unenrolled, the SMS factor stays
	require.Len(t, mock.DeleteFactorCalls, 1)
	assert.Equal(t, "f-push", mock.DeleteFactorCalls[0].FactorID)
	assert.Equal(t, []string{"u1"}, mock.EnrollPushFactorCalls)

	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0].Subject, "Re-enroll")

	var event types.RemediationEvent
	require.NoError(t, database.Where("user_id = ?", "u1").First(&event).Error)
	assert.True(t, event.Succeeded)
	assert.Equal(t, types.ActionReset, event.Action)
}

func TestRemediatorReset_SecondRunIsNoOp(t *testing.T) {
	database := newTestLedger(t)
	sender := &mockSender{}
	mock := newResetMock()
	remediator := NewRemediator(mock, sender, database, "2026-03-14")
	remediator.EnrollmentTemplatePath = writeTemplate(t, "enroll.html", "<p>{{.Name}}</p>")

	records := []types.ReenrollmentRecord{{UserFullName: "Jane Doe", UserEmail: "jdoe@example.com"}}
	_, err := remediator.Reset(context.Background(), records)
	require.NoError(t, err)

	summary, err := remediator.Reset(context.Background(), records)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.AlreadyDone)
	assert.Len(t, mock.EnrollPushFactorCalls, 1)
	assert.Len(t, sender.sent, 1)
}

func TestRemediatorReset_EnrollFailureRecorded(t *testing.T) {
	database := newTestLedger(t)
	sender := &mockSender{}
	mock := newResetMock()
	mock.EnrollPushFactorFunc = func(ctx context.Context, userID string) (*okta.FactorEnrollment, error) {
		return nil, errors.New("factor provider unavailable")
	}
	remediator := NewRemediator(mock, sender, database, "2026-03-14")
	remediator.EnrollmentTemplatePath = writeTemplate(t, "enroll.html", "<p>{{.Name}}</p>")

	records := []types.ReenrollmentRecord{{UserFullName: "Jane Doe", UserEmail: "jdoe@example.com"}}
	summary, err := remediator.Reset(context.Background(), records)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Empty(t, sender.sent)

	var event types.RemediationEvent
	require.NoError(t, database.Where("user_id = ?", "u1").First(&event).Error)
	assert.False(t, event.Succeeded)
}

func TestRemediatorReset_LookupFailureDoesNotAbort(t *testing.T) {
	database := newTestLedger(t)
	sender := &mockSender{}
	mock := newResetMock()
	mock.GetUserByEmailFunc = func(ctx context.Context, email string) (*okta.User, error) {
		if email == "ghost@example.com" {
			return nil, errors.New("not found")
		}
		return &okta.User{ID: "u1", Profile: okta.UserProfile{Email: email}}, nil
	}
	remediator := NewRemediator(mock, sender, database, "2026-03-14")
	remediator.EnrollmentTemplatePath = writeTemplate(t, "enroll.html", "<p>{{.Name}}</p>")

	records := []types.ReenrollmentRecord{
		{UserFullName: "Ghost", UserEmail: "ghost@example.com"},
		{UserFullName: "Jane Doe", UserEmail: "jdoe@example.com"},
	}
	summary, err := remediator.Reset(context.Background(), records)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Processed)
}
