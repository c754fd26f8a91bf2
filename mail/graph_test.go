package mail

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/tjobarow/okta-fastpass-deployment-toolkit/utils"
)

func newTestSender(serverURL string) *GraphSender {
	return &GraphSender{
		graphURL:    serverURL,
		sourceEmail: "it-alerts@example.com",
		tokens:      oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "test-access-token", TokenType: "Bearer"}),
		client:      utils.NewHTTPClient(5*time.Second, nil),
	}
}

func TestGraphSender_Send(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/v1.0/users/it-alerts@example.com/sendMail", r.URL.Path)
		assert.Equal(t, "Bearer test-access-token", r.Header.Get("Authorization"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var payload sendMailRequest
		require.NoError(t, json.Unmarshal(body, &payload))
		assert.Equal(t, "Test subject", payload.Message.Subject)
		assert.Equal(t, "HTML", payload.Message.Body.ContentType)
		require.Len(t, payload.Message.ToRecipients, 1)
		assert.Equal(t, "jdoe@example.com", payload.Message.ToRecipients[0].EmailAddress.Address)
		assert.Empty(t, payload.Message.Attachments)

		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	sender := newTestSender(server.URL)
	err := sender.Send(context.Background(), Message{
		To:       "jdoe@example.com",
		Subject:  "Test subject",
		HTMLBody: "<p>hello</p>",
	})
	require.NoError(t, err)
}

func TestGraphSender_SendWithAttachment(t *testing.T) {
	attachmentPath := filepath.Join(t.TempDir(), "guide.txt")
	require.NoError(t, os.WriteFile(attachmentPath, []byte("step one"), 0644))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var payload sendMailRequest
		require.NoError(t, json.Unmarshal(body, &payload))
		require.Len(t, payload.Message.Attachments, 1)
		assert.Equal(t, "#microsoft.graph.fileAttachment", payload.Message.Attachments[0].ODataType)
		assert.Equal(t, "guide.txt", payload.Message.Attachments[0].Name)
		assert.NotEmpty(t, payload.Message.Attachments[0].ContentBytes)

		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	sender := newTestSender(server.URL)
	err := sender.Send(context.Background(), Message{
		To:             "jdoe@example.com",
		Subject:        "With attachment",
		HTMLBody:       "<p>see attached</p>",
		AttachmentPath: attachmentPath,
	})
	require.NoError(t, err)
}

func TestGraphSender_SendRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		io.WriteString(w, `{"error":{"code":"ErrorAccessDenied"}}`)
	}))
	defer server.Close()

	sender := newTestSender(server.URL)
	err := sender.Send(context.Background(), Message{To: "jdoe@example.com", Subject: "x", HTMLBody: "y"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestGraphSender_NoRecipient(t *testing.T) {
	sender := newTestSender("http://localhost:0")
	err := sender.Send(context.Background(), Message{Subject: "x"})
	assert.Error(t, err)
}

func TestRenderTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notify.html")
	require.NoError(t, os.WriteFile(path, []byte("<p>Hello {{.Name}}, action on {{.Date}}</p>"), 0644))

	body, err := RenderTemplate(path, TemplateVars{Name: "Jane Doe", Date: "April 1st 2026"})
	require.NoError(t, err)
	assert.Equal(t, "<p>Hello Jane Doe, action on April 1st 2026</p>", body)
}

func TestRenderTemplate_EscapesValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notify.html")
	require.NoError(t, os.WriteFile(path, []byte("<p>{{.Name}}</p>"), 0644))

	body, err := RenderTemplate(path, TemplateVars{Name: "<script>alert(1)</script>"})
	require.NoError(t, err)
	assert.NotContains(t, body, "<script>")
}

func TestRenderTemplate_MissingFile(t *testing.T) {
	_, err := RenderTemplate(filepath.Join(t.TempDir(), "nope.html"), TemplateVars{})
	assert.Error(t, err)
}
