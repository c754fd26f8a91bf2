package mail

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/tjobarow/okta-fastpass-deployment-toolkit/utils"
)

const defaultGraphURL = "https://graph.microsoft.com"

// TemplateVars are the values substituted into a notification template
type TemplateVars struct {
	Name   string
	Date   string
	Action string
}

// Message is one email to deliver
type Message struct {
	To             string
	Subject        string
	HTMLBody       string
	AttachmentPath string
}

// Sender delivers email to end users
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// GraphSender sends mail through the Microsoft Graph sendMail endpoint using
// an app-only client credentials grant
type GraphSender struct {
	graphURL    string
	sourceEmail string
	tokens      oauth2.TokenSource
	client      *utils.HTTPClient
}

// NewGraphSender builds a sender backed by an Entra app registration.
// tokenURL is the tenant's v2.0 token endpoint and sourceEmail is the
// mailbox the messages come from.
func NewGraphSender(tokenURL, clientID, clientSecret, sourceEmail string) *GraphSender {
	creds := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
		Scopes:       []string{"https://graph.microsoft.com/.default"},
	}
	return &GraphSender{
		graphURL:    defaultGraphURL,
		sourceEmail: sourceEmail,
		tokens:      creds.TokenSource(context.Background()),
		client:      utils.NewHTTPClient(30*time.Second, nil),
	}
}

type graphRecipient struct {
	EmailAddress struct {
		Address string `json:"address"`
	} `json:"emailAddress"`
}

type graphAttachment struct {
	ODataType    string `json:"@odata.type"`
	Name         string `json:"name"`
	ContentType  string `json:"contentType"`
	ContentBytes string `json:"contentBytes"`
}

type graphMessage struct {
	Subject string `json:"subject"`
	Body    struct {
		ContentType string `json:"contentType"`
		Content     string `json:"content"`
	} `json:"body"`
	ToRecipients []graphRecipient  `json:"toRecipients"`
	Attachments  []graphAttachment `json:"attachments,omitempty"`
}

type sendMailRequest struct {
	Message         graphMessage `json:"message"`
	SaveToSentItems bool         `json:"saveToSentItems"`
}

// Send delivers one message. Graph acknowledges an accepted sendMail with
// 202 and an empty body.
func (s *GraphSender) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return errors.New("message has no recipient")
	}

	payload := sendMailRequest{SaveToSentItems: true}
	payload.Message.Subject = msg.Subject
	payload.Message.Body.ContentType = "HTML"
	payload.Message.Body.Content = msg.HTMLBody

	var recipient graphRecipient
	recipient.EmailAddress.Address = msg.To
	payload.Message.ToRecipients = []graphRecipient{recipient}

	if msg.AttachmentPath != "" {
		attachment, err := fileAttachment(msg.AttachmentPath)
		if err != nil {
			return err
		}
		payload.Message.Attachments = []graphAttachment{attachment}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "marshal sendMail request")
	}

	token, err := s.tokens.Token()
	if err != nil {
		return errors.Wrap(err, "acquire Graph access token")
	}

	endpoint := fmt.Sprintf("%s/v1.0/users/%s/sendMail", s.graphURL, s.sourceEmail)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "create sendMail request")
	}
	req.Header.Set("Content-Type", "application/json")
	token.SetAuthHeader(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "send mail to %s", msg.To)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		respBody, _ := io.ReadAll(resp.Body)
		return errors.Errorf("sendMail to %s returned %d: %s", msg.To, resp.StatusCode, string(respBody))
	}
	return nil
}

// fileAttachment reads path into a Graph fileAttachment payload
func fileAttachment(path string) (graphAttachment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return graphAttachment{}, errors.Wrapf(err, "read attachment %s", path)
	}
	return graphAttachment{
		ODataType:    "#microsoft.graph.fileAttachment",
		Name:         filepath.Base(path),
		ContentType:  http.DetectContentType(data),
		ContentBytes: base64.StdEncoding.EncodeToString(data),
	}, nil
}

// RenderTemplate executes the HTML template at path with vars
func RenderTemplate(path string, vars TemplateVars) (string, error) {
	tmpl, err := template.ParseFiles(path)
	if err != nil {
		return "", errors.Wrapf(err, "parse template %s", path)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return "", errors.Wrapf(err, "render template %s", path)
	}
	return buf.String(), nil
}
