package firebase

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	messagingScope = "https://www.googleapis.com/auth/firebase.messaging"
	fcmEndpoint    = "https://fcm.googleapis.com/v1/projects/%s/messages:send"
)

var (
	errNoProjectID   = errors.New("firebase project id is not configured")
	errNoDeviceToken = errors.New("device token is empty")
)

// FCM implements patient.Notifier with the Cloud Messaging HTTP v1 API.
type FCM struct {
	endpoint string
	tokens   oauth2.TokenSource
	client   *restClient
}

// NewFCM builds a notifier from service-account credentials. When projectID
// is empty the project of the credentials is used.
func NewFCM(ctx context.Context, credentialsJSON []byte, projectID string, httpCfg HTTPClientConfig) (*FCM, error) {
	creds, err := google.CredentialsFromJSON(ctx, credentialsJSON, messagingScope)
	if err != nil {
		return nil, fmt.Errorf("load fcm credentials: %w", err)
	}
	if projectID == "" {
		projectID = creds.ProjectID
	}
	if projectID == "" {
		return nil, errNoProjectID
	}
	return NewFCMWithTokenSource(fmt.Sprintf(fcmEndpoint, projectID), creds.TokenSource, httpCfg), nil
}

// NewFCMWithTokenSource builds a notifier that posts to endpoint with tokens
// from ts.
func NewFCMWithTokenSource(endpoint string, ts oauth2.TokenSource, httpCfg HTTPClientConfig) *FCM {
	return &FCM{
		endpoint: endpoint,
		tokens:   oauth2.ReuseTokenSource(nil, ts),
		client:   newRESTClient("fcm", httpCfg),
	}
}

type fcmMessage struct {
	Message struct {
		Token        string `json:"token"`
		Notification struct {
			Title string `json:"title"`
			Body  string `json:"body"`
		} `json:"notification"`
		Android struct {
			Priority string `json:"priority"`
		} `json:"android"`
	} `json:"message"`
}

// SendPush delivers a high-priority notification to one device.
func (f *FCM) SendPush(ctx context.Context, deviceToken, title, body string) error {
	if deviceToken == "" {
		return errNoDeviceToken
	}
	token, err := f.tokens.Token()
	if err != nil {
		return fmt.Errorf("fcm access token: %w", err)
	}

	var msg fcmMessage
	msg.Message.Token = deviceToken
	msg.Message.Notification.Title = title
	msg.Message.Notification.Body = body
	msg.Message.Android.Priority = "HIGH"

	build := jsonRequest(http.MethodPost, f.endpoint, msg)
	resp, err := f.client.do(ctx, func() (*http.Request, error) {
		req, err := build()
		if err != nil {
			return nil, err
		}
		token.SetAuthHeader(req)
		return req, nil
	})
	if err != nil {
		return fmt.Errorf("send push: %w", err)
	}
	drain(resp)
	return nil
}
