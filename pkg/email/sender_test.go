package email

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/angelmondragon/activityhub-backend/pkg/config"
)

type fakeClient struct {
	resp *rest.Response
	err  error
	sent []*mail.SGMailV3
}

func (f *fakeClient) SendWithContext(_ context.Context, email *mail.SGMailV3) (*rest.Response, error) {
	f.sent = append(f.sent, email)
	return f.resp, f.err
}

var testCfg = config.SendgridConfig{DefaultFrom: "bookings@activityhub.app", FromName: "ActivityHub"}

func TestSendBuildsMessage(t *testing.T) {
	client := &fakeClient{resp: &rest.Response{StatusCode: http.StatusAccepted}}
	sender, err := newSender(client, testCfg)
	if err != nil {
		t.Fatalf("newSender: %v", err)
	}

	err = sender.Send(context.Background(), Message{
		ToEmail:   "ana@example.com",
		ToName:    "Ana",
		Subject:   "Your booking is confirmed",
		PlainText: "hello",
		HTML:      "<p>hello</p>",
		Tags:      map[string]string{"notification_id": "n-1"},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(client.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(client.sent))
	}
	msg := client.sent[0]
	if msg.Subject != "Your booking is confirmed" {
		t.Fatalf("unexpected subject %q", msg.Subject)
	}
	if msg.From.Address != "bookings@activityhub.app" {
		t.Fatalf("unexpected from %q", msg.From.Address)
	}
	if msg.CustomArgs["notification_id"] != "n-1" {
		t.Fatalf("custom args not propagated: %v", msg.CustomArgs)
	}
}

func TestSendClassifiesFailures(t *testing.T) {
	cases := []struct {
		name      string
		client    *fakeClient
		permanent bool
	}{
		{"transport error", &fakeClient{err: errors.New("dial tcp")}, false},
		{"throttled", &fakeClient{resp: &rest.Response{StatusCode: http.StatusTooManyRequests}}, false},
		{"server error", &fakeClient{resp: &rest.Response{StatusCode: http.StatusBadGateway}}, false},
		{"bad request", &fakeClient{resp: &rest.Response{StatusCode: http.StatusBadRequest, Body: "invalid email"}}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sender, err := newSender(tc.client, testCfg)
			if err != nil {
				t.Fatalf("newSender: %v", err)
			}
			err = sender.Send(context.Background(), Message{ToEmail: "a@example.com", Subject: "s", PlainText: "p"})
			if err == nil {
				t.Fatal("expected error")
			}
			if IsPermanent(err) != tc.permanent {
				t.Fatalf("IsPermanent = %v, want %v (%v)", IsPermanent(err), tc.permanent, err)
			}
		})
	}
}

func TestSendRejectsMissingRecipient(t *testing.T) {
	client := &fakeClient{resp: &rest.Response{StatusCode: http.StatusAccepted}}
	sender, _ := newSender(client, testCfg)
	if err := sender.Send(context.Background(), Message{Subject: "s"}); !IsPermanent(err) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if len(client.sent) != 0 {
		t.Fatal("nothing should be sent without a recipient")
	}
}

func TestNewSenderValidation(t *testing.T) {
	if _, err := NewSendGridSender(config.SendgridConfig{}); err == nil {
		t.Fatal("expected error without api key")
	}
	if _, err := newSender(&fakeClient{}, config.SendgridConfig{}); err == nil {
		t.Fatal("expected error without from address")
	}
}
