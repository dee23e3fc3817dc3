package push_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"callme/internal/apns"
	"callme/internal/fcm"
	"callme/internal/models"
	"callme/internal/push"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubAlertSender struct {
	sent int
	err  error
}

func (s *stubAlertSender) SendAlert(ctx context.Context, deviceToken, title, body string, data map[string]string) error {
	s.sent++
	return s.err
}

type stubMessageSender struct {
	sent int
	err  error
}

func (s *stubMessageSender) Send(ctx context.Context, deviceToken, title, body string, data map[string]string) error {
	s.sent++
	return s.err
}

type stubSubscriptionSender struct {
	sent int
	err  error
}

func (s *stubSubscriptionSender) Send(ctx context.Context, subscriptionJSON, title, body string, data map[string]string) error {
	s.sent++
	return s.err
}

func TestSendRoutesByPlatform(t *testing.T) {
	apnsStub := &stubAlertSender{}
	fcmStub := &stubMessageSender{}
	webStub := &stubSubscriptionSender{}
	d := push.NewDispatcher(apnsStub, fcmStub, webStub, testLogger())

	cases := []struct {
		platform models.Platform
		check    func() int
	}{
		{models.PlatformIOS, func() int { return apnsStub.sent }},
		{models.PlatformAndroid, func() int { return fcmStub.sent }},
		{models.PlatformWeb, func() int { return webStub.sent }},
	}

	for _, tc := range cases {
		reg := models.DeviceRegistration{UserID: 1, Platform: tc.platform, Token: "tok"}
		res := d.Send(context.Background(), reg, "T", "B", nil)
		if res.Outcome != push.OutcomeSent {
			t.Fatalf("%s: outcome = %q, want sent", tc.platform, res.Outcome)
		}
		if tc.check() != 1 {
			t.Fatalf("%s: wrong provider invoked", tc.platform)
		}
	}
	if apnsStub.sent+fcmStub.sent+webStub.sent != 3 {
		t.Fatal("a provider was invoked for a foreign platform")
	}
}

func TestSendMissingTokenSkipped(t *testing.T) {
	apnsStub := &stubAlertSender{}
	d := push.NewDispatcher(apnsStub, nil, nil, testLogger())

	reg := models.DeviceRegistration{UserID: 1, Platform: models.PlatformIOS, Token: ""}
	res := d.Send(context.Background(), reg, "T", "B", nil)
	if res.Outcome != push.OutcomeSkipped {
		t.Fatalf("outcome = %q, want skipped", res.Outcome)
	}
	if res.Err != nil {
		t.Fatalf("skip must not carry an error, got %v", res.Err)
	}
	if apnsStub.sent != 0 {
		t.Fatal("no send should be attempted without a token")
	}
}

func TestSendUnconfiguredProvider(t *testing.T) {
	d := push.NewDispatcher(nil, nil, nil, testLogger())

	reg := models.DeviceRegistration{UserID: 1, Platform: models.PlatformAndroid, Token: "tok"}
	res := d.Send(context.Background(), reg, "T", "B", nil)
	if res.Outcome != push.OutcomeFailed {
		t.Fatalf("outcome = %q, want failed", res.Outcome)
	}
	if !errors.Is(res.Err, push.ErrNotConfigured) {
		t.Fatalf("err = %v, want ErrNotConfigured", res.Err)
	}
}

func TestSendMarksDeadTokens(t *testing.T) {
	apnsStub := &stubAlertSender{err: &apns.DeliveryError{StatusCode: 410, Reason: "Unregistered"}}
	fcmStub := &stubMessageSender{err: &fcm.DeliveryError{StatusCode: 404}}
	d := push.NewDispatcher(apnsStub, fcmStub, nil, testLogger())

	res := d.Send(context.Background(), models.DeviceRegistration{UserID: 1, Platform: models.PlatformIOS, Token: "t"}, "T", "B", nil)
	if res.Outcome != push.OutcomeFailed || !res.TokenInvalid {
		t.Fatalf("ios result = %+v, want failed with invalid token", res)
	}

	res = d.Send(context.Background(), models.DeviceRegistration{UserID: 1, Platform: models.PlatformAndroid, Token: "t"}, "T", "B", nil)
	if res.Outcome != push.OutcomeFailed || !res.TokenInvalid {
		t.Fatalf("android result = %+v, want failed with invalid token", res)
	}
}

func TestSendTransientFailureKeepsToken(t *testing.T) {
	apnsStub := &stubAlertSender{err: errors.New("connection reset")}
	d := push.NewDispatcher(apnsStub, nil, nil, testLogger())

	res := d.Send(context.Background(), models.DeviceRegistration{UserID: 1, Platform: models.PlatformIOS, Token: "t"}, "T", "B", nil)
	if res.Outcome != push.OutcomeFailed {
		t.Fatalf("outcome = %q, want failed", res.Outcome)
	}
	if res.TokenInvalid {
		t.Fatal("a transport failure must not invalidate the token")
	}
}
