package push

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/caarlos0/env/v11"

	"nutripush/internal/registry"
	logx "nutripush/pkg/logx"
)

// Client delivers one serialized payload to one endpoint.
//
// A nil error means the push service accepted the message. Failures come back
// as *SendError when the service answered with a status, so callers can
// separate permanent ("gone") endpoints from transient trouble.
type Client interface {
	Send(ctx context.Context, sub registry.Subscription, payload []byte) error
}

// Credentials is the VAPID key material. Keys are secrets and load from the
// environment, never the config file.
type Credentials struct {
	VAPIDPublicKey  string `env:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string `env:"VAPID_PRIVATE_KEY"`
	Subscriber      string `env:"VAPID_SUBSCRIBER" envDefault:"admin@nutripush.local"`
}

func CredentialsFromEnv() (Credentials, error) {
	var c Credentials
	if err := env.Parse(&c); err != nil {
		return Credentials{}, fmt.Errorf("push credentials: %w", err)
	}
	return c, nil
}

func (c Credentials) Configured() bool {
	return strings.TrimSpace(c.VAPIDPublicKey) != "" && strings.TrimSpace(c.VAPIDPrivateKey) != ""
}

// SendError is a non-2xx answer from the push service.
type SendError struct {
	StatusCode int
	Body       string
}

func (e *SendError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("push service returned %d", e.StatusCode)
	}
	return fmt.Sprintf("push service returned %d: %s", e.StatusCode, e.Body)
}

// IsGone reports whether err marks the endpoint as permanently invalid.
// 410 is the protocol's expired-subscription answer; some services use 404.
func IsGone(err error) bool {
	var se *SendError
	if !errors.As(err, &se) {
		return false
	}
	return se.StatusCode == http.StatusGone || se.StatusCode == http.StatusNotFound
}

type Config struct {
	TTL time.Duration // how long the push service may hold an undelivered message
}

// WebPush is the production Client over the Web Push protocol.
type WebPush struct {
	creds Credentials
	ttl   int
	log   logx.Logger
}

func NewWebPush(cfg Config, creds Credentials, log logx.Logger) (*WebPush, error) {
	if !creds.Configured() {
		return nil, errors.New("VAPID keys are not configured")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	ttl := int(cfg.TTL / time.Second)
	if ttl <= 0 {
		ttl = int((24 * time.Hour).Seconds())
	}
	return &WebPush{creds: creds, ttl: ttl, log: log}, nil
}

func (c *WebPush) Send(ctx context.Context, sub registry.Subscription, payload []byte) error {
	s := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.Keys.P256dh,
			Auth:   sub.Keys.Auth,
		},
	}
	resp, err := webpush.SendNotificationWithContext(ctx, payload, s, &webpush.Options{
		Subscriber:      c.creds.Subscriber, // webpush-go adds mailto: automatically
		VAPIDPublicKey:  c.creds.VAPIDPublicKey,
		VAPIDPrivateKey: c.creds.VAPIDPrivateKey,
		TTL:             c.ttl,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &SendError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}
