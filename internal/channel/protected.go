package channel

import (
	"context"
	"errors"

	"github.com/lalithlochan/quorum/internal/circuitbreaker"
)

// errDeclined lets a refused-but-not-erroring send count against the breaker
var errDeclined = errors.New("provider declined")

func guarded(b *circuitbreaker.Breaker, send func() (bool, error)) (bool, error) {
	var ok bool
	err := b.Do(func() error {
		var err error
		ok, err = send()
		if err == nil && !ok {
			return errDeclined
		}
		return err
	})
	if errors.Is(err, errDeclined) {
		return false, nil
	}
	return ok, err
}

// ProtectedPush wraps a PushSender with a circuit breaker
type ProtectedPush struct {
	next    PushSender
	breaker *circuitbreaker.Breaker
}

func NewProtectedPush(next PushSender, b *circuitbreaker.Breaker) *ProtectedPush {
	return &ProtectedPush{next: next, breaker: b}
}

func (p *ProtectedPush) SendPush(ctx context.Context, token, title, body string, data map[string]string) (bool, error) {
	return guarded(p.breaker, func() (bool, error) {
		return p.next.SendPush(ctx, token, title, body, data)
	})
}

func (p *ProtectedPush) Breaker() *circuitbreaker.Breaker { return p.breaker }

// ProtectedSMS wraps an SMSSender with a circuit breaker
type ProtectedSMS struct {
	next    SMSSender
	breaker *circuitbreaker.Breaker
}

func NewProtectedSMS(next SMSSender, b *circuitbreaker.Breaker) *ProtectedSMS {
	return &ProtectedSMS{next: next, breaker: b}
}

func (p *ProtectedSMS) SendSMS(ctx context.Context, phone, text string) (bool, error) {
	return guarded(p.breaker, func() (bool, error) {
		return p.next.SendSMS(ctx, phone, text)
	})
}

func (p *ProtectedSMS) Breaker() *circuitbreaker.Breaker { return p.breaker }

// ProtectedEmail wraps an EmailSender with a circuit breaker
type ProtectedEmail struct {
	next    EmailSender
	breaker *circuitbreaker.Breaker
}

func NewProtectedEmail(next EmailSender, b *circuitbreaker.Breaker) *ProtectedEmail {
	return &ProtectedEmail{next: next, breaker: b}
}

func (p *ProtectedEmail) SendEmail(ctx context.Context, to, subject, html, text string) (bool, error) {
	return guarded(p.breaker, func() (bool, error) {
		return p.next.SendEmail(ctx, to, subject, html, text)
	})
}

func (p *ProtectedEmail) Breaker() *circuitbreaker.Breaker { return p.breaker }
