package notify

import (
	"context"
	"sync"
)

type call struct {
	channel string
	to      string
	title   string
	body    string
	data    map[string]string
}

// fakeChannels records every call; each channel's outcome is scripted
type fakeChannels struct {
	mu    sync.Mutex
	calls []call

	pushOK, smsOK, emailOK    bool
	pushErr, smsErr, emailErr error
	panicOn                   string
	onSend                    func()
}

func (f *fakeChannels) record(c call) {
	if f.onSend != nil {
		f.onSend()
	}
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
	if f.panicOn == c.channel {
		panic("boom")
	}
}

func (f *fakeChannels) SendPush(ctx context.Context, token, title, body string, data map[string]string) (bool, error) {
	f.record(call{channel: "push", to: token, title: title, body: body, data: data})
	return f.pushOK, f.pushErr
}

func (f *fakeChannels) SendSMS(ctx context.Context, phone, text string) (bool, error) {
	f.record(call{channel: "sms", to: phone, body: text})
	return f.smsOK, f.smsErr
}

func (f *fakeChannels) SendEmail(ctx context.Context, to, subject, html, text string) (bool, error) {
	f.record(call{channel: "email", to: to, title: subject, body: html})
	return f.emailOK, f.emailErr
}

func (f *fakeChannels) callsTo(channel string) []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.calls {
		if c.channel == channel {
			out = append(out, c)
		}
	}
	return out
}
