package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalithlochan/quorum/internal/channel"
	"github.com/lalithlochan/quorum/internal/db"
	"github.com/lalithlochan/quorum/internal/errs"
)

func newTestDispatcher(store *memStore, fc *fakeChannels) *Dispatcher {
	set := channel.Set{Push: fc, SMS: fc, Email: fc}
	return NewDispatcher(store, set, NewRenderer("Quorum", "https://quorum.example"), zap.NewNop())
}

func allOK() *fakeChannels {
	return &fakeChannels{pushOK: true, smsOK: true, emailOK: true}
}

func TestDispatch_AllChannelsSucceed(t *testing.T) {
	user := newUser("ana")
	store := newMemStore(user)
	fc := allOK()
	d := newTestDispatcher(store, fc)

	projectID := uuid.New()
	res, err := d.Dispatch(context.Background(), Request{
		UserID:    user.ID,
		ProjectID: &projectID,
		Type:      db.TypeProjectSubmitted,
		Title:     "New Project: Roof",
		Message:   "Please review",
		Data:      map[string]string{"projectId": projectID.String()},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Status != db.StatusSent {
		t.Fatalf("status = %s", res.Status)
	}
	if len(res.Deliveries) != 3 {
		t.Fatalf("expected 3 deliveries, got %d", len(res.Deliveries))
	}

	n := store.notification(res.NotificationID)
	if n.Status != db.StatusSent || n.SentAt == nil {
		t.Fatalf("stored notification not finalized: %+v", n)
	}
	if got := len(store.deliveriesFor(res.NotificationID)); got != 3 {
		t.Fatalf("expected 3 delivery rows, got %d", got)
	}
	for _, dl := range store.deliveriesFor(res.NotificationID) {
		if dl.Status != db.DeliverySuccess || dl.DeliveredAt == nil || dl.ErrorMessage != nil {
			t.Errorf("unexpected delivery: %+v", dl)
		}
	}

	push := fc.callsTo("push")
	if len(push) != 1 || push[0].data["projectId"] != projectID.String() {
		t.Errorf("push data not forwarded: %+v", push)
	}
	email := fc.callsTo("email")
	if len(email) != 1 || !strings.Contains(email[0].body, "https://quorum.example/projects/"+projectID.String()) {
		t.Errorf("email lacks project link")
	}
}

func TestDispatch_PreferencesAndContactInfo(t *testing.T) {
	user := newUser("ben", func(u *db.User) {
		u.Preferences.Push = false
		u.Phone = nil
	})
	store := newMemStore(user)
	fc := allOK()
	d := newTestDispatcher(store, fc)

	res, err := d.Dispatch(context.Background(), Request{UserID: user.ID, Type: db.TypeReminder, Title: "t", Message: "m"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rows := store.deliveriesFor(res.NotificationID)
	if len(rows) != 1 || rows[0].Channel != db.ChannelEmail {
		t.Fatalf("expected only an EMAIL delivery, got %+v", rows)
	}
	if res.Status != db.StatusSent {
		t.Fatalf("status = %s", res.Status)
	}
	if len(fc.callsTo("push")) != 0 || len(fc.callsTo("sms")) != 0 {
		t.Fatal("push and sms must not be attempted")
	}
}

func TestDispatch_AllChannelsFail(t *testing.T) {
	user := newUser("cy")
	store := newMemStore(user)
	fc := &fakeChannels{
		pushErr:  errors.New("token expired"),
		smsOK:    false,
		emailErr: errors.New("ses throttled"),
	}
	d := newTestDispatcher(store, fc)

	res, err := d.Dispatch(context.Background(), Request{UserID: user.ID, Type: db.TypeProjectDeleted, Title: "t", Message: "m"})
	if err != nil {
		t.Fatalf("channel failures must not surface as errors: %v", err)
	}
	if res.Status != db.StatusFailed {
		t.Fatalf("status = %s", res.Status)
	}

	n := store.notification(res.NotificationID)
	if n.Status != db.StatusFailed || n.SentAt != nil {
		t.Fatalf("expected FAILED without sentAt, got %+v", n)
	}

	want := map[db.Channel]string{
		db.ChannelPush:  "token expired",
		db.ChannelSMS:   "sms sending failed",
		db.ChannelEmail: "ses throttled",
	}
	rows := store.deliveriesFor(res.NotificationID)
	if len(rows) != 3 {
		t.Fatalf("expected 3 FAILED deliveries, got %d", len(rows))
	}
	for _, dl := range rows {
		if dl.Status != db.DeliveryFailed || dl.DeliveredAt != nil {
			t.Errorf("unexpected delivery: %+v", dl)
		}
		if dl.ErrorMessage == nil || *dl.ErrorMessage != want[dl.Channel] {
			t.Errorf("%s: error detail = %v", dl.Channel, dl.ErrorMessage)
		}
	}
}

func TestDispatch_PartialFailureStillSent(t *testing.T) {
	user := newUser("dee")
	store := newMemStore(user)
	fc := &fakeChannels{pushOK: true, smsErr: errors.New("invalid number"), emailOK: false}
	d := newTestDispatcher(store, fc)

	res, err := d.Dispatch(context.Background(), Request{UserID: user.ID, Type: db.TypeProjectAssigned, Title: "t", Message: "m"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != db.StatusSent {
		t.Fatalf("one success should mean SENT, got %s", res.Status)
	}
}

func TestDispatch_AdapterPanicRecorded(t *testing.T) {
	user := newUser("eve")
	store := newMemStore(user)
	fc := allOK()
	fc.panicOn = "sms"
	d := newTestDispatcher(store, fc)

	res, err := d.Dispatch(context.Background(), Request{UserID: user.ID, Type: db.TypeReminder, Title: "t", Message: "m"})
	if err != nil {
		t.Fatal(err)
	}

	for _, r := range res.Deliveries {
		if r.Channel == db.ChannelSMS {
			if r.Success || !strings.Contains(r.Error, "panic") {
				t.Fatalf("panic not recorded as failure: %+v", r)
			}
		}
	}
	if res.Status != db.StatusSent {
		t.Fatalf("status = %s", res.Status)
	}
}

func TestDispatch_UnconfiguredChannel(t *testing.T) {
	user := newUser("fay")
	store := newMemStore(user)
	fc := allOK()
	d := NewDispatcher(store, channel.Set{Email: fc}, NewRenderer("Quorum", "https://quorum.example"), zap.NewNop())

	res, err := d.Dispatch(context.Background(), Request{UserID: user.ID, Type: db.TypeReminder, Title: "t", Message: "m"})
	if err != nil {
		t.Fatal(err)
	}

	failed := 0
	for _, r := range res.Deliveries {
		if !r.Success {
			failed++
			if r.Error != errNotConfigured.Error() {
				t.Errorf("%s: error = %q", r.Channel, r.Error)
			}
		}
	}
	if failed != 2 || res.Status != db.StatusSent {
		t.Fatalf("expected push and sms FAILED with email SENT, got %+v", res)
	}
}

func TestDispatch_NoEligibleChannels(t *testing.T) {
	user := newUser("gus", func(u *db.User) {
		u.Email, u.Phone, u.PushToken = nil, nil, nil
	})
	store := newMemStore(user)
	d := newTestDispatcher(store, allOK())

	res, err := d.Dispatch(context.Background(), Request{UserID: user.ID, Type: db.TypeReminder, Title: "t", Message: "m"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != db.StatusFailed || len(res.Deliveries) != 0 {
		t.Fatalf("expected FAILED with no deliveries, got %+v", res)
	}
	if store.notification(res.NotificationID) == nil {
		t.Fatal("notification must still be persisted")
	}
}

func TestDispatch_RequestedChannelsOnly(t *testing.T) {
	user := newUser("hal")
	store := newMemStore(user)
	fc := allOK()
	d := newTestDispatcher(store, fc)

	res, err := d.Dispatch(context.Background(), Request{
		UserID:   user.ID,
		Type:     db.TypeReminder,
		Title:    "t",
		Message:  "m",
		Channels: []db.Channel{db.ChannelSMS, db.ChannelSMS, "FAX"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Deliveries) != 1 || res.Deliveries[0].Channel != db.ChannelSMS {
		t.Fatalf("expected a single SMS attempt, got %+v", res.Deliveries)
	}
	if got := store.notification(res.NotificationID).Channels; len(got) != 1 {
		t.Fatalf("stored channels = %v", got)
	}
}

func TestDispatch_PendingBeforeSend(t *testing.T) {
	user := newUser("ida")
	store := newMemStore(user)
	fc := allOK()
	fc.onSend = func() {
		for _, n := range store.notificationsFor(user.ID) {
			if n.Status != db.StatusPending {
				t.Errorf("notification should be PENDING while sending, got %s", n.Status)
			}
		}
	}
	d := newTestDispatcher(store, fc)

	if _, err := d.Dispatch(context.Background(), Request{UserID: user.ID, Type: db.TypeReminder, Title: "t", Message: "m"}); err != nil {
		t.Fatal(err)
	}
}

func TestDispatch_UnknownUser(t *testing.T) {
	store := newMemStore()
	d := newTestDispatcher(store, allOK())

	_, err := d.Dispatch(context.Background(), Request{UserID: uuid.New(), Type: db.TypeReminder, Title: "t", Message: "m"})
	if !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if len(store.notifications) != 0 {
		t.Fatal("no notification should be created for an unknown user")
	}
}
