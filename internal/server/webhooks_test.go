package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"protodesk/internal/app"
	"protodesk/internal/config"
	"protodesk/internal/engine"
)

func TestNotifierDeliversDueReminders(t *testing.T) {
	ctx := context.Background()
	a, err := app.Open(ctx, t.TempDir(), nil)
	require.NoError(t, err)
	defer a.Close()
	e := a.Engine
	now := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	e.Now = func() time.Time { return now }

	cust, err := e.CreateCustomer(ctx, engine.CustomerOptions{FirstName: "A", LastName: "B", Email: "a@b.io"})
	require.NoError(t, err)
	broker, err := e.CreatePersonnel(ctx, engine.PersonnelOptions{FirstName: "C", LastName: "D", Email: "c@d.io"})
	require.NoError(t, err)
	p, err := e.CreateProtocol(ctx, engine.ProtocolCreateOptions{Title: "t", Description: "d", CustomerID: cust.ID, AssignedTo: broker.ID, Priority: "Low", ActorID: broker.ID})
	require.NoError(t, err)
	due, err := e.CreateReminder(ctx, engine.ReminderOptions{ProtocolID: p.ID, Text: "call", ReminderDate: now.Add(-time.Minute), ActorID: broker.ID})
	require.NoError(t, err)
	_, err = e.CreateReminder(ctx, engine.ReminderOptions{ProtocolID: p.ID, Text: "later", ReminderDate: now.Add(time.Hour), ActorID: broker.ID})
	require.NoError(t, err)

	var mu sync.Mutex
	var got []reminderEvent
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var evt reminderEvent
		if err := json.NewDecoder(r.Body).Decode(&evt); err == nil {
			mu.Lock()
			got = append(got, evt)
			mu.Unlock()
		}
		assert.Equal(t, "secret", r.Header.Get("X-Hook-Token"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hook.Close()

	disabled := false
	n := &Notifier{
		Engine: e,
		Webhooks: []config.WebhookConfig{
			{URL: hook.URL, Headers: map[string]string{"X-Hook-Token": "secret"}},
			{URL: "http://127.0.0.1:1/unused", Enabled: &disabled},
		},
		Client: hook.Client(),
	}
	sent, err := n.DispatchDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	mu.Lock()
	require.Len(t, got, 1)
	assert.Equal(t, due.ID, got[0].ReminderID)
	assert.Equal(t, p.Number, got[0].ProtocolNumber)
	mu.Unlock()

	sent, err = n.DispatchDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, sent)
}

func TestNotifierKeepsReminderOnFailure(t *testing.T) {
	ctx := context.Background()
	a, err := app.Open(ctx, t.TempDir(), nil)
	require.NoError(t, err)
	defer a.Close()
	e := a.Engine

	cust, err := e.CreateCustomer(ctx, engine.CustomerOptions{FirstName: "A", LastName: "B", Email: "a@b.io"})
	require.NoError(t, err)
	broker, err := e.CreatePersonnel(ctx, engine.PersonnelOptions{FirstName: "C", LastName: "D", Email: "c@d.io"})
	require.NoError(t, err)
	p, err := e.CreateProtocol(ctx, engine.ProtocolCreateOptions{Title: "t", Description: "d", CustomerID: cust.ID, AssignedTo: broker.ID, Priority: "Low", ActorID: broker.ID})
	require.NoError(t, err)
	_, err = e.CreateReminder(ctx, engine.ReminderOptions{ProtocolID: p.ID, Text: "call", ReminderDate: time.Now().Add(-time.Minute), ActorID: broker.ID})
	require.NoError(t, err)

	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer hook.Close()

	n := &Notifier{Engine: e, Webhooks: []config.WebhookConfig{{URL: hook.URL}}, Client: hook.Client()}
	sent, err := n.DispatchDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, sent)

	pending, err := e.DueReminders(ctx, 0, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestNotifierDoesNotRepeatAcceptedDeliveries(t *testing.T) {
	ctx := context.Background()
	a, err := app.Open(ctx, t.TempDir(), nil)
	require.NoError(t, err)
	defer a.Close()
	e := a.Engine

	cust, err := e.CreateCustomer(ctx, engine.CustomerOptions{FirstName: "A", LastName: "B", Email: "a@b.io"})
	require.NoError(t, err)
	broker, err := e.CreatePersonnel(ctx, engine.PersonnelOptions{FirstName: "C", LastName: "D", Email: "c@d.io"})
	require.NoError(t, err)
	p, err := e.CreateProtocol(ctx, engine.ProtocolCreateOptions{Title: "t", Description: "d", CustomerID: cust.ID, AssignedTo: broker.ID, Priority: "Low", ActorID: broker.ID})
	require.NoError(t, err)
	_, err = e.CreateReminder(ctx, engine.ReminderOptions{ProtocolID: p.ID, Text: "call", ReminderDate: time.Now().Add(-time.Minute), ActorID: broker.ID})
	require.NoError(t, err)

	var okHits, flakyHits atomic.Int32
	var flakyUp atomic.Bool
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		okHits.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ok.Close()
	flaky := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flakyHits.Add(1)
		if !flakyUp.Load() {
			http.Error(w, "down", http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer flaky.Close()

	n := &Notifier{Engine: e, Webhooks: []config.WebhookConfig{{URL: ok.URL}, {URL: flaky.URL}}}
	for i := 0; i < 2; i++ {
		sent, err := n.DispatchDue(ctx)
		require.NoError(t, err)
		assert.Zero(t, sent)
	}
	assert.EqualValues(t, 1, okHits.Load())
	assert.EqualValues(t, 2, flakyHits.Load())

	flakyUp.Store(true)
	sent, err := n.DispatchDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.EqualValues(t, 1, okHits.Load())
	assert.EqualValues(t, 3, flakyHits.Load())
}

func TestNotifierRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	a, err := app.Open(ctx, t.TempDir(), nil)
	require.NoError(t, err)
	defer a.Close()

	n := &Notifier{Engine: a.Engine, Webhooks: []config.WebhookConfig{{URL: "http://127.0.0.1:1/"}}, Interval: 10 * time.Millisecond}
	done := make(chan error, 1)
	go func() { done <- n.Run(ctx) }()
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("notifier did not stop")
	}
}
