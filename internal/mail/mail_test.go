package mail

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xbora/mio/internal/types"
	"github.com/xbora/mio/internal/worker"
)

func fastRetry() *worker.RetryPolicy {
	return &worker.RetryPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond, Multiplier: 1, MaxDelay: time.Millisecond}
}

var testInvite = Invite{
	RecipientEmail: "sam@example.com",
	RecipientName:  "Sam",
	OwnerName:      "Alex",
	SkillName:      "meals",
	AcceptURL:      "https://mio.test/accept-share?token=abc",
}

func TestSendInvite(t *testing.T) {
	var got message
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/emails", r.URL.Path)
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"id":"em_1"}`))
	}))
	defer srv.Close()

	m := New(Config{APIURL: srv.URL, APIKey: "re_key", Retry: fastRetry()})
	id, err := m.SendInvite(context.Background(), testInvite)
	require.NoError(t, err)
	require.Equal(t, "em_1", id)
	require.Equal(t, "Bearer re_key", auth)

	require.Equal(t, DefaultFrom, got.From)
	require.Equal(t, []string{"sam@example.com"}, got.To)
	require.Equal(t, `Alex shared "meals" skill with your AI`, got.Subject)
	require.Contains(t, got.HTML, "Hi Sam,")
	require.Contains(t, got.HTML, "with your AI, your AI.")
	require.Contains(t, got.HTML, `href="https://mio.test/accept-share?token=abc"`)
	require.Contains(t, got.Text, "Accept Invitation")
	require.NotContains(t, got.Text, "<a ")
}

func TestSendInviteRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "busy", http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"id":"em_2"}`))
	}))
	defer srv.Close()

	m := New(Config{APIURL: srv.URL, APIKey: "k", Retry: fastRetry()})
	id, err := m.SendInvite(context.Background(), testInvite)
	require.NoError(t, err)
	require.Equal(t, "em_2", id)
	require.Equal(t, int32(2), calls.Load())
}

func TestSendInviteClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"message":"domain not verified"}`, http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	m := New(Config{APIURL: srv.URL, APIKey: "k", Retry: fastRetry()})
	_, err := m.SendInvite(context.Background(), testInvite)
	require.Error(t, err)
	require.True(t, types.IsUpstream(err))

	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	require.Equal(t, http.StatusUnprocessableEntity, perr.Status)
	require.Equal(t, int32(1), calls.Load())
}

func TestSendInviteNotConfigured(t *testing.T) {
	_, err := New(Config{}).SendInvite(context.Background(), testInvite)
	require.ErrorIs(t, err, ErrNotConfigured)

	_, err = New(Config{APIKey: "k"}).SendInvite(context.Background(), Invite{})
	require.True(t, types.IsValidation(err))
}

func TestInviteRender(t *testing.T) {
	inv := testInvite
	inv.RecipientName = ""
	inv.RecipientAIName = "Juno"
	inv.OwnerName = "<b>Alex</b>"

	html, text, err := inv.render()
	require.NoError(t, err)
	require.Contains(t, html, "Hello,")
	require.Contains(t, html, "with your AI, Juno.")
	require.Contains(t, html, "&lt;b&gt;Alex&lt;/b&gt;")
	require.True(t, strings.Contains(text, "Juno"))
}
