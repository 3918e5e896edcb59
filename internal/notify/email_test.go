package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMailerSend(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	m := NewMailer(srv.URL, "key", "support@example.com")
	err := m.Send(context.Background(), Message{To: "a@example.com", Subject: "Re: ticket", HTML: "<p>hi</p>"})
	require.NoError(t, err)
	assert.Equal(t, "support@example.com", got["from"])
	assert.Equal(t, []any{"a@example.com"}, got["to"])
	assert.Equal(t, "Re: ticket", got["subject"])
}

func TestMailerSendErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	m := NewMailer(srv.URL, "", "from@example.com")
	assert.Error(t, m.Send(context.Background(), Message{To: "a@example.com"}))
	assert.Error(t, m.Send(context.Background(), Message{}))
}
