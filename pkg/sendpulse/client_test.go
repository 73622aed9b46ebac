package sendpulse

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/simcheck/simcheck-backend/pkg/config"
)

func TestSendCachesTokenAndEncodesHTML(t *testing.T) {
	var tokenCalls atomic.Int32
	var bodies []map[string]emailBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth/access_token":
			tokenCalls.Add(1)
			require.NoError(t, r.ParseForm())
			require.Equal(t, "id", r.PostForm.Get("client_id"))
			require.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"access_token":"sp-token","token_type":"Bearer","expires_in":3600}`))
		case "/smtp/emails":
			require.Equal(t, "Bearer sp-token", r.Header.Get("Authorization"))
			var body map[string]emailBody
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			bodies = append(bodies, body)
			_, _ = w.Write([]byte(`{"result":true,"id":"x"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client, err := NewClient(context.Background(), config.SendPulseConfig{
		ClientID: "id", ClientSecret: "secret", BaseURL: srv.URL, FromEmail: "noreply@simcheck.app", FromName: "SimCheck",
	}, nil)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		require.NoError(t, client.Send(context.Background(), Email{ToEmail: "ada@example.com", Subject: "Hi", HTML: "<p>hello</p>"}))
	}
	require.EqualValues(t, 1, tokenCalls.Load())
	require.Len(t, bodies, 2)
	html, err := base64.StdEncoding.DecodeString(bodies[0]["email"].HTML)
	require.NoError(t, err)
	require.Equal(t, "<p>hello</p>", string(html))
	require.Equal(t, "noreply@simcheck.app", bodies[0]["email"].From.Email)
}

func TestSendSurfacesRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth/access_token" {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"access_token":"t","token_type":"Bearer","expires_in":3600}`))
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"is_error":true,"message":"bad sender"}`))
	}))
	defer srv.Close()

	client, err := NewClient(context.Background(), config.SendPulseConfig{ClientID: "id", ClientSecret: "s", BaseURL: srv.URL, FromEmail: "a@b.c"}, nil)
	require.NoError(t, err)
	err = client.Send(context.Background(), Email{ToEmail: "x@y.z", Subject: "s", HTML: "h"})
	require.ErrorContains(t, err, "bad sender")

	_, err = NewClient(context.Background(), config.SendPulseConfig{}, nil)
	require.ErrorIs(t, err, errCredentialsRequired)
}
