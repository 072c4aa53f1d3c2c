package ci

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/busyloop/hu/pkg/engine"
)

func TestGitHub_CombinedStatus(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		status    int
		wantState engine.CIState
		wantFails int
		wantErr   bool
	}{
		{
			name:      "success",
			body:      `{"state":"success","statuses":[{"context":"ci/test","state":"success"}]}`,
			status:    http.StatusOK,
			wantState: engine.CIStateSuccess,
		},
		{
			name: "failure",
			body: `{"state":"failure","statuses":[
				{"context":"ci/test","state":"failure","description":"3 tests failed","target_url":"https://ci.example.com/1"},
				{"context":"ci/lint","state":"success"}]}`,
			status:    http.StatusOK,
			wantState: engine.CIStateFailure,
			wantFails: 1,
		},
		{
			name:      "no statuses is unknown",
			body:      `{"state":"pending","statuses":[]}`,
			status:    http.StatusOK,
			wantState: engine.CIStateUnknown,
		},
		{
			name:    "unauthorized",
			body:    `{"message":"Bad credentials"}`,
			status:  http.StatusUnauthorized,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/repos/busyloop/shop/commits/abc123/status" {
					t.Errorf("path = %s", r.URL.Path)
				}
				if r.Header.Get("Authorization") != "Bearer gh-token" {
					t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			g := NewGitHub("gh-token", "busyloop/shop", WithBaseURL(srv.URL))
			got, err := g.CombinedStatus(context.Background(), "abc123")
			if (err != nil) != tt.wantErr {
				t.Fatalf("CombinedStatus() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if got.State != tt.wantState {
				t.Errorf("State = %q, want %q", got.State, tt.wantState)
			}
			if n := len(got.Failures()); n != tt.wantFails {
				t.Errorf("Failures() = %d, want %d", n, tt.wantFails)
			}
			if got.Commit != "abc123" {
				t.Errorf("Commit = %q", got.Commit)
			}
		})
	}
}
