package github

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/steveyegge/reposync/internal/reposync"
	"github.com/steveyegge/reposync/internal/types"
)

// newTestServer routes paths to handlers and fails the test on anything else.
func newTestServer(t *testing.T, routes map[string]http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, ok := routes[r.URL.Path]
		if !ok {
			t.Errorf("unexpected request %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		h(w, r)
	}))
	t.Cleanup(server.Close)
	return server, NewClient("test-token").WithBaseURL(server.URL)
}

func writeJSON(w http.ResponseWriter, v any) {
	_ = json.NewEncoder(w).Encode(v)
}

// TestNewClient verifies the constructor creates a properly configured client.
func TestNewClient(t *testing.T) {
	client := NewClient("test-token")

	if client.BaseURL != DefaultAPIEndpoint {
		t.Errorf("BaseURL = %q, want %q", client.BaseURL, DefaultAPIEndpoint)
	}
	if client.HTTPClient == nil {
		t.Fatal("HTTPClient is nil, want non-nil default client")
	}
	if client.HTTPClient.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v, want %v", client.HTTPClient.Timeout, DefaultTimeout)
	}
}

// TestClientWithBaseURL verifies custom base URL setting.
func TestClientWithBaseURL(t *testing.T) {
	client := NewClient("token").WithBaseURL("https://github.example.com/api/v3/")

	if client.BaseURL != "https://github.example.com/api/v3" {
		t.Errorf("BaseURL = %q, want trailing slash trimmed", client.BaseURL)
	}
	custom := &http.Client{Timeout: time.Minute}
	if got := client.WithHTTPClient(custom); got.HTTPClient != custom || got.BaseURL != client.BaseURL {
		t.Error("WithHTTPClient did not keep base URL or set client")
	}
}

func TestRequestsCarryBearerToken(t *testing.T) {
	var auth string
	_, client := newTestServer(t, map[string]http.HandlerFunc{
		"/user": func(w http.ResponseWriter, r *http.Request) {
			auth = r.Header.Get("Authorization")
			writeJSON(w, User{ID: 1, Login: "alice"})
		},
	})

	if _, err := client.CurrentUser(context.Background()); err != nil {
		t.Fatalf("CurrentUser() error = %v", err)
	}
	if auth != "Bearer test-token" {
		t.Errorf("Authorization = %q, want bearer token", auth)
	}
}

func TestGetUserAccounts(t *testing.T) {
	_, client := newTestServer(t, map[string]http.HandlerFunc{
		"/user": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, User{ID: 7, Login: "alice", AvatarURL: "https://a/alice", HTMLURL: "https://github.com/alice"})
		},
		"/user/orgs": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, []Organization{{ID: 100, Login: "acme"}, {ID: 200, Login: "initech"}})
		},
	})

	listing, err := client.GetUserAccounts(context.Background())
	if err != nil {
		t.Fatalf("GetUserAccounts() error = %v", err)
	}
	if listing.User.ProviderInternalID != "7" || listing.User.Type != types.AccountTypeUser {
		t.Errorf("User = %+v, want id 7 of type USER", listing.User)
	}
	if len(listing.Organizations) != 2 {
		t.Fatalf("Organizations = %d, want 2", len(listing.Organizations))
	}
	if got := listing.Organizations[0]; got.ProviderInternalID != "100" || got.URL != "https://github.com/acme" {
		t.Errorf("Organizations[0] = %+v", got)
	}
}

// TestGetRepositories_Pagination verifies the client follows Link headers.
func TestGetRepositories_Pagination(t *testing.T) {
	var page atomic.Int32
	_, client := newTestServer(t, map[string]http.HandlerFunc{
		"/orgs/acme/repos": func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("type") != "all" {
				t.Errorf("type = %q, want all", r.URL.Query().Get("type"))
			}
			if page.Add(1) == 1 {
				w.Header().Set("Link", `<`+r.URL.Path+`?page=2>; rel="next"`)
				writeJSON(w, []Repository{{ID: 1, Name: "api", FullName: "acme/api", Permissions: &Permissions{Admin: true, Push: true, Pull: true}}})
				return
			}
			writeJSON(w, []Repository{{ID: 2, Name: "web", FullName: "acme/web", Private: true}})
		},
	})

	repos, err := client.GetRepositories(context.Background(), reposync.ProviderAccount{Login: "acme", Type: types.AccountTypeOrganization})
	if err != nil {
		t.Fatalf("GetRepositories() error = %v", err)
	}
	if len(repos) != 2 {
		t.Fatalf("GetRepositories() returned %d repos, want 2 (from 2 pages)", len(repos))
	}
	if !repos[0].Permissions.Admin {
		t.Error("repos[0] should be admin")
	}
	if repos[1].Permissions.Admin || !repos[1].Permissions.Pull || !repos[1].Private {
		t.Errorf("repos[1] = %+v, want private read-only", repos[1])
	}
}

func TestGetRepositories_PersonalAccount(t *testing.T) {
	_, client := newTestServer(t, map[string]http.HandlerFunc{
		"/user/repos": func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("affiliation") != "owner" {
				t.Errorf("affiliation = %q, want owner", r.URL.Query().Get("affiliation"))
			}
			writeJSON(w, []Repository{{ID: 9, Name: "dotfiles"}})
		},
	})

	repos, err := client.GetRepositories(context.Background(), reposync.ProviderAccount{Login: "alice", Type: types.AccountTypeUser})
	if err != nil {
		t.Fatalf("GetRepositories() error = %v", err)
	}
	if len(repos) != 1 || repos[0].ProviderInternalID != "9" {
		t.Errorf("GetRepositories() = %+v", repos)
	}
}

func TestGetUserRoleForAccount(t *testing.T) {
	_, client := newTestServer(t, map[string]http.HandlerFunc{
		"/orgs/acme/memberships/alice": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, Membership{State: "active", Role: RoleAdmin})
		},
		"/orgs/initech/memberships/alice": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"Not Found"}`))
		},
		"/orgs/pending/memberships/alice": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, Membership{State: "pending", Role: RoleMember})
		},
	})
	user := &types.User{ProviderInternalID: "7", Login: "alice"}
	ctx := context.Background()

	tests := []struct {
		name    string
		account reposync.ProviderAccount
		want    string
		wantOK  bool
	}{
		{"active admin", reposync.ProviderAccount{Login: "acme", Type: types.AccountTypeOrganization}, RoleAdmin, true},
		{"not a member", reposync.ProviderAccount{Login: "initech", Type: types.AccountTypeOrganization}, "", false},
		{"pending", reposync.ProviderAccount{Login: "pending", Type: types.AccountTypeOrganization}, "", false},
		{"own account", reposync.ProviderAccount{ProviderInternalID: "7", Login: "alice", Type: types.AccountTypeUser}, RoleAdmin, true},
		{"other user", reposync.ProviderAccount{ProviderInternalID: "8", Login: "bob", Type: types.AccountTypeUser}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := client.GetUserRoleForAccount(ctx, tt.account, user)
			if err != nil {
				t.Fatalf("GetUserRoleForAccount() error = %v", err)
			}
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("GetUserRoleForAccount() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestGetUserRoleForAccount_ServerError(t *testing.T) {
	_, client := newTestServer(t, map[string]http.HandlerFunc{
		"/orgs/acme/memberships/alice": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		},
	})

	_, _, err := client.GetUserRoleForAccount(context.Background(),
		reposync.ProviderAccount{Login: "acme", Type: types.AccountTypeOrganization},
		&types.User{Login: "alice"})
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
	if IsNotFound(err) {
		t.Error("500 must not be treated as not found")
	}
}

func TestListMembers(t *testing.T) {
	_, client := newTestServer(t, map[string]http.HandlerFunc{
		"/orgs/acme/members": func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Query().Get("role") {
			case RoleAdmin:
				writeJSON(w, []User{{ID: 1, Login: "alice"}})
			case RoleMember:
				writeJSON(w, []User{{ID: 1, Login: "alice"}, {ID: 2, Login: "bob"}})
			default:
				t.Errorf("unexpected role %q", r.URL.Query().Get("role"))
			}
		},
	})

	members, err := client.ListMembers(context.Background(), reposync.ProviderAccount{Login: "acme"})
	if err != nil {
		t.Fatalf("ListMembers() error = %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("ListMembers() = %d members, want 2", len(members))
	}
	if members[0].Permission != RoleAdmin || members[1].Permission != RoleMember {
		t.Errorf("permissions = %q, %q", members[0].Permission, members[1].Permission)
	}
}

// TestDoRequest_RateLimitRetry verifies 429 responses are retried.
func TestDoRequest_RateLimitRetry(t *testing.T) {
	var attempts atomic.Int32
	_, client := newTestServer(t, map[string]http.HandlerFunc{
		"/user": func(w http.ResponseWriter, r *http.Request) {
			if attempts.Add(1) == 1 {
				w.Header().Set("Retry-After", "0")
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			writeJSON(w, User{ID: 1, Login: "alice"})
		},
	})

	user, err := client.CurrentUser(context.Background())
	if err != nil {
		t.Fatalf("CurrentUser() error = %v", err)
	}
	if user.Login != "alice" || attempts.Load() != 2 {
		t.Errorf("login = %q after %d attempts", user.Login, attempts.Load())
	}
}

func TestHasNextPage(t *testing.T) {
	tests := []struct {
		name string
		link string
		want bool
	}{
		{"empty", "", false},
		{"next", `<https://api.github.com/x?page=2>; rel="next", <https://api.github.com/x?page=5>; rel="last"`, true},
		{"last only", `<https://api.github.com/x?page=5>; rel="last"`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.link != "" {
				h.Set("Link", tt.link)
			}
			next, ok := hasNextPage(h)
			if ok != tt.want {
				t.Errorf("hasNextPage() = %v, want %v", ok, tt.want)
			}
			if ok && !strings.Contains(next, "page=2") {
				t.Errorf("next = %q", next)
			}
		})
	}
}
