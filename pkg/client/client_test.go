package client_test

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/skilldex-dev/skilldex/pkg/client"
)

func TestSearch_queryParams(t *testing.T) {
	var gotQuery map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/registry/search" {
			t.Errorf("path: %s", r.URL.Path)
		}
		gotQuery = r.URL.Query()
		json.NewEncoder(w).Encode(map[string]any{
			"skills": []map[string]any{{"slug": "acme-widget", "name": "Widget Helper", "stars": 42}},
			"total":  1,
		})
	}))
	defer srv.Close()

	c := client.New(srv.URL)
	res, err := c.Search(context.Background(), client.SearchParams{
		Query:          "widgets",
		Category:       "coding",
		Limit:          10,
		IncludePrivate: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Total != 1 || len(res.Skills) != 1 || res.Skills[0].Slug != "acme-widget" {
		t.Errorf("result: %+v", res)
	}
	for key, want := range map[string]string{
		"q": "widgets", "category": "coding", "limit": "10", "include_private": "true",
	} {
		if got := gotQuery[key]; len(got) != 1 || got[0] != want {
			t.Errorf("query %s: %v", key, got)
		}
	}
	if _, ok := gotQuery["offset"]; ok {
		t.Error("zero offset must be omitted")
	}
}

func TestGetSkill_notFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "not found"})
	}))
	defer srv.Close()

	c := client.New(srv.URL)
	_, err := c.GetSkill(context.Background(), "acme", "gone")
	if !errors.Is(err, client.ErrNotFound) {
		t.Errorf("got %v", err)
	}
}

func TestGetSkillByIdentifier(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/registry/skill/acme-widget" {
			t.Errorf("path: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"name":    "Widget Helper",
			"content": "---\nname: Widget Helper\n---\nbody",
		})
	}))
	defer srv.Close()

	c := client.New(srv.URL)
	doc, err := c.GetSkillByIdentifier(context.Background(), "acme-widget")
	if err != nil {
		t.Fatal(err)
	}
	if doc.Name != "Widget Helper" || doc.Content == "" {
		t.Errorf("doc: %+v", doc)
	}
}

func TestDownload(t *testing.T) {
	archive := []byte("PK\x03\x04fake-zip-bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/skills/acme-widget/download" {
			t.Errorf("path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/zip")
		w.Write(archive)
	}))
	defer srv.Close()

	c := client.New(srv.URL)
	got, err := c.Download(context.Background(), "acme-widget")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(archive) {
		t.Errorf("archive: %q", got)
	}
}

func TestErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded"})
	}))
	defer srv.Close()

	c := client.New(srv.URL)
	_, err := c.Search(context.Background(), client.SearchParams{})
	if err == nil || err.Error() != "registry: rate limit exceeded (status 429)" {
		t.Errorf("got %v", err)
	}
}

func TestBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(map[string]any{"skills": []any{}, "total": 0})
	}))
	defer srv.Close()

	c := client.New(srv.URL, client.WithBearerToken("tok-123"))
	if _, err := c.Search(context.Background(), client.SearchParams{}); err != nil {
		t.Fatal(err)
	}
	if gotAuth != "Bearer tok-123" {
		t.Errorf("Authorization: %q", gotAuth)
	}
}

func TestFavorite(t *testing.T) {
	var gotMethod string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]any{"slug": gotBody["slug"], "favorited": r.Method == http.MethodPost})
	}))
	defer srv.Close()

	c := client.New(srv.URL)
	if err := c.Favorite(context.Background(), "acme-widget", true); err != nil {
		t.Fatal(err)
	}
	if gotMethod != http.MethodPost || gotBody["slug"] != "acme-widget" {
		t.Errorf("%s %v", gotMethod, gotBody)
	}
	if err := c.Favorite(context.Background(), "acme-widget", false); err != nil {
		t.Fatal(err)
	}
	if gotMethod != http.MethodDelete {
		t.Errorf("unfavorite method: %s", gotMethod)
	}
}

func TestDeviceAuthFlow(t *testing.T) {
	var initReq map[string]string
	var tokenReq map[string]string
	var bearerOnNext string

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/init", func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&initReq)
		json.NewEncoder(w).Encode(map[string]any{
			"session_id": "11111111-2222-3333-4444-555555555555",
			"expires_in": 300,
		})
	})
	mux.HandleFunc("/auth/token", func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&tokenReq)
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "jwt-abc",
			"token_type":    "Bearer",
			"expires_in":    3600,
			"refresh_token": "sr_xyz",
			"user":          map[string]string{"id": "u1", "username": "octocat"},
		})
	})
	mux.HandleFunc("/categories", func(w http.ResponseWriter, r *http.Request) {
		bearerOnNext = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(map[string]any{"categories": []any{}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := client.New(srv.URL)
	ctx := context.Background()

	session, err := c.InitAuth(ctx, "http://127.0.0.1:8423/callback", "state-1", "skilldex-cli")
	if err != nil {
		t.Fatal(err)
	}
	if session.SessionID == "" || session.ExpiresIn != 300 {
		t.Errorf("session: %+v", session)
	}
	if initReq["callback_url"] != "http://127.0.0.1:8423/callback" || initReq["state"] != "state-1" {
		t.Errorf("init request: %v", initReq)
	}
	if initReq["code_challenge_method"] != "S256" {
		t.Errorf("challenge method: %q", initReq["code_challenge_method"])
	}

	// The challenge sent at init is derived from the locally held verifier.
	sum := sha256.Sum256([]byte(session.CodeVerifier()))
	if initReq["code_challenge"] != base64.RawURLEncoding.EncodeToString(sum[:]) {
		t.Error("code_challenge does not match the verifier")
	}

	pair, err := c.ExchangeCode(ctx, session, "auth-code-1")
	if err != nil {
		t.Fatal(err)
	}
	if pair.AccessToken != "jwt-abc" || pair.User == nil || pair.User.Username != "octocat" {
		t.Errorf("pair: %+v", pair)
	}
	if tokenReq["code"] != "auth-code-1" || tokenReq["code_verifier"] != session.CodeVerifier() {
		t.Errorf("token request: %v", tokenReq)
	}

	// A successful exchange installs the access token on the client.
	if _, err := c.Categories(ctx); err != nil {
		t.Fatal(err)
	}
	if bearerOnNext != "Bearer jwt-abc" {
		t.Errorf("Authorization after exchange: %q", bearerOnNext)
	}
}

func TestRefreshToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		json.NewDecoder(r.Body).Decode(&req)
		if req["refresh_token"] != "sr_old" {
			t.Errorf("request: %v", req)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "jwt-new",
			"refresh_token": "sr_new",
		})
	}))
	defer srv.Close()

	c := client.New(srv.URL)
	pair, err := c.RefreshToken(context.Background(), "sr_old")
	if err != nil {
		t.Fatal(err)
	}
	if pair.AccessToken != "jwt-new" || pair.RefreshToken != "sr_new" {
		t.Errorf("pair: %+v", pair)
	}
}
