package twitter

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fluxgate/fluxgate/internal/auth/session"
	"github.com/fluxgate/fluxgate/internal/db/models"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newLinkTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	if err := db.AutoMigrate(&models.LinkedAccount{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

// fakeProvider stands in for Twitter's token and user-info endpoints.
type fakeProvider struct {
	tokenCalls   atomic.Int64
	userCalls    atomic.Int64
	tokenStatus  int
	userStatus   int
	accountID    string
	username     string
	lastVerifier string
	server       *httptest.Server
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()
	fp := &fakeProvider{
		tokenStatus: http.StatusOK,
		userStatus:  http.StatusOK,
		accountID:   "12345",
		username:    "balloonfan",
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/2/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		fp.tokenCalls.Add(1)
		r.ParseForm()
		fp.lastVerifier = r.FormValue("code_verifier")
		if fp.tokenStatus != http.StatusOK {
			w.WriteHeader(fp.tokenStatus)
			w.Write([]byte(`{"error":"invalid_request"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  "fresh-access",
			"refresh_token": "fresh-refresh",
			"token_type":    "bearer",
			"expires_in":    7200,
		})
	})
	mux.HandleFunc("/2/users/me", func(w http.ResponseWriter, r *http.Request) {
		fp.userCalls.Add(1)
		if fp.userStatus != http.StatusOK {
			w.WriteHeader(fp.userStatus)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"data":{"id":%q,"name":"Balloon Fan","username":%q}}`, fp.accountID, fp.username)
	})

	fp.server = httptest.NewServer(mux)
	t.Cleanup(fp.server.Close)
	return fp
}

func (fp *fakeProvider) config() Config {
	return Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://localhost:8080/twitter/auth/callback",
		FrontendURL:  "http://localhost:5173",
		TokenURL:     fp.server.URL + "/2/oauth2/token",
		UserInfoURL:  fp.server.URL + "/2/users/me",
	}
}

func callbackRequest(code, state string) *http.Request {
	target := "/twitter/auth/callback"
	q := url.Values{}
	if code != "" {
		q.Set("code", code)
	}
	if state != "" {
		q.Set("state", state)
	}
	if len(q) > 0 {
		target += "?" + q.Encode()
	}
	return httptest.NewRequest("GET", target, nil)
}

func redirectReason(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	loc := w.Header().Get("Location")
	u, err := url.Parse(loc)
	if err != nil {
		t.Fatalf("bad redirect %q: %v", loc, err)
	}
	return u.Query().Get("reason")
}

func TestLoginHandler_BuildsAuthURL(t *testing.T) {
	fp := newFakeProvider(t)
	handler := LoginHandler(fp.config())

	r := httptest.NewRequest("GET", "/twitter/auth", nil)
	r = r.WithContext(session.WithUserID(r.Context(), "user-1"))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp struct {
		AuthURL string `json:"authUrl"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	u, err := url.Parse(resp.AuthURL)
	if err != nil {
		t.Fatalf("authUrl unparsable: %v", err)
	}
	q := u.Query()
	if q.Get("response_type") != "code" {
		t.Fatalf("response_type = %q", q.Get("response_type"))
	}
	if q.Get("code_challenge_method") != "S256" {
		t.Fatalf("code_challenge_method = %q", q.Get("code_challenge_method"))
	}

	state, err := DecodeState(q.Get("state"))
	if err != nil {
		t.Fatalf("state in authUrl must decode: %v", err)
	}
	if state.UserID != "user-1" {
		t.Fatalf("state user = %q", state.UserID)
	}
	if CodeChallenge(state.CodeVerifier) != q.Get("code_challenge") {
		t.Fatal("code_challenge must derive from the state's verifier")
	}
}

func TestLoginHandler_RequiresUser(t *testing.T) {
	fp := newFakeProvider(t)
	handler := LoginHandler(fp.config())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/twitter/auth", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestCallback_MissingParams(t *testing.T) {
	fp := newFakeProvider(t)
	db := newLinkTestDB(t)
	handler := CallbackHandler(fp.config(), db)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, callbackRequest("", ""))

	if reason := redirectReason(t, w); reason != ReasonInvalidParameters {
		t.Fatalf("reason = %q, want %q", reason, ReasonInvalidParameters)
	}
	if fp.tokenCalls.Load() != 0 {
		t.Fatal("token exchange must not be attempted without parameters")
	}
}

func TestCallback_UndecodableState(t *testing.T) {
	fp := newFakeProvider(t)
	db := newLinkTestDB(t)
	handler := CallbackHandler(fp.config(), db)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, callbackRequest("auth-code", "!!!not-base64!!!"))

	if reason := redirectReason(t, w); reason != ReasonInvalidParameters {
		t.Fatalf("reason = %q, want %q", reason, ReasonInvalidParameters)
	}
	if fp.tokenCalls.Load() != 0 {
		t.Fatal("token exchange must not be attempted with a corrupt state")
	}
}

func validState(t *testing.T, userID string) string {
	t.Helper()
	state, err := EncodeState(LinkState{UserID: userID, CodeVerifier: "verifier-abc"})
	if err != nil {
		t.Fatalf("EncodeState: %v", err)
	}
	return state
}

func TestCallback_Success(t *testing.T) {
	fp := newFakeProvider(t)
	db := newLinkTestDB(t)
	handler := CallbackHandler(fp.config(), db)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, callbackRequest("auth-code", validState(t, "user-1")))

	if loc := w.Header().Get("Location"); !strings.HasSuffix(loc, "/twitter/success") {
		t.Fatalf("redirect = %q, want success page", loc)
	}
	if fp.lastVerifier != "verifier-abc" {
		t.Fatalf("exchange used verifier %q, want the one from state", fp.lastVerifier)
	}

	var account models.LinkedAccount
	if err := db.Where("user_id = ? AND provider = ?", "user-1", models.ProviderTwitter).First(&account).Error; err != nil {
		t.Fatalf("linked account not persisted: %v", err)
	}
	if account.ProviderAccountID != "12345" || account.Username != "balloonfan" {
		t.Fatalf("unexpected account %+v", account)
	}
	if account.AccessToken != "fresh-access" || account.RefreshToken != "fresh-refresh" {
		t.Fatal("tokens not stored")
	}
	if account.ExpiresAt == nil || !account.ExpiresAt.After(time.Now()) {
		t.Fatal("expiry not stored")
	}
}

func TestCallback_RelinkSameAccountIsIdempotent(t *testing.T) {
	fp := newFakeProvider(t)
	db := newLinkTestDB(t)
	handler := CallbackHandler(fp.config(), db)

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, callbackRequest("auth-code", validState(t, "user-1")))
		if loc := w.Header().Get("Location"); !strings.HasSuffix(loc, "/twitter/success") {
			t.Fatalf("attempt %d redirect = %q, want success", i+1, loc)
		}
	}

	var count int64
	db.Model(&models.LinkedAccount{}).Where("user_id = ?", "user-1").Count(&count)
	if count != 1 {
		t.Fatalf("expected a single linked account row, got %d", count)
	}
}

func TestCallback_AccountLinkedToOtherUser(t *testing.T) {
	fp := newFakeProvider(t)
	db := newLinkTestDB(t)
	handler := CallbackHandler(fp.config(), db)

	// Link the provider account to user-1 first.
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, callbackRequest("auth-code", validState(t, "user-1")))

	// user-2 trying to link the same provider account must be refused.
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, callbackRequest("auth-code", validState(t, "user-2")))

	if reason := redirectReason(t, w); reason != ReasonAlreadyLinked {
		t.Fatalf("reason = %q, want %q", reason, ReasonAlreadyLinked)
	}

	var count int64
	db.Model(&models.LinkedAccount{}).Where("user_id = ?", "user-2").Count(&count)
	if count != 0 {
		t.Fatal("conflicting link must not be persisted")
	}
}

func TestCallback_ExchangeFailure(t *testing.T) {
	fp := newFakeProvider(t)
	fp.tokenStatus = http.StatusBadRequest
	db := newLinkTestDB(t)
	handler := CallbackHandler(fp.config(), db)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, callbackRequest("auth-code", validState(t, "user-1")))

	if reason := redirectReason(t, w); reason != ReasonAccessTokenFailure {
		t.Fatalf("reason = %q, want %q", reason, ReasonAccessTokenFailure)
	}
	if fp.userCalls.Load() != 0 {
		t.Fatal("user details must not be fetched after a failed exchange")
	}
}

func TestCallback_UserDetailsFailure(t *testing.T) {
	fp := newFakeProvider(t)
	fp.userStatus = http.StatusForbidden
	db := newLinkTestDB(t)
	handler := CallbackHandler(fp.config(), db)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, callbackRequest("auth-code", validState(t, "user-1")))

	if reason := redirectReason(t, w); reason != ReasonUserDetailsFailure {
		t.Fatalf("reason = %q, want %q", reason, ReasonUserDetailsFailure)
	}

	var count int64
	db.Model(&models.LinkedAccount{}).Count(&count)
	if count != 0 {
		t.Fatal("nothing must be persisted when user details fail")
	}
}
