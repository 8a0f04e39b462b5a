package app

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"selah/api/internal/auth"
	"selah/api/internal/authpw"
	"selah/api/internal/config"
	"selah/api/internal/devotion"
	"selah/api/internal/export"
	"selah/api/internal/store"
)

// fakeStore implements dataStore and authpw.UserStore with overridable
// function fields. Unset lookups behave like an empty database.
type fakeStore struct {
	getUserByID          func(ctx context.Context, id string) (store.User, error)
	getUserByEmail       func(ctx context.Context, email string) (store.User, error)
	getDevotionByDate    func(ctx context.Context, date string) (store.Devotion, error)
	listDevotionDates    func(ctx context.Context) ([]string, error)
	upsertDevotion       func(ctx context.Context, item store.Devotion) error
	getHymnByMonth       func(ctx context.Context, month string) (store.Hymn, error)
	upsertHymn           func(ctx context.Context, item store.Hymn) error
	ping                 func(ctx context.Context) error
	isAccessTokenRevoked func(ctx context.Context, jti string) (bool, error)

	createdUsers     []store.User
	savedRefreshes   []string
	revokedRefreshes []string
}

func (f *fakeStore) GetUserByID(ctx context.Context, id string) (store.User, error) {
	if f.getUserByID != nil {
		return f.getUserByID(ctx, id)
	}
	return store.User{}, sql.ErrNoRows
}

func (f *fakeStore) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	if f.getUserByEmail != nil {
		return f.getUserByEmail(ctx, email)
	}
	return store.User{}, sql.ErrNoRows
}

func (f *fakeStore) CreateUser(ctx context.Context, user store.User) error {
	f.createdUsers = append(f.createdUsers, user)
	return nil
}

func (f *fakeStore) UpdateUserVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	return nil
}

func (f *fakeStore) VerifyUserEmail(ctx context.Context, token string) error { return nil }

func (f *fakeStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	return nil
}

func (f *fakeStore) CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error {
	return nil
}

func (f *fakeStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	return "", sql.ErrNoRows
}

func (f *fakeStore) MarkPasswordResetUsed(ctx context.Context, token string) error { return nil }

func (f *fakeStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	f.savedRefreshes = append(f.savedRefreshes, tokenHash)
	return nil
}

func (f *fakeStore) LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error) {
	return store.User{}, sql.ErrNoRows
}

func (f *fakeStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	f.revokedRefreshes = append(f.revokedRefreshes, tokenHash)
	return nil
}

func (f *fakeStore) RevokeAccessToken(ctx context.Context, jti string, expiresAt time.Time) error {
	return nil
}

func (f *fakeStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	if f.isAccessTokenRevoked != nil {
		return f.isAccessTokenRevoked(ctx, jti)
	}
	return false, nil
}

func (f *fakeStore) UpsertDevotion(ctx context.Context, item store.Devotion) error {
	if f.upsertDevotion != nil {
		return f.upsertDevotion(ctx, item)
	}
	return nil
}

func (f *fakeStore) GetDevotionByDate(ctx context.Context, date string) (store.Devotion, error) {
	if f.getDevotionByDate != nil {
		return f.getDevotionByDate(ctx, date)
	}
	return store.Devotion{}, sql.ErrNoRows
}

func (f *fakeStore) ListDevotionDates(ctx context.Context) ([]string, error) {
	if f.listDevotionDates != nil {
		return f.listDevotionDates(ctx)
	}
	return nil, nil
}

func (f *fakeStore) GetHymnByMonth(ctx context.Context, month string) (store.Hymn, error) {
	if f.getHymnByMonth != nil {
		return f.getHymnByMonth(ctx, month)
	}
	return store.Hymn{}, sql.ErrNoRows
}

func (f *fakeStore) UpsertHymn(ctx context.Context, item store.Hymn) error {
	if f.upsertHymn != nil {
		return f.upsertHymn(ctx, item)
	}
	return nil
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.ping != nil {
		return f.ping(ctx)
	}
	return nil
}

type fakeExporter struct {
	result *export.Result
	err    error
}

func (f *fakeExporter) ExportMonth(ctx context.Context, month string) (*export.Result, error) {
	return f.result, f.err
}

type fakeArchive struct {
	uploads  []string
	booklets []string
}

func (f *fakeArchive) ArchiveUpload(ctx context.Context, name string, payload []byte) (string, error) {
	f.uploads = append(f.uploads, name)
	return "uploads/" + name, nil
}

func (f *fakeArchive) ArchiveBooklet(ctx context.Context, month string, payload []byte) (string, error) {
	f.booklets = append(f.booklets, month)
	return "booklets/" + month + ".pdf", nil
}

type fakeAudit struct {
	history   []store.CommitInfo
	revisions map[string]store.Devotion
}

func (f *fakeAudit) RecordDevotion(item store.Devotion, author, message string) (store.CommitInfo, error) {
	return store.CommitInfo{Hash: "abc1234"}, nil
}

func (f *fakeAudit) RecordHymn(item store.Hymn, author, message string) (store.CommitInfo, error) {
	return store.CommitInfo{Hash: "abc1234"}, nil
}

func (f *fakeAudit) History(date string, limit int) ([]store.CommitInfo, error) {
	return f.history, nil
}

func (f *fakeAudit) DevotionAt(date, hash string) (store.Devotion, error) {
	item, ok := f.revisions[date+":"+hash]
	if !ok {
		return store.Devotion{}, errors.New("revision not found")
	}
	return item, nil
}

func testConfig() config.Config {
	return config.Config{
		JWTSecret:   "test-secret",
		AccessTTL:   15 * time.Minute,
		RefreshTTL:  30 * 24 * time.Hour,
		CORSOrigin:  "*",
		AppURL:      "http://localhost:5173",
		AdminEmails: []string{"admin@selah.dev"},
	}
}

func newTestServer(cfg config.Config, fake *fakeStore) *HTTPServer {
	return newTestServerDeps(cfg, fake, Deps{})
}

func newTestServerDeps(cfg config.Config, fake *fakeStore, deps Deps) *HTTPServer {
	if deps.Resolver == nil {
		deps.Resolver = devotion.NewResolver(fake)
	}
	if deps.AuthPW == nil {
		deps.AuthPW = authpw.NewService(fake)
	}
	service := New(cfg, fake, deps)
	return NewHTTPServer(service, cfg.CORSOrigin)
}

func issueTestToken(t *testing.T, cfg config.Config, user store.User, role string) string {
	t.Helper()
	token, err := auth.IssueToken([]byte(cfg.JWTSecret), auth.Claims{
		Sub:   user.ID,
		Email: user.Email,
		Name:  user.DisplayName,
		Role:  role,
		JTI:   "jti_test",
		Exp:   time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	return token
}

func doRequest(server *HTTPServer, method, path, token string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, req)
	return recorder
}

func decodeResponse(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("response is not JSON: %v\n%s", err, recorder.Body.String())
	}
	return payload
}

func TestHealth(t *testing.T) {
	server := newTestServer(testConfig(), &fakeStore{})
	recorder := doRequest(server, http.MethodGet, "/api/health", "", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", recorder.Code)
	}
	if payload := decodeResponse(t, recorder); payload["ok"] != true {
		t.Errorf("ok = %v, want true", payload["ok"])
	}
}

func TestReadyReportsDatabaseDown(t *testing.T) {
	fake := &fakeStore{
		ping: func(ctx context.Context) error { return errors.New("connection refused") },
	}
	server := newTestServer(testConfig(), fake)

	recorder := doRequest(server, http.MethodGet, "/api/ready", "", nil)
	if recorder.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", recorder.Code)
	}
	payload := decodeResponse(t, recorder)
	if payload["status"] != "not_ready" {
		t.Errorf("status = %v, want not_ready", payload["status"])
	}
}

func TestSessionEndpointWithoutToken(t *testing.T) {
	server := newTestServer(testConfig(), &fakeStore{})
	recorder := doRequest(server, http.MethodGet, "/api/session", "", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", recorder.Code)
	}
	if payload := decodeResponse(t, recorder); payload["authenticated"] != false {
		t.Errorf("authenticated = %v, want false", payload["authenticated"])
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	server := newTestServer(testConfig(), &fakeStore{})
	recorder := doRequest(server, http.MethodGet, "/api/devotions", "", nil)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", recorder.Code)
	}
	if payload := decodeResponse(t, recorder); payload["code"] != "UNAUTHORIZED" {
		t.Errorf("code = %v, want UNAUTHORIZED", payload["code"])
	}
}

func TestDevBypassGrantsAccess(t *testing.T) {
	cfg := testConfig()
	cfg.DevBypassAuth = true
	fake := &fakeStore{
		listDevotionDates: func(ctx context.Context) ([]string, error) {
			return []string{"2024-05-01", "2024-05-02"}, nil
		},
	}
	server := newTestServer(cfg, fake)

	recorder := doRequest(server, http.MethodGet, "/api/devotions", "", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", recorder.Code)
	}
	payload := decodeResponse(t, recorder)
	dates, ok := payload["dates"].([]any)
	if !ok || len(dates) != 2 {
		t.Errorf("dates = %v, want two entries", payload["dates"])
	}
}

func TestGetDevotionMissingDateReturnsPlaceholder(t *testing.T) {
	cfg := testConfig()
	member := store.User{ID: "usr_1", Email: "reader@selah.dev", DisplayName: "Reader", Role: "member"}
	fake := &fakeStore{
		getUserByID: func(ctx context.Context, id string) (store.User, error) { return member, nil },
	}
	server := newTestServer(cfg, fake)
	token := issueTestToken(t, cfg, member, "member")

	recorder := doRequest(server, http.MethodGet, "/api/devotions/2024-05-09", token, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200\n%s", recorder.Code, recorder.Body.String())
	}
	payload := decodeResponse(t, recorder)
	if payload["notFound"] != true {
		t.Errorf("notFound = %v, want true", payload["notFound"])
	}
}

func TestGetDevotionInvalidDate(t *testing.T) {
	cfg := testConfig()
	member := store.User{ID: "usr_1", Email: "reader@selah.dev", DisplayName: "Reader", Role: "member"}
	fake := &fakeStore{
		getUserByID: func(ctx context.Context, id string) (store.User, error) { return member, nil },
	}
	server := newTestServer(cfg, fake)
	token := issueTestToken(t, cfg, member, "member")

	recorder := doRequest(server, http.MethodGet, "/api/devotions/May-9th", token, nil)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", recorder.Code)
	}
	if payload := decodeResponse(t, recorder); payload["code"] != "INVALID_DATE" {
		t.Errorf("code = %v, want INVALID_DATE", payload["code"])
	}
}

func TestHymnInvalidMonth(t *testing.T) {
	cfg := testConfig()
	member := store.User{ID: "usr_1", Email: "reader@selah.dev", DisplayName: "Reader", Role: "member"}
	fake := &fakeStore{
		getUserByID: func(ctx context.Context, id string) (store.User, error) { return member, nil },
	}
	server := newTestServer(cfg, fake)
	token := issueTestToken(t, cfg, member, "member")

	// Month names are case-sensitive; lowercase is not a valid key.
	recorder := doRequest(server, http.MethodGet, "/api/hymns/may", token, nil)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", recorder.Code)
	}
	if payload := decodeResponse(t, recorder); payload["code"] != "INVALID_MONTH" {
		t.Errorf("code = %v, want INVALID_MONTH", payload["code"])
	}
}

func TestHymnByMonthName(t *testing.T) {
	cfg := testConfig()
	member := store.User{ID: "usr_1", Email: "reader@selah.dev", DisplayName: "Reader", Role: "member"}
	wantKey := fmt.Sprintf("%04d-05", time.Now().Year())
	fake := &fakeStore{
		getUserByID: func(ctx context.Context, id string) (store.User, error) { return member, nil },
		getHymnByMonth: func(ctx context.Context, month string) (store.Hymn, error) {
			if month != wantKey {
				t.Errorf("lookup key = %q, want %q", month, wantKey)
			}
			return store.Hymn{ID: "hymn-" + month, Title: "Be Thou My Vision", Month: month}, nil
		},
	}
	server := newTestServer(cfg, fake)
	token := issueTestToken(t, cfg, member, "member")

	recorder := doRequest(server, http.MethodGet, "/api/hymns/May", token, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200\n%s", recorder.Code, recorder.Body.String())
	}
	if payload := decodeResponse(t, recorder); payload["title"] != "Be Thou My Vision" {
		t.Errorf("title = %v, want Be Thou My Vision", payload["title"])
	}
}

func TestAdminRoutesForbiddenForMembers(t *testing.T) {
	cfg := testConfig()
	member := store.User{ID: "usr_1", Email: "reader@selah.dev", DisplayName: "Reader", Role: "member"}
	fake := &fakeStore{
		getUserByID: func(ctx context.Context, id string) (store.User, error) { return member, nil },
	}
	server := newTestServer(cfg, fake)
	token := issueTestToken(t, cfg, member, "member")

	recorder := doRequest(server, http.MethodPost, "/api/admin/generate-devotions", token, map[string]any{
		"startDate": "2024-05-09",
		"endDate":   "2024-05-09",
	})
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", recorder.Code)
	}
}

func TestAdminAllowlistGrantsAdmin(t *testing.T) {
	cfg := testConfig()
	admin := store.User{ID: "usr_2", Email: "admin@selah.dev", DisplayName: "Admin", Role: "member"}
	var saved []store.Devotion
	fake := &fakeStore{
		getUserByID: func(ctx context.Context, id string) (store.User, error) { return admin, nil },
		upsertDevotion: func(ctx context.Context, item store.Devotion) error {
			saved = append(saved, item)
			return nil
		},
	}
	server := newTestServer(cfg, fake)
	// The stored role is member; the allowlist promotes the session.
	token := issueTestToken(t, cfg, admin, "admin")

	recorder := doRequest(server, http.MethodPost, "/api/admin/generate-devotions", token, map[string]any{
		"startDate": "2024-05-09",
		"endDate":   "2024-05-10",
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200\n%s", recorder.Code, recorder.Body.String())
	}
	payload := decodeResponse(t, recorder)
	if payload["count"] != float64(2) {
		t.Errorf("count = %v, want 2", payload["count"])
	}
	if len(saved) != 2 {
		t.Errorf("saved %d devotions, want 2", len(saved))
	}
	for _, item := range saved {
		if len(item.Sections) == 0 || item.Sections[0].Passage == "" {
			t.Errorf("generated devotion %s has no reading", item.Date)
		}
	}
}

func TestGenerateDevotionsSkipsExisting(t *testing.T) {
	cfg := testConfig()
	admin := store.User{ID: "usr_2", Email: "admin@selah.dev", DisplayName: "Admin", Role: "member"}
	fake := &fakeStore{
		getUserByID: func(ctx context.Context, id string) (store.User, error) { return admin, nil },
		getDevotionByDate: func(ctx context.Context, date string) (store.Devotion, error) {
			if date == "2024-05-09" {
				return store.Devotion{ID: "dev_existing", Date: date}, nil
			}
			return store.Devotion{}, sql.ErrNoRows
		},
	}
	server := newTestServer(cfg, fake)
	token := issueTestToken(t, cfg, admin, "admin")

	recorder := doRequest(server, http.MethodPost, "/api/admin/generate-devotions", token, map[string]any{
		"startDate": "2024-05-09",
		"endDate":   "2024-05-10",
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", recorder.Code)
	}
	payload := decodeResponse(t, recorder)
	skipped, _ := payload["skipped"].([]any)
	if len(skipped) != 1 || skipped[0] != "2024-05-09" {
		t.Errorf("skipped = %v, want [2024-05-09]", payload["skipped"])
	}
}

func TestUploadJSONReportsPerItemErrors(t *testing.T) {
	cfg := testConfig()
	admin := store.User{ID: "usr_2", Email: "admin@selah.dev", DisplayName: "Admin", Role: "member"}
	fake := &fakeStore{
		getUserByID: func(ctx context.Context, id string) (store.User, error) { return admin, nil },
	}
	server := newTestServer(cfg, fake)
	token := issueTestToken(t, cfg, admin, "admin")

	body := `[
		{"date": "2024-05-09", "bibleText": "John 1:1-5", "reflectionSections": [{"passage": "John 1:1", "questions": ["What stands out?"]}]},
		{"date": "not-a-date", "bibleText": "John 1:6"}
	]`
	req := httptest.NewRequest(http.MethodPost, "/api/admin/upload-json", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200\n%s", recorder.Code, recorder.Body.String())
	}
	payload := decodeResponse(t, recorder)
	if payload["successCount"] != float64(1) {
		t.Errorf("successCount = %v, want 1", payload["successCount"])
	}
	errorItems, _ := payload["errorItems"].([]any)
	if len(errorItems) != 1 {
		t.Fatalf("errorItems = %v, want one entry", payload["errorItems"])
	}
	item := errorItems[0].(map[string]any)
	if item["index"] != float64(1) {
		t.Errorf("error index = %v, want 1", item["index"])
	}
}

func TestUploadJSONMonthKeyedPayload(t *testing.T) {
	cfg := testConfig()
	admin := store.User{ID: "usr_2", Email: "admin@selah.dev", DisplayName: "Admin", Role: "member"}
	var hymns []store.Hymn
	fake := &fakeStore{
		getUserByID: func(ctx context.Context, id string) (store.User, error) { return admin, nil },
		upsertHymn: func(ctx context.Context, item store.Hymn) error {
			hymns = append(hymns, item)
			return nil
		},
	}
	server := newTestServer(cfg, fake)
	token := issueTestToken(t, cfg, admin, "admin")

	body := `{
		"2024-05": {
			"hymn": {"title": "Be Thou My Vision", "author": "Trad.", "lyrics": [{"lineNumber": 1, "text": "Be thou my vision"}]},
			"devotions": [
				{"date": "2024-05-01", "bibleText": "John 1:1-5", "reflectionSections": [{"passage": "John 1:1", "questions": ["What stands out?"]}]},
				{"date": "May 2nd", "bibleText": "John 1:6"}
			]
		}
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/admin/upload-json", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200\n%s", recorder.Code, recorder.Body.String())
	}
	payload := decodeResponse(t, recorder)
	// One valid devotion plus the hymn; the malformed date lands in errorItems.
	if payload["successCount"] != float64(2) {
		t.Errorf("successCount = %v, want 2", payload["successCount"])
	}
	errorItems, _ := payload["errorItems"].([]any)
	if len(errorItems) != 1 {
		t.Fatalf("errorItems = %v, want one entry", payload["errorItems"])
	}
	if len(hymns) != 1 || hymns[0].Month != "2024-05" {
		t.Errorf("hymns = %+v, want one hymn keyed to 2024-05", hymns)
	}
}

func TestSignUpReturnsDevTokenWithoutSMTP(t *testing.T) {
	server := newTestServer(testConfig(), &fakeStore{})

	recorder := doRequest(server, http.MethodPost, "/api/auth/signup", "", map[string]any{
		"email":       "Reader@Selah.dev",
		"password":    "sufficiently-long",
		"displayName": "Reader",
	})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201\n%s", recorder.Code, recorder.Body.String())
	}
	payload := decodeResponse(t, recorder)
	if token, _ := payload["devVerificationToken"].(string); token == "" {
		t.Error("expected devVerificationToken when SMTP is not configured")
	}
}

func TestSignUpDuplicateEmailConflicts(t *testing.T) {
	fake := &fakeStore{
		getUserByEmail: func(ctx context.Context, email string) (store.User, error) {
			return store.User{ID: "usr_1", Email: email}, nil
		},
	}
	server := newTestServer(testConfig(), fake)

	recorder := doRequest(server, http.MethodPost, "/api/auth/signup", "", map[string]any{
		"email":       "reader@selah.dev",
		"password":    "sufficiently-long",
		"displayName": "Reader",
	})
	if recorder.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", recorder.Code)
	}
	if payload := decodeResponse(t, recorder); payload["code"] != "EMAIL_EXISTS" {
		t.Errorf("code = %v, want EMAIL_EXISTS", payload["code"])
	}
}

func TestExportArchivesBooklet(t *testing.T) {
	cfg := testConfig()
	member := store.User{ID: "usr_1", Email: "reader@selah.dev", DisplayName: "Reader", Role: "member"}
	fake := &fakeStore{
		getUserByID: func(ctx context.Context, id string) (store.User, error) { return member, nil },
	}
	archived := &fakeArchive{}
	server := newTestServerDeps(cfg, fake, Deps{
		Export: &fakeExporter{result: &export.Result{
			Data:     []byte("%PDF-1.4 booklet"),
			Filename: "devotions-may-2024.pdf",
			MimeType: "application/pdf",
		}},
		Archive: archived,
	})
	token := issueTestToken(t, cfg, member, "member")

	recorder := doRequest(server, http.MethodGet, "/api/export/devotions/2024-05", token, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200\n%s", recorder.Code, recorder.Body.String())
	}
	if got := recorder.Header().Get("Content-Type"); got != "application/pdf" {
		t.Errorf("Content-Type = %q, want application/pdf", got)
	}
	if !strings.HasPrefix(recorder.Body.String(), "%PDF") {
		t.Errorf("body should be the PDF bytes, got %q", recorder.Body.String())
	}
	if len(archived.booklets) != 1 || archived.booklets[0] != "2024-05" {
		t.Errorf("archived booklets = %v, want [2024-05]", archived.booklets)
	}
}

func TestDevotionRevisionEndpoint(t *testing.T) {
	cfg := testConfig()
	admin := store.User{ID: "usr_2", Email: "admin@selah.dev", DisplayName: "Admin", Role: "member"}
	fake := &fakeStore{
		getUserByID: func(ctx context.Context, id string) (store.User, error) { return admin, nil },
	}
	server := newTestServerDeps(cfg, fake, Deps{
		Audit: &fakeAudit{revisions: map[string]store.Devotion{
			"2024-05-01:abc1234": {ID: "dev_1", Date: "2024-05-01", BibleText: "John 15:1-8"},
		}},
	})
	token := issueTestToken(t, cfg, admin, "admin")

	recorder := doRequest(server, http.MethodGet, "/api/admin/devotions/2024-05-01/history/abc1234", token, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200\n%s", recorder.Code, recorder.Body.String())
	}
	if payload := decodeResponse(t, recorder); payload["bibleText"] != "John 15:1-8" {
		t.Errorf("bibleText = %v, want John 15:1-8", payload["bibleText"])
	}

	recorder = doRequest(server, http.MethodGet, "/api/admin/devotions/2024-05-01/history/ffffff0", token, nil)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 for unknown revision", recorder.Code)
	}
}

func TestRevokedTokenIsRejected(t *testing.T) {
	cfg := testConfig()
	member := store.User{ID: "usr_1", Email: "reader@selah.dev", DisplayName: "Reader", Role: "member"}
	fake := &fakeStore{
		getUserByID:          func(ctx context.Context, id string) (store.User, error) { return member, nil },
		isAccessTokenRevoked: func(ctx context.Context, jti string) (bool, error) { return true, nil },
	}
	server := newTestServer(cfg, fake)
	token := issueTestToken(t, cfg, member, "member")

	recorder := doRequest(server, http.MethodGet, "/api/devotions", token, nil)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", recorder.Code)
	}
}
