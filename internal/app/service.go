package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"

	"selah/api/internal/auth"
	"selah/api/internal/authpw"
	"selah/api/internal/bible"
	"selah/api/internal/config"
	"selah/api/internal/devotion"
	"selah/api/internal/email"
	"selah/api/internal/export"
	"selah/api/internal/journal"
	"selah/api/internal/rbac"
	"selah/api/internal/reflection"
	"selah/api/internal/search"
	"selah/api/internal/store"
	"selah/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Email        string
	Role         string
	JTI          string
	ExpiresAt    time.Time
}

// dataStore is the slice of the Postgres store the service uses directly.
// Devotion resolution and journaling go through their own services.
type dataStore interface {
	GetUserByID(ctx context.Context, id string) (store.User, error)
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
	RevokeAccessToken(ctx context.Context, jti string, expiresAt time.Time) error
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)
	UpsertDevotion(ctx context.Context, item store.Devotion) error
	GetDevotionByDate(ctx context.Context, date string) (store.Devotion, error)
	ListDevotionDates(ctx context.Context) ([]string, error)
	GetHymnByMonth(ctx context.Context, month string) (store.Hymn, error)
	UpsertHymn(ctx context.Context, item store.Hymn) error
	Ping(ctx context.Context) error
}

type auditLog interface {
	RecordDevotion(devotion store.Devotion, author, message string) (store.CommitInfo, error)
	RecordHymn(hymn store.Hymn, author, message string) (store.CommitInfo, error)
	History(date string, limit int) ([]store.CommitInfo, error)
	DevotionAt(date, hash string) (store.Devotion, error)
}

type exporter interface {
	ExportMonth(ctx context.Context, month string) (*export.Result, error)
}

type uploadArchive interface {
	ArchiveUpload(ctx context.Context, name string, payload []byte) (string, error)
	ArchiveBooklet(ctx context.Context, month string, payload []byte) (string, error)
}

// Deps carries the subsystem services. Optional integrations (archive,
// search, export) may be nil; the corresponding endpoints degrade.
type Deps struct {
	Resolver    *devotion.Resolver
	Verses      *bible.Fetcher
	Journal     *journal.Service
	Reflections *reflection.Service
	Search      *search.Service
	Audit       auditLog
	Archive     uploadArchive
	Export      exporter
	AuthPW      *authpw.Service
	Email       *email.Service
}

type Service struct {
	cfg         config.Config
	store       dataStore
	resolver    *devotion.Resolver
	verses      *bible.Fetcher
	journal     *journal.Service
	reflections *reflection.Service
	search      *search.Service
	audit       auditLog
	archive     uploadArchive
	export      exporter
	authpw      *authpw.Service
	email       *email.Service
	adminEmails map[string]struct{}
}

func New(cfg config.Config, dataStore dataStore, deps Deps) *Service {
	adminEmails := make(map[string]struct{}, len(cfg.AdminEmails))
	for _, addr := range cfg.AdminEmails {
		adminEmails[strings.ToLower(strings.TrimSpace(addr))] = struct{}{}
	}

	return &Service{
		cfg:         cfg,
		store:       dataStore,
		resolver:    deps.Resolver,
		verses:      deps.Verses,
		journal:     deps.Journal,
		reflections: deps.Reflections,
		search:      deps.Search,
		audit:       deps.Audit,
		archive:     deps.Archive,
		export:      deps.Export,
		authpw:      deps.AuthPW,
		email:       deps.Email,
		adminEmails: adminEmails,
	}
}

// --- sessions ---

// CreateSession issues tokens for a signed-in user.
func (s *Service) CreateSession(ctx context.Context, userID string) (Session, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.store.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.store.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")
	role := s.effectiveRole(user)

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:   user.ID,
		Email: user.Email,
		Name:  user.DisplayName,
		Role:  role,
		JTI:   jti,
		Exp:   expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.store.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Email:        user.Email,
		Role:         role,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		Email:     user.Email,
		Role:      s.effectiveRole(user),
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.store.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

// effectiveRole applies the admin allowlist on top of the stored role.
// Admin access is configuration, not self-service data.
func (s *Service) effectiveRole(user store.User) string {
	if _, ok := s.adminEmails[strings.ToLower(user.Email)]; ok {
		return string(rbac.RoleAdmin)
	}
	return string(rbac.Normalize(user.Role))
}

// DevBypassSession returns a synthetic admin session when auth bypass is
// enabled. Local development only; the flag defaults to off.
func (s *Service) DevBypassSession() (Session, bool) {
	if !s.cfg.DevBypassAuth {
		return Session{}, false
	}
	return Session{
		UserID:    "usr_dev",
		UserName:  "Dev User",
		Email:     "dev@localhost",
		Role:      string(rbac.RoleAdmin),
		ExpiresAt: time.Now().Add(s.cfg.AccessTTL),
	}, true
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

func (s *Service) AuthPasswordService() *authpw.Service {
	return s.authpw
}

func (s *Service) SMTPConfigured() bool {
	return s.email != nil && s.email.IsConfigured()
}

// SendVerificationEmail mails a signup verification link.
func (s *Service) SendVerificationEmail(to, userName, token string) error {
	url := s.cfg.AppURL + "/verify-email?token=" + token
	return s.email.SendVerificationEmail(to, userName, url)
}

// SendPasswordResetEmail mails a password reset link.
func (s *Service) SendPasswordResetEmail(to, userName, token string) error {
	url := s.cfg.AppURL + "/reset-password?token=" + token
	return s.email.SendPasswordResetEmail(to, userName, url)
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// --- devotions ---

func (s *Service) ResolveDevotion(ctx context.Context, date string) (devotion.Resolved, error) {
	return s.resolver.Resolve(ctx, date)
}

func (s *Service) ListDevotionDates(ctx context.Context) ([]string, error) {
	dates, err := s.store.ListDevotionDates(ctx)
	if err != nil {
		return nil, err
	}
	if dates == nil {
		dates = []string{}
	}
	return dates, nil
}

// HymnByMonth returns the hymn for a month key. Storage keys are "YYYY-MM";
// the original data set keyed hymns by English month name, so a
// case-sensitive name ("May") is still accepted and resolves against the
// current year.
func (s *Service) HymnByMonth(ctx context.Context, month string) (store.Hymn, error) {
	key, err := normalizeMonthKey(month, time.Now())
	if err != nil {
		return store.Hymn{}, domainError(http.StatusBadRequest, "INVALID_MONTH", "month must be YYYY-MM or an English month name", nil)
	}
	return s.store.GetHymnByMonth(ctx, key)
}

func normalizeMonthKey(month string, now time.Time) (string, error) {
	if _, err := time.Parse("2006-01", month); err == nil {
		return month, nil
	}
	if parsed, err := time.Parse("January", month); err == nil {
		return fmt.Sprintf("%04d-%02d", now.Year(), int(parsed.Month())), nil
	}
	return "", fmt.Errorf("unrecognized month key %q", month)
}

// FetchVerse resolves Bible text for a reference. It never fails; the
// fetcher degrades through cache and fallback synthesis.
func (s *Service) FetchVerse(ctx context.Context, reference, scriptureText string) bible.Verse {
	return s.verses.FetchVerse(ctx, reference, scriptureText)
}

// --- journal ---

func (s *Service) SaveJournal(ctx context.Context, session Session, date string, entries map[string]string) (journal.SaveResult, error) {
	return s.journal.Save(ctx, session.UserID, date, entries)
}

func (s *Service) LoadJournal(ctx context.Context, session Session, date string) (store.JournalEntry, error) {
	return s.journal.Load(ctx, session.UserID, date)
}

// --- reflections ---

func (s *Service) Reflect(ctx context.Context, session Session, date, passage, question string) (reflection.HistoryEntry, error) {
	return s.reflections.Reflect(ctx, session.UserID, date, passage, question)
}

func (s *Service) ReflectionHistory(ctx context.Context, session Session, date string) ([]reflection.HistoryEntry, error) {
	return s.reflections.History(ctx, session.UserID, date)
}

func (s *Service) Resources(ctx context.Context, passage string) reflection.ResourceSet {
	return s.reflections.Resources(ctx, passage)
}

// --- search ---

func (s *Service) Search(ctx context.Context, q search.Query) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}
	}
	return s.search.Search(ctx, q)
}

// --- admin ---

// GenerateResult reports what a generate-devotions run did.
type GenerateResult struct {
	Count   int      `json:"count"`
	Created []string `json:"created"`
	Skipped []string `json:"skipped"`
}

// maxGenerateRange bounds a generate-devotions request to one year of dates.
const maxGenerateRange = 366

// GenerateDevotions creates stub devotions for every date in the inclusive
// range. Stub selection is a hash of the date, so regenerating a range is
// idempotent; dates that already have a devotion are skipped, never
// overwritten.
func (s *Service) GenerateDevotions(ctx context.Context, session Session, startDate, endDate string) (GenerateResult, error) {
	start, err := devotion.ParseDate(startDate)
	if err != nil {
		return GenerateResult{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", fmt.Sprintf("invalid startDate %q", startDate), nil)
	}
	end, err := devotion.ParseDate(endDate)
	if err != nil {
		return GenerateResult{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", fmt.Sprintf("invalid endDate %q", endDate), nil)
	}
	if end.Before(start) {
		return GenerateResult{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "endDate precedes startDate", nil)
	}
	if int(end.Sub(start).Hours()/24) >= maxGenerateRange {
		return GenerateResult{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "range exceeds one year", nil)
	}

	result := GenerateResult{Created: []string{}, Skipped: []string{}}
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		normalized := day.Format("2006-01-02")

		if _, err := s.store.GetDevotionByDate(ctx, normalized); err == nil {
			result.Skipped = append(result.Skipped, normalized)
			continue
		}

		stub, err := devotion.GenerateStub(normalized, session.UserName)
		if err != nil {
			return GenerateResult{}, err
		}
		if err := s.store.UpsertDevotion(ctx, stub); err != nil {
			return GenerateResult{}, fmt.Errorf("save generated devotion %s: %w", normalized, err)
		}
		s.recordDevotionChange(stub, session.UserName, "Generate devotion for "+normalized)
		result.Created = append(result.Created, normalized)
	}
	result.Count = len(result.Created)
	return result, nil
}

// UploadPayload is the admin JSON import shape. A bare array of devotion
// records is also accepted.
type UploadPayload struct {
	Devotions []devotion.RawRecord `json:"devotions"`
	Hymns     []store.Hymn         `json:"hymns"`
}

// UploadError describes one rejected item in an import.
type UploadError struct {
	Index int    `json:"index"`
	Date  string `json:"date,omitempty"`
	Error string `json:"error"`
}

// UploadResult reports a JSON import. Items fail independently; one bad
// record never aborts the batch.
type UploadResult struct {
	SuccessCount int           `json:"successCount"`
	ErrorItems   []UploadError `json:"errorItems"`
	ArchivedAs   string        `json:"archivedAs,omitempty"`
}

// UploadJSON imports devotions (and optionally hymns) from an admin upload.
// Records are normalized to the sectioned shape before they are stored.
func (s *Service) UploadJSON(ctx context.Context, session Session, filename string, raw []byte) (UploadResult, error) {
	payload, err := decodeUpload(raw)
	if err != nil {
		return UploadResult{}, domainError(http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
	}
	if len(payload.Devotions) == 0 && len(payload.Hymns) == 0 {
		return UploadResult{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "upload contains no devotions or hymns", nil)
	}

	result := UploadResult{ErrorItems: []UploadError{}}

	for i, record := range payload.Devotions {
		normalized, err := devotion.Normalize(record, session.UserName)
		if err != nil {
			result.ErrorItems = append(result.ErrorItems, UploadError{Index: i, Date: record.Date, Error: err.Error()})
			continue
		}
		if err := s.store.UpsertDevotion(ctx, normalized); err != nil {
			result.ErrorItems = append(result.ErrorItems, UploadError{Index: i, Date: normalized.Date, Error: err.Error()})
			continue
		}
		s.recordDevotionChange(normalized, session.UserName, "Import devotion for "+normalized.Date)
		result.SuccessCount++
	}

	for i, hymn := range payload.Hymns {
		if _, err := time.Parse("2006-01", hymn.Month); err != nil {
			result.ErrorItems = append(result.ErrorItems, UploadError{Index: len(payload.Devotions) + i, Date: hymn.Month, Error: "month must be YYYY-MM"})
			continue
		}
		if hymn.ID == "" {
			hymn.ID = "hymn-" + hymn.Month
		}
		hymn.UpdatedBy = session.UserName
		if err := s.store.UpsertHymn(ctx, hymn); err != nil {
			result.ErrorItems = append(result.ErrorItems, UploadError{Index: len(payload.Devotions) + i, Date: hymn.Month, Error: err.Error()})
			continue
		}
		s.recordHymnChange(hymn, session.UserName, "Import hymn for "+hymn.Month)
		result.SuccessCount++
	}

	if s.archive != nil {
		objectName, err := s.archive.ArchiveUpload(ctx, filename, raw)
		if err == nil {
			result.ArchivedAs = objectName
		}
	}

	return result, nil
}

// monthUpload is the month-keyed upload form: the payload maps "YYYY-MM" to
// that month's hymn and devotion list.
type monthUpload struct {
	Hymn      *store.Hymn          `json:"hymn"`
	Devotions []devotion.RawRecord `json:"devotions"`
}

func decodeUpload(raw []byte) (UploadPayload, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return UploadPayload{}, fmt.Errorf("empty upload")
	}
	if strings.HasPrefix(trimmed, "[") {
		var records []devotion.RawRecord
		if err := json.Unmarshal(raw, &records); err != nil {
			return UploadPayload{}, fmt.Errorf("invalid JSON array")
		}
		return UploadPayload{Devotions: records}, nil
	}

	var payload UploadPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return UploadPayload{}, fmt.Errorf("invalid JSON body")
	}
	if len(payload.Devotions) > 0 || len(payload.Hymns) > 0 {
		return payload, nil
	}

	// Month-keyed form. Keys are sorted so item indexes are stable.
	var byMonth map[string]monthUpload
	if err := json.Unmarshal(raw, &byMonth); err != nil {
		return UploadPayload{}, fmt.Errorf("invalid JSON body")
	}
	months := make([]string, 0, len(byMonth))
	for month := range byMonth {
		if _, err := time.Parse("2006-01", month); err != nil {
			return UploadPayload{}, fmt.Errorf("unrecognized upload key %q", month)
		}
		months = append(months, month)
	}
	sort.Strings(months)
	for _, month := range months {
		entry := byMonth[month]
		for _, record := range entry.Devotions {
			if record.Month == "" {
				record.Month = time.Month(monthNumber(month)).String()
			}
			payload.Devotions = append(payload.Devotions, record)
		}
		if entry.Hymn != nil {
			hymn := *entry.Hymn
			hymn.Month = month
			payload.Hymns = append(payload.Hymns, hymn)
		}
	}
	return payload, nil
}

func monthNumber(month string) int {
	parsed, err := time.Parse("2006-01", month)
	if err != nil {
		return 0
	}
	return int(parsed.Month())
}

// recordDevotionChange updates the audit log and search index. Both are
// best-effort; the store write already succeeded.
func (s *Service) recordDevotionChange(item store.Devotion, author, message string) {
	if s.audit != nil {
		if _, err := s.audit.RecordDevotion(item, author, message); err != nil {
			logAuditError("devotion", item.Date, err)
		}
	}
	if s.search != nil {
		s.search.IndexDevotion(item)
	}
}

func (s *Service) recordHymnChange(item store.Hymn, author, message string) {
	if s.audit != nil {
		if _, err := s.audit.RecordHymn(item, author, message); err != nil {
			logAuditError("hymn", item.Month, err)
		}
	}
	if s.search != nil {
		s.search.IndexHymn(item)
	}
}

func logAuditError(kind, key string, err error) {
	log.Printf("audit: record %s %s: %v", kind, key, err)
}

// DevotionHistory lists the audit log commits for a date.
func (s *Service) DevotionHistory(ctx context.Context, date string) ([]store.CommitInfo, error) {
	if _, err := devotion.ParseDate(date); err != nil {
		return nil, domainError(http.StatusBadRequest, "INVALID_DATE", "date must be YYYY-MM-DD", nil)
	}
	if s.audit == nil {
		return []store.CommitInfo{}, nil
	}
	return s.audit.History(date, 50)
}

// DevotionRevision returns the devotion content as of an audit log commit.
func (s *Service) DevotionRevision(ctx context.Context, date, hash string) (store.Devotion, error) {
	if _, err := devotion.ParseDate(date); err != nil {
		return store.Devotion{}, domainError(http.StatusBadRequest, "INVALID_DATE", "date must be YYYY-MM-DD", nil)
	}
	if s.audit == nil {
		return store.Devotion{}, domainError(http.StatusNotFound, "NOT_FOUND", "No audit history for this date", nil)
	}
	item, err := s.audit.DevotionAt(date, hash)
	if err != nil {
		return store.Devotion{}, domainError(http.StatusNotFound, "NOT_FOUND", "Revision not found", nil)
	}
	return item, nil
}

// ExportMonth renders a month's booklet PDF. The rendered booklet is also
// archived to object storage, best-effort.
func (s *Service) ExportMonth(ctx context.Context, month string) (*export.Result, error) {
	if s.export == nil {
		return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Export is not configured", nil)
	}
	result, err := s.export.ExportMonth(ctx, month)
	if err != nil {
		return nil, err
	}
	if s.archive != nil {
		if _, archiveErr := s.archive.ArchiveBooklet(ctx, month, result.Data); archiveErr != nil {
			log.Printf("archive: booklet %s: %v", month, archiveErr)
		}
	}
	return result, nil
}
