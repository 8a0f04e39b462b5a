// Package contentlog keeps an audit trail of admin content changes. Each
// month gets its own git repository under the base directory; every
// devotion upsert commits that date's JSON, so the full edit history of any
// day is a git log away.
package contentlog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"selah/api/internal/store"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

// RecordDevotion commits the devotion's JSON to its month repository.
func (s *Service) RecordDevotion(devotion store.Devotion, author, message string) (store.CommitInfo, error) {
	month := monthOf(devotion.Date)
	if month == "" {
		return store.CommitInfo{}, fmt.Errorf("devotion date %q has no month", devotion.Date)
	}
	payload, err := json.MarshalIndent(devotion, "", "  ")
	if err != nil {
		return store.CommitInfo{}, fmt.Errorf("marshal devotion: %w", err)
	}
	return s.commitFile(month, devotion.Date+".json", payload, author, message)
}

// RecordHymn commits the month's hymn JSON alongside its devotions.
func (s *Service) RecordHymn(hymn store.Hymn, author, message string) (store.CommitInfo, error) {
	if hymn.Month == "" {
		return store.CommitInfo{}, fmt.Errorf("hymn has no month")
	}
	payload, err := json.MarshalIndent(hymn, "", "  ")
	if err != nil {
		return store.CommitInfo{}, fmt.Errorf("marshal hymn: %w", err)
	}
	return s.commitFile(hymn.Month, "hymn.json", payload, author, message)
}

// History lists the commits that touched a devotion date, newest first.
func (s *Service) History(date string, limit int) ([]store.CommitInfo, error) {
	month := monthOf(date)
	if month == "" {
		return nil, fmt.Errorf("date %q has no month", date)
	}

	lock := s.monthLock(month)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(month))
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return []store.CommitInfo{}, nil
		}
		return nil, fmt.Errorf("open repo: %w", err)
	}

	ref, err := repo.Reference(plumbing.NewBranchReferenceName("main"), true)
	if err != nil {
		return nil, fmt.Errorf("resolve main: %w", err)
	}

	fileName := date + ".json"
	iter, err := repo.Log(&git.LogOptions{From: ref.Hash(), FileName: &fileName})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]store.CommitInfo, 0, limit)
	count := 0
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toCommitInfo(commitObj))
		count++
		if limit > 0 && count >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// DevotionAt reads the devotion JSON for a date as of a given commit.
func (s *Service) DevotionAt(date, hash string) (store.Devotion, error) {
	month := monthOf(date)
	if month == "" {
		return store.Devotion{}, fmt.Errorf("date %q has no month", date)
	}

	lock := s.monthLock(month)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(month))
	if err != nil {
		return store.Devotion{}, fmt.Errorf("open repo: %w", err)
	}

	resolvedHash, err := resolveHash(repo, hash)
	if err != nil {
		return store.Devotion{}, err
	}
	commitObj, err := repo.CommitObject(resolvedHash)
	if err != nil {
		return store.Devotion{}, fmt.Errorf("read commit %s: %w", hash, err)
	}

	file, err := commitObj.File(date + ".json")
	if err != nil {
		return store.Devotion{}, fmt.Errorf("load %s.json from commit: %w", date, err)
	}
	reader, err := file.Reader()
	if err != nil {
		return store.Devotion{}, fmt.Errorf("open content reader: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return store.Devotion{}, fmt.Errorf("read content bytes: %w", err)
	}

	var devotion store.Devotion
	if err := json.Unmarshal(raw, &devotion); err != nil {
		return store.Devotion{}, fmt.Errorf("decode commit content: %w", err)
	}
	return devotion, nil
}

func (s *Service) commitFile(month, fileName string, payload []byte, author, message string) (store.CommitInfo, error) {
	lock := s.monthLock(month)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.ensureRepo(month, author)
	if err != nil {
		return store.CommitInfo{}, err
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return store.CommitInfo{}, fmt.Errorf("open worktree: %w", err)
	}

	path := filepath.Join(s.repoPath(month), fileName)
	if err := os.WriteFile(path, append(payload, '\n'), 0o644); err != nil {
		return store.CommitInfo{}, fmt.Errorf("write %s: %w", fileName, err)
	}
	if _, err := worktree.Add(fileName); err != nil {
		return store.CommitInfo{}, fmt.Errorf("git add %s: %w", fileName, err)
	}

	hash, err := worktree.Commit(message, &git.CommitOptions{
		AllowEmptyCommits: true,
		Author:            signature(author),
	})
	if err != nil {
		return store.CommitInfo{}, fmt.Errorf("commit %s: %w", fileName, err)
	}

	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return store.CommitInfo{}, fmt.Errorf("read commit object: %w", err)
	}
	return toCommitInfo(commitObj), nil
}

// ensureRepo opens the month repository, initializing it with a baseline
// commit on main the first time a month is touched.
func (s *Service) ensureRepo(month, author string) (*git.Repository, error) {
	path := s.repoPath(month)

	repo, err := git.PlainOpen(path)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err = git.PlainInit(path, false)
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("open worktree: %w", err)
	}
	marker := fmt.Sprintf("Content log for %s\n", month)
	if err := os.WriteFile(filepath.Join(path, "README"), []byte(marker), 0o644); err != nil {
		return nil, fmt.Errorf("write baseline: %w", err)
	}
	if _, err := worktree.Add("README"); err != nil {
		return nil, fmt.Errorf("git add baseline: %w", err)
	}
	hash, err := worktree.Commit("Initialize content log for "+month, &git.CommitOptions{
		Author: signature(author),
	})
	if err != nil {
		return nil, fmt.Errorf("commit baseline: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewHashReference(plumbing.NewBranchReferenceName("main"), hash)); err != nil {
		return nil, fmt.Errorf("set main branch ref: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("main"))); err != nil {
		return nil, fmt.Errorf("set HEAD to main: %w", err)
	}
	return repo, nil
}

func (s *Service) repoPath(month string) string {
	return filepath.Join(s.baseDir, month)
}

func (s *Service) monthLock(month string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[month]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[month] = lock
	return lock
}

func monthOf(date string) string {
	if len(date) < 7 {
		return ""
	}
	return date[:7]
}

func signature(author string) *object.Signature {
	return &object.Signature{
		Name:  author,
		Email: fmt.Sprintf("%s@local.selah.dev", sanitizeEmail(author)),
		When:  time.Now(),
	}
}

func toCommitInfo(commitObj *object.Commit) store.CommitInfo {
	return store.CommitInfo{
		Hash:      commitObj.Hash.String()[:7],
		Message:   commitObj.Message,
		Author:    commitObj.Author.Name,
		Timestamp: commitObj.Author.When,
	}
}

func sanitizeEmail(input string) string {
	runes := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			runes = append(runes, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			runes = append(runes, '.')
		}
	}
	if len(runes) == 0 {
		return "admin"
	}
	return string(runes)
}

func resolveHash(repo *git.Repository, hash string) (plumbing.Hash, error) {
	if len(hash) == 40 {
		return plumbing.NewHash(hash), nil
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve hash %s: %w", hash, err)
	}
	return *resolved, nil
}
