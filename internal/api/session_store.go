package api

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alexxcrz/IXORA-sub001/internal/model"
	"github.com/alexxcrz/IXORA-sub001/internal/parser"
)

var (
	errSessionNotFound = errors.New("upload session not found")
	errSessionBusy     = errors.New("upload session is already being imported")
)

// uploadSession 上传后待确认的导入
type uploadSession struct {
	filename   string
	size       int64
	hash       string
	table      *model.SourceTable
	mapping    *model.ColumnMapping
	unmapped   []string
	warnings   []parser.ValidationWarning
	committing bool
	expiresAt  time.Time
}

type uploadSessionStore struct {
	mu    sync.Mutex
	ttl   time.Duration
	items map[string]*uploadSession
}

func newUploadSessionStore(ttl time.Duration) *uploadSessionStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &uploadSessionStore{
		ttl:   ttl,
		items: make(map[string]*uploadSession),
	}
}

func (s *uploadSessionStore) put(sess *uploadSession) (token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.purgeExpiredLocked(now)

	token = uuid.NewString()
	sess.expiresAt = now.Add(s.ttl)
	s.items[token] = sess
	return token
}

// update 在锁内修改会话并续期
func (s *uploadSessionStore) update(token string, fn func(*uploadSession) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.lookupLocked(token)
	if err != nil {
		return err
	}
	if sess.committing {
		return errSessionBusy
	}
	if err := fn(sess); err != nil {
		return err
	}
	sess.expiresAt = time.Now().Add(s.ttl)
	return nil
}

// claim 标记会话进入提交，同一会话只能提交一次
func (s *uploadSessionStore) claim(token string) (*uploadSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.lookupLocked(token)
	if err != nil {
		return nil, err
	}
	if sess.committing {
		return nil, errSessionBusy
	}
	sess.committing = true
	return sess, nil
}

// release 提交未开始时归还会话
func (s *uploadSessionStore) release(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.items[token]; ok {
		sess.committing = false
	}
}

func (s *uploadSessionStore) delete(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.items[token]
	delete(s.items, token)
	return ok
}

func (s *uploadSessionStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeExpiredLocked(time.Now())
	return len(s.items)
}

func (s *uploadSessionStore) lookupLocked(token string) (*uploadSession, error) {
	s.purgeExpiredLocked(time.Now())

	sess, ok := s.items[token]
	if !ok {
		return nil, errSessionNotFound
	}
	return sess, nil
}

func (s *uploadSessionStore) purgeExpiredLocked(now time.Time) {
	for k, v := range s.items {
		// 提交中的会话不过期
		if !v.committing && now.After(v.expiresAt) {
			delete(s.items, k)
		}
	}
}
