package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	redislib "github.com/redis/go-redis/v9"
)

type mockStore struct {
	mu     sync.Mutex
	data   map[string]string
	getErr error
}

func newMockStore() *mockStore {
	return &mockStore{data: make(map[string]string)}
}

func (m *mockStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = fmt.Sprint(value)
	return nil
}

func (m *mockStore) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return "", m.getErr
	}
	val, ok := m.data[key]
	if !ok {
		return "", redislib.Nil
	}
	return val, nil
}

func (m *mockStore) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

func (m *mockStore) AccessSessionKey(accessID string) string {
	return fmt.Sprintf("sess:%s", accessID)
}

func TestManagerRegisterHasRevoke(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	mgr, err := NewManager(store)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	accessID := NewAccessID()
	ok, err := mgr.HasSession(ctx, accessID)
	if err != nil || ok {
		t.Fatalf("expected no session before register, got %v err %v", ok, err)
	}

	if err := mgr.Register(ctx, accessID, uuid.New(), time.Hour); err != nil {
		t.Fatalf("register: %v", err)
	}
	ok, err = mgr.HasSession(ctx, accessID)
	if err != nil || !ok {
		t.Fatalf("expected live session, got %v err %v", ok, err)
	}

	if err := mgr.Revoke(ctx, accessID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	ok, err = mgr.HasSession(ctx, accessID)
	if err != nil || ok {
		t.Fatalf("expected revoked session, got %v err %v", ok, err)
	}
}

func TestManagerSurfacesStoreErrors(t *testing.T) {
	store := newMockStore()
	store.getErr = errors.New("redis down")
	mgr, err := NewManager(store)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if _, err := mgr.HasSession(context.Background(), "abc"); err == nil {
		t.Fatal("expected store error to surface")
	}
}

func TestManagerValidatesInput(t *testing.T) {
	mgr, _ := NewManager(newMockStore())
	if _, err := mgr.HasSession(context.Background(), " "); err == nil {
		t.Fatal("expected blank access id error")
	}
	if err := mgr.Register(context.Background(), "abc", uuid.New(), 0); err == nil {
		t.Fatal("expected ttl error")
	}
	if _, err := NewManager(nil); err == nil {
		t.Fatal("expected nil store error")
	}
}
