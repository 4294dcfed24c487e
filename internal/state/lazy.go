package state

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Opener 建立到底层存储的连接。
type Opener func(ctx context.Context) (Store, error)

// LazyStore 在首次使用时才连接底层存储，连接失败不会影响进程启动。
// 失败后在 retryInterval 内直接返回上一次的错误，避免每个请求都去连接。
// 同一时刻只有一个连接尝试；重连期间其他请求直接拿到上一次的错误。
type LazyStore struct {
	open          Opener
	retryInterval time.Duration
	now           func() time.Time
	group         singleflight.Group

	mu        sync.Mutex
	store     Store
	lastErr   error
	lastTried time.Time
	dialing   bool
}

var _ Store = (*LazyStore)(nil)

// NewLazyStore 创建 LazyStore。
func NewLazyStore(open Opener, retryInterval time.Duration) *LazyStore {
	return &LazyStore{open: open, retryInterval: retryInterval, now: time.Now}
}

func (l *LazyStore) current(ctx context.Context) (Store, error) {
	l.mu.Lock()
	store, lastErr := l.store, l.lastErr
	waitRetry := lastErr != nil && (l.dialing || l.now().Sub(l.lastTried) < l.retryInterval)
	l.mu.Unlock()
	if store != nil {
		return store, nil
	}
	if waitRetry {
		return nil, lastErr
	}

	ch := l.group.DoChan("open", func() (interface{}, error) {
		return l.connect(ctx)
	})
	select {
	case <-ctx.Done():
		return nil, unavailable(ctx.Err(), "state store is not reachable")
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(Store), nil
	}
}

// connect 在不持有锁的情况下建立连接。
func (l *LazyStore) connect(ctx context.Context) (Store, error) {
	l.mu.Lock()
	if l.store != nil {
		store := l.store
		l.mu.Unlock()
		return store, nil
	}
	l.dialing = true
	l.lastTried = l.now()
	l.mu.Unlock()

	store, err := l.open(ctx)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.dialing = false
	if err != nil {
		l.lastErr = unavailable(err, "state store is not reachable")
		return nil, l.lastErr
	}
	l.store, l.lastErr = store, nil
	return store, nil
}

// Get 实现 Store 接口。
func (l *LazyStore) Get(ctx context.Context, userID string) (UserIdentity, error) {
	store, err := l.current(ctx)
	if err != nil {
		return UserIdentity{}, err
	}
	return store.Get(ctx, userID)
}

// Set 实现 Store 接口。
func (l *LazyStore) Set(ctx context.Context, identity UserIdentity) (string, error) {
	store, err := l.current(ctx)
	if err != nil {
		return "", err
	}
	return store.Set(ctx, identity)
}

// Unset 实现 Store 接口。
func (l *LazyStore) Unset(ctx context.Context, identity UserIdentity) (string, error) {
	store, err := l.current(ctx)
	if err != nil {
		return "", err
	}
	return store.Unset(ctx, identity)
}

// Close 关闭已经建立的连接。
func (l *LazyStore) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.store == nil {
		return nil
	}
	err := l.store.Close()
	l.store = nil
	return err
}
