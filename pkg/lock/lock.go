// Package lock 提供按键互斥的锁：进程内实现和基于 Redis 的跨进程实现。
// 入库流程用内容指纹作为键，保证同一份内容同一时刻只有一个入库在执行。
package lock

import (
	"context"
	"errors"
	"sync"
)

// ErrNotAcquired 表示在上下文结束前没有拿到锁。
var ErrNotAcquired = errors.New("未能获取锁")

// Locker 按键加锁，返回的 unlock 函数释放该锁。
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

type keyedEntry struct {
	ch   chan struct{}
	refs int
}

// KeyedMutex 是进程内的按键互斥锁，不再使用的键会被回收。
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[string]*keyedEntry
}

// NewKeyedMutex 创建一个进程内按键锁。
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{entries: map[string]*keyedEntry{}}
}

// Lock 阻塞直到拿到 key 的锁或 ctx 结束。
func (m *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()
	e, ok := m.entries[key]
	if !ok {
		e = &keyedEntry{ch: make(chan struct{}, 1)}
		m.entries[key] = e
	}
	e.refs++
	m.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		m.release(key, e, false)
		return nil, errors.Join(ErrNotAcquired, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() { m.release(key, e, true) })
	}, nil
}

func (m *KeyedMutex) release(key string, e *keyedEntry, held bool) {
	if held {
		<-e.ch
	}
	m.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(m.entries, key)
	}
	m.mu.Unlock()
}

// size 返回当前仍被引用的键数。
func (m *KeyedMutex) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
