package service

import (
	"sync"

	"github.com/Ning0612/Gitbox/internal/domain"
)

// StatusFunc receives a status snapshot it owns
type StatusFunc func(domain.SyncStatus)

// FilesFunc receives a file tree snapshot it owns
type FilesFunc func([]domain.FileItem)

// Subscription is the handle returned by Subscribe*
type Subscription struct {
	once   sync.Once
	cancel func()
}

// Unsubscribe stops delivery. It may be called repeatedly and from inside
// the callback itself.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(s.cancel)
}

type observers struct {
	mu     sync.Mutex
	nextID uint64
	status map[uint64]StatusFunc
	files  map[uint64]FilesFunc
}

func (o *observers) addStatus(fn StatusFunc) *Subscription {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.status == nil {
		o.status = make(map[uint64]StatusFunc)
	}
	o.nextID++
	id := o.nextID
	o.status[id] = fn
	return &Subscription{cancel: func() {
		o.mu.Lock()
		delete(o.status, id)
		o.mu.Unlock()
	}}
}

func (o *observers) addFiles(fn FilesFunc) *Subscription {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.files == nil {
		o.files = make(map[uint64]FilesFunc)
	}
	o.nextID++
	id := o.nextID
	o.files[id] = fn
	return &Subscription{cancel: func() {
		o.mu.Lock()
		delete(o.files, id)
		o.mu.Unlock()
	}}
}

// notifyStatus delivers a separate clone to every subscriber, outside the lock
func (o *observers) notifyStatus(snap domain.SyncStatus) {
	o.mu.Lock()
	fns := make([]StatusFunc, 0, len(o.status))
	for _, fn := range o.status {
		fns = append(fns, fn)
	}
	o.mu.Unlock()

	for _, fn := range fns {
		fn(snap.Clone())
	}
}

func (o *observers) notifyFiles(tree []domain.FileItem) {
	o.mu.Lock()
	fns := make([]FilesFunc, 0, len(o.files))
	for _, fn := range o.files {
		fns = append(fns, fn)
	}
	o.mu.Unlock()

	for _, fn := range fns {
		fn(domain.CloneTree(tree))
	}
}

// SubscribeStatus delivers the current status immediately and then every change
func (e *Engine) SubscribeStatus(fn StatusFunc) *Subscription {
	sub := e.obs.addStatus(fn)
	fn(e.session.Status())
	return sub
}

// SubscribeFiles delivers the file tree after every structural rebuild
func (e *Engine) SubscribeFiles(fn FilesFunc) *Subscription {
	return e.obs.addFiles(fn)
}
