package relay

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

type Listener struct {
	dir       string
	path      string
	onMessage func(string)
	discard   func(error)
	logger    *zap.Logger

	watcher  *fsnotify.Watcher
	done     chan struct{}
	stopOnce sync.Once
}

type Option func(*Listener)

// WithDiscard receives every dropped message or watcher failure.
func WithDiscard(fn func(error)) Option {
	return func(l *Listener) { l.discard = fn }
}

func WithLogger(logger *zap.Logger) Option {
	return func(l *Listener) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// Listen watches dir for the mailbox. onMessage runs on the listener
// goroutine, concurrently with the rest of the program, once per message
// read; callers marshal onto their own goroutine if they need to.
func Listen(dir string, onMessage func(string), opts ...Option) (*Listener, error) {
	if onMessage == nil {
		return nil, errors.New("relay: nil message callback")
	}
	l := &Listener{
		dir:       dir,
		path:      MailboxPath(dir),
		onMessage: onMessage,
		logger:    zap.NewNop(),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("relay: create watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("relay: watch %s: %w", dir, err)
	}
	l.watcher = w

	go l.run()
	l.logger.Debug("relay listener started", zap.String("dir", dir))
	return l, nil
}

// Stop detaches the watcher and waits for the listener goroutine. It is safe
// on a nil Listener and when called repeatedly.
func (l *Listener) Stop() {
	if l == nil || l.watcher == nil {
		return
	}
	l.stopOnce.Do(func() {
		_ = l.watcher.Close()
		<-l.done
		l.logger.Debug("relay listener stopped", zap.String("dir", l.dir))
	})
}

func (l *Listener) run() {
	defer close(l.done)
	for {
		select {
		case ev, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != MailboxName {
				continue
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if err := l.consume(); err != nil {
				l.drop(err)
			}
		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.drop(&DropError{Op: "watch", Path: l.dir, Err: err})
		}
	}
}

// consume reads the mailbox, delivers it and deletes it. Several events may
// announce the same message; once it is deleted the later ones fail to read
// and are dropped, so each message is delivered at most once.
//
// An empty mailbox is left in place: a sender writing the file directly
// creates it before writing, and the Write event that follows carries the
// content.
func (l *Listener) consume() error {
	b, err := os.ReadFile(l.path)
	if err != nil {
		return &DropError{Op: "read", Path: l.path, Err: err}
	}
	if len(b) == 0 {
		return nil
	}

	var errs []error
	if err := l.deliver(string(b)); err != nil {
		errs = append(errs, err)
	}
	if err := os.Remove(l.path); err != nil {
		errs = append(errs, &DropError{Op: "remove", Path: l.path, Err: err})
	}
	return errors.Join(errs...)
}

func (l *Listener) deliver(msg string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &DropError{Op: "deliver", Path: l.path, Err: fmt.Errorf("callback panic: %v", r)}
		}
	}()
	l.onMessage(msg)
	return nil
}

func (l *Listener) drop(err error) {
	l.logger.Debug("relay message dropped", zap.Error(err))
	if l.discard != nil {
		l.discard(err)
	}
}
