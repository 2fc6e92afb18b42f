package instance

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/it-atelier-gn/single-instance/internal/cmdline"
	"github.com/it-atelier-gn/single-instance/internal/election"
	"github.com/it-atelier-gn/single-instance/internal/identity"
	"github.com/it-atelier-gn/single-instance/internal/procinfo"
	"github.com/it-atelier-gn/single-instance/internal/relay"
	"github.com/it-atelier-gn/single-instance/internal/shm"
	"github.com/it-atelier-gn/single-instance/internal/user"
)

// ErrAlreadyInitialized is returned when the election already ran for a
// Coordinator. Each Coordinator elects once.
var ErrAlreadyInitialized = errors.New("instance: already initialized")

// Receiver gets the arguments of every later launch relayed to the primary.
// OnExternalArgs runs on the relay goroutine, concurrently with the rest of
// the application.
type Receiver interface {
	OnExternalArgs(args []string)
}

type ReceiverFunc func(args []string)

func (f ReceiverFunc) OnExternalArgs(args []string) { f(args) }

type Options struct {
	// Receiver gets relayed arguments. Without one the primary does not
	// watch the relay directory and the mailbox is left for a later primary.
	Receiver Receiver
	Logger   *zap.Logger

	// LockDir holds unix lock files; empty means os.TempDir().
	LockDir string
	// RelayDir overrides the mailbox directory. Empty means the directory of
	// the running executable, which is what every launch must agree on.
	RelayDir string
	// CommandLine is what a secondary relays; empty means the raw command
	// line of this process.
	CommandLine string
	// UserName overrides the current login name in the identity.
	UserName string
	// Tokenize splits a relayed command line; defaults to cmdline.Tokenize.
	Tokenize func(string) []string
	// Discard receives relay failures that were dropped.
	Discard func(error)
	// PublishPresence makes the primary advertise itself in shared memory.
	PublishPresence bool
}

type Coordinator struct {
	opts   Options
	logger *zap.Logger

	mu       sync.Mutex
	state    State
	id       identity.Identity
	relayDir string
	lock     *election.Lock
	listener *relay.Listener
	presence *shm.Region
}

func New(opts Options) *Coordinator {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Tokenize == nil {
		opts.Tokenize = cmdline.Tokenize
	}
	return &Coordinator{
		opts:   opts,
		logger: logger.Named("instance"),
	}
}

// InitializeAsFirstInstance runs the election for uniqueName and the current
// user. It returns true when this process is the primary instance; the
// relay listener is then running. It returns false after relaying this
// process's command line to the primary; the caller is expected to exit.
//
// An error means the election itself could not run. The caller must not
// assume it is primary in that case.
func (c *Coordinator) InitializeAsFirstInstance(uniqueName string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Unstarted {
		return false, fmt.Errorf("%w (state %s)", ErrAlreadyInitialized, c.state)
	}
	c.state = Electing

	id, err := c.identityFor(uniqueName)
	if err != nil {
		c.state = Unstarted
		return false, err
	}

	lock, primary, err := election.TryAcquire(c.opts.LockDir, id)
	if err != nil {
		c.state = Unstarted
		return false, fmt.Errorf("elect %q: %w", id.String(), err)
	}
	c.id = id
	c.lock = lock

	dir, dirErr := c.resolveRelayDir()
	c.relayDir = dir

	if primary {
		c.state = PrimaryActive
		c.logger.Info("primary instance",
			zap.String("identity", id.String()),
			zap.String("lock", lock.Name()),
			zap.String("relay_dir", dir))
		if dirErr != nil {
			c.discard(dirErr)
		} else {
			c.startListening(dir)
		}
		c.publishPresence(dir)
		return true, nil
	}

	c.state = SecondaryDone
	c.logger.Info("secondary instance, relaying command line",
		zap.String("identity", id.String()),
		zap.String("relay_dir", dir))
	c.inspectPrimary(dir)
	if dirErr != nil {
		c.discard(dirErr)
	} else if err := relay.Send(dir, c.commandLine()); err != nil {
		c.discard(err)
	}
	return false, nil
}

// Cleanup releases the election. It is meant for process exit, may be
// called in any state and more than once, and leaves the relay listener
// running.
func (c *Coordinator) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == CleanedUp {
		return
	}
	c.presence.Close()
	c.presence = nil
	c.lock.Release()
	c.lock = nil
	c.state = CleanedUp
	c.logger.Debug("instance cleaned up", zap.String("identity", c.id.String()))
}

// StopListening detaches the relay listener. Safe to call repeatedly or when
// no listener runs. Must not be called from a Receiver.
func (c *Coordinator) StopListening() {
	c.mu.Lock()
	l := c.listener
	c.listener = nil
	c.mu.Unlock()

	l.Stop()
}

// Close stops listening and cleans up.
func (c *Coordinator) Close() {
	c.StopListening()
	c.Cleanup()
}

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Coordinator) IsPrimary() bool {
	return c.State() == PrimaryActive
}

// Identity is the election identity, zero until InitializeAsFirstInstance ran.
func (c *Coordinator) Identity() identity.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// RelayDir is the mailbox directory resolved during the election.
func (c *Coordinator) RelayDir() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.relayDir
}

func (c *Coordinator) identityFor(uniqueName string) (identity.Identity, error) {
	userName := c.opts.UserName
	if userName == "" {
		name, err := user.CurrentName()
		if err != nil {
			return identity.Identity{}, err
		}
		userName = name
	}
	return identity.For(uniqueName, userName)
}

func (c *Coordinator) resolveRelayDir() (string, error) {
	if c.opts.RelayDir != "" {
		return c.opts.RelayDir, nil
	}
	dir, err := relay.DefaultDir()
	if err != nil {
		return "", &relay.DropError{Op: "resolve", Path: relay.MailboxName, Err: err}
	}
	return dir, nil
}

func (c *Coordinator) commandLine() string {
	if c.opts.CommandLine != "" {
		return c.opts.CommandLine
	}
	return cmdline.Current()
}

func (c *Coordinator) startListening(dir string) {
	if c.opts.Receiver == nil {
		c.logger.Debug("no receiver, relay directory not watched", zap.String("relay_dir", dir))
		return
	}
	l, err := relay.Listen(dir, c.deliver,
		relay.WithDiscard(c.discard),
		relay.WithLogger(c.logger))
	if err != nil {
		c.logger.Warn("relay listener unavailable, later launches cannot reach this instance",
			zap.String("relay_dir", dir), zap.Error(err))
		c.discard(&relay.DropError{Op: "listen", Path: dir, Err: err})
		return
	}
	c.listener = l
}

// deliver runs on the relay goroutine and never touches coordinator state.
func (c *Coordinator) deliver(content string) {
	args := c.opts.Tokenize(content)
	c.logger.Debug("relayed command line received", zap.Strings("args", args))
	c.opts.Receiver.OnExternalArgs(args)
}

func (c *Coordinator) discard(err error) {
	c.logger.Debug("relay failure ignored", zap.Error(err))
	if c.opts.Discard != nil {
		c.opts.Discard(err)
	}
}

func (c *Coordinator) publishPresence(dir string) {
	if !c.opts.PublishPresence {
		return
	}
	exe, _ := os.Executable()
	region, err := shm.PublishPresence(c.id, shm.Presence{
		PID:        os.Getpid(),
		Executable: exe,
		RelayDir:   dir,
		Identity:   c.id.String(),
		StartedAt:  time.Now().UTC(),
	})
	if err != nil {
		c.logger.Warn("presence publish failed", zap.Error(err))
		return
	}
	c.presence = region
}

// inspectPrimary logs what is known about the current primary. It never
// changes the outcome: the election already decided.
func (c *Coordinator) inspectPrimary(dir string) {
	p, err := shm.ReadPresence(c.id)
	if err != nil {
		c.logger.Debug("no presence record for primary", zap.Error(err))
		return
	}
	fields := []zap.Field{
		zap.Int("primary_pid", p.PID),
		zap.String("primary_exe", p.Executable),
	}
	if !procinfo.Alive(p.PID) {
		c.logger.Warn("presence record points to a process that is gone", fields...)
		return
	}
	if p.RelayDir != dir {
		c.logger.Warn("primary listens in a different directory, relayed arguments will not arrive",
			append(fields, zap.String("primary_relay_dir", p.RelayDir), zap.String("relay_dir", dir))...)
		return
	}
	c.logger.Debug("relaying to primary", fields...)
}
