package instance

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/it-atelier-gn/single-instance/internal/election"
	"github.com/it-atelier-gn/single-instance/internal/relay"
	"github.com/it-atelier-gn/single-instance/internal/shm"
)

const (
	waitFor = 5 * time.Second
	tick    = 10 * time.Millisecond
	settle  = 200 * time.Millisecond
)

// recorder is a Receiver collecting relayed argument lists and dropped
// relay errors.
type recorder struct {
	mu      sync.Mutex
	calls   [][]string
	dropped []error
}

func (r *recorder) OnExternalArgs(args []string) {
	r.mu.Lock()
	r.calls = append(r.calls, args)
	r.mu.Unlock()
}

func (r *recorder) discard(err error) {
	r.mu.Lock()
	r.dropped = append(r.dropped, err)
	r.mu.Unlock()
}

func (r *recorder) received() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]string(nil), r.calls...)
}

func (r *recorder) drops() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.dropped...)
}

// env is the shared machine state of one test: lock and relay directories
// and a unique application name.
type env struct {
	lockDir  string
	relayDir string
	name     string
}

func newEnv(t *testing.T) env {
	t.Helper()
	return env{
		lockDir:  t.TempDir(),
		relayDir: t.TempDir(),
		name:     fmt.Sprintf("instance-test-%d-%d", os.Getpid(), time.Now().UnixNano()),
	}
}

func (e env) coordinator(t *testing.T, rec *recorder, commandLine string) *Coordinator {
	t.Helper()
	c := New(Options{
		Receiver:    rec,
		LockDir:     e.lockDir,
		RelayDir:    e.relayDir,
		CommandLine: commandLine,
		UserName:    "tester",
		Discard:     rec.discard,
	})
	t.Cleanup(c.Close)
	return c
}

func mailboxGone(dir string) func() bool {
	return func() bool {
		_, err := os.Stat(relay.MailboxPath(dir))
		return errors.Is(err, fs.ErrNotExist)
	}
}

func TestInitialize_PrimaryReceivesSecondaryArgs(t *testing.T) {
	e := newEnv(t)
	primaryRec := &recorder{}
	primary := e.coordinator(t, primaryRec, "")

	ok, err := primary.InitializeAsFirstInstance(e.name)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, PrimaryActive, primary.State())
	assert.True(t, primary.IsPrimary())

	secondaryRec := &recorder{}
	secondary := e.coordinator(t, secondaryRec, "app.exe --foo bar")
	ok, err = secondary.InitializeAsFirstInstance(e.name)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, SecondaryDone, secondary.State())

	require.Eventually(t, func() bool { return len(primaryRec.received()) == 1 }, waitFor, tick)
	require.Eventually(t, mailboxGone(e.relayDir), waitFor, tick)
	time.Sleep(settle)

	assert.Equal(t, [][]string{{"app.exe", "--foo", "bar"}}, primaryRec.received())
	assert.Empty(t, secondaryRec.received(), "a secondary never listens")
}

func TestInitialize_ExactlyOnePrimaryAmongConcurrentLaunches(t *testing.T) {
	const n = 8
	e := newEnv(t)

	results := make([]bool, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		c := e.coordinator(t, &recorder{}, "--launch")
		wg.Add(1)
		go func(i int, c *Coordinator) {
			defer wg.Done()
			ok, err := c.InitializeAsFirstInstance(e.name)
			assert.NoError(t, err)
			results[i] = ok
		}(i, c)
	}
	wg.Wait()

	primaries := 0
	for _, ok := range results {
		if ok {
			primaries++
		}
	}
	assert.Equal(t, 1, primaries)
}

func TestInitialize_DifferentNamesOrUsersDoNotInterfere(t *testing.T) {
	e := newEnv(t)

	a := e.coordinator(t, &recorder{}, "")
	ok, err := a.InitializeAsFirstInstance(e.name)
	require.NoError(t, err)
	require.True(t, ok)

	b := e.coordinator(t, &recorder{}, "")
	ok, err = b.InitializeAsFirstInstance(e.name + "-other")
	require.NoError(t, err)
	assert.True(t, ok, "different unique name must win its own election")

	c := New(Options{LockDir: e.lockDir, RelayDir: t.TempDir(), UserName: "someone-else"})
	t.Cleanup(c.Close)
	ok, err = c.InitializeAsFirstInstance(e.name)
	require.NoError(t, err)
	assert.True(t, ok, "different user must win its own election")
}

func TestInitialize_UnwritableRelayStillSecondary(t *testing.T) {
	e := newEnv(t)
	primary := e.coordinator(t, &recorder{}, "")
	ok, err := primary.InitializeAsFirstInstance(e.name)
	require.NoError(t, err)
	require.True(t, ok)

	rec := &recorder{}
	secondary := New(Options{
		LockDir:     e.lockDir,
		RelayDir:    filepath.Join(e.relayDir, "missing"),
		CommandLine: "--lost",
		UserName:    "tester",
		Discard:     rec.discard,
	})
	t.Cleanup(secondary.Close)

	ok, err = secondary.InitializeAsFirstInstance(e.name)
	require.NoError(t, err)
	assert.False(t, ok)

	drops := rec.drops()
	require.Len(t, drops, 1)
	assert.True(t, relay.IsDropped(drops[0]))
}

func TestInitialize_ListenerFailureKeepsPrimary(t *testing.T) {
	e := newEnv(t)
	rec := &recorder{}
	c := New(Options{
		Receiver: rec,
		LockDir:  e.lockDir,
		RelayDir: filepath.Join(e.relayDir, "missing"),
		UserName: "tester",
		Discard:  rec.discard,
	})
	t.Cleanup(c.Close)

	ok, err := c.InitializeAsFirstInstance(e.name)
	require.NoError(t, err)
	assert.True(t, ok)

	drops := rec.drops()
	require.Len(t, drops, 1)
	var de *relay.DropError
	require.ErrorAs(t, drops[0], &de)
	assert.Equal(t, "listen", de.Op)
}

func TestInitialize_WithoutReceiverLeavesMailbox(t *testing.T) {
	e := newEnv(t)
	rec := &recorder{}
	c := New(Options{
		LockDir:  e.lockDir,
		RelayDir: e.relayDir,
		UserName: "tester",
		Discard:  rec.discard,
	})
	t.Cleanup(c.Close)

	ok, err := c.InitializeAsFirstInstance(e.name)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, relay.Send(e.relayDir, "--kept"))
	time.Sleep(settle)

	b, err := os.ReadFile(relay.MailboxPath(e.relayDir))
	require.NoError(t, err, "mailbox must stay for a primary that can receive it")
	assert.Equal(t, "--kept", string(b))
	assert.Empty(t, rec.drops())
}

func TestInitialize_Twice(t *testing.T) {
	e := newEnv(t)
	c := e.coordinator(t, &recorder{}, "")

	_, err := c.InitializeAsFirstInstance(e.name)
	require.NoError(t, err)

	_, err = c.InitializeAsFirstInstance(e.name)
	assert.ErrorIs(t, err, ErrAlreadyInitialized)
	assert.Equal(t, PrimaryActive, c.State())
}

func TestInitialize_EmptyName(t *testing.T) {
	e := newEnv(t)
	c := e.coordinator(t, &recorder{}, "")

	ok, err := c.InitializeAsFirstInstance("")
	require.Error(t, err)
	assert.False(t, ok)
	assert.Equal(t, Unstarted, c.State())
}

func TestInitialize_ElectionFailureIsFatal(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("lock directory is not used on windows")
	}
	base := t.TempDir()
	blocker := filepath.Join(base, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	c := New(Options{LockDir: filepath.Join(blocker, "locks"), RelayDir: base, UserName: "tester"})
	t.Cleanup(c.Close)

	ok, err := c.InitializeAsFirstInstance("election-failure")
	require.Error(t, err)
	assert.False(t, ok, "a failed election must never report primary")
	assert.ErrorIs(t, err, election.ErrUnavailable)
	assert.Equal(t, Unstarted, c.State())
}

func TestCleanup_IdempotentAndReleases(t *testing.T) {
	e := newEnv(t)

	never := New(Options{})
	never.Cleanup()
	never.Cleanup()
	assert.Equal(t, CleanedUp, never.State())

	first := e.coordinator(t, &recorder{}, "")
	ok, err := first.InitializeAsFirstInstance(e.name)
	require.NoError(t, err)
	require.True(t, ok)

	first.Cleanup()
	first.Cleanup()
	assert.Equal(t, CleanedUp, first.State())

	next := e.coordinator(t, &recorder{}, "")
	ok, err = next.InitializeAsFirstInstance(e.name)
	require.NoError(t, err)
	assert.True(t, ok, "lock must not leak after Cleanup")
}

func TestCleanup_SecondaryReleasesHandle(t *testing.T) {
	e := newEnv(t)
	primary := e.coordinator(t, &recorder{}, "")
	ok, err := primary.InitializeAsFirstInstance(e.name)
	require.NoError(t, err)
	require.True(t, ok)

	secondary := e.coordinator(t, &recorder{}, "--x")
	ok, err = secondary.InitializeAsFirstInstance(e.name)
	require.NoError(t, err)
	require.False(t, ok)

	secondary.Cleanup()
	primary.Close()

	again := e.coordinator(t, &recorder{}, "")
	ok, err = again.InitializeAsFirstInstance(e.name)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRacingSecondaries(t *testing.T) {
	e := newEnv(t)
	rec := &recorder{}
	primary := e.coordinator(t, rec, "")
	ok, err := primary.InitializeAsFirstInstance(e.name)
	require.NoError(t, err)
	require.True(t, ok)

	s1 := e.coordinator(t, &recorder{}, "--a")
	s2 := e.coordinator(t, &recorder{}, "--b")

	var wg sync.WaitGroup
	for _, s := range []*Coordinator{s1, s2} {
		wg.Add(1)
		go func(c *Coordinator) {
			defer wg.Done()
			ok, err := c.InitializeAsFirstInstance(e.name)
			assert.NoError(t, err)
			assert.False(t, ok)
		}(s)
	}
	wg.Wait()

	require.Eventually(t, mailboxGone(e.relayDir), waitFor, tick)
	time.Sleep(settle)

	got := rec.received()
	assert.LessOrEqual(t, len(got), 2)
	for _, args := range got {
		assert.Contains(t, [][]string{{"--a"}, {"--b"}}, args)
	}
}

func TestStopListening_Idempotent(t *testing.T) {
	e := newEnv(t)
	rec := &recorder{}
	c := e.coordinator(t, rec, "")

	c.StopListening() // never started

	ok, err := c.InitializeAsFirstInstance(e.name)
	require.NoError(t, err)
	require.True(t, ok)

	c.StopListening()
	c.StopListening()

	require.NoError(t, relay.Send(e.relayDir, "--ignored"))
	time.Sleep(settle)
	assert.Empty(t, rec.received())
}

func TestReceiverFunc(t *testing.T) {
	e := newEnv(t)
	got := make(chan []string, 1)
	c := New(Options{
		Receiver: ReceiverFunc(func(args []string) { got <- args }),
		LockDir:  e.lockDir,
		RelayDir: e.relayDir,
		UserName: "tester",
	})
	t.Cleanup(c.Close)

	ok, err := c.InitializeAsFirstInstance(e.name)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, relay.Send(e.relayDir, `open "C:\My Files\a.txt"`))
	select {
	case args := <-got:
		assert.Equal(t, []string{"open", `C:\My Files\a.txt`}, args)
	case <-time.After(waitFor):
		t.Fatal("receiver not called")
	}
}

func TestPresence_PublishedByPrimaryOnly(t *testing.T) {
	e := newEnv(t)
	c := New(Options{
		LockDir:         e.lockDir,
		RelayDir:        e.relayDir,
		UserName:        "tester",
		PublishPresence: true,
	})
	t.Cleanup(c.Close)

	ok, err := c.InitializeAsFirstInstance(e.name)
	require.NoError(t, err)
	require.True(t, ok)

	p, err := shm.ReadPresence(c.Identity())
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), p.PID)
	assert.Equal(t, e.relayDir, p.RelayDir)
	assert.Equal(t, c.Identity().String(), p.Identity)

	secondary := New(Options{
		LockDir:         e.lockDir,
		RelayDir:        e.relayDir,
		CommandLine:     "--x",
		UserName:        "tester",
		PublishPresence: true,
	})
	t.Cleanup(secondary.Close)
	ok, err = secondary.InitializeAsFirstInstance(e.name)
	require.NoError(t, err)
	require.False(t, ok)
	secondary.Cleanup()

	p, err = shm.ReadPresence(c.Identity())
	require.NoError(t, err, "secondary cleanup must not withdraw the primary's presence")
	assert.Equal(t, os.Getpid(), p.PID)

	c.Cleanup()
	_, err = shm.ReadPresence(c.Identity())
	assert.Error(t, err)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "primary", PrimaryActive.String())
	assert.Equal(t, "cleaned-up", CleanedUp.String())
	assert.Equal(t, "state(42)", State(42).String())
}
