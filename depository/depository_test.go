package depository_test

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/titon/framework/depository"
	"github.com/titon/framework/internal/testutil"
)

// Test types
type Logger interface {
	Log(msg string)
}

type MemoryLogger struct {
	Lines []string
}

func (l *MemoryLogger) Log(msg string) { l.Lines = append(l.Lines, msg) }

type Database struct {
	DSN    string
	closed bool
	order  *[]string
}

func (db *Database) Close() error {
	db.closed = true
	if db.order != nil {
		*db.order = append(*db.order, "db:"+db.DSN)
	}
	return nil
}

type UserRepository struct {
	DB     *Database
	Logger Logger
}

func (r *UserRepository) Find(id int) string {
	return fmt.Sprintf("user-%d@%s", id, r.DB.DSN)
}

func (r *UserRepository) Describe(prefix string) string {
	return prefix + r.DB.DSN
}

type Mailer struct {
	From    string
	Logger  Logger
	started bool
	tags    []string
}

func (m *Mailer) Start() { m.started = true }
func (m *Mailer) Tag(tag string) { m.tags = append(m.tags, tag) }
func (m *Mailer) Fail() error { return errors.New("mailer failed") }
func (m *Mailer) UseLogger(l Logger) *Mailer { m.Logger = l; return m }

func NewLogger() Logger {
	return &MemoryLogger{}
}

func NewDatabase() *Database {
	return &Database{DSN: "sqlite://memory"}
}

func NewUserRepository(db *Database, logger Logger) *UserRepository {
	return &UserRepository{DB: db, Logger: logger}
}

func NewMailer(from string, logger Logger) *Mailer {
	return &Mailer{From: from, Logger: logger}
}

func newDepository(t *testing.T) *depository.Depository {
	t.Helper()

	d := depository.New()
	t.Cleanup(func() { _ = d.Close() })

	_, err := d.Singleton("", NewLogger)
	require.NoError(t, err)
	_, err = d.Singleton("", NewDatabase)
	require.NoError(t, err)

	return d
}

func TestDepository_Register(t *testing.T) {
	t.Run("derives key from return type", func(t *testing.T) {
		d := depository.New()

		def, err := d.Register("", NewDatabase)
		require.NoError(t, err)

		assert.Equal(t, depository.KeyOf[*Database](), def.Key())
		assert.Equal(t, depository.KindFunc, def.Kind())
		assert.True(t, d.IsRegistered(depository.KeyOf[*Database]()))
		assert.False(t, d.IsSingleton(depository.KeyOf[*Database]()))
	})

	t.Run("explicit key", func(t *testing.T) {
		d := depository.New()

		def, err := d.Register("db", NewDatabase)
		require.NoError(t, err)
		assert.Equal(t, "db", def.Key())
		assert.True(t, d.IsRegistered("db"))
	})

	t.Run("duplicate key", func(t *testing.T) {
		d := depository.New()

		_, err := d.Register("db", NewDatabase)
		require.NoError(t, err)

		_, err = d.Singleton("db", NewDatabase)
		require.Error(t, err)
		assert.True(t, depository.IsAlreadyRegistered(err))

		var already depository.AlreadyRegisteredError
		require.True(t, errors.As(err, &already))
		assert.Equal(t, "db", already.Key)
	})

	t.Run("nil concrete", func(t *testing.T) {
		d := depository.New()

		_, err := d.Register("db", nil)
		assert.ErrorIs(t, err, depository.ErrConcreteNil)

		var fn func() *Database
		_, err = d.Register("db", fn)
		assert.ErrorIs(t, err, depository.ErrConcreteNil)
	})

	t.Run("closure without return needs a key", func(t *testing.T) {
		d := depository.New()

		_, err := d.Register("", func() {})
		assert.ErrorIs(t, err, depository.ErrKeyEmpty)

		_, err = d.Register("noop", func() {})
		assert.NoError(t, err)
	})

	t.Run("invalid constructor", func(t *testing.T) {
		d := depository.New()

		_, err := d.Register("bad", func() (int, int) { return 1, 2 })
		var analysis depository.ReflectionAnalysisError
		assert.True(t, errors.As(err, &analysis))
	})

	t.Run("instance is stored under its type", func(t *testing.T) {
		d := depository.New()
		db := &Database{DSN: "postgres://primary"}

		def, err := d.Register("db", db)
		require.NoError(t, err)
		assert.Equal(t, depository.KindInstance, def.Kind())
		assert.Equal(t, depository.KeyOf[*Database](), def.Key())

		assert.True(t, d.IsSingleton("db"))
		assert.True(t, d.IsSingleton(depository.KeyOf[*Database]()))

		inst, err := d.Make("db")
		require.NoError(t, err)
		assert.Same(t, db, inst)

		inst, err = d.Make(depository.KeyOf[*Database]())
		require.NoError(t, err)
		assert.Same(t, db, inst)
	})

	t.Run("second instance of a type", func(t *testing.T) {
		d := depository.New()

		_, err := d.Register("primary", &Database{})
		require.NoError(t, err)

		_, err = d.Register("replica", &Database{})
		assert.True(t, depository.IsAlreadyRegistered(err))
		assert.False(t, d.IsRegistered("replica"))

		require.NoError(t, d.Instance("replica", &Database{DSN: "replica"}))
		replica, err := depository.Resolve[*Database](d, "replica")
		require.NoError(t, err)
		assert.Equal(t, "replica", replica.DSN)
	})

	t.Run("string concrete references another key", func(t *testing.T) {
		d := depository.New()
		_, err := d.Singleton("database.primary", NewDatabase)
		require.NoError(t, err)

		def, err := d.Register("db", "database.primary")
		require.NoError(t, err)
		assert.Equal(t, depository.KindReference, def.Kind())
		assert.Equal(t, "db", def.Key())

		viaRef, err := d.Make("db")
		require.NoError(t, err)
		direct, err := d.Make("database.primary")
		require.NoError(t, err)
		assert.Same(t, direct, viaRef)

		fromDef, err := def.Create()
		require.NoError(t, err)
		assert.Same(t, direct, fromDef)

		assert.True(t, d.IsSingleton("db"))
		assert.Equal(t, []string{"database.primary"}, d.Dependencies("db"))

		_, err = d.Register("loop", "loop")
		assert.ErrorIs(t, err, depository.ErrSelfReference)

		_, err = d.Register("", "database.primary")
		assert.ErrorIs(t, err, depository.ErrKeyEmpty)

		_, err = d.Singleton("db", "database.primary")
		assert.True(t, depository.IsAlreadyRegistered(err))
	})

	t.Run("singleton reference shares one instance", func(t *testing.T) {
		d := depository.New()

		var calls int
		_, err := d.Register("conn", func() *Database {
			calls++
			return &Database{DSN: fmt.Sprintf("conn-%d", calls)}
		})
		require.NoError(t, err)

		def, err := d.Singleton("db", "conn")
		require.NoError(t, err)
		assert.Equal(t, "db", def.Key())
		assert.True(t, d.IsSingleton("db"))
		assert.False(t, d.IsSingleton("conn"))

		testutil.AssertSingleton(t, d, "db")
		assert.Equal(t, 1, calls)

		testutil.AssertTransient(t, d, "conn")
		assert.Equal(t, 3, calls)
	})

	t.Run("reference arguments and calls", func(t *testing.T) {
		d := newDepository(t)
		_, err := d.Register("mailer", NewMailer)
		require.NoError(t, err)

		def, err := d.Register("outbox", "mailer")
		require.NoError(t, err)
		def.With("ops@example.com").Call("Tag", "outbox")

		mailer, err := depository.Resolve[*Mailer](d, "outbox")
		require.NoError(t, err)
		assert.Equal(t, "ops@example.com", mailer.From)
		assert.Equal(t, []string{"outbox"}, mailer.tags)

		plain, err := depository.Resolve[*Mailer](d, "mailer", "plain@example.com")
		require.NoError(t, err)
		assert.Empty(t, plain.tags)

		def.Call("Missing")
		_, err = d.Make("outbox")
		assert.ErrorIs(t, err, depository.ErrMethodNotFound)
	})

	t.Run("named constructor is reachable by its type", func(t *testing.T) {
		d := newDepository(t)
		typeKey := depository.KeyOf[*UserRepository]()

		_, err := d.Register("users", NewUserRepository)
		require.NoError(t, err)
		assert.True(t, d.IsRegistered(typeKey))

		repo, err := depository.Resolve[*UserRepository](d, "")
		require.NoError(t, err)
		assert.Equal(t, "sqlite://memory", repo.DB.DSN)

		bindings := make(map[string]depository.Binding)
		for _, b := range d.Bindings() {
			bindings[b.Key] = b
		}
		assert.Equal(t, depository.Binding{Key: typeKey, Kind: "alias", Target: "users"}, bindings[typeKey])

		// A second name for the same type leaves the first in place.
		_, err = d.Register("archive", NewUserRepository)
		require.NoError(t, err)
		assert.Contains(t, d.Dependents("users"), typeKey)
		assert.NotContains(t, d.Dependents("archive"), typeKey)

		// Registering under the type key itself takes it over.
		def, err := d.Register("", NewUserRepository)
		require.NoError(t, err)
		assert.Equal(t, typeKey, def.Key())

		d.Remove("users")
		assert.True(t, d.IsRegistered(typeKey))
		assert.True(t, d.IsRegistered("archive"))
	})

	t.Run("explicit alias replaces a type key alias", func(t *testing.T) {
		d := newDepository(t)
		typeKey := depository.KeyOf[*UserRepository]()

		_, err := d.Register("users", NewUserRepository)
		require.NoError(t, err)
		_, err = d.Register("archive", NewUserRepository)
		require.NoError(t, err)

		require.NoError(t, d.Alias(typeKey, "archive"))
		assert.Equal(t, []string{"archive"}, d.Dependencies(typeKey))
		assert.ErrorContains(t, d.Alias(typeKey, "users"), "already registered")
	})

	t.Run("instance values", func(t *testing.T) {
		d := depository.New()

		require.NoError(t, d.Instance("app.name", "titon"))
		assert.ErrorIs(t, d.Instance("", 1), depository.ErrKeyEmpty)
		assert.True(t, depository.IsAlreadyRegistered(d.Instance("app.name", "other")))

		name, err := depository.Resolve[string](d, "app.name")
		require.NoError(t, err)
		assert.Equal(t, "titon", name)
	})
}

func TestDepository_Make(t *testing.T) {
	t.Run("transient items are made every time", func(t *testing.T) {
		d := newDepository(t)
		_, err := d.Register("", NewUserRepository)
		require.NoError(t, err)

		first, err := depository.Resolve[*UserRepository](d, "")
		require.NoError(t, err)
		second, err := depository.Resolve[*UserRepository](d, "")
		require.NoError(t, err)

		assert.NotSame(t, first, second)
		assert.Same(t, first.DB, second.DB)
		assert.Same(t, first.Logger, second.Logger)
	})

	t.Run("singletons are made once", func(t *testing.T) {
		d := depository.New()

		var calls int
		_, err := d.Singleton("counter", func() *Database {
			calls++
			return &Database{DSN: fmt.Sprintf("db-%d", calls)}
		})
		require.NoError(t, err)
		assert.True(t, d.IsSingleton("counter"))

		first, err := d.Make("counter")
		require.NoError(t, err)
		second, err := d.Make("counter")
		require.NoError(t, err)

		assert.Same(t, first, second)
		assert.Equal(t, 1, calls)
		assert.True(t, d.IsSingleton("counter"))
		assert.True(t, d.IsRegistered("counter"))
	})

	t.Run("singletons are made once under contention", func(t *testing.T) {
		d := depository.New()

		var calls atomic.Int32
		_, err := d.Singleton("slow", func() *Database {
			calls.Add(1)
			time.Sleep(5 * time.Millisecond)
			return &Database{}
		})
		require.NoError(t, err)

		var wg sync.WaitGroup
		results := make([]any, 20)
		for i := range results {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				inst, err := d.Make("slow")
				assert.NoError(t, err)
				results[i] = inst
			}(i)
		}
		wg.Wait()

		assert.Equal(t, int32(1), calls.Load())
		for _, r := range results {
			assert.Same(t, results[0], r)
		}
	})

	t.Run("not found", func(t *testing.T) {
		d := newDepository(t)

		_, err := d.Make("missing")
		require.Error(t, err)
		assert.True(t, depository.IsNotFound(err))
		assert.ErrorIs(t, err, depository.ErrNotFound)

		_, err = d.Make("")
		assert.ErrorIs(t, err, depository.ErrKeyEmpty)
	})

	t.Run("not found suggests similar keys", func(t *testing.T) {
		d := newDepository(t)

		_, err := d.Make("*other/pkg.Database")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Did you mean")
		assert.Contains(t, err.Error(), depository.KeyOf[*Database]())
	})

	t.Run("depository resolves itself", func(t *testing.T) {
		d := depository.New()

		self, err := depository.Resolve[*depository.Depository](d, "")
		require.NoError(t, err)
		assert.Same(t, d, self)

		inst, err := d.Run(func(dep *depository.Depository) string { return dep.ID() })
		require.NoError(t, err)
		assert.Equal(t, d.ID(), inst)
	})

	t.Run("closure without return makes nil", func(t *testing.T) {
		d := newDepository(t)

		var seen Logger
		_, err := d.Register("hook", func(l Logger) { seen = l })
		require.NoError(t, err)

		inst, err := d.Make("hook")
		require.NoError(t, err)
		assert.Nil(t, inst)
		assert.NotNil(t, seen)
	})
}

func TestDepository_Arguments(t *testing.T) {
	t.Run("builtin parameters must be supplied", func(t *testing.T) {
		d := newDepository(t)
		_, err := d.Register("mailer", NewMailer)
		require.NoError(t, err)

		_, err = d.Make("mailer")
		var unresolvable depository.UnresolvableDependencyError
		require.True(t, errors.As(err, &unresolvable))
		assert.Equal(t, "mailer", unresolvable.Key)
		assert.Equal(t, "#0", unresolvable.Parameter)
		assert.Contains(t, err.Error(), "cannot resolve dependency")
	})

	t.Run("with arguments", func(t *testing.T) {
		d := newDepository(t)
		def, err := d.Register("mailer", NewMailer)
		require.NoError(t, err)
		def.With("noreply@example.com")

		assert.Equal(t, []any{"noreply@example.com"}, def.Arguments())

		mailer, err := depository.Resolve[*Mailer](d, "mailer")
		require.NoError(t, err)
		assert.Equal(t, "noreply@example.com", mailer.From)
		assert.NotNil(t, mailer.Logger)
	})

	t.Run("make arguments override with arguments", func(t *testing.T) {
		d := newDepository(t)
		def, err := d.Register("mailer", NewMailer)
		require.NoError(t, err)
		def.With("noreply@example.com")

		custom := &MemoryLogger{}
		mailer, err := depository.Resolve[*Mailer](d, "mailer", "admin@example.com", custom)
		require.NoError(t, err)
		assert.Equal(t, "admin@example.com", mailer.From)
		assert.Same(t, custom, mailer.Logger)
	})

	t.Run("ref arguments are made", func(t *testing.T) {
		d := newDepository(t)
		require.NoError(t, d.Instance("audit", Logger(&MemoryLogger{Lines: []string{"audit"}})))

		def, err := d.Register("mailer", NewMailer)
		require.NoError(t, err)
		def.With("ops@example.com", depository.Ref("audit"))

		mailer, err := depository.Resolve[*Mailer](d, "mailer")
		require.NoError(t, err)
		assert.Equal(t, []string{"audit"}, mailer.Logger.(*MemoryLogger).Lines)
		assert.Contains(t, d.Dependencies("mailer"), "audit")
	})

	t.Run("nil argument becomes zero value", func(t *testing.T) {
		d := newDepository(t)

		inst, err := d.Run(NewMailer, "from", nil)
		require.NoError(t, err)
		assert.Nil(t, inst.(*Mailer).Logger)
	})

	t.Run("type mismatch", func(t *testing.T) {
		d := newDepository(t)

		_, err := d.Run(NewMailer, 42)
		var mismatch depository.TypeMismatchError
		require.True(t, errors.As(err, &mismatch))
		assert.Contains(t, err.Error(), "expected string, got int")
	})

	t.Run("variadic", func(t *testing.T) {
		d := newDepository(t)

		inst, err := d.Run(func(l Logger, names ...string) string {
			return strings.Join(names, ",")
		}, nil, "a", "b", "c")
		require.NoError(t, err)
		assert.Equal(t, "a,b,c", inst)
	})
}

type MailerParams struct {
	depository.In

	Logger  Logger
	From    string        `default:"noreply@example.com"`
	Retries int           `default:"3"`
	Timeout time.Duration `default:"2s"`
	Replica *Database     `name:"db.replica" optional:"true"`
	Primary *Database
	Ignored *Database `inject:"-"`
}

type MailerConfig struct {
	From    string
	Retries int
	Timeout time.Duration
	Replica *Database
	Primary *Database
	Ignored *Database
}

func NewMailerConfig(p MailerParams) *MailerConfig {
	return &MailerConfig{
		From:    p.From,
		Retries: p.Retries,
		Timeout: p.Timeout,
		Replica: p.Replica,
		Primary: p.Primary,
		Ignored: p.Ignored,
	}
}

func TestDepository_ParamObject(t *testing.T) {
	t.Run("defaults and optional fields", func(t *testing.T) {
		d := newDepository(t)
		_, err := d.Register("", NewMailerConfig)
		require.NoError(t, err)

		cfg, err := depository.Resolve[*MailerConfig](d, "")
		require.NoError(t, err)

		assert.Equal(t, "noreply@example.com", cfg.From)
		assert.Equal(t, 3, cfg.Retries)
		assert.Equal(t, 2*time.Second, cfg.Timeout)
		assert.Nil(t, cfg.Replica)
		assert.NotNil(t, cfg.Primary)
		assert.Nil(t, cfg.Ignored)
	})

	t.Run("named fields", func(t *testing.T) {
		d := newDepository(t)
		require.NoError(t, d.Instance("db.replica", &Database{DSN: "replica"}))
		_, err := d.Register("", NewMailerConfig)
		require.NoError(t, err)

		cfg, err := depository.Resolve[*MailerConfig](d, "")
		require.NoError(t, err)
		require.NotNil(t, cfg.Replica)
		assert.Equal(t, "replica", cfg.Replica.DSN)
	})

	t.Run("required field missing", func(t *testing.T) {
		d := depository.New()
		_, err := d.Register("", NewMailerConfig)
		require.NoError(t, err)

		_, err = d.Make(depository.KeyOf[*MailerConfig]())
		var unresolvable depository.UnresolvableDependencyError
		require.True(t, errors.As(err, &unresolvable))
		assert.Equal(t, "Logger", unresolvable.Parameter)
	})

	t.Run("explicit parameter object", func(t *testing.T) {
		d := depository.New()

		inst, err := d.Run(NewMailerConfig, MailerParams{From: "explicit"})
		require.NoError(t, err)
		assert.Equal(t, "explicit", inst.(*MailerConfig).From)
	})

	t.Run("pointer parameter object", func(t *testing.T) {
		d := newDepository(t)

		inst, err := d.Run(func(p *MailerParams) string { return p.From })
		require.NoError(t, err)
		assert.Equal(t, "noreply@example.com", inst)
	})
}

func TestDepository_ConstructorFailures(t *testing.T) {
	t.Run("returned error", func(t *testing.T) {
		d := depository.New()
		cause := errors.New("connection refused")
		_, err := d.Register("db", func() (*Database, error) { return nil, cause })
		require.NoError(t, err)

		_, err = d.Make("db")
		var invocation depository.ConstructorInvocationError
		require.True(t, errors.As(err, &invocation))
		assert.Equal(t, "db", invocation.Key)
		assert.ErrorIs(t, err, cause)
	})

	t.Run("panic", func(t *testing.T) {
		d := depository.New()
		_, err := d.Register("db", func() *Database { panic("boom") })
		require.NoError(t, err)

		_, err = d.Make("db")
		var panicErr depository.ConstructorPanicError
		require.True(t, errors.As(err, &panicErr))
		assert.Equal(t, "boom", panicErr.Panic)
		assert.NotEmpty(t, panicErr.Stack)
	})

	t.Run("failed singleton is retried", func(t *testing.T) {
		d := depository.New()

		var calls int
		_, err := d.Singleton("flaky", func() (*Database, error) {
			calls++
			if calls == 1 {
				return nil, errors.New("first call fails")
			}
			return &Database{}, nil
		})
		require.NoError(t, err)

		_, err = d.Make("flaky")
		require.Error(t, err)

		inst, err := d.Make("flaky")
		require.NoError(t, err)
		assert.NotNil(t, inst)
	})

	t.Run("missing dependency of a dependency", func(t *testing.T) {
		d := depository.New()
		_, err := d.Singleton("", NewDatabase)
		require.NoError(t, err)
		_, err = d.Register("", NewUserRepository)
		require.NoError(t, err)

		_, err = d.Make(depository.KeyOf[*UserRepository]())
		require.Error(t, err)
		assert.True(t, depository.IsNotFound(err))
		assert.Contains(t, err.Error(), depository.KeyOf[Logger]())
	})
}

type Node struct {
	Next *Next
}

type Next struct {
	Node *Node
}

type nodeGate struct{}

type nextGate struct{}

func TestDepository_Cycles(t *testing.T) {
	t.Run("circular registration is allowed but making fails", func(t *testing.T) {
		d := depository.New()

		_, err := d.Register("", func(n *Next) *Node { return &Node{Next: n} })
		require.NoError(t, err)
		_, err = d.Register("", func(n *Node) *Next { return &Next{Node: n} })
		require.NoError(t, err)

		_, err = d.Make(depository.KeyOf[*Node]())
		require.Error(t, err)
		assert.True(t, depository.IsCircularDependency(err))

		var cycle depository.CircularDependencyError
		require.True(t, errors.As(err, &cycle))
		assert.Equal(t, []string{
			depository.KeyOf[*Node](),
			depository.KeyOf[*Next](),
			depository.KeyOf[*Node](),
		}, cycle.Path)

		assert.True(t, depository.IsCircularDependency(d.Validate()))
	})

	t.Run("concurrent makes of a singleton cycle fail", func(t *testing.T) {
		d := depository.New()

		// Both singletons are locked before either asks for the other.
		var arrived atomic.Int32
		both := make(chan struct{})
		meet := func() {
			if arrived.Add(1) == 2 {
				close(both)
			}
			<-both
		}

		_, err := d.Register("", func() *nodeGate { meet(); return &nodeGate{} })
		require.NoError(t, err)
		_, err = d.Register("", func() *nextGate { meet(); return &nextGate{} })
		require.NoError(t, err)
		_, err = d.Singleton("", func(_ *nodeGate, n *Next) *Node { return &Node{Next: n} })
		require.NoError(t, err)
		_, err = d.Singleton("", func(_ *nextGate, n *Node) *Next { return &Next{Node: n} })
		require.NoError(t, err)

		errs := make([]error, 2)
		var wg sync.WaitGroup
		for i, key := range []string{depository.KeyOf[*Node](), depository.KeyOf[*Next]()} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, errs[i] = d.Make(key)
			}()
		}

		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("makes of a singleton cycle blocked each other")
		}

		for _, err := range errs {
			assert.True(t, depository.IsCircularDependency(err), "got: %v", err)
		}

		// Construction locks were released.
		_, err = d.Make(depository.KeyOf[*Node]())
		assert.True(t, depository.IsCircularDependency(err))
	})

	t.Run("alias loop", func(t *testing.T) {
		d := depository.New()
		require.NoError(t, d.Alias("a", "b"))
		require.NoError(t, d.Alias("b", "a"))

		_, err := d.Make("a")
		assert.True(t, depository.IsCircularDependency(err))
		assert.False(t, d.IsSingleton("a"))
	})

	t.Run("max depth", func(t *testing.T) {
		d := depository.New(depository.WithMaxDepth(3))
		require.NoError(t, d.Alias("a", "b"))
		require.NoError(t, d.Alias("b", "c"))
		require.NoError(t, d.Alias("c", "d"))
		require.NoError(t, d.Instance("d", 1))

		_, err := d.Make("a")
		var depth depository.MaxDepthError
		require.True(t, errors.As(err, &depth))
		assert.Equal(t, []string{"a", "b", "c"}, depth.Path)

		inst, err := d.Make("b")
		require.NoError(t, err)
		assert.Equal(t, 1, inst)
	})

	t.Run("acyclic registrations validate", func(t *testing.T) {
		d := newDepository(t)
		_, err := d.Register("", NewUserRepository)
		require.NoError(t, err)

		assert.NoError(t, d.Validate())
	})
}

func TestDepository_Alias(t *testing.T) {
	d := newDepository(t)

	require.NoError(t, d.Alias("db", depository.KeyOf[*Database]()))
	require.NoError(t, d.Alias("storage", "db"))

	err := d.Alias("db", "other")
	var already depository.AlreadyRegisteredError
	require.True(t, errors.As(err, &already))
	assert.True(t, already.Alias)

	assert.ErrorIs(t, d.Alias("x", "x"), depository.ErrSelfReference)
	assert.ErrorIs(t, d.Alias("", "x"), depository.ErrKeyEmpty)

	viaChain, err := d.Make("storage")
	require.NoError(t, err)
	direct, err := d.Make(depository.KeyOf[*Database]())
	require.NoError(t, err)
	assert.Same(t, direct, viaChain)

	assert.True(t, d.IsSingleton("storage"))
}

func TestDepository_Remove(t *testing.T) {
	d := newDepository(t)
	key := depository.KeyOf[*Database]()

	require.NoError(t, d.Alias("db", key))
	require.NoError(t, d.Alias("other", depository.KeyOf[Logger]()))

	_, err := d.Make("db")
	require.NoError(t, err)

	d.Remove(key)

	assert.False(t, d.IsRegistered(key))
	assert.False(t, d.IsRegistered("db"))
	assert.True(t, d.IsRegistered("other"))

	_, err = d.Make("db")
	assert.True(t, depository.IsNotFound(err))

	// Key can be registered again.
	_, err = d.Register(key, NewDatabase)
	assert.NoError(t, err)

	// Removing an alias only removes the alias.
	d.Remove("other")
	assert.False(t, d.IsRegistered("other"))
	assert.True(t, d.IsRegistered(depository.KeyOf[Logger]()))
}

func TestDepository_RemoveChains(t *testing.T) {
	d := newDepository(t)
	key := depository.KeyOf[*Database]()

	require.NoError(t, d.Alias("db", key))
	require.NoError(t, d.Alias("storage", "db"))
	_, err := d.Register("primary", "storage")
	require.NoError(t, err)
	require.NoError(t, d.Alias("main", "primary"))
	_, err = d.Register("users", NewUserRepository)
	require.NoError(t, err)

	_, err = d.Make("main")
	require.NoError(t, err)

	d.Remove(key)

	for _, k := range []string{key, "db", "storage", "primary", "main"} {
		assert.False(t, d.IsRegistered(k), "%s should be removed", k)
		_, err := d.Make(k)
		assert.True(t, depository.IsNotFound(err), "%s: %v", k, err)
	}

	// Items that only depend on key are kept.
	assert.True(t, d.IsRegistered("users"))
	assert.Equal(t, []string{"users"}, d.Dependents(key))
}

func TestDepository_Methods(t *testing.T) {
	t.Run("key method syntax", func(t *testing.T) {
		d := newDepository(t)
		_, err := d.Register("users", NewUserRepository)
		require.NoError(t, err)

		inst, err := d.Make("users::Find", 7)
		require.NoError(t, err)
		assert.Equal(t, "user-7@sqlite://memory", inst)

		_, err = d.Make("users::Missing")
		assert.ErrorIs(t, err, depository.ErrMethodNotFound)

		_, err = d.Make("missing::Find")
		assert.True(t, depository.IsNotFound(err))
	})

	t.Run("method definition with key receiver", func(t *testing.T) {
		d := newDepository(t)
		_, err := d.Register("users", NewUserRepository)
		require.NoError(t, err)

		def, err := d.Register("describe", depository.Method{Receiver: "users", Name: "Describe"})
		require.NoError(t, err)
		assert.Equal(t, depository.KindMethod, def.Kind())
		def.With("dsn=")

		inst, err := d.Make("describe")
		require.NoError(t, err)
		assert.Equal(t, "dsn=sqlite://memory", inst)
		assert.Equal(t, []string{"users"}, d.Dependencies("describe"))
	})

	t.Run("method definition with instance receiver", func(t *testing.T) {
		d := newDepository(t)
		mailer := &Mailer{From: "x"}

		def, err := d.Register("", depository.Method{Receiver: mailer, Name: "UseLogger"})
		require.NoError(t, err)
		assert.Equal(t, depository.KeyOf[*Mailer](), def.Key())

		inst, err := depository.Resolve[*Mailer](d, "")
		require.NoError(t, err)
		assert.Same(t, mailer, inst)
		assert.NotNil(t, mailer.Logger)

		_, err = d.Register("nope", depository.Method{Receiver: mailer, Name: "Nope"})
		assert.ErrorIs(t, err, depository.ErrMethodNotFound)
	})

	t.Run("post construction calls", func(t *testing.T) {
		d := newDepository(t)
		def, err := d.Register("mailer", NewMailer)
		require.NoError(t, err)
		def.With("from").Call("Start").Call("Tag", "a").Call("Tag", "b")

		mailer, err := depository.Resolve[*Mailer](d, "mailer")
		require.NoError(t, err)
		assert.True(t, mailer.started)
		assert.Equal(t, []string{"a", "b"}, mailer.tags)
	})

	t.Run("failing post construction call", func(t *testing.T) {
		d := newDepository(t)
		def, err := d.Register("mailer", NewMailer)
		require.NoError(t, err)
		def.With("from").Call("Fail")

		_, err = d.Make("mailer")
		var invocation depository.ConstructorInvocationError
		assert.True(t, errors.As(err, &invocation))
	})
}

func TestDepository_Run(t *testing.T) {
	d := newDepository(t)
	_, err := d.Register("users", NewUserRepository)
	require.NoError(t, err)

	inst, err := d.Run(func(id int, repo *UserRepository) string { return repo.Find(id) }, 3)
	require.NoError(t, err)
	assert.Equal(t, "user-3@sqlite://memory", inst)

	inst, err = d.Run("users::Find", 4)
	require.NoError(t, err)
	assert.Equal(t, "user-4@sqlite://memory", inst)

	_, err = d.Run("users")
	assert.ErrorIs(t, err, depository.ErrNotCallable)

	_, err = d.Run(42)
	assert.ErrorIs(t, err, depository.ErrNotCallable)

	_, err = d.Run(nil)
	assert.ErrorIs(t, err, depository.ErrConcreteNil)

	assert.False(t, d.IsRegistered(depository.KeyOf[string]()))
}

type closer struct {
	name  string
	order *[]string
	err   error
}

func (c *closer) Close() error {
	*c.order = append(*c.order, c.name)
	return c.err
}

func TestDepository_Close(t *testing.T) {
	t.Run("closes singletons in reverse order", func(t *testing.T) {
		d := depository.New()
		var order []string

		require.NoError(t, d.Instance("first", &closer{name: "first", order: &order}))
		_, err := d.Singleton("second", func() *closer { return &closer{name: "second", order: &order} })
		require.NoError(t, err)
		require.NoError(t, d.Instance("third", &closer{name: "third", order: &order}))
		_, err = d.Singleton("never-made", func() *closer { return &closer{name: "never", order: &order} })
		require.NoError(t, err)

		_, err = d.Make("second")
		require.NoError(t, err)

		require.NoError(t, d.Close())
		assert.Equal(t, []string{"second", "third", "first"}, order)
		assert.True(t, d.IsClosed())

		// Idempotent.
		require.NoError(t, d.Close())
		assert.Len(t, order, 3)
	})

	t.Run("shared singleton is closed once", func(t *testing.T) {
		d := depository.New()
		var order []string

		_, err := d.Singleton("conn", func() *closer { return &closer{name: "conn", order: &order} })
		require.NoError(t, err)
		_, err = d.Singleton("db", "conn")
		require.NoError(t, err)

		first, err := d.Make("db")
		require.NoError(t, err)
		second, err := d.Make("conn")
		require.NoError(t, err)
		assert.Same(t, first, second)

		require.NoError(t, d.Close())
		assert.Equal(t, []string{"conn"}, order)
	})

	t.Run("aggregates errors", func(t *testing.T) {
		d := depository.New()
		var order []string

		require.NoError(t, d.Instance("a", &closer{name: "a", order: &order, err: errors.New("a failed")}))
		require.NoError(t, d.Instance("b", &closer{name: "b", order: &order, err: errors.New("b failed")}))

		err := d.Close()
		var disposal depository.DisposalError
		require.True(t, errors.As(err, &disposal))
		assert.Len(t, disposal.Errors, 2)
		assert.Contains(t, err.Error(), "2 errors")
	})

	t.Run("closed depository rejects use", func(t *testing.T) {
		d := depository.New()
		require.NoError(t, d.Close())

		_, err := d.Register("x", NewDatabase)
		assert.ErrorIs(t, err, depository.ErrDepositoryClosed)

		_, err = d.Make("x")
		assert.ErrorIs(t, err, depository.ErrDepositoryClosed)

		assert.ErrorIs(t, d.Alias("a", "b"), depository.ErrDepositoryClosed)
		assert.ErrorIs(t, d.Instance("a", 1), depository.ErrDepositoryClosed)
	})
}

func TestDepository_Inspection(t *testing.T) {
	d := newDepository(t)
	_, err := d.Register("users", NewUserRepository)
	require.NoError(t, err)
	require.NoError(t, d.Alias("db", depository.KeyOf[*Database]()))

	bindings := make(map[string]depository.Binding)
	for _, b := range d.Bindings() {
		bindings[b.Key] = b
	}

	assert.Equal(t, "transient", bindings["users"].Kind)
	assert.Equal(t, "singleton", bindings[depository.KeyOf[*Database]()].Kind)
	assert.Equal(t, depository.Binding{Key: "db", Kind: "alias", Target: depository.KeyOf[*Database]()}, bindings["db"])
	assert.Equal(t, "singleton", bindings[depository.KeyOf[*depository.Depository]()].Kind)

	keys := d.Keys()
	assert.Contains(t, keys, "users")
	assert.Contains(t, keys, "db")
	assert.IsIncreasing(t, keys)

	assert.ElementsMatch(t, []string{depository.KeyOf[*Database](), depository.KeyOf[Logger]()}, d.Dependencies("users"))
	assert.ElementsMatch(t, []string{"users", "db"}, d.Dependents(depository.KeyOf[*Database]()))

	_, err = d.Register("report", depository.Method{Receiver: "users", Name: "Describe"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"users", depository.KeyOf[*Database](), depository.KeyOf[Logger]()},
		d.TransitiveDependencies("report"))

	order, err := d.Order()
	require.NoError(t, err)
	position := make(map[string]int, len(order))
	for i, key := range order {
		position[key] = i
	}
	assert.Less(t, position[depository.KeyOf[*Database]()], position["users"])
	assert.Less(t, position["users"], position["report"])

	var dot bytes.Buffer
	require.NoError(t, d.WriteGraph(&dot, "dot"))
	assert.Contains(t, dot.String(), "digraph dependencies")
	assert.Contains(t, dot.String(), `label="users"`)

	var text bytes.Buffer
	require.NoError(t, d.WriteGraph(&text, "text"))
	assert.Contains(t, text.String(), "Dependencies: [")

	assert.Error(t, d.WriteGraph(&text, "svg"))

	assert.NotEmpty(t, d.ID())
	assert.NotEqual(t, d.ID(), depository.New().ID())
}

func TestResolve(t *testing.T) {
	d := newDepository(t)
	require.NoError(t, d.Instance("port", 8080))

	t.Run("type mismatch", func(t *testing.T) {
		_, err := depository.Resolve[string](d, "port")
		var mismatch depository.TypeMismatchError
		require.True(t, errors.As(err, &mismatch))
	})

	t.Run("interface", func(t *testing.T) {
		logger, err := depository.Resolve[Logger](d, "")
		require.NoError(t, err)
		assert.IsType(t, &MemoryLogger{}, logger)
	})

	t.Run("must resolve", func(t *testing.T) {
		assert.Equal(t, 8080, depository.MustResolve[int](d, "port"))
		assert.Panics(t, func() { depository.MustResolve[int](d, "missing") })
	})

	t.Run("typed factories", func(t *testing.T) {
		d := newDepository(t)

		_, err := depository.Bind(d, func(dep *depository.Depository) (*UserRepository, error) {
			db, err := depository.Resolve[*Database](dep, "")
			if err != nil {
				return nil, err
			}
			return &UserRepository{DB: db}, nil
		})
		require.NoError(t, err)

		_, err = depository.Share(d, func(*depository.Depository) (*Mailer, error) {
			return &Mailer{From: "shared"}, nil
		})
		require.NoError(t, err)

		repo, err := depository.Resolve[*UserRepository](d, "")
		require.NoError(t, err)
		assert.NotNil(t, repo.DB)

		first := depository.MustResolve[*Mailer](d, "")
		second := depository.MustResolve[*Mailer](d, "")
		assert.Same(t, first, second)
	})
}
