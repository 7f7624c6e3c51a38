package testutil

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/titon/framework/depository"
)

// TestService is a basic service with a unique ID per instance.
type TestService struct {
	ID    string
	Value int
}

func NewTestService() *TestService {
	return &TestService{ID: uuid.NewString(), Value: 42}
}

// TestLogger is an interface fixture for autowiring by interface key.
type TestLogger interface {
	Log(msg string)
	Logs() []string
}

type TestLoggerImpl struct {
	mu   sync.Mutex
	logs []string
}

func NewTestLogger() TestLogger {
	return &TestLoggerImpl{}
}

func (l *TestLoggerImpl) Log(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logs = append(l.logs, msg)
}

func (l *TestLoggerImpl) Logs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.logs...)
}

// TestDatabase is closed by Depository.Close.
type TestDatabase struct {
	DSN    string
	closed atomic.Bool
}

func NewTestDatabase() *TestDatabase {
	return &TestDatabase{DSN: "memory://" + uuid.NewString()}
}

func (d *TestDatabase) Query(sql string) string {
	return fmt.Sprintf("%s: %s", d.DSN, sql)
}

func (d *TestDatabase) Close() error {
	if d.closed.Swap(true) {
		return errors.New("already closed")
	}
	return nil
}

func (d *TestDatabase) IsClosed() bool {
	return d.closed.Load()
}

// TestServiceWithDeps is autowired from the other fixtures.
type TestServiceWithDeps struct {
	Logger  TestLogger
	DB      *TestDatabase
	Service *TestService
}

func NewTestServiceWithDeps(logger TestLogger, db *TestDatabase, svc *TestService) *TestServiceWithDeps {
	return &TestServiceWithDeps{Logger: logger, DB: db, Service: svc}
}

// TestServiceParams is a parameter object fixture.
type TestServiceParams struct {
	depository.In

	Logger  TestLogger
	DB      *TestDatabase `optional:"true"`
	Timeout string        `name:"timeout" default:"30s"`
}

func NewTestServiceFromParams(p TestServiceParams) *TestServiceWithDeps {
	p.Logger.Log("timeout " + p.Timeout)
	return &TestServiceWithDeps{Logger: p.Logger, DB: p.DB}
}

// CircularServiceA and CircularServiceB depend on each other.
type CircularServiceA struct {
	B *CircularServiceB
}

type CircularServiceB struct {
	A *CircularServiceA
}

func NewCircularServiceA(b *CircularServiceB) *CircularServiceA {
	return &CircularServiceA{B: b}
}

func NewCircularServiceB(a *CircularServiceA) *CircularServiceB {
	return &CircularServiceB{A: a}
}

// CloserFunc adapts a function to io.Closer.
type CloserFunc func() error

func (f CloserFunc) Close() error {
	return f()
}
