package depository

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/titon/framework/internal/graph"
	"github.com/titon/framework/internal/reflection"
)

// Depository stores items, singletons and aliases, and makes instances of
// them on request, autowiring constructor parameters by type key.
//
// A Depository is safe for concurrent use.
type Depository struct {
	id string

	mu         sync.RWMutex
	items      map[string]*item
	singletons map[string]any
	order      []string // singleton keys in construction order
	aliases    map[string]string
	implicit   map[string]bool // type key aliases added for named constructors
	deferred   map[string]*deferredProvider

	// building and waiting track singleton construction across goroutines
	// so two makes that wait on each other fail instead of blocking.
	buildMu  sync.Mutex
	building map[string]*resolution
	waiting  map[*resolution]string

	analyzer *reflection.Analyzer
	graph    *graph.DependencyGraph

	logger   logrus.FieldLogger
	recorder Recorder
	maxDepth int

	closed atomic.Bool
}

// item is a registration that has not been made yet. Singleton items are
// promoted into the singleton map on first make.
type item struct {
	definition *Definition
	singleton  bool
	mu         sync.Mutex
}

// New creates an empty depository. The depository is registered under its
// own type key so constructors can depend on it.
func New(opts ...Option) *Depository {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt.apply(o)
		}
	}

	d := &Depository{
		id:         uuid.NewString(),
		items:      make(map[string]*item),
		singletons: make(map[string]any),
		aliases:    make(map[string]string),
		implicit:   make(map[string]bool),
		deferred:   make(map[string]*deferredProvider),
		building:   make(map[string]*resolution),
		waiting:    make(map[*resolution]string),
		analyzer:   reflection.New(),
		graph:      graph.NewDependencyGraph(),
		recorder:   o.recorder,
		maxDepth:   o.maxDepth,
	}
	d.logger = o.logger.WithField("depository", d.id)

	self := KeyOf[*Depository]()
	d.singletons[self] = d
	_ = d.graph.AddProvider(&Definition{key: self, kind: KindInstance, singleton: true})

	return d
}

// ID returns the unique identifier of the depository.
func (d *Depository) ID() string {
	return d.id
}

// Register adds an item that is made anew on every Make.
//
// The concrete may be a function, a Method, an instance or a string:
//   - a function is autowired when made; an empty key is derived from its return type
//   - an instance is stored as a singleton under its type key, with key as an alias
//   - a string stores a reference that makes the named key
//
// A function registered under a key other than its type key is also reachable
// by its type key, unless that key is taken.
func (d *Depository) Register(key string, concrete any) (*Definition, error) {
	return d.register(key, concrete, false)
}

// Singleton adds an item that is made once; later makes return the same instance.
func (d *Depository) Singleton(key string, concrete any) (*Definition, error) {
	return d.register(key, concrete, true)
}

func (d *Depository) register(key string, concrete any, singleton bool) (*Definition, error) {
	if d.closed.Load() {
		return nil, ErrDepositoryClosed
	}

	if concrete == nil {
		return nil, ErrConcreteNil
	}

	if target, ok := concrete.(string); ok {
		return d.registerReference(key, target, singleton)
	}

	def, err := d.newDefinition(key, concrete)
	if err != nil {
		return nil, err
	}

	if def.kind == KindInstance {
		return def, d.registerInstance(key, def)
	}

	def.singleton = singleton
	if err := d.store(def); err != nil {
		return nil, err
	}

	return def, nil
}

func (d *Depository) registerReference(key, target string, singleton bool) (*Definition, error) {
	if key == "" || target == "" {
		return nil, ErrKeyEmpty
	}

	if key == target {
		return nil, ErrSelfReference
	}

	def := &Definition{depository: d, key: key, kind: KindReference, target: target, singleton: singleton}
	if err := d.store(def); err != nil {
		return nil, err
	}

	return def, nil
}

// store adds def as an item and points its type key at it when free.
func (d *Depository) store(def *Definition) error {
	typeKey := def.typeKey()

	d.mu.Lock()
	d.release(def.key)
	if d.has(def.key) {
		d.mu.Unlock()
		return AlreadyRegisteredError{Key: def.key}
	}
	d.items[def.key] = &item{definition: def, singleton: def.singleton}

	aliased := typeKey != "" && typeKey != def.key && !d.has(typeKey)
	if aliased {
		d.aliases[typeKey] = def.key
		d.implicit[typeKey] = true
	}
	d.mu.Unlock()

	_ = d.graph.AddProvider(def)
	if aliased {
		_ = d.graph.AddProvider(aliasNode{alias: typeKey, target: def.key})
	}
	d.recorder.ObserveRegistration(def.GraphKind())

	fields := logrus.Fields{
		"key":       def.key,
		"kind":      def.kind.String(),
		"singleton": def.singleton,
	}
	if aliased {
		fields["alias"] = typeKey
	}
	d.logger.WithFields(fields).Debug("registered item")

	return nil
}

// release drops key when it is only a type key alias added by store, so an
// explicit registration can take it. Must be called with d.mu held.
func (d *Depository) release(key string) {
	if d.implicit[key] {
		delete(d.aliases, key)
		delete(d.implicit, key)
	}
}

func (d *Depository) registerInstance(key string, def *Definition) error {
	typeKey := def.key

	d.mu.Lock()
	d.release(typeKey)
	d.release(key)
	if d.has(typeKey) {
		d.mu.Unlock()
		return AlreadyRegisteredError{Key: typeKey}
	}
	if key != "" && key != typeKey && d.has(key) {
		d.mu.Unlock()
		return AlreadyRegisteredError{Key: key}
	}

	d.storeSingleton(typeKey, def.instance)
	if key != "" && key != typeKey {
		d.aliases[key] = typeKey
	}
	d.mu.Unlock()

	_ = d.graph.AddProvider(def)
	if key != "" && key != typeKey {
		_ = d.graph.AddProvider(aliasNode{alias: key, target: typeKey})
	}
	d.recorder.ObserveRegistration("instance")
	d.logger.WithFields(logrus.Fields{"key": typeKey, "alias": key}).Debug("registered instance")

	return nil
}

// Instance stores value as a singleton directly under key. Unlike Register,
// strings and values sharing a type can be stored under distinct keys.
func (d *Depository) Instance(key string, value any) error {
	if d.closed.Load() {
		return ErrDepositoryClosed
	}

	if key == "" {
		return ErrKeyEmpty
	}

	d.mu.Lock()
	d.release(key)
	if d.has(key) {
		d.mu.Unlock()
		return AlreadyRegisteredError{Key: key}
	}
	d.storeSingleton(key, value)
	d.mu.Unlock()

	_ = d.graph.AddProvider(&Definition{key: key, kind: KindInstance, singleton: true})
	d.recorder.ObserveRegistration("instance")
	d.logger.WithField("key", key).Debug("registered instance")

	return nil
}

// Alias makes alias resolve to key. Aliases may point at other aliases.
func (d *Depository) Alias(alias, key string) error {
	if d.closed.Load() {
		return ErrDepositoryClosed
	}

	if alias == "" || key == "" {
		return ErrKeyEmpty
	}

	if alias == key {
		return ErrSelfReference
	}

	d.mu.Lock()
	d.release(alias)
	if _, ok := d.aliases[alias]; ok {
		d.mu.Unlock()
		return AlreadyRegisteredError{Key: alias, Alias: true}
	}
	d.aliases[alias] = key
	d.mu.Unlock()

	_ = d.graph.AddProvider(aliasNode{alias: alias, target: key})
	d.recorder.ObserveRegistration("alias")
	d.logger.WithFields(logrus.Fields{"alias": alias, "key": key}).Debug("registered alias")

	return nil
}

// storeSingleton must be called with d.mu held.
func (d *Depository) storeSingleton(key string, value any) {
	d.singletons[key] = value
	d.order = append(d.order, key)
}

// has must be called with d.mu held.
func (d *Depository) has(key string) bool {
	if _, ok := d.aliases[key]; ok {
		return true
	}
	if _, ok := d.singletons[key]; ok {
		return true
	}
	_, ok := d.items[key]
	return ok
}

// Make returns an instance for key. Explicit args fill constructor
// parameters by position and take precedence over With arguments.
//
// Keys of the form "key::Method" make key and call Method on the result.
func (d *Depository) Make(key string, args ...any) (any, error) {
	start := time.Now()
	inst, err := d.make(newResolution(d.maxDepth), key, args)
	d.recorder.ObserveResolution(time.Since(start), err)

	if err != nil {
		d.logger.WithError(err).WithField("key", key).Debug("make failed")
	}

	return inst, err
}

func (d *Depository) make(rc *resolution, key string, args []any) (any, error) {
	if d.closed.Load() {
		return nil, ErrDepositoryClosed
	}

	if key == "" {
		return nil, ErrKeyEmpty
	}

	if err := rc.enter(key); err != nil {
		return nil, err
	}
	defer rc.leave()

	if d.IsRegistered(key) {
		return d.getRegisteredItem(rc, key, args)
	}

	loaded, err := d.loadDeferred(key)
	if err != nil {
		return nil, err
	}
	if loaded && d.IsRegistered(key) {
		return d.getRegisteredItem(rc, key, args)
	}

	if receiver, method, ok := strings.Cut(key, "::"); ok && receiver != "" && method != "" {
		return d.makeMethod(rc, key, receiver, method, args)
	}

	return nil, NotFoundError{Key: key, Available: d.Keys()}
}

func (d *Depository) getRegisteredItem(rc *resolution, key string, args []any) (any, error) {
	d.mu.RLock()
	if target, ok := d.aliases[key]; ok {
		d.mu.RUnlock()
		return d.make(rc, target, args)
	}
	if inst, ok := d.singletons[key]; ok {
		d.mu.RUnlock()
		return inst, nil
	}
	it, ok := d.items[key]
	d.mu.RUnlock()

	if !ok {
		// Removed concurrently.
		return nil, NotFoundError{Key: key, Available: d.Keys()}
	}

	if !it.singleton {
		return it.definition.create(rc, args)
	}

	if err := d.lockBuild(rc, key, it); err != nil {
		return nil, err
	}
	defer d.unlockBuild(key, it)

	d.mu.RLock()
	inst, ok := d.singletons[key]
	d.mu.RUnlock()
	if ok {
		return inst, nil
	}

	inst, err := it.definition.create(rc, args)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	if d.items[key] == it {
		delete(d.items, key)
		d.storeSingleton(key, inst)
	}
	d.mu.Unlock()

	d.logger.WithField("key", key).Debug("promoted singleton")

	return inst, nil
}

// lockBuild takes the construction lock of a singleton item. When the
// holder is itself waiting, directly or through other makes, on something
// rc is building, it returns a CircularDependencyError instead of blocking.
func (d *Depository) lockBuild(rc *resolution, key string, it *item) error {
	d.buildMu.Lock()
	if it.mu.TryLock() {
		d.building[key] = rc
		d.buildMu.Unlock()
		return nil
	}

	if path := d.waitCycle(rc, key); path != nil {
		d.buildMu.Unlock()
		return CircularDependencyError{Path: path}
	}
	d.waiting[rc] = key
	d.buildMu.Unlock()

	it.mu.Lock()

	d.buildMu.Lock()
	delete(d.waiting, rc)
	d.building[key] = rc
	d.buildMu.Unlock()

	return nil
}

func (d *Depository) unlockBuild(key string, it *item) {
	d.buildMu.Lock()
	delete(d.building, key)
	d.buildMu.Unlock()

	it.mu.Unlock()
}

// waitCycle follows the holders of key through the keys they wait on and
// returns the chain if it leads back to rc. Must be called with d.buildMu held.
func (d *Depository) waitCycle(rc *resolution, key string) []string {
	path := []string{key}
	seen := make(map[*resolution]bool)

	for {
		holder, ok := d.building[key]
		if !ok || seen[holder] {
			return nil
		}
		if holder == rc {
			return append([]string{key}, path...)
		}
		seen[holder] = true

		key, ok = d.waiting[holder]
		if !ok {
			return nil
		}
		path = append(path, key)
	}
}

func (d *Depository) makeMethod(rc *resolution, key, receiverKey, method string, args []any) (any, error) {
	receiver, err := d.make(rc, receiverKey, nil)
	if err != nil {
		return nil, err
	}

	return d.callMethod(rc, key, receiver, method, args)
}

// Run invokes fn with autowired parameters without registering it.
// fn may be a function, a Method, or a "key::Method" string.
func (d *Depository) Run(fn any, args ...any) (any, error) {
	if d.closed.Load() {
		return nil, ErrDepositoryClosed
	}

	if fn == nil {
		return nil, ErrConcreteNil
	}

	if s, ok := fn.(string); ok {
		if !strings.Contains(s, "::") {
			return nil, fmt.Errorf("%w: %q", ErrNotCallable, s)
		}
		return d.Make(s, args...)
	}

	def, err := d.newDefinition("", fn)
	if err != nil {
		return nil, err
	}

	if def.kind == KindInstance {
		return nil, fmt.Errorf("%w: %T", ErrNotCallable, fn)
	}

	return def.Create(args...)
}

// Remove deletes everything stored under key, along with every alias or
// reference that reaches key, directly or through other aliases.
func (d *Depository) Remove(key string) *Depository {
	d.mu.Lock()
	removed := d.referrers(key)
	for _, k := range removed {
		delete(d.items, k)
		delete(d.singletons, k)
		delete(d.aliases, k)
		delete(d.implicit, k)
		d.removeOrder(k)
	}
	d.mu.Unlock()

	for _, k := range removed {
		d.graph.RemoveProvider(k)
	}

	d.logger.WithFields(logrus.Fields{"key": key, "removed": len(removed)}).Debug("removed item")

	return d
}

// referrers returns key followed by every alias and reference that resolves
// to it. Must be called with d.mu held.
func (d *Depository) referrers(key string) []string {
	removed := []string{key}
	seen := map[string]bool{key: true}

	for i := 0; i < len(removed); i++ {
		target := removed[i]
		for _, k := range d.graph.Dependents(target) {
			if !seen[k] && d.refersTo(k, target) {
				seen[k] = true
				removed = append(removed, k)
			}
		}
	}

	return removed
}

// refersTo must be called with d.mu held.
func (d *Depository) refersTo(key, target string) bool {
	if t, ok := d.aliases[key]; ok {
		return t == target
	}
	it, ok := d.items[key]
	return ok && it.definition.kind == KindReference && it.definition.target == target
}

// removeOrder must be called with d.mu held.
func (d *Depository) removeOrder(key string) {
	for i, k := range d.order {
		if k == key {
			d.order = append(d.order[:i], d.order[i+1:]...)
			return
		}
	}
}

// IsRegistered reports whether key names an item, singleton or alias.
func (d *Depository) IsRegistered(key string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.has(key)
}

// IsSingleton reports whether key resolves, through aliases and references,
// to a singleton or an item registered as one.
func (d *Depository) IsSingleton(key string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	seen := make(map[string]bool)
	for !seen[key] {
		seen[key] = true
		if target, ok := d.aliases[key]; ok {
			key = target
			continue
		}
		if it, ok := d.items[key]; ok && it.definition.kind == KindReference && !it.singleton {
			key = it.definition.target
		}
	}

	if _, ok := d.singletons[key]; ok {
		return true
	}

	it, ok := d.items[key]
	return ok && it.singleton
}

// Keys returns every registered key, sorted.
func (d *Depository) Keys() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	keys := make([]string, 0, len(d.items)+len(d.singletons)+len(d.aliases))
	for k := range d.items {
		keys = append(keys, k)
	}
	for k := range d.singletons {
		keys = append(keys, k)
	}
	for k := range d.aliases {
		keys = append(keys, k)
	}

	sort.Strings(keys)
	return keys
}

// Binding describes one registration.
type Binding struct {
	Key    string `json:"key" yaml:"key"`
	Kind   string `json:"kind" yaml:"kind"`
	Target string `json:"target,omitempty" yaml:"target,omitempty"`
}

// Bindings lists every registration, including deferred provider keys,
// sorted by key.
func (d *Depository) Bindings() []Binding {
	d.mu.RLock()
	defer d.mu.RUnlock()

	bindings := make([]Binding, 0, len(d.items)+len(d.singletons)+len(d.aliases)+len(d.deferred))
	for k, it := range d.items {
		b := Binding{Key: k, Kind: it.definition.GraphKind()}
		switch it.definition.kind {
		case KindMethod:
			b.Target = it.definition.method.String()
		case KindReference:
			b.Target = it.definition.target
		}
		bindings = append(bindings, b)
	}
	for k, inst := range d.singletons {
		bindings = append(bindings, Binding{Key: k, Kind: "singleton", Target: fmt.Sprintf("%T", inst)})
	}
	for alias, target := range d.aliases {
		bindings = append(bindings, Binding{Key: alias, Kind: "alias", Target: target})
	}
	for k, dp := range d.deferred {
		bindings = append(bindings, Binding{Key: k, Kind: "deferred", Target: fmt.Sprintf("%T", dp.provider)})
	}

	sort.Slice(bindings, func(i, j int) bool {
		return bindings[i].Key < bindings[j].Key
	})
	return bindings
}

// Validate reports the first dependency cycle among registered items.
func (d *Depository) Validate() error {
	return d.graph.DetectCycles()
}

// Dependencies returns the keys an item depends on directly.
func (d *Depository) Dependencies(key string) []string {
	return d.graph.Dependencies(key)
}

// Dependents returns the keys that depend on key directly.
func (d *Depository) Dependents(key string) []string {
	return d.graph.Dependents(key)
}

// TransitiveDependencies returns every key reachable from key through
// dependencies, nearest first.
func (d *Depository) TransitiveDependencies(key string) []string {
	return d.graph.TransitiveDependencies(key)
}

// Order returns the keys of the dependency graph with every key after its
// dependencies. It fails when the graph has a cycle.
func (d *Depository) Order() ([]string, error) {
	return d.graph.TopologicalSort()
}

// WriteGraph renders the registration graph as "dot" or "text".
func (d *Depository) WriteGraph(w io.Writer, format string) error {
	v := graph.NewVisualizer(d.graph)

	switch format {
	case "dot":
		return v.WriteDOT(w)
	case "text", "":
		return v.WriteText(w)
	default:
		return fmt.Errorf("unsupported graph format %q", format)
	}
}

// aliasNode places an alias in the dependency graph.
type aliasNode struct {
	alias  string
	target string
}

func (a aliasNode) GraphKey() string         { return a.alias }
func (a aliasNode) DependencyKeys() []string { return []string{a.target} }
func (a aliasNode) GraphKind() string        { return "alias" }

var _ graph.Provider = aliasNode{}
