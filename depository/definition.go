package depository

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/titon/framework/internal/graph"
	"github.com/titon/framework/internal/reflection"
)

// In marks a parameter object. Embed it in a struct used as the single
// parameter of a constructor to resolve its fields individually:
//
//	type ServerParams struct {
//	    depository.In
//
//	    Logger  Logger
//	    Cache   Cache         `name:"cache.redis" optional:"true"`
//	    Timeout time.Duration `default:"30s"`
//	    Debug   bool          `inject:"-"`
//	}
type In = reflection.In

// Ref is an explicit argument that is made through the depository before
// being passed to a constructor.
type Ref string

// Kind identifies how a Definition produces its value.
type Kind int

const (
	// KindFunc calls a constructor or closure.
	KindFunc Kind = iota
	// KindMethod calls a method on a receiver.
	KindMethod
	// KindInstance returns a value that already exists.
	KindInstance
	// KindReference makes another key, then applies its own calls.
	KindReference
)

func (k Kind) String() string {
	switch k {
	case KindFunc:
		return "func"
	case KindMethod:
		return "method"
	case KindInstance:
		return "instance"
	case KindReference:
		return "reference"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Method names a method to call on a receiver. A string Receiver is a key
// made through the depository; anything else is used as is.
type Method struct {
	Receiver any
	Name     string
}

func (m Method) String() string {
	if key, ok := m.Receiver.(string); ok {
		return key + "::" + m.Name
	}
	return fmt.Sprintf("%T::%s", m.Receiver, m.Name)
}

type call struct {
	method string
	args   []any
}

// Definition is a recipe for making a value. Arguments and method calls
// added to a registered definition apply to every later make.
type Definition struct {
	depository *Depository
	key        string
	kind       Kind
	singleton  bool

	fn       reflect.Value
	info     *reflection.FuncInfo
	method   Method
	instance any
	target   string

	mu        sync.RWMutex
	arguments []any
	calls     []call
}

var _ graph.Provider = (*Definition)(nil)

func (d *Depository) newDefinition(key string, concrete any) (*Definition, error) {
	if m, ok := concrete.(Method); ok {
		return d.newMethodDefinition(key, m)
	}

	rv := reflect.ValueOf(concrete)
	if rv.Kind() != reflect.Func {
		return &Definition{
			depository: d,
			key:        reflection.KeyOf(concrete),
			kind:       KindInstance,
			singleton:  true,
			instance:   concrete,
		}, nil
	}

	if rv.IsNil() {
		return nil, ErrConcreteNil
	}

	info, err := d.analyzer.Analyze(concrete)
	if err != nil {
		return nil, ReflectionAnalysisError{Target: concrete, Operation: "analyze", Cause: err}
	}

	if key == "" {
		if info.Result == nil {
			return nil, fmt.Errorf("%w: %s returns no value to derive a key from", ErrKeyEmpty, formatType(info.Type))
		}
		key = reflection.KeyFor(info.Result)
	}

	return &Definition{
		depository: d,
		key:        key,
		kind:       KindFunc,
		fn:         rv,
		info:       info,
	}, nil
}

func (d *Depository) newMethodDefinition(key string, m Method) (*Definition, error) {
	if m.Receiver == nil {
		return nil, ErrConcreteNil
	}

	def := &Definition{depository: d, kind: KindMethod, method: m}

	if _, ok := m.Receiver.(string); !ok {
		fn, err := methodOf(m.Receiver, m.Name)
		if err != nil {
			return nil, err
		}
		info, err := d.analyzer.AnalyzeType(fn.Type())
		if err != nil {
			return nil, ReflectionAnalysisError{Target: m.Receiver, Operation: "analyze", Cause: err}
		}
		def.info = info
		if key == "" && info.Result != nil {
			key = reflection.KeyFor(info.Result)
		}
	}

	if key == "" {
		key = m.String()
	}
	def.key = key

	return def, nil
}

// Key returns the key the definition is registered under.
func (def *Definition) Key() string {
	return def.key
}

// typeKey returns the key derived from the result type, or "" when the
// result is unknown until the definition is made.
func (def *Definition) typeKey() string {
	if def.info == nil || def.info.Result == nil {
		return ""
	}
	return reflection.KeyFor(def.info.Result)
}

// Kind returns how the definition produces its value.
func (def *Definition) Kind() Kind {
	return def.kind
}

// With sets the positional arguments used when a make passes none.
func (def *Definition) With(args ...any) *Definition {
	def.mu.Lock()
	def.arguments = append([]any(nil), args...)
	def.mu.Unlock()

	def.refreshGraph()
	return def
}

// Arguments returns the arguments set by With.
func (def *Definition) Arguments() []any {
	def.mu.RLock()
	defer def.mu.RUnlock()

	return append([]any(nil), def.arguments...)
}

// Call queues a method to call on every value the definition makes.
// Parameters not covered by args are autowired.
func (def *Definition) Call(method string, args ...any) *Definition {
	def.mu.Lock()
	def.calls = append(def.calls, call{method: method, args: append([]any(nil), args...)})
	def.mu.Unlock()

	return def
}

// Create makes a new value from the definition. Args override With arguments.
func (def *Definition) Create(args ...any) (any, error) {
	if def.depository == nil {
		return def.instance, nil
	}
	return def.create(newResolution(def.depository.maxDepth), args)
}

func (def *Definition) create(rc *resolution, args []any) (any, error) {
	d := def.depository

	def.mu.RLock()
	explicit := args
	if len(explicit) == 0 {
		explicit = def.arguments
	}
	calls := def.calls
	def.mu.RUnlock()

	var (
		result any
		err    error
	)

	switch def.kind {
	case KindInstance:
		result = def.instance
	case KindReference:
		result, err = d.make(rc, def.target, explicit)
	case KindFunc:
		result, err = d.invoke(rc, def.key, def.fn, def.info, explicit)
	case KindMethod:
		var receiver any
		receiver, err = d.receiver(rc, def.method.Receiver)
		if err == nil {
			result, err = d.callMethod(rc, def.key, receiver, def.method.Name, explicit)
		}
	}

	if err != nil {
		return nil, err
	}

	for _, c := range calls {
		if _, err := d.callMethod(rc, def.key, result, c.method, c.args); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// GraphKey implements graph.Provider.
func (def *Definition) GraphKey() string {
	return def.key
}

// DependencyKeys implements graph.Provider. Parameters covered by With
// arguments are omitted unless the argument is a Ref.
func (def *Definition) DependencyKeys() []string {
	def.mu.RLock()
	defer def.mu.RUnlock()

	var keys []string

	switch def.kind {
	case KindReference:
		return []string{def.target}
	case KindMethod:
		if key, ok := def.method.Receiver.(string); ok {
			keys = append(keys, key)
		}
	}

	for _, arg := range def.arguments {
		if ref, ok := arg.(Ref); ok {
			keys = append(keys, string(ref))
		}
	}

	if def.info == nil {
		return keys
	}

	if len(def.arguments) == 0 || def.info.IsParamObject {
		return append(keys, def.info.Dependencies()...)
	}

	for i, p := range def.info.Parameters {
		if !p.Injectable {
			continue
		}
		if i < len(def.arguments) {
			continue
		}
		keys = append(keys, p.Key)
	}

	return keys
}

// GraphKind implements graph.Provider.
func (def *Definition) GraphKind() string {
	switch {
	case def.singleton:
		return "singleton"
	case def.kind == KindReference:
		return "reference"
	default:
		return "transient"
	}
}

func (def *Definition) refreshGraph() {
	d := def.depository
	if d == nil || def.kind == KindInstance {
		return
	}

	d.mu.RLock()
	it, ok := d.items[def.key]
	d.mu.RUnlock()

	if ok && it.definition == def {
		_ = d.graph.AddProvider(def)
	}
}
