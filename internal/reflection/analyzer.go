package reflection

import (
	"fmt"
	"reflect"
	"sync"
)

// In marks a struct as a parameter object. A function whose single parameter
// embeds In has its exported fields resolved individually.
type In struct{}

var (
	inType  = reflect.TypeOf((*In)(nil)).Elem()
	errType = reflect.TypeOf((*error)(nil)).Elem()
)

// Analyzer performs reflection-based analysis of functions.
// Results depend only on the function type and are cached by it.
type Analyzer struct {
	mu    sync.RWMutex
	cache map[reflect.Type]*FuncInfo
}

// FuncInfo contains analyzed information about a function.
type FuncInfo struct {
	Type           reflect.Type
	Parameters     []ParameterInfo
	IsParamObject  bool         // Single parameter embedding In
	ParamObject    reflect.Type // Struct type of the parameter object
	PointerObject  bool         // Parameter object passed by pointer
	Result         reflect.Type // First non-error return, nil when none
	HasErrorReturn bool         // Returns error as last value
	Variadic       bool
}

// ParameterInfo describes a function parameter or a field of a parameter object.
type ParameterInfo struct {
	Type       reflect.Type
	Name       string // Field name for parameter objects
	Index      int    // Parameter index or field index
	Key        string // Key the value is resolved by, empty when not resolvable
	Injectable bool   // Type carries enough information to be resolved
	Optional   bool   // From optional:"true" tag
	Default    string // From default:"..." tag
	HasDefault bool
	Variadic   bool
}

// TagInfo contains parsed struct tag information.
type TagInfo struct {
	Optional   bool
	Name       string
	Default    string
	HasDefault bool
	Ignore     bool
}

// New creates a new Analyzer.
func New() *Analyzer {
	return &Analyzer{
		cache: make(map[reflect.Type]*FuncInfo),
	}
}

// Analyze inspects fn, which must be a non-nil function value.
func (a *Analyzer) Analyze(fn any) (*FuncInfo, error) {
	if fn == nil {
		return nil, fmt.Errorf("function cannot be nil")
	}

	val := reflect.ValueOf(fn)
	if val.Kind() != reflect.Func {
		return nil, fmt.Errorf("expected a function, got %v", val.Type())
	}
	if val.IsNil() {
		return nil, fmt.Errorf("function cannot be nil")
	}

	return a.AnalyzeType(val.Type())
}

// AnalyzeType inspects a function type.
func (a *Analyzer) AnalyzeType(typ reflect.Type) (*FuncInfo, error) {
	if typ == nil || typ.Kind() != reflect.Func {
		return nil, fmt.Errorf("expected a function type, got %v", typ)
	}

	a.mu.RLock()
	if cached, ok := a.cache[typ]; ok {
		a.mu.RUnlock()
		return cached, nil
	}
	a.mu.RUnlock()

	info := &FuncInfo{
		Type:     typ,
		Variadic: typ.IsVariadic(),
	}

	if err := a.analyzeParameters(info); err != nil {
		return nil, fmt.Errorf("failed to analyze parameters: %w", err)
	}

	if err := a.analyzeReturns(info); err != nil {
		return nil, fmt.Errorf("failed to analyze returns: %w", err)
	}

	a.mu.Lock()
	a.cache[typ] = info
	a.mu.Unlock()

	return info, nil
}

func (a *Analyzer) analyzeParameters(info *FuncInfo) error {
	fnType := info.Type

	if fnType.NumIn() == 1 && !info.Variadic {
		paramType := fnType.In(0)
		if hasEmbeddedType(paramType, inType) {
			info.IsParamObject = true
			return a.analyzeParamObject(info, paramType)
		}
	}

	info.Parameters = make([]ParameterInfo, fnType.NumIn())
	for i := 0; i < fnType.NumIn(); i++ {
		paramType := fnType.In(i)
		param := ParameterInfo{
			Type:     paramType,
			Index:    i,
			Variadic: info.Variadic && i == fnType.NumIn()-1,
		}
		if IsInjectable(paramType) && !param.Variadic {
			param.Injectable = true
			param.Key = KeyFor(paramType)
		}
		info.Parameters[i] = param
	}

	return nil
}

func (a *Analyzer) analyzeParamObject(info *FuncInfo, structType reflect.Type) error {
	if structType.Kind() == reflect.Pointer {
		info.PointerObject = true
		structType = structType.Elem()
	}

	if structType.Kind() != reflect.Struct {
		return fmt.Errorf("In parameter must be a struct, got %v", structType.Kind())
	}
	info.ParamObject = structType

	params := make([]ParameterInfo, 0, structType.NumField())

	for i := 0; i < structType.NumField(); i++ {
		field := structType.Field(i)

		if !field.IsExported() {
			continue
		}

		if field.Anonymous && field.Type == inType {
			continue
		}

		tagInfo := ParseFieldTags(field.Tag)
		if tagInfo.Ignore {
			continue
		}

		param := ParameterInfo{
			Type:       field.Type,
			Name:       field.Name,
			Index:      i,
			Optional:   tagInfo.Optional,
			Default:    tagInfo.Default,
			HasDefault: tagInfo.HasDefault,
		}

		switch {
		case tagInfo.Name != "":
			param.Key = tagInfo.Name
			param.Injectable = true
		case IsInjectable(field.Type):
			param.Key = KeyFor(field.Type)
			param.Injectable = true
		}

		if param.HasDefault && !param.Injectable {
			if _, err := ParseDefault(field.Type, param.Default); err != nil {
				return fmt.Errorf("field %s: %w", field.Name, err)
			}
		}

		params = append(params, param)
	}

	info.Parameters = params
	return nil
}

func (a *Analyzer) analyzeReturns(info *FuncInfo) error {
	fnType := info.Type
	n := fnType.NumOut()

	switch n {
	case 0:
		return nil
	case 1:
		if fnType.Out(0) == errType {
			info.HasErrorReturn = true
			return nil
		}
		info.Result = fnType.Out(0)
		return nil
	case 2:
		if fnType.Out(1) != errType {
			return fmt.Errorf("second return value must be error, got %v", fnType.Out(1))
		}
		info.Result = fnType.Out(0)
		info.HasErrorReturn = true
		return nil
	default:
		return fmt.Errorf("function must return at most a value and an error, got %d values", n)
	}
}

// Dependencies returns the keys fn resolves through the container.
// Optional parameters are included.
func (info *FuncInfo) Dependencies() []string {
	keys := make([]string, 0, len(info.Parameters))
	for _, p := range info.Parameters {
		if p.Injectable {
			keys = append(keys, p.Key)
		}
	}
	return keys
}

// Clear clears the analysis cache.
func (a *Analyzer) Clear() {
	a.mu.Lock()
	a.cache = make(map[reflect.Type]*FuncInfo)
	a.mu.Unlock()
}

// ParseFieldTags parses struct field tags for injection annotations.
func ParseFieldTags(tag reflect.StructTag) TagInfo {
	info := TagInfo{}

	if val, ok := tag.Lookup("optional"); ok {
		info.Optional = val == "true"
	}

	if val, ok := tag.Lookup("name"); ok {
		info.Name = val
	}

	if val, ok := tag.Lookup("default"); ok {
		info.Default = val
		info.HasDefault = true
	}

	if val, ok := tag.Lookup("inject"); ok && val == "-" {
		info.Ignore = true
	}

	return info
}

func hasEmbeddedType(t, embedded reflect.Type) bool {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	if t.Kind() != reflect.Struct {
		return false
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.Anonymous && field.Type == embedded {
			return true
		}
	}

	return false
}
