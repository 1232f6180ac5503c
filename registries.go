package transitions

import (
	"fmt"
	"strings"
)

// defaultNamespace concatenates namespace and id using ::, trimming whitespace.
func defaultNamespace(namespace, id string) string {
	ns := strings.TrimSpace(namespace)
	ident := strings.TrimSpace(id)
	if ns == "" {
		return ident
	}
	return ns + "::" + ident
}

// ConditionRegistry stores named guard conditions. Machine definitions
// reference conditions by name; resolution happens once at build time.
type ConditionRegistry struct {
	conditions map[string]Condition
	namespacer func(string, string) string
}

// NewConditionRegistry constructs an empty registry.
func NewConditionRegistry() *ConditionRegistry {
	return &ConditionRegistry{
		conditions: make(map[string]Condition),
		namespacer: defaultNamespace,
	}
}

// SetNamespacer customizes namespacing.
func (r *ConditionRegistry) SetNamespacer(fn func(string, string) string) {
	if fn != nil {
		r.namespacer = fn
	}
}

// Register stores a condition by name.
func (r *ConditionRegistry) Register(name string, c Condition) error {
	return r.RegisterNamespaced("", name, c)
}

// RegisterNamespaced stores a condition by namespace+name.
func (r *ConditionRegistry) RegisterNamespaced(namespace, name string, c Condition) error {
	if name == "" || c == nil {
		return nil
	}
	if r.conditions == nil {
		r.conditions = make(map[string]Condition)
	}
	key := name
	if r.namespacer != nil {
		key = r.namespacer(namespace, name)
	}
	if _, exists := r.conditions[key]; exists {
		return fmt.Errorf("condition %s already registered", key)
	}
	r.conditions[key] = c
	return nil
}

// Lookup retrieves a condition by name.
func (r *ConditionRegistry) Lookup(name string) (Condition, bool) {
	if r == nil {
		return nil, false
	}
	c, ok := r.conditions[name]
	return c, ok
}

// CallbackRegistry stores named lifecycle callbacks for enter/exit hooks,
// transition hooks, and machine-level event callbacks.
type CallbackRegistry struct {
	callbacks  map[string]Callback
	namespacer func(string, string) string
}

// NewCallbackRegistry constructs an empty registry.
func NewCallbackRegistry() *CallbackRegistry {
	return &CallbackRegistry{
		callbacks:  make(map[string]Callback),
		namespacer: defaultNamespace,
	}
}

// SetNamespacer customizes namespacing.
func (r *CallbackRegistry) SetNamespacer(fn func(string, string) string) {
	if fn != nil {
		r.namespacer = fn
	}
}

// Register stores a callback by name.
func (r *CallbackRegistry) Register(name string, cb Callback) error {
	return r.RegisterNamespaced("", name, cb)
}

// RegisterNamespaced stores a callback by namespace+name.
func (r *CallbackRegistry) RegisterNamespaced(namespace, name string, cb Callback) error {
	if name == "" || cb == nil {
		return nil
	}
	if r.callbacks == nil {
		r.callbacks = make(map[string]Callback)
	}
	key := name
	if r.namespacer != nil {
		key = r.namespacer(namespace, name)
	}
	if _, exists := r.callbacks[key]; exists {
		return fmt.Errorf("callback %s already registered", key)
	}
	r.callbacks[key] = cb
	return nil
}

// Lookup retrieves a callback by name.
func (r *CallbackRegistry) Lookup(name string) (Callback, bool) {
	if r == nil {
		return nil, false
	}
	cb, ok := r.callbacks[name]
	return cb, ok
}
