package transitions

import (
	"context"
	"strings"
	"testing"
)

func TestCallbackRegistryRejectsDuplicates(t *testing.T) {
	reg := NewCallbackRegistry()
	cb := func(ctx context.Context, evt *EventData) error { return nil }

	if err := reg.Register("notify", cb); err != nil {
		t.Fatalf("first register: %v", err)
	}
	err := reg.Register("notify", cb)
	if err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
	if !strings.Contains(err.Error(), "already registered") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestConditionRegistryNamespacing(t *testing.T) {
	reg := NewConditionRegistry()
	cond := func(ctx context.Context, evt *EventData) bool { return true }

	if err := reg.RegisterNamespaced("billing", "paid", cond); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, ok := reg.Lookup("billing::paid"); !ok {
		t.Fatal("namespaced lookup failed")
	}
	if _, ok := reg.Lookup("paid"); ok {
		t.Fatal("bare name should not resolve a namespaced entry")
	}

	// Same bare name under another namespace is a distinct entry.
	if err := reg.RegisterNamespaced("shipping", "paid", cond); err != nil {
		t.Fatalf("register second namespace: %v", err)
	}
	if err := reg.RegisterNamespaced("billing", "paid", cond); err == nil {
		t.Fatal("expected duplicate within a namespace to fail")
	}
}

func TestRegistryIgnoresEmptyEntries(t *testing.T) {
	creg := NewConditionRegistry()
	if err := creg.Register("", func(ctx context.Context, evt *EventData) bool { return true }); err != nil {
		t.Fatalf("blank name should be a no-op: %v", err)
	}
	if err := creg.Register("nilfn", nil); err != nil {
		t.Fatalf("nil fn should be a no-op: %v", err)
	}
	if _, ok := creg.Lookup("nilfn"); ok {
		t.Fatal("nil fn must not be stored")
	}

	var absent *CallbackRegistry
	if _, ok := absent.Lookup("anything"); ok {
		t.Fatal("nil registry lookups must miss")
	}
}

func TestRegistryCustomNamespacer(t *testing.T) {
	reg := NewCallbackRegistry()
	reg.SetNamespacer(func(namespace, name string) string {
		return namespace + "/" + name
	})
	if err := reg.RegisterNamespaced("audit", "log", func(ctx context.Context, evt *EventData) error { return nil }); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, ok := reg.Lookup("audit/log"); !ok {
		t.Fatal("custom namespacer key not found")
	}
}
