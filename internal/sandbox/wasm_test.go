package sandbox

import (
	"context"
	"testing"
)

func TestWasmBackend_ExecutesSimpleArithmetic(t *testing.T) {
	ctx := context.Background()
	w := NewWasmBackend(ctx)
	defer w.Close(ctx)

	result := w.Execute(ctx, []byte("a = 2; b = 3; a * b + 1"), Options{})
	if result.Kind != ResultSuccess {
		t.Fatalf("expected success, got %+v", result)
	}
	if !result.HasValue || result.Value != 7 {
		t.Fatalf("expected value 7, got %+v", result)
	}
}

func TestWasmBackend_RejectsJSLikeSource(t *testing.T) {
	ctx := context.Background()
	w := NewWasmBackend(ctx)
	defer w.Close(ctx)

	result := w.Execute(ctx, []byte("let x = 1; console.log(x);"), Options{})
	if result.Kind != ResultError {
		t.Fatalf("expected error for JS-like source routed to wasm, got %+v", result)
	}
}

func TestWasmBackend_ComparisonYieldsZeroOrOne(t *testing.T) {
	ctx := context.Background()
	w := NewWasmBackend(ctx)
	defer w.Close(ctx)

	result := w.Execute(ctx, []byte("1 < 2"), Options{})
	if result.Kind != ResultSuccess || result.Value != 1 {
		t.Fatalf("expected comparison true => 1, got %+v", result)
	}

	result2 := w.Execute(ctx, []byte("5 < 2"), Options{})
	if result2.Kind != ResultSuccess || result2.Value != 0 {
		t.Fatalf("expected comparison false => 0, got %+v", result2)
	}
}

func TestWasmBackend_Name(t *testing.T) {
	ctx := context.Background()
	w := NewWasmBackend(ctx)
	defer w.Close(ctx)
	if w.Name() != BackendWasm {
		t.Fatalf("expected BackendWasm, got %s", w.Name())
	}
}
