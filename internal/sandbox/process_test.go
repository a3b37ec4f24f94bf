package sandbox

import (
	"context"
	"testing"
)

func TestTrailingNumericLine_ParsesLastNonEmptyLine(t *testing.T) {
	v, ok := trailingNumericLine("hello\nworld\n42.5\n")
	if !ok || v != 42.5 {
		t.Fatalf("got v=%v ok=%v", v, ok)
	}
}

func TestTrailingNumericLine_NonNumericLastLineReturnsFalse(t *testing.T) {
	_, ok := trailingNumericLine("some output\nnot a number")
	if ok {
		t.Fatal("expected false for a non-numeric trailing line")
	}
}

func TestTrailingNumericLine_EmptyStdoutReturnsFalse(t *testing.T) {
	_, ok := trailingNumericLine("")
	if ok {
		t.Fatal("expected false for empty stdout")
	}
}

func TestProcessBackend_ExecuteWithoutDockerReturnsError(t *testing.T) {
	p := &ProcessBackend{cli: nil}
	result := p.Execute(context.Background(), []byte("1+1"), Options{Timeout: 0})
	if result.Kind != ResultError {
		t.Fatalf("expected an error result without a docker client, got %+v", result)
	}
}

func TestProcessBackend_Name(t *testing.T) {
	p := &ProcessBackend{}
	if p.Name() != BackendProcess {
		t.Fatalf("expected BackendProcess, got %s", p.Name())
	}
}
