package errors

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestNewStructuredError(t *testing.T) {
	err := NewStructuredError(ErrEpisodeNotFound, "Episode with ID 'xyz' not found")

	if err.Code != ErrEpisodeNotFound {
		t.Errorf("Expected code %s, got %s", ErrEpisodeNotFound, err.Code)
	}
	if err.Message != "Episode with ID 'xyz' not found" {
		t.Errorf("Unexpected message: %s", err.Message)
	}
	if err.RecoverySuggestions == nil {
		t.Error("RecoverySuggestions should not be nil")
	}
}

func TestStructuredErrorWithDetails(t *testing.T) {
	err := NewStructuredError(ErrInvalidParameter, "Invalid parameter").
		WithDetails("Parameter 'sort' must be one of: relevance, newest, oldest, duration, success")

	if err.Details != "Parameter 'sort' must be one of: relevance, newest, oldest, duration, success" {
		t.Errorf("Unexpected details: %s", err.Details)
	}
}

func TestStructuredErrorWithRecovery(t *testing.T) {
	err := NewStructuredError(ErrRelationshipNotFound, "Relationship not found").
		WithRecovery("Use list_relationships to find available edges").
		WithRecovery("Check whether the edge was removed")

	if len(err.RecoverySuggestions) != 2 {
		t.Errorf("Expected 2 recovery suggestions, got %d", len(err.RecoverySuggestions))
	}
}

func TestStructuredErrorWithRelatedTools(t *testing.T) {
	err := NewStructuredError(ErrEpisodeCompleted, "Episode already complete").
		WithRelatedTools("create_episode", "get_episode")

	if len(err.RelatedTools) != 2 {
		t.Errorf("Expected 2 related tools, got %d", len(err.RelatedTools))
	}
}

func TestStructuredErrorWithExample(t *testing.T) {
	err := NewStructuredError(ErrCycleDetected, "Adding this edge would create a cycle").
		WithExample("validate_cycles", map[string]any{
			"episode_id": "E1",
		})

	if err.ExampleFix == nil {
		t.Error("ExampleFix should not be nil")
	}

	example, ok := err.ExampleFix.(map[string]any)
	if !ok {
		t.Fatal("ExampleFix should be a map")
	}

	if example["tool"] != "validate_cycles" {
		t.Errorf("Expected tool 'validate_cycles', got %v", example["tool"])
	}
}

func TestStructuredErrorError(t *testing.T) {
	err := NewStructuredError(ErrRateLimited, "Rate limited")
	errorString := err.Error()

	if errorString != "[ERR_5001_RATE_LIMITED] Rate limited" {
		t.Errorf("Unexpected error string: %s", errorString)
	}
}

func TestStructuredErrorJSONSerialization(t *testing.T) {
	err := NewStructuredError(ErrInvalidParameter, "Invalid parameter").
		WithDetails("Must provide query").
		WithRecovery("Add query field to request").
		WithRelatedTools("query_memory").
		WithExample("query_memory", map[string]any{"query": "example"})

	data, jsonErr := json.Marshal(err)
	if jsonErr != nil {
		t.Fatalf("Failed to marshal error: %v", jsonErr)
	}

	var decoded StructuredError
	if jsonErr := json.Unmarshal(data, &decoded); jsonErr != nil {
		t.Fatalf("Failed to unmarshal error: %v", jsonErr)
	}

	if decoded.Code != err.Code {
		t.Errorf("Code mismatch after round-trip: %s != %s", decoded.Code, err.Code)
	}
	if decoded.Message != err.Message {
		t.Errorf("Message mismatch after round-trip: %s != %s", decoded.Message, err.Message)
	}
}

func TestWrapError(t *testing.T) {
	originalErr := errors.New("original error")
	wrapped := WrapError(ErrStorageUnavailable, originalErr)

	if wrapped.Code != ErrStorageUnavailable {
		t.Errorf("Expected code %s, got %s", ErrStorageUnavailable, wrapped.Code)
	}
	if wrapped.Message != "original error" {
		t.Errorf("Unexpected message: %s", wrapped.Message)
	}
}

func TestWrapErrorNil(t *testing.T) {
	wrapped := WrapError(ErrStorageUnavailable, nil)
	if wrapped != nil {
		t.Error("WrapError should return nil for nil input")
	}
}

func TestIsStructuredError(t *testing.T) {
	structErr := NewStructuredError(ErrEpisodeNotFound, "Not found")
	regularErr := errors.New("regular error")

	if !IsStructuredError(structErr) {
		t.Error("IsStructuredError should return true for StructuredError")
	}
	if IsStructuredError(regularErr) {
		t.Error("IsStructuredError should return false for regular error")
	}
}

func TestAsStructuredError(t *testing.T) {
	structErr := NewStructuredError(ErrEpisodeNotFound, "Not found")
	regularErr := errors.New("regular error")

	se, ok := AsStructuredError(structErr)
	if !ok || se == nil {
		t.Error("AsStructuredError should return the error for StructuredError")
	}

	se, ok = AsStructuredError(regularErr)
	if ok || se != nil {
		t.Error("AsStructuredError should return nil for regular error")
	}
}

func TestToStructuredError(t *testing.T) {
	structErr := NewStructuredError(ErrEpisodeNotFound, "Not found")
	result := ToStructuredError(structErr)
	if result.Code != ErrEpisodeNotFound {
		t.Error("ToStructuredError should return unchanged StructuredError")
	}

	regularErr := errors.New("regular error")
	result = ToStructuredError(regularErr)
	if result == nil {
		t.Error("ToStructuredError should wrap regular errors")
	}
	if result.Code != ErrInvalidOperation {
		t.Errorf("Expected generic code, got %s", result.Code)
	}

	result = ToStructuredError(nil)
	if result != nil {
		t.Error("ToStructuredError should return nil for nil input")
	}
}

func TestRecoveryGenerator(t *testing.T) {
	gen := NewRecoveryGenerator()

	suggestions := gen.GetSuggestions(ErrEpisodeNotFound)
	if len(suggestions) == 0 {
		t.Error("Should have default recovery for ErrEpisodeNotFound")
	}

	suggestions = gen.GetSuggestions("UNKNOWN_CODE")
	if len(suggestions) == 0 {
		t.Error("Should have generic recovery for unknown code")
	}
}

func TestRecoveryGeneratorRelatedTools(t *testing.T) {
	gen := NewRecoveryGenerator()

	tools := gen.GetRelatedTools(ErrEpisodeNotFound)
	if len(tools) == 0 {
		t.Error("Should have related tools for ErrEpisodeNotFound")
	}
}

func TestRecoveryGeneratorExample(t *testing.T) {
	gen := NewRecoveryGenerator()

	example := gen.GetExample(ErrEpisodeNotFound)
	if example == nil {
		t.Error("Should have example for ErrEpisodeNotFound")
	}
}

func TestRecoveryGeneratorEnhance(t *testing.T) {
	gen := NewRecoveryGenerator()
	err := NewStructuredError(ErrRelationshipNotFound, "Relationship not found")

	enhanced := gen.Enhance(err)

	if len(enhanced.RecoverySuggestions) == 0 {
		t.Error("Enhanced error should have recovery suggestions")
	}
	if len(enhanced.RelatedTools) == 0 {
		t.Error("Enhanced error should have related tools")
	}
}

func TestEnhanceError(t *testing.T) {
	err := NewStructuredError(ErrPatternNotFound, "Pattern not found")

	enhanced := EnhanceError(err)

	if len(enhanced.RecoverySuggestions) == 0 {
		t.Error("EnhanceError should add recovery suggestions")
	}
}

func TestErrorCategory(t *testing.T) {
	tests := []struct {
		code     string
		category Kind
	}{
		{ErrEpisodeNotFound, KindNotFound},
		{ErrInvalidParameter, KindInvalidInput},
		{ErrCycleDetected, KindConflict},
		{ErrStorageUnavailable, KindStorage},
		{ErrRateLimited, KindRateLimited},
		{ErrSandboxTimeout, KindTimeout},
		{ErrInsufficientData, KindInsufficientData},
	}

	for _, tt := range tests {
		category := ErrorCategory(tt.code)
		if category != tt.category {
			t.Errorf("ErrorCategory(%s): got %s, want %s", tt.code, category, tt.category)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(ErrStorageUnavailable) {
		t.Error("Storage errors should be retryable")
	}
	if !IsRetryable(ErrRateLimited) {
		t.Error("Rate limited should be retryable")
	}

	if IsRetryable(ErrEpisodeNotFound) {
		t.Error("Resource errors should not be retryable")
	}
}

func TestErrorCategories(t *testing.T) {
	tests := []struct {
		code     string
		category string
	}{
		{ErrEpisodeNotFound, "1"},
		{ErrInvalidParameter, "2"},
		{ErrCycleDetected, "3"},
		{ErrStorageUnavailable, "4"},
		{ErrRateLimited, "5"},
		{ErrSandboxTimeout, "6"},
		{ErrInsufficientData, "7"},
	}

	for _, tt := range tests {
		if len(tt.code) < 5 {
			t.Errorf("Invalid code format: %s", tt.code)
			continue
		}
		categoryDigit := string(tt.code[4])
		if categoryDigit != tt.category {
			t.Errorf("Code %s: expected category %s, got %s", tt.code, tt.category, categoryDigit)
		}
	}
}

func TestStructuredErrorChaining(t *testing.T) {
	err := NewStructuredError(ErrInvalidParameter, "Invalid parameter").
		WithDetails("Field 'query' is required").
		WithRecovery("Provide a non-empty query field").
		WithRecovery("Check the tool's schema for required fields").
		WithRelatedTools("query_memory", "search_patterns").
		WithExample("query_memory", map[string]any{
			"query":  "implement authentication",
			"domain": "web-api",
		})

	if err.Details == "" {
		t.Error("Details should be set")
	}
	if len(err.RecoverySuggestions) != 2 {
		t.Errorf("Expected 2 recovery suggestions, got %d", len(err.RecoverySuggestions))
	}
	if len(err.RelatedTools) != 2 {
		t.Errorf("Expected 2 related tools, got %d", len(err.RelatedTools))
	}
	if err.ExampleFix == nil {
		t.Error("ExampleFix should be set")
	}
}

func TestAllErrorCodesHaveRecovery(t *testing.T) {
	gen := NewRecoveryGenerator()

	codes := []string{
		ErrEpisodeNotFound,
		ErrPatternNotFound,
		ErrRelationshipNotFound,
		ErrCacheKeyNotFound,
		ErrClusterNotFound,
		ErrInvalidParameter,
		ErrMissingRequired,
		ErrInvalidPriority,
		ErrPathUnsafe,
		ErrSelfRelationship,
		ErrDuplicateRelationship,
		ErrCycleDetected,
		ErrEpisodeCompleted,
		ErrStorageUnavailable,
		ErrEmbeddingUnavailable,
		ErrAuditUnavailable,
		ErrRateLimited,
		ErrSandboxTimeout,
		ErrInsufficientData,
		ErrInvalidData,
	}

	for _, code := range codes {
		suggestions := gen.GetSuggestions(code)
		if len(suggestions) == 0 {
			t.Errorf("No recovery suggestions for code %s", code)
		}
	}
}

func TestToMap(t *testing.T) {
	err := NewStructuredError(ErrInvalidParameter, "Invalid parameter").
		WithDetails("Must provide query").
		WithRecovery("Add query field").
		WithRelatedTools("query_memory").
		WithExample("query_memory", map[string]any{"query": "example"})

	m := err.ToMap()

	if m["error_code"] != ErrInvalidParameter {
		t.Errorf("Expected error_code %s, got %v", ErrInvalidParameter, m["error_code"])
	}
	if m["message"] != "Invalid parameter" {
		t.Errorf("Expected message 'Invalid parameter', got %v", m["message"])
	}
	if m["details"] != "Must provide query" {
		t.Errorf("Expected details 'Must provide query', got %v", m["details"])
	}
}
