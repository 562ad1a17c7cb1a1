package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNewError(t *testing.T) {
	t.Parallel()

	t.Run("creates error with all defaults", func(t *testing.T) {
		err := NewError(ErrCodeInvalidConfig, "capacity must not be negative")
		if err == nil {
			t.Fatal("NewError returned nil")
		}
		if err.Code != ErrCodeInvalidConfig {
			t.Errorf("Code = %v, want %v", err.Code, ErrCodeInvalidConfig)
		}
		if err.Message != "capacity must not be negative" {
			t.Errorf("Message = %q, want %q", err.Message, "capacity must not be negative")
		}
		if err.Category != CategoryConfiguration {
			t.Errorf("Category = %v, want %v", err.Category, CategoryConfiguration)
		}
		if err.Details == nil {
			t.Error("Details map is nil")
		}
		if err.Context == nil {
			t.Error("Context map is nil")
		}
		if err.Timestamp.IsZero() {
			t.Error("Timestamp not set")
		}
	})

	t.Run("sets correct retryable defaults", func(t *testing.T) {
		if !NewError(ErrCodePersistFailed, "disk full").Retryable {
			t.Error("PersistFailed should be retryable by default")
		}
		if NewError(ErrCodeNotResident, "not resident").Retryable {
			t.Error("NotResident should not be retryable by default")
		}
	})
}

func TestGetCategory(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code     ErrorCode
		expected ErrorCategory
	}{
		{ErrCodeInvalidConfig, CategoryConfiguration},
		{ErrCodeConfigLoad, CategoryConfiguration},
		{ErrCodeInvalidTile, CategoryCaller},
		{ErrCodeNotResident, CategoryCaller},
		{ErrCodeDiskUpdateFailed, CategoryDisk},
		{ErrCodePersistFailed, CategoryDisk},
		{ErrCodeLoadFailed, CategoryDisk},
		{ErrCodeDeleteFailed, CategoryDisk},
		{ErrCodeCacheClosed, CategoryState},
		{ErrCodeInternalError, CategoryInternal},
		{ErrorCode("SOMETHING_ELSE"), CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			result := GetCategory(tt.code)
			if result != tt.expected {
				t.Errorf("GetCategory(%v) = %v, want %v", tt.code, result, tt.expected)
			}
		})
	}
}

func TestCacheError_Error(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  *CacheError
		want string
	}{
		{
			name: "with component and operation",
			err: &CacheError{
				Code:      ErrCodeNotResident,
				Component: "tilecache",
				Operation: "set_changed",
				Message:   "tile img/1/2 is not resident",
			},
			want: "[tilecache:set_changed] NOT_RESIDENT: tile img/1/2 is not resident",
		},
		{
			name: "with component only",
			err: &CacheError{
				Code:      ErrCodeInvalidConfig,
				Component: "config",
				Message:   "invalid value",
			},
			want: "[config] INVALID_CONFIG: invalid value",
		},
		{
			name: "with cause",
			err: &CacheError{
				Code:    ErrCodeLoadFailed,
				Message: "read spill file",
				Cause:   errors.New("unexpected EOF"),
			},
			want: "LOAD_FAILED: read spill file: unexpected EOF",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.err.Error()
			if result != tt.want {
				t.Errorf("Error() = %q, want %q", result, tt.want)
			}
		})
	}
}

func TestCacheError_Unwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("underlying cause")
	err := Wrap(cause, ErrCodePersistFailed, "wrapper")

	if err.Unwrap() != cause {
		t.Errorf("Unwrap() = %v, want %v", err.Unwrap(), cause)
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause through Unwrap")
	}
}

func TestCacheError_Is(t *testing.T) {
	t.Parallel()

	err1 := &CacheError{Code: ErrCodeNotResident, Message: "not resident"}
	err2 := &CacheError{Code: ErrCodeNotResident, Message: "different message"}
	err3 := &CacheError{Code: ErrCodeInvalidConfig, Message: "invalid"}

	if !errors.Is(err1, err2) {
		t.Error("errors with same code should match with Is()")
	}
	if errors.Is(err1, err3) {
		t.Error("errors with different codes should not match with Is()")
	}
	if err1.Is(errors.New("standard error")) {
		t.Error("CacheError should not match standard error with Is()")
	}
}

func TestHasCode(t *testing.T) {
	t.Parallel()

	inner := NewError(ErrCodePersistFailed, "write failed")
	outer := Wrap(inner, ErrCodeDiskUpdateFailed, "set changed")
	wrapped := fmt.Errorf("caller: %w", outer)

	if !HasCode(wrapped, ErrCodeDiskUpdateFailed) {
		t.Error("HasCode should find the outer code")
	}
	if !HasCode(wrapped, ErrCodePersistFailed) {
		t.Error("HasCode should find a code further down the chain")
	}
	if HasCode(wrapped, ErrCodeNotResident) {
		t.Error("HasCode should not report an absent code")
	}
	if HasCode(nil, ErrCodeNotResident) {
		t.Error("HasCode(nil) should be false")
	}

	code, ok := GetCode(wrapped)
	if !ok || code != ErrCodeDiskUpdateFailed {
		t.Errorf("GetCode() = %v, %v, want %v, true", code, ok, ErrCodeDiskUpdateFailed)
	}
	if _, ok := GetCode(errors.New("plain")); ok {
		t.Error("GetCode should fail for non-cache errors")
	}
}

func TestCacheError_String(t *testing.T) {
	t.Parallel()

	err := NewError(ErrCodeLoadFailed, "spill file truncated").
		WithComponent("tilecache").
		WithOperation("load").
		WithDetail("expected_bytes", 4096).
		WithContext("tile", "img/0/0").
		WithCause(errors.New("unexpected EOF"))

	result := err.String()

	expectedParts := []string{
		"Code=LOAD_FAILED",
		"Category=disk",
		`Message="spill file truncated"`,
		"Component=tilecache",
		"Operation=load",
		"Retryable=true",
		"Details=",
		"Cause=",
	}

	for _, part := range expectedParts {
		if !strings.Contains(result, part) {
			t.Errorf("String() missing expected part: %q\nGot: %s", part, result)
		}
	}
	if err.Context["tile"] != "img/0/0" {
		t.Errorf("Context[tile] = %q, want %q", err.Context["tile"], "img/0/0")
	}
}

func TestCacheError_JSON(t *testing.T) {
	t.Parallel()

	err := NewError(ErrCodeInvalidConfig, "invalid setting").WithComponent("config")

	var parsed map[string]interface{}
	if parseErr := json.Unmarshal([]byte(err.JSON()), &parsed); parseErr != nil {
		t.Fatalf("JSON() returned invalid JSON: %v", parseErr)
	}

	if parsed["code"] != "INVALID_CONFIG" {
		t.Errorf("JSON code = %v, want INVALID_CONFIG", parsed["code"])
	}
	if parsed["component"] != "config" {
		t.Errorf("JSON component = %v, want config", parsed["component"])
	}
	if parsed["retryable"] != false {
		t.Errorf("JSON retryable = %v, want false", parsed["retryable"])
	}
}
