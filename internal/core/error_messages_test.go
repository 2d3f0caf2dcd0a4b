package core

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/fileio"
	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/store"
	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/transform"
	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/validation"
)

func TestMapError(t *testing.T) {
	_, unknownOp := transform.Transform("x", "strip + bogus_op")
	_, conversion := transform.Transform("abc", "clean_numeric_value + addition|1")
	_, malformed := transform.Transform("x", "strip + + upper")
	_, unknownRule := validation.Validate("x", []validation.Rule{{RuleType: "nope"}})

	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{name: "nil error returns empty", err: nil, wantCode: ""},
		{name: "unknown operation", err: unknownOp, wantCode: "TRN001"},
		{name: "conversion failure", err: conversion, wantCode: "TRN002"},
		{name: "malformed rule", err: malformed, wantCode: "TRN003"},
		{name: "rejected row", err: fmt.Errorf("row 3: %w", transform.ErrRejectRow), wantCode: "TRN005"},
		{name: "unknown rule type", err: unknownRule, wantCode: "RULE001"},
		{name: "template not found", err: fmt.Errorf("%w: %q", ErrTemplateNotFound, "amazon"), wantCode: "TPL001"},
		{name: "invalid template", err: fmt.Errorf("%w %q: id is required", ErrInvalidTemplate, ""), wantCode: "TPL002"},
		{name: "missing columns", err: fmt.Errorf("%w: [sku]", ErrMissingColumns), wantCode: "TPL003"},
		{name: "file too large", err: ErrFileTooLarge, wantCode: "FILE001"},
		{name: "unsupported format", err: fmt.Errorf("%w: %q", fileio.ErrUnsupportedFormat, "pdf"), wantCode: "FILE002"},
		{name: "malformed file", err: fmt.Errorf("%w: read row: bare quote", ErrMalformedFile), wantCode: "FILE003"},
		{name: "no data", err: fileio.ErrNoData, wantCode: "FILE004"},
		{name: "remote too large", err: fmt.Errorf("%w: read past limit", fileio.ErrTooLarge), wantCode: "FILE001"},
		{name: "fetch failed", err: fmt.Errorf("%w: https://x/a.csv: 404 Not Found", fileio.ErrFetch), wantCode: "FILE005"},
		{name: "fetch timed out", err: fmt.Errorf("%w: %w", fileio.ErrFetch, context.DeadlineExceeded), wantCode: "FILE005"},
		{name: "store not connected", err: fmt.Errorf("insert: %w", store.ErrNotConnected), wantCode: "DB003"},
		{name: "duplicate key from driver", err: errors.New("ERROR: duplicate key value violates unique constraint"), wantCode: "DB001"},
		{name: "connection refused from driver", err: errors.New("dial tcp: connection refused"), wantCode: "DB003"},
		{name: "deadline", err: fmt.Errorf("import: %w", context.DeadlineExceeded), wantCode: "DB004"},
		{name: "too many jobs", err: ErrTooManyJobs, wantCode: "JOB001"},
		{name: "job not found", err: fmt.Errorf("%w: %s", ErrJobNotFound, "abc"), wantCode: "JOB002"},
		{name: "job running", err: fmt.Errorf("%w: j1", ErrJobActive), wantCode: "JOB003"},
		{name: "rolled back", err: ErrAlreadyRolledBack, wantCode: "JOB004"},
		{name: "cancelled", err: context.Canceled, wantCode: "REQ001"},
		{name: "rate limit", err: errors.New("rate limit exceeded"), wantCode: "RATE001"},
		{name: "case insensitive matching", err: errors.New("DUPLICATE KEY value"), wantCode: "DB001"},
		{name: "unknown error returns default", err: errors.New("some random internal error"), wantCode: "ERR000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError(%v) code = %q, want %q", tt.err, got.Code, tt.wantCode)
			}
			if tt.err != nil && got.Message == "" {
				t.Errorf("MapError(%v) message is empty", tt.err)
			}
		})
	}
}

func TestFormatUserError(t *testing.T) {
	result := FormatUserError(ErrTooManyJobs)

	expected := "System is busy processing other jobs (Code: JOB001). Please wait a moment and try again"
	if result != expected {
		t.Errorf("FormatUserError() = %q, want %q", result, expected)
	}
	if got := FormatUserError(nil); got != "" {
		t.Errorf("FormatUserError(nil) = %q, want empty", got)
	}
}

func TestIsUserFacing(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil error is not user facing", err: nil, want: false},
		{name: "known error is user facing", err: ErrJobNotFound, want: true},
		{name: "unknown error is not user facing", err: errors.New("random internal error xyz"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUserFacing(tt.err); got != tt.want {
				t.Errorf("IsUserFacing() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewUserError(t *testing.T) {
	t.Run("nil error returns nil", func(t *testing.T) {
		if got := NewUserError(nil); got != nil {
			t.Errorf("NewUserError(nil) = %v, want nil", got)
		}
	})

	t.Run("wraps technical error with user message", func(t *testing.T) {
		techErr := fmt.Errorf("lookup: %w", ErrTemplateNotFound)
		userErr := NewUserError(techErr)

		if userErr.Error() != "Template not found" {
			t.Errorf("Error() = %q, want user message", userErr.Error())
		}
		if !errors.Is(userErr, ErrTemplateNotFound) {
			t.Error("Unwrap() should return original error")
		}
		if got := MapError(userErr).Code; got != "TPL001" {
			t.Errorf("MapError(UserError) code = %q, want TPL001", got)
		}
	})
}
