package core

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestJSError_Error(t *testing.T) {
	tests := []struct {
		err  *JSError
		want string
	}{
		{&JSError{Kind: KindReferenceError, Name: "ReferenceError", Message: "foobar is not defined"}, "ReferenceError: foobar is not defined"},
		{&JSError{Kind: KindThrow, Name: "Throw", Message: "42"}, "Throw: 42"},
		{&JSError{Kind: KindCustom, Name: "MyError", Message: "boom"}, "MyError: boom"},
		{NewJSError("TypeError", "bad"), "TypeError: bad"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}

func TestKindOf(t *testing.T) {
	tests := map[string]ErrorKind{
		"Error":          KindError,
		"EvalError":      KindEvalError,
		"InternalError":  KindInternalError,
		"RangeError":     KindRangeError,
		"ReferenceError": KindReferenceError,
		"SyntaxError":    KindSyntaxError,
		"TypeError":      KindTypeError,
		"URIError":       KindURIError,
		"AggregateError": KindCustom,
		"ValidationErr":  KindCustom,
	}
	for name, want := range tests {
		if got := KindOf(name); got != want {
			t.Errorf("KindOf(%q) = %v, want %v", name, got, want)
		}
	}
	if KindSyntaxError.String() != "SyntaxError" {
		t.Errorf("String() = %q", KindSyntaxError.String())
	}
}

func TestParseException(t *testing.T) {
	got, err := ParseException(`{"error":true,"name":"Error","message":"Whoops!","stack":"    at <eval> (<evalScript>)\n"}`)
	if err != nil {
		t.Fatalf("ParseException: %v", err)
	}
	want := &JSError{Kind: KindError, Name: "Error", Message: "Whoops!", Stack: "    at <eval> (<evalScript>)\n"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseException mismatch (-want +got):\n%s", diff)
	}

	got, err = ParseException(`{"error":false,"name":"","message":"[object Object]","stack":""}`)
	if err != nil {
		t.Fatalf("ParseException: %v", err)
	}
	if got.Kind != KindThrow || got.Message != "[object Object]" {
		t.Errorf("got %+v, want Throw", got)
	}

	if _, err := ParseException("not json"); err == nil {
		t.Error("expected error for malformed description")
	}
}

func TestErrorFromText(t *testing.T) {
	tests := []struct {
		text string
		want *JSError
	}{
		{"ReferenceError: x is not defined", &JSError{Kind: KindReferenceError, Name: "ReferenceError", Message: "x is not defined", Stack: "st"}},
		{"Uncaught TypeError: nope", &JSError{Kind: KindTypeError, Name: "TypeError", Message: "nope", Stack: "st"}},
		{"MyError: custom: with colon", &JSError{Kind: KindCustom, Name: "MyError", Message: "custom: with colon", Stack: "st"}},
		{"42", &JSError{Kind: KindThrow, Name: "Throw", Message: "42"}},
		{"some text: not a class", &JSError{Kind: KindThrow, Name: "Throw", Message: "some text: not a class"}},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, ErrorFromText(tt.text, "st")); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestQuote(t *testing.T) {
	tests := map[string]string{
		"plain":        `"plain"`,
		`a"b`:          `"a\"b"`,
		"line\nbreak":  `"line\nbreak"`,
		"<tag>&":       `"<tag>&"`,
		"a\u2028b":     `"a\u2028b"`,
	}
	for in, want := range tests {
		if got := Quote(in); got != want {
			t.Errorf("Quote(%q) = %s, want %s", in, got, want)
		}
	}
}
