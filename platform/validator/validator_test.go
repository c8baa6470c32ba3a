package validator

import (
	"strings"
	"testing"
)

type sample struct {
	Key  string `validate:"required,upper"`
	Body string `validate:"required"`
}

func TestRegisterValidation_AppliesToStringFields(t *testing.T) {
	val := New()
	if err := val.RegisterValidation("upper", func(v string) bool {
		return v == strings.ToUpper(v)
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := val.Struct(sample{Key: "ABC", Body: "x"}); err != nil {
		t.Fatalf("expected valid struct, got %v", err)
	}

	err := val.Struct(sample{Key: "abc"})
	fields := FieldErrors(err)
	if fields["key"] != "upper" || fields["body"] != "required" {
		t.Fatalf("unexpected field errors %v", fields)
	}
}
