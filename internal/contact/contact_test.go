package contact

import (
	"strings"
	"testing"

	"jobdesk-auth/internal/model"
)

func TestValidateEmail(t *testing.T) {
	v := NewValidator("1")

	valid := []string{
		"user@example.com",
		"first.last@sub.example.co",
		"user+tag@example.io",
		"a@b.cd",
	}
	for _, email := range valid {
		if !v.Validate(email, model.ContactEmail) {
			t.Errorf("Validate(%q) = false, want true", email)
		}
	}

	invalid := []string{
		"",
		"plainaddress",
		"@example.com",
		"user@",
		"user..double@example.com",
		"user@example",
		strings.Repeat("a", 65) + "@example.com",              // local part > 64
		"user@" + strings.Repeat("a", 250) + ".com",           // domain > 253
		"u@" + strings.Repeat("abcdefgh.", 29) + "example.com", // total > 254
	}
	for _, email := range invalid {
		if v.Validate(email, model.ContactEmail) {
			t.Errorf("Validate(%q) = true, want false", email)
		}
	}
}

func TestValidatePhone(t *testing.T) {
	v := NewValidator("1")

	valid := []string{"+15551234567", "+447911123456", "+1234567"}
	for _, phone := range valid {
		if !v.Validate(phone, model.ContactPhone) {
			t.Errorf("Validate(%q) = false, want true", phone)
		}
	}

	invalid := []string{"", "15551234567", "+123456", "+1234567890123456"}
	for _, phone := range invalid {
		if v.Validate(phone, model.ContactPhone) {
			t.Errorf("Validate(%q) = true, want false", phone)
		}
	}
}

func TestSanitizePhoneNumber(t *testing.T) {
	v := NewValidator("1")

	cases := []struct {
		in   string
		want string
	}{
		{"5551234567", "+15551234567"},
		{"(555) 123-4567", "+15551234567"},
		{"15551234567", "+15551234567"},
		{"+15551234567", "+15551234567"},
		{"+44 7911 123456", "+447911123456"},
		{"447911123456", "+447911123456"},
	}
	for _, tc := range cases {
		got := v.SanitizePhoneNumber(tc.in)
		if got != tc.want {
			t.Errorf("SanitizePhoneNumber(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSanitizePhoneNumberIdempotent(t *testing.T) {
	v := NewValidator("1")

	inputs := []string{"5551234567", "+15551234567", "+44 7911 123456", "911-555-0100"}
	for _, in := range inputs {
		once := v.SanitizePhoneNumber(in)
		twice := v.SanitizePhoneNumber(once)
		if once != twice {
			t.Errorf("sanitize not idempotent for %q: first %q, second %q", in, once, twice)
		}
	}
}

func TestNormalize(t *testing.T) {
	v := NewValidator("1")

	c, err := v.Normalize("  User@Example.COM ", model.ContactEmail)
	if err != nil {
		t.Fatalf("Normalize email failed: %v", err)
	}
	if c.Value != "user@example.com" || c.Kind != model.ContactEmail {
		t.Errorf("unexpected contact: %+v", c)
	}

	c, err = v.Normalize("(555) 123-4567", model.ContactPhone)
	if err != nil {
		t.Fatalf("Normalize phone failed: %v", err)
	}
	if c.Value != "+15551234567" || c.Kind != model.ContactPhone {
		t.Errorf("unexpected contact: %+v", c)
	}

	if _, err := v.Normalize("not-an-email", model.ContactEmail); err == nil {
		t.Error("expected validation error for bad email")
	}
	if _, err := v.Normalize("12", model.ContactPhone); err == nil {
		t.Error("expected validation error for bad phone")
	}
}
