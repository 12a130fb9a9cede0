package validation

import "testing"

func TestIsValidEmail(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"buyer@example.com", true},
		{"a@b.co", true},
		{"no-at-sign", false},
		{"two@@example.com", false},
		{"spaces in@example.com", false},
		{"", false},
	}
	for _, c := range cases {
		if got := IsValidEmail(c.in); got != c.want {
			t.Errorf("IsValidEmail(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestIsValidCurrency(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"USD", true},
		{"EUR", true},
		{"usd", false},
		{"USDT", false},
		{"", false},
	}
	for _, c := range cases {
		if got := IsValidCurrency(c.in); got != c.want {
			t.Errorf("IsValidCurrency(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestValidate_CollectsErrors(t *testing.T) {
	errs := Validate(
		Required("user_id", ""),
		PositiveAmount("amount", 0),
		PositiveQuantity("quantity", 2),
		ValidEmail("email", "not-an-email"),
	)
	if len(errs) != 3 {
		t.Fatalf("expected 3 errors, got %d: %v", len(errs), errs)
	}
	if errs.Error() != "user_id: is required" {
		t.Errorf("unexpected Error(): %q", errs.Error())
	}
}

func TestValidate_AllPass(t *testing.T) {
	errs := Validate(
		Required("user_id", "usr_1"),
		PositiveAmount("amount", 10000),
		NonNegativeAmount("fee", 0),
		ValidCurrency("currency", "USD"),
	)
	if len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}
}

func TestSanitizeString(t *testing.T) {
	got := SanitizeString("  hello\x00world  ", 8)
	if got != "hellowo" {
		t.Errorf("SanitizeString = %q", got)
	}
}
