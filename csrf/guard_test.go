package csrf

import "testing"

func TestValidateMatchingPair(t *testing.T) {
	secret := "b0hPQkJpZ1NlY3JldFZhbHVl"
	if !Validate(secret, secret, secret) {
		t.Fatal("expected matching header and cookie to validate")
	}
}

func TestValidateRejectsMismatch(t *testing.T) {
	secret := "the-session-secret"

	cases := []struct {
		name   string
		header string
		cookie string
	}{
		{"wrong header", "forged-value", secret},
		{"wrong cookie", secret, "forged-value"},
		{"both wrong but equal", "forged-value", "forged-value"},
		{"empty header", "", secret},
		{"empty cookie", secret, ""},
		{"all empty", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if Validate(tc.header, tc.cookie, secret) {
				t.Fatal("expected validation to fail")
			}
		})
	}
}

func TestValidateRejectsEmptySecret(t *testing.T) {
	if Validate("x", "x", "") {
		t.Fatal("a session without a secret must never validate")
	}
}
