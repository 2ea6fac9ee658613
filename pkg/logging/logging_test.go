package logging

import "testing"

func TestObfuscateEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"johndoe@example.com", "j*****e@example.com"},
		{"ab@example.com", "**@example.com"},
		{"a@example.com", "*@example.com"},
		{"not-an-email", "********"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := ObfuscateEmail(tt.in); got != tt.want {
			t.Errorf("ObfuscateEmail(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestObfuscateToken(t *testing.T) {
	if got := ObfuscateToken("eyJhbGciOiJSUzI1NiJ9"); got != "eyJh...NiJ9" {
		t.Errorf("ObfuscateToken() = %q, want eyJh...NiJ9", got)
	}
	if got := ObfuscateToken("short"); got != "****" {
		t.Errorf("ObfuscateToken(short) = %q, want ****", got)
	}
}
