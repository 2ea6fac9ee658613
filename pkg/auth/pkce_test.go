package auth

import "testing"

func TestChallengeS256(t *testing.T) {
	// Appendix B of RFC 7636.
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	want := "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
	if got := challengeS256(verifier); got != want {
		t.Errorf("challengeS256() = %q, want %q", got, want)
	}
}

func TestNewPKCE(t *testing.T) {
	a, err := newPKCE()
	if err != nil {
		t.Fatalf("newPKCE() error = %v", err)
	}
	b, err := newPKCE()
	if err != nil {
		t.Fatal(err)
	}

	if a.Verifier == "" || a.Challenge == "" || a.Nonce == "" || a.State == "" {
		t.Errorf("incomplete material: %+v", a)
	}
	if a.Verifier == b.Verifier || a.Nonce == b.Nonce || a.State == b.State {
		t.Error("material must be fresh per attempt")
	}
	if a.Challenge != challengeS256(a.Verifier) {
		t.Error("challenge does not match verifier")
	}
}
