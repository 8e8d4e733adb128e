package idgen

import (
	"regexp"
	"testing"
)

var charset = regexp.MustCompile(`^[a-zA-Z0-9]+$`)

func TestPublicToken_Length(t *testing.T) {
	id, err := PublicToken()
	if err != nil {
		t.Fatalf("PublicToken() error: %v", err)
	}
	if len(id) != PublicLength {
		t.Errorf("PublicToken() length = %d, want %d (id=%q)", len(id), PublicLength, id)
	}
}

func TestModeratorToken_Length(t *testing.T) {
	id, err := ModeratorToken()
	if err != nil {
		t.Fatalf("ModeratorToken() error: %v", err)
	}
	if len(id) != ModeratorLength {
		t.Errorf("ModeratorToken() length = %d, want %d (id=%q)", len(id), ModeratorLength, id)
	}
}

func TestTokens_Charset(t *testing.T) {
	for i := 0; i < 100; i++ {
		pub, mod, err := Pair()
		if err != nil {
			t.Fatalf("Pair() error on iteration %d: %v", i, err)
		}
		for _, id := range []string{pub, mod} {
			if !charset.MatchString(id) {
				t.Fatalf("token %q does not match expected charset pattern", id)
			}
		}
	}
}

func TestPublicToken_Uniqueness(t *testing.T) {
	const count = 10_000
	seen := make(map[string]struct{}, count)
	for i := 0; i < count; i++ {
		id, err := PublicToken()
		if err != nil {
			t.Fatalf("PublicToken() error on iteration %d: %v", i, err)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate token after %d generations: %q", i, id)
		}
		seen[id] = struct{}{}
	}
}

func TestPair_Distinct(t *testing.T) {
	pub, mod, err := Pair()
	if err != nil {
		t.Fatalf("Pair() error: %v", err)
	}
	if pub == mod {
		t.Errorf("Pair() returned identical tokens %q", pub)
	}
}
