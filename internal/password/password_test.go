package password

import (
	"strings"
	"testing"
)

func TestHashVerifyRoundTrip(t *testing.T) {
	hasher := NewHasher()

	for _, plaintext := range []string{"pw123", "correct horse battery staple", "p@sswörd✓", ""} {
		digest, err := hasher.Hash(plaintext)
		if err != nil {
			t.Fatalf("hash %q: %v", plaintext, err)
		}
		if !strings.HasPrefix(digest, "$argon2id$") {
			t.Fatalf("unexpected digest format: %q", digest)
		}
		if !hasher.Verify(digest, plaintext) {
			t.Fatalf("verify rejected the original plaintext %q", plaintext)
		}
	}
}

func TestVerifyRejectsWrongPassword(t *testing.T) {
	hasher := NewHasher()

	digest, err := hasher.Hash("pw123")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	for _, wrong := range []string{"pw124", "PW123", "pw123 ", ""} {
		if hasher.Verify(digest, wrong) {
			t.Fatalf("verify accepted wrong password %q", wrong)
		}
	}
}

func TestVerifyMalformedDigestReturnsFalse(t *testing.T) {
	hasher := NewHasher()

	digests := []string{
		"",
		"not a digest",
		"$argon2id$v=19$m=65536,t=1,p=4$short",
		"$argon2id$v=19$m=65536,t=1,p=4$!!!$AAAA",
		"$bcrypt$v=19$m=65536,t=1,p=4$AAAA$AAAA",
		"$argon2id$v=18$m=65536,t=1,p=4$AAAA$AAAA",
		"$argon2id$v=19$m=0,t=0,p=0$AAAA$AAAA",
	}
	for _, digest := range digests {
		if hasher.Verify(digest, "pw123") {
			t.Fatalf("verify accepted malformed digest %q", digest)
		}
	}
}

func TestHashUsesFreshSaltPerCall(t *testing.T) {
	hasher := NewHasher()

	first, err := hasher.Hash("pw123")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	second, err := hasher.Hash("pw123")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if first == second {
		t.Fatalf("two hashes of the same password were identical")
	}
}
