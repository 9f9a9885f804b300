package integrity

import "testing"

func TestNewKeyringValidation(t *testing.T) {
	if _, err := NewKeyring(nil, "v1"); err == nil {
		t.Fatal("expected error for missing keys")
	}
	if _, err := NewKeyring(map[string][]byte{"v1": []byte("secret")}, ""); err == nil {
		t.Fatal("expected error for missing active key id")
	}
	if _, err := NewKeyring(map[string][]byte{"v1": []byte("secret")}, "v2"); err == nil {
		t.Fatal("expected error for unknown active key id")
	}
}

func TestSignAndVerify(t *testing.T) {
	ring, err := NewKeyring(map[string][]byte{"v1": []byte("secret")}, "v1")
	if err != nil {
		t.Fatalf("new keyring: %v", err)
	}
	sig, keyID, err := ring.Sign("s1", "chain")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if keyID != "v1" {
		t.Fatalf("key id = %s", keyID)
	}
	if err := ring.Verify("s1", "chain", sig, keyID); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if err := ring.Verify("s2", "chain", sig, keyID); err == nil {
		t.Fatal("signatures are bound to the season")
	}
	if err := ring.Verify("s1", "other", sig, keyID); err == nil {
		t.Fatal("expected mismatch for a different chain hash")
	}
	if err := ring.Verify("s1", "chain", sig, "v9"); err == nil {
		t.Fatal("expected error for unknown key id")
	}
	if _, _, err := ring.Sign(" ", "chain"); err == nil {
		t.Fatal("expected error for empty season id")
	}
}

func TestRotatedKeysStillVerify(t *testing.T) {
	old, _ := NewKeyring(map[string][]byte{"v1": []byte("old")}, "v1")
	sig, keyID, _ := old.Sign("s1", "chain")

	rotated, err := NewKeyring(map[string][]byte{"v1": []byte("old"), "v2": []byte("new")}, "v2")
	if err != nil {
		t.Fatalf("new keyring: %v", err)
	}
	if err := rotated.Verify("s1", "chain", sig, keyID); err != nil {
		t.Fatalf("verify with retired key: %v", err)
	}
	if _, id, _ := rotated.Sign("s1", "chain"); id != "v2" {
		t.Fatalf("active key = %s", id)
	}
}

func TestNilKeyring(t *testing.T) {
	var ring *Keyring
	if ring.ActiveKeyID() != "" {
		t.Fatal("nil keyring has no active key")
	}
	if _, _, err := ring.Sign("s1", "chain"); err == nil {
		t.Fatal("expected error from nil keyring")
	}
}
