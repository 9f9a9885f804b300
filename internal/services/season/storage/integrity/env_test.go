package integrity

import "testing"

func TestKeyringFromEnvSingleKey(t *testing.T) {
	t.Setenv("OUTLAST_SEASON_EVENT_HMAC_KEYS", "")
	t.Setenv("OUTLAST_SEASON_EVENT_HMAC_KEY", "secret")
	t.Setenv("OUTLAST_SEASON_EVENT_HMAC_KEY_ID", "")

	ring, err := KeyringFromEnv()
	if err != nil {
		t.Fatalf("keyring from env: %v", err)
	}
	if ring.ActiveKeyID() != "v1" {
		t.Fatalf("active key = %s", ring.ActiveKeyID())
	}
}

func TestKeyringFromEnvKeyList(t *testing.T) {
	t.Setenv("OUTLAST_SEASON_EVENT_HMAC_KEYS", "v1=old, v2=new")
	t.Setenv("OUTLAST_SEASON_EVENT_HMAC_KEY_ID", "v2")

	ring, err := KeyringFromEnv()
	if err != nil {
		t.Fatalf("keyring from env: %v", err)
	}
	if ring.ActiveKeyID() != "v2" {
		t.Fatalf("active key = %s", ring.ActiveKeyID())
	}
}

func TestEnvKeyringErrors(t *testing.T) {
	tests := []struct {
		name string
		env  Env
	}{
		{name: "nothing configured", env: Env{}},
		{name: "malformed entry", env: Env{Keys: "v1"}},
		{name: "empty secret", env: Env{Keys: "v1="}},
		{name: "active key missing", env: Env{Keys: "v1=a", KeyID: "v2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.env.Keyring(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
