package registry

import "testing"

func TestParseChallenge(t *testing.T) {
	ch, err := parseChallenge(`Bearer realm="https://auth.docker.io/token",service="registry.docker.io"`)
	if err != nil {
		t.Fatalf("parseChallenge: %v", err)
	}
	if ch.realm != "https://auth.docker.io/token" {
		t.Fatalf("realm = %q", ch.realm)
	}
	if ch.service != "registry.docker.io" {
		t.Fatalf("service = %q", ch.service)
	}
}

func TestParseChallengeRealmOnly(t *testing.T) {
	ch, err := parseChallenge(`Bearer realm="http://127.0.0.1:5000/token"`)
	if err != nil {
		t.Fatalf("parseChallenge: %v", err)
	}
	if ch.realm != "http://127.0.0.1:5000/token" {
		t.Fatalf("realm = %q", ch.realm)
	}
	if ch.service != "" {
		t.Fatalf("service = %q, want empty", ch.service)
	}
}

func TestParseChallengeRejectsOtherSchemes(t *testing.T) {
	if _, err := parseChallenge(`Basic realm="registry"`); err == nil {
		t.Fatal("accepted a Basic challenge")
	}
}

func TestParseChallengeRequiresRealm(t *testing.T) {
	if _, err := parseChallenge(`Bearer service="registry.docker.io"`); err == nil {
		t.Fatal("accepted a challenge without a realm")
	}
}
