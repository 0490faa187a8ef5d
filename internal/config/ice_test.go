package config

import (
	"strings"
	"testing"
)

func TestParseICEServersJSON(t *testing.T) {
	raw := `[
		{"urls": "stun:stun.l.google.com:19302"},
		{"urls": ["turn:turn.example.com:3478?transport=udp", "turns:turn.example.com:5349"], "username": "u", "credential": "c"}
	]`
	servers, err := ParseICEServersJSON(raw)
	if err != nil {
		t.Fatalf("ParseICEServersJSON: %v", err)
	}
	if len(servers) != 2 {
		t.Fatalf("got %d servers, want 2", len(servers))
	}
	if servers[0].URLs[0] != "stun:stun.l.google.com:19302" {
		t.Fatalf("urls[0]=%q", servers[0].URLs[0])
	}
	if servers[1].Username != "u" {
		t.Fatalf("username=%q, want u", servers[1].Username)
	}
	cred, ok := servers[1].Credential.(string)
	if !ok || cred != "c" {
		t.Fatalf("credential=%v, want c", servers[1].Credential)
	}
}

func TestParseICEServersJSON_AllowsTURNWithoutCreds(t *testing.T) {
	servers, err := ParseICEServersJSON(`[{"urls": "turn:turn.example.com:3478"}]`)
	if err != nil {
		t.Fatalf("ParseICEServersJSON: %v", err)
	}
	if len(servers) != 1 {
		t.Fatalf("got %d servers, want 1", len(servers))
	}
	if !HasTURN(servers) {
		t.Fatalf("expected HasTURN true")
	}
}

func TestParseICEServersJSON_RejectsBadScheme(t *testing.T) {
	_, err := ParseICEServersJSON(`[{"urls": "http://example.com"}]`)
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "unsupported url scheme") {
		t.Fatalf("err=%v", err)
	}
}

func TestParseICEServersJSON_RejectsUsernameWithoutCredential(t *testing.T) {
	_, err := ParseICEServersJSON(`[{"urls": "turn:turn.example.com:3478", "username": "u"}]`)
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
}

func TestConvenienceEnvSTUNAndTURN(t *testing.T) {
	servers, err := parseICEServersFromConvenienceEnv(
		"stun:a.example.com:3478, stun:b.example.com:3478",
		"turn:turn.example.com:3478",
		"user", "pass",
	)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(servers) != 2 {
		t.Fatalf("got %d servers, want 2", len(servers))
	}
	if len(servers[0].URLs) != 2 {
		t.Fatalf("stun urls=%v, want 2 entries", servers[0].URLs)
	}
	if servers[1].Username != "user" {
		t.Fatalf("username=%q", servers[1].Username)
	}
}

func TestConvenienceEnvTURNCredentialPair(t *testing.T) {
	_, err := parseICEServersFromConvenienceEnv("", "turn:turn.example.com:3478", "user", "")
	if err == nil {
		t.Fatalf("expected error, got nil")
	}

	servers, err := parseICEServersFromConvenienceEnv("", "turn:turn.example.com:3478", "", "")
	if err != nil {
		t.Fatalf("credential-less TURN should parse: %v", err)
	}
	if !HasTURN(servers) {
		t.Fatalf("expected HasTURN true")
	}
}

func TestHasTURN(t *testing.T) {
	servers, err := ParseICEServersJSON(`[{"urls": "stun:stun.example.com:3478"}]`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if HasTURN(servers) {
		t.Fatalf("expected HasTURN false for STUN-only list")
	}
}
