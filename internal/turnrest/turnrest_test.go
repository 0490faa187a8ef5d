package turnrest

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"strings"
	"testing"
	"time"
)

func fixedNow() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func newTestGenerator(t *testing.T) *Generator {
	t.Helper()
	g, err := NewGenerator(GeneratorConfig{
		SharedSecret:   "north-remembers",
		TTLSeconds:     600,
		UsernamePrefix: "roomsignal",
		Now:            fixedNow,
	})
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	return g
}

func TestGenerateMatchesCoturnAlgorithm(t *testing.T) {
	g := newTestGenerator(t)

	creds, err := g.Generate("conn-abc123")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	wantExpiry := fixedNow().Unix() + 600
	if creds.ExpiryUnix != wantExpiry {
		t.Fatalf("ExpiryUnix=%d, want %d", creds.ExpiryUnix, wantExpiry)
	}

	wantUsername := "1748779800:roomsignal:conn-abc123"
	if creds.Username != wantUsername {
		t.Fatalf("Username=%q, want %q", creds.Username, wantUsername)
	}

	mac := hmac.New(sha1.New, []byte("north-remembers"))
	mac.Write([]byte(wantUsername))
	wantCred := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	if creds.Credential != wantCred {
		t.Fatalf("Credential=%q, want %q", creds.Credential, wantCred)
	}
}

func TestGenerateRejectsColonInConnID(t *testing.T) {
	g := newTestGenerator(t)
	if _, err := g.Generate("bad:id"); err == nil {
		t.Fatalf("expected error, got nil")
	}
}

func TestGenerateRejectsEmptyConnID(t *testing.T) {
	g := newTestGenerator(t)
	if _, err := g.Generate(""); err == nil {
		t.Fatalf("expected error, got nil")
	}
}

func TestGenerateRandomUsesConnIDSource(t *testing.T) {
	g, err := NewGenerator(GeneratorConfig{
		SharedSecret:   "s",
		TTLSeconds:     60,
		UsernamePrefix: "roomsignal",
		Now:            fixedNow,
		ConnIDSource:   func() (string, error) { return "deadbeef", nil },
	})
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	creds, err := g.GenerateRandom()
	if err != nil {
		t.Fatalf("GenerateRandom: %v", err)
	}
	if !strings.HasSuffix(creds.Username, ":roomsignal:deadbeef") {
		t.Fatalf("Username=%q, want suffix :roomsignal:deadbeef", creds.Username)
	}
}

func TestNewGeneratorValidation(t *testing.T) {
	cases := []struct {
		name string
		cfg  GeneratorConfig
	}{
		{"empty secret", GeneratorConfig{TTLSeconds: 60, UsernamePrefix: "p"}},
		{"zero ttl", GeneratorConfig{SharedSecret: "s", UsernamePrefix: "p"}},
		{"negative ttl", GeneratorConfig{SharedSecret: "s", TTLSeconds: -1, UsernamePrefix: "p"}},
		{"empty prefix", GeneratorConfig{SharedSecret: "s", TTLSeconds: 60}},
		{"colon in prefix", GeneratorConfig{SharedSecret: "s", TTLSeconds: 60, UsernamePrefix: "a:b"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewGenerator(tc.cfg); err == nil {
				t.Fatalf("expected error, got nil")
			}
		})
	}
}
