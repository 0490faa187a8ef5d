package origin

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		in       string
		want     string
		wantHost string
		wantOK   bool
	}{
		{"https://example.com", "https://example.com", "example.com", true},
		{"https://Example.COM", "https://example.com", "example.com", true},
		{"http://example.com:80", "http://example.com", "example.com", true},
		{"https://example.com:443", "https://example.com", "example.com", true},
		{"https://example.com:8443", "https://example.com:8443", "example.com:8443", true},
		{"http://localhost:3000", "http://localhost:3000", "localhost:3000", true},
		{"http://[::1]:3000", "http://[::1]:3000", "[::1]:3000", true},
		{"null", "null", "", true},
		{"  https://example.com  ", "https://example.com", "example.com", true},

		{"", "", "", false},
		{"example.com", "", "", false},
		{"ftp://example.com", "", "", false},
		{"https://example.com/path", "", "", false},
		{"https://example.com?x=1", "", "", false},
		{"https://user@example.com", "", "", false},
		{"https://example.com:0", "", "", false},
		{"https://example.com:99999", "", "", false},
		{"https://[::1", "", "", false},
	}
	for _, tt := range tests {
		got, gotHost, ok := Normalize(tt.in)
		if ok != tt.wantOK || got != tt.want || gotHost != tt.wantHost {
			t.Errorf("Normalize(%q)=(%q,%q,%v), want (%q,%q,%v)",
				tt.in, got, gotHost, ok, tt.want, tt.wantHost, tt.wantOK)
		}
	}
}

func TestAllowed_Allowlist(t *testing.T) {
	allowlist := []string{"https://app.example.com", "http://localhost:3000"}

	if !Allowed("https://app.example.com", "app.example.com", "relay.internal", allowlist) {
		t.Fatalf("allowlisted origin rejected")
	}
	if Allowed("https://evil.example.com", "evil.example.com", "relay.internal", allowlist) {
		t.Fatalf("non-allowlisted origin accepted")
	}
	if !Allowed("https://anything.example", "anything.example", "relay.internal", []string{"*"}) {
		t.Fatalf("wildcard allowlist rejected an origin")
	}
}

func TestAllowed_SameHostDefault(t *testing.T) {
	if !Allowed("https://example.com", "example.com", "example.com", nil) {
		t.Fatalf("same-host origin rejected")
	}
	// Default port equivalence: request Host carries the explicit default.
	if !Allowed("https://example.com", "example.com", "example.com:443", nil) {
		t.Fatalf("origin rejected for request host with default port")
	}
	if Allowed("https://other.com", "other.com", "example.com", nil) {
		t.Fatalf("cross-host origin accepted under default policy")
	}
	if Allowed("null", "", "example.com", nil) {
		t.Fatalf("null origin accepted under default policy")
	}
}
