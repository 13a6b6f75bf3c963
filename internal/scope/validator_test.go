package scope

import "testing"

func TestValidateTarget(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want bool
	}{
		{"private_class_a", "10.1.2.3", true},
		{"private_class_b", "172.16.5.6", true},
		{"private_class_c", "192.168.1.1", true},
		{"loopback", "127.0.0.1", true},
		{"lab_hostname", "scanner.lab.internal", true},
		{"public_ip", "8.8.8.8", false},
		{"public_hostname", "example.com", false},
		{"empty", "", false},
		{"private_cidr", "192.168.0.0/24", true},
		{"public_cidr", "8.8.8.0/24", false},
		{"non_ipv4_cidr_shaped", "10.0.0.0/not-a-mask", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ok, reason := ValidateTarget(tc.in)
			if ok != tc.want {
				t.Fatalf("ValidateTarget(%q) = %v (%q), want %v", tc.in, ok, reason, tc.want)
			}
			if !ok && reason == "" {
				t.Fatalf("ValidateTarget(%q) rejected with empty reason", tc.in)
			}
		})
	}
}

func TestValidateHostFromURL(t *testing.T) {
	ok, _ := ValidateHostFromURL("192.168.1.10:8080")
	if !ok {
		t.Fatal("expected private host with port to validate")
	}
	ok, _ = ValidateHostFromURL("evil.example.com:443")
	if ok {
		t.Fatal("expected public host to be rejected")
	}
}

func TestNetworkSize(t *testing.T) {
	size, err := NetworkSize("192.168.0.0/24")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if size != 256 {
		t.Fatalf("got %d, want 256", size)
	}
	if _, err := NetworkSize("not-a-cidr"); err == nil {
		t.Fatal("expected error for malformed CIDR")
	}
}

func TestSuggestPrefixForSize(t *testing.T) {
	if p := SuggestPrefixForSize(256); p != 24 {
		t.Fatalf("got /%d, want /24", p)
	}
	if p := SuggestPrefixForSize(1); p != 32 {
		t.Fatalf("got /%d, want /32", p)
	}
}
