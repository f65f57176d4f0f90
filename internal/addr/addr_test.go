package addr

import "testing"

func TestIPVersion(t *testing.T) {
	tests := []struct {
		addr string
		want Version
	}{
		{"10.1.5.0", V4},
		{"255.255.255.255", V4},
		{"256.1.1.1", Invalid}, // octet out of range, rejected per spec Open Questions
		{"2001:db8::1", V6},
		{"::1", V6},
		{"fe80::1%eth0", V6},
		{"::ffff:1.2.3.4", V6}, // embedded-v4 textual form stays v6 per spec §4.1
		{"not-an-address", Invalid},
		{"", Invalid},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			if got := IPVersion(tt.addr); got != tt.want {
				t.Errorf("IPVersion(%q) = %v, want %v", tt.addr, got, tt.want)
			}
		})
	}
}

func TestValidatePrefix(t *testing.T) {
	tests := []struct {
		prefix  string
		wantErr bool
	}{
		{"10.1.5.0/24", false},
		{"0.0.0.0/0", false},
		{"10.1.5.0/32", false},
		{"10.1.5.0/33", true},
		{"2001:db8::/32", false},
		{"2001:db8::/128", false},
		{"2001:db8::/129", true},
		{"130.128.255.5/32", false},
		{"::ffff:1.2.3.4/128", false}, // embedded-v4 takes the v6 mask bound, not /32
		{"::ffff:1.2.3.4/33", false},  // only rejected past 128, since it's classified v6
		{"not-a-prefix", true},
		{"10.1.5.0", true}, // missing mask length
		{"10.1.5.0/abc", true},
		{"10.1.5.0/-1", true},
	}

	for _, tt := range tests {
		t.Run(tt.prefix, func(t *testing.T) {
			err := ValidatePrefix(tt.prefix)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePrefix(%q) error = %v, wantErr %v", tt.prefix, err, tt.wantErr)
			}
		})
	}
}
