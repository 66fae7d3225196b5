package wireberry

import "testing"

func TestCurrentVersion(t *testing.T) {
	v := CurrentVersion()
	if v.Major != ProtocolVersionMajor || v.Minor != ProtocolVersionMinor {
		t.Errorf("CurrentVersion() = %s, want %d.%d", v, ProtocolVersionMajor, ProtocolVersionMinor)
	}
}

func TestProtocolVersion_String(t *testing.T) {
	v := ProtocolVersion{Major: 1, Minor: 4}
	if got := v.String(); got != "1.4" {
		t.Errorf("String() = %q, want \"1.4\"", got)
	}
}

func TestProtocolVersion_Compatible(t *testing.T) {
	tests := []struct {
		name string
		a, b ProtocolVersion
		want bool
	}{
		{"equal versions", ProtocolVersion{1, 0}, ProtocolVersion{1, 0}, true},
		{"newer minor peer", ProtocolVersion{1, 0}, ProtocolVersion{1, 3}, true},
		{"older minor peer", ProtocolVersion{1, 3}, ProtocolVersion{1, 0}, true},
		{"major mismatch", ProtocolVersion{1, 0}, ProtocolVersion{2, 0}, false},
		{"major mismatch reversed", ProtocolVersion{2, 0}, ProtocolVersion{1, 9}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Compatible(tt.b); got != tt.want {
				t.Errorf("%s.Compatible(%s) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestProtocolVersion_IsNewer(t *testing.T) {
	tests := []struct {
		a, b ProtocolVersion
		want bool
	}{
		{ProtocolVersion{2, 0}, ProtocolVersion{1, 9}, true},
		{ProtocolVersion{1, 2}, ProtocolVersion{1, 1}, true},
		{ProtocolVersion{1, 1}, ProtocolVersion{1, 1}, false},
		{ProtocolVersion{1, 0}, ProtocolVersion{1, 1}, false},
	}

	for _, tt := range tests {
		if got := tt.a.IsNewer(tt.b); got != tt.want {
			t.Errorf("%s.IsNewer(%s) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		input   string
		want    ProtocolVersion
		wantErr bool
	}{
		{"1.0", ProtocolVersion{1, 0}, false},
		{"2.15", ProtocolVersion{2, 15}, false},
		{"abc", ProtocolVersion{}, true},
		{"", ProtocolVersion{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseVersion(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseVersion(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && !got.Equal(tt.want) {
				t.Errorf("ParseVersion(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}
