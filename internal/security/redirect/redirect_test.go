package redirect

import "testing"

func TestValidate(t *testing.T) {
	t.Parallel()
	allowed := []string{"example.com", "weddary.app"}

	cases := []struct {
		uri  string
		want bool
	}{
		{"https://example.com/cb", true},
		{"https://sub.example.com/cb", true},
		{"http://deep.sub.weddary.app/oauth/callback", true},
		{"https://evil.com/x", false},
		{"https://example.com.evil.com/x", false},   // suffix spoof
		{"https://notexample.com/x", false},         // must match on a dot boundary
		{"javascript:alert(1)", false},
		{"ftp://example.com/x", false},
		{"://bad uri", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := Validate(tc.uri, allowed); got != tc.want {
			t.Fatalf("Validate(%q) = %v, want %v", tc.uri, got, tc.want)
		}
	}
}

func TestValidate_EmptyAllowList(t *testing.T) {
	t.Parallel()
	if Validate("https://example.com/cb", nil) {
		t.Fatalf("no allow-list entries must reject everything")
	}
}
