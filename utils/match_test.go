package utils

import "testing"

func TestMatch(t *testing.T) {
	cases := []struct {
		value, pattern string
		want           bool
	}{
		{"posts", "posts", true},
		{"posts", "files", false},
		{"posts", "*", true},
		{"", "*", true},
		{"posts", "post*", true},
		{"posts", "posts*", true},
		{"post", "posts*", false},
		{"", "", true},
		{"posts", "", false},
	}
	for _, tc := range cases {
		if got := Match(tc.value, tc.pattern); got != tc.want {
			t.Fatalf("Match(%q, %q) = %v, want %v", tc.value, tc.pattern, got, tc.want)
		}
	}
}
