// Package utils holds small matching helpers shared by the enforcer and the
// stores.
package utils

import "strings"

// Match reports whether value satisfies pattern. Patterns are how seeded
// grants express breadth: "*" matches anything, and a trailing '*' matches
// any suffix ("posts:*" matches "posts:comments"). Everything else is an
// exact comparison.
func Match(value, pattern string) bool {
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(value, pattern[:len(pattern)-1])
	}
	return value == pattern
}
