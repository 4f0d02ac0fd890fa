package manifest

import "strings"

// ModuleName converts a dependency name into an identifier usable after
// import: "my-lib" -> "my_lib", "2d" -> "_2d".
func ModuleName(s string) string {
	var b strings.Builder
	for i, r := range s {
		switch {
		case r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// reservedModules lists names a dependency cannot be imported as: the
// built-in modules and the core classes bound as globals.
var reservedModules = map[string]bool{
	"os":                 true,
	"math":               true,
	"io":                 true,
	"Object":             true,
	"String":             true,
	"Number":             true,
	"Array":              true,
	"Dictionary":         true,
	"Range":              true,
	"File":               true,
	"Function":           true,
	"Exception":          true,
	"ArgumentError":      true,
	"TypeError":          true,
	"IOError":            true,
	"AssertionError":     true,
	"IndexError":         true,
	"KeyError":           true,
	"ValueError":         true,
	"StackOverflowError": true,
	"STDIN":              true,
	"STDOUT":             true,
	"STDERR":             true,
	"ARGV":               true,
	"ENV":                true,
}

// IsReservedModule reports whether name would shadow a built-in module or
// core global when used as an import name.
func IsReservedModule(name string) bool {
	return reservedModules[name]
}
