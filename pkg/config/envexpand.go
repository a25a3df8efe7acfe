package config

import "os"

// ExpandEnv expands ${VAR} / $VAR references in raw YAML bytes before
// parsing, using the standard shell-style syntax. Missing variables expand
// to the empty string; validation is responsible for catching the resulting
// empty required fields.
func ExpandEnv(data []byte) []byte {
	return []byte(os.ExpandEnv(string(data)))
}
