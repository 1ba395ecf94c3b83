// Package template implements {{name}} placeholder substitution for stored
// message templates. It is shared by command replies and outbound campaigns.
package template

import "regexp"

var placeholderRe = regexp.MustCompile(`\{\{([A-Za-z0-9_]+)\}\}`)

// Render replaces every {{key}} occurrence whose key is present in vars with
// its value. Occurrences of absent keys, and malformed tokens, are left
// verbatim rather than treated as errors; callers needing strict validation
// must pre-check required keys themselves. This leniency allows multi-stage
// pipelines to substitute in passes.
func Render(body string, vars map[string]string) string {
	if len(vars) == 0 {
		return body
	}

	return placeholderRe.ReplaceAllStringFunc(body, func(token string) string {
		key := token[2 : len(token)-2]
		if value, ok := vars[key]; ok {
			return value
		}
		return token
	})
}
