package config

import "strings"

// secretKeys are masked by config list and config set output.
var secretKeys = map[string]bool{
	"mail.api_key":   true,
	"telegram.token": true,
}

func IsSecretKey(key string) bool {
	return secretKeys[key]
}

// Flatten turns viper's nested settings into dot-separated keys, e.g.
// {"vault": {"timeout": "30s"}} becomes {"vault.timeout": "30s"}.
func Flatten(m map[string]any) map[string]any {
	out := make(map[string]any)
	var walk func(prefix string, node map[string]any)
	walk = func(prefix string, node map[string]any) {
		for k, v := range node {
			if prefix != "" {
				k = prefix + "." + k
			}
			if child, ok := v.(map[string]any); ok {
				walk(k, child)
				continue
			}
			out[k] = v
		}
	}
	walk("", m)
	return out
}

// Unflatten is the inverse of Flatten. A leaf in the way of a deeper key
// is replaced by a section.
func Unflatten(flat map[string]any) map[string]any {
	out := make(map[string]any)
	for key, v := range flat {
		setPath(out, strings.Split(key, "."), v)
	}
	return out
}

func setPath(node map[string]any, path []string, v any) {
	for _, section := range path[:len(path)-1] {
		child, ok := node[section].(map[string]any)
		if !ok {
			child = make(map[string]any)
			node[section] = child
		}
		node = child
	}
	node[path[len(path)-1]] = v
}

// MaskSecrets copies flat, showing only the last four characters of
// non-empty secrets.
func MaskSecrets(flat map[string]any) map[string]any {
	out := make(map[string]any, len(flat))
	for k, v := range flat {
		out[k] = v
		if s, ok := v.(string); ok && s != "" && secretKeys[k] {
			out[k] = "***" + s[max(0, len(s)-4):]
		}
	}
	return out
}
