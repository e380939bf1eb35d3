package middleware

import "strings"

// routeOther labels paths that match no known route.
const routeOther = "other"

// knownRoutes are the route templates used as metric labels and span names.
// "{id}" matches any single non-empty segment.
var knownRoutes = []string{
	"/",
	"/health",
	"/ready",
	"/metrics",
	"/v1/recommendations",
	"/v1/recommendations/{id}/explanation",
}

// routeOf maps a request path onto its route template. Unknown paths
// collapse into routeOther so scanners cannot inflate label cardinality.
func routeOf(path string) string {
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	for _, tmpl := range knownRoutes {
		if matchRoute(tmpl, path) {
			return tmpl
		}
	}
	return routeOther
}

func matchRoute(tmpl, path string) bool {
	if !strings.Contains(tmpl, "{") {
		return tmpl == path
	}
	want := strings.Split(tmpl, "/")
	got := strings.Split(path, "/")
	if len(want) != len(got) {
		return false
	}
	for i := range want {
		if strings.HasPrefix(want[i], "{") {
			if got[i] == "" {
				return false
			}
			continue
		}
		if want[i] != got[i] {
			return false
		}
	}
	return true
}
