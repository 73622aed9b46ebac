// Package metrics owns the Prometheus collectors shared by the binaries.
package metrics

const namespace = "simcheck"

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
