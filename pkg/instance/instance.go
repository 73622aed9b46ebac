package instance

import "os"

// ID names the running process in logs. SIMCHECK_INSTANCE_ID wins, then the
// host name, then "<service>-0".
func ID(service string) string {
	if id := os.Getenv("SIMCHECK_INSTANCE_ID"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return service + "-0"
}
