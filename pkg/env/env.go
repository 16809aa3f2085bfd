package env

import "os"

// Get returns the value of the given environment variable or a fallback.
func Get(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// InstanceID identifies the running process in logs. Cloud Run sets K_REVISION,
// plain containers usually only have HOSTNAME.
func InstanceID() string {
	if id := os.Getenv("RECEIPTS_INSTANCE_ID"); id != "" {
		return id
	}
	if id := os.Getenv("K_REVISION"); id != "" {
		return id
	}
	return Get("HOSTNAME", "local")
}
