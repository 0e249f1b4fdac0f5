package instance

import "os"

// GetID identifies this API replica, e.g. to drop its own cart signals when
// they echo back over Redis pub/sub.
func GetID() string {
	if id := os.Getenv("WEBSTORE_INSTANCE_ID"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "api-0"
}
