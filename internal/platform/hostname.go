// Package platform wraps the handful of OS-level facts the core needs,
// named as external collaborators in spec §6.
package platform

import "os"

// GetHostName returns the OS hostname, unless override (from
// config.nvhttp.sunshine_name) is non-empty, in which case override wins.
func GetHostName(override string) string {
	if override != "" {
		return override
	}
	name, err := os.Hostname()
	if err != nil || name == "" {
		return "starbeam-host"
	}
	return name
}
