package main

import (
	"os"
	"strings"
)

// dephealthName возвращает имя для метки name в topologymetrics:
// DEPHEALTH_NAME или имя владельца пода, выведенное из hostname.
func dephealthName(configured string) string {
	if configured != "" {
		return configured
	}
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		return "docstore"
	}
	return parseOwnerName(hostname)
}

// parseOwnerName извлекает имя Deployment или StatefulSet из hostname пода.
//   - Deployment: <name>-<replicaset hash>-<pod suffix>
//   - StatefulSet: <name>-<ordinal>
//
// Если формат не распознан, hostname возвращается как есть.
func parseOwnerName(hostname string) string {
	parts := strings.Split(hostname, "-")
	n := len(parts)

	if n >= 3 && len(parts[n-1]) == 5 && isAlnum(parts[n-1]) &&
		len(parts[n-2]) >= 6 && len(parts[n-2]) <= 10 && isAlnum(parts[n-2]) {
		return strings.Join(parts[:n-2], "-")
	}

	if n >= 2 && isDigits(parts[n-1]) {
		return strings.Join(parts[:n-1], "-")
	}

	return hostname
}

func isAlnum(s string) bool {
	for _, c := range s {
		if !((c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')) {
			return false
		}
	}
	return s != ""
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return s != ""
}
