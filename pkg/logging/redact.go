package logging

import "strings"

// MaskEmail keeps the first character of the local part and the domain,
// e.g. "o***@clinic.example".
func MaskEmail(addr string) string {
	at := strings.LastIndex(addr, "@")
	if at <= 0 {
		return "***"
	}
	return addr[:1] + "***" + addr[at:]
}
