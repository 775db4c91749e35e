package util

import (
	"html"
	"strings"
)

// SanitizeInput trims whitespace and escapes HTML/script-like characters.
func SanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return html.EscapeString(s)
}

func ContainsSuspicious(s string) bool {
	badChars := []string{"<", ">", "$", "{", "}", "script", "onerror", "onload"}
	lower := strings.ToLower(s)
	for _, c := range badChars {
		if strings.Contains(lower, c) {
			return true
		}
	}
	return false
}

// ValidatePhone accepts a 10-digit Indian mobile number.
func ValidatePhone(phone string) bool {
	if len(phone) != 10 {
		return false
	}
	for _, r := range phone {
		if r < '0' || r > '9' {
			return false
		}
	}
	// Indian mobile numbers start with 6-9
	return phone[0] >= '6' && phone[0] <= '9'
}

// ValidateAadhaar checks the 12-digit format plus the weighted checksum:
// alternating weights 1,2 over the first 11 digits, products above 9
// reduced by 9, and (10 - total mod 10) mod 10 must equal the final digit.
func ValidateAadhaar(aadhaar string) bool {
	if len(aadhaar) != 12 {
		return false
	}
	for _, r := range aadhaar {
		if r < '0' || r > '9' {
			return false
		}
	}

	total := 0
	for i := 0; i < 11; i++ {
		d := int(aadhaar[i] - '0')
		if i%2 == 1 {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		total += d
	}
	checksum := (10 - total%10) % 10
	return checksum == int(aadhaar[11]-'0')
}
