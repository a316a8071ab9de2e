package bookmyshow

// ValidMobile reports whether v is exactly ten ASCII digits.
func ValidMobile(v string) bool {
	if len(v) != 10 {
		return false
	}
	for i := 0; i < len(v); i++ {
		if v[i] < '0' || v[i] > '9' {
			return false
		}
	}
	return true
}

// MaskMobile replaces every character but the last two with '*'.
func MaskMobile(v string) string {
	r := []rune(v)
	for i := 0; i < len(r)-2; i++ {
		r[i] = '*'
	}
	return string(r)
}
