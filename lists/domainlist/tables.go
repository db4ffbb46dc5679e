package domainlist

// dnsTolower mirrors the original dns_tolower lookup table: uppercase maps
// to lowercase, everything else (including the NUL terminator) is
// unchanged.
func dnsTolower(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b + ('a' - 'A')
	}
	return b
}

// dnsTohostOK mirrors dns_tohost: the set of bytes a domain name label may
// contain once normalized. Anything else is "junk" handled per load flags.
func dnsTohostOK(b byte) bool {
	switch {
	case b >= '0' && b <= '9':
		return true
	case b >= 'a' && b <= 'z':
		return true
	case b >= 'A' && b <= 'Z':
		return true
	case b == '-' || b == '.' || b == '_':
		return true
	default:
		return false
	}
}
