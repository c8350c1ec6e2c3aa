package kbucket

import (
	"crypto/rand"
	"crypto/sha1"
	"net/netip"
)

// CompareAddrPorts compares two netip.AddrPorts, unmapping IPv4-in-IPv6
// addresses so the two representations of the same endpoint compare equal.
func CompareAddrPorts(a, b netip.AddrPort) bool {
	return a.Addr().Unmap().Compare(b.Addr().Unmap()) == 0 && a.Port() == b.Port()
}

// GenerateId generates a random 160-bit id (SHA-1 over random bytes).
// It returns an error only if the system's secure random number generator
// fails, in which case the caller should not continue.
func GenerateId() ([]byte, error) {
	b, err := GenerateRandomBytes(20)
	if err != nil {
		return nil, err
	}

	h := sha1.New()
	h.Write(b)

	return h.Sum(nil), nil
}

// GenerateRandomBytes returns securely generated random bytes.
// It returns an error only if the system's secure random number generator
// fails, in which case the caller should not continue.
func GenerateRandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}

	return b, nil
}
