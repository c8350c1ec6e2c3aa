package mainline

import (
	"github.com/dhtlab/mainline/kbucket"
)

// Secrets holds the two token secrets: tokens are issued against the
// current secret and stay valid for one more rotation via the previous one.
// The token derivation and validation built on these live in the network
// layer; this only owns the rotation.
type Secrets struct {
	current  [HashLength]byte
	previous [HashLength]byte
}

func NewSecrets() (*Secrets, error) {
	s := &Secrets{}

	for _, dst := range [][]byte{s.current[:], s.previous[:]} {
		b, err := kbucket.GenerateRandomBytes(HashLength)
		if err != nil {
			return nil, err
		}
		copy(dst, b)
	}

	return s, nil
}

// Rotate demotes the current secret and draws a fresh one.
func (s *Secrets) Rotate() error {
	b, err := kbucket.GenerateRandomBytes(HashLength)
	if err != nil {
		return err
	}

	s.previous = s.current
	copy(s.current[:], b)

	return nil
}

// Current returns the secret new tokens are issued against.
func (s *Secrets) Current() [HashLength]byte {
	return s.current
}

// Previous returns the demoted secret, still accepted for one interval.
func (s *Secrets) Previous() [HashLength]byte {
	return s.previous
}
