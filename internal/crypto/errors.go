package crypto

import "errors"

var (
	ErrNonFiniteNumber = errors.New("NaN and infinite numbers cannot be canonicalized")
	ErrInvalidNumber   = errors.New("invalid json number")
	ErrNonStringMapKey = errors.New("map keys must be strings")
	ErrUnsupportedType = errors.New("unsupported type for canonicalization")
	ErrKeyCollision    = errors.New("normalized map key collision")
	ErrTokenSize       = errors.New("token must be at least 16 bytes")
)
