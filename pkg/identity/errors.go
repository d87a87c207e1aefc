package identity

import "errors"

var (
	ErrKeyFormat         = errors.New("malformed key pair")
	ErrInvalidMnemonic   = errors.New("invalid mnemonic")
	ErrInvalidPrincipal  = errors.New("invalid principal")
	ErrInvalidDelegation = errors.New("invalid delegation chain")
	ErrDelegationExpired = errors.New("delegation chain expired")
	ErrChainNotBound     = errors.New("delegation chain does not target session key")
)
