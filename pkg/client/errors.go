package client

import (
	"errors"

	"ares/go-client/pkg/provider"
)

var (
	// ErrNotInitialized is returned by operations that need Init first. It is
	// the same value providers report before their own Init.
	ErrNotInitialized = provider.ErrNotInitialized

	ErrProviderNotFound     = errors.New("provider not found")
	ErrDuplicateProvider    = errors.New("provider registered twice")
	ErrCallbackUnsupported  = errors.New("provider does not accept external callbacks")
	ErrConnectThrottled     = errors.New("connect attempts throttled")
	ErrCanisterDoesNotExist = errors.New("canister does not exist")
	ErrAgentNotDefined      = errors.New("no agent configured for canister and no default agent")
)
