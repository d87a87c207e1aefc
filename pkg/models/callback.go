package models

import (
	"net/url"
	"strings"
)

// CallbackParams is the payload an identity provider hands back after the
// user approved a session key, either on a loopback redirect or an app link.
type CallbackParams struct {
	PublicKey  string `json:"public_key"`
	Delegation string `json:"delegation"`
	Error      string `json:"error,omitempty"`
}

func CallbackParamsFromQuery(q url.Values) CallbackParams {
	return NormalizeCallbackParams(CallbackParams{
		PublicKey:  q.Get("publicKey"),
		Delegation: q.Get("delegation"),
		Error:      q.Get("error"),
	})
}

// CallbackParamsFromURL parses an app link such as
// myapp://auth?publicKey=...&delegation=...
func CallbackParamsFromURL(raw string) (CallbackParams, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return CallbackParams{}, err
	}
	return CallbackParamsFromQuery(u.Query()), nil
}

func NormalizeCallbackParams(p CallbackParams) CallbackParams {
	p.PublicKey = strings.ToLower(strings.TrimSpace(p.PublicKey))
	p.Delegation = strings.TrimSpace(p.Delegation)
	p.Error = strings.TrimSpace(p.Error)
	return p
}
