package server

import (
	"net/http"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/loris/pkg/model"
)

// Credential header names. All three must be present together when
// header-based resolution is in use.
const (
	HeaderOpenAIKey     = "X-OpenAI-API-Key"
	HeaderOpenRouterKey = "X-OpenRouter-API-Key"
	HeaderChunkrKey     = "X-Chunkr-API-Key"
)

// CredentialSource resolves per-request API credentials for the
// external collaborators. Implementations are selected by deployment
// mode.
type CredentialSource interface {
	Resolve(r *http.Request) (*model.Credentials, error)
}

// HeaderCredentials reads credentials from request headers. A partial
// set is rejected, naming every missing header.
type HeaderCredentials struct{}

func (HeaderCredentials) Resolve(r *http.Request) (*model.Credentials, error) {
	creds := &model.Credentials{
		OpenAI:     r.Header.Get(HeaderOpenAIKey),
		OpenRouter: r.Header.Get(HeaderOpenRouterKey),
		Chunkr:     r.Header.Get(HeaderChunkrKey),
	}

	var missing []string
	if creds.OpenAI == "" {
		missing = append(missing, HeaderOpenAIKey)
	}
	if creds.OpenRouter == "" {
		missing = append(missing, HeaderOpenRouterKey)
	}
	if creds.Chunkr == "" {
		missing = append(missing, HeaderChunkrKey)
	}

	if len(missing) > 0 {
		return nil, goerr.Wrap(model.ErrInvalidRequest,
			"missing required API key headers: "+strings.Join(missing, ", "),
			goerr.V("missing", missing))
	}

	return creds, nil
}

// EnvCredentials serves process-wide credentials loaded at startup.
type EnvCredentials struct {
	Credentials model.Credentials
}

func (e EnvCredentials) Resolve(r *http.Request) (*model.Credentials, error) {
	if e.Credentials.OpenAI == "" || e.Credentials.OpenRouter == "" || e.Credentials.Chunkr == "" {
		return nil, goerr.New("API keys are not configured")
	}
	creds := e.Credentials
	return &creds, nil
}
