package model

// Credentials holds per-request API keys for the external collaborators.
type Credentials struct {
	OpenAI     string
	OpenRouter string
	Chunkr     string
}
