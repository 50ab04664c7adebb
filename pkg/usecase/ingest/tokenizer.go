package ingest

import (
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer measures text in the embedding model's token units.
type Tokenizer interface {
	// Count returns the number of tokens in the text
	Count(text string) (int, error)

	// Truncate cuts the text to exactly limit tokens. Text at or below
	// the limit is returned unchanged.
	Truncate(text string, limit int) (string, error)
}

// tiktokenizer wraps the cl100k_base encoding, the tokenizer family of
// text-embedding-3-small. The encoding is loaded lazily once.
type tiktokenizer struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
	err  error
}

// NewTiktoken creates a cl100k_base tokenizer
func NewTiktoken() Tokenizer {
	return &tiktokenizer{}
}

func (t *tiktokenizer) encoding() (*tiktoken.Tiktoken, error) {
	t.once.Do(func() {
		t.enc, t.err = tiktoken.GetEncoding("cl100k_base")
	})
	if t.err != nil {
		return nil, goerr.Wrap(t.err, "failed to load cl100k_base encoding")
	}
	return t.enc, nil
}

func (t *tiktokenizer) Count(text string) (int, error) {
	enc, err := t.encoding()
	if err != nil {
		return 0, err
	}
	return len(enc.Encode(text, nil, nil)), nil
}

func (t *tiktokenizer) Truncate(text string, limit int) (string, error) {
	enc, err := t.encoding()
	if err != nil {
		return "", err
	}

	ids := enc.Encode(text, nil, nil)
	if len(ids) <= limit {
		return text, nil
	}
	return enc.Decode(ids[:limit]), nil
}
