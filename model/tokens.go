package model

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

type TokenCounter interface {
	CountTokens(text string) int
}

// TiktokenCounter counts cl100k_base tokens. The encoding is loaded on
// first use; if it cannot be loaded the counter falls back to whitespace words.
type TiktokenCounter struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
	err  error
}

func NewTiktokenCounter() *TiktokenCounter {
	return &TiktokenCounter{}
}

func (c *TiktokenCounter) CountTokens(text string) int {
	c.once.Do(func() {
		c.enc, c.err = tiktoken.GetEncoding("cl100k_base")
	})
	if c.err != nil || c.enc == nil {
		return len(strings.Fields(text))
	}
	return len(c.enc.Encode(text, nil, nil))
}

// Err reports why the encoding could not be loaded, if it failed.
func (c *TiktokenCounter) Err() error {
	return c.err
}
