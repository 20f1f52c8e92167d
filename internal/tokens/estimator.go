// Package tokens estimates completion tokens for the message currently
// streaming, so the status bar has a number before the server reports
// authoritative counts on completion.
package tokens

import (
	"strings"
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// Estimator 基于 tiktoken 的 token 估算器，初始化失败回退到启发式。
// Estimator counts tokens with tiktoken, falling back to a heuristic
// when the BPE cache is unavailable (offline environments).
type Estimator struct {
	encoder      *tiktoken.Tiktoken
	encodingName string
	fallback     bool
	mu           sync.RWMutex
}

var (
	defaultEstimator     *Estimator
	defaultEstimatorOnce sync.Once
)

// Default returns the shared cl100k_base estimator.
func Default() *Estimator {
	defaultEstimatorOnce.Do(func() {
		defaultEstimator = New("cl100k_base")
	})
	return defaultEstimator
}

func New(encodingName string) *Estimator {
	e := &Estimator{encodingName: encodingName}
	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		e.fallback = true
		return e
	}
	e.encoder = enc
	return e
}

// ForModel 根据模型名自动选择编码。
// ForModel auto-selects the encoding for a model name.
func ForModel(model string) *Estimator {
	return New(modelToEncoding(model))
}

// Count returns the token count for text.
func (e *Estimator) Count(text string) int {
	if text == "" {
		return 0
	}
	if e.fallback {
		return heuristicTokenCount(text)
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.encoder.Encode(text, nil, nil))
}

// IsPrecise reports whether tiktoken is active rather than the
// heuristic fallback.
func (e *Estimator) IsPrecise() bool {
	return !e.fallback
}

// EncodingName returns the encoding name.
func (e *Estimator) EncodingName() string {
	return e.encodingName
}

// heuristicTokenCount 启发式估算：CJK 约 1.5 token/字，ASCII 约 4 字符/token。
// heuristicTokenCount: CJK ~1.5 tokens per char, ASCII ~4 chars per token.
func heuristicTokenCount(text string) int {
	cjkCount := 0
	asciiCount := 0
	for _, r := range text {
		if isCJK(r) {
			cjkCount++
		} else {
			asciiCount++
		}
	}
	estimate := int(float64(cjkCount)*1.5 + float64(asciiCount)*0.25)
	if estimate < 1 {
		estimate = 1
	}
	return estimate
}

func isCJK(r rune) bool {
	return (r >= 0x4E00 && r <= 0x9FFF) || // CJK Unified
		(r >= 0x3400 && r <= 0x4DBF) || // CJK Extension A
		(r >= 0x3000 && r <= 0x303F) || // CJK Symbols
		(r >= 0xFF00 && r <= 0xFFEF) || // Fullwidth Forms
		(r >= 0xAC00 && r <= 0xD7AF) // Korean Hangul
}

func modelToEncoding(model string) string {
	m := strings.ToLower(strings.TrimSpace(model))
	switch {
	case m == "":
		return "cl100k_base"
	case strings.HasPrefix(m, "o1"), strings.HasPrefix(m, "o3"):
		return "o200k_base"
	case strings.HasPrefix(m, "gpt-4o"), strings.HasPrefix(m, "chatgpt-4o"):
		return "o200k_base"
	case strings.HasPrefix(m, "gpt-4"), strings.HasPrefix(m, "gpt-3.5"):
		return "cl100k_base"
	default:
		return "cl100k_base"
	}
}
