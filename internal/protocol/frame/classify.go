package frame

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Kind tags the result of classifying one chunk.
type Kind uint8

const (
	KindHeartbeat Kind = iota
	KindRecord
	// KindOversized marks a line dropped by the Reader for exceeding its limit.
	KindOversized
)

func (k Kind) String() string {
	switch k {
	case KindHeartbeat:
		return "heartbeat"
	case KindRecord:
		return "record"
	case KindOversized:
		return "oversized"
	default:
		return "unknown"
	}
}

// Record is one decoded feed entry with sanitized text fields.
type Record struct {
	ID   string   `json:"id"`
	Text string   `json:"text"`
	Tags []string `json:"tags,omitempty"`
}

// Parsed is the classification of one chunk. Record is set only for KindRecord.
type Parsed struct {
	Kind   Kind
	Record Record
}

type wireRecord struct {
	Data *struct {
		ID   string  `json:"id"`
		Text *string `json:"text"`
	} `json:"data"`
	MatchingRules []struct {
		ID  string `json:"id"`
		Tag string `json:"tag"`
	} `json:"matching_rules"`
}

// Classify decodes one chunk. Anything that is not a complete JSON object
// carrying data.text is a heartbeat; keep-alives on the wire have no marker
// that distinguishes them from noise.
func Classify(raw []byte) Parsed {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Parsed{Kind: KindHeartbeat}
	}
	var wire wireRecord
	if err := json.Unmarshal(trimmed, &wire); err != nil {
		return Parsed{Kind: KindHeartbeat}
	}
	if wire.Data == nil || wire.Data.Text == nil {
		return Parsed{Kind: KindHeartbeat}
	}

	rec := Record{
		ID:   Sanitize(wire.Data.ID),
		Text: Sanitize(*wire.Data.Text),
	}
	for _, rule := range wire.MatchingRules {
		if rule.Tag == "" {
			continue
		}
		rec.Tags = append(rec.Tags, Sanitize(rule.Tag))
	}
	return Parsed{Kind: KindRecord, Record: rec}
}

var sanitizer = strings.NewReplacer("\r", " ", "\n", " ", "@", " ", "#", " ")

// Sanitize replaces every CR, LF, '@' and '#' with a single space.
func Sanitize(s string) string {
	return sanitizer.Replace(s)
}
