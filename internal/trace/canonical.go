package trace

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// canonicalJSON re-encodes raw with sorted object keys and no insignificant
// whitespace. Numbers keep their original textual form.
func canonicalJSON(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if t {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case string:
		b, _ := json.Marshal(t)
		buf.Write(b)
	case json.Number:
		buf.WriteString(t.String())
	case []any:
		buf.WriteByte('[')
		for i, item := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			ks, _ := json.Marshal(k)
			buf.Write(ks)
			buf.WriteByte(':')
			if err := writeCanonical(buf, t[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return errors.New("unsupported json type")
	}
	return nil
}

// hashedContent is every field of a trace except its own event hash. The
// JSON sub-documents are carried exactly as stored so a later recomputation
// sees the same bytes.
type hashedContent struct {
	TraceID        string          `json:"trace_id"`
	OrganizationID string          `json:"organization_id"`
	AgentID        string          `json:"agent_id"`
	Seq            int64           `json:"seq"`
	EventType      EventType       `json:"event_type"`
	Decision       json.RawMessage `json:"decision"`
	Authorization  json.RawMessage `json:"authorization"`
	Context        json.RawMessage `json:"context"`
	PreviousHash   *string         `json:"previous_hash"`
	CreatedAt      string          `json:"created_at"`
}

// digest returns the lower-case hex SHA-256 of the canonical encoding of c.
func (c hashedContent) digest() (string, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encoding trace content: %w", err)
	}
	canon, err := canonicalJSON(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalizing trace content: %w", err)
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}
