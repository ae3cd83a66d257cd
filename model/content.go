package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Content is the closed set of shapes a message body can take. Untyped
// payloads are classified once via ContentOf; consumers switch on the
// concrete variant or call Flatten.
type Content interface{ isContent() }

// Text is plain string content.
type Text string

// isContent implements the Content interface for Text.
func (Text) isContent() {}

// PartList is an ordered sequence of parts.
type PartList []Part

// isContent implements the Content interface for PartList.
func (PartList) isContent() {}

// Structured is a single structured part used as the whole content.
type Structured struct {
	Part Part
}

// isContent implements the Content interface for Structured.
func (Structured) isContent() {}

// MarshalJSON renders the wrapped part.
func (s Structured) MarshalJSON() ([]byte, error) { return json.Marshal(s.Part) }

// Part represents one segment of multi-part content. Concrete part types
// implement the unexported isPart marker enabling a closed set.
type Part interface{ isPart() }

// TextPart is a segment exposing a text field, e.g. {"type":"text","text":"..."}.
type TextPart struct {
	Type string `json:"type,omitempty"`
	Text string `json:"text"`
}

// isPart implements the Part interface for TextPart.
func (TextPart) isPart() {}

// NestedPart is a segment wrapping further content under a "content" key.
type NestedPart struct {
	Content Content `json:"content"`
}

// isPart implements the Part interface for NestedPart.
func (NestedPart) isPart() {}

// OpaquePart is any other value; it degrades to its string representation.
type OpaquePart struct {
	Value any
}

// isPart implements the Part interface for OpaquePart.
func (OpaquePart) isPart() {}

// MarshalJSON renders the raw value.
func (o OpaquePart) MarshalJSON() ([]byte, error) { return json.Marshal(o.Value) }

// ContentOf classifies an untyped value (typically decoded JSON) into Content.
func ContentOf(v any) Content {
	switch c := v.(type) {
	case nil:
		return nil
	case Content:
		return c
	case string:
		return Text(c)
	case []any:
		parts := make(PartList, 0, len(c))
		for _, item := range c {
			parts = append(parts, PartOf(item))
		}
		return parts
	case []Part:
		return PartList(c)
	case Part:
		return Structured{Part: c}
	default:
		return Structured{Part: PartOf(v)}
	}
}

// PartOf classifies a single untyped segment.
func PartOf(v any) Part {
	switch p := v.(type) {
	case Part:
		return p
	case string:
		return TextPart{Text: p}
	case map[string]any:
		if text, ok := p["text"].(string); ok {
			typ, _ := p["type"].(string)
			return TextPart{Type: typ, Text: text}
		}
		if inner, ok := p["content"]; ok && inner != nil {
			return NestedPart{Content: ContentOf(inner)}
		}
	}
	return OpaquePart{Value: v}
}

// Flatten reduces any content to plain text. Parts are joined with a single
// space. It never fails: unknown shapes yield their string representation.
func Flatten(c Content) string {
	switch v := c.(type) {
	case nil:
		return ""
	case Text:
		return string(v)
	case PartList:
		texts := make([]string, len(v))
		for i, p := range v {
			texts[i] = flattenPart(p)
		}
		return strings.Join(texts, " ")
	case Structured:
		return flattenPart(v.Part)
	default:
		return fmt.Sprint(v)
	}
}

func flattenPart(p Part) string {
	switch v := p.(type) {
	case nil:
		return ""
	case TextPart:
		return v.Text
	case NestedPart:
		return Flatten(v.Content)
	case OpaquePart:
		return stringify(v.Value)
	default:
		return fmt.Sprint(v)
	}
}

func stringify(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case map[string]any, []any:
		b, err := json.Marshal(s)
		if err != nil {
			return fmt.Sprint(s)
		}
		return string(b)
	default:
		return fmt.Sprint(s)
	}
}
