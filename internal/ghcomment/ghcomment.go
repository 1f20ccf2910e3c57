// Package ghcomment serializes and parses the JSON envelope that wraps
// every update posted as a comment on an anchor issue (spec.md section
// 3, UpdateEnvelope, and section 4.2, CommentCodec). It tolerates the
// three historical comment shapes the original Python implementation
// left behind in live repositories.
package ghcomment

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrMalformedComment is returned by Decode when the comment body is
// not valid JSON at all. Callers should skip the comment, not fail
// the whole operation (spec.md section 7, disposition class 2).
var ErrMalformedComment = errors.New("ghcomment: malformed comment body")

// UpdateMode controls how Envelope.Data is merged into the anchor state
// during replay.
type UpdateMode string

const (
	ModeAppend  UpdateMode = "append"
	ModeReplace UpdateMode = "replace"
)

// EnvelopeType discriminates system bookkeeping comments from normal
// user updates. The zero value (empty string) means "normal user
// update".
type EnvelopeType string

const (
	TypeNone                  EnvelopeType = ""
	TypeInitialState          EnvelopeType = "initial_state"
	TypeSystemAlias           EnvelopeType = "system_alias"
	TypeSystemAliasReference  EnvelopeType = "system_alias_reference"
	TypeSystemDeprecation     EnvelopeType = "system_deprecation"
	TypeSystemReference       EnvelopeType = "system_reference"
	TypeSystemRelationship    EnvelopeType = "system_relationship"
)

// Meta is the envelope's "_meta" block.
type Meta struct {
	ClientVersion string     `json:"client_version"`
	Timestamp     string     `json:"timestamp"`
	UpdateMode    UpdateMode `json:"update_mode"`
	System        bool       `json:"system,omitempty"`
}

// Envelope is the modern wire format written by Encode.
type Envelope struct {
	Data json.RawMessage `json:"_data"`
	Meta Meta            `json:"_meta"`
	Type EnvelopeType    `json:"type,omitempty"`
}

// legacyInitialState is the oldest shape: a top-level "type" field
// with the payload inline under "data" instead of "_data"/"_meta".
type legacyInitialState struct {
	Type EnvelopeType    `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ClientVersion is stamped into every envelope this package encodes.
// Override in tests or at the call site if a different producer
// version string is needed.
var ClientVersion = "gh-store-go/1"

// Encode builds the envelope for a new update comment. The timestamp
// is stamped at encode time in UTC, RFC3339 with a literal "Z" suffix.
func Encode(data json.RawMessage, mode UpdateMode, typ EnvelopeType, clientVersion string) Envelope {
	if data == nil {
		data = json.RawMessage("{}")
	}
	if clientVersion == "" {
		clientVersion = ClientVersion
	}
	return Envelope{
		Data: data,
		Meta: Meta{
			ClientVersion: clientVersion,
			Timestamp:     time.Now().UTC().Format(time.RFC3339),
			UpdateMode:    mode,
			System:        false,
		},
		Type: typ,
	}
}

// EncodeSystem is Encode with _meta.system stamped true, for the
// bookkeeping envelopes alias/dedup operations post (system_alias,
// system_alias_reference, system_deprecation, system_reference).
func EncodeSystem(data json.RawMessage, typ EnvelopeType) Envelope {
	e := Encode(data, ModeReplace, typ, "")
	e.Meta.System = true
	return e
}

// Marshal renders an envelope to the JSON that becomes the comment
// body.
func Marshal(e Envelope) (string, error) {
	b, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return "", fmt.Errorf("ghcomment: marshal envelope: %w", err)
	}
	return string(b), nil
}

// ParsedComment is the decoder's normalized output regardless of
// which of the three historical shapes the raw body used.
type ParsedComment struct {
	CommentID   int64
	Data        json.RawMessage
	Meta        Meta
	Type        EnvelopeType
	TrackerTime time.Time // the tracker-reported comment creation time
}

// Decode parses a comment body, accepting:
//  1. the modern envelope ("_data" + "_meta"),
//  2. the legacy initial-state shape (top-level "type" + "data"),
//  3. the legacy update shape, where the body IS the payload with no
//     envelope at all.
//
// For shape 3, Meta is synthesized as
// {client_version: "legacy", timestamp: createdAt, update_mode: "append"}.
func Decode(body []byte, createdAt time.Time, commentID int64) (ParsedComment, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil {
		return ParsedComment{}, fmt.Errorf("%w: %v", ErrMalformedComment, err)
	}

	// Modern envelope: has "_data".
	if raw, ok := probe["_data"]; ok {
		var env Envelope
		if err := json.Unmarshal(body, &env); err != nil {
			return ParsedComment{}, fmt.Errorf("%w: %v", ErrMalformedComment, err)
		}
		return ParsedComment{
			CommentID:   commentID,
			Data:        raw,
			Meta:        env.Meta,
			Type:        env.Type,
			TrackerTime: createdAt,
		}, nil
	}

	// Legacy initial-state: top-level "type": "initial_state" with
	// inline "data".
	if rawType, ok := probe["type"]; ok {
		var typ EnvelopeType
		if err := json.Unmarshal(rawType, &typ); err == nil && typ == TypeInitialState {
			var legacy legacyInitialState
			if err := json.Unmarshal(body, &legacy); err != nil {
				return ParsedComment{}, fmt.Errorf("%w: %v", ErrMalformedComment, err)
			}
			data := legacy.Data
			if data == nil {
				data = json.RawMessage("{}")
			}
			return ParsedComment{
				CommentID: commentID,
				Data:      data,
				Meta: Meta{
					ClientVersion: "legacy",
					Timestamp:     createdAt.UTC().Format(time.RFC3339),
					UpdateMode:    ModeAppend,
				},
				Type:        TypeInitialState,
				TrackerTime: createdAt,
			}, nil
		}
	}

	// Legacy update: the whole body is the payload.
	return ParsedComment{
		CommentID: commentID,
		Data:      json.RawMessage(body),
		Meta: Meta{
			ClientVersion: "legacy",
			Timestamp:     createdAt.UTC().Format(time.RFC3339),
			UpdateMode:    ModeAppend,
		},
		Type:        TypeNone,
		TrackerTime: createdAt,
	}, nil
}

// EffectiveTimestamp prefers the envelope's stamped _meta.timestamp,
// parsed strictly as RFC3339 (UTC "Z" accepted), falling back to the
// tracker-reported creation time if the field is absent or malformed.
func EffectiveTimestamp(p ParsedComment) time.Time {
	if p.Meta.Timestamp != "" {
		if t, err := time.Parse(time.RFC3339, p.Meta.Timestamp); err == nil {
			return t.UTC()
		}
	}
	return p.TrackerTime.UTC()
}

// IsSystem reports whether a parsed comment should be ignored by the
// merge step: its type starts with "system_", or _meta.system is set.
func IsSystem(p ParsedComment) bool {
	if p.Meta.System {
		return true
	}
	return strings.HasPrefix(string(p.Type), "system_")
}
