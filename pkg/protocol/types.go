// Package protocol defines the framed request/response messages used to
// query and mutate a weave, and the handler that applies them.
//
// Frames are JSON objects. A request names its operation in "type"; the
// response echoes the request's "id" and "type" and carries either a
// "value" or an "error".
package protocol

import (
	"encoding/json"

	"github.com/nstogner/tapestry/pkg/ulid"
	"github.com/nstogner/tapestry/pkg/weave"
)

// Type is the tag of a frame.
type Type string

const (
	TypeGetLength                 Type = "GetLength"
	TypeIsChanged                 Type = "IsChanged"
	TypeGetNode                   Type = "GetNode"
	TypeGetNodes                  Type = "GetNodes"
	TypeGetRoots                  Type = "GetRoots"
	TypeGetBookmarks              Type = "GetBookmarks"
	TypeGetActiveThread           Type = "GetActiveThread"
	TypeAddNode                   Type = "AddNode"
	TypeSetNodeActiveStatus       Type = "SetNodeActiveStatus"
	TypeSetNodeBookmarkedStatus   Type = "SetNodeBookmarkedStatus"
	TypeSplitNode                 Type = "SplitNode"
	TypeMergeNodeWithParent       Type = "MergeNodeWithParent"
	TypeIsNodeMergeableWithParent Type = "IsNodeMergeableWithParent"
	TypeRemoveNode                Type = "RemoveNode"
	TypeSetActiveContent          Type = "SetActiveContent"

	// TypeError tags the response to a frame that could not be decoded.
	TypeError Type = "Error"
	// TypeChanged tags server-pushed notifications that a weave was
	// mutated by another connection.
	TypeChanged Type = "Changed"
)

// Mutates reports whether a successful request of type t changes the weave.
func (t Type) Mutates() bool {
	switch t {
	case TypeAddNode, TypeSetNodeActiveStatus, TypeSetNodeBookmarkedStatus,
		TypeSplitNode, TypeMergeNodeWithParent, TypeRemoveNode, TypeSetActiveContent:
		return true
	}
	return false
}

// Request is an inbound frame. Which fields are required depends on Type.
type Request struct {
	// ID is an optional caller-chosen correlation id echoed in the response.
	ID   string `json:"id,omitempty"`
	Type Type   `json:"type"`

	Node       *ulid.ID             `json:"node,omitempty"`
	Nodes      []ulid.ID            `json:"nodes,omitempty"`
	Active     *bool                `json:"active,omitempty"`
	Bookmarked *bool                `json:"bookmarked,omitempty"`
	Index      *int                 `json:"index,omitempty"`
	Dependent  *weave.DependentNode `json:"dependent,omitempty"`
	Params     weave.Params         `json:"params,omitempty"`
}

// Mutates reports whether a successful req changes the weave.
func (r Request) Mutates() bool {
	if r.Type == TypeSetActiveContent && len(r.Params) == 0 {
		return false
	}
	return r.Type.Mutates()
}

// Response is an outbound frame.
type Response struct {
	ID    string          `json:"id,omitempty"`
	Type  Type            `json:"type"`
	OK    bool            `json:"ok"`
	Value json.RawMessage `json:"value,omitempty"`
	Error *Error          `json:"error,omitempty"`
}

// KindClosed answers frames sent to a weave the host has closed or deleted.
const KindClosed weave.ErrorKind = "Closed"

// Error is the wire form of a weave.Error.
type Error struct {
	Kind    weave.ErrorKind `json:"kind"`
	Message string          `json:"message"`
}

func (e *Error) Err() error {
	return &weave.Error{Kind: e.Kind, Message: e.Message}
}

// NodeResult is one element of a GetNodes response.
type NodeResult struct {
	ID    ulid.ID     `json:"id"`
	Node  *weave.Node `json:"node,omitempty"`
	Error *Error      `json:"error,omitempty"`
}

// Event is a server-pushed notification.
type Event struct {
	Type   Type    `json:"type"`
	Weave  ulid.ID `json:"weave"`
	Length int     `json:"length"`
}

func wireError(err error) *Error {
	kind := weave.KindOf(err)
	if kind == "" {
		kind = weave.KindMalformedFrame
	}
	msg := err.Error()
	if e, ok := err.(*weave.Error); ok {
		msg = e.Message
	}
	return &Error{Kind: kind, Message: msg}
}

// Decode parses a response frame.
func (r *Response) Decode(v any) error {
	if r.Error != nil {
		return r.Error.Err()
	}
	if v == nil || len(r.Value) == 0 {
		return nil
	}
	return json.Unmarshal(r.Value, v)
}
