package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/nstogner/tapestry/pkg/ulid"
	"github.com/nstogner/tapestry/pkg/weave"
)

// Handle decodes one request frame, applies it to w and returns the encoded
// response frames together with the new dirty flag. The flag is raised by
// any successful mutation and never cleared here; hosts reset it after a
// successful save.
//
// Handle is not safe for concurrent use on the same weave.
func Handle(w *weave.Weave, dirty bool, frame []byte) ([][]byte, bool) {
	req, err := DecodeRequest(frame)
	if err != nil {
		return [][]byte{EncodeResponse(ErrorResponse(err))}, dirty
	}
	resp, dirty := Apply(w, dirty, req)
	return [][]byte{EncodeResponse(resp)}, dirty
}

// ErrorResponse is the reply to a frame that could not be decoded.
func ErrorResponse(err error) Response {
	return Response{Type: TypeError, Error: wireError(err)}
}

// ClosedResponse is the reply to req when its weave is no longer open.
func ClosedResponse(req Request) Response {
	return Response{ID: req.ID, Type: req.Type, Error: &Error{Kind: KindClosed, Message: "weave is closed"}}
}

// DecodeRequest parses a request frame. Unknown fields are rejected.
func DecodeRequest(frame []byte) (Request, error) {
	var req Request
	dec := json.NewDecoder(bytes.NewReader(frame))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return req, weave.Errorf(weave.KindMalformedFrame, "decode frame: %v", err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return req, weave.Errorf(weave.KindMalformedFrame, "trailing data after frame")
	}
	if req.Type == "" {
		return req, weave.Errorf(weave.KindMalformedFrame, "frame has no type")
	}
	return req, nil
}

// EncodeRequest is the client-side counterpart of DecodeRequest.
func EncodeRequest(req Request) ([]byte, error) {
	return json.Marshal(req)
}

// DecodeResponse parses a response frame.
func DecodeResponse(frame []byte) (Response, error) {
	var resp Response
	if err := json.Unmarshal(frame, &resp); err != nil {
		return resp, fmt.Errorf("decode response: %w", err)
	}
	return resp, nil
}

// Apply executes a decoded request.
func Apply(w *weave.Weave, dirty bool, req Request) (Response, bool) {
	value, mutated, err := apply(w, dirty, req)
	resp := Response{ID: req.ID, Type: req.Type}
	if err != nil {
		resp.Error = wireError(err)
		return resp, dirty
	}
	if value != nil {
		b, err := json.Marshal(value)
		if err != nil {
			resp.Error = &Error{Kind: weave.KindMalformedFrame, Message: fmt.Sprintf("encode %T: %v", value, err)}
			return resp, dirty || mutated
		}
		resp.Value = b
	}
	resp.OK = true
	return resp, dirty || mutated
}

func apply(w *weave.Weave, dirty bool, req Request) (value any, mutated bool, err error) {
	switch req.Type {
	case TypeGetLength:
		return w.Len(), false, nil

	case TypeIsChanged:
		return dirty, false, nil

	case TypeGetNode:
		id, err := requireNode(req)
		if err != nil {
			return nil, false, err
		}
		n, ok := w.Node(id)
		if !ok {
			return nil, false, unknown(id)
		}
		return n, false, nil

	case TypeGetNodes:
		results := make([]NodeResult, 0, len(req.Nodes))
		for _, id := range req.Nodes {
			r := NodeResult{ID: id}
			if n, ok := w.Node(id); ok {
				r.Node = &n
			} else {
				r.Error = wireError(unknown(id))
			}
			results = append(results, r)
		}
		return results, false, nil

	case TypeGetRoots:
		return w.Roots(), false, nil

	case TypeGetBookmarks:
		return w.Bookmarks(), false, nil

	case TypeGetActiveThread:
		return w.ActiveThread(), false, nil

	case TypeAddNode:
		if req.Dependent == nil {
			return nil, false, missing(req, "dependent")
		}
		id, err := w.AddNode(*req.Dependent)
		if err != nil {
			return nil, false, err
		}
		return id, true, nil

	case TypeSetNodeActiveStatus:
		id, err := requireNode(req)
		if err != nil {
			return nil, false, err
		}
		if req.Active == nil {
			return nil, false, missing(req, "active")
		}
		return nil, true, w.SetNodeActiveStatus(id, *req.Active)

	case TypeSetNodeBookmarkedStatus:
		id, err := requireNode(req)
		if err != nil {
			return nil, false, err
		}
		if req.Bookmarked == nil {
			return nil, false, missing(req, "bookmarked")
		}
		return nil, true, w.SetNodeBookmarkedStatus(id, *req.Bookmarked)

	case TypeSplitNode:
		id, err := requireNode(req)
		if err != nil {
			return nil, false, err
		}
		if req.Index == nil {
			return nil, false, missing(req, "index")
		}
		child, err := w.SplitNode(id, *req.Index)
		if err != nil {
			return nil, false, err
		}
		return child, true, nil

	case TypeMergeNodeWithParent:
		id, err := requireNode(req)
		if err != nil {
			return nil, false, err
		}
		return nil, true, w.MergeNodeWithParent(id)

	case TypeIsNodeMergeableWithParent:
		id, err := requireNode(req)
		if err != nil {
			return nil, false, err
		}
		ok, err := w.IsNodeMergeableWithParent(id)
		return ok, false, err

	case TypeRemoveNode:
		id, err := requireNode(req)
		if err != nil {
			return nil, false, err
		}
		return nil, true, w.RemoveNode(id)

	case TypeSetActiveContent:
		id, err := requireNode(req)
		if err != nil {
			return nil, false, err
		}
		// Empty params leave the node untouched.
		return nil, len(req.Params) > 0, w.SetActiveContent(id, req.Params)
	}
	return nil, false, weave.Errorf(weave.KindMalformedFrame, "unknown request type %q", req.Type)
}

func requireNode(req Request) (ulid.ID, error) {
	if req.Node == nil {
		return ulid.Nil, missing(req, "node")
	}
	return *req.Node, nil
}

func missing(req Request, field string) error {
	return weave.Errorf(weave.KindMalformedFrame, "%s request requires %q", req.Type, field)
}

func unknown(id ulid.ID) error {
	return weave.Errorf(weave.KindUnknownNode, "node %s not found", id)
}

// EncodeResponse marshals resp, degrading to a bare error frame on failure.
func EncodeResponse(resp Response) []byte {
	b, err := json.Marshal(resp)
	if err != nil {
		b, _ = json.Marshal(Response{ID: resp.ID, Type: resp.Type, Error: wireError(err)})
	}
	return b
}
