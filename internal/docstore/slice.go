package docstore

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/v2/bson"
)

var errCursorClosed = errors.New("cursor closed")

// SliceCursor serves a fixed list of documents.
type SliceCursor struct {
	docs   []bson.Raw
	pos    int
	closed bool
}

func NewSliceCursor(docs []bson.Raw) *SliceCursor {
	return &SliceCursor{docs: docs}
}

func (c *SliceCursor) HasNext(_ context.Context) (bool, error) {
	if c.closed {
		return false, errCursorClosed
	}
	return c.pos < len(c.docs), nil
}

func (c *SliceCursor) Next(_ context.Context) (bson.Raw, error) {
	if c.closed {
		return nil, errCursorClosed
	}
	if c.pos >= len(c.docs) {
		return nil, errors.New("cursor exhausted")
	}
	doc := c.docs[c.pos]
	c.pos++
	return doc, nil
}

func (c *SliceCursor) Close(_ context.Context) error {
	c.closed = true
	return nil
}

func (c *SliceCursor) Closed() bool {
	return c.closed
}
