package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// Cursor adapts a driver cursor to a peekable HasNext/Next pair by holding
// at most one fetched document.
type Cursor struct {
	cursor  *mongo.Cursor
	maxTime time.Duration
	next    bson.Raw
	done    bool
	closed  bool
}

func newCursor(cursor *mongo.Cursor, maxTime time.Duration) *Cursor {
	return &Cursor{cursor: cursor, maxTime: maxTime}
}

func (c *Cursor) HasNext(ctx context.Context) (bool, error) {
	if c.closed {
		return false, errors.New("cursor closed")
	}
	if c.next != nil {
		return true, nil
	}
	if c.done {
		return false, nil
	}
	opCtx, cancel := withMaxTime(ctx, c.maxTime)
	defer cancel()
	if c.cursor.Next(opCtx) {
		// Current is reused by the driver on the next batch.
		doc := make(bson.Raw, len(c.cursor.Current))
		copy(doc, c.cursor.Current)
		c.next = doc
		return true, nil
	}
	c.done = true
	if err := c.cursor.Err(); err != nil {
		return false, mapErr(fmt.Errorf("iterate cursor"), err)
	}
	return false, nil
}

func (c *Cursor) Next(ctx context.Context) (bson.Raw, error) {
	ok, err := c.HasNext(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.New("cursor exhausted")
	}
	doc := c.next
	c.next = nil
	return doc, nil
}

func (c *Cursor) Close(ctx context.Context) error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.next = nil
	if err := c.cursor.Close(ctx); err != nil {
		return fmt.Errorf("close cursor: %w", err)
	}
	return nil
}
