// Package records provides the document-store access layer. Documents are
// addressed by container, id and partition key, and mutated exclusively
// through patch operations attributed to an actor.
package records

import (
	"context"
	"encoding/json"
	"errors"
)

// Container names for the documents the payment core touches.
const (
	ContainerOrders       = "orders"
	ContainerMerchants    = "merchants"
	ContainerCustomers    = "customers"
	ContainerRequests     = "reading_requests"
	ContainerRefunds      = "refunds"
	ContainerEvents       = "events"
	ContainerChargeEvents = "charge_events"
)

var (
	ErrNotFound    = errors.New("record not found")
	ErrInvalidPath = errors.New("invalid patch path")
	ErrBadOp       = errors.New("unsupported patch operation")
)

// OpType is the kind of a patch operation.
type OpType string

const (
	OpSet    OpType = "set"
	OpAdd    OpType = "add"
	OpRemove OpType = "remove"
)

// PatchOp is a single mutation of a document. Path is a slash-separated JSON
// path ("/lines/0/paidStatusLog/-"); for OpAdd a trailing "-" appends to an
// array.
type PatchOp struct {
	Op    OpType      `json:"op"`
	Path  string      `json:"path"`
	Value interface{} `json:"value,omitempty"`
}

// Set builds a set op.
func Set(path string, value interface{}) PatchOp {
	return PatchOp{Op: OpSet, Path: path, Value: value}
}

// Add builds an add op.
func Add(path string, value interface{}) PatchOp {
	return PatchOp{Op: OpAdd, Path: path, Value: value}
}

// Remove builds a remove op.
func Remove(path string) PatchOp {
	return PatchOp{Op: OpRemove, Path: path}
}

// Store is the document-store collaborator.
type Store interface {
	// Get fetches one document or ErrNotFound.
	Get(ctx context.Context, container, id, partitionKey string) (json.RawMessage, error)

	// Query runs a filter over a container's document bodies. The filter is
	// a SQL fragment over the jsonb body with named parameters, e.g.
	// "body->>'orderId' = @orderId".
	Query(ctx context.Context, container, filter string, params map[string]interface{}) ([]json.RawMessage, error)

	// Create inserts a new document.
	Create(ctx context.Context, container, id, partitionKey string, doc interface{}) error

	// Patch applies ops to one document atomically, attributed to actor.
	Patch(ctx context.Context, container, id, partitionKey string, ops []PatchOp, actor string) error
}
