// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package errs defines the error taxonomy shared by all stages.
// Implements: prd001-evidence (R7.1-R7.4).
//
// Every failure that crosses a package boundary carries a Kind. Callers
// branch on the kind with Is and map it to a user-visible status with
// HTTPStatus and PublicMessage.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error.
type Kind int

const (
	// Internal is any failure without a more specific kind.
	Internal Kind = iota

	// ExternalService marks an unreachable or non-2xx collaborator. Fatal for a run.
	ExternalService

	// NoDocumentsFound marks an empty result before post-filtering.
	NoDocumentsFound

	// InvalidFilter marks malformed filter input, raised before any network call.
	InvalidFilter

	// NoSentences marks an abstract that splits into zero sentences.
	NoSentences

	// InvalidProbability marks an entailment distribution outside 1±0.01.
	InvalidProbability

	// NotFound marks a missing record in a store or index.
	NotFound
)

var kindNames = map[Kind]string{
	Internal:           "internal",
	ExternalService:    "external service",
	NoDocumentsFound:   "no documents found",
	InvalidFilter:      "invalid filter",
	NoSentences:        "no sentences",
	InvalidProbability: "invalid probability distribution",
	NotFound:           "not found",
}

// String returns the kind's name.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is a classified error. Op names the operation that failed
// (e.g. "pubmed.search"); Err is the underlying cause and may be nil.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return e.Kind.String()
	}
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// E builds a classified error.
func E(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Ef builds a classified error with a formatted cause.
func Ef(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the outermost classified error in err's
// chain, or Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err carries kind.
func Is(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == kind
}

// HTTPStatus maps err to the status a request surface would return.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case InvalidFilter:
		return http.StatusBadRequest
	case NoDocumentsFound, NotFound:
		return http.StatusNotFound
	case ExternalService:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns a client-safe message. Internal failures get a
// generic message so causes and traces stay server-side.
func PublicMessage(err error) string {
	switch k := KindOf(err); k {
	case InvalidFilter, NoDocumentsFound, NotFound:
		return err.Error()
	case ExternalService:
		return "an external literature or model service is unavailable; try again later"
	default:
		return "internal error"
	}
}
