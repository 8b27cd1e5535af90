package resolve

import (
	"errors"
	"fmt"
	"strings"

	"github.com/coolbeans/legisync/pkg/article"
)

var (
	// ErrNumberMismatch rejects an article whose own number differs from the
	// requested one.
	ErrNumberMismatch = errors.New("resolved article number does not match")

	// ErrContentTooShort rejects an article whose cleaned text is too short to
	// be the real article body.
	ErrContentTooShort = errors.New("article text too short")

	// ErrNoCandidate means a strategy found nothing to fetch.
	ErrNoCandidate = errors.New("no candidate article")

	// ErrUnresolved is wrapped by UnresolvedError.
	ErrUnresolved = errors.New("article unresolved")
)

// StepFailure records why one strategy did not produce an article.
type StepFailure struct {
	Source article.Source
	Err    error
}

// UnresolvedError is returned when every strategy failed for an identifier.
type UnresolvedError struct {
	Identifier article.Identifier
	Steps      []StepFailure
}

func (unresolvedErr *UnresolvedError) Error() string {
	var builder strings.Builder
	fmt.Fprintf(&builder, "%s: %s", ErrUnresolved, unresolvedErr.Identifier)
	for _, step := range unresolvedErr.Steps {
		fmt.Fprintf(&builder, "; %s: %v", step.Source, step.Err)
	}
	return builder.String()
}

func (unresolvedErr *UnresolvedError) Unwrap() error {
	return ErrUnresolved
}
