// Package spatial places poll sites inside census tracts and joins the
// per-tract demographic tables onto the result.
package spatial

import (
	"fmt"

	"github.com/rotisserie/eris"
)

// ErrCRSMismatch is returned when tract polygons and site points carry
// different SRIDs. No reprojection is attempted.
var ErrCRSMismatch = eris.New("spatial: coordinate reference systems differ")

// InvariantError reports a row-count or key invariant that a join violated.
type InvariantError struct {
	Check  string
	Want   int
	Got    int
	Detail string
}

func (e *InvariantError) Error() string {
	msg := fmt.Sprintf("spatial: invariant %q violated: want %d, got %d", e.Check, e.Want, e.Got)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}
