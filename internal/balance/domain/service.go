package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// Calculator derives a member's balance from invoice state and stores it on
// the member. Every code path that touches an Unpaid or Overdue invoice must
// call Recompute instead of adjusting the balance itself.
type Calculator interface {
	Recompute(ctx context.Context, memberID snowflake.ID) (string, error)
}
