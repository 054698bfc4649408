package backlog

import "github.com/xraph/backlog/id"

// ID is the identifier type for scheduled jobs.
type ID = id.ID
