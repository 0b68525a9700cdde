package cortexx

import "github.com/HeltonFraga01/cortexx-sub006/id"

// ID is the primary identifier type for all Cortexx entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
