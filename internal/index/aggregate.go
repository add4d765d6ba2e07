package index

// Omission records a repository left out of an aggregated read.
type Omission struct {
	Repository string `json:"repository"`
	Reason     string `json:"reason"`
}

// Aggregate is the result of reading one index across many repositories.
// Items is complete only when Omissions is empty.
type Aggregate[T any] struct {
	Items     []T        `json:"items"`
	Omissions []Omission `json:"omissions,omitempty"`
}

// Complete reports whether every repository contributed.
func (a Aggregate[T]) Complete() bool {
	return len(a.Omissions) == 0
}
