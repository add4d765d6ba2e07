package registry

import "time"

// Descriptor is the derived view of one storage repository.
type Descriptor struct {
	Name       string    `json:"name"`
	SizeBytes  int64     `json:"sizeBytes"`
	ImageCount int       `json:"imageCount"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Stats summarizes capacity across all storage repositories of an owner.
type Stats struct {
	UsedBytes          int64        `json:"usedBytes"`
	TotalCapacityBytes int64        `json:"totalCapacityBytes"`
	AvailableBytes     int64        `json:"availableBytes"`
	PercentUsed        float64      `json:"percentUsed"`
	ImageCount         int          `json:"imageCount"`
	Repositories       []Descriptor `json:"repositories"`
}
