package db

import (
	"time"

	"github.com/google/uuid"
)

// TopologyRun represents a published topology snapshot in the database
type TopologyRun struct {
	ID          uuid.UUID
	ClientCount int
	DeviceCount int
	PublishedAt time.Time
}

// TopologyClient represents a shaped client row
type TopologyClient struct {
	ID           string
	RunID        uuid.UUID
	DisplayName  string
	CustomerName string
	Address      string
	DownloadMbps int
	UploadMbps   int
}

// TopologyDevice represents a device row under a client
type TopologyDevice struct {
	ID          string
	RunID       uuid.UUID
	ParentID    string
	DisplayName string
	MAC         string
	IPv4        []string
	IPv6        []string
}
