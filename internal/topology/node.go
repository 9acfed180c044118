// Package topology holds the customer/device records produced by a sync run
// and the emitter that hands them to the shaping configuration generator.
package topology

import "slices"

// Kind distinguishes the two node levels.
type Kind string

const (
	KindClient Kind = "client"
	KindDevice Kind = "device"
)

// Node is either a *ClientNode or a *DeviceNode.
type Node interface {
	NodeID() string
	NodeKind() Kind
}

// ClientNode is one shaped subscriber: a (customer, service) pair.
type ClientNode struct {
	ID           string `json:"id"`
	DisplayName  string `json:"display_name"`
	CustomerName string `json:"customer_name"`
	Address      string `json:"address"`
	Download     int    `json:"download_mbps"`
	Upload       int    `json:"upload_mbps"`
}

func (n *ClientNode) NodeID() string { return n.ID }
func (n *ClientNode) NodeKind() Kind { return KindClient }

// DeviceNode is the single device under a ClientNode.
type DeviceNode struct {
	ID          string   `json:"id"`
	ParentID    string   `json:"parent_id"`
	DisplayName string   `json:"display_name"`
	MAC         string   `json:"mac"`
	IPv4        []string `json:"ipv4"`
	IPv6        []string `json:"ipv6"`
}

func (n *DeviceNode) NodeID() string { return n.ID }
func (n *DeviceNode) NodeKind() Kind { return KindDevice }

func (n DeviceNode) equal(o *DeviceNode) bool {
	return n.ID == o.ID &&
		n.ParentID == o.ParentID &&
		n.DisplayName == o.DisplayName &&
		n.MAC == o.MAC &&
		slices.Equal(n.IPv4, o.IPv4) &&
		slices.Equal(n.IPv6, o.IPv6)
}

// ClientID builds the composite id of a (customer, service) pair.
func ClientID(customerID, serviceID string) string {
	return "c_" + customerID + "_s_" + serviceID
}

// DeviceID builds the id of the device under a client.
func DeviceID(clientID, serviceID string) string {
	return clientID + "_d" + serviceID
}
