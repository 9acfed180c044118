package reconcile

import (
	"fmt"

	"github.com/septivank/crm-topology-worker/internal/crm"
	"github.com/septivank/crm-topology-worker/internal/reference"
	"github.com/septivank/crm-topology-worker/internal/topology"
)

// UnresolvedReference is a non-fatal warning: a service takes its IPv4
// address from a router that is not in the router table.
type UnresolvedReference struct {
	CustomerID string
	ServiceID  string
	ClientID   string
	RouterID   string
}

func (u UnresolvedReference) String() string {
	return fmt.Sprintf("taking_ipv4 was 0 for client %s but router %q was not found", u.ClientID, u.RouterID)
}

// Pair is the client node and its single device for one service.
type Pair struct {
	Client topology.ClientNode
	Device topology.DeviceNode
}

// Address renders the customer address. When all three parts are empty the
// "id/name" placeholder is used; otherwise the parts are joined as is.
func Address(c crm.Customer) string {
	if c.Street == "" && c.City == "" && c.ZipCode == "" {
		return c.ID + "/" + c.Name
	}
	return c.Street + " " + c.City + " " + c.ZipCode
}

// ResolveService turns one active service of an active customer into its
// node pair. index is the position of the service in its collection and
// only feeds error messages.
func ResolveService(tables reference.Tables, cust crm.Customer, index int, svc crm.Service) (Pair, *UnresolvedReference, error) {
	clientID := topology.ClientID(cust.ID, svc.ID)

	rate, ok := tables.Tariffs.Rate(svc.TariffID)
	if !ok {
		return Pair{}, nil, &crm.SchemaError{
			Collection: crm.ServicesCollection(cust.ID),
			Index:      index,
			RecordID:   svc.ID,
			Field:      "tariff_id",
			Reason:     fmt.Sprintf("references unknown tariff %q", svc.TariffID),
		}
	}

	ipv4, warning := resolveIPv4(tables.Routers, svc)
	if warning != nil {
		warning.CustomerID = cust.ID
		warning.ClientID = clientID
	}

	pair := Pair{
		Client: topology.ClientNode{
			ID:           clientID,
			DisplayName:  cust.Name,
			CustomerName: cust.Name,
			Address:      Address(cust),
			Download:     rate.DownloadMbps,
			Upload:       rate.UploadMbps,
		},
		Device: topology.DeviceNode{
			ID:          topology.DeviceID(clientID, svc.ID),
			ParentID:    clientID,
			DisplayName: svc.ID,
			MAC:         svc.MAC,
			IPv4:        []string{ipv4},
			IPv6:        []string{resolveIPv6(svc)},
		},
	}
	return pair, warning, nil
}

func resolveIPv4(routers reference.RouterTable, svc crm.Service) (string, *UnresolvedReference) {
	switch svc.TakingIPv4 {
	case crm.AssignmentRouter:
		addr, ok := routers.Address(svc.RouterID)
		if !ok {
			return "", &UnresolvedReference{ServiceID: svc.ID, RouterID: svc.RouterID}
		}
		return addr.IP, nil
	case crm.AssignmentStatic:
		return svc.IPv4, nil
	default:
		return "", nil
	}
}

// resolveIPv6 has no router lookup: a router-assigned IPv6 stays empty.
func resolveIPv6(svc crm.Service) string {
	if svc.TakingIPv6 == crm.AssignmentStatic {
		return svc.IPv6
	}
	return ""
}
