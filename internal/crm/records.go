package crm

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Record is a single loosely typed object as returned by the CRM API.
type Record map[string]any

// Collection names used in schema errors.
const (
	CollectionTariffs   = "tariffs"
	CollectionCustomers = "customers"
	CollectionServices  = "internet-services"
	CollectionRouters   = "routers"
)

// ServicesCollection names the service collection of one customer.
func ServicesCollection(customerID string) string {
	return CollectionCustomers + "/" + customerID + "/" + CollectionServices
}

// StatusActive is the only status value that is synchronized.
const StatusActive = "active"

// Assignment tells where the address of a service comes from.
type Assignment int

const (
	// AssignmentUnresolved means the flag held a value other than 0 or 1.
	AssignmentUnresolved Assignment = iota
	// AssignmentRouter means the router hands out the address (flag 0).
	AssignmentRouter
	// AssignmentStatic means the service carries its own address (flag 1).
	AssignmentStatic
)

func (a Assignment) String() string {
	switch a {
	case AssignmentRouter:
		return "router"
	case AssignmentStatic:
		return "static"
	default:
		return "unresolved"
	}
}

// ParseAssignment normalizes a taking_ipv4/taking_ipv6 flag. The CRM sends
// these as numbers, numeric strings or booleans depending on the endpoint.
func ParseAssignment(v any) (Assignment, bool) {
	n, ok := intValue(v)
	if !ok {
		return AssignmentUnresolved, false
	}
	switch n {
	case 0:
		return AssignmentRouter, true
	case 1:
		return AssignmentStatic, true
	default:
		return AssignmentUnresolved, true
	}
}

// Customer is a typed customer record.
type Customer struct {
	ID      string
	Name    string
	Status  string
	Street  string
	City    string
	ZipCode string
}

func (c Customer) Active() bool { return c.Status == StatusActive }

// Service is a typed internet service record.
type Service struct {
	ID         string
	Status     string
	TariffID   string
	RouterID   string
	MAC        string
	IPv4       string
	IPv6       string
	TakingIPv4 Assignment
	TakingIPv6 Assignment
}

func (s Service) Active() bool { return s.Status == StatusActive }

// Tariff is a typed internet tariff record, speeds in kbit/s.
type Tariff struct {
	ID           string
	DownloadKbps int64
	UploadKbps   int64
}

// Router is a typed router record.
type Router struct {
	ID string
	IP string
}

type recordParser struct {
	collection string
	index      int
	record     Record
	id         string
	err        *SchemaError
}

func newParser(collection string, index int, r Record) *recordParser {
	return &recordParser{collection: collection, index: index, record: r}
}

func (p *recordParser) fail(field, reason string) {
	if p.err == nil {
		p.err = &SchemaError{
			Collection: p.collection,
			Index:      p.index,
			RecordID:   p.id,
			Field:      field,
			Reason:     reason,
		}
	}
}

func (p *recordParser) requireID(field string) string {
	v, present := p.record[field]
	if !present {
		p.fail(field, "is missing")
		return ""
	}
	s, ok := idValue(v)
	if !ok || s == "" {
		p.fail(field, "is not an identifier")
		return ""
	}
	return s
}

// optionalID reads an identifier that may be null, absent or zero.
func (p *recordParser) optionalID(field string) string {
	s, ok := idValue(p.record[field])
	if !ok || s == "0" {
		return ""
	}
	return s
}

func (p *recordParser) requireText(field string) string {
	v, present := p.record[field]
	if !present {
		p.fail(field, "is missing")
		return ""
	}
	s, ok := textValue(v)
	if !ok {
		p.fail(field, "is not a string")
	}
	return s
}

func (p *recordParser) optionalText(field string) string {
	s, ok := textValue(p.record[field])
	if !ok {
		p.fail(field, "is not a string")
	}
	return s
}

func (p *recordParser) requireInt(field string) int64 {
	v, present := p.record[field]
	if !present {
		p.fail(field, "is missing")
		return 0
	}
	n, ok := intValue(v)
	if !ok {
		p.fail(field, "is not an integer")
	}
	return n
}

func (p *recordParser) requireAssignment(field string) Assignment {
	v, present := p.record[field]
	if !present {
		p.fail(field, "is missing")
		return AssignmentUnresolved
	}
	a, ok := ParseAssignment(v)
	if !ok {
		p.fail(field, "is not a 0/1 flag")
	}
	return a
}

// lenientAssignment reads a flag that must be present but whose non-string
// values outside 0/1 (null included) mean unresolved. Strings still have to
// hold an integer.
func (p *recordParser) lenientAssignment(field string) Assignment {
	v, present := p.record[field]
	if !present {
		p.fail(field, "is missing")
		return AssignmentUnresolved
	}
	a, ok := ParseAssignment(v)
	if _, isString := v.(string); !ok && isString {
		p.fail(field, "is not a 0/1 flag")
	}
	return a
}

func (p *recordParser) identify() {
	p.id = p.requireID("id")
}

func (p *recordParser) result() error {
	if p.err != nil {
		return p.err
	}
	return nil
}

// ParseCustomer validates id and status on every customer and the remaining
// fields only when the customer is active.
func ParseCustomer(index int, r Record) (Customer, error) {
	p := newParser(CollectionCustomers, index, r)
	p.identify()
	c := Customer{ID: p.id, Status: p.requireText("status")}
	if p.err == nil && c.Active() {
		c.Name = p.requireText("name")
		c.Street = p.optionalText("street_1")
		c.City = p.optionalText("city")
		c.ZipCode = p.optionalText("zip_code")
	}
	return c, p.result()
}

// ParseService validates a service of the given customer. Inactive services
// only need id and status.
func ParseService(customerID string, index int, r Record) (Service, error) {
	p := newParser(ServicesCollection(customerID), index, r)
	p.identify()
	s := Service{ID: p.id, Status: p.requireText("status")}
	if p.err == nil && s.Active() {
		s.TariffID = p.requireID("tariff_id")
		s.RouterID = p.optionalID("router_id")
		s.MAC = p.optionalText("mac")
		s.IPv4 = p.optionalText("ipv4")
		s.IPv6 = p.optionalText("ipv6")
		s.TakingIPv4 = p.requireAssignment("taking_ipv4")
		s.TakingIPv6 = p.lenientAssignment("taking_ipv6")
	}
	return s, p.result()
}

// ParseTariff validates a tariff record.
func ParseTariff(index int, r Record) (Tariff, error) {
	p := newParser(CollectionTariffs, index, r)
	p.identify()
	t := Tariff{
		ID:           p.id,
		DownloadKbps: p.requireInt("speed_download"),
		UploadKbps:   p.requireInt("speed_upload"),
	}
	return t, p.result()
}

// ParseRouter validates a router record. The ip key must be present, but a
// null value is read as an empty address.
func ParseRouter(index int, r Record) (Router, error) {
	p := newParser(CollectionRouters, index, r)
	p.identify()
	rt := Router{ID: p.id, IP: p.requireText("ip")}
	return rt, p.result()
}

func idValue(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t), true
	case json.Number:
		return t.String(), true
	case float64:
		if t != math.Trunc(t) {
			return "", false
		}
		return strconv.FormatInt(int64(t), 10), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	default:
		return "", false
	}
}

func textValue(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", true
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	default:
		return "", false
	}
}

// intValue follows int() semantics: fractional numbers truncate toward zero,
// strings must hold an integer.
func intValue(v any) (int64, bool) {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n, true
		}
		f, err := t.Float64()
		if err != nil {
			return 0, false
		}
		return int64(f), true
	case float64:
		return int64(t), true
	case int:
		return int64(t), true
	case int64:
		return t, true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}
