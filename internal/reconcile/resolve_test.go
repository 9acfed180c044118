package reconcile

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/septivank/crm-topology-worker/internal/crm"
	"github.com/septivank/crm-topology-worker/internal/reference"
)

var testTables = reference.Tables{
	Tariffs: reference.TariffTable{"3": {DownloadMbps: 5, UploadMbps: 1}},
	Routers: reference.RouterTable{"7": {IP: "10.0.0.1"}},
}

var testCustomer = crm.Customer{ID: "42", Name: "Acme", Status: crm.StatusActive}

func TestAddress(t *testing.T) {
	assert.Equal(t, "42/Acme", Address(crm.Customer{ID: "42", Name: "Acme"}))
	assert.Equal(t, "1 Main St Springfield 00001",
		Address(crm.Customer{Street: "1 Main St", City: "Springfield", ZipCode: "00001"}))
	// partially empty addresses keep their spacing
	assert.Equal(t, " Springfield ", Address(crm.Customer{ID: "1", Name: "x", City: "Springfield"}))
}

func TestResolveService_IPv4(t *testing.T) {
	cases := []struct {
		name    string
		svc     crm.Service
		want    string
		warning bool
	}{
		{"router assigned", crm.Service{ID: "9", TariffID: "3", RouterID: "7", TakingIPv4: crm.AssignmentRouter}, "10.0.0.1", false},
		{"router missing", crm.Service{ID: "9", TariffID: "3", RouterID: "8", TakingIPv4: crm.AssignmentRouter}, "", true},
		{"no router id", crm.Service{ID: "9", TariffID: "3", TakingIPv4: crm.AssignmentRouter}, "", true},
		{"static", crm.Service{ID: "9", TariffID: "3", RouterID: "7", IPv4: "203.0.113.5", TakingIPv4: crm.AssignmentStatic}, "203.0.113.5", false},
		{"unresolved", crm.Service{ID: "9", TariffID: "3", RouterID: "7", IPv4: "203.0.113.5", TakingIPv4: crm.AssignmentUnresolved}, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pair, warning, err := ResolveService(testTables, testCustomer, 0, tc.svc)
			require.NoError(t, err)
			assert.Equal(t, []string{tc.want}, pair.Device.IPv4)
			if tc.warning {
				require.NotNil(t, warning)
				assert.Equal(t, "c_42_s_9", warning.ClientID)
				assert.Equal(t, tc.svc.RouterID, warning.RouterID)
			} else {
				assert.Nil(t, warning)
			}
		})
	}
}

func TestResolveService_IPv6(t *testing.T) {
	base := crm.Service{ID: "9", TariffID: "3", IPv6: "2001:db8::9"}

	router := base
	router.TakingIPv6 = crm.AssignmentRouter
	pair, _, err := ResolveService(testTables, testCustomer, 0, router)
	require.NoError(t, err)
	assert.Equal(t, []string{""}, pair.Device.IPv6)

	static := base
	static.TakingIPv6 = crm.AssignmentStatic
	pair, _, err = ResolveService(testTables, testCustomer, 0, static)
	require.NoError(t, err)
	assert.Equal(t, []string{"2001:db8::9"}, pair.Device.IPv6)
}

func TestResolveService_Identity(t *testing.T) {
	svc := crm.Service{ID: "9", TariffID: "3", MAC: "aa:bb", TakingIPv4: crm.AssignmentStatic}

	pair, _, err := ResolveService(testTables, testCustomer, 0, svc)
	require.NoError(t, err)

	assert.Equal(t, "c_42_s_9", pair.Client.ID)
	assert.Equal(t, "c_42_s_9_d9", pair.Device.ID)
	assert.Equal(t, pair.Client.ID, pair.Device.ParentID)
	assert.Equal(t, "9", pair.Device.DisplayName)
	assert.Equal(t, "aa:bb", pair.Device.MAC)
	assert.Equal(t, 5, pair.Client.Download)
	assert.Equal(t, 1, pair.Client.Upload)

	again, _, err := ResolveService(testTables, testCustomer, 0, svc)
	require.NoError(t, err)
	assert.Equal(t, pair, again)
}

func TestResolveService_UnknownTariff(t *testing.T) {
	_, _, err := ResolveService(testTables, testCustomer, 4, crm.Service{ID: "9", TariffID: "99"})

	var schemaErr *crm.SchemaError
	require.True(t, errors.As(err, &schemaErr))
	assert.Equal(t, "customers/42/internet-services", schemaErr.Collection)
	assert.Equal(t, 4, schemaErr.Index)
	assert.Equal(t, "9", schemaErr.RecordID)
	assert.Equal(t, "tariff_id", schemaErr.Field)
}
