package reference

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/septivank/crm-topology-worker/internal/crm"
)

func TestKbpsToMbps(t *testing.T) {
	cases := map[int64]int{
		5000:   5,
		1000:   1,
		0:      0,
		400:    0,
		600:    1,
		1500:   2, // half to even
		2500:   2, // half to even
		3500:   4,
		100000: 100,
	}
	for in, want := range cases {
		assert.Equal(t, want, KbpsToMbps(in), "kbps %d", in)
	}
}

func TestBuildTariffTable(t *testing.T) {
	table, err := BuildTariffTable([]crm.Record{
		{"id": json.Number("1"), "speed_download": json.Number("5000"), "speed_upload": json.Number("1000")},
		{"id": "2", "speed_download": "102400", "speed_upload": "10240"},
	})
	require.NoError(t, err)

	rate, ok := table.Rate("1")
	require.True(t, ok)
	assert.Equal(t, TariffRate{DownloadMbps: 5, UploadMbps: 1}, rate)

	rate, ok = table.Rate("2")
	require.True(t, ok)
	assert.Equal(t, TariffRate{DownloadMbps: 102, UploadMbps: 10}, rate)

	_, ok = table.Rate("3")
	assert.False(t, ok)
}

func TestBuildTariffTable_BadRecordFails(t *testing.T) {
	_, err := BuildTariffTable([]crm.Record{
		{"id": "1", "speed_download": "5000", "speed_upload": "1000"},
		{"id": "2", "speed_download": "fast", "speed_upload": "1000"},
	})

	var schemaErr *crm.SchemaError
	require.True(t, errors.As(err, &schemaErr))
	assert.Equal(t, crm.CollectionTariffs, schemaErr.Collection)
	assert.Equal(t, 1, schemaErr.Index)
	assert.Equal(t, "speed_download", schemaErr.Field)
}

func TestBuildRouterTable(t *testing.T) {
	table, err := BuildRouterTable([]crm.Record{
		{"id": json.Number("7"), "ip": "10.0.0.1"},
		{"id": json.Number("8"), "ip": nil},
	})
	require.NoError(t, err)

	addr, ok := table.Address("7")
	require.True(t, ok)
	assert.Equal(t, "10.0.0.1", addr.IP)

	addr, ok = table.Address("8")
	require.True(t, ok)
	assert.Empty(t, addr.IP)

	_, ok = table.Address("")
	assert.False(t, ok)
}

func TestBuildRouterTable_MissingIP(t *testing.T) {
	_, err := BuildRouterTable([]crm.Record{{"id": "7"}})

	var schemaErr *crm.SchemaError
	require.True(t, errors.As(err, &schemaErr))
	assert.Equal(t, crm.CollectionRouters, schemaErr.Collection)
	assert.Equal(t, "ip", schemaErr.Field)
}
