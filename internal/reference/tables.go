// Package reference builds the read-only lookup tables a sync run resolves
// services against.
package reference

import (
	"math"

	"github.com/septivank/crm-topology-worker/internal/crm"
)

// TariffRate is the contracted speed of a tariff in whole Mbit/s.
type TariffRate struct {
	DownloadMbps int
	UploadMbps   int
}

// RouterAddress is the management address of a router. IP may be empty.
type RouterAddress struct {
	IP string
}

// TariffTable maps tariff id to rate.
type TariffTable map[string]TariffRate

// RouterTable maps router id to address.
type RouterTable map[string]RouterAddress

// Tables bundles both lookup tables of one run.
type Tables struct {
	Tariffs TariffTable
	Routers RouterTable
}

// KbpsToMbps converts a kbit/s rate to whole Mbit/s, rounding half to even.
func KbpsToMbps(kbps int64) int {
	return int(math.RoundToEven(float64(kbps) / 1000))
}

// BuildTariffTable parses the tariff collection. A malformed record fails the
// whole table. Later duplicates replace earlier ones.
func BuildTariffTable(records []crm.Record) (TariffTable, error) {
	table := make(TariffTable, len(records))
	for i, rec := range records {
		t, err := crm.ParseTariff(i, rec)
		if err != nil {
			return nil, err
		}
		table[t.ID] = TariffRate{
			DownloadMbps: KbpsToMbps(t.DownloadKbps),
			UploadMbps:   KbpsToMbps(t.UploadKbps),
		}
	}
	return table, nil
}

// BuildRouterTable parses the router collection.
func BuildRouterTable(records []crm.Record) (RouterTable, error) {
	table := make(RouterTable, len(records))
	for i, rec := range records {
		r, err := crm.ParseRouter(i, rec)
		if err != nil {
			return nil, err
		}
		table[r.ID] = RouterAddress{IP: r.IP}
	}
	return table, nil
}

// Rate looks up a tariff.
func (t TariffTable) Rate(tariffID string) (TariffRate, bool) {
	rate, ok := t[tariffID]
	return rate, ok
}

// Address looks up a router. An empty id never matches.
func (t RouterTable) Address(routerID string) (RouterAddress, bool) {
	if routerID == "" {
		return RouterAddress{}, false
	}
	addr, ok := t[routerID]
	return addr, ok
}
