package ledger

import (
	"github.com/uber/h3-go/v4"
)

// GatewayLocation is a gateway's registered lat/lng, the input to hex
// indexing (spec.md §4.4's "hexes" are H3 cells at poc_target_hex_parent_res).
type GatewayLocation struct {
	Lat float64
	Lng float64
}

// HexIDForLocation resolves loc to the H3 cell ID at resolution res, the
// same cell id space HexEntry.HexID and the ledger's hex index are keyed
// by. This is the one place this module reaches into real H3 geospatial
// indexing rather than treating hex IDs as opaque uint64s.
func HexIDForLocation(loc GatewayLocation, res int) uint64 {
	cell := h3.NewLatLng(loc.Lat, loc.Lng).Cell(res)
	return uint64(cell)
}

// PutGatewayAtLocation is a convenience wrapper around PutGateway that
// resolves loc to a hex cell at res before indexing.
func (m *MemLedger) PutGatewayAtLocation(info GatewayInfo, loc GatewayLocation, res int) {
	info.HasLocation = true
	m.PutGateway(info, HexIDForLocation(loc, res))
}
