// Package extractor provides functions for extracting shipment data from parsed broadcast messages.
// This package is database-agnostic and can be used with any storage backend.
package extractor

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"

	"cargo_parser/internal/chat"
	"cargo_parser/internal/registry"
)

// ShipmentUpdate contains the manifest header extracted from a message.
type ShipmentUpdate struct {
	MessageID  int64  `json:"message_id"`
	Source     string `json:"source,omitempty"`
	ChatID     string `json:"chat_id,omitempty"`
	Sender     string `json:"sender,omitempty"`
	SentAt     string `json:"sent_at,omitempty"`
	Date       string `json:"date"`
	Origin     string `json:"origin"`
	SafetyNote string `json:"safety_note,omitempty"`
	RawText    string `json:"raw_text,omitempty"`
}

// ItemUpdate contains one cargo line of a manifest.
type ItemUpdate struct {
	Sequence     int      `json:"sequence"` // 1-based position in the message.
	Destinations []string `json:"destinations"`
	VolumeCBM    *int     `json:"volume_cbm,omitempty"`
	UnitCount    *int     `json:"unit_count,omitempty"`
	PODate       string   `json:"po_date,omitempty"`
	Notes        string   `json:"notes,omitempty"`
}

// DropUpdate is one destination of one cargo line, flattened for analytics.
// Volume and units are attributed to the primary drop only so that sums over
// drops match sums over items.
type DropUpdate struct {
	ShipDate       string `json:"ship_date"`
	Origin         string `json:"origin"`
	Destination    string `json:"destination"`
	DestinationKey string `json:"destination_key"`
	ItemSequence   int    `json:"item_sequence"`
	DropSequence   int    `json:"drop_sequence"` // 1 = primary.
	Primary        bool   `json:"primary"`
	VolumeCBM      int    `json:"volume_cbm"`
	UnitCount      int    `json:"unit_count"`
	PODate         string `json:"po_date,omitempty"`
}

// Summary aggregates the items of one manifest.
type Summary struct {
	Items         int    `json:"items"`
	Drops         int    `json:"drops"`
	TotalCBM      int    `json:"total_cbm"`
	TotalUnits    int    `json:"total_units"`
	AvgCBMPerUnit string `json:"avg_cbm_per_unit,omitempty"` // Two decimal places.
}

// ExtractedData is a container for all data extracted from a message.
type ExtractedData struct {
	Shipment *ShipmentUpdate `json:"shipment,omitempty"`
	Items    []*ItemUpdate   `json:"items,omitempty"`
	Drops    []*DropUpdate   `json:"drops,omitempty"`
	Summary  *Summary        `json:"summary,omitempty"`
}

// manifestFields mirrors the JSON shape of a cargo manifest result.
type manifestFields struct {
	Date       string `json:"date"`
	Origin     string `json:"origin"`
	SafetyNote string `json:"safety_note"`
	Items      []struct {
		Destinations []string `json:"destinations"`
		VolumeCBM    *int     `json:"volume_cbm"`
		UnitCount    *int     `json:"unit_count"`
		PODate       string   `json:"po_date"`
		Notes        string   `json:"notes"`
	} `json:"items"`
}

// Extract extracts relevant data from a message and its parsed results.
// This function is database-agnostic and returns all extracted data for the
// caller to process as needed. Only the first manifest result is used.
func Extract(msg *chat.Message, results []registry.Result) ExtractedData {
	data := ExtractedData{}

	for _, result := range results {
		if result.Type() != "cargo_manifest" {
			continue
		}
		if extractFromResult(msg, &data, result) {
			break
		}
	}

	return data
}

// NormaliseDestination folds case and whitespace so the same drop point
// written differently ("TSM Tasikmalaya", "Tsm  Tasikmalaya") groups together.
func NormaliseDestination(name string) string {
	return strings.ToUpper(strings.Join(strings.Fields(name), " "))
}

// extractFromResult fills data from one manifest result.
func extractFromResult(msg *chat.Message, data *ExtractedData, result registry.Result) bool {
	// Convert result to the mirror struct for decoupled field access.
	b, err := json.Marshal(result)
	if err != nil {
		return false
	}

	var m manifestFields
	if json.Unmarshal(b, &m) != nil || m.Date == "" || m.Origin == "" {
		return false
	}

	shipment := &ShipmentUpdate{
		MessageID:  result.MessageID(),
		Date:       m.Date,
		Origin:     strings.TrimSpace(m.Origin),
		SafetyNote: m.SafetyNote,
	}
	if msg != nil {
		shipment.Source = msg.Source
		shipment.ChatID = msg.ChatID()
		shipment.SentAt = msg.Timestamp
		shipment.RawText = msg.Text
		if msg.Sender != nil {
			shipment.Sender = msg.Sender.Name
			if shipment.Sender == "" {
				shipment.Sender = msg.Sender.Phone
			}
		}
	}
	data.Shipment = shipment

	summary := &Summary{}
	for i, it := range m.Items {
		item := &ItemUpdate{
			Sequence:     i + 1,
			Destinations: it.Destinations,
			VolumeCBM:    it.VolumeCBM,
			UnitCount:    it.UnitCount,
			PODate:       it.PODate,
			Notes:        it.Notes,
		}
		data.Items = append(data.Items, item)

		volume, units := deref(it.VolumeCBM), deref(it.UnitCount)
		summary.Items++
		summary.TotalCBM += volume
		summary.TotalUnits += units

		for j, dest := range it.Destinations {
			drop := &DropUpdate{
				ShipDate:       m.Date,
				Origin:         shipment.Origin,
				Destination:    dest,
				DestinationKey: NormaliseDestination(dest),
				ItemSequence:   i + 1,
				DropSequence:   j + 1,
				Primary:        j == 0,
				PODate:         it.PODate,
			}
			if drop.Primary {
				drop.VolumeCBM = volume
				drop.UnitCount = units
			}
			data.Drops = append(data.Drops, drop)
			summary.Drops++
		}
	}

	if summary.TotalUnits > 0 {
		summary.AvgCBMPerUnit = decimal.NewFromInt(int64(summary.TotalCBM)).
			Div(decimal.NewFromInt(int64(summary.TotalUnits))).
			StringFixed(2)
	}
	data.Summary = summary

	return true
}

func deref(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
