// Package manifest parses cargo loading broadcasts ("planning loading"
// messages sent to transporter groups) into structured manifests.
package manifest

import "cargo_parser/internal/patterns"

// localPatterns extends the shared BasePatterns with manifest vocabulary.
var localPatterns = map[string]string{
	"PO_MARK": `po`,
	"PO_QUAL": `(?:tgl|tanggal)\.?`,
	"UNIT":    `units?`,
	"SAFETY":  `pastikan\s+(?:driver|supir)|driver\s+harus|supir\s+harus|gunakan\s+apd|wajib\s+memakai`,
	"THANKS":  `terima\s+kasih|thank(?:s|\s+you)`,
	"ORIGIN":  `origin`,
}

// Formats defines the token shapes found in a broadcast.
var Formats = []patterns.Format{
	// Purchase-order phrase attached to a cargo line.
	// Example: Lotte Meruya 1 Cbm 1 unit PO 11 Okt 2024
	// Example: Duta Intidaya 8 Cbm PO Tgl 28 10 24
	// The date part is resolved separately and may fail.
	{
		Name:    "po_phrase",
		Pattern: `\b{PO_MARK}\b(?:\s+{PO_QUAL})?\s+(?P<date>{DAY}(?:\s+(?:[a-z]+|{MONTH_NUM}))?(?:\s+{YEAR_LOOSE})?)\b`,
		Fields:  []string{"date"},
	},
	// Origin header.
	// Example: Origin KCS Karawang
	// Example: ORIGIN: Gudang Cikarang
	{
		Name:    "origin_header",
		Pattern: `\b{ORIGIN}\b[\s:]*(?P<origin>.*)$`,
		Fields:  []string{"origin"},
	},
	// Volume token.
	// Example: 45 Cbm, 45cbm
	{
		Name:    "volume",
		Pattern: `\b(?P<n>{NUM})\s*{CBM}\b`,
		Fields:  []string{"n"},
	},
	// Unit count token.
	// Example: 1 Unit, 2 units
	{
		Name:    "units",
		Pattern: `\b(?P<n>{NUM})\s*{UNIT}\b`,
		Fields:  []string{"n"},
	},
	// Safety reminder header.
	// Example: Pastikan Driver memakai (Sepatu Safety, Helm & Safety Vest)
	{
		Name:    "safety_note",
		Pattern: `(?:{SAFETY})`,
	},
	// Closing line that ends a safety reminder.
	// Example: Terima kasih
	{
		Name:    "closing",
		Pattern: `\b(?:{THANKS})\b`,
	},
}
