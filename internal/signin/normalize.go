package signin

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

var worksheetNameReplacer = strings.NewReplacer(
	"/", "-", "\\", "-", "?", "-", "*", "-", "[", "-", "]", "-", ":", "-",
)

// NormalizeAddress turns an address into the title of its worksheet: NFC,
// trimmed, single-spaced, with characters that sheet names reject replaced
// by "-".
func NormalizeAddress(address string) string {
	s := norm.NFC.String(address)
	s = strings.Join(strings.Fields(s), " ")
	return worksheetNameReplacer.Replace(s)
}
