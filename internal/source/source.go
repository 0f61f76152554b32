// Package source retrieves raw records from the two upstream feeds: the HSL
// city bike snapshot archive and FMI's open data WFS service.
package source

import "github.com/rotisserie/eris"

// ErrSourceUnavailable indicates an upstream feed could not be reached or
// yielded nothing usable. It is surfaced as-is; the tool favors visible
// failure over silent partial data.
var ErrSourceUnavailable = eris.New("source unavailable")
