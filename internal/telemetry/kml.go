package telemetry

import (
	"bufio"
	"fmt"
	"io"

	"github.com/vineyard-analyzer/backend/internal/models"
)

// WriteKML writes the GPS track of a parsed log as a KML LineString,
// suitable for Google Earth.
func WriteKML(w io.Writer, name string, records []models.FlightRecord) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintln(bw, `<?xml version="1.0" encoding="UTF-8"?>`)
	fmt.Fprintln(bw, `<kml xmlns="http://www.opengis.net/kml/2.2">`)
	fmt.Fprintln(bw, `  <Document>`)
	fmt.Fprintf(bw, "    <name>%s</name>\n", xmlEscape(name))
	fmt.Fprintln(bw, `    <Placemark>`)
	fmt.Fprintln(bw, `      <name>Flight Path</name>`)
	fmt.Fprintln(bw, `      <LineString>`)
	fmt.Fprintln(bw, `        <coordinates>`)

	for i := range records {
		r := &records[i]
		fmt.Fprintf(bw, "          %g,%g,%g\n", r.Longitude, r.Latitude, r.Height)
	}

	fmt.Fprintln(bw, `        </coordinates>`)
	fmt.Fprintln(bw, `      </LineString>`)
	fmt.Fprintln(bw, `    </Placemark>`)
	fmt.Fprintln(bw, `  </Document>`)
	fmt.Fprintln(bw, `</kml>`)

	return bw.Flush()
}

func xmlEscape(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '<':
			out = append(out, "&lt;"...)
		case '>':
			out = append(out, "&gt;"...)
		case '&':
			out = append(out, "&amp;"...)
		default:
			out = append(out, s[i])
		}
	}
	return string(out)
}
