package nm

import (
	"fmt"
	"strings"
)

// Parsing of `nmcli -t` output lives in this file and nowhere else.
// Terse mode separates fields with ':' and escapes literal colons and
// backslashes inside values ("\:" and "\\").

// splitTerse splits one terse line into fields, honoring escapes.
func splitTerse(line string) []string {
	var fields []string
	var b strings.Builder
	esc := false
	for _, r := range line {
		switch {
		case esc:
			b.WriteRune(r)
			esc = false
		case r == '\\':
			esc = true
		case r == ':':
			fields = append(fields, b.String())
			b.Reset()
		default:
			b.WriteRune(r)
		}
	}
	fields = append(fields, b.String())
	return fields
}

// parseDeviceRows parses `nmcli -t -f DEVICE,TYPE,STATE,CONNECTION device status`.
func parseDeviceRows(out string) ([]DeviceStatus, error) {
	var rows []DeviceStatus
	for _, line := range strings.Split(out, "\n") {
		if line == "" {
			continue
		}
		fields := splitTerse(line)
		if len(fields) < 4 {
			return nil, fmt.Errorf("malformed device row %q", line)
		}
		rows = append(rows, DeviceStatus{
			Device:     fields[0],
			Type:       fields[1],
			State:      fields[2],
			Connection: fields[3],
		})
	}
	return rows, nil
}

// parseConnectionRows parses `nmcli -t -f NAME,TYPE,DEVICE connection show`.
func parseConnectionRows(out string) ([]Connection, error) {
	var rows []Connection
	for _, line := range strings.Split(out, "\n") {
		if line == "" {
			continue
		}
		fields := splitTerse(line)
		if len(fields) < 3 {
			return nil, fmt.Errorf("malformed connection row %q", line)
		}
		rows = append(rows, Connection{
			Name:   fields[0],
			Type:   fields[1],
			Device: fields[2],
		})
	}
	return rows, nil
}
