package synel

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/arloliu/go-synel/codec"
)

// TerminalStatusSize is the length of the data of a status response.
const TerminalStatusSize = 58

const statusClockLayout = "060102150405"

// TerminalStatus is the decoded data of a status ('s') response.
//
// Layout, by offset:
//
//	 0  3  hardware model
//	 3  2  hardware revision
//	 5  5  firmware version
//	10  1  active function
//	11 12  clock, yyMMddHHmmss
//	23  3  polling interval in seconds, numeric field
//	26  5  undelivered records, numeric field
//	31  3  memory usage in percent
//	34  1  transparent mode, '1' when on
//	35  1  fingerprint unit present, '1' when on
//	36  5  stored fingerprint templates, numeric field
//	41  5  fingerprint template capacity, numeric field
//	46 12  reserved
type TerminalStatus struct {
	HardwareModel        string
	HardwareRevision     string
	FirmwareVersion      string
	ActiveFunction       byte
	Clock                time.Time
	PollingInterval      time.Duration
	UndeliveredRecords   int
	MemoryUsagePercent   int
	TransparentMode      bool
	FingerprintEnabled   bool
	FingerprintTemplates int
	FingerprintCapacity  int
	Reserved             string
}

// ParseTerminalStatus decodes the data of a status response. The clock is
// interpreted in loc, or in time.Local when loc is nil.
func ParseTerminalStatus(data string, loc *time.Location) (*TerminalStatus, error) {
	if len(data) != TerminalStatusSize {
		return nil, fmt.Errorf("%w: status data length %d, want %d", ErrMalformed, len(data), TerminalStatusSize)
	}
	if loc == nil {
		loc = time.Local
	}

	s := &TerminalStatus{
		HardwareModel:      strings.TrimSpace(data[0:3]),
		HardwareRevision:   strings.TrimSpace(data[3:5]),
		FirmwareVersion:    strings.TrimSpace(data[5:10]),
		ActiveFunction:     data[10],
		TransparentMode:    data[34] == '1',
		FingerprintEnabled: data[35] == '1',
		Reserved:           data[46:58],
	}

	clock, err := time.ParseInLocation(statusClockLayout, data[11:23], loc)
	if err != nil {
		return nil, fmt.Errorf("%w: status clock %q: %w", ErrMalformed, data[11:23], err)
	}
	s.Clock = clock

	fields := []struct {
		name string
		text string
		dst  *int
	}{
		{"undelivered records", data[26:31], &s.UndeliveredRecords},
		{"fingerprint templates", data[36:41], &s.FingerprintTemplates},
		{"fingerprint capacity", data[41:46], &s.FingerprintCapacity},
	}
	for _, f := range fields {
		v, err := codec.DecodeNumber(f.text)
		if err != nil {
			return nil, fmt.Errorf("%w: status %s: %w", ErrMalformed, f.name, err)
		}
		*f.dst = int(v)
	}

	polling, err := codec.DecodeNumber(data[23:26])
	if err != nil {
		return nil, fmt.Errorf("%w: status polling interval: %w", ErrMalformed, err)
	}
	s.PollingInterval = time.Duration(polling) * time.Second

	mem, err := strconv.Atoi(data[31:34])
	if err != nil || mem > 100 {
		return nil, fmt.Errorf("%w: status memory usage %q", ErrMalformed, data[31:34])
	}
	s.MemoryUsagePercent = mem

	return s, nil
}
