package synel

import "context"

// RecordParser decodes the data of a data record frame into a record value.
// Each record type supplies its own parser.
type RecordParser[T any] func(terminalID int, data string) (T, error)

// DataRecord is a data record kept in its wire form.
type DataRecord struct {
	TerminalID int
	Data       string
}

// ParseDataRecord is the RecordParser for DataRecord.
func ParseDataRecord(terminalID int, data string) (DataRecord, error) {
	return DataRecord{TerminalID: terminalID, Data: data}, nil
}

// FetchRecord requests the oldest undelivered record of t and decodes it with
// parse. ok is false when the terminal has no data.
//
// The record stays in the terminal buffer until AcknowledgeLastRecord.
func FetchRecord[T any](ctx context.Context, t *Terminal, parse RecordParser[T]) (rec T, ok bool, err error) {
	resp, err := t.exchange(ctx, CmdGetData, "", string(RspDataRecord), string(RspNoData))
	if err != nil {
		return rec, false, err
	}

	if resp.Command == RspNoData {
		return rec, false, nil
	}

	rec, err = parse(resp.TerminalID, resp.Data)
	if err != nil {
		return rec, false, err
	}

	return rec, true, nil
}
