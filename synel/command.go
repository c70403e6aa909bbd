package synel

import (
	"fmt"
	"time"
)

// Control characters used on the wire.
const (
	SOH  byte = 0x01
	EOT  byte = 0x04
	ACK  byte = 0x06
	NACK byte = 0x15
)

// Frame limits.
const (
	MaxDataSize   = 128                                    // data bytes per frame, fingerprint frames excepted
	MinPacketSize = headerSize + trailerSize               // empty data
	MaxPacketSize = headerSize + MaxDataSize + trailerSize // 135

	headerSize  = 2 // command + terminal id
	trailerSize = 5 // crc + EOT
)

const (
	// DefaultPort is the TCP port of a terminal network bridge.
	DefaultPort = 3734

	// DefaultConnectTimeout bounds gatekeeper admission plus the TCP dial.
	DefaultConnectTimeout = 5 * time.Second

	// DefaultTimeout is how long an exchange waits for a matching response.
	DefaultTimeout = 5000 * time.Millisecond

	// DefaultAttempts is the number of times a request is sent when no response arrives.
	DefaultAttempts = 1

	// MaxCRCRetries is how many responses with a bad checksum an exchange
	// tolerates before giving up. It does not depend on the request's attempts.
	MaxCRCRetries = 10

	// DefaultIdleTimeout closes a push connection that sent nothing for this long.
	DefaultIdleTimeout = 3 * time.Second

	// MaxTerminalID is the highest addressable terminal id.
	MaxTerminalID = 31
)

// Command is a request command sent by the host.
type Command byte

const (
	// CmdGetFullDataBlock reads the oldest record together with its whole data block.
	CmdGetFullDataBlock Command = 'A'
	// CmdGetData reads the oldest undelivered record.
	CmdGetData Command = 'B'
	// CmdClearBuffer deletes every record in the terminal buffer.
	CmdClearBuffer Command = 'C'
	// CmdClearByDate deletes the records older than a date.
	CmdClearByDate Command = 'c'
	// CmdGetStatus reads the terminal status.
	CmdGetStatus Command = 'D'
	// CmdSetStatus writes the terminal status, including the clock.
	CmdSetStatus Command = 'E'
	// CmdAcknowledgeLastRecord confirms the record returned by the last GetData.
	CmdAcknowledgeLastRecord Command = 'F'
	// CmdResetBuffer marks every record in the buffer as undelivered again.
	CmdResetBuffer Command = 'G'
	// CmdDisplayMessage shows a message on the terminal display.
	CmdDisplayMessage Command = 'H'
	// CmdTableOperation uploads or deletes a programmable table.
	CmdTableOperation Command = 'I'
	// CmdHalt suspends the terminal application.
	CmdHalt Command = 'K'
	// CmdRun resumes the terminal application.
	CmdRun Command = 'L'
	// CmdSendOnlyQuery forwards a query without waiting for an answer.
	CmdSendOnlyQuery Command = 'O'
	// CmdQueryReply answers a query pushed by the terminal.
	CmdQueryReply Command = 'Q'
	// CmdResetLine resets the communication line after a backlog.
	CmdResetLine Command = 'R'
	// CmdSystemCommands carries a system command.
	CmdSystemCommands Command = 'S'
	// CmdFingerprint manages fingerprint templates.
	CmdFingerprint Command = 'V'
)

var commandNames = map[Command]string{
	CmdGetFullDataBlock:      "GetFullDataBlock",
	CmdGetData:               "GetData",
	CmdClearBuffer:           "ClearBuffer",
	CmdClearByDate:           "ClearByDate",
	CmdGetStatus:             "GetStatus",
	CmdSetStatus:             "SetStatus",
	CmdAcknowledgeLastRecord: "AcknowledgeLastRecord",
	CmdResetBuffer:           "ResetBuffer",
	CmdDisplayMessage:        "DisplayMessage",
	CmdTableOperation:        "TableOperation",
	CmdHalt:                  "Halt",
	CmdRun:                   "Run",
	CmdSendOnlyQuery:         "SendOnlyQuery",
	CmdQueryReply:            "QueryReply",
	CmdResetLine:             "ResetLine",
	CmdSystemCommands:        "SystemCommands",
	CmdFingerprint:           "Fingerprint",
}

// IsValid reports whether c is a known request command.
func (c Command) IsValid() bool {
	_, ok := commandNames[c]
	return ok
}

// String returns the command name.
func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}

	return fmt.Sprintf("Command(0x%02x)", byte(c))
}

// ResponseCommand is the command of a frame sent by a terminal.
type ResponseCommand byte

const (
	// RspBusy means the terminal cannot serve the request right now.
	RspBusy ResponseCommand = 'b'
	// RspDataRecord carries one buffered record.
	RspDataRecord ResponseCommand = 'd'
	// RspNoData means the record buffer is empty.
	RspNoData ResponseCommand = 'n'
	// RspQueryForHost is a query pushed by the terminal.
	RspQueryForHost ResponseCommand = 'q'
	// RspTerminalStatus carries the terminal status.
	RspTerminalStatus ResponseCommand = 's'
	// RspSystemCommands answers a system command.
	RspSystemCommands ResponseCommand = 'S'
	// RspBlockReceived confirms an intermediate fingerprint block.
	RspBlockReceived ResponseCommand = 't'
	// RspLastCommand answers the last block of a command and carries fingerprint results.
	RspLastCommand ResponseCommand = 'v'
	// RspAcknowledged confirms a command.
	RspAcknowledged ResponseCommand = ResponseCommand(ACK)
	// RspNotAcknowledged rejects a command.
	RspNotAcknowledged ResponseCommand = ResponseCommand(NACK)
)

var responseNames = map[ResponseCommand]string{
	RspBusy:            "Busy",
	RspDataRecord:      "DataRecord",
	RspNoData:          "NoData",
	RspQueryForHost:    "QueryForHost",
	RspTerminalStatus:  "TerminalStatus",
	RspSystemCommands:  "SystemCommands",
	RspBlockReceived:   "BlockReceived",
	RspLastCommand:     "LastCommand",
	RspAcknowledged:    "Acknowledged",
	RspNotAcknowledged: "NotAcknowledged",
}

// IsValid reports whether c is a known response command.
func (c ResponseCommand) IsValid() bool {
	_, ok := responseNames[c]
	return ok
}

// String returns the response name.
func (c ResponseCommand) String() string {
	if name, ok := responseNames[c]; ok {
		return name
	}

	return fmt.Sprintf("ResponseCommand(0x%02x)", byte(c))
}
