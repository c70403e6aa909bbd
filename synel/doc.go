// Package synel implements the host side of the Synel time-clock terminal protocol over TCP.
//
// A frame on the wire is
//
//	<command:1><terminal id:1><data:0..128><crc:4><EOT>
//
// where the terminal id 0..31 is sent as one character of '0'..'?' or 'A'..'P',
// and the CRC is the four character checksum produced by package crc over
// every byte before it.
//
// # Client
//
// A [Client] owns one TCP connection to a terminal bridge. Connections are
// serialized per endpoint through a [gatekeeper.Gatekeeper], so two clients
// for the same address never talk to the bridge at the same time:
//
//	cfg, _ := synel.NewConnectionConfig("10.0.0.7", synel.DefaultPort)
//	client, err := synel.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	term, _ := client.Terminal(1)
//	status, err := term.GetStatus(ctx)
//
// [Client.Exchange] sends one request and waits for the first matching
// response. Timeouts are retried up to the request's attempt budget, and
// frames with a bad checksum are re-requested up to [MaxCRCRetries] times.
// Frames for other terminals, unsolicited host queries and responses outside
// the request's allow-list are skipped.
//
// # Listener
//
// A [Listener] accepts terminal-initiated connections and hands every data
// record or host query to a [Handler] as a [PushNotification]. The handler
// answers with [PushNotification.Acknowledge] or [PushNotification.Reply].
// A connection that stays silent for the idle timeout is closed.
package synel
