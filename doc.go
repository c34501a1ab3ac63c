// Package icap implements a client for the Internet Content Adaptation
// Protocol (RFC 3507): OPTIONS, REQMOD and RESPMOD exchanges with an
// adaptation service such as an antivirus or content-filtering engine,
// including chunked transfer-coding of encapsulated bodies and the
// preview/100-Continue negotiation.
//
// Two client variants share the same protocol engine: Client blocks the
// calling goroutine on socket deadlines, ContextClient suspends on a
// context and tears the connection down on cancellation. Both apply the
// configured timeout per I/O operation, not per logical call.
//
//	client, err := icap.NewClient(icap.Config{Host: "icap.example.com"})
//	if err != nil {
//		// ...
//	}
//	defer client.Disconnect()
//
//	resp, err := client.ScanFile("/tmp/upload.bin", "avscan")
//	if err != nil {
//		// ...
//	}
//	if resp.NoModification() {
//		// content is clean
//	}
package icap
