// Package trdp defines the shared vocabulary of the Train Real-time Data
// Protocol stack: addresses, ComIDs, message types, result codes and the
// event passed from a transport session to application handlers.
package trdp

// Message Data (MD) is the request/reply/notify service and runs over
// port 17225. Process Data (PD) is the periodic publish/subscribe service
// and runs over port 17224.
//
// A transport session is driven by a single goroutine which repeatedly asks
// it for the next deadline and a watch set (Processor.Interval), waits, and
// hands control back (Processor.Process). All handlers are invoked
// synchronously from Process.
