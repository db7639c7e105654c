// Package rbb implements the server side of the JTAG remote-bitbang protocol
// for a cycle-driven simulation.
//
// A debugger such as OpenOCD (driver "remote_bitbang") connects over TCP or a
// Unix-domain socket and sends one ASCII byte per operation. The simulation
// calls Bridge.Tick once per clock edge with the current TDO value and gets
// back the TCK/TMS/TDI/TRSTn levels to drive into the design.
//
// # Protocol
//
//	B, b      blink on/off (accepted, no pin effect)
//	r, s      assert TRSTn (drive 0)
//	t, u      deassert TRSTn (drive 1)
//	'0'..'7'  set TCK, TMS, TDI from bits 2, 1, 0 of the digit
//	R         reply with '0' or '1' for the last TDO value
//	Q         close the connection
//
// Unknown bytes are logged and ignored. There is no framing and no handshake.
//
// # Timing
//
// The bridge never blocks the simulation on the network. Exactly one command
// byte is executed per Tick while a client is connected; N queued bytes take
// at least N ticks. When the receive buffer runs dry the pending readback
// bytes are flushed and a single non-blocking read is attempted. What happens
// when that read finds nothing is selected by Config.Refill:
//
//   - RefillYield returns immediately and the tick is a no-op. Pins hold their
//     previous levels, so the design sees no new TCK edge.
//   - RefillStall waits for data for at most Config.StallTimeout before
//     yielding. This keeps the command stream dense in simulated time at the
//     cost of wall-clock stalls.
//
// # Errors
//
// Would-block conditions are retried on the next tick and never reported.
// A client hanging up (EOF, reset or the Q command) resets the pins to
// TCK=0 TMS=1 TDI=1 TRSTn=1 and the bridge goes back to accepting. Setup
// failures and unexpected socket errors are returned as *FatalError; the host
// decides whether to abort.
//
// # Usage
//
//	cfg := rbb.DefaultConfig()
//	cfg.Endpoint = ":9823"
//	bridge, err := rbb.Open(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer bridge.Close()
//
//	for {
//		pins, err := bridge.Tick(dut.TDO())
//		if err != nil {
//			log.Fatal(err)
//		}
//		dut.Drive(pins)
//	}
package rbb
