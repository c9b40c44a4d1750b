package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/google/gopacket/tcpassembly"

	"gotibia/motion"
	"gotibia/wire"
)

// openCapture returns a packet source for a pcapng or classic pcap file.
func openCapture(f *os.File) (*gopacket.PacketSource, error) {
	if ng, err := pcapgo.NewNgReader(f, pcapgo.NgReaderOptions{}); err == nil {
		return gopacket.NewPacketSource(ng, ng.LinkType()), nil
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	r, err := pcapgo.NewReader(f)
	if err != nil {
		return nil, err
	}
	return gopacket.NewPacketSource(r, r.LinkType()), nil
}

// replayPCAP feeds the server side of every game stream in the capture
// to c. The game clock follows the capture timestamps.
func replayPCAP(ctx context.Context, path string, c *client, clock *motion.ManualClock) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	source, err := openCapture(f)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	factory := &pcapStreamFactory{client: c, serverPort: gs.PcapServerPort}
	pool := tcpassembly.NewStreamPool(factory)
	assembler := tcpassembly.NewAssembler(pool)

	var prevTS time.Time
	for {
		select {
		case <-ctx.Done():
			assembler.FlushAll()
			return ctx.Err()
		default:
		}
		pkt, err := source.NextPacket()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}

		ts := pkt.Metadata().CaptureInfo.Timestamp
		if gs.PcapRealtime && !prevTS.IsZero() {
			if d := ts.Sub(prevTS); d > 0 {
				time.Sleep(d)
			}
		}
		if ts.After(clock.Now()) {
			clock.Set(ts)
		}

		net := pkt.NetworkLayer()
		if net == nil {
			continue
		}
		if tcp, ok := pkt.TransportLayer().(*layers.TCP); ok {
			assembler.AssembleWithTimestamp(net.NetworkFlow(), tcp, ts)
		}
		c.game.Tick(clock.Now())
		prevTS = ts
	}
	assembler.FlushAll()
	return nil
}

type pcapStreamFactory struct {
	client     *client
	serverPort int
}

// New keeps the streams sent from the server port and discards the
// client's side.
func (f *pcapStreamFactory) New(net, transport gopacket.Flow) tcpassembly.Stream {
	if f.serverPort != 0 {
		src := layers.NewTCPPortEndpoint(layers.TCPPort(f.serverPort))
		if transport.Src() != src {
			return discardStream{}
		}
	}
	logDebug("replay stream %v %v", net, transport)
	return &pcapStream{client: f.client}
}

type pcapStream struct {
	client *client
	buf    []byte
}

func (s *pcapStream) Reassembled(rs []tcpassembly.Reassembly) {
	for _, r := range rs {
		if r.Skip != 0 {
			// Lost bytes leave the stream mid-frame; resync on the next
			// segment.
			s.buf = s.buf[:0]
		}
		s.buf = append(s.buf, r.Bytes...)
	}
	frames, rest := wire.SplitFrames(s.buf, s.client.order)
	for _, f := range frames {
		s.client.handleFrame(append([]byte(nil), f...))
	}
	s.buf = append(s.buf[:0], rest...)
}

func (s *pcapStream) ReassemblyComplete() {
	if len(s.buf) > 0 {
		logDebug("replay stream ended with %d bytes of a partial frame", len(s.buf))
	}
}

type discardStream struct{}

func (discardStream) Reassembled([]tcpassembly.Reassembly) {}
func (discardStream) ReassemblyComplete()                  {}
