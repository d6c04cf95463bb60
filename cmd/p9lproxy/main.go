// Command p9lproxy runs a transparent reconnecting 9P2000.L proxy in
// front of an upstream server: it accepts client connections on
// -listen, and for each one dials -upstream (reconnecting
// transparently on upstream loss) via package proxy.
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"os"

	"aqwari.net/net/p9p/proxy"
)

func main() {
	listen := flag.String("listen", "localhost:0", "host:port to accept client connections on")
	upstream := flag.String("upstream", "", "host:port of the upstream 9P2000.L server (required)")
	msize := flag.Uint("msize", 0, "frame buffer size used on both sides until version negotiation completes (0 selects the transport default)")
	flag.Parse()

	if *upstream == "" {
		log.Fatal("p9lproxy: -upstream is required")
	}

	l, err := net.Listen("tcp", *listen)
	if err != nil {
		log.Fatalf("p9lproxy: listen: %v", err)
	}
	log.Printf("p9lproxy: listening on %s, forwarding to %s", l.Addr(), *upstream)

	logger := log.New(os.Stderr, "", log.LstdFlags)
	ctx := context.Background()

	for {
		conn, err := l.Accept()
		if err != nil {
			log.Fatalf("p9lproxy: accept: %v", err)
		}
		go serveConn(ctx, conn, *upstream, uint32(*msize), logger)
	}
}

func serveConn(ctx context.Context, client net.Conn, upstream string, msize uint32, logger *log.Logger) {
	dial := func(ctx context.Context) (net.Conn, error) {
		var d net.Dialer
		return d.DialContext(ctx, "tcp", upstream)
	}
	opts := proxy.Options{
		Msize:  msize,
		Logger: logger,
	}
	if err := proxy.Serve(ctx, client, dial, opts); err != nil {
		logger.Printf("p9lproxy: %s: %v", client.RemoteAddr(), err)
	}
}
