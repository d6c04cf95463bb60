// Command p9lserver serves a small in-memory filesystem over
// 9P2000.L, for testing p9p/client and p9p/proxy against a real
// listener without standing up a Linux diod/v9fs export.
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"os"

	"aqwari.net/net/p9p/internal/memfs"
	"aqwari.net/net/p9p/server"
)

func main() {
	addr := flag.String("addr", "localhost:0", "host:port to listen on")
	pool := flag.Bool("pool", false, "use the thread-pool server instead of the single-threaded one")
	workers := flag.Int("workers", 0, "worker count for -pool (0 selects the default)")
	msize := flag.Uint("msize", 0, "maximum negotiated msize (0 selects the transport default)")
	flag.Parse()

	l, err := net.Listen("tcp", *addr)
	if err != nil {
		log.Fatalf("p9lserver: listen: %v", err)
	}
	log.Printf("p9lserver: listening on %s", l.Addr())

	fs := memfs.New()
	fs.PutFile("/hello", []byte("hello from p9lserver\n"))

	opts := server.Options{
		MaxMsize: uint32(*msize),
		Logger:   log.New(os.Stderr, "", log.LstdFlags),
		Workers:  *workers,
	}

	ctx := context.Background()
	if *pool {
		err = server.ServePool(ctx, l, fs, opts)
	} else {
		err = server.Serve(ctx, l, fs, opts)
	}
	if err != nil {
		log.Fatalf("p9lserver: serve: %v", err)
	}
}
