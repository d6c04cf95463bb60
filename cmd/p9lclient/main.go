// Command p9lclient is a minimal 9P2000.L client: it attaches to a
// server, walks to a path, and prints the file's content (or lists a
// directory).
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"strings"

	"aqwari.net/net/p9p/client"
	"aqwari.net/net/p9p/wire"
)

func main() {
	addr := flag.String("addr", "localhost:564", "host:port of the 9P2000.L server")
	aname := flag.String("aname", "", "attach name")
	uname := flag.String("uname", "", "attach user name")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: p9lclient -addr host:port /path/to/file")
		os.Exit(2)
	}
	target := flag.Arg(0)

	ctx := context.Background()
	conn, err := net.Dial("tcp", *addr)
	if err != nil {
		log.Fatalf("p9lclient: dial: %v", err)
	}
	c, err := client.Dial(ctx, conn, client.Options{})
	if err != nil {
		log.Fatalf("p9lclient: dial: %v", err)
	}
	defer c.Close()

	root, err := c.Attach(ctx, wire.NoNuname, *uname, *aname)
	if err != nil {
		log.Fatalf("p9lclient: attach: %v", err)
	}
	defer root.Clunk(ctx)

	var names []string
	if clean := strings.Trim(target, "/"); clean != "" {
		names = strings.Split(clean, "/")
	}
	_, fid, err := root.Walk(ctx, names...)
	if err != nil {
		log.Fatalf("p9lclient: walk %q: %v", target, err)
	}
	defer fid.Clunk(ctx)

	qid, err := fid.Open(ctx, wire.ORDONLY)
	if err != nil {
		log.Fatalf("p9lclient: open: %v", err)
	}

	if qid.Type&wire.QTDIR != 0 {
		entries, err := fid.ReadDir(ctx)
		if err != nil {
			log.Fatalf("p9lclient: readdir: %v", err)
		}
		for _, e := range entries {
			fmt.Println(e.Name)
		}
		return
	}

	var offset uint64
	buf := make([]byte, 4096)
	for {
		n, err := fid.Read(ctx, offset, buf)
		if err != nil {
			log.Fatalf("p9lclient: read: %v", err)
		}
		if n == 0 {
			break
		}
		os.Stdout.Write(buf[:n])
		offset += uint64(n)
	}
}
