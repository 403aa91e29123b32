// Command fcgi-env dumps every CGI param the connection driver parsed
// out of the PARAMS stream, plus the STDIN body size, the FastCGI
// analogue of cmd/app-env's os.Environ()/r.Header dump.
package main

import (
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/sylee/fcgi-responder/fcgi"
)

func main() {
	addr := "127.0.0.1:9002"
	if len(os.Args) > 1 {
		addr = os.Args[1]
	}

	l := fcgi.NewListener()
	if err := l.SetHandlers(nil, envHandler); err != nil {
		log.Fatalf("SetHandlers: %v", err)
	}
	if err := l.Start(addr); err != nil {
		log.Fatalf("Start: %v", err)
	}
	log.Printf("fcgi-env listening on %s", l.Addr())
	select {}
}

func envHandler(req *fcgi.Request, resp *fcgi.Response) {
	resp.SetContentType("text/plain")

	names := make([]string, 0, len(req.Params))
	for name := range req.Params {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(resp, "%s=%s\n", name, req.Params[name])
	}
	fmt.Fprintf(resp, "\nCONTENT_LENGTH_ACTUAL=%d\n", len(req.Body()))
}
