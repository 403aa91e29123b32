// Command fcgi-hello is the smallest possible responder handler: it
// answers every request with a static greeting, the FastCGI-native
// equivalent of cmd/app-hello's http.HandlerFunc.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/sylee/fcgi-responder/fcgi"
)

func main() {
	addr := "127.0.0.1:9001"
	if len(os.Args) > 1 {
		addr = os.Args[1]
	}

	l := fcgi.NewListener()
	if err := l.SetHandlers(nil, helloHandler); err != nil {
		log.Fatalf("SetHandlers: %v", err)
	}
	if err := l.Start(addr); err != nil {
		log.Fatalf("Start: %v", err)
	}
	log.Printf("fcgi-hello listening on %s", l.Addr())
	select {}
}

func helloHandler(req *fcgi.Request, resp *fcgi.Response) {
	fmt.Fprintln(resp, "<h1>Hello from Go FastCGI!</h1>")
	fmt.Fprintln(resp, "<p>This is the 'fcgi-hello' application.</p>")
}
