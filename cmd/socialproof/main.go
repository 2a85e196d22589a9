// Command socialproof serves and inspects social-account bindings for
// blockchain identities.
//
//	socialproof serve                       run the REST API
//	socialproof identity <address>          print the cached chain identity
//	socialproof avatar <address>            print the avatar hash
//	socialproof lookup <address|username>   print aggregated directory profiles
//	socialproof search <prefix>             search the directory by username prefix
//	socialproof prove <platform> <handle>   publish-and-check a binding
//	socialproof migrate                     apply database migrations
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
