package cmd

import (
	"fmt"
	"net"

	"github.com/rudransh-shrivastava/offgrid/internal/node"
	"github.com/spf13/cobra"
)

var (
	inviteName   string
	inviteListen string
)

var inviteCmd = &cobra.Command{
	Use:   "invite",
	Short: "invite a peer and wait for them to join",
	Long: `creates a contact, prints a single use pairing code and waits for the peer
to present it, then opens an encrypted chat`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signalContext()
		defer stop()

		n, err := node.New(node.Options{Config: cfg, Logger: log})
		if err != nil {
			log.Fatal(err)
			return
		}
		defer n.Close()

		inv, err := n.Invite(inviteName)
		if err != nil {
			log.Fatal(err)
			return
		}

		addr := inviteListen
		if addr == "" {
			addr = cfg.SignalAddr
		}
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			log.Fatal(err)
			return
		}
		defer ln.Close()

		fmt.Printf("Pairing code: %s\n", inv.Code)
		fmt.Printf("Waiting for %s on %s\n", inviteName, ln.Addr())

		chat, err := n.AwaitJoin(ctx, ln)
		if err != nil {
			log.Fatal(err)
			return
		}
		runChat(ctx, n, chat)
	},
}

func init() {
	inviteCmd.Flags().StringVar(&inviteName, "name", "peer", "display name of the invited peer")
	inviteCmd.Flags().StringVar(&inviteListen, "listen", "", "signaling listen address (default OFFGRID_SIGNAL_ADDR)")
}
