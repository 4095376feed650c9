package cmd

import (
	"fmt"

	"github.com/rudransh-shrivastava/offgrid/internal/node"
	"github.com/spf13/cobra"
)

var (
	joinAddr string
	joinName string
)

var joinCmd = &cobra.Command{
	Use:   "join code",
	Short: "join a peer using their pairing code",
	Long:  `dials the inviting peer, presents the pairing code and opens an encrypted chat`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		code := args[0]
		ctx, stop := signalContext()
		defer stop()

		n, err := node.New(node.Options{Config: cfg, Logger: log})
		if err != nil {
			log.Fatal(err)
			return
		}
		defer n.Close()

		fmt.Printf("Joining %s\n", joinAddr)
		chat, err := n.Join(ctx, joinAddr, code, joinName)
		if err != nil {
			log.Fatal(err)
			return
		}
		runChat(ctx, n, chat)
	},
}

func init() {
	joinCmd.Flags().StringVar(&joinAddr, "addr", "", "signaling address of the inviting peer")
	joinCmd.Flags().StringVar(&joinName, "name", "", "display name for the peer (default: the name they announce)")
	_ = joinCmd.MarkFlagRequired("addr")
}
