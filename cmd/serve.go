package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/simlink/simlink/brain"
	"github.com/simlink/simlink/sim/transport"
)

var (
	serveAddr        string  // listen address
	serveHorizon     int     // forced episode length (0 = client-terminal only)
	serveMaxEpisodes int     // unregister sessions after this many episodes
	servePolicy      string  // action policy: constant or random
	serveSeed        int64   // seed for the random policy
	serveForce       float64 // force magnitude bound for the random policy
)

// serveCmd hosts the in-process brain service for local development.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a local brain service for development and testing",
	RunE: func(cmd *cobra.Command, args []string) error {
		var policy brain.Policy
		switch servePolicy {
		case "constant":
			action := transport.NewMessage()
			action.SetFloat64("force", 0)
			policy = brain.ConstantPolicy{Action: action}
		case "random":
			policy = brain.NewRandomPolicy([]string{"force"}, -serveForce, serveForce, serveSeed)
		default:
			return fmt.Errorf("unknown policy %q (want constant or random)", servePolicy)
		}

		srv := brain.NewServer(brain.Options{
			Policy:         policy,
			EpisodeHorizon: serveHorizon,
			MaxEpisodes:    serveMaxEpisodes,
		})
		return srv.ListenAndServe(serveAddr)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":9000", "listen address")
	serveCmd.Flags().IntVar(&serveHorizon, "horizon", 200, "force an episode finish after this many steps (0 = never)")
	serveCmd.Flags().IntVar(&serveMaxEpisodes, "max-episodes", 0, "unregister sessions after this many episodes (0 = unlimited)")
	serveCmd.Flags().StringVar(&servePolicy, "policy", "random", "action policy (constant|random)")
	serveCmd.Flags().Int64Var(&serveSeed, "seed", 1, "random policy seed")
	serveCmd.Flags().Float64Var(&serveForce, "force", 1.0, "random policy force bound")
	rootCmd.AddCommand(serveCmd)
}
