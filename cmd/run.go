package cmd

import (
	"math"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/simlink/simlink/sim"
	"github.com/simlink/simlink/sim/transport"
)

var (
	runURL      string // brain service base URL
	runBrain    string // brain name to attach to
	runName     string // simulator name
	runPredict  bool   // predict mode instead of train
	runRecord   string // record sink path (jsonl, csv, or redis:// URL)
	runEpisodes int    // stop after this many episodes (0 = until unregistered)
)

// runCmd drives the built-in balance demo simulation against a brain service.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the balance demo simulation against a brain service",
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := newViper(cmd, "url", "brain", "name", "predict", "record")
		if err != nil {
			return err
		}

		cfg := sim.NewConfig(v.GetString("brain"), v.GetString("name"), v.GetString("url"))
		cfg.Predict = v.GetBool("predict")
		cfg.RecordFile = v.GetString("record")

		demo := &balanceSim{}
		s, err := sim.New(cfg, demo)
		if err != nil {
			return err
		}
		demo.recorder = s
		s.EnableKeys([]string{"position", "velocity", "reward"}, "")

		// Ctrl-C ends the session cleanly; Close aborts any backoff wait.
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt)
		go func() {
			<-sigCh
			logrus.Info("interrupt: closing session")
			s.Close()
		}()

		for s.Run() {
			if runEpisodes > 0 && s.EpisodeCount() >= runEpisodes {
				s.Close()
			}
		}
		if err := s.Err(); err != nil {
			return err
		}
		logrus.Infof("session finished: %d episodes, %.2f episodes/s, %.2f iterations/s",
			s.EpisodeCount(), s.EpisodeRate(), s.IterationRate())
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runURL, "url", "http://localhost:9000", "brain service base URL")
	runCmd.Flags().StringVar(&runBrain, "brain", "balance", "brain name to attach to")
	runCmd.Flags().StringVar(&runName, "name", "balance-sim", "simulator name")
	runCmd.Flags().BoolVar(&runPredict, "predict", false, "run against the trained brain instead of training")
	runCmd.Flags().StringVar(&runRecord, "record", "", "record sink path (.jsonl, .csv, or redis:// URL)")
	runCmd.Flags().IntVar(&runEpisodes, "episodes", 0, "stop after this many episodes (0 = run until unregistered)")
	rootCmd.AddCommand(runCmd)
}

// balanceSim is a one-dimensional balance task: the brain pushes a mass with
// a bounded force and is rewarded for keeping it near the origin. Small
// enough to read, real enough to exercise the whole session protocol.
type balanceSim struct {
	sim.BaseSimulation
	recorder *sim.Simulator
	position float64
	velocity float64
	steps    int
}

const (
	balanceDt    = 0.02
	balanceDrag  = 0.1
	balanceBound = 2.4
)

func (b *balanceSim) EpisodeStart(params *transport.Message) (*transport.Message, error) {
	b.position = 0
	b.velocity = 0
	b.steps = 0
	if x, ok := params.Float64("initial_position"); ok {
		b.position = x
	}
	return b.state(), nil
}

func (b *balanceSim) Simulate(action *transport.Message) (sim.StepResult, error) {
	force, _ := action.Float64("force")
	b.velocity += (force - balanceDrag*b.velocity) * balanceDt
	b.position += b.velocity * balanceDt
	b.steps++

	reward := 1 - math.Abs(b.position)/balanceBound
	terminal := math.Abs(b.position) > balanceBound

	if b.recorder != nil {
		b.recorder.RecordAppend("position", b.position, "")
		b.recorder.RecordAppend("velocity", b.velocity, "")
		b.recorder.RecordAppend("reward", reward, "")
	}

	return sim.StepResult{State: b.state(), Reward: reward, Terminal: terminal}, nil
}

func (b *balanceSim) EpisodeFinish(reason string) {
	logrus.Debugf("balance episode finished after %d steps (%s)", b.steps, reason)
}

func (b *balanceSim) state() *transport.Message {
	m := transport.NewMessage()
	m.SetFloat64("position", b.position)
	m.SetFloat64("velocity", b.velocity)
	return m
}
