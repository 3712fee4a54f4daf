// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Command synchronizerd wires the clock, store, sequencer, mediator,
// consensus, coordinator, transport bus, and orchestrator packages into one
// running node, the entrypoint analogue of the teacher's own
// cmd/consensus. It runs headless; api.Handlers is the seam a front end
// wires against.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/synchronizer/clock"
	"github.com/luxfi/synchronizer/config"
	"github.com/luxfi/synchronizer/consensus"
	"github.com/luxfi/synchronizer/coordinator"
	"github.com/luxfi/synchronizer/mediator"
	"github.com/luxfi/synchronizer/orchestrator"
	"github.com/luxfi/synchronizer/sequencer"
	"github.com/luxfi/synchronizer/store"
	"github.com/luxfi/synchronizer/transport"
	"github.com/luxfi/synchronizer/types"
	"github.com/luxfi/synchronizer/validator"
)

var rootCmd = &cobra.Command{
	Use:   "synchronizerd",
	Short: "Lux synchronizer node for federated cross-domain transaction coordination",
	Long: `synchronizerd runs the clock, store, sequencer, mediator, consensus,
cross-domain coordinator, and transport bus of a single synchronizer node.
api.Handlers is the seam a front end wires against.`,
}

func main() {
	rootCmd.AddCommand(serveCmd())
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var (
		domain     string
		storePath  string
		nodeIDFlag string
		preset     string
		devLogging bool
		bufferSize int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a synchronizer node until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(serveOptions{
				domain:     types.DomainId(domain),
				storePath:  storePath,
				nodeIDFlag: nodeIDFlag,
				preset:     config.Preset(preset),
				devLogging: devLogging,
				bufferSize: bufferSize,
			})
		},
	}

	cmd.Flags().StringVar(&domain, "domain", "domain-a", "this node's local synchronization domain")
	cmd.Flags().StringVar(&storePath, "store-path", "", "bbolt store path; empty keeps the in-memory store")
	cmd.Flags().StringVar(&nodeIDFlag, "node-id", "", "this node's validator node id; empty generates a throwaway one")
	cmd.Flags().StringVar(&preset, "preset", string(config.PresetDevelopment), "configuration preset: development or production")
	cmd.Flags().BoolVar(&devLogging, "dev-logging", true, "use zap's human-readable development encoder instead of JSON")
	cmd.Flags().IntVar(&bufferSize, "event-buffer-size", 0, "orchestrator event channel capacity; 0 keeps the configured default")

	return cmd
}

type serveOptions struct {
	domain     types.DomainId
	storePath  string
	nodeIDFlag string
	preset     config.Preset
	devLogging bool
	bufferSize int
}

func runServe(opts serveOptions) error {
	cfg, err := config.NewBuilder().FromPreset(opts.preset).WithStorePath(opts.storePath).Build()
	if err != nil {
		return fmt.Errorf("building configuration: %w", err)
	}
	if opts.bufferSize > 0 {
		cfg.Orchestrator.EventBufferSize = opts.bufferSize
	}
	cfg.Sequencer.DomainID = opts.domain

	zapCfg := zap.NewProductionConfig()
	if opts.devLogging {
		zapCfg = zap.NewDevelopmentConfig()
	}
	z, err := zapCfg.Build()
	if err != nil {
		return fmt.Errorf("building zap logger: %w", err)
	}
	defer z.Sync()
	logger := newZapLogger(z)

	nodeID, err := resolveNodeID(opts.nodeIDFlag)
	if err != nil {
		return fmt.Errorf("resolving node id: %w", err)
	}

	st, closeStore, err := openStore(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer closeStore()

	registry := validator.NewRegistry()
	registry.Register(nodeID, []byte(nodeID.String()), 1)

	localClock := clock.NewHybridLogicalClock(nodeID)
	clockMgr := clock.NewManager(localClock, cfg.Clock.SuspectTimeout, cfg.Clock.FailTimeout, logger)

	bus := transport.NewMemory(256)

	keys, weight, active := registryLookups(registry)

	flood := consensus.NewFloodControl(cfg.FloodControl)
	consensusMgr := consensus.New(cfg.Consensus, st, logger, keys, weight, active, registryJailer{registry: registry}, flood, nil)

	engine := &loggingSettlementEngine{log: logger}
	coord := coordinator.New(cfg.Coordinator, st, logger, engine, nil)

	terminal := func(txID types.TransactionId) (types.TransactionStatus, bool) {
		rec, ok := coord.Get(txID)
		if !ok {
			return 0, false
		}
		return rec.Status, true
	}
	med := mediator.New(cfg.Mediator, st, logger, mediator.DefaultConditionEvaluator{}, keys, terminal, nil, nil, string(opts.domain))

	seq := sequencer.New(cfg.Sequencer, st, sequencer.DefaultPriorityCalculator{}, logger, nil)
	sequencers := map[types.DomainId]*sequencer.Sequencer{opts.domain: seq}

	orc := orchestrator.New(cfg.Orchestrator, st, logger, registry, coord, consensusMgr, med, sequencers, bus, localClock, nil, nil)

	// api.NewHandlers(orc, st, registry, consensusMgr) is the seam a front
	// end (HTTP/gRPC, out of scope per spec.md section 1) wires against;
	// this binary runs the node headless.

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := orc.Start(ctx); err != nil {
		return fmt.Errorf("starting orchestrator: %w", err)
	}
	logger.Info("synchronizer node started",
		zap.String("domain", string(opts.domain)),
		zap.String("node_id", nodeID.String()),
		zap.String("preset", string(opts.preset)),
	)

	go peerSweepLoop(ctx, clockMgr, cfg.Clock.SuspectTimeout)

	<-ctx.Done()
	logger.Info("shutdown signal received")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	return orc.Stop(stopCtx)
}

// resolveNodeID parses an operator-supplied node id, or mints a fresh one
// when none is given (loading a persistent staking identity is out of
// scope, matching spec section 1's non-goals around key custody).
func resolveNodeID(flag string) (ids.NodeID, error) {
	if flag == "" {
		return ids.GenerateTestNodeID(), nil
	}
	return ids.NodeIDFromString(flag)
}

func openStore(path string) (store.Store, func(), error) {
	if path == "" {
		return store.NewMemory(), func() {}, nil
	}
	b, err := store.OpenBbolt(path)
	if err != nil {
		return nil, nil, err
	}
	return b, func() { _ = b.Close() }, nil
}

// registryLookups adapts validator.Registry to the PublicKeyLookup/
// WeightLookup/ActiveSetLookup capability seams consensus.New and
// mediator.New depend on, converting between ids.NodeID and
// types.ParticipantId by string round-trip (orchestrator.requiredParticipants
// uses the same convention).
func registryLookups(registry *validator.Registry) (
	func(types.ParticipantId) ([]byte, bool),
	func(types.ParticipantId) uint64,
	func() []types.ParticipantId,
) {
	keys := func(p types.ParticipantId) ([]byte, bool) {
		nodeID, err := ids.NodeIDFromString(string(p))
		if err != nil {
			return nil, false
		}
		info, ok := registry.Get(nodeID)
		if !ok {
			return nil, false
		}
		return info.PublicKey, true
	}
	weight := func(p types.ParticipantId) uint64 {
		nodeID, err := ids.NodeIDFromString(string(p))
		if err != nil {
			return 0
		}
		return registry.VotingPower(nodeID)
	}
	active := func() []types.ParticipantId {
		nodes := registry.ActiveSet()
		out := make([]types.ParticipantId, len(nodes))
		for i, n := range nodes {
			out[i] = types.ParticipantId(n.String())
		}
		return out
	}
	return keys, weight, active
}

// registryJailer adapts validator.Registry to consensus.Jailer, converting
// a participant id back to ids.NodeID and a unix-seconds deadline to a
// time.Time the registry's own Jail method expects.
type registryJailer struct {
	registry *validator.Registry
}

func (j registryJailer) Jail(participant types.ParticipantId, untilUnixSeconds int64) error {
	nodeID, err := ids.NodeIDFromString(string(participant))
	if err != nil {
		return err
	}
	return j.registry.Jail(nodeID, time.Unix(untilUnixSeconds, 0))
}

// peerSweepLoop periodically promotes stale peers to Suspected/Failed on
// the clock manager's liveness table (spec section 4.A), the one
// background consumer of clock.Manager in this binary; every other wired
// component reads clock stamps carried on transport bus messages instead.
func peerSweepLoop(ctx context.Context, mgr *clock.Manager, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mgr.Sweep()
		}
	}
}

// loggingSettlementEngine is the default SettlementEngine: it logs the
// settlement/rollback request and always succeeds. A real chain-specific
// bridge connector is out of scope (coordinator.SettlementEngine's own doc
// comment); this is the seam an operator plugs one into.
type loggingSettlementEngine struct {
	log log.Logger
}

func (e *loggingSettlementEngine) Settle(_ context.Context, domain types.DomainId, tx types.CrossDomainTransaction) error {
	e.log.Info("settling transaction", zap.String("domain", string(domain)), zap.String("tx", tx.TransactionId.String()))
	return nil
}

func (e *loggingSettlementEngine) Rollback(_ context.Context, domain types.DomainId, tx types.CrossDomainTransaction) error {
	e.log.Warn("rolling back transaction", zap.String("domain", string(domain)), zap.String("tx", tx.TransactionId.String()))
	return nil
}
