package main

import (
	"context"
	"fmt"
	"log"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/nats-io/nats.go"

	"github.com/parkerduff/squadron/internal/bus"
	"github.com/parkerduff/squadron/internal/config"
	"github.com/parkerduff/squadron/internal/delegation"
	"github.com/parkerduff/squadron/internal/observer"
	"github.com/parkerduff/squadron/internal/orchestrator"
	"github.com/parkerduff/squadron/internal/reasoner"
	"github.com/parkerduff/squadron/internal/roster"
	"github.com/parkerduff/squadron/internal/state"
	"github.com/parkerduff/squadron/internal/workflow"
)

// app wires the squad coordination components from config.
type app struct {
	cfg    *config.Config
	db     *state.DB
	roster *roster.Roster
	bus    bus.Bus
	orch   *orchestrator.Orchestrator

	obsConn *nats.Conn
}

// buildApp constructs all components. The caller owns the returned app and
// must call close.
func buildApp(ctx context.Context, cfg *config.Config, r reasoner.Reasoner) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := state.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate state store: %w", err)
	}

	a := &app{cfg: cfg, db: db}
	a.roster = roster.New(db, cfg.Roster.Path)
	if cfg.Roster.Path != "" {
		squadID, err := a.roster.Load()
		if err != nil {
			a.close()
			return nil, err
		}
		log.Printf("[squadron] loaded roster for squad %s", squadID)
		if cfg.Roster.Watch {
			if err := a.roster.Watch(ctx, nil); err != nil {
				log.Printf("[squadron] warning: roster watch disabled: %v", err)
			}
		}
	}

	publisher, err := a.buildPublisher()
	if err != nil {
		a.close()
		return nil, err
	}
	enricher := bus.NewEnricher(a.roster, publisher, "messages")

	a.bus, err = a.buildBus(ctx, enricher)
	if err != nil {
		a.close()
		return nil, err
	}

	engine := workflow.NewEngine(db)
	deleg := delegation.NewEngine(a.roster)
	a.orch = orchestrator.New(db, engine, deleg, a.bus, r)
	return a, nil
}

func (a *app) buildPublisher() (bus.EventPublisher, error) {
	if !a.cfg.Observer.Enabled {
		return observer.NoopPublisher{}, nil
	}
	if a.cfg.Bus.URL == "" {
		return nil, fmt.Errorf("observer.enabled requires bus.url for the NATS connection")
	}
	conn, err := nats.Connect(a.cfg.Bus.URL, nats.Name("squadron-observer"))
	if err != nil {
		return nil, fmt.Errorf("connect observer to NATS: %w", err)
	}
	a.obsConn = conn
	return observer.NewNATSPublisher(conn, a.cfg.Observer.SubjectPrefix), nil
}

func (a *app) buildBus(ctx context.Context, enricher *bus.Enricher) (bus.Bus, error) {
	switch a.cfg.Bus.Backend {
	case config.BusBackendJetStream:
		return bus.NewDurableBus(ctx, bus.DurableConfig{
			URL:           a.cfg.Bus.URL,
			Stream:        a.cfg.Bus.Stream,
			SubjectPrefix: a.cfg.Bus.SubjectPrefix,
			ConsumerGroup: a.cfg.Bus.ConsumerGroup,
			MaxMsgs:       a.cfg.Bus.MaxMsgs,
			MaxAge:        a.cfg.Bus.MaxAge,
		}, bus.WithDurableEnricher(enricher))
	default:
		return bus.NewInMemoryBus(
			bus.WithQueueCap(a.cfg.Bus.QueueCap),
			bus.WithEnricher(enricher),
		), nil
	}
}

// buildReasoner selects the reasoner implementation. Offline mode uses a
// static reasoner so the workflow can be exercised without API access.
func buildReasoner(cfg *config.Config, offline bool) (reasoner.Reasoner, error) {
	if offline {
		return reasoner.NewStatic("Task analyzed offline; proceeding with keyword-derived plan."), nil
	}
	return reasoner.NewClient(reasoner.ClientConfig{
		Model:         anthropic.Model(cfg.Anthropic.Model),
		APIKey:        cfg.Anthropic.APIKey,
		UseAWSBedrock: cfg.Anthropic.UseAWSBedrock,
		AWSRegion:     cfg.Anthropic.AWSRegion,
		AWSProfile:    cfg.Anthropic.AWSProfile,
	})
}

func (a *app) close() {
	if a.bus != nil {
		if err := a.bus.Close(); err != nil {
			log.Printf("[squadron] warning: bus close: %v", err)
		}
	}
	if a.obsConn != nil {
		a.obsConn.Close()
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			log.Printf("[squadron] warning: store close: %v", err)
		}
	}
}
