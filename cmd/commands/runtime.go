package commands

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dohr-michael/agentrt/internal/channel"
	"github.com/dohr-michael/agentrt/internal/config"
	"github.com/dohr-michael/agentrt/internal/entity"
	"github.com/dohr-michael/agentrt/internal/events"
	"github.com/dohr-michael/agentrt/internal/governance"
	"github.com/dohr-michael/agentrt/internal/llm"
	"github.com/dohr-michael/agentrt/internal/scheduler"
	"github.com/dohr-michael/agentrt/internal/storage"
	"github.com/dohr-michael/agentrt/internal/tools"
	"github.com/dohr-michael/agentrt/internal/tools/builtin"
	"github.com/dohr-michael/agentrt/internal/workflow"
)

// runtime bundles the wired components one config.Config produces: the
// channel facade every transport (HTTP gateway, local chat) dispatches
// through, plus everything that needs a clean shutdown.
type runtime struct {
	db        *storage.DB
	bus       *events.Bus
	listener  *governance.AuditListener
	facade    *channel.Facade
	scheduler *scheduler.Core
}

func (rt *runtime) Close() {
	rt.scheduler.Stop()
	rt.listener.Close()
	rt.bus.Close()
	rt.db.Close()
}

// runScheduledAction is the scheduler.Executor every due ticket runs
// against: actionRef is "agentId:prompt", dispatched as a turn on a
// per-schedule channel so repeated runs share history.
func (rt *runtime) runScheduledAction(ctx context.Context, ticket scheduler.Ticket) error {
	agentID, prompt, ok := strings.Cut(ticket.ActionRef, ":")
	if !ok {
		return fmt.Errorf("malformed actionRef %q: want \"agentId:prompt\"", ticket.ActionRef)
	}

	channelID := "schedule:" + ticket.ScheduleID
	if err := rt.facade.CreateChannel(ctx, channelID, storage.ChannelCLI, agentID); err != nil {
		return fmt.Errorf("create schedule channel: %w", err)
	}

	stream, err := rt.facade.SendMessage(ctx, channelID, prompt)
	if err != nil {
		return fmt.Errorf("dispatch scheduled turn: %w", err)
	}
	for range stream {
		// drain: scheduled turns have no interactive listener
	}
	return nil
}

// buildRuntime wires storage, governance, the tool registry, the LLM
// provider, and the turn workflow runner into one channel.Facade, the
// shape every entry point (gateway, chat) dispatches turns through.
func buildRuntime(ctx context.Context, cfg *config.Config) (*runtime, error) {
	dbPath := filepath.Join(config.AgentHome(), "agentrt.db")
	db, err := storage.Open(ctx, dbPath)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	bus := events.NewBus(1024)
	gov := governance.New(db, db, governance.WithEventBus(bus))
	listener := governance.NewAuditListener(bus)

	provider, err := buildProvider(cfg)
	if err != nil {
		db.Close()
		bus.Close()
		return nil, err
	}

	registry := tools.NewRegistry()
	registry.Register(builtin.Now{})
	registry.Register(builtin.Echo{})
	registry.Register(builtin.Calculate{})
	registry.Register(builtin.MemoryStore{Port: db})
	registry.Register(builtin.MemorySearch{Port: db})
	registry.Register(builtin.MemoryForget{Port: db})
	invoker := tools.NewInvoker(registry, gov)
	catalog := tools.NewCatalog(tools.BuiltinToolSpecs()...)

	runner := workflow.NewRunner(db, db, db, gov, provider, configProfileResolver{cfg: cfg}, catalog)
	runner.WithToolInvoker(invoker)

	pool := entity.NewPool(db)
	facade := channel.NewFacade(pool, db, db, db, runner)

	rt := &runtime{db: db, bus: bus, listener: listener, facade: facade}
	rt.scheduler = scheduler.NewCore(db, rt.runScheduledAction)
	rt.scheduler.Start(ctx)

	return rt, nil
}

// buildProvider resolves the first configured provider into an
// llm.Provider. The runtime is scoped to a single active LLM vendor per
// process, the way a personal agent with one model subscription runs;
// agent.yaml still lets every agent override model ID and generation
// parameters independently through AgentConfig.Model.
func buildProvider(cfg *config.Config) (llm.Provider, error) {
	for name := range cfg.Providers {
		apiKey, err := cfg.ResolveAPIKey(name)
		if err != nil {
			return nil, fmt.Errorf("resolve provider %q: %w", name, err)
		}
		opts := []llm.Option{}
		if p := cfg.Providers[name]; p.APIURL != "" {
			opts = append(opts, llm.WithBaseURL(p.APIURL))
		}
		return llm.NewAnthropicProvider(apiKey, opts...), nil
	}
	return nil, fmt.Errorf("no providers configured in agent.yaml")
}

// configProfileResolver implements workflow.ProfileResolver over
// agent.yaml's per-agent persona and generation settings.
type configProfileResolver struct {
	cfg *config.Config
}

func (r configProfileResolver) Resolve(_ context.Context, agentID string) (workflow.AgentProfile, error) {
	agentCfg, ok := r.cfg.Agents[agentID]
	if !ok {
		return workflow.AgentProfile{}, fmt.Errorf("agent %q is not configured in agent.yaml", agentID)
	}
	return workflow.AgentProfile{
		SystemPrompt:    agentCfg.Persona.SystemPrompt,
		Model:           agentCfg.Model.ModelID,
		Temperature:     agentCfg.Generation.Temperature,
		MaxOutputTokens: agentCfg.Generation.MaxOutputTokens,
		TopP:            agentCfg.Generation.TopP,
		Seed:            agentCfg.Generation.Seed,
	}, nil
}
