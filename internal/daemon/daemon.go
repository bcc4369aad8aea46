package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/lvls/supportbot/internal/config"
	"github.com/lvls/supportbot/internal/logger"
	"github.com/lvls/supportbot/internal/observability"
	"github.com/lvls/supportbot/internal/roster"
	"github.com/lvls/supportbot/internal/store"
	"github.com/lvls/supportbot/pkg/agent"
	"github.com/lvls/supportbot/pkg/approval"
	"github.com/lvls/supportbot/pkg/jobqueue"
	"github.com/lvls/supportbot/pkg/llm"
	"github.com/lvls/supportbot/pkg/messenger"
	"github.com/lvls/supportbot/pkg/orchestrator"
	"github.com/lvls/supportbot/pkg/quietwindow"
	"github.com/lvls/supportbot/pkg/router"
	"github.com/lvls/supportbot/pkg/scheduler"
	"github.com/lvls/supportbot/pkg/tools"
)

// LaneOperator serializes operator instructions: one is fully processed
// before the next starts.
const LaneOperator = "operator"

// maxHistory bounds the conversational context carried between
// instructions, counted in messages (user and assistant both).
const maxHistory = 20

// InstructionJob is the payload on the operator lane.
type InstructionJob struct {
	Actor string `json:"actor"`
	Text  string `json:"text"`
}

// Daemon wires the stores, the scheduler, and the agent engine into a
// long-running service.
type Daemon struct {
	config *config.Config
	logger *logger.Logger

	store      *store.Store
	roster     *roster.Watcher
	queue      *jobqueue.Queue
	quiet      *quietwindow.Policy
	scheduler  *scheduler.Scheduler
	msgr       messenger.Messenger
	models     *llm.ModelManager
	client     *llm.Client
	dispatcher *tools.Dispatcher
	orch       *orchestrator.Orchestrator
	approvals  *approval.Manager

	metricsSrv *http.Server

	history   []llm.Message
	historyMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startTime time.Time
	running   bool
	mu        sync.RWMutex
}

// Test seams.
var (
	newProvider = func(name, apiKey string) (llm.Provider, error) {
		return llm.NewProvider(name, apiKey)
	}
	newMessenger = func(log zerolog.Logger) messenger.Messenger {
		return messenger.NewLogMessenger(log)
	}
)

// New creates a daemon instance with all modules initialized but not
// yet started.
func New(cfg *config.Config, log *logger.Logger) (*Daemon, error) {
	ctx, cancel := context.WithCancel(context.Background())

	observability.EnsureRegistered()

	d := &Daemon{
		config: cfg,
		logger: log,
		ctx:    ctx,
		cancel: cancel,
	}

	if err := d.initialize(); err != nil {
		cancel()
		if d.store != nil {
			_ = d.store.Close()
		}
		return nil, fmt.Errorf("failed to initialize daemon: %w", err)
	}

	return d, nil
}

func (d *Daemon) initialize() error {
	zl := d.logger.Zerolog()

	if err := observability.InitAuditLogger(d.config.AuditLogPath); err != nil {
		zl.Warn().Err(err).Msg("Failed to initialize audit logger, using default stderr")
	} else {
		zl.Info().Str("path", d.config.AuditLogPath).Msg("Audit logger initialized")
	}

	s, err := store.Open(d.config.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	d.store = s
	zl.Info().Str("path", d.config.DatabasePath).Msg("Store opened")

	d.roster = roster.NewWatcher(d.config.RosterPath, d.store, zl)
	if err := d.roster.Sync(d.ctx); err != nil {
		zl.Warn().Err(err).Msg("Initial roster sync failed")
	}

	loc, err := time.LoadLocation(d.config.Workspace.Timezone)
	if err != nil {
		return fmt.Errorf("invalid workspace timezone %q: %w", d.config.Workspace.Timezone, err)
	}

	quiet, err := quietwindow.New(quietwindow.Config{
		Windows:    d.config.QuietHours.Windows,
		Buffer:     time.Duration(d.config.QuietHours.BufferMinutes) * time.Minute,
		Location:   loc,
		DeferDelay: time.Duration(d.config.QuietHours.DeferMinutes) * time.Minute,
	})
	if err != nil {
		return fmt.Errorf("invalid quiet hours config: %w", err)
	}
	d.quiet = quiet

	d.queue = jobqueue.New(zl)
	d.msgr = newMessenger(zl)

	sched, err := scheduler.New(scheduler.Config{
		Store:     d.store,
		Queue:     d.queue,
		Messenger: d.msgr,
		Quiet:     d.quiet,
		FounderID: d.config.Workspace.FounderUserID,
		Location:  loc,
		Logger:    zl,
	})
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	d.scheduler = sched
	zl.Info().Msg("Scheduler initialized")

	d.dispatcher = tools.NewDispatcher(tools.DispatcherConfig{
		Store:     d.store,
		Messenger: d.msgr,
		Reminders: d.scheduler,
		FounderID: d.config.Workspace.FounderUserID,
		Location:  loc,
		Logger:    zl,
	})
	zl.Info().Msg("Tool dispatcher initialized")

	provider, err := newProvider(d.config.AI.Provider, d.config.AI.APIKey)
	if err != nil {
		return fmt.Errorf("failed to create model provider: %w", err)
	}
	d.models = llm.NewModelManager(d.config.Models.Default, d.config.Models.Aliases, d.config.Models.Fallback)
	d.client = llm.NewClient(provider, d.models, zl)
	zl.Info().Str("provider", provider.Name()).Msg("Model client initialized")

	taskAgent, err := agent.New(agent.Config{
		Name:         "task",
		SystemPrompt: taskSystemPrompt,
		Catalog:      tools.TaskCatalog(),
		Client:       d.client,
		Executor:     d.dispatcher,
		Logger:       zl,
	})
	if err != nil {
		return fmt.Errorf("failed to create task agent: %w", err)
	}
	contentAgent, err := agent.New(agent.Config{
		Name:         "content",
		SystemPrompt: contentSystemPrompt,
		Catalog:      tools.ContentCatalog(),
		Client:       d.client,
		Executor:     d.dispatcher,
		Logger:       zl,
	})
	if err != nil {
		return fmt.Errorf("failed to create content agent: %w", err)
	}
	commAgent, err := agent.New(agent.Config{
		Name:         "communication",
		SystemPrompt: communicationSystemPrompt,
		Catalog:      tools.CommunicationCatalog(),
		Client:       d.client,
		Executor:     d.dispatcher,
		Logger:       zl,
	})
	if err != nil {
		return fmt.Errorf("failed to create communication agent: %w", err)
	}
	generalAgent, err := agent.New(agent.Config{
		Name:         "general",
		SystemPrompt: generalSystemPrompt,
		Client:       d.client,
		Logger:       zl,
	})
	if err != nil {
		return fmt.Errorf("failed to create general agent: %w", err)
	}
	zl.Info().Msg("Specialist agents initialized")

	orch, err := orchestrator.New(orchestrator.Config{
		Router:       router.New(d.client, zl),
		TaskAgent:    taskAgent,
		ContentAgent: contentAgent,
		CommAgent:    commAgent,
		GeneralAgent: generalAgent,
		ModelManager: d.models,
		Logger:       zl,
	})
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}
	d.orch = orch

	d.approvals = approval.NewManager(d.store, d.msgr, zl)

	d.queue.RegisterLane(LaneOperator, jobqueue.LaneConfig{
		Concurrency: 1,
		MaxAttempts: 1,
	}, d.handleInstruction)

	return nil
}

// Submit enqueues an operator instruction. Instructions run one at a
// time in arrival order.
func (d *Daemon) Submit(actor, text string) (string, error) {
	return d.queue.Enqueue(LaneOperator, InstructionJob{Actor: actor, Text: text})
}

func (d *Daemon) handleInstruction(ctx context.Context, job jobqueue.Job) error {
	var in InstructionJob
	if err := json.Unmarshal(job.Payload, &in); err != nil {
		return fmt.Errorf("malformed instruction payload: %w", err)
	}

	zl := d.logger.Zerolog()
	reply := d.orch.Handle(ctx, in.Text, d.snapshotHistory())
	d.appendHistory(in.Text, reply.Text)

	zl.Info().
		Str("actor", in.Actor).
		Str("intent", string(reply.Intent)).
		Str("action", string(reply.Action)).
		Int("tokens", reply.Usage.InputTokens+reply.Usage.OutputTokens).
		Msg("Instruction handled")

	approvalID := ""
	if reply.Action == agent.ActionCreateApproval {
		approvalID = approvalIDFrom(reply.ActionData)
		if approvalID == "" {
			zl.Error().Msg("Approval action carried no approval id")
		} else if err := d.approvals.AttachDraft(ctx, approvalID, reply.Text); err != nil {
			zl.Error().Err(err).Str("approvalId", approvalID).Msg("Failed to attach draft to approval")
		}
	}

	ref, err := d.deliverReply(ctx, in.Actor, reply.Text)
	if err != nil {
		zl.Error().Err(err).Msg("Failed to deliver reply")
		return nil
	}
	if approvalID != "" {
		if err := d.approvals.RequestDelivered(ctx, approvalID, ref); err != nil {
			zl.Error().Err(err).Str("approvalId", approvalID).Msg("Failed to record approval request ref")
		}
	}
	return nil
}

// approvalIDFrom digs the approval id out of the tool result data
// attached to a create_approval action.
func approvalIDFrom(data interface{}) string {
	m, ok := data.(map[string]interface{})
	if !ok {
		return ""
	}
	id, _ := m["approvalId"].(string)
	return id
}

func (d *Daemon) deliverReply(ctx context.Context, actor, text string) (string, error) {
	if actor == "" {
		actor = d.config.Workspace.FounderUserID
	}
	dm, err := d.msgr.OpenDM(ctx, actor)
	if err != nil {
		return "", err
	}
	return d.msgr.Post(ctx, messenger.Message{ChannelID: dm, Text: text})
}

func (d *Daemon) snapshotHistory() []llm.Message {
	d.historyMu.Lock()
	defer d.historyMu.Unlock()
	out := make([]llm.Message, len(d.history))
	copy(out, d.history)
	return out
}

func (d *Daemon) appendHistory(instruction, reply string) {
	d.historyMu.Lock()
	defer d.historyMu.Unlock()
	d.history = append(d.history,
		llm.Message{Role: "user", Content: instruction},
		llm.Message{Role: "assistant", Content: reply},
	)
	if len(d.history) > maxHistory {
		d.history = d.history[len(d.history)-maxHistory:]
	}
}

// Start starts the daemon service.
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	zl := d.logger.Zerolog()
	zl.Info().Msg("Starting supportbot daemon")

	if err := d.roster.Start(d.ctx); err != nil {
		zl.Warn().Err(err).Msg("Roster watcher failed to start, roster changes need a restart")
	} else {
		zl.Info().Str("path", d.config.RosterPath).Msg("Roster watcher started")
	}

	if err := d.scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	zl.Info().Msg("Scheduler started")

	if d.config.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.MetricsHandler())
		d.metricsSrv = &http.Server{Addr: d.config.Metrics.Addr, Handler: mux}
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			if err := d.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				zl.Error().Err(err).Msg("Metrics server failed")
			}
		}()
		zl.Info().Str("addr", d.config.Metrics.Addr).Msg("Metrics server started")
	}

	zl.Info().Msg("Daemon started successfully")
	return nil
}

// Stop stops the daemon service gracefully.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is not running")
	}
	d.running = false
	d.mu.Unlock()

	zl := d.logger.Zerolog()
	zl.Info().Msg("Stopping supportbot daemon")

	if d.metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := d.metricsSrv.Shutdown(shutdownCtx); err != nil {
			zl.Error().Err(err).Msg("Failed to shut down metrics server")
		}
		cancel()
	}

	d.scheduler.Stop()
	zl.Info().Msg("Scheduler stopped")

	if err := d.roster.Close(); err != nil {
		zl.Error().Err(err).Msg("Failed to close roster watcher")
	}

	if err := d.queue.Close(); err != nil {
		zl.Error().Err(err).Msg("Failed to close job queue")
	}
	zl.Info().Msg("Job queue stopped")

	d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		zl.Warn().Msg("Timeout waiting for goroutines to stop")
	}

	if err := d.store.Close(); err != nil {
		zl.Error().Err(err).Msg("Failed to close store")
	}

	if err := observability.GetAuditLogger().Close(); err != nil {
		zl.Error().Err(err).Msg("Failed to close audit logger")
	}

	zl.Info().Msg("Daemon stopped")
	return nil
}

// Wait blocks until SIGINT or SIGTERM, then stops the daemon.
func (d *Daemon) Wait() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	zl := d.logger.Zerolog()
	zl.Info().Str("signal", sig.String()).Msg("Received signal")

	if err := d.Stop(); err != nil {
		zl.Error().Err(err).Msg("Failed to stop daemon")
	}
}

// Status reports whether the daemon is running and for how long.
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	st := Status{Running: d.running}
	if d.running {
		st.Uptime = time.Since(d.startTime)
		st.StartTime = d.startTime
	}
	return st
}

// Status describes the daemon's runtime state.
type Status struct {
	Running   bool
	Uptime    time.Duration
	StartTime time.Time
}

// Store returns the task store.
func (d *Daemon) Store() *store.Store {
	return d.store
}

// Queue returns the job queue.
func (d *Daemon) Queue() *jobqueue.Queue {
	return d.queue
}

// Approvals returns the approval manager.
func (d *Daemon) Approvals() *approval.Manager {
	return d.approvals
}

// Scheduler returns the reminder scheduler.
func (d *Daemon) Scheduler() *scheduler.Scheduler {
	return d.scheduler
}

// Models returns the model manager.
func (d *Daemon) Models() *llm.ModelManager {
	return d.models
}
