package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"difftab/buffer"
	difftabctx "difftab/ctx"
	"difftab/engine"
	"difftab/metrics"
	"difftab/provider/fim"
	"difftab/provider/inline"
	"difftab/provider/rewrite"
	"difftab/types"

	"github.com/neovim/go-client/nvim"
)

type Daemon struct {
	config      Config
	predictor   engine.Predictor
	listener    net.Listener
	socketPath  string
	pidPath     string
	clientCount int64
	ctx         context.Context
	cancel      context.CancelFunc
}

// newPredictor builds the configured provider. Providers are stateless after
// construction, so one instance serves every connection.
func newPredictor(config Config) (engine.Predictor, error) {
	providerConfig := config.providerConfig()

	switch types.ProviderKind(config.Provider) {
	case types.ProviderKindFIM:
		return fim.NewProvider(providerConfig), nil
	case types.ProviderKindInline:
		return inline.NewProvider(providerConfig), nil
	case types.ProviderKindRewrite:
		return rewrite.NewProvider(providerConfig)
	default:
		return nil, fmt.Errorf("unknown provider %q", config.Provider)
	}
}

func NewDaemon(config Config) (*Daemon, error) {
	predictor, err := newPredictor(config)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		config:     config,
		predictor:  predictor,
		socketPath: getSocketPath(),
		pidPath:    getPidPath(),
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

func (d *Daemon) Start() error {
	// Setup logging and PID management
	d.writePidFile()
	defer d.removePidFile()

	// Setup socket
	if err := d.setupSocket(); err != nil {
		return err
	}
	defer d.cleanup()

	log.Printf("daemon listening on socket: %s", d.socketPath)

	// Setup shutdown handling
	d.setupShutdownHandling()

	// Start connection handling
	go d.acceptConnections()

	// Start idle monitoring
	go d.monitorIdleShutdown()

	// Wait for shutdown
	<-d.ctx.Done()
	log.Printf("daemon shutting down...")
	return nil
}

func (d *Daemon) setupSocket() error {
	// Remove existing socket
	os.Remove(d.socketPath)

	// Listen on Unix socket
	listener, err := net.Listen("unix", d.socketPath)
	if err != nil {
		return err
	}
	d.listener = listener
	return nil
}

func (d *Daemon) setupShutdownHandling() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Printf("received shutdown signal")
		d.Stop()
	}()
}

func (d *Daemon) acceptConnections() {
	for {
		conn, err := d.listener.Accept()
		if err != nil {
			select {
			case <-d.ctx.Done():
				return // Server is shutting down
			default:
				log.Printf("error accepting connection: %v", err)
				continue
			}
		}

		atomic.AddInt64(&d.clientCount, 1)
		log.Printf("new client connected, total clients: %d", atomic.LoadInt64(&d.clientCount))
		go d.handleConnection(conn)
	}
}

// session ties one editor connection to its own engine. The RPC handlers are
// registered before the engine exists, so they read it through a guarded
// accessor and drop events that arrive too early.
type session struct {
	host *buffer.Host

	mu  sync.Mutex
	eng *engine.Engine
}

func (s *session) engine() *engine.Engine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eng
}

func (s *session) setEngine(eng *engine.Engine) {
	s.mu.Lock()
	s.eng = eng
	s.mu.Unlock()
}

// handleEvent maps editor notifications onto engine operations.
func (s *session) handleEvent(event string) {
	eng := s.engine()
	if eng == nil {
		return
	}

	switch event {
	case "text_changed":
		result, err := s.host.SyncDocument()
		if err != nil {
			log.Printf("error syncing document: %v", err)
			return
		}
		if result.Switched {
			eng.Reset()
			return
		}
		if result.Change != nil {
			eng.DocumentChanged(result.Change)
		}
	case "cursor_moved":
		if err := s.host.SyncCursor(); err != nil {
			log.Printf("error syncing cursor: %v", err)
			return
		}
		eng.Dismiss()
	case "dismiss":
		eng.Dismiss()
	case "accept_click":
		eng.AcceptClick()
	default:
		log.Printf("unknown editor event %q", event)
	}
}

// handleAccept serves the synchronous accept request from the keymap.
func (s *session) handleAccept() bool {
	eng := s.engine()
	if eng == nil {
		return false
	}

	// Catch up on edits the autocmds have not delivered yet. Accepting
	// against a stale document model would splice into the wrong place.
	result, err := s.host.SyncDocument()
	if err != nil {
		log.Printf("error syncing document before accept: %v", err)
		return false
	}
	if result.Switched {
		eng.Reset()
		return false
	}
	if result.Change != nil {
		eng.DocumentChanged(result.Change)
		return false
	}

	return eng.Accept()
}

func (d *Daemon) handleConnection(conn net.Conn) {
	defer conn.Close()
	defer func() {
		atomic.AddInt64(&d.clientCount, -1)
		log.Printf("client disconnected, remaining clients: %d", atomic.LoadInt64(&d.clientCount))
	}()

	// Create Neovim client from the connection
	n, err := nvim.New(conn, conn, conn, log.Printf)
	if err != nil {
		log.Printf("error creating nvim client: %v", err)
		return
	}

	sess := &session{host: buffer.NewHost(n, d.config.bufferConfig())}

	// Handlers must be in place before the RPC loop starts; requests for an
	// unknown method fail the plugin's keymap.
	if err := sess.host.RegisterEventHandler(sess.handleEvent); err != nil {
		log.Printf("error registering event handler: %v", err)
		return
	}
	if err := sess.host.RegisterAcceptHandler(sess.handleAccept); err != nil {
		log.Printf("error registering accept handler: %v", err)
		return
	}

	serveDone := make(chan error, 1)
	go func() {
		serveDone <- n.Serve()
	}()

	// Attach issues RPC calls, which need the serve loop running.
	if err := sess.host.Attach(); err != nil {
		log.Printf("error attaching to editor: %v", err)
		return
	}

	tracker := metrics.NewTracker(
		d.config.MetricsURL,
		d.config.APIKey,
		d.config.EditorInfo,
		d.config.DataDir,
		d.config.PrivacyMode,
	)
	gatherer := difftabctx.NewGatherer(sess.host.Workspace(), sess.host)

	eng, err := engine.NewEngine(d.predictor, sess.host, engine.Config{
		Delay:            time.Duration(d.config.Debounce) * time.Millisecond,
		PredictTimeout:   time.Duration(d.config.PredictTimeout) * time.Millisecond,
		MaxContextTokens: d.config.MaxContextTokens,
		AcceptOnClick:    d.config.AcceptOnClick,
		PartialRange:     d.config.PartialRange,
		Context:          gatherer.ContextFunc(),
		Metrics:          tracker,
	}, nil)
	if err != nil {
		log.Printf("error creating engine: %v", err)
		return
	}

	eng.Start(d.ctx)
	defer eng.Stop()
	sess.setEngine(eng)

	// Serve this connection until it closes or the daemon shuts down
	select {
	case <-d.ctx.Done():
	case err := <-serveDone:
		if err != nil && err != io.EOF {
			log.Printf("error serving connection: %v", err)
		}
	}

	log.Printf("session stats: %+v", tracker.Counts())
}

func (d *Daemon) monitorIdleShutdown() {
	// In debug mode, shut down immediately when no clients are connected
	if d.config.DebugImmediateShutdown {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-d.ctx.Done():
				return
			case <-ticker.C:
				if atomic.LoadInt64(&d.clientCount) == 0 {
					log.Printf("debug mode: no clients connected, shutting down daemon immediately")
					d.Stop()
					return
				}
			}
		}
	} else {
		// Normal mode: wait for timeout period before shutting down
		idleTimer := time.NewTimer(30 * time.Second)
		defer idleTimer.Stop()

		for {
			select {
			case <-d.ctx.Done():
				return
			case <-idleTimer.C:
				if atomic.LoadInt64(&d.clientCount) == 0 {
					log.Printf("no clients connected for timeout period, shutting down daemon")
					d.Stop()
					return
				}
			}

			// Reset timer when no clients
			if atomic.LoadInt64(&d.clientCount) == 0 {
				idleTimer.Reset(5 * time.Second)
			} else {
				idleTimer.Reset(30 * time.Second)
			}
		}
	}
}

func (d *Daemon) Stop() {
	if d.listener != nil {
		d.listener.Close()
	}
	d.cancel()
}

func (d *Daemon) cleanup() {
	os.Remove(d.socketPath)
}

func (d *Daemon) writePidFile() {
	pid := os.Getpid()
	err := os.WriteFile(d.pidPath, []byte(strconv.Itoa(pid)), 0644)
	if err != nil {
		log.Printf("warning: could not write PID file: %v", err)
	}
	log.Printf("server started with PID %d", pid)
}

func (d *Daemon) removePidFile() {
	if err := os.Remove(d.pidPath); err != nil && !os.IsNotExist(err) {
		log.Printf("warning: could not remove PID file: %v", err)
	}
}
