package server

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/salonchat/salond/pkg/database"
	"github.com/salonchat/salond/pkg/staging"
)

var (
	errorLog *log.Logger
	debugLog *log.Logger
)

// errClientDisconnecting signals a graceful "disconnect" command so the
// session loop exits without logging an error.
var errClientDisconnecting = errors.New("client disconnecting")

// Server multiplexes all client sessions over one registry: it accepts
// connections, runs one dispatcher goroutine per session, and fans
// broadcasts out to salon members.
type Server struct {
	db       *database.DB
	files    *staging.Store
	registry *Registry
	config   ServerConfig

	listener      net.Listener
	httpListener  net.Listener
	metricsServer *http.Server
	httpServer    *http.Server

	shutdown  chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
	metrics   *Metrics
	startTime time.Time

	nextSessionID atomic.Uint64

	// Connection deltas for periodic reporting
	connectionsSinceReport    atomic.Int64
	disconnectionsSinceReport atomic.Int64
}

// NewServer creates a new server instance
func NewServer(db *database.DB, files *staging.Store, config ServerConfig) (*Server, error) {
	if err := initLoggers(); err != nil {
		return nil, fmt.Errorf("failed to initialize loggers: %w", err)
	}

	metrics := NewMetrics()
	registry := NewRegistry(config.MaxClients)
	registry.SetMetrics(metrics)

	return &Server{
		db:        db,
		files:     files,
		registry:  registry,
		config:    config,
		shutdown:  make(chan struct{}),
		metrics:   metrics,
		startTime: time.Now(),
	}, nil
}

// getServerDataDir returns the server data directory, creating it if needed
func getServerDataDir() (string, error) {
	var dataDir string
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		dataDir = filepath.Join(xdg, "salond")
	} else {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		dataDir = filepath.Join(homeDir, ".local", "share", "salond")
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}

	return dataDir, nil
}

// initLoggers sets up error and debug loggers. Tests pre-assign the
// package loggers in TestMain, in which case this is a no-op.
func initLoggers() error {
	if errorLog != nil && debugLog != nil {
		return nil
	}

	dataDir, err := getServerDataDir()
	if err != nil {
		return err
	}

	// Error log goes to stderr and errors.log
	errorLogPath := filepath.Join(dataDir, "errors.log")
	errorFile, err := os.OpenFile(errorLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
	if err != nil {
		return err
	}

	startupMsg := fmt.Sprintf("=== Server started at %s ===\n", time.Now().Format(time.RFC3339))
	if _, err := errorFile.WriteString(startupMsg); err != nil {
		return err
	}

	errorLog = log.New(io.MultiWriter(os.Stderr, errorFile), "ERROR: ", log.LstdFlags)

	// Debug log is discarded unless EnableDebugLogging is called
	debugLog = log.New(io.Discard, "DEBUG: ", log.LstdFlags)

	return nil
}

// EnableDebugLogging enables debug logging to debug.log
func (s *Server) EnableDebugLogging() {
	dataDir, err := getServerDataDir()
	if err != nil {
		log.Printf("Failed to get data directory: %v", err)
		return
	}

	debugLogPath := filepath.Join(dataDir, "debug.log")
	debugLogFile, err := os.OpenFile(debugLogPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o666)
	if err != nil {
		log.Printf("Failed to open debug.log: %v", err)
		return
	}

	debugLog = log.New(debugLogFile, "DEBUG: ", log.LstdFlags)
	debugLog.Println("Debug logging enabled")
}

// Start starts the TCP listener and background loops
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.TCPPort)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener
	log.Printf("Server listening on %s", listener.Addr())

	// Internal metrics server - never expose publicly
	if s.config.MetricsPort > 0 {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", s.metrics.Handler())
		metricsMux.HandleFunc("/health", s.HealthHandler)
		s.metricsServer = &http.Server{
			Addr:    fmt.Sprintf(":%d", s.config.MetricsPort),
			Handler: metricsMux,
		}
		go func() {
			log.Printf("Metrics server listening on %s (/metrics, /health) - INTERNAL ONLY", s.metricsServer.Addr)
			if err := s.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("Metrics server error: %v", err)
			}
		}()
	}

	// Public HTTP server for the WebSocket bridge
	if s.config.HTTPPort > 0 {
		publicMux := http.NewServeMux()
		publicMux.HandleFunc("/ws", s.HandleWebSocket)
		httpListener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.HTTPPort))
		if err != nil {
			s.listener.Close()
			return fmt.Errorf("failed to listen for HTTP: %w", err)
		}
		s.httpListener = httpListener
		s.httpServer = &http.Server{Handler: publicMux}
		go func() {
			log.Printf("Public HTTP server listening on %s (/ws)", httpListener.Addr())
			if err := s.httpServer.Serve(httpListener); err != nil && err != http.ErrServerClosed {
				log.Printf("Public HTTP server error: %v", err)
			}
		}()
	}

	// Metrics logging loop
	s.wg.Add(1)
	go s.metricsLoggingLoop()

	// Accept TCP connections
	s.wg.Add(1)
	go s.acceptLoop()

	return nil
}

// Addr returns the TCP listener address (useful with port 0)
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// HTTPAddr returns the public HTTP listener address, or nil if disabled
func (s *Server) HTTPAddr() net.Addr {
	if s.httpListener == nil {
		return nil
	}
	return s.httpListener.Addr()
}

// HealthHandler reports basic liveness for the internal metrics listener
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintf(w, "ok\nuptime: %s\nsessions: %d\n",
		time.Since(s.startTime).Round(time.Second), s.registry.Count())
}

// Stop gracefully stops the server: no new connections, all sessions
// notified and closed, background loops drained.
func (s *Server) Stop() error {
	s.stopOnce.Do(func() {
		log.Println("Graceful shutdown initiated...")

		close(s.shutdown)

		if s.listener != nil {
			s.listener.Close()
			log.Println("TCP listener closed")
		}
		if s.httpServer != nil {
			s.httpServer.Close()
		}
		if s.metricsServer != nil {
			s.metricsServer.Close()
		}

		log.Println("Notifying connected clients of shutdown...")
		s.notifyClientsOfShutdown()

		log.Println("Closing all client sessions...")
		s.registry.CloseAll()

		log.Println("Waiting for background goroutines to finish...")
		s.wg.Wait()

		log.Println("Graceful shutdown complete")
	})
	return nil
}

// Shut performs the admin console "shut" sequence: evict every session,
// wipe the stored messages, and remove the staging tree.
func (s *Server) Shut() error {
	if err := s.Stop(); err != nil {
		return err
	}

	if err := s.db.DeleteAllMessages(); err != nil {
		log.Printf("Error wiping messages: %v", err)
		return err
	}
	log.Println("All stored messages deleted")

	if err := s.files.Clear(); err != nil {
		log.Printf("Error clearing staging directories: %v", err)
		return err
	}
	log.Println("Salon staging directories removed")

	return nil
}

// RunAdminConsole reads admin commands from r until "shut" arrives or r
// is exhausted. The returned channel closes once "shut" was seen, after
// the shut sequence completed.
func (s *Server) RunAdminConsole(r io.Reader) <-chan struct{} {
	done := make(chan struct{})

	go func() {
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			switch trimLineEnding(scanner.Text()) {
			case "shut":
				log.Println("Admin console: 'shut' received, stopping server...")
				if err := s.Shut(); err != nil {
					errorLog.Printf("Shut sequence failed: %v", err)
				}
				close(done)
				return
			case "":
				// Ignore blank console lines
			default:
				log.Printf("Admin console: unknown command %q", scanner.Text())
			}
		}
	}()

	return done
}

// notifyClientsOfShutdown sends a shutdown notice to all connected clients
func (s *Server) notifyClientsOfShutdown() {
	sessions := s.registry.All()
	if len(sessions) == 0 {
		log.Println("No active sessions to notify")
		return
	}

	sent := 0
	for _, sess := range sessions {
		if err := sess.WriteLine(noticeServerShutdown); err == nil {
			sent++
		}
	}

	log.Printf("Shutdown notification sent to %d/%d sessions", sent, len(sessions))
}

// acceptLoop accepts incoming connections
func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return
			default:
				log.Printf("Accept error: %v", err)
				continue
			}
		}

		s.handleConnection(conn)
	}
}

// handleConnection registers a new session and spawns its dispatcher
// loop, or rejects the connection when the registry is at capacity.
func (s *Server) handleConnection(conn net.Conn) {
	// Disable Nagle's algorithm for immediate sends
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		tcpConn.SetNoDelay(true)
	}

	sess := NewSession(s.nextSessionID.Add(1), conn, s.config.MaxLineLength)

	if err := s.registry.Register(sess); err != nil {
		log.Printf("Rejecting connection from %s: %v", sess.RemoteAddr, err)
		sess.WriteLine(noticeServerFull)
		conn.Close()
		return
	}

	s.connectionsSinceReport.Add(1)
	debugLog.Printf("New connection from %s (session %d)", sess.RemoteAddr, sess.ID)

	go s.sessionLoop(sess)
}

// sessionLoop drains protocol lines from one session until it
// terminates. Every exit path unregisters the session and closes the
// socket; failures here never affect other sessions.
func (s *Server) sessionLoop(sess *Session) {
	defer func() {
		s.registry.Unregister(sess)
		sess.Close()
		s.disconnectionsSinceReport.Add(1)
	}()

	for {
		line, err := sess.ReadLine()
		if err != nil {
			if err == io.EOF {
				debugLog.Printf("Session %d: client disconnected", sess.ID)
			} else {
				select {
				case <-s.shutdown:
					// Socket closed by shutdown; nothing to report
				default:
					debugLog.Printf("Session %d: read error: %v", sess.ID, err)
				}
			}
			return
		}

		if err := s.dispatch(sess, line); err != nil {
			if errors.Is(err, errClientDisconnecting) {
				debugLog.Printf("Session %d disconnected gracefully", sess.ID)
				return
			}
			// Fatal I/O error on this session's own socket
			debugLog.Printf("Session %d: dispatch error: %v", sess.ID, err)
			return
		}
	}
}

// metricsLoggingLoop periodically logs key metrics
func (s *Server) metricsLoggingLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.shutdown:
			return
		case <-ticker.C:
			activeSessions := s.registry.Count()
			goroutines := runtime.NumGoroutine()
			connected := s.connectionsSinceReport.Swap(0)
			disconnected := s.disconnectionsSinceReport.Swap(0)

			log.Printf("[METRICS] Active sessions: %d, connected since last: %d, disconnected since last: %d, goroutines: %d",
				activeSessions, connected, disconnected, goroutines)
		}
	}
}
