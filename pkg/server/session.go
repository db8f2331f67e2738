package server

import (
	"bufio"
	"errors"
	"net"
	"sync"
)

// ErrLineTooLong indicates a client sent a line exceeding the configured
// protocol line size. The session is terminated, same as any read error.
var ErrLineTooLong = errors.New("protocol line too long")

// Session represents one connected client socket, pre- or
// post-authentication. Writes are synchronized so broadcasts from other
// goroutines cannot interleave with this session's own responses or with
// file transfer payload bytes.
type Session struct {
	ID         uint64
	RemoteAddr string

	conn   net.Conn
	reader *bufio.Reader

	writeMu sync.Mutex // Protects writes to conn

	mu       sync.RWMutex // Protects username, admin, salon
	username string       // Empty until authenticated
	admin    bool         // Derived once at authentication
	salon    string       // Empty = not in any salon
}

// NewSession wraps an accepted connection. maxLine sizes the read
// buffer, which is what bounds protocol line length.
func NewSession(id uint64, conn net.Conn, maxLine int) *Session {
	return &Session{
		ID:         id,
		RemoteAddr: conn.RemoteAddr().String(),
		conn:       conn,
		reader:     bufio.NewReaderSize(conn, maxLine),
	}
}

// ReadLine reads one newline-terminated protocol line and strips the
// trailing CR/LF. The read is bounded by the session's buffer: a line
// that fills it without a terminator is ErrLineTooLong, and the excess
// stays unread in the socket. EOF and read errors are returned to the
// caller, which terminates the session.
func (s *Session) ReadLine() (string, error) {
	line, err := s.reader.ReadSlice('\n')
	if err != nil {
		if err == bufio.ErrBufferFull {
			return "", ErrLineTooLong
		}
		return "", err
	}
	return trimLineEnding(string(line)), nil
}

// WriteLine sends one newline-terminated reply
func (s *Session) WriteLine(text string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.conn.Write([]byte(text + "\n"))
	return err
}

// writeRaw writes bytes without a terminator while holding the write
// lock. Only the file transfer handshake uses this.
func (s *Session) writeRaw(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.conn.Write(data)
	return err
}

// Close closes the underlying connection
func (s *Session) Close() error {
	return s.conn.Close()
}

// Authenticated reports whether the session has a username
func (s *Session) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.username != ""
}

// SetAuthenticated records the username and admin flag. Called exactly
// once, on successful authentication.
func (s *Session) SetAuthenticated(username string, admin bool) {
	s.mu.Lock()
	s.username = username
	s.admin = admin
	s.mu.Unlock()
}

// Username returns the authenticated username, or "" before authentication
func (s *Session) Username() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.username
}

// IsAdmin reports whether the authenticated user holds the admin role
func (s *Session) IsAdmin() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.admin
}

// CurrentSalon returns the joined salon name, or "" if none
func (s *Session) CurrentSalon() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.salon
}

// SetSalon sets the current salon ("" to leave)
func (s *Session) SetSalon(name string) {
	s.mu.Lock()
	s.salon = name
	s.mu.Unlock()
}

// ClearSalonIf empties the current salon only if it matches name.
// Used by salon deletion so a member who already moved on is untouched.
func (s *Session) ClearSalonIf(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.salon != name {
		return false
	}
	s.salon = ""
	return true
}
