package server

import (
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
)

// File transfer sub-protocol, layered on the command stream:
//
//  1. the sending side writes the decimal ASCII payload size as a single
//     write, with no terminator;
//  2. the receiving side parses it and replies with the two bytes "OK";
//  3. the sender streams the payload; the receiver consumes exactly the
//     announced byte count, in buffered chunks.
//
// Anything short of the announced count is a fatal transfer error. Bytes
// beyond the count are left in the stream for the command dispatcher.
const transferAck = "OK"

// handleReceiveFile handles the "send <filename>" command: the client
// pushes a file which is staged under the session's current salon, and
// the salon is notified once the file has landed.
func (s *Server) handleReceiveFile(sess *Session, filename string) error {
	salon := sess.CurrentSalon()
	if salon == "" {
		return sess.WriteLine(noticeNoSalon)
	}

	path, err := s.files.FilePath(salon, filename)
	if err != nil {
		return sess.WriteLine(noticeInvalidName)
	}

	size, err := s.readTransferSize(sess)
	if err != nil {
		// The stream is desynchronized; only terminating is safe
		return fmt.Errorf("transfer size handshake: %w", err)
	}

	if err := sess.writeRaw([]byte(transferAck)); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		errorLog.Printf("Session %d: failed to create %s: %v", sess.ID, path, err)
		// Still drain the announced payload to keep the stream aligned
		if _, drainErr := io.CopyN(io.Discard, sess.reader, size); drainErr != nil {
			return fmt.Errorf("draining failed transfer: %w", drainErr)
		}
		return sess.WriteLine(noticeInternalError)
	}

	received, err := io.CopyN(f, sess.reader, size)
	f.Close()
	if err != nil {
		os.Remove(path)
		s.metrics.RecordTransferFailure()
		errorLog.Printf("Session %d: incomplete transfer of %s (%d/%d bytes): %v",
			sess.ID, filename, received, size, err)
		return fmt.Errorf("transfer incomplete: %w", err)
	}

	s.metrics.RecordTransferBytes("upload", received)
	log.Printf("File %s (%d bytes) received into salon %s from %s", filename, received, salon, sess.Username())

	s.broadcast(salon, fmt.Sprintf(fileAvailableFmt, filename, salon), sess)
	return nil
}

// handleSendFile handles the "receive <filename>" command: the server
// pushes a previously staged file back to the client. The session's
// write lock is held across the whole exchange so broadcast lines cannot
// interleave with payload bytes.
func (s *Server) handleSendFile(sess *Session, filename string) error {
	salon := sess.CurrentSalon()
	if salon == "" {
		return sess.WriteLine(noticeNoSalon)
	}

	path, err := s.files.FilePath(salon, filename)
	if err != nil {
		return sess.WriteLine(noticeInvalidName)
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return sess.WriteLine(noticeFileNotFound)
		}
		errorLog.Printf("Session %d: failed to open %s: %v", sess.ID, path, err)
		return sess.WriteLine(noticeInternalError)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		errorLog.Printf("Session %d: failed to stat %s: %v", sess.ID, path, err)
		return sess.WriteLine(noticeInternalError)
	}
	size := info.Size()

	sess.writeMu.Lock()
	defer sess.writeMu.Unlock()

	if _, err := sess.conn.Write([]byte(strconv.FormatInt(size, 10))); err != nil {
		return err
	}

	ack := make([]byte, len(transferAck))
	if _, err := io.ReadFull(sess.reader, ack); err != nil {
		return fmt.Errorf("transfer ack: %w", err)
	}
	if string(ack) != transferAck {
		return fmt.Errorf("transfer ack: unexpected %q", ack)
	}

	sent, err := io.Copy(sess.conn, f)
	if err != nil {
		s.metrics.RecordTransferFailure()
		return fmt.Errorf("transfer aborted after %d/%d bytes: %w", sent, size, err)
	}

	s.metrics.RecordTransferBytes("download", sent)
	log.Printf("File %s (%d bytes) sent to %s from salon %s", filename, sent, sess.Username(), salon)
	return nil
}

// readTransferSize reads the size announcement: whatever arrives in one
// read, parsed as a decimal byte count.
func (s *Server) readTransferSize(sess *Session) (int64, error) {
	buf := make([]byte, 32)
	n, err := sess.reader.Read(buf)
	if err != nil {
		return 0, err
	}

	size, err := strconv.ParseInt(strings.TrimSpace(string(buf[:n])), 10, 64)
	if err != nil || size < 0 {
		return 0, fmt.Errorf("invalid transfer size %q", string(buf[:n]))
	}
	return size, nil
}
