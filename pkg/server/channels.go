package server

import (
	"errors"
	"fmt"
	"log"

	"github.com/salonchat/salond/pkg/database"
	"github.com/salonchat/salond/pkg/staging"
)

// handleCreateSalon registers a new salon and its staging directory.
// Admin only; the name must be usable as a path element.
func (s *Server) handleCreateSalon(sess *Session, name string) error {
	if !sess.IsAdmin() {
		return sess.WriteLine(noticeCreateDenied)
	}

	if _, err := s.files.SalonDir(name); errors.Is(err, staging.ErrInvalidName) {
		return sess.WriteLine(noticeInvalidName)
	}

	exists, err := s.db.ChannelExists(name)
	if err != nil {
		errorLog.Printf("Session %d: channel lookup failed: %v", sess.ID, err)
		return sess.WriteLine(noticeInternalError)
	}
	if exists {
		return sess.WriteLine(noticeSalonExists)
	}

	if err := s.db.InsertChannel(name); err != nil {
		if errors.Is(err, database.ErrChannelExists) {
			return sess.WriteLine(noticeSalonExists)
		}
		errorLog.Printf("Session %d: channel insert failed: %v", sess.ID, err)
		return sess.WriteLine(noticeInternalError)
	}

	if err := s.files.EnsureSalonDir(name); err != nil {
		errorLog.Printf("Failed to create staging dir for salon %s: %v", name, err)
	}

	log.Printf("Salon %s created by %s", name, sess.Username())
	return sess.WriteLine(noticeSalonCreated)
}

// handleDeleteSalon deletes a salon: stored messages first, then member
// eviction, then the staging directory, then the salon record. Evicted
// members stay connected with an empty current salon.
func (s *Server) handleDeleteSalon(sess *Session, name string) error {
	if !sess.IsAdmin() {
		return sess.WriteLine(noticeDeleteDenied)
	}

	exists, err := s.db.ChannelExists(name)
	if err != nil {
		errorLog.Printf("Session %d: channel lookup failed: %v", sess.ID, err)
		return sess.WriteLine(noticeInternalError)
	}
	if !exists {
		return sess.WriteLine(noticeSalonMissing)
	}

	if err := s.db.DeleteChannelMessages(name); err != nil {
		errorLog.Printf("Failed to delete messages for salon %s: %v", name, err)
		return sess.WriteLine(noticeInternalError)
	}

	s.broadcast(name, fmt.Sprintf(salonDeletedFmt, name, sess.Username()), sess)

	for _, member := range s.registry.FindBySalon(name) {
		if !member.ClearSalonIf(name) {
			continue
		}
		if err := member.WriteLine(noticeEvicted); err != nil {
			errorLog.Printf("Eviction notice to session %d failed: %v", member.ID, err)
		}
	}

	if err := s.files.RemoveSalonDir(name); err != nil {
		errorLog.Printf("Failed to remove staging dir for salon %s: %v", name, err)
	}

	if err := s.db.DeleteChannel(name); err != nil && !errors.Is(err, database.ErrChannelNotFound) {
		errorLog.Printf("Failed to delete salon record %s: %v", name, err)
		return sess.WriteLine(noticeInternalError)
	}

	log.Printf("Salon %s deleted by %s", name, sess.Username())
	return sess.WriteLine(noticeSalonDeleted)
}
