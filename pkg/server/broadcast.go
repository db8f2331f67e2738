package server

// broadcast delivers a message to every session currently in the salon,
// excluding the sender. Membership is snapshotted under the registry
// lock and the writes happen outside it, so one slow peer never blocks
// registration or other broadcasts. A write failure to one peer is
// logged and skipped; it never aborts delivery to the others.
//
// The message is also persisted, tagged with the salon and the sender's
// username. Persistence is skipped if the sender is no longer
// registered.
func (s *Server) broadcast(salon, message string, sender *Session) {
	for _, member := range s.registry.FindBySalon(salon) {
		if sender != nil && member.ID == sender.ID {
			continue
		}
		if err := member.WriteLine(message); err != nil {
			errorLog.Printf("Broadcast to session %d failed: %v", member.ID, err)
			s.metrics.RecordBroadcastFailure()
		}
	}
	s.metrics.RecordBroadcast()

	if sender == nil || !s.registry.Contains(sender) {
		return
	}
	if err := s.db.InsertMessage(salon, sender.Username(), message); err != nil {
		errorLog.Printf("Failed to persist message in salon %s: %v", salon, err)
	}
}
