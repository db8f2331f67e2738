package server

import (
	"fmt"
	"log"
	"strings"
)

// Wire texts. The protocol is plain newline-terminated text; clients key
// off these exact strings, so they are kept in one place.
const (
	noticeAuthSuccess    = "Authentication successful"
	noticeAuthFailure    = "Authentication failed"
	noticeServerFull     = "Serveur plein, réessayez plus tard."
	noticeServerShutdown = "Le serveur va s'arrêter."
	noticeInternalError  = "Erreur interne du serveur."
	noticeInvalidName    = "Nom invalide."

	noticeNoSalon        = "Vous n'êtes dans aucun salon."
	noticeSalonMissing   = "Ce salon n'existe pas."
	noticeSalonExists    = "Ce salon existe déjà."
	noticeSalonCreated   = "Salon créé avec succès."
	noticeSalonDeleted   = "Salon supprimé avec succès."
	noticeCreateDenied   = "Vous devez être un administrateur pour créer un salon."
	noticeDeleteDenied   = "Vous devez être un administrateur pour supprimer un salon."
	noticeAdminDenied    = "Vous n'êtes pas autorisé à utiliser cette commande."
	noticeEvicted        = "Vous avez été déconnecté car le salon a été supprimé."
	noticeJoinBroadcast  = "Un utilisateur a rejoint le salon."
	noticeLeaveBroadcast = "Un utilisateur a quitté le salon."
	noticeNoOtherUsers   = "Aucun autre utilisateur connecté."
	noticeFileNotFound   = "Erreur : fichier introuvable."

	joinedSalonFmt    = "Vous avez rejoint le salon %s"
	leftSalonFmt      = "Vous avez quitté le salon %s"
	currentSalonFmt   = "Salon actuel : %s"
	salonDeletedFmt   = "Le salon %s a été supprimé par %s."
	fileAvailableFmt  = "Un nouveau fichier '%s' est disponible au téléchargement dans le salon %s."
	salonListHeader   = "Liste des salons :"
	userListHeaderFmt = "Utilisateurs connectés dans le salon %s:"
	adminListHeader   = "Liste des utilisateurs connectés et leurs salons :"
	adminListRowFmt   = "Utilisateur : %s, Salon : %s"
)

// trimLineEnding strips one trailing CR/LF sequence from a protocol line
func trimLineEnding(line string) string {
	return strings.TrimRight(line, "\r\n")
}

// sanitizeName removes any embedded newline or carriage return from a
// name supplied over the wire, so a salon or file name can never span
// protocol lines.
func sanitizeName(name string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' {
			return -1
		}
		return r
	}, name)
}

// dispatch interprets one protocol line for a session. The returned
// error is non-nil only when the session must terminate: a failed write
// to its own socket, a fatal transfer error, or a graceful disconnect
// (errClientDisconnecting). Peer errors never propagate here.
func (s *Server) dispatch(sess *Session, line string) error {
	if !sess.Authenticated() {
		return s.handleAuth(sess, line)
	}

	switch {
	case strings.HasPrefix(line, "join "):
		s.metrics.RecordCommand("join")
		return s.handleJoin(sess, sanitizeName(line[len("join "):]))

	case line == "leave":
		s.metrics.RecordCommand("leave")
		return s.handleLeave(sess)

	case line == "list":
		s.metrics.RecordCommand("list")
		return s.handleList(sess)

	case line == "list_users":
		s.metrics.RecordCommand("list_users")
		return s.handleListUsers(sess)

	case line == "list_admin":
		s.metrics.RecordCommand("list_admin")
		return s.handleListAdmin(sess)

	case line == "current":
		s.metrics.RecordCommand("current")
		return s.handleCurrent(sess)

	case strings.HasPrefix(line, "create "):
		s.metrics.RecordCommand("create")
		return s.handleCreateSalon(sess, sanitizeName(line[len("create "):]))

	case strings.HasPrefix(line, "delete "):
		s.metrics.RecordCommand("delete")
		return s.handleDeleteSalon(sess, sanitizeName(line[len("delete "):]))

	case strings.HasPrefix(line, "send "):
		s.metrics.RecordCommand("send")
		return s.handleReceiveFile(sess, sanitizeName(line[len("send "):]))

	case strings.HasPrefix(line, "receive "):
		s.metrics.RecordCommand("receive")
		return s.handleSendFile(sess, sanitizeName(line[len("receive "):]))

	case line == "disconnect":
		s.metrics.RecordCommand("disconnect")
		log.Printf("Session %d (%s) disconnecting", sess.ID, sess.Username())
		return errClientDisconnecting

	default:
		return s.handleChat(sess, line)
	}
}

// handleAuth processes the credential line of an unauthenticated
// session: "<username> <password>". On failure the connection stays open
// and the client may resend credentials.
func (s *Server) handleAuth(sess *Session, line string) error {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return sess.WriteLine(noticeAuthFailure)
	}
	username, password := fields[0], fields[1]

	ok, isAdmin, err := s.db.Authenticate(username, password)
	if err != nil {
		errorLog.Printf("Session %d: authentication query failed: %v", sess.ID, err)
		return sess.WriteLine(noticeAuthFailure)
	}
	if !ok {
		log.Printf("Session %d: authentication failed for user %s", sess.ID, username)
		return sess.WriteLine(noticeAuthFailure)
	}

	sess.SetAuthenticated(username, isAdmin)
	log.Printf("Session %d authenticated as %s (admin=%v)", sess.ID, username, isAdmin)
	return sess.WriteLine(noticeAuthSuccess)
}

func (s *Server) handleJoin(sess *Session, name string) error {
	exists, err := s.db.ChannelExists(name)
	if err != nil {
		errorLog.Printf("Session %d: channel lookup failed: %v", sess.ID, err)
		return sess.WriteLine(noticeInternalError)
	}
	if !exists {
		return sess.WriteLine(noticeSalonMissing)
	}

	sess.SetSalon(name)
	if err := sess.WriteLine(fmt.Sprintf(joinedSalonFmt, name)); err != nil {
		return err
	}
	s.broadcast(name, noticeJoinBroadcast, sess)
	return nil
}

func (s *Server) handleLeave(sess *Session) error {
	salon := sess.CurrentSalon()
	if salon == "" {
		return sess.WriteLine(noticeNoSalon)
	}

	if err := sess.WriteLine(fmt.Sprintf(leftSalonFmt, salon)); err != nil {
		return err
	}
	s.broadcast(salon, noticeLeaveBroadcast, sess)
	sess.SetSalon("")
	return nil
}

func (s *Server) handleList(sess *Session) error {
	names, err := s.db.ListChannelNames()
	if err != nil {
		errorLog.Printf("Session %d: channel listing failed: %v", sess.ID, err)
		return sess.WriteLine(noticeInternalError)
	}

	lines := append([]string{salonListHeader}, names...)
	return sess.WriteLine(strings.Join(lines, "\n"))
}

func (s *Server) handleListUsers(sess *Session) error {
	salon := sess.CurrentSalon()
	if salon == "" {
		return sess.WriteLine(noticeNoSalon)
	}

	lines := []string{fmt.Sprintf(userListHeaderFmt, salon)}
	for _, member := range s.registry.FindBySalon(salon) {
		if member.ID == sess.ID {
			continue
		}
		lines = append(lines, member.Username())
	}
	if len(lines) == 1 {
		lines = append(lines, noticeNoOtherUsers)
	}
	return sess.WriteLine(strings.Join(lines, "\n"))
}

func (s *Server) handleListAdmin(sess *Session) error {
	if !sess.IsAdmin() {
		return sess.WriteLine(noticeAdminDenied)
	}

	lines := []string{adminListHeader}
	for _, other := range s.registry.All() {
		salon := other.CurrentSalon()
		if salon == "" {
			salon = "Aucun"
		}
		lines = append(lines, fmt.Sprintf(adminListRowFmt, other.Username(), salon))
	}
	return sess.WriteLine(strings.Join(lines, "\n"))
}

func (s *Server) handleCurrent(sess *Session) error {
	salon := sess.CurrentSalon()
	if salon == "" {
		return sess.WriteLine(noticeNoSalon)
	}
	return sess.WriteLine(fmt.Sprintf(currentSalonFmt, salon))
}

// handleChat broadcasts a free-form line to the session's salon. In a
// salon, an empty line is suppressed rather than broadcast as an empty
// message; outside one, even an empty line gets the no-salon notice.
func (s *Server) handleChat(sess *Session, line string) error {
	salon := sess.CurrentSalon()
	if salon == "" {
		return sess.WriteLine(noticeNoSalon)
	}
	if line == "" {
		return nil
	}

	s.broadcast(salon, fmt.Sprintf("%s: %s", sess.Username(), line), sess)
	return nil
}
