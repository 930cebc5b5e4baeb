package ws

import (
	"sync"
	"time"

	"github.com/avvvet/viand-services/internal/comm"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const writeWait = 10 * time.Second

// socket serialises writes; gorilla allows one concurrent writer per conn.
type socket struct {
	owner string
	conn  *websocket.Conn
	mu    sync.Mutex
}

func (s *socket) writeJSON(v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(v)
}

// Ws keeps the open feed sockets, keyed by socket id, and the owner each
// one authenticated as.
type Ws struct {
	connMap sync.Map // socketId -> *socket
}

func NewWs() *Ws {
	return &Ws{}
}

func (s *Ws) StoreConnection(socketId, owner string, conn *websocket.Conn) {
	s.connMap.Store(socketId, &socket{owner: owner, conn: conn})
}

func (s *Ws) RemoveConnection(socketId string) {
	s.connMap.Delete(socketId)
}

// Send writes v to a single socket.
func (s *Ws) Send(socketId string, v interface{}) error {
	value, ok := s.connMap.Load(socketId)
	if !ok {
		return nil
	}
	return value.(*socket).writeJSON(v)
}

// GetOwnerSockets lists the socket ids opened by owner.
func (s *Ws) GetOwnerSockets(owner string) []string {
	var sockets []string
	s.connMap.Range(func(key, value interface{}) bool {
		if value.(*socket).owner == owner {
			sockets = append(sockets, key.(string))
		}
		return true
	})
	return sockets
}

// Deliver pushes a card event to every socket of the card's owner. Sockets
// that fail to take the write are dropped and closed.
func (s *Ws) Deliver(ev comm.CardEvent) {
	for _, socketId := range s.GetOwnerSockets(ev.Owner) {
		value, ok := s.connMap.Load(socketId)
		if !ok {
			continue
		}
		sock := value.(*socket)
		if err := sock.writeJSON(ev); err != nil {
			log.Warnf("feed socket %s write failed, dropping: %s", socketId, err)
			s.connMap.Delete(socketId)
			sock.conn.Close()
		}
	}
}
