// Package coordinator is the session brain: it consumes hub events on a
// single dispatch goroutine and owns every state transition between
// connections, presence, the teacher slot, polls, and votes.
package coordinator

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	"pollroom/internal/hub"
	"pollroom/internal/ledger"
	"pollroom/internal/lifecycle"
	"pollroom/internal/presence"
	"pollroom/internal/results"
	"pollroom/pkg/interfaces"
	"pollroom/pkg/types"
)

// Rooms scopes broadcasts to the connections following one poll.
type Rooms interface {
	JoinRoom(roomID, handle string)
	Broadcast(roomID string, v interface{})
}

// Notifier re-enters the dispatch loop from timer goroutines.
type Notifier interface {
	EnqueuePollExpired(pollID string) error
	EnqueueTeacherRelease(handle string) error
}

// Options are the coordinator's timing and throttling knobs.
type Options struct {
	TeacherGrace   time.Duration
	VoteRateLimit  int
	VoteRateWindow time.Duration
	EndRetryDelay  time.Duration
}

type role int

const (
	roleStudent role = iota + 1
	roleTeacher
)

// client is per-connection identity, keyed by connection handle.
type client struct {
	conn      interfaces.Conn
	role      role
	sessionID string
	name      string
}

type slotState int

const (
	slotFree slotState = iota
	slotHeld
	slotPendingRelease
)

// Coordinator implements hub.Dispatcher. All fields below the sync-free
// line are touched exclusively from Dispatch; the grace timer callback only
// enqueues, never mutates.
type Coordinator struct {
	store     interfaces.Store
	presence  *presence.Registry
	ledger    *ledger.Ledger
	lifecycle *lifecycle.Lifecycle
	rooms     Rooms
	notifier  Notifier
	limiter   *RateLimiter
	opts      Options

	clients       map[string]*client
	teacherSlot   slotState
	teacherHandle string
	graceTimer    *time.Timer
	lastEnded     *lifecycle.EndResult
}

// NewCoordinator wires the session coordinator.
func NewCoordinator(
	store interfaces.Store,
	reg *presence.Registry,
	votes *ledger.Ledger,
	polls *lifecycle.Lifecycle,
	rooms Rooms,
	notifier Notifier,
	opts Options,
) *Coordinator {
	return &Coordinator{
		store:     store,
		presence:  reg,
		ledger:    votes,
		lifecycle: polls,
		rooms:     rooms,
		notifier:  notifier,
		limiter:   NewRateLimiter(opts.VoteRateLimit, opts.VoteRateWindow),
		opts:      opts,
		clients:   make(map[string]*client),
	}
}

// Dispatch handles one hub event. Runs on the hub goroutine only.
func (c *Coordinator) Dispatch(ctx context.Context, ev hub.Event) {
	switch ev.Kind {
	case hub.ClientMessage:
		c.handleMessage(ctx, ev.Conn, ev.Data)
	case hub.Disconnect:
		c.handleDisconnect(ev.Conn)
	case hub.PollExpired:
		c.handlePollExpired(ctx, ev.PollID)
	case hub.TeacherRelease:
		c.handleTeacherRelease(ev.Handle)
	}
}

func (c *Coordinator) handleMessage(ctx context.Context, conn interfaces.Conn, data []byte) {
	var env types.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.sendError(conn, types.Validation("Malformed message"))
		return
	}

	switch env.Type {
	case types.EventJoinStudent:
		c.joinStudent(ctx, conn, env.Data)
	case types.EventJoinTeacher:
		c.joinTeacher(ctx, conn)
	case types.EventCreatePoll:
		c.createPoll(ctx, conn, env.Data)
	case types.EventSubmitVote:
		c.submitVote(ctx, conn, env.Data)
	case types.EventRequestPollState:
		c.requestPollState(ctx, conn)
	default:
		c.sendError(conn, types.Validation("Unknown message type"))
	}
}

func (c *Coordinator) joinStudent(ctx context.Context, conn interfaces.Conn, raw json.RawMessage) {
	// A connection's role is fixed by its first join.
	if cl := c.clients[conn.ID()]; cl != nil && cl.role != roleStudent {
		c.sendError(conn, types.Conflict("Connection is already joined as a teacher"))
		return
	}

	var payload types.JoinStudentPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		c.sendError(conn, types.Validation("Malformed message"))
		return
	}

	name := strings.TrimSpace(payload.StudentName)
	if name == "" {
		c.sendError(conn, types.Validation("Name must not be empty"))
		return
	}
	if len(name) > types.MaxNameLength {
		c.sendError(conn, types.Validation("Name is too long"))
		return
	}
	if !types.IsValidSessionID(payload.StudentSessionID) {
		c.sendError(conn, types.Validation("Student not identified"))
		return
	}

	// A reconnect arrives on a fresh connection handle while the old entry
	// may linger. Evict any entry holding the same session id first, so the
	// student does not collide with their own stale name.
	c.evictSession(payload.StudentSessionID, conn.ID())

	if c.presence.IsNameTaken(name, conn.ID()) {
		c.sendError(conn, types.Conflict("Name is already taken"))
		return
	}

	c.presence.AddStudent(conn.ID(), payload.StudentSessionID, name)
	c.clients[conn.ID()] = &client{
		conn:      conn,
		role:      roleStudent,
		sessionID: payload.StudentSessionID,
		name:      name,
	}
	log.Printf("Student joined: name=%s handle=%s", name, conn.ID())

	c.sendSnapshot(ctx, conn)
}

func (c *Coordinator) evictSession(sessionID, keepHandle string) {
	for _, handle := range c.presence.Handles() {
		if handle == keepHandle {
			continue
		}
		student, ok := c.presence.Get(handle)
		if !ok || student.SessionID != sessionID {
			continue
		}
		c.presence.RemoveStudent(handle)
		c.limiter.Forget(handle)
		if stale, ok := c.clients[handle]; ok {
			_ = stale.conn.Close()
			delete(c.clients, handle)
		}
	}
}

func (c *Coordinator) joinTeacher(ctx context.Context, conn interfaces.Conn) {
	// A connection's role is fixed by its first join.
	if cl := c.clients[conn.ID()]; cl != nil && cl.role != roleTeacher {
		c.sendError(conn, types.Conflict("Connection is already joined as a student"))
		return
	}

	switch c.teacherSlot {
	case slotHeld:
		if c.teacherHandle != conn.ID() {
			c.sendError(conn, types.Conflict("Another teacher is already connected"))
			_ = conn.Close()
			return
		}
	case slotPendingRelease:
		// Reconnect within the grace period reclaims the slot.
		if c.graceTimer != nil {
			c.graceTimer.Stop()
			c.graceTimer = nil
		}
	}

	c.teacherSlot = slotHeld
	c.teacherHandle = conn.ID()
	c.clients[conn.ID()] = &client{conn: conn, role: roleTeacher}
	log.Printf("Teacher joined: handle=%s", conn.ID())

	c.sendSnapshot(ctx, conn)
}

func (c *Coordinator) createPoll(ctx context.Context, conn interfaces.Conn, raw json.RawMessage) {
	cl := c.clients[conn.ID()]
	if cl == nil || cl.role != roleTeacher {
		c.sendError(conn, types.Unauthorized("Only the teacher can create polls"))
		return
	}
	if !c.store.Available() {
		c.sendError(conn, types.Unavailable("Service temporarily unavailable, please try again"))
		return
	}

	var payload types.CreatePollPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		c.sendError(conn, types.Validation("Malformed message"))
		return
	}

	poll, endedPrior, err := c.lifecycle.Create(ctx, payload.Question, payload.Options, payload.Duration)
	if endedPrior != nil {
		c.announceEnded(endedPrior)
	}
	if err != nil {
		c.sendError(conn, err)
		return
	}

	// Every connected participant follows the new poll.
	c.rooms.JoinRoom(poll.ID, conn.ID())
	for _, handle := range c.presence.Handles() {
		c.rooms.JoinRoom(poll.ID, handle)
	}
	c.rooms.Broadcast(poll.ID, types.ServerEvent{
		Type: types.EventPollStarted,
		Data: types.PollStartedPayload{
			Poll:          poll,
			RemainingTime: c.lifecycle.Remaining(poll),
			Results:       map[string]int{},
		},
	})
}

func (c *Coordinator) submitVote(ctx context.Context, conn interfaces.Conn, raw json.RawMessage) {
	cl := c.clients[conn.ID()]
	if cl == nil || cl.role != roleStudent {
		c.sendError(conn, types.Unauthorized("Only students can vote"))
		return
	}
	if !c.limiter.Allow(conn.ID()) {
		c.sendError(conn, types.State("Too many requests, slow down"))
		return
	}

	var payload types.SubmitVotePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		c.sendError(conn, types.Validation("Malformed message"))
		return
	}

	tally, count, err := c.ledger.SubmitVote(ctx, payload.PollID, cl.sessionID, cl.name, payload.OptionID)
	if err != nil {
		c.sendError(conn, err)
		return
	}

	students := c.presence.Count()
	c.rooms.Broadcast(payload.PollID, types.ServerEvent{
		Type: types.EventVoteUpdate,
		Data: types.VoteUpdatePayload{
			PollID:       payload.PollID,
			Results:      tally,
			VoteCount:    count,
			StudentCount: students,
		},
	})

	// Informational only; the poll still runs until the timer fires or the
	// teacher starts the next one.
	if students > 0 && count >= students {
		c.rooms.Broadcast(payload.PollID, types.ServerEvent{
			Type: types.EventAllStudentsVoted,
			Data: types.AllStudentsVotedPayload{PollID: payload.PollID},
		})
	}
}

func (c *Coordinator) requestPollState(ctx context.Context, conn interfaces.Conn) {
	c.sendSnapshot(ctx, conn)
}

// sendSnapshot delivers the reconciliation state for the connection's role
// and re-joins it to the active poll's room. Safe to repeat: it reads, it
// never transitions.
func (c *Coordinator) sendSnapshot(ctx context.Context, conn interfaces.Conn) {
	cl := c.clients[conn.ID()]

	active, err := c.store.FindActivePoll(ctx)
	if err != nil {
		log.Printf("Failed to load active poll for snapshot: %v", err)
		c.sendError(conn, err)
		return
	}

	var payload types.PollStatePayload
	switch {
	case active != nil:
		votes, err := c.store.FindVotesByPoll(ctx, active.ID)
		if err != nil {
			log.Printf("Failed to load votes for snapshot: %v", err)
			c.sendError(conn, err)
			return
		}
		payload = types.PollStatePayload{
			Poll:          active,
			RemainingTime: c.lifecycle.Remaining(active),
			Results:       results.Tally(votes),
		}
		if cl != nil && cl.role == roleStudent {
			voted, err := c.ledger.HasVoted(ctx, active.ID, cl.sessionID)
			if err != nil {
				log.Printf("Failed to check vote for snapshot: %v", err)
			}
			payload.HasVoted = voted
		}
		c.rooms.JoinRoom(active.ID, conn.ID())

	case cl != nil && cl.role == roleTeacher && c.lastEnded != nil:
		// The teacher keeps seeing the last result set across a refresh.
		payload = types.PollStatePayload{
			Poll:    c.lastEnded.Poll,
			Results: c.lastEnded.Results,
		}

	case cl != nil && cl.role == roleStudent:
		// A student only gets the ended results back if they took part.
		// Resolved from durable state so a vote cast before a restart
		// still brings its results back.
		ended, err := c.store.FindEndedPolls(ctx)
		if err != nil {
			log.Printf("Failed to load ended polls for snapshot: %v", err)
			break
		}
		if len(ended) == 0 {
			break
		}
		latest := ended[0]
		voted, err := c.ledger.HasVoted(ctx, latest.ID, cl.sessionID)
		if err != nil {
			log.Printf("Failed to check vote for snapshot: %v", err)
			break
		}
		if !voted {
			break
		}
		votes, err := c.store.FindVotesByPoll(ctx, latest.ID)
		if err != nil {
			log.Printf("Failed to load votes for snapshot: %v", err)
			break
		}
		payload = types.PollStatePayload{
			Poll:     latest,
			Results:  results.Tally(votes),
			HasVoted: true,
		}
	}

	if cl != nil && cl.role == roleTeacher {
		students := c.presence.Count()
		payload.StudentCount = &students
		if payload.Poll != nil {
			count, err := c.ledger.VoteCount(ctx, payload.Poll.ID)
			if err != nil {
				log.Printf("Failed to count votes for snapshot: %v", err)
			} else {
				payload.VoteCount = &count
			}
		}
	}

	c.send(conn, types.EventPollState, payload)
}

func (c *Coordinator) handleDisconnect(conn interfaces.Conn) {
	handle := conn.ID()
	cl, ok := c.clients[handle]
	if !ok {
		return
	}
	delete(c.clients, handle)
	c.limiter.Forget(handle)

	switch {
	// Keyed on the slot holder, not the client role, so the slot can never
	// be stranded by a record that went missing or changed shape.
	case c.teacherHandle == handle:
		// Hold the slot through a short grace window so a page refresh does
		// not hand the classroom to a second teacher.
		c.teacherSlot = slotPendingRelease
		if c.graceTimer != nil {
			c.graceTimer.Stop()
		}
		c.graceTimer = time.AfterFunc(c.opts.TeacherGrace, func() {
			c.releaseTeacherSlot(handle)
		})
		log.Printf("Teacher disconnected, slot held for %v: handle=%s", c.opts.TeacherGrace, handle)

	case cl.role == roleStudent:
		if student, removed := c.presence.RemoveStudent(handle); removed {
			log.Printf("Student disconnected: name=%s handle=%s", student.Name, handle)
		}
	}
}

// releaseTeacherSlot runs on a timer goroutine. Enqueueing can fail when the
// hub queue is full; the release is retried until it lands, mirroring the
// poll-end retry. A stale retry after a reconnect is a no-op in the handler.
func (c *Coordinator) releaseTeacherSlot(handle string) {
	if err := c.notifier.EnqueueTeacherRelease(handle); err != nil {
		log.Printf("Failed to enqueue teacher release, retrying in %v: %v", c.opts.EndRetryDelay, err)
		time.AfterFunc(c.opts.EndRetryDelay, func() {
			c.releaseTeacherSlot(handle)
		})
	}
}

func (c *Coordinator) handleTeacherRelease(handle string) {
	if c.teacherSlot != slotPendingRelease || c.teacherHandle != handle {
		return
	}
	c.teacherSlot = slotFree
	c.teacherHandle = ""
	c.graceTimer = nil
	// Full teacher absence also forgets the last shown poll; the next
	// teacher starts from a clean slate.
	c.lastEnded = nil
	log.Printf("Teacher slot released: handle=%s", handle)
}

func (c *Coordinator) handlePollExpired(ctx context.Context, pollID string) {
	res, err := c.lifecycle.EndPoll(ctx, pollID)
	if err != nil {
		log.Printf("Failed to end poll %s, retrying in %v: %v", pollID, c.opts.EndRetryDelay, err)
		time.AfterFunc(c.opts.EndRetryDelay, func() {
			if err := c.notifier.EnqueuePollExpired(pollID); err != nil {
				log.Printf("Failed to re-enqueue poll expiry: %v", err)
			}
		})
		return
	}
	if res == nil {
		// Already ended through another path.
		return
	}
	c.announceEnded(res)
}

func (c *Coordinator) announceEnded(res *lifecycle.EndResult) {
	// The teacher-refresh fallback only arms when a teacher was around to
	// see the result; a poll ending into an empty teacher slot is not a
	// "last shown" poll.
	if c.teacherSlot != slotFree {
		c.lastEnded = res
	}
	c.rooms.Broadcast(res.Poll.ID, types.ServerEvent{
		Type: types.EventPollEnded,
		Data: types.PollEndedPayload{
			PollID:  res.Poll.ID,
			Results: res.Results,
		},
	})
}

// Stop cancels the teacher grace timer.
func (c *Coordinator) Stop() {
	if c.graceTimer != nil {
		c.graceTimer.Stop()
	}
}

func (c *Coordinator) send(conn interfaces.Conn, eventType string, data interface{}) {
	if err := conn.WriteJSON(types.ServerEvent{Type: eventType, Data: data}); err != nil {
		log.Printf("Failed to send %s to %s: %v", eventType, conn.ID(), err)
	}
}

func (c *Coordinator) sendError(conn interfaces.Conn, err error) {
	c.send(conn, types.EventError, types.ErrorPayload{Message: types.UserMessage(err)})
}
