package kernel

import (
	"go.uber.org/zap"

	"github.com/emberos/kernel/internal/kernel/cap"
	"github.com/emberos/kernel/internal/kernel/ipc"
	"github.com/emberos/kernel/internal/kernel/mem"
	"github.com/emberos/kernel/internal/kernel/proc"
	"github.com/emberos/kernel/internal/kernel/syscall"
	"github.com/emberos/kernel/internal/shared/types"
)

func (k *Kernel) createServer(p *proc.Process, c syscall.CreateServer) ipc.Result {
	sid := c.SID
	if sid.IsZero() {
		sid = cap.Random()
	}
	if _, exists := k.servers[sid]; exists {
		// Only reachable for deterministic (named) SIDs; random SIDs
		// never collide by construction.
		return ipc.Errorf(types.ErrServerExists)
	}
	k.servers[sid] = &server{sid: sid, owner: p.PID, box: ipc.NewMailbox()}
	k.metrics.AddServers(1)
	k.log.Debug("server created", zap.Stringer("sid", sid), zap.Uint8("owner", uint8(p.PID)))
	return ipc.Result{Kind: ipc.ResultNewServer, SID: sid}
}

// CreateNamedServer registers a mailbox under a well-known bootstrap name.
// The SID is derived from the name; a second registration of the same name
// fails system-wide with ServerExists.
func (k *Kernel) CreateNamedServer(pid types.PID, name string) (cap.SID, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	p, ok := k.procs[pid]
	if !ok || p.State == proc.StateTerminated {
		return cap.SID{}, types.ErrProcessNotFound
	}
	if _, taken := k.names[name]; taken {
		return cap.SID{}, types.ErrServerExists
	}
	sid := cap.FromName(name)
	r := k.createServer(p, syscall.CreateServer{SID: sid})
	if err := r.AsError(); err != nil {
		return cap.SID{}, err
	}
	k.names[name] = sid
	k.servers[sid].name = name
	return sid, nil
}

func (k *Kernel) destroyServer(p *proc.Process, c syscall.DestroyServer) ipc.Result {
	srv, ok := k.servers[c.SID]
	if !ok {
		return ipc.Errorf(types.ErrServerNotFound)
	}
	if srv.owner != p.PID {
		return ipc.Errorf(types.ErrAccessDenied)
	}
	k.teardownServer(srv)
	return ipc.Ok()
}

// teardownServer unwinds a mailbox: undelivered Moves are freed, borrows
// are returned to their lenders, blocked senders and parked receivers fail
// with ServerNotFound. Runs under the kernel lock.
func (k *Kernel) teardownServer(srv *server) {
	queued, inflight, waiters := srv.box.Drain()

	owner := k.procs[srv.owner]
	for _, env := range queued {
		// Only undelivered Moves need unwinding here: the owner holds
		// both the frames and their sole mapping but never learned the
		// address, so the pages are freed outright. Queued borrows are
		// also tracked inflight and unwound below.
		if env.Body.Kind == ipc.KindMove && owner != nil {
			owner.Space.Release(env.Body.Memory.Buf)
		}
	}
	for s, inf := range inflight {
		if inf.Msg.Kind.Memory() && owner != nil {
			owner.Space.Unmap(inf.ReceiverBuf)
			k.unlend(inf.Frame, inf.Pages)
		}
		delete(k.pendingReplies, s)
		k.wakeRef(waiterRef{pid: s.PID, tid: s.TID}, ipc.Errorf(types.ErrServerNotFound))
	}
	for _, w := range waiters {
		k.wakeRef(waiterRef{pid: w.PID, tid: w.TID}, ipc.Errorf(types.ErrServerNotFound))
	}

	delete(k.servers, srv.sid)
	if srv.name != "" {
		delete(k.names, srv.name)
	}
	k.metrics.AddServers(-1)
	k.metrics.SetFramesInUse(k.alloc.InUse())
	k.log.Debug("server destroyed", zap.Stringer("sid", srv.sid))
}

func (k *Kernel) connect(p *proc.Process, c syscall.Connect) ipc.Result {
	if _, ok := k.servers[c.SID]; !ok {
		return ipc.Errorf(types.ErrServerNotFound)
	}
	table := k.conns[p.PID]
	cid := table.next
	table.next++
	table.byCID[cid] = c.SID
	k.metrics.AddConnections(1)
	return ipc.Result{Kind: ipc.ResultConnection, CID: cid}
}

func (k *Kernel) disconnect(p *proc.Process, c syscall.Disconnect) ipc.Result {
	table := k.conns[p.PID]
	if _, ok := table.byCID[c.CID]; !ok {
		return ipc.Errorf(types.ErrServerNotFound)
	}
	delete(table.byCID, c.CID)
	k.metrics.AddConnections(-1)
	return ipc.Ok()
}

func (k *Kernel) sendMessage(p *proc.Process, t *proc.Thread, c syscall.SendMessage) ipc.Result {
	sid, ok := k.conns[p.PID].byCID[c.CID]
	if !ok {
		return ipc.Errorf(types.ErrServerNotFound)
	}
	srv, ok := k.servers[sid]
	if !ok {
		// Dangling CID: the server was destroyed after connect.
		return ipc.Errorf(types.ErrServerNotFound)
	}

	k.seq++
	env := ipc.Envelope{
		Sender: ipc.Sender{PID: p.PID, TID: t.TID, Seq: k.seq},
		Body:   c.Msg,
	}

	inf := ipc.Inflight{Msg: c.Msg}
	if c.Msg.Kind.Memory() {
		mapped, r := k.remapForDelivery(p, srv, c.Msg, &inf)
		if r != nil {
			return *r
		}
		env.Body.Memory.Buf = mapped
		inf.Msg = env.Body
	}
	k.metrics.RecordMessage(c.Msg.Kind.String())

	if w, direct := srv.box.Deliver(env); direct {
		k.wakeRef(waiterRef{pid: w.PID, tid: w.TID}, ipc.Result{Kind: ipc.ResultMessage, Env: env})
	} else if ref, ok := k.eventWaiters[srv.owner]; ok {
		// The owner sleeps in WaitEvent; delivery makes it Ready.
		delete(k.eventWaiters, srv.owner)
		k.wakeRef(ref, ipc.Resume())
	}

	if !c.Msg.Kind.Blocking() {
		return ipc.Ok()
	}
	srv.box.Track(env.Sender, inf)
	k.pendingReplies[env.Sender] = srv
	return k.block(p, t, proc.StateBlocked)
}

// remapForDelivery validates a memory message against the sender's space
// and maps the range into the receiver. For a Move, frame ownership flips
// atomically and the sender's mapping is gone before delivery; for borrows
// the sender keeps ownership and the frames are marked lent.
func (k *Kernel) remapForDelivery(p *proc.Process, srv *server, msg ipc.Message, inf *ipc.Inflight) (mem.Range, *ipc.Result) {
	fail := func(e *types.Error) (mem.Range, *ipc.Result) {
		r := ipc.Errorf(e)
		return mem.Range{}, &r
	}

	buf := msg.Memory.Buf
	if !buf.Aligned() {
		return fail(types.ErrBadAlignment)
	}
	frame, n, err := p.Space.FramesOf(buf)
	if err != nil {
		return fail(kerrOf(err))
	}
	for i := 0; i < n; i++ {
		f := frame + mem.Frame(i)
		if k.alloc.Owner(f) != p.PID {
			return fail(types.ErrBadAddress)
		}
		if msg.Kind == ipc.KindMove && k.lent[f] > 0 {
			// Lent pages cannot change owner until the borrow
			// unwinds.
			return fail(types.ErrAccessDenied)
		}
	}

	recv, ok := k.procs[srv.owner]
	if !ok || recv.State == proc.StateTerminated {
		return fail(types.ErrProcessNotFound)
	}

	switch msg.Kind {
	case ipc.KindMove:
		if err := k.alloc.Transfer(frame, n, p.PID, srv.owner); err != nil {
			return fail(kerrOf(err))
		}
		p.Space.Unmap(buf)
		mapped, err := recv.Space.MapFrames(frame, n, mem.FlagRead|mem.FlagWrite)
		if err != nil {
			return fail(kerrOf(err))
		}
		k.metrics.RecordMove(n)
		return mapped, nil

	case ipc.KindBorrow, ipc.KindMutableBorrow:
		flags := mem.FlagRead
		if msg.Kind == ipc.KindMutableBorrow {
			flags |= mem.FlagWrite
		}
		mapped, err := recv.Space.MapFrames(frame, n, flags)
		if err != nil {
			return fail(kerrOf(err))
		}
		for i := 0; i < n; i++ {
			k.lent[frame+mem.Frame(i)]++
		}
		k.metrics.AddPagesLent(n)
		inf.SenderBuf = buf
		inf.Receiver = srv.owner
		inf.ReceiverBuf = mapped
		inf.Frame = frame
		inf.Pages = n
		return mapped, nil
	}
	return fail(types.ErrInternal)
}

func (k *Kernel) receiveMessage(p *proc.Process, t *proc.Thread, c syscall.ReceiveMessage) ipc.Result {
	srv, ok := k.servers[c.SID]
	if !ok {
		return ipc.Errorf(types.ErrServerNotFound)
	}
	if srv.owner != p.PID {
		// Holding a SID someone else registered does not grant
		// receive rights.
		return ipc.Errorf(types.ErrAccessDenied)
	}
	if env, ok := srv.box.Next(ipc.Waiter{PID: p.PID, TID: t.TID}); ok {
		return ipc.Result{Kind: ipc.ResultMessage, Env: env}
	}
	return k.block(p, t, proc.StateSleeping)
}

func (k *Kernel) returnScalar(p *proc.Process, c syscall.ReturnScalar) ipc.Result {
	switch len(c.Args) {
	case 1, 2, 5:
	default:
		return ipc.Errorf(types.ErrInternal)
	}
	srv, ok := k.pendingReplies[c.Sender]
	if !ok {
		// Unknown or already-answered sender: replies are
		// exactly-once.
		return ipc.Errorf(types.ErrProcessNotFound)
	}
	if srv.owner != p.PID {
		return ipc.Errorf(types.ErrAccessDenied)
	}
	inf, err := srv.box.Take(c.Sender)
	if err != nil {
		return ipc.Errorf(kerrOf(err))
	}
	if inf.Msg.Kind != ipc.KindBlockingScalar {
		// Memory sends must come back through ReturnMemory. Requeue
		// nothing; this is a server bug surfaced loudly.
		srv.box.Track(c.Sender, inf)
		return ipc.Errorf(types.ErrInternal)
	}
	delete(k.pendingReplies, c.Sender)

	var r ipc.Result
	switch len(c.Args) {
	case 1:
		r = ipc.Scalar1(c.Args[0])
	case 2:
		r = ipc.Scalar2(c.Args[0], c.Args[1])
	case 5:
		r = ipc.Scalar5(c.Args[0], c.Args[1], c.Args[2], c.Args[3], c.Args[4])
	}
	k.metrics.RecordReply()
	k.wakeRef(waiterRef{pid: c.Sender.PID, tid: c.Sender.TID}, r)
	return ipc.Ok()
}

func (k *Kernel) returnMemory(p *proc.Process, c syscall.ReturnMemory) ipc.Result {
	srv, ok := k.pendingReplies[c.Sender]
	if !ok {
		return ipc.Errorf(types.ErrProcessNotFound)
	}
	if srv.owner != p.PID {
		return ipc.Errorf(types.ErrAccessDenied)
	}
	inf, err := srv.box.Take(c.Sender)
	if err != nil {
		return ipc.Errorf(kerrOf(err))
	}
	if inf.Msg.Kind != ipc.KindBorrow && inf.Msg.Kind != ipc.KindMutableBorrow {
		srv.box.Track(c.Sender, inf)
		return ipc.Errorf(types.ErrInternal)
	}
	delete(k.pendingReplies, c.Sender)

	// The temporary mapping is removed before the sender resumes, so the
	// loaner regains exclusive access before it can observe the metadata.
	p.Space.Unmap(inf.ReceiverBuf)
	k.unlend(inf.Frame, inf.Pages)

	k.metrics.RecordReply()
	k.wakeRef(waiterRef{pid: c.Sender.PID, tid: c.Sender.TID}, ipc.MemoryReturned(c.Offset, c.Valid))
	return ipc.Ok()
}

func (k *Kernel) unlend(frame mem.Frame, n int) {
	for i := 0; i < n; i++ {
		f := frame + mem.Frame(i)
		if k.lent[f] > 1 {
			k.lent[f]--
		} else {
			delete(k.lent, f)
		}
	}
	k.metrics.AddPagesLent(-n)
}
