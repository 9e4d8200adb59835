package syncunit

// A mailbox is a bounded FIFO message channel. Senders park when the queue
// is full, receivers when it is empty; both wake in arrival order.
type mailbox struct {
	id       int
	capacity int

	queue []uint64

	blockedSenders   []*parkedSend
	blockedReceivers []*parkedReceive
}

type parkedSend struct {
	core     int
	msg      uint64
	callback func(err error)
}

type parkedReceive struct {
	core     int
	callback func(msg uint64, err error)
}

// Send delivers a message into the mailbox on behalf of a core. The callback
// runs once the message is queued; when the mailbox is full the caller stays
// parked until a receive frees a slot.
func (u *Unit) Send(
	channel, core int,
	msg uint64,
	callback func(err error),
) {
	mb, found := u.mailboxes[channel]
	if !found {
		u.resume(func() { callback(ErrNoSuchPrimitive) })
		return
	}

	// A parked receiver implies an empty queue; hand the message over
	// directly so delivery order matches arrival order.
	if len(mb.blockedReceivers) > 0 {
		r := mb.blockedReceivers[0]
		mb.blockedReceivers = mb.blockedReceivers[1:]

		u.resume(func() { callback(nil) })
		u.resume(func() { r.callback(msg, nil) })
		return
	}

	if len(mb.queue) < mb.capacity {
		mb.queue = append(mb.queue, msg)
		u.resume(func() { callback(nil) })
		return
	}

	mb.blockedSenders = append(mb.blockedSenders, &parkedSend{
		core:     core,
		msg:      msg,
		callback: callback,
	})
}

// Receive takes the oldest message from the mailbox on behalf of a core,
// parking the caller while the mailbox is empty.
func (u *Unit) Receive(
	channel, core int,
	callback func(msg uint64, err error),
) {
	mb, found := u.mailboxes[channel]
	if !found {
		u.resume(func() { callback(0, ErrNoSuchPrimitive) })
		return
	}

	if len(mb.queue) == 0 {
		mb.blockedReceivers = append(mb.blockedReceivers, &parkedReceive{
			core:     core,
			callback: callback,
		})
		return
	}

	msg := mb.queue[0]
	mb.queue = mb.queue[1:]

	// The freed slot admits the oldest parked sender before anyone else
	// can observe the mailbox non-full.
	if len(mb.blockedSenders) > 0 {
		s := mb.blockedSenders[0]
		mb.blockedSenders = mb.blockedSenders[1:]

		mb.queue = append(mb.queue, s.msg)
		u.resume(func() { s.callback(nil) })
	}

	u.resume(func() { callback(msg, nil) })
}

// MailboxDepth returns the number of queued messages, for inspection.
func (u *Unit) MailboxDepth(channel int) int {
	if mb, found := u.mailboxes[channel]; found {
		return len(mb.queue)
	}
	return 0
}

func (mb *mailbox) dropCore(u *Unit, core int) {
	senders := mb.blockedSenders[:0]
	for _, s := range mb.blockedSenders {
		if s.core == core {
			cb := s.callback
			u.resume(func() { cb(ErrCoreReset) })
			continue
		}
		senders = append(senders, s)
	}
	mb.blockedSenders = senders

	receivers := mb.blockedReceivers[:0]
	for _, r := range mb.blockedReceivers {
		if r.core == core {
			cb := r.callback
			u.resume(func() { cb(0, ErrCoreReset) })
			continue
		}
		receivers = append(receivers, r)
	}
	mb.blockedReceivers = receivers
}
