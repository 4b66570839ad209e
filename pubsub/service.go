package pubsub

import (
	"context"
	"time"

	"github.com/xmppfed/fedcore/hook"
	"github.com/xmppfed/fedcore/pubsub/model"
	"github.com/xmppfed/fedcore/xmpp"
	"github.com/xmppfed/fedcore/xmpp/jid"
)

// call is the single mailbox message shape: a thunk against the owned
// Controller and a reply channel for its result, spec §5 "each... PubSub
// service host is an independent task with a mailbox... a single task
// processes its events sequentially."
type call struct {
	run   func() (interface{}, error)
	reply chan result
}

type result struct {
	val interface{}
	err error
}

// ErrMailboxFull is returned when a host's mailbox is full (spec §6
// max_fsm_queue). Unlike s2s.Session.Enqueue, which blocks on a full
// mailbox, a Service call fails at once.
type ErrMailboxFull struct{ Host string }

func (e ErrMailboxFull) Error() string { return "pubsub: mailbox full for " + e.Host }

// Service is one host's PubSub task: every verb against its node tree is
// funneled through a single goroutine, giving the shared storage.Repository
// transactions a predictable, serialized caller per host even though the
// repository itself may also be reachable concurrently from other hosts.
type Service struct {
	host     string
	ctrl     *Controller
	mailbox  chan call
	maxQueue int
	done     chan struct{}
}

// NewService constructs a Service for host, backed by ctrl, with a mailbox
// capped at maxQueue (spec §6 max_fsm_queue; 0 or less gives a mailbox of
// 64).
func NewService(host string, ctrl *Controller, maxQueue int) *Service {
	s := &Service{
		host:     host,
		ctrl:     ctrl,
		maxQueue: maxQueue,
		done:     make(chan struct{}),
	}
	if maxQueue > 0 {
		s.mailbox = make(chan call, maxQueue)
	} else {
		s.mailbox = make(chan call, 64)
	}
	return s
}

// Host returns the domain or bare JID this service owns.
func (s *Service) Host() string { return s.host }

// Start spawns the task loop.
func (s *Service) Start() { go s.run() }

// Stop signals the loop to exit. Calls still waiting in the mailbox are not
// run; their callers wait until their own context ends.
func (s *Service) Stop() { close(s.done) }

func (s *Service) run() {
	for {
		select {
		case c := <-s.mailbox:
			val, err := c.run()
			c.reply <- result{val: val, err: err}
		case <-s.done:
			return
		}
	}
}

func (s *Service) submit(ctx context.Context, run func() (interface{}, error)) (interface{}, error) {
	c := call{run: run, reply: make(chan result, 1)}
	select {
	case s.mailbox <- c:
	default:
		return nil, ErrMailboxFull{Host: s.host}
	}
	select {
	case r := <-c.reply:
		return r.val, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Service) CreateNode(ctx context.Context, path, owner, nodeType string, access model.AccessModel, form xmpp.XElement) (string, error) {
	v, err := s.submit(ctx, func() (interface{}, error) {
		return s.ctrl.CreateNode(ctx, s.host, path, owner, nodeType, access, form)
	})
	if v == nil {
		return "", err
	}
	return v.(string), err
}

type subscribeResult struct {
	state model.SubState
	subID string
}

func (s *Service) SubscribeNode(ctx context.Context, path, requester, subscriber string, form xmpp.XElement) (model.SubState, string, error) {
	v, err := s.submit(ctx, func() (interface{}, error) {
		state, subID, serr := s.ctrl.SubscribeNode(ctx, s.host, path, requester, subscriber, form)
		return subscribeResult{state: state, subID: subID}, serr
	})
	if v == nil {
		return "", "", err
	}
	r := v.(subscribeResult)
	return r.state, r.subID, err
}

type publishResult struct {
	itemID  string
	evicted []string
}

func (s *Service) PublishItem(ctx context.Context, path, publisher, itemID string, payload []xmpp.XElement) (string, []string, error) {
	v, err := s.submit(ctx, func() (interface{}, error) {
		id, evicted, perr := s.ctrl.PublishItem(ctx, s.host, path, publisher, itemID, payload)
		return publishResult{itemID: id, evicted: evicted}, perr
	})
	if v == nil {
		return "", nil, err
	}
	r := v.(publishResult)
	return r.itemID, r.evicted, err
}

func (s *Service) RetractItem(ctx context.Context, path, publisher, itemID string, forceNotify bool) error {
	_, err := s.submit(ctx, func() (interface{}, error) {
		return nil, s.ctrl.RetractItem(ctx, s.host, path, publisher, itemID, forceNotify)
	})
	return err
}

func (s *Service) PurgeNode(ctx context.Context, path, requester string) error {
	_, err := s.submit(ctx, func() (interface{}, error) {
		return nil, s.ctrl.PurgeNode(ctx, s.host, path, requester)
	})
	return err
}

func (s *Service) DeleteNode(ctx context.Context, path, requester string) error {
	_, err := s.submit(ctx, func() (interface{}, error) {
		return nil, s.ctrl.DeleteNode(ctx, s.host, path, requester)
	})
	return err
}

func (s *Service) GetItems(ctx context.Context, path, requester string, max int) ([]*model.Item, error) {
	v, err := s.submit(ctx, func() (interface{}, error) {
		return s.ctrl.GetItems(ctx, s.host, path, requester, max)
	})
	if v == nil {
		return nil, err
	}
	return v.([]*model.Item), err
}

func (s *Service) GetItem(ctx context.Context, path, requester, itemID string) (*model.Item, error) {
	v, err := s.submit(ctx, func() (interface{}, error) {
		return s.ctrl.GetItem(ctx, s.host, path, requester, itemID)
	})
	if v == nil {
		return nil, err
	}
	return v.(*model.Item), err
}

func (s *Service) SetAffiliation(ctx context.Context, path, requester, target string, aff model.Affiliation) error {
	_, err := s.submit(ctx, func() (interface{}, error) {
		return nil, s.ctrl.SetAffiliation(ctx, s.host, path, requester, target, aff)
	})
	return err
}

func (s *Service) SetSubscription(ctx context.Context, path, requester, target, subID string, state model.SubState) error {
	_, err := s.submit(ctx, func() (interface{}, error) {
		return nil, s.ctrl.SetSubscription(ctx, s.host, path, requester, target, subID, state)
	})
	return err
}

func (s *Service) ConfigureNode(ctx context.Context, path, requester string, form xmpp.XElement) error {
	_, err := s.submit(ctx, func() (interface{}, error) {
		return nil, s.ctrl.ConfigureNode(ctx, s.host, path, requester, form)
	})
	return err
}

// presenceDeliverCtxTimeout bounds the background work triggered off a
// presence transition, since hook.PresenceObserver's methods return nothing
// a caller could wait on.
const presenceDeliverCtxTimeout = 5 * time.Second

// ResourceAvailable implements hook.PresenceObserver: for a PEP host, pushes
// the last item on every node whose send_last_published_item is
// on_sub_and_presence, spec §8 scenario 5.
func (s *Service) ResourceAvailable(user *jid.JID, showState int) {
	if !isPEPHost(s.host) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), presenceDeliverCtxTimeout)
	defer cancel()
	s.submit(ctx, func() (interface{}, error) {
		nodes, err := s.ctrl.repo.ChildNodes(ctx, s.host, "")
		if err != nil {
			return nil, err
		}
		for _, n := range nodes {
			if n.Options.SendLastPublishedItem != model.SendLastOnSubAndPresence {
				continue
			}
			s.ctrl.maybeSendLastItem(ctx, n, user.ToBareJID().String())
		}
		return nil, nil
	})
}

// ResourceUnavailable implements hook.PresenceObserver: when last is true
// and a node's purge_offline option is set, purges it, spec §6
// purge_offline / §8 scenario 6.
func (s *Service) ResourceUnavailable(user *jid.JID, last bool) {
	if !last || !isPEPHost(s.host) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), presenceDeliverCtxTimeout)
	defer cancel()
	s.submit(ctx, func() (interface{}, error) {
		nodes, err := s.ctrl.repo.ChildNodes(ctx, s.host, "")
		if err != nil {
			return nil, err
		}
		for _, n := range nodes {
			if !n.Options.PurgeOffline {
				continue
			}
			// PurgeNode clears every item rather than only those
			// authored by user; safe here because isPEPHost above
			// guarantees a single-author node, but a hometree/flat
			// host reaching this path would need an author-scoped
			// purge instead.
			_ = s.ctrl.PurgeNode(ctx, s.host, n.Path, user.ToBareJID().String())
		}
		return nil, nil
	})
}

var _ hook.PresenceObserver = (*Service)(nil)
