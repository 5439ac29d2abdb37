package main

import (
	"context"
	"fmt"
	"io"
	"net/netip"
	"strings"
	"time"

	"github.com/opd-ai/meadowlink/crypto"
	"github.com/opd-ai/meadowlink/identity"
	"github.com/opd-ai/meadowlink/packet"
	"github.com/opd-ai/meadowlink/transport"
	"github.com/sirupsen/logrus"
)

// confirmTimeout bounds how long a key confirmation waits for an answer.
const confirmTimeout = 30 * time.Second

type nodeConfig struct {
	name          string
	announceEvery time.Duration
	input         <-chan string
	out           io.Writer
	board         *statusBoard
}

// node is the application on top of the transport. Everything it does runs
// on the goroutine calling run.
type node struct {
	cfg        nodeConfig
	m          *transport.Manager
	dispatcher *packet.Dispatcher

	// names maps hex public keys to the names peers announced.
	names        map[string]string
	lastAnnounce time.Time
}

func newNode(cfg nodeConfig) *node {
	n := &node{
		cfg:        cfg,
		dispatcher: packet.NewDispatcher(packet.NewRegistry()),
		names:      make(map[string]string),
	}
	n.dispatcher.Handle(packet.TypeChatMessage, n.handleChat)
	n.dispatcher.Handle(packet.TypeAnnounce, n.handleAnnounce)
	n.dispatcher.Handle(packet.TypePeerList, n.handlePeerList)
	return n
}

// attach binds the node to its transport.
func (n *node) attach(m *transport.Manager) {
	n.m = m
}

// newConfirm returns the key confirmation callback. Without autoAccept it
// asks on out and waits for a y/yes line on input.
func newConfirm(autoAccept bool, input <-chan string, out io.Writer) transport.ConfirmFunc {
	return func(prompt, hexKey string) bool {
		if autoAccept {
			return true
		}
		fmt.Fprintf(out, "%s\n  %s\n[y/N] ", prompt, hexKey)
		select {
		case line, ok := <-input:
			if !ok {
				return false
			}
			answer := strings.ToLower(strings.TrimSpace(line))
			return answer == "y" || answer == "yes"
		case <-time.After(confirmTimeout):
			fmt.Fprintln(out, "no answer, rejecting")
			return false
		}
	}
}

// PeerForgotten implements transport.Observer.
func (n *node) PeerForgotten(id *identity.ID) {
	fmt.Fprintf(n.cfg.out, "* %s left\n", n.displayName(id))
	if pk, ok := id.PublicKey(); ok {
		delete(n.names, pk.Hex())
	}
}

func (n *node) run(ctx context.Context, frame time.Duration) {
	ticker := time.NewTicker(frame)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if !n.step() {
			return
		}
	}
}

// step runs one control loop iteration. It returns false once the user
// asked to quit.
func (n *node) step() bool {
	n.drain()
	if !n.handleInput() {
		return false
	}
	n.m.Tick()
	n.maybeAnnounce()
	n.publish()
	return true
}

// drain dispatches every payload queued on the socket.
func (n *node) drain() {
	for {
		payload, sender, ok := n.m.Receive()
		if !ok {
			return
		}
		n.dispatcher.Dispatch(payload, sender)
	}
}

func (n *node) handleInput() bool {
	for {
		select {
		case line, ok := <-n.cfg.input:
			if !ok {
				return true
			}
			if !n.command(line) {
				return false
			}
		default:
			return true
		}
	}
}

// command handles one line of user input.
func (n *node) command(line string) bool {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
	case line == "/quit":
		return false
	case line == "/invite":
		fmt.Fprintf(n.cfg.out, "Invite code: %s\n", n.m.InviteCode())
	case line == "/peers":
		for _, p := range n.m.Peers() {
			fmt.Fprintf(n.cfg.out, "  %s %s %s queued=%d\n", p.Status, p.Endpoint, n.displayName(p.ID), p.Queued)
		}
	case strings.HasPrefix(line, "/connect "):
		if err := n.connect(strings.TrimSpace(strings.TrimPrefix(line, "/connect "))); err != nil {
			fmt.Fprintf(n.cfg.out, "connect failed: %v\n", err)
		}
	case strings.HasPrefix(line, "/"):
		fmt.Fprintln(n.cfg.out, "commands: /peers /invite /connect <peer> /quit")
	default:
		n.broadcastChat(line)
	}
	return true
}

// connect resolves name and introduces this node to it.
func (n *node) connect(name string) error {
	id, err := n.m.ResolveID(name)
	if err != nil {
		return err
	}
	return n.introduce(id)
}

func (n *node) introduce(id *identity.ID) error {
	payload, err := packet.Marshal(n.announcement())
	if err != nil {
		return err
	}
	return n.m.Send(payload, id, transport.Reliable, true)
}

func (n *node) announcement() *packet.Announce {
	return &packet.Announce{
		Name:      n.cfg.name,
		PublicKey: n.m.PublicKey(),
		Port:      n.m.LocalPort(),
	}
}

// broadcastChat sends text reliably to every connected peer.
func (n *node) broadcastChat(text string) {
	payload, err := packet.Marshal(&packet.ChatMessage{Text: text})
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "broadcastChat",
			"error":    err.Error(),
		}).Error("Failed to encode chat message")
		return
	}
	sent := 0
	for _, p := range n.m.Peers() {
		if p.ID.Status() != identity.Connected {
			continue
		}
		if err := n.m.Send(payload, p.ID, transport.Reliable, false); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "broadcastChat",
				"peer":     p.ID.String(),
				"error":    err.Error(),
			}).Warn("Failed to send chat message")
			continue
		}
		sent++
	}
	if sent == 0 {
		fmt.Fprintln(n.cfg.out, "* nobody is connected yet")
	}
}

// maybeAnnounce broadcasts this node's announcement on every port a node
// may listen on.
func (n *node) maybeAnnounce() {
	if n.cfg.announceEvery <= 0 || time.Since(n.lastAnnounce) < n.cfg.announceEvery {
		return
	}
	n.lastAnnounce = time.Now()

	payload, err := packet.Marshal(n.announcement())
	if err != nil {
		return
	}
	for _, id := range n.m.BroadcastIDs() {
		if err := n.m.Send(payload, id, transport.UnreliableBroadcast, false); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "maybeAnnounce",
				"target":   id.String(),
				"error":    err.Error(),
			}).Debug("Announcement not sent")
		}
	}
}

func (n *node) handleChat(p packet.Packet, sender *identity.ID) error {
	msg := p.(*packet.ChatMessage)
	if sender.Status() != identity.Connected {
		return fmt.Errorf("chat from unauthenticated sender %s", sender)
	}
	fmt.Fprintf(n.cfg.out, "<%s> %s\n", n.displayName(sender), msg.Text)
	return nil
}

// handleAnnounce learns about peers. A cleartext announcement from the local
// network starts a conversation with the announcer; a sealed one names a
// peer that contacted us.
func (n *node) handleAnnounce(p packet.Packet, sender *identity.ID) error {
	ann := p.(*packet.Announce)
	if ann.PublicKey.Equal(n.m.PublicKey()) {
		return nil
	}

	if sender.Status() == identity.Connected {
		senderKey, _ := sender.PublicKey()
		if !senderKey.Equal(ann.PublicKey) {
			return fmt.Errorf("announcement key does not match sender %s", sender)
		}
		hexKey := ann.PublicKey.Hex()
		if _, known := n.names[hexKey]; !known {
			n.names[hexKey] = ann.Name
			fmt.Fprintf(n.cfg.out, "* %s joined\n", ann.Name)
			// Answer so the other side learns our name too.
			if err := n.introduce(sender); err != nil {
				return err
			}
			return n.shareLobby(sender)
		}
		n.names[hexKey] = ann.Name
		return nil
	}

	if _, known := n.names[ann.PublicKey.Hex()]; known {
		return nil
	}
	if n.tracked(ann.PublicKey) {
		return nil
	}
	if !sender.IsNetworkLocal() {
		return fmt.Errorf("announcement from outside the local network: %s", sender)
	}
	ep := netip.AddrPortFrom(sender.Endpoint().Addr(), ann.Port)
	target := identity.NewConnected(ep, ann.PublicKey)
	if err := target.Validate(false, false, false); err != nil {
		return fmt.Errorf("unusable announcement from %s: %w", sender, err)
	}
	return n.introduce(target)
}

// shareLobby sends to a list of the other connected peers, so a newcomer
// can introduce itself to each of them.
func (n *node) shareLobby(to *identity.ID) error {
	toKey, _ := to.PublicKey()
	var others []*identity.ID
	for _, p := range n.m.Peers() {
		pk, ok := p.ID.PublicKey()
		if p.ID.Status() != identity.Connected || !ok || pk.Equal(toKey) {
			continue
		}
		others = append(others, p.ID)
	}
	if len(others) == 0 {
		return nil
	}
	payload, err := packet.Marshal(&packet.PeerList{AddressedTo: to, Peers: others})
	if err != nil {
		return err
	}
	return n.m.Send(payload, to, transport.Reliable, false)
}

// handlePeerList introduces this node to every listed peer it does not
// know yet.
func (n *node) handlePeerList(p packet.Packet, sender *identity.ID) error {
	list := p.(*packet.PeerList)
	if sender.Status() != identity.Connected {
		return fmt.Errorf("peer list from unauthenticated sender %s", sender)
	}
	ids, err := list.Resolve(n.m.Host(), sender, n.m.Self())
	if err != nil {
		return err
	}
	for _, id := range ids {
		pk, ok := id.PublicKey()
		if !ok || pk.Equal(n.m.PublicKey()) || n.tracked(pk) {
			continue
		}
		if err := id.Validate(false, false, false); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "handlePeerList",
				"peer":     id.String(),
				"error":    err.Error(),
			}).Warn("Skipping unusable peer list entry")
			continue
		}
		if err := n.introduce(id); err != nil {
			return err
		}
	}
	return nil
}

func (n *node) tracked(key crypto.PublicKey) bool {
	for _, p := range n.m.Peers() {
		if pk, ok := p.ID.PublicKey(); ok && pk.Equal(key) {
			return true
		}
	}
	return false
}

func (n *node) displayName(id *identity.ID) string {
	if id == nil {
		return "?"
	}
	if pk, ok := id.PublicKey(); ok {
		if name, known := n.names[pk.Hex()]; known {
			return name
		}
		return pk.Hex()[:8]
	}
	return id.Endpoint().String()
}

// publish copies the transport state to the status board.
func (n *node) publish() {
	if n.cfg.board == nil {
		return
	}
	n.cfg.board.publish(selfInfo{
		Name:      n.cfg.name,
		PublicKey: n.m.PublicKey().Hex(),
		Endpoint:  n.m.Self().Endpoint().String(),
		Invite:    n.m.InviteCode(),
	}, n.m.Peers(), n.m.Stats())
}
