package broker

import (
	"bytes"
	"context"
	"io"

	"github.com/axmq/broker/mqttcodec"
	"github.com/axmq/broker/session"
	"github.com/axmq/broker/topic"
)

const (
	protocolNameV311  = "MQTT"
	protocolLevelV311 = 4
)

// encodable is satisfied by every mqttcodec packet type.
type encodable interface {
	Encode(w io.Writer) error
}

// handlePacket dispatches one decoded packet through the connection FSM.
// A true return means the caller must tear the connection down, using the
// accompanying CloseReason, after sending whatever has already been
// queued.
func (b *Broker) handlePacket(c *Conn, pkt mqttcodec.Packet) (shouldClose bool, reason CloseReason) {
	switch c.state {
	case stateAwaitingConnect:
		cp, ok := pkt.(*mqttcodec.ConnectPacket)
		if !ok {
			return true, ProtocolError
		}
		return b.handleConnect(c, cp)
	case stateConnected:
		return b.dispatchConnected(c, pkt)
	default:
		return true, ProtocolError
	}
}

func (b *Broker) dispatchConnected(c *Conn, pkt mqttcodec.Packet) (bool, CloseReason) {
	switch p := pkt.(type) {
	case *mqttcodec.PublishPacket:
		return b.handlePublish(c, p)
	case *mqttcodec.PubackPacket:
		c.sess.RemoveOutboundInflight(p.PacketID)
		return false, 0
	case *mqttcodec.PubrecPacket:
		c.sess.SetOutboundState(p.PacketID, session.AwaitingPubcomp)
		b.sendPacket(c, &mqttcodec.PubrelPacket{PacketID: p.PacketID})
		return false, 0
	case *mqttcodec.PubrelPacket:
		c.sess.ClearInboundInflight(p.PacketID)
		b.sendPacket(c, &mqttcodec.PubcompPacket{PacketID: p.PacketID})
		return false, 0
	case *mqttcodec.PubcompPacket:
		c.sess.RemoveOutboundInflight(p.PacketID)
		return false, 0
	case *mqttcodec.SubscribePacket:
		return b.handleSubscribe(c, p)
	case *mqttcodec.UnsubscribePacket:
		return b.handleUnsubscribe(c, p)
	case *mqttcodec.PingreqPacket:
		b.sendPacket(c, &mqttcodec.PingrespPacket{})
		return false, 0
	case *mqttcodec.DisconnectPacket:
		return true, Graceful
	case *mqttcodec.ConnectPacket:
		// A second CONNECT on an already-established connection is a
		// protocol violation (section 3.1).
		return true, ProtocolError
	default:
		return true, ProtocolError
	}
}

func (b *Broker) handleConnect(c *Conn, cp *mqttcodec.ConnectPacket) (bool, CloseReason) {
	if cp.ProtocolName != protocolNameV311 || cp.ProtocolLevel != protocolLevelV311 {
		b.sendPacket(c, &mqttcodec.ConnackPacket{ReturnCode: mqttcodec.ConnectRefusedBadProtocol})
		return true, ProtocolError
	}

	ctx := context.Background()
	clientID := cp.ClientID
	if clientID == "" {
		if !cp.CleanSession {
			// section 3.1.3.1: a server MAY reject a zero-length client_id
			// combined with clean_session=0. This broker always does.
			b.sendPacket(c, &mqttcodec.ConnackPacket{ReturnCode: mqttcodec.ConnectRefusedIdentifierRejected})
			return true, ProtocolError
		}
		id, err := b.sessions.GenerateClientID(ctx)
		if err != nil {
			b.sendPacket(c, &mqttcodec.ConnackPacket{ReturnCode: mqttcodec.ConnectRefusedServerUnavailable})
			return true, IoError
		}
		clientID = id
	}

	var username, password string
	if cp.UsernameFlag {
		username = cp.Username
	}
	if cp.PasswordFlag {
		password = string(cp.Password)
	}
	switch b.auth.Authenticate(clientID, username, password, cp.UsernameFlag, cp.PasswordFlag) {
	case BadUserOrPass:
		b.sendPacket(c, &mqttcodec.ConnackPacket{ReturnCode: mqttcodec.ConnectRefusedBadUserOrPass})
		return true, AuthFailed
	case NotAuthorized:
		b.sendPacket(c, &mqttcodec.ConnackPacket{ReturnCode: mqttcodec.ConnectRefusedNotAuthorized})
		return true, AuthFailed
	}

	sess, _, present, err := b.sessions.Open(ctx, clientID, cp.CleanSession, cp.KeepAlive)
	if err != nil {
		b.sendPacket(c, &mqttcodec.ConnackPacket{ReturnCode: mqttcodec.ConnectRefusedServerUnavailable})
		return true, IoError
	}

	if cp.WillFlag {
		sess.SetWill(&session.Will{
			Topic:   cp.WillTopic,
			Payload: cp.WillPayload,
			QoS:     byte(cp.WillQoS),
			Retain:  cp.WillRetain,
		})
	}

	sess.SetActive()
	c.clientID = clientID
	c.sess = sess
	c.keepaliveSecs = cp.KeepAlive
	c.state = stateConnected
	b.connsByClientID[clientID] = c

	b.sendPacket(c, &mqttcodec.ConnackPacket{SessionPresent: present, ReturnCode: mqttcodec.ConnectAccepted})

	if present {
		b.resumeSubscriptions(c, sess)
		for _, msg := range sess.AllOutboundInflight() {
			b.sendOutboundMessage(c, sess, msg, true)
		}
		for _, msg := range sess.DrainOffline() {
			b.sendOutboundMessage(c, sess, msg, false)
		}
	}

	return false, 0
}

// resumeSubscriptions re-registers a resumed session's subscriptions in
// the live router. The router is in memory only: it keeps a
// clean_session=false client's routes across a disconnect but starts empty
// after a broker restart, while the session keeps the authoritative copy.
func (b *Broker) resumeSubscriptions(c *Conn, sess *session.Session) {
	for filter, qos := range sess.AllSubs() {
		_ = b.router.Subscribe(&topic.Subscription{
			ClientID:    c.clientID,
			TopicFilter: filter,
			QoS:         mqttcodec.QoS(qos),
		})
	}
}

func (b *Broker) handlePublish(c *Conn, p *mqttcodec.PublishPacket) (bool, CloseReason) {
	if err := topic.ValidateTopic(p.TopicName); err != nil {
		return true, ProtocolError
	}

	switch p.QoS {
	case mqttcodec.QoS0:
		b.routePublish(p.TopicName, p.Payload, 0, p.Retain)
	case mqttcodec.QoS1:
		b.routePublish(p.TopicName, p.Payload, 1, p.Retain)
		b.sendPacket(c, &mqttcodec.PubackPacket{PacketID: p.PacketID})
	case mqttcodec.QoS2:
		if !c.sess.MarkInboundInflight(p.PacketID) {
			b.routePublish(p.TopicName, p.Payload, 2, p.Retain)
		}
		b.sendPacket(c, &mqttcodec.PubrecPacket{PacketID: p.PacketID})
	default:
		return true, ProtocolError
	}
	return false, 0
}

// routePublish applies retained-message bookkeeping and fans the message
// out to every matching subscriber.
func (b *Broker) routePublish(topicName string, payload []byte, qos byte, retain bool) {
	if retain {
		if len(payload) == 0 {
			b.retained.Delete(topicName)
		} else {
			b.retained.Set(topicName, topic.RetainedMessage{Topic: topicName, Payload: payload, QoS: mqttcodec.QoS(qos)})
		}
	}

	for _, sub := range b.router.Match(topicName) {
		effQoS := qos
		if byte(sub.QoS) < effQoS {
			effQoS = byte(sub.QoS)
		}
		b.deliverTo(sub.ClientID, topicName, payload, effQoS)
	}
}

// deliverTo sends a PUBLISH to clientID's session, directly if a
// connection is live. Otherwise, for QoS 1/2, the message is queued into
// queued_while_offline via the session manager, which resolves the
// persisted session whether or not it is currently attached (a
// clean_session client or one the manager has never heard of drops the
// message instead). QoS 0 to an offline client is simply dropped.
func (b *Broker) deliverTo(clientID, topicName string, payload []byte, qos byte) {
	if sess, ok := b.sessions.Get(clientID); ok {
		if conn, connected := b.connsByClientID[clientID]; connected && sess.IsConnected() {
			msg := &session.OutboundMessage{Topic: topicName, Payload: payload, QoS: qos}
			b.sendOutboundMessage(conn, sess, msg, false)
			return
		}
	}

	if qos == 0 {
		return
	}

	msg := &session.OutboundMessage{Topic: topicName, Payload: payload, QoS: qos}
	if err := b.sessions.EnqueueOffline(context.Background(), clientID, msg); err != nil {
		b.log.Error("failed to persist offline message", "client_id", clientID, "error", err)
	}
}

// sendOutboundMessage writes msg to conn, allocating a packet id and
// recording outbound_inflight state for QoS 1/2. dup forces the DUP flag,
// used when redelivering on reconnect.
func (b *Broker) sendOutboundMessage(conn *Conn, sess *session.Session, msg *session.OutboundMessage, dup bool) {
	pkt := &mqttcodec.PublishPacket{
		DUP:       dup || msg.Dup,
		QoS:       mqttcodec.QoS(msg.QoS),
		Retain:    msg.Retain,
		TopicName: msg.Topic,
		Payload:   msg.Payload,
	}

	if msg.QoS > 0 {
		id := msg.PacketID
		if id == 0 {
			allocated, err := sess.AllocatePktID()
			if err != nil {
				return
			}
			id = allocated
		}
		pkt.PacketID = id
		msg.PacketID = id
		msg.State = session.AwaitingPuback
		if msg.QoS == 2 {
			msg.State = session.AwaitingPubrec
		}
		sess.AddOutboundInflight(msg)
	}

	b.sendPacket(conn, pkt)
}

func (b *Broker) handleSubscribe(c *Conn, p *mqttcodec.SubscribePacket) (bool, CloseReason) {
	codes := make([]byte, len(p.Subscriptions))
	for i, sub := range p.Subscriptions {
		if err := topic.ValidateTopicFilter(sub.TopicFilter); err != nil || !sub.QoS.IsValid() {
			codes[i] = mqttcodec.SubackFailure
			continue
		}
		_ = b.router.Subscribe(&topic.Subscription{ClientID: c.clientID, TopicFilter: sub.TopicFilter, QoS: sub.QoS})
		c.sess.AddSub(sub.TopicFilter, byte(sub.QoS))
		codes[i] = byte(sub.QoS)
	}

	b.sendPacket(c, &mqttcodec.SubackPacket{PacketID: p.PacketID, ReturnCodes: codes})

	// Retained delivery happens only after SUBACK has been queued, so a
	// client never sees a retained PUBLISH before the SUBACK that caused it.
	for i, sub := range p.Subscriptions {
		if codes[i] == mqttcodec.SubackFailure {
			continue
		}
		for _, rm := range b.retained.Match(sub.TopicFilter) {
			effQoS := byte(rm.QoS)
			if byte(sub.QoS) < effQoS {
				effQoS = byte(sub.QoS)
			}
			b.sendOutboundMessage(c, c.sess, &session.OutboundMessage{
				Topic: rm.Topic, Payload: rm.Payload, QoS: effQoS, Retain: true,
			}, false)
		}
	}
	return false, 0
}

func (b *Broker) handleUnsubscribe(c *Conn, p *mqttcodec.UnsubscribePacket) (bool, CloseReason) {
	for _, filter := range p.TopicFilters {
		b.router.Unsubscribe(c.clientID, filter)
		c.sess.RemoveSub(filter)
	}
	b.sendPacket(c, &mqttcodec.UnsubackPacket{PacketID: p.PacketID})
	return false, 0
}

// sendPacket encodes pkt and queues its bytes on c's outbound buffer.
func (b *Broker) sendPacket(c *Conn, pkt encodable) {
	var buf bytes.Buffer
	if err := pkt.Encode(&buf); err != nil {
		return
	}
	if buf.Len() == 0 {
		return
	}
	b.stats.addMessageSent()
	if err := b.queueWrite(c, buf.Bytes()); err != nil {
		b.closeConn(c, IoError)
	}
}
