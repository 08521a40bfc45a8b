package topic

import "strings"

// retainedNode is a single level of the retained-message trie.
type retainedNode struct {
	children map[string]*retainedNode
	message  *RetainedMessage
}

func newRetainedNode() *retainedNode {
	return &retainedNode{children: make(map[string]*retainedNode)}
}

// RetainedStore holds at most one retained message per topic. MQTT v3.1.1
// retained messages have no expiry, so unlike a $SYS-style TTL cache this
// store never needs a cleanup goroutine: a message lives until replaced or
// cleared by an empty-payload PUBLISH.
type RetainedStore struct {
	root  *retainedNode
	count int
}

// NewRetainedStore creates a new, empty retained-message store.
func NewRetainedStore() *RetainedStore {
	return &RetainedStore{root: newRetainedNode()}
}

// Set stores msg as the retained message for topic. A zero-length payload
// deletes any retained message for that topic instead, per the PUBLISH
// RETAIN handling rules.
func (s *RetainedStore) Set(topic string, msg RetainedMessage) {
	if len(msg.Payload) == 0 {
		s.Delete(topic)
		return
	}

	levels := splitTopicLevels(topic)
	node := s.root
	for _, level := range levels {
		child := node.children[level]
		if child == nil {
			child = newRetainedNode()
			node.children[level] = child
		}
		node = child
	}

	if node.message == nil {
		s.count++
	}
	m := msg
	node.message = &m
}

// Get returns the retained message for topic, if any.
func (s *RetainedStore) Get(topic string) (RetainedMessage, bool) {
	levels := splitTopicLevels(topic)
	node := s.root
	for _, level := range levels {
		node = node.children[level]
		if node == nil {
			return RetainedMessage{}, false
		}
	}
	if node.message == nil {
		return RetainedMessage{}, false
	}
	return *node.message, true
}

// Delete removes the retained message for topic, if any, pruning nodes that
// become empty.
func (s *RetainedStore) Delete(topic string) {
	levels := splitTopicLevels(topic)
	path := make([]*retainedNode, 0, len(levels)+1)
	path = append(path, s.root)
	node := s.root
	for _, level := range levels {
		node = node.children[level]
		if node == nil {
			return
		}
		path = append(path, node)
	}

	if node.message != nil {
		node.message = nil
		s.count--
	}

	for i := len(path) - 1; i > 0; i-- {
		current, parent := path[i], path[i-1]
		if current.message != nil || len(current.children) > 0 {
			break
		}
		for key, child := range parent.children {
			if child == current {
				delete(parent.children, key)
				break
			}
		}
	}
}

// Match returns every retained message whose topic matches filter. As with
// live subscription matching, a leading "#" or "+" never matches the first
// level of a topic beginning with "$" — a literal first level such as
// "$SYS/#" is unaffected and matches normally.
func (s *RetainedStore) Match(filter string) []RetainedMessage {
	filterLevels := splitTopicLevels(filter)
	var matched []RetainedMessage
	s.matchRecursive(s.root, filterLevels, 0, &matched)
	return matched
}

func (s *RetainedStore) matchRecursive(node *retainedNode, filterLevels []string, depth int, matched *[]RetainedMessage) {
	if depth == len(filterLevels) {
		if node.message != nil {
			*matched = append(*matched, *node.message)
		}
		return
	}

	level := filterLevels[depth]
	switch level {
	case "#":
		s.collectAll(node, matched, depth == 0)
	case "+":
		for key, child := range node.children {
			if depth == 0 && strings.HasPrefix(key, "$") {
				continue
			}
			s.matchRecursive(child, filterLevels, depth+1, matched)
		}
	default:
		if child := node.children[level]; child != nil {
			s.matchRecursive(child, filterLevels, depth+1, matched)
		}
	}
}

// collectAll gathers every retained message at or below node. skipDollar
// excludes first-level children whose key begins with "$", used when node
// is the trie root and the matching filter level is a "#".
func (s *RetainedStore) collectAll(node *retainedNode, matched *[]RetainedMessage, skipDollar bool) {
	if node.message != nil {
		*matched = append(*matched, *node.message)
	}
	for key, child := range node.children {
		if skipDollar && strings.HasPrefix(key, "$") {
			continue
		}
		s.collectAll(child, matched, false)
	}
}

// Count returns the number of retained messages currently stored.
func (s *RetainedStore) Count() int {
	return s.count
}
