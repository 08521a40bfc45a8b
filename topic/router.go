package topic

// Router manages topic subscriptions and routes published messages to
// subscribers. Like Trie, Router is only ever touched by the event loop
// goroutine, so it carries no locking of its own.
type Router struct {
	trie          *Trie
	subscriptions map[string]map[string]*Subscription // clientID -> filter -> Subscription
}

// NewRouter creates a new, empty topic router.
func NewRouter() *Router {
	return &Router{
		trie:          NewTrie(),
		subscriptions: make(map[string]map[string]*Subscription),
	}
}

// Subscribe adds sub to the router, granting sub.QoS. A second Subscribe for
// the same (ClientID, TopicFilter) overwrites the previously granted QoS.
func (r *Router) Subscribe(sub *Subscription) error {
	if err := ValidateTopicFilter(sub.TopicFilter); err != nil {
		return err
	}

	subInfo := SubscriberInfo{ClientID: sub.ClientID, QoS: sub.QoS}
	if err := r.trie.Subscribe(sub.TopicFilter, subInfo); err != nil {
		return err
	}

	if r.subscriptions[sub.ClientID] == nil {
		r.subscriptions[sub.ClientID] = make(map[string]*Subscription)
	}
	r.subscriptions[sub.ClientID][sub.TopicFilter] = sub
	return nil
}

// Unsubscribe removes clientID's subscription to filter.
func (r *Router) Unsubscribe(clientID, filter string) bool {
	found := r.trie.Unsubscribe(filter, clientID)

	if clientSubs, ok := r.subscriptions[clientID]; ok {
		delete(clientSubs, filter)
		if len(clientSubs) == 0 {
			delete(r.subscriptions, clientID)
		}
	}

	return found
}

// UnsubscribeAll removes every subscription belonging to clientID, returning
// the number removed. Called when a session ends.
func (r *Router) UnsubscribeAll(clientID string) int {
	clientSubs, ok := r.subscriptions[clientID]
	if !ok {
		return 0
	}

	filters := make([]string, 0, len(clientSubs))
	for filter := range clientSubs {
		filters = append(filters, filter)
	}
	delete(r.subscriptions, clientID)

	count := 0
	for _, filter := range filters {
		if r.trie.Unsubscribe(filter, clientID) {
			count++
		}
	}
	return count
}

// Match finds every subscriber whose filter matches topic.
func (r *Router) Match(topic string) []SubscriberInfo {
	return r.trie.Match(topic)
}

// GetSubscription retrieves a specific client's subscription to filter.
func (r *Router) GetSubscription(clientID, filter string) (*Subscription, bool) {
	if clientSubs, ok := r.subscriptions[clientID]; ok {
		sub, ok := clientSubs[filter]
		return sub, ok
	}
	return nil, false
}

// GetClientSubscriptions returns every subscription held by clientID.
func (r *Router) GetClientSubscriptions(clientID string) []*Subscription {
	clientSubs, ok := r.subscriptions[clientID]
	if !ok {
		return nil
	}

	result := make([]*Subscription, 0, len(clientSubs))
	for _, sub := range clientSubs {
		result = append(result, sub)
	}
	return result
}

// Count returns the total number of subscriptions across all clients.
func (r *Router) Count() int {
	return r.trie.Count()
}

// CountClients returns the number of distinct clients with subscriptions.
func (r *Router) CountClients() int {
	return len(r.subscriptions)
}

// Clear removes every subscription from the router.
func (r *Router) Clear() {
	r.subscriptions = make(map[string]map[string]*Subscription)
	r.trie.Clear()
}
