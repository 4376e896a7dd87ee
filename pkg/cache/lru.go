package cache

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// lru is a weighted least recently used map. Items are evicted from the tail
// once the combined weight exceeds the budget.
type lru struct {
	log *logrus.Entry

	mu     sync.Mutex
	head   *lruNode
	tail   *lruNode
	lookup map[string]*lruNode
	weight int
	budget int
}

type lruNode struct {
	next   *lruNode
	prev   *lruNode
	key    string
	value  interface{}
	weight int
}

func newLRU(budget int) *lru {
	return &lru{
		log:    logrus.StandardLogger().WithField("type", "cache/lru"),
		lookup: make(map[string]*lruNode),
		budget: budget,
	}
}

// put inserts or replaces the value for key and marks it most recently used.
func (c *lru) put(key string, value interface{}, weight int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.lookup[key]; ok {
		c.unlink(existing)
		delete(c.lookup, key)
		c.weight -= existing.weight
	}

	node := &lruNode{
		key:    key,
		value:  value,
		weight: weight,
	}
	c.pushFront(node)
	c.lookup[key] = node
	c.weight += weight

	for c.weight > c.budget && c.tail != nil {
		evicted := c.tail
		c.unlink(evicted)
		delete(c.lookup, evicted.key)
		c.weight -= evicted.weight

		c.log.WithFields(logrus.Fields{
			"key":          evicted.key,
			"weight":       evicted.weight,
			"spare_weight": c.budget - c.weight,
		}).Trace("evicted cache entry")
	}
}

// get returns the value for key and marks it most recently used.
func (c *lru) get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	node, ok := c.lookup[key]
	if !ok {
		return nil, false
	}

	if node != c.head {
		c.unlink(node)
		c.pushFront(node)
	}
	return node.value, true
}

func (c *lru) remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	node, ok := c.lookup[key]
	if !ok {
		return
	}
	c.unlink(node)
	delete(c.lookup, key)
	c.weight -= node.weight
}

func (c *lru) currentWeight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.weight
}

func (c *lru) pushFront(node *lruNode) {
	node.prev = nil
	node.next = c.head
	if c.head != nil {
		c.head.prev = node
	}
	c.head = node
	if c.tail == nil {
		c.tail = node
	}
}

func (c *lru) unlink(node *lruNode) {
	if node.prev != nil {
		node.prev.next = node.next
	} else {
		c.head = node.next
	}
	if node.next != nil {
		node.next.prev = node.prev
	} else {
		c.tail = node.prev
	}
	node.next = nil
	node.prev = nil
}
