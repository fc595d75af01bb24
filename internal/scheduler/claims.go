package scheduler

import "sync"

// claimSet marks games that belong to an in-flight batch so a second batch
// does not analyse them concurrently.
type claimSet struct {
	mu   sync.Mutex
	held map[int64]string // game id -> batch id
}

func newClaimSet() *claimSet {
	return &claimSet{held: make(map[int64]string)}
}

// claim marks gameID as owned by batchID. It returns false if another batch
// already holds it.
func (c *claimSet) claim(gameID int64, batchID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.held[gameID]; ok {
		return false
	}
	c.held[gameID] = batchID
	return true
}

// release drops the claim if batchID still holds it.
func (c *claimSet) release(gameID int64, batchID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.held[gameID] == batchID {
		delete(c.held, gameID)
	}
}

// holder returns the batch holding gameID, if any.
func (c *claimSet) holder(gameID int64) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.held[gameID]
	return id, ok
}

func (c *claimSet) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.held)
}
