package cache

// arm (re)starts the expiration timer of e. The callback captures e's id and arm
// sequence rather than e itself: if the entry was removed, replaced by a newer entry with
// an equal key, or re-armed, the callback finds nothing to do.
func (c *Cache[V]) arm(e *entry[V]) {
	if c.cfg.MaxAge <= 0 {
		return
	}
	e.stopTimer()
	e.seq++
	id, seq := e.id, e.seq
	e.timer = c.cfg.Scheduler.AfterFunc(c.cfg.MaxAge, func() {
		c.expire(id, seq)
	})
}

func (c *Cache[V]) expire(id, seq uint64) {
	c.mu.Lock()
	i := c.store.indexOfID(id)
	if i < 0 || c.store.at(i).seq != seq {
		c.mu.Unlock()
		c.log.Debug().Str("event", "expire_stale").Uint64("entry", id).Msg("expiration superseded")
		return
	}
	e := c.store.removeAt(i)
	e.timer = nil
	c.mu.Unlock()

	c.log.Debug().Str("event", "expire").Uint64("entry", id).Msg("entry expired")
	c.cfg.Hooks.fire(c.cfg.Hooks.OnChange, e.key)

	if c.cfg.OnExpire == nil || !c.cfg.OnExpire(e.key) {
		return
	}
	c.renew(e)
}

// renew puts an expired entry back at the head under a new id, unless an equal key was
// stored while OnExpire ran.
func (c *Cache[V]) renew(expired *entry[V]) {
	var n notices

	c.mu.Lock()
	if lookup(c.resolver, &c.store, expired.key.Args()) >= 0 {
		c.mu.Unlock()
		return
	}
	e := c.store.add(expired.key, expired.value)
	c.arm(e)
	n.add(c.cfg.Hooks.OnChange, e.key)
	c.enforceSize(&n)
	c.mu.Unlock()

	c.log.Debug().Str("event", "expire_renew").Uint64("entry", e.id).Msg("expired entry renewed")
	n.fire()
}

// enforceSize evicts least recently used entries until the size bound holds.
func (c *Cache[V]) enforceSize(n *notices) {
	for c.store.len() > c.cfg.MaxSize {
		e := c.store.removeTail()
		e.stopTimer()
		c.log.Debug().Str("event", "evict").Uint64("entry", e.id).Int("size", c.store.len()).Msg("evicted least recently used entry")
		n.add(c.cfg.Hooks.OnEvict, e.key)
		n.add(c.cfg.Hooks.OnChange, e.key)
	}
}
